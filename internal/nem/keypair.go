package nem

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"filippo.io/edwards25519"
	"golang.org/x/crypto/sha3"
)

// ErrInvalidPrivateKey is returned when a private key is not 32 bytes of hex.
var ErrInvalidPrivateKey = errors.New("invalid private key")

// Signature and key sizes.
const (
	PublicKeySize  = 32
	PrivateKeySize = 32
	SignatureSize  = 64
)

// KeyPair is an Ed25519 key pair using Keccak-512 as the hash function,
// as NIS1 accounts do.
type KeyPair struct {
	scalar    *edwards25519.Scalar
	prefix    []byte // second half of the expanded secret, used for nonce derivation
	publicKey []byte
}

// NewKeyPair derives a key pair from a hex private key.
// NIS private keys are big-endian hex; a leading "00" (66 chars) is accepted.
func NewKeyPair(privateKeyHex string) (*KeyPair, error) {
	s := strings.TrimSpace(privateKeyHex)
	if len(s) == 2*PrivateKeySize+2 && strings.HasPrefix(s, "00") {
		s = s[2:]
	}
	if len(s) != 2*PrivateKeySize {
		return nil, fmt.Errorf("%w: expected %d hex chars, got %d", ErrInvalidPrivateKey, 2*PrivateKeySize, len(s))
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPrivateKey, err)
	}

	// Stored reversed relative to the seed.
	seed := reverse(raw)

	h := sha3.NewLegacyKeccak512()
	h.Write(seed)
	digest := h.Sum(nil)

	scalar, err := edwards25519.NewScalar().SetBytesWithClamping(digest[:32])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPrivateKey, err)
	}
	pub := new(edwards25519.Point).ScalarBaseMult(scalar)

	return &KeyPair{
		scalar:    scalar,
		prefix:    append([]byte(nil), digest[32:]...),
		publicKey: pub.Bytes(),
	}, nil
}

// PublicKey returns the 32-byte public key.
func (k *KeyPair) PublicKey() []byte {
	return append([]byte(nil), k.publicKey...)
}

// PublicKeyHex returns the lowercase hex public key.
func (k *KeyPair) PublicKeyHex() string {
	return hex.EncodeToString(k.publicKey)
}

// Sign signs data and returns a 64-byte signature.
func (k *KeyPair) Sign(data []byte) ([]byte, error) {
	r, err := hashToScalar(k.prefix, data)
	if err != nil {
		return nil, fmt.Errorf("derive nonce: %w", err)
	}
	R := new(edwards25519.Point).ScalarBaseMult(r)
	encodedR := R.Bytes()

	c, err := hashToScalar(encodedR, k.publicKey, data)
	if err != nil {
		return nil, fmt.Errorf("derive challenge: %w", err)
	}
	S := edwards25519.NewScalar().MultiplyAdd(c, k.scalar, r)

	sig := make([]byte, 0, SignatureSize)
	sig = append(sig, encodedR...)
	sig = append(sig, S.Bytes()...)
	return sig, nil
}

// Verify checks an Ed25519/Keccak-512 signature. Returns false on any malformed input.
func Verify(publicKey, data, signature []byte) bool {
	if len(publicKey) != PublicKeySize || len(signature) != SignatureSize {
		return false
	}
	A, err := new(edwards25519.Point).SetBytes(publicKey)
	if err != nil {
		return false
	}
	S, err := edwards25519.NewScalar().SetCanonicalBytes(signature[32:])
	if err != nil {
		return false
	}
	c, err := hashToScalar(signature[:32], publicKey, data)
	if err != nil {
		return false
	}

	// R' = S*B - c*A
	minusA := new(edwards25519.Point).Negate(A)
	R := new(edwards25519.Point).VarTimeDoubleScalarBaseMult(c, minusA, S)
	return bytes.Equal(R.Bytes(), signature[:32])
}

// VerifyHex is Verify with hex-encoded key and signature.
func VerifyHex(publicKeyHex string, data []byte, signatureHex string) bool {
	pub, err := hex.DecodeString(publicKeyHex)
	if err != nil {
		return false
	}
	sig, err := hex.DecodeString(signatureHex)
	if err != nil {
		return false
	}
	return Verify(pub, data, sig)
}

func hashToScalar(parts ...[]byte) (*edwards25519.Scalar, error) {
	h := sha3.NewLegacyKeccak512()
	for _, p := range parts {
		h.Write(p)
	}
	return edwards25519.NewScalar().SetUniformBytes(h.Sum(nil))
}

func reverse(b []byte) []byte {
	out := make([]byte, len(b))
	for i := range b {
		out[len(b)-1-i] = b[i]
	}
	return out
}
