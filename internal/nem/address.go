package nem

import (
	"bytes"
	"encoding/base32"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // NIS addresses are defined over RIPEMD-160
	"golang.org/x/crypto/sha3"
)

// Network identifies a NEM network by its address version byte.
type Network byte

// Known networks.
const (
	Mainnet Network = 0x68
	Testnet Network = 0x98
	Mijin   Network = 0x60
)

// String returns the network name.
func (n Network) String() string {
	switch n {
	case Mainnet:
		return "mainnet"
	case Testnet:
		return "testnet"
	case Mijin:
		return "mijin"
	default:
		return fmt.Sprintf("network(0x%02x)", byte(n))
	}
}

// ParseNetwork resolves a network name.
func ParseNetwork(name string) (Network, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "mainnet":
		return Mainnet, nil
	case "testnet":
		return Testnet, nil
	case "mijin":
		return Mijin, nil
	default:
		return 0, fmt.Errorf("unknown network %q", name)
	}
}

// AddressLength is the length of an encoded address.
const AddressLength = 40

// AddressFromPublicKey derives the base32 address of a public key on network.
func AddressFromPublicKey(publicKey []byte, network Network) string {
	sha := sha3.NewLegacyKeccak256()
	sha.Write(publicKey)

	rip := ripemd160.New()
	rip.Write(sha.Sum(nil))

	versioned := append([]byte{byte(network)}, rip.Sum(nil)...)

	check := sha3.NewLegacyKeccak256()
	check.Write(versioned)
	decoded := append(versioned, check.Sum(nil)[:4]...)

	return base32.StdEncoding.EncodeToString(decoded)
}

// AddressFromPublicKeyHex is AddressFromPublicKey for a hex key.
func AddressFromPublicKeyHex(publicKeyHex string, network Network) (string, error) {
	pub, err := hex.DecodeString(publicKeyHex)
	if err != nil {
		return "", fmt.Errorf("decode public key: %w", err)
	}
	if len(pub) != PublicKeySize {
		return "", fmt.Errorf("public key must be %d bytes, got %d", PublicKeySize, len(pub))
	}
	return AddressFromPublicKey(pub, network), nil
}

// NormalizeAddress strips dashes and spaces and upper-cases the address.
func NormalizeAddress(address string) string {
	a := strings.ToUpper(address)
	a = strings.ReplaceAll(a, "-", "")
	return strings.ReplaceAll(a, " ", "")
}

// IsValidAddress checks length, network byte and checksum.
func IsValidAddress(address string, network Network) bool {
	a := NormalizeAddress(address)
	if len(a) != AddressLength {
		return false
	}
	decoded, err := base32.StdEncoding.DecodeString(a)
	if err != nil || len(decoded) != 25 {
		return false
	}
	if decoded[0] != byte(network) {
		return false
	}
	check := sha3.NewLegacyKeccak256()
	check.Write(decoded[:21])
	return bytes.Equal(check.Sum(nil)[:4], decoded[21:])
}
