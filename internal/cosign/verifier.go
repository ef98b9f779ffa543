package cosign

import (
	"errors"
	"fmt"

	"nem-cosigner/internal/domain"
	"nem-cosigner/internal/nem"
)

// ErrBadSignature is returned when a candidate's signature does not verify.
var ErrBadSignature = errors.New("signature does not verify")

// Verifier checks the originating signature of a candidate.
type Verifier interface {
	Verify(c *domain.TransactionCandidate) error
	Name() string
}

// StrictVerifier re-serializes the multisig wrapper and verifies the
// outer signer's signature over it.
type StrictVerifier struct{}

// Verify implements Verifier.
func (StrictVerifier) Verify(c *domain.TransactionCandidate) error {
	if c.Signature == "" {
		return fmt.Errorf("%w: missing signature", ErrBadSignature)
	}
	data, err := nem.SerializeMultisig(c)
	if err != nil {
		return fmt.Errorf("serialize for verification: %w", err)
	}
	if !nem.VerifyHex(c.SignerPublicKey, data, c.Signature) {
		return ErrBadSignature
	}
	return nil
}

// Name implements Verifier.
func (StrictVerifier) Name() string { return "strict" }

// RelaxedVerifier accepts every signature.
type RelaxedVerifier struct{}

// Verify implements Verifier.
func (RelaxedVerifier) Verify(*domain.TransactionCandidate) error { return nil }

// Name implements Verifier.
func (RelaxedVerifier) Name() string { return "relaxed" }

// NewVerifier returns the verifier named mode ("strict" or "relaxed").
func NewVerifier(mode string) (Verifier, error) {
	switch mode {
	case "", "strict":
		return StrictVerifier{}, nil
	case "relaxed":
		return RelaxedVerifier{}, nil
	default:
		return nil, fmt.Errorf("unknown verification mode %q", mode)
	}
}
