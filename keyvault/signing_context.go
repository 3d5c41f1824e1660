package keyvault

import (
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"math/big"
)

// SigningContext is a per-worker handle used to produce signatures. It
// wraps the same private key every context shares, but is not itself
// thread-safe: one signing context per worker thread, contexts are not
// thread-safe but are per-thread by construction. The workerpool creates
// exactly one of these per worker goroutine and never shares it across
// goroutines.
type SigningContext struct {
	private *ecdsa.PrivateKey
}

// NewSigningContext returns a SigningContext bound to this vault's key
// pair. Callers (the workerpool, one per worker) must not share the
// returned value across goroutines.
func (kv *KeyVault) NewSigningContext() *SigningContext {
	return &SigningContext{private: kv.private}
}

// Sign produces an ECDSA-P256 signature over plaintext. plaintext longer
// than MaxSignatureLength is rejected.
func (c *SigningContext) Sign(plaintext []byte) (Signature, error) {
	if len(plaintext) > MaxSignatureLength {
		return Signature{}, fmt.Errorf("keyvault: plaintext length %d exceeds MaxSignatureLength %d", len(plaintext), MaxSignatureLength)
	}
	digest := sha256.Sum256(plaintext)
	r, s, err := ecdsa.Sign(rand.Reader, c.private, digest[:])
	if err != nil {
		return Signature{}, fmt.Errorf("keyvault: sign: %w", err)
	}

	var sig Signature
	r.FillBytes(sig.X[:])
	s.FillBytes(sig.Y[:])
	return sig, nil
}

// bigIntFromBytes is a small helper kept alongside Sign/Verify so both use
// the same big-endian, zero-padded convention for the 32-byte halves.
func bigIntFromBytes(b [32]byte) *big.Int {
	return new(big.Int).SetBytes(b[:])
}
