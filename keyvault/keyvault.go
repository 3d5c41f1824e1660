// Package keyvault holds the manager's ECDSA-P256 signing key material and
// seals it at rest in a small embedded Pebble store, keyed by a single
// record holding the PKCS#8-encoded private key.
package keyvault

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"fmt"

	"github.com/cockroachdb/pebble"
)

// sealedKeyRecordKey is the single key under which the sealed private key
// blob is stored. The vault owns exactly one key pair, so no further
// namespacing is needed.
var sealedKeyRecordKey = []byte("/keyvault/ecdsa-p256")

// MaxSignatureLength bounds the plaintext a SigningContext will sign.
// Canonical descriptors ("<tx>_<row>_<M>_<tb>") are far shorter than this
// in practice; the bound exists to reject malformed or adversarially long
// input defensively.
const MaxSignatureLength = 256

// CapabilityLength is the wire length of a capability string: two P-256
// field elements (32 bytes each), each base64-std-encoded (44 chars with
// padding), joined by a single "-" separator. Computed, not hard-coded, so
// a future change of curve does not silently desynchronize it.
var CapabilityLength = 2*base64.StdEncoding.EncodedLen(32) + 1

// Signature is a raw ECDSA signature pair (r, s), named X and Y to match
// the canonical descriptor's historical naming. Each half is the
// big-endian encoding of a P-256 scalar, zero-padded to 32 bytes.
type Signature struct {
	X [32]byte
	Y [32]byte
}

// KeyVault holds the manager's ECDSA-P256 key pair and an opened Pebble
// handle used solely to seal/unseal it. No lock or transaction state is
// ever stored here — only the sealed key pair is persisted.
type KeyVault struct {
	db         *pebble.DB
	private    *ecdsa.PrivateKey
	publicAttn string
}

// LoadOrGenerate opens (creating if necessary) a Pebble store at path and
// either unseals an existing key pair or generates a fresh one and seals
// it.
func LoadOrGenerate(path string) (*KeyVault, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("keyvault: open pebble store: %w", err)
	}

	priv, err := unseal(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	if priv == nil {
		priv, err = ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("keyvault: generate key: %w", err)
		}
		if err := seal(db, priv); err != nil {
			db.Close()
			return nil, err
		}
	}

	kv := &KeyVault{db: db, private: priv}
	kv.publicAttn = encodeAttestation(&priv.PublicKey)
	return kv, nil
}

// Close releases the underlying Pebble handle.
func (kv *KeyVault) Close() error {
	return kv.db.Close()
}

// PublicKeyAttestation returns the base64 public key with its own encoded
// length appended for simple extraction — format "<base64>:<len(base64)>".
func (kv *KeyVault) PublicKeyAttestation() string {
	return kv.publicAttn
}

// Verify reports whether sig is a valid ECDSA-P256 signature over
// plaintext under this vault's public key. Pure and stateless: it never
// touches Pebble or any lock/transaction table.
func (kv *KeyVault) Verify(plaintext []byte, sig Signature) bool {
	digest := sha256.Sum256(plaintext)
	return ecdsa.Verify(&kv.private.PublicKey, digest[:], bigIntFromBytes(sig.X), bigIntFromBytes(sig.Y))
}

func encodeAttestation(pub *ecdsa.PublicKey) string {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		// A P-256 public key always marshals; this path is unreachable in
		// practice but kept non-panicking for defense in depth.
		return ""
	}
	b64 := base64.StdEncoding.EncodeToString(der)
	return fmt.Sprintf("%s:%d", b64, len(b64))
}

func seal(db *pebble.DB, priv *ecdsa.PrivateKey) error {
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return fmt.Errorf("keyvault: marshal private key: %w", err)
	}
	// Sync, unlike the transient lock/transaction tables: key material must
	// survive a crash even though in-memory lock state is explicitly not
	// meant to.
	if err := db.Set(sealedKeyRecordKey, der, pebble.Sync); err != nil {
		return fmt.Errorf("keyvault: seal private key: %w", err)
	}
	return nil
}

func unseal(db *pebble.DB) (*ecdsa.PrivateKey, error) {
	val, closer, err := db.Get(sealedKeyRecordKey)
	if err == pebble.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("keyvault: unseal private key: %w", err)
	}
	defer closer.Close()

	buf := make([]byte, len(val))
	copy(buf, val)

	key, err := x509.ParsePKCS8PrivateKey(buf)
	if err != nil {
		return nil, fmt.Errorf("keyvault: parse sealed key: %w", err)
	}
	priv, ok := key.(*ecdsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("keyvault: sealed key is not ECDSA")
	}
	return priv, nil
}
