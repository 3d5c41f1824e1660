// Package capability implements the wire codec for signed lock
// capabilities: the textual token a client presents as proof that the
// manager granted it a specific (transaction, row, mode).
package capability

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/dmlab-tud/lockvault/keyvault"
)

// MACSize and NACSize are reserved wire-format constants for a future
// MAC-tagged capability variant. Nothing in this implementation currently
// produces one; they are carried as named constants so a future format
// revision has a fixed size to target rather than inventing one.
const (
	MACSize = 16
	NACSize = 16
)

// Mode is the textual lock mode used in the canonical descriptor.
type Mode string

const (
	ModeShared    Mode = "S"
	ModeExclusive Mode = "X"
)

// Descriptor is the canonical plaintext a KeyVault signs: the four fields
// joined as "<tx>_<row>_<M>_<tb>" with no trailing newline. BlockTimeout is
// currently always 0 (fixed policy) but is carried as a field so a future
// lease policy does not change the wire shape.
type Descriptor struct {
	TxID         uint64
	RowID        uint64
	Mode         Mode
	BlockTimeout int64
}

// String renders the canonical descriptor plaintext.
func (d Descriptor) String() string {
	return fmt.Sprintf("%d_%d_%s_%d", d.TxID, d.RowID, d.Mode, d.BlockTimeout)
}

// ParseDescriptor parses a canonical descriptor string back into its
// fields. Used by offline verification tools and tests that need to
// reconstruct the plaintext a capability was issued for.
func ParseDescriptor(s string) (Descriptor, error) {
	parts := strings.Split(s, "_")
	if len(parts) != 4 {
		return Descriptor{}, fmt.Errorf("capability: malformed descriptor %q", s)
	}

	tx, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return Descriptor{}, fmt.Errorf("capability: bad transaction id in %q: %w", s, err)
	}
	row, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return Descriptor{}, fmt.Errorf("capability: bad row id in %q: %w", s, err)
	}
	mode := Mode(parts[2])
	if mode != ModeShared && mode != ModeExclusive {
		return Descriptor{}, fmt.Errorf("capability: bad mode in %q", s)
	}
	tb, err := strconv.ParseInt(parts[3], 10, 64)
	if err != nil {
		return Descriptor{}, fmt.Errorf("capability: bad block_timeout in %q: %w", s, err)
	}

	return Descriptor{TxID: tx, RowID: row, Mode: mode, BlockTimeout: tb}, nil
}

// Encode renders sig as the capability wire string
// "base64(sig.x)-base64(sig.y)".
func Encode(sig keyvault.Signature) string {
	return base64.StdEncoding.EncodeToString(sig.X[:]) + "-" + base64.StdEncoding.EncodeToString(sig.Y[:])
}

// Decode splits a capability string on its first "-" and base64-decodes
// each half back into a keyvault.Signature.
func Decode(capability string) (keyvault.Signature, error) {
	idx := strings.IndexByte(capability, '-')
	if idx < 0 {
		return keyvault.Signature{}, fmt.Errorf("capability: missing '-' separator in %q", capability)
	}

	xb, err := base64.StdEncoding.DecodeString(capability[:idx])
	if err != nil {
		return keyvault.Signature{}, fmt.Errorf("capability: bad x half: %w", err)
	}
	yb, err := base64.StdEncoding.DecodeString(capability[idx+1:])
	if err != nil {
		return keyvault.Signature{}, fmt.Errorf("capability: bad y half: %w", err)
	}
	if len(xb) != 32 || len(yb) != 32 {
		return keyvault.Signature{}, fmt.Errorf("capability: signature halves must be 32 bytes each, got %d and %d", len(xb), len(yb))
	}

	var sig keyvault.Signature
	copy(sig.X[:], xb)
	copy(sig.Y[:], yb)
	return sig, nil
}
