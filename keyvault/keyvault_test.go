package keyvault

import (
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOrGenerate_SignVerifyRoundTrip(t *testing.T) {
	dir := t.TempDir()
	kv, err := LoadOrGenerate(filepath.Join(dir, "vault"))
	require.NoError(t, err)
	defer kv.Close()

	ctx := kv.NewSigningContext()
	plaintext := []byte("1_42_S_0")

	sig, err := ctx.Sign(plaintext)
	require.NoError(t, err)
	assert.True(t, kv.Verify(plaintext, sig))
}

func TestVerify_RejectsTamperedPlaintext(t *testing.T) {
	dir := t.TempDir()
	kv, err := LoadOrGenerate(filepath.Join(dir, "vault"))
	require.NoError(t, err)
	defer kv.Close()

	ctx := kv.NewSigningContext()
	sig, err := ctx.Sign([]byte("1_42_S_0"))
	require.NoError(t, err)

	assert.False(t, kv.Verify([]byte("1_42_X_0"), sig))
}

func TestSign_RejectsOversizedPlaintext(t *testing.T) {
	dir := t.TempDir()
	kv, err := LoadOrGenerate(filepath.Join(dir, "vault"))
	require.NoError(t, err)
	defer kv.Close()

	ctx := kv.NewSigningContext()
	oversized := make([]byte, MaxSignatureLength+1)
	_, err = ctx.Sign(oversized)
	assert.Error(t, err)
}

func TestLoadOrGenerate_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vault")

	kv1, err := LoadOrGenerate(path)
	require.NoError(t, err)
	attn1 := kv1.PublicKeyAttestation()
	require.NoError(t, kv1.Close())

	kv2, err := LoadOrGenerate(path)
	require.NoError(t, err)
	defer kv2.Close()

	assert.Equal(t, attn1, kv2.PublicKeyAttestation())
}

func TestPublicKeyAttestation_LengthSuffixMatches(t *testing.T) {
	dir := t.TempDir()
	kv, err := LoadOrGenerate(filepath.Join(dir, "vault"))
	require.NoError(t, err)
	defer kv.Close()

	attn := kv.PublicKeyAttestation()
	require.NotEmpty(t, attn)

	idx := len(attn) - 1
	for idx >= 0 && attn[idx] != ':' {
		idx--
	}
	require.Greater(t, idx, 0, "attestation must contain a ':' length suffix")
	assert.Equal(t, strconv.Itoa(idx), attn[idx+1:], "suffix must equal the length of the base64 part")
}
