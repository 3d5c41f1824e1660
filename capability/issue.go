package capability

import "github.com/dmlab-tud/lockvault/keyvault"

// Issue signs descriptor with ctx and returns the encoded capability
// string ready to hand back to a client.
func Issue(ctx *keyvault.SigningContext, descriptor Descriptor) (string, error) {
	sig, err := ctx.Sign([]byte(descriptor.String()))
	if err != nil {
		return "", err
	}
	return Encode(sig), nil
}

// Verify reports whether capability was issued by kv for exactly
// descriptor. Pure and stateless: touches no tables.
func Verify(kv *keyvault.KeyVault, capability string, descriptor Descriptor) bool {
	sig, err := Decode(capability)
	if err != nil {
		return false
	}
	return kv.Verify([]byte(descriptor.String()), sig)
}
