package keys

import (
	"crypto/ed25519"
	"crypto/sha256"
	"fmt"

	"xdao.co/tokenreg/address"
)

// roleDomain separates role seed derivation from other uses of the root seed.
const roleDomain = "xdao-tokenreg-kms-lite-v1"

// IdentityFromSeed returns the ed25519 identity for a 32-byte seed.
func IdentityFromSeed(seed []byte) (address.Address, error) {
	if len(seed) != ed25519.SeedSize {
		return address.Zero, fmt.Errorf("seed must be %d bytes", ed25519.SeedSize)
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return address.FromBytes(priv.Public().(ed25519.PublicKey))
}

// DeriveRoleSeed deterministically derives a role-specific seed from a root seed.
func DeriveRoleSeed(rootSeed []byte, role string) ([]byte, error) {
	if len(rootSeed) != ed25519.SeedSize {
		return nil, fmt.Errorf("root seed must be %d bytes", ed25519.SeedSize)
	}
	if err := CheckRole(role); err != nil {
		return nil, err
	}

	// root || 0 || domain || 0 || "role:" || role
	msg := make([]byte, 0, len(rootSeed)+len(roleDomain)+len(role)+7)
	msg = append(msg, rootSeed...)
	msg = append(msg, 0)
	msg = append(msg, roleDomain...)
	msg = append(msg, 0)
	msg = append(msg, "role:"...)
	msg = append(msg, role...)
	sum := sha256.Sum256(msg)
	return sum[:], nil
}
