package keys

import (
	"crypto/ed25519"
	"fmt"

	"golang.org/x/crypto/sha3"

	"xdao.co/tokenreg/address"
)

// Scheme names a signature scheme accepted for request envelopes.
type Scheme string

const (
	SchemeEd25519    Scheme = "ed25519"
	SchemeDilithium3 Scheme = "dilithium3"
)

// ParseScheme validates a scheme name. The empty string selects ed25519.
func ParseScheme(s string) (Scheme, error) {
	switch Scheme(s) {
	case "", SchemeEd25519:
		return SchemeEd25519, nil
	case SchemeDilithium3:
		return SchemeDilithium3, nil
	default:
		return "", fmt.Errorf("unsupported signature scheme %q", s)
	}
}

// IdentityFor maps a public key to the 32-byte identity the registry compares.
//
// Ed25519 identities are the raw public key. Dilithium3 public keys are far
// larger than an address, so their identity is sha3-256(public key).
func IdentityFor(scheme Scheme, pub []byte) (address.Address, error) {
	switch scheme {
	case SchemeEd25519:
		if l := len(pub); l != ed25519.PublicKeySize {
			return address.Zero, fmt.Errorf("ed25519 public key must be %d bytes, got %d", ed25519.PublicKeySize, l)
		}
		return address.FromBytes(pub)
	case SchemeDilithium3:
		if l := len(pub); l != dilithium3PublicKeySize {
			return address.Zero, fmt.Errorf("dilithium3 public key must be %d bytes, got %d", dilithium3PublicKeySize, l)
		}
		return address.Address(sha3.Sum256(pub)), nil
	default:
		return address.Zero, fmt.Errorf("unsupported signature scheme %q", scheme)
	}
}
