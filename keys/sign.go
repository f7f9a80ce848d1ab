package keys

import (
	"crypto/ed25519"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"github.com/cloudflare/circl/sign/dilithium/mode3"
	"golang.org/x/crypto/sha3"

	"xdao.co/tokenreg/address"
)

const dilithium3PublicKeySize = mode3.PublicKeySize

var ErrBadSignature = errors.New("keys: signature verification failed")

// Signer produces signatures for one identity.
type Signer interface {
	Scheme() Scheme
	PublicKey() []byte
	Identity() address.Address
	Sign(message []byte) ([]byte, error)
}

// Ed25519Signer signs sha256(message) with an ed25519 key.
type Ed25519Signer struct {
	priv ed25519.PrivateKey
}

// NewEd25519Signer builds a signer from a 32-byte seed.
func NewEd25519Signer(seed []byte) (*Ed25519Signer, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes", ed25519.SeedSize)
	}
	return &Ed25519Signer{priv: ed25519.NewKeyFromSeed(seed)}, nil
}

func (s *Ed25519Signer) Scheme() Scheme { return SchemeEd25519 }

func (s *Ed25519Signer) PublicKey() []byte {
	return append([]byte(nil), s.priv.Public().(ed25519.PublicKey)...)
}

func (s *Ed25519Signer) Identity() address.Address {
	id, _ := address.FromBytes(s.priv.Public().(ed25519.PublicKey))
	return id
}

func (s *Ed25519Signer) Sign(message []byte) ([]byte, error) {
	digest := sha256.Sum256(message)
	return ed25519.Sign(s.priv, digest[:]), nil
}

// Dilithium3Signer signs sha3-256(message) with a Dilithium3 key.
type Dilithium3Signer struct {
	pub  *mode3.PublicKey
	priv *mode3.PrivateKey
}

// NewDilithium3Signer derives a Dilithium3 keypair from a 32-byte seed.
func NewDilithium3Signer(seed []byte) (*Dilithium3Signer, error) {
	if len(seed) != mode3.SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes", mode3.SeedSize)
	}
	var s [mode3.SeedSize]byte
	copy(s[:], seed)
	pub, priv := mode3.NewKeyFromSeed(&s)
	return &Dilithium3Signer{pub: pub, priv: priv}, nil
}

// GenerateDilithium3Signer returns a signer for a fresh Dilithium3 keypair.
func GenerateDilithium3Signer(rand io.Reader) (*Dilithium3Signer, error) {
	pub, priv, err := mode3.GenerateKey(rand)
	if err != nil {
		return nil, err
	}
	return &Dilithium3Signer{pub: pub, priv: priv}, nil
}

func (s *Dilithium3Signer) Scheme() Scheme { return SchemeDilithium3 }

func (s *Dilithium3Signer) PublicKey() []byte { return s.pub.Bytes() }

func (s *Dilithium3Signer) Identity() address.Address {
	return address.Address(sha3.Sum256(s.pub.Bytes()))
}

func (s *Dilithium3Signer) Sign(message []byte) ([]byte, error) {
	if s.priv == nil {
		return nil, fmt.Errorf("missing private key")
	}
	digest := sha3.Sum256(message)
	sig := make([]byte, mode3.SignatureSize)
	mode3.SignTo(s.priv, digest[:], sig)
	return sig, nil
}

// NewSigner builds a signer of the given scheme from a 32-byte seed.
func NewSigner(scheme Scheme, seed []byte) (Signer, error) {
	switch scheme {
	case SchemeEd25519, "":
		return NewEd25519Signer(seed)
	case SchemeDilithium3:
		return NewDilithium3Signer(seed)
	default:
		return nil, fmt.Errorf("unsupported signature scheme %q", scheme)
	}
}

// Verify checks sig over message and returns the signer's identity.
func Verify(scheme Scheme, pub, message, sig []byte) (address.Address, error) {
	id, err := IdentityFor(scheme, pub)
	if err != nil {
		return address.Zero, err
	}
	switch scheme {
	case SchemeEd25519:
		digest := sha256.Sum256(message)
		if !ed25519.Verify(ed25519.PublicKey(pub), digest[:], sig) {
			return address.Zero, ErrBadSignature
		}
	case SchemeDilithium3:
		var pk mode3.PublicKey
		if err := pk.UnmarshalBinary(pub); err != nil {
			return address.Zero, fmt.Errorf("dilithium3 public key: %w", err)
		}
		digest := sha3.Sum256(message)
		if len(sig) != mode3.SignatureSize || !mode3.Verify(&pk, digest[:], sig) {
			return address.Zero, ErrBadSignature
		}
	}
	return id, nil
}
