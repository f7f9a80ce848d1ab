package keys

import (
	"crypto/ed25519"
	"testing"
)

func TestDeriveRoleSeedDeterministic(t *testing.T) {
	root := make([]byte, ed25519.SeedSize)
	for i := range root {
		root[i] = byte(i)
	}

	a, err := DeriveRoleSeed(root, "manager")
	if err != nil {
		t.Fatalf("DeriveRoleSeed: %v", err)
	}
	b, err := DeriveRoleSeed(root, "manager")
	if err != nil {
		t.Fatalf("DeriveRoleSeed: %v", err)
	}
	if string(a) != string(b) {
		t.Fatalf("expected deterministic derivation")
	}

	c, err := DeriveRoleSeed(root, "mint")
	if err != nil {
		t.Fatalf("DeriveRoleSeed: %v", err)
	}
	if string(a) == string(c) {
		t.Fatalf("expected different roles to derive different seeds")
	}
}

func TestDeriveRoleSeedRejectsBadInput(t *testing.T) {
	if _, err := DeriveRoleSeed([]byte{1, 2, 3}, "manager"); err == nil {
		t.Fatalf("expected short root seed to fail")
	}
	if _, err := DeriveRoleSeed(make([]byte, ed25519.SeedSize), "bad role"); err == nil {
		t.Fatalf("expected invalid role to fail")
	}
}

func TestIdentityFromSeedIsPublicKey(t *testing.T) {
	seed := make([]byte, ed25519.SeedSize)
	for i := range seed {
		seed[i] = 0x42
	}
	id, err := IdentityFromSeed(seed)
	if err != nil {
		t.Fatalf("IdentityFromSeed: %v", err)
	}
	pub := ed25519.NewKeyFromSeed(seed).Public().(ed25519.PublicKey)
	if string(id[:]) != string(pub) {
		t.Fatalf("identity must equal the ed25519 public key")
	}
}
