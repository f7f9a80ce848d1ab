package record

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"xdao.co/tokenreg/address"
)

var testProgram = address.MustParse("4DHXD1JVCTYQnWVXpqG1HY9LbAocbsfQUbDqmK4qBB4o")

func TestDiscriminatorMatchesAccountNamespace(t *testing.T) {
	sum := sha256.Sum256([]byte("account:Token"))
	if !bytes.Equal(TokenDiscriminator[:], sum[:8]) {
		t.Fatalf("token discriminator mismatch")
	}
	if ManagerDiscriminator == TokenDiscriminator {
		t.Fatalf("discriminators must differ")
	}
}

func TestManagerRoundTrip(t *testing.T) {
	want := Manager{Authority: address.Address{7, 7, 7}}
	acct, err := want.Account(testProgram)
	if err != nil {
		t.Fatalf("Account: %v", err)
	}
	if acct.Owner != testProgram {
		t.Fatalf("owner = %s", acct.Owner)
	}
	got, err := DecodeManager(acct, testProgram)
	if err != nil {
		t.Fatalf("DecodeManager: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("manager mismatch (-want +got):\n%s", diff)
	}
}

func TestTokenRoundTrip(t *testing.T) {
	want := Token{Address: address.Address{1}, Name: "Coin", Symbol: "CN", ImageURI: "ipfs://uri1"}
	acct, err := want.Account(testProgram)
	if err != nil {
		t.Fatalf("Account: %v", err)
	}
	got, err := DecodeToken(acct, testProgram)
	if err != nil {
		t.Fatalf("DecodeToken: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("token mismatch (-want +got):\n%s", diff)
	}
}

func TestTokenEncodingIsDeterministic(t *testing.T) {
	tok := Token{Address: address.Address{9}, Name: "n", Symbol: "s", ImageURI: "u"}
	a, err := tok.Account(testProgram)
	if err != nil {
		t.Fatal(err)
	}
	b, err := tok.Account(testProgram)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a.Data, b.Data) {
		t.Fatalf("encoding differs between calls")
	}
}

func TestTokenSpaceIsEnforced(t *testing.T) {
	tok := Token{Address: address.Address{1}, Name: strings.Repeat("x", TokenSpace)}
	if _, err := tok.Account(testProgram); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("got %v want ErrTooLarge", err)
	}

	// Large but fitting metadata is accepted.
	tok.Name = strings.Repeat("x", 900)
	if _, err := tok.Account(testProgram); err != nil {
		t.Fatalf("900-byte name should fit: %v", err)
	}
}

func TestDecodeRejectsForeignAccounts(t *testing.T) {
	acct, err := Manager{Authority: address.Address{1}}.Account(testProgram)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := DecodeManager(acct, address.Address{2}); !errors.Is(err, ErrOwnerMismatch) {
		t.Fatalf("owner: got %v", err)
	}
	if _, err := DecodeToken(acct, testProgram); !errors.Is(err, ErrDiscriminatorMismatch) {
		t.Fatalf("discriminator: got %v", err)
	}
	acct.Data = acct.Data[:4]
	if _, err := DecodeManager(acct, testProgram); !errors.Is(err, ErrTruncated) {
		t.Fatalf("truncated: got %v", err)
	}
}

func TestRecordAddressesAreDistinct(t *testing.T) {
	mgr, err := ManagerAddress(testProgram)
	if err != nil {
		t.Fatal(err)
	}
	t1, err := TokenAddress(testProgram, address.Address{1})
	if err != nil {
		t.Fatal(err)
	}
	t2, err := TokenAddress(testProgram, address.Address{2})
	if err != nil {
		t.Fatal(err)
	}
	if mgr == t1 || t1 == t2 {
		t.Fatalf("expected distinct record addresses")
	}
	again, err := TokenAddress(testProgram, address.Address{1})
	if err != nil || again != t1 {
		t.Fatalf("derivation not deterministic: %v", err)
	}
}

func TestTokenRejectsInvalidUTF8(t *testing.T) {
	for _, tok := range []Token{
		{Address: address.Address{1}, Name: "Coin\xff"},
		{Address: address.Address{1}, Symbol: "\xc3"},
		{Address: address.Address{1}, ImageURI: "ipfs://\x80"},
	} {
		if _, err := tok.Account(testProgram); !errors.Is(err, ErrInvalidText) {
			t.Fatalf("%q/%q/%q: got %v, want ErrInvalidText", tok.Name, tok.Symbol, tok.ImageURI, err)
		}
	}
}
