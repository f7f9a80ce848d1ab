package testkit

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"xdao.co/tokenreg/address"
	"xdao.co/tokenreg/storage"
)

// NewStore constructs a fresh, empty store for a test.
// The returned store MUST be isolated from other tests.
type NewStore func(t *testing.T) storage.Store

var (
	ownerA = address.Address{0xA1}
	ownerB = address.Address{0xB2}
)

// RunStoreConformance checks the storage.Store contract.
func RunStoreConformance(t *testing.T, newStore NewStore) {
	t.Helper()
	ctx := context.Background()

	t.Run("CreateGetRoundTrip", func(t *testing.T) {
		s := newStore(t)
		addr := address.Address{1}
		want := storage.Account{Owner: ownerA, Data: []byte("hello, account")}

		if err := s.Update(ctx, func(tx storage.Tx) error {
			return tx.Create(ctx, addr, want)
		}); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		got, err := s.Get(ctx, addr)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got.Owner != want.Owner || !bytes.Equal(got.Data, want.Data) {
			t.Fatalf("Get mismatch: got %+v want %+v", got, want)
		}
	})

	t.Run("CreateIsExclusive", func(t *testing.T) {
		s := newStore(t)
		addr := address.Address{2}
		first := storage.Account{Owner: ownerA, Data: []byte("first")}

		if err := s.Update(ctx, func(tx storage.Tx) error { return tx.Create(ctx, addr, first) }); err != nil {
			t.Fatalf("Create(1) failed: %v", err)
		}
		err := s.Update(ctx, func(tx storage.Tx) error {
			return tx.Create(ctx, addr, storage.Account{Owner: ownerA, Data: []byte("second")})
		})
		if !errors.Is(err, storage.ErrAlreadyExists) {
			t.Fatalf("Create(2): got %v want ErrAlreadyExists", err)
		}
		got, err := s.Get(ctx, addr)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(got.Data) != "first" {
			t.Fatalf("existing account overwritten: %q", got.Data)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		s := newStore(t)
		if _, err := s.Get(ctx, address.Address{3}); !storage.IsNotFound(err) {
			t.Fatalf("Get missing: got err=%v want ErrNotFound", err)
		}
		err := s.Update(ctx, func(tx storage.Tx) error {
			return tx.Put(ctx, address.Address{3}, storage.Account{Owner: ownerA})
		})
		if !storage.IsNotFound(err) {
			t.Fatalf("Put missing: got err=%v want ErrNotFound", err)
		}
	})

	t.Run("PutOverwritesAndChecksOwner", func(t *testing.T) {
		s := newStore(t)
		addr := address.Address{4}
		if err := s.Update(ctx, func(tx storage.Tx) error {
			return tx.Create(ctx, addr, storage.Account{Owner: ownerA, Data: []byte("v1")})
		}); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		if err := s.Update(ctx, func(tx storage.Tx) error {
			return tx.Put(ctx, addr, storage.Account{Owner: ownerA, Data: []byte("v2")})
		}); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		err := s.Update(ctx, func(tx storage.Tx) error {
			return tx.Put(ctx, addr, storage.Account{Owner: ownerB, Data: []byte("v3")})
		})
		if !errors.Is(err, storage.ErrOwnerMismatch) {
			t.Fatalf("Put with other owner: got %v want ErrOwnerMismatch", err)
		}
		got, err := s.Get(ctx, addr)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(got.Data) != "v2" {
			t.Fatalf("unexpected data %q", got.Data)
		}
	})

	t.Run("FailedUpdateAppliesNothing", func(t *testing.T) {
		s := newStore(t)
		addr := address.Address{5}
		boom := errors.New("boom")
		err := s.Update(ctx, func(tx storage.Tx) error {
			if err := tx.Create(ctx, addr, storage.Account{Owner: ownerA, Data: []byte("x")}); err != nil {
				return err
			}
			if _, err := tx.Get(ctx, addr); err != nil {
				t.Fatalf("transaction must observe its own write: %v", err)
			}
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("Update: got %v want boom", err)
		}
		if _, err := s.Get(ctx, addr); !storage.IsNotFound(err) {
			t.Fatalf("aborted create leaked: err=%v", err)
		}
	})

	t.Run("RejectInvalidWrites", func(t *testing.T) {
		s := newStore(t)
		err := s.Update(ctx, func(tx storage.Tx) error {
			return tx.Create(ctx, address.Zero, storage.Account{Owner: ownerA})
		})
		if !errors.Is(err, storage.ErrInvalidAddress) {
			t.Fatalf("zero address: got %v want ErrInvalidAddress", err)
		}
		err = s.Update(ctx, func(tx storage.Tx) error {
			return tx.Create(ctx, address.Address{6}, storage.Account{Owner: ownerA, Data: make([]byte, storage.MaxDataSize+1)})
		})
		if !errors.Is(err, storage.ErrTooLarge) {
			t.Fatalf("oversized: got %v want ErrTooLarge", err)
		}
	})

	t.Run("AddressesSorted", func(t *testing.T) {
		s := newStore(t)
		addrs := []address.Address{{9}, {7}, {8}}
		if err := s.Update(ctx, func(tx storage.Tx) error {
			for _, a := range addrs {
				if err := tx.Create(ctx, a, storage.Account{Owner: ownerA, Data: a[:1]}); err != nil {
					return err
				}
			}
			return nil
		}); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		got, err := s.Addresses(ctx)
		if err != nil {
			t.Fatalf("Addresses failed: %v", err)
		}
		want := []address.Address{{7}, {8}, {9}}
		if len(got) != len(want) {
			t.Fatalf("Addresses: got %d want %d", len(got), len(want))
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("Addresses[%d]: got %s want %s", i, got[i], want[i])
			}
		}
	})
}
