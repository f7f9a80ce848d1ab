package localfs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"xdao.co/tokenreg/address"
	"xdao.co/tokenreg/storage"
	"xdao.co/tokenreg/storage/testkit"
)

func TestLocalFS_Conformance(t *testing.T) {
	testkit.RunStoreConformance(t, func(t *testing.T) storage.Store {
		t.Helper()
		s, err := New(t.TempDir())
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		return s
	})
}

func TestLocalFS_CreateNeverReplacesForeignFile(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	ctx := context.Background()
	addr := address.Address{7}

	// Another writer placed the account after this process started.
	path := s.pathFor(addr)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	foreign := encodeAccount(storage.Account{Owner: address.Address{1}, Data: []byte("foreign")})
	if err := os.WriteFile(path, foreign, 0o644); err != nil {
		t.Fatal(err)
	}

	err = s.Update(ctx, func(tx storage.Tx) error {
		return tx.Create(ctx, addr, storage.Account{Owner: address.Address{1}, Data: []byte("mine")})
	})
	if err != storage.ErrAlreadyExists {
		t.Fatalf("Create over existing file: got %v want ErrAlreadyExists", err)
	}
	got, err := s.Get(ctx, addr)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got.Data) != "foreign" {
		t.Fatalf("existing file replaced: %q", got.Data)
	}
}

func TestLocalFS_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	addr := address.Address{8}

	s1, err := New(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := s1.Update(ctx, func(tx storage.Tx) error {
		return tx.Create(ctx, addr, storage.Account{Owner: address.Address{2}, Data: []byte("kept")})
	}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	_ = s1.Close()

	s2, err := New(dir)
	if err != nil {
		t.Fatal(err)
	}
	got, err := s2.Get(ctx, addr)
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if got.Owner != (address.Address{2}) || string(got.Data) != "kept" {
		t.Fatalf("unexpected account %+v", got)
	}
	addrs, err := s2.Addresses(ctx)
	if err != nil {
		t.Fatalf("Addresses: %v", err)
	}
	if len(addrs) != 1 || addrs[0] != addr {
		t.Fatalf("unexpected addresses %v", addrs)
	}
}

func TestLocalFS_FailedUpdateRestoresEarlierWrites(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	ctx := context.Background()
	owner := address.Address{1}
	kept, fresh, contested := address.Address{10}, address.Address{11}, address.Address{12}

	if err := s.Update(ctx, func(tx storage.Tx) error {
		return tx.Create(ctx, kept, storage.Account{Owner: owner, Data: []byte("old")})
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	foreign := encodeAccount(storage.Account{Owner: address.Address{2}, Data: []byte("foreign")})
	err = s.Update(ctx, func(tx storage.Tx) error {
		if err := tx.Put(ctx, kept, storage.Account{Owner: owner, Data: []byte("new")}); err != nil {
			return err
		}
		if err := tx.Create(ctx, fresh, storage.Account{Owner: owner, Data: []byte("fresh")}); err != nil {
			return err
		}
		if err := tx.Create(ctx, contested, storage.Account{Owner: owner, Data: []byte("mine")}); err != nil {
			return err
		}
		// Another writer takes the last address before the writes land.
		path := s.pathFor(contested)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		return os.WriteFile(path, foreign, 0o644)
	})
	if !errors.Is(err, storage.ErrAlreadyExists) {
		t.Fatalf("Update: got %v want ErrAlreadyExists", err)
	}

	got, err := s.Get(ctx, kept)
	if err != nil {
		t.Fatalf("Get kept: %v", err)
	}
	if string(got.Data) != "old" {
		t.Fatalf("overwritten account not restored: %q", got.Data)
	}
	if _, err := s.Get(ctx, fresh); !storage.IsNotFound(err) {
		t.Fatalf("created account not removed: %v", err)
	}
	got, err = s.Get(ctx, contested)
	if err != nil || string(got.Data) != "foreign" {
		t.Fatalf("foreign account disturbed: %q %v", got.Data, err)
	}
}
