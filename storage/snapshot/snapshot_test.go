package snapshot_test

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"testing"

	"xdao.co/tokenreg/address"
	"xdao.co/tokenreg/storage"
	"xdao.co/tokenreg/storage/memory"
	"xdao.co/tokenreg/storage/snapshot"
)

func seed(t *testing.T, s storage.Store, accts map[address.Address]string) {
	t.Helper()
	ctx := context.Background()
	if err := s.Update(ctx, func(tx storage.Tx) error {
		for a, data := range accts {
			if err := tx.Create(ctx, a, storage.Account{Owner: address.Address{0xEE}, Data: []byte(data)}); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		t.Fatal(err)
	}
}

func TestSnapshot_ExportIsDeterministic(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	seed(t, s, map[address.Address]string{{1}: "hello", {2}: "world"})

	var outA bytes.Buffer
	if err := snapshot.Export(ctx, &outA, s, snapshot.ExportOptions{Addresses: []address.Address{{2}, {1}}, IncludeIndex: true}); err != nil {
		t.Fatal(err)
	}
	var outB bytes.Buffer
	if err := snapshot.Export(ctx, &outB, s, snapshot.ExportOptions{IncludeIndex: true}); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(outA.Bytes(), outB.Bytes()) {
		t.Fatalf("expected deterministic snapshot bytes")
	}
}

func TestSnapshot_ImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	src := memory.New()
	seed(t, src, map[address.Address]string{{1}: "hello", {2}: "world"})

	var buf bytes.Buffer
	if err := snapshot.Export(ctx, &buf, src, snapshot.ExportOptions{IncludeIndex: true}); err != nil {
		t.Fatal(err)
	}

	dst := memory.New()
	n, err := snapshot.Import(ctx, bytes.NewReader(buf.Bytes()), dst, snapshot.ImportOptions{})
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 created accounts, got %d", n)
	}
	got, err := dst.Get(ctx, address.Address{2})
	if err != nil {
		t.Fatal(err)
	}
	if string(got.Data) != "world" || got.Owner != (address.Address{0xEE}) {
		t.Fatalf("unexpected account %+v", got)
	}

	// Re-importing identical content is a no-op.
	n, err = snapshot.Import(ctx, bytes.NewReader(buf.Bytes()), dst, snapshot.ImportOptions{})
	if err != nil || n != 0 {
		t.Fatalf("re-import: n=%d err=%v", n, err)
	}
}

func TestSnapshot_ImportConflictAppliesNothing(t *testing.T) {
	ctx := context.Background()
	src := memory.New()
	seed(t, src, map[address.Address]string{{1}: "new", {2}: "other"})
	var buf bytes.Buffer
	if err := snapshot.Export(ctx, &buf, src, snapshot.ExportOptions{}); err != nil {
		t.Fatal(err)
	}

	dst := memory.New()
	seed(t, dst, map[address.Address]string{{2}: "different"})
	_, err := snapshot.Import(ctx, bytes.NewReader(buf.Bytes()), dst, snapshot.ImportOptions{})
	if !errors.Is(err, snapshot.ErrConflict) {
		t.Fatalf("got %v want ErrConflict", err)
	}
	if _, err := dst.Get(ctx, address.Address{1}); !storage.IsNotFound(err) {
		t.Fatalf("conflicting import leaked account 1: %v", err)
	}
}

func TestSnapshot_ImportRejectsUnknownEntries(t *testing.T) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	content := []byte("x")
	if err := tw.WriteHeader(&tar.Header{Name: "junk/file", Mode: 0o644, Size: int64(len(content)), Typeflag: tar.TypeReg}); err != nil {
		t.Fatal(err)
	}
	if _, err := tw.Write(content); err != nil {
		t.Fatal(err)
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}

	s := memory.New()
	if _, err := snapshot.Import(context.Background(), bytes.NewReader(buf.Bytes()), s, snapshot.ImportOptions{}); err == nil {
		t.Fatalf("expected unknown entry to fail closed")
	}
	if _, err := snapshot.Import(context.Background(), bytes.NewReader(buf.Bytes()), s, snapshot.ImportOptions{IgnoreUnknown: true}); err != nil {
		t.Fatalf("IgnoreUnknown import: %v", err)
	}
}
