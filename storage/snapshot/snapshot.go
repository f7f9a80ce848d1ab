// Package snapshot exports accounts into a deterministic TAR archive and
// imports them into another store.
package snapshot

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"xdao.co/tokenreg/address"
	"xdao.co/tokenreg/storage"
)

// FormatVersion is the current snapshot index schema version.
const FormatVersion = 1

var epoch0 = time.Unix(0, 0).UTC()

// ErrConflict reports an import entry that differs from an account already present.
var ErrConflict = errors.New("snapshot: account differs from existing account")

// ExportOptions controls snapshot export behavior.
type ExportOptions struct {
	// Addresses limits the export. When empty every account in the store is exported.
	Addresses []address.Address
	// IncludeIndex controls whether index.json is included.
	IncludeIndex bool
}

// Export writes a TAR archive holding one entry per account.
//
// The archive bytes are deterministic: entry order follows address order and
// TAR headers are normalized.
func Export(ctx context.Context, w io.Writer, store storage.Store, opts ExportOptions) error {
	if store == nil {
		return fmt.Errorf("snapshot: nil store")
	}

	addrs := opts.Addresses
	if len(addrs) == 0 {
		var err error
		addrs, err = store.Addresses(ctx)
		if err != nil {
			return err
		}
	}
	uniq := make(map[address.Address]struct{}, len(addrs))
	sorted := make([]address.Address, 0, len(addrs))
	for _, a := range addrs {
		if _, ok := uniq[a]; ok {
			continue
		}
		uniq[a] = struct{}{}
		sorted = append(sorted, a)
	}
	sort.Slice(sorted, func(i, j int) bool { return bytes.Compare(sorted[i][:], sorted[j][:]) < 0 })

	tw := tar.NewWriter(w)
	entries := make([]indexEntry, 0, len(sorted))
	for _, a := range sorted {
		acct, err := store.Get(ctx, a)
		if err != nil {
			_ = tw.Close()
			return fmt.Errorf("snapshot: %s: %w", a, err)
		}
		if err := writeFile(tw, "accounts/"+a.String(), encodeEntry(acct)); err != nil {
			_ = tw.Close()
			return err
		}
		entries = append(entries, indexEntry{Address: a.String(), Owner: acct.Owner.String(), Size: len(acct.Data)})
	}

	if opts.IncludeIndex {
		b, err := json.Marshal(indexJSON{Version: FormatVersion, Accounts: entries})
		if err != nil {
			_ = tw.Close()
			return err
		}
		if err := writeFile(tw, "index.json", append(b, '\n')); err != nil {
			_ = tw.Close()
			return err
		}
	}
	return tw.Close()
}

// ImportOptions controls snapshot import behavior.
type ImportOptions struct {
	// IgnoreUnknown controls whether unknown TAR entries are ignored.
	//
	// Default (false) is fail-closed: unknown entries cause Import to return an error.
	IgnoreUnknown bool
}

// Import reads a snapshot and creates its accounts in one store update.
//
// Accounts already present with identical owner and data are skipped; any
// other collision fails with ErrConflict and nothing is imported.
func Import(ctx context.Context, r io.Reader, store storage.Store, opts ImportOptions) (int, error) {
	if store == nil {
		return 0, fmt.Errorf("snapshot: nil store")
	}
	entries, err := readEntries(r, opts)
	if err != nil {
		return 0, err
	}

	created := 0
	err = store.Update(ctx, func(tx storage.Tx) error {
		created = 0
		for _, e := range entries {
			existing, err := tx.Get(ctx, e.addr)
			switch {
			case err == nil:
				if existing.Owner != e.acct.Owner || !bytes.Equal(existing.Data, e.acct.Data) {
					return fmt.Errorf("%w: %s", ErrConflict, e.addr)
				}
				continue
			case !storage.IsNotFound(err):
				return err
			}
			if err := tx.Create(ctx, e.addr, e.acct); err != nil {
				return fmt.Errorf("snapshot: %s: %w", e.addr, err)
			}
			created++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return created, nil
}

type entry struct {
	addr address.Address
	acct storage.Account
}

func readEntries(r io.Reader, opts ImportOptions) ([]entry, error) {
	tr := tar.NewReader(r)
	seen := map[address.Address]struct{}{}
	var out []entry

	for {
		h, err := tr.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		name := cleanTarPath(h.Name)
		if name == "" {
			return nil, fmt.Errorf("snapshot: invalid entry path: %q", h.Name)
		}

		if h.Typeflag != tar.TypeReg {
			if opts.IgnoreUnknown {
				continue
			}
			return nil, fmt.Errorf("snapshot: unexpected tar entry type: %v (%s)", h.Typeflag, name)
		}

		// Non-authoritative metadata.
		if name == "index.json" {
			_, _ = io.Copy(io.Discard, tr)
			continue
		}

		if !strings.HasPrefix(name, "accounts/") {
			if opts.IgnoreUnknown {
				_, _ = io.Copy(io.Discard, tr)
				continue
			}
			return nil, fmt.Errorf("snapshot: unknown entry: %s", name)
		}

		addr, perr := address.Parse(strings.TrimPrefix(name, "accounts/"))
		if perr != nil {
			return nil, perr
		}
		if _, ok := seen[addr]; ok {
			return nil, fmt.Errorf("snapshot: duplicate account entry: %s", addr)
		}
		seen[addr] = struct{}{}

		payload, rerr := io.ReadAll(io.LimitReader(tr, address.Size+storage.MaxDataSize+1))
		if rerr != nil {
			return nil, rerr
		}
		acct, derr := decodeEntry(payload)
		if derr != nil {
			return nil, fmt.Errorf("snapshot: %s: %w", addr, derr)
		}
		out = append(out, entry{addr: addr, acct: acct})
	}
}

type indexJSON struct {
	Version  int          `json:"version"`
	Accounts []indexEntry `json:"accounts"`
}

type indexEntry struct {
	Address string `json:"address"`
	Owner   string `json:"owner"`
	Size    int    `json:"size"`
}

func encodeEntry(acct storage.Account) []byte {
	out := make([]byte, 0, address.Size+len(acct.Data))
	out = append(out, acct.Owner[:]...)
	return append(out, acct.Data...)
}

func decodeEntry(b []byte) (storage.Account, error) {
	if len(b) < address.Size {
		return storage.Account{}, fmt.Errorf("truncated entry (%d bytes)", len(b))
	}
	if len(b)-address.Size > storage.MaxDataSize {
		return storage.Account{}, storage.ErrTooLarge
	}
	owner, _ := address.FromBytes(b[:address.Size])
	return storage.Account{Owner: owner, Data: append([]byte(nil), b[address.Size:]...)}, nil
}

func writeFile(tw *tar.Writer, name string, content []byte) error {
	hdr := &tar.Header{
		Name:     name,
		Mode:     0o644,
		Size:     int64(len(content)),
		ModTime:  epoch0,
		Typeflag: tar.TypeReg,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err := io.Copy(tw, bytes.NewReader(content))
	return err
}

func cleanTarPath(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ReplaceAll(name, "\\", "/")
	name = strings.TrimPrefix(name, "./")
	name = strings.TrimPrefix(name, "/")
	if name == "" {
		return ""
	}

	parts := strings.Split(name, "/")
	for _, part := range parts {
		if part == "" || part == "." || part == ".." {
			return ""
		}
	}
	return strings.Join(parts, "/")
}
