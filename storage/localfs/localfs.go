package localfs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/ipfs/go-cid"

	"xdao.co/tokenreg/address"
	"xdao.co/tokenreg/storage"
)

// Store is a local filesystem-backed account store.
//
// Each account is one file named by the CID form of its address. The file
// holds the 32-byte owner followed by the account data. Creation links a
// fully written temp file into place, so an occupied address is never
// overwritten by Create. Updates are serialized within the process; one
// process should own a directory at a time. When a write fails partway
// through an update, files already written by that update are restored.
// A crash during an update can still leave it partially applied.
type Store struct {
	root string

	mu     sync.Mutex
	closed bool
}

var _ storage.Store = (*Store)(nil)

// New constructs a filesystem store rooted at root. The directory will be created if needed.
func New(root string) (*Store, error) {
	if root == "" {
		return nil, errors.New("localfs: root directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &Store{root: root}, nil
}

func (s *Store) Get(ctx context.Context, addr address.Address) (storage.Account, error) {
	if err := ctx.Err(); err != nil {
		return storage.Account{}, err
	}
	if addr.IsZero() {
		return storage.Account{}, storage.ErrInvalidAddress
	}
	b, err := os.ReadFile(s.pathFor(addr))
	if err != nil {
		if os.IsNotExist(err) {
			return storage.Account{}, storage.ErrNotFound
		}
		return storage.Account{}, err
	}
	return decodeAccount(b)
}

func (s *Store) Update(ctx context.Context, fn func(tx storage.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tx := storage.NewOverlay(s)
	if err := fn(tx); err != nil {
		return err
	}
	var applied []prior
	for _, w := range tx.Writes() {
		p, err := s.capture(w.Addr)
		if err == nil {
			err = s.apply(w)
		}
		if err != nil {
			if rerr := s.rollback(applied); rerr != nil {
				return errors.Join(err, rerr)
			}
			return err
		}
		applied = append(applied, p)
	}
	return nil
}

// prior is an account file's content before a transaction touched it.
type prior struct {
	path    string
	data    []byte
	existed bool
}

func (s *Store) capture(addr address.Address) (prior, error) {
	path := s.pathFor(addr)
	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		return prior{path: path, data: b, existed: true}, nil
	case os.IsNotExist(err):
		return prior{path: path}, nil
	default:
		return prior{}, err
	}
}

// rollback restores files written earlier in a failed update, newest first.
func (s *Store) rollback(applied []prior) error {
	var errs []error
	for i := len(applied) - 1; i >= 0; i-- {
		p := applied[i]
		if !p.existed {
			if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
				errs = append(errs, err)
			}
			continue
		}
		tmp, err := s.writeTemp(filepath.Dir(p.path), p.data)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := os.Rename(tmp, p.path); err != nil {
			_ = os.Remove(tmp)
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("localfs: rollback incomplete: %w", errors.Join(errs...))
	}
	return nil
}

func (s *Store) apply(w storage.Write) error {
	path := s.pathFor(w.Addr)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := s.writeTemp(filepath.Dir(path), encodeAccount(w.Account))
	if err != nil {
		return err
	}
	defer os.Remove(tmp)

	if w.Create {
		if err := os.Link(tmp, path); err != nil {
			if os.IsExist(err) {
				return storage.ErrAlreadyExists
			}
			return err
		}
		return nil
	}
	return os.Rename(tmp, path)
}

func (s *Store) writeTemp(dir string, content []byte) (string, error) {
	f, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return "", err
	}
	name := f.Name()
	if _, err := f.Write(content); err != nil {
		_ = f.Close()
		_ = os.Remove(name)
		return "", err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(name)
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(name)
		return "", err
	}
	return name, nil
}

func (s *Store) Addresses(ctx context.Context) ([]address.Address, error) {
	var out []address.Address
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		id, derr := cid.Decode(d.Name())
		if derr != nil {
			// Temp files and foreign files are not accounts.
			return nil
		}
		addr, aerr := address.FromCID(id)
		if aerr != nil {
			return nil
		}
		out = append(out, addr)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i][:], out[j][:]) < 0 })
	return out, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *Store) pathFor(addr address.Address) string {
	str := addr.CID().String()
	if len(str) < 2 {
		return filepath.Join(s.root, str)
	}
	return filepath.Join(s.root, str[len(str)-2:], str)
}

func encodeAccount(acct storage.Account) []byte {
	out := make([]byte, 0, address.Size+len(acct.Data))
	out = append(out, acct.Owner[:]...)
	return append(out, acct.Data...)
}

func decodeAccount(b []byte) (storage.Account, error) {
	if len(b) < address.Size {
		return storage.Account{}, fmt.Errorf("localfs: truncated account file (%d bytes)", len(b))
	}
	owner, _ := address.FromBytes(b[:address.Size])
	return storage.Account{Owner: owner, Data: append([]byte(nil), b[address.Size:]...)}, nil
}
