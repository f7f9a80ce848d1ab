// Package memory provides an in-process account store: an arena of accounts
// keyed by derived address.
package memory

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"xdao.co/tokenreg/address"
	"xdao.co/tokenreg/storage"
)

// Store keeps accounts in a map. Updates are serialized by a single lock and
// applied only when the update function succeeds.
type Store struct {
	mu       sync.RWMutex
	accounts map[address.Address]storage.Account
	closed   bool
}

var _ storage.Store = (*Store)(nil)

func New() *Store {
	return &Store{accounts: map[address.Address]storage.Account{}}
}

func (s *Store) Get(ctx context.Context, addr address.Address) (storage.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getLocked(ctx, addr)
}

func (s *Store) getLocked(ctx context.Context, addr address.Address) (storage.Account, error) {
	if err := ctx.Err(); err != nil {
		return storage.Account{}, err
	}
	if s.closed {
		return storage.Account{}, storage.ErrClosed
	}
	acct, ok := s.accounts[addr]
	if !ok {
		return storage.Account{}, storage.ErrNotFound
	}
	return acct.Clone(), nil
}

type lockedReader struct{ s *Store }

func (r lockedReader) Get(ctx context.Context, addr address.Address) (storage.Account, error) {
	return r.s.getLocked(ctx, addr)
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

	tx := storage.NewOverlay(lockedReader{s})
	if err := fn(tx); err != nil {
		return err
	}
	for _, w := range tx.Writes() {
		s.accounts[w.Addr] = w.Account
	}
	return nil
}

func (s *Store) Addresses(ctx context.Context) ([]address.Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]address.Address, 0, len(s.accounts))
	for a := range s.accounts {
		out = append(out, a)
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
