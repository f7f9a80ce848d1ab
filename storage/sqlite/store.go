// Package sqlite provides a SQLite-backed account store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"xdao.co/tokenreg/address"
	"xdao.co/tokenreg/storage"
	"xdao.co/tokenreg/storage/sqlite/migrations"
)

// Store persists accounts in SQLite. Updates run in IMMEDIATE transactions,
// so writers are serialized by the database even across processes.
type Store struct {
	sqlDB *sql.DB
}

var _ storage.Store = (*Store)(nil)

// Open opens a SQLite account store and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := "file:" + cleanPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_txlock=immediate"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(context.Background(), sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getAccount(ctx context.Context, q queryer, addr address.Address) (storage.Account, error) {
	if err := ctx.Err(); err != nil {
		return storage.Account{}, err
	}
	if addr.IsZero() {
		return storage.Account{}, storage.ErrInvalidAddress
	}
	var owner, data []byte
	err := q.QueryRowContext(ctx,
		`SELECT owner, data FROM accounts WHERE address = ?`,
		addr[:],
	).Scan(&owner, &data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Account{}, storage.ErrNotFound
		}
		return storage.Account{}, fmt.Errorf("get account: %w", err)
	}
	ownerAddr, err := address.FromBytes(owner)
	if err != nil {
		return storage.Account{}, fmt.Errorf("get account: %w", err)
	}
	return storage.Account{Owner: ownerAddr, Data: data}, nil
}

// Get returns one account by address.
func (s *Store) Get(ctx context.Context, addr address.Address) (storage.Account, error) {
	if s == nil || s.sqlDB == nil {
		return storage.Account{}, fmt.Errorf("storage is not configured")
	}
	return getAccount(ctx, s.sqlDB, addr)
}

// Update runs fn in one SQL transaction.
func (s *Store) Update(ctx context.Context, fn func(tx storage.Tx) error) error {
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	sqlTx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(&tx{sqlTx: sqlTx}); err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Addresses lists every stored address in ascending order.
func (s *Store) Addresses(ctx context.Context) ([]address.Address, error) {
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT address FROM accounts ORDER BY address`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var out []address.Address
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan account address: %w", err)
		}
		addr, err := address.FromBytes(raw)
		if err != nil {
			return nil, fmt.Errorf("scan account address: %w", err)
		}
		out = append(out, addr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return out, nil
}

type tx struct {
	sqlTx *sql.Tx
}

func (t *tx) Get(ctx context.Context, addr address.Address) (storage.Account, error) {
	return getAccount(ctx, t.sqlTx, addr)
}

func (t *tx) Create(ctx context.Context, addr address.Address, acct storage.Account) error {
	if err := storage.CheckAccount(addr, acct); err != nil {
		return err
	}
	now := time.Now().UTC().UnixMilli()
	_, err := t.sqlTx.ExecContext(ctx,
		`INSERT INTO accounts (address, owner, data, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		addr[:], acct.Owner[:], nonNil(acct.Data), now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

func (t *tx) Put(ctx context.Context, addr address.Address, acct storage.Account) error {
	if err := storage.CheckAccount(addr, acct); err != nil {
		return err
	}
	existing, err := t.Get(ctx, addr)
	if err != nil {
		return err
	}
	if existing.Owner != acct.Owner {
		return storage.ErrOwnerMismatch
	}
	if _, err := t.sqlTx.ExecContext(ctx,
		`UPDATE accounts SET data = ?, updated_at = ? WHERE address = ?`,
		nonNil(acct.Data), time.Now().UTC().UnixMilli(), addr[:],
	); err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	return nil
}

func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	message := strings.ToLower(err.Error())
	return strings.Contains(message, "unique constraint failed") &&
		strings.Contains(message, "accounts.address")
}
