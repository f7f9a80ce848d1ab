// Package mint is a minimal token program: mint accounts carrying an optional
// mint authority, and the read-only oracle the registry consults for it.
package mint

import (
	"context"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"xdao.co/tokenreg/address"
	"xdao.co/tokenreg/storage"
)

// DefaultProgramID is the token program that owns mint accounts.
var DefaultProgramID = address.MustParse("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")

var (
	ErrNotMint      = errors.New("mint: account is not a mint")
	ErrNoAuthority  = errors.New("mint: mint has no mint authority")
	ErrUnauthorized = errors.New("mint: requester is not the mint authority")
)

// Mint is the token program's account for one token identifier.
type Mint struct {
	// MintAuthority is nil once minting has been disabled.
	MintAuthority   *address.Address
	Supply          uint64
	Decimals        uint8
	FreezeAuthority *address.Address
}

type mintBody struct {
	_               struct{} `cbor:",toarray"`
	MintAuthority   []byte
	Supply          uint64
	Decimals        uint8
	FreezeAuthority []byte
}

var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
}

func optional(a *address.Address) []byte {
	if a == nil {
		return nil
	}
	return a.Bytes()
}

func optionalAddress(b []byte) (*address.Address, error) {
	if len(b) == 0 {
		return nil, nil
	}
	a, err := address.FromBytes(b)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// Encode returns m as an account owned by program.
func Encode(m Mint, program address.Address) (storage.Account, error) {
	data, err := encMode.Marshal(mintBody{
		MintAuthority:   optional(m.MintAuthority),
		Supply:          m.Supply,
		Decimals:        m.Decimals,
		FreezeAuthority: optional(m.FreezeAuthority),
	})
	if err != nil {
		return storage.Account{}, err
	}
	return storage.Account{Owner: program, Data: data}, nil
}

// Decode parses a mint account. Accounts not owned by program are not mints.
func Decode(acct storage.Account, program address.Address) (Mint, error) {
	if acct.Owner != program {
		return Mint{}, fmt.Errorf("%w: owned by %s", ErrNotMint, acct.Owner)
	}
	var body mintBody
	if err := cbor.Unmarshal(acct.Data, &body); err != nil {
		return Mint{}, fmt.Errorf("%w: %v", ErrNotMint, err)
	}
	auth, err := optionalAddress(body.MintAuthority)
	if err != nil {
		return Mint{}, fmt.Errorf("%w: mint authority: %v", ErrNotMint, err)
	}
	freeze, err := optionalAddress(body.FreezeAuthority)
	if err != nil {
		return Mint{}, fmt.Errorf("%w: freeze authority: %v", ErrNotMint, err)
	}
	return Mint{MintAuthority: auth, Supply: body.Supply, Decimals: body.Decimals, FreezeAuthority: freeze}, nil
}

// Program operates on mint accounts owned by ID.
type Program struct {
	ID address.Address
}

// NewProgram returns a Program for id, or DefaultProgramID when id is zero.
func NewProgram(id address.Address) Program {
	if id.IsZero() {
		id = DefaultProgramID
	}
	return Program{ID: id}
}

// CreateMint creates the mint account at token's own address.
func (p Program) CreateMint(ctx context.Context, store storage.Store, token address.Address, m Mint) error {
	acct, err := Encode(m, p.ID)
	if err != nil {
		return err
	}
	return store.Update(ctx, func(tx storage.Tx) error {
		return tx.Create(ctx, token, acct)
	})
}

// SetMintAuthority replaces the mint authority. Only the current authority may
// do so; a nil newAuthority disables minting permanently.
func (p Program) SetMintAuthority(ctx context.Context, store storage.Store, token, requester address.Address, newAuthority *address.Address) error {
	return store.Update(ctx, func(tx storage.Tx) error {
		m, err := p.load(ctx, tx, token)
		if err != nil {
			return err
		}
		if m.MintAuthority == nil {
			return ErrNoAuthority
		}
		if *m.MintAuthority != requester {
			return ErrUnauthorized
		}
		m.MintAuthority = newAuthority
		acct, err := Encode(m, p.ID)
		if err != nil {
			return err
		}
		return tx.Put(ctx, token, acct)
	})
}

// Get reads the mint account for token.
func (p Program) Get(ctx context.Context, r storage.Reader, token address.Address) (Mint, error) {
	return p.load(ctx, r, token)
}

func (p Program) load(ctx context.Context, r storage.Reader, token address.Address) (Mint, error) {
	acct, err := r.Get(ctx, token)
	if err != nil {
		if storage.IsNotFound(err) {
			return Mint{}, fmt.Errorf("%w: %s", ErrNotMint, token)
		}
		return Mint{}, err
	}
	return Decode(acct, p.ID)
}

// MintAuthority reports the current mint authority of token as seen by r.
// It fails with ErrNotMint or ErrNoAuthority when there is none.
func (p Program) MintAuthority(ctx context.Context, r storage.Reader, token address.Address) (address.Address, error) {
	m, err := p.load(ctx, r, token)
	if err != nil {
		return address.Zero, err
	}
	if m.MintAuthority == nil || m.MintAuthority.IsZero() {
		return address.Zero, ErrNoAuthority
	}
	return *m.MintAuthority, nil
}
