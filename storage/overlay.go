package storage

import (
	"context"

	"xdao.co/tokenreg/address"
)

// Write is one staged mutation.
type Write struct {
	Addr    address.Address
	Account Account
	Create  bool
}

// Overlay stages a transaction's writes on top of a base reader so backends
// without native transactions can apply them only on success.
type Overlay struct {
	base   Reader
	staged map[address.Address]Account
	writes []Write
}

var _ Tx = (*Overlay)(nil)

func NewOverlay(base Reader) *Overlay {
	return &Overlay{base: base, staged: map[address.Address]Account{}}
}

func (o *Overlay) Get(ctx context.Context, addr address.Address) (Account, error) {
	if err := ctx.Err(); err != nil {
		return Account{}, err
	}
	if acct, ok := o.staged[addr]; ok {
		return acct.Clone(), nil
	}
	return o.base.Get(ctx, addr)
}

func (o *Overlay) Create(ctx context.Context, addr address.Address, acct Account) error {
	if err := CheckAccount(addr, acct); err != nil {
		return err
	}
	_, err := o.Get(ctx, addr)
	switch {
	case err == nil:
		return ErrAlreadyExists
	case !IsNotFound(err):
		return err
	}
	o.stage(addr, acct, true)
	return nil
}

func (o *Overlay) Put(ctx context.Context, addr address.Address, acct Account) error {
	if err := CheckAccount(addr, acct); err != nil {
		return err
	}
	existing, err := o.Get(ctx, addr)
	if err != nil {
		return err
	}
	if existing.Owner != acct.Owner {
		return ErrOwnerMismatch
	}
	o.stage(addr, acct, false)
	return nil
}

func (o *Overlay) stage(addr address.Address, acct Account, create bool) {
	acct = acct.Clone()
	o.staged[addr] = acct
	o.writes = append(o.writes, Write{Addr: addr, Account: acct, Create: create})
}

// Writes returns staged writes in the order they were made.
func (o *Overlay) Writes() []Write { return o.writes }
