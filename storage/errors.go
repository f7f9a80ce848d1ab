package storage

import "errors"

var (
	ErrNotFound       = errors.New("storage: not found")
	ErrAlreadyExists  = errors.New("storage: account already exists")
	ErrOwnerMismatch  = errors.New("storage: account owner mismatch")
	ErrTooLarge       = errors.New("storage: account data too large")
	ErrInvalidAddress = errors.New("storage: invalid address")
	ErrClosed         = errors.New("storage: store closed")
)

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

func IsAlreadyExists(err error) bool { return errors.Is(err, ErrAlreadyExists) }
