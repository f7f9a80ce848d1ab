package address

import (
	"errors"
	"fmt"

	"filippo.io/edwards25519"

	"xdao.co/tokenreg/cidutil"
)

const (
	// MaxSeeds bounds the number of seeds (including the bump) in a derivation.
	MaxSeeds = 16
	// MaxSeedLen bounds each seed's length in bytes.
	MaxSeedLen = 32

	pdaMarker = "ProgramDerivedAddress"
)

var (
	ErrMaxSeedLength = errors.New("address: seed exceeds max length")
	ErrTooManySeeds  = errors.New("address: too many seeds")
	ErrOnCurve       = errors.New("address: derived address is a valid curve point")
	ErrNoViableBump  = errors.New("address: unable to find a viable bump")
)

// Create hashes seeds and program into an address. It fails with ErrOnCurve
// when the digest decodes as an ed25519 point, because such an address could
// have a private key.
func Create(seeds [][]byte, program Address) (Address, error) {
	if len(seeds) > MaxSeeds {
		return Zero, ErrTooManySeeds
	}
	n := len(pdaMarker) + Size
	for _, s := range seeds {
		if len(s) > MaxSeedLen {
			return Zero, fmt.Errorf("%w: %d bytes", ErrMaxSeedLength, len(s))
		}
		n += len(s)
	}

	buf := make([]byte, 0, n)
	for _, s := range seeds {
		buf = append(buf, s...)
	}
	buf = append(buf, program[:]...)
	buf = append(buf, pdaMarker...)

	digest, err := cidutil.SHA256(buf)
	if err != nil {
		return Zero, err
	}
	if IsOnCurve(digest) {
		return Zero, ErrOnCurve
	}
	return Address(digest), nil
}

// Find searches bumps from 255 down and returns the first off-curve address
// together with its bump. The result is canonical for (seeds, program).
func Find(seeds [][]byte, program Address) (Address, uint8, error) {
	if len(seeds) >= MaxSeeds {
		return Zero, 0, ErrTooManySeeds
	}
	withBump := make([][]byte, len(seeds)+1)
	copy(withBump, seeds)
	for bump := 255; bump >= 0; bump-- {
		withBump[len(seeds)] = []byte{byte(bump)}
		addr, err := Create(withBump, program)
		if err == nil {
			return addr, uint8(bump), nil
		}
		if !errors.Is(err, ErrOnCurve) {
			return Zero, 0, err
		}
	}
	return Zero, 0, ErrNoViableBump
}

// Derive computes the canonical address for a namespace tag and zero or more
// bound addresses under program.
func Derive(program Address, namespace string, bindings ...Address) (Address, error) {
	seeds := make([][]byte, 0, len(bindings)+1)
	seeds = append(seeds, []byte(namespace))
	for i := range bindings {
		seeds = append(seeds, bindings[i][:])
	}
	addr, _, err := Find(seeds, program)
	return addr, err
}

// IsOnCurve reports whether b is a valid compressed edwards25519 point.
func IsOnCurve(b [Size]byte) bool {
	_, err := new(edwards25519.Point).SetBytes(b[:])
	return err == nil
}
