// Package txn defines registry instructions and the signed envelopes that
// carry them from a client to the registry.
package txn

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"xdao.co/tokenreg/address"
	"xdao.co/tokenreg/keys"
)

// Kind selects a registry operation.
type Kind uint8

const (
	KindInitializeManager Kind = iota + 1
	KindUpdateManager
	KindRegister
	KindUpdateToken
)

func (k Kind) String() string {
	switch k {
	case KindInitializeManager:
		return "initialize_manager"
	case KindUpdateManager:
		return "update_manager"
	case KindRegister:
		return "register"
	case KindUpdateToken:
		return "update_token"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// signingDomain separates envelope signatures from any other use of a key.
const signingDomain = "xdao-tokenreg-envelope-v1\x00"

var (
	ErrUnknownKind     = errors.New("txn: unknown instruction kind")
	ErrProgramMismatch = errors.New("txn: instruction addressed to another program")
	ErrMalformed       = errors.New("txn: malformed encoding")
)

// Instruction is one registry call. Program binds the signature to a single
// registry deployment.
type Instruction struct {
	Kind         Kind
	Program      address.Address
	NewAuthority address.Address
	Token        address.Address
	Name         string
	Symbol       string
	ImageURI     string
}

type instructionWire struct {
	_            struct{} `cbor:",toarray"`
	Kind         Kind
	Program      []byte
	NewAuthority []byte
	Token        []byte
	Name         string
	Symbol       string
	ImageURI     string
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	decMode, err = cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyEnforcedAPF,
		IndefLength: cbor.IndefLengthForbidden,
	}.DecMode()
	if err != nil {
		panic(err)
	}
}

// Marshal returns the deterministic CBOR encoding of ix.
func (ix Instruction) Marshal() ([]byte, error) {
	if ix.Kind < KindInitializeManager || ix.Kind > KindUpdateToken {
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, ix.Kind)
	}
	return encMode.Marshal(instructionWire{
		Kind:         ix.Kind,
		Program:      ix.Program[:],
		NewAuthority: ix.NewAuthority[:],
		Token:        ix.Token[:],
		Name:         ix.Name,
		Symbol:       ix.Symbol,
		ImageURI:     ix.ImageURI,
	})
}

// UnmarshalInstruction decodes an instruction produced by Marshal. Decoding
// failures wrap ErrMalformed.
func UnmarshalInstruction(b []byte) (Instruction, error) {
	var w instructionWire
	if err := decMode.Unmarshal(b, &w); err != nil {
		return Instruction{}, fmt.Errorf("%w: instruction: %w", ErrMalformed, err)
	}
	if w.Kind < KindInitializeManager || w.Kind > KindUpdateToken {
		return Instruction{}, fmt.Errorf("%w: %d", ErrUnknownKind, w.Kind)
	}
	ix := Instruction{Kind: w.Kind, Name: w.Name, Symbol: w.Symbol, ImageURI: w.ImageURI}
	var err error
	if ix.Program, err = address.FromBytes(w.Program); err != nil {
		return Instruction{}, fmt.Errorf("%w: program: %w", ErrMalformed, err)
	}
	if ix.NewAuthority, err = address.FromBytes(w.NewAuthority); err != nil {
		return Instruction{}, fmt.Errorf("%w: new authority: %w", ErrMalformed, err)
	}
	if ix.Token, err = address.FromBytes(w.Token); err != nil {
		return Instruction{}, fmt.Errorf("%w: token: %w", ErrMalformed, err)
	}
	return ix, nil
}

// Envelope is a signed instruction.
type Envelope struct {
	_         struct{} `cbor:",toarray"`
	Scheme    keys.Scheme
	PublicKey []byte
	Payload   []byte
	Signature []byte
}

// Sign encodes ix and signs it with signer.
func Sign(signer keys.Signer, ix Instruction) (Envelope, error) {
	payload, err := ix.Marshal()
	if err != nil {
		return Envelope{}, err
	}
	sig, err := signer.Sign(signingMessage(payload))
	if err != nil {
		return Envelope{}, fmt.Errorf("txn: sign: %w", err)
	}
	return Envelope{
		Scheme:    signer.Scheme(),
		PublicKey: signer.PublicKey(),
		Payload:   payload,
		Signature: sig,
	}, nil
}

// Open verifies the signature and returns the authenticated requester with
// the decoded instruction. Instructions addressed to a program other than
// program are rejected.
func (e Envelope) Open(program address.Address) (address.Address, Instruction, error) {
	requester, err := keys.Verify(e.Scheme, e.PublicKey, signingMessage(e.Payload), e.Signature)
	if err != nil {
		return address.Zero, Instruction{}, err
	}
	ix, err := UnmarshalInstruction(e.Payload)
	if err != nil {
		return address.Zero, Instruction{}, err
	}
	if ix.Program != program {
		return address.Zero, Instruction{}, fmt.Errorf("%w: %s", ErrProgramMismatch, ix.Program)
	}
	return requester, ix, nil
}

// Marshal returns the CBOR form of e.
func (e Envelope) Marshal() ([]byte, error) { return encMode.Marshal(e) }

// UnmarshalEnvelope decodes an envelope produced by Envelope.Marshal.
func UnmarshalEnvelope(b []byte) (Envelope, error) {
	var e Envelope
	if err := decMode.Unmarshal(b, &e); err != nil {
		return Envelope{}, fmt.Errorf("%w: envelope: %w", ErrMalformed, err)
	}
	return e, nil
}

func signingMessage(payload []byte) []byte {
	msg := make([]byte, 0, len(signingDomain)+len(payload))
	msg = append(msg, signingDomain...)
	return append(msg, payload...)
}
