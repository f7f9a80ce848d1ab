package record

import (
	"fmt"
	"unicode/utf8"

	"xdao.co/tokenreg/address"
	"xdao.co/tokenreg/storage"
)

// TokenSeed is the derivation namespace of token records.
const TokenSeed = "token"

// TokenSpace bounds a token account's data, discriminator included.
const TokenSpace = 1000

var TokenDiscriminator = DiscriminatorFor("Token")

// Token is the metadata record for one token identifier. Address never
// changes after registration.
type Token struct {
	Address  address.Address
	Name     string
	Symbol   string
	ImageURI string
}

type tokenBody struct {
	_        struct{} `cbor:",toarray"`
	Address  []byte
	Name     string
	Symbol   string
	ImageURI string
}

// TokenAddress derives the record location for token under program.
func TokenAddress(program, token address.Address) (address.Address, error) {
	return address.Derive(program, TokenSeed, token)
}

// Account encodes t as an account owned by program. It fails with
// ErrInvalidText when a metadata field is not valid UTF-8 and with
// ErrTooLarge when the metadata does not fit in TokenSpace.
func (t Token) Account(program address.Address) (storage.Account, error) {
	if err := t.checkText(); err != nil {
		return storage.Account{}, err
	}
	data, err := encode(TokenDiscriminator, tokenBody{
		Address:  t.Address[:],
		Name:     t.Name,
		Symbol:   t.Symbol,
		ImageURI: t.ImageURI,
	}, TokenSpace)
	if err != nil {
		return storage.Account{}, err
	}
	return storage.Account{Owner: program, Data: data}, nil
}

// DecodeToken decodes a token account owned by program.
func DecodeToken(acct storage.Account, program address.Address) (Token, error) {
	var body tokenBody
	if err := decode(acct, program, TokenDiscriminator, &body); err != nil {
		return Token{}, err
	}
	addr, err := addressField(body.Address, "address")
	if err != nil {
		return Token{}, err
	}
	return Token{Address: addr, Name: body.Name, Symbol: body.Symbol, ImageURI: body.ImageURI}, nil
}

// checkText rejects strings the decoder would refuse to read back.
func (t Token) checkText() error {
	for _, f := range []struct{ name, v string }{
		{"name", t.Name},
		{"symbol", t.Symbol},
		{"image uri", t.ImageURI},
	} {
		if !utf8.ValidString(f.v) {
			return fmt.Errorf("%w: %s", ErrInvalidText, f.name)
		}
	}
	return nil
}
