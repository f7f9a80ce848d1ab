package record

import (
	"xdao.co/tokenreg/address"
	"xdao.co/tokenreg/storage"
)

// ManagerSeed is the derivation namespace of the manager singleton.
const ManagerSeed = "manager"

// ManagerSpace bounds the manager account's data.
const ManagerSpace = DiscriminatorSize + 64

var ManagerDiscriminator = DiscriminatorFor("Manager")

// Manager is the registry-wide singleton naming the current manager authority.
type Manager struct {
	Authority address.Address
}

type managerBody struct {
	_         struct{} `cbor:",toarray"`
	Authority []byte
}

// ManagerAddress derives the manager singleton's location under program.
func ManagerAddress(program address.Address) (address.Address, error) {
	return address.Derive(program, ManagerSeed)
}

// Account encodes m as an account owned by program.
func (m Manager) Account(program address.Address) (storage.Account, error) {
	data, err := encode(ManagerDiscriminator, managerBody{Authority: m.Authority[:]}, ManagerSpace)
	if err != nil {
		return storage.Account{}, err
	}
	return storage.Account{Owner: program, Data: data}, nil
}

// DecodeManager decodes a manager account owned by program.
func DecodeManager(acct storage.Account, program address.Address) (Manager, error) {
	var body managerBody
	if err := decode(acct, program, ManagerDiscriminator, &body); err != nil {
		return Manager{}, err
	}
	auth, err := addressField(body.Authority, "authority")
	if err != nil {
		return Manager{}, err
	}
	return Manager{Authority: auth}, nil
}
