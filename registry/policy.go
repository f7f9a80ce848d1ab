package registry

import "xdao.co/tokenreg/address"

// Authorize reports whether requester may register or edit a token: it must
// be the manager authority or the token's mint authority. The zero identity
// never matches.
func Authorize(requester, managerAuthority, mintAuthority address.Address) bool {
	if requester.IsZero() {
		return false
	}
	return requester == managerAuthority || requester == mintAuthority
}
