package types

import "math/big"

// Account tracks the native LYX balance custodied by the marketplace for a
// single address, alongside a nonce for future transaction sequencing.
type Account struct {
	Nonce      uint64   `json:"nonce"`
	BalanceLYX *big.Int `json:"balanceLYX"`
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return &Account{BalanceLYX: big.NewInt(0)}
	}
	clone := &Account{Nonce: a.Nonce, BalanceLYX: big.NewInt(0)}
	if a.BalanceLYX != nil {
		clone.BalanceLYX = new(big.Int).Set(a.BalanceLYX)
	}
	return clone
}
