package types

import "math/big"

// Account tracks the spendable balance held for a marketplace identity.
// Balances live in the ledger store; engines never cache them across
// operations.
type Account struct {
	Nonce   uint64
	Balance *big.Int
}

// EnsureAccount normalises a possibly-nil account into a usable value with a
// non-nil balance.
func EnsureAccount(acc *Account) *Account {
	if acc == nil {
		return &Account{Balance: big.NewInt(0)}
	}
	if acc.Balance == nil {
		acc.Balance = big.NewInt(0)
	}
	return acc
}

// TransferLeg describes one movement of value between two identities. A batch
// of legs is applied atomically by the ledger: either every leg settles or
// none do.
type TransferLeg struct {
	From   [20]byte
	To     [20]byte
	Amount *big.Int
}
