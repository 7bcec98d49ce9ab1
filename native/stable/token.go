package stable

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// CollateralToken is the engine's view of a fungible collateral asset. The
// engine moves tokens between caller accounts and its own custody account;
// a failed transfer is recoverable at the call site and aborts the enclosing
// operation without touching ledger state.
type CollateralToken interface {
	// Address returns the asset identifier used to key the registry and
	// per-position collateral balances.
	Address() common.Address
	// Transfer moves amount from one account to another.
	Transfer(from, to common.Address, amount *big.Int) error
}

// DebtToken is the narrow capability handle over the pegged debt token
// granted to the engine at construction. The engine is the sole authorized
// minter and burner.
type DebtToken interface {
	// Mint issues amount of the pegged unit to the recipient.
	Mint(to common.Address, amount *big.Int) error
	// Burn destroys amount held by the given account.
	Burn(from common.Address, amount *big.Int) error
	// Transfer moves previously minted units between accounts, used to
	// pull units into engine custody ahead of a burn.
	Transfer(from, to common.Address, amount *big.Int) error
}
