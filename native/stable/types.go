package stable

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Position maintains the collateral and debt balances for a single account.
// Amounts are non-negative big integers: collateral in the asset's native
// unit, debt in the pegged unit's 18-decimal scale. A position is created
// implicitly on first deposit; a zero-balance position is indistinguishable
// from an absent one.
type Position struct {
	// Address is the unique account identifier the position belongs to.
	Address common.Address
	// Collateral maps each accepted collateral asset to the deposited
	// amount held in engine custody.
	Collateral map[common.Address]*big.Int
	// Debt stores the outstanding minted synthetic-dollar amount.
	Debt *big.Int
}

// Clone returns a deep copy of the position.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	clone := &Position{Address: p.Address}
	if p.Collateral != nil {
		clone.Collateral = make(map[common.Address]*big.Int, len(p.Collateral))
		for asset, amount := range p.Collateral {
			if amount != nil {
				clone.Collateral[asset] = new(big.Int).Set(amount)
			}
		}
	}
	if p.Debt != nil {
		clone.Debt = new(big.Int).Set(p.Debt)
	}
	return clone
}

// CollateralBalance returns the deposited amount for the given asset. The
// returned value is a copy and safe for the caller to mutate.
func (p *Position) CollateralBalance(asset common.Address) *big.Int {
	if p == nil || p.Collateral == nil {
		return big.NewInt(0)
	}
	amount, ok := p.Collateral[asset]
	if !ok || amount == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(amount)
}

// EngineState wires the engine to the external persistence layer. Position
// lookups return a private copy (or nil when the account has no recorded
// position); mutations only become visible once PutPosition is called, which
// is the engine's single commit point per operation.
type EngineState interface {
	Position(addr common.Address) (*Position, error)
	PutPosition(pos *Position) error
	Positions() ([]*Position, error)
}
