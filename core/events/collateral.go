package events

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"synthd/core/types"
)

const (
	// TypeCollateralDeposited is emitted whenever collateral is credited to
	// an account's position.
	TypeCollateralDeposited = "collateral.deposited"
	// TypeCollateralRedeemed is emitted whenever collateral leaves a
	// position, either back to its owner or to a liquidator.
	TypeCollateralRedeemed = "collateral.redeemed"
)

// CollateralDeposited records a collateral credit against a position.
type CollateralDeposited struct {
	Account common.Address
	Asset   common.Address
	Amount  *big.Int
}

func (CollateralDeposited) EventType() string { return TypeCollateralDeposited }

// Event renders the deposit as a generic typed event.
func (e CollateralDeposited) Event() *types.Event {
	return &types.Event{
		Type: TypeCollateralDeposited,
		Attributes: map[string]string{
			"account": e.Account.Hex(),
			"asset":   e.Asset.Hex(),
			"amount":  formatAmount(e.Amount),
		},
	}
}

// CollateralRedeemed records collateral leaving a position. From is the
// position debited; To is the recipient of the underlying tokens, which
// differs from From only during liquidation.
type CollateralRedeemed struct {
	From   common.Address
	To     common.Address
	Asset  common.Address
	Amount *big.Int
}

func (CollateralRedeemed) EventType() string { return TypeCollateralRedeemed }

// Event renders the redemption as a generic typed event.
func (e CollateralRedeemed) Event() *types.Event {
	return &types.Event{
		Type: TypeCollateralRedeemed,
		Attributes: map[string]string{
			"from":   e.From.Hex(),
			"to":     e.To.Hex(),
			"asset":  e.Asset.Hex(),
			"amount": formatAmount(e.Amount),
		},
	}
}
