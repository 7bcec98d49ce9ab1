package stable

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"synthd/core/events"
)

// seedUnderwater mints a position that is healthy at $2000 and then drops the
// feed so its health factor falls below the minimum.
func seedUnderwater(t *testing.T, r *rig, target common.Address) {
	t.Helper()
	r.weth.setBalance(target, e18(1))
	if err := r.engine.DepositCollateralAndMintDsc(target, r.weth.Address(), e18(1), e18(900)); err != nil {
		t.Fatalf("seed position: %v", err)
	}
	r.feed.SetAnswer(price8(1000), time.Now())
	health, err := r.engine.HealthFactor(target)
	if err != nil {
		t.Fatalf("health factor: %v", err)
	}
	if health.Cmp(MinHealthFactor()) >= 0 {
		t.Fatalf("expected underwater position, health %s", health)
	}
}

func TestLiquidateSeizesCollateralWithBonus(t *testing.T) {
	r := newRig(t, price8(2000))
	target := makeAddress(0x01)
	liquidator := makeAddress(0x02)
	seedUnderwater(t, r, target)
	r.debt.setBalance(liquidator, e18(500))
	r.emitter.emitted = nil

	if err := r.engine.Liquidate(liquidator, r.weth.Address(), target, e18(500)); err != nil {
		t.Fatalf("liquidate: %v", err)
	}

	// Covering 500 DSC at $1000 redeems 0.5 collateral plus a 10% bonus.
	seized, _ := new(big.Int).SetString("550000000000000000", 10)
	remaining, _ := new(big.Int).SetString("450000000000000000", 10)

	balance, err := r.engine.CollateralBalanceOf(target, r.weth.Address())
	if err != nil {
		t.Fatalf("collateral balance: %v", err)
	}
	if balance.Cmp(remaining) != 0 {
		t.Fatalf("unexpected remaining collateral %s, want %s", balance, remaining)
	}
	debt, _, err := r.engine.AccountInformation(target)
	if err != nil {
		t.Fatalf("account information: %v", err)
	}
	if debt.Cmp(e18(400)) != 0 {
		t.Fatalf("unexpected remaining debt %s", debt)
	}
	if got := r.weth.balance(liquidator); got.Cmp(seized) != 0 {
		t.Fatalf("unexpected liquidator payout %s, want %s", got, seized)
	}
	if got := r.weth.balance(r.custody); got.Cmp(remaining) != 0 {
		t.Fatalf("unexpected custody balance %s, want %s", got, remaining)
	}
	if r.debt.burned.Cmp(e18(500)) != 0 {
		t.Fatalf("unexpected burned debt %s", r.debt.burned)
	}

	if len(r.emitter.emitted) != 1 {
		t.Fatalf("expected one event, got %d", len(r.emitter.emitted))
	}
	redeemed, ok := r.emitter.emitted[0].(events.CollateralRedeemed)
	if !ok {
		t.Fatalf("unexpected event %T", r.emitter.emitted[0])
	}
	if redeemed.From != target || redeemed.To != liquidator || redeemed.Amount.Cmp(seized) != 0 {
		t.Fatalf("unexpected redeem event %+v", redeemed)
	}
}

func TestLiquidateHealthyTargetRejected(t *testing.T) {
	r := newRig(t, price8(2000))
	target := makeAddress(0x01)
	liquidator := makeAddress(0x02)
	r.weth.setBalance(target, e18(1))
	if err := r.engine.DepositCollateralAndMintDsc(target, r.weth.Address(), e18(1), e18(900)); err != nil {
		t.Fatalf("seed position: %v", err)
	}

	err := r.engine.Liquidate(liquidator, r.weth.Address(), target, e18(100))
	if !errors.Is(err, ErrHealthFactorOk) {
		t.Fatalf("expected ErrHealthFactorOk, got %v", err)
	}
}

func TestLiquidateRequiresImprovement(t *testing.T) {
	r := newRig(t, price8(100))
	target := makeAddress(0x01)
	liquidator := makeAddress(0x02)

	// Deep underwater: 1 token worth 100 USD against 1000 DSC of debt. The
	// bonus-inclusive seizure strips almost all collateral while barely
	// denting the debt, so health strictly worsens.
	r.state.positions[target] = &Position{
		Address:    target,
		Collateral: map[common.Address]*big.Int{r.weth.Address(): e18(1)},
		Debt:       e18(1000),
	}
	r.weth.setBalance(r.custody, e18(1))
	r.debt.setBalance(liquidator, e18(90))

	err := r.engine.Liquidate(liquidator, r.weth.Address(), target, e18(90))
	if !errors.Is(err, ErrHealthFactorNotImproved) {
		t.Fatalf("expected ErrHealthFactorNotImproved, got %v", err)
	}

	debt, _, err := r.engine.AccountInformation(target)
	if err != nil {
		t.Fatalf("account information: %v", err)
	}
	if debt.Cmp(e18(1000)) != 0 {
		t.Fatalf("expected debt untouched, got %s", debt)
	}
}

func TestLiquidateBonusExceedsCollateral(t *testing.T) {
	r := newRig(t, price8(1000))
	target := makeAddress(0x01)
	liquidator := makeAddress(0x02)

	half, _ := new(big.Int).SetString("500000000000000000", 10)
	r.state.positions[target] = &Position{
		Address:    target,
		Collateral: map[common.Address]*big.Int{r.weth.Address(): half},
		Debt:       e18(1000),
	}

	// Covering 500 DSC would seize 0.55 tokens against 0.5 held.
	err := r.engine.Liquidate(liquidator, r.weth.Address(), target, e18(500))
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
}

func TestLiquidateUnhealthyLiquidatorRejected(t *testing.T) {
	r := newRig(t, price8(1000))
	target := makeAddress(0x01)
	liquidator := makeAddress(0x02)

	r.state.positions[target] = &Position{
		Address:    target,
		Collateral: map[common.Address]*big.Int{r.weth.Address(): e18(1)},
		Debt:       e18(900),
	}
	r.state.positions[liquidator] = &Position{
		Address:    liquidator,
		Collateral: map[common.Address]*big.Int{r.weth.Address(): e18(1)},
		Debt:       e18(900),
	}
	r.weth.setBalance(r.custody, e18(2))
	r.debt.setBalance(liquidator, e18(500))

	err := r.engine.Liquidate(liquidator, r.weth.Address(), target, e18(500))
	var hfErr *HealthFactorError
	if !errors.As(err, &hfErr) {
		t.Fatalf("expected HealthFactorError, got %v", err)
	}

	debt, _, err := r.engine.AccountInformation(target)
	if err != nil {
		t.Fatalf("account information: %v", err)
	}
	if debt.Cmp(e18(900)) != 0 {
		t.Fatalf("expected target debt unchanged, got %s", debt)
	}
}

func TestSelfLiquidationStillUnhealthyRejected(t *testing.T) {
	r := newRig(t, price8(2000))
	target := makeAddress(0x01)
	seedUnderwater(t, r, target)
	r.debt.setBalance(target, e18(500))

	// Improvement alone is not enough: the resulting position must be
	// healthy when the liquidator is covering their own debt.
	err := r.engine.Liquidate(target, r.weth.Address(), target, e18(500))
	var hfErr *HealthFactorError
	if !errors.As(err, &hfErr) {
		t.Fatalf("expected HealthFactorError, got %v", err)
	}
}

func TestLiquidateCoverExceedsDebt(t *testing.T) {
	r := newRig(t, price8(1000))
	target := makeAddress(0x01)
	liquidator := makeAddress(0x02)

	r.state.positions[target] = &Position{
		Address:    target,
		Collateral: map[common.Address]*big.Int{r.weth.Address(): e18(10)},
		Debt:       e18(5500),
	}

	err := r.engine.Liquidate(liquidator, r.weth.Address(), target, e18(6000))
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
}

func TestLiquidateUnknownAsset(t *testing.T) {
	r := newRig(t, price8(1000))
	if err := r.engine.Liquidate(makeAddress(0x02), makeAddress(0x99), makeAddress(0x01), e18(1)); !errors.Is(err, ErrAssetNotSupported) {
		t.Fatalf("expected ErrAssetNotSupported, got %v", err)
	}
}
