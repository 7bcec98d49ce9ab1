package stable

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"synthd/core/events"
)

var (
	errNilState = errors.New("stable engine: state not configured")

	// ErrInvalidAmount rejects non-positive operation amounts.
	ErrInvalidAmount = errors.New("stable engine: amount must be positive")
	// ErrAssetNotSupported rejects assets missing from the registry.
	ErrAssetNotSupported = errors.New("stable engine: collateral asset not supported")
	// ErrInsufficientBalance aborts any decrement that would drive a
	// ledger balance negative.
	ErrInsufficientBalance = errors.New("stable engine: insufficient balance")
	// ErrTransferFailed wraps a collateral or debt token transfer that the
	// collaborator reported as failed.
	ErrTransferFailed = errors.New("stable engine: token transfer failed")
	// ErrMintFailed wraps a failed debt token mint.
	ErrMintFailed = errors.New("stable engine: debt token mint failed")
	// ErrHealthFactorOk rejects liquidation of a target whose health
	// factor is at or above the minimum.
	ErrHealthFactorOk = errors.New("stable engine: target health factor not below minimum")
	// ErrHealthFactorNotImproved aborts a liquidation that failed to
	// strictly raise the target's health factor.
	ErrHealthFactorNotImproved = errors.New("stable engine: liquidation did not improve health factor")
	// ErrReentrantCall rejects a nested invocation of a state-mutating
	// operation while another is in flight.
	ErrReentrantCall = errors.New("stable engine: reentrant call")
	// ErrTokenFeedMismatch rejects registry construction with mismatched
	// token and feed lists.
	ErrTokenFeedMismatch = errors.New("stable engine: token and feed lists must match")
	// ErrEmptyRegistry rejects construction without any collateral asset.
	ErrEmptyRegistry = errors.New("stable engine: registry needs at least one collateral asset")
	// ErrDuplicateAsset rejects construction with a repeated asset address.
	ErrDuplicateAsset = errors.New("stable engine: duplicate collateral asset")
)

// HealthFactorError reports a post-state health factor below the minimum. It
// carries the computed value for diagnostics.
type HealthFactorError struct {
	HealthFactor *big.Int
}

func (e *HealthFactorError) Error() string {
	return fmt.Sprintf("stable engine: operation breaks health factor (%s)", e.HealthFactor)
}

var (
	// precision is the 1e18 fixed-point scale shared by debt amounts, USD
	// values, and health factors.
	precision = big.NewInt(1_000_000_000_000_000_000)
	// additionalFeedPrecision lifts an 8-decimal feed answer to the
	// 18-decimal USD scale.
	additionalFeedPrecision = big.NewInt(10_000_000_000)
	// liquidationThreshold/liquidationPrecision: only 50% of nominal
	// collateral value counts toward solvency (200% collateralization).
	liquidationThreshold = big.NewInt(50)
	liquidationPrecision = big.NewInt(100)
	// liquidationBonus is the extra collateral percentage paid to a
	// liquidator on top of the covered debt's value.
	liquidationBonus = big.NewInt(10)
	// minHealthFactor is 1.0 in fixed point; anything below is
	// liquidatable.
	minHealthFactor = new(big.Int).Set(precision)
	// maxHealthFactor stands in for "infinite" when a position has no
	// debt.
	maxHealthFactor = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
)

// Precision returns the shared 1e18 fixed-point scale.
func Precision() *big.Int { return new(big.Int).Set(precision) }

// AdditionalFeedPrecision returns the 8-to-18-decimal feed scale factor.
func AdditionalFeedPrecision() *big.Int { return new(big.Int).Set(additionalFeedPrecision) }

// LiquidationThreshold returns the percentage of collateral value counted
// toward solvency.
func LiquidationThreshold() *big.Int { return new(big.Int).Set(liquidationThreshold) }

// LiquidationPrecision returns the divisor paired with LiquidationThreshold
// and LiquidationBonus.
func LiquidationPrecision() *big.Int { return new(big.Int).Set(liquidationPrecision) }

// LiquidationBonus returns the liquidator bonus percentage.
func LiquidationBonus() *big.Int { return new(big.Int).Set(liquidationBonus) }

// MinHealthFactor returns the 1.0 fixed-point solvency floor.
func MinHealthFactor() *big.Int { return new(big.Int).Set(minHealthFactor) }

// MaxHealthFactor returns the value reported for debt-free positions.
func MaxHealthFactor() *big.Int { return new(big.Int).Set(maxHealthFactor) }

// Engine orchestrates the synthetic-dollar ledger: it validates caller
// input, mutates positions, prices collateral through the oracle adapters,
// and enforces the minimum health factor on every state-changing operation.
type Engine struct {
	state    EngineState
	registry *Registry
	debt     DebtToken
	custody  common.Address
	emitter  events.Emitter
	guard    opGuard
}

// NewEngine constructs an engine holding the immutable collateral registry
// and the mint/burn capability over the pegged debt token. custody is the
// account that holds pulled collateral and in-flight debt tokens.
func NewEngine(custody common.Address, registry *Registry, debt DebtToken) *Engine {
	return &Engine{
		custody:  custody,
		registry: registry,
		debt:     debt,
		emitter:  events.NoopEmitter{},
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state EngineState) { e.state = state }

// SetEmitter wires the engine to an event sink. A nil emitter restores the
// discarding default.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil {
		return
	}
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// Registry returns the engine's immutable collateral registry.
func (e *Engine) Registry() *Registry {
	if e == nil {
		return nil
	}
	return e.registry
}

// Custody returns the engine's custody account address.
func (e *Engine) Custody() common.Address {
	if e == nil {
		return common.Address{}
	}
	return e.custody
}

// DepositCollateral pulls amount of the given asset from the caller into
// engine custody and credits the caller's position.
func (e *Engine) DepositCollateral(caller, asset common.Address, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.guard.acquire(); err != nil {
		return err
	}
	defer e.guard.release()
	return e.depositCollateral(caller, asset, amount)
}

// MintDsc increases the caller's debt by amount and instructs the debt token
// to mint the same amount to them, provided the resulting position stays at
// or above the minimum health factor.
func (e *Engine) MintDsc(caller common.Address, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.guard.acquire(); err != nil {
		return err
	}
	defer e.guard.release()
	return e.mintDsc(caller, amount)
}

// DepositCollateralAndMintDsc performs a deposit and a mint as one guarded
// operation with a single commit: both steps are staged on one position copy
// and health-checked together, so an abort in either step leaves no trace of
// the other.
func (e *Engine) DepositCollateralAndMintDsc(caller, asset common.Address, collateralAmount, mintAmount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.guard.acquire(); err != nil {
		return err
	}
	defer e.guard.release()

	if err := validAmount(collateralAmount); err != nil {
		return err
	}
	if err := validAmount(mintAmount); err != nil {
		return err
	}
	token, ok := e.registry.Token(asset)
	if !ok {
		return ErrAssetNotSupported
	}
	pos, err := e.ensurePosition(caller)
	if err != nil {
		return err
	}
	orig := pos.Clone()
	stageDeposit(pos, asset, collateralAmount)
	pos.Debt = new(big.Int).Add(pos.Debt, mintAmount)
	if err := e.requireHealthy(pos); err != nil {
		return err
	}
	if err := e.state.PutPosition(pos); err != nil {
		return err
	}
	if err := token.Transfer(caller, e.custody, collateralAmount); err != nil {
		return e.revert(fmt.Errorf("%w: %v", ErrTransferFailed, err), orig)
	}
	if err := e.debt.Mint(caller, mintAmount); err != nil {
		return e.revert(fmt.Errorf("%w: %v", ErrMintFailed, err), orig, func() error {
			return token.Transfer(e.custody, caller, collateralAmount)
		})
	}
	e.emitter.Emit(events.CollateralDeposited{Account: caller, Asset: asset, Amount: new(big.Int).Set(collateralAmount)})
	return nil
}

// RedeemCollateral releases amount of the caller's deposited collateral back
// to them, provided the remaining position stays healthy.
func (e *Engine) RedeemCollateral(caller, asset common.Address, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.guard.acquire(); err != nil {
		return err
	}
	defer e.guard.release()

	if err := validAmount(amount); err != nil {
		return err
	}
	token, ok := e.registry.Token(asset)
	if !ok {
		return ErrAssetNotSupported
	}
	pos, err := e.ensurePosition(caller)
	if err != nil {
		return err
	}
	orig := pos.Clone()
	if err := stageWithdraw(pos, asset, amount); err != nil {
		return err
	}
	if err := e.requireHealthy(pos); err != nil {
		return err
	}
	if err := e.state.PutPosition(pos); err != nil {
		return err
	}
	if err := token.Transfer(e.custody, caller, amount); err != nil {
		return e.revert(fmt.Errorf("%w: %v", ErrTransferFailed, err), orig)
	}
	e.emitter.Emit(events.CollateralRedeemed{From: caller, To: caller, Asset: asset, Amount: new(big.Int).Set(amount)})
	return nil
}

// BurnDsc pulls amount of the pegged token from the caller, destroys it, and
// reduces the caller's recorded debt. Burning debt can only improve a
// position; the closing health check is kept as a safety net.
func (e *Engine) BurnDsc(caller common.Address, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.guard.acquire(); err != nil {
		return err
	}
	defer e.guard.release()
	return e.burnDsc(caller, amount)
}

// RedeemCollateralForDsc burns debt and redeems collateral as one guarded
// operation with a single commit: both steps are staged on one position copy
// and health-checked together, so an abort in either step leaves no trace of
// the other.
func (e *Engine) RedeemCollateralForDsc(caller, asset common.Address, collateralAmount, burnAmount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.guard.acquire(); err != nil {
		return err
	}
	defer e.guard.release()

	if err := validAmount(collateralAmount); err != nil {
		return err
	}
	if err := validAmount(burnAmount); err != nil {
		return err
	}
	token, ok := e.registry.Token(asset)
	if !ok {
		return ErrAssetNotSupported
	}
	pos, err := e.ensurePosition(caller)
	if err != nil {
		return err
	}
	if pos.Debt.Cmp(burnAmount) < 0 {
		return ErrInsufficientBalance
	}
	orig := pos.Clone()
	pos.Debt = new(big.Int).Sub(pos.Debt, burnAmount)
	if err := stageWithdraw(pos, asset, collateralAmount); err != nil {
		return err
	}
	if err := e.requireHealthy(pos); err != nil {
		return err
	}
	if err := e.state.PutPosition(pos); err != nil {
		return err
	}
	if err := e.debt.Transfer(caller, e.custody, burnAmount); err != nil {
		return e.revert(fmt.Errorf("%w: %v", ErrTransferFailed, err), orig)
	}
	if err := token.Transfer(e.custody, caller, collateralAmount); err != nil {
		return e.revert(fmt.Errorf("%w: %v", ErrTransferFailed, err), orig, func() error {
			return e.debt.Transfer(e.custody, caller, burnAmount)
		})
	}
	if err := e.debt.Burn(e.custody, burnAmount); err != nil {
		return e.revert(fmt.Errorf("stable engine: burn debt token: %w", err), orig, func() error {
			return token.Transfer(caller, e.custody, collateralAmount)
		}, func() error {
			return e.debt.Transfer(e.custody, caller, burnAmount)
		})
	}
	e.emitter.Emit(events.CollateralRedeemed{From: caller, To: caller, Asset: asset, Amount: new(big.Int).Set(collateralAmount)})
	return nil
}

// Liquidate lets a third party cover part of an unhealthy target's debt in
// exchange for the equivalent collateral plus a bonus. The target's health
// factor must strictly improve and the liquidator's own position must remain
// healthy afterwards. Partial liquidation is allowed.
//
// Known limitation: if collateral value has crashed so far that the
// bonus-inclusive payout exceeds the target's remaining collateral, the call
// aborts and liquidation cannot be fully incentivized.
func (e *Engine) Liquidate(liquidator, asset, target common.Address, debtToCover *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.guard.acquire(); err != nil {
		return err
	}
	defer e.guard.release()

	if err := validAmount(debtToCover); err != nil {
		return err
	}
	token, ok := e.registry.Token(asset)
	if !ok {
		return ErrAssetNotSupported
	}

	targetPos, err := e.ensurePosition(target)
	if err != nil {
		return err
	}
	orig := targetPos.Clone()
	startHealth, err := e.positionHealthFactor(targetPos)
	if err != nil {
		return err
	}
	if startHealth.Cmp(minHealthFactor) >= 0 {
		return ErrHealthFactorOk
	}

	collateralForDebt, err := e.TokenAmountFromUsd(asset, debtToCover)
	if err != nil {
		return err
	}
	bonus := new(big.Int).Mul(collateralForDebt, liquidationBonus)
	bonus.Quo(bonus, liquidationPrecision)
	seize := new(big.Int).Add(collateralForDebt, bonus)

	if err := stageWithdraw(targetPos, asset, seize); err != nil {
		return err
	}
	if targetPos.Debt.Cmp(debtToCover) < 0 {
		return ErrInsufficientBalance
	}
	targetPos.Debt = new(big.Int).Sub(targetPos.Debt, debtToCover)

	endHealth, err := e.positionHealthFactor(targetPos)
	if err != nil {
		return err
	}
	if endHealth.Cmp(startHealth) <= 0 {
		return ErrHealthFactorNotImproved
	}

	// The liquidator's own position must be healthy; for self-liquidation
	// that position is the staged target position itself.
	liquidatorPos := targetPos
	if liquidator != target {
		liquidatorPos, err = e.ensurePosition(liquidator)
		if err != nil {
			return err
		}
	}
	if err := e.requireHealthy(liquidatorPos); err != nil {
		return err
	}

	if err := e.state.PutPosition(targetPos); err != nil {
		return err
	}
	if err := token.Transfer(e.custody, liquidator, seize); err != nil {
		return e.revert(fmt.Errorf("%w: %v", ErrTransferFailed, err), orig)
	}
	if err := e.debt.Transfer(liquidator, e.custody, debtToCover); err != nil {
		return e.revert(fmt.Errorf("%w: %v", ErrTransferFailed, err), orig, func() error {
			return token.Transfer(liquidator, e.custody, seize)
		})
	}
	if err := e.debt.Burn(e.custody, debtToCover); err != nil {
		return e.revert(fmt.Errorf("stable engine: burn debt token: %w", err), orig, func() error {
			return e.debt.Transfer(e.custody, liquidator, debtToCover)
		}, func() error {
			return token.Transfer(liquidator, e.custody, seize)
		})
	}
	e.emitter.Emit(events.CollateralRedeemed{From: target, To: liquidator, Asset: asset, Amount: seize})
	return nil
}

func (e *Engine) depositCollateral(caller, asset common.Address, amount *big.Int) error {
	if err := validAmount(amount); err != nil {
		return err
	}
	token, ok := e.registry.Token(asset)
	if !ok {
		return ErrAssetNotSupported
	}
	pos, err := e.ensurePosition(caller)
	if err != nil {
		return err
	}
	orig := pos.Clone()
	stageDeposit(pos, asset, amount)
	if err := e.state.PutPosition(pos); err != nil {
		return err
	}
	if err := token.Transfer(caller, e.custody, amount); err != nil {
		return e.revert(fmt.Errorf("%w: %v", ErrTransferFailed, err), orig)
	}
	e.emitter.Emit(events.CollateralDeposited{Account: caller, Asset: asset, Amount: new(big.Int).Set(amount)})
	return nil
}

func (e *Engine) mintDsc(caller common.Address, amount *big.Int) error {
	if err := validAmount(amount); err != nil {
		return err
	}
	pos, err := e.ensurePosition(caller)
	if err != nil {
		return err
	}
	orig := pos.Clone()
	pos.Debt = new(big.Int).Add(pos.Debt, amount)
	if err := e.requireHealthy(pos); err != nil {
		return err
	}
	if err := e.state.PutPosition(pos); err != nil {
		return err
	}
	if err := e.debt.Mint(caller, amount); err != nil {
		return e.revert(fmt.Errorf("%w: %v", ErrMintFailed, err), orig)
	}
	return nil
}

func (e *Engine) burnDsc(caller common.Address, amount *big.Int) error {
	if err := validAmount(amount); err != nil {
		return err
	}
	pos, err := e.ensurePosition(caller)
	if err != nil {
		return err
	}
	if pos.Debt.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	orig := pos.Clone()
	pos.Debt = new(big.Int).Sub(pos.Debt, amount)
	if err := e.requireHealthy(pos); err != nil {
		return err
	}
	if err := e.state.PutPosition(pos); err != nil {
		return err
	}
	if err := e.debt.Transfer(caller, e.custody, amount); err != nil {
		return e.revert(fmt.Errorf("%w: %v", ErrTransferFailed, err), orig)
	}
	if err := e.debt.Burn(e.custody, amount); err != nil {
		return e.revert(fmt.Errorf("stable engine: burn debt token: %w", err), orig, func() error {
			return e.debt.Transfer(e.custody, caller, amount)
		})
	}
	return nil
}

// revert rolls back a failed operation after its position has been
// persisted: the undo calls reverse completed token movements (in the order
// given) and the pre-operation position image is written back. The guard is
// held throughout, so no other operation can observe the intermediate state.
// Undo or restore failures are appended to the causal error, never mask it.
func (e *Engine) revert(cause error, orig *Position, undo ...func() error) error {
	for _, fn := range undo {
		if err := fn(); err != nil {
			cause = fmt.Errorf("%w (undo: %v)", cause, err)
		}
	}
	if err := e.state.PutPosition(orig); err != nil {
		cause = fmt.Errorf("%w (restore position: %v)", cause, err)
	}
	return cause
}

// AccountInformation returns the outstanding debt and the 18-decimal USD
// value of all collateral backing the given account.
func (e *Engine) AccountInformation(addr common.Address) (*big.Int, *big.Int, error) {
	if e == nil || e.state == nil {
		return nil, nil, errNilState
	}
	pos, err := e.ensurePosition(addr)
	if err != nil {
		return nil, nil, err
	}
	value, err := e.collateralValue(pos)
	if err != nil {
		return nil, nil, err
	}
	return new(big.Int).Set(pos.Debt), value, nil
}

// HealthFactor computes the account's current solvency ratio against live
// prices. Debt-free accounts report MaxHealthFactor.
func (e *Engine) HealthFactor(addr common.Address) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	pos, err := e.ensurePosition(addr)
	if err != nil {
		return nil, err
	}
	return e.positionHealthFactor(pos)
}

// CollateralBalanceOf returns the account's deposited amount of one asset.
func (e *Engine) CollateralBalanceOf(addr, asset common.Address) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	pos, err := e.state.Position(addr)
	if err != nil {
		return nil, err
	}
	return pos.CollateralBalance(asset), nil
}

// UsdValue converts an asset amount to its 18-decimal USD value using the
// validated live price.
func (e *Engine) UsdValue(asset common.Address, amount *big.Int) (*big.Int, error) {
	price, err := e.assetPrice(asset)
	if err != nil {
		return nil, err
	}
	if amount == nil {
		amount = big.NewInt(0)
	}
	value := new(big.Int).Mul(price, additionalFeedPrecision)
	value.Mul(value, amount)
	value.Quo(value, precision)
	return value, nil
}

// TokenAmountFromUsd converts an 18-decimal USD amount to the equivalent
// asset amount using the validated live price.
func (e *Engine) TokenAmountFromUsd(asset common.Address, usdAmount *big.Int) (*big.Int, error) {
	price, err := e.assetPrice(asset)
	if err != nil {
		return nil, err
	}
	if usdAmount == nil {
		usdAmount = big.NewInt(0)
	}
	amount := new(big.Int).Mul(usdAmount, precision)
	amount.Quo(amount, new(big.Int).Mul(price, additionalFeedPrecision))
	return amount, nil
}

// TotalCollateralValue sums the USD value of all collateral held in custody
// across every recorded position.
func (e *Engine) TotalCollateralValue() (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	positions, err := e.state.Positions()
	if err != nil {
		return nil, err
	}
	total := big.NewInt(0)
	for _, pos := range positions {
		value, err := e.collateralValue(pos)
		if err != nil {
			return nil, err
		}
		total.Add(total, value)
	}
	return total, nil
}

// TotalDebt sums the outstanding minted debt across every recorded position.
func (e *Engine) TotalDebt() (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	positions, err := e.state.Positions()
	if err != nil {
		return nil, err
	}
	total := big.NewInt(0)
	for _, pos := range positions {
		if pos != nil && pos.Debt != nil {
			total.Add(total, pos.Debt)
		}
	}
	return total, nil
}

// HealthFactorFor computes the solvency ratio from raw inputs without
// touching state; it is the pure core of every health check.
func HealthFactorFor(totalDebt, collateralValueUsd *big.Int) *big.Int {
	if totalDebt == nil || totalDebt.Sign() == 0 {
		return new(big.Int).Set(maxHealthFactor)
	}
	if collateralValueUsd == nil {
		collateralValueUsd = big.NewInt(0)
	}
	adjusted := new(big.Int).Mul(collateralValueUsd, liquidationThreshold)
	adjusted.Quo(adjusted, liquidationPrecision)
	health := adjusted.Mul(adjusted, precision)
	return health.Quo(health, totalDebt)
}

func (e *Engine) positionHealthFactor(pos *Position) (*big.Int, error) {
	if pos == nil || pos.Debt == nil || pos.Debt.Sign() == 0 {
		return new(big.Int).Set(maxHealthFactor), nil
	}
	value, err := e.collateralValue(pos)
	if err != nil {
		return nil, err
	}
	return HealthFactorFor(pos.Debt, value), nil
}

func (e *Engine) requireHealthy(pos *Position) error {
	health, err := e.positionHealthFactor(pos)
	if err != nil {
		return err
	}
	if health.Cmp(minHealthFactor) < 0 {
		return &HealthFactorError{HealthFactor: health}
	}
	return nil
}

func (e *Engine) collateralValue(pos *Position) (*big.Int, error) {
	total := big.NewInt(0)
	if pos == nil || pos.Collateral == nil {
		return total, nil
	}
	for _, asset := range e.registry.Assets() {
		amount := pos.Collateral[asset]
		if amount == nil || amount.Sign() == 0 {
			continue
		}
		value, err := e.UsdValue(asset, amount)
		if err != nil {
			return nil, err
		}
		total.Add(total, value)
	}
	return total, nil
}

func (e *Engine) assetPrice(asset common.Address) (*big.Int, error) {
	feed, ok := e.registry.Feed(asset)
	if !ok {
		return nil, ErrAssetNotSupported
	}
	price, err := feed.LatestPrice()
	if err != nil {
		return nil, err
	}
	if price.Sign() <= 0 {
		return nil, ErrInvalidPrice
	}
	return price, nil
}

func (e *Engine) ensurePosition(addr common.Address) (*Position, error) {
	pos, err := e.state.Position(addr)
	if err != nil {
		return nil, err
	}
	if pos == nil {
		pos = &Position{Address: addr}
	}
	if pos.Collateral == nil {
		pos.Collateral = make(map[common.Address]*big.Int)
	}
	if pos.Debt == nil {
		pos.Debt = big.NewInt(0)
	}
	return pos, nil
}

func stageDeposit(pos *Position, asset common.Address, amount *big.Int) {
	balance := pos.Collateral[asset]
	if balance == nil {
		balance = big.NewInt(0)
	}
	pos.Collateral[asset] = new(big.Int).Add(balance, amount)
}

func stageWithdraw(pos *Position, asset common.Address, amount *big.Int) error {
	balance := pos.Collateral[asset]
	if balance == nil || balance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	pos.Collateral[asset] = new(big.Int).Sub(balance, amount)
	return nil
}

func validAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	return nil
}
