// Package token implements a minimal book-entry fungible token over the
// key-value store. It backs both the collateral assets and the pegged debt
// token in a single-process deployment; mint and burn rights are handed out
// once as a narrow capability so the stable engine remains the sole issuer.
package token

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"synthd/storage"
)

var (
	errInvalidAmount       = errors.New("token: amount must be positive")
	errInsufficientBalance = errors.New("token: insufficient balance")
	errMinterGranted       = errors.New("token: minter capability already granted")
)

// Ledger tracks balances and total supply for one token under a symbol-scoped
// key prefix.
type Ledger struct {
	mu      sync.Mutex
	db      storage.Database
	symbol  string
	address common.Address
	granted bool
}

// NewLedger opens (or creates) the token ledger stored under the given
// symbol. address is the token's identity used by the collateral registry.
func NewLedger(db storage.Database, symbol string, address common.Address) *Ledger {
	return &Ledger{db: db, symbol: symbol, address: address}
}

// Symbol returns the token's configured symbol.
func (l *Ledger) Symbol() string { return l.symbol }

// Address returns the token's identity address.
func (l *Ledger) Address() common.Address { return l.address }

// BalanceOf returns the recorded balance for an account.
func (l *Ledger) BalanceOf(addr common.Address) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.readAmount(l.balanceKey(addr))
}

// TotalSupply returns the recorded total supply.
func (l *Ledger) TotalSupply() (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.readAmount(l.supplyKey())
}

// Transfer moves amount between two accounts. It satisfies the stable
// engine's CollateralToken contract.
func (l *Ledger) Transfer(from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return errInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	fromBal, err := l.readAmount(l.balanceKey(from))
	if err != nil {
		return err
	}
	if fromBal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s has %s, needs %s", errInsufficientBalance, from.Hex(), fromBal, amount)
	}
	toBal, err := l.readAmount(l.balanceKey(to))
	if err != nil {
		return err
	}
	entries := []storage.Entry{
		{Key: l.balanceKey(from), Value: encodeAmount(new(big.Int).Sub(fromBal, amount))},
		{Key: l.balanceKey(to), Value: encodeAmount(new(big.Int).Add(toBal, amount))},
	}
	return l.db.PutBatch(entries)
}

// GrantMinter hands out the mint/burn capability. It succeeds exactly once;
// the returned handle is the only way to change supply.
func (l *Ledger) GrantMinter() (*MinterCap, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.granted {
		return nil, errMinterGranted
	}
	l.granted = true
	return &MinterCap{ledger: l}, nil
}

// MinterCap is the narrow mint/burn capability over a Ledger. It also
// forwards plain transfers so a single handle satisfies the stable engine's
// DebtToken contract.
type MinterCap struct {
	ledger *Ledger
}

// Mint issues new units to the recipient.
func (c *MinterCap) Mint(to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return errInvalidAmount
	}
	l := c.ledger
	l.mu.Lock()
	defer l.mu.Unlock()

	bal, err := l.readAmount(l.balanceKey(to))
	if err != nil {
		return err
	}
	supply, err := l.readAmount(l.supplyKey())
	if err != nil {
		return err
	}
	entries := []storage.Entry{
		{Key: l.balanceKey(to), Value: encodeAmount(new(big.Int).Add(bal, amount))},
		{Key: l.supplyKey(), Value: encodeAmount(new(big.Int).Add(supply, amount))},
	}
	return l.db.PutBatch(entries)
}

// Burn destroys units held by the given account.
func (c *MinterCap) Burn(from common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return errInvalidAmount
	}
	l := c.ledger
	l.mu.Lock()
	defer l.mu.Unlock()

	bal, err := l.readAmount(l.balanceKey(from))
	if err != nil {
		return err
	}
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s has %s, burns %s", errInsufficientBalance, from.Hex(), bal, amount)
	}
	supply, err := l.readAmount(l.supplyKey())
	if err != nil {
		return err
	}
	if supply.Cmp(amount) < 0 {
		return fmt.Errorf("%w: supply %s below burn %s", errInsufficientBalance, supply, amount)
	}
	entries := []storage.Entry{
		{Key: l.balanceKey(from), Value: encodeAmount(new(big.Int).Sub(bal, amount))},
		{Key: l.supplyKey(), Value: encodeAmount(new(big.Int).Sub(supply, amount))},
	}
	return l.db.PutBatch(entries)
}

// Transfer forwards to the underlying ledger.
func (c *MinterCap) Transfer(from, to common.Address, amount *big.Int) error {
	return c.ledger.Transfer(from, to, amount)
}

func (l *Ledger) balanceKey(addr common.Address) []byte {
	return []byte("tok/" + l.symbol + "/bal/" + addr.Hex())
}

func (l *Ledger) supplyKey() []byte {
	return []byte("tok/" + l.symbol + "/supply")
}

func (l *Ledger) readAmount(key []byte) (*big.Int, error) {
	raw, err := l.db.Get(key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return big.NewInt(0), nil
		}
		return nil, err
	}
	return decodeAmount(raw)
}

func encodeAmount(v *big.Int) []byte {
	raw, _ := json.Marshal(v.String())
	return raw
}

func decodeAmount(raw []byte) (*big.Int, error) {
	var rendered string
	if err := json.Unmarshal(raw, &rendered); err != nil {
		return nil, fmt.Errorf("token: decode amount: %w", err)
	}
	v, ok := new(big.Int).SetString(rendered, 10)
	if !ok {
		return nil, fmt.Errorf("token: invalid amount %q", rendered)
	}
	return v, nil
}
