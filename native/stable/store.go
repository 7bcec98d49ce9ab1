package stable

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"synthd/storage"
)

const positionPrefix = "pos/"

// PositionStore persists positions in the key-value store, one record per
// account under a common prefix. It satisfies EngineState, so the engine can
// run against LevelDB in a deployment and MemDB in tests through the same
// wiring.
type PositionStore struct {
	db storage.Database
}

// NewPositionStore wraps the database with the position codec.
func NewPositionStore(db storage.Database) *PositionStore {
	return &PositionStore{db: db}
}

type positionRecord struct {
	Address    string            `json:"address"`
	Collateral map[string]string `json:"collateral,omitempty"`
	Debt       string            `json:"debt"`
}

// Position loads one account's position, or nil when none is recorded.
func (s *PositionStore) Position(addr common.Address) (*Position, error) {
	raw, err := s.db.Get(positionKey(addr))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return decodePosition(raw)
}

// PutPosition writes one account's position. Records with no collateral and
// no debt are deleted so an emptied position is indistinguishable from an
// absent one.
func (s *PositionStore) PutPosition(pos *Position) error {
	if pos == nil {
		return fmt.Errorf("stable store: nil position")
	}
	if emptyPosition(pos) {
		return s.db.Delete(positionKey(pos.Address))
	}
	raw, err := encodePosition(pos)
	if err != nil {
		return err
	}
	return s.db.Put(positionKey(pos.Address), raw)
}

// Positions loads every recorded position in key order.
func (s *PositionStore) Positions() ([]*Position, error) {
	var out []*Position
	err := s.db.Iterate([]byte(positionPrefix), func(_, value []byte) error {
		pos, err := decodePosition(value)
		if err != nil {
			return err
		}
		out = append(out, pos)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func positionKey(addr common.Address) []byte {
	return []byte(positionPrefix + addr.Hex())
}

func emptyPosition(pos *Position) bool {
	if pos.Debt != nil && pos.Debt.Sign() > 0 {
		return false
	}
	for _, amount := range pos.Collateral {
		if amount != nil && amount.Sign() > 0 {
			return false
		}
	}
	return true
}

func encodePosition(pos *Position) ([]byte, error) {
	record := positionRecord{Address: pos.Address.Hex(), Debt: "0"}
	if pos.Debt != nil {
		record.Debt = pos.Debt.String()
	}
	if len(pos.Collateral) > 0 {
		record.Collateral = make(map[string]string, len(pos.Collateral))
		assets := make([]common.Address, 0, len(pos.Collateral))
		for asset := range pos.Collateral {
			assets = append(assets, asset)
		}
		sort.Slice(assets, func(i, j int) bool {
			return assets[i].Hex() < assets[j].Hex()
		})
		for _, asset := range assets {
			amount := pos.Collateral[asset]
			if amount == nil || amount.Sign() == 0 {
				continue
			}
			record.Collateral[asset.Hex()] = amount.String()
		}
	}
	return json.Marshal(record)
}

func decodePosition(raw []byte) (*Position, error) {
	var record positionRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("stable store: decode position: %w", err)
	}
	if !common.IsHexAddress(record.Address) {
		return nil, fmt.Errorf("stable store: invalid address %q", record.Address)
	}
	pos := &Position{
		Address:    common.HexToAddress(record.Address),
		Collateral: make(map[common.Address]*big.Int, len(record.Collateral)),
		Debt:       big.NewInt(0),
	}
	if record.Debt != "" {
		debt, ok := new(big.Int).SetString(record.Debt, 10)
		if !ok || debt.Sign() < 0 {
			return nil, fmt.Errorf("stable store: invalid debt %q", record.Debt)
		}
		pos.Debt = debt
	}
	for asset, rendered := range record.Collateral {
		if !common.IsHexAddress(asset) {
			return nil, fmt.Errorf("stable store: invalid asset %q", asset)
		}
		amount, ok := new(big.Int).SetString(rendered, 10)
		if !ok || amount.Sign() < 0 {
			return nil, fmt.Errorf("stable store: invalid amount %q for asset %s", rendered, asset)
		}
		pos.Collateral[common.HexToAddress(asset)] = amount
	}
	return pos, nil
}
