package stable

import (
	"github.com/ethereum/go-ethereum/common"
)

// Registry is the immutable list of accepted collateral assets and their
// price feeds. It is built once at construction and shared read-only by all
// engine operations; no asset may be added or removed afterwards.
type Registry struct {
	order []common.Address
	token map[common.Address]CollateralToken
	feed  map[common.Address]*FeedAdapter
}

// NewRegistry pairs each collateral token with its price feed. The two lists
// must be the same length and free of duplicate asset addresses.
func NewRegistry(tokens []CollateralToken, feeds []*FeedAdapter) (*Registry, error) {
	if len(tokens) != len(feeds) {
		return nil, ErrTokenFeedMismatch
	}
	if len(tokens) == 0 {
		return nil, ErrEmptyRegistry
	}
	reg := &Registry{
		order: make([]common.Address, 0, len(tokens)),
		token: make(map[common.Address]CollateralToken, len(tokens)),
		feed:  make(map[common.Address]*FeedAdapter, len(tokens)),
	}
	for i, token := range tokens {
		if token == nil || feeds[i] == nil {
			return nil, ErrTokenFeedMismatch
		}
		asset := token.Address()
		if _, exists := reg.token[asset]; exists {
			return nil, ErrDuplicateAsset
		}
		reg.order = append(reg.order, asset)
		reg.token[asset] = token
		reg.feed[asset] = feeds[i]
	}
	return reg, nil
}

// Assets returns the accepted asset addresses in registration order.
func (r *Registry) Assets() []common.Address {
	if r == nil {
		return nil
	}
	return append([]common.Address(nil), r.order...)
}

// Token resolves the collateral token handle for an asset.
func (r *Registry) Token(asset common.Address) (CollateralToken, bool) {
	if r == nil {
		return nil, false
	}
	token, ok := r.token[asset]
	return token, ok
}

// Feed resolves the validated price feed adapter for an asset.
func (r *Registry) Feed(asset common.Address) (*FeedAdapter, bool) {
	if r == nil {
		return nil, false
	}
	feed, ok := r.feed[asset]
	return feed, ok
}

// Has reports whether the asset is accepted collateral.
func (r *Registry) Has(asset common.Address) bool {
	if r == nil {
		return false
	}
	_, ok := r.token[asset]
	return ok
}
