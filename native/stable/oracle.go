package stable

import (
	"errors"
	"fmt"
	"math/big"
	"time"
)

// FeedTimeout is the maximum tolerated age of a price quote. Quotes older
// than this are rejected with ErrStalePrice.
const FeedTimeout = 3 * time.Hour

var (
	// ErrStalePrice indicates the upstream feed has not produced a fresh,
	// fully answered round within the freshness window.
	ErrStalePrice = errors.New("stable oracle: stale price")
	// ErrInvalidPrice indicates a fresh quote carried a non-positive
	// answer, which cannot be used for collateral valuation.
	ErrInvalidPrice = errors.New("stable oracle: non-positive price")
)

// RoundData captures a single quote from a price source. Answer is the raw
// signed price in the feed's native 8-decimal scale.
type RoundData struct {
	RoundID         uint64
	Answer          *big.Int
	StartedAt       time.Time
	UpdatedAt       time.Time
	AnsweredInRound uint64
}

// PriceFeed resolves the latest quote for a single asset. Implementations
// are polled synchronously on every price-dependent engine call; there is no
// push model and no caching. Source identifies where quotes come from, for
// example the feed endpoint URL.
type PriceFeed interface {
	LatestRoundData() (RoundData, error)
	Source() string
}

// FeedAdapter is a stateless validation wrapper around a PriceFeed. It
// rejects never-populated, carried-over, and aged-out rounds before handing
// the raw answer to the caller. Sign and magnitude checks remain the
// caller's responsibility.
type FeedAdapter struct {
	feed  PriceFeed
	clock func() time.Time
}

// NewFeedAdapter wraps the provided feed with staleness validation.
func NewFeedAdapter(feed PriceFeed) *FeedAdapter {
	return &FeedAdapter{feed: feed, clock: time.Now}
}

// SetClock overrides the time source used for staleness checks.
func (a *FeedAdapter) SetClock(clock func() time.Time) {
	if a == nil || clock == nil {
		return
	}
	a.clock = clock
}

// Timeout returns the configured staleness window.
func (a *FeedAdapter) Timeout() time.Duration { return FeedTimeout }

// Source reports the wrapped feed's source identifier.
func (a *FeedAdapter) Source() string {
	if a == nil || a.feed == nil {
		return ""
	}
	return a.feed.Source()
}

// LatestPrice fetches and validates the latest round, returning the raw
// signed answer unmodified.
func (a *FeedAdapter) LatestPrice() (*big.Int, error) {
	if a == nil || a.feed == nil {
		return nil, fmt.Errorf("stable oracle: feed not configured")
	}
	round, err := a.feed.LatestRoundData()
	if err != nil {
		return nil, fmt.Errorf("stable oracle: fetch round: %w", err)
	}
	if round.UpdatedAt.IsZero() {
		return nil, ErrStalePrice
	}
	if round.AnsweredInRound < round.RoundID {
		return nil, ErrStalePrice
	}
	if a.clock().Sub(round.UpdatedAt) > FeedTimeout {
		return nil, ErrStalePrice
	}
	if round.Answer == nil {
		return nil, ErrInvalidPrice
	}
	return new(big.Int).Set(round.Answer), nil
}
