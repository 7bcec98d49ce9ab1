package stable

import (
	"math/big"
	"sync"
	"time"
)

// StaticFeed is a manually driven price source. It serves local tooling and
// test rigs where no upstream feed is available; operators push rounds into
// it and readers observe the most recent one.
type StaticFeed struct {
	mu    sync.RWMutex
	round RoundData
}

// NewStaticFeed seeds a static feed with an initial 8-decimal answer stamped
// at the supplied time.
func NewStaticFeed(answer *big.Int, updatedAt time.Time) *StaticFeed {
	feed := &StaticFeed{}
	feed.SetRound(RoundData{
		RoundID:         1,
		Answer:          answer,
		StartedAt:       updatedAt,
		UpdatedAt:       updatedAt,
		AnsweredInRound: 1,
	})
	return feed
}

// SetRound replaces the stored round.
func (f *StaticFeed) SetRound(round RoundData) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if round.Answer != nil {
		round.Answer = new(big.Int).Set(round.Answer)
	}
	f.round = round
}

// SetAnswer advances the feed to a new round carrying the given answer.
func (f *StaticFeed) SetAnswer(answer *big.Int, updatedAt time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.round.RoundID++
	f.round.AnsweredInRound = f.round.RoundID
	if answer != nil {
		f.round.Answer = new(big.Int).Set(answer)
	}
	f.round.StartedAt = updatedAt
	f.round.UpdatedAt = updatedAt
}

// Source identifies the feed as operator-driven.
func (f *StaticFeed) Source() string { return "static" }

// LatestRoundData returns a copy of the stored round.
func (f *StaticFeed) LatestRoundData() (RoundData, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	round := f.round
	if round.Answer != nil {
		round.Answer = new(big.Int).Set(round.Answer)
	}
	return round, nil
}
