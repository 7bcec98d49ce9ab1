package stable

import (
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"time"
)

// HTTPDoer abstracts http.Client for ease of testing.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPFeed polls a JSON endpoint exposing Chainlink-shaped round data:
//
//	{"roundId": 42, "answer": "200000000000",
//	 "startedAt": 1700000000, "updatedAt": 1700000120, "answeredInRound": 42}
//
// The answer is the raw 8-decimal price rendered as a decimal string.
type HTTPFeed struct {
	client   HTTPDoer
	endpoint string
}

// NewHTTPFeed constructs an HTTP price feed. When client is nil
// http.DefaultClient is used.
func NewHTTPFeed(client HTTPDoer, endpoint string) *HTTPFeed {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPFeed{client: client, endpoint: strings.TrimSpace(endpoint)}
}

// Source reports the polled endpoint URL.
func (f *HTTPFeed) Source() string {
	if f == nil {
		return ""
	}
	return f.endpoint
}

// LatestRoundData fetches and decodes the latest round from the endpoint.
func (f *HTTPFeed) LatestRoundData() (RoundData, error) {
	if f == nil || f.endpoint == "" {
		return RoundData{}, fmt.Errorf("http feed: endpoint not configured")
	}
	req, err := http.NewRequest(http.MethodGet, f.endpoint, nil)
	if err != nil {
		return RoundData{}, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := f.client.Do(req)
	if err != nil {
		return RoundData{}, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return RoundData{}, fmt.Errorf("http feed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var payload struct {
		RoundID         uint64 `json:"roundId"`
		Answer          string `json:"answer"`
		StartedAt       int64  `json:"startedAt"`
		UpdatedAt       int64  `json:"updatedAt"`
		AnsweredInRound uint64 `json:"answeredInRound"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return RoundData{}, fmt.Errorf("http feed: decode: %w", err)
	}
	answer, ok := new(big.Int).SetString(strings.TrimSpace(payload.Answer), 10)
	if !ok {
		return RoundData{}, fmt.Errorf("http feed: invalid answer %q", payload.Answer)
	}
	round := RoundData{
		RoundID:         payload.RoundID,
		Answer:          answer,
		AnsweredInRound: payload.AnsweredInRound,
	}
	if payload.StartedAt > 0 {
		round.StartedAt = time.Unix(payload.StartedAt, 0)
	}
	if payload.UpdatedAt > 0 {
		round.UpdatedAt = time.Unix(payload.UpdatedAt, 0)
	}
	return round, nil
}
