package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"synthd/native/stable"
	"synthd/native/token"
	"synthd/storage"
)

type testStack struct {
	server  *httptest.Server
	feed    *stable.StaticFeed
	weth    common.Address
	user    common.Address
	custody common.Address
}

func newTestStack(t *testing.T) *testStack {
	t.Helper()
	db := storage.NewMemDB()
	custody := common.HexToAddress("0x00000000000000000000000000000000000D5CED")
	user := common.HexToAddress("0x0000000000000000000000000000000000000001")

	weth := token.NewLedger(db, "WETH", common.HexToAddress("0x0000000000000000000000000000000000000E01"))
	wethMinter, err := weth.GrantMinter()
	require.NoError(t, err)
	require.NoError(t, wethMinter.Mint(user, e18(100)))

	feed := stable.NewStaticFeed(price8(2000), time.Now())
	registry, err := stable.NewRegistry(
		[]stable.CollateralToken{weth},
		[]*stable.FeedAdapter{stable.NewFeedAdapter(feed)},
	)
	require.NoError(t, err)

	dsc := token.NewLedger(db, "DSC", common.HexToAddress("0x00000000000000000000000000000000000D5C00"))
	dscMinter, err := dsc.GrantMinter()
	require.NoError(t, err)

	engine := stable.NewEngine(custody, registry, dscMinter)
	engine.SetState(stable.NewPositionStore(db))

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := httptest.NewServer(New(engine, log).Handler())
	t.Cleanup(srv.Close)

	return &testStack{server: srv, feed: feed, weth: weth.Address(), user: user, custody: custody}
}

func e18(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000_000_000_000_000))
}

func price8(dollars int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(dollars), big.NewInt(100_000_000))
}

func (ts *testStack) post(t *testing.T, path, body string) (int, map[string]string) {
	t.Helper()
	resp, err := http.Post(ts.server.URL+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	var payload map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	return resp.StatusCode, payload
}

func (ts *testStack) get(t *testing.T, path string, out any) int {
	t.Helper()
	resp, err := http.Get(ts.server.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	return resp.StatusCode
}

func TestHealthz(t *testing.T) {
	ts := newTestStack(t)
	resp, err := http.Get(ts.server.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, "ok", string(body))
	require.NotEmpty(t, resp.Header.Get("X-Request-Id"))
}

func TestDepositAndAccountQuery(t *testing.T) {
	ts := newTestStack(t)

	status, payload := ts.post(t, "/v1/deposit", `{
		"account": "`+ts.user.Hex()+`",
		"asset": "`+ts.weth.Hex()+`",
		"amount": "`+e18(15).String()+`"
	}`)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "ok", payload["status"])

	var account map[string]string
	status = ts.get(t, "/v1/accounts/"+ts.user.Hex(), &account)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, e18(30_000).String(), account["collateralValueUsd"])
	require.Equal(t, "0", account["debt"])

	var balance map[string]string
	status = ts.get(t, "/v1/accounts/"+ts.user.Hex()+"/collateral/"+ts.weth.Hex(), &balance)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, e18(15).String(), balance["balance"])
}

func TestMintBreakingHealthFactorConflicts(t *testing.T) {
	ts := newTestStack(t)

	status, _ := ts.post(t, "/v1/deposit", `{
		"account": "`+ts.user.Hex()+`",
		"asset": "`+ts.weth.Hex()+`",
		"amount": "`+e18(1).String()+`"
	}`)
	require.Equal(t, http.StatusOK, status)

	status, payload := ts.post(t, "/v1/mint", `{
		"account": "`+ts.user.Hex()+`",
		"amount": "`+e18(2000).String()+`"
	}`)
	require.Equal(t, http.StatusConflict, status)
	require.Equal(t, "500000000000000000", payload["healthFactor"])
}

func TestDepositAndMintComposition(t *testing.T) {
	ts := newTestStack(t)

	status, payload := ts.post(t, "/v1/deposit-and-mint", `{
		"account": "`+ts.user.Hex()+`",
		"asset": "`+ts.weth.Hex()+`",
		"collateralAmount": "`+e18(15).String()+`",
		"mintAmount": "`+e18(2000).String()+`"
	}`)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "ok", payload["status"])

	var account map[string]string
	ts.get(t, "/v1/accounts/"+ts.user.Hex(), &account)
	require.Equal(t, e18(2000).String(), account["debt"])
	require.Equal(t, "7500000000000000000", account["healthFactor"])

	var solvency map[string]string
	status = ts.get(t, "/v1/solvency", &solvency)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, e18(30_000).String(), solvency["totalCollateralValueUsd"])
	require.Equal(t, e18(2000).String(), solvency["totalDebt"])
}

func TestStalePriceUnavailable(t *testing.T) {
	ts := newTestStack(t)
	ts.feed.SetAnswer(price8(2000), time.Now().Add(-4*time.Hour))

	var quote map[string]string
	status := ts.get(t, "/v1/quotes/usd-value?asset="+ts.weth.Hex()+"&amount="+e18(1).String(), &quote)
	require.Equal(t, http.StatusServiceUnavailable, status)
	require.Contains(t, quote["error"], "stale")
}

func TestQuotes(t *testing.T) {
	ts := newTestStack(t)

	var quote map[string]string
	status := ts.get(t, "/v1/quotes/usd-value?asset="+ts.weth.Hex()+"&amount="+e18(15).String(), &quote)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, e18(30_000).String(), quote["usdValue"])

	status = ts.get(t, "/v1/quotes/token-amount?asset="+ts.weth.Hex()+"&usd="+e18(1000).String(), &quote)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "500000000000000000", quote["tokenAmount"])
}

func TestListAssets(t *testing.T) {
	ts := newTestStack(t)

	var payload struct {
		Assets []struct {
			Address     string `json:"address"`
			FeedSource  string `json:"feedSource"`
			FeedTimeout string `json:"feedTimeout"`
		} `json:"assets"`
		MinHealthFactor string `json:"minHealthFactor"`
	}
	status := ts.get(t, "/v1/assets", &payload)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, payload.Assets, 1)
	require.Equal(t, ts.weth.Hex(), payload.Assets[0].Address)
	require.Equal(t, "static", payload.Assets[0].FeedSource)
	require.Equal(t, "3h0m0s", payload.Assets[0].FeedTimeout)
	require.Equal(t, "1000000000000000000", payload.MinHealthFactor)
}

func TestConcurrentDepositsAllSucceed(t *testing.T) {
	ts := newTestStack(t)
	const workers = 8
	body := `{
		"account": "` + ts.user.Hex() + `",
		"asset": "` + ts.weth.Hex() + `",
		"amount": "` + e18(1).String() + `"
	}`

	statuses := make(chan int, workers)
	for i := 0; i < workers; i++ {
		go func() {
			resp, err := http.Post(ts.server.URL+"/v1/deposit", "application/json", strings.NewReader(body))
			if err != nil {
				statuses <- 0
				return
			}
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			statuses <- resp.StatusCode
		}()
	}
	for i := 0; i < workers; i++ {
		require.Equal(t, http.StatusOK, <-statuses)
	}

	var balance map[string]string
	status := ts.get(t, "/v1/accounts/"+ts.user.Hex()+"/collateral/"+ts.weth.Hex(), &balance)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, e18(workers).String(), balance["balance"])
}

func TestBadRequests(t *testing.T) {
	ts := newTestStack(t)

	status, payload := ts.post(t, "/v1/deposit", `{
		"account": "not-an-address",
		"asset": "`+ts.weth.Hex()+`",
		"amount": "1"
	}`)
	require.Equal(t, http.StatusBadRequest, status)
	require.Contains(t, payload["error"], "address")

	status, _ = ts.post(t, "/v1/deposit", `{
		"account": "`+ts.user.Hex()+`",
		"asset": "`+ts.weth.Hex()+`",
		"amount": "-5"
	}`)
	require.Equal(t, http.StatusBadRequest, status)

	status, _ = ts.post(t, "/v1/deposit", `{
		"account": "`+ts.user.Hex()+`",
		"asset": "`+ts.weth.Hex()+`",
		"amount": "1",
		"unknown": "field"
	}`)
	require.Equal(t, http.StatusBadRequest, status)
}

func TestUnsupportedAssetRejected(t *testing.T) {
	ts := newTestStack(t)
	other := common.HexToAddress("0x0000000000000000000000000000000000000099")

	status, payload := ts.post(t, "/v1/deposit", `{
		"account": "`+ts.user.Hex()+`",
		"asset": "`+other.Hex()+`",
		"amount": "`+e18(1).String()+`"
	}`)
	require.Equal(t, http.StatusBadRequest, status)
	require.Contains(t, payload["error"], "asset not supported")
}

func TestLiquidateEndToEnd(t *testing.T) {
	ts := newTestStack(t)
	liquidator := common.HexToAddress("0x0000000000000000000000000000000000000002")

	status, _ := ts.post(t, "/v1/deposit-and-mint", `{
		"account": "`+ts.user.Hex()+`",
		"asset": "`+ts.weth.Hex()+`",
		"collateralAmount": "`+e18(1).String()+`",
		"mintAmount": "`+e18(900).String()+`"
	}`)
	require.Equal(t, http.StatusOK, status)

	// Healthy targets cannot be liquidated.
	status, _ = ts.post(t, "/v1/liquidate", `{
		"liquidator": "`+liquidator.Hex()+`",
		"asset": "`+ts.weth.Hex()+`",
		"account": "`+ts.user.Hex()+`",
		"debtToCover": "`+e18(100).String()+`"
	}`)
	require.Equal(t, http.StatusConflict, status)

	// A price crash opens the position for liquidation; the liquidator
	// funds the cover with DSC received from the target.
	ts.feed.SetAnswer(price8(1000), time.Now())
	status, _ = ts.post(t, "/v1/liquidate", `{
		"liquidator": "`+ts.user.Hex()+`",
		"asset": "`+ts.weth.Hex()+`",
		"account": "`+ts.user.Hex()+`",
		"debtToCover": "`+e18(500).String()+`"
	}`)
	// Self-liquidation must leave the caller healthy, which it does not.
	require.Equal(t, http.StatusConflict, status)
}
