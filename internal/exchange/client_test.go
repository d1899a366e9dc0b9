package exchange

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	ccxt "github.com/ccxt/ccxt/go/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"trades-signal/internal/config"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

type fakePositionsAPI struct {
	mu        sync.Mutex
	calls     int
	failTimes int
	failWith  error
	positions []ccxt.Position
}

func (f *fakePositionsAPI) FetchPositions(options ...ccxt.FetchPositionsOptions) ([]ccxt.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failTimes {
		return nil, f.failWith
	}
	return f.positions, nil
}

func testExchangeConfig() config.ExchangeConfig {
	return config.ExchangeConfig{
		Category:     "linear",
		SettleCoin:   "USDT",
		RefetchRate:  100,
		RefetchBurst: 4,
		Retry: config.RetryConfig{
			MaxAttempts: 3,
			MinDelay:    time.Millisecond,
			MaxDelay:    2 * time.Millisecond,
		},
	}
}

func infoPosition(symbol, side, size, avg string) ccxt.Position {
	return ccxt.Position{Info: map[string]interface{}{
		"symbol":   symbol,
		"side":     side,
		"size":     size,
		"avgPrice": avg,
	}}
}

func TestClientFetchPositions_FiltersBySymbol(t *testing.T) {
	api := &fakePositionsAPI{positions: []ccxt.Position{
		infoPosition("BTCUSDT", "Buy", "0.5", "60000"),
		infoPosition("ETHUSDT", "Sell", "2", "3000"),
		{},
	}}
	loads := 0
	client := newClient(testExchangeConfig(), api, func() error { loads++; return nil }, zap.NewNop())

	rows, err := client.FetchPositions(context.Background(), "ETHUSDT")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "ETHUSDT", rows[0].Symbol)
	assert.Equal(t, "SELL", rows[0].Side)

	all, err := client.FetchPositions(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Equal(t, 1, loads, "markets are loaded once")
}

func TestClientFetchPositions_RetriesTransientErrors(t *testing.T) {
	api := &fakePositionsAPI{
		failTimes: 2,
		failWith:  timeoutErr{},
		positions: []ccxt.Position{infoPosition("BTCUSDT", "Buy", "1", "100")},
	}
	client := newClient(testExchangeConfig(), api, nil, zap.NewNop())

	rows, err := client.FetchPositions(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.Equal(t, 3, api.calls)
}

func TestClientFetchPositions_PermanentErrorStops(t *testing.T) {
	api := &fakePositionsAPI{failTimes: 10, failWith: errors.New("invalid symbol")}
	client := newClient(testExchangeConfig(), api, nil, zap.NewNop())

	_, err := client.FetchPositions(context.Background(), "BTCUSDT")
	require.Error(t, err)
	assert.Equal(t, 1, api.calls)
}

func TestClientFetchPositions_MarketLoadFailure(t *testing.T) {
	api := &fakePositionsAPI{}
	client := newClient(testExchangeConfig(), api, func() error { return errors.New("boom") }, zap.NewNop())

	_, err := client.FetchPositions(context.Background(), "")
	require.Error(t, err)
	assert.Equal(t, 0, api.calls)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(timeoutErr{}))
	assert.False(t, IsRetryable(context.Canceled))
	assert.False(t, IsRetryable(errors.New("plain")))
	assert.False(t, IsRetryable(nil))
}
