package ledger

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"trades-signal/internal/store"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	st, err := store.NewMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	l, err := NewLedger(st, zap.NewNop())
	require.NoError(t, err)
	return l
}

func TestLedger_EnsureDealDoesNotOverwrite(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)

	shell := Shell{ID: 80001, Symbol: "BTCUSDT", Side: "BUY", StartTS: 100}
	require.NoError(t, l.EnsureDeal(ctx, shell))
	require.NoError(t, l.Apply(ctx, 80001, Fills{BuyQty: dec("1"), BuyVal: dec("100")}))

	require.NoError(t, l.EnsureDeal(ctx, Shell{ID: 80001, Symbol: "ETHUSDT", Side: "SELL", StartTS: 999}))

	deal, err := l.Get(ctx, 80001)
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", deal.Symbol)
	assert.Equal(t, "BUY", deal.Side)
	assert.Equal(t, int64(100), deal.StartTS)
	assert.True(t, deal.BuyVal.Equal(dec("100")))
	assert.Equal(t, StatusOpen, deal.Status)
	assert.False(t, deal.HasPnL)
}

func TestLedger_ApplyExecutionAccumulates(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	shell := Shell{ID: 80002, Symbol: "XYZ", Side: "BUY", StartTS: 1}

	require.NoError(t, l.ApplyExecution(ctx, shell, "Buy", dec("10.10"), dec("1"), dec("0.01")))
	require.NoError(t, l.ApplyExecution(ctx, shell, "Buy", dec("20.20"), dec("2"), dec("0")))
	require.NoError(t, l.ApplyExecution(ctx, shell, "Sell", dec("33.33"), dec("3"), dec("-5")))

	deal, err := l.Get(ctx, 80002)
	require.NoError(t, err)
	assert.True(t, deal.BuyVal.Equal(dec("30.30")))
	assert.True(t, deal.BuyQty.Equal(dec("3")))
	assert.True(t, deal.SellVal.Equal(dec("33.33")))
	assert.True(t, deal.SellQty.Equal(dec("3")))
	assert.True(t, deal.Fees.Equal(dec("0.01")), "non-positive fees are ignored")
}

func TestLedger_ApplyUnknownDeal(t *testing.T) {
	l := newTestLedger(t)
	err := l.Apply(context.Background(), 1, Fills{BuyVal: dec("1")})
	assert.ErrorIs(t, err, ErrDealNotFound)
}

func TestLedger_FinalizeComputesTruncatedPnL(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	shell := Shell{ID: 80003, Symbol: "BTCUSDT", Side: "BUY", StartTS: 1}

	require.NoError(t, l.ApplyExecution(ctx, shell, "Buy", dec("30000"), dec("0.5"), dec("12.006")))
	require.NoError(t, l.ApplyExecution(ctx, shell, "Sell", dec("30500"), dec("0.5"), dec("12.2")))

	pnl, err := l.Finalize(ctx, 80003, 500)
	require.NoError(t, err)
	assert.Equal(t, "475.79", pnl.StringFixed(2))

	deal, err := l.Get(ctx, 80003)
	require.NoError(t, err)
	assert.True(t, deal.Closed())
	assert.Equal(t, int64(500), deal.EndTS)
	assert.True(t, deal.HasPnL)
	assert.True(t, deal.PnL.Equal(dec("475.79")))
}

func TestLedger_FinalizeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	shell := Shell{ID: 80004, Symbol: "BTCUSDT", Side: "SELL", StartTS: 1}

	require.NoError(t, l.ApplyExecution(ctx, shell, "Sell", dec("100"), dec("1"), decimal.Zero))
	require.NoError(t, l.ApplyExecution(ctx, shell, "Buy", dec("90"), dec("1"), decimal.Zero))

	first, err := l.Finalize(ctx, 80004, 10)
	require.NoError(t, err)
	second, err := l.Finalize(ctx, 80004, 20)
	require.NoError(t, err)
	assert.True(t, first.Equal(second))

	deal, err := l.Get(ctx, 80004)
	require.NoError(t, err)
	assert.Equal(t, int64(10), deal.EndTS, "second finalize must not mutate")

	err = l.Apply(ctx, 80004, Fills{BuyVal: dec("1")})
	assert.ErrorIs(t, err, ErrDealClosed)
}

func TestLedger_OpenThenCloseWithoutExecutions(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	require.NoError(t, l.EnsureDeal(ctx, Shell{ID: 80005, Symbol: "ETHUSDT", Side: "BUY", StartTS: 1}))

	pnl, err := l.Finalize(ctx, 80005, 2)
	require.NoError(t, err)
	assert.Equal(t, "0.00", pnl.StringFixed(2))
}

func TestLedger_FinalizeMissingDeal(t *testing.T) {
	_, err := newTestLedger(t).Finalize(context.Background(), 42, 1)
	assert.ErrorIs(t, err, ErrDealNotFound)
}

func TestLedger_ClosedBetweenAndMax(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)

	maxID, err := l.MaxDealID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), maxID)

	for i, endTS := range []int64{300, 100, 200, 400} {
		id := int64(80010 + i)
		require.NoError(t, l.EnsureDeal(ctx, Shell{ID: id, Symbol: "BTCUSDT", StartTS: 1}))
		_, err := l.Finalize(ctx, id, endTS)
		require.NoError(t, err)
	}
	require.NoError(t, l.EnsureDeal(ctx, Shell{ID: 80020, Symbol: "OPEN", StartTS: 1}))

	deals, err := l.ClosedBetween(ctx, 100, 400, 0)
	require.NoError(t, err)
	require.Len(t, deals, 3)
	assert.Equal(t, []int64{100, 200, 300}, []int64{deals[0].EndTS, deals[1].EndTS, deals[2].EndTS})

	limited, err := l.ClosedBetween(ctx, 0, 1000, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	maxID, err = l.MaxDealID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(80020), maxID)
}
