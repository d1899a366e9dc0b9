package report

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"trades-signal/internal/ledger"
	"trades-signal/internal/store"
)

func newDealLedger(t *testing.T) *ledger.Ledger {
	t.Helper()
	st, err := store.NewMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	l, err := ledger.NewLedger(st, zap.NewNop())
	require.NoError(t, err)
	return l
}

func closeDeal(t *testing.T, l *ledger.Ledger, id int64, symbol, side string, fills ledger.Fills, endTS time.Time) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, l.EnsureDeal(ctx, ledger.Shell{ID: id, Symbol: symbol, Side: side, StartTS: endTS.Unix() - 60}))
	require.NoError(t, l.Apply(ctx, id, fills))
	_, err := l.Finalize(ctx, id, endTS.Unix())
	require.NoError(t, err)
}

func TestWindow_FixedOffset(t *testing.T) {
	now := time.Date(2024, 3, 10, 22, 30, 0, 0, time.UTC)
	start, end := Window(now, 3)
	assert.Equal(t, time.Date(2024, 3, 10, 21, 0, 0, 0, time.UTC), start.UTC())
	assert.Equal(t, time.Date(2024, 3, 11, 21, 0, 0, 0, time.UTC), end.UTC())
}

func TestDaily_BoundaryDealInExactlyOneDay(t *testing.T) {
	l := newDealLedger(t)
	boundary := time.Date(2024, 3, 9, 21, 0, 0, 0, time.UTC)
	closeDeal(t, l, 80001, "BTCUSDT", "BUY", ledger.Fills{
		BuyQty: dec("1"), BuyVal: dec("100"), SellQty: dec("1"), SellVal: dec("110"),
	}, boundary)

	daily := NewDaily(l, 200)

	daily.now = func() time.Time { return time.Date(2024, 3, 10, 10, 0, 0, 0, time.UTC) }
	today, err := daily.Build(context.Background(), 3)
	require.NoError(t, err)

	daily.now = func() time.Time { return time.Date(2024, 3, 9, 10, 0, 0, 0, time.UTC) }
	yesterday, err := daily.Build(context.Background(), 3)
	require.NoError(t, err)

	assert.Equal(t, 1, today.Deals+yesterday.Deals)
	assert.Equal(t, 1, today.Deals, "local midnight belongs to the day it starts")
}

func TestDaily_RendersDealsAndTotals(t *testing.T) {
	l := newDealLedger(t)
	base := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	closeDeal(t, l, 80002, "ETHUSDT", "SELL", ledger.Fills{
		SellQty: dec("2"), SellVal: dec("6000"), BuyQty: dec("2"), BuyVal: dec("6100"), Fees: dec("1.5"),
	}, base.Add(time.Hour))
	closeDeal(t, l, 80001, "BTCUSDT", "BUY", ledger.Fills{
		BuyQty: dec("0.5"), BuyVal: dec("30000"), SellQty: dec("0.5"), SellVal: dec("30500"),
	}, base)

	daily := NewDaily(l, 200)
	daily.now = func() time.Time { return base.Add(2 * time.Hour) }

	report, err := daily.Build(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Deals)
	assert.Equal(t, "398.50", report.TotalPnL.StringFixed(2))

	want := "🟢 今日已平仓交易统计:\n\n" +
		"1 BTCUSDT\n• 方向: Buy (多)\n• 数量: 0.5\n• 开仓价: 60000.00 USDT\n• 平仓价: 61000.00 USDT\n• 盈利 (PnL): $500.00\n\n" +
		"2 ETHUSDT\n• 方向: Sell (空)\n• 数量: 2\n• 开仓价: 3000.00 USDT\n• 平仓价: 3050.00 USDT\n• 亏损 (PnL): -$101.50\n\n" +
		"— 已平仓交易合计:\n• 交易数: 2\n• 总 PnL: $398.50"
	assert.Equal(t, want, report.Text)
}

func TestDaily_Empty(t *testing.T) {
	daily := NewDaily(newDealLedger(t), 200)
	report, err := daily.Build(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Deals)
	assert.Equal(t, "🟢 今日已平仓交易统计:\n\n暂无已平仓交易。", report.Text)
}

func TestIsLong_FallsBackToQuantities(t *testing.T) {
	assert.True(t, isLong(ledger.Deal{Side: "buy"}))
	assert.False(t, isLong(ledger.Deal{Side: "SELL", Fills: ledger.Fills{BuyQty: dec("5")}}))
	assert.True(t, isLong(ledger.Deal{Fills: ledger.Fills{BuyQty: dec("2"), SellQty: dec("1")}}))
	assert.False(t, isLong(ledger.Deal{Fills: ledger.Fills{BuyQty: dec("1"), SellQty: dec("2")}}))
}
