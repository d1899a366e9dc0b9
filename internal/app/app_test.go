package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"trades-signal/internal/config"
	"trades-signal/internal/exchange"
	"trades-signal/internal/ledger"
	"trades-signal/internal/monitor"
	"trades-signal/internal/notify"
	"trades-signal/internal/position"
	"trades-signal/internal/store"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type fakeFetcher struct {
	mu   sync.Mutex
	rows map[string]exchange.PositionRow
}

func (f *fakeFetcher) set(row exchange.PositionRow) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[row.Symbol] = row
}

func (f *fakeFetcher) FetchPositions(_ context.Context, symbol string) ([]exchange.PositionRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []exchange.PositionRow
	for sym, row := range f.rows {
		if symbol == "" || sym == symbol {
			out = append(out, row)
		}
	}
	return out, nil
}

type fakeSender struct {
	mu    sync.Mutex
	texts []string
}

func (s *fakeSender) Send(_ context.Context, _ int64, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.texts = append(s.texts, text)
	return nil
}

func (s *fakeSender) sent() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.texts...)
}

type appFixture struct {
	orch    *orchestrator
	store   *store.Store
	fetcher *fakeFetcher
	sender  *fakeSender
}

func newAppFixture(t *testing.T) *appFixture {
	t.Helper()
	st, err := store.NewMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	cfg := &config.Config{
		Exchange: config.ExchangeConfig{RefetchBurst: 2},
		Tracker:  config.TrackerConfig{DealSeqFloor: ledger.DefaultSeqFloor, QueueSize: 8},
		Stats:    config.StatsConfig{UTCOffsetHours: 3, MaxDeals: 200},
	}
	fetcher := &fakeFetcher{rows: map[string]exchange.PositionRow{}}
	sender := &fakeSender{}

	orch, err := assemble(cfg, zap.NewNop(), st, fetcher, sender)
	require.NoError(t, err)

	subs, err := notify.NewSubscribers(st, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, subs.Enable(context.Background(), 42))

	return &appFixture{orch: orch, store: st, fetcher: fetcher, sender: sender}
}

func btcRow(size string) exchange.PositionRow {
	row := exchange.PositionRow{Symbol: "BTCUSDT", Size: dec(size), Leverage: "10"}
	if !row.Size.IsZero() {
		row.Side = "BUY"
		row.AvgPrice = dec("60000")
		row.PositionValue = dec("60000").Mul(row.Size)
	}
	return row
}

func TestConsumer_PositionOpenBroadcasts(t *testing.T) {
	f := newAppFixture(t)

	f.orch.consumer.process(context.Background(), exchange.Message{
		Topic:     exchange.TopicPosition,
		Positions: []exchange.PositionRow{btcRow("0.5")},
	})

	sent := f.sender.sent()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0], "交易 #80001")
	assert.Contains(t, sent[0], "名义价值: $30 000.00")
}

func TestConsumer_ExecutionsDriveDealLifecycle(t *testing.T) {
	f := newAppFixture(t)
	ctx := context.Background()

	f.fetcher.set(btcRow("0.5"))
	f.orch.consumer.process(ctx, exchange.Message{
		Topic: exchange.TopicExecution,
		Executions: []exchange.ExecutionRow{{
			Symbol: "BTCUSDT", Side: "Buy", Price: dec("60000"),
			Value: dec("30000"), HasValue: true, Qty: dec("0.5"), Fee: dec("6"),
		}},
	})

	f.fetcher.set(btcRow("0"))
	f.orch.consumer.process(ctx, exchange.Message{
		Topic: exchange.TopicExecution,
		Executions: []exchange.ExecutionRow{{
			Symbol: "BTCUSDT", Side: "Sell", Price: dec("61000"),
			Value: dec("30500"), HasValue: true, Qty: dec("0.5"), Fee: dec("6.1"),
			ClosedSize: dec("0.5"),
		}},
	})

	sent := f.sender.sent()
	require.Len(t, sent, 2)
	assert.Contains(t, sent[0], "🟢 开仓")
	assert.Contains(t, sent[1], "⬛ 全部平仓")
	assert.Contains(t, sent[1], "PNL: $487.90")

	deal, err := f.orch.deals.Get(ctx, 80001)
	require.NoError(t, err)
	assert.True(t, deal.Closed())
	assert.True(t, deal.BuyVal.Equal(dec("30000")))
	assert.True(t, deal.Fees.Equal(dec("12.1")))
}

func TestConsumer_DropsMessageOnStoreFailure(t *testing.T) {
	f := newAppFixture(t)
	require.NoError(t, f.store.Close())

	assert.NotPanics(t, func() {
		f.orch.consumer.process(context.Background(), exchange.Message{
			Topic:     exchange.TopicPosition,
			Positions: []exchange.PositionRow{btcRow("0.5")},
		})
	})
	assert.Empty(t, f.sender.sent())
}

func TestBootstrap_DetectsLiveAndClosesVanished(t *testing.T) {
	f := newAppFixture(t)
	ctx := context.Background()

	require.NoError(t, f.orch.deals.EnsureDeal(ctx, ledger.Shell{ID: 80010, Symbol: "ETHUSDT", Side: "SELL", StartTS: 1}))
	require.NoError(t, f.orch.positions.Save(ctx, position.Position{
		Symbol: "ETHUSDT", Size: dec("2"), AvgPrice: dec("3000"), Side: "SELL", Leverage: "5", DealID: 80010,
	}))
	f.fetcher.set(btcRow("0.5"))

	require.NoError(t, f.orch.bootstrap(ctx))

	sent := f.sender.sent()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0], "交易 #80010")
	assert.Contains(t, sent[0], "⬛ 全部平仓")

	btc, err := f.orch.positions.Get(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, int64(80011), btc.DealID)

	eth, err := f.orch.positions.Get(ctx, "ETHUSDT")
	require.NoError(t, err)
	assert.True(t, eth.Flat())

	detected, err := f.orch.monitor.ListEvents(ctx, monitor.EventDetected, 10)
	require.NoError(t, err)
	assert.Len(t, detected, 1)
}

type fakeStream struct {
	push func(exchange.Message)
	msgs []exchange.Message
	err  error
}

func (s *fakeStream) Run(ctx context.Context) error {
	for _, msg := range s.msgs {
		s.push(msg)
	}
	if s.err != nil {
		return s.err
	}
	<-ctx.Done()
	return nil
}

func TestRunPipeline_ProcessesUntilCancelled(t *testing.T) {
	f := newAppFixture(t)
	q := newQueue(4, zap.NewNop())
	stream := &fakeStream{
		push: q.Push,
		msgs: []exchange.Message{{Topic: exchange.TopicPosition, Positions: []exchange.PositionRow{btcRow("0.5")}}},
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runPipeline(ctx, stream, f.orch.consumer, q) }()

	require.Eventually(t, func() bool { return len(f.sender.sent()) == 1 }, 2*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("pipeline did not stop")
	}
}

func TestRunPipeline_AuthRejectedIsFatal(t *testing.T) {
	f := newAppFixture(t)
	q := newQueue(4, zap.NewNop())
	stream := &fakeStream{push: q.Push, err: exchange.ErrAuthRejected}

	err := runPipeline(context.Background(), stream, f.orch.consumer, q)
	assert.ErrorIs(t, err, exchange.ErrAuthRejected)
}

func TestMonitorHandler(t *testing.T) {
	f := newAppFixture(t)
	handler := monitorHandler(f.orch, 3, zap.NewNop())

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	rec := get("/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"deal_seq":80000`)

	rec = get("/stats?format=text")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "暂无已平仓交易。")

	assert.Equal(t, http.StatusBadRequest, get("/stats?offset=99").Code)

	rec = get("/events?type=DETECTED&limit=5")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))

	f.orch.consumer.process(context.Background(), exchange.Message{
		Topic:     exchange.TopicPosition,
		Positions: []exchange.PositionRow{btcRow("0.5")},
	})
	rec = get("/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `signal_lifecycle_events_total{kind="open"} 1`)
}
