package position

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"trades-signal/internal/config"
	"trades-signal/internal/exchange"
	"trades-signal/internal/format"
	"trades-signal/internal/ledger"
)

var hundred = decimal.NewFromInt(100)

// Store 抽象仓位状态的读写。
type Store interface {
	Get(ctx context.Context, symbol string) (Position, error)
	Save(ctx context.Context, pos Position) error
}

// DealLedger 抽象交易账本。
type DealLedger interface {
	EnsureDeal(ctx context.Context, shell ledger.Shell) error
	Apply(ctx context.Context, dealID int64, fills ledger.Fills) error
	Finalize(ctx context.Context, dealID, endTS int64) (decimal.Decimal, error)
}

// EventRecorder 追加生命周期审计记录。
type EventRecorder interface {
	RecordLifecycle(ctx context.Context, event Event) error
}

// ExecOutcome 描述单笔成交的归属结果。
type ExecOutcome string

const (
	ExecAttributed ExecOutcome = "attributed"
	ExecBuffered   ExecOutcome = "buffered"
	ExecIgnored    ExecOutcome = "ignored"
	ExecLate       ExecOutcome = "late"
)

// Tracker 是仓位状态机与成交归属的唯一协调者。
// 除 PriceCache 外的状态只能由单个消费协程调用。
type Tracker struct {
	positions Store
	deals     DealLedger
	buffer    *ledger.Buffer
	seq       *ledger.Sequence
	prices    *PriceCache
	events    EventRecorder

	waitTries int
	waitDelay time.Duration

	now    func() time.Time
	logger *zap.Logger
}

// NewTracker 创建仓位追踪器。events 可为 nil。
func NewTracker(positions Store, deals DealLedger, seq *ledger.Sequence, events EventRecorder, cfg config.TrackerConfig, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		positions: positions,
		deals:     deals,
		buffer:    ledger.NewBuffer(),
		seq:       seq,
		prices:    NewPriceCache(),
		events:    events,
		waitTries: cfg.NotionalWaitTries,
		waitDelay: cfg.NotionalWaitDelay,
		now:       time.Now,
		logger:    logger,
	}
}

// Prices 返回最近成交价缓存。
func (t *Tracker) Prices() *PriceCache {
	return t.prices
}

// PendingBuffers 返回尚未归属的成交缓冲数量。
func (t *Tracker) PendingBuffers() int {
	return t.buffer.Pending()
}

// Handle 将一行仓位快照与已知状态比较，返回需要通知的事件；无事件时返回 nil。
func (t *Tracker) Handle(ctx context.Context, row exchange.PositionRow) (*Event, error) {
	if row.Symbol == "" {
		return nil, nil
	}

	prev, err := t.positions.Get(ctx, row.Symbol)
	if err != nil {
		return nil, err
	}

	switch Classify(prev.Size, row.Size) {
	case TransitionOpened:
		return t.open(ctx, row, EventOpen)
	case TransitionPartial:
		return t.partial(ctx, prev, row)
	case TransitionClosed:
		return t.close(ctx, prev, row)
	default:
		return nil, t.update(ctx, prev, row)
	}
}

// Detect 将启动时发现的存量仓位登记为新交易，只写审计事件。
func (t *Tracker) Detect(ctx context.Context, row exchange.PositionRow) (*Event, error) {
	if row.Symbol == "" || row.Size.IsZero() {
		return nil, nil
	}
	return t.open(ctx, row, EventDetected)
}

func (t *Tracker) open(ctx context.Context, row exchange.PositionRow, kind EventKind) (*Event, error) {
	now := t.now()
	dealID := t.seq.Next()

	if err := t.deals.EnsureDeal(ctx, ledger.Shell{
		ID:      dealID,
		Symbol:  row.Symbol,
		Side:    row.Side,
		StartTS: now.Unix(),
	}); err != nil {
		return nil, err
	}
	if err := t.drain(ctx, row.Symbol, dealID); err != nil {
		return nil, err
	}

	notional := EstimateNotional(row)
	if !notional.Known && kind == EventOpen {
		if value, ok := t.prices.WaitNotional(ctx, row.Symbol, row.Size, t.waitTries, t.waitDelay); ok {
			notional = Notional{Value: value, Approximate: true, Known: true}
		}
	}

	if err := t.positions.Save(ctx, Position{
		Symbol:    row.Symbol,
		Size:      row.Size,
		AvgPrice:  row.AvgPrice,
		Side:      row.Side,
		Leverage:  row.Leverage,
		DealID:    dealID,
		UpdatedAt: now,
	}); err != nil {
		return nil, err
	}

	event := Event{
		Kind:     kind,
		DealID:   dealID,
		Symbol:   row.Symbol,
		Side:     row.Side,
		Size:     row.Size,
		AvgPrice: row.AvgPrice,
		Leverage: row.Leverage,
		Notional: notional,
		At:       now,
	}
	t.logger.Info("仓位开仓",
		zap.String("kind", string(kind)),
		zap.String("symbol", row.Symbol),
		zap.Int64("deal", dealID),
		zap.String("size", row.Size.String()),
	)
	t.record(ctx, event)
	return &event, nil
}

func (t *Tracker) partial(ctx context.Context, prev Position, row exchange.PositionRow) (*Event, error) {
	now := t.now()
	dealID, err := t.resolveDeal(ctx, prev, row, now)
	if err != nil {
		return nil, err
	}

	left := row.Size.Abs().Div(prev.Size.Abs())
	closedPct := decimal.NewFromInt(1).Sub(left).Mul(hundred)

	if err := t.positions.Save(ctx, Position{
		Symbol:    row.Symbol,
		Size:      row.Size,
		AvgPrice:  row.AvgPrice,
		Side:      row.Side,
		Leverage:  row.Leverage,
		DealID:    dealID,
		UpdatedAt: now,
	}); err != nil {
		return nil, err
	}

	event := Event{
		Kind:      EventPartial,
		DealID:    dealID,
		Symbol:    row.Symbol,
		Side:      row.Side,
		Size:      row.Size,
		AvgPrice:  row.AvgPrice,
		Leverage:  row.Leverage,
		ClosedPct: closedPct,
		At:        now,
	}
	t.logger.Info("仓位部分平仓",
		zap.String("symbol", row.Symbol),
		zap.Int64("deal", dealID),
		zap.String("closed_pct", format.Pct(closedPct)),
	)
	t.record(ctx, event)
	return &event, nil
}

func (t *Tracker) close(ctx context.Context, prev Position, row exchange.PositionRow) (*Event, error) {
	now := t.now()
	dealID, err := t.resolveDeal(ctx, prev, row, now)
	if err != nil {
		return nil, err
	}
	if err := t.drain(ctx, row.Symbol, dealID); err != nil {
		return nil, err
	}

	pnl, err := t.deals.Finalize(ctx, dealID, now.Unix())
	switch {
	case errors.Is(err, ledger.ErrDealNotFound):
		t.logger.Warn("平仓时交易记录不存在，盈亏按 0 计", zap.String("symbol", row.Symbol), zap.Int64("deal", dealID))
		pnl = decimal.Zero
	case err != nil:
		return nil, err
	}

	if err := t.positions.Save(ctx, Position{
		Symbol:    row.Symbol,
		Size:      decimal.Zero,
		Leverage:  row.Leverage,
		DealID:    dealID,
		UpdatedAt: now,
	}); err != nil {
		return nil, err
	}

	event := Event{
		Kind:     EventClose,
		DealID:   dealID,
		Symbol:   row.Symbol,
		Side:     prev.Side,
		Size:     decimal.Zero,
		AvgPrice: row.AvgPrice,
		Leverage: row.Leverage,
		PnL:      pnl,
		At:       now,
	}
	t.logger.Info("仓位全部平仓",
		zap.String("symbol", row.Symbol),
		zap.Int64("deal", dealID),
		zap.String("pnl", pnl.StringFixed(format.USDDecimals)),
	)
	t.record(ctx, event)
	return &event, nil
}

func (t *Tracker) update(ctx context.Context, prev Position, row exchange.PositionRow) error {
	if !prev.Flat() && !row.Size.IsZero() && prev.Side != "" && row.Side != "" && prev.Side != row.Side {
		t.logger.Warn("仓位方向翻转未经过空仓，按普通更新处理",
			zap.String("symbol", row.Symbol),
			zap.String("prev_side", prev.Side),
			zap.String("side", row.Side),
			zap.Int64("deal", prev.DealID),
		)
	}

	return t.positions.Save(ctx, Position{
		Symbol:    row.Symbol,
		Size:      row.Size,
		AvgPrice:  row.AvgPrice,
		Side:      row.Side,
		Leverage:  row.Leverage,
		DealID:    prev.DealID,
		UpdatedAt: t.now(),
	})
}

// resolveDeal 返回前一状态的交易编号；缺失说明错过了开仓，分配占位编号并补建交易。
func (t *Tracker) resolveDeal(ctx context.Context, prev Position, row exchange.PositionRow, now time.Time) (int64, error) {
	if prev.DealID != 0 {
		return prev.DealID, nil
	}

	dealID := t.seq.Next()
	t.logger.Warn("未找到开仓记录，使用占位交易编号",
		zap.String("symbol", row.Symbol),
		zap.Int64("deal", dealID),
	)
	side := prev.Side
	if side == "" {
		side = row.Side
	}
	if err := t.deals.EnsureDeal(ctx, ledger.Shell{
		ID:      dealID,
		Symbol:  row.Symbol,
		Side:    side,
		StartTS: now.Unix(),
	}); err != nil {
		return 0, err
	}
	return dealID, nil
}

// drain 将缓冲区中的成交并入交易；写入失败时放回缓冲区。
func (t *Tracker) drain(ctx context.Context, symbol string, dealID int64) error {
	fills, ok := t.buffer.Drain(symbol)
	if !ok {
		return nil
	}
	if err := t.deals.Apply(ctx, dealID, fills); err != nil {
		t.buffer.Restore(symbol, fills)
		return fmt.Errorf("position: 合并 %s 缓冲成交失败: %w", symbol, err)
	}
	t.logger.Debug("缓冲成交已并入交易", zap.String("symbol", symbol), zap.Int64("deal", dealID))
	return nil
}

// HandleExecution 更新成交价缓存，并把成交计入当前持仓对应的交易；
// 尚无持仓时先放入缓冲区，等待开仓时合并。
func (t *Tracker) HandleExecution(ctx context.Context, exec exchange.ExecutionRow) (ExecOutcome, error) {
	t.prices.Set(exec.Symbol, exec.Price)

	value := exec.Value
	if !exec.HasValue && exec.Qty.IsPositive() && exec.Price.IsPositive() {
		value = format.RoundUSD(exec.Qty.Mul(exec.Price))
	}
	if exec.Symbol == "" || !value.IsPositive() {
		return ExecIgnored, nil
	}

	var fills ledger.Fills
	fills.Add(exec.Side, value, exec.Qty, exec.Fee)

	pos, err := t.positions.Get(ctx, exec.Symbol)
	if err != nil {
		return ExecIgnored, err
	}

	if !pos.Flat() && pos.DealID != 0 {
		if err := t.deals.EnsureDeal(ctx, ledger.Shell{
			ID:      pos.DealID,
			Symbol:  exec.Symbol,
			Side:    pos.Side,
			StartTS: t.now().Unix(),
		}); err != nil {
			return ExecIgnored, err
		}
		if err := t.deals.Apply(ctx, pos.DealID, fills); err != nil {
			return ExecIgnored, err
		}
		return ExecAttributed, nil
	}

	if exec.ClosedSize.IsPositive() {
		t.logger.Warn("平仓成交晚于空仓快照，交易已结算，忽略",
			zap.String("symbol", exec.Symbol),
			zap.Int64("deal", pos.DealID),
			zap.String("exec_id", exec.ExecID),
		)
		return ExecLate, nil
	}

	t.buffer.Ingest(exec.Symbol, fills)
	return ExecBuffered, nil
}

func (t *Tracker) record(ctx context.Context, event Event) {
	if t.events == nil {
		return
	}
	if err := t.events.RecordLifecycle(ctx, event); err != nil {
		t.logger.Warn("写入生命周期审计失败",
			zap.String("kind", string(event.Kind)),
			zap.Int64("deal", event.DealID),
			zap.Error(err),
		)
	}
}
