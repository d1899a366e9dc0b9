package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"trades-signal/internal/format"
	"trades-signal/internal/store"
)

// Ledger 将交易累计持久化到 deals 表。
// 累计量以 TEXT 保存以保持十进制精度，增量在单个事务内读改写。
type Ledger struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewLedger 初始化交易账本并创建表结构。
func NewLedger(st *store.Store, logger *zap.Logger) (*Ledger, error) {
	if st == nil {
		return nil, errors.New("ledger: store 不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	l := &Ledger{db: st.DB(), logger: logger}
	if err := l.initSchema(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Ledger) initSchema() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS deals (
			deal_id INTEGER PRIMARY KEY,
			symbol TEXT NOT NULL,
			side TEXT NOT NULL DEFAULT '',
			start_ts INTEGER NOT NULL,
			end_ts INTEGER,
			buy_qty TEXT NOT NULL DEFAULT '0',
			buy_val TEXT NOT NULL DEFAULT '0',
			sell_qty TEXT NOT NULL DEFAULT '0',
			sell_val TEXT NOT NULL DEFAULT '0',
			fees TEXT NOT NULL DEFAULT '0',
			status TEXT NOT NULL DEFAULT 'open',
			pnl TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_deals_status_end ON deals(status, end_ts);`,
	}

	for _, stmt := range schema {
		if _, err := l.db.Exec(stmt); err != nil {
			return fmt.Errorf("ledger: 初始化表结构失败: %w", err)
		}
	}
	return nil
}

// EnsureDeal 仅在交易不存在时写入初始记录，已有累计不会被覆盖。
func (l *Ledger) EnsureDeal(ctx context.Context, shell Shell) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO deals (deal_id, symbol, side, start_ts, status)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(deal_id) DO NOTHING`,
		shell.ID, shell.Symbol, shell.Side, shell.StartTS, string(StatusOpen),
	)
	if err != nil {
		return fmt.Errorf("ledger: 创建交易 #%d 失败: %w", shell.ID, err)
	}
	return nil
}

// Apply 将累计量加到未平仓交易上。
func (l *Ledger) Apply(ctx context.Context, dealID int64, fills Fills) (err error) {
	if fills.IsZero() {
		return nil
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ledger: 开启事务失败: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	deal, err := scanDeal(tx.QueryRowContext(ctx, selectDeal+` WHERE deal_id = ?`, dealID))
	if err != nil {
		return err
	}
	if deal.Closed() {
		err = fmt.Errorf("%w: #%d", ErrDealClosed, dealID)
		return err
	}

	total := deal.Fills.Merge(fills)
	if _, err = tx.ExecContext(ctx,
		`UPDATE deals SET buy_qty = ?, buy_val = ?, sell_qty = ?, sell_val = ?, fees = ? WHERE deal_id = ?`,
		total.BuyQty.String(), total.BuyVal.String(),
		total.SellQty.String(), total.SellVal.String(),
		total.Fees.String(), dealID,
	); err != nil {
		err = fmt.Errorf("ledger: 累计交易 #%d 失败: %w", dealID, err)
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("ledger: 提交事务失败: %w", err)
	}
	return nil
}

// ApplyExecution 首次触达时创建交易，再累加单笔成交。
func (l *Ledger) ApplyExecution(ctx context.Context, shell Shell, side string, value, qty, fee decimal.Decimal) error {
	if err := l.EnsureDeal(ctx, shell); err != nil {
		return err
	}
	var fills Fills
	fills.Add(side, value, qty, fee)
	return l.Apply(ctx, shell.ID, fills)
}

// Finalize 计算盈亏并将交易标记为已平仓。
// 对已平仓交易重复调用直接返回已保存的盈亏，不做任何修改。
func (l *Ledger) Finalize(ctx context.Context, dealID, endTS int64) (pnl decimal.Decimal, err error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("ledger: 开启事务失败: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	deal, err := scanDeal(tx.QueryRowContext(ctx, selectDeal+` WHERE deal_id = ?`, dealID))
	if err != nil {
		return decimal.Zero, err
	}
	if deal.Closed() {
		_ = tx.Rollback()
		l.logger.Warn("交易已平仓，忽略重复结算", zap.Int64("deal", dealID))
		return deal.RealizedPnL(), nil
	}

	pnl = deal.Fills.PnL()
	if _, err = tx.ExecContext(ctx,
		`UPDATE deals SET status = ?, end_ts = ?, pnl = ? WHERE deal_id = ?`,
		string(StatusClosed), endTS, pnl.StringFixed(format.USDDecimals), dealID,
	); err != nil {
		err = fmt.Errorf("ledger: 结算交易 #%d 失败: %w", dealID, err)
		return decimal.Zero, err
	}

	if err = tx.Commit(); err != nil {
		return decimal.Zero, fmt.Errorf("ledger: 提交事务失败: %w", err)
	}
	return pnl, nil
}

// Get 读取单笔交易。
func (l *Ledger) Get(ctx context.Context, dealID int64) (Deal, error) {
	return scanDeal(l.db.QueryRowContext(ctx, selectDeal+` WHERE deal_id = ?`, dealID))
}

// MaxDealID 返回已记录的最大交易编号，无记录时为 0。
func (l *Ledger) MaxDealID(ctx context.Context) (int64, error) {
	var maxID sql.NullInt64
	if err := l.db.QueryRowContext(ctx, `SELECT MAX(deal_id) FROM deals`).Scan(&maxID); err != nil {
		return 0, fmt.Errorf("ledger: 查询最大交易编号失败: %w", err)
	}
	return maxID.Int64, nil
}

// ClosedBetween 返回 end_ts 位于 [start, end) 的已平仓交易，按 end_ts 升序。
func (l *Ledger) ClosedBetween(ctx context.Context, start, end int64, limit int) ([]Deal, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := l.db.QueryContext(ctx,
		selectDeal+` WHERE status = ? AND end_ts >= ? AND end_ts < ? ORDER BY end_ts ASC, deal_id ASC LIMIT ?`,
		string(StatusClosed), start, end, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("ledger: 查询已平仓交易失败: %w", err)
	}
	defer rows.Close()

	var deals []Deal
	for rows.Next() {
		deal, err := scanDeal(rows)
		if err != nil {
			return nil, err
		}
		deals = append(deals, deal)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ledger: 遍历已平仓交易失败: %w", err)
	}
	return deals, nil
}

const selectDeal = `SELECT deal_id, symbol, side, start_ts, end_ts, buy_qty, buy_val, sell_qty, sell_val, fees, status, pnl FROM deals`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDeal(row rowScanner) (Deal, error) {
	var (
		deal                                   Deal
		endTS                                  sql.NullInt64
		buyQty, buyVal, sellQty, sellVal, fees string
		status                                 string
		pnl                                    sql.NullString
	)
	err := row.Scan(&deal.ID, &deal.Symbol, &deal.Side, &deal.StartTS, &endTS,
		&buyQty, &buyVal, &sellQty, &sellVal, &fees, &status, &pnl)
	if errors.Is(err, sql.ErrNoRows) {
		return Deal{}, ErrDealNotFound
	}
	if err != nil {
		return Deal{}, fmt.Errorf("ledger: 读取交易失败: %w", err)
	}

	deal.EndTS = endTS.Int64
	deal.Status = Status(status)
	deal.Fills = Fills{
		BuyQty:  format.ParseOrZero(buyQty),
		BuyVal:  format.ParseOrZero(buyVal),
		SellQty: format.ParseOrZero(sellQty),
		SellVal: format.ParseOrZero(sellVal),
		Fees:    format.ParseOrZero(fees),
	}
	if pnl.Valid {
		deal.PnL, deal.HasPnL = format.Parse(pnl.String)
	}
	return deal, nil
}
