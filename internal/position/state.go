package position

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"trades-signal/internal/format"
	"trades-signal/internal/store"
)

// Position 是某个交易对最近一次已知的仓位状态。
// Size 为 0 时 Side 为空；DealID 在平仓后保留，用于审计。
type Position struct {
	Symbol    string
	Size      decimal.Decimal
	AvgPrice  decimal.Decimal
	Side      string
	Leverage  string
	DealID    int64
	UpdatedAt time.Time
}

// Flat 判断是否空仓。
func (p Position) Flat() bool {
	return p.Size.IsZero()
}

// Repository 将仓位状态持久化到 positions 表。
type Repository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewRepository 初始化仓位仓储并创建表结构。
func NewRepository(st *store.Store, logger *zap.Logger) (*Repository, error) {
	if st == nil {
		return nil, errors.New("position: store 不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	r := &Repository{db: st.DB(), logger: logger}
	if err := r.initSchema(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Repository) initSchema() error {
	stmt := `
CREATE TABLE IF NOT EXISTS positions (
	symbol TEXT PRIMARY KEY,
	size TEXT NOT NULL DEFAULT '0',
	avg_price TEXT NOT NULL DEFAULT '0',
	side TEXT NOT NULL DEFAULT '',
	leverage TEXT NOT NULL DEFAULT '',
	deal_id INTEGER NOT NULL DEFAULT 0,
	updated_at INTEGER NOT NULL
);
`
	if _, err := r.db.Exec(stmt); err != nil {
		return fmt.Errorf("position: 初始化表失败: %w", err)
	}
	return nil
}

// Get 读取交易对仓位，不存在时返回空仓且 DealID 为 0。
func (r *Repository) Get(ctx context.Context, symbol string) (Position, error) {
	pos, err := scanPosition(r.db.QueryRowContext(ctx, selectPosition+` WHERE symbol = ?`, symbol))
	if errors.Is(err, sql.ErrNoRows) {
		return Position{Symbol: symbol}, nil
	}
	if err != nil {
		return Position{}, fmt.Errorf("position: 读取仓位 %s 失败: %w", symbol, err)
	}
	return pos, nil
}

// Save 写入仓位。交易编号只增不减，空仓时方向强制置空。
func (r *Repository) Save(ctx context.Context, pos Position) error {
	if pos.Flat() {
		pos.Side = ""
		pos.AvgPrice = decimal.Zero
	}
	if pos.UpdatedAt.IsZero() {
		pos.UpdatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO positions (symbol, size, avg_price, side, leverage, deal_id, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(symbol) DO UPDATE SET
			size = excluded.size,
			avg_price = excluded.avg_price,
			side = excluded.side,
			leverage = excluded.leverage,
			deal_id = MAX(positions.deal_id, excluded.deal_id),
			updated_at = excluded.updated_at`,
		pos.Symbol, pos.Size.String(), pos.AvgPrice.String(), pos.Side, pos.Leverage, pos.DealID, pos.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("position: 保存仓位 %s 失败: %w", pos.Symbol, err)
	}
	return nil
}

// List 返回全部已记录的仓位，按交易对排序。
func (r *Repository) List(ctx context.Context) ([]Position, error) {
	rows, err := r.db.QueryContext(ctx, selectPosition+` ORDER BY symbol ASC`)
	if err != nil {
		return nil, fmt.Errorf("position: 查询仓位失败: %w", err)
	}
	defer rows.Close()

	var out []Position
	for rows.Next() {
		pos, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("position: 读取仓位失败: %w", err)
		}
		out = append(out, pos)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("position: 遍历仓位失败: %w", err)
	}
	return out, nil
}

// MaxDealID 返回仓位表中出现过的最大交易编号。
func (r *Repository) MaxDealID(ctx context.Context) (int64, error) {
	var maxID sql.NullInt64
	if err := r.db.QueryRowContext(ctx, `SELECT MAX(deal_id) FROM positions`).Scan(&maxID); err != nil {
		return 0, fmt.Errorf("position: 查询最大交易编号失败: %w", err)
	}
	return maxID.Int64, nil
}

const selectPosition = `SELECT symbol, size, avg_price, side, leverage, deal_id, updated_at FROM positions`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPosition(row rowScanner) (Position, error) {
	var (
		pos            Position
		size, avgPrice string
		updatedAt      int64
	)
	if err := row.Scan(&pos.Symbol, &size, &avgPrice, &pos.Side, &pos.Leverage, &pos.DealID, &updatedAt); err != nil {
		return Position{}, err
	}
	pos.Size = format.ParseOrZero(size)
	pos.AvgPrice = format.ParseOrZero(avgPrice)
	pos.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return pos, nil
}
