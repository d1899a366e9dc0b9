// Package notify 负责订阅者管理与通知投递。
package notify

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"trades-signal/internal/store"
)

// Subscriber 是一个聊天会话的订阅状态。
type Subscriber struct {
	ChatID    int64     `json:"chat_id"`
	Enabled   bool      `json:"enabled"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Subscribers 将订阅状态保存在 subscribers 表。
type Subscribers struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSubscribers 初始化订阅仓储。
func NewSubscribers(st *store.Store, logger *zap.Logger) (*Subscribers, error) {
	if st == nil {
		return nil, errors.New("notify: store 不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Subscribers{db: st.DB(), logger: logger}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Subscribers) initSchema() error {
	stmt := `
CREATE TABLE IF NOT EXISTS subscribers (
	chat_id INTEGER PRIMARY KEY,
	enabled INTEGER NOT NULL DEFAULT 1,
	updated_at TEXT NOT NULL
);
`
	if _, err := s.db.Exec(stmt); err != nil {
		return fmt.Errorf("notify: 初始化表失败: %w", err)
	}
	return nil
}

// Enable 打开会话的通知。
func (s *Subscribers) Enable(ctx context.Context, chatID int64) error {
	return s.set(ctx, chatID, true)
}

// Disable 关闭会话的通知。
func (s *Subscribers) Disable(ctx context.Context, chatID int64) error {
	return s.set(ctx, chatID, false)
}

func (s *Subscribers) set(ctx context.Context, chatID int64, enabled bool) error {
	flag := 0
	if enabled {
		flag = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO subscribers (chat_id, enabled, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(chat_id) DO UPDATE SET enabled = excluded.enabled, updated_at = excluded.updated_at`,
		chatID, flag, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("notify: 更新订阅 %d 失败: %w", chatID, err)
	}
	s.logger.Info("订阅状态已更新", zap.Int64("chat_id", chatID), zap.Bool("enabled", enabled))
	return nil
}

// ListEnabled 返回已开启通知的会话。
func (s *Subscribers) ListEnabled(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT chat_id FROM subscribers WHERE enabled = 1 ORDER BY chat_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("notify: 查询订阅者失败: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("notify: 读取订阅者失败: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// List 返回全部订阅记录。
func (s *Subscribers) List(ctx context.Context) ([]Subscriber, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT chat_id, enabled, updated_at FROM subscribers ORDER BY chat_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("notify: 查询订阅者失败: %w", err)
	}
	defer rows.Close()

	var out []Subscriber
	for rows.Next() {
		var (
			sub       Subscriber
			enabled   int
			updatedAt string
		)
		if err := rows.Scan(&sub.ChatID, &enabled, &updatedAt); err != nil {
			return nil, fmt.Errorf("notify: 读取订阅者失败: %w", err)
		}
		sub.Enabled = enabled == 1
		if ts, err := time.Parse(time.RFC3339, updatedAt); err == nil {
			sub.UpdatedAt = ts
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}
