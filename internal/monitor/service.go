package monitor

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"trades-signal/internal/format"
	"trades-signal/internal/position"
	"trades-signal/internal/store"
)

// Service 负责持久化审计事件。
type Service struct {
	db     *sql.DB
	logger *zap.Logger
	newID  func() string
}

// NewService 初始化审计服务，创建所需表结构。
func NewService(store *store.Store, logger *zap.Logger) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("monitor: store 不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Service{
		db:     store.DB(),
		logger: logger,
		newID:  func() string { return uuid.NewString() },
	}

	if err := s.initSchema(); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Service) initSchema() error {
	stmt := `
CREATE TABLE IF NOT EXISTS events (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	event_type TEXT NOT NULL,
	payload TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_type ON events(event_type);
`
	if _, err := s.db.Exec(stmt); err != nil {
		return fmt.Errorf("monitor: 初始化表失败: %w", err)
	}
	return nil
}

// Record 追加单个事件，返回事件 ID。
func (s *Service) Record(ctx context.Context, event Event) (string, error) {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return "", fmt.Errorf("monitor: 序列化事件失败: %w", err)
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.ID == "" {
		event.ID = s.newID()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO events (id, event_type, payload, created_at) VALUES (?, ?, ?, ?)`,
		event.ID, string(event.Type), string(payload), event.Timestamp.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return "", fmt.Errorf("monitor: 写入事件失败: %w", err)
	}

	return event.ID, nil
}

// RecordLifecycle 记录仓位生命周期事件。
func (s *Service) RecordLifecycle(ctx context.Context, event position.Event) error {
	payload := LifecyclePayload{
		Symbol:   event.Symbol,
		Side:     event.Side,
		Size:     event.Size.String(),
		Avg:      event.AvgPrice.String(),
		Leverage: event.Leverage,
		Deal:     event.DealID,
	}
	switch event.Kind {
	case position.EventPartial:
		payload.Percent = format.Pct(event.ClosedPct)
	case position.EventClose:
		payload.PnL = event.PnL.StringFixed(format.USDDecimals)
	}

	_, err := s.Record(ctx, Event{
		Type:      EventType(event.Kind),
		Timestamp: event.At,
		Payload:   payload,
	})
	return err
}

// RecordError 记录被丢弃的消息。
func (s *Service) RecordError(ctx context.Context, msg string, err error, ctxMap map[string]interface{}) {
	payload := ErrorPayload{
		Message: msg,
		Error:   err.Error(),
		Context: ctxMap,
	}
	if _, recErr := s.Record(ctx, Event{
		Type:      EventError,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}); recErr != nil {
		s.logger.Warn("记录异常事件失败", zap.Error(recErr))
	}
}

// ListEvents 按类型检索最近事件，新事件在前。
func (s *Service) ListEvents(ctx context.Context, eventType EventType, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT id, event_type, payload, created_at FROM events`
	args := make([]interface{}, 0, 2)
	if eventType != "" {
		query += ` WHERE event_type = ?`
		args = append(args, string(eventType))
	}
	query += ` ORDER BY seq DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("monitor: 查询事件失败: %w", err)
	}
	defer rows.Close()

	events := make([]Event, 0, limit)
	for rows.Next() {
		var (
			id      string
			typ     string
			payload string
			created string
		)
		if scanErr := rows.Scan(&id, &typ, &payload, &created); scanErr != nil {
			return nil, fmt.Errorf("monitor: 解析事件失败: %w", scanErr)
		}

		ts, parseErr := time.Parse(time.RFC3339, created)
		if parseErr != nil {
			ts = time.Time{}
		}

		events = append(events, Event{
			ID:        id,
			Type:      EventType(typ),
			Timestamp: ts,
			Payload:   json.RawMessage(payload),
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("monitor: 读取事件失败: %w", err)
	}

	return events, nil
}
