package app

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"trades-signal/internal/exchange"
	"trades-signal/internal/monitor"
	"trades-signal/internal/notify"
	"trades-signal/internal/position"
	"trades-signal/internal/report"
)

// consumer 按到达顺序逐条处理私有流消息，是状态唯一的修改者。
type consumer struct {
	tracker  *position.Tracker
	refetch  *exchange.PositionService
	notifier *notify.Dispatcher
	audit    *monitor.Service
	metrics  *monitor.Metrics
	logger   *zap.Logger
}

func (c *consumer) run(ctx context.Context, q *queue) error {
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("消费协程已停止", zap.Int("pending", q.depth()))
			return nil
		case msg := <-q.messages():
			c.metrics.SetQueueDepth(q.depth())
			c.process(ctx, msg)
		}
	}
}

// process 处理单条消息；任一步失败时记录并丢弃该消息剩余部分，保证循环继续前进。
func (c *consumer) process(ctx context.Context, msg exchange.Message) {
	c.metrics.ObserveMessage(string(msg.Topic))

	var err error
	switch msg.Topic {
	case exchange.TopicPosition:
		err = c.handlePositions(ctx, msg.Positions)
	case exchange.TopicExecution:
		err = c.handleExecutions(ctx, msg.Executions)
	default:
		c.logger.Debug("忽略未知主题", zap.String("topic", string(msg.Topic)))
	}
	if err != nil {
		c.drop(ctx, msg, err)
	}
}

func (c *consumer) handlePositions(ctx context.Context, rows []exchange.PositionRow) error {
	for _, row := range rows {
		event, err := c.tracker.Handle(ctx, row)
		if err != nil {
			return fmt.Errorf("处理 %s 仓位失败: %w", row.Symbol, err)
		}
		if event == nil {
			continue
		}
		c.metrics.ObserveLifecycle(string(event.Kind))
		c.announce(ctx, *event)
	}
	return nil
}

// handleExecutions 先归属成交，再复核涉及交易对的仓位以消除推送竞态。
func (c *consumer) handleExecutions(ctx context.Context, execs []exchange.ExecutionRow) error {
	symbols := make([]string, 0, len(execs))
	for _, exec := range execs {
		outcome, err := c.tracker.HandleExecution(ctx, exec)
		if err != nil {
			return fmt.Errorf("处理 %s 成交失败: %w", exec.Symbol, err)
		}
		c.metrics.ObserveExecution(string(outcome))
		symbols = append(symbols, exec.Symbol)
	}

	rows := c.refetch.FetchSymbols(ctx, symbols)
	return c.handlePositions(ctx, rows)
}

func (c *consumer) announce(ctx context.Context, event position.Event) {
	text, ok := report.Render(event)
	if !ok {
		return
	}

	delivered, err := c.notifier.Broadcast(ctx, text)
	failed := len(multierr.Errors(err))
	c.metrics.ObserveDeliveries(delivered, failed)
	if err != nil {
		c.logger.Warn("通知投递存在失败",
			zap.String("kind", string(event.Kind)),
			zap.Int64("deal", event.DealID),
			zap.Int("delivered", delivered),
			zap.Error(err),
		)
	}
}

func (c *consumer) drop(ctx context.Context, msg exchange.Message, err error) {
	c.logger.Error("消息处理失败，已丢弃", zap.String("topic", string(msg.Topic)), zap.Error(err))
	c.metrics.ObserveDropped(string(msg.Topic))
	if c.audit != nil {
		c.audit.RecordError(ctx, "消息处理失败", err, map[string]interface{}{
			"topic":      string(msg.Topic),
			"positions":  len(msg.Positions),
			"executions": len(msg.Executions),
		})
	}
}
