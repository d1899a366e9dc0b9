package notify

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Sender 发送单条消息。
type Sender interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// Audience 提供当前应接收通知的会话。
type Audience interface {
	ListEnabled(ctx context.Context) ([]int64, error)
}

// Dispatcher 将文本尽力投递给所有订阅者，单个失败不影响其他人。
type Dispatcher struct {
	audience Audience
	sender   Sender
	logger   *zap.Logger
}

// NewDispatcher 创建通知分发器。
func NewDispatcher(audience Audience, sender Sender, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{audience: audience, sender: sender, logger: logger}
}

// Broadcast 返回成功投递数，以及合并后的投递错误。
func (d *Dispatcher) Broadcast(ctx context.Context, text string) (int, error) {
	chats, err := d.audience.ListEnabled(ctx)
	if err != nil {
		return 0, err
	}

	var (
		delivered int
		errs      error
	)
	for _, chatID := range chats {
		if ctx.Err() != nil {
			errs = multierr.Append(errs, ctx.Err())
			break
		}
		if err := d.sender.Send(ctx, chatID, text); err != nil {
			d.logger.Warn("通知投递失败", zap.Int64("chat_id", chatID), zap.Error(err))
			errs = multierr.Append(errs, fmt.Errorf("chat %d: %w", chatID, err))
			continue
		}
		delivered++
	}

	d.logger.Debug("通知投递完成", zap.Int("delivered", delivered), zap.Int("subscribers", len(chats)))
	return delivered, errs
}
