package app

import (
	"go.uber.org/zap"

	"trades-signal/internal/exchange"
)

// queue 是流读协程与消费协程之间唯一的交接点，保持到达顺序。
// 队列满时 Push 阻塞读协程，消息不会被丢弃。
type queue struct {
	ch     chan exchange.Message
	logger *zap.Logger
}

func newQueue(size int, logger *zap.Logger) *queue {
	if size <= 0 {
		size = 1024
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &queue{ch: make(chan exchange.Message, size), logger: logger}
}

// Push 由流读协程调用。
func (q *queue) Push(msg exchange.Message) {
	select {
	case q.ch <- msg:
		return
	default:
	}
	q.logger.Warn("消息队列已满，等待消费", zap.String("topic", string(msg.Topic)), zap.Int("size", cap(q.ch)))
	q.ch <- msg
}

func (q *queue) messages() <-chan exchange.Message {
	return q.ch
}

func (q *queue) depth() int {
	return len(q.ch)
}
