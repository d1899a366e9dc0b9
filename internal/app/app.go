package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"trades-signal/internal/config"
	"trades-signal/internal/exchange"
	"trades-signal/internal/store"
)

// App 聚合核心依赖并驱动系统生命周期。
type App struct {
	cfg    *config.Config
	logger *zap.Logger
	store  *store.Store
}

// New 创建 App 实例。
func New(cfg *config.Config, logger *zap.Logger, store *store.Store) *App {
	return &App{
		cfg:    cfg,
		logger: logger,
		store:  store,
	}
}

// Run 完成启动对账后运行私有流与消费协程，直到 ctx 结束或鉴权被拒绝。
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("信号服务启动中",
		zap.String("environment", a.cfg.App.Environment),
		zap.String("exchange", a.cfg.Exchange.Name),
		zap.Bool("testnet", a.cfg.Exchange.UseTestnet),
	)

	orch, err := newOrchestrator(ctx, a.cfg, a.logger, a.store)
	if err != nil {
		return err
	}
	if err := orch.bootstrap(ctx); err != nil {
		return fmt.Errorf("启动对账失败: %w", err)
	}

	if a.cfg.Monitor.Enabled {
		if err := startMonitorServer(ctx, orch, a.cfg.Monitor.Port, a.cfg.Stats.UTCOffsetHours, a.logger); err != nil {
			return err
		}
	}

	q := newQueue(a.cfg.Tracker.QueueSize, a.logger)
	stream := exchange.NewStream(a.cfg.Exchange, q.Push, a.logger.Named("stream"))

	err = runPipeline(ctx, stream, orch.consumer, q)
	if errors.Is(err, exchange.ErrAuthRejected) {
		return fmt.Errorf("私有流鉴权失败: %w", err)
	}
	if err != nil {
		return err
	}
	a.logger.Info("系统收到退出信号，已停止")
	return nil
}

type streamRunner interface {
	Run(ctx context.Context) error
}

// runPipeline 先停止私有流，再停止消费协程。
func runPipeline(ctx context.Context, stream streamRunner, c *consumer, q *queue) error {
	group, groupCtx := errgroup.WithContext(ctx)
	consumerCtx, stopConsumer := context.WithCancel(context.WithoutCancel(ctx))

	group.Go(func() error {
		defer stopConsumer()
		return stream.Run(groupCtx)
	})
	group.Go(func() error {
		return c.run(consumerCtx, q)
	})

	return group.Wait()
}
