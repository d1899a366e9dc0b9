package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"trades-signal/internal/config"
	"trades-signal/internal/exchange"
	"trades-signal/internal/ledger"
	"trades-signal/internal/monitor"
	"trades-signal/internal/notify"
	"trades-signal/internal/position"
	"trades-signal/internal/report"
	"trades-signal/internal/store"
)

// orchestrator 持有全部运行期组件。
type orchestrator struct {
	positions *position.Repository
	deals     *ledger.Ledger
	seq       *ledger.Sequence
	tracker   *position.Tracker
	refetch   *exchange.PositionService
	monitor   *monitor.Service
	metrics   *monitor.Metrics
	daily     *report.Daily
	consumer  *consumer
	logger    *zap.Logger
}

// newOrchestrator 连接真实的 Bybit 与 Telegram，并校验机器人凭证。
func newOrchestrator(ctx context.Context, cfg *config.Config, logger *zap.Logger, st *store.Store) (*orchestrator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	client, err := exchange.NewClient(cfg.Exchange, logger.Named("exchange"))
	if err != nil {
		return nil, fmt.Errorf("初始化交易所客户端失败: %w", err)
	}

	sender, err := notify.NewTelegramSender(cfg.Telegram)
	if err != nil {
		return nil, fmt.Errorf("初始化 Telegram 失败: %w", err)
	}
	botName, err := sender.Verify(ctx)
	if err != nil {
		return nil, fmt.Errorf("校验 Telegram 凭证失败: %w", err)
	}
	logger.Info("Telegram 机器人已就绪", zap.String("bot", botName))

	return assemble(cfg, logger, st, client, sender)
}

// assemble 基于给定的仓位来源与消息发送器组装组件。
func assemble(cfg *config.Config, logger *zap.Logger, st *store.Store, fetcher exchange.PositionFetcher, sender notify.Sender) (*orchestrator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	positions, err := position.NewRepository(st, logger)
	if err != nil {
		return nil, fmt.Errorf("初始化仓位存储失败: %w", err)
	}
	deals, err := ledger.NewLedger(st, logger)
	if err != nil {
		return nil, fmt.Errorf("初始化交易账本失败: %w", err)
	}
	monitorSvc, err := monitor.NewService(st, logger)
	if err != nil {
		return nil, fmt.Errorf("初始化审计服务失败: %w", err)
	}
	subscribers, err := notify.NewSubscribers(st, logger)
	if err != nil {
		return nil, fmt.Errorf("初始化订阅存储失败: %w", err)
	}

	seq := ledger.NewSequence(cfg.Tracker.DealSeqFloor)
	tracker := position.NewTracker(positions, deals, seq, monitorSvc, cfg.Tracker, logger.Named("tracker"))
	refetch := exchange.NewPositionService(fetcher, cfg.Exchange, logger.Named("exchange"))
	metrics := monitor.NewMetrics()

	return &orchestrator{
		positions: positions,
		deals:     deals,
		seq:       seq,
		tracker:   tracker,
		refetch:   refetch,
		monitor:   monitorSvc,
		metrics:   metrics,
		daily:     report.NewDaily(deals, cfg.Stats.MaxDeals),
		consumer: &consumer{
			tracker:  tracker,
			refetch:  refetch,
			notifier: notify.NewDispatcher(subscribers, sender, logger.Named("notify")),
			audit:    monitorSvc,
			metrics:  metrics,
			logger:   logger.Named("consumer"),
		},
		logger: logger,
	}, nil
}

// bootstrap 在消费开始前完成序号同步与快照对账。
func (o *orchestrator) bootstrap(ctx context.Context) error {
	if err := o.syncSequence(ctx); err != nil {
		return err
	}
	return o.reconcile(ctx)
}
