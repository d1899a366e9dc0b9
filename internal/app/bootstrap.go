package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"trades-signal/internal/exchange"
	"trades-signal/internal/position"
)

// syncSequence 让交易序号越过已持久化的最大编号。
func (o *orchestrator) syncSequence(ctx context.Context) error {
	posMax, err := o.positions.MaxDealID(ctx)
	if err != nil {
		return fmt.Errorf("读取仓位最大交易编号失败: %w", err)
	}
	dealMax, err := o.deals.MaxDealID(ctx)
	if err != nil {
		return fmt.Errorf("读取交易最大编号失败: %w", err)
	}

	current := o.seq.Sync(posMax, dealMax)
	o.logger.Info("交易序号已同步", zap.Int64("current", current))
	return nil
}

// reconcile 用一次快照对齐本地仓位：存量仓位静默登记，消失的仓位按全部平仓处理。
// 快照失败只告警，由后续推送自然修复。
func (o *orchestrator) reconcile(ctx context.Context) error {
	live, err := o.refetch.Snapshot(ctx)
	if err != nil {
		o.logger.Warn("启动快照拉取失败，跳过对账", zap.Error(err))
		return nil
	}

	stored, err := o.positions.List(ctx)
	if err != nil {
		return fmt.Errorf("读取本地仓位失败: %w", err)
	}
	open := make(map[string]position.Position, len(stored))
	for _, pos := range stored {
		if !pos.Flat() {
			open[pos.Symbol] = pos
		}
	}

	var detected int
	seen := make(map[string]struct{}, len(live))
	for _, row := range live {
		seen[row.Symbol] = struct{}{}

		if _, ok := open[row.Symbol]; ok {
			if err := o.consumer.handlePositions(ctx, []exchange.PositionRow{row}); err != nil {
				return err
			}
			continue
		}

		event, err := o.tracker.Detect(ctx, row)
		if err != nil {
			return fmt.Errorf("登记存量仓位 %s 失败: %w", row.Symbol, err)
		}
		if event != nil {
			detected++
			o.metrics.ObserveLifecycle(string(event.Kind))
		}
	}

	var vanished int
	for _, pos := range stored {
		if pos.Flat() {
			continue
		}
		if _, ok := seen[pos.Symbol]; ok {
			continue
		}
		vanished++
		if err := o.consumer.handlePositions(ctx, []exchange.PositionRow{{
			Symbol:   pos.Symbol,
			Leverage: pos.Leverage,
		}}); err != nil {
			return err
		}
	}

	o.logger.Info("启动对账完成",
		zap.Int("live", len(live)),
		zap.Int("detected", detected),
		zap.Int("vanished", vanished),
	)
	return nil
}
