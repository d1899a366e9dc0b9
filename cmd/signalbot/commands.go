package main

import (
	"context"
	"fmt"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"trades-signal/internal/app"
	"trades-signal/internal/ledger"
	"trades-signal/internal/notify"
	"trades-signal/internal/report"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "订阅私有流并推送仓位信号",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := openRuntime()
			if err != nil {
				return err
			}
			defer rt.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := app.New(rt.cfg, rt.logger, rt.store).Run(ctx); err != nil {
				rt.logger.Error("系统运行异常", zap.Error(err))
				return err
			}
			rt.logger.Info("系统已安全退出")
			return nil
		},
	}
}

func newStatsCmd() *cobra.Command {
	var (
		offset    int
		broadcast bool
	)
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "输出今日已平仓交易统计",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := openRuntime()
			if err != nil {
				return err
			}
			defer rt.Close()

			if !cmd.Flags().Changed("offset") {
				offset = rt.cfg.Stats.UTCOffsetHours
			}
			if offset < -12 || offset > 14 {
				return fmt.Errorf("offset 必须位于[-12,14]，当前为 %d", offset)
			}

			deals, err := ledger.NewLedger(rt.store, rt.logger)
			if err != nil {
				return err
			}
			daily, err := report.NewDaily(deals, rt.cfg.Stats.MaxDeals).Build(cmd.Context(), offset)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), daily.Text)

			if !broadcast {
				return nil
			}
			return broadcastText(cmd.Context(), rt, daily.Text)
		},
	}
	cmd.Flags().IntVar(&offset, "offset", 0, "UTC 偏移小时数，默认取配置 stats.utc_offset_hours")
	cmd.Flags().BoolVar(&broadcast, "broadcast", false, "同时推送给所有订阅者")
	return cmd
}

func broadcastText(ctx context.Context, rt *deps, text string) error {
	subs, err := notify.NewSubscribers(rt.store, rt.logger)
	if err != nil {
		return err
	}
	sender, err := notify.NewTelegramSender(rt.cfg.Telegram)
	if err != nil {
		return err
	}

	delivered, err := notify.NewDispatcher(subs, sender, rt.logger).Broadcast(ctx, text)
	rt.logger.Info("统计已推送", zap.Int("delivered", delivered))
	return err
}

func newSubscribersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "subscribers",
		Short: "管理通知订阅者",
	}
	cmd.AddCommand(
		subscriberToggleCmd("enable", "开启会话通知", (*notify.Subscribers).Enable),
		subscriberToggleCmd("disable", "关闭会话通知", (*notify.Subscribers).Disable),
		&cobra.Command{
			Use:   "list",
			Short: "列出全部订阅者",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withSubscribers(func(subs *notify.Subscribers) error {
					list, err := subs.List(cmd.Context())
					if err != nil {
						return err
					}
					for _, s := range list {
						fmt.Fprintf(cmd.OutOrStdout(), "%d\tenabled=%t\t%s\n", s.ChatID, s.Enabled, s.UpdatedAt.Format(time.RFC3339))
					}
					return nil
				})
			},
		},
	)
	return cmd
}

func subscriberToggleCmd(use, short string, toggle func(*notify.Subscribers, context.Context, int64) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <chat_id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			chatID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("chat_id 非法: %w", err)
			}
			return withSubscribers(func(subs *notify.Subscribers) error {
				if err := toggle(subs, cmd.Context(), chatID); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %d\n", use, chatID)
				return nil
			})
		},
	}
}

func withSubscribers(fn func(*notify.Subscribers) error) error {
	rt, err := openRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	subs, err := notify.NewSubscribers(rt.store, rt.logger)
	if err != nil {
		return err
	}
	return fn(subs)
}
