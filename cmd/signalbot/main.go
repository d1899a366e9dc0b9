package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"trades-signal/internal/config"
	"trades-signal/internal/log"
	"trades-signal/internal/store"
)

var cfgFile string

func main() {
	rootCmd := &cobra.Command{
		Use:           "signalbot",
		Short:         "Bybit 仓位生命周期信号推送",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "配置文件路径，默认使用 configs/config.yaml")

	rootCmd.AddCommand(newRunCmd(), newStatsCmd(), newSubscribersCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

// deps 是各子命令共用的配置、日志与存储。
type deps struct {
	cfg    *config.Config
	logger *zap.Logger
	store  *store.Store
}

func openRuntime() (*deps, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("加载配置失败: %w", err)
	}

	logger, err := log.NewLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("初始化日志失败: %w", err)
	}

	sqliteStore, err := store.NewSQLite(cfg.Database)
	if err != nil {
		_ = logger.Sync()
		return nil, fmt.Errorf("初始化数据库失败: %w", err)
	}

	return &deps{cfg: cfg, logger: logger, store: sqliteStore}, nil
}

func (r *deps) Close() {
	if err := r.store.Close(); err != nil {
		r.logger.Warn("关闭数据库失败", zap.Error(err))
	}
	_ = r.logger.Sync()
}
