package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"
)

// Config 聚合了系统运行所需的全部配置项。
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Exchange ExchangeConfig `mapstructure:"exchange"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Tracker  TrackerConfig  `mapstructure:"tracker"`
	Stats    StatsConfig    `mapstructure:"stats"`
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Monitor  MonitorConfig  `mapstructure:"monitor"`
}

// AppConfig 控制应用级参数。
type AppConfig struct {
	Environment string `mapstructure:"environment"`
}

// ExchangeConfig 描述 Bybit 私有账户连接信息。
type ExchangeConfig struct {
	Name         string        `mapstructure:"name"`
	APIKey       string        `mapstructure:"api_key"`
	APISecret    string        `mapstructure:"api_secret"`
	UseTestnet   bool          `mapstructure:"use_testnet"`
	Category     string        `mapstructure:"category"`
	SettleCoin   string        `mapstructure:"settle_coin"`
	StreamURL    string        `mapstructure:"stream_url"`
	PingInterval time.Duration `mapstructure:"ping_interval"`
	Reconnect    time.Duration `mapstructure:"reconnect_delay"`
	RefetchRate  float64       `mapstructure:"refetch_rate"`
	RefetchBurst int           `mapstructure:"refetch_burst"`
	Retry        RetryConfig   `mapstructure:"retry"`
}

// RetryConfig 统一控制重试机制。
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	MinDelay    time.Duration `mapstructure:"min_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
}

// TelegramConfig 描述通知投递参数。
type TelegramConfig struct {
	Token    string        `mapstructure:"token"`
	BaseURL  string        `mapstructure:"base_url"`
	Timeout  time.Duration `mapstructure:"timeout"`
	SendRate float64       `mapstructure:"send_rate"`
}

// TrackerConfig 控制仓位状态机与交易序号。
type TrackerConfig struct {
	DealSeqFloor      int64         `mapstructure:"deal_seq_floor"`
	NotionalWaitTries int           `mapstructure:"notional_wait_tries"`
	NotionalWaitDelay time.Duration `mapstructure:"notional_wait_delay"`
	QueueSize         int           `mapstructure:"queue_size"`
}

// StatsConfig 控制日度统计。
type StatsConfig struct {
	UTCOffsetHours int `mapstructure:"utc_offset_hours"`
	MaxDeals       int `mapstructure:"max_deals"`
}

// DatabaseConfig 管理数据库连接。
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	InMemory        bool          `mapstructure:"in_memory"`
}

// LoggingConfig 控制日志输出。
type LoggingConfig struct {
	Level            string   `mapstructure:"level"`
	Encoding         string   `mapstructure:"encoding"`
	Development      bool     `mapstructure:"development"`
	OutputPaths      []string `mapstructure:"output_paths"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
}

// MonitorConfig 控制监控接口。
type MonitorConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// Validate 对配置进行基本校验。
func (c *Config) Validate() error {
	var err error

	if c.App.Environment == "" {
		err = multierr.Append(err, errors.New("app.environment 不能为空"))
	}
	if !strings.EqualFold(c.Exchange.Name, "bybit") {
		err = multierr.Append(err, fmt.Errorf("exchange.name 仅支持 bybit，当前为 %q", c.Exchange.Name))
	}
	if c.Exchange.APIKey == "" || c.Exchange.APISecret == "" {
		err = multierr.Append(err, errors.New("exchange.api_key 与 exchange.api_secret 不能为空"))
	}
	if c.Exchange.Category == "" {
		err = multierr.Append(err, errors.New("exchange.category 不能为空"))
	}
	if c.Exchange.SettleCoin == "" {
		err = multierr.Append(err, errors.New("exchange.settle_coin 不能为空"))
	}
	if c.Exchange.PingInterval <= 0 {
		err = multierr.Append(err, errors.New("exchange.ping_interval 必须大于0"))
	}
	if c.Exchange.Reconnect <= 0 {
		err = multierr.Append(err, errors.New("exchange.reconnect_delay 必须大于0"))
	}
	if c.Exchange.RefetchRate <= 0 || c.Exchange.RefetchBurst <= 0 {
		err = multierr.Append(err, errors.New("exchange.refetch_rate 与 refetch_burst 必须大于0"))
	}
	if c.Exchange.Retry.MaxAttempts <= 0 {
		err = multierr.Append(err, errors.New("exchange.retry.max_attempts 必须大于0"))
	}
	if c.Exchange.Retry.MinDelay <= 0 || c.Exchange.Retry.MaxDelay <= 0 {
		err = multierr.Append(err, errors.New("exchange.retry.delay 必须为正"))
	}
	if c.Exchange.Retry.MinDelay > c.Exchange.Retry.MaxDelay {
		err = multierr.Append(err, errors.New("exchange.retry.min_delay 不能大于 max_delay"))
	}
	if c.Telegram.Token == "" {
		err = multierr.Append(err, errors.New("telegram.token 不能为空"))
	}
	if c.Telegram.Timeout <= 0 {
		err = multierr.Append(err, errors.New("telegram.timeout 必须大于0"))
	}
	if c.Telegram.SendRate <= 0 {
		err = multierr.Append(err, errors.New("telegram.send_rate 必须大于0"))
	}
	if c.Tracker.DealSeqFloor < 0 {
		err = multierr.Append(err, errors.New("tracker.deal_seq_floor 不能为负"))
	}
	if c.Tracker.NotionalWaitTries < 0 {
		err = multierr.Append(err, errors.New("tracker.notional_wait_tries 不能为负"))
	}
	if c.Tracker.NotionalWaitDelay < 0 {
		err = multierr.Append(err, errors.New("tracker.notional_wait_delay 不能为负"))
	}
	if c.Tracker.QueueSize <= 0 {
		err = multierr.Append(err, errors.New("tracker.queue_size 必须大于0"))
	}
	if c.Stats.UTCOffsetHours < -12 || c.Stats.UTCOffsetHours > 14 {
		err = multierr.Append(err, errors.New("stats.utc_offset_hours 必须位于[-12,14]"))
	}
	if c.Stats.MaxDeals <= 0 {
		err = multierr.Append(err, errors.New("stats.max_deals 必须大于0"))
	}
	if c.Database.Path == "" && !c.Database.InMemory {
		err = multierr.Append(err, errors.New("database.path 不能为空"))
	}
	if c.Database.MaxOpenConns <= 0 {
		err = multierr.Append(err, errors.New("database.max_open_conns 必须大于0"))
	}
	if c.Database.MaxIdleConns < 0 {
		err = multierr.Append(err, errors.New("database.max_idle_conns 不能为负"))
	}
	if c.Database.ConnMaxLifetime < 0 {
		err = multierr.Append(err, errors.New("database.conn_max_lifetime 不能为负"))
	}
	if c.Logging.Level == "" {
		err = multierr.Append(err, errors.New("logging.level 不能为空"))
	}
	if c.Logging.Encoding == "" {
		err = multierr.Append(err, errors.New("logging.encoding 不能为空"))
	}
	if len(c.Logging.OutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.output_paths 至少包含一个输出目标"))
	}
	if len(c.Logging.ErrorOutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.error_output_paths 至少包含一个输出目标"))
	}
	if c.Monitor.Enabled && (c.Monitor.Port <= 0 || c.Monitor.Port > 65535) {
		err = multierr.Append(err, errors.New("monitor.port 必须位于(0,65535]"))
	}

	if err != nil {
		return fmt.Errorf("配置校验失败: %w", err)
	}

	return nil
}
