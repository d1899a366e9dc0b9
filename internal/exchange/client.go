package exchange

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	ccxt "github.com/ccxt/ccxt/go/v4"
	"go.uber.org/zap"

	"trades-signal/internal/config"
)

type positionsAPI interface {
	FetchPositions(options ...ccxt.FetchPositionsOptions) ([]ccxt.Position, error)
}

// Client 通过 ccxt 访问 Bybit REST 仓位接口，并实现重试机制。
type Client struct {
	cfg         config.ExchangeConfig
	logger      *zap.Logger
	api         positionsAPI
	loadMarkets func() error

	marketsMu     sync.Mutex
	marketsLoaded bool
}

// NewClient 构造 Bybit 客户端。
func NewClient(cfg config.ExchangeConfig, logger *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, errors.New("exchange: api_key 与 api_secret 不能为空")
	}

	userConfig := map[string]interface{}{
		"enableRateLimit": true,
		"apiKey":          cfg.APIKey,
		"secret":          cfg.APISecret,
		"options": map[string]interface{}{
			"adjustForTimeDifference": true,
			"defaultType":             "swap",
			"defaultSettle":           cfg.SettleCoin,
		},
	}

	ex := ccxt.NewBybit(userConfig)
	if cfg.UseTestnet {
		ex.SetSandboxMode(true)
	}

	return newClient(cfg, ex, func() error {
		_, err := ex.LoadMarkets()
		return err
	}, logger), nil
}

func newClient(cfg config.ExchangeConfig, api positionsAPI, loadMarkets func() error, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loadMarkets == nil {
		loadMarkets = func() error { return nil }
	}
	return &Client{
		cfg:         cfg,
		logger:      logger,
		api:         api,
		loadMarkets: loadMarkets,
	}
}

// FetchPositions 拉取仓位快照；symbol 为空时返回结算币下的全部仓位。
// 请求参数固定为 (category, symbol, settleCoin)。
func (c *Client) FetchPositions(ctx context.Context, symbol string) ([]PositionRow, error) {
	params := map[string]interface{}{
		"category":   c.cfg.Category,
		"settleCoin": c.cfg.SettleCoin,
	}
	if symbol != "" {
		params["symbol"] = symbol
	}

	var raw []ccxt.Position
	err := c.callWithRetry(ctx, "fetch_positions", func() error {
		if err := c.ensureMarketsLoaded(ctx); err != nil {
			return err
		}

		result, err := c.api.FetchPositions(ccxt.WithFetchPositionsParams(params))
		if err != nil {
			return err
		}
		raw = result
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("exchange: 拉取仓位失败 symbol=%q: %w", symbol, err)
	}

	rows := make([]PositionRow, 0, len(raw))
	for _, p := range raw {
		if p.Info == nil {
			continue
		}
		row := positionRowFromInfo(p.Info)
		if row.Symbol == "" {
			continue
		}
		if symbol != "" && row.Symbol != symbol {
			continue
		}
		rows = append(rows, row)
	}

	return rows, nil
}

func (c *Client) ensureMarketsLoaded(ctx context.Context) error {
	c.marketsMu.Lock()
	defer c.marketsMu.Unlock()

	if c.marketsLoaded {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := c.loadMarkets(); err != nil {
		return err
	}

	c.marketsLoaded = true
	c.logger.Info("已完成市场元数据加载", zap.String("category", c.cfg.Category))
	return nil
}

func (c *Client) callWithRetry(ctx context.Context, operation string, fn func() error) error {
	maxAttempts := c.cfg.Retry.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	delay := c.cfg.Retry.MinDelay
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}
	maxDelay := c.cfg.Retry.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 5 * time.Second
	}

	for attempt := 1; ; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		start := time.Now()
		err := fn()
		latency := time.Since(start)
		if err == nil {
			if attempt > 1 {
				c.logger.Info("交易所调用重试后成功",
					zap.String("operation", operation),
					zap.Int("attempts", attempt),
					zap.Duration("latency", latency),
				)
			}
			return nil
		}

		normalizedErr, retry := classifyError(err)
		if errors.Is(normalizedErr, ErrMaintenance) {
			c.logger.Warn("交易所维护中", zap.String("operation", operation), zap.Error(normalizedErr))
			return normalizedErr
		}

		if !retry || attempt >= maxAttempts {
			return normalizedErr
		}

		wait := min(delay, maxDelay)
		c.logger.Warn("交易所调用失败，等待重试",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(normalizedErr),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
	}
}
