package position

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"trades-signal/internal/exchange"
	"trades-signal/internal/format"
)

// Notional 是仓位名义价值的估算结果。Known 为 false 时不应展示。
type Notional struct {
	Value       decimal.Decimal
	Approximate bool
	Known       bool
}

// EstimateNotional 依次尝试 positionValue、|size|*avgPrice、|size|*markPrice，
// 后两者标记为近似值。结果按美分向零截断。
func EstimateNotional(row exchange.PositionRow) Notional {
	if row.PositionValue.IsPositive() {
		return Notional{Value: format.RoundUSD(row.PositionValue), Known: true}
	}

	size := row.Size.Abs()
	if size.IsZero() {
		return Notional{}
	}
	for _, price := range []decimal.Decimal{row.AvgPrice, row.MarkPrice} {
		if price.IsPositive() {
			return Notional{Value: format.RoundUSD(size.Mul(price)), Approximate: true, Known: true}
		}
	}
	return Notional{}
}

// PriceCache 记录每个交易对最近一次成交价。
type PriceCache struct {
	mu     sync.RWMutex
	prices map[string]decimal.Decimal
}

// NewPriceCache 创建空缓存。
func NewPriceCache() *PriceCache {
	return &PriceCache{prices: make(map[string]decimal.Decimal)}
}

// Set 更新成交价，非正价格被忽略。
func (c *PriceCache) Set(symbol string, price decimal.Decimal) {
	if symbol == "" || !price.IsPositive() {
		return
	}
	c.mu.Lock()
	c.prices[symbol] = price
	c.mu.Unlock()
}

// Get 读取成交价。
func (c *PriceCache) Get(symbol string) (decimal.Decimal, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	price, ok := c.prices[symbol]
	return price, ok
}

// WaitNotional 最多轮询 tries 次成交价缓存，命中后返回 |size|*price。
func (c *PriceCache) WaitNotional(ctx context.Context, symbol string, size decimal.Decimal, tries int, delay time.Duration) (decimal.Decimal, bool) {
	for i := 0; i < tries; i++ {
		if price, ok := c.Get(symbol); ok {
			return format.RoundUSD(size.Abs().Mul(price)), true
		}
		if i == tries-1 {
			break
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return decimal.Zero, false
		case <-timer.C:
		}
	}
	return decimal.Zero, false
}
