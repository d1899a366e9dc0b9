package position

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"trades-signal/internal/exchange"
)

func TestEstimateNotional_FallbackOrder(t *testing.T) {
	exact := EstimateNotional(exchange.PositionRow{Size: dec("1"), PositionValue: dec("150.005"), AvgPrice: dec("1")})
	assert.True(t, exact.Known)
	assert.False(t, exact.Approximate)
	assert.Equal(t, "150.00", exact.Value.StringFixed(2))

	byAvg := EstimateNotional(exchange.PositionRow{Size: dec("-2"), AvgPrice: dec("10.555"), MarkPrice: dec("11")})
	assert.True(t, byAvg.Approximate)
	assert.Equal(t, "21.11", byAvg.Value.StringFixed(2))

	byMark := EstimateNotional(exchange.PositionRow{Size: dec("2"), MarkPrice: dec("11")})
	assert.True(t, byMark.Approximate)
	assert.Equal(t, "22.00", byMark.Value.StringFixed(2))

	none := EstimateNotional(exchange.PositionRow{Size: dec("2")})
	assert.False(t, none.Known)

	flat := EstimateNotional(exchange.PositionRow{AvgPrice: dec("10")})
	assert.False(t, flat.Known)
}

func TestPriceCache_WaitNotional(t *testing.T) {
	cache := NewPriceCache()
	_, ok := cache.WaitNotional(context.Background(), "XYZ", dec("1"), 3, time.Millisecond)
	assert.False(t, ok)

	cache.Set("XYZ", dec("0"))
	_, ok = cache.Get("XYZ")
	assert.False(t, ok, "non-positive prices are not cached")

	cache.Set("XYZ", dec("0.333"))
	value, ok := cache.WaitNotional(context.Background(), "XYZ", dec("-3"), 3, time.Millisecond)
	assert.True(t, ok)
	assert.Equal(t, "0.99", value.StringFixed(2))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, ok = cache.WaitNotional(ctx, "ABC", dec("1"), 5, time.Second)
	assert.False(t, ok)
}

func TestClassify(t *testing.T) {
	cases := []struct {
		prev, next string
		want       Transition
	}{
		{"0", "1", TransitionOpened},
		{"0", "-1", TransitionOpened},
		{"1", "0", TransitionClosed},
		{"2", "1", TransitionPartial},
		{"-2", "-1", TransitionPartial},
		{"1", "2", TransitionUpdate},
		{"1", "1", TransitionUpdate},
		{"0", "0", TransitionUpdate},
		{"1", "-1", TransitionUpdate},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Classify(dec(tc.prev), dec(tc.next)), "%s -> %s", tc.prev, tc.next)
	}
}
