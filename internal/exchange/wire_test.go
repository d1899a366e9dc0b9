package exchange

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestDecodeMessage_Position(t *testing.T) {
	payload := []byte(`{"topic":"position","data":[
		{"symbol":"BTCUSDT","side":"Buy","size":"0.5","avgPrice":"60000","leverage":"10","markPrice":"60100","positionValue":"30000"},
		{"symbol":"ETHUSDT","side":"","size":"0","avg_price":"3000","leverageEr":"5","markPrice":null,"positionValue":""},
		{"side":"Sell","size":"1"}
	]}`)
	now := time.Unix(1700000000, 0)

	msg, ok, err := DecodeMessage(payload, now)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, TopicPosition, msg.Topic)
	assert.Equal(t, now, msg.ReceivedAt)
	require.Len(t, msg.Positions, 2, "row without symbol is dropped")

	btc := msg.Positions[0]
	assert.Equal(t, "BTCUSDT", btc.Symbol)
	assert.Equal(t, "BUY", btc.Side)
	assert.True(t, btc.Size.Equal(dec("0.5")))
	assert.True(t, btc.AvgPrice.Equal(dec("60000")))
	assert.Equal(t, "10", btc.Leverage)
	assert.True(t, btc.PositionValue.Equal(dec("30000")))

	eth := msg.Positions[1]
	assert.Equal(t, "", eth.Side)
	assert.True(t, eth.Size.IsZero())
	assert.True(t, eth.AvgPrice.Equal(dec("3000")), "avg_price alias")
	assert.Equal(t, "5", eth.Leverage, "leverageEr alias")
	assert.True(t, eth.MarkPrice.IsZero())
	assert.True(t, eth.PositionValue.IsZero())
}

func TestDecodeMessage_SingleObjectAndNumbers(t *testing.T) {
	payload := []byte(`{"topic":"position","data":{"symbol":"XYZ","side":"Sell","size":2,"avgPrice":"abc","markPrice":1.5}}`)

	msg, ok, err := DecodeMessage(payload, time.Now())
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, msg.Positions, 1)
	row := msg.Positions[0]
	assert.Equal(t, "SELL", row.Side)
	assert.True(t, row.Size.Equal(dec("2")))
	assert.True(t, row.AvgPrice.IsZero(), "unparsable field becomes zero")
	assert.True(t, row.MarkPrice.Equal(dec("1.5")))
}

func TestDecodeMessage_Execution(t *testing.T) {
	payload := []byte(`{"topic":"execution","data":[
		{"symbol":"XYZ","side":"buy","execPrice":"","orderPrice":"2.5","execQty":"4","execFee":"0.01","execId":"e-1"},
		{"symbol":"XYZ","side":"Sell","execPrice":"3","execValue":"9","execQty":"3","closedSize":"3"}
	]}`)

	msg, ok, err := DecodeMessage(payload, time.Now())
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, msg.Executions, 2)

	first := msg.Executions[0]
	assert.Equal(t, "Buy", first.Side)
	assert.True(t, first.Price.Equal(dec("2.5")), "orderPrice fallback")
	assert.False(t, first.HasValue)
	assert.True(t, first.Fee.Equal(dec("0.01")))
	assert.Equal(t, "e-1", first.ExecID)

	second := msg.Executions[1]
	assert.True(t, second.HasValue)
	assert.True(t, second.Value.Equal(dec("9")))
	assert.True(t, second.ClosedSize.Equal(dec("3")))
}

func TestDecodeMessage_OtherTopicsIgnored(t *testing.T) {
	_, ok, err := DecodeMessage([]byte(`{"topic":"order","data":[]}`), time.Now())
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = DecodeMessage([]byte(`{not json`), time.Now())
	assert.Error(t, err)
}

func TestPositionRowFromInfo(t *testing.T) {
	row := positionRowFromInfo(map[string]interface{}{
		"symbol":        "BTCUSDT",
		"side":          "Buy",
		"size":          "0.25",
		"avgPrice":      "0",
		"avg_price":     64000.5,
		"leverage":      "3",
		"positionValue": nil,
	})
	assert.Equal(t, "BTCUSDT", row.Symbol)
	assert.Equal(t, "BUY", row.Side)
	assert.True(t, row.Size.Equal(dec("0.25")))
	assert.True(t, row.AvgPrice.Equal(dec("64000.5")))
	assert.True(t, row.PositionValue.IsZero())
}
