package exchange

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"trades-signal/internal/format"
)

// wireValue 接受字符串、数字、布尔或 null，统一保存为字符串。
type wireValue string

func (v *wireValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*v = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = wireValue(strings.TrimSpace(s))
		return nil
	}
	*v = wireValue(data)
	return nil
}

func (v wireValue) decimal() decimal.Decimal {
	return format.ParseOrZero(string(v))
}

func firstValue(values ...wireValue) wireValue {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstNonZero(values ...wireValue) decimal.Decimal {
	for _, v := range values {
		if d := v.decimal(); !d.IsZero() {
			return d
		}
	}
	return decimal.Zero
}

type wirePosition struct {
	Symbol        wireValue `json:"symbol"`
	Side          wireValue `json:"side"`
	Size          wireValue `json:"size"`
	AvgPrice      wireValue `json:"avgPrice"`
	AvgPriceSnake wireValue `json:"avg_price"`
	EntryPrice    wireValue `json:"entryPrice"`
	Leverage      wireValue `json:"leverage"`
	LeverageEr    wireValue `json:"leverageEr"`
	MarkPrice     wireValue `json:"markPrice"`
	MarkPriceSnk  wireValue `json:"mark_price"`
	PositionValue wireValue `json:"positionValue"`
	PositionValSn wireValue `json:"position_value"`
}

func (w wirePosition) row() PositionRow {
	return PositionRow{
		Symbol:        string(w.Symbol),
		Side:          NormalizeSide(string(w.Side)),
		Size:          w.Size.decimal(),
		AvgPrice:      firstNonZero(w.AvgPrice, w.AvgPriceSnake, w.EntryPrice),
		Leverage:      string(firstValue(w.Leverage, w.LeverageEr)),
		MarkPrice:     firstNonZero(w.MarkPrice, w.MarkPriceSnk),
		PositionValue: firstNonZero(w.PositionValue, w.PositionValSn),
	}
}

type wireExecution struct {
	Symbol     wireValue `json:"symbol"`
	Side       wireValue `json:"side"`
	ExecPrice  wireValue `json:"execPrice"`
	OrderPrice wireValue `json:"orderPrice"`
	Price      wireValue `json:"price"`
	ExecValue  wireValue `json:"execValue"`
	ExecQty    wireValue `json:"execQty"`
	ExecFee    wireValue `json:"execFee"`
	ClosedSize wireValue `json:"closedSize"`
	ExecID     wireValue `json:"execId"`
}

func (w wireExecution) row() ExecutionRow {
	price := firstNonZero(w.ExecPrice, w.OrderPrice, w.Price)
	value, hasValue := format.Parse(string(w.ExecValue))
	return ExecutionRow{
		Symbol:     string(w.Symbol),
		Side:       normalizeExecSide(string(w.Side)),
		Price:      price,
		Value:      value,
		HasValue:   hasValue,
		Qty:        w.ExecQty.decimal(),
		Fee:        w.ExecFee.decimal(),
		ClosedSize: w.ClosedSize.decimal(),
		ExecID:     string(w.ExecID),
	}
}

// normalizeExecSide 将 buy/BUY 统一为 Buy。
func normalizeExecSide(side string) string {
	switch NormalizeSide(side) {
	case "BUY":
		return "Buy"
	case "SELL":
		return "Sell"
	default:
		return strings.TrimSpace(side)
	}
}

type wireEnvelope struct {
	Topic   string          `json:"topic"`
	Op      string          `json:"op"`
	Success *bool           `json:"success"`
	RetMsg  string          `json:"ret_msg"`
	Data    json.RawMessage `json:"data"`
}

// decodeRows 兼容 data 为数组或单个对象两种形态。
func decodeRows[T any](raw json.RawMessage) ([]T, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] == '{' {
		var one T
		if err := json.Unmarshal(raw, &one); err != nil {
			return nil, err
		}
		return []T{one}, nil
	}
	var many []T
	if err := json.Unmarshal(raw, &many); err != nil {
		return nil, err
	}
	return many, nil
}

// DecodeMessage 将原始推送解析为 Message。
// 非仓位/成交主题返回 ok=false；仅结构损坏时返回错误。
func DecodeMessage(payload []byte, receivedAt time.Time) (Message, bool, error) {
	var env wireEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return Message{}, false, fmt.Errorf("exchange: 解析推送失败: %w", err)
	}

	msg := Message{Topic: Topic(env.Topic), ReceivedAt: receivedAt}
	switch msg.Topic {
	case TopicPosition:
		rows, err := decodeRows[wirePosition](env.Data)
		if err != nil {
			return Message{}, false, fmt.Errorf("exchange: 解析仓位推送失败: %w", err)
		}
		msg.Positions = positionRows(rows)
	case TopicExecution:
		rows, err := decodeRows[wireExecution](env.Data)
		if err != nil {
			return Message{}, false, fmt.Errorf("exchange: 解析成交推送失败: %w", err)
		}
		for _, r := range rows {
			if exec := r.row(); exec.Symbol != "" {
				msg.Executions = append(msg.Executions, exec)
			}
		}
	default:
		return Message{}, false, nil
	}

	return msg, true, nil
}

// positionRows 转换并丢弃缺少 symbol 的行。
func positionRows(rows []wirePosition) []PositionRow {
	out := make([]PositionRow, 0, len(rows))
	for _, r := range rows {
		if row := r.row(); row.Symbol != "" {
			out = append(out, row)
		}
	}
	return out
}

// positionRowFromInfo 从 REST 返回的原始字典构造仓位行。
func positionRowFromInfo(info map[string]interface{}) PositionRow {
	w := wirePosition{
		Symbol:        infoValue(info["symbol"]),
		Side:          infoValue(info["side"]),
		Size:          infoValue(info["size"]),
		AvgPrice:      infoValue(info["avgPrice"]),
		AvgPriceSnake: infoValue(info["avg_price"]),
		Leverage:      infoValue(info["leverage"]),
		MarkPrice:     infoValue(info["markPrice"]),
		PositionValue: infoValue(info["positionValue"]),
	}
	return w.row()
}

func infoValue(value interface{}) wireValue {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return wireValue(strings.TrimSpace(v))
	case *string:
		if v != nil {
			return wireValue(strings.TrimSpace(*v))
		}
	case float64:
		return wireValue(strconv.FormatFloat(v, 'f', -1, 64))
	case int64:
		return wireValue(strconv.FormatInt(v, 10))
	case int:
		return wireValue(strconv.Itoa(v))
	case json.Number:
		return wireValue(v.String())
	case fmt.Stringer:
		return wireValue(strings.TrimSpace(v.String()))
	}
	return ""
}
