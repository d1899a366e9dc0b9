// Package format 负责交易所数值字符串的精确解析与展示格式化。
// 所有金额、数量均使用 decimal，不经过浮点数。
package format

import (
	"strings"

	"github.com/shopspring/decimal"
)

const (
	// QtyDecimals 为数量展示的最大小数位。
	QtyDecimals = 6
	// USDDecimals 为美元金额的小数位。
	USDDecimals = 2
)

var (
	one      = decimal.NewFromInt(1)
	oneTenth = decimal.New(1, -1)
)

// Parse 解析数值字符串，空串或非法内容返回 ok=false。
func Parse(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// ParseOrZero 解析失败时返回 0。
func ParseOrZero(s string) decimal.Decimal {
	d, _ := Parse(s)
	return d
}

// RoundUSD 按美分向零截断。
func RoundUSD(d decimal.Decimal) decimal.Decimal {
	return d.Truncate(USDDecimals)
}

// Qty 输出最多 6 位小数且去除末尾 0 的数量。
func Qty(d decimal.Decimal) string {
	if d.IsZero() {
		return "0"
	}
	return d.Truncate(QtyDecimals).String()
}

// PriceDecimals 按价格量级选择精度：>=1 保留 2 位，>=0.1 保留 4 位，其余 6 位。
func PriceDecimals(d decimal.Decimal) int32 {
	switch {
	case d.GreaterThanOrEqual(one):
		return 2
	case d.GreaterThanOrEqual(oneTenth):
		return 4
	default:
		return 6
	}
}

// Price 返回价格文本，0 视为缺失。
func Price(d decimal.Decimal) (string, bool) {
	if d.IsZero() {
		return "", false
	}
	places := PriceDecimals(d)
	return d.Truncate(places).StringFixed(places), true
}

// USD 返回形如 "$30 000.00" 的金额，0 视为缺失。
func USD(d decimal.Decimal) (string, bool) {
	if d.IsZero() {
		return "", false
	}
	return USDSigned(d), true
}

// USDSigned 总是返回金额文本，负数前置 "-"。
func USDSigned(d decimal.Decimal) string {
	sign := ""
	if d.IsNegative() {
		sign = "-"
	}
	fixed := RoundUSD(d.Abs()).StringFixed(USDDecimals)
	intPart, fracPart, _ := strings.Cut(fixed, ".")
	return sign + "$" + groupThousands(intPart) + "." + fracPart
}

// Pct 返回保留 2 位小数（向零截断）的百分比数值。
func Pct(d decimal.Decimal) string {
	return d.Truncate(2).StringFixed(2)
}

// Leverage 将杠杆字符串渲染为 "x10"，缺失或非正时 ok=false。
func Leverage(raw string) (string, bool) {
	d, ok := Parse(raw)
	if !ok || !d.IsPositive() {
		return "", false
	}
	return "x" + d.Truncate(0).String(), true
}

func groupThousands(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	head := len(digits) % 3
	if head > 0 {
		b.WriteString(digits[:head])
	}
	for i := head; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}
