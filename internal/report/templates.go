// Package report 渲染推送文本与日度统计。
package report

import (
	"fmt"
	"strings"

	"trades-signal/internal/format"
	"trades-signal/internal/position"
)

// Render 按事件类型渲染推送文本；不需要推送的事件返回 ok=false。
func Render(event position.Event) (string, bool) {
	switch event.Kind {
	case position.EventOpen:
		return RenderOpen(event), true
	case position.EventPartial:
		return RenderPartial(event), true
	case position.EventClose:
		return RenderClose(event), true
	default:
		return "", false
	}
}

// RenderOpen 渲染开仓通知。
func RenderOpen(event position.Event) string {
	var b strings.Builder
	header(&b, event.DealID, "🟢 开仓")
	fmt.Fprintf(&b, "%s %s\n", event.Side, event.Symbol)
	fmt.Fprintf(&b, "数量: %s\n", format.Qty(event.Size))
	line(&b, "杠杆", present(format.Leverage(event.Leverage)))
	line(&b, "开仓均价", present(format.Price(event.AvgPrice)))
	if event.Notional.Known {
		if usd, ok := format.USD(event.Notional.Value); ok {
			if event.Notional.Approximate {
				usd = "≈ " + usd
			}
			line(&b, "名义价值", usd)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// RenderPartial 渲染部分平仓通知。
func RenderPartial(event position.Event) string {
	var b strings.Builder
	header(&b, event.DealID, "🟧 部分平仓")
	fmt.Fprintf(&b, "%s %s\n", event.Side, event.Symbol)
	fmt.Fprintf(&b, "已平仓: %s%%\n", format.Pct(event.ClosedPct))
	fmt.Fprintf(&b, "剩余: %s\n", format.Qty(event.Size))
	line(&b, "开仓均价", present(format.Price(event.AvgPrice)))
	line(&b, "杠杆", present(format.Leverage(event.Leverage)))
	return strings.TrimRight(b.String(), "\n")
}

// RenderClose 渲染全部平仓通知。
func RenderClose(event position.Event) string {
	var b strings.Builder
	header(&b, event.DealID, "⬛ 全部平仓")
	fmt.Fprintf(&b, "%s %s\n", event.Side, event.Symbol)
	b.WriteString("仓位已全部平仓\n")
	fmt.Fprintf(&b, "PNL: %s\n", format.USDSigned(event.PnL))
	return strings.TrimRight(b.String(), "\n")
}

func header(b *strings.Builder, dealID int64, title string) {
	fmt.Fprintf(b, "交易 #%d\n%s\n\n", dealID, title)
}

// line 仅在取值存在时输出一行。
func line(b *strings.Builder, caption, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(b, "%s: %s\n", caption, value)
}

func present(value string, ok bool) string {
	if !ok {
		return ""
	}
	return value
}
