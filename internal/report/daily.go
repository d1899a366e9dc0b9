package report

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"trades-signal/internal/format"
	"trades-signal/internal/ledger"
)

const (
	dailyTitle = "🟢 今日已平仓交易统计:"
	emptyDaily = "暂无已平仓交易。"
)

// DealSource 抽象按平仓时间区间查询已平仓交易。
type DealSource interface {
	ClosedBetween(ctx context.Context, start, end int64, limit int) ([]ledger.Deal, error)
}

// Daily 汇总指定本地日内已平仓的交易。
type Daily struct {
	source   DealSource
	maxDeals int
	now      func() time.Time
}

// DailyReport 是日度统计结果。
type DailyReport struct {
	Start    time.Time       `json:"start"`
	End      time.Time       `json:"end"`
	Deals    int             `json:"deals"`
	TotalPnL decimal.Decimal `json:"total_pnl"`
	Text     string          `json:"text"`
}

// NewDaily 创建日度统计器。
func NewDaily(source DealSource, maxDeals int) *Daily {
	return &Daily{source: source, maxDeals: maxDeals, now: time.Now}
}

// Window 返回固定时区偏移下 now 所在本地日的 [start, end)。
func Window(now time.Time, offsetHours int) (time.Time, time.Time) {
	zone := time.FixedZone(fmt.Sprintf("UTC%+d", offsetHours), offsetHours*3600)
	local := now.In(zone)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, zone)
	return start, start.Add(24 * time.Hour)
}

// Build 生成当前本地日的统计。
func (d *Daily) Build(ctx context.Context, offsetHours int) (DailyReport, error) {
	start, end := Window(d.now(), offsetHours)
	deals, err := d.source.ClosedBetween(ctx, start.Unix(), end.Unix(), d.maxDeals)
	if err != nil {
		return DailyReport{}, fmt.Errorf("report: 查询日度交易失败: %w", err)
	}

	report := DailyReport{Start: start.UTC(), End: end.UTC(), Deals: len(deals), TotalPnL: decimal.Zero}
	if len(deals) == 0 {
		report.Text = dailyTitle + "\n\n" + emptyDaily
		return report, nil
	}

	lines := []string{dailyTitle, ""}
	for i, deal := range deals {
		pnl := format.RoundUSD(deal.RealizedPnL())
		report.TotalPnL = report.TotalPnL.Add(pnl)
		lines = append(lines, dealLines(i+1, deal, pnl)...)
	}

	lines = append(lines,
		"— 已平仓交易合计:",
		fmt.Sprintf("• 交易数: %d", len(deals)),
		fmt.Sprintf("• 总 PnL: %s", format.USDSigned(report.TotalPnL)),
	)
	report.Text = strings.Join(lines, "\n")
	return report, nil
}

func dealLines(idx int, deal ledger.Deal, pnl decimal.Decimal) []string {
	var (
		size        decimal.Decimal
		entry, exit decimal.Decimal
		direction   string
	)
	if isLong(deal) {
		direction = "Buy (多)"
		size = firstPositive(deal.BuyQty, deal.SellQty)
		entry = ratio(deal.BuyVal, deal.BuyQty)
		exit = ratio(deal.SellVal, deal.SellQty)
	} else {
		direction = "Sell (空)"
		size = firstPositive(deal.SellQty, deal.BuyQty)
		entry = ratio(deal.SellVal, deal.SellQty)
		exit = ratio(deal.BuyVal, deal.BuyQty)
	}

	outcome := "盈利"
	if pnl.IsNegative() {
		outcome = "亏损"
	}

	return []string{
		fmt.Sprintf("%d %s", idx, deal.Symbol),
		"• 方向: " + direction,
		"• 数量: " + format.Qty(size),
		"• 开仓价: " + priceUSDT(entry),
		"• 平仓价: " + priceUSDT(exit),
		fmt.Sprintf("• %s (PnL): %s", outcome, format.USDSigned(pnl)),
		"",
	}
}

// isLong 以交易方向为准，方向缺失时按买入数量是否占优判断。
func isLong(deal ledger.Deal) bool {
	switch strings.ToUpper(deal.Side) {
	case "BUY":
		return true
	case "SELL":
		return false
	default:
		return deal.BuyQty.GreaterThanOrEqual(deal.SellQty)
	}
}

func firstPositive(values ...decimal.Decimal) decimal.Decimal {
	for _, v := range values {
		if v.IsPositive() {
			return v
		}
	}
	return decimal.Zero
}

func ratio(value, qty decimal.Decimal) decimal.Decimal {
	if !qty.IsPositive() {
		return decimal.Zero
	}
	return value.Div(qty)
}

func priceUSDT(price decimal.Decimal) string {
	if s, ok := format.Price(price); ok {
		return s + " USDT"
	}
	return "—"
}
