package market

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mohamedkhairy/vn-market-dashboard/internal/models"
)

// FlowPoint is one day of net foreign trading
type FlowPoint struct {
	Date     time.Time        `json:"date"`
	NetValue float64          `json:"net_value"`
	Close    float64          `json:"close"`
	Side     models.Direction `json:"side"`
}

// FlowSummary is the foreign trading history of one instrument
type FlowSummary struct {
	Code     string          `json:"code"`
	Points   []FlowPoint     `json:"points"`
	NetBuy   decimal.Decimal `json:"net_buy"`
	NetSell  decimal.Decimal `json:"net_sell"`
	Net      decimal.Decimal `json:"net"`
	BuyDays  int             `json:"buy_days"`
	SellDays int             `json:"sell_days"`
}

// ForeignFlow filters rows to code within [from, to] (zero bounds are open)
// and classifies each day: a non-negative net value is a buy day.
func ForeignFlow(rows []models.ForeignFlowRow, code string, from, to time.Time) FlowSummary {
	code = models.NormalizeCode(code)
	summary := FlowSummary{
		Code:    code,
		Points:  make([]FlowPoint, 0),
		NetBuy:  decimal.Zero,
		NetSell: decimal.Zero,
	}

	for _, r := range rows {
		if r.Code != code {
			continue
		}
		if !from.IsZero() && r.Date.Before(models.TruncateDay(from)) {
			continue
		}
		if !to.IsZero() && r.Date.After(models.TruncateDay(to)) {
			continue
		}

		p := FlowPoint{Date: r.Date, NetValue: r.NetValue, Close: r.Close, Side: models.DirectionBuy}
		value := decimal.NewFromFloat(r.NetValue)
		if r.NetValue < 0 {
			p.Side = models.DirectionSell
			summary.NetSell = summary.NetSell.Add(value)
			summary.SellDays++
		} else {
			summary.NetBuy = summary.NetBuy.Add(value)
			summary.BuyDays++
		}
		summary.Points = append(summary.Points, p)
	}

	sort.SliceStable(summary.Points, func(i, j int) bool {
		return summary.Points[i].Date.Before(summary.Points[j].Date)
	})
	summary.Net = summary.NetBuy.Add(summary.NetSell)
	return summary
}
