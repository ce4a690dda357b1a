package pools

import (
	"github.com/shopspring/decimal"

	"github.com/becomeliminal/dlmm-scout/core"
)

var daysPerYear = decimal.NewFromInt(365)

// Format builds the display view of p for an investment of amount (USD) under style.
// Daily earnings are the pool's fee APY pro-rated to one day, rounded to cents.
func Format(p core.Pool, amount decimal.Decimal, style core.PortfolioStyle) core.FormattedPool {
	apy := decimal.NewFromFloat(p.APY.Float64())
	daily := amount.Mul(apy).Div(daysPerYear).Round(2)

	return core.FormattedPool{
		Name:                   p.Name,
		Address:                p.Address,
		Liquidity:              p.Liquidity,
		CurrentPrice:           p.CurrentPrice.Float64(),
		APY:                    p.APY.Float64(),
		Fees24h:                p.Fees24h.Float64(),
		Volume24h:              p.TradeVolume24h.Float64(),
		BinStep:                p.BinStepOrZero(),
		EstimatedDailyEarnings: daily.StringFixed(2),
		InvestmentAmount:       amount.StringFixed(2),
		RiskLevel:              string(style),
	}
}
