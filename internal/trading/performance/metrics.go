package performance

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Alias1177/SignalScanner/models"
)

// Report summarizes realized prediction outcomes. Percent values are in
// percentage points of the entry price.
type Report struct {
	From   time.Time `json:"from"`
	To     time.Time `json:"to"`
	Trades int       `json:"trades"`
	Wins   int       `json:"wins"`
	Losses int       `json:"losses"`

	SuccessRate  float64 `json:"success_rate"` // 0-100
	AverageGain  float64 `json:"average_gain"`
	AverageLoss  float64 `json:"average_loss"` // positive
	ProfitFactor float64 `json:"profit_factor"`
	TotalReturn  float64 `json:"total_return"` // compounded
	MaxDrawdown  float64 `json:"max_drawdown"`
	SharpeRatio  float64 `json:"sharpe_ratio"` // per trade, not annualized

	BySymbol       map[string]SymbolStats `json:"by_symbol"`
	MonthlyReturns map[string]float64     `json:"monthly_returns"`
}

// SymbolStats is the per-symbol slice of a report
type SymbolStats struct {
	Trades      int     `json:"trades"`
	Wins        int     `json:"wins"`
	SuccessRate float64 `json:"success_rate"`
	TotalPnL    float64 `json:"total_pnl"`
}

var hundred = decimal.NewFromInt(100)

// Calculate builds a report from outcomes in any order. A zero-pnl outcome
// counts as neither a win nor a loss.
func Calculate(outcomes []models.Outcome) Report {
	report := Report{
		BySymbol:       make(map[string]SymbolStats),
		MonthlyReturns: make(map[string]float64),
	}
	if len(outcomes) == 0 {
		return report
	}

	sorted := append([]models.Outcome(nil), outcomes...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ClosedAt.Before(sorted[j].ClosedAt)
	})
	report.From = sorted[0].ClosedAt
	report.To = sorted[len(sorted)-1].ClosedAt
	report.Trades = len(sorted)

	grossGain, grossLoss := decimal.Zero, decimal.Zero
	monthly := make(map[string]decimal.Decimal)
	symbolPnL := make(map[string]decimal.Decimal)
	returns := make([]float64, 0, len(sorted))

	equity := decimal.NewFromInt(1)
	peak := equity
	maxDrawdown := decimal.Zero

	for _, o := range sorted {
		pnl := decimal.NewFromFloat(o.PnLPercent)
		returns = append(returns, o.PnLPercent)

		stats := report.BySymbol[o.Symbol]
		stats.Trades++
		switch {
		case pnl.IsPositive():
			report.Wins++
			stats.Wins++
			grossGain = grossGain.Add(pnl)
		case pnl.IsNegative():
			report.Losses++
			grossLoss = grossLoss.Add(pnl.Neg())
		}
		report.BySymbol[o.Symbol] = stats
		symbolPnL[o.Symbol] = symbolPnL[o.Symbol].Add(pnl)

		month := o.ClosedAt.UTC().Format("2006-01")
		monthly[month] = monthly[month].Add(pnl)

		equity = equity.Mul(decimal.NewFromInt(1).Add(pnl.Div(hundred)))
		if equity.GreaterThan(peak) {
			peak = equity
		}
		if peak.IsPositive() {
			if dd := peak.Sub(equity).Div(peak); dd.GreaterThan(maxDrawdown) {
				maxDrawdown = dd
			}
		}
	}

	report.SuccessRate = percentOf(report.Wins, report.Trades)
	if report.Wins > 0 {
		report.AverageGain = grossGain.Div(decimal.NewFromInt(int64(report.Wins))).Round(6).InexactFloat64()
	}
	if report.Losses > 0 {
		report.AverageLoss = grossLoss.Div(decimal.NewFromInt(int64(report.Losses))).Round(6).InexactFloat64()
	}
	if grossLoss.IsPositive() {
		report.ProfitFactor = grossGain.Div(grossLoss).Round(6).InexactFloat64()
	}
	report.TotalReturn = equity.Sub(decimal.NewFromInt(1)).Mul(hundred).Round(6).InexactFloat64()
	report.MaxDrawdown = maxDrawdown.Mul(hundred).Round(6).InexactFloat64()

	if sd := stdDev(returns, mean(returns)); sd > 0 {
		report.SharpeRatio = mean(returns) / sd
	}

	for month, v := range monthly {
		report.MonthlyReturns[month] = v.Round(6).InexactFloat64()
	}
	for symbol, stats := range report.BySymbol {
		stats.SuccessRate = percentOf(stats.Wins, stats.Trades)
		stats.TotalPnL = symbolPnL[symbol].Round(6).InexactFloat64()
		report.BySymbol[symbol] = stats
	}
	return report
}

func percentOf(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stdDev(values []float64, mean float64) float64 {
	if len(values) < 2 {
		return 0
	}
	var sumSquaredDiff float64
	for _, v := range values {
		diff := v - mean
		sumSquaredDiff += diff * diff
	}
	return math.Sqrt(sumSquaredDiff / float64(len(values)-1))
}

// Format renders the report as a Markdown message
func (r Report) Format() string {
	if r.Trades == 0 {
		return "*Performance report*\nNo closed predictions yet."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "*Performance report* (%s to %s)\n", r.From.Format("2006-01-02"), r.To.Format("2006-01-02"))
	fmt.Fprintf(&b, "Trades: %d (wins %d, losses %d)\n", r.Trades, r.Wins, r.Losses)
	fmt.Fprintf(&b, "Success rate: %.1f%%\n", r.SuccessRate)
	fmt.Fprintf(&b, "Avg gain: %.2f%% | Avg loss: %.2f%%\n", r.AverageGain, r.AverageLoss)
	fmt.Fprintf(&b, "Profit factor: %.2f\n", r.ProfitFactor)
	fmt.Fprintf(&b, "Total return: %.2f%% | Max drawdown: %.2f%%\n", r.TotalReturn, r.MaxDrawdown)

	symbols := make([]string, 0, len(r.BySymbol))
	for s := range r.BySymbol {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	if len(symbols) > 0 {
		b.WriteString("\n*By symbol*\n")
	}
	for _, s := range symbols {
		st := r.BySymbol[s]
		fmt.Fprintf(&b, "%s: %d trades, %.0f%% wins, %+.2f%%\n", s, st.Trades, st.SuccessRate, st.TotalPnL)
	}
	return b.String()
}
