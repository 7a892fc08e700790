package bot

import (
	"log"
	"sync"

	"github.com/shopspring/decimal"
)

// RiskLimits defines the thresholds a candidate order is checked against.
// Exposure limits are notional (quantity · price); a zero limit disables
// that check.
type RiskLimits struct {
	MaxPositionSize   decimal.Decimal `json:"maxPositionSize"`
	MaxSymbolExposure decimal.Decimal `json:"maxSymbolExposure"`
	MaxTotalExposure  decimal.Decimal `json:"maxTotalExposure"`
	MaxDailyLoss      decimal.Decimal `json:"maxDailyLoss"`
	MaxOpenPositions  int             `json:"maxOpenPositions"`
}

// DefaultRiskLimits returns conservative defaults for paper trading.
func DefaultRiskLimits() RiskLimits {
	return RiskLimits{
		MaxPositionSize:   decimal.NewFromInt(10),
		MaxSymbolExposure: decimal.NewFromInt(100000),
		MaxTotalExposure:  decimal.NewFromInt(500000),
		MaxDailyLoss:      decimal.NewFromInt(5000),
		MaxOpenPositions:  5,
	}
}

// RiskManager validates candidate orders against limits and tracks the
// running daily PnL.
type RiskManager struct {
	mu       sync.RWMutex
	limits   RiskLimits
	dailyPnL decimal.Decimal
}

func NewRiskManager(limits RiskLimits) *RiskManager {
	return &RiskManager{limits: limits}
}

// Check reports whether the order is allowed at the given mark price.
// A false result carries the reason.
func (rm *RiskManager) Check(symbol string, side string, qty, mark decimal.Decimal, acct Account) (bool, string) {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	if rm.limits.MaxDailyLoss.IsPositive() && rm.dailyPnL.LessThan(rm.limits.MaxDailyLoss.Neg()) {
		return false, "max daily loss reached"
	}

	pos, havePos := acct.Position(symbol)

	signed := qty
	if side == "SELL" {
		signed = signed.Neg()
	}
	resulting := signed
	if havePos {
		resulting = pos.Quantity.Add(signed)
	}
	if rm.limits.MaxPositionSize.IsPositive() && resulting.Abs().GreaterThan(rm.limits.MaxPositionSize) {
		return false, "position size exceeds limit"
	}

	if rm.limits.MaxSymbolExposure.IsPositive() {
		if resulting.Abs().Mul(mark).GreaterThan(rm.limits.MaxSymbolExposure) {
			return false, "symbol exposure exceeds limit"
		}
	}

	if rm.limits.MaxOpenPositions > 0 && !havePos && !resulting.IsZero() {
		if len(acct.Positions()) >= rm.limits.MaxOpenPositions {
			return false, "max open positions reached"
		}
	}

	if rm.limits.MaxTotalExposure.IsPositive() {
		total := resulting.Abs().Mul(mark)
		for _, p := range acct.Positions() {
			if p.Symbol == symbol {
				continue
			}
			total = total.Add(p.Exposure())
		}
		if total.GreaterThan(rm.limits.MaxTotalExposure) {
			return false, "total exposure exceeds limit"
		}
	}

	return true, ""
}

// RecordPnL folds realized PnL into the daily counter.
func (rm *RiskManager) RecordPnL(pnl decimal.Decimal) {
	rm.mu.Lock()
	rm.dailyPnL = rm.dailyPnL.Add(pnl)
	daily := rm.dailyPnL
	rm.mu.Unlock()
	log.Printf("[risk] daily PnL: %s", daily)
}

// ResetDaily zeroes the daily loss counter, typically at UTC midnight.
func (rm *RiskManager) ResetDaily() {
	rm.mu.Lock()
	rm.dailyPnL = decimal.Zero
	rm.mu.Unlock()
}

// Status returns the current risk state for diagnostics.
func (rm *RiskManager) Status() map[string]any {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return map[string]any{
		"dailyPnl": rm.dailyPnL,
		"limits":   rm.limits,
	}
}
