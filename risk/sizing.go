package risk

import (
	"errors"
	"math"

	"github.com/shopspring/decimal"

	"github.com/glockyhere/mt5bot/broker"
)

// ErrZeroStopDistance reports a stop placed exactly at the entry price. A
// zero distance makes position sizing undefined and must never silently
// produce an oversized order.
var ErrZeroStopDistance = errors.New("risk: zero stop distance")

// SizeInputs carries everything the volume calculation needs. The quote
// supplies the symbol's point, contract size and volume constraints.
type SizeInputs struct {
	Equity     float64
	RiskPct    float64
	EntryPrice float64
	StopPrice  float64
	Quote      broker.Quote
}

// SizeResult reports the computed volume and its intermediates.
type SizeResult struct {
	Volume       float64
	PointsAtRisk float64
	RiskAmount   float64
}

// Size converts a risk fraction and stop distance into a broker-legal
// volume. Rounding is always toward the direction that does not increase
// risk past the cap: round down to the volume step, then clamp into
// [VolumeMin, VolumeMax].
func Size(in SizeInputs) (SizeResult, error) {
	q := in.Quote

	point := q.Point
	if point <= 0 {
		point = 0.0001
	}

	pointsAtRisk := math.Abs(in.EntryPrice-in.StopPrice) / point
	if pointsAtRisk == 0 {
		return SizeResult{}, ErrZeroStopDistance
	}

	riskAmount := in.Equity * in.RiskPct
	valuePerPoint := q.ContractSize * point
	raw := riskAmount / (pointsAtRisk * valuePerPoint)

	volume := quantizeDown(raw, q.VolumeStep)
	if q.VolumeMin > 0 && volume < q.VolumeMin {
		volume = q.VolumeMin
	}
	if q.VolumeMax > 0 && volume > q.VolumeMax {
		volume = q.VolumeMax
	}

	return SizeResult{
		Volume:       volume,
		PointsAtRisk: pointsAtRisk,
		RiskAmount:   riskAmount,
	}, nil
}

// quantizeDown floors volume to the nearest multiple of step. Done in
// decimal arithmetic: float modulo on lot steps like 0.01 is where sizing
// bugs live.
func quantizeDown(volume, step float64) float64 {
	if step <= 0 {
		return volume
	}
	v := decimal.NewFromFloat(volume)
	s := decimal.NewFromFloat(step)
	steps := v.Div(s).Floor()
	out, _ := steps.Mul(s).Float64()
	return out
}

// ValidateOrder checks volume, stop and take-profit against the symbol's
// constraints. A zero stop or take means unset and is skipped; a nonzero one
// must sit on the protective side of entry for the given direction. Like
// CanOpen it reports business problems as (false, reason).
func ValidateOrder(q broker.Quote, side broker.Side, volume, entry, stopLoss, takeProfit float64) (bool, string) {
	if q.VolumeMin > 0 && volume < q.VolumeMin {
		return false, "volume below symbol minimum"
	}
	if q.VolumeMax > 0 && volume > q.VolumeMax {
		return false, "volume above symbol maximum"
	}
	if q.VolumeStep > 0 {
		v := decimal.NewFromFloat(volume)
		s := decimal.NewFromFloat(q.VolumeStep)
		if !v.Mod(s).IsZero() {
			return false, "volume not a multiple of symbol step"
		}
	}
	if stopLoss != 0 {
		if side == broker.Buy && stopLoss >= entry {
			return false, "stop loss not below entry"
		}
		if side == broker.Sell && stopLoss <= entry {
			return false, "stop loss not above entry"
		}
	}
	if takeProfit != 0 {
		if side == broker.Buy && takeProfit <= entry {
			return false, "take profit not above entry"
		}
		if side == broker.Sell && takeProfit >= entry {
			return false, "take profit not below entry"
		}
	}
	return true, "OK"
}

// RewardRatio returns reward/risk for the given levels, 0 when undefined.
func RewardRatio(entry, stopLoss, takeProfit float64) float64 {
	if stopLoss == 0 || takeProfit == 0 {
		return 0
	}
	riskDist := math.Abs(entry - stopLoss)
	if riskDist == 0 {
		return 0
	}
	return math.Abs(takeProfit-entry) / riskDist
}
