package score

import (
	"fmt"
	"log/slog"
	"math"
)

// ModelVersion is the current NWF scoring model version.
const ModelVersion = "2.0"

const (
	// Signal weights (sum to 1.0).
	trendWeight      = 0.25
	macdWeight       = 0.20
	rsiWeight        = 0.20
	volatilityWeight = 0.15
	volSpikeWeight   = 0.10
	aiWeight         = 0.10

	// Confidence clamps.
	confidenceFloor = 50
	confidenceCeil  = 95
)

// MaxComposite is the top of the composite score scale.
const MaxComposite = 10.0

// Neutral defaults applied when a signal was never observed.
const (
	DefaultRSI          = 50.0
	DefaultVolatility   = 5.0
	DefaultVolSpike     = 1.0
	DefaultAIConfidence = 50.0
)

// SignalWeight describes a scoring signal and its composite weight.
type SignalWeight struct {
	Name   string  `json:"name"`
	Weight float64 `json:"weight"`
}

// Signals holds the raw per-stock inputs to the NWF model.
type Signals struct {
	Price        float64 // Last close price
	MA20         float64 // 20-day simple moving average
	MA50         float64 // 50-day simple moving average
	MACD         float64 // MACD line (12,26)
	MACDSignal   float64 // MACD signal line (9-day EMA)
	RSI          float64 // 14-day relative strength index
	Volatility   float64 // 20-day close-to-close volatility, percent
	VolSpike     float64 // Last volume over 20-day average volume
	AIConfidence float64 // Upstream AI ensemble confidence (0-100)
	AvgVolume    float64 // 20-day average share volume
}

// Metrics is the full set of NWF metrics computed for one stock.
type Metrics struct {
	Score      float64 `json:"nwf_score" yaml:"nwfScore"`
	Confidence int     `json:"nwf_confidence" yaml:"nwfConfidence"`
	Liquidity  int     `json:"liquidity_score" yaml:"liquidityScore"`
	Robust     float64 `json:"nwf_robust_score" yaml:"nwfRobustScore"`
}

// DefaultSignals returns a Signals pre-filled with the model's neutral
// defaults. Callers overwrite the fields they actually observed.
func DefaultSignals() Signals {
	return Signals{
		RSI:          DefaultRSI,
		Volatility:   DefaultVolatility,
		VolSpike:     DefaultVolSpike,
		AIConfidence: DefaultAIConfidence,
	}
}

// Weights returns the model's signals with their composite weights.
func Weights() []SignalWeight {
	return []SignalWeight{
		{Name: "trend", Weight: trendWeight},
		{Name: "macd", Weight: macdWeight},
		{Name: "rsi", Weight: rsiWeight},
		{Name: "volatility", Weight: volatilityWeight},
		{Name: "volume_spike", Weight: volSpikeWeight},
		{Name: "ai_ensemble", Weight: aiWeight},
	}
}

// Compute returns all four NWF metrics for the given signals.
func Compute(s Signals) Metrics {
	composite := Composite(s)
	confidence := Confidence(s)

	return Metrics{
		Score:      composite,
		Confidence: confidence,
		Liquidity:  Liquidity(s.AvgVolume),
		Robust:     Robust(composite, confidence),
	}
}

// Composite returns the NWF composite score in [0.0, 10.0].
func Composite(s Signals) float64 {
	var composite float64

	// --- Signal 1: Trend (0.25) ---
	switch {
	case s.Price > s.MA20:
		composite += 2.5 // strong bullish
	case s.Price > s.MA50:
		composite += 1.5 // moderate bullish
	default:
		composite += 0.5 // bearish
	}
	slog.Debug(fmt.Sprintf("trend: %.2f (price=%.2f, ma20=%.2f, ma50=%.2f)",
		composite, s.Price, s.MA20, s.MA50))

	// --- Signal 2: MACD (0.20) ---
	switch {
	case s.MACD > s.MACDSignal && s.MACD > 0:
		composite += 2.0 // strong bullish
	case s.MACD > s.MACDSignal:
		composite += 1.5 // bullish cross
	case s.MACD < 0 && s.MACDSignal < 0:
		composite += 0.5 // bearish
	default:
		composite += 1.0 // mixed
	}
	slog.Debug(fmt.Sprintf("macd: %.2f (macd=%.4f, signal=%.4f)",
		composite, s.MACD, s.MACDSignal))

	// --- Signal 3: RSI (0.20) ---
	switch {
	case s.RSI >= 40 && s.RSI <= 60:
		composite += 2.0 // neutral zone
	case s.RSI >= 30 && s.RSI < 40:
		composite += 1.8 // oversold opportunity
	case s.RSI > 60 && s.RSI <= 70:
		composite += 1.5 // overbought but ok
	case s.RSI < 30:
		composite += 1.0 // deep oversold
	default:
		composite += 0.5 // too overbought
	}
	slog.Debug(fmt.Sprintf("rsi: %.2f (rsi=%.1f)", composite, s.RSI))

	// --- Signal 4: Volatility (0.15) ---
	switch {
	case s.Volatility < 3.0:
		composite += 1.5 // low risk
	case s.Volatility < 5.0:
		composite += 1.2 // medium risk
	case s.Volatility < 8.0:
		composite += 0.8 // high risk
	default:
		composite += 0.3 // very high risk
	}
	slog.Debug(fmt.Sprintf("volatility: %.2f (vol=%.2f)", composite, s.Volatility))

	// --- Signal 5: Volume spike (0.10) ---
	switch {
	case s.VolSpike >= 2.0:
		composite += 1.0 // high interest
	case s.VolSpike >= 1.5:
		composite += 0.8 // good interest
	case s.VolSpike >= 1.0:
		composite += 0.6 // normal
	default:
		composite += 0.3 // low interest
	}
	slog.Debug(fmt.Sprintf("volume spike: %.2f (spike=%.2f)", composite, s.VolSpike))

	// --- Signal 6: AI ensemble (0.10) ---
	composite += s.AIConfidence / 100 * 1.0
	slog.Debug(fmt.Sprintf("ai ensemble: %.2f (conf=%.1f)", composite, s.AIConfidence))

	result := toFixed(composite, 2)
	slog.Debug(fmt.Sprintf("composite: %.2f", result))
	return result
}

// Confidence returns the walk-forward confidence proxy in [50, 95].
func Confidence(s Signals) int {
	conf := float64(confidenceFloor)

	// --- Factor 1: AI agreement (±30%) ---
	conf += (s.AIConfidence - 50) * 0.3

	// --- Factor 2: Volatility stability (±10%) ---
	if s.Volatility < 4.0 {
		conf += 10
	} else if s.Volatility > 8.0 {
		conf -= 10
	}

	// --- Factor 3: Trend consistency (+15%) ---
	switch {
	case s.Price > s.MA20 && s.MA20 > s.MA50:
		conf += 15 // aligned uptrend
	case s.Price < s.MA20 && s.MA20 < s.MA50:
		conf += 10 // aligned downtrend
	default:
		conf += 5 // mixed
	}

	// --- Factor 4: RSI confirmation (+10%) ---
	if s.RSI >= 30 && s.RSI <= 70 {
		conf += 10
	}

	// --- Factor 5: MACD alignment (+10%) ---
	if (s.MACD > s.MACDSignal && s.Price > s.MA20) ||
		(s.MACD < s.MACDSignal && s.Price < s.MA20) {
		conf += 10
	}

	result := min(confidenceCeil, max(confidenceFloor, int(conf)))
	slog.Debug(fmt.Sprintf("confidence: %d (raw=%.1f)", result, conf))
	return result
}

// Liquidity maps 20-day average share volume onto the liquidity scale.
func Liquidity(avgVolume float64) int {
	switch {
	case avgVolume >= 500000:
		return 9
	case avgVolume >= 300000:
		return 8
	case avgVolume >= 200000:
		return 7
	case avgVolume >= 100000:
		return 6
	case avgVolume >= 50000:
		return 5
	default:
		return 4
	}
}

// Robust discounts the composite score by model confidence.
func Robust(composite float64, confidence int) float64 {
	return toFixed(composite*float64(confidence)/100, 2)
}

// toFixed rounds a float64 to the given precision.
func toFixed(num float64, precision int) float64 {
	output := math.Pow(10, float64(precision))
	return float64(int(math.Round(num*output))) / output
}
