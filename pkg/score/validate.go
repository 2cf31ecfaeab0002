package score

import (
	"fmt"
	"time"
)

// Validation layers, applied in order by Validate.
const (
	LayerSchema = iota + 1
	LayerRange
	LayerConsistency
	LayerLiquidity
	LayerStaleness
)

const (
	// LiquidityFloorVolume is the average daily volume under which a
	// stock is flagged illiquid. It still scores, at the scale floor.
	LiquidityFloorVolume = 10000

	// DefaultStaleAfter is the window after which the last observed
	// price is considered stale.
	DefaultStaleAfter = 7 * 24 * time.Hour
)

// Issue is a single finding from the validation pipeline.
type Issue struct {
	Layer  int    `json:"layer" yaml:"layer"`
	Field  string `json:"field" yaml:"field"`
	Msg    string `json:"msg" yaml:"msg"`
	Reject bool   `json:"reject" yaml:"reject"`
}

// ValidationResult carries the pipeline outcome for one stock.
// Rejected stocks must not be scored; warnings are advisory.
type ValidationResult struct {
	Issues   []Issue `json:"issues,omitempty" yaml:"issues,omitempty"`
	Rejected bool    `json:"rejected" yaml:"rejected"`
	Warnings int     `json:"warnings" yaml:"warnings"`
}

// Candidate is one stock presented to the validation pipeline.
type Candidate struct {
	Ticker     string
	Signals    Signals
	PriceDate  time.Time     // date of the last observed close, zero when unknown
	StaleAfter time.Duration // staleness window, DefaultStaleAfter when zero
}

// Validate runs the five-layer validation pipeline over a candidate.
// Layers one and two reject, layers three through five only warn.
func Validate(c Candidate, asOf time.Time) ValidationResult {
	var r ValidationResult
	s := c.Signals

	// --- Layer 1: Schema ---
	if c.Ticker == "" {
		r.add(LayerSchema, "ticker", "ticker is required")
	}
	if s.Price <= 0 {
		r.add(LayerSchema, "price", "price must be greater than zero")
	}

	// --- Layer 2: Range ---
	if s.RSI < 0 || s.RSI > 100 {
		r.add(LayerRange, "rsi", fmt.Sprintf("rsi %.1f outside [0, 100]", s.RSI))
	}
	if s.AIConfidence < 0 || s.AIConfidence > 100 {
		r.add(LayerRange, "ai_confidence",
			fmt.Sprintf("ai confidence %.1f outside [0, 100]", s.AIConfidence))
	}
	if s.Volatility < 0 {
		r.add(LayerRange, "volatility", "volatility must not be negative")
	}
	if s.AvgVolume < 0 {
		r.add(LayerRange, "avg_volume", "average volume must not be negative")
	}
	if s.VolSpike < 0 {
		r.add(LayerRange, "vol_spike", "volume spike must not be negative")
	}
	if s.MA20 < 0 {
		r.add(LayerRange, "ma20", "ma20 must not be negative")
	}
	if s.MA50 < 0 {
		r.add(LayerRange, "ma50", "ma50 must not be negative")
	}
	if s.Price > 0 {
		if mag(s.MACD) > s.Price {
			r.add(LayerRange, "macd", "macd magnitude exceeds price")
		}
		if mag(s.MACDSignal) > s.Price {
			r.add(LayerRange, "macd_signal", "macd signal magnitude exceeds price")
		}
	}

	// --- Layer 3: Cross-field consistency ---
	if s.Price > 0 && s.MA20 > 0 && s.MA20 == s.MA50 {
		r.add(LayerConsistency, "ma50", "ma20 and ma50 have zero spread")
	}
	if s.VolSpike > 0 && s.AvgVolume == 0 {
		r.add(LayerConsistency, "vol_spike", "volume spike without average volume")
	}

	// --- Layer 4: Liquidity floor ---
	if s.AvgVolume >= 0 && s.AvgVolume < LiquidityFloorVolume {
		r.add(LayerLiquidity, "avg_volume",
			fmt.Sprintf("average volume %.0f below liquidity floor %d", s.AvgVolume, LiquidityFloorVolume))
	}

	// --- Layer 5: Staleness ---
	staleAfter := c.StaleAfter
	if staleAfter == 0 {
		staleAfter = DefaultStaleAfter
	}
	if !c.PriceDate.IsZero() && asOf.Sub(c.PriceDate) > staleAfter {
		r.add(LayerStaleness, "price_date",
			fmt.Sprintf("last price from %s is stale", c.PriceDate.Format("2006-01-02")))
	}

	return r
}

func (r *ValidationResult) add(layer int, field, msg string) {
	reject := layer <= LayerRange
	r.Issues = append(r.Issues, Issue{Layer: layer, Field: field, Msg: msg, Reject: reject})
	if reject {
		r.Rejected = true
	} else {
		r.Warnings++
	}
}

func mag(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
