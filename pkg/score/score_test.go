package score

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bullishSignals() Signals {
	return Signals{
		Price:        25.5,
		MA20:         24.0,
		MA50:         22.0,
		MACD:         0.5,
		MACDSignal:   0.3,
		RSI:          55,
		Volatility:   2.5,
		VolSpike:     1.8,
		AIConfidence: 80,
		AvgVolume:    600000,
	}
}

func bearishSignals() Signals {
	return Signals{
		Price:        10,
		MA20:         11,
		MA50:         12,
		MACD:         -0.4,
		MACDSignal:   -0.2,
		RSI:          25,
		Volatility:   9.5,
		VolSpike:     0.5,
		AIConfidence: 30,
		AvgVolume:    30000,
	}
}

func TestComposite_Bullish(t *testing.T) {
	// 2.5 trend + 2.0 macd + 2.0 rsi + 1.5 volatility + 0.8 spike + 0.8 ai
	got := Composite(bullishSignals())
	assert.InDelta(t, 9.6, got, 0.001)
}

func TestComposite_Bearish(t *testing.T) {
	// 0.5 trend + 0.5 macd + 1.0 rsi + 0.3 volatility + 0.3 spike + 0.3 ai
	got := Composite(bearishSignals())
	assert.InDelta(t, 2.9, got, 0.001)
}

func TestComposite_Defaults(t *testing.T) {
	// 0.5 trend + 1.0 macd + 2.0 rsi + 0.8 volatility + 0.6 spike + 0.5 ai
	got := Composite(DefaultSignals())
	assert.InDelta(t, 5.4, got, 0.001)
}

func TestComposite_RSILadder(t *testing.T) {
	tests := []struct {
		name string
		rsi  float64
		want float64
	}{
		{"neutral low edge", 40, 2.0},
		{"neutral high edge", 60, 2.0},
		{"oversold opportunity", 35, 1.8},
		{"oversold low edge", 30, 1.8},
		{"overbought ok", 65, 1.5},
		{"overbought high edge", 70, 1.5},
		{"deep oversold", 20, 1.0},
		{"too overbought", 75, 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := DefaultSignals()
			s.RSI = tt.rsi
			got := Composite(s)

			// defaults contribute 0.5+1.0+0.8+0.6+0.5 around the rung
			assert.InDelta(t, 3.4+tt.want, got, 0.001)
		})
	}
}

func TestComposite_VolatilityLadder(t *testing.T) {
	tests := []struct {
		name       string
		volatility float64
		want       float64
	}{
		{"low risk", 2.9, 1.5},
		{"medium risk", 3.0, 1.2},
		{"high risk", 5.0, 0.8},
		{"very high risk", 8.0, 0.3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := DefaultSignals()
			s.Volatility = tt.volatility
			got := Composite(s)

			// defaults contribute 0.5+1.0+2.0+0.6+0.5 around the rung
			assert.InDelta(t, 4.6+tt.want, got, 0.001)
		})
	}
}

func TestComposite_VolumeSpikeLadder(t *testing.T) {
	tests := []struct {
		name  string
		spike float64
		want  float64
	}{
		{"high interest", 2.0, 1.0},
		{"good interest", 1.5, 0.8},
		{"normal", 1.0, 0.6},
		{"low interest", 0.99, 0.3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := DefaultSignals()
			s.VolSpike = tt.spike
			got := Composite(s)

			// defaults contribute 0.5+1.0+2.0+0.8+0.5 around the rung
			assert.InDelta(t, 4.8+tt.want, got, 0.001)
		})
	}
}

func TestConfidence_ClampedHigh(t *testing.T) {
	// 50 + 9 ai + 10 volatility + 15 trend + 10 rsi + 10 macd = 104
	got := Confidence(bullishSignals())
	assert.Equal(t, 95, got)
}

func TestConfidence_ClampedLow(t *testing.T) {
	s := Signals{
		Price:        10,
		MA20:         9,
		MA50:         9.5,
		MACD:         0.1,
		MACDSignal:   0.2,
		RSI:          80,
		Volatility:   9,
		AIConfidence: 0,
	}
	// 50 - 15 ai - 10 volatility + 5 mixed = 30, clamped to the floor
	got := Confidence(s)
	assert.Equal(t, 50, got)
}

func TestConfidence_Bearish(t *testing.T) {
	// 50 - 6 ai - 10 volatility + 10 downtrend + 0 rsi + 10 macd = 54
	got := Confidence(bearishSignals())
	assert.Equal(t, 54, got)
}

func TestConfidence_Defaults(t *testing.T) {
	// 50 + 0 ai + 0 volatility + 5 mixed + 10 rsi + 0 macd = 65
	got := Confidence(DefaultSignals())
	assert.Equal(t, 65, got)
}

func TestLiquidity(t *testing.T) {
	tests := []struct {
		avgVolume float64
		want      int
	}{
		{500000, 9},
		{499999, 8},
		{300000, 8},
		{299999, 7},
		{200000, 7},
		{199999, 6},
		{100000, 6},
		{99999, 5},
		{50000, 5},
		{49999, 4},
		{0, 4},
	}

	for _, tt := range tests {
		got := Liquidity(tt.avgVolume)
		assert.Equal(t, tt.want, got, "avg volume %.0f", tt.avgVolume)
	}
}

func TestRobust(t *testing.T) {
	assert.InDelta(t, 9.12, Robust(9.6, 95), 0.001)
	assert.InDelta(t, 1.57, Robust(2.9, 54), 0.001)
	assert.InDelta(t, 0, Robust(0, 95), 0.001)
}

func TestCompute(t *testing.T) {
	m := Compute(bullishSignals())

	assert.InDelta(t, 9.6, m.Score, 0.001)
	assert.Equal(t, 95, m.Confidence)
	assert.Equal(t, 9, m.Liquidity)
	assert.InDelta(t, 9.12, m.Robust, 0.001)
	assert.LessOrEqual(t, m.Robust, m.Score)
}

func TestCompute_RobustNeverExceedsScore(t *testing.T) {
	for _, s := range []Signals{bullishSignals(), bearishSignals(), DefaultSignals(), {}} {
		m := Compute(s)
		assert.LessOrEqual(t, m.Robust, m.Score)
		assert.GreaterOrEqual(t, m.Confidence, 50)
		assert.LessOrEqual(t, m.Confidence, 95)
		assert.GreaterOrEqual(t, m.Liquidity, 4)
		assert.LessOrEqual(t, m.Liquidity, 9)
		assert.LessOrEqual(t, m.Score, MaxComposite)
	}
}

func TestWeights(t *testing.T) {
	ws := Weights()
	require.Len(t, ws, 6)

	var sum float64
	for _, w := range ws {
		sum += w.Weight
	}
	assert.InDelta(t, 1.0, sum, 0.001)
}

func TestDefaultSignals(t *testing.T) {
	s := DefaultSignals()
	assert.InDelta(t, DefaultRSI, s.RSI, 0.001)
	assert.InDelta(t, DefaultVolatility, s.Volatility, 0.001)
	assert.InDelta(t, DefaultVolSpike, s.VolSpike, 0.001)
	assert.InDelta(t, DefaultAIConfidence, s.AIConfidence, 0.001)
	assert.Zero(t, s.Price)
}
