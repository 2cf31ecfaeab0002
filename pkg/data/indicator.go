package data

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/markcheno/go-talib"
	"github.com/nwflabs/nwf/pkg/score"
)

const (
	maShortPeriod    = 20
	maLongPeriod     = 50
	rsiPeriod        = 14
	macdFastPeriod   = 12
	macdSlowPeriod   = 26
	macdSignalPeriod = 9
	volatilityWindow = 20
	volumeWindow     = 20

	// MinCandles is the history depth below which enrichment is partial.
	MinCandles = 50

	// candleLookback bounds the history loaded per ticker. MACD needs the
	// longest warm-up, 120 covers all windows with margin.
	candleLookback = 120

	enrichLogEvery = 100

	insertIndicatorSQL = `INSERT INTO indicator (
			ticker,
			ma20,
			ma50,
			rsi,
			macd,
			macd_signal,
			volatility,
			vol_spike,
			avg_volume,
			ai_confidence,
			computed_on
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(ticker) DO UPDATE SET
			ma20 = ?,
			ma50 = ?,
			rsi = ?,
			macd = ?,
			macd_signal = ?,
			volatility = ?,
			vol_spike = ?,
			avg_volume = ?,
			ai_confidence = ?,
			computed_on = ?
	`

	selectIndicatorSQL = `SELECT
			ticker,
			ma20,
			ma50,
			rsi,
			macd,
			macd_signal,
			volatility,
			vol_spike,
			avg_volume,
			ai_confidence,
			computed_on
		FROM indicator
		WHERE ticker = ?
	`
)

type Indicator struct {
	Ticker       string  `json:"ticker" yaml:"ticker"`
	MA20         float64 `json:"ma20" yaml:"ma20"`
	MA50         float64 `json:"ma50" yaml:"ma50"`
	RSI          float64 `json:"rsi" yaml:"rsi"`
	MACD         float64 `json:"macd" yaml:"macd"`
	MACDSignal   float64 `json:"macd_signal" yaml:"macdSignal"`
	Volatility   float64 `json:"volatility" yaml:"volatility"`
	VolSpike     float64 `json:"vol_spike" yaml:"volSpike"`
	AvgVolume    float64 `json:"avg_volume" yaml:"avgVolume"`
	AIConfidence float64 `json:"ai_confidence" yaml:"aiConfidence"`
	ComputedOn   string  `json:"computed_on,omitempty" yaml:"computedOn,omitempty"`
}

// defaultIndicator returns an indicator row with the neutral signal
// defaults used when history is too short to compute a value.
func defaultIndicator(ticker string) *Indicator {
	return &Indicator{
		Ticker:       ticker,
		RSI:          score.DefaultRSI,
		Volatility:   score.DefaultVolatility,
		VolSpike:     score.DefaultVolSpike,
		AIConfidence: score.DefaultAIConfidence,
	}
}

func SaveIndicators(db *sql.DB, indicators []*Indicator) error {
	if db == nil {
		return errDBNotInitialized
	}

	if len(indicators) == 0 {
		return nil
	}

	indStmt, err := db.Prepare(insertIndicatorSQL)
	if err != nil {
		return fmt.Errorf("failed to prepare indicator insert statement: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	now := time.Now().UTC().Format("2006-01-02T15:04:05Z")

	for i, n := range indicators {
		if _, err = tx.Stmt(indStmt).Exec(n.Ticker,
			n.MA20, n.MA50, n.RSI, n.MACD, n.MACDSignal,
			n.Volatility, n.VolSpike, n.AvgVolume, n.AIConfidence, now,
			n.MA20, n.MA50, n.RSI, n.MACD, n.MACDSignal,
			n.Volatility, n.VolSpike, n.AvgVolume, n.AIConfidence, now); err != nil {
			slog.Error("failed to insert indicator",
				"index", i,
				"error", err,
				"ticker", n.Ticker,
			)
			rollbackTransaction(tx)
			return fmt.Errorf("error inserting indicator[%d]: %s: %w", i, n.Ticker, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func GetIndicators(db *sql.DB, ticker string) (*Indicator, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}

	stmt, err := db.Prepare(selectIndicatorSQL)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare indicator select statement: %w", err)
	}

	row := stmt.QueryRow(ticker)

	n := &Indicator{}
	if err = row.Scan(&n.Ticker, &n.MA20, &n.MA50, &n.RSI, &n.MACD, &n.MACDSignal,
		&n.Volatility, &n.VolSpike, &n.AvgVolume, &n.AIConfidence, &n.ComputedOn); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan row: %w", err)
	}

	return n, nil
}

// EnrichStock recomputes technical indicators for the ticker from its
// stored candles. Windows without enough history keep their neutral
// defaults. An existing AI confidence value survives recompute, candles
// carry no AI signal. Returns nil when the ticker has no candles at all.
func EnrichStock(db *sql.DB, ticker string) (*Indicator, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}

	candles, err := GetCandles(db, ticker, candleLookback)
	if err != nil {
		return nil, fmt.Errorf("failed to get candles for %s: %w", ticker, err)
	}

	if len(candles) == 0 {
		return nil, nil
	}

	ind := defaultIndicator(ticker)

	prev, err := GetIndicators(db, ticker)
	if err != nil {
		return nil, fmt.Errorf("failed to get indicators for %s: %w", ticker, err)
	}
	if prev != nil {
		ind.AIConfidence = prev.AIConfidence
	}

	closes := make([]float64, len(candles))
	volumes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
		volumes[i] = float64(c.Volume)
	}
	n := len(closes)

	if n < MinCandles {
		slog.Warn("partial enrichment, not enough candle history",
			"ticker", ticker,
			"candles", n,
			"want", MinCandles,
		)
	}

	if n >= maShortPeriod {
		ma := talib.Sma(closes, maShortPeriod)
		ind.MA20 = ma[len(ma)-1]
	}

	if n >= maLongPeriod {
		ma := talib.Sma(closes, maLongPeriod)
		ind.MA50 = ma[len(ma)-1]
	}

	if n > rsiPeriod {
		rsi := talib.Rsi(closes, rsiPeriod)
		ind.RSI = rsi[len(rsi)-1]
	}

	if n >= macdSlowPeriod+macdSignalPeriod {
		macd, signal, _ := talib.Macd(closes, macdFastPeriod, macdSlowPeriod, macdSignalPeriod)
		ind.MACD = macd[len(macd)-1]
		ind.MACDSignal = signal[len(signal)-1]
	}

	if n > volatilityWindow {
		ind.Volatility = pctChangeStdDev(closes, volatilityWindow)
	}

	if n >= volumeWindow {
		avg := mean(volumes[n-volumeWindow:])
		ind.AvgVolume = avg
		if avg > 0 {
			ind.VolSpike = volumes[n-1] / avg
		}
	}

	return ind, nil
}

// EnrichAll recomputes indicators for every stored ticker and persists
// the results in one batch. Returns the number of tickers enriched.
func EnrichAll(db *sql.DB) (int, error) {
	if db == nil {
		return 0, errDBNotInitialized
	}

	tickers, err := GetStockTickers(db)
	if err != nil {
		return 0, fmt.Errorf("failed to get stock tickers: %w", err)
	}

	list := make([]*Indicator, 0, len(tickers))

	for i, ticker := range tickers {
		ind, err := EnrichStock(db, ticker)
		if err != nil {
			return 0, fmt.Errorf("failed to enrich %s: %w", ticker, err)
		}
		if ind == nil {
			continue
		}
		list = append(list, ind)

		if (i+1)%enrichLogEvery == 0 {
			slog.Info("enriching stocks", "processed", i+1, "total", len(tickers))
		}
	}

	if err := SaveIndicators(db, list); err != nil {
		return 0, fmt.Errorf("failed to save indicators: %w", err)
	}

	return len(list), nil
}

// pctChangeStdDev returns the standard deviation of the last window
// daily percent changes, in percent units.
func pctChangeStdDev(closes []float64, window int) float64 {
	changes := make([]float64, 0, window)
	for i := len(closes) - window; i < len(closes); i++ {
		if closes[i-1] == 0 {
			continue
		}
		changes = append(changes, (closes[i]-closes[i-1])/closes[i-1]*100)
	}
	if len(changes) == 0 {
		return 0
	}

	m := mean(changes)
	var sum float64
	for _, c := range changes {
		d := c - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(changes)))
}

func mean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}
