package data

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nwflabs/nwf/pkg/score"
)

const updateLogEvery = 100

// UpdateOptions scopes an updater pass. Zero value means all stocks.
type UpdateOptions struct {
	Ticker     string
	Exchange   string
	StaleAfter time.Duration
}

// UpdateResult is returned by the metrics pass.
type UpdateResult struct {
	RunID    string `json:"run_id,omitempty" yaml:"runId,omitempty"`
	Total    int    `json:"total" yaml:"total"`
	Scored   int    `json:"scored" yaml:"scored"`
	Rejected int    `json:"rejected" yaml:"rejected"`
	Warnings int    `json:"warnings" yaml:"warnings"`
}

// UpdateMetrics runs the screener pass: refresh indicators from candles
// where available, validate each candidate, compute metrics for the ones
// that pass, and record the run. Rejected stocks keep their previous
// metrics.
func UpdateMetrics(db *sql.DB, opts *UpdateOptions) (*UpdateResult, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}

	if opts == nil {
		opts = &UpdateOptions{}
	}

	staleAfter := opts.StaleAfter
	if staleAfter == 0 {
		staleAfter = score.DefaultStaleAfter
	}

	var tickers []string
	var err error

	switch {
	case opts.Ticker != "":
		s, getErr := GetStock(db, opts.Ticker)
		if getErr != nil {
			return nil, fmt.Errorf("failed to get stock %s: %w", opts.Ticker, getErr)
		}
		if s == nil {
			return nil, fmt.Errorf("stock not found: %s", opts.Ticker)
		}
		tickers = []string{s.Ticker}
	case opts.Exchange != "":
		tickers, err = GetExchangeTickers(db, opts.Exchange)
		if err != nil {
			return nil, fmt.Errorf("failed to get tickers for %s: %w", opts.Exchange, err)
		}
	default:
		tickers, err = GetStockTickers(db)
		if err != nil {
			return nil, fmt.Errorf("failed to get stock tickers: %w", err)
		}
	}

	res := &UpdateResult{Total: len(tickers)}

	if len(tickers) == 0 {
		slog.Info("no stocks to update")
		return res, nil
	}

	run, err := StartRun(db)
	if err != nil {
		return nil, fmt.Errorf("failed to start run: %w", err)
	}
	res.RunID = run.ID

	slog.Info("updating metrics", "run", run.ID, "model", run.ModelVersion, "stocks", len(tickers))

	asOf := time.Now().UTC()
	day := asOf.Format("2006-01-02")

	enriched := make([]*Indicator, 0, len(tickers))
	metrics := make([]*Metric, 0, len(tickers))

	for i, ticker := range tickers {
		s, getErr := GetStock(db, ticker)
		if getErr != nil {
			return nil, fmt.Errorf("failed to get stock %s: %w", ticker, getErr)
		}
		if s == nil {
			continue
		}

		ind, enrichErr := EnrichStock(db, ticker)
		if enrichErr != nil {
			return nil, fmt.Errorf("failed to enrich %s: %w", ticker, enrichErr)
		}
		if ind != nil {
			enriched = append(enriched, ind)
		} else {
			// no candles, fall back to imported indicator values
			ind, getErr = GetIndicators(db, ticker)
			if getErr != nil {
				return nil, fmt.Errorf("failed to get indicators for %s: %w", ticker, getErr)
			}
		}

		sig := signalsFrom(s, ind)

		vr := score.Validate(score.Candidate{
			Ticker:     s.Ticker,
			Signals:    sig,
			PriceDate:  parseDay(s.PriceDate),
			StaleAfter: staleAfter,
		}, asOf)

		res.Warnings += vr.Warnings

		if vr.Rejected {
			res.Rejected++
			slog.Warn("stock rejected", "ticker", s.Ticker, "issues", len(vr.Issues))
			continue
		}

		m := score.Compute(sig)
		metric := &Metric{
			Ticker:     s.Ticker,
			Score:      m.Score,
			Confidence: m.Confidence,
			Liquidity:  m.Liquidity,
			Robust:     m.Robust,
			Warnings:   vr.Warnings,
		}
		if len(vr.Issues) > 0 {
			b, marshalErr := json.Marshal(vr.Issues)
			if marshalErr != nil {
				return nil, fmt.Errorf("failed to marshal issues for %s: %w", s.Ticker, marshalErr)
			}
			metric.Issues = string(b)
		}
		metrics = append(metrics, metric)
		res.Scored++

		if (i+1)%updateLogEvery == 0 {
			slog.Info("update progress", "processed", i+1, "total", len(tickers))
		}
	}

	if err := SaveIndicators(db, enriched); err != nil {
		return nil, fmt.Errorf("failed to save indicators: %w", err)
	}

	if err := SaveMetrics(db, metrics); err != nil {
		return nil, fmt.Errorf("failed to save metrics: %w", err)
	}

	if err := AppendMetricHistory(db, day, metrics); err != nil {
		return nil, fmt.Errorf("failed to save metric history: %w", err)
	}

	run.Total = res.Total
	run.Scored = res.Scored
	run.Rejected = res.Rejected
	run.Warnings = res.Warnings

	if err := FinishRun(db, run); err != nil {
		return nil, fmt.Errorf("failed to finish run: %w", err)
	}

	slog.Info("metrics updated",
		"run", run.ID,
		"total", res.Total,
		"scored", res.Scored,
		"rejected", res.Rejected,
		"warnings", res.Warnings,
	)

	return res, nil
}

// signalsFrom assembles scoring signals from a stock row and its
// indicator row. A missing indicator row yields neutral defaults.
func signalsFrom(s *Stock, ind *Indicator) score.Signals {
	sig := score.DefaultSignals()
	sig.Price = s.Price

	if ind == nil {
		return sig
	}

	sig.MA20 = ind.MA20
	sig.MA50 = ind.MA50
	sig.RSI = ind.RSI
	sig.MACD = ind.MACD
	sig.MACDSignal = ind.MACDSignal
	sig.Volatility = ind.Volatility
	sig.VolSpike = ind.VolSpike
	sig.AvgVolume = ind.AvgVolume
	sig.AIConfidence = ind.AIConfidence

	return sig
}

// parseDay parses a YYYY-MM-DD string, returning the zero time when
// empty or malformed.
func parseDay(day string) time.Time {
	if day == "" {
		return time.Time{}
	}
	t, err := time.Parse("2006-01-02", day)
	if err != nil {
		return time.Time{}
	}
	return t
}
