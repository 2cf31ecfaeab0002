package data

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

const (
	insertMetricSQL = `INSERT INTO metric (
			ticker,
			score,
			confidence,
			liquidity,
			robust,
			warnings,
			issues,
			updated_on
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(ticker) DO UPDATE SET
			score = ?,
			confidence = ?,
			liquidity = ?,
			robust = ?,
			warnings = ?,
			issues = ?,
			updated_on = ?
	`

	selectMetricSQL = `SELECT
			ticker,
			score,
			confidence,
			liquidity,
			robust,
			warnings,
			COALESCE(issues, '') AS issues,
			updated_on
		FROM metric
		WHERE ticker = ?
	`

	insertMetricHistorySQL = `INSERT INTO metric_history (
			ticker,
			day,
			score,
			confidence,
			liquidity,
			robust
		)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(ticker, day) DO UPDATE SET
			score = ?,
			confidence = ?,
			liquidity = ?,
			robust = ?
	`

	selectMetricSeriesSQL = `SELECT
			day,
			score,
			confidence,
			liquidity,
			robust
		FROM metric_history
		WHERE ticker = ?
		ORDER BY day ASC
	`
)

type Metric struct {
	Ticker     string  `json:"ticker" yaml:"ticker"`
	Score      float64 `json:"nwf_score" yaml:"nwfScore"`
	Confidence int     `json:"nwf_confidence" yaml:"nwfConfidence"`
	Liquidity  int     `json:"liquidity_score" yaml:"liquidityScore"`
	Robust     float64 `json:"nwf_robust_score" yaml:"nwfRobustScore"`
	Warnings   int     `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	Issues     string  `json:"issues,omitempty" yaml:"issues,omitempty"`
	UpdatedOn  string  `json:"updated_on,omitempty" yaml:"updatedOn,omitempty"`
}

// MetricPoint is one day of a ticker's score history.
type MetricPoint struct {
	Day        string  `json:"day" yaml:"day"`
	Score      float64 `json:"nwf_score" yaml:"nwfScore"`
	Confidence int     `json:"nwf_confidence" yaml:"nwfConfidence"`
	Liquidity  int     `json:"liquidity_score" yaml:"liquidityScore"`
	Robust     float64 `json:"nwf_robust_score" yaml:"nwfRobustScore"`
}

func SaveMetrics(db *sql.DB, metrics []*Metric) error {
	if db == nil {
		return errDBNotInitialized
	}

	if len(metrics) == 0 {
		return nil
	}

	metricStmt, err := db.Prepare(insertMetricSQL)
	if err != nil {
		return fmt.Errorf("failed to prepare metric insert statement: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	now := time.Now().UTC().Format("2006-01-02T15:04:05Z")

	for i, m := range metrics {
		var issues *string
		if m.Issues != "" {
			issues = &m.Issues
		}
		if _, err = tx.Stmt(metricStmt).Exec(m.Ticker,
			m.Score, m.Confidence, m.Liquidity, m.Robust, m.Warnings, issues, now,
			m.Score, m.Confidence, m.Liquidity, m.Robust, m.Warnings, issues, now); err != nil {
			slog.Error("failed to insert metric",
				"index", i,
				"error", err,
				"ticker", m.Ticker,
			)
			rollbackTransaction(tx)
			return fmt.Errorf("error inserting metric[%d]: %s: %w", i, m.Ticker, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func GetMetrics(db *sql.DB, ticker string) (*Metric, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}

	stmt, err := db.Prepare(selectMetricSQL)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare metric select statement: %w", err)
	}

	row := stmt.QueryRow(ticker)

	m := &Metric{}
	if err = row.Scan(&m.Ticker, &m.Score, &m.Confidence, &m.Liquidity,
		&m.Robust, &m.Warnings, &m.Issues, &m.UpdatedOn); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan row: %w", err)
	}

	return m, nil
}

// AppendMetricHistory records the given metrics under the given day.
// Re-running the same day overwrites that day's points.
func AppendMetricHistory(db *sql.DB, day string, metrics []*Metric) error {
	if db == nil {
		return errDBNotInitialized
	}

	if len(metrics) == 0 {
		return nil
	}

	histStmt, err := db.Prepare(insertMetricHistorySQL)
	if err != nil {
		return fmt.Errorf("failed to prepare metric history insert statement: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	for i, m := range metrics {
		if _, err = tx.Stmt(histStmt).Exec(m.Ticker, day,
			m.Score, m.Confidence, m.Liquidity, m.Robust,
			m.Score, m.Confidence, m.Liquidity, m.Robust); err != nil {
			rollbackTransaction(tx)
			return fmt.Errorf("error inserting metric history[%d]: %s %s: %w", i, m.Ticker, day, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// GetMetricSeries returns the ticker's score history in day order.
func GetMetricSeries(db *sql.DB, ticker string) ([]*MetricPoint, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}

	stmt, err := db.Prepare(selectMetricSeriesSQL)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare metric series select statement: %w", err)
	}

	rows, err := stmt.Query(ticker)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to execute metric series select statement: %w", err)
	}
	defer rows.Close()

	list := make([]*MetricPoint, 0)
	for rows.Next() {
		p := &MetricPoint{}
		if err := rows.Scan(&p.Day, &p.Score, &p.Confidence, &p.Liquidity, &p.Robust); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		list = append(list, p)
	}

	return list, nil
}
