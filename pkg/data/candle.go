package data

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
)

const (
	insertCandleSQL = `INSERT INTO candle (
			ticker,
			day,
			open,
			high,
			low,
			close,
			volume
		)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(ticker, day) DO UPDATE SET
			open = ?,
			high = ?,
			low = ?,
			close = ?,
			volume = ?
	`

	selectCandleSQL = `SELECT
			ticker,
			day,
			open,
			high,
			low,
			close,
			volume
		FROM candle
		WHERE ticker = ?
		ORDER BY day DESC
		LIMIT ?
	`

	selectLastCandleDaySQL = `SELECT COALESCE(MAX(day), '') FROM candle WHERE ticker = ?`
)

type Candle struct {
	Ticker string  `json:"ticker" yaml:"ticker"`
	Day    string  `json:"day" yaml:"day"`
	Open   float64 `json:"open" yaml:"open"`
	High   float64 `json:"high" yaml:"high"`
	Low    float64 `json:"low" yaml:"low"`
	Close  float64 `json:"close" yaml:"close"`
	Volume int64   `json:"volume" yaml:"volume"`
}

func SaveCandles(db *sql.DB, candles []*Candle) error {
	if db == nil {
		return errDBNotInitialized
	}

	if len(candles) == 0 {
		return nil
	}

	candleStmt, err := db.Prepare(insertCandleSQL)
	if err != nil {
		return fmt.Errorf("failed to prepare candle insert statement: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	for i, c := range candles {
		if _, err = tx.Stmt(candleStmt).Exec(c.Ticker, c.Day,
			c.Open, c.High, c.Low, c.Close, c.Volume,
			c.Open, c.High, c.Low, c.Close, c.Volume); err != nil {
			slog.Error("failed to insert candle",
				"index", i,
				"error", err,
				"ticker", c.Ticker,
				"day", c.Day,
			)
			rollbackTransaction(tx)
			return fmt.Errorf("error inserting candle[%d]: %s %s: %w", i, c.Ticker, c.Day, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// GetCandles returns up to limit most recent candles for the ticker
// in ascending day order.
func GetCandles(db *sql.DB, ticker string, limit int) ([]*Candle, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}

	stmt, err := db.Prepare(selectCandleSQL)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare candle select statement: %w", err)
	}

	rows, err := stmt.Query(ticker, limit)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to execute candle select statement: %w", err)
	}
	defer rows.Close()

	list := make([]*Candle, 0)
	for rows.Next() {
		c := &Candle{}
		if err := rows.Scan(&c.Ticker, &c.Day, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		list = append(list, c)
	}

	// query returns newest first, callers want chronological order
	for i, j := 0, len(list)-1; i < j; i, j = i+1, j-1 {
		list[i], list[j] = list[j], list[i]
	}

	return list, nil
}

// GetLastCandleDay returns the most recent candle day for the ticker,
// or an empty string when the ticker has no candles yet.
func GetLastCandleDay(db *sql.DB, ticker string) (string, error) {
	if db == nil {
		return "", errDBNotInitialized
	}

	stmt, err := db.Prepare(selectLastCandleDaySQL)
	if err != nil {
		return "", fmt.Errorf("failed to prepare candle day select statement: %w", err)
	}

	var day string
	if err := stmt.QueryRow(ticker).Scan(&day); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("failed to scan row: %w", err)
	}

	return day, nil
}
