package data

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

const (
	insertStockSQL = `INSERT INTO stock (
			ticker,
			name,
			exchange,
			sector,
			price,
			prev_close,
			price_date,
			updated_on
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(ticker) DO UPDATE SET
			name = ?,
			exchange = ?,
			sector = ?,
			price = ?,
			prev_close = ?,
			price_date = ?,
			updated_on = ?
	`

	selectStockSQL = `SELECT
			ticker,
			name,
			exchange,
			sector,
			price,
			prev_close,
			COALESCE(price_date, '') AS price_date,
			updated_on
		FROM stock
		WHERE ticker = ?
	`

	selectStockTickerSQL = `SELECT DISTINCT ticker FROM stock ORDER BY ticker`

	selectExchangeTickerSQL = `SELECT DISTINCT ticker
		FROM stock
		WHERE exchange = ?
		ORDER BY ticker
	`

	queryStockSQL = `SELECT
			ticker,
			name,
			exchange,
			COALESCE(sector, '') AS sector
		FROM stock
		WHERE ticker LIKE ?
		OR name LIKE ?
		OR sector LIKE ?
		ORDER BY ticker
		LIMIT ?
	`

	updateStockPropertySQL = `UPDATE stock SET %s = ? WHERE %s = ?`
)

type Stock struct {
	Ticker    string  `json:"ticker" yaml:"ticker"`
	Name      string  `json:"name,omitempty" yaml:"name,omitempty"`
	Exchange  string  `json:"exchange,omitempty" yaml:"exchange,omitempty"`
	Sector    string  `json:"sector,omitempty" yaml:"sector,omitempty"`
	Price     float64 `json:"price" yaml:"price"`
	PrevClose float64 `json:"prev_close,omitempty" yaml:"prevClose,omitempty"`
	PriceDate string  `json:"price_date,omitempty" yaml:"priceDate,omitempty"`
	UpdatedOn string  `json:"updated_on,omitempty" yaml:"updatedOn,omitempty"`
}

type StockListItem struct {
	Ticker   string `json:"ticker" yaml:"ticker"`
	Name     string `json:"name,omitempty" yaml:"name,omitempty"`
	Exchange string `json:"exchange,omitempty" yaml:"exchange,omitempty"`
	Sector   string `json:"sector,omitempty" yaml:"sector,omitempty"`
}

func GetStockTickers(db *sql.DB) ([]string, error) {
	return getDBSlice(db, selectStockTickerSQL)
}

// GetExchangeTickers returns tickers listed on the given exchange.
func GetExchangeTickers(db *sql.DB, exchange string) ([]string, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}

	stmt, err := db.Prepare(selectExchangeTickerSQL)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare ticker select statement: %w", err)
	}

	list := make([]string, 0)

	rows, err := stmt.Query(NormalizeExchange(exchange))
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to execute ticker select statement: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ticker string
		if err := rows.Scan(&ticker); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		list = append(list, ticker)
	}

	return list, nil
}

func getDBSlice(db *sql.DB, sqlQuery string) ([]string, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}

	stmt, err := db.Prepare(sqlQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare sql statement: %w", err)
	}

	list := make([]string, 0)

	rows, err := stmt.Query()
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to execute series select statement: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		list = append(list, v)
	}

	return list, nil
}

// SaveStocks upserts the given stocks. Exchange and sector names are
// normalized before write so filters see canonical values.
func SaveStocks(db *sql.DB, stocks []*Stock) error {
	if db == nil {
		return errDBNotInitialized
	}

	if len(stocks) == 0 {
		return nil
	}

	stockStmt, err := db.Prepare(insertStockSQL)
	if err != nil {
		return fmt.Errorf("failed to prepare stock insert statement: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	now := time.Now().UTC().Format("2006-01-02T15:04:05Z")

	for i, s := range stocks {
		exchange := NormalizeExchange(s.Exchange)
		sector := cleanSectorName(s.Sector)
		if _, err = tx.Stmt(stockStmt).Exec(s.Ticker,
			s.Name, exchange, sector, s.Price, s.PrevClose, s.PriceDate, now,
			s.Name, exchange, sector, s.Price, s.PrevClose, s.PriceDate, now); err != nil {
			slog.Error("failed to insert stock",
				"index", i,
				"error", err,
				"ticker", s.Ticker,
				"name", s.Name,
				"exchange", exchange,
				"sector", sector,
			)
			rollbackTransaction(tx)
			return fmt.Errorf("error inserting stock[%d]: %s: %w", i, s.Ticker, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func GetStock(db *sql.DB, ticker string) (*Stock, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}

	stmt, err := db.Prepare(selectStockSQL)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare stock select statement: %w", err)
	}

	row := stmt.QueryRow(ticker)

	s := &Stock{}
	if err = row.Scan(&s.Ticker, &s.Name, &s.Exchange, &s.Sector,
		&s.Price, &s.PrevClose, &s.PriceDate, &s.UpdatedOn); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan row: %w", err)
	}

	return s, nil
}

func mapStockListItem(rows *sql.Rows) ([]*StockListItem, error) {
	list := make([]*StockListItem, 0)
	for rows.Next() {
		s := &StockListItem{}
		if err := rows.Scan(&s.Ticker, &s.Name, &s.Exchange, &s.Sector); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return list, nil
			}
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		list = append(list, s)
	}
	return list, nil
}

// SearchStocks returns a list of stocks matching the given query.
func SearchStocks(db *sql.DB, val string, limit int) ([]*StockListItem, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}

	stmt, err := db.Prepare(queryStockSQL)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare stock query statement: %w", err)
	}

	val = fmt.Sprintf("%%%s%%", val)
	rows, err := stmt.Query(val, val, val, limit)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to execute select statement: %w", err)
	}
	defer rows.Close()

	return mapStockListItem(rows)
}
