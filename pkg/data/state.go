package data

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var (
	stateQueries = map[string]string{
		"stocks":     "SELECT COUNT(*) FROM stock",
		"candles":    "SELECT COUNT(*) FROM candle",
		"indicators": "SELECT COUNT(*) FROM indicator",
		"metrics":    "SELECT COUNT(*) FROM metric",
		"exchanges":  "SELECT COUNT(DISTINCT exchange) FROM stock",
		"sectors":    "SELECT COUNT(DISTINCT sector) FROM stock WHERE sector != ''",
		"runs":       "SELECT COUNT(*) FROM run",
	}

	insertState = `INSERT INTO state (kind, scope, page, updated_on) VALUES (?, ?, ?, ?)
		ON CONFLICT(kind, scope) DO UPDATE SET page = ?, updated_on = ?
	`

	selectState = `SELECT page FROM state WHERE kind = ? AND scope = ?`
)

// GetState returns the saved import page for the kind and scope,
// starting at 1 when no state exists yet.
func GetState(db *sql.DB, kind, scope string) (int, error) {
	if db == nil {
		return 0, errDBNotInitialized
	}

	stateStmt, err := db.Prepare(selectState)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare state select statement: %w", err)
	}

	row := stateStmt.QueryRow(kind, scope)

	var page sql.NullInt64
	err = row.Scan(&page)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 1, nil
		}
		return 0, fmt.Errorf("failed to scan row: %w", err)
	}

	return int(page.Int64), nil
}

func SaveState(db *sql.DB, kind, scope string, page int) error {
	if db == nil {
		return errDBNotInitialized
	}

	if kind == "" || scope == "" {
		return fmt.Errorf("kind: %s and scope: %s are both required", kind, scope)
	}

	stateStmt, err := db.Prepare(insertState)
	if err != nil {
		return fmt.Errorf("failed to prepare state insert statement: %w", err)
	}

	now := time.Now().UTC().Format("2006-01-02T15:04:05Z")
	if _, err = stateStmt.Exec(kind, scope, page, now, page, now); err != nil {
		return fmt.Errorf("failed to insert state: %w", err)
	}

	return nil
}

// GetDataState returns row counts for the main tables.
func GetDataState(db *sql.DB) (map[string]int64, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}

	state := make(map[string]int64)
	for k, v := range stateQueries {
		stmt, err := db.Prepare(v)
		if err != nil {
			return nil, fmt.Errorf("error preparing %s statement: %w", k, err)
		}

		count, err := getCount(db, stmt)
		if err != nil {
			return nil, fmt.Errorf("error getting %s count: %w", k, err)
		}
		state[k] = count
	}

	return state, nil
}

func getCount(db *sql.DB, stmt *sql.Stmt) (int64, error) {
	if db == nil {
		return 0, errDBNotInitialized
	}

	row := stmt.QueryRow()

	var count int64
	err := row.Scan(&count)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to scan row: %w", err)
	}

	return count, nil
}
