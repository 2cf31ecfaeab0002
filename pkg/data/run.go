package data

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nwflabs/nwf/pkg/score"
)

const (
	insertRunSQL = `INSERT INTO run (id, started_on, model_version) VALUES (?, ?, ?)`

	updateRunSQL = `UPDATE run
		SET finished_on = ?, total = ?, scored = ?, rejected = ?, warnings = ?
		WHERE id = ?
	`

	selectRunSQL = `SELECT
			id,
			started_on,
			COALESCE(finished_on, '') AS finished_on,
			model_version,
			total,
			scored,
			rejected,
			warnings
		FROM run
		ORDER BY started_on DESC
		LIMIT ?
	`
)

// Run records one updater pass.
type Run struct {
	ID           string `json:"id" yaml:"id"`
	StartedOn    string `json:"started_on" yaml:"startedOn"`
	FinishedOn   string `json:"finished_on,omitempty" yaml:"finishedOn,omitempty"`
	ModelVersion string `json:"model_version" yaml:"modelVersion"`
	Total        int    `json:"total" yaml:"total"`
	Scored       int    `json:"scored" yaml:"scored"`
	Rejected     int    `json:"rejected" yaml:"rejected"`
	Warnings     int    `json:"warnings" yaml:"warnings"`
}

// StartRun inserts a new run row and returns it.
func StartRun(db *sql.DB) (*Run, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}

	r := &Run{
		ID:           uuid.NewString(),
		StartedOn:    time.Now().UTC().Format("2006-01-02T15:04:05Z"),
		ModelVersion: score.ModelVersion,
	}

	if _, err := db.Exec(insertRunSQL, r.ID, r.StartedOn, r.ModelVersion); err != nil {
		return nil, fmt.Errorf("failed to insert run %s: %w", r.ID, err)
	}

	return r, nil
}

// FinishRun stamps the run's end time and final counts.
func FinishRun(db *sql.DB, r *Run) error {
	if db == nil {
		return errDBNotInitialized
	}

	if r == nil {
		return errors.New("run is required")
	}

	r.FinishedOn = time.Now().UTC().Format("2006-01-02T15:04:05Z")

	if _, err := db.Exec(updateRunSQL, r.FinishedOn,
		r.Total, r.Scored, r.Rejected, r.Warnings, r.ID); err != nil {
		return fmt.Errorf("failed to update run %s: %w", r.ID, err)
	}

	return nil
}

// GetRuns returns the most recent runs, newest first.
func GetRuns(db *sql.DB, limit int) ([]*Run, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}

	rows, err := db.Query(selectRunSQL, limit)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	list := make([]*Run, 0)
	for rows.Next() {
		r := &Run{}
		if err := rows.Scan(&r.ID, &r.StartedOn, &r.FinishedOn, &r.ModelVersion,
			&r.Total, &r.Scored, &r.Rejected, &r.Warnings); err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		list = append(list, r)
	}

	return list, nil
}
