package data

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"
)

const (
	DataFileName string = "nwf.db"

	createSchemaVersionSQL = `CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER NOT NULL PRIMARY KEY,
			applied_on TEXT NOT NULL
		)`

	selectSchemaVersionSQL = `SELECT COALESCE(MAX(version), 0) FROM schema_version`

	insertSchemaVersionSQL = `INSERT INTO schema_version (version, applied_on) VALUES (?, ?)`
)

var (
	//go:embed sql/*
	f embed.FS

	// Schema migrations in apply order. Version is the 1-based index.
	migrations = []string{
		"sql/ddl.sql",
	}

	errDBNotInitialized = errors.New("database not initialized")
)

// Init creates the database when missing and applies any pending
// schema migrations. Safe to call on every start.
func Init(dbFilePath string) error {
	if dbFilePath == "" {
		return errors.New("dbFilePath not specified")
	}

	db, err := GetDB(dbFilePath)
	if err != nil {
		return fmt.Errorf("error opening database %s: %w", dbFilePath, err)
	}
	defer db.Close()

	return runMigrations(db)
}

func GetDB(path string) (*sql.DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}
	return conn, nil
}

func runMigrations(db *sql.DB) error {
	if _, err := db.Exec(createSchemaVersionSQL); err != nil {
		return fmt.Errorf("failed to create schema version table: %w", err)
	}

	var current int
	if err := db.QueryRow(selectSchemaVersionSQL).Scan(&current); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	for i, file := range migrations {
		version := i + 1
		if version <= current {
			continue
		}

		slog.Debug("applying schema migration", "version", version, "file", file)

		b, err := f.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", file, err)
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin migration transaction: %w", err)
		}

		if _, err := tx.Exec(string(b)); err != nil {
			rollbackTransaction(tx)
			return fmt.Errorf("failed to apply migration %d: %w", version, err)
		}

		now := time.Now().UTC().Format("2006-01-02T15:04:05Z")
		if _, err := tx.Exec(insertSchemaVersionSQL, version, now); err != nil {
			rollbackTransaction(tx)
			return fmt.Errorf("failed to record migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", version, err)
		}
	}

	return nil
}

func rollbackTransaction(tx *sql.Tx) {
	if err := tx.Rollback(); err != nil {
		slog.Error("error rolling back transaction", "error", err)
	}
}

// Contains checks for val in list
func Contains[T comparable](list []T, val T) bool {
	if list == nil {
		return false
	}
	for _, item := range list {
		if item == val {
			return true
		}
	}
	return false
}
