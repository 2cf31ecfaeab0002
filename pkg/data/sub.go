package data

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
)

const (
	insertSubSQL = `INSERT INTO sub (prop, old, new) VALUES (?, ?, ?)
		ON CONFLICT(prop, old) DO UPDATE SET new = ?
	`

	selectSubSQL = `SELECT prop, old, new FROM sub ORDER BY prop, old`

	deleteSubSQL = `DELETE FROM sub WHERE prop = ? AND old = ?`

	selectSectorNamesSQL = `SELECT DISTINCT sector FROM stock WHERE sector IS NOT NULL AND sector != ''`

	updateSectorNamesSQL = `UPDATE stock SET sector = ? WHERE sector = ?`
)

var (
	UpdatableProperties = []string{
		"sector",
		"exchange",
	}

	// Exchanges are the markets the screener covers.
	Exchanges = []string{
		"HOSE",
		"HNX",
		"UPCOM",
	}

	// exchangeAliases maps feed and legacy market names to canonical
	// exchange codes (HSX is the common alternate code for Ho Chi Minh,
	// HASTC the pre-2009 name of Hanoi).
	exchangeAliases = map[string]string{
		"HSX":          "HOSE",
		"HOSTC":        "HOSE",
		"HOCHIMINH":    "HOSE",
		"HO CHI MINH":  "HOSE",
		"HASTC":        "HNX",
		"HANOI":        "HNX",
		"UPCOM MARKET": "UPCOM",
	}

	// sectorNoise lists words dropped from sector names.
	sectorNoise = map[string]bool{
		"SECTOR":     true,
		"INDUSTRY":   true,
		"INDUSTRIES": true,
	}

	sectorSubstitutions = map[string]string{
		"BANK":                   "BANKING",
		"BANKS":                  "BANKING",
		"BROKERAGE":              "SECURITIES",
		"SECURITIES COMPANIES":   "SECURITIES",
		"F&B":                    "FOOD BEVERAGE",
		"FOOD AND BEVERAGE":      "FOOD BEVERAGE",
		"FINANCIALS":             "FINANCIAL SERVICES",
		"IT":                     "TECHNOLOGY",
		"TECH":                   "TECHNOLOGY",
		"INFORMATION TECHNOLOGY": "TECHNOLOGY",
		"OIL GAS":                "ENERGY",
		"OIL AND GAS":            "ENERGY",
		"PROPERTY":               "REAL ESTATE",
		"REAL-ESTATE":            "REAL ESTATE",
		"REALESTATE":             "REAL ESTATE",
	}

	// sectorRegEx keeps letters in any script, sector names from the
	// Vietnamese feeds carry diacritics.
	sectorRegEx = regexp.MustCompile(`[^\p{L}\p{N} ]+`)
)

type Substitution struct {
	Prop    string `json:"prop" yaml:"prop"`
	Old     string `json:"old" yaml:"old"`
	New     string `json:"new" yaml:"new"`
	Records int64  `json:"records" yaml:"records"`
}

func applyStockSub(db *sql.DB, sub *Substitution) error {
	if db == nil {
		return errDBNotInitialized
	}

	if sub == nil {
		return nil
	}

	if !Contains(UpdatableProperties, sub.Prop) {
		return fmt.Errorf("invalid property: %s (permitted options: %v)", sub.Prop, UpdatableProperties)
	}

	stmt, err := db.Prepare(fmt.Sprintf(updateStockPropertySQL, sub.Prop, sub.Prop))
	if err != nil {
		return fmt.Errorf("failed to prepare sql statement: %w", err)
	}

	res, err := stmt.Exec(sub.New, sub.Old)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to execute stock property update statement: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	sub.Records = rows

	return nil
}

// SaveAndApplyStockSub stores the substitution and rewrites matching
// stock rows. Returns the substitution with the affected row count.
func SaveAndApplyStockSub(db *sql.DB, prop, old, new string) (*Substitution, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}

	s := &Substitution{
		Prop: prop,
		Old:  old,
		New:  new,
	}

	if err := applyStockSub(db, s); err != nil {
		return nil, fmt.Errorf("failed to apply stock sub: %w", err)
	}

	subStmt, err := db.Prepare(insertSubSQL)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare sub insert statement: %w", err)
	}

	if _, err = subStmt.Exec(prop, old, new, new); err != nil {
		return nil, fmt.Errorf("failed to insert sub: %w", err)
	}

	return s, nil
}

// GetSubstitutions lists stored substitutions without applying them.
func GetSubstitutions(db *sql.DB) ([]*Substitution, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}

	stmt, err := db.Prepare(selectSubSQL)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare sql statement: %w", err)
	}

	rows, err := stmt.Query()
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to execute substitute select statement: %w", err)
	}
	defer rows.Close()

	list := make([]*Substitution, 0)
	for rows.Next() {
		s := &Substitution{}
		if err := rows.Scan(&s.Prop, &s.Old, &s.New); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		list = append(list, s)
	}

	return list, nil
}

// DeleteSubstitution removes a stored substitution. Already rewritten
// rows keep their values.
func DeleteSubstitution(db *sql.DB, prop, old string) (bool, error) {
	if db == nil {
		return false, errDBNotInitialized
	}

	if !Contains(UpdatableProperties, prop) {
		return false, fmt.Errorf("invalid property: %s (permitted options: %v)", prop, UpdatableProperties)
	}

	res, err := db.Exec(deleteSubSQL, prop, old)
	if err != nil {
		return false, fmt.Errorf("failed to execute sub delete statement: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows > 0, nil
}

// ApplySubstitutions re-applies every stored substitution, used after
// imports bring in raw values.
func ApplySubstitutions(db *sql.DB) ([]*Substitution, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}

	list, err := GetSubstitutions(db)
	if err != nil {
		return nil, err
	}

	for _, s := range list {
		if err := applyStockSub(db, s); err != nil {
			return nil, fmt.Errorf("failed to apply stock sub: %w", err)
		}
	}

	return list, nil
}

// CleanSectors normalizes every stored sector name.
func CleanSectors(db *sql.DB) error {
	if db == nil {
		return errDBNotInitialized
	}

	stmt, err := db.Prepare(selectSectorNamesSQL)
	if err != nil {
		return fmt.Errorf("failed to prepare sector query statement: %w", err)
	}

	m := make(map[string]string)
	rows, err := stmt.Query()
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to execute select statement: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		if err = rows.Scan(&name); err != nil {
			return fmt.Errorf("failed to scan row: %w", err)
		}
		m[name] = cleanSectorName(name)
	}

	updateStmt, err := db.Prepare(updateSectorNamesSQL)
	if err != nil {
		return fmt.Errorf("failed to prepare sector update statement: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	for old, new := range m {
		if old == new {
			continue
		}
		if _, err = tx.Stmt(updateStmt).Exec(new, old); err != nil {
			rollbackTransaction(tx)
			return fmt.Errorf("error updating sector %s to %s: %w", old, new, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// NormalizeExchange maps market name variants to canonical exchange
// codes. Unknown values pass through upper-cased.
func NormalizeExchange(val string) string {
	val = strings.ToUpper(strings.TrimSpace(val))
	if canonical, ok := exchangeAliases[val]; ok {
		return canonical
	}
	return val
}

func cleanSectorName(val string) string {
	original := val
	// get everything trimmed and upper cased
	val = strings.ToUpper(strings.TrimSpace(val))

	// substitute any known aliases
	if name, ok := sectorSubstitutions[val]; ok {
		val = name
	}

	// remove punctuation, keep letters and digits
	val = sectorRegEx.ReplaceAllString(val, "")

	// remove any part that's in the sector noise map
	parts := make([]string, 0)
	for _, part := range strings.Split(val, " ") {
		if len(strings.TrimSpace(part)) == 0 {
			continue
		}
		if _, ok := sectorNoise[part]; !ok {
			parts = append(parts, part)
		}
	}

	// put it all back together
	val = strings.Join(parts, " ")

	// substitute any known aliases again, in case we fixed something
	if name, ok := sectorSubstitutions[val]; ok {
		val = name
	}

	if val != strings.ToUpper(strings.TrimSpace(original)) && len(val) > 0 {
		slog.Debug("cleaned sector name", "original", original, "cleaned", val)
	}

	return val
}
