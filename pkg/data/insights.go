package data

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/nwflabs/nwf/pkg/score"
)

const (
	// bullishThreshold splits the composite scale at its midpoint.
	bullishThreshold = score.MaxComposite / 2

	// minSectorSize keeps one-stock sectors out of the leader board.
	minSectorSize = 3

	sectorLeaderTickers = 3

	// Composite scores land in [0,10], bucket by integer part with 10
	// folded into the top bucket.
	selectScoreDistributionSQL = `SELECT
			CAST(MIN(score, 9.99) AS INTEGER) AS bucket,
			COUNT(*) AS stocks
		FROM metric
		GROUP BY bucket
		ORDER BY bucket
	`

	selectExchangeBreadthSQL = `SELECT
			s.exchange,
			COUNT(*) AS stocks,
			SUM(CASE WHEN m.score >= ? THEN 1 ELSE 0 END) AS bullish,
			SUM(CASE WHEN m.score < ? THEN 1 ELSE 0 END) AS bearish,
			AVG(m.score) AS avg_score,
			AVG(m.confidence) AS avg_confidence,
			AVG(m.robust) AS avg_robust
		FROM stock s
		JOIN metric m ON s.ticker = m.ticker
		GROUP BY s.exchange
		ORDER BY stocks DESC
	`

	selectSectorLeadersSQL = `SELECT
			s.sector,
			COUNT(*) AS stocks,
			AVG(m.robust) AS avg_robust
		FROM stock s
		JOIN metric m ON s.ticker = m.ticker
		WHERE s.sector != ''
		GROUP BY s.sector
		HAVING COUNT(*) >= ?
		ORDER BY avg_robust DESC
		LIMIT ?
	`

	selectSectorTickersSQL = `SELECT s.ticker
		FROM stock s
		JOIN metric m ON s.ticker = m.ticker
		WHERE s.sector = ?
		ORDER BY m.robust DESC
		LIMIT ?
	`

	selectExchangesSQL = `SELECT exchange, COUNT(*) AS stocks
		FROM stock
		GROUP BY exchange
		ORDER BY 2 DESC
	`

	querySectorSQL = `SELECT
			sector,
			COUNT(*) AS stocks
		FROM stock
		WHERE sector LIKE ?
		AND sector != ''
		GROUP BY sector
		ORDER BY 2 DESC
		LIMIT ?
	`
)

type CountedItem struct {
	Name  string `json:"name" yaml:"name"`
	Count int    `json:"count" yaml:"count"`
}

// ScoreDistribution is the dashboard chart data, one bucket per
// composite point.
type ScoreDistribution struct {
	Labels []string `json:"labels" yaml:"labels"`
	Data   []int    `json:"data" yaml:"data"`
}

// ExchangeBreadth summarizes one exchange's scored stocks.
type ExchangeBreadth struct {
	Exchange      string  `json:"exchange" yaml:"exchange"`
	Stocks        int     `json:"stocks" yaml:"stocks"`
	Bullish       int     `json:"bullish" yaml:"bullish"`
	Bearish       int     `json:"bearish" yaml:"bearish"`
	AvgScore      float64 `json:"avg_score" yaml:"avgScore"`
	AvgConfidence float64 `json:"avg_confidence" yaml:"avgConfidence"`
	AvgRobust     float64 `json:"avg_robust" yaml:"avgRobust"`
}

// SectorLeader is one row of the sector leader board.
type SectorLeader struct {
	Sector    string   `json:"sector" yaml:"sector"`
	Stocks    int      `json:"stocks" yaml:"stocks"`
	AvgRobust float64  `json:"avg_robust" yaml:"avgRobust"`
	Tickers   []string `json:"tickers" yaml:"tickers"`
}

// Insights is the assembled dashboard payload.
type Insights struct {
	Distribution *ScoreDistribution `json:"distribution" yaml:"distribution"`
	Exchanges    []*ExchangeBreadth `json:"exchanges" yaml:"exchanges"`
	Sectors      []*SectorLeader    `json:"sectors" yaml:"sectors"`
	State        map[string]int64   `json:"state" yaml:"state"`
	LastRun      *Run               `json:"last_run,omitempty" yaml:"lastRun,omitempty"`
}

// GetScoreDistribution returns scored stock counts per composite
// bucket, empty buckets included.
func GetScoreDistribution(db *sql.DB) (*ScoreDistribution, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}

	rows, err := db.Query(selectScoreDistributionSQL)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to query score distribution: %w", err)
	}
	defer rows.Close()

	buckets := int(score.MaxComposite)
	counts := make([]int, buckets)

	for rows.Next() {
		var bucket, stocks int
		if err := rows.Scan(&bucket, &stocks); err != nil {
			return nil, fmt.Errorf("failed to scan distribution row: %w", err)
		}
		if bucket < 0 || bucket >= buckets {
			continue
		}
		counts[bucket] = stocks
	}

	d := &ScoreDistribution{
		Labels: make([]string, 0, buckets),
		Data:   make([]int, 0, buckets),
	}
	for i := 0; i < buckets; i++ {
		d.Labels = append(d.Labels, fmt.Sprintf("%d-%d", i, i+1))
		d.Data = append(d.Data, counts[i])
	}

	return d, nil
}

// GetExchangeBreadth returns per-exchange bullish/bearish counts and
// score averages.
func GetExchangeBreadth(db *sql.DB) ([]*ExchangeBreadth, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}

	rows, err := db.Query(selectExchangeBreadthSQL, bullishThreshold, bullishThreshold)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to query exchange breadth: %w", err)
	}
	defer rows.Close()

	list := make([]*ExchangeBreadth, 0)
	for rows.Next() {
		b := &ExchangeBreadth{}
		if err := rows.Scan(&b.Exchange, &b.Stocks, &b.Bullish, &b.Bearish,
			&b.AvgScore, &b.AvgConfidence, &b.AvgRobust); err != nil {
			return nil, fmt.Errorf("failed to scan breadth row: %w", err)
		}
		list = append(list, b)
	}

	return list, nil
}

// GetSectorLeaders returns the top sectors by average robust score with
// their leading tickers.
func GetSectorLeaders(db *sql.DB, limit int) ([]*SectorLeader, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}

	rows, err := db.Query(selectSectorLeadersSQL, minSectorSize, limit)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to query sector leaders: %w", err)
	}
	defer rows.Close()

	list := make([]*SectorLeader, 0)
	for rows.Next() {
		l := &SectorLeader{}
		if err := rows.Scan(&l.Sector, &l.Stocks, &l.AvgRobust); err != nil {
			return nil, fmt.Errorf("failed to scan leader row: %w", err)
		}
		list = append(list, l)
	}

	for _, l := range list {
		tickers, err := getSectorTickers(db, l.Sector)
		if err != nil {
			return nil, err
		}
		l.Tickers = tickers
	}

	return list, nil
}

func getSectorTickers(db *sql.DB, sector string) ([]string, error) {
	rows, err := db.Query(selectSectorTickersSQL, sector, sectorLeaderTickers)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to query sector tickers: %w", err)
	}
	defer rows.Close()

	list := make([]string, 0)
	for rows.Next() {
		var ticker string
		if err := rows.Scan(&ticker); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		list = append(list, ticker)
	}

	return list, nil
}

// GetExchanges returns exchanges with their stock counts.
func GetExchanges(db *sql.DB) ([]*CountedItem, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}

	rows, err := db.Query(selectExchangesSQL)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to query exchanges: %w", err)
	}
	defer rows.Close()

	list := make([]*CountedItem, 0)
	for rows.Next() {
		item := &CountedItem{}
		if err := rows.Scan(&item.Name, &item.Count); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		list = append(list, item)
	}

	return list, nil
}

// QuerySectors returns sectors matching the given pattern with their
// stock counts.
func QuerySectors(db *sql.DB, val string, limit int) ([]*CountedItem, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}

	stmt, err := db.Prepare(querySectorSQL)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare sector statement: %w", err)
	}

	val = fmt.Sprintf("%%%s%%", val)
	rows, err := stmt.Query(val, limit)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to execute select statement: %w", err)
	}
	defer rows.Close()

	list := make([]*CountedItem, 0)
	for rows.Next() {
		item := &CountedItem{}
		if err := rows.Scan(&item.Name, &item.Count); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		list = append(list, item)
	}

	return list, nil
}

// GetInsights assembles the dashboard payload.
func GetInsights(db *sql.DB, sectorLimit int) (*Insights, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}

	dist, err := GetScoreDistribution(db)
	if err != nil {
		return nil, err
	}

	breadth, err := GetExchangeBreadth(db)
	if err != nil {
		return nil, err
	}

	leaders, err := GetSectorLeaders(db, sectorLimit)
	if err != nil {
		return nil, err
	}

	state, err := GetDataState(db)
	if err != nil {
		return nil, err
	}

	runs, err := GetRuns(db, 1)
	if err != nil {
		return nil, err
	}

	in := &Insights{
		Distribution: dist,
		Exchanges:    breadth,
		Sectors:      leaders,
		State:        state,
	}
	if len(runs) > 0 {
		in.LastRun = runs[0]
	}

	return in, nil
}
