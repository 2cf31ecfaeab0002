package data

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

const (
	// ScreenLimitDefault is the page size used when criteria omit one.
	ScreenLimitDefault = 25

	screenLimitMax = 500

	selectScreenSQL = `SELECT
			s.ticker,
			s.name,
			s.exchange,
			s.sector,
			s.price,
			COALESCE(i.rsi, 50) AS rsi,
			COALESCE(i.volatility, 5) AS volatility,
			COALESCE(i.avg_volume, 0) AS avg_volume,
			m.score,
			m.confidence,
			m.liquidity,
			m.robust
		FROM stock s
		JOIN metric m ON s.ticker = m.ticker
		LEFT JOIN indicator i ON s.ticker = i.ticker
		WHERE s.exchange = COALESCE(?, s.exchange)
		AND s.sector = COALESCE(?, s.sector)
		AND (s.ticker LIKE COALESCE(?, s.ticker) OR s.name LIKE COALESCE(?, s.name))
		AND m.score >= COALESCE(?, m.score)
		AND m.confidence >= COALESCE(?, m.confidence)
		AND m.liquidity >= COALESCE(?, m.liquidity)
		AND (? IS NULL OR COALESCE(i.volatility, 5) <= ?)
		ORDER BY %s
		LIMIT ? OFFSET ?
	`
)

// screenSorts whitelists sortable columns. Scores sort high to low,
// tickers alphabetically.
var screenSorts = map[string]string{
	"robust":     "m.robust DESC",
	"score":      "m.score DESC",
	"confidence": "m.confidence DESC",
	"liquidity":  "m.liquidity DESC",
	"ticker":     "s.ticker ASC",
}

type ScreenCriteria struct {
	Exchange      *string  `json:"exchange,omitempty" yaml:"exchange,omitempty"`
	Sector        *string  `json:"sector,omitempty" yaml:"sector,omitempty"`
	Query         *string  `json:"query,omitempty" yaml:"query,omitempty"`
	MinScore      *float64 `json:"min_score,omitempty" yaml:"minScore,omitempty"`
	MinConfidence *int     `json:"min_confidence,omitempty" yaml:"minConfidence,omitempty"`
	MinLiquidity  *int     `json:"min_liquidity,omitempty" yaml:"minLiquidity,omitempty"`
	MaxVolatility *float64 `json:"max_volatility,omitempty" yaml:"maxVolatility,omitempty"`
	Sort          string   `json:"sort,omitempty" yaml:"sort,omitempty"`
	Limit         int      `json:"limit,omitempty" yaml:"limit,omitempty"`
	Offset        int      `json:"offset,omitempty" yaml:"offset,omitempty"`
}

func (c ScreenCriteria) String() string {
	b, err := json.Marshal(c)
	if err != nil {
		return ""
	}
	return string(b)
}

// ScreenRow is one screened stock with its display columns.
type ScreenRow struct {
	Ticker     string  `json:"ticker" yaml:"ticker"`
	Name       string  `json:"name,omitempty" yaml:"name,omitempty"`
	Exchange   string  `json:"exchange" yaml:"exchange"`
	Sector     string  `json:"sector,omitempty" yaml:"sector,omitempty"`
	Price      float64 `json:"price" yaml:"price"`
	RSI        float64 `json:"rsi" yaml:"rsi"`
	Volatility float64 `json:"volatility" yaml:"volatility"`
	AvgVolume  float64 `json:"avg_volume" yaml:"avgVolume"`
	Score      float64 `json:"nwf_score" yaml:"nwfScore"`
	Confidence int     `json:"nwf_confidence" yaml:"nwfConfidence"`
	Liquidity  int     `json:"liquidity_score" yaml:"liquidityScore"`
	Robust     float64 `json:"nwf_robust_score" yaml:"nwfRobustScore"`
}

// StockDetails is the full single-stock view: row data, indicators,
// metrics, and score history.
type StockDetails struct {
	Stock      *Stock         `json:"stock" yaml:"stock"`
	Indicators *Indicator     `json:"indicators,omitempty" yaml:"indicators,omitempty"`
	Metrics    *Metric        `json:"metrics,omitempty" yaml:"metrics,omitempty"`
	Series     []*MetricPoint `json:"series,omitempty" yaml:"series,omitempty"`
}

func optionalLike(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	v := fmt.Sprintf("%%%s%%", *s)
	return &v
}

// optionalValue collapses empty strings to nil so COALESCE binds skip
// the filter.
func optionalValue(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}

// ScreenStocks returns scored stocks matching the criteria. Only stocks
// with metrics are screenable.
func ScreenStocks(db *sql.DB, q *ScreenCriteria) ([]*ScreenRow, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}

	if q == nil {
		q = &ScreenCriteria{}
	}

	sort := q.Sort
	if sort == "" {
		sort = "robust"
	}
	order, ok := screenSorts[sort]
	if !ok {
		return nil, fmt.Errorf("invalid sort: %s", sort)
	}
	if sort != "ticker" {
		order += ", s.ticker ASC"
	}

	limit := q.Limit
	if limit <= 0 {
		limit = ScreenLimitDefault
	}
	if limit > screenLimitMax {
		limit = screenLimitMax
	}

	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	exchange := optionalValue(q.Exchange)
	if exchange != nil {
		v := NormalizeExchange(*exchange)
		exchange = &v
	}

	sector := optionalValue(q.Sector)
	if sector != nil {
		v := cleanSectorName(*sector)
		sector = &v
	}

	query := optionalLike(q.Query)

	stmt, err := db.Prepare(fmt.Sprintf(selectScreenSQL, order))
	if err != nil {
		return nil, fmt.Errorf("failed to prepare screen statement: %w", err)
	}

	rows, err := stmt.Query(exchange, sector, query, query,
		q.MinScore, q.MinConfidence, q.MinLiquidity,
		q.MaxVolatility, q.MaxVolatility, limit, offset)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to execute screen statement: %w", err)
	}
	defer rows.Close()

	list := make([]*ScreenRow, 0)
	for rows.Next() {
		r := &ScreenRow{}
		if err := rows.Scan(&r.Ticker, &r.Name, &r.Exchange, &r.Sector, &r.Price,
			&r.RSI, &r.Volatility, &r.AvgVolume,
			&r.Score, &r.Confidence, &r.Liquidity, &r.Robust); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		list = append(list, r)
	}

	return list, nil
}

// TopStocks returns the highest robust-score stocks.
func TopStocks(db *sql.DB, limit int) ([]*ScreenRow, error) {
	return ScreenStocks(db, &ScreenCriteria{Limit: limit})
}

// GetStockDetails assembles the full view of one stock. Returns nil
// when the ticker is unknown.
func GetStockDetails(db *sql.DB, ticker string) (*StockDetails, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}

	s, err := GetStock(db, ticker)
	if err != nil {
		return nil, fmt.Errorf("failed to get stock %s: %w", ticker, err)
	}
	if s == nil {
		return nil, nil
	}

	ind, err := GetIndicators(db, ticker)
	if err != nil {
		return nil, fmt.Errorf("failed to get indicators for %s: %w", ticker, err)
	}

	m, err := GetMetrics(db, ticker)
	if err != nil {
		return nil, fmt.Errorf("failed to get metrics for %s: %w", ticker, err)
	}

	series, err := GetMetricSeries(db, ticker)
	if err != nil {
		return nil, fmt.Errorf("failed to get metric series for %s: %w", ticker, err)
	}

	return &StockDetails{
		Stock:      s,
		Indicators: ind,
		Metrics:    m,
		Series:     series,
	}, nil
}
