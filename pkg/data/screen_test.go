package data

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seedScreen stores five scored stocks across all three exchanges,
// robust order VNM, FPT, VCB, SHS, ACV. VCB has no indicator row.
func seedScreen(t *testing.T, db *sql.DB) {
	t.Helper()
	seedStocks(t, db)

	require.NoError(t, SaveIndicators(db, []*Indicator{
		{Ticker: "VNM", RSI: 55, Volatility: 2.5, AvgVolume: 600000},
		{Ticker: "FPT", RSI: 62, Volatility: 3.8, AvgVolume: 350000},
		{Ticker: "SHS", RSI: 45, Volatility: 6.1, AvgVolume: 120000},
		{Ticker: "ACV", RSI: 25, Volatility: 9.5, AvgVolume: 30000},
	}))

	metrics := []*Metric{
		{Ticker: "VNM", Score: 9.6, Confidence: 95, Liquidity: 9, Robust: 9.12},
		{Ticker: "FPT", Score: 8.0, Confidence: 80, Liquidity: 8, Robust: 6.4},
		{Ticker: "VCB", Score: 6.5, Confidence: 70, Liquidity: 9, Robust: 4.55},
		{Ticker: "SHS", Score: 4.0, Confidence: 60, Liquidity: 6, Robust: 2.4},
		{Ticker: "ACV", Score: 2.9, Confidence: 54, Liquidity: 4, Robust: 1.57},
	}
	require.NoError(t, SaveMetrics(db, metrics))
	require.NoError(t, AppendMetricHistory(db, "2025-06-02", metrics))
}

func screenTickers(rows []*ScreenRow) []string {
	list := make([]string, 0, len(rows))
	for _, r := range rows {
		list = append(list, r.Ticker)
	}
	return list
}

func TestScreenStocks_NilDB(t *testing.T) {
	rows, err := ScreenStocks(nil, nil)
	assert.ErrorIs(t, err, errDBNotInitialized)
	assert.Nil(t, rows)
}

func TestScreenStocks_Default(t *testing.T) {
	db := setupTestDB(t)
	seedScreen(t, db)

	rows, err := ScreenStocks(db, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"VNM", "FPT", "VCB", "SHS", "ACV"}, screenTickers(rows))

	top := rows[0]
	assert.Equal(t, "Vinamilk", top.Name)
	assert.Equal(t, "HOSE", top.Exchange)
	assert.Equal(t, "FOOD BEVERAGE", top.Sector)
	assert.InDelta(t, 65.4, top.Price, 0.001)
	assert.InDelta(t, 55, top.RSI, 0.001)
	assert.InDelta(t, 2.5, top.Volatility, 0.001)
	assert.InDelta(t, 600000, top.AvgVolume, 0.001)
	assert.InDelta(t, 9.6, top.Score, 0.001)
	assert.Equal(t, 95, top.Confidence)
	assert.Equal(t, 9, top.Liquidity)
	assert.InDelta(t, 9.12, top.Robust, 0.001)

	// no indicator row, display defaults apply
	vcb := rows[2]
	assert.InDelta(t, 50, vcb.RSI, 0.001)
	assert.InDelta(t, 5, vcb.Volatility, 0.001)
	assert.Zero(t, vcb.AvgVolume)
}

func TestScreenStocks_MinScore(t *testing.T) {
	db := setupTestDB(t)
	seedScreen(t, db)

	min := 6.0
	rows, err := ScreenStocks(db, &ScreenCriteria{MinScore: &min})
	require.NoError(t, err)
	assert.Equal(t, []string{"VNM", "FPT", "VCB"}, screenTickers(rows))
}

func TestScreenStocks_Exchange(t *testing.T) {
	db := setupTestDB(t)
	seedScreen(t, db)

	// legacy alias resolves before the filter binds
	hsx := "hsx"
	rows, err := ScreenStocks(db, &ScreenCriteria{Exchange: &hsx})
	require.NoError(t, err)
	assert.Equal(t, []string{"VNM", "FPT", "VCB"}, screenTickers(rows))
}

func TestScreenStocks_Sector(t *testing.T) {
	db := setupTestDB(t)
	seedScreen(t, db)

	sector := "Banking"
	rows, err := ScreenStocks(db, &ScreenCriteria{Sector: &sector})
	require.NoError(t, err)
	assert.Equal(t, []string{"VCB"}, screenTickers(rows))
}

func TestScreenStocks_Query(t *testing.T) {
	db := setupTestDB(t)
	seedScreen(t, db)

	q := "milk"
	rows, err := ScreenStocks(db, &ScreenCriteria{Query: &q})
	require.NoError(t, err)
	assert.Equal(t, []string{"VNM"}, screenTickers(rows))
}

func TestScreenStocks_MaxVolatility(t *testing.T) {
	db := setupTestDB(t)
	seedScreen(t, db)

	max := 4.0
	rows, err := ScreenStocks(db, &ScreenCriteria{MaxVolatility: &max})
	require.NoError(t, err)
	assert.Equal(t, []string{"VNM", "FPT"}, screenTickers(rows))
}

func TestScreenStocks_SortTicker(t *testing.T) {
	db := setupTestDB(t)
	seedScreen(t, db)

	rows, err := ScreenStocks(db, &ScreenCriteria{Sort: "ticker"})
	require.NoError(t, err)
	assert.Equal(t, []string{"ACV", "FPT", "SHS", "VCB", "VNM"}, screenTickers(rows))
}

func TestScreenStocks_InvalidSort(t *testing.T) {
	db := setupTestDB(t)
	seedScreen(t, db)

	rows, err := ScreenStocks(db, &ScreenCriteria{Sort: "price; DROP TABLE stock"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid sort")
	assert.Nil(t, rows)
}

func TestScreenStocks_Paging(t *testing.T) {
	db := setupTestDB(t)
	seedScreen(t, db)

	rows, err := ScreenStocks(db, &ScreenCriteria{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"VNM", "FPT"}, screenTickers(rows))

	rows, err = ScreenStocks(db, &ScreenCriteria{Limit: 2, Offset: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"VCB", "SHS"}, screenTickers(rows))
}

func TestScreenStocks_OnlyScored(t *testing.T) {
	db := setupTestDB(t)
	seedStocks(t, db)

	rows, err := ScreenStocks(db, nil)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestTopStocks(t *testing.T) {
	db := setupTestDB(t)
	seedScreen(t, db)

	rows, err := TopStocks(db, 3)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "VNM", rows[0].Ticker)
}

func TestGetStockDetails(t *testing.T) {
	db := setupTestDB(t)
	seedScreen(t, db)

	d, err := GetStockDetails(db, "VNM")
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, "Vinamilk", d.Stock.Name)
	require.NotNil(t, d.Indicators)
	assert.InDelta(t, 55, d.Indicators.RSI, 0.001)
	require.NotNil(t, d.Metrics)
	assert.InDelta(t, 9.12, d.Metrics.Robust, 0.001)
	require.Len(t, d.Series, 1)
	assert.Equal(t, "2025-06-02", d.Series[0].Day)
}

func TestGetStockDetails_NoMetrics(t *testing.T) {
	db := setupTestDB(t)
	seedStocks(t, db)

	d, err := GetStockDetails(db, "VNM")
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.NotNil(t, d.Stock)
	assert.Nil(t, d.Indicators)
	assert.Nil(t, d.Metrics)
	assert.Empty(t, d.Series)
}

func TestGetStockDetails_Unknown(t *testing.T) {
	db := setupTestDB(t)
	d, err := GetStockDetails(db, "XXX")
	require.NoError(t, err)
	assert.Nil(t, d)
}
