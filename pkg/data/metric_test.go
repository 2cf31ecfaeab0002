package data

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMetric(ticker string) *Metric {
	return &Metric{
		Ticker:     ticker,
		Score:      9.6,
		Confidence: 95,
		Liquidity:  9,
		Robust:     9.12,
	}
}

func TestSaveMetrics_NilDB(t *testing.T) {
	err := SaveMetrics(nil, []*Metric{testMetric("VNM")})
	assert.ErrorIs(t, err, errDBNotInitialized)
}

func TestSaveMetrics_AndGet(t *testing.T) {
	db := setupTestDB(t)
	require.NoError(t, SaveMetrics(db, []*Metric{testMetric("VNM")}))

	m, err := GetMetrics(db, "VNM")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "VNM", m.Ticker)
	assert.InDelta(t, 9.6, m.Score, 0.001)
	assert.Equal(t, 95, m.Confidence)
	assert.Equal(t, 9, m.Liquidity)
	assert.InDelta(t, 9.12, m.Robust, 0.001)
	assert.Zero(t, m.Warnings)
	assert.Empty(t, m.Issues)
	assert.NotEmpty(t, m.UpdatedOn)
}

func TestSaveMetrics_Upsert(t *testing.T) {
	db := setupTestDB(t)
	require.NoError(t, SaveMetrics(db, []*Metric{testMetric("VNM")}))

	m := testMetric("VNM")
	m.Score = 5.4
	m.Confidence = 65
	m.Robust = 3.51
	require.NoError(t, SaveMetrics(db, []*Metric{m}))

	got, err := GetMetrics(db, "VNM")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.InDelta(t, 5.4, got.Score, 0.001)
	assert.Equal(t, 65, got.Confidence)
}

func TestSaveMetrics_Issues(t *testing.T) {
	db := setupTestDB(t)
	m := testMetric("VNM")
	m.Warnings = 1
	m.Issues = `["price data is stale"]`
	require.NoError(t, SaveMetrics(db, []*Metric{m}))

	got, err := GetMetrics(db, "VNM")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 1, got.Warnings)
	assert.Equal(t, `["price data is stale"]`, got.Issues)
}

func TestGetMetrics_NotFound(t *testing.T) {
	db := setupTestDB(t)
	m, err := GetMetrics(db, "VNM")
	assert.NoError(t, err)
	assert.Nil(t, m)
}

func TestAppendMetricHistory_AndSeries(t *testing.T) {
	db := setupTestDB(t)

	m := testMetric("VNM")
	require.NoError(t, AppendMetricHistory(db, "2025-06-01", []*Metric{m}))

	m.Score = 8.1
	m.Robust = 7.29
	require.NoError(t, AppendMetricHistory(db, "2025-06-02", []*Metric{m}))

	// same day again overwrites, no new point
	m.Score = 7.7
	require.NoError(t, AppendMetricHistory(db, "2025-06-02", []*Metric{m}))

	series, err := GetMetricSeries(db, "VNM")
	require.NoError(t, err)
	require.Len(t, series, 2)
	assert.Equal(t, "2025-06-01", series[0].Day)
	assert.InDelta(t, 9.6, series[0].Score, 0.001)
	assert.Equal(t, "2025-06-02", series[1].Day)
	assert.InDelta(t, 7.7, series[1].Score, 0.001)
}

func TestGetMetricSeries_Empty(t *testing.T) {
	db := setupTestDB(t)
	series, err := GetMetricSeries(db, "VNM")
	require.NoError(t, err)
	assert.Empty(t, series)
}
