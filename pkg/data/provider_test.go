package data

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testProviderServer serves two pages of HOSE quotes, one page of HNX
// quotes, and candles for VNM only. The ERR ticker's candle route
// fails, everything else 404s.
func testProviderServer(t *testing.T) *httptest.Server {
	t.Helper()

	quotes := map[string]string{
		"HOSE:1": `{"stocks": [
			{"ticker": "VNM", "name": "Vinamilk", "exchange": "HOSE", "sector": "F&B", "price": 65.4, "prev_close": 64.9, "date": "2025-06-02"},
			{"ticker": "FPT", "name": "FPT Corporation", "exchange": "HOSE", "sector": "Technology", "price": 128.3, "prev_close": 127.2, "date": "2025-06-02"}
		], "page": 1, "pages": 2}`,
		"HOSE:2": `{"stocks": [
			{"ticker": "VCB", "name": "Vietcombank", "exchange": "HOSE", "sector": "Banks", "price": 92.1, "prev_close": 91.8, "date": "2025-06-02"}
		], "page": 2, "pages": 2}`,
		"HNX:1": `{"stocks": [
			{"ticker": "SHS", "name": "Saigon Hanoi Securities", "exchange": "HNX", "sector": "Brokerage", "price": 18.7, "prev_close": 18.5, "date": "2025-06-02"},
			{"ticker": "ERR", "name": "Error Probe", "exchange": "HNX", "sector": "Brokerage", "price": 1.0, "prev_close": 1.0, "date": "2025-06-02"}
		], "page": 1, "pages": 1}`,
	}

	mux := http.NewServeMux()

	mux.HandleFunc("/stocks", func(w http.ResponseWriter, r *http.Request) {
		key := fmt.Sprintf("%s:%s", r.URL.Query().Get("exchange"), r.URL.Query().Get("page"))
		body, ok := quotes[key]
		if !ok {
			body = `{"stocks": [], "page": 1, "pages": 0}`
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, body)
	})

	mux.HandleFunc("/candles/", func(w http.ResponseWriter, r *http.Request) {
		ticker := strings.TrimPrefix(r.URL.Path, "/candles/")
		if ticker == "ERR" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		if ticker != "VNM" {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("since") == "2025-06-04" {
			fmt.Fprint(w, `{"ticker": "VNM", "candles": [
				{"day": "2025-06-05", "open": 65.6, "high": 66.1, "low": 65.2, "close": 65.9, "volume": 510000}
			]}`)
			return
		}
		fmt.Fprint(w, `{"ticker": "VNM", "candles": [
			{"day": "2025-06-02", "open": 65.0, "high": 65.8, "low": 64.7, "close": 65.4, "volume": 480000},
			{"day": "2025-06-03", "open": 65.4, "high": 65.9, "low": 65.1, "close": 65.6, "volume": 500000},
			{"day": "2025-06-04", "open": 65.6, "high": 66.0, "low": 65.3, "close": 65.8, "volume": 520000}
		]}`)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestImportExchange(t *testing.T) {
	db := setupTestDB(t)
	srv := testProviderServer(t)
	imp := NewStockImporter(db, srv.Client(), srv.URL, 2)

	n, err := imp.ImportExchange(context.Background(), "hose")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	tickers, err := GetExchangeTickers(db, "HOSE")
	require.NoError(t, err)
	assert.Equal(t, []string{"FPT", "VCB", "VNM"}, tickers)

	// feed sectors land cleaned
	vnm, err := GetStock(db, "VNM")
	require.NoError(t, err)
	require.NotNil(t, vnm)
	assert.Equal(t, "FOOD BEVERAGE", vnm.Sector)
	assert.Equal(t, "2025-06-02", vnm.PriceDate)

	// completed import resets the page watermark
	page, err := GetState(db, stateKindQuotes, "HOSE")
	require.NoError(t, err)
	assert.Equal(t, 1, page)
}

func TestImportExchange_Resume(t *testing.T) {
	db := setupTestDB(t)
	srv := testProviderServer(t)
	imp := NewStockImporter(db, srv.Client(), srv.URL, 2)

	require.NoError(t, SaveState(db, stateKindQuotes, "HOSE", 2))

	n, err := imp.ImportExchange(context.Background(), "HOSE")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	vnm, err := GetStock(db, "VNM")
	require.NoError(t, err)
	assert.Nil(t, vnm)

	vcb, err := GetStock(db, "VCB")
	require.NoError(t, err)
	assert.NotNil(t, vcb)
}

func TestImportExchange_Empty(t *testing.T) {
	db := setupTestDB(t)
	srv := testProviderServer(t)
	imp := NewStockImporter(db, srv.Client(), srv.URL, 2)

	n, err := imp.ImportExchange(context.Background(), "UPCOM")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestImportCandles(t *testing.T) {
	db := setupTestDB(t)
	srv := testProviderServer(t)
	imp := NewStockImporter(db, srv.Client(), srv.URL, 2)

	n, err := imp.ImportCandles(context.Background(), "VNM")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// second run resumes after the stored watermark
	n, err = imp.ImportCandles(context.Background(), "VNM")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	candles, err := GetCandles(db, "VNM", 10)
	require.NoError(t, err)
	require.Len(t, candles, 4)
	assert.Equal(t, "VNM", candles[0].Ticker)
	assert.Equal(t, "2025-06-05", candles[3].Day)
}

func TestImportCandles_NotFound(t *testing.T) {
	db := setupTestDB(t)
	srv := testProviderServer(t)
	imp := NewStockImporter(db, srv.Client(), srv.URL, 2)

	n, err := imp.ImportCandles(context.Background(), "XXX")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestImportAll(t *testing.T) {
	db := setupTestDB(t)
	srv := testProviderServer(t)
	imp := NewStockImporter(db, srv.Client(), srv.URL, 2)

	counts, err := imp.ImportAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, counts["stocks"])
	assert.Equal(t, 3, counts["candles"])
	assert.Equal(t, 1, counts["errors"])

	candles, err := GetCandles(db, "VNM", 10)
	require.NoError(t, err)
	assert.Len(t, candles, 3)
}

func TestNewStockImporter_Workers(t *testing.T) {
	imp := NewStockImporter(nil, nil, "http://localhost", 0)
	assert.Equal(t, ImportWorkersDefault, imp.workers)

	_, err := imp.ImportExchange(context.Background(), "HOSE")
	assert.ErrorIs(t, err, errDBNotInitialized)

	_, err = imp.ImportAll(context.Background())
	assert.ErrorIs(t, err, errDBNotInitialized)
}

func TestResetImportState(t *testing.T) {
	db := setupTestDB(t)

	require.NoError(t, SaveState(db, stateKindQuotes, "HOSE", 7))

	// alias resolves to the same canonical exchange
	require.NoError(t, ResetImportState(db, "hsx"))

	page, err := GetState(db, stateKindQuotes, "HOSE")
	require.NoError(t, err)
	assert.Equal(t, 1, page)
}
