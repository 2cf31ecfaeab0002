package cli

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/nwflabs/nwf/pkg/data"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func queryParamInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}

	i, err := strconv.Atoi(v)
	if err != nil {
		slog.Error("error converting query string to int", "value", v, "error", err)
		return def
	}

	return i
}

// parseScreenCriteria maps query string parameters onto screen
// criteria. Absent or malformed numeric filters are skipped, unknown
// sort values fall back to the default ordering.
func parseScreenCriteria(r *http.Request) *data.ScreenCriteria {
	q := r.URL.Query()

	c := &data.ScreenCriteria{
		Exchange: optional(q.Get("exchange")),
		Sector:   optional(q.Get("sector")),
		Query:    optional(q.Get("q")),
		Limit:    queryParamInt(r, "limit", 0),
		Offset:   queryParamInt(r, "offset", 0),
	}

	switch q.Get("sort") {
	case "robust", "score", "confidence", "liquidity", "ticker":
		c.Sort = q.Get("sort")
	}

	if v, err := strconv.ParseFloat(q.Get("min_score"), 64); err == nil {
		c.MinScore = &v
	}
	if v, err := strconv.Atoi(q.Get("min_confidence")); err == nil {
		c.MinConfidence = &v
	}
	if v, err := strconv.Atoi(q.Get("min_liquidity")); err == nil {
		c.MinLiquidity = &v
	}
	if v, err := strconv.ParseFloat(q.Get("max_volatility"), 64); err == nil {
		c.MaxVolatility = &v
	}

	return c
}

func stocksAPIHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := parseScreenCriteria(r)

		slog.Debug("screen query", "criteria", q)

		res, err := data.ScreenStocks(db, q)
		if err != nil {
			slog.Error("failed to screen stocks", "criteria", q, "error", err)
			writeError(w, http.StatusInternalServerError, "error screening stocks")
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func stockAPIHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ticker := r.PathValue("ticker")
		if ticker == "" {
			writeError(w, http.StatusBadRequest, "ticker required")
			return
		}

		res, err := data.GetStockDetails(db, ticker)
		if err != nil {
			slog.Error("failed to get stock details", "ticker", ticker, "error", err)
			writeError(w, http.StatusInternalServerError, "error querying stock details")
			return
		}
		if res == nil {
			writeError(w, http.StatusNotFound, "stock not found")
			return
		}

		writeJSON(w, http.StatusOK, res)
	}
}

func seriesAPIHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ticker := r.PathValue("ticker")
		if ticker == "" {
			writeError(w, http.StatusBadRequest, "ticker required")
			return
		}

		res, err := data.GetMetricSeries(db, ticker)
		if err != nil {
			slog.Error("failed to get metric series", "ticker", ticker, "error", err)
			writeError(w, http.StatusInternalServerError, "error querying metric series")
			return
		}

		writeJSON(w, http.StatusOK, res)
	}
}

func topAPIHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := queryParamInt(r, "limit", queryTopLimitDefault)
		if limit < 1 || limit > queryResultLimitDefault {
			limit = queryTopLimitDefault
		}

		res, err := data.TopStocks(db, limit)
		if err != nil {
			slog.Error("failed to get top stocks", "error", err)
			writeError(w, http.StatusInternalServerError, "error querying top stocks")
			return
		}

		writeJSON(w, http.StatusOK, res)
	}
}

func exchangesAPIHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := data.GetExchanges(db)
		if err != nil {
			slog.Error("failed to get exchanges", "error", err)
			writeError(w, http.StatusInternalServerError, "error querying exchanges")
			return
		}

		writeJSON(w, http.StatusOK, res)
	}
}

func sectorsAPIHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := data.QuerySectors(db, r.URL.Query().Get("q"), queryResultLimitDefault)
		if err != nil {
			slog.Error("failed to get sectors", "error", err)
			writeError(w, http.StatusInternalServerError, "error querying sectors")
			return
		}

		writeJSON(w, http.StatusOK, res)
	}
}

func insightsAPIHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := data.GetInsights(db, insightSectorLimit)
		if err != nil {
			slog.Error("failed to get insights", "error", err)
			writeError(w, http.StatusInternalServerError, "error querying insights")
			return
		}

		writeJSON(w, http.StatusOK, res)
	}
}
