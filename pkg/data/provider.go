package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/nwflabs/nwf/pkg/net"
	"golang.org/x/sync/errgroup"
)

const (
	stateKindQuotes = "quotes"

	importLogEvery = 100

	// ImportWorkersDefault bounds the candle import fan-out.
	ImportWorkersDefault = 4
)

// quotesPage is one page of the provider's quote list.
type quotesPage struct {
	Stocks []*providerQuote `json:"stocks"`
	Page   int              `json:"page"`
	Pages  int              `json:"pages"`
}

type providerQuote struct {
	Ticker    string  `json:"ticker"`
	Name      string  `json:"name"`
	Exchange  string  `json:"exchange"`
	Sector    string  `json:"sector"`
	Price     float64 `json:"price"`
	PrevClose float64 `json:"prev_close"`
	Date      string  `json:"date"`
}

type candlesResponse struct {
	Ticker  string    `json:"ticker"`
	Candles []*Candle `json:"candles"`
}

// StockImporter pulls quotes and candles from the market-data API.
type StockImporter struct {
	db      *sql.DB
	client  *http.Client
	baseURL string
	workers int
}

func NewStockImporter(db *sql.DB, client *http.Client, baseURL string, workers int) *StockImporter {
	if workers < 1 {
		workers = ImportWorkersDefault
	}
	return &StockImporter{
		db:      db,
		client:  client,
		baseURL: baseURL,
		workers: workers,
	}
}

// ResetImportState clears the exchange's quote page watermark so the
// next import starts from the first page.
func ResetImportState(db *sql.DB, exchange string) error {
	return SaveState(db, stateKindQuotes, NormalizeExchange(exchange), 1)
}

// ImportExchange pulls the exchange's quote pages into the stock table.
// The page watermark in state lets an interrupted import resume, a
// completed import resets it.
func (imp *StockImporter) ImportExchange(ctx context.Context, exchange string) (int, error) {
	if imp.db == nil {
		return 0, errDBNotInitialized
	}

	exchange = NormalizeExchange(exchange)

	page, err := GetState(imp.db, stateKindQuotes, exchange)
	if err != nil {
		return 0, fmt.Errorf("failed to get import state for %s: %w", exchange, err)
	}
	if page > 1 {
		slog.Info("resuming quote import", "exchange", exchange, "page", page)
	}

	count := 0

	for {
		url := fmt.Sprintf("%s/stocks?exchange=%s&page=%d", imp.baseURL, exchange, page)

		var res quotesPage
		if err := getJSONThrottled(ctx, imp.client, url, &res); err != nil {
			if errors.Is(err, net.ErrorURLNotFound) {
				break
			}
			return count, fmt.Errorf("failed to get quotes for %s page %d: %w", exchange, page, err)
		}

		if len(res.Stocks) == 0 {
			break
		}

		stocks := make([]*Stock, 0, len(res.Stocks))
		for _, q := range res.Stocks {
			stocks = append(stocks, &Stock{
				Ticker:    q.Ticker,
				Name:      q.Name,
				Exchange:  exchange,
				Sector:    q.Sector,
				Price:     q.Price,
				PrevClose: q.PrevClose,
				PriceDate: q.Date,
			})
		}

		if err := SaveStocks(imp.db, stocks); err != nil {
			return count, fmt.Errorf("failed to save stocks for %s page %d: %w", exchange, page, err)
		}
		count += len(stocks)

		if err := SaveState(imp.db, stateKindQuotes, exchange, page); err != nil {
			return count, fmt.Errorf("failed to save import state for %s: %w", exchange, err)
		}

		if res.Pages > 0 && page >= res.Pages {
			break
		}
		page++
	}

	if err := SaveState(imp.db, stateKindQuotes, exchange, 1); err != nil {
		return count, fmt.Errorf("failed to reset import state for %s: %w", exchange, err)
	}

	slog.Info("exchange imported", "exchange", exchange, "stocks", count)

	return count, nil
}

// ImportCandles pulls daily candles for the ticker, resuming after the
// last stored day.
func (imp *StockImporter) ImportCandles(ctx context.Context, ticker string) (int, error) {
	if imp.db == nil {
		return 0, errDBNotInitialized
	}

	since, err := GetLastCandleDay(imp.db, ticker)
	if err != nil {
		return 0, fmt.Errorf("failed to get last candle day for %s: %w", ticker, err)
	}

	url := fmt.Sprintf("%s/candles/%s", imp.baseURL, ticker)
	if since != "" {
		url = fmt.Sprintf("%s?since=%s", url, since)
	}

	var res candlesResponse
	if err := getJSONThrottled(ctx, imp.client, url, &res); err != nil {
		if errors.Is(err, net.ErrorURLNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get candles for %s: %w", ticker, err)
	}

	for _, c := range res.Candles {
		c.Ticker = ticker
	}

	if err := SaveCandles(imp.db, res.Candles); err != nil {
		return 0, fmt.Errorf("failed to save candles for %s: %w", ticker, err)
	}

	return len(res.Candles), nil
}

// ImportAll refreshes quotes for every exchange, then fans out candle
// imports across bounded workers. Per-ticker candle errors are logged
// and counted, they do not stop the import.
func (imp *StockImporter) ImportAll(ctx context.Context) (map[string]int, error) {
	if imp.db == nil {
		return nil, errDBNotInitialized
	}

	counts := make(map[string]int)

	for _, exchange := range Exchanges {
		n, err := imp.ImportExchange(ctx, exchange)
		if err != nil {
			return counts, fmt.Errorf("failed to import %s: %w", exchange, err)
		}
		counts["stocks"] += n
	}

	tickers, err := GetStockTickers(imp.db)
	if err != nil {
		return counts, fmt.Errorf("failed to get stock tickers: %w", err)
	}

	slog.Info("importing candles", "tickers", len(tickers), "workers", imp.workers)

	var candles, failed, done atomic.Int64

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(imp.workers)

	for _, ticker := range tickers {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			n, err := imp.ImportCandles(ctx, ticker)
			if err != nil {
				slog.Error("error importing candles", "ticker", ticker, "error", err)
				failed.Add(1)
				return nil
			}
			candles.Add(int64(n))

			if d := done.Add(1); d%importLogEvery == 0 {
				slog.Info("candle import progress", "processed", d, "total", len(tickers))
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return counts, fmt.Errorf("candle import canceled: %w", err)
	}

	counts["candles"] = int(candles.Load())
	counts["errors"] = int(failed.Load())

	slog.Info("import finished",
		"stocks", counts["stocks"],
		"candles", counts["candles"],
		"errors", counts["errors"],
	)

	return counts, nil
}
