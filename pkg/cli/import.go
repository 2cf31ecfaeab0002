package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/nwflabs/nwf/pkg/data"
	"github.com/nwflabs/nwf/pkg/net"
	"github.com/urfave/cli/v2"
)

var (
	filePathFlag = &cli.StringFlag{
		Name:     "path",
		Usage:    "Path or URL of the dataset JSON file",
		Required: true,
	}

	importUpdateFlag = &cli.BoolFlag{
		Name:  "update",
		Usage: "Run the metrics pass right after the import",
	}

	exchangeNameFlag = &cli.StringSliceFlag{
		Name:  "exchange",
		Usage: fmt.Sprintf("Exchange to import [%s] (can be specified multiple times)", strings.Join(data.Exchanges, ", ")),
	}

	freshFlag = &cli.BoolFlag{
		Name:  "fresh",
		Usage: "Clear pagination state and re-import from scratch",
	}

	workersFlag = &cli.IntFlag{
		Name:  "workers",
		Usage: "Number of concurrent candle downloads",
	}

	importCmd = &cli.Command{
		Name:    "import",
		Aliases: []string{"i"},
		Usage:   "Import stock data from a dataset file or the market-data API",
		Subcommands: []*cli.Command{
			{
				Name:    "file",
				Aliases: []string{"f"},
				Usage:   "Import stocks from an AI pipeline dataset file",
				UsageText: `nwf import file --path vietnam_stocks.json            # load dataset into the local database
   nwf import file --path vietnam_stocks.json --update   # load, then score
   nwf import file --path https://nwf.dev/ds/vn.json     # download, then load`,
				Action: cmdImportFile,
				Flags: []cli.Flag{
					filePathFlag,
					importUpdateFlag,
				},
			},
			{
				Name:    "api",
				Aliases: []string{"a"},
				Usage:   "Import quotes and candles from the market-data API",
				UsageText: `nwf import api                     # refresh all exchanges and their candles
   nwf import api --exchange HOSE     # refresh a single exchange
   nwf import api --fresh             # restart from the first quote page`,
				Action: cmdImportAPI,
				Flags: []cli.Flag{
					exchangeNameFlag,
					freshFlag,
					workersFlag,
				},
			},
		},
	}
)

type FileImportResult struct {
	Path     string             `json:"path" yaml:"path"`
	Stocks   int                `json:"stocks" yaml:"stocks"`
	Duration string             `json:"duration" yaml:"duration"`
	Update   *data.UpdateResult `json:"update,omitempty" yaml:"update,omitempty"`
}

func cmdImportFile(c *cli.Context) error {
	start := time.Now()
	src := c.String(filePathFlag.Name)
	if src == "" {
		return cli.ShowSubcommandHelp(c)
	}

	cfg := getConfig(c)

	p := src
	if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
		local, err := downloadDataset(src)
		if err != nil {
			return err
		}
		defer os.Remove(local)
		p = local
	}

	n, err := data.ImportDataset(cfg.DB, p)
	if err != nil {
		return fmt.Errorf("failed to import dataset %s: %w", src, err)
	}

	res := &FileImportResult{
		Path:   src,
		Stocks: n,
	}

	if c.Bool(importUpdateFlag.Name) {
		upd, updErr := data.UpdateMetrics(cfg.DB, &data.UpdateOptions{StaleAfter: cfg.Conf.StaleAfter()})
		if updErr != nil {
			return fmt.Errorf("failed to update metrics: %w", updErr)
		}
		res.Update = upd
	}

	res.Duration = time.Since(start).String()

	if err := encode(res); err != nil {
		return fmt.Errorf("error encoding result: %w", err)
	}

	return nil
}

// downloadDataset fetches a remote dataset file into a temp path.
// The caller removes the returned file.
func downloadDataset(url string) (string, error) {
	f, err := os.CreateTemp("", "dataset")
	if err != nil {
		return "", fmt.Errorf("error creating temp file: %w", err)
	}
	p := f.Name()
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("error closing temp file: %w", err)
	}

	slog.Debug("downloading", "url", url, "path", p)
	if err := net.Download(context.Background(), url, p); err != nil {
		os.Remove(p)
		return "", fmt.Errorf("error downloading file: %s: %w", url, err)
	}

	return p, nil
}

type APIImportResult struct {
	Exchanges   []string             `json:"exchanges,omitempty" yaml:"exchanges,omitempty"`
	Stocks      int                  `json:"stocks" yaml:"stocks"`
	Candles     int                  `json:"candles" yaml:"candles"`
	Errors      int                  `json:"errors,omitempty" yaml:"errors,omitempty"`
	Substituted []*data.Substitution `json:"substituted,omitempty" yaml:"substituted,omitempty"`
	Duration    string               `json:"duration" yaml:"duration"`
}

func cmdImportAPI(c *cli.Context) error {
	start := time.Now()
	exchanges := c.StringSlice(exchangeNameFlag.Name)

	cfg := getConfig(c)

	workers := c.Int(workersFlag.Name)
	if workers < 1 {
		workers = cfg.Conf.Import.Workers
	}

	client, err := apiClient()
	if err != nil {
		return fmt.Errorf("failed to create API client: %w", err)
	}

	imp := data.NewStockImporter(cfg.DB, client, cfg.Conf.API.URL, workers)
	ctx := context.Background()

	res := &APIImportResult{Exchanges: exchanges}

	// 0. clear state if fresh
	if c.Bool(freshFlag.Name) {
		targets := exchanges
		if len(targets) == 0 {
			targets = data.Exchanges
		}
		for _, x := range targets {
			if clearErr := data.ResetImportState(cfg.DB, x); clearErr != nil {
				slog.Error("failed to reset import state", "exchange", x, "error", clearErr)
			}
		}
		slog.Info("cleared quote pagination state", "exchanges", len(targets))
	}

	if len(exchanges) == 0 {
		// 1. quotes and candles for every exchange
		counts, impErr := imp.ImportAll(ctx)
		if impErr != nil {
			return fmt.Errorf("failed to import: %w", impErr)
		}
		res.Stocks = counts["stocks"]
		res.Candles = counts["candles"]
		res.Errors = counts["errors"]
	} else {
		// 1. quotes per requested exchange
		for _, x := range exchanges {
			slog.Info("importing quotes", "exchange", x)
			n, impErr := imp.ImportExchange(ctx, x)
			if impErr != nil {
				slog.Error("failed to import exchange", "exchange", x, "error", impErr)
				continue
			}
			res.Stocks += n
		}

		// 2. candles for the imported tickers
		for _, x := range exchanges {
			tickers, listErr := data.GetExchangeTickers(cfg.DB, x)
			if listErr != nil {
				slog.Error("failed to list tickers", "exchange", x, "error", listErr)
				continue
			}
			for _, ticker := range tickers {
				n, impErr := imp.ImportCandles(ctx, ticker)
				if impErr != nil {
					slog.Error("failed to import candles", "ticker", ticker, "error", impErr)
					res.Errors++
					continue
				}
				res.Candles += n
			}
		}
	}

	// 3. substitutions
	slog.Info("applying substitutions")
	sub, err := data.ApplySubstitutions(cfg.DB)
	if err != nil {
		slog.Error("failed to apply substitutions", "error", err)
	} else {
		res.Substituted = sub
	}

	// 4. sector cleanup
	if err := data.CleanSectors(cfg.DB); err != nil {
		slog.Error("failed to clean sectors", "error", err)
	}

	res.Duration = time.Since(start).String()

	if err := encode(res); err != nil {
		return fmt.Errorf("error encoding result: %w", err)
	}

	return nil
}

// apiClient returns a bearer-token client when an API key is stored,
// an anonymous client otherwise.
func apiClient() (*http.Client, error) {
	key, err := getAPIKey()
	if err != nil || key == "" {
		slog.Debug("no API key stored, using anonymous client")
		return net.GetHTTPClient()
	}
	return net.GetOAuthClient(context.Background(), key), nil
}
