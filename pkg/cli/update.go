package cli

import (
	"fmt"
	"log/slog"

	"github.com/nwflabs/nwf/pkg/data"
	"github.com/urfave/cli/v2"
)

const updateTopSummaryLimit = 10

var (
	tickerFlag = &cli.StringFlag{
		Name:  "ticker",
		Usage: "Limit the pass to a single ticker",
	}

	updateExchangeFlag = &cli.StringFlag{
		Name:  "exchange",
		Usage: "Limit the pass to one exchange",
	}

	datasetInFlag = &cli.StringFlag{
		Name:  "file",
		Usage: "Run the file pipeline on this dataset instead of the database",
	}

	datasetOutFlag = &cli.StringFlag{
		Name:  "out",
		Usage: "Output path for the enhanced dataset (default: overwrite --file)",
	}

	updateCmd = &cli.Command{
		Name:    "update",
		Aliases: []string{"u"},
		Usage:   "Validate stocks and refresh their NWF metrics",
		UsageText: `nwf update                                      # score every stock in the database
   nwf update --ticker VNM                         # score a single ticker
   nwf update --exchange HOSE                      # score one exchange
   nwf update --file stocks.json --out scored.json # enhance a dataset file, no database`,
		HideHelpCommand: true,
		Action:          cmdUpdateMetrics,
		Flags: []cli.Flag{
			tickerFlag,
			updateExchangeFlag,
			datasetInFlag,
			datasetOutFlag,
		},
	}
)

func cmdUpdateMetrics(c *cli.Context) error {
	if in := c.String(datasetInFlag.Name); in != "" {
		return updateDatasetFile(c, in)
	}

	cfg := getConfig(c)

	opts := &data.UpdateOptions{
		Ticker:     c.String(tickerFlag.Name),
		Exchange:   c.String(updateExchangeFlag.Name),
		StaleAfter: cfg.Conf.StaleAfter(),
	}

	res, err := data.UpdateMetrics(cfg.DB, opts)
	if err != nil {
		return fmt.Errorf("failed to update metrics: %w", err)
	}

	logTopStocks(cfg)

	if err := encode(res); err != nil {
		return fmt.Errorf("error encoding result: %w", err)
	}

	return nil
}

// updateDatasetFile runs the file pipeline: load, enhance, save. The
// database is not touched.
func updateDatasetFile(c *cli.Context, in string) error {
	out := c.String(datasetOutFlag.Name)
	if out == "" {
		out = in
	}

	ds, err := data.LoadDataset(in)
	if err != nil {
		return fmt.Errorf("failed to load dataset %s: %w", in, err)
	}

	res := data.EnhanceDataset(ds)

	if err := data.SaveDataset(out, ds); err != nil {
		return fmt.Errorf("failed to save dataset %s: %w", out, err)
	}

	slog.Info("dataset enhanced", "in", in, "out", out, "stocks", res.Total, "scored", res.Scored)

	if err := encode(res); err != nil {
		return fmt.Errorf("error encoding result: %w", err)
	}

	return nil
}

func logTopStocks(cfg *appConfig) {
	top, err := data.TopStocks(cfg.DB, updateTopSummaryLimit)
	if err != nil {
		slog.Error("failed to get top stocks", "error", err)
		return
	}

	for i, r := range top {
		slog.Info("top stock",
			"rank", i+1,
			"ticker", r.Ticker,
			"robust", r.Robust,
			"score", r.Score,
			"confidence", r.Confidence,
		)
	}
}
