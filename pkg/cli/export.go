package cli

import (
	"fmt"
	"time"

	"github.com/nwflabs/nwf/pkg/data"
	"github.com/urfave/cli/v2"
)

var (
	exportOutFlag = &cli.StringFlag{
		Name:     "out",
		Usage:    "Output path for the dataset JSON file",
		Required: true,
	}

	exportCmd = &cli.Command{
		Name:            "export",
		Aliases:         []string{"x"},
		Usage:           "Export the scored stocks as an enhanced dataset file",
		UsageText:       `nwf export --out nwf_stocks.json   # write all stocks with metrics to a dataset file`,
		HideHelpCommand: true,
		Action:          cmdExport,
		Flags: []cli.Flag{
			exportOutFlag,
		},
	}
)

type ExportResult struct {
	Path     string `json:"path" yaml:"path"`
	Stocks   int    `json:"stocks" yaml:"stocks"`
	Duration string `json:"duration" yaml:"duration"`
}

func cmdExport(c *cli.Context) error {
	start := time.Now()
	out := c.String(exportOutFlag.Name)
	if out == "" {
		return cli.ShowSubcommandHelp(c)
	}

	cfg := getConfig(c)

	n, err := data.ExportDataset(cfg.DB, out)
	if err != nil {
		return fmt.Errorf("failed to export dataset to %s: %w", out, err)
	}

	res := &ExportResult{
		Path:     out,
		Stocks:   n,
		Duration: time.Since(start).String(),
	}

	if err := encode(res); err != nil {
		return fmt.Errorf("error encoding result: %w", err)
	}

	return nil
}
