package cli

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/nwflabs/nwf/pkg/data"
	"github.com/urfave/cli/v2"
)

const (
	queryResultLimitDefault = 500
	queryTopLimitDefault    = 10
	queryRunLimitDefault    = 10
	insightSectorLimit      = 5
)

var (
	queryLimitFlag = &cli.IntFlag{
		Name:     "limit",
		Usage:    "Limits number of result returned",
		Value:    queryResultLimitDefault,
		Required: false,
	}

	queryOffsetFlag = &cli.IntFlag{
		Name:  "offset",
		Usage: "Number of results to skip (paging)",
	}

	screenExchangeFlag = &cli.StringFlag{
		Name:  "exchange",
		Usage: fmt.Sprintf("Exchange filter [%s]", strings.Join(data.Exchanges, ", ")),
	}

	screenSectorFlag = &cli.StringFlag{
		Name:  "sector",
		Usage: "Sector filter (canonical sector name)",
	}

	screenQueryFlag = &cli.StringFlag{
		Name:  "like",
		Usage: "Fuzzy search on ticker or company name",
	}

	minScoreFlag = &cli.Float64Flag{
		Name:  "min-score",
		Usage: "Minimum NWF composite score [0-10]",
	}

	minConfidenceFlag = &cli.IntFlag{
		Name:  "min-confidence",
		Usage: "Minimum confidence [50-95]",
	}

	minLiquidityFlag = &cli.IntFlag{
		Name:  "min-liquidity",
		Usage: "Minimum liquidity score [4-9]",
	}

	maxVolatilityFlag = &cli.Float64Flag{
		Name:  "max-volatility",
		Usage: "Maximum annualized volatility percent",
	}

	sortFlag = &cli.StringFlag{
		Name:  "sort",
		Usage: "Sort column [robust, score, confidence, liquidity, ticker]",
	}

	stockTickerQueryFlag = &cli.StringFlag{
		Name:     "ticker",
		Usage:    "Stock ticker",
		Required: true,
	}

	sectorLikeQueryFlag = &cli.StringFlag{
		Name:  "like",
		Usage: "Fuzzy sector name search",
	}

	queryCmd = &cli.Command{
		Name:    "query",
		Aliases: []string{"q"},
		Usage:   "List data query operations",
		Subcommands: []*cli.Command{
			{
				Name:    "stocks",
				Usage:   "Screen scored stocks with filters",
				Aliases: []string{"s"},
				Action:  cmdQueryStocks,
				Flags: []cli.Flag{
					screenExchangeFlag,
					screenSectorFlag,
					screenQueryFlag,
					minScoreFlag,
					minConfidenceFlag,
					minLiquidityFlag,
					maxVolatilityFlag,
					sortFlag,
					queryLimitFlag,
					queryOffsetFlag,
				},
			},
			{
				Name:    "top",
				Aliases: []string{"t"},
				Usage:   "List the top stocks by robust score",
				Action:  cmdQueryTop,
				Flags: []cli.Flag{
					queryLimitFlag,
				},
			},
			{
				Name:    "stock",
				Aliases: []string{"d"},
				Usage:   "Get one stock with indicators, metrics, and score history",
				Action:  cmdQueryStock,
				Flags: []cli.Flag{
					stockTickerQueryFlag,
				},
			},
			{
				Name:    "exchanges",
				Aliases: []string{"e"},
				Usage:   "List exchanges with stock counts",
				Action:  cmdQueryExchanges,
			},
			{
				Name:   "sectors",
				Usage:  "List sectors with stock counts",
				Action: cmdQuerySectors,
				Flags: []cli.Flag{
					sectorLikeQueryFlag,
					queryLimitFlag,
				},
			},
			{
				Name:    "insights",
				Aliases: []string{"i"},
				Usage:   "Market dashboard aggregates",
				Action:  cmdQueryInsights,
			},
			{
				Name:    "runs",
				Aliases: []string{"r"},
				Usage:   "List recent updater runs",
				Action:  cmdQueryRuns,
				Flags: []cli.Flag{
					queryLimitFlag,
				},
			},
		},
	}
)

func optional(val string) *string {
	if val == "" || val == "undefined" {
		return nil
	}
	return &val
}

func optionalFloat(c *cli.Context, flag *cli.Float64Flag) *float64 {
	if !c.IsSet(flag.Name) {
		return nil
	}
	v := c.Float64(flag.Name)
	return &v
}

func optionalInt(c *cli.Context, flag *cli.IntFlag) *int {
	if !c.IsSet(flag.Name) {
		return nil
	}
	v := c.Int(flag.Name)
	return &v
}

func limitFrom(c *cli.Context, def int) int {
	limit := c.Int(queryLimitFlag.Name)
	if limit <= 0 || limit > queryResultLimitDefault {
		return def
	}
	return limit
}

func cmdQueryStocks(c *cli.Context) error {
	q := &data.ScreenCriteria{
		Exchange:      optional(c.String(screenExchangeFlag.Name)),
		Sector:        optional(c.String(screenSectorFlag.Name)),
		Query:         optional(c.String(screenQueryFlag.Name)),
		MinScore:      optionalFloat(c, minScoreFlag),
		MinConfidence: optionalInt(c, minConfidenceFlag),
		MinLiquidity:  optionalInt(c, minLiquidityFlag),
		MaxVolatility: optionalFloat(c, maxVolatilityFlag),
		Sort:          c.String(sortFlag.Name),
		Limit:         c.Int(queryLimitFlag.Name),
		Offset:        c.Int(queryOffsetFlag.Name),
	}

	slog.Debug("screen stocks", "criteria", q)

	cfg := getConfig(c)

	list, err := data.ScreenStocks(cfg.DB, q)
	if err != nil {
		return fmt.Errorf("failed to screen stocks: %w", err)
	}

	if err := encode(list); err != nil {
		return fmt.Errorf("error encoding list: %+v: %w", list, err)
	}

	return nil
}

func cmdQueryTop(c *cli.Context) error {
	cfg := getConfig(c)

	list, err := data.TopStocks(cfg.DB, limitFrom(c, queryTopLimitDefault))
	if err != nil {
		return fmt.Errorf("failed to query top stocks: %w", err)
	}

	if err := encode(list); err != nil {
		return fmt.Errorf("error encoding list: %+v: %w", list, err)
	}

	return nil
}

func cmdQueryStock(c *cli.Context) error {
	val := c.String(stockTickerQueryFlag.Name)
	if val == "" {
		return cli.ShowSubcommandHelp(c)
	}

	cfg := getConfig(c)

	slog.Debug("query stock details", "ticker", val)
	d, err := data.GetStockDetails(cfg.DB, val)
	if err != nil {
		return fmt.Errorf("failed to query stock: %w", err)
	}

	if d == nil {
		fmt.Fprint(os.Stdout, "{}")
		return nil
	}

	if err := encode(d); err != nil {
		return fmt.Errorf("error encoding: %+v: %w", d, err)
	}

	return nil
}

func cmdQueryExchanges(c *cli.Context) error {
	cfg := getConfig(c)

	list, err := data.GetExchanges(cfg.DB)
	if err != nil {
		return fmt.Errorf("failed to query exchanges: %w", err)
	}

	if err := encode(list); err != nil {
		return fmt.Errorf("error encoding list: %+v: %w", list, err)
	}

	return nil
}

func cmdQuerySectors(c *cli.Context) error {
	cfg := getConfig(c)

	list, err := data.QuerySectors(cfg.DB, c.String(sectorLikeQueryFlag.Name), limitFrom(c, queryResultLimitDefault))
	if err != nil {
		return fmt.Errorf("failed to query sectors: %w", err)
	}

	if err := encode(list); err != nil {
		return fmt.Errorf("error encoding list: %+v: %w", list, err)
	}

	return nil
}

func cmdQueryInsights(c *cli.Context) error {
	cfg := getConfig(c)

	res, err := data.GetInsights(cfg.DB, insightSectorLimit)
	if err != nil {
		return fmt.Errorf("failed to query insights: %w", err)
	}

	if err := encode(res); err != nil {
		return fmt.Errorf("error encoding: %+v: %w", res, err)
	}

	return nil
}

func cmdQueryRuns(c *cli.Context) error {
	cfg := getConfig(c)

	list, err := data.GetRuns(cfg.DB, limitFrom(c, queryRunLimitDefault))
	if err != nil {
		return fmt.Errorf("failed to query runs: %w", err)
	}

	if err := encode(list); err != nil {
		return fmt.Errorf("error encoding list: %+v: %w", list, err)
	}

	return nil
}
