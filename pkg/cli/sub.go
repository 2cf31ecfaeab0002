package cli

import (
	"fmt"
	"strings"

	"github.com/nwflabs/nwf/pkg/data"
	"github.com/urfave/cli/v2"
)

var (
	subPropFlag = &cli.StringFlag{
		Name:     "prop",
		Usage:    fmt.Sprintf("Stock property to substitute [%s]", strings.Join(data.UpdatableProperties, ", ")),
		Required: true,
	}

	oldValFlag = &cli.StringFlag{
		Name:     "old",
		Usage:    "Old value",
		Required: true,
	}

	newValFlag = &cli.StringFlag{
		Name:     "new",
		Usage:    "New value",
		Required: true,
	}

	substituteCmd = &cli.Command{
		Name:    "substitute",
		Aliases: []string{"sub"},
		Usage:   "Manage global data substitutions (e.g. standardize sector names)",
		UsageText: `nwf substitute add --prop sector --old "Banks" --new "BANKING"   # rename sector
   nwf sub list                                                     # list stored substitutions
   nwf sub delete --prop sector --old "Banks"                       # remove one substitution`,
		HideHelpCommand: true,
		Subcommands: []*cli.Command{
			{
				Name:    "add",
				Aliases: []string{"a"},
				Usage:   "Save a substitution and apply it to existing rows",
				Action:  cmdSubstituteAdd,
				Flags: []cli.Flag{
					subPropFlag,
					oldValFlag,
					newValFlag,
				},
			},
			{
				Name:    "list",
				Aliases: []string{"l"},
				Usage:   "List stored substitutions",
				Action:  cmdSubstituteList,
			},
			{
				Name:    "delete",
				Aliases: []string{"d", "del"},
				Usage:   "Delete a substitution",
				Action:  cmdSubstituteDelete,
				Flags: []cli.Flag{
					subPropFlag,
					oldValFlag,
				},
			},
		},
	}
)

type SubstitutionDelete struct {
	Prop    string `json:"prop" yaml:"prop"`
	Old     string `json:"old" yaml:"old"`
	Deleted bool   `json:"deleted" yaml:"deleted"`
}

func cmdSubstituteAdd(c *cli.Context) error {
	prop := c.String(subPropFlag.Name)
	old := c.String(oldValFlag.Name)
	new := c.String(newValFlag.Name)

	if prop == "" || old == "" || new == "" {
		return cli.ShowSubcommandHelp(c)
	}

	cfg := getConfig(c)

	res, err := data.SaveAndApplyStockSub(cfg.DB, prop, old, new)
	if err != nil {
		return fmt.Errorf("failed to apply substitution: %w", err)
	}

	if err := encode(res); err != nil {
		return fmt.Errorf("error encoding result: %w", err)
	}

	return nil
}

func cmdSubstituteList(c *cli.Context) error {
	cfg := getConfig(c)

	list, err := data.GetSubstitutions(cfg.DB)
	if err != nil {
		return fmt.Errorf("failed to list substitutions: %w", err)
	}

	if err := encode(list); err != nil {
		return fmt.Errorf("error encoding list: %+v: %w", list, err)
	}

	return nil
}

func cmdSubstituteDelete(c *cli.Context) error {
	prop := c.String(subPropFlag.Name)
	old := c.String(oldValFlag.Name)

	if prop == "" || old == "" {
		return cli.ShowSubcommandHelp(c)
	}

	cfg := getConfig(c)

	ok, err := data.DeleteSubstitution(cfg.DB, prop, old)
	if err != nil {
		return fmt.Errorf("failed to delete substitution: %w", err)
	}

	res := &SubstitutionDelete{
		Prop:    prop,
		Old:     old,
		Deleted: ok,
	}

	if err := encode(res); err != nil {
		return fmt.Errorf("error encoding result: %w", err)
	}

	return nil
}
