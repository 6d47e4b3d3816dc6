package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/Gobusters/ectolinq"
	"github.com/spf13/cobra"

	reqcontext "github.com/Ramsey-B/subdivisions/pkg/context"
	"github.com/Ramsey-B/subdivisions/pkg/models"
	"github.com/Ramsey-B/subdivisions/pkg/reconcile"
	"github.com/Ramsey-B/subdivisions/pkg/routes/imports"
)

const (
	sourceCOG     = "cog"
	sourceBanatic = "banatic"

	levelCommuneRegistry = "commune-registry"
)

// levelFlags maps the CLI level names to registry levels.
var levelFlags = map[string]models.Level{
	"regions":      models.LevelRegion,
	"departements": models.LevelDepartement,
	"communes":     models.LevelCommune,
	"epci":         models.LevelEpci,
}

type importOptions struct {
	source string
	level  string
	year   int
}

// importPlan is what an import invocation runs, in order.
type importPlan struct {
	all      bool
	levels   []models.Level
	registry bool
}

func newImportCmd(a *app) *cobra.Command {
	var opts importOptions

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Reconcile the registry against the published files",
		Long: "Reconcile one level, every level of a source, or the whole pipeline when neither " +
			"--source nor --level is given. --year 0 selects the latest published year.",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := planImport(opts.source, opts.level)
			if err != nil {
				return err
			}
			if err := a.connect(cmd.Context()); err != nil {
				return err
			}
			ctx := reqcontext.SetTrigger(cmd.Context(), "cli")
			return runImport(ctx, a.engine, p, opts.year, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.source, "source", "", "Source: cog or banatic")
	cmd.Flags().StringVar(&opts.level, "level", "", "Level: regions, departements, communes, epci or commune-registry")
	cmd.Flags().IntVar(&opts.year, "year", 0, "Vintage year (0 = latest published)")

	return cmd
}

func planImport(source, level string) (importPlan, error) {
	source = strings.ToLower(strings.TrimSpace(source))
	level = strings.ToLower(strings.TrimSpace(level))

	if source != "" && source != sourceCOG && source != sourceBanatic {
		return importPlan{}, fmt.Errorf("unknown --source %q, expected %s or %s", source, sourceCOG, sourceBanatic)
	}

	if level == "" {
		switch source {
		case sourceCOG:
			return importPlan{levels: []models.Level{models.LevelRegion, models.LevelDepartement, models.LevelCommune}}, nil
		case sourceBanatic:
			return importPlan{levels: []models.Level{models.LevelEpci}}, nil
		}
		return importPlan{all: true}, nil
	}

	if level == levelCommuneRegistry {
		if source != "" {
			return importPlan{}, fmt.Errorf("--level %s reads its own dataset and takes no --source", level)
		}
		return importPlan{registry: true}, nil
	}

	l, ok := levelFlags[level]
	if !ok {
		return importPlan{}, fmt.Errorf("unknown --level %q", level)
	}
	if source != "" && source != levelSource(l) {
		return importPlan{}, fmt.Errorf("--level %s is published by %s, not %s", level, levelSource(l), source)
	}
	return importPlan{levels: []models.Level{l}}, nil
}

func levelSource(level models.Level) string {
	if level == models.LevelEpci {
		return sourceBanatic
	}
	return sourceCOG
}

func runImport(ctx context.Context, importer imports.Importer, p importPlan, year int, out io.Writer) error {
	if p.all {
		results, err := importer.RunAll(ctx, year)
		printResults(out, results...)
		return err
	}
	if p.registry {
		res, err := importer.ReconcileCommuneRegistry(ctx, year)
		if err != nil {
			return err
		}
		printResults(out, res)
		return nil
	}
	for _, level := range p.levels {
		res, err := importer.Reconcile(ctx, level, year)
		if err != nil {
			return err
		}
		printResults(out, res)
		if year == 0 {
			year = res.Year
		}
	}
	return nil
}

func printResults(out io.Writer, results ...*reconcile.Result) {
	committed := ectolinq.Filter(results, func(res *reconcile.Result) bool {
		return res != nil
	})
	for _, res := range committed {
		if res.SkipReason != "" {
			fmt.Fprintf(out, "%-16s %-12s %d  skipped: %s\n", res.Operation, res.Level, res.Year, res.SkipReason)
			continue
		}
		fmt.Fprintf(out, "%-16s %-12s %d  created=%d year_extended=%d unchanged=%d updated=%d skipped=%d data_points=%d\n",
			res.Operation, res.Level, res.Year,
			res.Outcomes.Created, res.Outcomes.YearExtended, res.Outcomes.Unchanged,
			res.Updated, res.Skipped, res.DataPoints)
	}
}
