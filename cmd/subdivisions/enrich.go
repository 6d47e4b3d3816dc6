package main

import (
	"fmt"

	"github.com/Gobusters/ectolinq"
	"github.com/spf13/cobra"

	reqcontext "github.com/Ramsey-B/subdivisions/pkg/context"
	"github.com/Ramsey-B/subdivisions/pkg/models"
)

func newEnrichCmd(a *app) *cobra.Command {
	enrichable := []models.Level{models.LevelRegion, models.LevelDepartement}

	var (
		level string
		file  string
		year  int
	)

	cmd := &cobra.Command{
		Use:   "enrich",
		Short: "Apply a local table of registry numbers and categories",
		RunE: func(cmd *cobra.Command, args []string) error {
			l, ok := levelFlags[level]
			if !ok || !ectolinq.Contains(enrichable, l) {
				return fmt.Errorf("--level must be regions or departements, got %q", level)
			}
			if err := a.connect(cmd.Context()); err != nil {
				return err
			}
			ctx := reqcontext.SetTrigger(cmd.Context(), "cli")
			res, err := a.engine.EnrichFromReferenceTable(ctx, l, file, year)
			if err != nil {
				return err
			}
			printResults(cmd.OutOrStdout(), res)
			return nil
		},
	}

	cmd.Flags().StringVar(&level, "level", "", "Level: regions or departements (required)")
	cmd.Flags().StringVar(&file, "file", "", "CSV with Insee, Siren and CATEG columns (required)")
	cmd.Flags().IntVar(&year, "year", 0, "Vintage year (0 = latest published)")

	_ = cmd.MarkFlagRequired("level")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}
