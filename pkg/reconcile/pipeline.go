package reconcile

import (
	"context"
	"fmt"

	"github.com/Ramsey-B/subdivisions/pkg/models"
	"github.com/Ramsey-B/subdivisions/pkg/tracing"
)

// Reconcile runs the reconciliation of one level.
func (e *Engine) Reconcile(ctx context.Context, level models.Level, year int) (*Result, error) {
	switch level {
	case models.LevelRegion:
		return e.ReconcileRegions(ctx, year)
	case models.LevelDepartement:
		return e.ReconcileDepartements(ctx, year)
	case models.LevelCommune:
		return e.ReconcileCommunes(ctx, year)
	case models.LevelEpci:
		return e.ReconcileEpcis(ctx, year)
	}
	return nil, fmt.Errorf("unknown level %q", level)
}

// RunAll reconciles every level top-down. Configured reference tables are applied after their
// level and the commune registry after the communes. When year is 0 the year the regions resolve
// to is pinned for every later step, so all levels land in the same vintage. Without a commune
// registry the communes carry no registry numbers to match grouping members against, so the EPCI
// step is skipped. The first failure stops the pipeline; the results of the committed steps are
// returned with it.
func (e *Engine) RunAll(ctx context.Context, year int) ([]*Result, error) {
	ctx, span := tracing.StartSpan(ctx, "reconcile.Engine.RunAll")
	defer span.End()

	var results []*Result
	step := func(res *Result, err error) error {
		if err != nil {
			tracing.RecordError(span, err)
			return err
		}
		results = append(results, res)
		return nil
	}

	for _, level := range models.Levels {
		if level == models.LevelEpci && !e.CommuneRegistryEnabled() {
			e.Logger.WithContext(ctx).WithField("year", year).
				Warn("commune registry not configured, skipping EPCI reconciliation")
			results = append(results, &Result{
				Operation:  OperationBanatic,
				Level:      models.LevelEpci,
				Year:       year,
				SkipReason: SkipReasonNoCommuneRegistry,
			})
			continue
		}

		if err := step(e.Reconcile(ctx, level, year)); err != nil {
			return results, err
		}
		if year == 0 {
			year = results[len(results)-1].Year
		}

		switch level {
		case models.LevelRegion:
			if e.ReferenceTables.Regions != "" {
				if err := step(e.EnrichFromReferenceTable(ctx, level, e.ReferenceTables.Regions, year)); err != nil {
					return results, err
				}
			}
		case models.LevelDepartement:
			if e.ReferenceTables.Departements != "" {
				if err := step(e.EnrichFromReferenceTable(ctx, level, e.ReferenceTables.Departements, year)); err != nil {
					return results, err
				}
			}
		case models.LevelCommune:
			if e.CommuneRegistryEnabled() {
				if err := step(e.ReconcileCommuneRegistry(ctx, year)); err != nil {
					return results, err
				}
			}
		}
	}

	return results, nil
}
