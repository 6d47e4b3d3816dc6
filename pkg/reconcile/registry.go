package reconcile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/Ramsey-B/subdivisions/pkg/catalog"
	"github.com/Ramsey-B/subdivisions/pkg/errors"
	"github.com/Ramsey-B/subdivisions/pkg/extractor"
	"github.com/Ramsey-B/subdivisions/pkg/models"
)

// CommuneRegistryEnabled reports whether a commune registry dataset is configured.
func (e *Engine) CommuneRegistryEnabled() bool {
	return e.Sources.CommuneRegistryDatasetID != "" && e.Sources.CommuneRegistryPattern != nil
}

// ReconcileCommuneRegistry sets the registry number and population of the communes of year. Every
// row must match a commune of that year; a differing name is logged and the row still applies.
func (e *Engine) ReconcileCommuneRegistry(ctx context.Context, year int) (*Result, error) {
	if !e.CommuneRegistryEnabled() {
		return nil, fmt.Errorf("commune registry dataset is not configured")
	}

	return e.execute(ctx, plan{
		operation: OperationCommuneRegistry,
		level:     models.LevelCommune,
		query:     e.Sources.communeRegistryQuery(),
		source: func(f catalog.File) extractor.Source {
			return e.Sources.CommuneRegistrySource(f.URL, f.Year)
		},
		apply: e.applyCommuneRegistry,
	}, year)
}

func (e *Engine) applyCommuneRegistry(ctx context.Context, r *run, rec extractor.Record) error {
	insee, name, siren := field(rec, fieldInsee), field(rec, fieldName), field(rec, fieldSiren)
	if err := e.Validator.Siren(models.LevelCommune, siren); err != nil {
		return err
	}
	population, err := parsePopulation(field(rec, fieldPopulation))
	if err != nil {
		return err
	}

	commune, err := e.Communes.FindByCodeAndVintage(ctx, insee, r.vintage.ID)
	if err != nil {
		return err
	}
	if commune == nil {
		return errors.NewParentNotFoundError(string(OperationCommuneRegistry), models.LevelCommune.String(), insee, r.year)
	}
	if commune.Name != name {
		e.Logger.WithContext(ctx).WithFields(map[string]any{
			"insee":         insee,
			"registry_name": name,
			"stored_name":   commune.Name,
		}).Warn("commune name differs from registry, overwriting registry fields")
	}

	if err := e.Communes.UpdateRegistry(ctx, commune.ID, siren, population); err != nil {
		return err
	}
	r.result.Updated++
	return nil
}

func parsePopulation(value string) (*int, error) {
	if value == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return nil, errors.NewValidationError(models.LevelCommune.String(), fieldPopulation, value, "non-negative integer")
	}
	return &n, nil
}

// EnrichFromReferenceTable applies a local table of registry numbers and categories to the
// regions or départements of year, 0 meaning the latest published year of that level. The vintage
// must already have been imported; the table amends it without recording a provenance. Rows for
// the Métropole de Lyon and codes unknown in that year are skipped.
func (e *Engine) EnrichFromReferenceTable(ctx context.Context, level models.Level, path string, year int) (*Result, error) {
	var find func(ctx context.Context, insee, vintageID string) (string, error)
	switch level {
	case models.LevelRegion:
		find = func(ctx context.Context, insee, vintageID string) (string, error) {
			region, err := e.Regions.FindByCodeAndVintage(ctx, insee, vintageID)
			if err != nil || region == nil {
				return "", err
			}
			return region.ID, nil
		}
	case models.LevelDepartement:
		find = func(ctx context.Context, insee, vintageID string) (string, error) {
			dep, err := e.Departements.FindByCodeAndVintage(ctx, insee, vintageID)
			if err != nil || dep == nil {
				return "", err
			}
			return dep.ID, nil
		}
	default:
		return nil, fmt.Errorf("reference tables apply to regions and departements, not %s", level)
	}

	return e.execute(ctx, plan{
		operation: OperationEnrichment,
		level:     level,
		query:     e.Sources.Query(level),
		amend:     true,
		locate: func(ctx context.Context, year int) (catalog.File, error) {
			if year == 0 {
				latest, err := e.Resolver.Lookup(ctx, e.Sources.Query(level), 0)
				if err != nil {
					return catalog.File{}, err
				}
				year = latest.Year
			}
			return catalog.File{Title: filepath.Base(path), URL: path, Year: year}, nil
		},
		open: func(_ context.Context, src extractor.Source) (*extractor.Rows, error) {
			payload, err := os.ReadFile(src.URL)
			if err != nil {
				return nil, fmt.Errorf("failed to read reference table %s: %w", src.URL, err)
			}
			return extractor.Parse(src, payload)
		},
		source: func(f catalog.File) extractor.Source {
			return ReferenceTableSource(f.URL)
		},
		apply: func(ctx context.Context, r *run, rec extractor.Record) error {
			return e.applyReferenceRow(ctx, r, level, rec, find)
		},
	}, year)
}

func (e *Engine) applyReferenceRow(ctx context.Context, r *run, level models.Level, rec extractor.Record,
	find func(ctx context.Context, insee, vintageID string) (string, error)) error {
	insee, siren, category := field(rec, fieldInsee), field(rec, fieldSiren), field(rec, fieldCategory)
	log := e.Logger.WithContext(ctx).WithFields(map[string]any{"level": level.String(), "insee": insee})

	if err := e.Validator.Category(level, category); err != nil {
		return err
	}
	if category == models.DepartementCategoryMetroLyon {
		log.Debug("skipping Métropole de Lyon, handled as a grouping")
		r.result.Skipped++
		return nil
	}
	if err := e.Validator.Siren(level, siren); err != nil {
		return err
	}

	id, err := find(ctx, insee, r.vintage.ID)
	if err != nil {
		return err
	}
	if id == "" {
		log.WithField("year", r.year).Warn("no entity with this code in the vintage, skipping")
		r.result.Skipped++
		return nil
	}

	var categoryPtr *string
	if category != "" {
		categoryPtr = &category
	}

	switch level {
	case models.LevelRegion:
		err = e.Regions.UpdateRegistry(ctx, id, siren, categoryPtr)
	default:
		err = e.Departements.UpdateRegistry(ctx, id, siren, categoryPtr)
	}
	if err != nil {
		return err
	}
	r.result.Updated++
	return nil
}
