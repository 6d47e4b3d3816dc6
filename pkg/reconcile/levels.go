package reconcile

import (
	"context"

	"github.com/Ramsey-B/subdivisions/pkg/catalog"
	"github.com/Ramsey-B/subdivisions/pkg/errors"
	"github.com/Ramsey-B/subdivisions/pkg/extractor"
	"github.com/Ramsey-B/subdivisions/pkg/models"
	"github.com/Ramsey-B/subdivisions/pkg/slug"
)

// ReconcileRegions imports the regions of year, 0 meaning the latest published year.
func (e *Engine) ReconcileRegions(ctx context.Context, year int) (*Result, error) {
	return e.execute(ctx, plan{
		operation:   OperationCOG,
		level:       models.LevelRegion,
		query:       e.Sources.Query(models.LevelRegion),
		titlePrefix: cogTitlePrefix,
		source: func(f catalog.File) extractor.Source {
			return e.Sources.RegionSource(f.URL, f.Year)
		},
		apply: e.applyRegion,
	}, year)
}

func (e *Engine) applyRegion(ctx context.Context, r *run, rec extractor.Record) error {
	insee, name := field(rec, fieldInsee), field(rec, fieldName)
	if err := e.Validator.Code(models.LevelRegion, insee); err != nil {
		return err
	}

	res, err := e.Regions.Upsert(ctx, models.Region{Name: name, Insee: insee, Slug: slug.Make(name)})
	if err != nil {
		return err
	}
	alreadyPresent, err := e.Regions.AddVintage(ctx, res.Entity.ID, r.vintage.ID)
	if err != nil {
		return err
	}
	e.attach(ctx, r, models.LevelRegion, res.IsNew, alreadyPresent, map[string]any{"name": name, "insee": insee})

	return e.upsertDataPoint(ctx, r, models.LevelRegion, e.RegionData, res.Entity.ID, models.DatacodeSeatInsee, field(rec, fieldSeat))
}

// ReconcileDepartements imports the départements of year. Their regions must already be
// reconciled for the same year.
func (e *Engine) ReconcileDepartements(ctx context.Context, year int) (*Result, error) {
	return e.execute(ctx, plan{
		operation:   OperationCOG,
		level:       models.LevelDepartement,
		query:       e.Sources.Query(models.LevelDepartement),
		titlePrefix: cogTitlePrefix,
		source: func(f catalog.File) extractor.Source {
			return e.Sources.DepartementSource(f.URL, f.Year)
		},
		apply: e.applyDepartement,
	}, year)
}

func (e *Engine) applyDepartement(ctx context.Context, r *run, rec extractor.Record) error {
	insee, name, regionCode := field(rec, fieldInsee), field(rec, fieldName), field(rec, fieldRegion)
	if err := e.Validator.Code(models.LevelDepartement, insee); err != nil {
		return err
	}

	region, err := e.Regions.FindByCodeAndVintage(ctx, regionCode, r.vintage.ID)
	if err != nil {
		return err
	}
	if region == nil {
		return errors.NewParentNotFoundError(models.LevelDepartement.String(), models.LevelRegion.String(), regionCode, r.year)
	}

	res, err := e.Departements.Upsert(ctx, models.Departement{
		Name:     name,
		Insee:    insee,
		Slug:     slug.Make(name),
		RegionID: &region.ID,
	})
	if err != nil {
		return err
	}
	alreadyPresent, err := e.Departements.AddVintage(ctx, res.Entity.ID, r.vintage.ID)
	if err != nil {
		return err
	}
	e.attach(ctx, r, models.LevelDepartement, res.IsNew, alreadyPresent, map[string]any{"name": name, "insee": insee})

	return e.upsertDataPoint(ctx, r, models.LevelDepartement, e.DepartementData, res.Entity.ID, models.DatacodeSeatInsee, field(rec, fieldSeat))
}

// ReconcileCommunes imports the ordinary communes of year. Their départements must already be
// reconciled for the same year.
func (e *Engine) ReconcileCommunes(ctx context.Context, year int) (*Result, error) {
	return e.execute(ctx, plan{
		operation:   OperationCOG,
		level:       models.LevelCommune,
		query:       e.Sources.Query(models.LevelCommune),
		titlePrefix: cogTitlePrefix,
		source: func(f catalog.File) extractor.Source {
			return e.Sources.CommuneSource(f.URL, f.Year)
		},
		apply: e.applyCommune,
	}, year)
}

func (e *Engine) applyCommune(ctx context.Context, r *run, rec extractor.Record) error {
	insee, name, depCode := field(rec, fieldInsee), field(rec, fieldName), field(rec, fieldDepartement)
	if err := e.Validator.Code(models.LevelCommune, insee); err != nil {
		return err
	}

	dep, err := e.Departements.FindByCodeAndVintage(ctx, depCode, r.vintage.ID)
	if err != nil {
		return err
	}
	if dep == nil {
		return errors.NewParentNotFoundError(models.LevelCommune.String(), models.LevelDepartement.String(), depCode, r.year)
	}

	res, err := e.Communes.Upsert(ctx, models.Commune{
		Name:          name,
		Insee:         insee,
		Slug:          slug.Join(name, insee),
		DepartementID: dep.ID,
	})
	if err != nil {
		return err
	}
	alreadyPresent, err := e.Communes.AddVintage(ctx, res.Entity.ID, r.vintage.ID)
	if err != nil {
		return err
	}
	e.attach(ctx, r, models.LevelCommune, res.IsNew, alreadyPresent, map[string]any{"name": name, "insee": insee})

	return nil
}

// ReconcileEpcis imports the groupings of year and links their member communes, which must
// already be reconciled for the same year and carry their registry numbers. An empty membership
// file is an error.
func (e *Engine) ReconcileEpcis(ctx context.Context, year int) (*Result, error) {
	return e.execute(ctx, plan{
		operation: OperationBanatic,
		level:     models.LevelEpci,
		query:     e.Sources.Query(models.LevelEpci),
		source: func(f catalog.File) extractor.Source {
			return e.Sources.EpciSource(f.URL)
		},
		apply: e.applyEpciMember,
	}, year)
}

// applyEpciMember handles one membership row. A grouping spans many rows; its outcome is counted
// on the first one.
func (e *Engine) applyEpciMember(ctx context.Context, r *run, rec extractor.Record) error {
	name, epciType, siren := field(rec, fieldEpciName), field(rec, fieldEpciType), field(rec, fieldEpciSiren)
	memberSiren := field(rec, fieldMemberSiren)

	if err := e.Validator.Siren(models.LevelEpci, siren); err != nil {
		return err
	}
	if err := e.Validator.Category(models.LevelEpci, epciType); err != nil {
		return err
	}
	if err := e.Validator.Siren(models.LevelCommune, memberSiren); err != nil {
		return err
	}

	var member *models.Commune
	if memberSiren != "" {
		found, err := e.Communes.FindBySirenAndVintage(ctx, memberSiren, r.vintage.ID)
		if err != nil {
			return err
		}
		member = found
	}
	if member == nil {
		return errors.NewParentNotFoundError(models.LevelEpci.String(), models.LevelCommune.String(), memberSiren, r.year)
	}

	res, err := e.Epcis.Upsert(ctx, models.Epci{
		Name:     name,
		EpciType: epciType,
		Siren:    siren,
		Slug:     slug.Join(name, siren),
	})
	if err != nil {
		return err
	}

	if !r.seen[res.Entity.ID] {
		r.seen[res.Entity.ID] = true
		alreadyPresent, err := e.Epcis.AddVintage(ctx, res.Entity.ID, r.vintage.ID)
		if err != nil {
			return err
		}
		e.attach(ctx, r, models.LevelEpci, res.IsNew, alreadyPresent, map[string]any{"name": name, "siren": siren})
	}

	return e.Communes.SetEpci(ctx, member.ID, res.Entity.ID)
}
