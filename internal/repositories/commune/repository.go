package commune

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/subdivisions/pkg/database"
	"github.com/Ramsey-B/subdivisions/pkg/models"
	"github.com/Ramsey-B/subdivisions/pkg/tracing"
)

const (
	tableName         = "communes"
	vintagesTableName = "commune_vintages"
)

var columns = []string{"id", "name", "insee", "siren", "population", "slug", "departement_id", "epci_id", "created_at", "updated_at"}

type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Upsert creates the commune for (name, insee) or returns the existing one. The département
// reference always follows the most recently reconciled vintage.
func (r *Repository) Upsert(ctx context.Context, commune models.Commune) (*models.UpsertResult[models.Commune], error) {
	ctx, span := tracing.StartSpan(ctx, "commune.Repository.Upsert")
	defer span.End()

	now := time.Now().UTC()

	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto(tableName).
		Cols("id", "name", "insee", "slug", "departement_id", "created_at", "updated_at").
		Values(uuid.New().String(), commune.Name, commune.Insee, commune.Slug, commune.DepartementID, now, now)
	ib.SQL(`
ON CONFLICT (name, insee)
DO UPDATE SET
  slug = EXCLUDED.slug,
  departement_id = EXCLUDED.departement_id,
  updated_at = CASE WHEN communes.departement_id IS DISTINCT FROM EXCLUDED.departement_id
    THEN EXCLUDED.updated_at ELSE communes.updated_at END
RETURNING id, name, insee, siren, population, slug, departement_id, epci_id, created_at, updated_at, (xmax = 0) AS inserted`)

	query, args := ib.Build()

	var result struct {
		models.Commune
		Inserted bool `db:"inserted"`
	}
	if err := database.Executor(ctx, r.db).GetContext(ctx, &result, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"name":  commune.Name,
			"insee": commune.Insee,
		}).Error("failed to upsert commune")
		return nil, fmt.Errorf("failed to upsert commune %s: %w", commune.Insee, err)
	}

	return &models.UpsertResult[models.Commune]{Entity: &result.Commune, IsNew: result.Inserted}, nil
}

// AddVintage attaches the vintage and reports whether it was already attached.
func (r *Repository) AddVintage(ctx context.Context, communeID, vintageID string) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "commune.Repository.AddVintage")
	defer span.End()

	alreadyPresent, err := database.InsertIgnore(ctx, database.Executor(ctx, r.db), vintagesTableName,
		[]string{"commune_id", "vintage_id"}, communeID, vintageID)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("commune_id", communeID).Error("failed to add commune vintage")
		return false, fmt.Errorf("failed to add commune vintage: %w", err)
	}

	return alreadyPresent, nil
}

// FindByCodeAndVintage returns the commune with insee attached to the vintage, or nil.
func (r *Repository) FindByCodeAndVintage(ctx context.Context, insee, vintageID string) (*models.Commune, error) {
	ctx, span := tracing.StartSpan(ctx, "commune.Repository.FindByCodeAndVintage")
	defer span.End()

	return r.findInVintage(ctx, "c.insee", insee, vintageID)
}

// FindBySirenAndVintage returns the commune with the registry number attached to the vintage, or nil.
func (r *Repository) FindBySirenAndVintage(ctx context.Context, siren, vintageID string) (*models.Commune, error) {
	ctx, span := tracing.StartSpan(ctx, "commune.Repository.FindBySirenAndVintage")
	defer span.End()

	return r.findInVintage(ctx, "c.siren", siren, vintageID)
}

func (r *Repository) findInVintage(ctx context.Context, column, value, vintageID string) (*models.Commune, error) {
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(database.Qualified("c", columns...)...).
		From(tableName+" c").
		Join(vintagesTableName+" cv", "cv.commune_id = c.id").
		Where(sb.Equal(column, value), sb.Equal("cv.vintage_id", vintageID)).
		OrderBy("c.updated_at DESC")

	query, args := sb.Build()

	var commune models.Commune
	if err := database.Executor(ctx, r.db).GetContext(ctx, &commune, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithField(column, value).Error("failed to find commune")
		return nil, fmt.Errorf("failed to find commune by %s %s: %w", column, value, err)
	}

	return &commune, nil
}

// SetEpci points the commune at its grouping.
func (r *Repository) SetEpci(ctx context.Context, communeID, epciID string) error {
	ctx, span := tracing.StartSpan(ctx, "commune.Repository.SetEpci")
	defer span.End()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update(tableName).
		Set(ub.Assign("epci_id", epciID), ub.Assign("updated_at", time.Now().UTC())).
		Where(ub.Equal("id", communeID))

	query, args := ub.Build()

	if _, err := database.Executor(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"commune_id": communeID,
			"epci_id":    epciID,
		}).Error("failed to set commune epci")
		return fmt.Errorf("failed to set commune epci: %w", err)
	}

	return nil
}

// UpdateRegistry overwrites the registry number and population.
func (r *Repository) UpdateRegistry(ctx context.Context, communeID, siren string, population *int) error {
	ctx, span := tracing.StartSpan(ctx, "commune.Repository.UpdateRegistry")
	defer span.End()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update(tableName).
		Set(ub.Assign("siren", siren), ub.Assign("population", population), ub.Assign("updated_at", time.Now().UTC())).
		Where(ub.Equal("id", communeID))

	query, args := ub.Build()

	if _, err := database.Executor(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("commune_id", communeID).Error("failed to update commune registry")
		return fmt.Errorf("failed to update commune registry: %w", err)
	}

	return nil
}
