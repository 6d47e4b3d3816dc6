package departement

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
	tableName         = "departements"
	vintagesTableName = "departement_vintages"
)

var columns = []string{"id", "name", "insee", "siren", "category", "slug", "region_id", "created_at", "updated_at"}

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

// Upsert creates the département for (name, insee) or returns the existing one. The region
// reference always follows the most recently reconciled vintage.
func (r *Repository) Upsert(ctx context.Context, dep models.Departement) (*models.UpsertResult[models.Departement], error) {
	ctx, span := tracing.StartSpan(ctx, "departement.Repository.Upsert")
	defer span.End()

	now := time.Now().UTC()

	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto(tableName).
		Cols("id", "name", "insee", "slug", "region_id", "created_at", "updated_at").
		Values(uuid.New().String(), dep.Name, dep.Insee, dep.Slug, dep.RegionID, now, now)
	ib.SQL(`
ON CONFLICT (name, insee)
DO UPDATE SET
  slug = EXCLUDED.slug,
  region_id = EXCLUDED.region_id,
  updated_at = CASE WHEN departements.region_id IS DISTINCT FROM EXCLUDED.region_id
    THEN EXCLUDED.updated_at ELSE departements.updated_at END
RETURNING id, name, insee, siren, category, slug, region_id, created_at, updated_at, (xmax = 0) AS inserted`)

	query, args := ib.Build()

	var result struct {
		models.Departement
		Inserted bool `db:"inserted"`
	}
	if err := database.Executor(ctx, r.db).GetContext(ctx, &result, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"name":  dep.Name,
			"insee": dep.Insee,
		}).Error("failed to upsert departement")
		return nil, fmt.Errorf("failed to upsert departement %s: %w", dep.Insee, err)
	}

	return &models.UpsertResult[models.Departement]{Entity: &result.Departement, IsNew: result.Inserted}, nil
}

// AddVintage attaches the vintage and reports whether it was already attached.
func (r *Repository) AddVintage(ctx context.Context, departementID, vintageID string) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "departement.Repository.AddVintage")
	defer span.End()

	alreadyPresent, err := database.InsertIgnore(ctx, database.Executor(ctx, r.db), vintagesTableName,
		[]string{"departement_id", "vintage_id"}, departementID, vintageID)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("departement_id", departementID).Error("failed to add departement vintage")
		return false, fmt.Errorf("failed to add departement vintage: %w", err)
	}

	return alreadyPresent, nil
}

// FindByCodeAndVintage returns the département with insee attached to the vintage, or nil.
func (r *Repository) FindByCodeAndVintage(ctx context.Context, insee, vintageID string) (*models.Departement, error) {
	ctx, span := tracing.StartSpan(ctx, "departement.Repository.FindByCodeAndVintage")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(database.Qualified("d", columns...)...).
		From(tableName+" d").
		Join(vintagesTableName+" dv", "dv.departement_id = d.id").
		Where(sb.Equal("d.insee", insee), sb.Equal("dv.vintage_id", vintageID)).
		OrderBy("d.updated_at DESC")

	query, args := sb.Build()

	var dep models.Departement
	if err := database.Executor(ctx, r.db).GetContext(ctx, &dep, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithField("insee", insee).Error("failed to find departement by code")
		return nil, fmt.Errorf("failed to find departement %s: %w", insee, err)
	}

	return &dep, nil
}

// UpdateRegistry sets the registry number and category.
func (r *Repository) UpdateRegistry(ctx context.Context, id, siren string, category *string) error {
	ctx, span := tracing.StartSpan(ctx, "departement.Repository.UpdateRegistry")
	defer span.End()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update(tableName).
		Set(ub.Assign("siren", siren), ub.Assign("category", category), ub.Assign("updated_at", time.Now().UTC())).
		Where(ub.Equal("id", id))

	query, args := ub.Build()

	if _, err := database.Executor(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("departement_id", id).Error("failed to update departement registry")
		return fmt.Errorf("failed to update departement registry: %w", err)
	}

	return nil
}
