package region

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
	tableName         = "regions"
	vintagesTableName = "region_vintages"
)

var columns = []string{"id", "name", "insee", "siren", "category", "slug", "created_at", "updated_at"}

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

// Upsert creates the region for (name, insee) or returns the existing one.
func (r *Repository) Upsert(ctx context.Context, region models.Region) (*models.UpsertResult[models.Region], error) {
	ctx, span := tracing.StartSpan(ctx, "region.Repository.Upsert")
	defer span.End()

	now := time.Now().UTC()

	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto(tableName).
		Cols("id", "name", "insee", "slug", "created_at", "updated_at").
		Values(uuid.New().String(), region.Name, region.Insee, region.Slug, now, now)
	ib.SQL(`
ON CONFLICT (name, insee)
DO UPDATE SET slug = EXCLUDED.slug
RETURNING id, name, insee, siren, category, slug, created_at, updated_at, (xmax = 0) AS inserted`)

	query, args := ib.Build()

	var result struct {
		models.Region
		Inserted bool `db:"inserted"`
	}
	if err := database.Executor(ctx, r.db).GetContext(ctx, &result, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"name":  region.Name,
			"insee": region.Insee,
		}).Error("failed to upsert region")
		return nil, fmt.Errorf("failed to upsert region %s: %w", region.Insee, err)
	}

	return &models.UpsertResult[models.Region]{Entity: &result.Region, IsNew: result.Inserted}, nil
}

// AddVintage attaches the vintage and reports whether it was already attached.
func (r *Repository) AddVintage(ctx context.Context, regionID, vintageID string) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "region.Repository.AddVintage")
	defer span.End()

	alreadyPresent, err := database.InsertIgnore(ctx, database.Executor(ctx, r.db), vintagesTableName,
		[]string{"region_id", "vintage_id"}, regionID, vintageID)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("region_id", regionID).Error("failed to add region vintage")
		return false, fmt.Errorf("failed to add region vintage: %w", err)
	}

	return alreadyPresent, nil
}

// FindByCodeAndVintage returns the region with insee attached to the vintage, or nil.
func (r *Repository) FindByCodeAndVintage(ctx context.Context, insee, vintageID string) (*models.Region, error) {
	ctx, span := tracing.StartSpan(ctx, "region.Repository.FindByCodeAndVintage")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(database.Qualified("r", columns...)...).
		From(tableName+" r").
		Join(vintagesTableName+" rv", "rv.region_id = r.id").
		Where(sb.Equal("r.insee", insee), sb.Equal("rv.vintage_id", vintageID)).
		OrderBy("r.updated_at DESC")

	query, args := sb.Build()

	var region models.Region
	if err := database.Executor(ctx, r.db).GetContext(ctx, &region, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithField("insee", insee).Error("failed to find region by code")
		return nil, fmt.Errorf("failed to find region %s: %w", insee, err)
	}

	return &region, nil
}

// UpdateRegistry sets the registry number and category.
func (r *Repository) UpdateRegistry(ctx context.Context, id, siren string, category *string) error {
	ctx, span := tracing.StartSpan(ctx, "region.Repository.UpdateRegistry")
	defer span.End()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update(tableName).
		Set(ub.Assign("siren", siren), ub.Assign("category", category), ub.Assign("updated_at", time.Now().UTC())).
		Where(ub.Equal("id", id))

	query, args := ub.Build()

	if _, err := database.Executor(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("region_id", id).Error("failed to update region registry")
		return fmt.Errorf("failed to update region registry: %w", err)
	}

	return nil
}
