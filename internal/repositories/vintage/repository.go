package vintage

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
	vintagesTable    = "vintages"
	provenancesTable = "provenances"
)

// Repository is the vintage registry: years and source documents, both idempotent by natural key.
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

// GetOrCreateVintage returns the vintage for year, creating it on first use.
func (r *Repository) GetOrCreateVintage(ctx context.Context, year int) (*models.Vintage, error) {
	ctx, span := tracing.StartSpan(ctx, "vintage.Repository.GetOrCreateVintage")
	defer span.End()

	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto(vintagesTable).
		Cols("id", "year", "created_at").
		Values(uuid.New().String(), year, time.Now().UTC())
	ib.SQL(`
ON CONFLICT (year)
DO UPDATE SET year = EXCLUDED.year
RETURNING id, year, created_at`)

	query, args := ib.Build()

	var v models.Vintage
	if err := database.Executor(ctx, r.db).GetContext(ctx, &v, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("year", year).Error("failed to get or create vintage")
		return nil, fmt.Errorf("failed to get or create vintage %d: %w", year, err)
	}

	return &v, nil
}

// FindVintage returns the vintage for year, or nil when no level of that year has been imported.
func (r *Repository) FindVintage(ctx context.Context, year int) (*models.Vintage, error) {
	ctx, span := tracing.StartSpan(ctx, "vintage.Repository.FindVintage")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "year", "created_at").From(vintagesTable).Where(sb.Equal("year", year))

	query, args := sb.Build()

	var v models.Vintage
	if err := database.Executor(ctx, r.db).GetContext(ctx, &v, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithField("year", year).Error("failed to find vintage")
		return nil, fmt.Errorf("failed to find vintage %d: %w", year, err)
	}

	return &v, nil
}

// GetOrCreateProvenance returns the provenance for (title, url, vintage), creating it on first use.
func (r *Repository) GetOrCreateProvenance(ctx context.Context, title, url string, vintage *models.Vintage) (*models.Provenance, error) {
	ctx, span := tracing.StartSpan(ctx, "vintage.Repository.GetOrCreateProvenance")
	defer span.End()

	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto(provenancesTable).
		Cols("id", "title", "url", "vintage_id", "created_at").
		Values(uuid.New().String(), title, url, vintage.ID, time.Now().UTC())
	ib.SQL(`
ON CONFLICT (title, url, vintage_id)
DO UPDATE SET title = EXCLUDED.title
RETURNING id, title, url, vintage_id, created_at`)

	query, args := ib.Build()

	var p models.Provenance
	if err := database.Executor(ctx, r.db).GetContext(ctx, &p, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"title": title,
			"url":   url,
			"year":  vintage.Year,
		}).Error("failed to get or create provenance")
		return nil, fmt.Errorf("failed to get or create provenance: %w", err)
	}

	return &p, nil
}

// List returns every known vintage, oldest first.
func (r *Repository) List(ctx context.Context) ([]models.Vintage, error) {
	ctx, span := tracing.StartSpan(ctx, "vintage.Repository.List")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "year", "created_at").From(vintagesTable).OrderBy("year ASC")

	query, args := sb.Build()

	var vintages []models.Vintage
	if err := database.Executor(ctx, r.db).SelectContext(ctx, &vintages, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to list vintages")
		return nil, fmt.Errorf("failed to list vintages: %w", err)
	}

	return vintages, nil
}
