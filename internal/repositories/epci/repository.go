package epci

import (
	"context"
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
	tableName         = "epcis"
	vintagesTableName = "epci_vintages"
)

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

// Upsert creates the grouping for (name, epci_type, siren) or returns the existing one.
func (r *Repository) Upsert(ctx context.Context, epci models.Epci) (*models.UpsertResult[models.Epci], error) {
	ctx, span := tracing.StartSpan(ctx, "epci.Repository.Upsert")
	defer span.End()

	now := time.Now().UTC()

	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto(tableName).
		Cols("id", "name", "epci_type", "siren", "slug", "created_at", "updated_at").
		Values(uuid.New().String(), epci.Name, epci.EpciType, epci.Siren, epci.Slug, now, now)
	ib.SQL(`
ON CONFLICT (name, epci_type, siren)
DO UPDATE SET slug = EXCLUDED.slug
RETURNING id, name, epci_type, siren, slug, created_at, updated_at, (xmax = 0) AS inserted`)

	query, args := ib.Build()

	var result struct {
		models.Epci
		Inserted bool `db:"inserted"`
	}
	if err := database.Executor(ctx, r.db).GetContext(ctx, &result, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"name":  epci.Name,
			"siren": epci.Siren,
		}).Error("failed to upsert epci")
		return nil, fmt.Errorf("failed to upsert epci %s: %w", epci.Siren, err)
	}

	return &models.UpsertResult[models.Epci]{Entity: &result.Epci, IsNew: result.Inserted}, nil
}

// AddVintage attaches the vintage and reports whether it was already attached.
func (r *Repository) AddVintage(ctx context.Context, epciID, vintageID string) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "epci.Repository.AddVintage")
	defer span.End()

	alreadyPresent, err := database.InsertIgnore(ctx, database.Executor(ctx, r.db), vintagesTableName,
		[]string{"epci_id", "vintage_id"}, epciID, vintageID)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("epci_id", epciID).Error("failed to add epci vintage")
		return false, fmt.Errorf("failed to add epci vintage: %w", err)
	}

	return alreadyPresent, nil
}
