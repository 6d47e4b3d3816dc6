package datapoint

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/subdivisions/pkg/database"
	"github.com/Ramsey-B/subdivisions/pkg/models"
	"github.com/Ramsey-B/subdivisions/pkg/tracing"
)

// Repository stores data points for one level. Regions and départements have their own
// {level}_data table keyed by ({level}_id, vintage_id, datacode).
type Repository struct {
	db            database.DB
	logger        ectologger.Logger
	level         models.Level
	tableName     string
	subjectColumn string
}

func NewRepository(db database.DB, level models.Level, logger ectologger.Logger) *Repository {
	return &Repository{
		db:            db,
		logger:        logger,
		level:         level,
		tableName:     level.String() + "_data",
		subjectColumn: level.String() + "_id",
	}
}

func (r *Repository) Level() models.Level {
	return r.level
}

// Upsert writes the value for (subject, vintage, datacode), overwriting value, datatype and
// provenance if the key already exists.
func (r *Repository) Upsert(ctx context.Context, dp models.DataPoint) (*models.UpsertResult[models.DataPoint], error) {
	ctx, span := tracing.StartSpan(ctx, "datapoint.Repository.Upsert")
	defer span.End()

	now := time.Now().UTC()

	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto(r.tableName).
		Cols("id", r.subjectColumn, "vintage_id", "datacode", "value", "datatype", "provenance_id", "created_at", "updated_at").
		Values(uuid.New().String(), dp.SubjectID, dp.VintageID, dp.Datacode, dp.Value, dp.Datatype, dp.ProvenanceID, now, now)

	updates := make([]string, 0, 4)
	for _, c := range []string{"value", "datatype", "provenance_id", "updated_at"} {
		updates = append(updates, fmt.Sprintf("%s = %s", c, database.Excluded(c)))
	}
	ib.SQL(fmt.Sprintf(`
ON CONFLICT (%s, vintage_id, datacode)
DO UPDATE SET %s
RETURNING id, %s AS subject_id, vintage_id, datacode, value, datatype, provenance_id, created_at, updated_at, (xmax = 0) AS inserted`,
		r.subjectColumn, strings.Join(updates, ", "), r.subjectColumn))

	query, args := ib.Build()

	var result struct {
		models.DataPoint
		Inserted bool `db:"inserted"`
	}
	if err := database.Executor(ctx, r.db).GetContext(ctx, &result, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"level":      r.level.String(),
			"subject_id": dp.SubjectID,
			"datacode":   dp.Datacode,
		}).Error("failed to upsert data point")
		return nil, fmt.Errorf("failed to upsert %s data point %s: %w", r.level, dp.Datacode, err)
	}

	return &models.UpsertResult[models.DataPoint]{Entity: &result.DataPoint, IsNew: result.Inserted}, nil
}
