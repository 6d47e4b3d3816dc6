// Package reconcile implements the annual reconciliation of the subdivision registry against the
// published geographic code and intercommunal registries.
package reconcile

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/subdivisions/pkg/catalog"
	reqcontext "github.com/Ramsey-B/subdivisions/pkg/context"
	"github.com/Ramsey-B/subdivisions/pkg/errors"
	"github.com/Ramsey-B/subdivisions/pkg/events"
	"github.com/Ramsey-B/subdivisions/pkg/extractor"
	"github.com/Ramsey-B/subdivisions/pkg/metrics"
	"github.com/Ramsey-B/subdivisions/pkg/models"
	"github.com/Ramsey-B/subdivisions/pkg/tracing"
	"github.com/Ramsey-B/subdivisions/pkg/validation"
)

// Operation names the kind of run that produced a Result.
type Operation string

const (
	OperationCOG             Operation = "cog"
	OperationBanatic         Operation = "banatic"
	OperationCommuneRegistry Operation = "commune_registry"
	OperationEnrichment      Operation = "enrichment"
)

// Result summarizes one committed run.
type Result struct {
	Operation         Operation            `json:"operation"`
	Level             models.Level         `json:"level"`
	Year              int                  `json:"year"`
	Outcomes          models.OutcomeCounts `json:"outcomes"`
	Updated           int                  `json:"updated"`
	Skipped           int                  `json:"skipped"`
	DataPoints        int                  `json:"data_points"`
	DataPointsCreated int                  `json:"data_points_created"`
	SourceURL         string               `json:"source_url"`
	// SkipReason is set on a step the pipeline did not run.
	SkipReason        string               `json:"skip_reason,omitempty"`
}

// SkipReasonNoCommuneRegistry marks the EPCI step skipped for lack of commune registry numbers.
const SkipReasonNoCommuneRegistry = "commune registry not configured"

// ReferenceTables are the optional local registry tables applied by RunAll.
type ReferenceTables struct {
	Regions      string
	Departements string
}

type Deps struct {
	Resolver  FileResolver
	Extractor TableOpener
	Vintages  VintageRegistry

	Regions         RegionStore
	Departements    DepartementStore
	Communes        CommuneStore
	Epcis           EpciStore
	RegionData      DataPointStore
	DepartementData DataPointStore

	Tx        TxRunner
	Guard     Guard
	Publisher Publisher
	Validator *validation.Validator

	Sources         Sources
	ReferenceTables ReferenceTables
	Logger          ectologger.Logger
}

// Engine reconciles one level at a time. Every level run is a single transaction: a failing row
// aborts the run and nothing from it is committed.
type Engine struct {
	Deps
}

func NewEngine(deps Deps) *Engine {
	if deps.Tx == nil {
		deps.Tx = func(ctx context.Context, fn func(ctx context.Context) error) error {
			return fn(ctx)
		}
	}
	if deps.Validator == nil {
		deps.Validator = validation.New()
	}
	return &Engine{Deps: deps}
}

// run is the state shared by the rows of one level run.
type run struct {
	year       int
	vintage    *models.Vintage
	provenance *models.Provenance
	result     *Result
	seen       map[string]bool
}

type plan struct {
	operation   Operation
	level       models.Level
	query       catalog.Query
	titlePrefix string
	source      func(file catalog.File) extractor.Source
	apply       func(ctx context.Context, r *run, rec extractor.Record) error
	// amend runs against an already imported vintage and records no provenance.
	amend bool

	// locate and open default to the catalog resolver and the remote extractor.
	locate func(ctx context.Context, year int) (catalog.File, error)
	open   func(ctx context.Context, src extractor.Source) (*extractor.Rows, error)
}

// execute resolves the file, downloads it, then applies every record inside one locked
// transaction and publishes the result once committed.
func (e *Engine) execute(ctx context.Context, p plan, year int) (*Result, error) {
	ctx, span := tracing.StartSpan(ctx, "reconcile.Engine."+string(p.operation)+"."+p.level.String())
	defer span.End()

	start := time.Now()
	log := e.Logger.WithContext(ctx).WithFields(map[string]any{
		"operation": string(p.operation),
		"level":     p.level.String(),
		"trigger":   reqcontext.GetTrigger(ctx),
	})

	if p.locate == nil {
		p.locate = func(ctx context.Context, year int) (catalog.File, error) {
			return e.Resolver.Lookup(ctx, p.query, year)
		}
	}
	if p.open == nil {
		p.open = e.Extractor.Open
	}

	file, err := p.locate(ctx, year)
	if err != nil {
		log.WithError(err).WithField("year", year).Error("failed to resolve source file")
		return nil, e.fail(p, start, err)
	}

	rows, err := p.open(ctx, p.source(file))
	if err != nil {
		log.WithError(err).WithField("url", file.URL).Error("failed to open source table")
		return nil, e.fail(p, start, err)
	}

	var result *Result
	log = log.WithFields(map[string]any{"year": file.Year, "url": file.URL})
	log.Info("reconciling level")

	err = e.locked(ctx, p.level, file.Year, func(ctx context.Context) error {
		return e.Tx(ctx, func(ctx context.Context) error {
			vintage, provenance, err := e.vintageFor(ctx, p, file)
			if err != nil {
				return err
			}

			r := &run{
				year:       file.Year,
				vintage:    vintage,
				provenance: provenance,
				result:     &Result{Operation: p.operation, Level: p.level, Year: file.Year, SourceURL: file.URL},
				seen:       make(map[string]bool),
			}
			for rows.Next() {
				if err := p.apply(ctx, r, rows.Record()); err != nil {
					return err
				}
			}
			if err := rows.Err(); err != nil {
				return err
			}
			result = r.result
			return nil
		})
	})
	if err != nil {
		tracing.RecordError(span, err)
		log.WithError(err).Error("level reconciliation aborted")
		return nil, e.fail(p, start, err)
	}

	metrics.ReconcileRunsTotal.WithLabelValues(p.level.String(), "success").Inc()
	metrics.ReconcileDuration.WithLabelValues(p.level.String()).Observe(time.Since(start).Seconds())

	log.WithFields(map[string]any{
		"created":       result.Outcomes.Created,
		"year_extended": result.Outcomes.YearExtended,
		"unchanged":     result.Outcomes.Unchanged,
		"updated":       result.Updated,
		"skipped":       result.Skipped,
		"data_points":   result.DataPoints,
	}).Info("level reconciled")

	e.publish(ctx, result)
	return result, nil
}

func (e *Engine) vintageFor(ctx context.Context, p plan, file catalog.File) (*models.Vintage, *models.Provenance, error) {
	if p.amend {
		vintage, err := e.Vintages.FindVintage(ctx, file.Year)
		if err != nil {
			return nil, nil, err
		}
		if vintage == nil {
			return nil, nil, errors.NewVintageNotFoundError(p.level.String(), file.Year)
		}
		return vintage, nil, nil
	}

	vintage, err := e.Vintages.GetOrCreateVintage(ctx, file.Year)
	if err != nil {
		return nil, nil, err
	}
	provenance, err := e.Vintages.GetOrCreateProvenance(ctx, p.titlePrefix+file.Title, file.URL, vintage)
	if err != nil {
		return nil, nil, err
	}
	return vintage, provenance, nil
}

func (e *Engine) fail(p plan, start time.Time, err error) error {
	metrics.ReconcileRunsTotal.WithLabelValues(p.level.String(), "failure").Inc()
	metrics.ReconcileDuration.WithLabelValues(p.level.String()).Observe(time.Since(start).Seconds())
	return err
}

func (e *Engine) locked(ctx context.Context, level models.Level, year int, fn func(ctx context.Context) error) error {
	if e.Guard == nil {
		return fn(ctx)
	}
	return e.Guard.WithLock(ctx, LockKey(level, year), fn)
}

// LockKey is the run lock shared by every writer of a level for a year.
func LockKey(level models.Level, year int) string {
	return fmt.Sprintf("reconcile:%s:%d", level, year)
}

// publish runs after commit, so a failure is logged and the run still succeeds.
func (e *Engine) publish(ctx context.Context, result *Result) {
	if e.Publisher == nil {
		return
	}

	event := events.LevelReconciled{
		BaseEvent:    events.NewBaseEvent(events.EventTypeLevelReconciled),
		Operation:    string(result.Operation),
		Level:        result.Level.String(),
		Year:         result.Year,
		Created:      result.Outcomes.Created,
		YearExtended: result.Outcomes.YearExtended,
		Unchanged:    result.Outcomes.Unchanged,
		Updated:      result.Updated,
		Skipped:      result.Skipped,
		DataPoints:   result.DataPoints,
		SourceURL:    result.SourceURL,
		Trigger:      reqcontext.GetTrigger(ctx),
	}
	if err := e.Publisher.EmitLevelReconciled(ctx, event); err != nil {
		e.Logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"level": result.Level.String(),
			"year":  result.Year,
		}).Warn("failed to publish level reconciled event")
	}
}

// attach records the outcome of an upsert followed by a vintage attachment.
func (e *Engine) attach(ctx context.Context, r *run, level models.Level, isNew, alreadyPresent bool, fields map[string]any) {
	outcome := models.ClassifyOutcome(isNew, alreadyPresent)
	r.result.Outcomes.Add(outcome)
	metrics.EntityOutcomesTotal.WithLabelValues(level.String(), string(outcome)).Inc()

	log := e.Logger.WithContext(ctx).WithFields(fields).WithField("year", r.year)
	switch outcome {
	case models.OutcomeCreated:
		log.Infof("%s created", level)
	case models.OutcomeYearExtended:
		log.Infof("%s already known, year extended", level)
	default:
		log.Debugf("%s already known for this year, unchanged", level)
	}
}

func (e *Engine) upsertDataPoint(ctx context.Context, r *run, level models.Level, store DataPointStore, subjectID, datacode, value string) error {
	res, err := store.Upsert(ctx, models.DataPoint{
		SubjectID:    subjectID,
		VintageID:    r.vintage.ID,
		Datacode:     datacode,
		Value:        value,
		Datatype:     models.DatatypeString,
		ProvenanceID: r.provenance.ID,
	})
	if err != nil {
		return err
	}

	r.result.DataPoints++
	if res.IsNew {
		r.result.DataPointsCreated++
	}
	metrics.DataPointsUpserted.WithLabelValues(level.String(), datacode).Inc()
	return nil
}

func field(rec extractor.Record, name string) string {
	return strings.TrimSpace(rec[name])
}
