package reconcile

import (
	"context"

	"github.com/Ramsey-B/subdivisions/pkg/catalog"
	"github.com/Ramsey-B/subdivisions/pkg/events"
	"github.com/Ramsey-B/subdivisions/pkg/extractor"
	"github.com/Ramsey-B/subdivisions/pkg/models"
)

// FileResolver selects the published file of a dataset for a year, 0 meaning the latest.
type FileResolver interface {
	Lookup(ctx context.Context, q catalog.Query, year int) (catalog.File, error)
}

// TableOpener downloads a source and returns a cursor over its records.
type TableOpener interface {
	Open(ctx context.Context, src extractor.Source) (*extractor.Rows, error)
}

type VintageRegistry interface {
	GetOrCreateVintage(ctx context.Context, year int) (*models.Vintage, error)
	// FindVintage returns nil when the year has no vintage.
	FindVintage(ctx context.Context, year int) (*models.Vintage, error)
	GetOrCreateProvenance(ctx context.Context, title, url string, vintage *models.Vintage) (*models.Provenance, error)
}

type RegionStore interface {
	Upsert(ctx context.Context, region models.Region) (*models.UpsertResult[models.Region], error)
	AddVintage(ctx context.Context, regionID, vintageID string) (bool, error)
	FindByCodeAndVintage(ctx context.Context, insee, vintageID string) (*models.Region, error)
	UpdateRegistry(ctx context.Context, id, siren string, category *string) error
}

type DepartementStore interface {
	Upsert(ctx context.Context, dep models.Departement) (*models.UpsertResult[models.Departement], error)
	AddVintage(ctx context.Context, departementID, vintageID string) (bool, error)
	FindByCodeAndVintage(ctx context.Context, insee, vintageID string) (*models.Departement, error)
	UpdateRegistry(ctx context.Context, id, siren string, category *string) error
}

type CommuneStore interface {
	Upsert(ctx context.Context, commune models.Commune) (*models.UpsertResult[models.Commune], error)
	AddVintage(ctx context.Context, communeID, vintageID string) (bool, error)
	FindByCodeAndVintage(ctx context.Context, insee, vintageID string) (*models.Commune, error)
	FindBySirenAndVintage(ctx context.Context, siren, vintageID string) (*models.Commune, error)
	SetEpci(ctx context.Context, communeID, epciID string) error
	UpdateRegistry(ctx context.Context, communeID, siren string, population *int) error
}

type EpciStore interface {
	Upsert(ctx context.Context, epci models.Epci) (*models.UpsertResult[models.Epci], error)
	AddVintage(ctx context.Context, epciID, vintageID string) (bool, error)
}

// DataPointStore writes the structured data of one level.
type DataPointStore interface {
	Upsert(ctx context.Context, dp models.DataPoint) (*models.UpsertResult[models.DataPoint], error)
}

// TxRunner runs fn in one transaction carried by the context passed to it.
type TxRunner func(ctx context.Context, fn func(ctx context.Context) error) error

// Guard serializes runs sharing a key across processes.
type Guard interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// Publisher announces committed runs.
type Publisher interface {
	EmitLevelReconciled(ctx context.Context, event events.LevelReconciled) error
}
