package models

import "time"

// Level names one tier of the administrative hierarchy.
type Level string

const (
	LevelRegion      Level = "region"
	LevelDepartement Level = "departement"
	LevelCommune     Level = "commune"
	LevelEpci        Level = "epci"
)

// Levels in the order they must be reconciled.
var Levels = []Level{LevelRegion, LevelDepartement, LevelCommune, LevelEpci}

func (l Level) String() string {
	return string(l)
}

// Parent returns the level a row of l must reference, or "" for the top level and groupings.
func (l Level) Parent() Level {
	switch l {
	case LevelDepartement:
		return LevelRegion
	case LevelCommune:
		return LevelDepartement
	case LevelEpci:
		return LevelCommune
	}
	return ""
}

const (
	RegionCategoryRegion = "REG"
	RegionCategoryCTU    = "CTU"

	DepartementCategoryDept      = "DEPT"
	DepartementCategoryParis     = "PARIS"
	DepartementCategoryMetroLyon = "ML"

	EpciTypeCA    = "CA"
	EpciTypeCC    = "CC"
	EpciTypeCU    = "CU"
	EpciTypeMET69 = "MET69"
	EpciTypeMETRO = "METRO"
)

type Region struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Insee     string    `json:"insee" db:"insee"`
	Siren     string    `json:"siren" db:"siren"`
	Category  *string   `json:"category,omitempty" db:"category"`
	Slug      string    `json:"slug" db:"slug"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type Departement struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Insee     string    `json:"insee" db:"insee"`
	Siren     string    `json:"siren" db:"siren"`
	Category  *string   `json:"category,omitempty" db:"category"`
	Slug      string    `json:"slug" db:"slug"`
	RegionID  *string   `json:"region_id,omitempty" db:"region_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Epci is an intercommunal grouping with its own taxation.
type Epci struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	EpciType  string    `json:"epci_type" db:"epci_type"`
	Siren     string    `json:"siren" db:"siren"`
	Slug      string    `json:"slug" db:"slug"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type Commune struct {
	ID            string    `json:"id" db:"id"`
	Name          string    `json:"name" db:"name"`
	Insee         string    `json:"insee" db:"insee"`
	Siren         string    `json:"siren" db:"siren"`
	Population    *int      `json:"population,omitempty" db:"population"`
	Slug          string    `json:"slug" db:"slug"`
	DepartementID string    `json:"departement_id" db:"departement_id"`
	EpciID        *string   `json:"epci_id,omitempty" db:"epci_id"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

// DataPoint is a typed (code, value) fact about one entity in one vintage.
type DataPoint struct {
	ID           string    `json:"id" db:"id"`
	SubjectID    string    `json:"subject_id" db:"subject_id"`
	VintageID    string    `json:"vintage_id" db:"vintage_id"`
	Datacode     string    `json:"datacode" db:"datacode"`
	Value        string    `json:"value" db:"value"`
	Datatype     string    `json:"datatype" db:"datatype"`
	ProvenanceID string    `json:"provenance_id" db:"provenance_id"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

const (
	DatacodeSeatInsee = "seat_insee"
	DatatypeString    = "string"
)
