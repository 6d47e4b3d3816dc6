package reconcile

import (
	"fmt"
	"regexp"

	"github.com/Ramsey-B/subdivisions/pkg/catalog"
	"github.com/Ramsey-B/subdivisions/pkg/extractor"
	"github.com/Ramsey-B/subdivisions/pkg/models"
)

// Logical field names shared by every source.
const (
	fieldInsee       = "insee"
	fieldName        = "name"
	fieldSeat        = "seat_insee"
	fieldRegion      = "region"
	fieldDepartement = "departement"
	fieldEpciName    = "epci_name"
	fieldEpciType    = "epci_type"
	fieldEpciSiren   = "epci_siren"
	fieldMemberSiren = "member_siren"
	fieldSiren       = "siren"
	fieldCategory    = "category"
	fieldPopulation  = "population"
)

const (
	DefaultCOGDatasetID     = "58c984b088ee386cdb1261f3"
	DefaultCOGMinYear       = 2019
	DefaultBanaticDatasetID = "5e1f20058b4c414d3f94460d"
	DefaultColumnEpochYear  = 2021

	cogTitlePrefix = "COG "
)

var (
	regionTitlePattern      = regexp.MustCompile(`Millésime (?P<year>\d{4})\s: Liste des régions`)
	departementTitlePattern = regexp.MustCompile(`Millésime (?P<year>\d{4})\s: Liste des départements`)
	communeTitlePattern     = regexp.MustCompile(`^Millésime (?P<year>\d{4})\s:\s+Liste des communes`)
	epciTitlePattern        = regexp.MustCompile(`Périmètre des EPCI à fiscalité propre - année (?P<year>\d{4})`)
)

// Sources locates the published files of every level. The official geographic code renamed
// its headers starting at ColumnEpochYear.
type Sources struct {
	COGDatasetID     string
	COGMinYear       int
	BanaticDatasetID string
	ColumnEpochYear  int

	// CommuneRegistryDatasetID disables the commune registry pass when empty.
	CommuneRegistryDatasetID string
	CommuneRegistryPattern   *regexp.Regexp
}

func DefaultSources() Sources {
	return Sources{
		COGDatasetID:     DefaultCOGDatasetID,
		COGMinYear:       DefaultCOGMinYear,
		BanaticDatasetID: DefaultBanaticDatasetID,
		ColumnEpochYear:  DefaultColumnEpochYear,
	}
}

func (s Sources) upperCaseHeaders(year int) bool {
	return year >= s.ColumnEpochYear
}

// Query returns the catalog query for the level.
func (s Sources) Query(level models.Level) catalog.Query {
	switch level {
	case models.LevelRegion:
		return catalog.Query{DatasetID: s.COGDatasetID, Pattern: regionTitlePattern, MinYear: s.COGMinYear}
	case models.LevelDepartement:
		return catalog.Query{DatasetID: s.COGDatasetID, Pattern: departementTitlePattern, MinYear: s.COGMinYear}
	case models.LevelCommune:
		return catalog.Query{DatasetID: s.COGDatasetID, Pattern: communeTitlePattern, MinYear: s.COGMinYear}
	default:
		return catalog.Query{DatasetID: s.BanaticDatasetID, Pattern: epciTitlePattern}
	}
}

func (s Sources) communeRegistryQuery() catalog.Query {
	return catalog.Query{DatasetID: s.CommuneRegistryDatasetID, Pattern: s.CommuneRegistryPattern}
}

// RegionSource describes the regions table of the archive for year.
func (s Sources) RegionSource(url string, year int) extractor.Source {
	columns := map[string]string{fieldInsee: "reg", fieldName: "libelle", fieldSeat: "cheflieu"}
	if s.upperCaseHeaders(year) {
		columns = map[string]string{fieldInsee: "REG", fieldName: "LIBELLE", fieldSeat: "CHEFLIEU"}
	}
	return extractor.Source{
		URL:      url,
		Member:   fmt.Sprintf("region%d.csv", year),
		Encoding: extractor.UTF8BOM,
		Columns:  columns,
	}
}

// DepartementSource describes the départements table of the archive for year.
func (s Sources) DepartementSource(url string, year int) extractor.Source {
	columns := map[string]string{fieldInsee: "dep", fieldName: "libelle", fieldRegion: "reg", fieldSeat: "cheflieu"}
	if s.upperCaseHeaders(year) {
		columns = map[string]string{fieldInsee: "DEP", fieldName: "LIBELLE", fieldRegion: "REG", fieldSeat: "CHEFLIEU"}
	}
	return extractor.Source{
		URL:      url,
		Member:   fmt.Sprintf("departement%d.csv", year),
		Encoding: extractor.UTF8BOM,
		Columns:  columns,
	}
}

// CommuneSource describes the communes table of the archive for year, restricted to ordinary
// communes.
func (s Sources) CommuneSource(url string, year int) extractor.Source {
	columns := map[string]string{fieldInsee: "com", fieldName: "libelle", fieldDepartement: "dep"}
	filter := &extractor.Filter{Column: "typecom", Value: "COM"}
	if s.upperCaseHeaders(year) {
		columns = map[string]string{fieldInsee: "COM", fieldName: "LIBELLE", fieldDepartement: "DEP"}
		filter = &extractor.Filter{Column: "TYPECOM", Value: "COM"}
	}
	return extractor.Source{
		URL:      url,
		Member:   communeMember(year),
		Encoding: extractor.UTF8BOM,
		Columns:  columns,
		Filter:   filter,
	}
}

func communeMember(year int) string {
	switch year {
	case 2019:
		return "communes-01012019.csv"
	case 2021:
		return "commune2021.csv"
	default:
		return fmt.Sprintf("communes%d.csv", year)
	}
}

// EpciSource describes the grouping membership table. It is tab separated Windows-1252 text
// whatever its extension says.
func (s Sources) EpciSource(url string) extractor.Source {
	return extractor.Source{
		URL:       url,
		Encoding:  extractor.Windows1252,
		Delimiter: '\t',
		Columns: map[string]string{
			fieldEpciName:    "Nom du groupement",
			fieldEpciType:    "Nature juridique",
			fieldEpciSiren:   "N° SIREN",
			fieldMemberSiren: "Siren membre",
		},
		RequireResults: true,
	}
}

// CommuneRegistrySource describes the commune registry number and population table for year.
func (s Sources) CommuneRegistrySource(url string, year int) extractor.Source {
	return extractor.Source{
		URL:      url,
		Encoding: extractor.UTF8BOM,
		Columns: map[string]string{
			fieldInsee:      "insee",
			fieldName:       "nom_com",
			fieldSiren:      "siren",
			fieldPopulation: fmt.Sprintf("ptot_%d", year),
		},
	}
}

// ReferenceTableSource describes a local registry number and category table.
func ReferenceTableSource(path string) extractor.Source {
	return extractor.Source{
		URL:      path,
		Encoding: extractor.UTF8BOM,
		Columns: map[string]string{
			fieldInsee:    "Insee",
			fieldSiren:    "Siren",
			fieldCategory: "CATEG",
		},
	}
}
