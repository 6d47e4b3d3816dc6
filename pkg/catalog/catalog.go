package catalog

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/subdivisions/pkg/errors"
	"github.com/Ramsey-B/subdivisions/pkg/tracing"
)

const yearGroup = "year"

// Resource is one published file of a dataset.
type Resource struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Lister lists the resources published for a dataset.
type Lister interface {
	ListResources(ctx context.Context, datasetID string) ([]Resource, error)
}

// File is a resource whose title matched a yearly pattern.
type File struct {
	Title string `json:"title"`
	URL   string `json:"url"`
	Year  int    `json:"year"`
}

// FileSet maps years to the file published for that year.
type FileSet struct {
	DatasetID string
	Files     map[int]File
}

// Get returns the file for year.
func (s *FileSet) Get(year int) (File, error) {
	f, ok := s.Files[year]
	if !ok {
		return File{}, errors.NewCatalogNotFoundError(s.DatasetID, year, s.Years())
	}
	return f, nil
}

// Latest returns the file with the highest year.
func (s *FileSet) Latest() (File, error) {
	years := s.Years()
	if len(years) == 0 {
		return File{}, errors.NewEmptyCatalogError(s.DatasetID)
	}
	return s.Files[years[len(years)-1]], nil
}

// Select returns the file for year, or the latest one when year is 0.
func (s *FileSet) Select(year int) (File, error) {
	if year == 0 {
		return s.Latest()
	}
	return s.Get(year)
}

// Years returns the available years in ascending order.
func (s *FileSet) Years() []int {
	years := make([]int, 0, len(s.Files))
	for y := range s.Files {
		years = append(years, y)
	}
	sort.Ints(years)
	return years
}

// Query identifies the yearly files of one dataset.
type Query struct {
	DatasetID string
	Pattern   *regexp.Regexp
	MinYear   int
}

// Resolver turns a dataset listing into a year-indexed FileSet.
type Resolver struct {
	lister Lister
	logger ectologger.Logger
}

func NewResolver(lister Lister, logger ectologger.Logger) *Resolver {
	return &Resolver{
		lister: lister,
		logger: logger,
	}
}

// Resolve lists the dataset and keeps the resources whose title matches the pattern with a
// year at or above the minimum. When two titles carry the same year the later one in the
// listing wins.
func (r *Resolver) Resolve(ctx context.Context, q Query) (*FileSet, error) {
	ctx, span := tracing.StartSpan(ctx, "catalog.Resolver.Resolve")
	defer span.End()

	groupIdx := q.Pattern.SubexpIndex(yearGroup)
	if groupIdx < 0 {
		return nil, fmt.Errorf("pattern %q has no named group %q", q.Pattern.String(), yearGroup)
	}

	resources, err := r.lister.ListResources(ctx, q.DatasetID)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("dataset_id", q.DatasetID).Error("failed to list dataset resources")
		return nil, errors.NewDatasetUnavailableError(q.DatasetID, err)
	}

	set := &FileSet{DatasetID: q.DatasetID, Files: make(map[int]File)}
	for _, res := range resources {
		m := q.Pattern.FindStringSubmatch(res.Title)
		if m == nil {
			continue
		}
		year, err := strconv.Atoi(m[groupIdx])
		if err != nil || year < q.MinYear {
			continue
		}
		if prev, ok := set.Files[year]; ok {
			r.logger.WithContext(ctx).WithFields(map[string]any{
				"dataset_id": q.DatasetID,
				"year":       year,
				"previous":   prev.Title,
				"kept":       res.Title,
			}).Warn("duplicate year in catalog, keeping the later resource")
		}
		set.Files[year] = File{Title: res.Title, URL: res.URL, Year: year}
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"dataset_id": q.DatasetID,
		"years":      set.Years(),
	}).Debug("resolved catalog files")

	return set, nil
}

// Lookup resolves the dataset and selects the file for year, 0 meaning the latest.
func (r *Resolver) Lookup(ctx context.Context, q Query, year int) (File, error) {
	set, err := r.Resolve(ctx, q)
	if err != nil {
		return File{}, err
	}
	return set.Select(year)
}
