package catalog

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	suberrors "github.com/Ramsey-B/subdivisions/pkg/errors"
	"github.com/Ramsey-B/subdivisions/pkg/httpclient"
	"github.com/Ramsey-B/subdivisions/pkg/logging"
)

type stubLister struct {
	resources []Resource
	err       error
}

func (s *stubLister) ListResources(_ context.Context, _ string) ([]Resource, error) {
	return s.resources, s.err
}

var regionsPattern = regexp.MustCompile(`Millésime (?P<year>\d{4})\s: Liste des régions`)

func newResolver(resources []Resource, err error) *Resolver {
	return NewResolver(&stubLister{resources: resources, err: err}, logging.NewNopLogger())
}

func TestResolver_Resolve(t *testing.T) {
	resolver := newResolver([]Resource{
		{Title: "Millésime 2018 : Liste des régions", URL: "https://example.org/2018.zip"},
		{Title: "Millésime 2019 : Liste des régions", URL: "https://example.org/2019.zip"},
		{Title: "Millésime 2021 : Liste des régions", URL: "https://example.org/2021.zip"},
		{Title: "Millésime 2021 : Liste des départements", URL: "https://example.org/dep2021.zip"},
		{Title: "Notice", URL: "https://example.org/notice.pdf"},
	}, nil)

	set, err := resolver.Resolve(context.Background(), Query{DatasetID: "cog", Pattern: regionsPattern, MinYear: 2019})
	require.NoError(t, err)

	assert.Equal(t, []int{2019, 2021}, set.Years())
	assert.Equal(t, "https://example.org/2021.zip", set.Files[2021].URL)
	assert.Equal(t, 2021, set.Files[2021].Year)
}

func TestResolver_DuplicateYearKeepsLast(t *testing.T) {
	resolver := newResolver([]Resource{
		{Title: "Millésime 2021 : Liste des régions", URL: "https://example.org/first.zip"},
		{Title: "Millésime 2021 : Liste des régions", URL: "https://example.org/second.zip"},
	}, nil)

	set, err := resolver.Resolve(context.Background(), Query{DatasetID: "cog", Pattern: regionsPattern})
	require.NoError(t, err)
	assert.Equal(t, "https://example.org/second.zip", set.Files[2021].URL)
}

func TestResolver_RequiresYearGroup(t *testing.T) {
	resolver := newResolver(nil, nil)

	_, err := resolver.Resolve(context.Background(), Query{DatasetID: "cog", Pattern: regexp.MustCompile(`Liste (\d{4})`)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "year")
}

func TestResolver_ListerFailure(t *testing.T) {
	resolver := newResolver(nil, errors.New("connection refused"))

	_, err := resolver.Resolve(context.Background(), Query{DatasetID: "cog", Pattern: regionsPattern})
	var lookupErr *suberrors.CatalogLookupError
	require.True(t, errors.As(err, &lookupErr))
	assert.Equal(t, suberrors.CatalogDatasetUnavailable, lookupErr.Kind)
}

func TestFileSet_Select(t *testing.T) {
	set := &FileSet{DatasetID: "cog", Files: map[int]File{
		2020: {Title: "a", URL: "u2020", Year: 2020},
		2022: {Title: "b", URL: "u2022", Year: 2022},
	}}

	latest, err := set.Select(0)
	require.NoError(t, err)
	assert.Equal(t, 2022, latest.Year)

	f, err := set.Select(2020)
	require.NoError(t, err)
	assert.Equal(t, "u2020", f.URL)

	_, err = set.Select(2021)
	var lookupErr *suberrors.CatalogLookupError
	require.True(t, errors.As(err, &lookupErr))
	assert.Equal(t, suberrors.CatalogNotFound, lookupErr.Kind)
	assert.Equal(t, 2021, lookupErr.Year)
	assert.Equal(t, []int{2020, 2022}, lookupErr.Available)
}

func TestFileSet_LatestEmpty(t *testing.T) {
	set := &FileSet{DatasetID: "cog", Files: map[int]File{}}

	_, err := set.Latest()
	var lookupErr *suberrors.CatalogLookupError
	require.True(t, errors.As(err, &lookupErr))
	assert.Equal(t, suberrors.CatalogEmpty, lookupErr.Kind)
}

func TestDataGouvLister_ListResources(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/1/datasets/58c984b088ee386cdb1261f3/", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "58c984b088ee386cdb1261f3",
			"resources": [
				{"title": "Millésime 2021 : Liste des régions", "url": "https://static.example.org/region2021.zip", "format": "zip"},
				{"title": "Millésime 2021 : Liste des départements", "url": "https://static.example.org/departement2021.zip"},
				{"title": "", "url": "https://static.example.org/untitled"}
			]
		}`))
	}))
	defer server.Close()

	client := httpclient.NewClient(httpclient.DefaultConfig(), logging.NewNopLogger())
	lister := NewDataGouvLister(client, server.URL+"/", logging.NewNopLogger())

	resources, err := lister.ListResources(context.Background(), "58c984b088ee386cdb1261f3")
	require.NoError(t, err)
	require.Len(t, resources, 2)
	assert.Equal(t, Resource{Title: "Millésime 2021 : Liste des régions", URL: "https://static.example.org/region2021.zip"}, resources[0])

	resolver := NewResolver(lister, logging.NewNopLogger())
	f, err := resolver.Lookup(context.Background(), Query{DatasetID: "58c984b088ee386cdb1261f3", Pattern: regionsPattern, MinYear: 2019}, 0)
	require.NoError(t, err)
	assert.Equal(t, 2021, f.Year)
}

func TestDataGouvLister_BadDocument(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer server.Close()

	client := httpclient.NewClient(httpclient.DefaultConfig(), logging.NewNopLogger())
	lister := NewDataGouvLister(client, server.URL, logging.NewNopLogger())

	_, err := lister.ListResources(context.Background(), "x")
	assert.Error(t, err)
}
