package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Gobusters/ectologger"
	"github.com/jmespath/go-jmespath"

	"github.com/Ramsey-B/subdivisions/pkg/tracing"
)

// Fetcher downloads a URL fully into memory.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

var resourcesExpr = jmespath.MustCompile("resources[].{title: title, url: url}")

// DataGouvLister lists dataset resources through the data.gouv.fr API.
type DataGouvLister struct {
	fetcher Fetcher
	baseURL string
	logger  ectologger.Logger
}

func NewDataGouvLister(fetcher Fetcher, baseURL string, logger ectologger.Logger) *DataGouvLister {
	return &DataGouvLister{
		fetcher: fetcher,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}
}

func (l *DataGouvLister) ListResources(ctx context.Context, datasetID string) ([]Resource, error) {
	ctx, span := tracing.StartSpan(ctx, "catalog.DataGouvLister.ListResources")
	defer span.End()

	url := fmt.Sprintf("%s/api/1/datasets/%s/", l.baseURL, datasetID)
	body, err := l.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}

	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("invalid dataset document: %w", err)
	}

	result, err := resourcesExpr.Search(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to extract resources: %w", err)
	}

	items, _ := result.([]any)
	resources := make([]Resource, 0, len(items))
	for _, item := range items {
		fields, ok := item.(map[string]any)
		if !ok {
			continue
		}
		title, _ := fields["title"].(string)
		href, _ := fields["url"].(string)
		if title == "" || href == "" {
			continue
		}
		resources = append(resources, Resource{Title: title, URL: href})
	}

	l.logger.WithContext(ctx).WithFields(map[string]any{
		"dataset_id": datasetID,
		"resources":  len(resources),
	}).Debug("listed dataset resources")

	return resources, nil
}
