package extractor

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/Gobusters/ectologger"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/Ramsey-B/subdivisions/pkg/errors"
	"github.com/Ramsey-B/subdivisions/pkg/metrics"
	"github.com/Ramsey-B/subdivisions/pkg/tracing"
)

// Encoding is the declared text encoding of a table. It is never sniffed from the file name.
type Encoding int

const (
	// UTF8BOM is UTF-8 with an optional leading byte order mark.
	UTF8BOM Encoding = iota
	// Windows1252 is the legacy single-byte Western European code page.
	Windows1252
)

// Fetcher downloads a URL fully into memory.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Filter keeps only rows whose Column equals Value.
type Filter struct {
	Column string
	Value  string
}

// Source describes one delimited table to extract.
type Source struct {
	URL string
	// Member is the file to open inside a zip archive. Empty means the payload is the table itself.
	Member    string
	Encoding  Encoding
	Delimiter rune
	// Columns maps logical field names to physical header names.
	Columns        map[string]string
	Filter         *Filter
	RequireResults bool
}

// Name identifies the source in errors and metrics.
func (s Source) Name() string {
	if s.Member != "" {
		return s.Member
	}
	return path.Base(s.URL)
}

// Record maps logical field names to values.
type Record map[string]string

// Extractor downloads tables and streams their rows as records.
type Extractor struct {
	fetcher Fetcher
	logger  ectologger.Logger
}

func NewExtractor(fetcher Fetcher, logger ectologger.Logger) *Extractor {
	return &Extractor{
		fetcher: fetcher,
		logger:  logger,
	}
}

// Open downloads the source and returns a cursor over its records.
func (e *Extractor) Open(ctx context.Context, src Source) (*Rows, error) {
	ctx, span := tracing.StartSpan(ctx, "extractor.Extractor.Open")
	defer span.End()

	payload, err := e.fetcher.Fetch(ctx, src.URL)
	if err != nil {
		e.logger.WithContext(ctx).WithError(err).WithField("url", src.URL).Error("failed to download source")
		return nil, fmt.Errorf("failed to download %s: %w", src.URL, err)
	}

	e.logger.WithContext(ctx).WithFields(map[string]any{
		"url":    src.URL,
		"member": src.Member,
		"bytes":  len(payload),
	}).Debug("downloaded source")

	return Parse(src, payload)
}

// Parse opens an in-memory payload. The header is checked before the first row is read.
func Parse(src Source, payload []byte) (*Rows, error) {
	var table io.Reader = bytes.NewReader(payload)
	if src.Member != "" {
		member, err := openMember(payload, src.Member)
		if err != nil {
			return nil, err
		}
		table = member
	}

	return newRows(src, decode(table, src.Encoding))
}

func openMember(payload []byte, name string) (io.Reader, error) {
	archive, err := zip.NewReader(bytes.NewReader(payload), int64(len(payload)))
	if err != nil {
		return nil, fmt.Errorf("invalid archive: %w", err)
	}

	for _, f := range archive.File {
		if f.Name == name || path.Base(f.Name) == name {
			rc, err := f.Open()
			if err != nil {
				return nil, fmt.Errorf("failed to open archive member %s: %w", name, err)
			}
			defer rc.Close()
			// buffered so Rows needs no Close
			data, err := io.ReadAll(rc)
			if err != nil {
				return nil, fmt.Errorf("failed to read archive member %s: %w", name, err)
			}
			return bytes.NewReader(data), nil
		}
	}

	names := make([]string, 0, len(archive.File))
	for _, f := range archive.File {
		names = append(names, f.Name)
	}
	return nil, fmt.Errorf("archive member %s not found (members: %s)", name, strings.Join(names, ", "))
}

func decode(r io.Reader, enc Encoding) io.Reader {
	switch enc {
	case Windows1252:
		return transform.NewReader(r, charmap.Windows1252.NewDecoder())
	default:
		return transform.NewReader(r, unicode.UTF8BOM.NewDecoder())
	}
}

// Rows is a one-pass cursor over the records of a source, in source order.
type Rows struct {
	src         Source
	reader      *csv.Reader
	fields      map[string]int
	filterIndex int
	record      Record
	count       int
	err         error
	done        bool
}

func newRows(src Source, r io.Reader) (*Rows, error) {
	reader := csv.NewReader(r)
	if src.Delimiter != 0 {
		reader.Comma = src.Delimiter
	}
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		header = nil
	} else if err != nil {
		return nil, fmt.Errorf("%s: failed to read header: %w", src.Name(), err)
	}

	positions := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(h)
		if _, dup := positions[h]; !dup {
			positions[h] = i
		}
	}

	fields := make(map[string]int, len(src.Columns))
	for logical, physical := range src.Columns {
		idx, ok := positions[physical]
		if !ok {
			return nil, errors.NewMissingColumnError(src.Name(), physical, header)
		}
		fields[logical] = idx
	}

	filterIndex := -1
	if src.Filter != nil {
		idx, ok := positions[src.Filter.Column]
		if !ok {
			return nil, errors.NewMissingColumnError(src.Name(), src.Filter.Column, header)
		}
		filterIndex = idx
	}

	return &Rows{
		src:         src,
		reader:      reader,
		fields:      fields,
		filterIndex: filterIndex,
	}, nil
}

// Next advances to the next record that passes the filter.
func (r *Rows) Next() bool {
	if r.done {
		return false
	}

	for {
		row, err := r.reader.Read()
		if err == io.EOF {
			r.done = true
			if r.count == 0 && r.src.RequireResults {
				r.err = errors.NewEmptyResultError(r.src.Name())
			}
			metrics.RecordsExtracted.WithLabelValues(r.src.Name()).Add(float64(r.count))
			return false
		}
		if err != nil {
			r.done = true
			r.err = fmt.Errorf("%s: failed to read row: %w", r.src.Name(), err)
			return false
		}

		if r.filterIndex >= 0 && cell(row, r.filterIndex) != r.src.Filter.Value {
			continue
		}

		rec := make(Record, len(r.fields))
		for logical, idx := range r.fields {
			rec[logical] = cell(row, idx)
		}
		r.record = rec
		r.count++
		return true
	}
}

// Record returns the current record.
func (r *Rows) Record() Record {
	return r.record
}

// Err returns the error that stopped iteration, if any.
func (r *Rows) Err() error {
	return r.err
}

// Count returns the number of records emitted so far.
func (r *Rows) Count() int {
	return r.count
}

func cell(row []string, idx int) string {
	if idx >= len(row) {
		return ""
	}
	return row[idx]
}
