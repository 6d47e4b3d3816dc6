package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"
)

// CatalogLookupKind distinguishes why a catalog lookup failed.
type CatalogLookupKind string

const (
	CatalogNotFound           CatalogLookupKind = "not_found"
	CatalogEmpty              CatalogLookupKind = "empty_catalog"
	CatalogDatasetUnavailable CatalogLookupKind = "dataset_unavailable"
)

// CatalogLookupError is returned when a dataset or a requested year is missing from the remote catalog.
type CatalogLookupError struct {
	Kind      CatalogLookupKind
	DatasetID string
	Year      int
	Available []int
	Err       error
}

func NewCatalogNotFoundError(datasetID string, year int, available []int) *CatalogLookupError {
	return &CatalogLookupError{Kind: CatalogNotFound, DatasetID: datasetID, Year: year, Available: available}
}

func NewEmptyCatalogError(datasetID string) *CatalogLookupError {
	return &CatalogLookupError{Kind: CatalogEmpty, DatasetID: datasetID}
}

func NewDatasetUnavailableError(datasetID string, err error) *CatalogLookupError {
	return &CatalogLookupError{Kind: CatalogDatasetUnavailable, DatasetID: datasetID, Err: err}
}

func (e *CatalogLookupError) Error() string {
	switch e.Kind {
	case CatalogNotFound:
		return fmt.Sprintf("dataset %s has no file for year %d (available: %v)", e.DatasetID, e.Year, e.Available)
	case CatalogEmpty:
		return fmt.Sprintf("dataset %s has no eligible file", e.DatasetID)
	default:
		if e.Err != nil {
			return fmt.Sprintf("dataset %s is unavailable: %v", e.DatasetID, e.Err)
		}
		return fmt.Sprintf("dataset %s is unavailable", e.DatasetID)
	}
}

func (e *CatalogLookupError) Unwrap() error {
	return e.Err
}

func (e *CatalogLookupError) ToHTTPError() *httperror.HTTPError {
	code := http.StatusNotFound
	if e.Kind == CatalogDatasetUnavailable {
		code = http.StatusBadGateway
	}
	herr := httperror.NewHTTPError(code, e.Error()).AddMetaValue("dataset_id", e.DatasetID).AddMetaValue("kind", string(e.Kind))
	if e.Year != 0 {
		herr = herr.AddMetaValue("year", strconv.Itoa(e.Year))
	}
	return herr
}

// MissingColumnError is returned when a table header lacks a mapped or filter column.
type MissingColumnError struct {
	Source  string
	Column  string
	Headers []string
}

func NewMissingColumnError(source, column string, headers []string) *MissingColumnError {
	return &MissingColumnError{Source: source, Column: column, Headers: headers}
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("%s: column %q not found in header [%s]", e.Source, e.Column, strings.Join(e.Headers, ", "))
}

func (e *MissingColumnError) ToHTTPError() *httperror.HTTPError {
	return httperror.NewHTTPError(http.StatusBadGateway, e.Error()).AddMetaValue("source", e.Source).AddMetaValue("column", e.Column)
}

// EmptyResultError is returned when no record survived filtering and at least one was required.
type EmptyResultError struct {
	Source string
}

func NewEmptyResultError(source string) *EmptyResultError {
	return &EmptyResultError{Source: source}
}

func (e *EmptyResultError) Error() string {
	return fmt.Sprintf("%s: no records survived filtering", e.Source)
}

func (e *EmptyResultError) ToHTTPError() *httperror.HTTPError {
	return httperror.NewHTTPError(http.StatusBadGateway, e.Error()).AddMetaValue("source", e.Source)
}

// ParentNotFoundError is returned when the higher-level entity a row refers to is absent from the vintage.
type ParentNotFoundError struct {
	Level       string
	ParentLevel string
	Key         string
	Year        int
}

func NewParentNotFoundError(level, parentLevel, key string, year int) *ParentNotFoundError {
	return &ParentNotFoundError{Level: level, ParentLevel: parentLevel, Key: key, Year: year}
}

func (e *ParentNotFoundError) Error() string {
	return fmt.Sprintf("%s: no %s %q in vintage %d", e.Level, e.ParentLevel, e.Key, e.Year)
}

func (e *ParentNotFoundError) ToHTTPError() *httperror.HTTPError {
	return httperror.NewHTTPError(http.StatusUnprocessableEntity, e.Error()).
		AddMetaValue("level", e.Level).
		AddMetaValue("parent_level", e.ParentLevel).
		AddMetaValue("key", e.Key).
		AddMetaValue("year", strconv.Itoa(e.Year))
}

// VintageNotFoundError is returned when a run needs a vintage that no level import has created.
type VintageNotFoundError struct {
	Level string
	Year  int
}

func NewVintageNotFoundError(level string, year int) *VintageNotFoundError {
	return &VintageNotFoundError{Level: level, Year: year}
}

func (e *VintageNotFoundError) Error() string {
	return fmt.Sprintf("%s: vintage %d has not been imported", e.Level, e.Year)
}

func (e *VintageNotFoundError) ToHTTPError() *httperror.HTTPError {
	return httperror.NewHTTPError(http.StatusUnprocessableEntity, e.Error()).
		AddMetaValue("level", e.Level).
		AddMetaValue("year", strconv.Itoa(e.Year))
}

// ValidationError is returned when a code fails its format or checksum rule.
type ValidationError struct {
	Level string
	Field string
	Value string
	Rule  string
}

func NewValidationError(level, field, value, rule string) *ValidationError {
	return &ValidationError{Level: level, Field: field, Value: value, Rule: rule}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s %q fails rule %s", e.Level, e.Field, e.Value, e.Rule)
}

func (e *ValidationError) ToHTTPError() *httperror.HTTPError {
	return httperror.NewHTTPError(http.StatusUnprocessableEntity, e.Error()).
		AddMetaValue("level", e.Level).
		AddMetaValue("field", e.Field).
		AddMetaValue("value", e.Value).
		AddMetaValue("rule", e.Rule)
}

// RunInProgressError is returned when another worker holds the run lock of a level and year.
type RunInProgressError struct {
	Key string
	Err error
}

func NewRunInProgressError(key string, err error) *RunInProgressError {
	return &RunInProgressError{Key: key, Err: err}
}

func (e *RunInProgressError) Error() string {
	return fmt.Sprintf("reconciliation %s is already running", e.Key)
}

func (e *RunInProgressError) Unwrap() error {
	return e.Err
}

func (e *RunInProgressError) ToHTTPError() *httperror.HTTPError {
	return httperror.NewHTTPError(http.StatusConflict, e.Error()).AddMetaValue("key", e.Key)
}

type httpConvertible interface {
	ToHTTPError() *httperror.HTTPError
}

// ToHTTPError translates any pipeline error in err's chain into an HTTP error. Errors that
// already are HTTP errors pass through, anything else becomes a 500.
func ToHTTPError(err error) error {
	if err == nil {
		return nil
	}
	var conv httpConvertible
	if errors.As(err, &conv) {
		return conv.ToHTTPError()
	}
	if httperror.IsHTTPError(err) {
		return err
	}
	return httperror.NewHTTPError(http.StatusInternalServerError, err.Error())
}
