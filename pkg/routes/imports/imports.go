package imports

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/subdivisions/pkg/models"
	"github.com/Ramsey-B/subdivisions/pkg/reconcile"
	"github.com/Ramsey-B/subdivisions/pkg/validation"
)

// LevelCommuneRegistry selects the commune registry pass instead of a level reconciliation.
const LevelCommuneRegistry = "commune_registry"

// Importer runs reconciliations.
type Importer interface {
	Reconcile(ctx context.Context, level models.Level, year int) (*reconcile.Result, error)
	ReconcileCommuneRegistry(ctx context.Context, year int) (*reconcile.Result, error)
	RunAll(ctx context.Context, year int) ([]*reconcile.Result, error)
}

// ImportRequest triggers one level, or the full pipeline when Level is empty. Year 0 selects
// the latest published year.
type ImportRequest struct {
	Level string `json:"level" validate:"omitempty,oneof=region departement commune epci commune_registry"`
	Year  int    `json:"year" validate:"omitempty,min=1900,max=2999"`
}

type ImportResponse struct {
	Results []*reconcile.Result `json:"results"`
}

type Handler struct {
	importer  Importer
	validator *validation.Validator
}

func NewHandler(importer Importer, validator *validation.Validator) *Handler {
	return &Handler{
		importer:  importer,
		validator: validator,
	}
}

// Register registers import routes
func (h *Handler) Register(g *echo.Group) {
	g.POST("", h.Create)
}

// Create runs the requested reconciliation synchronously and returns its results. Pipeline
// errors are rendered by the error handler; a failed full pipeline reports no partial results.
func (h *Handler) Create(c echo.Context) error {
	ctx := c.Request().Context()

	var req ImportRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := h.validator.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	var results []*reconcile.Result
	switch req.Level {
	case "":
		all, err := h.importer.RunAll(ctx, req.Year)
		if err != nil {
			return err
		}
		results = all
	case LevelCommuneRegistry:
		res, err := h.importer.ReconcileCommuneRegistry(ctx, req.Year)
		if err != nil {
			return err
		}
		results = []*reconcile.Result{res}
	default:
		res, err := h.importer.Reconcile(ctx, models.Level(req.Level), req.Year)
		if err != nil {
			return err
		}
		results = []*reconcile.Result{res}
	}

	return c.JSON(http.StatusOK, ImportResponse{Results: results})
}
