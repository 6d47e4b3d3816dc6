package vintages

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/subdivisions/pkg/models"
)

// Lister lists the known vintages.
type Lister interface {
	List(ctx context.Context) ([]models.Vintage, error)
}

type ListResponse struct {
	Items []models.Vintage `json:"items"`
}

type Handler struct {
	lister Lister
}

func NewHandler(lister Lister) *Handler {
	return &Handler{lister: lister}
}

// Register registers vintage routes
func (h *Handler) Register(g *echo.Group) {
	g.GET("", h.List)
}

// List returns every vintage, oldest year first.
func (h *Handler) List(c echo.Context) error {
	items, err := h.lister.List(c.Request().Context())
	if err != nil {
		return err
	}
	if items == nil {
		items = []models.Vintage{}
	}
	return c.JSON(http.StatusOK, ListResponse{Items: items})
}
