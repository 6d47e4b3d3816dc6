// Package routes assembles the HTTP surface of the registry.
package routes

import (
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/Ramsey-B/subdivisions/pkg/middleware"
	"github.com/Ramsey-B/subdivisions/pkg/routes/health"
	"github.com/Ramsey-B/subdivisions/pkg/routes/imports"
	"github.com/Ramsey-B/subdivisions/pkg/routes/vintages"
	"github.com/Ramsey-B/subdivisions/pkg/validation"
)

type Deps struct {
	AppName   string
	Health    *health.Checker
	Importer  imports.Importer
	Vintages  vintages.Lister
	Validator *validation.Validator
	Logger    ectologger.Logger
}

// NewServer returns an echo instance with middleware and every route registered.
func NewServer(deps Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.Error(deps.Logger)

	e.Use(otelecho.Middleware(deps.AppName))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(deps.Logger))

	deps.Health.RegisterRoutes(e)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api/v1")
	imports.NewHandler(deps.Importer, deps.Validator).Register(api.Group("/imports"))
	vintages.NewHandler(deps.Vintages).Register(api.Group("/vintages"))

	return e
}
