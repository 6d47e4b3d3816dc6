package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/Ramsey-B/subdivisions/pkg/routes"
	"github.com/Ramsey-B/subdivisions/pkg/routes/health"
	"github.com/Ramsey-B/subdivisions/pkg/scheduler"
	"github.com/Ramsey-B/subdivisions/pkg/startup"
	"github.com/Ramsey-B/subdivisions/pkg/validation"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd(a *app) *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and run the scheduled refresh",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd.Context(), migrate)
		},
	}

	cmd.Flags().BoolVar(&migrate, "migrate", false, "Apply database migrations before serving")

	return cmd
}

func (a *app) serve(ctx context.Context, migrate bool) error {
	checker := &health.Checker{}
	s := startup.NewStartup(a.logger, a.cfg.StartupMaxAttempts)

	s.AddDependency(&startup.Func{
		Name:      "tracing",
		StartFunc: a.setupTracing,
	})
	s.AddDependency(&startup.Func{
		Name:      "database",
		StartFunc: a.connectDatabase,
	})
	engineNeeds := []string{"database"}
	if migrate {
		s.AddDependency(&startup.Func{
			Name:  "migrations",
			Needs: []string{"database"},
			StartFunc: func(context.Context) error {
				return a.migrate()
			},
		})
		engineNeeds = append(engineNeeds, "migrations")
	}
	if a.cfg.RedisEnabled {
		s.AddDependency(&startup.Func{
			Name: "redis",
			StartFunc: func(context.Context) error {
				return a.connectRedis()
			},
		})
		engineNeeds = append(engineNeeds, "redis")
	}
	s.AddDependency(&startup.Func{
		Name:  "engine",
		Needs: engineNeeds,
		StartFunc: func(context.Context) error {
			a.openProducer()
			return a.buildEngine()
		},
	})

	var server *http.Server
	s.AddDependency(&startup.Func{
		Name:  "http",
		Needs: []string{"engine", "tracing"},
		StartFunc: func(context.Context) error {
			pingers := map[string]health.Pinger{"database": health.PingerFunc(a.db.PingContext)}
			if a.redis != nil {
				pingers["redis"] = a.redis
			}
			checker = health.NewChecker(a.cfg.Version, pingers)

			e := routes.NewServer(routes.Deps{
				AppName:   a.cfg.AppName,
				Health:    checker,
				Importer:  a.engine,
				Vintages:  a.vintages,
				Validator: validation.New(),
				Logger:    a.logger,
			})
			server = &http.Server{
				Addr:           fmt.Sprintf(":%d", a.cfg.Port),
				Handler:        e,
				ReadTimeout:    time.Duration(a.cfg.HttpServerReadTimeoutSeconds) * time.Second,
				WriteTimeout:   time.Duration(a.cfg.HttpServerWriteTimeoutSeconds) * time.Second,
				IdleTimeout:    time.Duration(a.cfg.HttpServerIdleTimeoutSeconds) * time.Second,
				MaxHeaderBytes: a.cfg.MaxHeaderBytes,
			}
			go func() {
				a.logger.Infof("HTTP server listening on %s", server.Addr)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					a.logger.WithError(err).Error("HTTP server stopped")
				}
			}()
			return nil
		},
		StopFunc: func(ctx context.Context) error {
			checker.SetReady(false)
			return server.Shutdown(ctx)
		},
	})

	if a.cfg.SchedulerEnabled {
		var sched *scheduler.Scheduler
		s.AddDependency(&startup.Func{
			Name:  "scheduler",
			Needs: []string{"engine"},
			StartFunc: func(ctx context.Context) error {
				sched = scheduler.NewScheduler(a.engine, scheduler.Config{Interval: a.cfg.SchedulerInterval}, a.logger)
				// the scheduler outlives the startup context
				return sched.Start(context.WithoutCancel(ctx))
			},
			StopFunc: func(ctx context.Context) error {
				return sched.Stop(ctx)
			},
		})
	}

	if err := s.Start(ctx); err != nil {
		return err
	}
	checker.SetReady(true)
	a.logger.Info("Service ready")

	<-ctx.Done()
	a.logger.Info("Shutting down")

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.Stop(stopCtx)
}
