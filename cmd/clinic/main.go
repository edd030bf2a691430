package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/colitas-felices/clinic/internal/adapters/lab"
	"github.com/colitas-felices/clinic/internal/catalog"
	"github.com/colitas-felices/clinic/internal/client"
	clinicalapi "github.com/colitas-felices/clinic/internal/clinical/api"
	clinicalinfra "github.com/colitas-felices/clinic/internal/clinical/infrastructure"
	"github.com/colitas-felices/clinic/internal/pet"
	"github.com/colitas-felices/clinic/internal/report"
	"github.com/colitas-felices/clinic/internal/shared/auth"
	"github.com/colitas-felices/clinic/internal/shared/config"
	"github.com/colitas-felices/clinic/internal/shared/database"
	"github.com/colitas-felices/clinic/internal/shared/events"
	"github.com/colitas-felices/clinic/internal/shared/metrics"
	secmiddleware "github.com/colitas-felices/clinic/internal/shared/middleware"
	"github.com/colitas-felices/clinic/internal/staff"
	"github.com/colitas-felices/clinic/internal/user"
)

// App holds the process-wide dependencies.
type App struct {
	Config *config.Config
	DB     *database.DB
	Bus    *events.Bus
	Lab    *lab.Adapter
	Log    zerolog.Logger
}

func main() {
	ctx := context.Background()

	log := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("loading configuration")
	}
	if cfg.Server.Env != "production" {
		log = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	}

	app := &App{Config: cfg, Log: log}

	db, err := database.New(ctx, cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("connecting to database")
	}
	app.DB = db
	defer db.Close()

	if err := database.Migrate(ctx, db); err != nil {
		log.Fatal().Err(err).Msg("running migrations")
	}

	// The event bus is optional: the clinic keeps working without it.
	if cfg.EventStore.Enabled {
		bus, err := events.NewBus(cfg.EventStore, log)
		if err != nil {
			log.Warn().Err(err).Msg("event store not available, continuing without event streaming")
		} else {
			app.Bus = bus
			defer bus.Close()
			log.Info().Msg("event bus connected")
		}
	}

	// Repositories and handlers.
	var bus events.EventBus
	if app.Bus != nil {
		bus = app.Bus
	}

	clientHandler := client.NewHandler(client.NewPostgresRepository(db))
	petHandler := pet.NewHandler(pet.NewPostgresRepository(db))
	staffRepo := staff.NewPostgresRepository(db)
	staffHandler := staff.NewHandler(staffRepo)
	userHandler := user.NewHandler(user.NewPostgresRepository(db), staffRepo, cfg.Auth, bus)
	catalogHandler := catalog.NewHandler(catalog.NewPostgresRepository(db))
	clinicalRepo := clinicalinfra.NewPostgresRepository(db)
	clinicalHandler := clinicalapi.NewHandler(clinicalRepo, bus)
	reportHandler := report.NewHandler(report.NewPostgresRepository(db))

	// External laboratory import, also optional.
	if cfg.Lab.Enabled {
		adapter := lab.New(cfg.Lab, clinicalRepo, bus, log)
		if err := adapter.Start(ctx); err != nil {
			log.Warn().Err(err).Msg("lab adapter not available, continuing without result import")
		} else {
			app.Lab = adapter
			defer adapter.Stop(context.Background())
		}
	}

	limiter := secmiddleware.NewIPRateLimiter(rate.Limit(10), 20)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(60 * time.Second))
	r.Use(secmiddleware.SecurityHeaders)
	r.Use(secmiddleware.CORS(cfg.Server.AllowedOrigins))
	r.Use(metrics.Middleware)

	r.Get("/health", healthHandler)
	r.Get("/ready", readyHandler(app))
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/", infoHandler)

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(limiter.Middleware)
			r.Mount("/auth", userHandler.AuthRoutes())
		})

		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(cfg.Auth))

			r.Mount("/sesion", userHandler.SessionRoutes())
			r.Mount("/usuarios", userHandler.Routes())
			r.Mount("/clientes", clientHandler.Routes())
			r.Mount("/mascotas", petHandler.Routes())
			r.Mount("/veterinarios", staffHandler.VetRoutes())
			r.Mount("/recepcionistas", staffHandler.ReceptionistRoutes())
			r.Mount("/administradores", staffHandler.AdministratorRoutes())
			r.Mount("/catalogos", catalogHandler.Routes())
			r.Mount("/solicitudes", clinicalHandler.RequestRoutes())
			r.Mount("/triajes", clinicalHandler.TriageRoutes())
			r.Mount("/consultas", clinicalHandler.ConsultationRoutes())
			r.Mount("/servicios-solicitados", clinicalHandler.OrderRoutes())
			r.Mount("/citas", clinicalHandler.AppointmentRoutes())
			r.Mount("/historiales", clinicalHandler.HistoryRoutes())
			r.Mount("/dashboard", reportHandler.DashboardRoutes())
			r.Mount("/reportes", reportHandler.ReportRoutes())
			r.Mount("/agenda", reportHandler.AgendaRoutes())
		})
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	done := make(chan struct{})
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("server shutdown")
		}
		close(done)
	}()

	log.Info().
		Str("env", cfg.Server.Env).
		Int("port", cfg.Server.Port).
		Bool("event_bus", app.Bus != nil).
		Bool("lab_adapter", app.Lab != nil).
		Msg("clinic API listening")

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("server error")
	}

	<-done
	log.Info().Msg("server stopped")
}

func infoHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"name":    "Colitas Felices Clinic API",
		"version": "1.0.0",
		"docs":    "/api/v1",
	})
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
}

func readyHandler(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{"server": "ready"}

		if err := app.DB.Health(r.Context()); err != nil {
			checks["database"] = "not ready: " + err.Error()
		} else {
			checks["database"] = "ready"
		}

		if app.Bus != nil {
			if err := app.Bus.Health(); err != nil {
				checks["eventstore"] = "not ready: " + err.Error()
			} else {
				checks["eventstore"] = "ready"
			}
		} else {
			checks["eventstore"] = "not configured"
		}

		if app.Lab != nil {
			if err := app.Lab.Health(r.Context()); err != nil {
				checks["lab"] = "not ready: " + err.Error()
			} else {
				checks["lab"] = "ready"
			}
		} else {
			checks["lab"] = "not configured"
		}

		allReady := true
		for _, status := range checks {
			if status != "ready" && status != "not configured" {
				allReady = false
				break
			}
		}

		status := http.StatusOK
		if !allReady {
			status = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]any{
			"status": map[bool]string{true: "ready", false: "not ready"}[allReady],
			"checks": checks,
		})
	}
}
