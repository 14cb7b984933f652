package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	appanalysis "github.com/claudiug/kaeruera/internal/application/analysis"
	"github.com/claudiug/kaeruera/internal/application/reports"
	"github.com/claudiug/kaeruera/internal/application/triage"
	"github.com/claudiug/kaeruera/internal/config"
	"github.com/claudiug/kaeruera/internal/domain/apperrors"
	"github.com/claudiug/kaeruera/internal/domain/apps"
	aiclient "github.com/claudiug/kaeruera/internal/infra/ai/openai"
	mysqldb "github.com/claudiug/kaeruera/internal/infra/db/mysql"
	"github.com/claudiug/kaeruera/internal/infra/db/postgres"
	"github.com/claudiug/kaeruera/internal/infra/httpserver"
	payloadStore "github.com/claudiug/kaeruera/internal/infra/storage"
	"github.com/claudiug/kaeruera/internal/middleware"
	"github.com/claudiug/kaeruera/internal/recorder"
)

func main() {
	// path config.yaml
	path := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		path = v
	}

	// load config
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	ctx := context.Background()

	// connect database and init repos for the configured driver
	var (
		db      *sql.DB
		appRepo apps.Repository
		errRepo apperrors.Repository
	)
	switch cfg.Database.Driver {
	case "mysql":
		db, err = mysqldb.Connect(ctx, cfg.DSN())
		if err != nil {
			log.Fatalf("mysql connect error: %v", err)
		}
		appRepo = mysqldb.NewAppRepository(db)
		errRepo = mysqldb.NewErrorRepository(db)
	default:
		db, err = postgres.Connect(ctx, cfg.DSN())
		if err != nil {
			log.Fatalf("postgres connect error: %v", err)
		}
		appRepo = postgres.NewAppRepository(db)
		errRepo = postgres.NewErrorRepository(db)
	}
	defer db.Close()

	// init services
	reportsSvc := &reports.Service{
		Apps:   appRepo,
		Errors: errRepo,
		Clock:  reports.SystemClock{},
	}
	triageSvc := &triage.Service{
		Apps:   appRepo,
		Errors: errRepo,
	}

	// optional AI triage
	var analysisSvc *appanalysis.Service
	if cfg.OpenAI.APIKey != "" {
		analysisSvc = appanalysis.NewService(aiclient.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.Model), errRepo)
	}

	// optional raw payload archive
	var archive httpserver.Archiver
	if cfg.Archive.Endpoint != "" {
		store, err := payloadStore.New(ctx,
			cfg.Archive.Endpoint,
			cfg.Archive.Region,
			cfg.Archive.BucketName,
			cfg.Archive.AccessKey,
			cfg.Archive.SecretKey,
			cfg.Archive.UseSSL,
		)
		if err != nil {
			log.Fatalf("archive init error: %v", err)
		}
		archive = store
	}

	// self-monitoring recorder
	rec := recorder.New(errRepo, cfg.Recorder.ApplicationID)

	health := middleware.HealthHandler(map[string]middleware.HealthChecker{
		"database": &middleware.DatabaseHealthChecker{DB: db},
	})

	// init router
	mux := chi.NewRouter()
	mux.Use(middleware.LoggingMiddleware)
	mux.Use(middleware.MetricsMiddleware)
	if len(cfg.CORS.AllowedOrigins) > 0 {
		mux.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.CORS.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST"},
			AllowedHeaders: []string{"Authorization", "Content-Type"},
		}))
	}
	mux.Use(middleware.SessionAuth(cfg.SessionTokens()))
	if cfg.RateLimit.Capacity > 0 {
		mux.Use(middleware.RateLimitMiddleware(cfg.RateLimit.Capacity, cfg.RateLimit.RefillRate))
	}
	mux.Mount("/", httpserver.NewRouter(reportsSvc, triageSvc, analysisSvc, archive, rec, health))

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// run server
	go func() {
		log.Printf("server listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Println("shutting down server...")

	ctx2, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx2); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
