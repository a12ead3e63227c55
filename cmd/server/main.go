package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/SaiSiddharthPanuganti/graphledger-ai/internal/config"
	"github.com/SaiSiddharthPanuganti/graphledger-ai/internal/graph"
	"github.com/SaiSiddharthPanuganti/graphledger-ai/internal/handler"
	"github.com/SaiSiddharthPanuganti/graphledger-ai/internal/middleware"
	"github.com/SaiSiddharthPanuganti/graphledger-ai/internal/service"
	"github.com/SaiSiddharthPanuganti/graphledger-ai/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewLogger("graphledger", cfg.Log.Level, cfg.Log.Format)
	defer log.Sync()

	// Initialize the graph backend
	store, archiver, err := buildStore(cfg, log)
	if err != nil {
		log.Fatal("failed to initialize graph store", zap.Error(err))
	}

	// Initialize the reconciliation engine
	engine := service.NewReconciliationService(store,
		service.FraudConfig{
			MinCycleLength: cfg.Fraud.MinCycleLength,
			MaxCycleLength: cfg.Fraud.MaxCycleLength,
			HubThreshold:   cfg.Fraud.HubThreshold,
			Workers:        cfg.Fraud.Workers,
		},
		service.RunConfig{
			Workers:   cfg.Engine.Workers,
			RunBudget: cfg.Engine.RunBudget(),
		},
		log,
	)

	// Initialize handlers. The typed-nil check matters: a nil
	// *PostgresStore must not become a non-nil archiver interface.
	apiHandler := handler.NewAPIHandler(engine, nil, log)
	if archiver != nil {
		apiHandler = handler.NewAPIHandler(engine, archiver, log)
	}

	// Setup router
	router := setupRouter(apiHandler, log)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 3 * time.Minute, // reconcile runs synchronously
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("starting reconciliation service",
			zap.String("port", cfg.Server.Port),
			zap.String("store", cfg.Store.Driver))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("server forced to shutdown", zap.Error(err))
	}

	log.Info("server exited")
}

// buildStore wires the configured backend: the in-memory demo graph, or
// PostgreSQL loaded into a replica at startup.
func buildStore(cfg *config.Config, log *zap.Logger) (graph.Store, *graph.PostgresStore, error) {
	switch cfg.Store.Driver {
	case "memory":
		mem := graph.NewMemoryStore()
		if err := graph.Seed(mem); err != nil {
			return nil, nil, fmt.Errorf("failed to seed demo graph: %w", err)
		}
		log.Info("serving built-in demo graph")
		return mem, nil, nil
	case "postgres":
		db, err := graph.NewPostgresDB(cfg.Store.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := graph.EnsureSchema(ctx, db); err != nil {
			return nil, nil, err
		}
		pg := graph.NewPostgresStore(db, log)
		if err := pg.Load(ctx); err != nil {
			return nil, nil, err
		}
		return pg, pg, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

func setupRouter(api *handler.APIHandler, log *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(log))
	router.Use(middleware.Recovery(log))
	router.Use(middleware.CORS())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
	router.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/reconcile", api.Reconcile)

		v1.GET("/invoices", api.ListInvoices)
		v1.GET("/invoices/:id", api.GetInvoice)

		v1.GET("/vendors", api.ListVendors)
		v1.GET("/vendors/:gstin", api.GetVendor)

		fraud := v1.Group("/fraud")
		{
			fraud.GET("/summary", api.FraudSummary)
			fraud.GET("/circular-trading", api.CircularTrading)
			fraud.GET("/suspicious-clusters", api.SuspiciousClusters)
		}

		v1.GET("/dashboard/summary", api.DashboardSummary)
	}

	return router
}
