package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"auction-engine/internal/auth"
	bidding "auction-engine/internal/biddingService"
	"auction-engine/internal/config"
	"auction-engine/internal/metrics"
	model "auction-engine/internal/models"
	"auction-engine/internal/repository"
	"auction-engine/internal/repository/postgres"
	"auction-engine/internal/repository/sqlite"
	"auction-engine/internal/server"
	"auction-engine/utils"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		utils.Fatal("auction server stopped", map[string]any{"error": err.Error()})
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := utils.SetLogLevel(cfg.LogLevel); err != nil {
		return err
	}
	gin.SetMode(gin.ReleaseMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, err := openLedger(ctx, cfg)
	if err != nil {
		return err
	}
	defer repo.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	biddingSvc := bidding.NewBiddingService(repo, bidding.WithMetrics(m))
	if cfg.Store == config.StoreMemory {
		prepopulateProducts(ctx, biddingSvc)
	}

	router := server.SetupRouter(server.Deps{
		Service:    biddingSvc,
		JWTManager: auth.NewJWTManager(cfg.JWTSecret, cfg.TokenTTL),
		Metrics:    m,
		Gatherer:   reg,
	})

	srv := &http.Server{
		Addr:    cfg.Addr(),
		Handler: router,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		utils.Info("Starting auction server", map[string]any{"addr": cfg.Addr(), "store": cfg.Store})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		utils.Info("Shutting down auction server", map[string]any{"timeout": cfg.ShutdownTimeout.String()})

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// openLedger opens the storage backend selected by cfg.Store
func openLedger(ctx context.Context, cfg config.Config) (repository.Ledger, error) {
	opts := []repository.Option{repository.WithLockTimeout(cfg.LockTimeout)}

	switch cfg.Store {
	case config.StoreSQLite:
		store, err := sqlite.New(ctx, cfg.SQLitePath, opts...)
		if err != nil {
			return nil, fmt.Errorf("open sqlite ledger: %w", err)
		}
		utils.Info("Storage initialized", map[string]any{"store": cfg.Store, "database": cfg.SQLitePath})
		return store, nil
	case config.StorePostgres:
		store, err := postgres.New(ctx, cfg.DatabaseURL, opts...)
		if err != nil {
			return nil, fmt.Errorf("open postgres ledger: %w", err)
		}
		utils.Info("Storage initialized", map[string]any{"store": cfg.Store})
		return store, nil
	default:
		utils.Warn("Using in-memory storage; state is lost on restart", map[string]any{"store": cfg.Store})
		return repository.NewMemoryRepo(opts...), nil
	}
}

// prepopulateProducts adds sample products to the in-memory ledger
func prepopulateProducts(ctx context.Context, svc *bidding.BiddingService) {
	products := []model.ProductInput{
		{Title: "title1", Description: "description1", StartingBid: decimal.NewFromInt(100)},
		{Title: "title2", Description: "description2", StartingBid: decimal.NewFromInt(200)},
		{Title: "title3", Description: "description3", StartingBid: decimal.NewFromInt(150)},
	}

	for _, input := range products {
		product, err := svc.CreateProduct(ctx, "demo-seller", input)
		if err != nil {
			utils.Warn("failed to seed product", map[string]any{"title": input.Title, "error": err.Error()})
			continue
		}
		utils.Debug("seeded product", map[string]any{"product_id": product.ProductID, "title": product.Title})
	}
}
