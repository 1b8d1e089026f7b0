// climate-api je read-only REST API nad stavem zón: poslední záznamy
// z Valkey a historie z TimescaleDB.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/vikerian/climate-loop/internal/config"
	"github.com/vikerian/climate-loop/internal/logging"
	"github.com/vikerian/climate-loop/internal/metrics"
	"github.com/vikerian/climate-loop/internal/statusapi"
	"github.com/vikerian/climate-loop/internal/storage"
)

const serviceName = "climate-api"

func main() {
	// 1. Konfigurace + logger
	cfg, err := config.LoadAPI()
	if err != nil {
		slog.Error("Kritická chyba: neplatná konfigurace", "error", err)
		os.Exit(1)
	}
	logger := logging.New(serviceName, cfg.LogLevel, nil)
	slog.SetDefault(logger)
	logger.Info("Startuji Climate API", "port", cfg.HTTPPort)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 2. Připojení k TimescaleDB
	db, err := storage.OpenTimescale(ctx, cfg.PostgresURL)
	if err != nil {
		logger.Error("Kritická chyba: Nelze se připojit k DB", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// 3. Připojení k Valkey
	rdb, err := storage.OpenValkey(ctx, cfg.ValkeyAddr)
	if err != nil {
		logger.Error("Kritická chyba: Nelze se připojit k Valkey", "error", err)
		os.Exit(1)
	}
	defer rdb.Close()

	// 4. Katalog zón: první načtení blokující, pak obnova na pozadí
	catalog := storage.NewZoneCatalog(db, logger)
	if err := catalog.Load(ctx); err != nil {
		logger.Error("Kritická chyba: Nepodařilo se načíst katalog zón", "error", err)
		os.Exit(1)
	}

	// 5. Wiring
	svc := statusapi.NewService(catalog, storage.NewKeyedStore(rdb, cfg.KeyedPrefix, 0), db)
	reg := metrics.NewRegistry()
	router := statusapi.NewOpsRouter(reg, db.Ping)
	router.Use(statusapi.Instrument(metrics.NewAPI(reg)))
	statusapi.NewAPIHandler(svc, logger).RegisterRoutes(router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		catalog.StartAutoRefresh(gctx, cfg.CatalogRefresh)
		return nil
	})
	g.Go(func() error {
		return statusapi.Serve(gctx, ":"+cfg.HTTPPort, statusapi.Wrap(router, logger), logger)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server spadl", "error", err)
		os.Exit(1)
	}
	logger.Info("Climate API ukončeno")
}
