// inference-dispatcher čte dávky telemetrie ze streamu, ukládá surové
// záznamy do Valkey, spouští model a publikuje řídicí příkazy zónám.
package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/vikerian/climate-loop/internal/config"
	"github.com/vikerian/climate-loop/internal/inference"
	"github.com/vikerian/climate-loop/internal/logging"
	"github.com/vikerian/climate-loop/internal/metrics"
	"github.com/vikerian/climate-loop/internal/mqttclient"
	"github.com/vikerian/climate-loop/internal/statusapi"
	"github.com/vikerian/climate-loop/internal/storage"
	"github.com/vikerian/climate-loop/internal/stream"
)

const serviceName = "inference-dispatcher"

func main() {
	os.Exit(run())
}

// run vrací exit kód; defery tak proběhnou i při chybě.
func run() int {
	cfg, err := config.LoadDispatcher()
	if err != nil {
		slog.Error("Kritická chyba: neplatná konfigurace", "error", err)
		return 1
	}
	logger := logging.New(serviceName, cfg.LogLevel, nil)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := metrics.NewRegistry()
	m := metrics.NewDispatcher(reg)

	conn, err := mqttclient.New(cfg.MQTT, logger)
	if err != nil {
		logger.Error("Kritická chyba: MQTT klient", "error", err)
		return 1
	}
	if cfg.LogTopicEnabled {
		w := logging.NewMqttLogWriter(conn.Client(), serviceName, 256)
		defer w.Close()
		logger = logging.New(serviceName, cfg.LogLevel, io.MultiWriter(os.Stdout, w))
	}
	slog.SetDefault(logger)
	logger.Info("Spouštím dispatcher", "topic", cfg.StreamTopic, "group", cfg.GroupID,
		"workers", cfg.Workers, "model", cfg.ModelPath)

	// 1. Keyed store (Valkey)
	rdb, err := storage.OpenValkey(ctx, cfg.ValkeyAddr)
	if err != nil {
		logger.Error("Kritická chyba: Nelze se připojit k Valkey", "error", err)
		return 1
	}
	defer rdb.Close()
	store := storage.NewKeyedStore(rdb, cfg.KeyedPrefix, cfg.ItemTTL)

	// 2. Model: načte se jednou za život procesu, loader počítá načtení
	load := inference.FileLoader(cfg.ModelPath)
	session := inference.NewSession(func() (inference.Model, error) {
		m.SessionLoads.Inc()
		return load()
	})
	dispatcher := inference.NewDispatcher(store, session, conn, cfg.CommandRetry, m, logger)

	if cfg.ModelPreload {
		if err := dispatcher.Preload(); err != nil {
			logger.Error("Kritická chyba: model nelze načíst", "path", cfg.ModelPath, "error", err)
			return 1
		}
		logger.Info("Model načten", "path", cfg.ModelPath)
	}

	consumer := stream.NewConsumer(stream.ConsumerOptions{
		Brokers:      cfg.KafkaBrokers,
		Topic:        cfg.StreamTopic,
		GroupID:      cfg.GroupID,
		Workers:      cfg.Workers,
		BatchSize:    cfg.BatchSize,
		BatchMaxWait: cfg.BatchMaxWait,
	}, dispatcher, logger)

	// Spojení s brokerem žije déle než consumer, aby rozpracovaná
	// dávka mohla dopublikovat příkazy.
	connCtx, cancelConn := context.WithCancel(context.Background())
	connDone := make(chan struct{})
	go func() {
		defer close(connDone)
		conn.Run(connCtx)
	}()
	defer func() {
		cancelConn()
		<-connDone
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return consumer.Run(gctx) })
	g.Go(func() error {
		ops := statusapi.NewOpsRouter(reg, func(hctx context.Context) error {
			if !conn.Connected() {
				return mqttclient.ErrNotConnected
			}
			return rdb.Ping(hctx).Err()
		})
		return statusapi.Serve(gctx, ":"+cfg.HTTPPort, statusapi.Wrap(ops, logger), logger)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		// cold start nebo jiná fatální chyba: offsety nejsou potvrzené,
		// dávku po restartu dostane jiný proces
		logger.Error("Dispatcher skončil s fatální chybou", "error", err,
			"cold_start", errors.Is(err, inference.ErrColdStart))
		return 1
	}
	logger.Info("Dispatcher ukončen")
	return 0
}
