// telemetry-bridge odebírá telemetrii všech zón, zapisuje ji do TimescaleDB
// a přeposílá ji do streamu pro inference dispatcher.
package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vikerian/climate-loop/internal/bridge"
	"github.com/vikerian/climate-loop/internal/config"
	"github.com/vikerian/climate-loop/internal/logging"
	"github.com/vikerian/climate-loop/internal/metrics"
	"github.com/vikerian/climate-loop/internal/mqttclient"
	"github.com/vikerian/climate-loop/internal/statusapi"
	"github.com/vikerian/climate-loop/internal/storage"
	"github.com/vikerian/climate-loop/internal/stream"
)

const serviceName = "telemetry-bridge"

// flushTimeout: kolik času má zapisovač na doběh fronty při vypínání.
const flushTimeout = 10 * time.Second

func main() {
	cfg, err := config.LoadBridge()
	if err != nil {
		slog.Error("Kritická chyba: neplatná konfigurace", "error", err)
		os.Exit(1)
	}
	logger := logging.New(serviceName, cfg.LogLevel, nil)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := metrics.NewRegistry()
	m := metrics.NewBridge(reg)

	// 1. MQTT klient (logger do MQTT potřebuje klienta)
	conn, err := mqttclient.New(cfg.MQTT, logger)
	if err != nil {
		logger.Error("Kritická chyba: MQTT klient", "error", err)
		os.Exit(1)
	}
	if cfg.LogTopicEnabled {
		w := logging.NewMqttLogWriter(conn.Client(), serviceName, 256)
		defer w.Close()
		logger = logging.New(serviceName, cfg.LogLevel, io.MultiWriter(os.Stdout, w))
	}
	slog.SetDefault(logger)
	logger.Info("Spouštím bridge", "topic", cfg.TelemetryTopic, "queue_size", cfg.QueueSize,
		"queue_policy", cfg.QueuePolicy, "stream_forward", cfg.StreamForward)

	// 2. TimescaleDB
	db, err := storage.OpenTimescale(ctx, cfg.PostgresURL)
	if err != nil {
		logger.Error("Kritická chyba: Nelze se připojit k DB", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	hyper, err := db.EnsureSchema(ctx)
	if err != nil {
		logger.Error("Kritická chyba: schéma tabulky telemetry", "error", err)
		os.Exit(1)
	}
	logger.Info("Schéma připraveno", "hypertable", hyper)

	// 3. Fronta zápisů + volitelný forward do streamu
	queue := bridge.NewWriterQueue(db, bridge.WriterOptions{
		Size:          cfg.QueueSize,
		Policy:        cfg.QueuePolicy,
		BatchSize:     cfg.BatchSize,
		FlushInterval: cfg.FlushInterval,
		Retry:         cfg.WriteRetry,
	}, m, logger)

	var fwd bridge.Forwarder
	if cfg.StreamForward {
		f := stream.NewForwarder(cfg.KafkaBrokers, cfg.StreamTopic, func(n int, err error) {
			if err != nil {
				m.Forwarded.WithLabelValues("error").Add(float64(n))
				logger.Error("Forward do streamu selhal", "messages", n, "error", err)
				return
			}
			m.Forwarded.WithLabelValues("ok").Add(float64(n))
		})
		defer f.Close()
		fwd = f
	}
	handler := bridge.NewHandler(queue, fwd, m, logger)

	// Subscribe jednou; po reconnectu ho conn obnoví sám.
	if err := conn.Subscribe(cfg.TelemetryTopic, cfg.MQTT.QoS, handler.HandleMessage); err != nil {
		logger.Error("Kritická chyba: subscribe", "topic", cfg.TelemetryTopic, "error", err)
		os.Exit(1)
	}

	// 4. Zapisovač běží mimo signálový kontext, aby po Close stihl zapsat zbytek.
	writerCtx, cancelWriter := context.WithCancel(context.Background())
	defer cancelWriter()
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		queue.Run(writerCtx)
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return conn.Run(gctx) })
	g.Go(func() error {
		ops := statusapi.NewOpsRouter(reg, func(hctx context.Context) error {
			if !conn.Connected() {
				return mqttclient.ErrNotConnected
			}
			return db.Ping(hctx)
		})
		return statusapi.Serve(gctx, ":"+cfg.HTTPPort, statusapi.Wrap(ops, logger), logger)
	})
	if err := g.Wait(); err != nil {
		logger.Error("Služba skončila s chybou", "error", err)
	}

	// 5. Pořadí vypínání: odpojeno od brokeru (conn.Run skončil), zavřít
	// frontu, počkat na zapsání zbytku.
	logger.Info("Ukončuji bridge, zapisuji zbytek fronty", "pending", queue.Len())
	queue.Close()
	select {
	case <-writerDone:
	case <-time.After(flushTimeout):
		logger.Warn("Doběh fronty nestihl timeout, zbytek se zahodí", "pending", queue.Len())
		cancelWriter()
		<-writerDone
	}
	logger.Info("Bridge ukončen")
}
