// zone-simulator simuluje zóny jedné budovy: periodicky publikuje jejich
// telemetrii a aplikuje řídicí příkazy, které pro ně přijdou.
package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vikerian/climate-loop/internal/backoff"
	"github.com/vikerian/climate-loop/internal/config"
	"github.com/vikerian/climate-loop/internal/logging"
	"github.com/vikerian/climate-loop/internal/metrics"
	"github.com/vikerian/climate-loop/internal/mqttclient"
	"github.com/vikerian/climate-loop/internal/simulator"
	"github.com/vikerian/climate-loop/internal/statusapi"
	"github.com/vikerian/climate-loop/internal/sysmon"
	"github.com/vikerian/climate-loop/internal/telemetry"
)

const serviceName = "zone-simulator"

func main() {
	// 1. Konfigurace
	cfg, err := config.LoadSimulator()
	if err != nil {
		slog.Error("Kritická chyba: neplatná konfigurace", "error", err)
		os.Exit(1)
	}
	logger := logging.New(serviceName, cfg.LogLevel, nil)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := metrics.NewRegistry()
	m := metrics.NewSimulator(reg)

	// 2. MQTT spojení (zatím bez connectu, ten řídí conn.Run)
	conn, err := mqttclient.New(cfg.MQTT, logger)
	if err != nil {
		logger.Error("Kritická chyba: MQTT klient", "error", err)
		os.Exit(1)
	}

	// 3. Logger i do MQTT (až teď, klient už existuje)
	if cfg.LogTopicEnabled {
		w := logging.NewMqttLogWriter(conn.Client(), serviceName, 256)
		defer w.Close()
		logger = logging.New(serviceName, cfg.LogLevel, io.MultiWriter(os.Stdout, w))
	}
	slog.SetDefault(logger)

	logger.Info("Spouštím simulátor", "building", cfg.BuildingID, "zones", len(cfg.Zones),
		"interval", cfg.Interval, "outbox_limit", cfg.OutboxLimit)
	if cfg.OutboxLimit == 0 {
		logger.Warn("Outbox bez limitu: při dlouhém výpadku brokeru roste paměť bez omezení",
			"warn_depth", cfg.OutboxWarnDepth)
	}

	// 4. Outbox + actor zón
	outbox := mqttclient.NewOutbox(conn, backoff.New(cfg.MQTT.ReconnectMin, cfg.MQTT.ReconnectMax),
		cfg.OutboxLimit, cfg.OutboxWarnDepth, logger)
	actor := simulator.New(cfg.BuildingID, cfg.Zones, cfg.MQTT.QoS, outbox, m, logger)

	// Subscription se obnoví po každém reconnectu (conn.onConnect).
	if err := conn.Subscribe(telemetry.CommandSubscription(cfg.BuildingID), cfg.MQTT.QoS, actor.HandleCommand); err != nil {
		logger.Error("Kritická chyba: subscribe", "error", err)
		os.Exit(1)
	}

	// Spojení běží na vlastním kontextu: při vypínání ho potřebujeme
	// ještě na doběh outboxu.
	connCtx, cancelConn := context.WithCancel(context.Background())
	connDone := make(chan struct{})
	go func() {
		defer close(connDone)
		conn.Run(connCtx)
	}()

	// 5. Smyčky služby
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return outbox.Run(gctx) })
	g.Go(func() error { return actor.Run(gctx, ticks(gctx, cfg.Interval)) })
	g.Go(func() error {
		ops := statusapi.NewOpsRouter(reg, func(context.Context) error {
			if !conn.Connected() {
				return mqttclient.ErrNotConnected
			}
			return nil
		})
		return statusapi.Serve(gctx, ":"+cfg.HTTPPort, statusapi.Wrap(ops, logger), logger)
	})

	sampler, err := sysmon.NewSampler()
	if err != nil {
		logger.Warn("Měření paměti nedostupné", "error", err)
	} else {
		g.Go(func() error {
			sysmon.Watch(gctx, sampler, cfg.MemoryCheckInterval, logger, func(s sysmon.Snapshot) {
				depth := outbox.Depth()
				m.ProcessRSS.Set(float64(s.RSSBytes))
				m.OutboxDepth.Set(float64(depth))
				m.OutboxDropped.Set(float64(outbox.Dropped()))
				if depth > 0 {
					logger.Info("Outbox čeká na broker", "depth", depth, "rss_mb", s.RSSMB())
				}
			})
			return nil
		})
	}

	// 6. Graceful shutdown
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Služba skončila s chybou", "error", err)
	}
	logger.Info("Ukončuji simulátor, odesílám zbytek outboxu", "depth", outbox.Depth())

	drainCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	sent := outbox.Drain(drainCtx)
	cancel()
	if left := outbox.Depth(); left > 0 {
		logger.Warn("Část odečtů se nepodařilo odeslat", "sent", sent, "lost", left)
	}

	cancelConn()
	<-connDone
	logger.Info("Simulátor ukončen")
}

// ticks vrací kanál tiků, první tik přijde hned po startu.
func ticks(ctx context.Context, interval time.Duration) <-chan time.Time {
	out := make(chan time.Time, 1)
	out <- time.Now()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case t := <-ticker.C:
				select {
				case out <- t:
				default:
					// actor nestíhá, tik se sloučí s předchozím
				}
			}
		}
	}()
	return out
}
