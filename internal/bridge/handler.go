package bridge

import (
	"context"
	"log/slog"
	"time"

	"github.com/vikerian/climate-loop/internal/metrics"
	"github.com/vikerian/climate-loop/internal/storage"
	"github.com/vikerian/climate-loop/internal/telemetry"
)

// Forwarder přeposílá validní odečty do streamu pro dispatcher (stream.Forwarder).
type Forwarder interface {
	Forward(ctx context.Context, key string, value []byte) error
}

// Handler zpracuje jednu telemetrickou zprávu z MQTT.
type Handler struct {
	queue   *WriterQueue
	fwd     Forwarder
	now     func() time.Time
	logger  *slog.Logger
	metrics *metrics.Bridge
}

// NewHandler; fwd může být nil (přeposílání vypnuté).
func NewHandler(queue *WriterQueue, fwd Forwarder, m *metrics.Bridge, logger *slog.Logger) *Handler {
	return &Handler{queue: queue, fwd: fwd, now: time.Now, logger: logger, metrics: m}
}

// HandleMessage je MQTT handler pro telemetry wildcard.
//
// KROK 1: parsování a validace (topic i payload). Chybná zpráva se zaloguje
// a zahodí, subscription běží dál.
// KROK 2: bod s časem příjmu do fronty zápisů.
// KROK 3: přeposlání původního JSONu do streamu (nezávisle na zápisu).
func (h *Handler) HandleMessage(topic string, payload []byte) {
	received := h.now()

	reading, err := telemetry.ParseTelemetryMessage(topic, payload)
	if err != nil {
		h.metrics.Messages.WithLabelValues("rejected").Inc()
		h.logger.Warn("Zpráva odmítnuta", "topic", topic, "důvod", err)
		return
	}
	h.metrics.Messages.WithLabelValues("accepted").Inc()

	if err := h.queue.Push(storage.NewPoint(reading, received)); err != nil {
		h.logger.Error("Bod nelze zařadit k zápisu", "topic", topic, "error", err)
	}

	if h.fwd == nil {
		return
	}
	key := reading.Building + "/" + reading.Zone
	if err := h.fwd.Forward(context.Background(), key, payload); err != nil {
		h.metrics.Forwarded.WithLabelValues("error").Inc()
		h.logger.Error("Přeposlání do streamu selhalo", "key", key, "error", err)
		return
	}
	h.logger.Debug("Zpráva zpracována", "topic", topic)
}
