// Package bridge je ingestion bridge: validuje telemetrii z MQTT, převádí
// ji na body časové řady a zapisuje je přes jediný zapisovač s omezenou frontou.
package bridge

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/vikerian/climate-loop/internal/backoff"
	"github.com/vikerian/climate-loop/internal/config"
	"github.com/vikerian/climate-loop/internal/metrics"
	"github.com/vikerian/climate-loop/internal/storage"
)

// ErrQueueClosed vrací Push po Close.
var ErrQueueClosed = errors.New("fronta zápisů je uzavřená")

// PointSink je cílové úložiště bodů (storage.Timescale).
type PointSink interface {
	WritePoints(ctx context.Context, points []storage.Point) error
}

// WriterOptions nastavuje frontu.
type WriterOptions struct {
	Size          int
	Policy        config.QueuePolicy
	BatchSize     int
	FlushInterval time.Duration
	Retry         config.Retry
}

// WriterQueue je omezená fronta bodů a jediný zapisovač (Run), který je
// zapisuje v dávkách. Doručovací vlákno MQTT tak nikdy nečeká na DB přímo:
// při politice block čeká jen na volné místo ve frontě, při drop-oldest
// nečeká vůbec a zahodí nejstarší bod.
type WriterQueue struct {
	sink    PointSink
	opts    WriterOptions
	policy  backoff.Policy
	logger  *slog.Logger
	metrics *metrics.Bridge

	ch     chan storage.Point
	stop   chan struct{}
	mu     sync.RWMutex
	closed bool
	once   sync.Once
}

// NewWriterQueue vytvoří frontu; zápisy začnou až s Run.
func NewWriterQueue(sink PointSink, opts WriterOptions, m *metrics.Bridge, logger *slog.Logger) *WriterQueue {
	if opts.Size < 1 {
		opts.Size = 1
	}
	if opts.BatchSize < 1 {
		opts.BatchSize = 1
	}
	if opts.Retry.Attempts < 1 {
		opts.Retry.Attempts = 1
	}
	return &WriterQueue{
		sink:    sink,
		opts:    opts,
		policy:  backoff.New(opts.Retry.Min, opts.Retry.Max),
		logger:  logger,
		metrics: m,
		ch:      make(chan storage.Point, opts.Size),
		stop:    make(chan struct{}),
	}
}

// Push vloží bod do fronty podle politiky.
func (q *WriterQueue) Push(p storage.Point) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}

	if q.opts.Policy == config.QueueDropOldest {
		for {
			select {
			case q.ch <- p:
				q.metrics.QueueDepth.Set(float64(len(q.ch)))
				return nil
			default:
			}
			// plno: vyhodíme nejstarší bod a zkusíme znovu
			select {
			case old := <-q.ch:
				q.metrics.PointsDropped.Inc()
				q.logger.Warn("Fronta zápisů plná, zahazuji nejstarší bod", "building", old.Building, "zone", old.Zone)
			default:
			}
		}
	}

	select {
	case q.ch <- p:
		q.metrics.QueueDepth.Set(float64(len(q.ch)))
		return nil
	case <-q.stop:
		return ErrQueueClosed
	}
}

// Len vrací počet bodů čekajících na zápis.
func (q *WriterQueue) Len() int {
	return len(q.ch)
}

// Close ukončí příjem bodů. Run pak zapíše zbytek fronty a skončí.
func (q *WriterQueue) Close() {
	q.once.Do(func() {
		close(q.stop) // uvolní blokované Push
		q.mu.Lock()
		q.closed = true
		close(q.ch)
		q.mu.Unlock()
	})
}

// Run je smyčka zapisovače. Končí po Close (a vyprázdnění fronty) nebo zrušením ctx.
func (q *WriterQueue) Run(ctx context.Context) error {
	for {
		batch, open := q.collect(ctx)
		if len(batch) > 0 {
			q.flush(ctx, batch)
		}
		if !open {
			return nil
		}
	}
}

// collect počká na první bod a pak sbírá další do BatchSize nebo do FlushInterval.
func (q *WriterQueue) collect(ctx context.Context) ([]storage.Point, bool) {
	var first storage.Point
	select {
	case p, ok := <-q.ch:
		if !ok {
			return nil, false
		}
		first = p
	case <-ctx.Done():
		return nil, false
	}

	batch := make([]storage.Point, 0, q.opts.BatchSize)
	batch = append(batch, first)

	timer := time.NewTimer(q.opts.FlushInterval)
	defer timer.Stop()
	for len(batch) < q.opts.BatchSize {
		select {
		case p, ok := <-q.ch:
			if !ok {
				return batch, false
			}
			batch = append(batch, p)
		case <-timer.C:
			return batch, true
		case <-ctx.Done():
			return batch, false
		}
	}
	return batch, true
}

func (q *WriterQueue) flush(ctx context.Context, batch []storage.Point) {
	q.metrics.QueueDepth.Set(float64(len(q.ch)))

	err := backoff.Retry(ctx, q.policy, q.opts.Retry.Attempts, func(ctx context.Context) error {
		err := q.sink.WritePoints(ctx, batch)
		if err != nil {
			q.metrics.WriteErrors.Inc()
			q.logger.Warn("Zápis do DB selhal, zkusím znovu", "points", len(batch), "error", err)
		}
		return err
	})
	if err != nil {
		q.metrics.PointsDropped.Add(float64(len(batch)))
		q.logger.Error("Body zahozeny po vyčerpání pokusů o zápis", "points", len(batch), "error", err)
		return
	}
	q.metrics.PointsWritten.Add(float64(len(batch)))
	q.logger.Debug("Dávka zapsána", "points", len(batch))
}
