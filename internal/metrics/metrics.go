// Package metrics drží Prometheus kolektory jednotlivých procesů.
// Každý proces si je registruje do vlastního registru (NewRegistry), který
// pak vystavuje na GET /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "climate"

// NewRegistry vrací registr s Go runtime a procesními kolektory.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Simulator: metriky publisheru a řadiče zón.
type Simulator struct {
	ReadingsEnqueued prometheus.Counter
	CommandsApplied  *prometheus.CounterVec // result: applied|unknown_zone|rejected
	OutboxDepth      prometheus.Gauge
	OutboxDropped    prometheus.Gauge
	ProcessRSS       prometheus.Gauge
}

func NewSimulator(reg prometheus.Registerer) *Simulator {
	m := &Simulator{
		ReadingsEnqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "simulator",
			Name:      "readings_enqueued_total",
			Help:      "Telemetry readings handed to the outbox.",
		}),
		CommandsApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "simulator",
			Name:      "commands_total",
			Help:      "Inbound commands by outcome.",
		}, []string{"result"}),
		OutboxDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "simulator",
			Name:      "outbox_depth",
			Help:      "Publishes waiting for broker acknowledgement.",
		}),
		OutboxDropped: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "simulator",
			Name:      "outbox_dropped",
			Help:      "Publishes discarded because the outbox limit was reached.",
		}),
		ProcessRSS: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "simulator",
			Name:      "process_rss_bytes",
			Help:      "Resident memory of the simulator process as sampled by gopsutil.",
		}),
	}
	reg.MustRegister(m.ReadingsEnqueued, m.CommandsApplied, m.OutboxDepth, m.OutboxDropped, m.ProcessRSS)
	return m
}

// Bridge: metriky ingestion bridge.
type Bridge struct {
	Messages      *prometheus.CounterVec // result: accepted|rejected
	PointsWritten prometheus.Counter
	WriteErrors   prometheus.Counter
	PointsDropped prometheus.Counter
	QueueDepth    prometheus.Gauge
	Forwarded     *prometheus.CounterVec // result: ok|error
}

func NewBridge(reg prometheus.Registerer) *Bridge {
	m := &Bridge{
		Messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bridge",
			Name:      "messages_total",
			Help:      "Inbound telemetry messages by outcome.",
		}, []string{"result"}),
		PointsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bridge",
			Name:      "points_written_total",
			Help:      "Points durably written to the time-series store.",
		}),
		WriteErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bridge",
			Name:      "write_errors_total",
			Help:      "Failed write attempts against the time-series store.",
		}),
		PointsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bridge",
			Name:      "points_dropped_total",
			Help:      "Points discarded by the queue policy or after exhausting write retries.",
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "bridge",
			Name:      "queue_depth",
			Help:      "Points waiting in the writer queue.",
		}),
		Forwarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bridge",
			Name:      "stream_forward_total",
			Help:      "Readings forwarded to the stream by outcome.",
		}, []string{"result"}),
	}
	reg.MustRegister(m.Messages, m.PointsWritten, m.WriteErrors, m.PointsDropped, m.QueueDepth, m.Forwarded)
	return m
}

// Dispatcher: metriky inference dispatcheru.
type Dispatcher struct {
	Records              *prometheus.CounterVec // result: ok|failed
	Batches              prometheus.Counter
	BatchDuration        prometheus.Histogram
	SessionLoads         prometheus.Counter
	CommandsPublished    prometheus.Counter
	CommandPublishErrors prometheus.Counter
}

func NewDispatcher(reg prometheus.Registerer) *Dispatcher {
	m := &Dispatcher{
		Records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatcher",
			Name:      "records_total",
			Help:      "Stream records processed by outcome.",
		}, []string{"result"}),
		Batches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatcher",
			Name:      "batches_total",
			Help:      "Batches handed to the dispatcher.",
		}),
		BatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "dispatcher",
			Name:      "batch_duration_seconds",
			Help:      "Time spent processing one batch.",
			Buckets:   prometheus.DefBuckets,
		}),
		SessionLoads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatcher",
			Name:      "session_loads_total",
			Help:      "Inference artifact loads (expected to stay at 1).",
		}),
		CommandsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatcher",
			Name:      "commands_published_total",
			Help:      "Commands acknowledged by the broker.",
		}),
		CommandPublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatcher",
			Name:      "command_publish_errors_total",
			Help:      "Commands that failed after all retries.",
		}),
	}
	reg.MustRegister(m.Records, m.Batches, m.BatchDuration, m.SessionLoads, m.CommandsPublished, m.CommandPublishErrors)
	return m
}

// API: metriky status API.
type API struct {
	Requests *prometheus.CounterVec // route, status
	Duration *prometheus.HistogramVec
}

func NewAPI(reg prometheus.Registerer) *API {
	m := &API{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"route", "status"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}
	reg.MustRegister(m.Requests, m.Duration)
	return m
}
