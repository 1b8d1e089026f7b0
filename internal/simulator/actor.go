package simulator

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/vikerian/climate-loop/internal/config"
	"github.com/vikerian/climate-loop/internal/metrics"
	"github.com/vikerian/climate-loop/internal/mqttclient"
	"github.com/vikerian/climate-loop/internal/telemetry"
)

// ErrStopped vrací Snapshot, když actor už neběží.
var ErrStopped = errors.New("simulator: actor neběží")

// Sink přijímá publikace k odeslání; v produkci je to mqttclient.Outbox.
type Sink interface {
	Enqueue(msg mqttclient.Message)
}

// Actor vlastní stav všech zón jedné budovy.
type Actor struct {
	building string
	qos      byte
	zones    []ZoneState
	sink     Sink
	rnd      *rand.Rand
	now      func() time.Time
	logger   *slog.Logger
	metrics  *metrics.Simulator

	events chan event
	done   chan struct{}
}

// event je příkaz nebo žádost o snímek. Obojí jde jedním kanálem, takže
// snímek vždy vidí všechny dříve doručené příkazy.
type event struct {
	cmd   *telemetry.Command
	reply chan []ZoneState
}

// Option upravuje Actor (hlavně pro testy).
type Option func(*Actor)

// WithRand nastaví zdroj náhody.
func WithRand(rnd *rand.Rand) Option {
	return func(a *Actor) { a.rnd = rnd }
}

// WithClock nastaví zdroj času pro ts.
func WithClock(now func() time.Time) Option {
	return func(a *Actor) { a.now = now }
}

// New vytvoří actora nad počátečními zónami z konfigurace.
func New(building string, seeds []config.ZoneSeed, qos byte, sink Sink, m *metrics.Simulator, logger *slog.Logger, opts ...Option) *Actor {
	a := &Actor{
		building: building,
		qos:      qos,
		zones:    newZones(seeds),
		sink:     sink,
		rnd:      rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		now:      time.Now,
		logger:   logger,
		metrics:  m,
		events:   make(chan event, 64),
		done:     make(chan struct{}),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Run je smyčka actora. Na každý tik z ticks vygeneruje odečty všech zón,
// mezi tiky aplikuje příkazy. Končí zrušením ctx.
func (a *Actor) Run(ctx context.Context, ticks <-chan time.Time) error {
	defer close(a.done)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticks:
			a.tick()
		case ev := <-a.events:
			if ev.cmd != nil {
				a.apply(*ev.cmd)
				continue
			}
			out := make([]ZoneState, len(a.zones))
			copy(out, a.zones)
			ev.reply <- out
		}
	}
}

// HandleCommand je MQTT handler pro command topic. Volá ho doručovací vlákno
// paho; příkaz jen zvaliduje a předá actorovi.
func (a *Actor) HandleCommand(topic string, payload []byte) {
	cmd, err := telemetry.ParseCommandMessage(topic, payload)
	if err != nil {
		a.logger.Warn("Odmítnut neplatný příkaz", "topic", topic, "error", err)
		a.metrics.CommandsApplied.WithLabelValues("rejected").Inc()
		return
	}
	select {
	case a.events <- event{cmd: &cmd}:
	case <-a.done:
	}
}

// Snapshot vrátí kopii stavu zón tak, jak ho vidí actor.
func (a *Actor) Snapshot(ctx context.Context) ([]ZoneState, error) {
	select {
	case <-a.done:
		return nil, ErrStopped
	default:
	}

	reply := make(chan []ZoneState, 1)
	select {
	case a.events <- event{reply: reply}:
	case <-a.done:
		return nil, ErrStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case zones := <-reply:
		return zones, nil
	case <-a.done:
		return nil, ErrStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (a *Actor) tick() {
	ts := a.now().Unix()
	for i := range a.zones {
		reading := a.zones[i].step(a.rnd, a.building, ts)
		payload, err := json.Marshal(reading)
		if err != nil {
			a.logger.Error("Serializace odečtu selhala", "zone", reading.Zone, "error", err)
			continue
		}
		a.sink.Enqueue(mqttclient.Message{
			Topic:   telemetry.TelemetryTopic(a.building, reading.Zone),
			QoS:     a.qos,
			Payload: payload,
		})
		a.metrics.ReadingsEnqueued.Inc()
		a.logger.Debug("Odečet připraven k odeslání", "zone", reading.Zone, "temperature", reading.Temperature, "humidity", reading.Humidity)
	}
}

func (a *Actor) apply(cmd telemetry.Command) {
	if cmd.Building != a.building {
		a.logger.Debug("Příkaz pro cizí budovu ignorován", "building", cmd.Building)
		a.metrics.CommandsApplied.WithLabelValues("unknown_zone").Inc()
		return
	}
	for i := range a.zones {
		if a.zones[i].ZoneID == cmd.ZoneID {
			a.zones[i].apply(cmd)
			a.metrics.CommandsApplied.WithLabelValues("applied").Inc()
			a.logger.Info("Příkaz aplikován", "zone", cmd.ZoneID, "set_temp", cmd.SetTemp, "fan_speed", cmd.FanSpeed)
			return
		}
	}
	a.metrics.CommandsApplied.WithLabelValues("unknown_zone").Inc()
	a.logger.Debug("Příkaz pro neznámou zónu ignorován", "zone", cmd.ZoneID)
}
