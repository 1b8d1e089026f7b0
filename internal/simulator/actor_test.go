package simulator

import (
	"context"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vikerian/climate-loop/internal/config"
	"github.com/vikerian/climate-loop/internal/metrics"
	"github.com/vikerian/climate-loop/internal/mqttclient"
	"github.com/vikerian/climate-loop/internal/telemetry"
)

type memorySink struct {
	mu   sync.Mutex
	msgs []mqttclient.Message
}

func (s *memorySink) Enqueue(msg mqttclient.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg)
}

func (s *memorySink) all() []mqttclient.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]mqttclient.Message(nil), s.msgs...)
}

var seeds = []config.ZoneSeed{
	{ID: "zone-101", Temperature: 21.0, Humidity: 45},
	{ID: "zone-102", Temperature: 23.5, Humidity: 50},
	{ID: "zone-103", Temperature: 19.8, Humidity: 40},
}

type harness struct {
	actor *Actor
	sink  *memorySink
	m     *metrics.Simulator
	ticks chan time.Time
	stop  func()
}

func startActor(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		sink:  &memorySink{},
		m:     metrics.NewSimulator(prometheus.NewRegistry()),
		ticks: make(chan time.Time),
	}
	h.actor = New("b1", seeds, 1, h.sink, h.m, slog.New(slog.NewTextHandler(io.Discard, nil)),
		WithRand(rand.New(rand.NewPCG(1, 2))),
		WithClock(func() time.Time { return time.Unix(1700000000, 0) }),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = h.actor.Run(ctx, h.ticks)
	}()
	h.stop = func() {
		cancel()
		<-done
	}
	t.Cleanup(h.stop)
	return h
}

func (h *harness) snapshot(t *testing.T) []ZoneState {
	t.Helper()
	zones, err := h.actor.Snapshot(context.Background())
	require.NoError(t, err)
	return zones
}

func commandPayload(zone string, setTemp float64, fan string) (string, []byte) {
	topic := telemetry.CommandTopic("b1", zone)
	cmd := []byte(`{"building":"b1","zone_id":"` + zone + `","set_temp":` +
		formatFloat(setTemp) + `,"fan_speed":"` + fan + `"}`)
	return topic, cmd
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func TestTickPublishesOneReadingPerZoneInOrder(t *testing.T) {
	h := startActor(t)
	h.ticks <- time.Now()
	_ = h.snapshot(t) // bariéra: tik je zpracovaný

	msgs := h.sink.all()
	require.Len(t, msgs, 3)
	for i, msg := range msgs {
		zone := seeds[i].ID
		assert.Equal(t, telemetry.TelemetryTopic("b1", zone), msg.Topic)
		assert.Equal(t, byte(1), msg.QoS)

		r, err := telemetry.ParseTelemetryMessage(msg.Topic, msg.Payload)
		require.NoError(t, err)
		assert.Equal(t, "b1", r.Building)
		assert.Equal(t, int64(1700000000), r.Timestamp)
		assert.InDelta(t, seeds[i].Temperature, r.Temperature, 0.2+1e-9)
		assert.InDelta(t, seeds[i].Humidity, r.Humidity, 1.0+1e-9)
		assert.Contains(t, []int{0, 1}, r.Occupancy)
		assert.Equal(t, r.Temperature, telemetry.Round(r.Temperature, 2))
		assert.Equal(t, r.Humidity, telemetry.Round(r.Humidity, 1))
	}
	assert.Equal(t, 3.0, testutil.ToFloat64(h.m.ReadingsEnqueued))
}

func TestCommandIsIdempotent(t *testing.T) {
	h := startActor(t)
	topic, payload := commandPayload("zone-102", 22.5, "medium")

	h.actor.HandleCommand(topic, payload)
	once := h.snapshot(t)
	h.actor.HandleCommand(topic, payload)
	twice := h.snapshot(t)

	assert.Equal(t, once, twice)
	assert.Equal(t, 22.5, twice[1].Temperature)
	assert.Equal(t, telemetry.FanMedium, twice[1].FanSpeed)
	// ostatní zóny beze změny
	assert.Equal(t, 21.0, twice[0].Temperature)
	assert.Equal(t, 19.8, twice[2].Temperature)
}

func TestCommandForUnknownZoneIsNoOp(t *testing.T) {
	h := startActor(t)
	before := h.snapshot(t)

	topic, payload := commandPayload("zone-999", 30, "high")
	h.actor.HandleCommand(topic, payload)

	assert.Equal(t, before, h.snapshot(t))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.m.CommandsApplied.WithLabelValues("unknown_zone")))
}

func TestInvalidCommandIsRejected(t *testing.T) {
	h := startActor(t)
	before := h.snapshot(t)

	// zone_id neodpovídá topicu
	h.actor.HandleCommand(telemetry.CommandTopic("b1", "zone-101"),
		[]byte(`{"building":"b1","zone_id":"zone-102","set_temp":25,"fan_speed":"low"}`))
	h.actor.HandleCommand(telemetry.CommandTopic("b1", "zone-101"), []byte(`not json`))

	assert.Equal(t, before, h.snapshot(t))
	assert.Equal(t, 2.0, testutil.ToFloat64(h.m.CommandsApplied.WithLabelValues("rejected")))
}

func TestTicksAndCommandsAreSerialized(t *testing.T) {
	h := startActor(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			topic, payload := commandPayload("zone-101", 23.0, "low")
			for j := 0; j < 50; j++ {
				h.actor.HandleCommand(topic, payload)
			}
		}()
	}
	for i := 0; i < 20; i++ {
		h.ticks <- time.Now()
	}
	wg.Wait()

	zones := h.snapshot(t)
	assert.Len(t, h.sink.all(), 60)
	assert.Equal(t, 400.0, testutil.ToFloat64(h.m.CommandsApplied.WithLabelValues("applied")))
	for _, z := range zones {
		assert.False(t, math.IsNaN(z.Temperature))
	}
}

func TestSnapshotAfterStop(t *testing.T) {
	h := startActor(t)
	h.stop()
	_, err := h.actor.Snapshot(context.Background())
	assert.ErrorIs(t, err, ErrStopped)
}
