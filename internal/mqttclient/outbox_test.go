package mqttclient

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vikerian/climate-loop/internal/backoff"
)

type fakeSender struct {
	mu        sync.Mutex
	up        chan struct{}
	failNext  int
	attempts  map[string]int
	published []string
}

func newFakeSender(connected bool) *fakeSender {
	f := &fakeSender{up: make(chan struct{}), attempts: make(map[string]int)}
	if connected {
		close(f.up)
	}
	return f
}

func (f *fakeSender) connect() { close(f.up) }

func (f *fakeSender) WaitConnected(ctx context.Context) error {
	f.mu.Lock()
	up := f.up
	f.mu.Unlock()
	select {
	case <-up:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeSender) Publish(_ context.Context, topic string, _ byte, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts[string(payload)]++
	if f.failNext > 0 {
		f.failNext--
		return errors.New("no puback")
	}
	f.published = append(f.published, string(payload))
	return nil
}

func (f *fakeSender) snapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.published...)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fastPolicy() backoff.Policy {
	return backoff.Policy{Min: time.Millisecond, Max: 2 * time.Millisecond, Multiplier: 2}
}

func msg(p string) Message {
	return Message{Topic: "building/b1/zone/z/telemetry", QoS: 1, Payload: []byte(p)}
}

func runOutbox(t *testing.T, o *Outbox) (stop func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = o.Run(ctx)
	}()
	return func() {
		cancel()
		<-done
	}
}

func TestOutboxRetriesHeadBeforeLaterMessages(t *testing.T) {
	sender := newFakeSender(true)
	sender.failNext = 2
	o := NewOutbox(sender, fastPolicy(), 0, 0, quietLogger())

	o.Enqueue(msg("a"))
	o.Enqueue(msg("b"))
	o.Enqueue(msg("c"))

	stop := runOutbox(t, o)
	defer stop()

	require.Eventually(t, func() bool { return len(sender.snapshot()) == 3 }, time.Second, time.Millisecond)
	assert.Equal(t, []string{"a", "b", "c"}, sender.snapshot())
	sender.mu.Lock()
	assert.Equal(t, 3, sender.attempts["a"])
	assert.Equal(t, 1, sender.attempts["b"])
	sender.mu.Unlock()
	assert.Equal(t, 0, o.Depth())
}

func TestOutboxBuffersWhileDisconnected(t *testing.T) {
	sender := newFakeSender(false)
	o := NewOutbox(sender, fastPolicy(), 0, 3, quietLogger())
	stop := runOutbox(t, o)
	defer stop()

	for _, p := range []string{"1", "2", "3", "4", "5"} {
		o.Enqueue(msg(p))
	}
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 5, o.Depth())
	assert.Empty(t, sender.snapshot())

	sender.connect()
	require.Eventually(t, func() bool { return o.Depth() == 0 }, time.Second, time.Millisecond)
	assert.Equal(t, []string{"1", "2", "3", "4", "5"}, sender.snapshot())
}

func TestOutboxLimitDropsOldest(t *testing.T) {
	sender := newFakeSender(true)
	o := NewOutbox(sender, fastPolicy(), 3, 0, quietLogger())

	for _, p := range []string{"1", "2", "3", "4", "5"} {
		o.Enqueue(msg(p))
	}
	assert.Equal(t, 3, o.Depth())
	assert.Equal(t, uint64(2), o.Dropped())

	sent := o.Drain(context.Background())
	assert.Equal(t, 3, sent)
	assert.Equal(t, []string{"3", "4", "5"}, sender.snapshot())
}

func TestOutboxDrainStopsAtFirstFailure(t *testing.T) {
	sender := newFakeSender(true)
	sender.failNext = 1
	o := NewOutbox(sender, fastPolicy(), 0, 0, quietLogger())
	o.Enqueue(msg("a"))
	o.Enqueue(msg("b"))

	assert.Equal(t, 0, o.Drain(context.Background()))
	assert.Equal(t, 2, o.Depth())
}

func TestOutboxManyMessagesKeepOrder(t *testing.T) {
	sender := newFakeSender(true)
	o := NewOutbox(sender, fastPolicy(), 0, 0, quietLogger())
	stop := runOutbox(t, o)
	defer stop()

	var want []string
	for i := 0; i < 500; i++ {
		p := string(rune('a'+i%26)) + time.Duration(i).String()
		want = append(want, p)
		o.Enqueue(msg(p))
	}
	require.Eventually(t, func() bool { return len(sender.snapshot()) == len(want) }, 2*time.Second, time.Millisecond)
	assert.Equal(t, want, sender.snapshot())
}
