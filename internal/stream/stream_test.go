package stream

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	mu        sync.Mutex
	pending   []kafka.Message
	committed []int64
	closed    bool
}

func (f *fakeFetcher) FetchMessage(ctx context.Context) (kafka.Message, error) {
	f.mu.Lock()
	if len(f.pending) > 0 {
		m := f.pending[0]
		f.pending = f.pending[1:]
		f.mu.Unlock()
		return m, nil
	}
	f.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (f *fakeFetcher) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range msgs {
		f.committed = append(f.committed, m.Offset)
	}
	return nil
}

func (f *fakeFetcher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeFetcher) commits() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.committed...)
}

type recordingHandler struct {
	mu      sync.Mutex
	batches [][]int64
	fail    error
}

func (h *recordingHandler) HandleBatch(_ context.Context, records []Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	var offs []int64
	for _, r := range records {
		offs = append(offs, r.Offset)
	}
	h.batches = append(h.batches, offs)
	return h.fail
}

func messages(n int) []kafka.Message {
	out := make([]kafka.Message, n)
	for i := range out {
		out[i] = kafka.Message{Partition: 0, Offset: int64(i), Value: EncodeValue([]byte(`{}`))}
	}
	return out
}

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestConsumerBatchesAndCommitsAfterHandling(t *testing.T) {
	f := &fakeFetcher{pending: messages(5)}
	h := &recordingHandler{}
	c := newConsumer([]fetcher{f}, h, ConsumerOptions{Topic: "t", BatchSize: 2, BatchMaxWait: 10 * time.Millisecond}, quiet())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.Eventually(t, func() bool { return len(f.commits()) == 5 }, time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	h.mu.Lock()
	assert.Equal(t, [][]int64{{0, 1}, {2, 3}, {4}}, h.batches)
	h.mu.Unlock()
	assert.Equal(t, []int64{0, 1, 2, 3, 4}, f.commits())
	assert.True(t, f.closed)
}

func TestConsumerStopsWithoutCommitOnFatalError(t *testing.T) {
	f := &fakeFetcher{pending: messages(3)}
	cold := errors.New("model missing")
	h := &recordingHandler{fail: cold}
	c := newConsumer([]fetcher{f}, h, ConsumerOptions{BatchSize: 10, BatchMaxWait: 5 * time.Millisecond}, quiet())

	err := c.Run(context.Background())
	assert.ErrorIs(t, err, cold)
	assert.Empty(t, f.commits())
	assert.True(t, f.closed)
}

func TestConsumerFatalErrorStopsOtherWorkers(t *testing.T) {
	bad := &fakeFetcher{pending: messages(1)}
	idle := &fakeFetcher{}
	h := &recordingHandler{fail: errors.New("fatal")}
	c := newConsumer([]fetcher{bad, idle}, h, ConsumerOptions{BatchSize: 1, BatchMaxWait: time.Millisecond}, quiet())

	done := make(chan error, 1)
	go func() { done <- c.Run(context.Background()) }()
	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop")
	}
	assert.True(t, idle.closed)
}

func TestValueEnvelope(t *testing.T) {
	payload := []byte(`{"building":"b1","zone":"zone-101","temperature":24.0}`)
	got, err := DecodeValue(EncodeValue(payload))
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	_, err = DecodeValue([]byte("%%% not base64"))
	assert.Error(t, err)
}
