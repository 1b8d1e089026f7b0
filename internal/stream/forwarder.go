package stream

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
)

// Forwarder zapisuje odečty do streamu. Klíč "building/zone" s Hash
// balancerem drží všechny odečty jedné zóny v jedné partition, tedy v pořadí.
type Forwarder struct {
	w *kafka.Writer
}

// NewForwarder vytvoří asynchronní writer; onResult dostane výsledek
// každé odeslané dávky (počet zpráv, chyba).
func NewForwarder(brokers []string, topic string, onResult func(n int, err error)) *Forwarder {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 50 * time.Millisecond,
		Async:        true,
	}
	if onResult != nil {
		w.Completion = func(messages []kafka.Message, err error) {
			onResult(len(messages), err)
		}
	}
	return &Forwarder{w: w}
}

// Forward zařadí odečet k odeslání. Vrací chybu jen při okamžitém selhání
// (např. zavřený writer); chyby doručení jdou do onResult.
func (f *Forwarder) Forward(ctx context.Context, key string, payload []byte) error {
	return f.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: EncodeValue(payload),
		Time:  time.Now(),
	})
}

// Close odešle zbytek a zavře writer.
func (f *Forwarder) Close() error {
	return f.w.Close()
}
