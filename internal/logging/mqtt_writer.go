package logging

import (
	"fmt"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Publisher je podmnožina mqtt.Client, kterou writer potřebuje.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MqttLogWriter implementuje rozhraní io.Writer.
// Vše, co se do něj zapíše, se odešle do MQTT na topic logs/{služba}.
//
// Logování nesmí blokovat aplikaci: Write jen vloží kopii řádku do
// bufferovaného kanálu a odesílá goroutina na pozadí. Když je kanál plný,
// řádek se zahodí (na stdout zůstane).
type MqttLogWriter struct {
	client Publisher
	topic  string
	lines  chan []byte

	mu      sync.Mutex
	closed  bool
	dropped uint64
	done    chan struct{}
}

// NewMqttLogWriter vytvoří writer a spustí odesílací goroutinu.
func NewMqttLogWriter(client Publisher, serviceName string, buffer int) *MqttLogWriter {
	if buffer < 1 {
		buffer = 256
	}
	w := &MqttLogWriter{
		client: client,
		topic:  fmt.Sprintf("logs/%s", serviceName),
		lines:  make(chan []byte, buffer),
		done:   make(chan struct{}),
	}
	go w.run()
	return w
}

// Write je metoda vyžadovaná rozhraním io.Writer.
// slog ji zavolá pokaždé, když chce něco zalogovat.
func (w *MqttLogWriter) Write(p []byte) (int, error) {
	// Payload musíme zkopírovat, protože 'p' slog znovu použije.
	payload := make([]byte, len(p))
	copy(payload, p)

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return len(p), nil
	}
	select {
	case w.lines <- payload:
	default:
		w.dropped++
	}
	return len(p), nil
}

// Dropped vrací počet řádků zahozených kvůli plnému bufferu.
func (w *MqttLogWriter) Dropped() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.dropped
}

// Close ukončí odesílání. Řádky, které už jsou v kanálu, se ještě odešlou.
func (w *MqttLogWriter) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	close(w.lines)
	w.mu.Unlock()
	<-w.done
}

func (w *MqttLogWriter) run() {
	defer close(w.done)
	for line := range w.lines {
		// Token.Wait() NEVOLÁME (fire-and-forget, QoS 0).
		w.client.Publish(w.topic, 0, false, line)
	}
}
