// Package mqttclient obaluje paho klienta: vlastní reconnect s
// exponenciálním backoffem a jitterem, obnovení subscriptions po každém
// připojení a offline frontu (Outbox) pro publikace během výpadku.
package mqttclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/vikerian/climate-loop/internal/backoff"
	"github.com/vikerian/climate-loop/internal/config"
)

// ErrNotConnected vrací Publish, když spojení s brokerem zrovna neexistuje.
var ErrNotConnected = errors.New("mqtt: není připojeno")

// Handler zpracuje jednu doručenou zprávu. Volá ho doručovací vlákno paho.
type Handler func(topic string, payload []byte)

// pahoClient je podmnožina mqtt.Client, kterou Conn používá.
type pahoClient interface {
	Connect() mqtt.Token
	Disconnect(quiesce uint)
	IsConnectionOpen() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
}

type subscription struct {
	qos     byte
	handler Handler
}

// Conn je spojení s brokerem, které se samo obnovuje.
type Conn struct {
	cfg    config.MQTT
	logger *slog.Logger
	paho   mqtt.Client
	client pahoClient
	policy backoff.Policy

	mu        sync.Mutex
	subs      map[string]subscription
	connected bool
	up        chan struct{} // zavřený, dokud jsme připojeni
	lost      chan struct{}
}

// New připraví spojení, ale ještě se nepřipojuje (viz Run).
func New(cfg config.MQTT, logger *slog.Logger) (*Conn, error) {
	c := newConn(cfg, logger)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	if cfg.TLSEnabled() {
		tlsCfg, err := newTLSConfig(cfg)
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}

	// Reconnect řídíme sami (backoff s jitterem), paho ho má vypnutý.
	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)
	// Persistentní session: broker drží QoS 1 zprávy pro naše subscriptions i během výpadku.
	opts.SetCleanSession(false)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetConnectTimeout(cfg.ConnectTimeout)
	opts.SetWriteTimeout(cfg.OperationTimeout)
	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(c.onConnectionLost)

	c.paho = mqtt.NewClient(opts)
	c.client = c.paho
	return c, nil
}

func newConn(cfg config.MQTT, logger *slog.Logger) *Conn {
	return &Conn{
		cfg:    cfg,
		logger: logger,
		policy: backoff.New(cfg.ReconnectMin, cfg.ReconnectMax),
		subs:   make(map[string]subscription),
		up:     make(chan struct{}),
		lost:   make(chan struct{}, 1),
	}
}

// Client vrací podkladového paho klienta (např. pro MqttLogWriter).
func (c *Conn) Client() mqtt.Client {
	return c.paho
}

// Run udržuje spojení, dokud se nezruší ctx. Při ukončení se odpojí.
func (c *Conn) Run(ctx context.Context) error {
	defer c.client.Disconnect(250)

	attempt := 0
	for {
		if ctx.Err() != nil {
			return nil
		}

		if !c.client.IsConnectionOpen() {
			token := c.client.Connect()
			var err error
			if !token.WaitTimeout(c.cfg.ConnectTimeout) {
				err = fmt.Errorf("timeout po %s", c.cfg.ConnectTimeout)
			} else {
				err = token.Error()
			}
			if err != nil {
				c.logger.Warn("MQTT connect selhal", "broker", c.cfg.Broker, "attempt", attempt+1, "error", err)
				if err := c.policy.Sleep(ctx, attempt); err != nil {
					return nil
				}
				attempt++
				continue
			}
		}

		attempt = 0
		// Čekáme, až spojení spadne, nebo až se služba vypíná.
		select {
		case <-ctx.Done():
			return nil
		case <-c.lost:
		}
	}
}

// WaitConnected blokuje, dokud není spojení otevřené.
func (c *Conn) WaitConnected(ctx context.Context) error {
	c.mu.Lock()
	up := c.up
	c.mu.Unlock()
	select {
	case <-up:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Connected říká, jestli je spojení právě otevřené.
func (c *Conn) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Subscribe zaregistruje handler. Subscription se (znovu) provede při
// každém připojení; pokud jsme připojeni teď, provede se hned.
func (c *Conn) Subscribe(topic string, qos byte, handler Handler) error {
	c.mu.Lock()
	c.subs[topic] = subscription{qos: qos, handler: handler}
	connected := c.connected
	c.mu.Unlock()

	if !connected {
		return nil
	}
	return c.subscribe(topic, subscription{qos: qos, handler: handler})
}

// Publish odešle zprávu a počká na potvrzení (u QoS 1 PUBACK od brokera).
func (c *Conn) Publish(ctx context.Context, topic string, qos byte, payload []byte) error {
	if !c.Connected() {
		return ErrNotConnected
	}
	token := c.client.Publish(topic, qos, false, payload)
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(c.cfg.OperationTimeout):
		return fmt.Errorf("mqtt publish %s: timeout po %s", topic, c.cfg.OperationTimeout)
	}
}

func (c *Conn) subscribe(topic string, sub subscription) error {
	token := c.client.Subscribe(topic, sub.qos, func(_ mqtt.Client, msg mqtt.Message) {
		sub.handler(msg.Topic(), msg.Payload())
	})
	if !token.WaitTimeout(c.cfg.OperationTimeout) {
		return fmt.Errorf("subscribe %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	c.logger.Info("Poslouchám na topicu", "topic", topic, "qos", sub.qos)
	return nil
}

// onConnect volá paho ve vlastní goroutině po každém úspěšném připojení.
func (c *Conn) onConnect(_ mqtt.Client) {
	c.mu.Lock()
	if !c.connected {
		c.connected = true
		close(c.up)
	}
	subs := make(map[string]subscription, len(c.subs))
	for t, s := range c.subs {
		subs[t] = s
	}
	c.mu.Unlock()

	c.logger.Info("Připojeno k MQTT", "broker", c.cfg.Broker)
	for topic, sub := range subs {
		if err := c.subscribe(topic, sub); err != nil {
			c.logger.Error("Obnovení subscription selhalo", "topic", topic, "error", err)
		}
	}
}

func (c *Conn) onConnectionLost(_ mqtt.Client, err error) {
	c.mu.Lock()
	if c.connected {
		c.connected = false
		c.up = make(chan struct{})
	}
	c.mu.Unlock()

	c.logger.Warn("Spojení s MQTT ztraceno", "error", err)
	select {
	case c.lost <- struct{}{}:
	default:
	}
}
