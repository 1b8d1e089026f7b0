package mqttclient

import (
	"context"
	"log/slog"
	"sync"

	"github.com/vikerian/climate-loop/internal/backoff"
)

// Sender je to, co Outbox potřebuje od spojení. *Conn ho splňuje.
type Sender interface {
	Publish(ctx context.Context, topic string, qos byte, payload []byte) error
	WaitConnected(ctx context.Context) error
}

// Message je jedna publikace čekající v Outboxu.
type Message struct {
	Topic   string
	QoS     byte
	Payload []byte
}

// Outbox je FIFO fronta publikací. Jedna odesílací goroutina (Run) bere
// zprávy popořadě; zpráva opouští frontu až po potvrzení od brokera,
// takže pořadí v rámci procesu se zachová i přes výpadky spojení.
//
// limit 0 = neomezená fronta. Při limit > 0 se při přetečení zahodí nejstarší zpráva.
type Outbox struct {
	sender    Sender
	logger    *slog.Logger
	policy    backoff.Policy
	limit     int
	warnDepth int

	mu      sync.Mutex
	queue   []entry
	head    int
	seq     uint64
	dropped uint64
	warned  bool
	notify  chan struct{}
}

type entry struct {
	seq uint64
	msg Message
}

// NewOutbox vytvoří frontu nad daným odesílatelem.
func NewOutbox(sender Sender, policy backoff.Policy, limit, warnDepth int, logger *slog.Logger) *Outbox {
	return &Outbox{
		sender:    sender,
		logger:    logger,
		policy:    policy,
		limit:     limit,
		warnDepth: warnDepth,
		notify:    make(chan struct{}, 1),
	}
}

// Enqueue přidá zprávu na konec fronty. Nikdy neblokuje.
func (o *Outbox) Enqueue(msg Message) {
	o.mu.Lock()
	if o.limit > 0 && o.depthLocked() >= o.limit {
		o.advanceLocked()
		o.dropped++
		if o.dropped == 1 || o.dropped%100 == 0 {
			o.logger.Warn("Outbox plný, zahazuji nejstarší zprávu", "limit", o.limit, "dropped_total", o.dropped)
		}
	}
	o.seq++
	o.queue = append(o.queue, entry{seq: o.seq, msg: msg})
	depth := o.depthLocked()
	if o.warnDepth > 0 {
		if depth >= o.warnDepth && !o.warned {
			o.warned = true
			o.logger.Warn("Outbox roste, broker je zřejmě nedostupný", "depth", depth)
		} else if depth < o.warnDepth/2 {
			o.warned = false
		}
	}
	o.mu.Unlock()

	select {
	case o.notify <- struct{}{}:
	default:
	}
}

// Depth vrací počet zpráv čekajících na potvrzení.
func (o *Outbox) Depth() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.depthLocked()
}

// Dropped vrací počet zpráv zahozených kvůli limitu.
func (o *Outbox) Dropped() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.dropped
}

// Run odesílá zprávy, dokud se nezruší ctx.
// Neúspěšná publikace zůstává na čele fronty a zkusí se znovu.
func (o *Outbox) Run(ctx context.Context) error {
	attempt := 0
	for {
		e, ok := o.peek()
		if !ok {
			select {
			case <-ctx.Done():
				return nil
			case <-o.notify:
				continue
			}
		}

		if err := o.sender.WaitConnected(ctx); err != nil {
			return nil
		}
		if err := o.sender.Publish(ctx, e.msg.Topic, e.msg.QoS, e.msg.Payload); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			o.logger.Warn("Publikace nepotvrzena, zpráva zůstává ve frontě", "topic", e.msg.Topic, "attempt", attempt+1, "error", err)
			if o.policy.Sleep(ctx, attempt) != nil {
				return nil
			}
			attempt++
			continue
		}
		attempt = 0
		o.pop(e.seq)
	}
}

// Drain se při vypínání pokusí odeslat zbytek fronty.
// Skončí u první chyby nebo po vypršení ctx; volat až po skončení Run.
func (o *Outbox) Drain(ctx context.Context) int {
	sent := 0
	for {
		e, ok := o.peek()
		if !ok {
			return sent
		}
		if err := o.sender.Publish(ctx, e.msg.Topic, e.msg.QoS, e.msg.Payload); err != nil {
			o.logger.Warn("Outbox při ukončení neodeslán celý", "remaining", o.Depth(), "error", err)
			return sent
		}
		o.pop(e.seq)
		sent++
	}
}

func (o *Outbox) depthLocked() int {
	return len(o.queue) - o.head
}

func (o *Outbox) peek() (entry, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.depthLocked() == 0 {
		return entry{}, false
	}
	return o.queue[o.head], true
}

// pop odstraní čelo fronty, ale jen pokud je to pořád zpráva seq.
// Mezitím ji mohl vytlačit limit a čelo už je jiná, neodeslaná zpráva.
func (o *Outbox) pop(seq uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.depthLocked() == 0 || o.queue[o.head].seq != seq {
		return
	}
	o.advanceLocked()
}

func (o *Outbox) advanceLocked() {
	o.queue[o.head] = entry{}
	o.head++
	// občas zkompaktovat, ať pole neroste donekonečna
	if o.head > 64 && o.head*2 >= len(o.queue) {
		n := copy(o.queue, o.queue[o.head:])
		o.queue = o.queue[:n]
		o.head = 0
	}
}
