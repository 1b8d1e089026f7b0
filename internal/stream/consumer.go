package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"golang.org/x/sync/errgroup"

	"github.com/vikerian/climate-loop/internal/backoff"
)

// BatchHandler zpracuje dávku záznamů v pořadí streamu. Chyby jednotlivých
// záznamů si řeší sám; vrácená chyba znamená fatální stav (dávka se
// nepotvrdí a consumer skončí).
type BatchHandler interface {
	HandleBatch(ctx context.Context, records []Record) error
}

// fetcher je podmnožina *kafka.Reader, kterou worker používá.
type fetcher interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ConsumerOptions nastavuje consumer group.
type ConsumerOptions struct {
	Brokers      []string
	Topic        string
	GroupID      string
	Workers      int
	BatchSize    int
	BatchMaxWait time.Duration
}

// Consumer je sada workerů v jedné consumer group. Každý worker čte dávku,
// předá ji handleru a teprve pak potvrdí offsety (at-least-once).
type Consumer struct {
	readers []fetcher
	handler BatchHandler
	opts    ConsumerOptions
	retry   backoff.Policy
	logger  *slog.Logger
}

// NewConsumer vytvoří opts.Workers kafka readerů.
func NewConsumer(opts ConsumerOptions, handler BatchHandler, logger *slog.Logger) *Consumer {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	readers := make([]fetcher, 0, opts.Workers)
	for i := 0; i < opts.Workers; i++ {
		readers = append(readers, kafka.NewReader(kafka.ReaderConfig{
			Brokers:     opts.Brokers,
			GroupID:     opts.GroupID,
			GroupTopics: []string{opts.Topic},
			StartOffset: kafka.FirstOffset,
			MinBytes:    1,
			MaxBytes:    10e6,
		}))
	}
	return newConsumer(readers, handler, opts, logger)
}

func newConsumer(readers []fetcher, handler BatchHandler, opts ConsumerOptions, logger *slog.Logger) *Consumer {
	if opts.BatchSize < 1 {
		opts.BatchSize = 1
	}
	return &Consumer{
		readers: readers,
		handler: handler,
		opts:    opts,
		retry:   backoff.New(time.Second, 10*time.Second),
		logger:  logger,
	}
}

// Run spustí všechny workery a čeká na ně. Vrací nil při zrušení ctx,
// jinak první fatální chybu handleru (ostatní workery se tím zastaví).
func (c *Consumer) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for i, r := range c.readers {
		log := c.logger.With("worker", i)
		g.Go(func() error {
			defer func() {
				if err := r.Close(); err != nil {
					log.Error("Chyba při zavírání readeru", "error", err)
				}
			}()
			return c.work(gctx, r, log)
		})
	}
	return g.Wait()
}

func (c *Consumer) work(ctx context.Context, r fetcher, log *slog.Logger) error {
	log.Info("Consumer startuje", "topic", c.opts.Topic, "group", c.opts.GroupID)
	attempt := 0
	for {
		msgs, err := c.fetchBatch(ctx, r)
		if err != nil {
			if ctx.Err() != nil {
				log.Info("Consumer končí, kontext zrušen")
				return nil
			}
			log.Error("Čtení ze streamu selhalo, zkusím znovu", "error", err, "attempt", attempt+1)
			if c.retry.Sleep(ctx, attempt) != nil {
				return nil
			}
			attempt++
			continue
		}
		attempt = 0

		records := make([]Record, len(msgs))
		for i, m := range msgs {
			records[i] = Record{Partition: m.Partition, Offset: m.Offset, Key: m.Key, Value: m.Value, Time: m.Time}
		}
		if err := c.handler.HandleBatch(ctx, records); err != nil {
			log.Error("Fatální chyba při zpracování dávky", "error", err, "records", len(records))
			return fmt.Errorf("dávka neobsloužena: %w", err)
		}
		if err := r.CommitMessages(ctx, msgs...); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			// nepotvrzené záznamy přijdou znovu; handler je na to stavěný
			log.Error("Potvrzení offsetů selhalo", "error", err)
		}
	}
}

// fetchBatch blokuje na první zprávu, pak sbírá další do BatchSize nebo BatchMaxWait.
func (c *Consumer) fetchBatch(ctx context.Context, r fetcher) ([]kafka.Message, error) {
	first, err := r.FetchMessage(ctx)
	if err != nil {
		return nil, err
	}
	msgs := []kafka.Message{first}

	waitCtx, cancel := context.WithTimeout(ctx, c.opts.BatchMaxWait)
	defer cancel()
	for len(msgs) < c.opts.BatchSize {
		m, err := r.FetchMessage(waitCtx)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				break
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			// dávku, kterou máme, zpracujeme; chyba se projeví při dalším fetchi
			break
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}
