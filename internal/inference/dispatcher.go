package inference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vikerian/climate-loop/internal/backoff"
	"github.com/vikerian/climate-loop/internal/config"
	"github.com/vikerian/climate-loop/internal/metrics"
	"github.com/vikerian/climate-loop/internal/storage"
	"github.com/vikerian/climate-loop/internal/stream"
	"github.com/vikerian/climate-loop/internal/telemetry"
)

// Výchozí hodnoty vstupů modelu, když v záznamu chybí (nebo nejsou čísla).
const (
	DefaultTemperature = 22.0
	DefaultHumidity    = 50.0
	DefaultOccupancy   = 1.0
)

// commandQoS: příkazy chodí vždy at-least-once.
const commandQoS byte = 1

// ItemStore je keyed store pro surové záznamy (storage.KeyedStore).
type ItemStore interface {
	Put(ctx context.Context, item storage.Item, fallback time.Time) error
}

// CommandPublisher odešle příkaz a počká na potvrzení (mqttclient.Conn).
type CommandPublisher interface {
	Publish(ctx context.Context, topic string, qos byte, payload []byte) error
}

// RecordFailure popisuje jeden neúspěšný záznam dávky.
type RecordFailure struct {
	Index     int
	Partition int
	Offset    int64
	Err       error
}

// BatchReport je výsledek zpracování jedné dávky.
type BatchReport struct {
	BatchID   string
	Processed int
	Failures  []RecordFailure
}

// Dispatcher zpracovává dávky ze streamu.
type Dispatcher struct {
	store   ItemStore
	session *Session
	pub     CommandPublisher
	retry   config.Retry
	policy  backoff.Policy
	logger  *slog.Logger
	metrics *metrics.Dispatcher
}

func NewDispatcher(store ItemStore, session *Session, pub CommandPublisher, retry config.Retry, m *metrics.Dispatcher, logger *slog.Logger) *Dispatcher {
	if retry.Attempts < 2 {
		retry.Attempts = 2
	}
	return &Dispatcher{
		store:   store,
		session: session,
		pub:     pub,
		retry:   retry,
		policy:  backoff.New(retry.Min, retry.Max),
		logger:  logger,
		metrics: m,
	}
}

// Preload načte model hned při startu, aby se cold start projevil dřív
// než na první dávce.
func (d *Dispatcher) Preload() error {
	_, err := d.session.Model()
	return err
}

// HandleBatch splňuje stream.BatchHandler. Chyba se vrací jen při cold startu.
func (d *Dispatcher) HandleBatch(ctx context.Context, records []stream.Record) error {
	report, err := d.Process(ctx, records)
	for _, f := range report.Failures {
		d.logger.Warn("Záznam nezpracován", "batch_id", report.BatchID, "index", f.Index,
			"partition", f.Partition, "offset", f.Offset, "error", f.Err)
	}
	d.logger.Info("Dávka zpracována", "batch_id", report.BatchID, "records", len(records),
		"processed", report.Processed, "failed", len(report.Failures))
	return err
}

// Process zpracuje záznamy přesně v pořadí dávky. Chyba jednoho záznamu
// nezastaví ostatní; skončí se jen na ErrColdStart.
func (d *Dispatcher) Process(ctx context.Context, records []stream.Record) (BatchReport, error) {
	start := time.Now()
	defer func() { d.metrics.BatchDuration.Observe(time.Since(start).Seconds()) }()
	d.metrics.Batches.Inc()

	report := BatchReport{BatchID: uuid.NewString()}
	for i, rec := range records {
		err := d.processRecord(ctx, rec)
		if errors.Is(err, ErrColdStart) {
			d.metrics.Records.WithLabelValues("failed").Inc()
			return report, err
		}
		if err != nil {
			d.metrics.Records.WithLabelValues("failed").Inc()
			report.Failures = append(report.Failures, RecordFailure{Index: i, Partition: rec.Partition, Offset: rec.Offset, Err: err})
			continue
		}
		d.metrics.Records.WithLabelValues("ok").Inc()
		report.Processed++
	}
	return report, nil
}

// processRecord:
//
//  1. base64 + JSON -> Item (čísla jako decimal)
//  2. Put do keyed store, vždy a ještě před inferencí
//  3. model přes jednorázovou bariéru
//  4. vstupy s výchozími hodnotami
//  5. predikce
//  6. + 7. příkaz a jeho publikace s opakováním
func (d *Dispatcher) processRecord(ctx context.Context, rec stream.Record) error {
	raw, err := stream.DecodeValue(rec.Value)
	if err != nil {
		return fmt.Errorf("obálka záznamu: %w", err)
	}
	item, err := storage.DecodeItem(raw)
	if err != nil {
		return fmt.Errorf("záznam: %w", err)
	}
	building, okB := item.Text("building")
	zone, okZ := item.Text("zone")
	if !okB || !okZ {
		return storage.ErrMissingKey
	}
	topic := telemetry.CommandTopic(building, zone)
	if _, err := telemetry.ParseTopic(topic); err != nil {
		return err
	}

	var storeErr error
	if err := d.store.Put(ctx, item, rec.Time); err != nil {
		// uložení a řízení jsou nezávislé: příkaz se přesto pošle
		storeErr = fmt.Errorf("uložení záznamu: %w", err)
		d.logger.Error("Put do keyed store selhal", "building", building, "zone", zone, "error", err)
	}

	model, err := d.session.Model()
	if err != nil {
		return err
	}

	out, err := model.Predict(d.features(item, building, zone))
	if err != nil {
		return errors.Join(storeErr, err)
	}

	cmd := telemetry.NewCommand(building, zone, out[0], out[1])
	payload, err := json.Marshal(cmd)
	if err != nil {
		return errors.Join(storeErr, fmt.Errorf("serializace příkazu: %w", err))
	}

	err = backoff.Retry(ctx, d.policy, d.retry.Attempts, func(ctx context.Context) error {
		return d.pub.Publish(ctx, topic, commandQoS, payload)
	})
	if err != nil {
		d.metrics.CommandPublishErrors.Inc()
		return errors.Join(storeErr, fmt.Errorf("publikace příkazu na %s: %w", topic, err))
	}
	d.metrics.CommandsPublished.Inc()
	d.logger.Debug("Příkaz odeslán", "topic", topic, "set_temp", cmd.SetTemp, "fan_speed", cmd.FanSpeed)
	return storeErr
}

// features sestaví vstupní vektor. Chybějící pole dostane výchozí hodnotu;
// nečíselné taky, jen se navíc zaloguje varování.
func (d *Dispatcher) features(item storage.Item, building, zone string) [3]float64 {
	defaults := [3]float64{DefaultTemperature, DefaultHumidity, DefaultOccupancy}
	var x [3]float64
	for i, name := range FeatureNames {
		v, present, err := item.Float(name)
		switch {
		case err != nil:
			d.logger.Warn("Nečíselný vstup, používám výchozí hodnotu", "building", building, "zone", zone,
				"field", name, "default", defaults[i], "error", err)
			x[i] = defaults[i]
		case !present:
			x[i] = defaults[i]
		default:
			x[i] = v
		}
	}
	return x
}
