package telemetry

import (
	"encoding/json"
	"errors"
	"fmt"
)

// rawReading: pointery rozliší "pole chybí" od "pole je nula".
type rawReading struct {
	Building    *string  `json:"building"`
	Zone        *string  `json:"zone"`
	Temperature *float64 `json:"temperature"`
	Humidity    *float64 `json:"humidity"`
	Occupancy   *float64 `json:"occupancy"`
	Timestamp   *int64   `json:"ts"`
}

// ParseReading rozparsuje JSON telemetrie.
//
// Povinné: building, zone, temperature, humidity. Chybějící occupancy je 0,
// chybějící ts je 0. Occupancy musí být 0 nebo 1.
func ParseReading(payload []byte) (Reading, error) {
	var raw rawReading
	if err := decodeStrict(payload, &raw); err != nil {
		return Reading{}, err
	}

	switch {
	case raw.Building == nil || *raw.Building == "":
		return Reading{}, fmt.Errorf("%w: building", ErrMissingField)
	case raw.Zone == nil || *raw.Zone == "":
		return Reading{}, fmt.Errorf("%w: zone", ErrMissingField)
	case raw.Temperature == nil:
		return Reading{}, fmt.Errorf("%w: temperature", ErrMissingField)
	case raw.Humidity == nil:
		return Reading{}, fmt.Errorf("%w: humidity", ErrMissingField)
	}
	if !validID(*raw.Building) {
		return Reading{}, fmt.Errorf("%w: building %q", ErrInvalidField, *raw.Building)
	}
	if !validID(*raw.Zone) {
		return Reading{}, fmt.Errorf("%w: zone %q", ErrInvalidField, *raw.Zone)
	}

	r := Reading{
		Building:    *raw.Building,
		Zone:        *raw.Zone,
		Temperature: *raw.Temperature,
		Humidity:    *raw.Humidity,
	}
	if raw.Occupancy != nil {
		switch *raw.Occupancy {
		case 0:
			r.Occupancy = 0
		case 1:
			r.Occupancy = 1
		default:
			return Reading{}, fmt.Errorf("%w: occupancy %v (povoleno 0|1)", ErrInvalidField, *raw.Occupancy)
		}
	}
	if raw.Timestamp != nil {
		r.Timestamp = *raw.Timestamp
	}
	return r, nil
}

// ParseTelemetryMessage ověří topic i payload a zkontroluje, že se shodují
// budova a zóna.
func ParseTelemetryMessage(topic string, payload []byte) (Reading, error) {
	t, err := ParseTopic(topic)
	if err != nil {
		return Reading{}, err
	}
	if t.Kind != KindTelemetry {
		return Reading{}, fmt.Errorf("%w: očekávám telemetry, je %q", ErrInvalidTopic, t.Kind)
	}
	r, err := ParseReading(payload)
	if err != nil {
		return Reading{}, err
	}
	if r.Building != t.Building || r.Zone != t.Zone {
		return Reading{}, fmt.Errorf("%w: topic %s/%s, payload %s/%s", ErrTopicMismatch, t.Building, t.Zone, r.Building, r.Zone)
	}
	return r, nil
}

type rawCommand struct {
	Building *string   `json:"building"`
	ZoneID   *string   `json:"zone_id"`
	SetTemp  *float64  `json:"set_temp"`
	FanSpeed *FanSpeed `json:"fan_speed"`
}

// ParseCommand rozparsuje JSON příkazu. Všechna čtyři pole jsou povinná.
func ParseCommand(payload []byte) (Command, error) {
	var raw rawCommand
	if err := decodeStrict(payload, &raw); err != nil {
		return Command{}, err
	}
	switch {
	case raw.Building == nil || *raw.Building == "":
		return Command{}, fmt.Errorf("%w: building", ErrMissingField)
	case raw.ZoneID == nil || *raw.ZoneID == "":
		return Command{}, fmt.Errorf("%w: zone_id", ErrMissingField)
	case raw.SetTemp == nil:
		return Command{}, fmt.Errorf("%w: set_temp", ErrMissingField)
	case raw.FanSpeed == nil:
		return Command{}, fmt.Errorf("%w: fan_speed", ErrMissingField)
	}
	if !raw.FanSpeed.Valid() {
		return Command{}, fmt.Errorf("%w: %q", ErrUnknownFanSpeed, *raw.FanSpeed)
	}
	return Command{
		Building: *raw.Building,
		ZoneID:   *raw.ZoneID,
		SetTemp:  *raw.SetTemp,
		FanSpeed: *raw.FanSpeed,
	}, nil
}

// ParseCommandMessage ověří topic příkazu a shodu s payloadem.
func ParseCommandMessage(topic string, payload []byte) (Command, error) {
	t, err := ParseTopic(topic)
	if err != nil {
		return Command{}, err
	}
	if t.Kind != KindCommand {
		return Command{}, fmt.Errorf("%w: očekávám command, je %q", ErrInvalidTopic, t.Kind)
	}
	c, err := ParseCommand(payload)
	if err != nil {
		return Command{}, err
	}
	if c.Building != t.Building || c.ZoneID != t.Zone {
		return Command{}, fmt.Errorf("%w: topic %s/%s, payload %s/%s", ErrTopicMismatch, t.Building, t.Zone, c.Building, c.ZoneID)
	}
	return c, nil
}

// decodeStrict rozliší syntaktickou chybu JSONu od špatného typu pole.
func decodeStrict(payload []byte, v any) error {
	if err := json.Unmarshal(payload, v); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return fmt.Errorf("%w: %s: %v", ErrInvalidField, typeErr.Field, err)
		}
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return nil
}
