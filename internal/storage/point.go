// Package storage zapouzdřuje obě úložiště: časové řady v TimescaleDB
// (pgx) a klíčované záznamy ve Valkey (go-redis). Zbytek aplikace neví,
// jak se píše SQL nebo jak vypadají klíče, jen volá metody.
package storage

import (
	"time"

	"github.com/vikerian/climate-loop/internal/telemetry"
)

// Measurement je název měření, pod kterým se body zapisují (= tabulka).
const Measurement = "telemetry"

// Point je jeden bod časové řady. Tagy: building, zone. Pole: temperature,
// humidity, occupancy. Time je čas PŘÍJMU na bridge (ns), ne čas vzniku odečtu.
type Point struct {
	Building    string
	Zone        string
	Temperature float64
	Humidity    float64
	Occupancy   int
	Time        time.Time
}

// NewPoint převede zvalidovaný odečet na bod s časem příjmu.
func NewPoint(r telemetry.Reading, received time.Time) Point {
	return Point{
		Building:    r.Building,
		Zone:        r.Zone,
		Temperature: r.Temperature,
		Humidity:    r.Humidity,
		Occupancy:   r.Occupancy,
		Time:        received,
	}
}

// Tags vrací indexované (tag) hodnoty bodu.
func (p Point) Tags() map[string]string {
	return map[string]string{"building": p.Building, "zone": p.Zone}
}

// Fields vrací naměřené hodnoty bodu.
func (p Point) Fields() map[string]any {
	return map[string]any{
		"temperature": p.Temperature,
		"humidity":    p.Humidity,
		"occupancy":   p.Occupancy,
	}
}

// HistoryPoint je bod grafu pro status API.
// Krátké klíče šetří přenos, bodů bývají tisíce.
type HistoryPoint struct {
	Time        time.Time `json:"t"`
	Temperature float64   `json:"temp"`
	Humidity    float64   `json:"hum"`
	Occupancy   int       `json:"occ"`
}
