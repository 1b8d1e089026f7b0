// Package statusapi je HTTP vrstva nad oběma úložišti: seznam zón s
// posledním záznamem (Valkey) a historie zóny (TimescaleDB). Navíc
// obsahuje /health a /metrics router, který používají všechny služby.
package statusapi

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/vikerian/climate-loop/internal/storage"
)

// ErrBadRange: parametr range není kladná Go duration.
var ErrBadRange = errors.New("neplatný rozsah")

// MaxRange omezuje, kolik historie jde vytáhnout jedním dotazem.
const MaxRange = 31 * 24 * time.Hour

// ZoneSource je katalog známých zón (storage.ZoneCatalog).
type ZoneSource interface {
	All() []storage.ZoneRef
}

// LatestSource vrací poslední záznam každé zóny (storage.KeyedStore).
type LatestSource interface {
	LatestAll(ctx context.Context) (map[storage.ZoneRef]json.RawMessage, error)
}

// HistorySource vrací body grafu (storage.Timescale).
type HistorySource interface {
	ZoneHistory(ctx context.Context, building, zone string, from time.Time) ([]storage.HistoryPoint, error)
}

// ZoneDTO je jedna zóna pro frontend.
//
// Hodnoty jsou pointery: zóna z katalogu nemusí mít ještě žádný záznam
// (nebo záznam expiroval) a 0.0 by vypadalo jako skutečné měření.
type ZoneDTO struct {
	Building    string          `json:"building"`
	Zone        string          `json:"zone"`
	Temperature *float64        `json:"temperature"`
	Humidity    *float64        `json:"humidity"`
	Occupancy   *float64        `json:"occupancy"`
	Latest      json.RawMessage `json:"latest"`
}

// Service skládá data z obou úložišť.
type Service struct {
	zones   ZoneSource
	latest  LatestSource
	history HistorySource
	now     func() time.Time
}

func NewService(zones ZoneSource, latest LatestSource, history HistorySource) *Service {
	return &Service{zones: zones, latest: latest, history: history, now: time.Now}
}

// Zones vrací sjednocení zón z katalogu a zón, které mají poslední záznam,
// seřazené podle budovy a zóny.
func (s *Service) Zones(ctx context.Context) ([]ZoneDTO, error) {
	latest, err := s.latest.LatestAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("poslední záznamy: %w", err)
	}

	seen := make(map[storage.ZoneRef]bool)
	var refs []storage.ZoneRef
	for _, ref := range s.zones.All() {
		if !seen[ref] {
			seen[ref] = true
			refs = append(refs, ref)
		}
	}
	for ref := range latest {
		if !seen[ref] {
			seen[ref] = true
			refs = append(refs, ref)
		}
	}
	slices.SortFunc(refs, func(a, b storage.ZoneRef) int {
		return cmp.Or(cmp.Compare(a.Building, b.Building), cmp.Compare(a.Zone, b.Zone))
	})

	out := make([]ZoneDTO, 0, len(refs))
	for _, ref := range refs {
		dto := ZoneDTO{Building: ref.Building, Zone: ref.Zone}
		if raw, ok := latest[ref]; ok {
			dto.Latest = raw
			fillValues(&dto, raw)
		}
		out = append(out, dto)
	}
	return out, nil
}

// fillValues vytáhne z posledního záznamu čísla, která se podaří přečíst.
func fillValues(dto *ZoneDTO, raw json.RawMessage) {
	item, err := storage.DecodeItem(raw)
	if err != nil {
		return
	}
	for _, f := range []struct {
		key string
		dst **float64
	}{
		{"temperature", &dto.Temperature},
		{"humidity", &dto.Humidity},
		{"occupancy", &dto.Occupancy},
	} {
		if v, present, err := item.Float(f.key); present && err == nil {
			*f.dst = &v
		}
	}
}

// History vrací body zóny za posledních rangeStr (např. "1h", "24h").
func (s *Service) History(ctx context.Context, building, zone, rangeStr string) ([]storage.HistoryPoint, error) {
	dur, err := time.ParseDuration(rangeStr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadRange, err)
	}
	if dur <= 0 || dur > MaxRange {
		return nil, fmt.Errorf("%w: %s mimo (0, %s]", ErrBadRange, dur, MaxRange)
	}
	points, err := s.history.ZoneHistory(ctx, building, zone, s.now().UTC().Add(-dur))
	if err != nil {
		return nil, err
	}
	if points == nil {
		points = []storage.HistoryPoint{}
	}
	return points, nil
}
