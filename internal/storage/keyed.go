package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Chyby sestavení klíče.
var (
	// ErrMissingKey: záznamu chybí building nebo zone.
	ErrMissingKey = errors.New("záznam nemá building/zone")
	// ErrInvalidKey: building nebo zone obsahuje oddělovač ':'.
	ErrInvalidKey = errors.New("building/zone obsahuje ':'")
)

// redisKV je podmnožina *redis.Client, kterou KeyedStore používá.
type redisKV interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd
}

// KeyedStore ukládá surové záznamy do Valkey. Put je SET (last-write-wins).
//
// Klíče:
//
//	{prefix}:{building}:{zone}:{ts}   celý záznam
//	{prefix}:last:{building}:{zone}   poslední záznam zóny (pro dashboard)
type KeyedStore struct {
	rdb    redisKV
	prefix string
	ttl    time.Duration
}

// NewKeyedStore; ttl 0 = bez expirace.
func NewKeyedStore(rdb redisKV, prefix string, ttl time.Duration) *KeyedStore {
	return &KeyedStore{rdb: rdb, prefix: prefix, ttl: ttl}
}

// OpenValkey vytvoří klienta a ověří ho Pingem.
func OpenValkey(ctx context.Context, addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("Valkey není dostupný: %w", err)
	}
	return rdb, nil
}

// ItemKey sestaví klíč záznamu. Když záznam nemá ts, použije se fallback
// (čas zprávy ve streamu).
func (k *KeyedStore) ItemKey(item Item, fallback time.Time) (string, error) {
	building, okB := item.Text("building")
	zone, okZ := item.Text("zone")
	if !okB || !okZ {
		return "", ErrMissingKey
	}
	if strings.Contains(building, ":") || strings.Contains(zone, ":") {
		return "", fmt.Errorf("%w: %q/%q", ErrInvalidKey, building, zone)
	}
	ts := fallback.Unix()
	if d, present, err := item.Decimal("ts"); err == nil && present {
		ts = d.IntPart()
	}
	return fmt.Sprintf("%s:%s:%s:%d", k.prefix, building, zone, ts), nil
}

func (k *KeyedStore) lastKey(building, zone string) string {
	return fmt.Sprintf("%s:last:%s:%s", k.prefix, building, zone)
}

// Put uloží záznam pod jeho klíč a přepíše "last" klíč zóny.
func (k *KeyedStore) Put(ctx context.Context, item Item, fallback time.Time) error {
	key, err := k.ItemKey(item, fallback)
	if err != nil {
		return err
	}
	doc, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("serializace záznamu: %w", err)
	}

	if err := k.rdb.Set(ctx, key, doc, k.ttl).Err(); err != nil {
		return fmt.Errorf("chyba SET %s: %w", key, err)
	}
	building, _ := item.Text("building")
	zone, _ := item.Text("zone")
	if err := k.rdb.Set(ctx, k.lastKey(building, zone), doc, k.ttl).Err(); err != nil {
		return fmt.Errorf("chyba update last klíče: %w", err)
	}
	return nil
}

// LatestAll projde (SCAN) všechny "last" klíče a vrátí poslední záznam každé zóny.
func (k *KeyedStore) LatestAll(ctx context.Context) (map[ZoneRef]json.RawMessage, error) {
	match := k.prefix + ":last:*"
	var keys []string
	var cursor uint64
	for {
		batch, next, err := k.rdb.Scan(ctx, cursor, match, 100).Result()
		if err != nil {
			return nil, fmt.Errorf("chyba SCAN: %w", err)
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			break
		}
	}

	out := make(map[ZoneRef]json.RawMessage, len(keys))
	prefix := k.prefix + ":last:"
	for _, key := range keys {
		ref, ok := parseLastKey(strings.TrimPrefix(key, prefix))
		if !ok {
			continue
		}
		val, err := k.rdb.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			// klíč mezitím expiroval
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("chyba GET %s: %w", key, err)
		}
		out[ref] = json.RawMessage(val)
	}
	return out, nil
}

func parseLastKey(rest string) (ZoneRef, bool) {
	building, zone, ok := strings.Cut(rest, ":")
	if !ok || building == "" || zone == "" {
		return ZoneRef{}, false
	}
	return ZoneRef{Building: building, Zone: zone}, true
}
