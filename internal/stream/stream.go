// Package stream je trvalý, uspořádaný a partitionovaný stream odečtů
// (Kafka přes kafka-go): Forwarder do něj zapisuje z bridge, Consumer z něj
// čte dávky pro inference dispatcher.
package stream

import (
	"encoding/base64"
	"fmt"
	"time"
)

// Record je jeden záznam streamu předaný dispatcheru.
type Record struct {
	Partition int
	Offset    int64
	Key       []byte
	// Value je obálka záznamu: base64 původního JSON odečtu.
	Value []byte
	Time  time.Time
}

// EncodeValue zabalí JSON odečet do obálky záznamu.
func EncodeValue(payload []byte) []byte {
	out := make([]byte, base64.StdEncoding.EncodedLen(len(payload)))
	base64.StdEncoding.Encode(out, payload)
	return out
}

// DecodeValue rozbalí obálku záznamu zpět na JSON.
func DecodeValue(value []byte) ([]byte, error) {
	out := make([]byte, base64.StdEncoding.DecodedLen(len(value)))
	n, err := base64.StdEncoding.Decode(out, value)
	if err != nil {
		return nil, fmt.Errorf("base64: %w", err)
	}
	return out[:n], nil
}
