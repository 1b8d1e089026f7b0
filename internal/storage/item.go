package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

func init() {
	// decimal.Decimal se serializuje jako JSON číslo (bez uvozovek) s přesným textem.
	decimal.MarshalJSONWithoutQuotes = true
}

var (
	// ErrNotObject: záznam není JSON objekt.
	ErrNotObject = errors.New("záznam není JSON objekt")
	// ErrNotNumeric: pole existuje, ale není číslo ani číselný řetězec.
	ErrNotNumeric = errors.New("pole není číselné")
)

// Item je plně dekódovaný záznam ze streamu. Čísla jsou decimal.Decimal,
// takže se do keyed store uloží bez ztráty přesnosti floatu.
type Item map[string]any

// DecodeItem dekóduje JSON objekt a všechna čísla (i vnořená) převede na decimal.
func DecodeItem(raw []byte) (Item, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("neplatný JSON: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("neplatný JSON: data za koncem objektu")
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, ErrNotObject
	}

	out, err := toDecimals(obj)
	if err != nil {
		return nil, err
	}
	return Item(out.(map[string]any)), nil
}

func toDecimals(v any) (any, error) {
	switch t := v.(type) {
	case json.Number:
		d, err := decimal.NewFromString(t.String())
		if err != nil {
			return nil, fmt.Errorf("číslo %q: %w", t, err)
		}
		return d, nil
	case map[string]any:
		for k, inner := range t {
			conv, err := toDecimals(inner)
			if err != nil {
				return nil, err
			}
			t[k] = conv
		}
		return t, nil
	case []any:
		for i, inner := range t {
			conv, err := toDecimals(inner)
			if err != nil {
				return nil, err
			}
			t[i] = conv
		}
		return t, nil
	default:
		return v, nil
	}
}

// Text vrací neprázdný řetězec pod klíčem key.
func (i Item) Text(key string) (string, bool) {
	s, ok := i[key].(string)
	return s, ok && s != ""
}

// Decimal vrací číselnou hodnotu pole. present=false, když pole chybí nebo je null.
// Číselný řetězec ("24.5") se přijme, cokoli jiného vrací ErrNotNumeric.
func (i Item) Decimal(key string) (d decimal.Decimal, present bool, err error) {
	v, ok := i[key]
	if !ok || v == nil {
		return decimal.Decimal{}, false, nil
	}
	switch t := v.(type) {
	case decimal.Decimal:
		return t, true, nil
	case string:
		d, err := decimal.NewFromString(t)
		if err != nil {
			return decimal.Decimal{}, true, fmt.Errorf("%s=%q: %w", key, t, ErrNotNumeric)
		}
		return d, true, nil
	default:
		return decimal.Decimal{}, true, fmt.Errorf("%s (%T): %w", key, v, ErrNotNumeric)
	}
}

// Float je Decimal převedený na float64 pro výpočty.
func (i Item) Float(key string) (float64, bool, error) {
	d, present, err := i.Decimal(key)
	if err != nil || !present {
		return 0, present, err
	}
	return d.InexactFloat64(), true, nil
}
