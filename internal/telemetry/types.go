// Package telemetry definuje zprávy, které tečou smyčkou řízení klimatu:
// telemetrii ze zón, řídicí příkazy a gramatiku MQTT topiců.
//
// Všechny parsery jsou striktní: zpráva, která se nedá rozparsovat do
// kompletní struktury, se odmítne, nikdy se "neopravuje".
package telemetry

import (
	"errors"
	"math"
	"strconv"
)

// Chyby parsování. Volající je rozlišují přes errors.Is.
var (
	ErrInvalidTopic     = errors.New("neplatný topic")
	ErrMalformedPayload = errors.New("poškozený payload")
	ErrMissingField     = errors.New("chybí povinné pole")
	ErrInvalidField     = errors.New("neplatná hodnota pole")
	ErrTopicMismatch    = errors.New("topic neodpovídá payloadu")
	ErrUnknownFanSpeed  = errors.New("neznámá rychlost ventilátoru")
)

// Reading je jedno měření zóny (TelemetryReading).
// Vzniká v simulátoru při každém tiku a po vytvoření se už nemění.
type Reading struct {
	Building    string  `json:"building"`
	Zone        string  `json:"zone"`
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
	Occupancy   int     `json:"occupancy"`
	// Timestamp: unix sekundy v okamžiku vzniku měření.
	Timestamp int64 `json:"ts"`
}

// FanSpeed je rychlost ventilátoru v řídicím příkazu.
type FanSpeed string

const (
	FanLow     FanSpeed = "low"
	FanMedium  FanSpeed = "medium"
	FanHigh    FanSpeed = "high"
	FanUnknown FanSpeed = "unknown"
)

// fanSpeedTable je pevná tabulka kódování výstupu modelu.
var fanSpeedTable = map[int]FanSpeed{
	0: FanLow,
	1: FanMedium,
	2: FanHigh,
}

// FanSpeedFromCode převede celé číslo z modelu na FanSpeed.
// Funkce je totální: cokoliv mimo tabulku je "unknown".
func FanSpeedFromCode(code int) FanSpeed {
	if fs, ok := fanSpeedTable[code]; ok {
		return fs
	}
	return FanUnknown
}

// Code je inverze FanSpeedFromCode (pro trainer). Pro "unknown" vrací false.
func (f FanSpeed) Code() (int, bool) {
	for code, fs := range fanSpeedTable {
		if fs == f {
			return code, true
		}
	}
	return 0, false
}

// Valid říká, jestli je hodnota jednou ze čtyř povolených.
func (f FanSpeed) Valid() bool {
	switch f {
	case FanLow, FanMedium, FanHigh, FanUnknown:
		return true
	}
	return false
}

// FanSpeedLabels vrací kopii tabulky kód -> štítek.
func FanSpeedLabels() map[int]FanSpeed {
	out := make(map[int]FanSpeed, len(fanSpeedTable))
	for k, v := range fanSpeedTable {
		out[k] = v
	}
	return out
}

// Command je řídicí příkaz pro jednu zónu (CommandMessage).
type Command struct {
	Building string   `json:"building"`
	ZoneID   string   `json:"zone_id"`
	SetTemp  float64  `json:"set_temp"`
	FanSpeed FanSpeed `json:"fan_speed"`
}

// NewCommand sestaví příkaz z výstupů modelu. set_temp se zaokrouhlí na
// jedno desetinné místo, kód ventilátoru se zaokrouhlí "half to even"
// (stejně jako round() v trénovacím prostředí) a převede tabulkou.
func NewCommand(building, zone string, setTemp, fanSpeedEnc float64) Command {
	return Command{
		Building: building,
		ZoneID:   zone,
		SetTemp:  Round(setTemp, 1),
		FanSpeed: FanSpeedFromCode(int(math.RoundToEven(fanSpeedEnc))),
	}
}

// Round zaokrouhlí x na daný počet desetinných míst. Zaokrouhluje se
// přesná binární hodnota x a remízy jdou na sudou číslici, takže
// 22.25 -> 22.2 a 21.45 (ve skutečnosti 21.4499...) -> 21.4.
func Round(x float64, places int) float64 {
	r, err := strconv.ParseFloat(strconv.FormatFloat(x, 'f', places, 64), 64)
	if err != nil {
		return x
	}
	return r
}
