package inference

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/vikerian/climate-loop/internal/telemetry"
)

// Labels je mapování kódů výstupu fan_speed_enc na názvy, které vedle
// modelu zapisuje trénink:
//
//	fan_speed:
//	  0: low
//	  1: medium
//	  2: high
type Labels struct {
	FanSpeed map[int]string `yaml:"fan_speed"`
}

// DefaultLabels vrací pevnou tabulku rychlostí ventilátoru.
func DefaultLabels() Labels {
	m := make(map[int]string)
	for code, fs := range telemetry.FanSpeedLabels() {
		m[code] = string(fs)
	}
	return Labels{FanSpeed: m}
}

// MarshalLabels serializuje mapování do YAML.
func MarshalLabels(l Labels) ([]byte, error) {
	return yaml.Marshal(l)
}

// ParseLabels načte mapování a ověří, že odpovídá pevné tabulce.
func ParseLabels(data []byte) (Labels, error) {
	var l Labels
	if err := yaml.Unmarshal(data, &l); err != nil {
		return Labels{}, fmt.Errorf("labels yaml: %w", err)
	}
	for code, name := range l.FanSpeed {
		if got := telemetry.FanSpeedFromCode(code); string(got) != name {
			return Labels{}, fmt.Errorf("labels: kód %d je %q, očekáváno %q", code, name, got)
		}
	}
	return l, nil
}
