// Package simulator simuluje zóny jedné budovy: periodicky generuje
// telemetrii a aplikuje příchozí příkazy HVAC.
//
// Stav zón vlastní jediná goroutina (actor). Tik časovače i příkaz z MQTT
// doručovacího vlákna k ní chodí přes kanály, takže se nikdy neprolnou.
package simulator

import (
	"math/rand/v2"

	"github.com/vikerian/climate-loop/internal/config"
	"github.com/vikerian/climate-loop/internal/telemetry"
)

// ZoneState je aktuální stav jedné zóny.
type ZoneState struct {
	ZoneID      string
	Temperature float64
	Humidity    float64
	// FanSpeed je poslední příkazem nastavená rychlost ventilátoru ("" = zatím žádný příkaz).
	FanSpeed telemetry.FanSpeed
}

func newZones(seeds []config.ZoneSeed) []ZoneState {
	zones := make([]ZoneState, 0, len(seeds))
	for _, s := range seeds {
		zones = append(zones, ZoneState{ZoneID: s.ID, Temperature: s.Temperature, Humidity: s.Humidity})
	}
	return zones
}

// step posune zónu náhodnou procházkou a vrátí z ní odečet.
// Teplota ±0.2 °C, vlhkost ±1 %, obsazenost náhodně 0/1.
func (z *ZoneState) step(rnd *rand.Rand, building string, ts int64) telemetry.Reading {
	z.Temperature += uniform(rnd, -0.2, 0.2)
	z.Humidity += uniform(rnd, -1, 1)
	if z.Humidity < 0 {
		z.Humidity = 0
	} else if z.Humidity > 100 {
		z.Humidity = 100
	}

	return telemetry.Reading{
		Building:    building,
		Zone:        z.ZoneID,
		Temperature: telemetry.Round(z.Temperature, 2),
		Humidity:    telemetry.Round(z.Humidity, 1),
		Occupancy:   rnd.IntN(2),
		Timestamp:   ts,
	}
}

// apply přepíše stav zóny podle příkazu. Stejný příkaz dvakrát = stejný stav.
func (z *ZoneState) apply(cmd telemetry.Command) {
	z.Temperature = cmd.SetTemp
	z.FanSpeed = cmd.FanSpeed
}

func uniform(rnd *rand.Rand, lo, hi float64) float64 {
	return lo + (hi-lo)*rnd.Float64()
}
