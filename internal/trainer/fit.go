// Package trainer je offline tréninková úloha: z historie časových řad
// vyrobí model pro inference dispatcher a k němu mapování štítků.
package trainer

import (
	"errors"
	"fmt"
	"math"

	"github.com/vikerian/climate-loop/internal/inference"
	"github.com/vikerian/climate-loop/internal/storage"
	"github.com/vikerian/climate-loop/internal/telemetry"
)

// ErrSingular: soustava normálních rovnic nemá jednoznačné řešení
// (málo různorodých dat). Pomůže kladný ridge.
var ErrSingular = errors.New("trainer: singulární soustava")

// ComfortTemp je teplota, kolem které se počítají štítky.
const ComfortTemp = 21.0

// Sample je jeden trénovací řádek: vstupy ve stejném pořadí jako
// inference.FeatureNames, cíle jako inference.OutputNames.
type Sample struct {
	X [3]float64
	Y [2]float64
}

// Label odvodí cíle z naměřeného bodu:
//
//	set_temp  = round(22 + (21 - temperature) * 0.5)
//	fan_speed = podle odchylky od 21 °C: < 0.5 low, < 1.5 medium, jinak high
func Label(p storage.Point) Sample {
	setTemp := math.RoundToEven(22 + (ComfortTemp-p.Temperature)*0.5)
	code, _ := fanForDeviation(math.Abs(p.Temperature - ComfortTemp)).Code()
	return Sample{
		X: [3]float64{p.Temperature, p.Humidity, float64(p.Occupancy)},
		Y: [2]float64{setTemp, float64(code)},
	}
}

func fanForDeviation(d float64) telemetry.FanSpeed {
	switch {
	case d < 0.5:
		return telemetry.FanLow
	case d < 1.5:
		return telemetry.FanMedium
	default:
		return telemetry.FanHigh
	}
}

// SeedSamples jsou dva pevné řádky pro prázdnou historii (první nasazení).
func SeedSamples() []Sample {
	medium, _ := telemetry.FanMedium.Code()
	high, _ := telemetry.FanHigh.Code()
	return []Sample{
		{X: [3]float64{22.3, 47.1, 1}, Y: [2]float64{22, float64(medium)}},
		{X: [3]float64{24.0, 50.2, 0}, Y: [2]float64{23, float64(high)}},
	}
}

// Fit spočítá lineární regresi pro oba výstupy metodou nejmenších čtverců.
// ridge > 0 přičte penalizaci k vahám (ne k biasu), takže se dá
// fitovat i z pár řádků.
func Fit(samples []Sample, ridge float64) (inference.Artifact, error) {
	if len(samples) == 0 {
		return inference.Artifact{}, fmt.Errorf("trainer: žádná data")
	}
	if ridge < 0 || math.IsNaN(ridge) {
		return inference.Artifact{}, fmt.Errorf("trainer: ridge musí být >= 0, je %v", ridge)
	}

	// normální rovnice (XᵀX + λI') w = Xᵀy, X má navíc sloupec jedniček
	var xtx [4][4]float64
	var xty [2][4]float64
	for _, s := range samples {
		row := [4]float64{1, s.X[0], s.X[1], s.X[2]}
		for i := range row {
			for k := range row {
				xtx[i][k] += row[i] * row[k]
			}
			for j := range xty {
				xty[j][i] += row[i] * s.Y[j]
			}
		}
	}
	for i := 1; i < 4; i++ {
		xtx[i][i] += ridge
	}

	a := inference.Artifact{
		Format:  inference.ArtifactFormat,
		Version: inference.ArtifactVersion,
		Inputs:  inference.FeatureNames,
		Outputs: inference.OutputNames,
		Samples: len(samples),
	}
	for j := range xty {
		w, err := solve(xtx, xty[j])
		if err != nil {
			return inference.Artifact{}, fmt.Errorf("výstup %s: %w", inference.OutputNames[j], err)
		}
		a.Bias[j] = w[0]
		copy(a.Weights[j][:], w[1:])
	}
	return a, nil
}

// solve řeší 4×4 soustavu Gaussovou eliminací s částečnou pivotací.
// Matice se předává hodnotou, volající si ji může použít znovu.
func solve(m [4][4]float64, b [4]float64) ([4]float64, error) {
	const n = 4
	var scale float64
	for i := 0; i < n; i++ {
		scale = math.Max(scale, math.Abs(m[i][i]))
	}
	eps := 1e-12 * math.Max(scale, 1)

	for col := 0; col < n; col++ {
		pivot := col
		for r := col + 1; r < n; r++ {
			if math.Abs(m[r][col]) > math.Abs(m[pivot][col]) {
				pivot = r
			}
		}
		if math.Abs(m[pivot][col]) < eps {
			return [4]float64{}, ErrSingular
		}
		m[col], m[pivot] = m[pivot], m[col]
		b[col], b[pivot] = b[pivot], b[col]

		for r := col + 1; r < n; r++ {
			f := m[r][col] / m[col][col]
			for c := col; c < n; c++ {
				m[r][c] -= f * m[col][c]
			}
			b[r] -= f * b[col]
		}
	}

	var x [4]float64
	for i := n - 1; i >= 0; i-- {
		v := b[i]
		for c := i + 1; c < n; c++ {
			v -= m[i][c] * x[c]
		}
		x[i] = v / m[i][i]
	}
	return x, nil
}
