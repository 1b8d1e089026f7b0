package inference

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
)

// ErrPrediction: model vrátil nepoužitelný výsledek pro daný vstup.
var ErrPrediction = errors.New("inference: predikce selhala")

// Model je to jediné, co dispatcher od načteného modelu potřebuje.
// Implementace musí být bezpečné pro souběžné volání.
type Model interface {
	// Predict vrací [set_temp, fan_speed_enc] pro [temperature, humidity, occupancy].
	Predict(features [3]float64) ([2]float64, error)
}

// LinearModel je model z Artifactu. Po vytvoření je jen pro čtení.
type LinearModel struct {
	weights [2][3]float64
	bias    [2]float64
}

// NewLinearModel vytvoří model z (zvalidovaného) artefaktu.
func NewLinearModel(a Artifact) *LinearModel {
	return &LinearModel{weights: a.Weights, bias: a.Bias}
}

func (m *LinearModel) Predict(x [3]float64) ([2]float64, error) {
	var out [2]float64
	for j := range out {
		v := m.bias[j]
		for i := range x {
			v += m.weights[j][i] * x[i]
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return out, fmt.Errorf("%w: výstup %s není konečné číslo", ErrPrediction, OutputNames[j])
		}
		out[j] = v
	}
	return out, nil
}

// Loader načte model; volá se nejvýše jednou za život procesu.
type Loader func() (Model, error)

// FileLoader načítá artefakt z cesty.
func FileLoader(path string) Loader {
	return func() (Model, error) {
		a, err := LoadArtifact(path)
		if err != nil {
			return nil, err
		}
		return NewLinearModel(a), nil
	}
}

// Session je sdílený handle na model s jednorázovou inicializací.
// Souběžná první volání z více partitions vedou k právě jednomu načtení;
// ostatní počkají na jeho výsledek. Chyba načtení se také pamatuje:
// poškozený artefakt se nezkouší znovu, proces musí skončit.
type Session struct {
	get   func() (Model, error)
	loads atomic.Int64
}

// NewSession obalí loader jednorázovou bariérou.
func NewSession(load Loader) *Session {
	s := &Session{}
	s.get = sync.OnceValues(func() (Model, error) {
		s.loads.Add(1)
		m, err := load()
		if err != nil {
			if !errors.Is(err, ErrColdStart) {
				err = fmt.Errorf("%w: %w", ErrColdStart, err)
			}
			return nil, err
		}
		return m, nil
	})
	return s
}

// Model vrací načtený model (při prvním volání ho načte).
func (s *Session) Model() (Model, error) {
	return s.get()
}

// Loads vrací, kolikrát se skutečně načítalo (0 nebo 1).
func (s *Session) Loads() int64 {
	return s.loads.Load()
}
