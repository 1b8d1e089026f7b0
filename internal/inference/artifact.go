// Package inference zajišťuje druhou polovinu smyčky: z dávky záznamů
// streamu uloží surové záznamy, spustí model a publikuje příkazy HVAC.
package inference

import (
	"errors"
	"fmt"
	"math"
	"os"
	"slices"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
)

const (
	ArtifactFormat  = "hvac-model"
	ArtifactVersion = 1
)

var (
	// ErrColdStart: model nelze načíst; proces nesmí obsluhovat záznamy.
	ErrColdStart = errors.New("inference: model není k dispozici")
	// ErrArtifactFormat: soubor modelu je poškozený nebo neznámého formátu.
	ErrArtifactFormat = errors.New("inference: neplatný artefakt modelu")
)

// FeatureNames a OutputNames určují pořadí vstupů a výstupů modelu.
var (
	FeatureNames = []string{"temperature", "humidity", "occupancy"}
	OutputNames  = []string{"set_temp", "fan_speed_enc"}
)

// Artifact je verzovaný lineární regresor se dvěma výstupy:
// out[j] = Bias[j] + Σ Weights[j][i] * x[i].
type Artifact struct {
	Format    string        `cbor:"format"`
	Version   int           `cbor:"version"`
	Inputs    []string      `cbor:"inputs"`
	Outputs   []string      `cbor:"outputs"`
	Weights   [2][3]float64 `cbor:"weights"`
	Bias      [2]float64    `cbor:"bias"`
	Samples   int           `cbor:"samples"`
	TrainedAt time.Time     `cbor:"trained_at"`
}

var (
	encMode     cbor.EncMode
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	// deterministické kódování: stejný model = stejné bajty
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("inference: CBOR encoder initialization failed: " + err.Error())
	}
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("inference: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("inference: zstd decoder initialization failed: " + err.Error())
	}
}

// Validate kontroluje hlavičku a čísla artefaktu.
func (a Artifact) Validate() error {
	if a.Format != ArtifactFormat {
		return fmt.Errorf("%w: formát %q", ErrArtifactFormat, a.Format)
	}
	if a.Version != ArtifactVersion {
		return fmt.Errorf("%w: nepodporovaná verze %d", ErrArtifactFormat, a.Version)
	}
	if !slices.Equal(a.Inputs, FeatureNames) || !slices.Equal(a.Outputs, OutputNames) {
		return fmt.Errorf("%w: vstupy %v / výstupy %v", ErrArtifactFormat, a.Inputs, a.Outputs)
	}
	for j := range a.Weights {
		for _, w := range a.Weights[j] {
			if math.IsNaN(w) || math.IsInf(w, 0) {
				return fmt.Errorf("%w: váha není konečné číslo", ErrArtifactFormat)
			}
		}
		if math.IsNaN(a.Bias[j]) || math.IsInf(a.Bias[j], 0) {
			return fmt.Errorf("%w: bias není konečné číslo", ErrArtifactFormat)
		}
	}
	return nil
}

// EncodeArtifact vrací zstd(CBOR(a)).
func EncodeArtifact(a Artifact) ([]byte, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	raw, err := encMode.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("cbor: %w", err)
	}
	return zstdEncoder.EncodeAll(raw, nil), nil
}

// DecodeArtifact je opak EncodeArtifact. Každá chyba je ErrArtifactFormat.
func DecodeArtifact(data []byte) (Artifact, error) {
	raw, err := zstdDecoder.DecodeAll(data, nil)
	if err != nil {
		return Artifact{}, fmt.Errorf("%w: zstd: %v", ErrArtifactFormat, err)
	}
	var a Artifact
	if err := cbor.Unmarshal(raw, &a); err != nil {
		return Artifact{}, fmt.Errorf("%w: cbor: %v", ErrArtifactFormat, err)
	}
	if err := a.Validate(); err != nil {
		return Artifact{}, err
	}
	return a, nil
}

// LoadArtifact načte artefakt ze souboru. Chybějící i poškozený soubor je ErrColdStart.
func LoadArtifact(path string) (Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Artifact{}, fmt.Errorf("%w: %v", ErrColdStart, err)
	}
	a, err := DecodeArtifact(data)
	if err != nil {
		return Artifact{}, fmt.Errorf("%w: %s: %w", ErrColdStart, path, err)
	}
	return a, nil
}
