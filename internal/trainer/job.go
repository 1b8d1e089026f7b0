package trainer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/vikerian/climate-loop/internal/inference"
	"github.com/vikerian/climate-loop/internal/storage"
)

// HistorySource čte body časové řady (storage.Timescale).
type HistorySource interface {
	Range(ctx context.Context, from, to time.Time) ([]storage.Point, error)
}

// Options řídí jeden běh tréninku.
type Options struct {
	Window    time.Duration
	ModelOut  string
	LabelsOut string
	Ridge     float64
}

// Result shrnuje, co trénink vyrobil.
type Result struct {
	Samples  int
	Seeded   bool
	Artifact inference.Artifact
}

// Run provede celý trénink:
//
//	KROK 1: načti okno historie [now-Window, now]
//	KROK 2: odvoď štítky, prázdnou historii nahraď seed řádky
//	KROK 3: fit
//	KROK 4: zapiš mapování štítků a model (každý soubor atomicky)
//
// Model se zapisuje až jako poslední, dispatcher ho čte při startu.
func Run(ctx context.Context, src HistorySource, opts Options, now time.Time, logger *slog.Logger) (Result, error) {
	from := now.Add(-opts.Window)
	points, err := src.Range(ctx, from, now)
	if err != nil {
		return Result{}, fmt.Errorf("čtení historie: %w", err)
	}
	logger.Info("Historie načtena", "from", from, "to", now, "points", len(points))

	samples := make([]Sample, 0, len(points))
	for _, p := range points {
		samples = append(samples, Label(p))
	}
	res := Result{}
	if len(samples) == 0 {
		logger.Warn("Prázdná historie, trénuji ze seed řádků")
		samples = SeedSamples()
		res.Seeded = true
	}

	a, err := Fit(samples, opts.Ridge)
	if err != nil {
		return Result{}, err
	}
	a.TrainedAt = now.UTC().Truncate(time.Second)
	res.Samples = len(samples)
	res.Artifact = a

	labels, err := inference.MarshalLabels(inference.DefaultLabels())
	if err != nil {
		return Result{}, fmt.Errorf("labels: %w", err)
	}
	model, err := inference.EncodeArtifact(a)
	if err != nil {
		return Result{}, err
	}
	if err := WriteFileAtomic(opts.LabelsOut, labels); err != nil {
		return Result{}, err
	}
	if err := WriteFileAtomic(opts.ModelOut, model); err != nil {
		return Result{}, err
	}
	logger.Info("Model uložen", "model", opts.ModelOut, "labels", opts.LabelsOut,
		"samples", res.Samples, "seeded", res.Seeded, "bytes", len(model))
	return res, nil
}

// WriteFileAtomic zapíše data do dočasného souboru ve stejném adresáři
// a přejmenuje ho na cílovou cestu. Čtenář tak nikdy neuvidí půlku souboru.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("dočasný soubor pro %s: %w", path, err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("zápis %s: %w", tmpPath, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sync %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("zavření %s: %w", tmpPath, err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("chmod %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("přejmenování na %s: %w", path, err)
	}
	return nil
}
