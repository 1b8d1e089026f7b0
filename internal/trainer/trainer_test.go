package trainer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vikerian/climate-loop/internal/inference"
	"github.com/vikerian/climate-loop/internal/storage"
)

func TestFitRecoversLinearRelation(t *testing.T) {
	var samples []Sample
	for temp := 18.0; temp <= 25.0; temp += 0.5 {
		for hum := 30.0; hum <= 70.0; hum += 5 {
			for occ := 0.0; occ <= 1; occ++ {
				samples = append(samples, Sample{
					X: [3]float64{temp, hum, occ},
					Y: [2]float64{
						3 + 0.5*temp - 0.1*hum + 2*occ,
						-1 + 0.2*temp + 0.05*hum - occ,
					},
				})
			}
		}
	}

	a, err := Fit(samples, 0)
	require.NoError(t, err)
	assert.Equal(t, len(samples), a.Samples)

	want := [2][3]float64{{0.5, -0.1, 2}, {0.2, 0.05, -1}}
	for j := range want {
		for i := range want[j] {
			assert.InDelta(t, want[j][i], a.Weights[j][i], 1e-6, "weight %d/%d", j, i)
		}
	}
	assert.InDelta(t, 3, a.Bias[0], 1e-6)
	assert.InDelta(t, -1, a.Bias[1], 1e-6)
	require.NoError(t, a.Validate())
}

func TestLabel(t *testing.T) {
	cases := []struct {
		temp    float64
		setTemp float64
		fan     float64
	}{
		{24.0, 20, 2}, // 20.5 -> 20 (half to even), odchylka 3
		{21.2, 22, 0}, // 21.9 -> 22, odchylka 0.2
		{20.0, 22, 1}, // 22.5 -> 22, odchylka 1
		{19.4, 23, 2}, // 22.8 -> 23, odchylka 1.6
		{21.5, 22, 1}, // 21.75 -> 22, odchylka přesně 0.5
	}
	for _, tc := range cases {
		s := Label(storage.Point{Temperature: tc.temp, Humidity: 40, Occupancy: 1})
		assert.Equal(t, [3]float64{tc.temp, 40, 1}, s.X)
		assert.Equal(t, tc.setTemp, s.Y[0], "set_temp pro %v", tc.temp)
		assert.Equal(t, tc.fan, s.Y[1], "fan pro %v", tc.temp)
	}
}

func TestFitSingular(t *testing.T) {
	samples := []Sample{{Y: [2]float64{1, 1}}, {Y: [2]float64{2, 0}}}
	_, err := Fit(samples, 0)
	assert.ErrorIs(t, err, ErrSingular)

	_, err = Fit(nil, 0)
	assert.Error(t, err)
	_, err = Fit(SeedSamples(), -1)
	assert.Error(t, err)
}

func TestFitSeedSamplesWithRidge(t *testing.T) {
	a, err := Fit(SeedSamples(), 1e-6)
	require.NoError(t, err)
	require.NoError(t, a.Validate())

	m := inference.NewLinearModel(a)
	for _, s := range SeedSamples() {
		out, err := m.Predict(s.X)
		require.NoError(t, err)
		assert.InDelta(t, s.Y[0], out[0], 0.05)
		assert.InDelta(t, s.Y[1], out[1], 0.05)
	}
}

type fakeHistory struct {
	points   []storage.Point
	err      error
	from, to time.Time
}

func (f *fakeHistory) Range(_ context.Context, from, to time.Time) ([]storage.Point, error) {
	f.from, f.to = from, to
	return f.points, f.err
}

func testOptions(dir string) Options {
	return Options{
		Window:    7 * 24 * time.Hour,
		ModelOut:  filepath.Join(dir, "hvac_model.bin"),
		LabelsOut: filepath.Join(dir, "fan_speed_labels.yaml"),
		Ridge:     1e-6,
	}
}

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestRunWritesLoadableArtifacts(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	var points []storage.Point
	for i := 0; i < 50; i++ {
		points = append(points, storage.Point{
			Building: "b1", Zone: "z1",
			Temperature: 18 + float64(i)*0.15,
			Humidity:    40 + float64(i%7),
			Occupancy:   i % 2,
			Time:        now.Add(-time.Duration(i) * time.Minute),
		})
	}
	src := &fakeHistory{points: points}

	res, err := Run(context.Background(), src, testOptions(dir), now, discard)
	require.NoError(t, err)
	assert.False(t, res.Seeded)
	assert.Equal(t, 50, res.Samples)
	assert.Equal(t, now.Add(-7*24*time.Hour), src.from)
	assert.Equal(t, now, src.to)

	a, err := inference.LoadArtifact(testOptions(dir).ModelOut)
	require.NoError(t, err)
	assert.Equal(t, res.Artifact.Weights, a.Weights)
	assert.True(t, now.Equal(a.TrainedAt))

	raw, err := os.ReadFile(testOptions(dir).LabelsOut)
	require.NoError(t, err)
	labels, err := inference.ParseLabels(raw)
	require.NoError(t, err)
	assert.Equal(t, "medium", labels.FanSpeed[1])

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "žádné dočasné soubory")
}

func TestRunSeedsEmptyHistory(t *testing.T) {
	dir := t.TempDir()
	res, err := Run(context.Background(), &fakeHistory{}, testOptions(dir), time.Now(), discard)
	require.NoError(t, err)
	assert.True(t, res.Seeded)
	assert.Equal(t, 2, res.Samples)
	_, err = inference.LoadArtifact(testOptions(dir).ModelOut)
	require.NoError(t, err)
}

func TestRunSourceErrorWritesNothing(t *testing.T) {
	dir := t.TempDir()
	_, err := Run(context.Background(), &fakeHistory{err: errors.New("connection refused")}, testOptions(dir), time.Now(), discard)
	require.Error(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestWriteFileAtomicReplaces(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.bin")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0o600))

	require.NoError(t, WriteFileAtomic(path, []byte("new")))
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "new", string(got))

	err = WriteFileAtomic(filepath.Join(t.TempDir(), "missing", "model.bin"), []byte("x"))
	assert.Error(t, err)
}
