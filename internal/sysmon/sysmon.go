// Package sysmon měří paměť vlastního procesu a hostitele přes gopsutil.
// Simulátor tím hlídá riziko neomezené offline fronty: hloubka Outboxu
// sama o sobě neříká, kolik paměti fronta skutečně drží.
package sysmon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// Snapshot je jeden "snímek" paměti.
type Snapshot struct {
	// RSS: skutečná fyzická RAM procesu (bez swapu).
	RSSBytes uint64

	// Paměť hostitele. Used = Total - Available, bez diskové cache
	// (Linux volnou RAM používá jako cache, vMem.Used by ukazoval skoro plno).
	HostUsedBytes  uint64
	HostTotalBytes uint64
}

// RSSMB převede RSS na megabajty pro logy.
func (s Snapshot) RSSMB() float64 {
	return float64(s.RSSBytes) / 1024.0 / 1024.0
}

// Sampler čte statistiky pro daný PID.
type Sampler struct {
	proc *process.Process
}

// NewSampler vrací sampler pro aktuální proces.
func NewSampler() (*Sampler, error) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, fmt.Errorf("gopsutil process: %w", err)
	}
	return &Sampler{proc: p}, nil
}

// Sample změří RSS procesu a paměť hostitele. Chyba hostitelské části
// měření nezastaví, RSS je důležitější.
func (s *Sampler) Sample(ctx context.Context) (Snapshot, error) {
	var snap Snapshot

	memInfo, err := s.proc.MemoryInfoWithContext(ctx)
	if err != nil {
		return snap, fmt.Errorf("čtení RSS: %w", err)
	}
	snap.RSSBytes = memInfo.RSS

	if vMem, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		snap.HostUsedBytes = vMem.Total - vMem.Available
		snap.HostTotalBytes = vMem.Total
	}
	return snap, nil
}

// Watch volá fn s novým snímkem každých interval, dokud se nezruší ctx.
// První měření proběhne hned, nečeká se na první tik.
func Watch(ctx context.Context, s *Sampler, interval time.Duration, logger *slog.Logger, fn func(Snapshot)) {
	measure := func() {
		snap, err := s.Sample(ctx)
		if err != nil {
			logger.Error("Chyba při měření paměti", "error", err)
			return
		}
		fn(snap)
	}

	measure()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			measure()
		}
	}
}
