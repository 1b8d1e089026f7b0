package storage

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// ZoneLister vrací seznam známých zón (Timescale.Zones).
type ZoneLister interface {
	Zones(ctx context.Context) ([]ZoneRef, error)
}

// ZoneCatalog drží v paměti seznam zón, aby status API nemuselo pro každý
// request dělat DISTINCT přes celou tabulku. Čtení je thread-safe.
type ZoneCatalog struct {
	src    ZoneLister
	logger *slog.Logger

	mu    sync.RWMutex
	zones []ZoneRef
}

func NewZoneCatalog(src ZoneLister, logger *slog.Logger) *ZoneCatalog {
	return &ZoneCatalog{src: src, logger: logger}
}

// Load načte zóny z DB a atomicky vymění obsah cache.
func (c *ZoneCatalog) Load(ctx context.Context) error {
	zones, err := c.src.Zones(ctx)
	if err != nil {
		return err
	}

	// Read-Copy-Update: data připravená bokem, pod zámkem jen výměna.
	c.mu.Lock()
	c.zones = zones
	c.mu.Unlock()

	c.logger.Debug("Katalog zón obnoven", "zones", len(zones))
	return nil
}

// All vrací kopii aktuálního seznamu.
func (c *ZoneCatalog) All() []ZoneRef {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]ZoneRef(nil), c.zones...)
}

// StartAutoRefresh obnovuje katalog každých interval, dokud neskončí ctx.
// Nová zóna se tak v API objeví bez restartu.
func (c *ZoneCatalog) StartAutoRefresh(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Load(ctx); err != nil {
				c.logger.Error("Obnova katalogu zón selhala", "error", err)
			}
		}
	}
}
