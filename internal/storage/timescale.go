package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS telemetry (
	time        TIMESTAMPTZ      NOT NULL,
	time_ns     BIGINT           NOT NULL,
	building    TEXT             NOT NULL,
	zone        TEXT             NOT NULL,
	temperature DOUBLE PRECISION NOT NULL,
	humidity    DOUBLE PRECISION NOT NULL,
	occupancy   INTEGER          NOT NULL
);
CREATE INDEX IF NOT EXISTS telemetry_zone_time_idx ON telemetry (building, zone, time DESC);
`

const hypertableSQL = `SELECT create_hypertable('telemetry', 'time', if_not_exists => TRUE)`

const insertSQL = `INSERT INTO telemetry (time, time_ns, building, zone, temperature, humidity, occupancy)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

// Timescale je zapisovač i čtenář časových řad nad pgx poolem.
type Timescale struct {
	pool *pgxpool.Pool
}

// OpenTimescale vytvoří pool a ověří spojení (Ping).
func OpenTimescale(ctx context.Context, url string) (*Timescale, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("chyba konfigurace DB: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("DB není dostupná: %w", err)
	}
	return &Timescale{pool: pool}, nil
}

// Close uvolní pool.
func (t *Timescale) Close() {
	t.pool.Close()
}

// Ping ověří, že DB odpovídá (healthcheck).
func (t *Timescale) Ping(ctx context.Context) error {
	return t.pool.Ping(ctx)
}

// EnsureSchema založí tabulku, pokud chybí, a zkusí z ní udělat hypertable.
// Bez rozšíření TimescaleDB zůstane obyčejnou tabulkou; vrací, jestli se hypertable povedla.
func (t *Timescale) EnsureSchema(ctx context.Context) (bool, error) {
	if _, err := t.pool.Exec(ctx, schemaSQL); err != nil {
		return false, fmt.Errorf("vytvoření tabulky telemetry: %w", err)
	}
	if _, err := t.pool.Exec(ctx, hypertableSQL); err != nil {
		return false, nil
	}
	return true, nil
}

// WritePoints zapíše body jedním round-tripem (pgx.Batch).
func (t *Timescale) WritePoints(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	br := t.pool.SendBatch(ctx, insertBatch(points))
	for i := range points {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("chyba insertu bodu %d/%d: %w", i+1, len(points), err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("uzavření batch: %w", err)
	}
	return nil
}

func insertBatch(points []Point) *pgx.Batch {
	batch := &pgx.Batch{}
	for _, p := range points {
		batch.Queue(insertSQL,
			p.Time.UTC(), p.Time.UnixNano(),
			p.Building, p.Zone,
			p.Temperature, p.Humidity, p.Occupancy,
		)
	}
	return batch
}

// Range vrací body v intervalu [from, to) seřazené podle času (pro trénink).
func (t *Timescale) Range(ctx context.Context, from, to time.Time) ([]Point, error) {
	rows, err := t.pool.Query(ctx, `
		SELECT time_ns, building, zone, temperature, humidity, occupancy
		FROM telemetry
		WHERE time >= $1 AND time < $2
		ORDER BY time ASC`, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("chyba načítání rozsahu: %w", err)
	}
	defer rows.Close()

	var points []Point
	for rows.Next() {
		var p Point
		var ns int64
		if err := rows.Scan(&ns, &p.Building, &p.Zone, &p.Temperature, &p.Humidity, &p.Occupancy); err != nil {
			return nil, err
		}
		p.Time = time.Unix(0, ns).UTC()
		points = append(points, p)
	}
	return points, rows.Err()
}

// ZoneHistory vrací historii jedné zóny od daného času (pro grafy).
func (t *Timescale) ZoneHistory(ctx context.Context, building, zone string, from time.Time) ([]HistoryPoint, error) {
	rows, err := t.pool.Query(ctx, `
		SELECT time, temperature, humidity, occupancy
		FROM telemetry
		WHERE building = $1 AND zone = $2 AND time >= $3
		ORDER BY time ASC`, building, zone, from.UTC())
	if err != nil {
		return nil, fmt.Errorf("chyba načítání historie: %w", err)
	}
	defer rows.Close()

	points := make([]HistoryPoint, 0, 100)
	for rows.Next() {
		var p HistoryPoint
		if err := rows.Scan(&p.Time, &p.Temperature, &p.Humidity, &p.Occupancy); err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// ZoneRef identifikuje zónu.
type ZoneRef struct {
	Building string `json:"building"`
	Zone     string `json:"zone"`
}

// Zones vrací všechny zóny, které kdy poslaly telemetrii.
func (t *Timescale) Zones(ctx context.Context) ([]ZoneRef, error) {
	rows, err := t.pool.Query(ctx, `SELECT DISTINCT building, zone FROM telemetry ORDER BY building, zone`)
	if err != nil {
		return nil, fmt.Errorf("selhal SQL dotaz na zóny: %w", err)
	}
	defer rows.Close()

	var zones []ZoneRef
	for rows.Next() {
		var z ZoneRef
		if err := rows.Scan(&z.Building, &z.Zone); err != nil {
			return nil, err
		}
		zones = append(zones, z)
	}
	return zones, rows.Err()
}
