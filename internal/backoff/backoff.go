// Package backoff počítá exponenciální zpoždění s jitterem mezi minimem a
// maximem. Používá ho reconnect MQTT, opakování zápisů do DB a opakované
// odeslání příkazu.
package backoff

import (
	"context"
	"math/rand/v2"
	"time"
)

// Policy: první zpoždění Min, každé další *Multiplier, shora omezeno Max.
// Jitter (0..1) je relativní rozptyl kolem vypočteného zpoždění.
type Policy struct {
	Min        time.Duration
	Max        time.Duration
	Multiplier float64
	Jitter     float64
}

// New vrací politiku se zdvojováním a 20% jitterem.
func New(minDelay, maxDelay time.Duration) Policy {
	return Policy{Min: minDelay, Max: maxDelay, Multiplier: 2, Jitter: 0.2}
}

// Delay vrátí zpoždění před pokusem číslo attempt (0 = první opakování).
// Výsledek je vždy v intervalu [Min, Max].
func (p Policy) Delay(attempt int) time.Duration {
	if p.Min <= 0 {
		return 0
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	d := float64(p.Min)
	for i := 0; i < attempt; i++ {
		d *= mult
		if p.Max > 0 && d >= float64(p.Max) {
			d = float64(p.Max)
			break
		}
	}
	if p.Jitter > 0 {
		// rovnoměrně v <d*(1-j), d*(1+j)>
		d = d * (1 - p.Jitter + 2*p.Jitter*rand.Float64())
	}
	out := time.Duration(d)
	if out < p.Min {
		out = p.Min
	}
	if p.Max > 0 && out > p.Max {
		out = p.Max
	}
	return out
}

// Sleep počká Delay(attempt), nebo skončí dřív, když se zruší ctx.
func (p Policy) Sleep(ctx context.Context, attempt int) error {
	d := p.Delay(attempt)
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Retry zavolá op nejvýše attempts-krát; mezi pokusy čeká podle politiky.
// Vrací poslední chybu op, případně chybu kontextu.
func Retry(ctx context.Context, p Policy, attempts int, op func(ctx context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if err = op(ctx); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		if sleepErr := p.Sleep(ctx, i); sleepErr != nil {
			return sleepErr
		}
	}
	return err
}
