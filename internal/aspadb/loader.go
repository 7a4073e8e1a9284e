// Package aspadb is the Postgres-backed ASPA seed and reload source (spec
// §6 collaborator contracts): it loads the full customer-AS → provider-set
// table on startup and on a periodic interval, driving Store.Insert for
// each row. Grounded on the teacher's internal/state/writer.go pgxpool
// usage, inverted from writer to reader.
package aspadb

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/srx-go/rpki-validator/internal/afi"
	"github.com/srx-go/rpki-validator/internal/aspatrie"
	"github.com/srx-go/rpki-validator/internal/metrics"
)

// Loader periodically reloads the aspa_objects table into a trust store.
type Loader struct {
	pool   *pgxpool.Pool
	trust  *aspatrie.Store
	logger *zap.Logger
}

// New builds a Loader over pool, targeting trust.
func New(pool *pgxpool.Pool, trust *aspatrie.Store, logger *zap.Logger) *Loader {
	return &Loader{pool: pool, trust: trust, logger: logger}
}

// LoadOnce reads every row of aspa_objects and inserts it into the trust
// store. The trust store keys on customer AS alone, so when one customer_as
// has rows for both families, the row read last replaces the other
// (Store.Insert's last-write-wins semantics, spec §4.2).
func (l *Loader) LoadOnce(ctx context.Context, source string) error {
	start := time.Now()
	defer func() {
		metrics.TrustFeedLoadDuration.WithLabelValues(source).Observe(time.Since(start).Seconds())
	}()

	rows, err := l.pool.Query(ctx, `SELECT customer_as, family, providers FROM aspa_objects`)
	if err != nil {
		return fmt.Errorf("aspadb: querying aspa_objects: %w", err)
	}
	defer rows.Close()

	var count int
	for rows.Next() {
		// Postgres has no unsigned integer types: customer_as/providers are
		// stored as BIGINT/BIGINT[] and family as SMALLINT, widened back to
		// the domain's uint32/uint8 after scanning.
		var customerAS int64
		var family int16
		var providers []int64
		if err := rows.Scan(&customerAS, &family, &providers); err != nil {
			return fmt.Errorf("aspadb: scanning aspa_objects row: %w", err)
		}
		providerASNs := make([]uint32, len(providers))
		for i, p := range providers {
			providerASNs[i] = uint32(p)
		}
		l.trust.Insert(aspatrie.NewObject(uint32(customerAS), providerASNs, afi.Family(family)))
		count++
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("aspadb: iterating aspa_objects rows: %w", err)
	}

	metrics.ASPAObjectsTotal.Set(float64(l.trust.Count()))
	metrics.TrustFeedRecordsTotal.WithLabelValues("postgres", "apply").Add(float64(count))
	l.logger.Info("aspadb: loaded ASPA objects", zap.Int("count", count), zap.String("source", source))
	return nil
}

// RunReload loads once immediately, then reloads every interval until ctx
// is cancelled.
func (l *Loader) RunReload(ctx context.Context, interval time.Duration) error {
	if err := l.LoadOnce(ctx, "startup"); err != nil {
		return err
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := l.LoadOnce(ctx, "reload"); err != nil {
				l.logger.Error("aspadb: periodic reload failed", zap.Error(err))
			}
		}
	}
}

// Ping implements the /readyz DBChecker contract (teacher's
// internal/http/server.go DBChecker interface).
func (l *Loader) Ping(ctx context.Context) error {
	return l.pool.Ping(ctx)
}
