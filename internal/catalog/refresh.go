package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/atlasgrid/pgtiles/internal/core/observability"
)

// Scanner yields raw function metadata; Introspector is the Postgres
// implementation.
type Scanner interface {
	ScanFunctions(ctx context.Context) ([]FuncMeta, error)
}

// Refresher rebuilds the catalog snapshot from a fresh scan. It is the
// single writer behind the store; callers may invoke Refresh from the
// startup path, a ticker, and the invalidation consumer concurrently.
type Refresher struct {
	log     *slog.Logger
	scanner Scanner
	store   *Store
	opts    Options
}

func NewRefresher(log *slog.Logger, scanner Scanner, store *Store, opts Options) *Refresher {
	if log == nil {
		log = slog.Default()
	}
	return &Refresher{log: log, scanner: scanner, store: store, opts: opts}
}

func (r *Refresher) Refresh(ctx context.Context) error {
	metas, err := r.scanner.ScanFunctions(ctx)
	if err != nil {
		return fmt.Errorf("catalog scan: %w", err)
	}
	snap := r.store.Publish(metas, r.opts)
	rep := snap.Report()

	for _, w := range rep.Warnings {
		r.log.Warn("catalog warning", "msg", w)
	}
	for _, rej := range rep.Rejected {
		r.log.Debug("function rejected", "id", rej.ID, "reason", rej.Reason)
	}
	observability.SetCatalog(len(rep.Accepted), len(rep.Rejected), snap.Version)
	r.log.Info("catalog published",
		"version", snap.Version,
		"accepted", len(rep.Accepted),
		"rejected", len(rep.Rejected))
	return nil
}

// Run refreshes on the given interval until ctx is canceled. A zero or
// negative interval disables periodic refresh.
func (r *Refresher) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := r.Refresh(ctx); err != nil {
				r.log.Error("periodic catalog refresh failed", "err", err)
			}
		}
	}
}

// Readiness satisfies the health probe: the server is ready once a
// snapshot with at least one source has been published.
func (r *Refresher) Readiness() (bool, int) {
	snap := r.store.Current()
	return snap.Len() > 0, snap.Len()
}
