// Package kafka consumes source invalidation events and purges the
// tile cache accordingly.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/atlasgrid/pgtiles/internal/cache"
	"github.com/atlasgrid/pgtiles/internal/cache/keys"
)

// CatalogRefresher re-scans the database for tile functions and
// publishes a fresh snapshot.
type CatalogRefresher interface {
	Refresh(ctx context.Context) error
}

type Runner struct {
	log      *slog.Logger
	cfg      Config
	cache    cache.Interface
	catalog  CatalogRefresher
	ms       *metricSet
	ver      *versionDedupe
	assigned atomic.Bool
	assignMu sync.RWMutex
	assign   map[int32]struct{}
	wg       sync.WaitGroup
	cancel   context.CancelFunc
}

type Options struct {
	Logger   *slog.Logger
	Register prometheus.Registerer
	Catalog  CatalogRefresher
}

func New(cfg Config, c cache.Interface, opts Options) *Runner {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Runner{
		log:     opts.Logger,
		cfg:     cfg,
		cache:   c,
		catalog: opts.Catalog,
		ms:      newMetricSet(opts.Register),
		ver:     newVersionDedupe(8192),
		assign:  map[int32]struct{}{},
	}
}

func (r *Runner) Start(ctx context.Context) error {
	if !r.cfg.Enabled {
		r.log.Info("invalidation runner disabled")
		return nil
	}
	if r.cache == nil {
		return errors.New("kafka runner: cache dependency is required")
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.Consumer.Group.Session.Timeout = r.cfg.SessionTimeout
	cfg.Consumer.Group.Heartbeat.Interval = r.cfg.Heartbeat
	cfg.Consumer.Group.Rebalance.Timeout = r.cfg.RebalanceTimeout
	if r.cfg.InitialOldest {
		cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	}
	cfg.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(r.cfg.Brokers, r.cfg.GroupID, cfg)
	if err != nil {
		return fmt.Errorf("consumer group: %w", err)
	}

	h := &groupHandler{
		setup: func(sess sarama.ConsumerGroupSession) {
			claims := sess.Claims()
			r.assignMu.Lock()
			r.assigned.Store(true)
			r.assign = map[int32]struct{}{}
			for _, parts := range claims {
				for _, p := range parts {
					r.assign[p] = struct{}{}
				}
			}
			r.assignMu.Unlock()
		},
		cleanup: func(sarama.ConsumerGroupSession) {
			r.assignMu.Lock()
			r.assigned.Store(false)
			r.assign = map[int32]struct{}{}
			r.assignMu.Unlock()
		},
		process: r.handleMessage,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			if err := group.Close(); err != nil {
				r.log.Error("kafka consumer group close", "err", err)
			}
		}()

		for {
			if err := group.Consume(ctx, []string{r.cfg.Topic}, h); err != nil {
				r.log.Error("kafka consume error", "err", err)
				select {
				case <-time.After(2 * time.Second):
				case <-ctx.Done():
					return
				}
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for err := range group.Errors() {
			r.log.Error("kafka group error", "err", err)
		}
	}()

	r.log.Info("kafka invalidation runner started",
		"topic", r.cfg.Topic, "group", r.cfg.GroupID, "brokers", r.cfg.Brokers)
	return nil
}

func (r *Runner) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
	r.log.Info("kafka invalidation runner stopped")
}

func (r *Runner) Readiness() (ready bool, partitions []int32) {
	if !r.assigned.Load() {
		return false, nil
	}
	r.assignMu.RLock()
	defer r.assignMu.RUnlock()
	for p := range r.assign {
		partitions = append(partitions, p)
	}
	return true, partitions
}

func (r *Runner) handleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	start := time.Now()

	if !msg.Timestamp.IsZero() {
		r.ms.lagGauge.Set(time.Since(msg.Timestamp).Seconds())
	}

	var ev Event
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		r.ms.msgs.WithLabelValues("error").Inc()
		return fmt.Errorf("decode: %w", err)
	}
	if err := ev.Validate(); err != nil {
		r.ms.msgs.WithLabelValues("error").Inc()
		return fmt.Errorf("validate: %w", err)
	}

	err := r.apply(ctx, ev)
	r.observe(ev.Op, err, time.Since(start))
	return err
}

func (r *Runner) observe(op string, err error, dur time.Duration) {
	if op == "" {
		op = "unknown"
	}
	if err != nil {
		r.ms.msgs.WithLabelValues("error").Inc()
	} else {
		r.ms.msgs.WithLabelValues("ok").Inc()
	}
	r.ms.proc.WithLabelValues(op).Observe(dur.Seconds())
}

func (r *Runner) apply(ctx context.Context, ev Event) error {
	switch ev.Op {
	case OpRefresh:
		if r.catalog == nil {
			r.ms.apply.WithLabelValues("skip_no_catalog").Inc()
			return nil
		}
		if err := r.catalog.Refresh(ctx); err != nil {
			return fmt.Errorf("catalog refresh: %w", err)
		}
		r.ms.apply.WithLabelValues("refresh").Inc()
		return nil

	case OpInvalidate:
		if !r.ver.shouldApply(ev.Source, ev.Version) {
			r.ms.apply.WithLabelValues("skip_version").Inc()
			return nil
		}
		if err := r.cache.DelPrefix(ctx, keys.SourcePrefix(ev.Source)); err != nil {
			return fmt.Errorf("cache del prefix %q: %w", ev.Source, err)
		}
		r.ms.apply.WithLabelValues("delete").Inc()
		return nil
	}
	return nil
}

type groupHandler struct {
	setup   func(sarama.ConsumerGroupSession)
	cleanup func(sarama.ConsumerGroupSession)
	process func(context.Context, *sarama.ConsumerMessage) error
}

func (h *groupHandler) Setup(sess sarama.ConsumerGroupSession) error {
	if h.setup != nil {
		h.setup(sess)
	}
	return nil
}

func (h *groupHandler) Cleanup(sess sarama.ConsumerGroupSession) error {
	if h.cleanup != nil {
		h.cleanup(sess)
	}
	return nil
}

func (h *groupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := sess.Context()
	for msg := range claim.Messages() {
		if err := h.process(ctx, msg); err != nil {
			return err
		}
		sess.MarkMessage(msg, "")
	}
	return nil
}
