package invalidation

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

	"github.com/rmkenv/OS-ST-GIS/internal/core/config"
	"github.com/rmkenv/OS-ST-GIS/internal/core/observability"
)

// Purger drops the cached listing for an endpoint ("" = own catalog).
type Purger interface {
	Invalidate(ctx context.Context, endpoint string) error
}

type Config struct {
	Enabled bool
	Brokers []string
	Topic   string
	GroupID string

	SessionTimeout   time.Duration
	Heartbeat        time.Duration
	RebalanceTimeout time.Duration
	InitialOldest    bool
}

func ConfigFrom(k config.KafkaCfg) Config {
	return Config{
		Enabled:          k.Enabled,
		Brokers:          k.Brokers,
		Topic:            k.InvalidationTopic,
		GroupID:          k.GroupID,
		SessionTimeout:   30 * time.Second,
		Heartbeat:        3 * time.Second,
		RebalanceTimeout: 30 * time.Second,
	}
}

type Runner struct {
	log      *slog.Logger
	cfg      Config
	purger   Purger
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
}

func New(cfg Config, p Purger, opts Options) *Runner {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Runner{
		log:    opts.Logger,
		cfg:    cfg,
		purger: p,
		ms:     newMetricSet(opts.Register),
		ver:    newVersionDedupe(1024),
		assign: map[int32]struct{}{},
	}
}

func (r *Runner) Start(ctx context.Context) error {
	if !r.cfg.Enabled {
		r.log.Info("catalog invalidation runner disabled")
		return nil
	}
	if r.purger == nil {
		return errors.New("invalidation runner: purger is required")
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	if r.cfg.SessionTimeout > 0 {
		cfg.Consumer.Group.Session.Timeout = r.cfg.SessionTimeout
	}
	if r.cfg.Heartbeat > 0 {
		cfg.Consumer.Group.Heartbeat.Interval = r.cfg.Heartbeat
	}
	if r.cfg.RebalanceTimeout > 0 {
		cfg.Consumer.Group.Rebalance.Timeout = r.cfg.RebalanceTimeout
	}
	if r.cfg.InitialOldest {
		cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	}
	cfg.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(r.cfg.Brokers, r.cfg.GroupID, cfg)
	if err != nil {
		cancel()
		return fmt.Errorf("consumer group: %w", err)
	}

	h := &groupHandler{
		setup:   r.onAssign,
		cleanup: r.onRevoke,
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

	r.log.Info("catalog invalidation runner started",
		"topic", r.cfg.Topic, "group", r.cfg.GroupID, "brokers", r.cfg.Brokers)
	return nil
}

func (r *Runner) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
	r.log.Info("catalog invalidation runner stopped")
}

// Readiness reports whether the group currently holds partitions.
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

func (r *Runner) onAssign(sess sarama.ConsumerGroupSession) {
	r.assignMu.Lock()
	defer r.assignMu.Unlock()
	r.assigned.Store(true)
	r.assign = map[int32]struct{}{}
	for _, parts := range sess.Claims() {
		for _, p := range parts {
			r.assign[p] = struct{}{}
		}
	}
}

func (r *Runner) onRevoke(sarama.ConsumerGroupSession) {
	r.assignMu.Lock()
	defer r.assignMu.Unlock()
	r.assigned.Store(false)
	r.assign = map[int32]struct{}{}
}

// handleMessage returns an error only when the purge itself fails, so the
// offset stays unmarked. Malformed and stale events are skipped.
func (r *Runner) handleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	start := time.Now()
	if !msg.Timestamp.IsZero() {
		r.ms.lagGauge.Set(time.Since(msg.Timestamp).Seconds())
	}

	var ev Event
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		r.skip(ctx, msg, "decode", err)
		return nil
	}
	if err := ev.Validate(); err != nil {
		r.skip(ctx, msg, "validate", err)
		return nil
	}
	if r.ver.stale(ev.dedupeKey(), ev.Version) {
		r.ms.msgs.WithLabelValues("skip_version").Inc()
		return nil
	}

	err := r.purger.Invalidate(ctx, ev.Endpoint)
	observability.IncKafka("consume", err)
	r.ms.proc.Observe(time.Since(start).Seconds())
	if err != nil {
		r.ms.msgs.WithLabelValues("error").Inc()
		return fmt.Errorf("purge %q: %w", ev.dedupeKey(), err)
	}
	r.ver.applied(ev.dedupeKey(), ev.Version)
	r.ms.msgs.WithLabelValues("ok").Inc()
	return nil
}

func (r *Runner) skip(ctx context.Context, msg *sarama.ConsumerMessage, stage string, err error) {
	observability.IncKafka("consume", err)
	r.ms.msgs.WithLabelValues("invalid").Inc()
	r.log.WarnContext(ctx, "invalidation event skipped",
		"stage", stage,
		"partition", msg.Partition,
		"offset", msg.Offset,
		"err", err)
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
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("claim context done: %w", ctx.Err())
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if err := h.process(ctx, msg); err != nil {
				return fmt.Errorf("process failed (topic=%s, part=%d, off=%d): %w",
					msg.Topic, msg.Partition, msg.Offset, err)
			}
			sess.MarkMessage(msg, "")
		}
	}
}
