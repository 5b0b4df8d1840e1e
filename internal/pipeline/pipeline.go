package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/couchcryptid/rail-notice-etl/internal/domain"
	"github.com/couchcryptid/rail-notice-etl/internal/observability"
)

// Source reads up to batchSize raw observations. An empty batch ends the
// cycle.
type Source interface {
	ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawObservation, error)
}

// Store is the persistent announcement collection.
type Store interface {
	Lock(ctx context.Context) (unlock func() error, err error)
	Load() (*domain.Collection, error)
	Recover() (*domain.Collection, string, error)
	Save(c *domain.Collection) error
}

// Recorder applies one observation to the collection.
type Recorder interface {
	Observe(coll *domain.Collection, obs domain.Observation) (domain.Change, error)
}

// Publisher receives the versions recorded in a cycle after they are saved.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, changes []domain.Change) error
}

// Options tunes a Pipeline.
type Options struct {
	BatchSize   int
	AutoRecover bool // continue from the newest usable backup when the store is corrupt
}

// Summary reports what one cycle did.
type Summary struct {
	CycleID   string
	Received  int
	Rejected  int // undecodable observations
	Failed    int // decoded but refused by the recorder
	Created   int
	Appended  int
	Unchanged int
	Saved     bool
	Recovered string // backup name when the cycle started from a backup
	Duration  time.Duration
}

// Pipeline runs monitoring cycles: read observations, apply them to the
// collection, save once, then acknowledge and publish.
type Pipeline struct {
	source     Source
	store      Store
	recorder   Recorder
	publishers []Publisher
	logger     *zap.Logger
	metrics    *observability.Metrics
	opts       Options
}

// New creates a Pipeline. Publishers are optional.
func New(src Source, store Store, rec Recorder, logger *zap.Logger, metrics *observability.Metrics, opts Options, pubs ...Publisher) *Pipeline {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	return &Pipeline{
		source:     src,
		store:      store,
		recorder:   rec,
		publishers: pubs,
		logger:     logger,
		metrics:    metrics,
		opts:       opts,
	}
}

// cycle is the mutable state of one Run.
type cycle struct {
	summary Summary
	coll    *domain.Collection
	changes []domain.Change
	acks    []domain.RawObservation
	dirty   bool
	log     *zap.Logger
}

// Run executes exactly one cycle. A source error stops reading but whatever
// was already processed is still saved; the error is returned afterwards.
// Offsets are committed only once the save succeeded.
func (p *Pipeline) Run(ctx context.Context) (Summary, error) {
	start := time.Now()
	c := &cycle{summary: Summary{CycleID: uuid.NewString()}}
	c.log = p.logger.With(zap.String("cycle_id", c.summary.CycleID))
	c.log.Info("cycle started", zap.Int("batch_size", p.opts.BatchSize))

	unlock, err := p.store.Lock(ctx)
	if err != nil {
		return c.summary, fmt.Errorf("lock store: %w", err)
	}
	defer func() {
		if err := unlock(); err != nil {
			c.log.Warn("release store lock failed", zap.Error(err))
		}
	}()

	if err := p.load(c); err != nil {
		return c.summary, err
	}

	srcErr := p.drain(ctx, c)
	if srcErr != nil {
		c.log.Error("extract batch failed, persisting processed observations", zap.Error(srcErr))
	}

	if c.dirty {
		if err := p.store.Save(c.coll); err != nil {
			p.metrics.StoreWrites.WithLabelValues("error").Inc()
			c.summary.Duration = time.Since(start)
			return c.summary, errors.Join(srcErr, fmt.Errorf("save store: %w", err))
		}
		p.metrics.StoreWrites.WithLabelValues("success").Inc()
		c.summary.Saved = true
	}

	p.acknowledge(ctx, c)
	p.publish(ctx, c)

	c.summary.Duration = time.Since(start)
	p.metrics.Announcements.Set(float64(c.coll.Len()))
	p.metrics.CycleDuration.Observe(c.summary.Duration.Seconds())
	if srcErr != nil {
		return c.summary, fmt.Errorf("extract batch: %w", srcErr)
	}
	p.metrics.LastSuccess.Set(float64(domain.Now().Unix()))

	s := c.summary
	c.log.Info("cycle finished",
		zap.Int("received", s.Received),
		zap.Int("rejected", s.Rejected),
		zap.Int("failed", s.Failed),
		zap.Int("created", s.Created),
		zap.Int("appended", s.Appended),
		zap.Int("unchanged", s.Unchanged),
		zap.Bool("saved", s.Saved),
		zap.Duration("duration", s.Duration),
	)
	return s, nil
}

// load reads the collection, falling back to the newest usable backup when
// the store is corrupt and AutoRecover is set. A recovered collection is
// always written back.
func (p *Pipeline) load(c *cycle) error {
	coll, err := p.store.Load()
	if err == nil {
		c.coll = coll
		return nil
	}
	if !errors.Is(err, domain.ErrCorruptState) || !p.opts.AutoRecover {
		return fmt.Errorf("load store: %w", err)
	}

	coll, name, rerr := p.store.Recover()
	if rerr != nil {
		return fmt.Errorf("load store: %w", errors.Join(err, rerr))
	}
	c.log.Warn("store corrupt, continuing from backup", zap.Error(err), zap.String("backup", name))
	c.coll = coll
	c.dirty = true
	c.summary.Recovered = name
	return nil
}

func (p *Pipeline) drain(ctx context.Context, c *cycle) error {
	for {
		batch, err := p.source.ExtractBatch(ctx, p.opts.BatchSize)
		for _, raw := range batch {
			p.apply(c, raw)
		}
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}
	}
}

// apply records one raw observation. Bad observations are logged and
// skipped; they never abort the cycle.
func (p *Pipeline) apply(c *cycle, raw domain.RawObservation) {
	c.summary.Received++
	p.metrics.ObservationsReceived.Inc()
	c.acks = append(c.acks, raw)

	obs, err := domain.DecodeObservation(raw)
	if err != nil {
		c.summary.Rejected++
		p.metrics.ObservationsRejected.Inc()
		c.log.Warn("observation rejected",
			zap.Error(err),
			zap.String("topic", raw.Topic),
			zap.Int("partition", raw.Partition),
			zap.Int64("offset", raw.Offset),
		)
		return
	}

	change, err := c.recordSafely(p.recorder, obs)
	if err != nil {
		c.summary.Failed++
		p.metrics.ObserveErrors.Inc()
		c.log.Warn("observation not recorded", zap.Error(err), zap.String("announcement_id", obs.ID))
		return
	}

	p.metrics.Versions.WithLabelValues(string(change.Outcome)).Inc()
	switch change.Outcome {
	case domain.OutcomeCreated:
		c.summary.Created++
	case domain.OutcomeAppended:
		c.summary.Appended++
	case domain.OutcomeUnchanged:
		c.summary.Unchanged++
		return
	}
	if change.Version.ExtractedData == nil {
		p.metrics.ExtractionFailures.Inc()
	}
	c.dirty = true
	c.changes = append(c.changes, change)
}

// recordSafely turns a panic inside the recorder into an error so one
// malformed notice cannot take down the cycle.
func (c *cycle) recordSafely(r Recorder, obs domain.Observation) (change domain.Change, err error) {
	defer func() {
		if v := recover(); v != nil {
			err = fmt.Errorf("recorder panicked: %v", v)
		}
	}()
	return r.Observe(c.coll, obs)
}

// acknowledge commits every observation read this cycle. Commits go out
// even when the cycle was cancelled after the save.
func (p *Pipeline) acknowledge(ctx context.Context, c *cycle) {
	ctx = context.WithoutCancel(ctx)
	for _, raw := range c.acks {
		if raw.Commit == nil {
			continue
		}
		if err := raw.Commit(ctx); err != nil {
			c.log.Warn("commit offset failed", zap.Error(err),
				zap.String("topic", raw.Topic), zap.Int("partition", raw.Partition), zap.Int64("offset", raw.Offset))
		}
	}
}

// publish hands saved changes to every publisher. Failures are logged and
// counted; the store already holds the truth.
func (p *Pipeline) publish(ctx context.Context, c *cycle) {
	if len(c.changes) == 0 {
		return
	}
	for _, pub := range p.publishers {
		if err := pub.Publish(ctx, c.changes); err != nil {
			p.metrics.PublishErrors.WithLabelValues(pub.Name()).Inc()
			c.log.Warn("publish failed", zap.String("sink", pub.Name()), zap.Error(err))
		}
	}
}
