// Package scaling detects autoscaling scale-out events for a compute service
// by polling a monitoring backend for instance-count time series.
package scaling

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Sample is one instance-count observation.
type Sample struct {
	Timestamp     int64 `json:"timestamp"`
	InstanceCount int   `json:"instance_count"`
}

// Querier fetches instance-count samples for a service over a trailing
// window. Implementations return an error when the monitoring backend is
// unreachable; the Observer degrades gracefully in that case.
type Querier interface {
	InstanceCounts(ctx context.Context, service string, window time.Duration) ([]Sample, error)
}

// Options tune an Observer. Zero values get defaults.
type Options struct {
	// Lookback is the trailing query window per snapshot. Default 2m.
	Lookback time.Duration
	// EventWindow bounds how long a scale-out event counts as recent.
	// Default 60s.
	EventWindow time.Duration
	// MinPollInterval throttles opportunistic polling. Default 5s.
	MinPollInterval time.Duration
}

// Observer accumulates deduplicated instance-count samples and the times at
// which the count increased. All methods are safe for concurrent use: the
// traffic generators poll opportunistically from worker goroutines.
type Observer struct {
	querier  Querier
	service  string
	lookback time.Duration
	window   time.Duration
	minPoll  time.Duration
	logger   *zap.Logger
	now      func() time.Time

	mu          sync.Mutex
	seen        map[Sample]struct{}
	samples     []Sample
	events      []time.Time
	totalEvents int
	lastCount   int
	hasLast     bool
	lastPoll    time.Time
}

// NewObserver creates an observer for the named service.
func NewObserver(querier Querier, service string, opts Options, logger *zap.Logger) *Observer {
	if opts.Lookback <= 0 {
		opts.Lookback = 2 * time.Minute
	}
	if opts.EventWindow <= 0 {
		opts.EventWindow = 60 * time.Second
	}
	if opts.MinPollInterval <= 0 {
		opts.MinPollInterval = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Observer{
		querier:  querier,
		service:  service,
		lookback: opts.Lookback,
		window:   opts.EventWindow,
		minPoll:  opts.MinPollInterval,
		logger:   logger,
		now:      time.Now,
		seen:     make(map[Sample]struct{}),
	}
}

// Snapshot polls the monitoring backend once. New (timestamp, count) points
// are deduplicated, sorted by timestamp, and appended to the sample list. A
// strict increase over the previously observed count records a scale-out
// event. Returns the latest instance count; ok is false when the backend was
// unavailable or returned no data.
func (o *Observer) Snapshot(ctx context.Context) (count int, ok bool) {
	points, err := o.querier.InstanceCounts(ctx, o.service, o.lookback)
	if err != nil {
		o.logger.Warn("monitoring backend unavailable", zap.String("scaled_service", o.service), zap.Error(err))
		return 0, false
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.lastPoll = o.now()

	fresh := points[:0:0]
	for _, p := range points {
		if _, dup := o.seen[p]; dup {
			continue
		}
		o.seen[p] = struct{}{}
		fresh = append(fresh, p)
	}
	sort.Slice(fresh, func(i, j int) bool { return fresh[i].Timestamp < fresh[j].Timestamp })
	o.samples = append(o.samples, fresh...)

	for _, p := range fresh {
		if o.hasLast && p.InstanceCount > o.lastCount {
			o.events = append(o.events, o.now())
			o.totalEvents++
			o.logger.Info("scale-out detected",
				zap.String("scaled_service", o.service),
				zap.Int("from", o.lastCount),
				zap.Int("to", p.InstanceCount),
			)
		}
		o.lastCount = p.InstanceCount
		o.hasLast = true
	}

	if !o.hasLast {
		return 0, false
	}
	return o.lastCount, true
}

// MaybeSnapshot polls only if at least MinPollInterval has elapsed since the
// previous poll. Generators call this opportunistically on the request path.
func (o *Observer) MaybeSnapshot(ctx context.Context) {
	o.mu.Lock()
	due := o.lastPoll.IsZero() || o.now().Sub(o.lastPoll) >= o.minPoll
	o.mu.Unlock()
	if due {
		o.Snapshot(ctx)
	}
}

// HasRecentScaleOut prunes events older than the event window relative to
// ref, then reports whether any remaining event falls within the window of
// ref. Traffic generators use this to classify slow responses shortly after a
// scale-out as presumed cold starts, even without an explicit cold-start
// signal. That presumption is a heuristic: a slow-but-warm request during a
// coincidental scale-out is misclassified.
func (o *Observer) HasRecentScaleOut(ref time.Time) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	kept := o.events[:0]
	for _, ev := range o.events {
		if ref.Sub(ev) <= o.window {
			kept = append(kept, ev)
		}
	}
	o.events = kept

	for _, ev := range o.events {
		d := ref.Sub(ev)
		if d >= 0 && d <= o.window {
			return true
		}
	}
	return false
}

// Samples returns a copy of the accumulated instance-count samples.
func (o *Observer) Samples() []Sample {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Sample(nil), o.samples...)
}

// EventCount returns how many scale-out events have been recorded, including
// ones that have since aged out of the recency window.
func (o *Observer) EventCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.totalEvents
}
