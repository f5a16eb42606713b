package metrics

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Counter is a process-local counter that can be read back, unlike a prometheus counter.
type Counter struct {
	val  atomic.Uint64
	name string
}

func NewCounter(name string) *Counter {
	return &Counter{name: name}
}

func (c *Counter) Inc() {
	c.val.Add(1)
}

func (c *Counter) Value() uint64 {
	return c.val.Load()
}

// Gauge tracks an int64 value atomically (e.g., registry size).
type Gauge struct {
	val  atomic.Int64
	name string
}

func NewGauge(name string) *Gauge {
	return &Gauge{name: name}
}

func (g *Gauge) Set(v int64) {
	g.val.Store(v)
}

func (g *Gauge) Get() int64 {
	return g.val.Load()
}

// Reporter periodically logs counter and gauge values in a single line.
type Reporter struct {
	interval time.Duration
	counters []*Counter
	gauges   []*Gauge
	logger   *zap.Logger
}

func NewReporter(interval time.Duration, counters []*Counter, gauges []*Gauge, logger *zap.Logger) *Reporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reporter{interval: interval, counters: counters, gauges: gauges, logger: logger}
}

// Fields renders the current values as zap fields.
func (r *Reporter) Fields() []zap.Field {
	fields := make([]zap.Field, 0, len(r.counters)+len(r.gauges))
	for _, c := range r.counters {
		fields = append(fields, zap.Uint64(c.name, c.Value()))
	}
	for _, g := range r.gauges {
		fields = append(fields, zap.Int64(g.name, g.Get()))
	}
	return fields
}

// Start logs on every tick until ctx is done. A non-positive interval disables reporting.
func (r *Reporter) Start(ctx context.Context) {
	if r.interval <= 0 {
		return
	}
	t := time.NewTicker(r.interval)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				r.logger.Info("router stats", r.Fields()...)
			}
		}
	}()
}
