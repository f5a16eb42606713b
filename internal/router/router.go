package router

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"binlog-router/internal/binlog"
	"binlog-router/internal/classifier"
	"binlog-router/internal/fanout"
	"binlog-router/internal/metrics"
	"binlog-router/internal/model"
	"binlog-router/internal/registry"
)

// Router turns binlog packets into named notifications.
//
// Packets are handled one at a time on the goroutine calling Run (or Handle); listeners
// run synchronously on that goroutine in packet order.
type Router struct {
	reader     binlog.Reader
	tables     *registry.Registry
	classifier *classifier.Classifier
	bus        *fanout.Bus
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

// Options configures a Router. Zero values pick the defaults.
type Options struct {
	// Tables is the table id registry; it outlives reader restarts. Defaults to unbounded.
	Tables  *registry.Registry
	Metrics *metrics.Metrics
	Logger  *zap.Logger
}

func New(reader binlog.Reader, opts Options) *Router {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Tables == nil {
		opts.Tables = registry.New()
	}
	r := &Router{
		reader:     reader,
		tables:     opts.Tables,
		classifier: classifier.New(opts.Tables),
		bus:        fanout.NewBus(),
		metrics:    opts.Metrics,
		logger:     opts.Logger,
	}
	if r.metrics != nil {
		r.bus.SetTap(func(_ fanout.Event, dynamic bool) {
			class := "canonical"
			if dynamic {
				class = "dynamic"
			}
			r.metrics.NotificationsTotal.WithLabelValues(class).Inc()
		})
	}
	return r
}

// Start passes through to the reader.
func (r *Router) Start(ctx context.Context) error {
	if err := r.reader.Start(ctx); err != nil {
		return fmt.Errorf("start reader: %w", err)
	}
	return nil
}

// Stop passes through to the reader.
func (r *Router) Stop(ctx context.Context) error {
	if err := r.reader.Stop(ctx); err != nil {
		return fmt.Errorf("stop reader: %w", err)
	}
	return nil
}

// Restart passes through to the reader. The table registry is kept.
func (r *Router) Restart(ctx context.Context) error {
	if err := r.reader.Restart(ctx); err != nil {
		return fmt.Errorf("restart reader: %w", err)
	}
	return nil
}

// Run handles packets from the reader until ctx is done or the packet stream closes.
func (r *Router) Run(ctx context.Context) error {
	packets := r.reader.Packets()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case pkt, ok := <-packets:
			if !ok {
				r.logger.Info("packet stream closed")
				return nil
			}
			r.Handle(pkt)
		}
	}
}

// Handle processes a single packet to completion. Failures are reported through the
// error notification, never returned.
func (r *Router) Handle(pkt model.Packet) {
	switch p := pkt.(type) {
	case *model.TableMapPacket:
		r.countPacket("table_map")
		if err := r.classifier.TableMap(p); err != nil {
			r.fail(err)
			return
		}
		if r.metrics != nil {
			r.metrics.RegistryTables.Set(float64(r.tables.Len()))
		}
	case *model.RowsPacket:
		r.countPacket("rows")
		change, err := r.classifier.Rows(p)
		if err != nil {
			r.fail(err)
			return
		}
		r.publish(change)
	case *model.QueryPacket:
		r.countPacket("query")
		change, ok, err := r.classifier.Truncate(p)
		if err != nil {
			r.fail(err)
			return
		}
		if ok {
			r.publish(change)
		}
	case *model.SignalPacket:
		r.countPacket("signal")
		r.relay(p)
	case *model.BoundaryPacket:
		// every packet of the transaction has been handled above
		r.countPacket("boundary")
		r.reader.Ack(p.Position)
	default:
		r.logger.Warn("unexpected packet", zap.String("type", fmt.Sprintf("%T", pkt)))
	}
}

func (r *Router) publish(change model.Change) {
	r.logger.Debug("change",
		zap.String("schema", change.Schema),
		zap.String("table", change.Table),
		zap.String("op", string(change.Operation)))
	r.bus.Publish(change)
}

// relay forwards a lifecycle signal unchanged.
func (r *Router) relay(p *model.SignalPacket) {
	if p.Signal == model.SignalError {
		r.bus.Emit(fanout.Event{Name: fanout.EventError, Err: p.Err})
		return
	}
	r.bus.Emit(fanout.Event{Name: string(p.Signal)})
}

func (r *Router) fail(err error) {
	r.logger.Debug("routing error", zap.Error(err))
	if r.metrics != nil {
		kind := "unknown"
		var rerr *model.Error
		if errors.As(err, &rerr) {
			kind = rerr.Kind.String()
		}
		r.metrics.ErrorsTotal.WithLabelValues(kind).Inc()
	}
	r.bus.Emit(fanout.Event{Name: fanout.EventError, Err: err})
}

func (r *Router) countPacket(kind string) {
	if r.metrics != nil {
		r.metrics.PacketsTotal.WithLabelValues(kind).Inc()
	}
}
