package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"binlog-router/internal/fanout"
	"binlog-router/internal/model"
	"binlog-router/internal/transformer"
)

// ChangeSource is the part of the router a Forwarder subscribes to.
type ChangeSource interface {
	OnChange(fn func(model.Change)) *fanout.Subscription
}

// Forwarder publishes every matching change notification to the broker.
// Publish failures are logged and counted; they never stop the router.
type Forwarder struct {
	pub        Publisher
	trans      transformer.Transformer
	filter     *GlobFilter
	database   string
	maxRetries int
	timeout    time.Duration
	logger     *zap.Logger
}

type ForwarderOptions struct {
	Database   string
	Filter     *GlobFilter
	MaxRetries int
	Timeout    time.Duration
	Logger     *zap.Logger
}

func NewForwarder(pub Publisher, trans transformer.Transformer, opts ForwarderOptions) *Forwarder {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	return &Forwarder{
		pub:        pub,
		trans:      trans,
		filter:     opts.Filter,
		database:   opts.Database,
		maxRetries: opts.MaxRetries,
		timeout:    opts.Timeout,
		logger:     opts.Logger,
	}
}

// Attach subscribes the forwarder to src's change notifications.
func (f *Forwarder) Attach(src ChangeSource) *fanout.Subscription {
	return src.OnChange(func(change model.Change) {
		ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
		defer cancel()
		if err := f.Forward(ctx, change); err != nil {
			f.logger.Warn("forward change failed",
				zap.String("schema", change.Schema),
				zap.String("table", change.Table),
				zap.String("op", string(change.Operation)),
				zap.Error(err))
		}
	})
}

// Forward publishes a single change unless the filter rejects it.
func (f *Forwarder) Forward(ctx context.Context, change model.Change) error {
	if !f.filter.Match(change.Schema, change.Table) {
		return nil
	}
	msg, err := f.trans.Transform(ctx, change)
	if err != nil {
		return fmt.Errorf("transform change: %w", err)
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal change: %w", err)
	}
	subject := SubjectForChange(f.database, change)
	if err := f.pub.PublishWithRetries(ctx, subject, payload, f.maxRetries); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	f.logger.Debug("forwarded change", zap.String("subject", subject), zap.String("event_id", msg.EventID))
	return nil
}
