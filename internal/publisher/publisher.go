package publisher

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"binlog-router/internal/model"
)

// Publisher pushes serialized changes to a message broker.
type Publisher interface {
	Connect() error
	Publish(ctx context.Context, subject string, data []byte) error
	PublishWithRetries(ctx context.Context, subject string, data []byte, maxRetries int) error
	Close() error
}

// NoopPublisher is a stub that records the last subject published.
type NoopPublisher struct {
	LastSubject string
	Published   int
	logger      *zap.Logger
}

func NewNoopPublisher() *NoopPublisher {
	return &NoopPublisher{logger: zap.NewNop()}
}

func (p *NoopPublisher) Connect() error { return nil }

func (p *NoopPublisher) Publish(_ context.Context, subject string, _ []byte) error {
	p.LastSubject = subject
	p.Published++
	p.logger.Debug("noop publisher invoked", zap.String("subject", subject))
	return nil
}

func (p *NoopPublisher) PublishWithRetries(ctx context.Context, subject string, data []byte, _ int) error {
	return p.Publish(ctx, subject, data)
}

func (p *NoopPublisher) Close() error { return nil }

// SubjectForChange builds subject binlog.{database}.{schema}.{table}.{op}.
// Dots inside names are replaced so each name stays a single subject token.
func SubjectForChange(database string, change model.Change) string {
	var sb strings.Builder
	sb.Grow(len("binlog.") + len(database) + len(change.Schema) + len(change.Table) + len(change.Operation) + 3)
	sb.WriteString("binlog.")
	sb.WriteString(subjectToken(database))
	sb.WriteByte('.')
	sb.WriteString(subjectToken(change.Schema))
	sb.WriteByte('.')
	sb.WriteString(subjectToken(change.Table))
	sb.WriteByte('.')
	sb.WriteString(string(change.Operation))
	return sb.String()
}

var subjectReplacer = strings.NewReplacer(".", "_", " ", "_", "*", "_", ">", "_")

func subjectToken(s string) string {
	if s == "" {
		return "_"
	}
	return subjectReplacer.Replace(s)
}
