package transformer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"binlog-router/internal/model"
)

// Transformer converts a Change into the message forwarded to subscribers outside the process.
type Transformer interface {
	Transform(ctx context.Context, change model.Change) (*model.ChangeMessage, error)
}

// SimpleTransformer stamps each change with a random event id and the wall clock.
type SimpleTransformer struct {
	source string
	now    func() time.Time
}

func NewSimpleTransformer(source string) *SimpleTransformer {
	return &SimpleTransformer{source: source, now: time.Now}
}

func (t *SimpleTransformer) Transform(_ context.Context, change model.Change) (*model.ChangeMessage, error) {
	if change.Table == "" {
		return nil, fmt.Errorf("change without table")
	}
	if !validOp(change.Operation) {
		return nil, fmt.Errorf("unsupported operation %q", change.Operation)
	}
	op := string(change.Operation)
	return &model.ChangeMessage{
		EventID:   uuid.NewString(),
		EventType: "binlog." + op,
		Source:    t.source,
		Timestamp: t.now().UTC(),
		Schema:    change.Schema,
		Table:     change.Table,
		Operation: op,
	}, nil
}

func validOp(op model.Operation) bool {
	switch op {
	case model.OperationInsert, model.OperationUpdate, model.OperationDelete, model.OperationTruncate:
		return true
	default:
		return false
	}
}
