package classifier

import (
	"github.com/go-mysql-org/go-mysql/replication"

	"binlog-router/internal/model"
	"binlog-router/internal/registry"
)

// Classifier resolves table maps, row mutations and statements into changes.
type Classifier struct {
	tables *registry.Registry
}

func New(tables *registry.Registry) *Classifier {
	return &Classifier{tables: tables}
}

// TableMap records the table id carried by pkt. The registry is left untouched on error.
func (c *Classifier) TableMap(pkt *model.TableMapPacket) error {
	if pkt == nil {
		return model.NewError(model.MalformedPacket, "no packet data", nil)
	}
	if pkt.Data == nil {
		return model.NewError(model.MalformedPacket, "no packet data", pkt)
	}
	if pkt.Data.TableID == 0 {
		return model.NewError(model.MalformedPacket, "no packet table id", pkt)
	}
	c.tables.Record(pkt.Data.TableID, pkt.Data.SchemaName, pkt.Data.TableName)
	return nil
}

// Rows resolves a row mutation against the registry and normalizes its event type.
func (c *Classifier) Rows(pkt *model.RowsPacket) (model.Change, error) {
	if pkt == nil {
		return model.Change{}, model.NewError(model.MalformedPacket, "no packet data", nil)
	}
	if pkt.Data == nil {
		return model.Change{}, model.NewError(model.MalformedPacket, "no packet data", pkt)
	}
	if pkt.Data.TableID == 0 {
		return model.Change{}, model.NewError(model.MalformedPacket, "no packet table id", pkt)
	}
	entry, ok := c.tables.Lookup(pkt.Data.TableID)
	if !ok {
		return model.Change{}, model.NewError(model.UnknownTable, "no table id", nil)
	}
	op, ok := operationFor(pkt.EventType)
	if !ok {
		return model.Change{}, model.NewError(model.UnrecognizedEventType, "event type not found", nil)
	}
	return model.Change{Schema: entry.Schema, Table: entry.Table, Operation: op}, nil
}

func operationFor(t replication.EventType) (model.Operation, bool) {
	switch t {
	case replication.WRITE_ROWS_EVENTv0, replication.WRITE_ROWS_EVENTv1, replication.WRITE_ROWS_EVENTv2:
		return model.OperationInsert, true
	case replication.UPDATE_ROWS_EVENTv0, replication.UPDATE_ROWS_EVENTv1, replication.UPDATE_ROWS_EVENTv2:
		return model.OperationUpdate, true
	case replication.DELETE_ROWS_EVENTv0, replication.DELETE_ROWS_EVENTv1, replication.DELETE_ROWS_EVENTv2:
		return model.OperationDelete, true
	default:
		return "", false
	}
}
