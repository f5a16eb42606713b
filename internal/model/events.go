package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-mysql-org/go-mysql/replication"
)

// Position represents a binlog replication position.
type Position struct {
	Name string
	Pos  uint32
}

// IsZero reports whether the position was never set.
func (p Position) IsZero() bool {
	return p.Name == ""
}

func (p Position) String() string {
	return p.Name + ":" + strconv.FormatUint(uint64(p.Pos), 10)
}

// ParsePosition parses a "<logfile>:<position>" cursor.
func ParsePosition(cursor string) (Position, error) {
	idx := strings.LastIndexByte(cursor, ':')
	if idx <= 0 {
		return Position{}, fmt.Errorf("cursor %q must have <logfile>:<position> shape", cursor)
	}
	pos, err := strconv.ParseUint(cursor[idx+1:], 10, 32)
	if err != nil {
		return Position{}, fmt.Errorf("invalid position value %q: %w", cursor[idx+1:], err)
	}
	return Position{Name: cursor[:idx], Pos: uint32(pos)}, nil
}

// Operation is the logical kind of a change.
type Operation string

const (
	OperationInsert   Operation = "insert"
	OperationUpdate   Operation = "update"
	OperationDelete   Operation = "delete"
	OperationTruncate Operation = "truncate"
)

// Change is a resolved (schema, table, operation) triple. It is never stored.
type Change struct {
	Schema    string
	Table     string
	Operation Operation
}

// Packet is anything the replication reader hands to the router.
type Packet interface {
	packet()
}

// TableMapData maps a numeric table id to a schema and table name.
type TableMapData struct {
	TableID    uint64
	SchemaName string
	TableName  string
}

// TableMapPacket is a table-metadata log entry. A nil Data means the payload is missing.
type TableMapPacket struct {
	Data *TableMapData
}

// RowsData is the payload of a row mutation.
type RowsData struct {
	TableID uint64
	Rows    int
}

// RowsPacket is a row-mutation log entry tagged with its wire event type.
type RowsPacket struct {
	EventType replication.EventType
	Data      *RowsData
}

// QueryData is the payload of a statement log entry.
type QueryData struct {
	Query  string
	Schema string
}

// QueryPacket is a generic SQL statement log entry.
type QueryPacket struct {
	Data *QueryData
}

// Signal is a reader lifecycle signal.
type Signal string

const (
	SignalConnected    Signal = "connected"
	SignalDisconnected Signal = "disconnected"
	SignalReconnecting Signal = "reconnecting"
	SignalRecovering   Signal = "recovering"
	SignalError        Signal = "error"
)

// SignalPacket carries a lifecycle signal on the same ordered stream as data packets.
// Err is only set for SignalError.
type SignalPacket struct {
	Signal Signal
	Err    error
}

// BoundaryPacket marks the end of a transaction. Position is safe to resume from once
// every packet before it has been handled.
type BoundaryPacket struct {
	Position Position
}

func (*TableMapPacket) packet() {}
func (*RowsPacket) packet()     {}
func (*QueryPacket) packet()    {}
func (*SignalPacket) packet()   {}
func (*BoundaryPacket) packet() {}

// ChangeMessage is the serialized form of a change forwarded to a message broker.
type ChangeMessage struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
	Schema    string    `json:"schema"`
	Table     string    `json:"table"`
	Operation string    `json:"operation"`
}
