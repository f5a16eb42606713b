package model

import "errors"

// ErrorKind classifies routing failures.
type ErrorKind int

const (
	MalformedPacket ErrorKind = iota + 1
	UnknownTable
	UnrecognizedEventType
)

func (k ErrorKind) String() string {
	switch k {
	case MalformedPacket:
		return "malformed_packet"
	case UnknownTable:
		return "unknown_table"
	case UnrecognizedEventType:
		return "unrecognized_event_type"
	default:
		return "unknown"
	}
}

// Error is delivered through the error notification instead of being returned up a call
// stack. Packet is the offending packet when one is useful for diagnostics.
type Error struct {
	Kind    ErrorKind
	Message string
	Packet  Packet
}

func (e *Error) Error() string {
	return e.Message
}

// NewError builds a routing error. pkt may be nil.
func NewError(kind ErrorKind, msg string, pkt Packet) *Error {
	return &Error{Kind: kind, Message: msg, Packet: pkt}
}

// IsKind reports whether err is a routing error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var rerr *Error
	if errors.As(err, &rerr) {
		return rerr.Kind == kind
	}
	return false
}
