// Package live implements the live-trading equivalent of the backtest
// driver (spec §4.11): the same strategy-facing Bot method set, but
// driven by one or more real venue connectors over an IPC channel
// instead of a replayed tape.
package live

import (
	"github.com/hftbacktest-go/hftbacktest/pkg/event"
	"github.com/hftbacktest-go/hftbacktest/pkg/order"
)

// EventKind tags a LiveEvent's payload (spec §6 "Connector-to-core
// normalized event channel"). Re-expressed as an explicit enum + struct
// rather than an interface hierarchy per spec §9's dispatch guidance.
type EventKind int8

const (
	EventDepth EventKind = iota
	EventTrade
	EventOrder
	EventPosition
	EventError
	EventBatchStart
	EventBatchEnd
)

// ErrorKind enumerates the IPC-surfaced error taxonomy from spec §7.
type ErrorKind int8

const (
	ErrConnectionInterrupted ErrorKind = iota
	ErrCriticalConnectionError
	ErrOrderError
	ErrCustom
)

// LiveEvent is one message a connector publishes on its event channel
// (spec §4.11/§6). Exactly one payload field is meaningful per Kind.
type LiveEvent struct {
	Kind   EventKind
	Symbol string

	// EventDepth / EventTrade
	Record event.Record

	// EventOrder
	Order *order.Order

	// EventPosition
	PositionQty float64

	// EventError
	ErrKind      ErrorKind
	ErrCode      int
	ErrMessage   string
	CustomErrNum int

	// EventBatchStart / EventBatchEnd
	BatchID uint64
}

// RequestKind tags a Request's payload.
type RequestKind int8

const (
	RequestSubmitOrder RequestKind = iota
	RequestCancelOrder
)

// Request is a strategy-to-connector message sent over the FromBot IPC
// endpoint (spec §4.11 "Order submission path").
type Request struct {
	Kind   RequestKind
	Symbol string
	Order  *order.Order // RequestSubmitOrder
	ID     uint64       // RequestCancelOrder
}
