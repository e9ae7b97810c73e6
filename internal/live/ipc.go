package live

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"

	"github.com/nats-io/nats.go"
)

// BroadcastInstance is the sentinel instance-id meaning "every strategy
// instance" (spec §6: "Instance-id 0 means broadcast").
const BroadcastInstance uint64 = 0

// Frame is one IPC wire message: an 8-byte instance-id, an 8-byte
// payload-length, and the binary payload (spec §6). instance-id
// addresses a specific strategy instance, used for subscribe-time
// snapshot replays; zero broadcasts to all.
type Frame struct {
	InstanceID uint64
	Payload    []byte
}

// Encode serializes f as instance-id || length || payload, matching the
// on-wire layout spec §6 names.
func (f Frame) Encode() []byte {
	buf := make([]byte, 16+len(f.Payload))
	binary.LittleEndian.PutUint64(buf[0:8], f.InstanceID)
	binary.LittleEndian.PutUint64(buf[8:16], uint64(len(f.Payload)))
	copy(buf[16:], f.Payload)
	return buf
}

// DecodeFrame parses the instance-id/length/payload header from raw.
func DecodeFrame(raw []byte) (Frame, error) {
	if len(raw) < 16 {
		return Frame{}, fmt.Errorf("live: frame too short: %d bytes", len(raw))
	}
	instanceID := binary.LittleEndian.Uint64(raw[0:8])
	length := binary.LittleEndian.Uint64(raw[8:16])
	if uint64(len(raw)-16) < length {
		return Frame{}, fmt.Errorf("live: frame declares %d byte payload, have %d", length, len(raw)-16)
	}
	return Frame{InstanceID: instanceID, Payload: raw[16 : 16+length]}, nil
}

// EncodeLiveEvent gob-encodes an event payload for Frame.Payload.
func EncodeLiveEvent(ev LiveEvent) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(ev); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeLiveEvent is the inverse of EncodeLiveEvent.
func DecodeLiveEvent(payload []byte) (LiveEvent, error) {
	var ev LiveEvent
	err := gob.NewDecoder(bytes.NewReader(payload)).Decode(&ev)
	return ev, err
}

// EncodeRequest gob-encodes a Request payload for Frame.Payload.
func EncodeRequest(req Request) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(req); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeRequest is the inverse of EncodeRequest.
func DecodeRequest(payload []byte) (Request, error) {
	var req Request
	err := gob.NewDecoder(bytes.NewReader(payload)).Decode(&req)
	return req, err
}

// Endpoint is one named IPC channel (spec §6: "{name}/ToBot" and
// "{name}/FromBot"), implemented over a NATS subject the way teacher's
// internal/architecture/cqrs/eventbus.NatsEventBus wraps a *nats.Conn
// for pub/sub instead of raw sockets.
type Endpoint struct {
	conn    *nats.Conn
	subject string
	sub     *nats.Subscription
}

// NewEndpoint binds name+suffix ("ToBot"/"FromBot") to a NATS subject on
// an already-connected client.
func NewEndpoint(conn *nats.Conn, connectorName, suffix string) *Endpoint {
	return &Endpoint{conn: conn, subject: fmt.Sprintf("%s.%s", connectorName, suffix)}
}

// Publish sends a frame on this endpoint.
func (e *Endpoint) Publish(f Frame) error {
	return e.conn.Publish(e.subject, f.Encode())
}

// Subscribe registers handler for every frame published on this
// endpoint; frames not addressed to instanceID (and not broadcast) are
// dropped before handler is invoked.
func (e *Endpoint) Subscribe(instanceID uint64, handler func(Frame)) error {
	sub, err := e.conn.Subscribe(e.subject, func(msg *nats.Msg) {
		f, err := DecodeFrame(msg.Data)
		if err != nil {
			return
		}
		if f.InstanceID != BroadcastInstance && f.InstanceID != instanceID {
			return
		}
		handler(f)
	})
	if err != nil {
		return err
	}
	e.sub = sub
	return nil
}

// Close unsubscribes this endpoint, if subscribed.
func (e *Endpoint) Close() error {
	if e.sub == nil {
		return nil
	}
	return e.sub.Unsubscribe()
}
