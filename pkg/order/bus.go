package order

// Envelope pairs an order snapshot with the timestamp at which it is
// deliverable to the receiving side.
type Envelope struct {
	Order *Order
	Ts    int64
}

// Bus is a FIFO of (Order, delivery-timestamp) pairs enforcing
// non-decreasing delivery timestamps: an Append with a timestamp earlier
// than the current tail is clamped up to the tail (spec §3/§4.3). This
// models the simplification that a later-sent message cannot overtake an
// earlier one at the same endpoint.
type Bus struct {
	q []Envelope
}

// NewBus constructs an empty bus.
func NewBus() *Bus { return &Bus{} }

// Append enqueues order for delivery at ts, clamped to the current tail.
func (b *Bus) Append(o *Order, ts int64) {
	if len(b.q) > 0 {
		tail := b.q[len(b.q)-1].Ts
		if ts < tail {
			ts = tail
		}
	}
	b.q = append(b.q, Envelope{Order: o, Ts: ts})
}

// Len returns the number of pending envelopes.
func (b *Bus) Len() int { return len(b.q) }

// PeekEarliest returns the timestamp of the head envelope without
// removing it. ok is false if the bus is empty.
func (b *Bus) PeekEarliest() (ts int64, ok bool) {
	if len(b.q) == 0 {
		return 0, false
	}
	return b.q[0].Ts, true
}

// PopIfTimestampEqual removes and returns the head envelope iff its
// timestamp equals ts exactly.
func (b *Bus) PopIfTimestampEqual(ts int64) (*Order, bool) {
	if len(b.q) == 0 || b.q[0].Ts != ts {
		return nil, false
	}
	o := b.q[0].Order
	b.q = b.q[1:]
	return o, true
}

// PopIfDue removes and returns the head envelope iff its timestamp is <=
// ts, the form used by drain loops that process everything ready by a
// given virtual time.
func (b *Bus) PopIfDue(ts int64) (*Order, bool) {
	if len(b.q) == 0 || b.q[0].Ts > ts {
		return nil, false
	}
	o := b.q[0].Order
	b.q = b.q[1:]
	return o, true
}

// Drain removes and returns every pending envelope in order.
func (b *Bus) Drain() []Envelope {
	out := b.q
	b.q = nil
	return out
}

// Pair is a shared LocalToExch/ExchToLocal pair of buses connecting one
// local processor and one exchange processor for a single asset (spec
// §4.3). Each side holds its own handle; the bus itself never references
// either processor, so no reference cycle forms (spec §9).
type Pair struct {
	ToExch  *Bus // local -> exchange (entry-latency applied by caller)
	ToLocal *Bus // exchange -> local (response-latency applied by caller)
}

// NewPair constructs a fresh, empty bus pair.
func NewPair() *Pair {
	return &Pair{ToExch: NewBus(), ToLocal: NewBus()}
}
