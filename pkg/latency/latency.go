// Package latency implements the pluggable entry/response latency models
// from spec §4.4: a fixed-delay constant model and a historical
// interpolated model. A negative latency means "reject before reaching
// the exchange".
package latency

// Model maps (timestamp, order-side-agnostic context) to an entry
// latency (local -> exchange) and a response latency (exchange ->
// local). Either may be negative, signalling rejection with the
// magnitude giving the notification delay (spec §4.4).
type Model interface {
	EntryLatency(ts int64) int64
	ResponseLatency(ts int64) int64
}

// Constant returns fixed entry and response latencies, possibly negative.
type Constant struct {
	Entry    int64
	Response int64
}

func (c Constant) EntryLatency(int64) int64    { return c.Entry }
func (c Constant) ResponseLatency(int64) int64 { return c.Response }
