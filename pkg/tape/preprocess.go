package tape

import "github.com/hftbacktest-go/hftbacktest/pkg/event"

// LocalLatencyOffset shifts every record's LocalTs by offsetNs, modelling
// a fixed feed-latency adjustment applied once at load time (spec
// §4.1's "latency-offset adjustment" preprocessor).
func LocalLatencyOffset(offsetNs int64) Preprocessor {
	return func(recs []event.Record) ([]event.Record, error) {
		out := make([]event.Record, len(recs))
		for i, r := range recs {
			r.LocalTs += offsetNs
			out[i] = r
		}
		return out, nil
	}
}

// ExchLatencyOffset shifts every record's ExchTs by offsetNs.
func ExchLatencyOffset(offsetNs int64) Preprocessor {
	return func(recs []event.Record) ([]event.Record, error) {
		out := make([]event.Record, len(recs))
		for i, r := range recs {
			r.ExchTs += offsetNs
			out[i] = r
		}
		return out, nil
	}
}

// FeedLatencyShift models an asymmetric feed delay: the exchange-visible
// timestamp is left untouched (it's the ground truth) but the
// local-visible timestamp is pushed out by extraNs, simulating a slower
// market-data feed to the strategy than to the matching engine.
func FeedLatencyShift(extraNs int64) Preprocessor {
	return LocalLatencyOffset(extraNs)
}
