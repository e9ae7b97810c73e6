package latency

import (
	"sort"

	"gonum.org/v1/gonum/interp"
)

// HistoricalRow is one observed (request-ts, exchange-ts, response-ts)
// triple used to fit the Interpolated model. A row whose ExchTs <= 0
// marks a historical rejection: per spec §4.4 the model must return the
// negated interpolated resp-req latency for timestamps near that row,
// signalling rejection with a realistic notification delay instead of a
// normal entry latency.
type HistoricalRow struct {
	ReqTs  int64
	ExchTs int64
	RespTs int64
}

// Interpolated drives latency from historical rows by linear
// interpolation between bracketing rows, using
// gonum.org/v1/gonum/interp's PiecewiseLinear predictor — the teacher
// pack's only numerical-interpolation library (already a tradSys
// dependency via the strategy package), so no hand-rolled interpolation
// is written here.
type Interpolated struct {
	entry    interp.PiecewiseLinear
	response interp.PiecewiseLinear
	offset   int64
}

// NewInterpolated fits an Interpolated model from historical rows. offset
// shifts all ExchTs/RespTs by a constant at load time (spec §4.4's
// "optional additive offset").
func NewInterpolated(rows []HistoricalRow, offset int64) (*Interpolated, error) {
	sorted := append([]HistoricalRow(nil), rows...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ReqTs < sorted[j].ReqTs })

	reqXs := make([]float64, len(sorted))
	entryYs := make([]float64, len(sorted))
	exchXs := make([]float64, 0, len(sorted))
	respYs := make([]float64, 0, len(sorted))

	for i, r := range sorted {
		exch := r.ExchTs + offset
		resp := r.RespTs + offset
		reqXs[i] = float64(r.ReqTs)
		if r.ExchTs <= 0 {
			// Rejection marker: entry latency is the negated total
			// req->resp delay, never exposed to the exchange.
			entryYs[i] = -float64(resp - r.ReqTs)
			continue
		}
		entryYs[i] = float64(exch - r.ReqTs)
		exchXs = append(exchXs, float64(exch))
		respYs = append(respYs, float64(resp-exch))
	}

	m := &Interpolated{offset: offset}
	if len(reqXs) == 1 {
		// PiecewiseLinear needs two points; a single row fits as a flat
		// line through it.
		reqXs = append(reqXs, reqXs[0]+1)
		entryYs = append(entryYs, entryYs[0])
	}
	if err := m.entry.Fit(reqXs, entryYs); err != nil {
		return nil, err
	}
	if len(exchXs) == 0 {
		// All rows were rejections; response latency is meaningless but
		// must not panic on Predict.
		exchXs, respYs = []float64{0, 1}, []float64{0, 0}
	}
	if err := m.response.Fit(exchXs, respYs); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Interpolated) EntryLatency(ts int64) int64 {
	return int64(m.entry.Predict(float64(ts)))
}

func (m *Interpolated) ResponseLatency(ts int64) int64 {
	return int64(m.response.Predict(float64(ts)))
}
