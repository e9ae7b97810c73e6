package latency

import "testing"

func TestConstantModelReturnsFixedLatencies(t *testing.T) {
	m := Constant{Entry: 10, Response: 10}
	if m.EntryLatency(0) != 10 || m.ResponseLatency(0) != 10 {
		t.Fatalf("expected fixed 10ns latencies")
	}

	rejecting := Constant{Entry: -5, Response: 10}
	if rejecting.EntryLatency(0) >= 0 {
		t.Fatalf("expected negative entry latency to signal rejection")
	}
}

func TestInterpolatedModelLinearBetweenRows(t *testing.T) {
	rows := []HistoricalRow{
		{ReqTs: 0, ExchTs: 10, RespTs: 20},
		{ReqTs: 100, ExchTs: 120, RespTs: 140},
	}
	m, err := NewInterpolated(rows, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	mid := m.EntryLatency(50)
	if mid < 10 || mid > 20 {
		t.Fatalf("expected interpolated entry latency between bracketing rows, got %d", mid)
	}
}

func TestInterpolatedModelRejectionRow(t *testing.T) {
	rows := []HistoricalRow{
		{ReqTs: 100, ExchTs: 0, RespTs: 150}, // rejection marker
	}
	m, err := NewInterpolated(rows, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	lat := m.EntryLatency(100)
	if lat >= 0 {
		t.Fatalf("expected negative (rejecting) entry latency, got %d", lat)
	}
}
