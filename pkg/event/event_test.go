package event

import "testing"

func TestRecordValidateDepthRequiresOneSide(t *testing.T) {
	r := Record{Kind: KindDepth | Buy | LocalVisible}
	if err := r.Validate(); err != nil {
		t.Fatalf("unexpected error for single-side depth record: %v", err)
	}

	bad := Record{Kind: KindDepth | LocalVisible}
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected error for depth record with no side set")
	}

	bothSides := Record{Kind: KindDepth | Buy | Sell | LocalVisible}
	if err := bothSides.Validate(); err == nil {
		t.Fatalf("expected error for depth record with both sides set")
	}
}

func TestLocalAndExchSeenTimestamp(t *testing.T) {
	r := Record{Kind: KindDepth | Buy | LocalVisible, LocalTs: 100, ExchTs: 50}
	ts, ok := r.LocalSeenTimestamp()
	if !ok || ts != 100 {
		t.Fatalf("expected local-visible seen at 100, got %d ok=%v", ts, ok)
	}
	if _, ok := r.ExchSeenTimestamp(); ok {
		t.Fatalf("record not exch-visible should report ok=false")
	}

	both := Record{Kind: KindDepth | Buy | LocalVisible | ExchVisible, LocalTs: 10, ExchTs: 5}
	if lts, ok := both.LocalSeenTimestamp(); !ok || lts != 10 {
		t.Fatalf("expected local ts 10, got %d", lts)
	}
	if ets, ok := both.ExchSeenTimestamp(); !ok || ets != 5 {
		t.Fatalf("expected exch ts 5, got %d", ets)
	}
}

func TestCompositeKindsDecodeConsistently(t *testing.T) {
	if LocalBidDepthEvent.Category() != KindDepth {
		t.Fatalf("expected depth category")
	}
	if !LocalBidDepthEvent.IsBuy() || LocalBidDepthEvent.IsSell() {
		t.Fatalf("expected bid depth to be buy-only")
	}
	if !ExchSellTradeEvent.IsSell() {
		t.Fatalf("expected sell trade to carry sell flag")
	}
}
