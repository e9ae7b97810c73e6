package scheduler

import "testing"

func TestNewAllSlotsInfinite(t *testing.T) {
	s := New(2)
	if _, ok := s.Next(); ok {
		t.Fatalf("expected no pending event on a fresh scheduler")
	}
}

func TestNextReturnsEarliestTimestamp(t *testing.T) {
	s := New(2)
	s.UpdateExchData(0, 100)
	s.UpdateLocalData(1, 50)
	s.UpdateLocalOrder(0, 200)

	n, ok := s.Next()
	if !ok {
		t.Fatalf("expected a pending event")
	}
	if n.Asset != 1 || n.Slot != LocalData || n.Ts != 50 {
		t.Fatalf("got %+v, want asset=1 slot=LocalData ts=50", n)
	}
}

func TestNextBreaksTiesBySlotOrder(t *testing.T) {
	s := New(1)
	s.UpdateExchOrder(0, 10)
	s.UpdateExchData(0, 10)
	s.UpdateLocalOrder(0, 10)
	s.UpdateLocalData(0, 10)

	n, ok := s.Next()
	if !ok || n.Slot != LocalData {
		t.Fatalf("expected LocalData to win the tie, got %+v ok=%v", n, ok)
	}

	s.InvalidateLocalData(0)
	n, ok = s.Next()
	if !ok || n.Slot != LocalOrder {
		t.Fatalf("expected LocalOrder to win next, got %+v ok=%v", n, ok)
	}

	s.Update(0, LocalOrder, Inf)
	n, ok = s.Next()
	if !ok || n.Slot != ExchData {
		t.Fatalf("expected ExchData to win next, got %+v ok=%v", n, ok)
	}

	s.InvalidateExchData(0)
	n, ok = s.Next()
	if !ok || n.Slot != ExchOrder {
		t.Fatalf("expected ExchOrder to win last, got %+v ok=%v", n, ok)
	}
}

func TestInvalidateRemovesSlotFromConsideration(t *testing.T) {
	s := New(1)
	s.UpdateLocalData(0, 5)
	s.InvalidateLocalData(0)
	if _, ok := s.Next(); ok {
		t.Fatalf("expected no pending event after invalidating the only slot")
	}
}

func TestPeekReflectsLastUpdate(t *testing.T) {
	s := New(1)
	s.UpdateExchOrder(0, 42)
	if got := s.Peek(0, ExchOrder); got != 42 {
		t.Fatalf("got %d, want 42", got)
	}
}
