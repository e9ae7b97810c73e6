package exchproc

import (
	"testing"

	"github.com/hftbacktest-go/hftbacktest/pkg/depth"
	"github.com/hftbacktest-go/hftbacktest/pkg/event"
	"github.com/hftbacktest-go/hftbacktest/pkg/latency"
	"github.com/hftbacktest-go/hftbacktest/pkg/order"
	"github.com/hftbacktest-go/hftbacktest/pkg/queue"
)

func newL2Processor(t *testing.T) (*Processor, *order.Pair, depth.Ticker) {
	t.Helper()
	ticker := depth.Ticker{TickSize: 0.01, LotSize: 1}
	bus := order.NewPair()
	cfg := Config{Ticker: ticker, Fill: NoPartialFill, Book: L2Book, Queue: queue.RiskAverse{}}
	p, err := New(cfg, bus, latency.Constant{Entry: 10, Response: 10})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p, bus, ticker
}

func seedBook(p *Processor) {
	_ = p.ApplyFeed(event.Record{Kind: event.KindDepth | event.Buy | event.ExchVisible, Price: 100.00, Qty: 5, ExchTs: 0})
	_ = p.ApplyFeed(event.Record{Kind: event.KindDepth | event.Sell | event.ExchVisible, Price: 100.01, Qty: 5, ExchTs: 0})
}

// scenario 1: basic fill.
func TestScenarioBasicFill(t *testing.T) {
	p, bus, ticker := newL2Processor(t)
	seedBook(p)

	buy := order.New(1, order.Buy, order.Limit, order.GTC, ticker, 100.01, 2, 0)
	bus.ToExch.Append(buy, 10)

	touched := p.PollRequests(10)
	if len(touched) != 1 {
		t.Fatalf("expected one touched order, got %d", len(touched))
	}
	if buy.Status != order.StatusFilled || buy.ExecutedQty != 2 {
		t.Fatalf("expected filled qty=2, got status=%v exec=%v", buy.Status, buy.ExecutedQty)
	}
	if got := p.Depth().QtyAt(depth.SideSell, ticker.PriceToTick(100.01)); got != 3 {
		t.Fatalf("expected remaining ask qty 3.0, got %v", got)
	}
	ts, ok := bus.ToLocal.PeekEarliest()
	if !ok || ts != 20 {
		t.Fatalf("expected response delivery at ts=20, got %d ok=%v", ts, ok)
	}
}

// scenario 2: GTX rejection.
func TestScenarioGTXRejection(t *testing.T) {
	p, bus, ticker := newL2Processor(t)
	seedBook(p)

	buy := order.New(1, order.Buy, order.Limit, order.GTX, ticker, 100.01, 2, 0)
	bus.ToExch.Append(buy, 10)

	p.PollRequests(10)
	if buy.Status != order.StatusExpired || buy.ExecutedQty != 0 {
		t.Fatalf("expected Expired with zero exec, got status=%v exec=%v", buy.Status, buy.ExecutedQty)
	}
}

// scenario 3: queue advance.
func TestScenarioQueueAdvance(t *testing.T) {
	p, bus, ticker := newL2Processor(t)
	_ = p.ApplyFeed(event.Record{Kind: event.KindDepth | event.Buy | event.ExchVisible, Price: 99.99, Qty: 10, ExchTs: 0})

	buy := order.New(1, order.Buy, order.Limit, order.GTC, ticker, 99.99, 1, 0)
	bus.ToExch.Append(buy, 10)
	p.PollRequests(10)
	if buy.Status != order.StatusNew {
		t.Fatalf("expected resting New order, got %v", buy.Status)
	}

	_ = p.ApplyFeed(event.Record{Kind: event.KindTrade | event.Sell | event.ExchVisible, Price: 99.99, Qty: 7, ExchTs: 15})

	if buy.Status != order.StatusNew {
		t.Fatalf("expected order still New after partial queue advance, got %v", buy.Status)
	}
}

func TestDuplicateClientSideOrderIDRejected(t *testing.T) {
	p, bus, ticker := newL2Processor(t)
	seedBook(p)

	a := order.New(1, order.Buy, order.Limit, order.GTC, ticker, 99.00, 1, 0)
	bus.ToExch.Append(a, 10)
	p.PollRequests(10)

	b := order.New(1, order.Sell, order.Limit, order.GTC, ticker, 101.00, 1, 0)
	bus.ToExch.Append(b, 10)
	p.PollRequests(10)

	if b.Status != order.StatusExpired {
		t.Fatalf("expected duplicate order id rejected, got %v", b.Status)
	}
}

func TestCancelRestingOrder(t *testing.T) {
	p, bus, ticker := newL2Processor(t)
	seedBook(p)

	a := order.New(1, order.Buy, order.Limit, order.GTC, ticker, 99.00, 1, 0)
	bus.ToExch.Append(a, 10)
	p.PollRequests(10)
	if a.Status != order.StatusNew {
		t.Fatalf("expected resting order, got %v", a.Status)
	}

	a.Req = order.ReqCanceled
	bus.ToExch.Append(a, 20)
	p.PollRequests(20)
	if a.Status != order.StatusCanceled {
		t.Fatalf("expected Canceled, got %v", a.Status)
	}
}

func TestL3FIFOAndPartialFillIsInvalidConfiguration(t *testing.T) {
	ticker := depth.Ticker{TickSize: 0.01, LotSize: 1}
	bus := order.NewPair()
	cfg := Config{Ticker: ticker, Fill: PartialFill, Book: L3FIFOBook}
	if _, err := New(cfg, bus, latency.Constant{}); err == nil {
		t.Fatalf("expected InvalidConfiguration error for L3FIFO+PartialFill")
	}
}

func TestIOCCancelsUnfilledRemainder(t *testing.T) {
	p, bus, ticker := newL2Processor(t)
	seedBook(p)

	buy := order.New(1, order.Buy, order.Limit, order.IOC, ticker, 100.01, 10, 0)
	bus.ToExch.Append(buy, 10)
	p.PollRequests(10)

	if buy.Status != order.StatusCanceled {
		t.Fatalf("expected IOC remainder canceled, got %v", buy.Status)
	}
	if buy.ExecutedQty != 5 {
		t.Fatalf("expected the available 5.0 filled before cancel, got %v", buy.ExecutedQty)
	}
}

func TestFOKRejectsWithoutPartialFillWhenUnavailable(t *testing.T) {
	p, bus, ticker := newL2Processor(t)
	seedBook(p)

	buy := order.New(1, order.Buy, order.Limit, order.FOK, ticker, 100.01, 10, 0)
	bus.ToExch.Append(buy, 10)
	p.PollRequests(10)

	if buy.Status != order.StatusCanceled || buy.ExecutedQty != 0 {
		t.Fatalf("expected FOK rejected with zero execution, got status=%v exec=%v", buy.Status, buy.ExecutedQty)
	}
	if got := p.Depth().QtyAt(depth.SideSell, ticker.PriceToTick(100.01)); got != 5 {
		t.Fatalf("expected book untouched by a rejected FOK, got qty=%v", got)
	}
}
