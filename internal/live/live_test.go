package live

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hftbacktest-go/hftbacktest/internal/fees"
	"github.com/hftbacktest-go/hftbacktest/pkg/depth"
	"github.com/hftbacktest-go/hftbacktest/pkg/event"
	"github.com/hftbacktest-go/hftbacktest/pkg/order"
)

// fakeConnector is an in-memory Connector used only to drive Bot/Supervisor
// in tests, standing in for the out-of-scope venue adapters (spec §1).
type fakeConnector struct {
	name   string
	events chan LiveEvent
	subs   []*order.Order
}

func newFakeConnector() *fakeConnector {
	return &fakeConnector{name: "fake", events: make(chan LiveEvent, 16)}
}

func (c *fakeConnector) Name() string                          { return c.name }
func (c *fakeConnector) Connect(ctx context.Context) error      { return nil }
func (c *fakeConnector) Events() <-chan LiveEvent               { return c.events }
func (c *fakeConnector) Close() error                           { close(c.events); return nil }
func (c *fakeConnector) SubmitOrder(ctx context.Context, symbol string, o *order.Order) error {
	c.subs = append(c.subs, o)
	// Simulate venue accepting the order over its WS feed.
	accepted := o.Clone()
	accepted.Status = order.StatusNew
	c.events <- LiveEvent{Kind: EventOrder, Symbol: symbol, Order: accepted}
	return nil
}
func (c *fakeConnector) CancelOrder(ctx context.Context, symbol string, id uint64) error {
	return nil
}

func TestBotSubmitBuyOrderRoundTrip(t *testing.T) {
	conn := newFakeConnector()
	sup := NewSupervisor(conn, nil)
	bot := NewBot(sup, "bot1-", nil, []AssetConfig{
		{Symbol: "BTCUSDT", Ticker: depth.Ticker{TickSize: 0.01, LotSize: 0.001}, AssetType: fees.Linear},
	})
	defer bot.Close()

	err := bot.SubmitBuyOrder(0, 1, 100.00, 1.0, order.GTC, order.Limit, true)
	require.NoError(t, err)

	o, ok := bot.Orders(0)[1]
	require.True(t, ok)
	assert.Equal(t, order.StatusNew, o.Status)
}

func TestBotApplyDepthEvent(t *testing.T) {
	conn := newFakeConnector()
	sup := NewSupervisor(conn, nil)
	bot := NewBot(sup, "bot1-", nil, []AssetConfig{
		{Symbol: "BTCUSDT", Ticker: depth.Ticker{TickSize: 0.01, LotSize: 0.001}, AssetType: fees.Linear},
	})
	defer bot.Close()

	conn.events <- LiveEvent{
		Kind:   EventDepth,
		Symbol: "BTCUSDT",
		Record: event.Record{Kind: event.KindDepth | event.Buy, Price: 100.00, Qty: 5, LocalTs: 1},
	}
	ok, err := bot.WaitNextFeed(false, int64(2*time.Second))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, bot.Depth(0).Ticker.PriceToTick(100.00), bot.Depth(0).BestBidTick())
}
