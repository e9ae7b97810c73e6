package order

import (
	"testing"

	"github.com/hftbacktest-go/hftbacktest/pkg/depth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tkr() depth.Ticker { return depth.Ticker{TickSize: 0.01, LotSize: 0.001} }

func TestOrderApplyFillTransitionsAndInvariant(t *testing.T) {
	o := New(1, Buy, Limit, GTC, tkr(), 100.01, 2.0, 0)
	require.NoError(t, o.ApplyFill(2.0, o.Tick, 20, false))
	assert.Equal(t, StatusFilled, o.Status)
	assert.True(t, o.CheckInvariant())
	assert.Equal(t, 0.0, o.LeavesQty)
}

func TestOrderTerminalStateIsImmutable(t *testing.T) {
	o := New(1, Buy, Limit, GTC, tkr(), 100.01, 2.0, 0)
	require.NoError(t, o.Cancel(10))
	assert.True(t, o.Status.IsTerminal())
	err := o.ApplyFill(1.0, o.Tick, 20, false)
	assert.ErrorIs(t, err, ErrInvalidStatusForMutation)
}

func TestBusClampsNonDecreasingTimestamps(t *testing.T) {
	b := NewBus()
	o1 := New(1, Buy, Limit, GTC, tkr(), 100, 1, 0)
	o2 := New(2, Buy, Limit, GTC, tkr(), 100, 1, 0)
	b.Append(o1, 100)
	b.Append(o2, 50) // earlier than tail, should clamp to 100

	ts, ok := b.PeekEarliest()
	require.True(t, ok)
	assert.Equal(t, int64(100), ts)

	popped, ok := b.PopIfTimestampEqual(100)
	require.True(t, ok)
	assert.Equal(t, o1, popped)

	ts2, ok := b.PeekEarliest()
	require.True(t, ok)
	assert.Equal(t, int64(100), ts2, "second order's clamped timestamp should also be 100")
}

func TestClientOrderIDPrefixRoundTrip(t *testing.T) {
	id := NewClientOrderID("bot1-", 42)
	assert.True(t, HasPrefix(id, "bot1-"))
	assert.False(t, HasPrefix(id, "other-"))
}
