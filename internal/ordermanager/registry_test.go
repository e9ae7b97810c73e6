package ordermanager

import (
	"bytes"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hftbacktest-go/hftbacktest/pkg/hfterrors"
	"github.com/hftbacktest-go/hftbacktest/pkg/order"
)

func newTestOrder(id uint64) *order.Order {
	return &order.Order{
		ID:          id,
		Side:        order.Buy,
		Type:        order.Limit,
		TIF:         order.GTC,
		Tick:        10000,
		OriginalQty: 2.0,
		LeavesQty:   2.0,
		Status:      order.StatusNew,
	}
}

func TestGenerateClientOrderIDDistinctAndResolvable(t *testing.T) {
	r := NewRegistry("bot1-", nil)
	id1, err := r.GenerateClientOrderID(0, newTestOrder(1))
	require.NoError(t, err)
	id2, err := r.GenerateClientOrderID(0, newTestOrder(2))
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)
}

func TestGenerateClientOrderIDRejectsLiveCollision(t *testing.T) {
	r := NewRegistry("bot1-", nil)
	// An all-zero random source makes both generated ids for order 7
	// identical, so the second call hits the exists-guard.
	uuid.SetRand(bytes.NewReader(make([]byte, 32)))
	defer uuid.SetRand(nil)

	_, err := r.GenerateClientOrderID(0, newTestOrder(7))
	require.NoError(t, err)
	_, err = r.GenerateClientOrderID(0, newTestOrder(7))
	require.Error(t, err)
	assert.True(t, hfterrors.Is(err, hfterrors.OrderIdExist))
}

func TestUpdateRejectsWrongPrefix(t *testing.T) {
	r := NewRegistry("bot1-", nil)
	_, err := r.Update(ChannelWS, "otherbot-deadbeef", 0, newTestOrder(1), 100)
	require.Error(t, err)
	assert.True(t, hfterrors.Is(err, hfterrors.PrefixUnmatched))
}

func TestUpdateSurfacesTerminalExactlyOnce(t *testing.T) {
	r := NewRegistry("bot1-", nil)
	o := newTestOrder(1)
	id, err := r.GenerateClientOrderID(0, o)
	require.NoError(t, err)

	canceled := newTestOrder(1)
	canceled.Status = order.StatusCanceled

	// REST response arrives first.
	surfaced, err := r.Update(ChannelREST, id, 0, canceled, 10)
	require.NoError(t, err)
	require.NotNil(t, surfaced)
	assert.Equal(t, order.StatusCanceled, surfaced.Status)

	// WS confirmation arrives later for the same terminal: must not
	// surface a second time, and the registry entry is erased once both
	// channels have confirmed (spec §4.12 scenario 5).
	surfaced2, err := r.Update(ChannelWS, id, 0, canceled, 12)
	require.NoError(t, err)
	assert.Nil(t, surfaced2)
	assert.Equal(t, 0, r.Len())
}

func TestUpdateIgnoresStaleEventTime(t *testing.T) {
	r := NewRegistry("bot1-", nil)
	o := newTestOrder(1)
	id, err := r.GenerateClientOrderID(0, o)
	require.NoError(t, err)

	fresh := newTestOrder(1)
	fresh.LeavesQty = 1.0
	fresh.Status = order.StatusPartiallyFilled
	_, err = r.Update(ChannelWS, id, 0, fresh, 100)
	require.NoError(t, err)

	stale := newTestOrder(1)
	stale.LeavesQty = 2.0
	stale.Status = order.StatusNew
	surfaced, err := r.Update(ChannelREST, id, 0, stale, 50)
	require.NoError(t, err)
	assert.Nil(t, surfaced)

	got, ok := r.Get(id)
	require.True(t, ok)
	assert.Equal(t, order.StatusPartiallyFilled, got.Status)
	assert.Equal(t, 1.0, got.LeavesQty)
}

func TestHandleSubmitFailureMapping(t *testing.T) {
	r := NewRegistry("bot1-", nil)

	o := newTestOrder(1)
	outcome := r.HandleSubmitFailure(o, -5022, 10)
	assert.Equal(t, OutcomeSilent, outcome)
	assert.Equal(t, order.StatusNew, o.Status)

	o2 := newTestOrder(2)
	outcome2 := r.HandleSubmitFailure(o2, -1008, 10)
	assert.Equal(t, OutcomeExpired, outcome2)
	assert.Equal(t, order.StatusExpired, o2.Status)

	o3 := newTestOrder(3)
	outcome3 := r.HandleSubmitFailure(o3, -2011, 10)
	assert.Equal(t, OutcomeUnknown, outcome3)
	assert.Equal(t, order.StatusNone, o3.Status)
}

func TestLookupInverseMapping(t *testing.T) {
	r := NewRegistry("bot1-", nil)
	o := newTestOrder(42)
	id, err := r.GenerateClientOrderID(3, o)
	require.NoError(t, err)

	got, ok := r.Lookup(3, 42)
	require.True(t, ok)
	assert.Equal(t, id, got)
}
