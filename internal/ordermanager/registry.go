// Package ordermanager implements the live order-reconciliation registry
// from spec §4.12: it deduplicates terminal-state notifications arriving
// from two independent, unordered channels (a REST response path and a
// WebSocket execution feed) so each order's outcome is surfaced to the
// strategy exactly once, and it never resurrects a terminated order.
package ordermanager

import (
	"time"

	cache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/hftbacktest-go/hftbacktest/internal/metrics"
	"github.com/hftbacktest-go/hftbacktest/pkg/hfterrors"
	"github.com/hftbacktest-go/hftbacktest/pkg/order"
)

// Channel identifies which asynchronous path a message arrived on.
type Channel int8

const (
	ChannelREST Channel = iota
	ChannelWS
)

func (c Channel) String() string {
	if c == ChannelWS {
		return "ws"
	}
	return "rest"
}

// staleTimeout is the GC window from spec §4.12: an entry whose status is
// terminal and whose exchange timestamp is older than this is reclaimed
// even if only one channel ever confirmed it.
const staleTimeout = 300 * time.Second

// entry is the per-client-order-id registry record (spec §3 "Live order
// registry").
type entry struct {
	Asset         int
	Order         *order.Order
	RemovedByWS   bool
	RemovedByREST bool
	Surfaced      bool
}

// Registry deduplicates live order notifications for one connector. It is
// guarded by a mutex because both the REST-response task and the
// WebSocket task mutate it concurrently (spec §5).
type Registry struct {
	prefix string
	logger *zap.Logger

	byClientID   map[string]*entry
	byAssetOrder map[assetOrderKey]string

	// gc tracks terminal entries with a 300s TTL; its eviction callback
	// erases the corresponding registry entry, giving the periodic
	// garbage-collect behavior from spec §4.12 without a hand-rolled
	// sweep timer, the same way teacher's internal/orders/service/core.go
	// uses patrickmn/go-cache for its order cache.
	gc *cache.Cache

	// Metrics is optional; a nil value disables instrumentation (see
	// metrics.EngineMetrics's own nil-receiver no-op methods).
	Metrics *metrics.EngineMetrics
}

type assetOrderKey struct {
	Asset   int
	OrderID uint64
}

// NewRegistry constructs an empty registry for one connector instance,
// namespaced by prefix (spec §4.12's client-order-id scheme).
func NewRegistry(prefix string, logger *zap.Logger) *Registry {
	r := &Registry{
		prefix:       prefix,
		logger:       logger,
		byClientID:   make(map[string]*entry),
		byAssetOrder: make(map[assetOrderKey]string),
		gc:           cache.New(staleTimeout, staleTimeout/2),
	}
	r.gc.OnEvicted(func(clientOrderID string, _ interface{}) {
		r.erase(clientOrderID)
	})
	return r
}

// GenerateClientOrderID mints a fresh client-order-id for a newly
// submitted order and registers it. It fails with hfterrors.OrderIdExist
// if the generated id collides with one already live (spec §4.12).
func (r *Registry) GenerateClientOrderID(asset int, o *order.Order) (string, error) {
	id := order.NewClientOrderID(r.prefix, o.ID)
	if _, exists := r.byClientID[id]; exists {
		return "", hfterrors.New(hfterrors.OrderIdExist, "generated client-order-id already live")
	}
	r.byClientID[id] = &entry{Asset: asset, Order: o}
	r.byAssetOrder[assetOrderKey{asset, o.ID}] = id
	return id, nil
}

// Update merges an order-state message arriving on channel into the
// registry, returning the order to surface to the strategy (nil if
// nothing should be surfaced: an older-than-stored update, a terminal
// status already surfaced once for this client-order-id, or any
// non-terminal update after that terminal status).
//
// If clientOrderID does not carry this registry's prefix,
// hfterrors.PrefixUnmatched is returned: the message belongs to a
// different bot sharing the venue (spec §4.12).
func (r *Registry) Update(channel Channel, clientOrderID string, asset int, msg *order.Order, eventTime int64) (*order.Order, error) {
	if !order.HasPrefix(clientOrderID, r.prefix) {
		r.Metrics.PrefixMismatch()
		return nil, hfterrors.New(hfterrors.PrefixUnmatched, "client-order-id does not belong to this manager")
	}

	e, ok := r.byClientID[clientOrderID]
	if !ok {
		e = &entry{Asset: asset, Order: msg}
		r.byClientID[clientOrderID] = e
		r.byAssetOrder[assetOrderKey{asset, msg.ID}] = clientOrderID
	}

	if eventTime < e.Order.ExchTs {
		// Stale message: a message that raced ahead on the other channel
		// already overwrote this state with a newer one.
		return nil, nil
	}
	if e.Surfaced && !msg.Status.IsTerminal() {
		// A terminal status was already surfaced for this order; a later
		// non-terminal message does not bring it back.
		return nil, nil
	}
	overwrite(e.Order, msg)
	e.Order.ExchTs = eventTime

	if !msg.Status.IsTerminal() {
		return e.Order, nil
	}

	switch channel {
	case ChannelWS:
		e.RemovedByWS = true
	case ChannelREST:
		e.RemovedByREST = true
	}

	var surfaced *order.Order
	if !e.Surfaced {
		e.Surfaced = true
		surfaced = e.Order
		r.Metrics.Surfaced(channel.String())
		// Start the 300s reclaim window now that a terminal has been
		// seen, in case the other channel's confirmation never arrives.
		r.gc.Set(clientOrderID, struct{}{}, staleTimeout)
	}

	if e.RemovedByWS && e.RemovedByREST {
		r.gc.Delete(clientOrderID)
		r.erase(clientOrderID)
	}

	return surfaced, nil
}

// overwrite copies the fields spec §4.12 names as subject to the
// event-time freshness check onto the stored order.
func overwrite(stored, msg *order.Order) {
	stored.OriginalQty = msg.OriginalQty
	stored.LeavesQty = msg.LeavesQty
	stored.Tick = msg.Tick
	stored.TIF = msg.TIF
	stored.Status = msg.Status
	stored.ExecutedTick = msg.ExecutedTick
	stored.ExecutedQty = msg.ExecutedQty
	stored.Type = msg.Type
}

func (r *Registry) erase(clientOrderID string) {
	e, ok := r.byClientID[clientOrderID]
	if !ok {
		return
	}
	delete(r.byAssetOrder, assetOrderKey{e.Asset, e.Order.ID})
	delete(r.byClientID, clientOrderID)
}

// Lookup returns the client-order-id registered for (asset, orderID), if
// any -- the inverse-map direction spec §3 names.
func (r *Registry) Lookup(asset int, orderID uint64) (string, bool) {
	id, ok := r.byAssetOrder[assetOrderKey{asset, orderID}]
	return id, ok
}

// Get returns the tracked order for clientOrderID, if any.
func (r *Registry) Get(clientOrderID string) (*order.Order, bool) {
	e, ok := r.byClientID[clientOrderID]
	if !ok {
		return nil, false
	}
	return e.Order, true
}

// SubmitFailureOutcome is what HandleSubmitFailure decided to do with a
// venue submit/cancel error code.
type SubmitFailureOutcome int8

const (
	// OutcomeSilent means the failure is expected venue behavior and
	// requires no status change or log line (e.g. a GTX order that would
	// have crossed).
	OutcomeSilent SubmitFailureOutcome = iota
	// OutcomeExpired means the order should be marked Expired and
	// logged.
	OutcomeExpired
	// OutcomeUnknown means the order's true status cannot be determined
	// from this failure alone (e.g. a cancel that raced a fill) and is
	// reset to None.
	OutcomeUnknown
)

// HandleSubmitFailure maps a venue submit/cancel error code onto the
// outcome spec §4.12 specifies, mutating o's status in place for the
// Expired/Unknown cases.
func (r *Registry) HandleSubmitFailure(o *order.Order, venueCode int, ts int64) SubmitFailureOutcome {
	switch venueCode {
	case -5022:
		// GTX would have crossed the book; the venue's own post-only
		// reject is not an error condition worth a log line.
		return OutcomeSilent
	case -1008, -2019, -1015:
		if r.logger != nil {
			r.logger.Warn("order submit failed, marking expired",
				zap.Int("venue_code", venueCode), zap.Uint64("order_id", o.ID))
		}
		_ = o.Expire(ts)
		return OutcomeExpired
	case -2011:
		// Cancel raced an unknown terminal state at the venue: neither
		// filled nor confirmed cancelled can be assumed.
		o.Status = order.StatusNone
		return OutcomeUnknown
	default:
		return OutcomeUnknown
	}
}

// FallbackMatch is invoked when a message arrives on a channel known to
// omit a usable client-order-id (the venue's "FastExecution"-style feed,
// spec §9) and the caller had to correlate it by some other heuristic
// (order id, symbol+price+qty, etc). Per spec §9 this is never silently
// merged into the registry; it is surfaced as a warning so the strategy
// or operator can audit the fallback match.
func (r *Registry) FallbackMatch(clientOrderID string, reason string) {
	if r.logger != nil {
		r.logger.Warn("order update matched via fallback heuristic, not a client-order-id",
			zap.String("client_order_id", clientOrderID), zap.String("reason", reason))
	}
}

// GC forces an immediate sweep of expired entries rather than waiting for
// the cache janitor's next tick; primarily useful for tests and for a
// connector shutting down cleanly.
func (r *Registry) GC() {
	r.gc.DeleteExpired()
}

// Len reports the number of live (non-erased) registry entries.
func (r *Registry) Len() int { return len(r.byClientID) }
