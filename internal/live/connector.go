package live

import (
	"context"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/hftbacktest-go/hftbacktest/pkg/order"
)

// Connector is the boundary a venue-specific wire-protocol adapter
// implements (spec §1: "the per-venue wire protocol adapters ... are
// plug-ins that translate venue frames into the core event vocabulary").
// Only this interface, its retry wrapper, and IPC framing are in scope;
// no concrete Binance/Bybit/Hyperliquid parsing is implemented here.
type Connector interface {
	Name() string
	Connect(ctx context.Context) error
	SubmitOrder(ctx context.Context, symbol string, o *order.Order) error
	CancelOrder(ctx context.Context, symbol string, id uint64) error
	Events() <-chan LiveEvent
	Close() error
}

// backoff bounds are spec §7's retry policy: "exponential backoff
// (doubling from 500 ms, capped at 10 s, reset after 30 s of continuous
// success)".
const (
	backoffInitial = 500 * time.Millisecond
	backoffCap     = 10 * time.Second
	successReset   = 30 * time.Second
)

// Supervisor wraps a Connector with the reconnect/backoff policy from
// spec §7, grounded on teacher's
// internal/architecture/fx/resilience/circuit_breaker.go (gobreaker
// wrapping + state-change logging) and
// internal/trading/mitigation/rate_limiter.go (golang.org/x/time/rate
// for the heartbeat/backoff pacing).
type Supervisor struct {
	conn   Connector
	logger *zap.Logger
	events chan LiveEvent

	breaker    *gobreaker.CircuitBreaker
	limiter    *rate.Limiter
	delay      time.Duration
	lastOK     time.Time
}

// NewSupervisor wraps conn with reconnect supervision. Events published
// through the supervisor's channel include a synthesized
// ConnectionInterrupted error event for each failed connect or dropped
// connection alongside conn's own (CriticalConnectionError is never
// synthesized here), so the strategy sees connection-health transitions without the
// connector needing to know about retry policy itself.
func NewSupervisor(conn Connector, logger *zap.Logger) *Supervisor {
	s := &Supervisor{
		conn:    conn,
		logger:  logger,
		events:  make(chan LiveEvent, 256),
		delay:   backoffInitial,
		limiter: rate.NewLimiter(rate.Every(100*time.Millisecond), 1),
	}
	s.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        conn.Name(),
		MaxRequests: 1,
		Interval:    0,
		Timeout:     backoffCap,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if s.logger != nil {
				s.logger.Info("connector circuit state changed",
					zap.String("connector", name),
					zap.String("from", from.String()), zap.String("to", to.String()))
			}
		},
	})
	return s
}

// Events returns the supervisor's merged event channel.
func (s *Supervisor) Events() <-chan LiveEvent { return s.events }

// Run connects conn and retries with exponential backoff on failure
// until ctx is cancelled, forwarding every connector event onto the
// supervisor's channel. It returns when ctx is cancelled.
func (s *Supervisor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(s.events)
			return
		default:
		}

		_, err := s.breaker.Execute(func() (interface{}, error) {
			return nil, s.conn.Connect(ctx)
		})
		if err != nil {
			s.emitError(err)
			if err := s.sleepBackoff(ctx); err != nil {
				close(s.events)
				return
			}
			continue
		}

		connectedAt := time.Now()
		s.lastOK = connectedAt
		s.forward(ctx)
		if time.Since(connectedAt) >= successReset {
			s.delay = backoffInitial
		}

		// forward returns when the connector's event channel closes
		// (the connection dropped); loop back to reconnect.
		s.emitError(errConnectionDropped)
		if err := s.sleepBackoff(ctx); err != nil {
			close(s.events)
			return
		}
	}
}

func (s *Supervisor) forward(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-s.conn.Events():
			if !ok {
				return
			}
			if time.Since(s.lastOK) >= successReset {
				s.delay = backoffInitial
			}
			s.lastOK = time.Now()
			select {
			case s.events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (s *Supervisor) sleepBackoff(ctx context.Context) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
		return ctx.Err()
	}
	s.delay *= 2
	if s.delay > backoffCap {
		s.delay = backoffCap
	}
	return nil
}

func (s *Supervisor) emitError(err error) {
	kind := ErrConnectionInterrupted
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		kind = ErrConnectionInterrupted
	}
	ev := LiveEvent{Kind: EventError, Symbol: s.conn.Name(), ErrKind: kind, ErrMessage: err.Error()}
	select {
	case s.events <- ev:
	default:
		// Event buffer full: drop rather than block reconnect logic: a
		// connection-health notification is advisory, never load-bearing
		// for correctness the way an order response is.
	}
}

// SubmitOrder and CancelOrder pass through to the wrapped connector
// directly: order requests are not subject to the reconnect backoff
// applied to the event stream, since a submit failure surfaces through
// its own LiveEvent::Order rejection rather than a connection error.
func (s *Supervisor) SubmitOrder(ctx context.Context, symbol string, o *order.Order) error {
	return s.conn.SubmitOrder(ctx, symbol, o)
}

func (s *Supervisor) CancelOrder(ctx context.Context, symbol string, id uint64) error {
	return s.conn.CancelOrder(ctx, symbol, id)
}

// Close tears down the wrapped connector.
func (s *Supervisor) Close() error { return s.conn.Close() }

var errConnectionDropped = &connError{"connector event channel closed"}

type connError struct{ msg string }

func (e *connError) Error() string { return e.msg }
