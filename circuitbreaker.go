package memcache

import (
	"net"
	"time"

	"github.com/sony/gobreaker/v2"
)

// CircuitBreaker guards a Connection's dial attempts, not its requests: a
// server that is fatally down should fail new connect attempts fast rather
// than let every caller individually pay the dial timeout. Requests
// queued against an already-open Connection are unaffected by the
// breaker; it only sits in front of connect().
type CircuitBreaker interface {
	Connect(dial func() (net.Conn, error)) (net.Conn, error)
	State() gobreaker.State
}

// GoBreaker adapts sony/gobreaker/v2 to CircuitBreaker.
type GoBreaker struct {
	cb *gobreaker.CircuitBreaker[net.Conn]
}

var _ CircuitBreaker = (*GoBreaker)(nil)

// NewGoBreaker builds a CircuitBreaker for one server address. It opens
// after 3 or more consecutive dial failures and probes again after
// timeout, per gobreaker's half-open protocol.
func NewGoBreaker(serverAddr string, timeout time.Duration) *GoBreaker {
	settings := gobreaker.Settings{
		Name:    serverAddr,
		Timeout: timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	}
	return &GoBreaker{cb: gobreaker.NewCircuitBreaker[net.Conn](settings)}
}

func (g *GoBreaker) Connect(dial func() (net.Conn, error)) (net.Conn, error) {
	return g.cb.Execute(dial)
}

func (g *GoBreaker) State() gobreaker.State {
	return g.cb.State()
}

// noopBreaker is used when a Config disables circuit breaking: every
// dial is attempted directly with no tripping logic.
type noopBreaker struct{}

var _ CircuitBreaker = noopBreaker{}

func (noopBreaker) Connect(dial func() (net.Conn, error)) (net.Conn, error) {
	return dial()
}

func (noopBreaker) State() gobreaker.State { return gobreaker.StateClosed }
