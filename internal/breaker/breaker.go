// Package breaker implements a circuit breaker guarding calls to an
// external dependency. One Breaker instance is constructed per dependency
// at process start and shared by every request; state is not persisted,
// so a restart always begins CLOSED.
package breaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

type State string

const (
	StateClosed   State = "CLOSED"
	StateOpen     State = "OPEN"
	StateHalfOpen State = "HALF-OPEN"
)

// ErrCircuitOpen is returned when the breaker rejects a call without
// invoking the underlying operation. Callers distinguish it from the
// operation's own errors with errors.Is.
var ErrCircuitOpen = errors.New("breaker: circuit is open")

type Breaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration

	mu          sync.Mutex
	state       State
	failures    int
	lastFailure time.Time
}

func New(name string, maxFailures int, resetTimeout time.Duration) *Breaker {
	return &Breaker{
		name:         name,
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		state:        StateClosed,
	}
}

// Execute runs op under the breaker. When the circuit is OPEN and the reset
// timeout has not elapsed, it fails fast with ErrCircuitOpen. Otherwise the
// operation's own error is propagated after being recorded.
func (b *Breaker) Execute(ctx context.Context, op func(ctx context.Context) error) error {
	if err := b.before(); err != nil {
		return err
	}

	err := op(ctx)
	b.after(err)
	return err
}

func (b *Breaker) before() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen {
		if time.Since(b.lastFailure) > b.resetTimeout {
			b.state = StateHalfOpen
			log.Info().Str("breaker", b.name).Msg("breaker: circuit changed from OPEN to HALF-OPEN")
		} else {
			return ErrCircuitOpen
		}
	}
	return nil
}

func (b *Breaker) after(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil {
		b.failures++
		b.lastFailure = time.Now()
		if b.failures >= b.maxFailures {
			b.state = StateOpen
			log.Warn().Str("breaker", b.name).Int("failures", b.failures).Msg("breaker: circuit opened")
		}
		return
	}

	if b.state == StateHalfOpen {
		b.resetLocked()
	}
}

func (b *Breaker) resetLocked() {
	b.failures = 0
	b.state = StateClosed
	b.lastFailure = time.Time{}
	log.Info().Str("breaker", b.name).Msg("breaker: circuit reset to CLOSED")
}

// State reports the current state without advancing OPEN to HALF-OPEN.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}
