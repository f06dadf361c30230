package capture

import (
	"errors"
	"fmt"
	"sync"

	"github.com/bwmarrin/snowflake"
)

var (
	// ErrCaptureInFlight rejects a second identical capture while the first
	// is still running.
	ErrCaptureInFlight = errors.New("capture_in_flight")
	// ErrCaptureUnresolved rejects retries after a gateway timeout: the
	// outcome of the first attempt is unknown and must be resolved (via
	// ClearAttempt) before the same charge may be retried.
	ErrCaptureUnresolved = errors.New("capture_unresolved")
)

type attemptState int

const (
	attemptInFlight attemptState = iota
	attemptUnresolved
)

// attempts is the process-local double-submit guard for one logical checkout
// attempt (order id + amount).
type attempts struct {
	mu sync.Mutex
	m  map[string]attemptState
}

func newAttempts() *attempts {
	return &attempts{m: map[string]attemptState{}}
}

func attemptKey(orderID snowflake.ID, amount float64) string {
	return fmt.Sprintf("%s:%.2f", orderID, amount)
}

func (a *attempts) begin(orderID snowflake.ID, amount float64) (string, error) {
	key := attemptKey(orderID, amount)
	a.mu.Lock()
	defer a.mu.Unlock()

	switch state, ok := a.m[key]; {
	case ok && state == attemptInFlight:
		return "", ErrCaptureInFlight
	case ok && state == attemptUnresolved:
		return "", ErrCaptureUnresolved
	}

	a.m[key] = attemptInFlight
	return key, nil
}

func (a *attempts) finish(key string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.m, key)
}

// markUnresolved poisons the key after an unknown-outcome gateway call.
func (a *attempts) markUnresolved(key string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.m[key] = attemptUnresolved
}

func (a *attempts) clear(orderID snowflake.ID, amount float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.m, attemptKey(orderID, amount))
}
