package ptt

import (
	"sync"

	"github.com/rs/zerolog"
)

// MockDriver stands in for hardware when no GPIO pin is configured. It
// journals every transition so tests can assert on key-up/key-down order.
type MockDriver struct {
	log zerolog.Logger

	mu          sync.Mutex
	active      bool
	transitions []bool
	failSet     error
}

func NewMockDriver(log zerolog.Logger) *MockDriver {
	return &MockDriver{log: log.With().Str("component", "ptt").Str("driver", "mock").Logger()}
}

func (d *MockDriver) Set(active bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failSet != nil {
		return d.failSet
	}
	if d.active != active {
		d.transitions = append(d.transitions, active)
		d.log.Info().Bool("active", active).Msg("mock ptt")
	}
	d.active = active
	return nil
}

func (d *MockDriver) Cleanup() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.active {
		d.transitions = append(d.transitions, false)
	}
	d.active = false
}

// Active reports the current simulated line state.
func (d *MockDriver) Active() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active
}

// Transitions returns the journal of state changes since construction.
func (d *MockDriver) Transitions() []bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]bool, len(d.transitions))
	copy(out, d.transitions)
	return out
}

// FailNextSets makes every Set call return err until reset with nil.
func (d *MockDriver) FailNextSets(err error) {
	d.mu.Lock()
	d.failSet = err
	d.mu.Unlock()
}
