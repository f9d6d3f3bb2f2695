package ptt

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/warthog618/go-gpiocdev"
)

// GPIODriver keys the transmitter through a GPIO line. The active level is
// configurable because some interface boards key on low.
type GPIODriver struct {
	log zerolog.Logger

	mu       sync.Mutex
	line     *gpiocdev.Line
	activeHi bool
	released bool
}

// NewGPIODriver requests the line as an output already at the inactive
// wire level, so the transmitter is never keyed, not even for the instant
// between the request and the first Set.
func NewGPIODriver(chip string, pin int, activeLevel int, log zerolog.Logger) (*GPIODriver, error) {
	if chip == "" {
		chip = "gpiochip0"
	}
	activeHi := activeLevel != 0

	line, err := gpiocdev.RequestLine(chip, pin,
		gpiocdev.AsOutput(hwValue(false, activeHi)),
		gpiocdev.WithConsumer("vhf-balise-ptt"))
	if err != nil {
		return nil, fmt.Errorf("request %s pin %d: %w", chip, pin, err)
	}

	d := &GPIODriver{
		log:      log.With().Str("component", "ptt").Int("pin", pin).Logger(),
		line:     line,
		activeHi: activeHi,
	}
	// Confirm through the same path every later key-down takes.
	if err := d.Set(false); err != nil {
		line.Close()
		return nil, err
	}
	d.log.Info().Int("active_level", activeLevel).Msg("gpio ptt ready")
	return d, nil
}

// hwValue maps a logical ptt state to the wire level under the configured
// active level.
func hwValue(active, activeHi bool) int {
	if active == activeHi {
		return 1
	}
	return 0
}

func (d *GPIODriver) Set(active bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return fmt.Errorf("ptt line already released")
	}
	if err := d.line.SetValue(hwValue(active, d.activeHi)); err != nil {
		return fmt.Errorf("set ptt %v: %w", active, err)
	}
	return nil
}

// Cleanup drives the line inactive and releases it. Safe to call twice.
func (d *GPIODriver) Cleanup() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return
	}
	if err := d.line.SetValue(hwValue(false, d.activeHi)); err != nil {
		d.log.Error().Err(err).Msg("cannot force ptt inactive during cleanup")
	}
	if err := d.line.Close(); err != nil {
		d.log.Error().Err(err).Msg("cannot release ptt line")
	}
	d.released = true
	d.log.Info().Msg("gpio ptt released")
}
