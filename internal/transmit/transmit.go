// Package transmit keys the radio and plays announcement audio. Its one
// hard guarantee: the PTT line is never left active after Transmit
// returns, whatever went wrong in between.
package transmit

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/f4lix/vhf-balise/internal/metrics"
	"github.com/f4lix/vhf-balise/internal/ptt"
)

// ErrPTT marks failures of the keying path itself, including failure to
// acquire the transmit lock in time.
var ErrPTT = errors.New("ptt error")

// ErrTimeout is returned when the watchdog cuts a transmission off. The
// ledger row must end FAILED even if the player finishes later.
var ErrTimeout = errors.New("transmission watchdog timeout")

// PlayFunc plays one audio file to completion. Injected so tests do not
// need a sound card.
type PlayFunc func(ctx context.Context, audioPath string) error

// Sequencer serializes every transmission in the process. One announcement
// on air at a time, enforced by a single-slot lock.
type Sequencer struct {
	driver ptt.Driver
	play   PlayFunc
	log    zerolog.Logger
	lock   chan struct{}
}

func NewSequencer(driver ptt.Driver, play PlayFunc, log zerolog.Logger) *Sequencer {
	if play == nil {
		play = PlayAudio
	}
	s := &Sequencer{
		driver: driver,
		play:   play,
		log:    log.With().Str("component", "transmit").Logger(),
		lock:   make(chan struct{}, 1),
	}
	s.lock <- struct{}{}
	return s
}

// Transmit runs one key-up cycle: lead silence, audio, tail silence. The
// watchdog preempts the playback wait: after timeout the line is forced
// inactive, the playback context is cancelled, and Transmit returns
// ErrTimeout without waiting for the player.
func (s *Sequencer) Transmit(ctx context.Context, audioPath string, lead, tail, timeout time.Duration) error {
	// Check the file before touching any radio state.
	if _, err := os.Stat(audioPath); err != nil {
		return fmt.Errorf("audio file: %w", err)
	}

	select {
	case <-s.lock:
	case <-time.After(timeout):
		return fmt.Errorf("%w: transmit lock not acquired within %s", ErrPTT, timeout)
	case <-ctx.Done():
		return ctx.Err()
	}

	start := time.Now()
	playCtx, cancel := context.WithCancel(ctx)

	timedOut := make(chan struct{})
	watchdog := time.AfterFunc(timeout, func() {
		s.log.Error().
			Str("severity", "critical").
			Dur("timeout", timeout).
			Msg("watchdog expired, forcing ptt inactive")
		if err := s.driver.Set(false); err != nil {
			s.log.Error().Err(err).Msg("watchdog could not release ptt")
		}
		metrics.PTTActive.Set(0)
		close(timedOut)
		cancel()
	})

	// The guarded region runs in its own goroutine and owns the transmit
	// lock until the player actually returns, even past the watchdog
	// deadline. A player stuck beyond the cutoff keeps the lock, so the
	// next transmission fails closed on lock acquisition.
	done := make(chan error, 1)
	go func() {
		defer func() { s.lock <- struct{}{} }()
		err := s.keyAndPlay(playCtx, audioPath, lead, tail)
		if offErr := s.driver.Set(false); offErr != nil {
			s.log.Error().Err(offErr).Msg("cannot release ptt after transmission")
			if err == nil {
				err = fmt.Errorf("%w: %v", ErrPTT, offErr)
			}
		}
		metrics.PTTActive.Set(0)
		cancel()
		done <- err
	}()

	var err error
	select {
	case err = <-done:
		if !watchdog.Stop() {
			// The watchdog fired while playback was finishing; the
			// announcement was cut off on air, report it as such.
			<-timedOut
			err = fmt.Errorf("%w: playback exceeded %s", ErrTimeout, timeout)
		}
	case <-timedOut:
		err = fmt.Errorf("%w: playback exceeded %s", ErrTimeout, timeout)
	}

	metrics.TransmitDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return err
	}
	s.log.Info().Str("audio", audioPath).Dur("duration", time.Since(start)).Msg("transmission complete")
	return nil
}

func (s *Sequencer) keyAndPlay(ctx context.Context, audioPath string, lead, tail time.Duration) error {
	if err := s.driver.Set(true); err != nil {
		return fmt.Errorf("%w: key up: %v", ErrPTT, err)
	}
	metrics.PTTActive.Set(1)

	if err := sleep(ctx, lead); err != nil {
		return err
	}
	if err := s.play(ctx, audioPath); err != nil {
		return fmt.Errorf("playback: %w", err)
	}
	return sleep(ctx, tail)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
