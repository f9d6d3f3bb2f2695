// Package ptt drives the push-to-talk line of the radio. Two drivers exist:
// a GPIO character-device driver for real hardware and a mock for
// development machines and tests.
package ptt

// Driver keys and releases the transmitter. Both operations are idempotent;
// Cleanup forces the line inactive and releases it.
type Driver interface {
	Set(active bool) error
	Cleanup()
}
