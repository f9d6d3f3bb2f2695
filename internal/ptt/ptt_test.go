package ptt

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
)

func TestMockDriverJournal(t *testing.T) {
	d := NewMockDriver(zerolog.Nop())

	if err := d.Set(true); err != nil {
		t.Fatalf("Set(true): %v", err)
	}
	if !d.Active() {
		t.Error("line should be active")
	}
	if err := d.Set(true); err != nil {
		t.Fatalf("idempotent Set(true): %v", err)
	}
	if err := d.Set(false); err != nil {
		t.Fatalf("Set(false): %v", err)
	}

	got := d.Transitions()
	want := []bool{true, false}
	if len(got) != len(want) {
		t.Fatalf("transitions = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("transitions = %v, want %v", got, want)
		}
	}
}

func TestMockDriverCleanupForcesInactive(t *testing.T) {
	d := NewMockDriver(zerolog.Nop())
	if err := d.Set(true); err != nil {
		t.Fatal(err)
	}

	d.Cleanup()
	if d.Active() {
		t.Error("cleanup must leave the line inactive")
	}
	d.Cleanup() // second call is a no-op

	tr := d.Transitions()
	if len(tr) != 2 || tr[1] != false {
		t.Errorf("transitions = %v, want key-up then key-down", tr)
	}
}

func TestHWValueHonorsActiveLevel(t *testing.T) {
	tests := []struct {
		name     string
		active   bool
		activeHi bool
		want     int
	}{
		{"active-high idle", false, true, 0},
		{"active-high keyed", true, true, 1},
		{"active-low idle", false, false, 1},
		{"active-low keyed", true, false, 0},
	}
	for _, tt := range tests {
		if got := hwValue(tt.active, tt.activeHi); got != tt.want {
			t.Errorf("%s: hwValue(%v, %v) = %d, want %d", tt.name, tt.active, tt.activeHi, got, tt.want)
		}
	}
}

func TestMockDriverInjectedFailure(t *testing.T) {
	d := NewMockDriver(zerolog.Nop())
	boom := errors.New("wire fell off")

	d.FailNextSets(boom)
	if err := d.Set(true); !errors.Is(err, boom) {
		t.Errorf("Set err = %v, want injected failure", err)
	}

	d.FailNextSets(nil)
	if err := d.Set(true); err != nil {
		t.Errorf("Set after reset: %v", err)
	}
}
