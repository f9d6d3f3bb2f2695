package transmit

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// PlayAudio plays a WAV synchronously through ALSA, falling back to
// PulseAudio when aplay is absent or refuses the device.
func PlayAudio(ctx context.Context, audioPath string) error {
	aplayErr := runPlayer(ctx, "aplay", audioPath)
	if aplayErr == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if paplayErr := runPlayer(ctx, "paplay", audioPath); paplayErr == nil {
		return nil
	} else {
		return fmt.Errorf("aplay: %v; paplay: %v", aplayErr, paplayErr)
	}
}

func runPlayer(ctx context.Context, bin, audioPath string) error {
	cmd := exec.CommandContext(ctx, bin, audioPath)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return fmt.Errorf("%s: %w: %s", bin, err, msg)
		}
		return fmt.Errorf("%s: %w", bin, err)
	}
	return nil
}
