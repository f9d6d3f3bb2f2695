package tts

import (
	"context"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// WatchVoices rescans the Piper voice list whenever model files change in
// the models directory. Events are debounced because copying a large .onnx
// produces a burst of writes. Blocks until ctx is done.
func WatchVoices(ctx context.Context, p *Piper, log zerolog.Logger) error {
	log = log.With().Str("component", "voice_watcher").Logger()

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(p.modelsDir); err != nil {
		return err
	}

	var pending *time.Timer
	defer func() {
		if pending != nil {
			pending.Stop()
		}
	}()
	rescan := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !strings.Contains(ev.Name, ".onnx") {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if pending != nil {
				pending.Stop()
			}
			pending = time.AfterFunc(2*time.Second, func() {
				select {
				case rescan <- struct{}{}:
				default:
				}
			})
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("voice watcher error")
		case <-rescan:
			log.Debug().Msg("voice models changed, rescanning")
			p.Rescan()
		}
	}
}
