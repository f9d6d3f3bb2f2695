package tts

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// knownVoices maps the French voice ids we ship labels for. Any other
// <id>.onnx dropped into the models directory is still picked up, with the
// id doubling as label.
var knownVoices = map[string]string{
	"fr_FR-siwis-medium": "Siwis (Féminine, Claire) - Medium",
	"fr_FR-tom-medium":   "Tom (Masculine, Grave) - Medium",
	"fr_FR-upmc-medium":  "UPMC (Neutre, Professionnelle) - Medium",
	"fr_FR-gilles-low":   "Gilles (Masculine, Rapide) - Low",
	"fr_FR-siwis-low":    "Siwis (Féminine, Claire, Rapide) - Low",
}

// Piper runs the piper binary as a subprocess. A voice is installed by
// dropping <voice-id>.onnx plus <voice-id>.onnx.json into the models
// directory; discovery rescans on demand and on fsnotify events.
type Piper struct {
	bin       string
	modelsDir string
	log       zerolog.Logger

	mu      sync.RWMutex
	voices  []Voice
	version string
}

func NewPiper(bin, modelsDir string, log zerolog.Logger) *Piper {
	p := &Piper{
		bin:       bin,
		modelsDir: modelsDir,
		log:       log.With().Str("component", "tts").Logger(),
	}
	p.version = p.probeVersion()
	p.Rescan()
	return p
}

func (p *Piper) ID() string      { return "piper" }
func (p *Piper) Version() string { return p.version }

func (p *Piper) probeVersion() string {
	out, err := exec.Command(p.bin, "--version").CombinedOutput()
	if err != nil {
		return "unknown"
	}
	return strings.TrimSpace(string(out))
}

func (p *Piper) Voices() []Voice {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Voice, len(p.voices))
	copy(out, p.voices)
	return out
}

// Rescan rebuilds the voice list from the models directory. A voice counts
// as installed only when both the model and its config sit next to each
// other.
func (p *Piper) Rescan() {
	entries, err := os.ReadDir(p.modelsDir)
	if err != nil {
		p.log.Warn().Err(err).Str("dir", p.modelsDir).Msg("cannot scan voice models")
		entries = nil
	}

	var voices []Voice
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".onnx") {
			continue
		}
		id := strings.TrimSuffix(name, ".onnx")
		if _, err := os.Stat(filepath.Join(p.modelsDir, name+".json")); err != nil {
			p.log.Warn().Str("voice", id).Msg("voice model without config, skipping")
			continue
		}
		label := knownVoices[id]
		if label == "" {
			label = id
		}
		voices = append(voices, Voice{
			ID:        id,
			Label:     label,
			Languages: []string{strings.SplitN(id, "_", 2)[0]},
			EngineID:  p.ID(),
		})
	}

	p.mu.Lock()
	p.voices = voices
	p.mu.Unlock()
	p.log.Info().Int("voices", len(voices)).Msg("voice models scanned")
}

func (p *Piper) modelPath(voiceID string) string {
	return filepath.Join(p.modelsDir, voiceID+".onnx")
}

// ModelVersion is size_mtime of the model file, so replacing the file
// invalidates cached audio for that voice.
func (p *Piper) ModelVersion(voiceID string) string {
	fi, err := os.Stat(p.modelPath(voiceID))
	if err != nil {
		return "unknown"
	}
	return fmt.Sprintf("%d_%d", fi.Size(), fi.ModTime().Unix())
}

func (p *Piper) Synthesize(ctx context.Context, text, voiceID, outputPath string, params map[string]any) error {
	model := p.modelPath(voiceID)
	config := model + ".json"
	if _, err := os.Stat(model); err != nil {
		return fmt.Errorf("voice model %s: %w", voiceID, err)
	}
	if _, err := os.Stat(config); err != nil {
		return fmt.Errorf("voice config %s: %w", voiceID, err)
	}

	args := []string{
		"--model", model,
		"--config", config,
		"--output_file", outputPath,
	}
	if v, ok := floatParam(params, "length_scale"); ok {
		args = append(args, "--length_scale", strconv.FormatFloat(v, 'f', -1, 64))
	}
	if v, ok := floatParam(params, "noise_scale"); ok {
		args = append(args, "--noise_scale", strconv.FormatFloat(v, 'f', -1, 64))
	}

	cmd := exec.CommandContext(ctx, p.bin, args...)
	cmd.Stdin = strings.NewReader(text)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		os.Remove(outputPath)
		return fmt.Errorf("piper voice %s: %w: %s", voiceID, err, strings.TrimSpace(stderr.String()))
	}
	if fi, err := os.Stat(outputPath); err != nil || fi.Size() == 0 {
		os.Remove(outputPath)
		return fmt.Errorf("piper voice %s produced no audio", voiceID)
	}
	return nil
}

// floatParam reads a numeric voice parameter. Params come out of a JSON
// column, so numbers may arrive as float64 or json.Number strings.
func floatParam(params map[string]any, key string) (float64, bool) {
	raw, ok := params[key]
	if !ok {
		return 0, false
	}
	switch v := raw.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	}
	return 0, false
}
