package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is the process-level configuration. Operational knobs that an
// administrator changes at runtime (poll interval, PTT pin, master enable)
// live in the store's system_settings row, not here.
type Config struct {
	DataDir string `env:"DATA_DIR" envDefault:"/opt/vhf-balise/data"`

	HTTPAddr     string        `env:"HTTP_ADDR" envDefault:":8080"`
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
	IdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`

	AuthToken string `env:"AUTH_TOKEN"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`

	// PiperBin is the piper executable used for synthesis.
	PiperBin string `env:"PIPER_BIN" envDefault:"piper"`

	// GPIOChip is the character device the PTT line lives on. The pin
	// itself is runtime configuration in system settings.
	GPIOChip string `env:"GPIO_CHIP" envDefault:"gpiochip0"`

	// Locale keys the audio cache; announcements are rendered in French.
	Locale string `env:"TTS_LOCALE" envDefault:"fr-FR"`
}

// Load reads configuration from an optional .env file and the environment.
// Priority: environment variables > .env file > struct defaults.
func Load() (*Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		_ = godotenv.Load(".env")
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DatabasePath is the sqlite file under the data root.
func (c *Config) DatabasePath() string { return filepath.Join(c.DataDir, "vhf-balise.db") }

// AudioCacheDir holds synthesized WAV files keyed by cache hash.
func (c *Config) AudioCacheDir() string { return filepath.Join(c.DataDir, "audio_cache") }

// ModelsDir holds the Piper voice models (<voice>.onnx + <voice>.onnx.json).
func (c *Config) ModelsDir() string { return filepath.Join(c.DataDir, "tts_models") }

// LogDir holds the runner's text log.
func (c *Config) LogDir() string { return filepath.Join(c.DataDir, "logs") }

// PIDFile is the runner's single-instance lock file.
func (c *Config) PIDFile() string { return filepath.Join(c.DataDir, "runner.pid") }

// EnsureDirs creates the data-root layout.
func (c *Config) EnsureDirs() error {
	for _, dir := range []string{c.DataDir, c.AudioCacheDir(), c.ModelsDir(), c.LogDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}
