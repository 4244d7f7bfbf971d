package feed

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config describes one shard feed.
type Config struct {
	// Source is the path of the manifest listing the shard files. Required.
	Source string `yaml:"source"`

	// BatchSize is the number of rows per emitted batch. Required, > 0.
	BatchSize int `yaml:"batch_size"`

	// Shuffle enables shard-order and row-order shuffling. Default false:
	// rows are visited in storage order, shards in manifest order.
	Shuffle bool `yaml:"shuffle"`

	// Outputs is the ordered list of array names to load from every shard.
	// At least one is required. When image mode is on, Outputs[0] is the
	// image array.
	Outputs []string `yaml:"outputs"`

	// Seed for the feed's RNG (shuffling, crop and mirror decisions).
	// Zero means a time-based seed.
	Seed int64 `yaml:"seed"`

	// Image configures optional image-mode materialization of Outputs[0].
	Image ImageConfig `yaml:"image"`
}

// ImageConfig holds the image-mode transform parameters. When Enabled, each
// row of Outputs[0] is decoded as a channel-major HxWx3 8-bit image and run
// through crop/mirror/mean-subtraction instead of being raw-copied.
type ImageConfig struct {
	Enabled  bool      `yaml:"enabled"`
	CropSize int       `yaml:"crop_size"` // 0 disables cropping
	Mirror   bool      `yaml:"mirror"`
	Mean     []float32 `yaml:"mean"` // per-channel, empty disables subtraction
}

// LoadConfig reads and validates a YAML config file.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "opening config %s", path)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "decoding config %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, errors.Wrapf(err, "config %s", path)
	}
	return cfg, nil
}

// Validate reports the first configuration problem found. Configuration
// errors are not recoverable; a feed cannot be constructed from a config
// that fails validation.
func (c Config) Validate() error {
	if c.Source == "" {
		return errors.New("source manifest path is required")
	}
	if c.BatchSize <= 0 {
		return errors.Errorf("batch_size must be positive, got %d", c.BatchSize)
	}
	if len(c.Outputs) == 0 {
		return errors.New("at least one output name is required")
	}
	seen := make(map[string]bool, len(c.Outputs))
	for _, name := range c.Outputs {
		if name == "" {
			return errors.New("output names must be non-empty")
		}
		if seen[name] {
			return errors.Errorf("duplicate output name %q", name)
		}
		seen[name] = true
	}
	if c.Image.Enabled {
		if c.Image.CropSize < 0 {
			return errors.Errorf("crop_size must not be negative, got %d", c.Image.CropSize)
		}
		if n := len(c.Image.Mean); n != 0 && n != 3 {
			return errors.Errorf("mean must list 3 per-channel values, got %d", n)
		}
	}
	return nil
}
