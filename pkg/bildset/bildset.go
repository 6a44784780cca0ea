// Package bildset prepares image datasets for training: it synthesizes
// placeholder images from prompts, packs and unpacks image/keyword pair
// archives, auto-labels images from a keyword vocabulary, and persists
// paired runs to disk.
package bildset

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds configuration shared by the generator and labeler apps.
type Config struct {
	// GeneratorAddr is the host:port the generator app binds to.
	GeneratorAddr string `yaml:"generatorAddr"`
	// LabelerAddr is the host:port the labeler app binds to.
	LabelerAddr string `yaml:"labelerAddr"`
	// DataDir is the root for training runs and label exports.
	DataDir string `yaml:"dataDir"`
	// ImageWidth and ImageHeight set the synthesized image dimensions.
	ImageWidth  int `yaml:"imageWidth"`
	ImageHeight int `yaml:"imageHeight"`
	// DefaultVocabulary pre-fills the labeler's keyword form.
	DefaultVocabulary []string `yaml:"defaultVocabulary"`
}

// DefaultConfig returns a config with working defaults for both apps.
func DefaultConfig() *Config {
	return &Config{
		GeneratorAddr: "localhost:8000",
		LabelerAddr:   "localhost:8001",
		DataDir:       "data",
		ImageWidth:    512,
		ImageHeight:   512,
	}
}

// LoadConfig reads a YAML config file, filling unset fields with defaults.
func LoadConfig(path string) (*Config, error) {
	c := DefaultConfig()
	if path == "" {
		return c, nil
	}

	bs, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(bs, c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if c.ImageWidth <= 0 {
		c.ImageWidth = 512
	}
	if c.ImageHeight <= 0 {
		c.ImageHeight = 512
	}

	return c, nil
}
