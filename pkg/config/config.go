// Package config provides configuration loading and management for pixelseg.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"

	"gopkg.in/yaml.v3"

	"pixelseg/internal/models"
	"pixelseg/pkg/classifier"
	"pixelseg/pkg/features"
	"pixelseg/pkg/labels"
)

// CustomLabel is a user-defined class declared in the configuration file
type CustomLabel struct {
	ID    int    `yaml:"id"`
	Name  string `yaml:"name"`
	Color []int  `yaml:"color,omitempty"` // [r, g, b]; generated when empty
}

// Config represents the application configuration loaded from YAML
type Config struct {
	// Processing parameters
	Processing struct {
		// NumCores specifies how many CPU cores to use for parallel processing
		NumCores int `yaml:"numCores"`

		// GaussianSigma is the standard deviation of the "gaussian" feature map
		GaussianSigma float64 `yaml:"gaussianSigma"`

		// DoGSigmas are the two blur widths subtracted by the "dog" feature map
		DoGSigmas []float64 `yaml:"dogSigmas"`
	} `yaml:"processing"`

	// Feature selection
	Features struct {
		// Selected lists the filters to extract in addition to "raw"
		Selected []string `yaml:"selected"`

		EnableGabor   bool `yaml:"enableGabor"`
		EnableHessian bool `yaml:"enableHessian"`

		// SubstituteNonFinite replaces NaN/Inf feature values with 0 instead of
		// dropping them from the pixel vector
		SubstituteNonFinite bool `yaml:"substituteNonFinite"`
	} `yaml:"features"`

	// Classifier parameters
	Classifier struct {
		// K is the maximum number of neighbours that vote
		K int `yaml:"k"`

		// Index is the neighbour search structure: linear or kdtree
		Index string `yaml:"index"`
	} `yaml:"classifier"`

	// Label names and colors
	Labels struct {
		// Palette selects the built-in table: classic or contrast
		Palette string        `yaml:"palette"`
		Custom  []CustomLabel `yaml:"custom,omitempty"`
	} `yaml:"labels"`

	// Segmentation output
	Segmentation struct {
		// Binary writes a 0/255 foreground mask instead of a label map
		Binary bool `yaml:"binary"`

		// ForegroundLabels are the labels mapped to 255 in a binary mask
		ForegroundLabels []int `yaml:"foregroundLabels"`

		// WriteColor also writes a color rendering of the label map
		WriteColor bool `yaml:"writeColor"`
	} `yaml:"segmentation"`

	// Brush used when painting labels
	Brush struct {
		Size int `yaml:"size"`
	} `yaml:"brush"`

	// Enhancement applied to images before feature extraction. Factors are
	// relative to 1.0, which leaves the image unchanged.
	Enhance struct {
		Brightness float64 `yaml:"brightness"`
		Contrast   float64 `yaml:"contrast"`
		Sharpness  float64 `yaml:"sharpness"`

		// Denoise applies a median-style smoothing pass
		Denoise bool `yaml:"denoise"`
	} `yaml:"enhance"`

	// Output parameters
	Output struct {
		// SaveFeaturePreviews writes every feature map as a grayscale PNG
		SaveFeaturePreviews bool `yaml:"saveFeaturePreviews"`

		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`

		// LogJSON switches logs from console to JSON lines
		LogJSON bool `yaml:"logJSON"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	// Set default processing parameters
	cfg.Processing.NumCores = runtime.NumCPU() // Use all available cores by default
	cfg.Processing.GaussianSigma = 1.0
	cfg.Processing.DoGSigmas = []float64{1.0, 1.6}

	// Set default feature parameters
	cfg.Features.Selected = []string{features.Gaussian, features.Sobel}
	cfg.Features.EnableGabor = true
	cfg.Features.EnableHessian = true

	cfg.Classifier.K = classifier.DefaultK
	cfg.Classifier.Index = string(classifier.IndexLinear)

	cfg.Labels.Palette = "classic"

	cfg.Segmentation.ForegroundLabels = []int{int(models.Cell), int(models.Nucleus), int(models.Membrane)}
	cfg.Segmentation.WriteColor = true

	cfg.Brush.Size = 10

	cfg.Enhance.Brightness = 1.0
	cfg.Enhance.Contrast = 1.0
	cfg.Enhance.Sharpness = 1.0

	// Set default output parameters
	cfg.Output.Verbose = true

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
	}

	return cfg, nil
}

// Validate checks value ranges and names
func (c *Config) Validate() error {
	if c.Processing.GaussianSigma <= 0 {
		return fmt.Errorf("processing.gaussianSigma must be positive, got %g", c.Processing.GaussianSigma)
	}
	if len(c.Processing.DoGSigmas) != 2 || c.Processing.DoGSigmas[0] <= 0 || c.Processing.DoGSigmas[1] <= 0 {
		return fmt.Errorf("processing.dogSigmas must hold two positive values, got %v", c.Processing.DoGSigmas)
	}
	available := c.Extractor().Available()
	for _, name := range c.Features.Selected {
		if !features.IsKnown(name) {
			return fmt.Errorf("features.selected: unknown filter %q (known: %v)", name, features.KnownFilters())
		}
		if !slices.Contains(available, name) {
			return fmt.Errorf("features.selected: filter %q is disabled", name)
		}
	}
	if c.Classifier.K < 1 {
		return fmt.Errorf("classifier.k must be at least 1, got %d", c.Classifier.K)
	}
	if _, err := classifier.ParseIndex(c.Classifier.Index); err != nil {
		return fmt.Errorf("classifier.index: %w", err)
	}
	if _, err := labels.Palette(c.Labels.Palette); err != nil {
		return fmt.Errorf("labels.palette: %w", err)
	}
	for _, l := range c.Labels.Custom {
		if l.ID < int(models.FirstCustom) || l.ID > 0xffff {
			return fmt.Errorf("labels.custom: id %d outside %d..65535", l.ID, models.FirstCustom)
		}
		if len(l.Color) != 0 && len(l.Color) != 3 {
			return fmt.Errorf("labels.custom: color of %q must have three channels", l.Name)
		}
		for _, ch := range l.Color {
			if ch < 0 || ch > 255 {
				return fmt.Errorf("labels.custom: color channel %d of %q outside 0..255", ch, l.Name)
			}
		}
	}
	for _, id := range c.Segmentation.ForegroundLabels {
		if id < 1 || id > 0xffff {
			return fmt.Errorf("segmentation.foregroundLabels: invalid label %d", id)
		}
	}
	if c.Brush.Size < 1 {
		return fmt.Errorf("brush.size must be at least 1, got %d", c.Brush.Size)
	}
	return nil
}

// Extractor builds a feature extractor from the processing and feature sections
func (c *Config) Extractor() *features.Extractor {
	e := features.NewExtractor()
	e.GaussianSigma = c.Processing.GaussianSigma
	if len(c.Processing.DoGSigmas) == 2 {
		e.DoGSigmas = [2]float64{c.Processing.DoGSigmas[0], c.Processing.DoGSigmas[1]}
	}
	e.EnableGabor = c.Features.EnableGabor
	e.EnableHessian = c.Features.EnableHessian
	e.SubstituteNonFinite = c.Features.SubstituteNonFinite
	return e
}

// LabelTable builds the label table from the palette and custom labels
func (c *Config) LabelTable() (*labels.Table, error) {
	table, err := labels.Palette(c.Labels.Palette)
	if err != nil {
		return nil, err
	}
	for _, l := range c.Labels.Custom {
		id := models.Label(l.ID)
		color := labels.GeneratedColor(id)
		if len(l.Color) == 3 {
			color = [3]uint8{uint8(l.Color[0]), uint8(l.Color[1]), uint8(l.Color[2])}
		}
		table.Set(id, l.Name, color)
	}
	return table, nil
}

// Foreground returns the binary-mask foreground labels
func (c *Config) Foreground() []models.Label {
	out := make([]models.Label, len(c.Segmentation.ForegroundLabels))
	for i, id := range c.Segmentation.ForegroundLabels {
		out[i] = models.Label(id)
	}
	return out
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	// Marshal config to YAML
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	// Write to file
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
