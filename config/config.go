// Package config holds the named options of an analysis run.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BarrensZeppelin/jvmpointer/ir"
	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Names of the call graph algorithms seeding the analysis.
const (
	AlgorithmCHA = "cha"
	AlgorithmRTA = "rta"
)

type Options struct {
	// Algorithm seeding the analysis, "cha" or "rta".
	Algorithm string `yaml:"algorithm" toml:"algorithm"`

	// OnTheFly lets the points-to solver discover reachable methods and call
	// edges itself. When false, the seed call graph is built up front and
	// its edges bind parameters and return values.
	OnTheFly bool `yaml:"on-the-fly" toml:"on-the-fly"`

	// Reflection enables the reflection model.
	Reflection bool `yaml:"reflection" toml:"reflection"`

	// ReflectionLog is the path of a Tamiflex trace. Empty disables the
	// reflection model.
	ReflectionLog string `yaml:"reflection-log" toml:"reflection-log"`

	// RequireReflectionLog makes a failure to read the reflection log abort
	// the analysis instead of disabling the reflection model.
	RequireReflectionLog bool `yaml:"require-reflection-log" toml:"require-reflection-log"`

	AliasPropagation bool `yaml:"alias-propagation" toml:"alias-propagation"`

	// MaxSteps bounds the number of solver steps. 0 means unlimited.
	MaxSteps int `yaml:"max-steps" toml:"max-steps"`

	// EntryPoints are method signatures in the form "<C: ret name(params)>".
	EntryPoints []string `yaml:"entry-points" toml:"entry-points"`

	// LogLevel is one of error, warn, info, debug or trace.
	LogLevel string `yaml:"log-level" toml:"log-level"`
}

type Config struct {
	Options `yaml:",inline"`

	sourceFile string
}

// NewDefault returns the default configuration.
func NewDefault() *Config {
	return &Config{
		Options: Options{
			Algorithm:  AlgorithmRTA,
			OnTheFly:   true,
			Reflection: true,
			MaxSteps:   0,
			LogLevel:   "info",
		},
	}
}

var ErrInvalidConfig = errors.New("invalid configuration")

// Load reads a configuration file over the defaults. Files ending in .toml
// are decoded as TOML, anything else as YAML.
func Load(filename string) (*Config, error) {
	cfg := NewDefault()
	b, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("could not read config file: %w", err)
	}

	if strings.EqualFold(filepath.Ext(filename), ".toml") {
		md, err := toml.Decode(string(b), &cfg.Options)
		if err != nil {
			return nil, fmt.Errorf("could not unmarshal config file as toml: %w", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("%w: unknown option %v", ErrInvalidConfig, undecoded[0])
		}
	} else {
		dec := yaml.NewDecoder(bytes.NewReader(b))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && err != io.EOF {
			return nil, fmt.Errorf("could not unmarshal config file as yaml: %w", err)
		}
	}

	cfg.sourceFile = filename
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the option values.
func (c *Config) Validate() error {
	switch c.Algorithm {
	case AlgorithmCHA, AlgorithmRTA:
	default:
		return fmt.Errorf("%w: unknown algorithm %q", ErrInvalidConfig, c.Algorithm)
	}
	if c.MaxSteps < 0 {
		return fmt.Errorf("%w: negative max-steps", ErrInvalidConfig)
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if _, err := c.EntryPointSigs(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// EntryPointSigs parses the configured entry points.
func (c *Config) EntryPointSigs() ([]ir.MethodSig, error) {
	sigs := make([]ir.MethodSig, 0, len(c.EntryPoints))
	for _, s := range c.EntryPoints {
		sig, err := ir.ParseMethodSig(s)
		if err != nil {
			return nil, err
		}
		sigs = append(sigs, sig)
	}
	return sigs, nil
}

// ReflectionEnabled reports whether a reflection log should be loaded.
func (c *Config) ReflectionEnabled() bool {
	return c.Reflection && c.ReflectionLog != ""
}

// RelPath resolves a path relative to the directory of the configuration
// file.
func (c *Config) RelPath(filename string) string {
	if c.sourceFile == "" || filepath.IsAbs(filename) {
		return filename
	}
	return filepath.Join(filepath.Dir(c.sourceFile), filename)
}
