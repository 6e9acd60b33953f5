package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestNewDefault(t *testing.T) {
	cfg := NewDefault()
	assert.Equal(t, AlgorithmRTA, cfg.Algorithm)
	assert.True(t, cfg.OnTheFly)
	assert.False(t, cfg.ReflectionEnabled(), "no trace file configured")
	assert.NoError(t, cfg.Validate())
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "config.yaml", `
algorithm: cha
on-the-fly: false
reflection-log: refl.log
alias-propagation: true
max-steps: 1000
log-level: debug
entry-points:
  - "<ex.Main: void main(java.lang.String[])>"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, AlgorithmCHA, cfg.Algorithm)
	assert.False(t, cfg.OnTheFly)
	assert.True(t, cfg.Reflection, "defaults survive")
	assert.True(t, cfg.ReflectionEnabled())
	assert.True(t, cfg.AliasPropagation)
	assert.Equal(t, 1000, cfg.MaxSteps)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "refl.log"), cfg.RelPath(cfg.ReflectionLog))

	sigs, err := cfg.EntryPointSigs()
	require.NoError(t, err)
	require.Len(t, sigs, 1)
	assert.Equal(t, "main", sigs[0].Name())
}

func TestLoadTOML(t *testing.T) {
	path := writeFile(t, "config.toml", `
algorithm = "rta"
require-reflection-log = true
entry-points = ["<ex.Main: void main(java.lang.String[])>"]
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, AlgorithmRTA, cfg.Algorithm)
	assert.True(t, cfg.RequireReflectionLog)
	assert.Len(t, cfg.EntryPoints, 1)

	_, err = Load(writeFile(t, "bad.toml", `unknown-option = 1`))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestLoadInvalid(t *testing.T) {
	for name, content := range map[string]string{
		"Algorithm":  "algorithm: spark",
		"MaxSteps":   "max-steps: -1",
		"LogLevel":   "log-level: loud",
		"EntryPoint": "entry-points: [main]",
	} {
		content := content
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeFile(t, "config.yaml", content))
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}

	_, err := Load(writeFile(t, "config.yaml", "algorithm: cha\nunknown-option: 1\n"))
	assert.ErrorContains(t, err, "unknown-option", "unknown keys are rejected")

	_, err = Load(writeFile(t, "empty.yaml", ""))
	assert.NoError(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestNewLogger(t *testing.T) {
	cfg := NewDefault()
	cfg.LogLevel = "warn"

	var buf bytes.Buffer
	log := NewLoggerTo(cfg, &buf)
	assert.Equal(t, logrus.WarnLevel, log.GetLevel())

	log.Info("hidden")
	log.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}
