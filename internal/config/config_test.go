package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deid-export/internal/override"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "deid.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Run.Workers)
	assert.True(t, cfg.Run.Recursive)
	assert.Nil(t, cfg.Run.DateIncrement)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "auto", cfg.Logging.Format)
	assert.Equal(t, override.DefaultKeyColumn, cfg.Overrides.KeyColumn)
	assert.Equal(t, override.DefaultSubjectField, cfg.Overrides.SubjectField)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
[run]
workers = 8
output_dir = " /data/out "
salt = "s3cret"
recursive = false
date_increment = -17

[log]
level = "DEBUG"
format = "json"

[metrics]
textfile = "/var/lib/node_exporter/deid.prom"

[overrides]
key_column = "folder"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Run.Workers)
	assert.Equal(t, "/data/out", cfg.Run.OutputDir)
	assert.Equal(t, "s3cret", cfg.Run.Salt)
	assert.False(t, cfg.Run.Recursive)
	require.NotNil(t, cfg.Run.DateIncrement)
	assert.Equal(t, -17, *cfg.Run.DateIncrement)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "/var/lib/node_exporter/deid.prom", cfg.Metrics.Textfile)
	assert.Equal(t, "folder", cfg.Overrides.KeyColumn)
	assert.Equal(t, override.DefaultSubjectField, cfg.Overrides.SubjectField)
}

func TestLoadRejects(t *testing.T) {
	tests := map[string]string{
		"unknown field":  "[run]\nthreads = 2\n",
		"zero workers":   "[run]\nworkers = 0\n",
		"bad level":      "[log]\nlevel = \"loud\"\n",
		"bad format":     "[log]\nformat = \"xml\"\n",
		"invalid syntax": "[run\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.ErrorContains(t, err, "open config")
}
