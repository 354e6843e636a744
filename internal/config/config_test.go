package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/roach88/ruletrace/internal/rule"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ruletrace.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "ruletrace.db", cfg.Store)
	assert.Equal(t, rule.NamingIndex, cfg.Naming())
	assert.Equal(t, rule.UnmatchedAllZero, cfg.Unmatched())
	assert.Equal(t, zapcore.InfoLevel, cfg.Level())
	assert.Equal(t, "serving", cfg.Serving.Name)
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := writeConfig(t, `store: /tmp/rules.db
log_level: debug
onehot:
  unmatched: other
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/rules.db", cfg.Store)
	assert.Equal(t, zapcore.DebugLevel, cfg.Level())
	assert.Equal(t, rule.UnmatchedOther, cfg.Unmatched())
	assert.Equal(t, rule.NamingIndex, cfg.Naming(), "unset keys keep their defaults")
	assert.Equal(t, "serving", cfg.Serving.Name)
}

func TestLoadEmptyFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFileNotFound(t *testing.T) {
	cfg, err := Load("/nonexistent/ruletrace.yml")
	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "failed to read config")
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"bad naming", "onehot:\n  naming: label\n", "invalid onehot.naming"},
		{"bad unmatched", "onehot:\n  unmatched: drop\n", "invalid onehot.unmatched"},
		{"bad level", "log_level: loud\n", "invalid log_level"},
		{"empty serving name", "serving:\n  name: \"\"\n", "serving.name is required"},
		{"empty store", "store: \"\"\n", "store is required"},
		{"unknown key", "stores: x\n", "failed to parse YAML"},
		{"invalid yaml", "onehot: [\n", "failed to parse YAML"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
