package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sst/mentions/internal/suggest"
	"github.com/sst/mentions/internal/trigger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points every config search path at empty temp dirs and forgets any
// previously loaded config.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	Reset()
	t.Cleanup(Reset)
	return t.TempDir()
}

func writeLocal(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".mentions.json"), []byte(content), 0o644))
}

func TestLoadDefaults(t *testing.T) {
	wd := isolate(t)
	lvl := new(slog.LevelVar)
	lvl.Set(slog.LevelWarn)

	c, err := Load(wd, false, lvl)
	require.NoError(t, err)

	assert.Equal(t, wd, c.WorkingDir)
	assert.Equal(t, 200*time.Millisecond, c.DebounceDuration())
	assert.Equal(t, 5*time.Second, c.TimeoutDuration())
	assert.Equal(t, 7, c.Overlay.MaxVisible)
	assert.False(t, c.Overlay.Wrap)
	assert.Equal(t, "allow", c.Tokens.Duplicates)
	assert.True(t, c.Recents.Enabled)
	assert.Equal(t, 5, c.Recents.Limit)
	assert.Equal(t, filepath.Join(wd, ".mentions"), c.DataDir())
	assert.Equal(t, trigger.DefaultTriggers, c.TriggerMap())
	assert.Equal(t, slog.LevelInfo, lvl.Level())
	assert.Same(t, c, Get())
	assert.Equal(t, wd, WorkingDirectory())
}

func TestLoadDebug(t *testing.T) {
	wd := isolate(t)
	lvl := new(slog.LevelVar)

	c, err := Load(wd, true, lvl)
	require.NoError(t, err)
	assert.True(t, c.Debug)
	assert.Equal(t, slog.LevelDebug, lvl.Level())
}

func TestLoadLocalFile(t *testing.T) {
	wd := isolate(t)
	writeLocal(t, wd, `{
		"triggers": {"#": "topic", "!": "command"},
		"search": {"debounce": 50, "catalog": "catalog.jsonc"},
		"overlay": {"maxVisible": 4, "wrap": true, "emptyMessages": {"topic": "No matching topics"}},
		"tokens": {"duplicates": "reject"},
		"presets": [{"id": "1", "label": "technology", "kind": "topic"}]
	}`)

	c, err := Load(wd, false, nil)
	require.NoError(t, err)

	assert.Equal(t, 50*time.Millisecond, c.DebounceDuration())
	assert.Equal(t, 4, c.Overlay.MaxVisible)
	assert.True(t, c.Overlay.Wrap)
	assert.Equal(t, "No matching topics", c.Overlay.EmptyMessages["topic"])
	assert.Equal(t, "reject", c.Tokens.Duplicates)
	assert.Equal(t, filepath.Join(wd, "catalog.jsonc"), c.CatalogPath())
	assert.Equal(t, map[rune]trigger.Kind{'#': trigger.KindTopic, '!': trigger.KindCommand}, c.TriggerMap())
	require.Len(t, c.Presets, 1)
	assert.Equal(t, "technology", c.Presets[0].Label)
	assert.Equal(t, trigger.KindTopic, c.Presets[0].Kind)
}

func TestLoadEnv(t *testing.T) {
	wd := isolate(t)
	t.Setenv("MENTIONS_SEARCH_DEBOUNCE", "75")

	c, err := Load(wd, false, nil)
	require.NoError(t, err)
	assert.Equal(t, 75*time.Millisecond, c.DebounceDuration())
}

func TestLoadInvalidJSON(t *testing.T) {
	wd := isolate(t)
	writeLocal(t, wd, `{"search": `)

	_, err := Load(wd, false, nil)
	assert.Error(t, err)
}

func TestLoadReturnsCached(t *testing.T) {
	wd := isolate(t)
	first, err := Load(wd, false, nil)
	require.NoError(t, err)
	second, err := Load(t.TempDir(), true, nil)
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Search:  SearchConfig{Debounce: 200, MaxResults: 10},
			Overlay: OverlayConfig{MaxVisible: 7},
			Tokens:  TokensConfig{Duplicates: "allow"},
		}
	}
	base := valid()
	require.NoError(t, base.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"multi rune trigger", func(c *Config) { c.Triggers = map[string]string{"##": "topic"} }, "triggers"},
		{"letter trigger", func(c *Config) { c.Triggers = map[string]string{"a": "topic"} }, "triggers"},
		{"space trigger", func(c *Config) { c.Triggers = map[string]string{" ": "topic"} }, "triggers"},
		{"trigger without kind", func(c *Config) { c.Triggers = map[string]string{"#": ""} }, "triggers"},
		{"negative debounce", func(c *Config) { c.Search.Debounce = -1 }, "search.debounce"},
		{"remote not http", func(c *Config) { c.Search.Remote = "ftp://example.com" }, "search.remote"},
		{"zero visible rows", func(c *Config) { c.Overlay.MaxVisible = 0 }, "overlay.maxVisible"},
		{"unknown duplicate policy", func(c *Config) { c.Tokens.Duplicates = "merge" }, "tokens.duplicates"},
		{"preset without id", func(c *Config) { c.Presets = []suggest.Preset{{Label: "x"}} }, "presets[0]"},
		{"valid preset", func(c *Config) { c.Presets = []suggest.Preset{{ID: "1", Label: "x"}} }, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			err := c.Validate()
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidConfig))
			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestValidateCollectsAll(t *testing.T) {
	c := Config{Search: SearchConfig{Debounce: -5}, Tokens: TokensConfig{Duplicates: "x"}}
	err := c.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "search.debounce")
	assert.Contains(t, err.Error(), "overlay.maxVisible")
	assert.Contains(t, err.Error(), "tokens.duplicates")
}
