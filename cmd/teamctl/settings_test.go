package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSettingsDefaults(t *testing.T) {
	s, err := loadSettings(t.TempDir())
	require.NoError(t, err)
	require.Equal(t, defaultAPIBaseURL, s.APIBaseURL())
	require.True(t, s.DarkMode())
}

func TestSettingsPersistDarkMode(t *testing.T) {
	dir := t.TempDir()
	s, err := loadSettings(dir)
	require.NoError(t, err)
	require.NoError(t, s.SetDarkMode(false))

	reloaded, err := loadSettings(dir)
	require.NoError(t, err)
	require.False(t, reloaded.DarkMode())
}

func TestSettingsEnvOverride(t *testing.T) {
	t.Setenv("TEAMCTL_API_BASE_URL", "http://roster.internal:8080")
	s, err := loadSettings(t.TempDir())
	require.NoError(t, err)
	require.Equal(t, "http://roster.internal:8080", s.APIBaseURL())
}

func TestSettingsSaveKeepsEnvOverridesOutOfFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("api_base_url: http://file.example\n"), 0o600))
	t.Setenv("TEAMCTL_API_BASE_URL", "http://env.example")

	s, err := loadSettings(dir)
	require.NoError(t, err)
	require.Equal(t, "http://env.example", s.APIBaseURL())
	require.NoError(t, s.SetDarkMode(false))

	raw, err := os.ReadFile(filepath.Join(dir, "config.yaml"))
	require.NoError(t, err)
	require.Contains(t, string(raw), "http://file.example")
	require.NotContains(t, string(raw), "env.example")
	require.Contains(t, string(raw), "dark_mode: false")
}

func TestListFlagCollectsRepeats(t *testing.T) {
	var members listFlag
	require.NoError(t, members.Set("u1"))
	require.NoError(t, members.Set(" u2 "))
	require.NoError(t, members.Set("Ready, set, go?"))
	require.Equal(t, listFlag{"u1", "u2", "Ready, set, go?"}, members)
	require.True(t, members.provided())
}
