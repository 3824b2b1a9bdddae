package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetHomeHonoursEnv(t *testing.T) {
	t.Setenv(HomeEnv, "/tmp/rpctl-home")
	assert.Equal(t, "/tmp/rpctl-home", GetHome())

	t.Setenv(HomeEnv, "")
	userHome, _ := os.UserHomeDir()
	assert.Equal(t, filepath.Join(userHome, ".rpctl"), GetHome())
}

func TestGetPaths(t *testing.T) {
	t.Setenv(HomeEnv, "/srv/rpctl")
	p := GetPaths()
	assert.Equal(t, "/srv/rpctl/config.yaml", p.Config)
	assert.Equal(t, "/srv/rpctl/history.db", p.HistoryDB)
	assert.Equal(t, "/srv/rpctl/recordings", p.Recordings)
}

func TestExpandPath(t *testing.T) {
	home, _ := os.UserHomeDir()
	assert.Equal(t, home, ExpandPath("~"))
	assert.Equal(t, filepath.Join(home, "x", "y"), ExpandPath("~/x/y"))
	assert.Equal(t, "/abs", ExpandPath("/abs"))
	assert.Equal(t, "~other", ExpandPath("~other"))
	assert.Equal(t, "", ExpandPath(""))
}

func TestEnsureDirs(t *testing.T) {
	t.Setenv(HomeEnv, filepath.Join(t.TempDir(), "home"))
	p, err := EnsureDirs()
	require.NoError(t, err)
	for _, dir := range []string{p.Home, p.Recordings, p.Screenshots, p.Logs} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv(HomeEnv, t.TempDir())
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "chiaki", cfg.Engine)
	assert.Equal(t, "720p", cfg.Session.Resolution)
	assert.Equal(t, 60, cfg.Session.FPS)
	assert.Equal(t, 15*time.Second, cfg.Session.ConnectTimeout)
	assert.Equal(t, 2*time.Millisecond, cfg.Stream.PollInterval)
	assert.True(t, cfg.History.Enabled)
}

func TestLoadPartialFileAndEnv(t *testing.T) {
	t.Setenv(HomeEnv, t.TempDir())
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
engine: replay:/tmp/a.rprec
session:
  resolution: 1080p
  connect_timeout: 3s
stream:
  iframe_timeout: 2500ms
log:
  format: json
`), 0o644))
	t.Setenv(EnvLogLevel, "debug")
	t.Setenv(EnvAccountID, "AQIDBAUGBwg=")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "replay:/tmp/a.rprec", cfg.Engine)
	assert.Equal(t, "1080p", cfg.Session.Resolution)
	assert.Equal(t, 60, cfg.Session.FPS)
	assert.Equal(t, 3*time.Second, cfg.Session.ConnectTimeout)
	assert.Equal(t, 2500*time.Millisecond, cfg.Stream.IFrameTimeout)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "AQIDBAUGBwg=", cfg.Session.PSNAccountID)

	t.Setenv(EnvEngine, "chiaki")
	cfg, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, "chiaki", cfg.Engine)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("session:\n  regist_key_encoding: base32\n"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte("session: [unterminated\n"), 0o644))
	_, err = Load(path)
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	t.Setenv(HomeEnv, t.TempDir())
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")
	cfg := Default()
	cfg.Session.Resolution = "540p"
	cfg.Relay.AllowedOrigins = []string{"http://localhost:3000"}
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "540p", loaded.Session.Resolution)
	assert.Equal(t, []string{"http://localhost:3000"}, loaded.Relay.AllowedOrigins)
}
