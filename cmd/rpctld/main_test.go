package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/remoteplay/rpctl/internal/config"
	"github.com/remoteplay/rpctl/internal/hostconfig"
	"github.com/remoteplay/rpctl/internal/session"
)

func TestSessionConfigUsesStoreAccountID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Chiaki.conf")
	require.NoError(t, os.WriteFile(path, []byte("[settings]\npsn_account_id=AAECAwQFBgc=\n"), 0o600))
	store := hostconfig.NewStore(path)

	cfg := config.Default()
	cfg.Session.Resolution = "540p"
	sc := sessionConfig(cfg, store, hostconfig.Host{Name: "PS5-Living", Address: "10.0.0.5", Target: hostconfig.HighEndTarget})

	assert.Equal(t, "10.0.0.5", sc.Host)
	assert.Equal(t, session.HighEnd, sc.Variant)
	assert.Equal(t, "540p", sc.Resolution)
	assert.Equal(t, "AAECAwQFBgc=", sc.AccountID)

	cfg.Session.PSNAccountID = "CAgICAgICAg="
	assert.Equal(t, "CAgICAgICAg=", sessionConfig(cfg, store, hostconfig.Host{}).AccountID)
}

func TestLoadConfigAppliesFlags(t *testing.T) {
	t.Setenv(config.HomeEnv, t.TempDir())
	cmd := &cobra.Command{}
	cmd.Flags().String("config", filepath.Join(t.TempDir(), "none.yaml"), "")
	cmd.Flags().String("listen", "0.0.0.0:9000", "")
	cmd.Flags().StringSlice("allowed-origin", []string{"http://tv.local"}, "")
	cmd.Flags().String("engine", "replay:/tmp/x.rprec", "")
	cmd.Flags().String("log-level", "debug", "")

	cfg, err := loadConfig(cmd)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9000", cfg.Relay.Listen)
	assert.Equal(t, []string{"http://tv.local"}, cfg.Relay.AllowedOrigins)
	assert.Equal(t, "replay:/tmp/x.rprec", cfg.Engine)
	assert.Equal(t, "debug", cfg.Log.Level)
}
