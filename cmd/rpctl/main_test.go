package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/remoteplay/rpctl/internal/config"
	"github.com/remoteplay/rpctl/internal/engine/enginetest"
	"github.com/remoteplay/rpctl/internal/history"
	"github.com/remoteplay/rpctl/internal/hostconfig"
	"github.com/remoteplay/rpctl/internal/session"
	"github.com/remoteplay/rpctl/internal/stream"
)

const credentials = `[settings]
psn_account_id=AAECAwQFBgc=

[registered_hosts]
1\rp_key=@ByteArray(\x1\x2\x3\x4\x5\x6\a\b\t\n\v\f\r\xe\xf\x10)
1\rp_regist_key=@ByteArray(d77687f8\0\0\0\0\0\0\0\0)
1\server_mac=@ByteArray(\0\x11\x22\x33\x44U)
1\server_nickname=PS5-Living
1\target=1000100
2\rp_key=@ByteArray(\x1\x2\x3\x4\x5\x6\a\b\t\n\v\f\r\xe\xf\x10)
2\rp_regist_key=@ByteArray(abc\0)
2\server_mac=@ByteArray(\xbc\x60\xa7\x92JF)
2\server_nickname=PS4-Den
2\target=1000
size=2

[manual_hosts]
1\host=192.168.1.50
1\id=1
size=1
`

func TestRootCommandRegistersEverySubcommand(t *testing.T) {
	root := newRootCommand()
	want := []string{"hosts", "discover", "status", "stream", "screenshot", "record", "control", "script", "history", "version"}
	for _, name := range want {
		sub, _, err := root.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, sub.Name())
	}
}

func TestParseKeys(t *testing.T) {
	cases := []struct {
		name  string
		input []byte
		want  []string
		quit  bool
	}{
		{"letters", []byte("wasd"), []string{"up", "left", "down", "right"}, false},
		{"uppercase", []byte("K"), []string{"cross"}, false},
		{"arrows", []byte("\x1b[A\x1b[D"), []string{"up", "left"}, false},
		{"unknown ignored", []byte("zq"), nil, false},
		{"ctrl-c stops", []byte("k\x03l"), []string{"cross"}, true},
		{"ctrl-d stops", []byte{keyCtrlD}, nil, true},
		{"enter and backspace", []byte{'\r', 0x7f}, []string{"cross", "circle"}, false},
		{"bare escape", []byte{keyEsc}, nil, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, quit := parseKeys(tc.input)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, tc.quit, quit)
		})
	}
}

func TestKeymapHelpListsEveryButton(t *testing.T) {
	help := keymapHelp()
	for _, name := range keymap {
		assert.Contains(t, help, name)
	}
	assert.Contains(t, help, "space")
}

func TestOutcomeFor(t *testing.T) {
	assert.Equal(t, history.OutcomeCompleted, outcomeFor(nil))
	assert.Equal(t, history.OutcomeCancelled, outcomeFor(fmt.Errorf("stream: %w", context.Canceled)))
	assert.Equal(t, history.OutcomeFailed, outcomeFor(errors.New("boom")))
}

func TestEndedNormally(t *testing.T) {
	assert.True(t, endedNormally(nil))
	assert.True(t, endedNormally(context.Canceled))
	assert.True(t, endedNormally(fmt.Errorf("%w: consumer exited", stream.ErrSinkClosed)))
	assert.False(t, endedNormally(stream.ErrCaptureTimeout))
	assert.False(t, endedNormally(stream.ErrSessionEnded), "a console quit exits non-zero")
}

func runSessionConfig() session.Config {
	return session.Config{
		Name:      "PS5-Living",
		Host:      "192.168.1.30",
		RegistKey: "a1b2c3d4",
		RPKey:     "00112233445566778899aabbccddeeff",
	}
}

func TestRunSessionEndsWhenConsoleQuits(t *testing.T) {
	eng := &enginetest.Engine{}
	errc := make(chan error, 1)
	go func() {
		errc <- runSession(context.Background(), runSessionConfig(), eng, nil, func(ctx context.Context, _ *session.Session, _ *runTracker) error {
			<-ctx.Done()
			return ctx.Err()
		})
	}()

	require.Eventually(t, func() bool { return eng.Last() != nil && eng.Last().IsConnected() }, time.Second, time.Millisecond)
	eng.Last().Quit("console shut down")

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, stream.ErrSessionEnded)
		assert.Contains(t, err.Error(), "console shut down")
		assert.Equal(t, history.OutcomeFailed, outcomeFor(err))
	case <-time.After(time.Second):
		t.Fatal("session callback kept running after the console quit")
	}
	assert.True(t, eng.Last().Closed())
}

func TestRunSessionKeepsCallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	err := runSession(ctx, runSessionConfig(), &enginetest.Engine{}, nil, func(ctx context.Context, _ *session.Session, _ *runTracker) error {
		cancel()
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, endedNormally(err))
}

func TestRunSessionStreamsUntilQuit(t *testing.T) {
	eng := &enginetest.Engine{OnRequestIDR: enginetest.ProvideIFrame}
	sink := stream.SinkFunc(func([]byte) error { return nil })
	errc := make(chan error, 1)
	go func() {
		errc <- runSession(context.Background(), runSessionConfig(), eng, nil, func(ctx context.Context, s *session.Session, _ *runTracker) error {
			_, err := stream.Stream(ctx, s, sink, stream.Options{PollInterval: time.Millisecond, IFramePollInterval: time.Millisecond})
			return err
		})
	}()

	require.Eventually(t, func() bool { return eng.Last() != nil && eng.Last().IDRRequests() > 0 }, time.Second, time.Millisecond)
	eng.Last().Quit("recording finished")

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, stream.ErrSessionEnded)
	case <-time.After(time.Second):
		t.Fatal("stream kept polling after the console quit")
	}
}

func TestScreenshotPath(t *testing.T) {
	t.Setenv(config.HomeEnv, t.TempDir())
	now := time.Date(2024, 3, 9, 14, 5, 6, 0, time.UTC)

	got := screenshotPath(session.Config{Name: "PS5 Living/Room"}, "", now)
	assert.Equal(t, filepath.Join(config.GetPaths().Screenshots, "PS5_Living_Room-20240309-140506.png"), got)
	assert.Equal(t, "/tmp/out.h264", screenshotPath(session.Config{}, "/tmp/out.h264", now))
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "12345678", shortID("1234567890"))
	assert.Equal(t, "abc", shortID("abc"))
}

func TestNilRunTrackerIsInert(t *testing.T) {
	var tr *runTracker
	tr.record(stream.Stats{Sent: 1})
	tr.finish(errors.New("ignored"))
	tr.close()
}

func TestRunTrackerWritesHistory(t *testing.T) {
	home := t.TempDir()
	t.Setenv(config.HomeEnv, home)
	cfg = config.Default()
	cfg.History.Path = filepath.Join(home, "history.db")
	defer func() { cfg = nil }()

	tr := beginRun(context.Background(), session.Config{Name: "PS5-Living", Host: "192.168.1.50"}, "stream")
	require.NotNil(t, tr)
	tr.record(stream.Stats{Sent: 10, Missed: 2, Bytes: 4096})
	tr.finish(context.Canceled)
	tr.close()

	store, err := history.Open(cfg.History.Path)
	require.NoError(t, err)
	defer store.Close()
	runs, err := store.List(context.Background(), history.ListOptions{})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "PS5-Living", runs[0].Host)
	assert.Equal(t, "stream", runs[0].Kind)
	assert.Equal(t, uint64(10), runs[0].Sent)
	assert.Equal(t, history.OutcomeCancelled, runs[0].Outcome)
}

func TestBeginRunHonoursDisabledHistory(t *testing.T) {
	cfg = config.Default()
	cfg.History.Enabled = false
	defer func() { cfg = nil }()
	assert.Nil(t, beginRun(context.Background(), session.Config{}, "stream"))
}

type sessionConfigSuite struct {
	suite.Suite
	store *hostconfig.Store
	cfg   *config.Config
}

func (s *sessionConfigSuite) SetupTest() {
	path := filepath.Join(s.T().TempDir(), "Chiaki.conf")
	s.Require().NoError(os.WriteFile(path, []byte(credentials), 0o600))
	s.store = hostconfig.NewStore(path)
	s.cfg = config.Default()
}

func (s *sessionConfigSuite) TestResolvesByName() {
	sc, err := sessionConfig(s.cfg, s.store, "PS5-Living")
	s.Require().NoError(err)
	s.Equal("PS5-Living", sc.Name)
	s.Equal("192.168.1.50", sc.Host)
	s.Equal(session.HighEnd, sc.Variant)
	s.Equal("0102030405060708090a0b0c0d0e0f10", sc.RPKey)
	s.Equal(session.RegistKeyHex, sc.RegistKeyEncoding)
	s.Equal("AAECAwQFBgc=", sc.AccountID, "account id falls back to the credential store")
}

func (s *sessionConfigSuite) TestResolvesByMAC() {
	sc, err := sessionConfig(s.cfg, s.store, "BC:60:A7:92:4A:46")
	s.Require().NoError(err)
	s.Equal("PS4-Den", sc.Name)
	s.Equal(session.Standard, sc.Variant)
	s.Empty(sc.Host, "no manual address for the second host")
}

func (s *sessionConfigSuite) TestConfiguredSettingsWin() {
	s.cfg.Session.PSNAccountID = "CAgICAgICAg="
	s.cfg.Session.Resolution = "1080p"
	s.cfg.Session.FPS = 30
	s.cfg.Session.RegistKeyEncoding = "ascii"

	sc, err := sessionConfig(s.cfg, s.store, "PS5-Living")
	s.Require().NoError(err)
	s.Equal("CAgICAgICAg=", sc.AccountID)
	s.Equal("1080p", sc.Resolution)
	s.Equal(30, sc.FPS)
	s.Equal(session.RegistKeyASCII, sc.RegistKeyEncoding)
}

func (s *sessionConfigSuite) TestUnknownHostListsKnownNames() {
	_, err := sessionConfig(s.cfg, s.store, "Garage")
	s.Require().Error(err)
	s.Contains(err.Error(), "PS4-Den, PS5-Living")
}

func (s *sessionConfigSuite) TestEmptyStore() {
	_, err := sessionConfig(s.cfg, hostconfig.NewStore(filepath.Join(s.T().TempDir(), "missing.conf")), "PS5-Living")
	s.Require().Error(err)
	s.Contains(err.Error(), "no registered hosts")
}

func (s *sessionConfigSuite) TestStatusAddress() {
	s.Equal("192.168.1.50", statusAddress(s.store, "PS5-Living"))
	s.Equal("PS4-Den", statusAddress(s.store, "PS4-Den"), "no manual address, name passes through")
	s.Equal("10.0.0.9", statusAddress(s.store, "10.0.0.9"))
}

func TestSessionConfigSuite(t *testing.T) {
	suite.Run(t, new(sessionConfigSuite))
}
