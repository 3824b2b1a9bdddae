package engine

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResolution(t *testing.T) {
	cases := map[string]ResolutionPreset{
		"360p":  Resolution360p,
		"540p":  Resolution540p,
		"720p":  Resolution720p,
		"1080P": Resolution1080p,
	}
	for in, want := range cases {
		got, ok := ParseResolution(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}

	got, ok := ParseResolution("4k")
	assert.False(t, ok)
	assert.Equal(t, Resolution720p, got)
	assert.Equal(t, "720p", got.String())
}

func TestParseFPS(t *testing.T) {
	got, ok := ParseFPS(30)
	assert.True(t, ok)
	assert.Equal(t, FPS30, got)

	got, ok = ParseFPS(144)
	assert.False(t, ok)
	assert.Equal(t, FPS60, got)
}

func TestIdleControllerState(t *testing.T) {
	s := IdleControllerState()
	assert.Zero(t, s.Buttons)
	assert.Equal(t, float32(1), s.OrientW)
	for _, touch := range s.Touches {
		assert.Equal(t, int8(-1), touch.ID)
	}
	s.Buttons |= uint32(ButtonPS)
	assert.True(t, s.Has(ButtonPS))
	assert.False(t, s.Has(ButtonCross))
}

func TestLogLevelMapping(t *testing.T) {
	assert.Equal(t, zerolog.ErrorLevel, LogError.ZerologLevel())
	assert.Equal(t, zerolog.WarnLevel, LogWarning.ZerologLevel())
	assert.Equal(t, zerolog.InfoLevel, LogInfo.ZerologLevel())
	assert.Equal(t, zerolog.DebugLevel, LogVerbose.ZerologLevel())
	assert.Equal(t, zerolog.TraceLevel, LogDebug.ZerologLevel())
}

type nopEngine struct{ arg string }

func (e nopEngine) Name() string { return "nop" }
func (e nopEngine) Create(ConnectInfo) (Handle, error) { return nil, ErrUnavailable }

func TestRegistryOpen(t *testing.T) {
	Register("test-nop", func(arg string) (Engine, error) { return nopEngine{arg: arg}, nil })

	e, err := Open("test-nop:/some/path")
	require.NoError(t, err)
	assert.Equal(t, "/some/path", e.(nopEngine).arg)
	assert.Contains(t, Names(), "test-nop")

	_, err = Open("missing")
	assert.Error(t, err)

	assert.Panics(t, func() { Register("test-nop", nil) })
}
