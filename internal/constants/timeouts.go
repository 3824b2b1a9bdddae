package constants

import "time"

// Shared duration vocabulary used by timeouts and polling loops.
const (
	Duration2Milliseconds   = 2 * time.Millisecond
	Duration10Milliseconds  = 10 * time.Millisecond
	Duration100Milliseconds = 100 * time.Millisecond
	Duration200Milliseconds = 200 * time.Millisecond
	Duration250Milliseconds = 250 * time.Millisecond
	Duration500Milliseconds = 500 * time.Millisecond

	Duration1500Milliseconds = 1500 * time.Millisecond

	Duration1Second   = 1 * time.Second
	Duration5Seconds  = 5 * time.Second
	Duration10Seconds = 10 * time.Second
	Duration15Seconds = 15 * time.Second
	Duration54Seconds = 54 * time.Second
	Duration60Seconds = 60 * time.Second
)

// Session and streaming timing.
const (
	// FramePollInterval paces the frame pump at 500 Hz.
	FramePollInterval = Duration2Milliseconds
	// IFramePollInterval paces the wait for a requested keyframe.
	IFramePollInterval = Duration10Milliseconds
	// IFrameTimeout bounds the wait for a requested keyframe.
	IFrameTimeout = Duration5Seconds

	ConnectTimeout    = Duration15Seconds
	StopJoinTimeout   = Duration5Seconds
	DiscoveryTimeout  = Duration5Seconds
	PlayerStopTimeout = Duration1Second

	// DurationPressHold is how long Press keeps a button down.
	DurationPressHold = Duration100Milliseconds
	// ScreenshotWakeDelay gives the console time to react to the PS button
	// before a keyframe is requested.
	ScreenshotWakeDelay = Duration1500Milliseconds

	ScriptPressDuration = Duration250Milliseconds
	ScriptDelayDefault  = Duration500Milliseconds
	ScriptPressGap      = Duration100Milliseconds
)

// Relay transport timing.
const (
	RelayWriteWait  = Duration10Seconds
	RelayPongWait   = Duration60Seconds
	RelayPingPeriod = Duration54Seconds
)
