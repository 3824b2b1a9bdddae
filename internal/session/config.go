package session

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/remoteplay/rpctl/internal/constants"
	"github.com/remoteplay/rpctl/internal/engine"
	"github.com/remoteplay/rpctl/internal/hostconfig"
)

// Variant distinguishes console generations. It only changes the data sent
// to the engine and the reported capabilities.
type Variant int

const (
	Standard Variant = iota
	HighEnd
)

func (v Variant) String() string {
	if v == HighEnd {
		return "ps5"
	}
	return "ps4"
}

// Capabilities lists features that depend on the console generation.
type Capabilities struct {
	Haptics          bool `json:"haptic_feedback"`
	AdaptiveTriggers bool `json:"adaptive_triggers"`
}

// Capabilities returns the feature set of v.
func (v Variant) Capabilities() Capabilities {
	if v == HighEnd {
		return Capabilities{Haptics: true, AdaptiveTriggers: true}
	}
	return Capabilities{}
}

// RegistKeyEncoding selects how Config.RegistKey becomes the 16-byte field.
type RegistKeyEncoding string

const (
	// RegistKeyHex hex-decodes the key, then pads or truncates to 16 bytes.
	RegistKeyHex RegistKeyEncoding = "hex"
	// RegistKeyASCII copies the key text verbatim, as the native wrapper does.
	RegistKeyASCII RegistKeyEncoding = "ascii"
)

// Config describes one console connection.
type Config struct {
	Name       string
	Host       string
	RegistKey  string
	RPKey      string // hex
	AccountID  string // base64, empty for all zeros
	Resolution string
	FPS        int
	Variant    Variant

	RegistKeyEncoding RegistKeyEncoding
	ConnectTimeout    time.Duration
	StopTimeout       time.Duration
}

// ConfigFromHost fills a Config from a credential-store record.
func ConfigFromHost(h hostconfig.Host) Config {
	cfg := Config{
		Name:      h.Name,
		Host:      h.Address,
		RegistKey: h.RegistKey,
		RPKey:     h.RPKeyHex(),
	}
	if h.IsPS5() {
		cfg.Variant = HighEnd
	}
	return cfg
}

func (c Config) withDefaults() Config {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = constants.ConnectTimeout
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = constants.StopJoinTimeout
	}
	if c.RegistKeyEncoding == "" {
		c.RegistKeyEncoding = RegistKeyHex
	}
	return c
}

// ConnectInfo assembles the engine parameters. Unknown resolution or fps
// values fall back to 720p and 60 fps.
func (c Config) ConnectInfo() (engine.ConnectInfo, error) {
	c = c.withDefaults()
	info := engine.ConnectInfo{
		Host: c.Host,
		PS5:  c.Variant == HighEnd,
	}
	info.Resolution, _ = engine.ParseResolution(c.Resolution)
	info.FPS, _ = engine.ParseFPS(c.FPS)

	if strings.TrimSpace(c.Host) == "" {
		return info, fmt.Errorf("no host address for %q", c.Name)
	}

	switch c.RegistKeyEncoding {
	case RegistKeyHex:
		b, err := hex.DecodeString(c.RegistKey)
		if err != nil {
			return info, fmt.Errorf("registration key is not hex: %w", err)
		}
		copy(info.RegistKey[:], b)
	case RegistKeyASCII:
		copy(info.RegistKey[:], c.RegistKey)
	default:
		return info, fmt.Errorf("unknown registration key encoding %q", c.RegistKeyEncoding)
	}

	rp, err := hex.DecodeString(c.RPKey)
	if err != nil {
		return info, fmt.Errorf("session key is not hex: %w", err)
	}
	copy(info.RPKey[:], rp)

	if c.AccountID != "" {
		id, err := base64.StdEncoding.DecodeString(c.AccountID)
		if err != nil {
			return info, fmt.Errorf("account id is not base64: %w", err)
		}
		copy(info.AccountID[:], id)
	}
	return info, nil
}
