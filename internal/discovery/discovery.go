// Package discovery finds consoles on the local network by driving the
// chiaki command line tool and parsing what it prints.
package discovery

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/remoteplay/rpctl/internal/constants"
)

// DefaultBinary is looked up on PATH when Options.Binary is empty.
const DefaultBinary = "chiaki-cli"

// Console is one console answering a broadcast discovery.
type Console struct {
	Host string `json:"host"`
	Type string `json:"type,omitempty"`
	Name string `json:"name,omitempty"`
}

// Status is the reply of a directed discovery to one console.
type Status struct {
	Host         string `json:"host"`
	Name         string `json:"name,omitempty"`
	Type         string `json:"type,omitempty"`
	State        string `json:"state,omitempty"`
	RunningApp   string `json:"running_app,omitempty"`
	RunningAppID string `json:"running_app_id,omitempty"`
	HostID       string `json:"host_id,omitempty"`
	Online       bool   `json:"online"`
}

// Runner executes the discovery tool and returns its combined output.
type Runner func(ctx context.Context, binary string, args ...string) ([]byte, error)

// Options configures discovery.
type Options struct {
	Binary  string
	Timeout time.Duration
	// Runner defaults to RunPTY.
	Runner Runner
}

func (o Options) withDefaults() Options {
	if o.Binary == "" {
		o.Binary = DefaultBinary
	}
	if o.Timeout <= 0 {
		o.Timeout = constants.DiscoveryTimeout
	}
	if o.Runner == nil {
		o.Runner = RunPTY
	}
	return o
}

// Discover broadcasts on the local network. Tool failures are logged and
// yield whatever was parsed so far, possibly nothing.
func Discover(ctx context.Context, opts Options) []Console {
	opts = opts.withDefaults()
	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	out, err := opts.Runner(ctx, opts.Binary, "discover")
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		log.Warn().Err(err).Str("binary", opts.Binary).Msg("discovery failed")
	}
	consoles := ParseDiscover(string(out))
	log.Debug().Int("count", len(consoles)).Msg("discovery finished")
	return consoles
}

// QueryStatus asks one console for its state.
func QueryStatus(ctx context.Context, host string, opts Options) (*Status, error) {
	opts = opts.withDefaults()
	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	out, err := opts.Runner(ctx, opts.Binary, "discover", "--host", host)
	if err != nil {
		log.Warn().Err(err).Str("host", host).Msg("status query failed")
		return nil, fmt.Errorf("discovery: status of %s: %w", host, err)
	}
	return ParseStatus(host, string(out)), nil
}

// ParseDiscover extracts consoles from lines carrying "Host:", "Type:" and
// "Name:" tokens. Name runs to the end of the line.
func ParseDiscover(output string) []Console {
	var consoles []Console
	sc := bufio.NewScanner(strings.NewReader(output))
	for sc.Scan() {
		line := sc.Text()
		if !strings.Contains(line, "Host:") {
			continue
		}
		var c Console
		parts := strings.Fields(line)
	fields:
		for i, part := range parts {
			switch part {
			case "Host:":
				if i+1 < len(parts) {
					c.Host = parts[i+1]
				}
			case "Type:":
				if i+1 < len(parts) {
					c.Type = parts[i+1]
				}
			case "Name:":
				c.Name = strings.Join(parts[i+1:], " ")
				break fields
			}
		}
		if c != (Console{}) {
			consoles = append(consoles, c)
		}
	}
	return consoles
}

var logTag = regexp.MustCompile(`^\s*\[[A-Z]\]\s*`)

// ParseStatus maps "Key: value" lines of a directed discovery. A console is
// online when its state is "ready".
func ParseStatus(host, output string) *Status {
	st := &Status{Host: host}
	sc := bufio.NewScanner(strings.NewReader(output))
	for sc.Scan() {
		key, value, ok := strings.Cut(sc.Text(), ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(logTag.ReplaceAllString(key, ""))
		value = strings.TrimSpace(value)
		switch key {
		case "Host Name":
			st.Name = value
		case "Host Type":
			st.Type = value
		case "State":
			st.State = value
		case "Running App Name":
			st.RunningApp = value
		case "Running App Title ID":
			st.RunningAppID = value
		case "Host ID":
			st.HostID = value
		}
	}
	st.Online = strings.EqualFold(st.State, "ready")
	return st
}
