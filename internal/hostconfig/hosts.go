// Package hostconfig reads registered remote-play hosts and their pairing
// secrets from a Chiaki.conf file.
package hostconfig

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/remoteplay/rpctl/internal/bytearray"
)

const (
	registeredSection = "registered_hosts"
	manualSection     = "manual_hosts"
	settingsSection   = "settings"

	// HighEndTarget is the first target version of the PS5 generation.
	HighEndTarget = 1000000
)

// Host is one registered console as recorded in the credential store.
type Host struct {
	Name      string `json:"name,omitempty"`
	MAC       string `json:"mac,omitempty"`
	RPKey     []byte `json:"-"`
	RegistKey string `json:"-"`
	Target    int    `json:"target,omitempty"`

	APSSID  string `json:"ap_ssid,omitempty"`
	APKey   string `json:"-"`
	APBSSID string `json:"ap_bssid,omitempty"`
	APName  string `json:"ap_name,omitempty"`

	// From manual_hosts, merged by position.
	Address string `json:"host,omitempty"`
	ID      int    `json:"id,omitempty"`
	HasID   bool   `json:"-"`
}

// IsPS5 reports whether the target version belongs to the PS5 generation.
func (h Host) IsPS5() bool {
	return h.Target >= HighEndTarget
}

// RPKeyHex returns the session key material as lower-case hex.
func (h Host) RPKeyHex() string {
	return hex.EncodeToString(h.RPKey)
}

// ReadHosts parses the credential file at path. A missing or unreadable file
// yields an empty slice.
func ReadHosts(path string) []Host {
	doc, ok := load(path)
	if !ok {
		return []Host{}
	}
	return hostsFromDocument(doc)
}

func load(path string) (document, bool) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.Debug().Str("path", path).Msg("credential store not found")
		} else {
			log.Warn().Err(err).Str("path", path).Msg("credential store unreadable")
		}
		return nil, false
	}
	defer f.Close()

	doc, err := parseINI(f)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("credential store parse stopped early")
	}
	return doc, true
}

func hostsFromDocument(doc document) []Host {
	hosts := []Host{}
	registered, ok := doc[registeredSection]
	if !ok {
		return hosts
	}

	size := 0
	if raw, ok := registered.lookup("size"); ok {
		n, err := strconv.Atoi(raw)
		if err != nil {
			log.Warn().Str("value", raw).Msg("registered_hosts size is not an integer")
		} else {
			size = n
		}
	}

	for i := 1; i <= size; i++ {
		if h, found := readHost(registered, i); found {
			hosts = append(hosts, h)
		}
	}

	if manual, ok := doc[manualSection]; ok {
		for i := range hosts {
			key := indexKey(i+1, "host")
			if v, ok := manual.lookup(key); ok {
				hosts[i].Address = v
			}
			if v, ok := manual.lookup(indexKey(i+1, "id")); ok {
				if id, err := strconv.Atoi(v); err == nil {
					hosts[i].ID = id
					hosts[i].HasID = true
				} else {
					log.Warn().Str("key", indexKey(i+1, "id")).Str("value", v).Msg("ignoring non-integer host id")
				}
			}
		}
	}
	return hosts
}

func readHost(s section, index int) (Host, bool) {
	var h Host
	found := false
	get := func(field string) (string, bool) {
		v, ok := s.lookup(indexKey(index, field))
		if ok {
			found = true
		}
		return v, ok
	}

	if v, ok := get("server_nickname"); ok {
		h.Name = v
	}
	if v, ok := get("server_mac"); ok {
		h.MAC = FormatMAC(bytearray.Decode(v))
	}
	if v, ok := get("rp_key"); ok {
		h.RPKey = bytearray.Decode(v)
	}
	if v, ok := get("rp_regist_key"); ok {
		h.RegistKey = asciiOnly(bytes.TrimRight(bytearray.Decode(v), "\x00"))
	}
	if v, ok := get("target"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			h.Target = n
		} else {
			log.Warn().Str("key", indexKey(index, "target")).Str("value", v).Msg("ignoring non-integer target")
		}
	}
	if v, ok := get("ap_ssid"); ok {
		h.APSSID = v
	}
	if v, ok := get("ap_key"); ok {
		h.APKey = v
	}
	if v, ok := get("ap_bssid"); ok {
		h.APBSSID = v
	}
	if v, ok := get("ap_name"); ok {
		h.APName = v
	}
	return h, found
}

func indexKey(index int, field string) string {
	return fmt.Sprintf(`%d\%s`, index, field)
}

func asciiOnly(b []byte) string {
	out := make([]byte, 0, len(b))
	for _, c := range b {
		if c < 0x80 {
			out = append(out, c)
		}
	}
	return string(out)
}

// FormatMAC renders raw octets as upper-case colon-separated hex.
func FormatMAC(b []byte) string {
	parts := make([]string, len(b))
	for i, c := range b {
		parts[i] = fmt.Sprintf("%02X", c)
	}
	return strings.Join(parts, ":")
}

// NormalizeMAC strips separators and upper-cases a MAC address for comparison.
func NormalizeMAC(mac string) string {
	r := strings.NewReplacer(":", "", "-", "")
	return strings.ToUpper(r.Replace(mac))
}

// FindByName returns the first host whose nickname equals name.
func FindByName(hosts []Host, name string) (Host, bool) {
	for _, h := range hosts {
		if h.Name == name {
			return h, true
		}
	}
	return Host{}, false
}

// FindByMAC returns the first host whose MAC matches, ignoring case and
// separators.
func FindByMAC(hosts []Host, mac string) (Host, bool) {
	want := NormalizeMAC(mac)
	for _, h := range hosts {
		if h.MAC != "" && NormalizeMAC(h.MAC) == want {
			return h, true
		}
	}
	return Host{}, false
}
