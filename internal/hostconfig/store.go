package hostconfig

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

// DefaultPath returns the location Chiaki uses for its settings on Linux.
func DefaultPath() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "Chiaki", "Chiaki.conf")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "Chiaki", "Chiaki.conf")
}

// Store gives read access to a credential file. Every query re-reads the
// file so edits made by Chiaki show up without a restart.
type Store struct {
	Path string
}

// NewStore returns a Store for path, or for DefaultPath when path is empty.
func NewStore(path string) *Store {
	if path == "" {
		path = DefaultPath()
	}
	return &Store{Path: path}
}

// Hosts returns every registered host.
func (s *Store) Hosts() []Host {
	return ReadHosts(s.Path)
}

// ByName looks a host up by nickname.
func (s *Store) ByName(name string) (Host, bool) {
	return FindByName(s.Hosts(), name)
}

// ByMAC looks a host up by MAC address.
func (s *Store) ByMAC(mac string) (Host, bool) {
	return FindByMAC(s.Hosts(), mac)
}

// Lookup resolves ref as a nickname first and as a MAC address second.
func (s *Store) Lookup(ref string) (Host, bool) {
	hosts := s.Hosts()
	if h, ok := FindByName(hosts, ref); ok {
		return h, true
	}
	if looksLikeMAC(ref) {
		return FindByMAC(hosts, ref)
	}
	return Host{}, false
}

// AccountID returns the base64 PSN account id stored under
// settings/psn_account_id, if any.
func (s *Store) AccountID() (string, bool) {
	doc, ok := load(s.Path)
	if !ok {
		return "", false
	}
	settings, ok := doc[settingsSection]
	if !ok {
		return "", false
	}
	v, ok := settings.lookup("psn_account_id")
	if !ok || v == "" {
		return "", false
	}
	log.Debug().Str("path", s.Path).Msg("using account id from credential store")
	return v, true
}

func looksLikeMAC(ref string) bool {
	n := NormalizeMAC(ref)
	if len(n) != 12 {
		return false
	}
	return strings.IndexFunc(n, func(r rune) bool {
		return !('0' <= r && r <= '9') && !('A' <= r && r <= 'F')
	}) < 0
}
