package config

import (
	"os"
	"path/filepath"
)

// HomeEnv overrides the rpctl home directory.
const HomeEnv = "RPCTL_HOME"

// Paths is the on-disk layout under the rpctl home.
type Paths struct {
	Home        string // ~/.rpctl
	Config      string // YAML configuration file
	HistoryDB   string // sqlite run history
	Recordings  string // stream recordings and metadata
	Screenshots string // decoded stills
	Logs        string // daemon logs
}

// GetHome returns the rpctl home directory (~/.rpctl unless RPCTL_HOME is
// set).
func GetHome() string {
	if h := os.Getenv(HomeEnv); h != "" {
		return ExpandPath(h)
	}
	userHome, _ := os.UserHomeDir()
	return filepath.Join(userHome, ".rpctl")
}

// GetPaths returns the layout rooted at GetHome.
func GetPaths() Paths {
	home := GetHome()
	return Paths{
		Home:        home,
		Config:      filepath.Join(home, "config.yaml"),
		HistoryDB:   filepath.Join(home, "history.db"),
		Recordings:  filepath.Join(home, "recordings"),
		Screenshots: filepath.Join(home, "screenshots"),
		Logs:        filepath.Join(home, "logs"),
	}
}

// ExpandPath expands ~ to the user home directory.
func ExpandPath(path string) string {
	if len(path) == 0 {
		return path
	}
	if path[0] == '~' {
		home, _ := os.UserHomeDir()
		if len(path) == 1 {
			return home
		}
		if path[1] == '/' || path[1] == os.PathSeparator {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}

// EnsureDirs creates the directory structure if it does not exist.
func EnsureDirs() (Paths, error) {
	paths := GetPaths()
	for _, dir := range []string{paths.Home, paths.Recordings, paths.Screenshots, paths.Logs} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return paths, err
		}
	}
	return paths, nil
}
