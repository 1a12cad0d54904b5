package sink

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

const timestampLayout = "2006-01-02_15-04-05"

// Timestamp renders t as yyyy-MM-dd_HH-mm-ss-fff in t's location.
func Timestamp(t time.Time) string {
	return fmt.Sprintf("%s-%03d", t.Format(timestampLayout), t.Nanosecond()/1e6)
}

// RootSource selects where the save root lives.
type RootSource int

// Root sources.
const (
	RootData     RootSource = iota // platform data directory
	RootExplicit                   // configured path
)

// ParseRootSource parses "data" or "explicit".
func ParseRootSource(s string) (RootSource, error) {
	switch s {
	case "data", "":
		return RootData, nil
	case "explicit":
		return RootExplicit, nil
	default:
		return RootData, fmt.Errorf("unknown root source %q", s)
	}
}

// ResolveRoot returns the save root. For RootData the folder is placed in
// the platform data directory; for RootExplicit it is placed under explicit.
func ResolveRoot(src RootSource, explicit, folder string) (string, error) {
	var base string
	switch src {
	case RootExplicit:
		if explicit == "" {
			return "", fmt.Errorf("explicit save root requested but no path configured")
		}
		base = explicit
	default:
		dir, err := dataDir()
		if err != nil {
			return "", fmt.Errorf("failed to resolve data directory: %w", err)
		}
		base = filepath.Join(dir, "framestream")
	}
	if folder == "" {
		return base, nil
	}
	return filepath.Join(base, folder), nil
}

// dataDir follows XDG on Linux and os.UserConfigDir elsewhere.
func dataDir() (string, error) {
	if runtime.GOOS == "linux" {
		if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
			return dir, nil
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, ".local", "share"), nil
	}
	return os.UserConfigDir()
}
