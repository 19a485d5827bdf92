package internal

import (
	"strconv"
	"sync/atomic"
)

// A process-wide switch seeded from linker flags.
//
// The raw linker value is parsed once at startup; command-line flags may
// override it afterwards through the exported setters.
type mode struct {
	enabled atomic.Bool
}

// Parses raw as a boolean and stores it. Unparseable values leave the mode
// disabled.
func (m *mode) seed(raw string) {
	if v, err := strconv.ParseBool(raw); err == nil {
		m.enabled.Store(v)
	}
}

var (
	quietMode   mode // Suppresses informational output.
	debugMode   mode // Enables debug logging.
	verboseMode mode // Adds source locations and attributes to log output.
	noCacheMode mode // Skips cache restore and dump for the run.
)

func init() {
	quietMode.seed(rawQuiet)
	debugMode.seed(rawDebug)
	verboseMode.seed(rawVerbose)
	noCacheMode.seed(rawNoCache)
}

// Enables or disables quiet mode.
func SetQuiet(enabled bool) { quietMode.enabled.Store(enabled) }

// Returns true if quiet mode is enabled.
func IsQuiet() bool { return quietMode.enabled.Load() }

// Enables or disables debug mode.
func SetDebug(enabled bool) { debugMode.enabled.Store(enabled) }

// Returns true if debug mode is enabled.
func IsDebug() bool { return debugMode.enabled.Load() }

// Enables or disables verbose logging.
func SetVerbose(enabled bool) { verboseMode.enabled.Store(enabled) }

// Returns true if verbose logging is enabled.
func IsVerbose() bool { return verboseMode.enabled.Load() }

// Enables or disables the directory cache.
//
// With the cache disabled, builds start from empty dependency and output
// directories and nothing is written back to the host.
func SetNoCache(enabled bool) { noCacheMode.enabled.Store(enabled) }

// Returns true if the directory cache is disabled.
func IsNoCache() bool { return noCacheMode.enabled.Load() }
