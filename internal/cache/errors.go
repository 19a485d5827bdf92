package cache

import (
	"errors"
	"fmt"
)

var (
	ErrConfig      = errors.New("cache configuration error")
	ErrStorage     = errors.New("cache storage error")
	ErrEnvironment = errors.New("build environment error")
	ErrTool        = errors.New("cache tool error")
)

// Failure of a single cache entry during restore or dump.
type EntryError struct {
	Path string // In-environment path of the entry.
	Step string // Step that failed, such as "mount" or "export".
	Err  error  // Underlying error, tagged with one of the kinds above.
}

// Returns "cache entry <path>: <step>: <err>".
func (e *EntryError) Error() string {
	return fmt.Sprintf("cache entry %s: %s: %v", e.Path, e.Step, e.Err)
}

func (e *EntryError) Unwrap() error {
	return e.Err
}
