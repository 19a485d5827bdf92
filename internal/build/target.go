package build

import (
	"strings"

	"github.com/cruciblehq/cruxbuild/internal"
	"github.com/cruciblehq/cruxbuild/internal/fault"
)

// A build target: the short name used on the command line and in output
// paths, and the compiler triple it stands for.
type Target struct {
	Name   string
	Triple string
}

var targets = []Target{
	{Name: "x64_linux", Triple: "x86_64-unknown-linux-musl"},
	{Name: "arm64_linux", Triple: "aarch64-unknown-linux-musl"},
}

// Maps GOARCH values to target names.
var hostTargets = map[string]string{
	"amd64": "x64_linux",
	"arm64": "arm64_linux",
}

// Returns every supported target.
func Targets() []Target {
	return append([]Target(nil), targets...)
}

// Returns the target for the given name or triple.
//
// An empty name selects the host target.
func ParseTarget(name string) (Target, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return HostTarget()
	}

	for _, t := range targets {
		if t.Name == name || t.Triple == name {
			return t, nil
		}
	}

	return Target{}, fault.Wrapf(ErrTarget, "unknown target %q, want one of %s", name, strings.Join(targetNames(), ", "))
}

// Returns the target matching the architecture the binary runs on.
func HostTarget() (Target, error) {
	name, ok := hostTargets[internal.Arch()]
	if !ok {
		return Target{}, fault.Wrapf(ErrTarget, "no target for host architecture %s", internal.Arch())
	}
	return ParseTarget(name)
}

// Returns the compiler triples for names. Unknown names are passed through
// unchanged, so raw triples may be listed in configuration.
func Triples(names []string) []string {
	if len(names) == 0 {
		return names
	}

	out := make([]string, len(names))
	for i, n := range names {
		out[i] = n
		if t, err := ParseTarget(n); err == nil && n != "" {
			out[i] = t.Triple
		}
	}
	return out
}

func targetNames() []string {
	names := make([]string, len(targets))
	for i, t := range targets {
		names[i] = t.Name
	}
	return names
}
