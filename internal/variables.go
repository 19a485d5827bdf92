package internal

import (
	"fmt"
	"runtime"
	"strings"
)

const (

	// Name of the host binary, used for logging groups and directory naming.
	Name = "cruxbuild"

	// Name of the in-environment metadata and pruning tool.
	ToolName = "rfi"

	// Placeholder for a variable that was not set at link time.
	defaultUndefined = "(undefined)"

	// Version string reported by builds made outside the release pipeline.
	defaultLocalBuild = "(local)"

	// Branch whose builds omit the stage suffix.
	mainBranch = "main"
)

// Set with -ldflags "-X github.com/cruciblehq/cruxbuild/internal.<name>=<value>".
var (
	version   = "" // Release version, with or without a "v" prefix.
	stage     = "" // Git branch the release was cut from.
	gitCommit = "" // Abbreviated commit hash.

	rawQuiet   = "false"
	rawDebug   = "false"
	rawVerbose = "false"
	rawNoCache = "false"
)

// Returns the release version without its "v" prefix, or "(undefined)".
func Version() string {
	v := strings.ToLower(strings.TrimSpace(version))
	if v == "" {
		return defaultUndefined
	}
	return strings.TrimPrefix(v, "v")
}

// Returns the lower-cased release stage, or "(undefined)".
func Stage() string {
	s := strings.ToLower(strings.TrimSpace(stage))
	if s == "" {
		return defaultUndefined
	}
	return s
}

// Returns the git commit hash, or "(undefined)".
func GitCommit() string {
	c := strings.TrimSpace(gitCommit)
	if c == "" {
		return defaultUndefined
	}
	return c
}

// Returns the architecture the binary was compiled for.
func Arch() string {
	return runtime.GOARCH
}

// Returns true unless version, stage and commit were all set at link time.
func IsLocal() bool {
	return strings.TrimSpace(version) == "" ||
		strings.TrimSpace(gitCommit) == "" ||
		strings.TrimSpace(stage) == ""
}

// Returns "<version>[+<stage>] <commit> [<arch>]", or "(local)" for local
// builds. The stage suffix is omitted for the main branch.
func VersionString() string {
	if IsLocal() {
		return defaultLocalBuild
	}

	suffix := ""
	if s := Stage(); s != mainBranch {
		suffix = "+" + s
	}

	return fmt.Sprintf("%s%s %s [%s]", Version(), suffix, GitCommit(), Arch())
}
