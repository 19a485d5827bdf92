package prune

import "errors"

var (
	ErrLockfile = errors.New("invalid lockfile")
	ErrMetadata = errors.New("invalid cargo metadata")
	ErrRemove   = errors.New("failed to remove path")
)
