package build

import "errors"

var (
	ErrBuild               = errors.New("build failed")
	ErrTarget              = errors.New("unsupported target")
	ErrMetadata            = errors.New("invalid cargo metadata")
	ErrFileSystemOperation = errors.New("file system operation failed")
	ErrCopy                = errors.New("copy failed")
	ErrTool                = errors.New("cache tool unavailable")
)
