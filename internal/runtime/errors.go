package runtime

import "errors"

var (
	ErrRuntime        = errors.New("runtime error")
	ErrEmptyArchive   = errors.New("archive contains no image")
	ErrMultipleImages = errors.New("archive contains more than one image")
	ErrExitStatus     = errors.New("command exited with non-zero status")
	ErrArchive        = errors.New("invalid tar stream")
)
