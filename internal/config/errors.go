package config

import "errors"

var (
	ErrRead    = errors.New("failed to read configuration")
	ErrDecode  = errors.New("failed to decode configuration")
	ErrInvalid = errors.New("invalid configuration")
)
