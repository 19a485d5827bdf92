package logging

import "errors"

var ErrLogFile = errors.New("failed to open log file")
