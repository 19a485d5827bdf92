package runtime

import (
	"errors"
	"io"
	"sync"
)

// Wraps the stdin of an exec process and signals when it is exhausted.
//
// The done channel is closed once, on the first error of any kind. A stdin
// fed by a tar producer that failed ends with the producer's error rather
// than EOF; the process must still see its stdin closed or it waits forever.
type stdinReader struct {
	r    io.Reader
	once sync.Once
	done chan struct{}
	err  error // Terminal read error other than EOF. Valid after done.
}

func newStdinReader(r io.Reader) *stdinReader {
	return &stdinReader{r: r, done: make(chan struct{})}
}

func (s *stdinReader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if err != nil {
		s.once.Do(func() {
			if !errors.Is(err, io.EOF) {
				s.err = err
			}
			close(s.done)
		})
	}
	return n, err
}

// Returns the error that ended the stream, or nil if it ended with EOF or
// has not ended.
func (s *stdinReader) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}
