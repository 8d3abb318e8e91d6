package marketdata

import (
	"errors"
	"fmt"
)

// ErrClientClosed is returned by operations on a closed client.
var ErrClientClosed = errors.New("market data client is closed")

// StreamError is a transport failure of the feed connection. The client retries it on its own
// and only reports it through a StatusEvent.
type StreamError struct {
	Op  string
	Err error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("stream %s: %v", e.Op, e.Err)
}

func (e *StreamError) Unwrap() error {
	return e.Err
}
