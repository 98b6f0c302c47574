package playback

import (
	"errors"
	"fmt"
)

// DecodeErrorKind is the classification the web UI expects for playback failures.
const DecodeErrorKind = "mediadecodeerror"

// DecodeError is a source the engine could not open or decode. It is never retried.
type DecodeError struct {
	URL    string
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: %s: %s", DecodeErrorKind, e.URL, e.Reason)
}

// Kind returns DecodeErrorKind.
func (e *DecodeError) Kind() string {
	return DecodeErrorKind
}

// errUnresolved is returned by a pending apply whose stream has no engine track.
var errUnresolved = errors.New("stream has no engine track")
