package protocol

import "errors"

// ErrDropped is wrapped by every parse rejection. A dropped line is logged
// and skipped; it never terminates the connection.
var ErrDropped = errors.New("protocol: line dropped")

var (
	ErrLineTooShort      = dropErr("line too short")
	ErrMissingToken      = dropErr("missing token")
	ErrMalformedOrigin   = dropErr("malformed origin")
	ErrUnknownCommand    = dropErr("unknown command")
	ErrUnsupportedLine   = dropErr("unsupported unprefixed line")
	ErrInvalidText       = dropErr("invalid utf-8 text")
	ErrNumericOutOfRange = dropErr("numeric out of range")
)

type dropError struct {
	reason string
}

func dropErr(reason string) error {
	return &dropError{reason: reason}
}

func (e *dropError) Error() string {
	return "protocol: " + e.reason
}

func (e *dropError) Is(target error) bool {
	return target == ErrDropped
}

// DropReason returns a short label for metrics, or "" for non-drop errors.
func DropReason(err error) string {
	var de *dropError
	if errors.As(err, &de) {
		return de.reason
	}
	return ""
}
