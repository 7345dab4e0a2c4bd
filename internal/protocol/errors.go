package protocol

import "fmt"

// DecodeError is returned for any inbound message that cannot be understood.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed message: %s: %v", e.Reason, e.Err)
	}
	return "malformed message: " + e.Reason
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func decodeError(reason string, err error) error {
	return &DecodeError{Reason: reason, Err: err}
}
