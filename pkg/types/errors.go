package types

import "fmt"

// OpenError reports that a camera device could not be acquired or
// configured. Fatal at startup; recoverable during reconnection up to the
// configured policy.
type OpenError struct {
	DeviceID int
	Err      error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("open camera %d: %v", e.DeviceID, e.Err)
}

func (e *OpenError) Unwrap() error { return e.Err }

// ReadError reports a transient device fault during an open session:
// disconnect, timeout, or a corrupt frame. Always recoverable via
// reconnection.
type ReadError struct {
	DeviceID int
	Err      error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("read frame from camera %d: %v", e.DeviceID, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

// InferenceError reports a detection backend fault. The tick that hit it
// renders zero detections; the session continues.
type InferenceError struct {
	Err error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("inference: %v", e.Err)
}

func (e *InferenceError) Unwrap() error { return e.Err }

// WriteError reports a recording I/O fault. Recording stops; the session
// continues.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write recording %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }
