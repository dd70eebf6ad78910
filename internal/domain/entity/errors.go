package entity

import "fmt"

// DecodeError means the source media could not be loaded or seeked.
// It aborts the whole run.
type DecodeError struct {
	Reason error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("video decode failed: %v", e.Reason)
}

func (e *DecodeError) Unwrap() error { return e.Reason }

// RenderError means a reachable position produced no image.
// It aborts the whole run.
type RenderError struct {
	Second int
	Reason error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("frame render failed at %ds: %v", e.Second, e.Reason)
}

func (e *RenderError) Unwrap() error { return e.Reason }
