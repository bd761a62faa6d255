package mp4index

import "fmt"

// MalformedError represents an error indicating that a sample table box
// violates the container format and cannot be trusted.
type MalformedError struct {
	Box    string // Four-character box type, empty when no single box is at fault.
	Reason string
}

// Error returns the error message for MalformedError.
func (e *MalformedError) Error() string {
	if e.Box == "" {
		return fmt.Sprintf("mp4index: malformed sample table: %s", e.Reason)
	}

	return fmt.Sprintf("mp4index: malformed %s box: %s", e.Box, e.Reason)
}

// OutOfRangeError represents an error indicating that a query has no answer
// within the bounds of the track.
type OutOfRangeError struct {
	What string
}

// Error returns the error message for OutOfRangeError.
func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("mp4index: out of range: %s", e.What)
}

// ReadError represents an error indicating that the underlying data source
// failed while a table was being read. The failed read is never retried.
type ReadError struct {
	Off int64
	Err error
}

// Error returns the error message for ReadError.
func (e *ReadError) Error() string {
	return fmt.Sprintf("mp4index: read at offset %d: %v", e.Off, e.Err)
}

// Unwrap returns the underlying read failure.
func (e *ReadError) Unwrap() error {
	return e.Err
}
