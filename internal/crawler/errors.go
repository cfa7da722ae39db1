package crawler

import (
	"errors"
	"fmt"
)

// FetchError reports a failed retrieval: transport error, timeout, or a
// non-success status. It is transient; callers decide whether to continue.
type FetchError struct {
	Target string
	// StatusCode is zero when no response was received.
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("fetch %s: status %d: %v", e.Target, e.StatusCode, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("fetch %s: status %d", e.Target, e.StatusCode)
	default:
		return fmt.Sprintf("fetch %s: %v", e.Target, e.Err)
	}
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// ExtractionError reports that a page no longer matches the expected shape.
// It is fatal for the whole crawl.
type ExtractionError struct {
	Target string
	Field  string
	Err    error
}

func (e *ExtractionError) Error() string {
	msg := fmt.Sprintf("extract %s: missing %s", e.Target, e.Field)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// IsFetchError reports whether err carries a *FetchError.
func IsFetchError(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe)
}

// IsExtractionError reports whether err carries an *ExtractionError.
func IsExtractionError(err error) bool {
	var ee *ExtractionError
	return errors.As(err, &ee)
}
