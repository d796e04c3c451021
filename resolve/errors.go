package resolve

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidMaxAttempts = errors.New("maxAttempts must be greater than 0")
	ErrChunkTimeout       = errors.New("timed out waiting for response chunk")
	ErrMissingRecordID    = errors.New("cannot stream a record without a recordId")
	ErrNoConnectorURL     = errors.New("connector base url is not configured")
)

// StatusError is returned for a non-2xx response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.StatusCode)
}
