package store

import (
	"errors"
	"fmt"
)

// ErrConflict reports that a claim raced a concurrent claimant: at least one
// targeted signal was no longer claimable, so nothing was claimed.
var ErrConflict = errors.New("signal selection changed, retry")

// ErrNotFound reports that the addressed row does not exist or is not visible
// to the caller.
var ErrNotFound = errors.New("not found")

// UpstreamError reports a dependency failure (content, speech, concierge)
// with the upstream HTTP status when one was available. Status is zero for
// transport-level failures.
type UpstreamError struct {
	Service string
	Status  int
	Msg     string
}

func (e *UpstreamError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s (status %d)", e.Service, e.Msg, e.Status)
	}
	return fmt.Sprintf("%s: %s", e.Service, e.Msg)
}
