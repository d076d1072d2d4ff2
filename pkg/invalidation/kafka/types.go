package kafka

import (
	"errors"
	"strings"
	"time"
)

// Event is one invalidation message. A publisher emits it when the
// data behind a function source changes, or when the set of functions
// itself changed and the catalog should be re-scanned.
type Event struct {
	// Op is "invalidate" (drop cached tiles for Source) or "refresh"
	// (re-scan the function catalog).
	Op     string `json:"op"`
	Source string `json:"source,omitempty"`
	// Version orders events per source; stale versions are skipped.
	Version uint64    `json:"version"`
	TS      time.Time `json:"ts"`
}

const (
	OpInvalidate = "invalidate"
	OpRefresh    = "refresh"
)

func (e Event) Validate() error {
	switch e.Op {
	case OpInvalidate:
		if strings.TrimSpace(e.Source) == "" {
			return errors.New("invalidate event needs a source")
		}
		return nil
	case OpRefresh:
		return nil
	default:
		return errors.New("unknown op " + e.Op)
	}
}
