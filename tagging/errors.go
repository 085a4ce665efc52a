package tagging

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrShapeMismatch is returned by Update when the fields of a Batch disagree in length.
	ErrShapeMismatch = errors.New("batch fields have mismatched shapes")

	// ErrNoTokens is returned when token accuracy is requested but no token was accumulated.
	ErrNoTokens = errors.New("no tokens accumulated")

	// ErrMalformedTag is returned when a tag string is neither "O" nor "<PREFIX>-<TYPE>".
	ErrMalformedTag = errors.New("malformed tag")
)

// LabelMappingError reports a tag id that has no tag string in the label mapping,
// or whose tag string collides with another entry.
type LabelMappingError struct {
	ID     int
	Reason string
}

func (e *LabelMappingError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("tag id %d not found in label mapping", e.ID)
	}
	return fmt.Sprintf("tag id %d: %s", e.ID, e.Reason)
}

// ReferenceScorerError wraps a failure of the ReferenceScorer delegate.
type ReferenceScorerError struct {
	Err error
}

func (e *ReferenceScorerError) Error() string {
	return "reference scorer failed: " + e.Err.Error()
}

func (e *ReferenceScorerError) Unwrap() error { return e.Err }
