package extract

import (
	"errors"
	"fmt"
)

// Structural errors: the page layout deviated from the expected schema.
var (
	ErrSectionNotFound = errors.New("section not found")
	ErrTabNotFound     = errors.New("tab not found")
	ErrTableNotFound   = errors.New("table not found")
	ErrMalformedValue  = errors.New("malformed numeric value")
)

// SectionError reports a structural failure for one section of a document.
type SectionError struct {
	SectionID string
	TabID     string
	Detail    string
	Err       error
}

func (e *SectionError) Error() string {
	where := fmt.Sprintf("section %q", e.SectionID)
	if e.TabID != "" {
		where += fmt.Sprintf(" tab %q", e.TabID)
	}
	if e.Detail != "" {
		return fmt.Sprintf("%s: %v: %s", where, e.Err, e.Detail)
	}
	return fmt.Sprintf("%s: %v", where, e.Err)
}

func (e *SectionError) Unwrap() error { return e.Err }

// IsStructural reports whether err means the document could not be parsed
// against the expected layout. Callers typically skip such documents.
func IsStructural(err error) bool {
	return errors.Is(err, ErrSectionNotFound) ||
		errors.Is(err, ErrTabNotFound) ||
		errors.Is(err, ErrTableNotFound) ||
		errors.Is(err, ErrMalformedValue)
}
