package rules

import "fmt"

// ExtractionError reports that no artifact could be located in a response. Reason is always non-empty.
type ExtractionError struct {
	Reason string
}

func (e *ExtractionError) Error() string {
	return e.Reason
}

// Extractionf builds an *ExtractionError.
func Extractionf(format string, args ...any) error {
	return &ExtractionError{Reason: fmt.Sprintf(format, args...)}
}
