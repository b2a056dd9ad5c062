package service

import (
	"errors"
	"fmt"
)

var (
	// ErrAnalysisRejected means the document-analysis engine refused the
	// submission itself. The input is presumed invalid; retrying is pointless.
	ErrAnalysisRejected = errors.New("document analysis rejected the submission")

	// ErrAnalysisFailed means the engine accepted the submission but later
	// reported a failed operation status.
	ErrAnalysisFailed = errors.New("document analysis reported failure")

	// ErrAnalysisTimedOut means the poll attempt budget ran out before the
	// operation reached a terminal status.
	ErrAnalysisTimedOut = errors.New("document analysis did not finish in time")

	// ErrNotFound is returned when an expense id is unknown or the expense
	// has no attached file for file-scoped operations.
	ErrNotFound = errors.New("expense or file not found")
)

// ValidationError marks a required classifier field that was absent under
// every known alias. Field carries the first alias tried.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("missing or invalid field %s", e.Field)
}
