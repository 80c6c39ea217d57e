package errorlog

import (
	"errors"
	"strings"
)

// Sentinel errors returned by Service.
var (
	ErrNotFound = errors.New("error log not found")
	ErrStorage  = errors.New("storage failure")
)

// ValidationError lists the required report fields that were missing or blank,
// using their wire names.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "Missing required fields: " + strings.Join(e.Fields, ", ")
}
