// Package apperr defines the error taxonomy shared by the registry, the
// ledger and the HTTP layer.
package apperr

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned when a tier or customer does not exist.
var ErrNotFound = errors.New("not found")

// FieldProblem is one rejected field in a ValidationError.
type FieldProblem struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError reports malformed tier input. Values are never clamped.
type ValidationError struct {
	Problems []FieldProblem
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		parts[i] = p.Field + ": " + p.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Add appends a problem for field.
func (e *ValidationError) Add(field, format string, args ...any) {
	e.Problems = append(e.Problems, FieldProblem{Field: field, Message: fmt.Sprintf(format, args...)})
}

// OrNil returns e when it carries problems, nil otherwise.
func (e *ValidationError) OrNil() error {
	if len(e.Problems) == 0 {
		return nil
	}
	return e
}

// InUseError blocks deleting a tier that customers still reference.
type InUseError struct {
	TierID    int
	Customers int
}

func (e *InUseError) Error() string {
	return fmt.Sprintf("tier %d is assigned to %d customer(s)", e.TierID, e.Customers)
}

// InvalidTimeError rejects a contact timestamp later than now.
type InvalidTimeError struct {
	At  time.Time
	Now time.Time
}

func (e *InvalidTimeError) Error() string {
	return fmt.Sprintf("contact time %s is after now (%s)",
		e.At.UTC().Format(time.RFC3339), e.Now.UTC().Format(time.RFC3339))
}

// IsNotFound reports whether err wraps ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsValidation reports whether err wraps a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsInUse reports whether err wraps an *InUseError.
func IsInUse(err error) bool {
	var ie *InUseError
	return errors.As(err, &ie)
}

// IsInvalidTime reports whether err wraps an *InvalidTimeError.
func IsInvalidTime(err error) bool {
	var te *InvalidTimeError
	return errors.As(err, &te)
}
