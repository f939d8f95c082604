// Package validation defines the field-level error list returned for
// malformed input. Every failing field is reported, not just the first.
package validation

import "strings"

// FieldError describes one invalid input field.
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Errors aggregates all field errors found while validating one request.
type Errors struct {
	Fields []FieldError `json:"errors"`
}

func (e *Errors) Error() string {
	if e == nil || len(e.Fields) == 0 {
		return "validation error"
	}
	names := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		names = append(names, f.Field)
	}
	return "validation error: " + strings.Join(names, ", ")
}

// Add appends a field error and returns the receiver for chaining.
func (e *Errors) Add(field, code, message string) *Errors {
	e.Fields = append(e.Fields, FieldError{Field: field, Code: code, Message: message})
	return e
}

// Empty reports whether no field errors were collected.
func (e *Errors) Empty() bool {
	return e == nil || len(e.Fields) == 0
}

// AsError returns the collected errors, or nil when the input was valid.
func (e *Errors) AsError() error {
	if e.Empty() {
		return nil
	}
	return e
}

// New creates a single-field validation error.
func New(field, code, message string) *Errors {
	return (&Errors{}).Add(field, code, message)
}
