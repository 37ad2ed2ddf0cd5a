package errors

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// FieldError is a single schema violation.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (fe FieldError) Error() string {
	return fmt.Sprintf("%s: %s", fe.Field, fe.Message)
}

// ValidationError aggregates every field violation found in one document.
type ValidationError struct {
	Path   string
	Kind   string
	Fields []FieldError
}

// Error implements the error interface.
func (ve *ValidationError) Error() string {
	var b strings.Builder

	b.WriteString("validation failed")
	if ve.Kind != "" {
		b.WriteString(" for " + ve.Kind)
	}
	if ve.Path != "" {
		b.WriteString(" " + ve.Path)
	}

	if len(ve.Fields) > 0 {
		msgs := make([]string, len(ve.Fields))
		for i, f := range ve.Fields {
			msgs[i] = f.Error()
		}
		b.WriteString(": ")
		b.WriteString(strings.Join(msgs, "; "))
	}

	return b.String()
}

// HasField reports whether field is among the violations.
func (ve *ValidationError) HasField(field string) bool {
	for _, f := range ve.Fields {
		if f.Field == field {
			return true
		}
	}

	return false
}

// Messages returns the violation messages for field.
func (ve *ValidationError) Messages(field string) []string {
	var out []string
	for _, f := range ve.Fields {
		if f.Field == field {
			out = append(out, f.Message)
		}
	}

	return out
}

// FieldCollector accumulates field errors without stopping at the first.
type FieldCollector struct {
	fields []FieldError
	mutex  sync.Mutex
}

// NewFieldCollector creates an empty collector.
func NewFieldCollector() *FieldCollector {
	return &FieldCollector{fields: make([]FieldError, 0)}
}

// Add records a violation.
func (fc *FieldCollector) Add(field, message string) {
	fc.mutex.Lock()
	defer fc.mutex.Unlock()
	fc.fields = append(fc.fields, FieldError{Field: field, Message: message})
}

// Addf records a formatted violation.
func (fc *FieldCollector) Addf(field, format string, args ...interface{}) {
	fc.Add(field, fmt.Sprintf(format, args...))
}

// HasErrors reports whether anything was recorded.
func (fc *FieldCollector) HasErrors() bool {
	fc.mutex.Lock()
	defer fc.mutex.Unlock()
	return len(fc.fields) > 0
}

// Fields returns a copy of the recorded violations, sorted by field name.
func (fc *FieldCollector) Fields() []FieldError {
	fc.mutex.Lock()
	defer fc.mutex.Unlock()

	result := make([]FieldError, len(fc.fields))
	copy(result, fc.fields)
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Field < result[j].Field
	})

	return result
}

// Err returns a *ValidationError when violations exist, nil otherwise.
func (fc *FieldCollector) Err(kind, path string) error {
	if !fc.HasErrors() {
		return nil
	}

	return &ValidationError{
		Path:   path,
		Kind:   kind,
		Fields: fc.Fields(),
	}
}
