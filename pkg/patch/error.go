package patch

import "fmt"

// ValidationError describes why a mutation was rejected. A batch containing
// any invalid mutation is rejected whole, before the graph is touched.
type ValidationError struct {
	// Index is the position of the mutation within its batch, or -1 when
	// the mutation was validated on its own.
	Index int

	// Path is the mutation path as submitted.
	Path string

	// Field names the offending field ("op", "path", "value", "kind", ...).
	Field string

	// Reason is a human-readable description of the violation.
	Reason string
}

func (e *ValidationError) Error() string {
	prefix := "invalid mutation"
	if e.Index >= 0 {
		prefix = fmt.Sprintf("invalid mutation %d", e.Index)
	}
	if e.Path != "" {
		prefix += " (" + e.Path + ")"
	}
	return fmt.Sprintf("%s: %s: %s", prefix, e.Field, e.Reason)
}

func invalid(path, field, format string, args ...any) *ValidationError {
	return &ValidationError{
		Index:  -1,
		Path:   path,
		Field:  field,
		Reason: fmt.Sprintf(format, args...),
	}
}

// AtIndex returns err with its batch index set when err is a
// *ValidationError, otherwise err unchanged.
func AtIndex(err error, i int) error {
	if ve, ok := err.(*ValidationError); ok {
		c := *ve
		c.Index = i
		return &c
	}
	return err
}
