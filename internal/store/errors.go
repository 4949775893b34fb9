package store

import (
	"errors"
	"fmt"
)

var (
	// ErrBackupNotFound is returned when a backup id is unknown.
	ErrBackupNotFound = errors.New("backup not found")
	// ErrUnsupportedFormat is returned for an unknown export format.
	ErrUnsupportedFormat = errors.New("unsupported export format")
)

// ValidationError reports a missing field, an out-of-range value or an
// unparseable timestamp. The save that produced it wrote nothing.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid record: %s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// ImportError reports a structurally invalid import payload. It is returned
// before any state is touched.
type ImportError struct {
	Reason string
	Err    error
}

func (e *ImportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("import: %s: %v", e.Reason, e.Err)
	}
	return "import: " + e.Reason
}

func (e *ImportError) Unwrap() error { return e.Err }

// MigrationError describes a failed schema migration. It is logged, not
// returned: the store rolls back and keeps serving the previous version.
type MigrationError struct {
	From string
	To   string
	Err  error
}

func (e *MigrationError) Error() string {
	return fmt.Sprintf("migrate %s -> %s: %v", e.From, e.To, e.Err)
}

func (e *MigrationError) Unwrap() error { return e.Err }
