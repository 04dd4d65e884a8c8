// ABOUTME: Error taxonomy for the legacy sync engine
// ABOUTME: Sentinel kinds plus a contextual Error carrying category, legacy id and name
package sync

import (
	"errors"
	"fmt"
	"strings"

	"github.com/harperreed/crmsync/db"
)

var (
	ErrSourceUnavailable      = errors.New("source unavailable")
	ErrRecordRejected         = errors.New("record rejected")
	ErrRelationshipUnresolved = errors.New("relationship unresolved")
	ErrPermissionDenied       = errors.New("permission denied")
	ErrUnknownCategory        = errors.New("unknown sync category")
	ErrBusy                   = errors.New("a sync is already running")

	// ErrStoreUnavailable is the only run-fatal error.
	ErrStoreUnavailable = db.ErrStoreUnavailable
)

// Error describes a failure with enough context for an operator.
type Error struct {
	Kind     error
	Category string
	LegacyID string
	Name     string
	Err      error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.Category != "" {
		fmt.Fprintf(&b, " [%s]", e.Category)
	}
	if e.LegacyID != "" {
		fmt.Fprintf(&b, " legacy id %s", e.LegacyID)
	}
	if e.Name != "" {
		fmt.Fprintf(&b, " (%s)", e.Name)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes both the kind and the cause to errors.Is.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Message returns the error text without the kind prefix.
func (e *Error) Message() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Kind.Error()
}

// IsFatal reports whether err must abort a run.
func IsFatal(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}

func sourceError(category string, err error) error {
	return &Error{Kind: ErrSourceUnavailable, Category: category, Err: err}
}
