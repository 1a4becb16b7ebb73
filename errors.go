package brokerage

import "fmt"

// The error taxonomy separates failures of the source itself from failures
// of individual records, so callers can decide what is fatal:
//
//   - FormatError: the source structure is malformed; the whole parse aborts.
//   - ValidationError: one record violates a domain invariant; the caller may
//     recover and skip the record.
//   - UnrecognizedActionError: a ledger row's action text matches no known
//     phrase; fatal, because silently dropping a transaction is worse than
//     stopping.

// FormatError reports a structurally malformed source (missing column or
// attribute, unreadable file).
type FormatError struct {
	Source string
	Err    error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("malformed source %s: %v", e.Source, e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }

// ValidationError reports a record whose fields violate a domain invariant.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// Invalidf builds a ValidationError from a format string.
func Invalidf(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// UnrecognizedActionError reports ledger action text that matches no known
// phrase.
type UnrecognizedActionError struct {
	Action string
}

func (e *UnrecognizedActionError) Error() string {
	return fmt.Sprintf("unrecognized ledger action %q", e.Action)
}
