package ir

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrorCode categorizes failures. Every failure in this module is fail-fast:
// there is no retry and no partial output at the point of detection.
type ErrorCode string

const (
	// CodeUnknownColumn: a rule or operator references a column absent from
	// the target schema.
	CodeUnknownColumn ErrorCode = "UNKNOWN_COLUMN"

	// CodeInvalidRule: a rule is structurally malformed (empty buckets,
	// duplicate values, type-mismatched fill value, bad version tag).
	CodeInvalidRule ErrorCode = "INVALID_RULE"

	// CodeGraphIntegrity: a node references inputs that are not yet visible,
	// or two dumps that must be equal differ.
	CodeGraphIntegrity ErrorCode = "GRAPH_INTEGRITY"

	// CodeSchemaMismatch: a declared schema disagrees with the data layout.
	CodeSchemaMismatch ErrorCode = "SCHEMA_MISMATCH"
)

// Error is the structured error carried across every component boundary.
type Error struct {
	Code    ErrorCode
	Message string

	// Column names the offending column, if any.
	Column string

	// Party names the owning party, if known.
	Party string

	// Details holds extra context (row index, bucket index, diff).
	Details map[string]string

	// Err is the underlying cause.
	Err error
}

// Sentinels for errors.Is. Matching compares codes only.
var (
	ErrUnknownColumn  = &Error{Code: CodeUnknownColumn}
	ErrInvalidRule    = &Error{Code: CodeInvalidRule}
	ErrGraphIntegrity = &Error{Code: CodeGraphIntegrity}
	ErrSchemaMismatch = &Error{Code: CodeSchemaMismatch}
)

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	var ctx []string
	if e.Party != "" {
		ctx = append(ctx, "party="+e.Party)
	}
	if e.Column != "" {
		ctx = append(ctx, "column="+e.Column)
	}
	keys := make([]string, 0, len(e.Details))
	for k := range e.Details {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		ctx = append(ctx, k+"="+e.Details[k])
	}
	if len(ctx) > 0 {
		b.WriteString(" (")
		b.WriteString(strings.Join(ctx, ", "))
		b.WriteString(")")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// WithParty returns a copy of e annotated with party.
func (e *Error) WithParty(party string) *Error {
	cp := *e
	cp.Party = party
	return &cp
}

// UnknownColumn builds a CodeUnknownColumn error.
func UnknownColumn(column, format string, args ...any) *Error {
	return &Error{Code: CodeUnknownColumn, Column: column, Message: fmt.Sprintf(format, args...)}
}

// InvalidRule builds a CodeInvalidRule error.
func InvalidRule(column, format string, args ...any) *Error {
	return &Error{Code: CodeInvalidRule, Column: column, Message: fmt.Sprintf(format, args...)}
}

// InvalidRuleErr wraps a decode failure as CodeInvalidRule.
func InvalidRuleErr(err error, format string, args ...any) *Error {
	return &Error{Code: CodeInvalidRule, Message: fmt.Sprintf(format, args...), Err: err}
}

// GraphIntegrity builds a CodeGraphIntegrity error.
func GraphIntegrity(format string, args ...any) *Error {
	return &Error{Code: CodeGraphIntegrity, Message: fmt.Sprintf(format, args...)}
}

// SchemaMismatch builds a CodeSchemaMismatch error.
func SchemaMismatch(column, format string, args ...any) *Error {
	return &Error{Code: CodeSchemaMismatch, Column: column, Message: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the code of the first *Error in err's chain.
func CodeOf(err error) (ErrorCode, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return "", false
}

// IsUnknownColumn reports whether err carries CodeUnknownColumn.
func IsUnknownColumn(err error) bool { return errors.Is(err, ErrUnknownColumn) }

// IsInvalidRule reports whether err carries CodeInvalidRule.
func IsInvalidRule(err error) bool { return errors.Is(err, ErrInvalidRule) }

// IsGraphIntegrity reports whether err carries CodeGraphIntegrity.
func IsGraphIntegrity(err error) bool { return errors.Is(err, ErrGraphIntegrity) }

// IsSchemaMismatch reports whether err carries CodeSchemaMismatch.
func IsSchemaMismatch(err error) bool { return errors.Is(err, ErrSchemaMismatch) }
