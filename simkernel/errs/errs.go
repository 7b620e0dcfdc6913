// Package errs defines the stable error taxonomy used at persistence and
// distributed-validation boundaries (the only places spec errors are allowed
// to propagate to the caller — reducer and rule-hook failures become journal
// events instead, never Go errors).
package errs

import "fmt"

// Code is a stable, comparable error code a caller can switch on without
// string matching.
type Code string

const (
	CodeAgentNotFound         Code = "agent_not_found"
	CodeAgentAlreadyExists    Code = "agent_already_exists"
	CodeAgentsNotCoLocated    Code = "agents_not_co_located"
	CodeLocationNotFound      Code = "location_not_found"
	CodeFacilityNotFound      Code = "facility_not_found"
	CodeFacilityAlreadyExists Code = "facility_already_exists"
	CodeFactoryBusy           Code = "factory_busy"
	CodeInvalidAmount         Code = "invalid_amount"
	CodeInsufficientResource  Code = "insufficient_resource"
	CodeInsufficientMaterial  Code = "insufficient_material"
	CodeRuleDenied            Code = "rule_denied"
	CodeModuleChangeInvalid   Code = "module_change_invalid"
	CodeModuleCallFailed      Code = "module_call_failed"
	CodeModuleStoreMismatch   Code = "module_store_manifest_mismatch"
	CodeDistributedValidation Code = "distributed_validation_failed"
	CodeNotFound              Code = "not_found"
	CodeInvalidState          Code = "invalid_state"
	CodeArtifactHashMismatch  Code = "artifact_hash_mismatch"
	CodeArtifactExists        Code = "artifact_already_exists"
	CodeIO                    Code = "io"
	CodeSerde                 Code = "serde"
)

// Error is the concrete error type carrying a stable Code plus detail.
type Error struct {
	code   Code
	detail string
	fields map[string]any
	cause  error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.code, e.detail, e.cause)
	}
	if e.detail != "" {
		return fmt.Sprintf("%s: %s", e.code, e.detail)
	}
	return string(e.code)
}

func (e *Error) Unwrap() error { return e.cause }

// Code returns the stable error code.
func (e *Error) Code() Code { return e.code }

// Fields returns structured detail attached to the error (owner/kind/etc).
func (e *Error) Fields() map[string]any { return e.fields }

// New constructs an Error with the given code and message.
func New(code Code, detail string) *Error {
	return &Error{code: code, detail: detail}
}

// Newf constructs an Error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{code: code, detail: fmt.Sprintf(format, args...)}
}

// Wrap wraps a lower-level error (I/O, serialization) with a stable code.
func Wrap(code Code, detail string, cause error) *Error {
	return &Error{code: code, detail: detail, cause: cause}
}

// WithFields attaches structured detail (e.g. owner/kind/requested/available
// for InsufficientResource) and returns the same error for chaining.
func (e *Error) WithFields(fields map[string]any) *Error {
	e.fields = fields
	return e
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	var e *Error
	if as, ok := err.(*Error); ok {
		e = as
	} else {
		return false
	}
	return e.code == code
}

// InsufficientResource builds the I1-mandated structured rejection detail.
func InsufficientResource(owner string, kind string, requested, available int64) *Error {
	return New(CodeInsufficientResource, "insufficient resource").WithFields(map[string]any{
		"owner":     owner,
		"kind":      kind,
		"requested": requested,
		"available": available,
	})
}

// InsufficientMaterial builds the structured material-shortage rejection.
func InsufficientMaterial(materialKind string, requested, available int64) *Error {
	return New(CodeInsufficientMaterial, "insufficient material").WithFields(map[string]any{
		"material_kind": materialKind,
		"requested":     requested,
		"available":     available,
	})
}

// RuleDenied builds a generic rule-pipeline rejection carrying notes.
func RuleDenied(notes []string) *Error {
	return New(CodeRuleDenied, "rule denied").WithFields(map[string]any{"notes": notes})
}
