// Package apperr defines the stable error taxonomy surfaced at the
// core's API boundary. Every structural, cryptographic, and
// authorization failure named by the spec maps to exactly one Code so
// that an external transport (HTTP, gRPC, a CLI) can translate it
// without inspecting error strings.
package apperr

import (
	"errors"
	"fmt"
)

// Code is a stable, comparable error classifier.
type Code string

const (
	CodeGenesisViolation        Code = "GENESIS_VIOLATION"
	CodeGraphIDMismatch         Code = "GRAPH_ID_MISMATCH"
	CodeHashSchemeMismatch      Code = "HASH_SCHEME_MISMATCH"
	CodeChainBreak              Code = "CHAIN_BREAK"
	CodeIntegrityViolation      Code = "INTEGRITY_VIOLATION"
	CodeTemporalViolation       Code = "TEMPORAL_VIOLATION"
	CodeSignatureInvalid        Code = "SIGNATURE_INVALID"
	CodeWitnessSignatureInvalid Code = "WITNESS_SIGNATURE_INVALID"
	CodeAuthorizationDenied     Code = "AUTHORIZATION_DENIED"
	CodeDomainNotFound          Code = "DOMAIN_NOT_FOUND"
	CodeInvalidField            Code = "INVALID_FIELD"
	CodeDeadlineExceeded        Code = "DEADLINE_EXCEEDED"
	CodeIOFailure               Code = "IO_FAILURE"
)

// Error is the concrete error type returned across package boundaries.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is supports errors.Is(err, apperr.New(code, "")) matching by Code alone.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Code == e.Code
	}
	return false
}

// New constructs an *Error with no wrapped cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap constructs an *Error wrapping cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// Sentinel values for errors.Is comparisons that only care about Code.
var (
	ErrGenesisViolation        = New(CodeGenesisViolation, "")
	ErrGraphIDMismatch         = New(CodeGraphIDMismatch, "")
	ErrHashSchemeMismatch      = New(CodeHashSchemeMismatch, "")
	ErrChainBreak              = New(CodeChainBreak, "")
	ErrIntegrityViolation      = New(CodeIntegrityViolation, "")
	ErrTemporalViolation       = New(CodeTemporalViolation, "")
	ErrSignatureInvalid        = New(CodeSignatureInvalid, "")
	ErrWitnessSignatureInvalid = New(CodeWitnessSignatureInvalid, "")
	ErrAuthorizationDenied     = New(CodeAuthorizationDenied, "")
	ErrDomainNotFound          = New(CodeDomainNotFound, "")
	ErrInvalidField            = New(CodeInvalidField, "")
	ErrDeadlineExceeded        = New(CodeDeadlineExceeded, "")
	ErrIOFailure               = New(CodeIOFailure, "")
)

// CodeOf extracts the Code from err, or "" if err is not an *Error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
