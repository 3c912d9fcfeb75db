// Copyright 2026 The ACN Authors
// SPDX-License-Identifier: Apache-2.0

package acn

import (
	"errors"
	"fmt"
)

// StatusCode identifies the outcome of an ACN operation. The set is
// closed: peers must not invent codes, and unknown codes decode as
// themselves so a newer peer's code survives relaying.
type StatusCode int

const (
	// StatusSuccess reports a completed operation.
	StatusSuccess StatusCode = iota

	// StatusErrorUnsupportedVersion rejects a message whose protocol
	// version this node does not speak.
	StatusErrorUnsupportedVersion

	// StatusErrorUnexpectedPayload rejects a structurally valid
	// message that is not meaningful in the current exchange, or a
	// message union with zero or multiple variants set.
	StatusErrorUnexpectedPayload

	// StatusErrorGeneric reports a failure with no more specific code.
	StatusErrorGeneric

	// StatusErrorDecode rejects bytes that do not decode to a message.
	StatusErrorDecode

	// StatusErrorWrongAgentAddress rejects a registration whose record
	// names a different agent address than expected, or whose address
	// does not derive from its public key.
	StatusErrorWrongAgentAddress

	// StatusErrorWrongPublicKey rejects a registration whose record
	// names a different representing peer than the one it arrived
	// through.
	StatusErrorWrongPublicKey

	// StatusErrorInvalidProof rejects a registration whose signature
	// does not verify, or whose validity window has lapsed.
	StatusErrorInvalidProof

	// StatusErrorUnsupportedLedger rejects a registration referencing
	// an identity scheme this node does not support.
	StatusErrorUnsupportedLedger

	// StatusErrorUnknownAgentAddress reports that a destination agent
	// address could not be resolved anywhere.
	StatusErrorUnknownAgentAddress

	// StatusErrorAgentNotReady reports that the agent (or the node
	// representing it) is not currently accepting envelopes.
	StatusErrorAgentNotReady
)

// StatusClass groups status codes by the protocol layer they belong to.
type StatusClass int

const (
	// ClassProtocol covers version, decoding, and payload errors.
	ClassProtocol StatusClass = iota
	// ClassRegistration covers proof-of-representation failures.
	ClassRegistration
	// ClassRouting covers destination resolution and liveness failures.
	ClassRouting
)

var statusNames = map[StatusCode]string{
	StatusSuccess:                  "SUCCESS",
	StatusErrorUnsupportedVersion:  "ERROR_UNSUPPORTED_VERSION",
	StatusErrorUnexpectedPayload:   "ERROR_UNEXPECTED_PAYLOAD",
	StatusErrorGeneric:             "ERROR_GENERIC",
	StatusErrorDecode:              "ERROR_DECODE",
	StatusErrorWrongAgentAddress:   "ERROR_WRONG_AGENT_ADDRESS",
	StatusErrorWrongPublicKey:      "ERROR_WRONG_PUBLIC_KEY",
	StatusErrorInvalidProof:        "ERROR_INVALID_PROOF",
	StatusErrorUnsupportedLedger:   "ERROR_UNSUPPORTED_LEDGER",
	StatusErrorUnknownAgentAddress: "ERROR_UNKNOWN_AGENT_ADDRESS",
	StatusErrorAgentNotReady:       "ERROR_AGENT_NOT_READY",
}

// String returns the wire-taxonomy name of the code.
func (c StatusCode) String() string {
	if name, ok := statusNames[c]; ok {
		return name
	}
	return fmt.Sprintf("STATUS_CODE(%d)", int(c))
}

// Class returns the failure class of the code. StatusSuccess is
// classed as protocol-level for want of a better home; callers should
// branch on the code itself for success.
func (c StatusCode) Class() StatusClass {
	switch c {
	case StatusErrorWrongAgentAddress, StatusErrorWrongPublicKey,
		StatusErrorInvalidProof, StatusErrorUnsupportedLedger:
		return ClassRegistration
	case StatusErrorUnknownAgentAddress, StatusErrorAgentNotReady:
		return ClassRouting
	default:
		return ClassProtocol
	}
}

// Status is the wire acknowledgement message. Code carries the
// outcome; Messages carry optional human-readable diagnostics. An
// empty Messages slice is valid and common for success.
type Status struct {
	Code     StatusCode `cbor:"code"`
	Messages []string   `cbor:"messages,omitempty"`
}

// Error is a failure with an associated status code, used wherever an
// internal error must be reported to a counterparty as a Status.
type Error struct {
	Code StatusCode
	Err  error
}

// NewError wraps err with the given status code.
func NewError(code StatusCode, err error) *Error {
	return &Error{Code: code, Err: err}
}

// Errorf formats a new coded error.
func Errorf(code StatusCode, format string, args ...any) *Error {
	return &Error{Code: code, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Status converts the error to its wire acknowledgement form.
func (e *Error) Status() *Status {
	return &Status{Code: e.Code, Messages: []string{e.Err.Error()}}
}

// StatusCodeOf extracts the status code from err if it is (or wraps) an
// *Error, else returns StatusErrorGeneric.
func StatusCodeOf(err error) StatusCode {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Code
	}
	return StatusErrorGeneric
}
