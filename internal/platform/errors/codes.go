// Package errors provides structured error handling with i18n support.
package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// PIN errors
	CodePinInvalidFormat   Code = "PIN_INVALID_FORMAT"
	CodePinMismatch        Code = "PIN_MISMATCH"
	CodePinIncorrect       Code = "PIN_INCORRECT"
	CodeCurrentPinRequired Code = "CURRENT_PIN_REQUIRED"

	// Profile errors
	CodeTimeoutOutOfRange Code = "TIMEOUT_OUT_OF_RANGE"

	// Lockout errors
	CodeLockedOut Code = "LOCKED_OUT"

	// Biometric errors
	CodeBiometricUnavailable Code = "BIOMETRIC_UNAVAILABLE"
	CodeBiometricFailed      Code = "BIOMETRIC_FAILED"
	CodeCeremonyNotFound     Code = "CEREMONY_NOT_FOUND"

	// Session errors
	CodeResetNotConfirmed  Code = "RESET_NOT_CONFIRMED"
	CodeStateDisallowsOp   Code = "STATE_DISALLOWS_OPERATION"
	CodeAttemptInFlight    Code = "ATTEMPT_IN_FLIGHT"
	CodeInvalidRequest     Code = "INVALID_REQUEST"
	CodeNotFound           Code = "NOT_FOUND"
	CodeStorageUnavailable Code = "STORAGE_UNAVAILABLE"

	// Transport errors
	CodeOriginNotAllowed Code = "ORIGIN_NOT_ALLOWED"
)

// Kind groups codes by how the caller is expected to recover.
type Kind string

const (
	KindValidation     Kind = "validation"
	KindAuthentication Kind = "authentication"
	KindLockedOut      Kind = "locked_out"
	KindCapability     Kind = "capability"
	KindConflict       Kind = "conflict"
	KindNotFound       Kind = "not_found"
	KindForbidden      Kind = "forbidden"
	KindInternal       Kind = "internal"
)

// Kind maps a code to its recovery class.
func (c Code) Kind() Kind {
	switch c {
	case CodePinInvalidFormat,
		CodePinMismatch,
		CodeCurrentPinRequired,
		CodeTimeoutOutOfRange,
		CodeResetNotConfirmed,
		CodeInvalidRequest:
		return KindValidation

	case CodePinIncorrect,
		CodeBiometricFailed:
		return KindAuthentication

	case CodeLockedOut:
		return KindLockedOut

	case CodeBiometricUnavailable:
		return KindCapability

	case CodeStateDisallowsOp,
		CodeAttemptInFlight:
		return KindConflict

	case CodeNotFound,
		CodeCeremonyNotFound:
		return KindNotFound

	case CodeOriginNotAllowed:
		return KindForbidden

	default:
		return KindInternal
	}
}

// HTTPStatus maps domain codes to HTTP status codes.
func (c Code) HTTPStatus() int {
	switch c.Kind() {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindLockedOut:
		return http.StatusLocked
	case KindCapability:
		return http.StatusPreconditionFailed
	case KindConflict:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	default:
		if c == CodeStorageUnavailable {
			return http.StatusServiceUnavailable
		}
		return http.StatusInternalServerError
	}
}
