package i18n

// Error codes must match the codes defined in internal/platform/errors/codes.go.
// These are duplicated as strings to avoid an import cycle.
const (
	CodeUnknown              = "UNKNOWN"
	CodePinInvalidFormat     = "PIN_INVALID_FORMAT"
	CodePinMismatch          = "PIN_MISMATCH"
	CodePinIncorrect         = "PIN_INCORRECT"
	CodeCurrentPinRequired   = "CURRENT_PIN_REQUIRED"
	CodeTimeoutOutOfRange    = "TIMEOUT_OUT_OF_RANGE"
	CodeLockedOut            = "LOCKED_OUT"
	CodeBiometricUnavailable = "BIOMETRIC_UNAVAILABLE"
	CodeBiometricFailed      = "BIOMETRIC_FAILED"
	CodeCeremonyNotFound     = "CEREMONY_NOT_FOUND"
	CodeResetNotConfirmed    = "RESET_NOT_CONFIRMED"
	CodeStateDisallowsOp     = "STATE_DISALLOWS_OPERATION"
	CodeAttemptInFlight      = "ATTEMPT_IN_FLIGHT"
	CodeInvalidRequest       = "INVALID_REQUEST"
	CodeNotFound             = "NOT_FOUND"
	CodeStorageUnavailable   = "STORAGE_UNAVAILABLE"
	CodeOriginNotAllowed     = "ORIGIN_NOT_ALLOWED"
)

var enUSCatalog = &Catalog{
	locale: "en-US",
	messages: map[Code]string{
		CodeUnknown: "Something went wrong. Please try again.",

		// PIN errors
		CodePinInvalidFormat:   "PIN must be 4 digits and match.",
		CodePinMismatch:        "PIN must be 4 digits and match.",
		CodePinIncorrect:       "Incorrect PIN",
		CodeCurrentPinRequired: "Enter your current PIN to change it.",

		// Profile errors
		CodeTimeoutOutOfRange: "Auto-lock must be at least {{.Min}} minutes.",

		// Lockout errors
		CodeLockedOut: "Too many incorrect attempts. Try again in {{.Minutes}} minutes.",

		// Biometric errors
		CodeBiometricUnavailable: "Biometric unlock is not available on this device.",
		CodeBiometricFailed:      "Biometric authentication failed",
		CodeCeremonyNotFound:     "The biometric prompt expired. Please try again.",

		// Session errors
		CodeResetNotConfirmed:  "Confirm that you want to erase your saved details.",
		CodeStateDisallowsOp:   "This action is not available right now.",
		CodeAttemptInFlight:    "An unlock is already in progress.",
		CodeInvalidRequest:     "The request could not be understood.",
		CodeNotFound:           "Not found.",
		CodeStorageUnavailable: "Saved data is unavailable. Please try again.",

		// Transport errors
		CodeOriginNotAllowed: "This request came from a site that is not allowed to use the guard.",
	},
}
