// Package errors provides structured error handling with i18n support.
package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Request errors
	CodeArgumentInvalid      Code = "ARGUMENT_INVALID"
	CodeCommandUnknown       Code = "COMMAND_UNKNOWN"
	CodeBreakSelectorInvalid Code = "BREAK_SELECTOR_INVALID"
	CodeConditionInvalid     Code = "CONDITION_INVALID"

	// Session errors
	CodeSessionActive Code = "SESSION_ACTIVE"
	CodeSessionEmpty  Code = "SESSION_EMPTY"
	CodeLaunchAborted Code = "LAUNCH_ABORTED"

	// Recognizer errors
	CodeRecognizerUnavailable Code = "RECOGNIZER_UNAVAILABLE"
	CodeRecognizerProtocol    Code = "RECOGNIZER_PROTOCOL"

	// Trace errors
	CodeTraceNotFound        Code = "TRACE_NOT_FOUND"
	CodeTraceInvalid         Code = "TRACE_INVALID"
	CodeStorageUnavailable   Code = "STORAGE_UNAVAILABLE"
	CodeStorageNotConfigured Code = "STORAGE_NOT_CONFIGURED"
)

// GRPCCode maps domain error codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	case CodeArgumentInvalid,
		CodeCommandUnknown,
		CodeBreakSelectorInvalid,
		CodeConditionInvalid,
		CodeTraceInvalid:
		return codes.InvalidArgument

	case CodeSessionActive,
		CodeSessionEmpty,
		CodeRecognizerProtocol,
		CodeStorageNotConfigured:
		return codes.FailedPrecondition

	case CodeTraceNotFound:
		return codes.NotFound

	case CodeLaunchAborted:
		return codes.Aborted

	case CodeRecognizerUnavailable,
		CodeStorageUnavailable:
		return codes.Unavailable

	default:
		return codes.Internal
	}
}
