package i18n

// Error codes must match the codes defined in internal/platform/errors/codes.go.
// These are duplicated as strings to avoid an import cycle.
const (
	CodeArgumentInvalid       = "ARGUMENT_INVALID"
	CodeCommandUnknown        = "COMMAND_UNKNOWN"
	CodeBreakSelectorInvalid  = "BREAK_SELECTOR_INVALID"
	CodeConditionInvalid      = "CONDITION_INVALID"
	CodeSessionActive         = "SESSION_ACTIVE"
	CodeSessionEmpty          = "SESSION_EMPTY"
	CodeLaunchAborted         = "LAUNCH_ABORTED"
	CodeRecognizerUnavailable = "RECOGNIZER_UNAVAILABLE"
	CodeRecognizerProtocol    = "RECOGNIZER_PROTOCOL"
	CodeTraceNotFound         = "TRACE_NOT_FOUND"
	CodeTraceInvalid          = "TRACE_INVALID"
	CodeStorageUnavailable    = "STORAGE_UNAVAILABLE"
	CodeStorageNotConfigured  = "STORAGE_NOT_CONFIGURED"
)

var enUSCatalog = &Catalog{
	locale: BaseLocale,
	messages: map[Code]string{
		// Request errors
		CodeArgumentInvalid:      "Invalid value for {{.Field}}",
		CodeCommandUnknown:       "Unknown debugger command {{.Command}}",
		CodeBreakSelectorInvalid: "Unknown breakpoint kind {{.Selector}}",
		CodeConditionInvalid:     "Breakpoint condition does not compile",

		// Session errors
		CodeSessionActive: "A debugging session is already running",
		CodeSessionEmpty:  "The current session has no recorded events",
		CodeLaunchAborted: "The session was stopped while connecting to {{.Addr}}",

		// Recognizer errors
		CodeRecognizerUnavailable: "Cannot connect to the recognizer at {{.Addr}}",
		CodeRecognizerProtocol:    "The recognizer at {{.Addr}} speaks an unsupported debug protocol",

		// Trace errors
		CodeTraceNotFound:        "Trace {{.TraceID}} was not found",
		CodeTraceInvalid:         "Trace {{.TraceID}} is not a valid event sequence",
		CodeStorageUnavailable:   "Trace storage is unavailable",
		CodeStorageNotConfigured: "Trace storage is not configured",
	},
}
