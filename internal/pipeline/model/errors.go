package model

// ErrorCategory classifies a pipeline failure for retry and reporting
// decisions. Keep these stable: the status API depends on them.
type ErrorCategory string

const (
	CategoryTransient  ErrorCategory = "TRANSIENT"
	CategoryContent    ErrorCategory = "CONTENT"
	CategoryDependency ErrorCategory = "DEPENDENCY"
)

// Error codes raised by handlers and the worker.
const (
	CodeNoResults            = "NO_RESULTS"
	CodeNoIdentity           = "NO_IDENTITY"
	CodeNoFile               = "NO_FILE"
	CodeFileExists           = "FILE_EXISTS"
	CodeNoHandler            = "NO_HANDLER"
	CodeNoStateChange        = "NO_STATE_CHANGE"
	CodeUserAbort            = "USER_ABORT"
	CodeExternalToolNotFound = "EXTERNAL_TOOL_NOT_FOUND"
	CodeExternalToolError    = "EXTERNAL_TOOL_ERROR"
	CodeYTMusicError         = "YTMUSIC_ERROR"
	CodeMaxRetriesExceeded   = "MAX_RETRIES_EXCEEDED"
	CodeCancelled            = "CANCELLED"
)

// PipelineError is a deterministic, handler-raised failure. The worker
// converts it into a terminal FAILED transition; anything else that escapes
// a handler goes through the retry policy instead.
type PipelineError struct {
	Code     string
	Message  string
	Category ErrorCategory // optional
	Tool     string        // optional, set for external tool failures
}

func (e *PipelineError) Error() string {
	return e.Code + ": " + e.Message
}

// NewPipelineError builds a PipelineError without category or tool.
func NewPipelineError(code, message string) *PipelineError {
	return &PipelineError{Code: code, Message: message}
}
