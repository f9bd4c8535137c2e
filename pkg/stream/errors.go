package stream

func (e *StreamError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// StreamError represents streaming-layer errors
type StreamError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

func (e *StreamError) Unwrap() error {
	return e.Cause
}

// Is matches any StreamError carrying the same code
func (e *StreamError) Is(target error) bool {
	t, ok := target.(*StreamError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Common error codes
const (
	ErrCodeClosed        = "HUB_CLOSED"
	ErrCodeBusy          = "SESSION_BUSY"
	ErrCodeSource        = "SOURCE_FAILED"
	ErrCodeConsumer      = "CONSUMER_FAILED"
	ErrCodeInvalidConfig = "INVALID_CONFIG"
)

var (
	ErrHubClosed     = &StreamError{Code: ErrCodeClosed, Message: "hub is closed"}
	ErrSessionBusy   = &StreamError{Code: ErrCodeBusy, Message: "session is already streaming"}
	ErrInvalidConfig = &StreamError{Code: ErrCodeInvalidConfig, Message: "invalid stream configuration"}
)

// NewStreamError creates a new stream error
func NewStreamError(code, message string, cause error) *StreamError {
	return &StreamError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}
