package audio

func (e *AudioError) Error() string {
	msg := e.Message
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

// AudioError represents a failure of one of the audio operations
type AudioError struct {
	Code    string `json:"code"`
	Op      string `json:"op,omitempty"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

func (e *AudioError) Unwrap() error {
	return e.Cause
}

// Is matches any *AudioError carrying the same code, so the sentinels below
// work with errors.Is.
func (e *AudioError) Is(target error) bool {
	t, ok := target.(*AudioError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Error codes
const (
	ErrCodeMalformedInput        = "MALFORMED_INPUT"
	ErrCodeUnsupportedBufferSize = "UNSUPPORTED_BUFFER_SIZE"
	ErrCodeInvalidArgument       = "INVALID_ARGUMENT"
	ErrCodeResourceExhausted     = "RESOURCE_EXHAUSTED"
)

// Sentinels for errors.Is checks
var (
	ErrMalformedInput        = &AudioError{Code: ErrCodeMalformedInput, Message: "malformed input"}
	ErrUnsupportedBufferSize = &AudioError{Code: ErrCodeUnsupportedBufferSize, Message: "unsupported buffer size"}
	ErrInvalidArgument       = &AudioError{Code: ErrCodeInvalidArgument, Message: "invalid argument"}
	ErrResourceExhausted     = &AudioError{Code: ErrCodeResourceExhausted, Message: "resource exhausted"}
)

// NewAudioError creates a new audio error
func NewAudioError(code, op, message string, cause error) *AudioError {
	return &AudioError{
		Code:    code,
		Op:      op,
		Message: message,
		Cause:   cause,
	}
}
