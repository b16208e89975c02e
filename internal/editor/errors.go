package editor

import "errors"

// ErrorKind categorizes edit failures.
type ErrorKind int

const (
	// KindConfig indicates the client is missing its API credential.
	KindConfig ErrorKind = iota
	// KindInput indicates the original image could not be read.
	KindInput
	// KindService indicates a transport or service-side failure.
	KindService
	// KindGeneration indicates the service answered without a usable image.
	KindGeneration
)

func (k ErrorKind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindInput:
		return "input"
	case KindService:
		return "service"
	case KindGeneration:
		return "generation"
	default:
		return "unknown"
	}
}

// User-facing messages.
const (
	MsgMissingAPIKey    = "API Key is missing."
	MsgNoContent        = "The magic failed to manifest. Please try again."
	MsgNoImage          = "Result extraction failed."
	MsgGenericFailure   = "An error occurred during creation."
	MsgUnreadableSource = "The original image could not be read."
)

// EditError is the single error type returned by Client.EditImage. Error()
// returns only the human-readable message so callers can show it verbatim.
type EditError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *EditError) Error() string {
	return e.Message
}

func (e *EditError) Unwrap() error {
	return e.Err
}

// asEditError normalizes any error into an *EditError. Errors that already are
// EditErrors pass through; others keep their message, or the generic message
// when they have none.
func asEditError(err error) *EditError {
	var ee *EditError
	if errors.As(err, &ee) {
		return ee
	}
	msg := err.Error()
	if msg == "" {
		msg = MsgGenericFailure
	}
	return &EditError{Kind: KindService, Message: msg, Err: err}
}
