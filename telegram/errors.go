package telegram

import (
	"encoding/json"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Kind classifies an ApiClient error per spec.md §4.1/§7.
type Kind int

const (
	// KindTransport is an I/O or HTTP-status failure; retriable by caller policy.
	KindTransport Kind = iota
	// KindProtocol is a well-formed transport response with ok=false.
	KindProtocol
	// KindDecode is a malformed body, treated as Protocol with a synthetic code.
	KindDecode
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindProtocol:
		return "protocol"
	case KindDecode:
		return "decode"
	default:
		return "unknown"
	}
}

// decodeErrorCode is the synthetic error_code attached to a KindDecode error,
// since the wire never allocates a real Telegram error code for "we could
// not parse what you sent back".
const decodeErrorCode = -1

// Error is the structured error every Client method returns on failure.
type Error struct {
	Kind Kind

	// Description is the human-readable message (Telegram's "description"
	// field for Protocol/Decode, or the underlying error's message for
	// Transport).
	Description string

	// Code is Telegram's error_code for Protocol/Decode, the HTTP status for
	// a Transport error caused by a non-200 response, and 0 otherwise.
	Code int

	// RetryAfter is the server-supplied minimum retry delay in seconds, 0 if
	// absent.
	RetryAfter int

	// MigrateToChatID is set when the server reports the chat migrated to a
	// supergroup; surfaced to the handler, never acted on by the core
	// (spec.md §6).
	MigrateToChatID int64

	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("telegram: %s: %s: %v", e.Kind, e.Description, e.Err)
	}
	return fmt.Sprintf("telegram: %s: %s", e.Kind, e.Description)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the pump should treat this as transient.
// Decode errors are fatal to the individual call (the body made no sense)
// but are still retriable at the pump level, since the next long-poll may
// simply succeed.
func (e *Error) Retryable() bool {
	return e.Kind == KindTransport || e.Kind == KindProtocol || e.Kind == KindDecode
}

// classify wraps a raw error from the tgbotapi client into the taxonomy
// spec.md §4.1 describes. tgbotapi surfaces protocol-level failures
// (ok=false) as *tgbotapi.Error; anything else is a transport failure, with
// JSON shape errors reclassified as Decode.
func classify(err error) *Error {
	if err == nil {
		return nil
	}

	var tgErr *tgbotapi.Error
	if errors.As(err, &tgErr) {
		return &Error{
			Kind:            KindProtocol,
			Description:     tgErr.Message,
			Code:            tgErr.Code,
			RetryAfter:      tgErr.RetryAfter,
			MigrateToChatID: tgErr.MigrateToChatID,
			Err:             err,
		}
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return &Error{
			Kind:        KindDecode,
			Description: err.Error(),
			Code:        decodeErrorCode,
			Err:         err,
		}
	}

	return &Error{
		Kind:        KindTransport,
		Description: err.Error(),
		Err:         err,
	}
}
