package apperrors

import (
	"errors"
	"fmt"
)

// Kind classifies a failure into one of the categories surfaced to users.
type Kind string

const (
	KindTransportTimeout      Kind = "transport_timeout"
	KindTransportUnreachable  Kind = "transport_unreachable"
	KindAuthenticationFailed  Kind = "authentication_failed"
	KindPathNotFound          Kind = "path_not_found"
	KindRemoteServerError     Kind = "remote_server_error"
	KindRequestFailed         Kind = "request_failed"
	KindValidationFailed      Kind = "validation_failed"
	KindExtractionUnsupported Kind = "extraction_unsupported"
	KindMessageTimeout        Kind = "message_timeout"
	KindInvalidInput          Kind = "invalid_input"
)

// User-facing messages shared by several components.
const (
	MsgConnectionFailed  = "Cannot connect to Obsidian. Please ensure Obsidian is running with Local REST API plugin enabled."
	MsgAuthFailed        = "Authentication failed. Please check your API key in Settings."
	MsgExtractionFailed  = "Failed to extract content. This page may not support clipping."
	MsgSaveFailed        = "Failed to save to Obsidian. Please try again."
	MsgTimeout           = "Request timed out. Please check your connection."
	MsgPathNotFound      = "Obsidian vault path not found. Please check target folder."
	MsgServerError       = "Obsidian server error. Please try again."
	MsgMessageTimeout    = "Message timeout - page may not support this operation"
	MsgPageNotSupported  = "This page cannot be clipped (e.g., chrome://, about:)."
	MsgInvalidURL        = "Invalid API URL. Please check your settings."
	MsgConnectionTimeout = "Connection timed out"
)

// Error is a classified failure carrying a human-readable message.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies err. A nil err yields nil.
func Wrap(kind Kind, message string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
