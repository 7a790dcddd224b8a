package domain

import (
	"errors"
	"net/http"
)

// ErrorKind classifies failures for transport mapping.
type ErrorKind string

const (
	KindMissingParameter  ErrorKind = "MISSING_PARAMETER"
	KindMalformedURL      ErrorKind = "MALFORMED_URL"
	KindDisallowedHost    ErrorKind = "DISALLOWED_HOST"
	KindUnsupportedURL    ErrorKind = "UNSUPPORTED_URL"
	KindRateLimited       ErrorKind = "RATE_LIMITED"
	KindFormatUnavailable ErrorKind = "FORMAT_UNAVAILABLE"
	KindUpstream          ErrorKind = "UPSTREAM_ERROR"
	KindStreaming         ErrorKind = "STREAMING_ERROR"
	KindConversion        ErrorKind = "CONVERSION_ERROR"
	KindServer            ErrorKind = "SERVER_ERROR"
	KindNotFound          ErrorKind = "NOT_FOUND"
	KindMethodNotAllowed  ErrorKind = "METHOD_NOT_ALLOWED"
	KindForbidden         ErrorKind = "FORBIDDEN"
)

// User-facing messages.
const (
	MsgMissingURL          = "Missing url query parameter"
	MsgMalformedURL        = "Invalid URL format"
	MsgDisallowedHost      = "URL must be a YouTube link"
	MsgUnsupportedURL      = "Invalid or unsupported YouTube URL"
	MsgUpstreamRateLimited = "YouTube is rate-limiting this server. Try again later."
	MsgInfoFailed          = "Failed to fetch video info"
	MsgMP4StartFailed      = "Failed to start MP4 download"
	MsgMP3StartFailed      = "Failed to start MP3 download"
	MsgNoMP4Format         = "No compatible MP4 format available"
	MsgNoAudioFormat       = "No audio format available"
	MsgStreaming           = "Streaming error"
	MsgConversion          = "Conversion error"
	MsgServer              = "Server error"
	MsgNotFound            = "Not found"
	MsgMethodNotAllowed    = "Method not allowed"
)

// Error is a classified failure carrying a human-readable message and an optional cause.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

// NewError creates an Error of the given kind.
func NewError(kind ErrorKind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports kind equality so that errors.Is(err, &Error{Kind: k}) matches any message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Status returns the HTTP status code for the error kind.
func (e *Error) Status() int {
	return StatusFor(e.Kind)
}

// StatusFor maps an ErrorKind to an HTTP status code.
func StatusFor(kind ErrorKind) int {
	switch kind {
	case KindMissingParameter, KindMalformedURL, KindDisallowedHost, KindUnsupportedURL, KindFormatUnavailable:
		return http.StatusBadRequest
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindMethodNotAllowed:
		return http.StatusMethodNotAllowed
	default:
		return http.StatusInternalServerError
	}
}

// KindOf extracts the ErrorKind of err, defaulting to KindServer.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindServer
}

// AsError converts any error into an *Error, hiding unclassified causes behind MsgServer.
func AsError(err error) *Error {
	var de *Error
	if errors.As(err, &de) {
		return de
	}
	return NewError(KindServer, MsgServer, err)
}
