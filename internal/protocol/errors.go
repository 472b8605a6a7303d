// internal/protocol/errors.go
// Error taxonomy carried in the error field of a RequestResult.
package protocol

import (
	"errors"
	"fmt"
)

// Category is the top level of the error taxonomy.
type Category string

const (
	CategoryAuth       Category = "auth"
	CategoryValidation Category = "validation"
	CategoryNotFound   Category = "not_found"
	CategoryInternal   Category = "internal"
	CategoryProtocol   Category = "protocol"
)

var categoryLabels = map[Category]string{
	CategoryAuth:       "authentication error",
	CategoryValidation: "validation error",
	CategoryNotFound:   "not found",
	CategoryInternal:   "internal error",
	CategoryProtocol:   "protocol error",
}

// Label is the human readable prefix used when rendering a RequestError.
func (c Category) Label() string {
	if label, ok := categoryLabels[c]; ok {
		return label
	}
	return string(c)
}

// Reason is a leaf of the taxonomy. Every leaf belongs to exactly one
// category and carries a stable wire code and a fixed message.
type Reason interface {
	error
	Category() Category
	Code() string
}

type leaf struct {
	code    string
	message string
}

// AuthError enumerates authentication failures.
type AuthError uint8

const (
	AlreadySignedUp AuthError = iota + 1
	IncorrectCredentials
	IncorrectSessionToken
)

var authLeaves = map[AuthError]leaf{
	AlreadySignedUp:       {"already_signed_up", "already signed up"},
	IncorrectCredentials:  {"incorrect_credentials", "incorrect login or password"},
	IncorrectSessionToken: {"incorrect_session_token", "incorrect session token"},
}

func (e AuthError) Error() string      { return authLeaves[e].message }
func (e AuthError) Code() string       { return authLeaves[e].code }
func (e AuthError) Category() Category { return CategoryAuth }

// ValidationError enumerates rejected method arguments.
type ValidationError uint8

const (
	InvalidLogin ValidationError = iota + 1
	InvalidPassword
	InvalidMessage
	InvalidChatTitle
)

var validationLeaves = map[ValidationError]leaf{
	InvalidLogin:     {"invalid_login", "login must be 3-20 characters of letters, digits or underscore"},
	InvalidPassword:  {"invalid_password", "password must be 1-72 bytes"},
	InvalidMessage:   {"invalid_message", "message must be 1-500 characters"},
	InvalidChatTitle: {"invalid_chat_title", "chat title must be 1-64 characters"},
}

func (e ValidationError) Error() string      { return validationLeaves[e].message }
func (e ValidationError) Code() string       { return validationLeaves[e].code }
func (e ValidationError) Category() Category { return CategoryValidation }

// NotFoundError enumerates references to things that do not exist, or that
// the caller is not allowed to see.
type NotFoundError uint8

const (
	UnknownUser NotFoundError = iota + 1
	UnknownChat
)

var notFoundLeaves = map[NotFoundError]leaf{
	UnknownUser: {"unknown_user", "user not found"},
	UnknownChat: {"unknown_chat", "chat not found"},
}

func (e NotFoundError) Error() string      { return notFoundLeaves[e].message }
func (e NotFoundError) Code() string       { return notFoundLeaves[e].code }
func (e NotFoundError) Category() Category { return CategoryNotFound }

// InternalError enumerates server side faults.
type InternalError uint8

const (
	Unavailable InternalError = iota + 1
)

var internalLeaves = map[InternalError]leaf{
	Unavailable: {"unavailable", "service unavailable"},
}

func (e InternalError) Error() string      { return internalLeaves[e].message }
func (e InternalError) Code() string       { return internalLeaves[e].code }
func (e InternalError) Category() Category { return CategoryInternal }

// ProtocolError enumerates frames the server could not interpret.
type ProtocolError uint8

const (
	MalformedRequest ProtocolError = iota + 1
	UnknownMethod
	UnsupportedVersion
)

var protocolLeaves = map[ProtocolError]leaf{
	MalformedRequest:   {"malformed_request", "malformed request"},
	UnknownMethod:      {"unknown_method", "unknown method"},
	UnsupportedVersion: {"unsupported_version", "unsupported protocol version"},
}

func (e ProtocolError) Error() string      { return protocolLeaves[e].message }
func (e ProtocolError) Code() string       { return protocolLeaves[e].code }
func (e ProtocolError) Category() Category { return CategoryProtocol }

// reasonsByCode indexes every leaf by category and wire code for decoding.
var reasonsByCode = func() map[Category]map[string]Reason {
	idx := make(map[Category]map[string]Reason)
	add := func(r Reason) {
		if idx[r.Category()] == nil {
			idx[r.Category()] = make(map[string]Reason)
		}
		idx[r.Category()][r.Code()] = r
	}
	for r := range authLeaves {
		add(r)
	}
	for r := range validationLeaves {
		add(r)
	}
	for r := range notFoundLeaves {
		add(r)
	}
	for r := range internalLeaves {
		add(r)
	}
	for r := range protocolLeaves {
		add(r)
	}
	return idx
}()

// ErrUnknownReason is returned when a category/code pair is not part of the taxonomy.
var ErrUnknownReason = errors.New("protocol: unknown error reason")

// LookupReason resolves a wire category and code to its leaf.
func LookupReason(category Category, code string) (Reason, error) {
	if r, ok := reasonsByCode[category][code]; ok {
		return r, nil
	}
	return nil, fmt.Errorf("%w: %s/%s", ErrUnknownReason, category, code)
}

// RequestError is the failure outcome of a request.
type RequestError struct {
	Reason Reason
}

// NewRequestError wraps a leaf reason.
func NewRequestError(r Reason) *RequestError {
	return &RequestError{Reason: r}
}

func (e *RequestError) Error() string {
	return "RequestError: " + e.Reason.Category().Label() + ": " + e.Reason.Error()
}

func (e *RequestError) Unwrap() error { return e.Reason }

// Category returns the category of the wrapped reason.
func (e *RequestError) Category() Category { return e.Reason.Category() }

// AsRequestError extracts a RequestError from err, wrapping a bare Reason if needed.
func AsRequestError(err error) (*RequestError, bool) {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr, true
	}
	var reason Reason
	if errors.As(err, &reason) {
		return NewRequestError(reason), true
	}
	return nil, false
}
