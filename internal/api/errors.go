package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Kind classifies a failure.
type Kind int

const (
	// KindAPI is a non-2xx response with a parsed message. Recoverable.
	KindAPI Kind = iota + 1
	// KindNetwork means no response was reachable. Never clears the session.
	KindNetwork
	// KindAuthFailed means the refresh protocol was exhausted and the
	// session has been invalidated.
	KindAuthFailed
	// KindValidation is a client-side pre-flight rejection; it never
	// reaches the network.
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindAPI:
		return "api"
	case KindNetwork:
		return "network"
	case KindAuthFailed:
		return "authentication_failed"
	case KindValidation:
		return "validation"
	}
	return "unknown"
}

// Error is the single normalized failure type of the client layer. Message
// is always suitable for display.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Body    *ErrorBody
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrNetwork)
// works for every network failure.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrAPI                  = &Error{Kind: KindAPI, Message: "api request failed"}
	ErrNetwork              = &Error{Kind: KindNetwork, Message: "network error"}
	ErrAuthenticationFailed = &Error{Kind: KindAuthFailed, Message: "Authentication failed"}
	ErrValidation           = &Error{Kind: KindValidation, Message: "validation failed"}
)

// NetworkError wraps a transport failure.
func NetworkError(err error) *Error {
	return &Error{
		Kind:    KindNetwork,
		Message: "Network error: the server could not be reached. Check your connection and try again.",
		Err:     err,
	}
}

// AuthenticationFailed builds the session-fatal error. cause may be nil.
func AuthenticationFailed(cause error) *Error {
	return &Error{Kind: KindAuthFailed, Status: 401, Message: "Authentication failed", Err: cause}
}

// ValidationError builds a client-side pre-flight error.
func ValidationError(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// IsKind reports whether err is an *Error of kind k.
func IsKind(err error, k Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == k
}

// Message returns a displayable message for err, or fallback when err
// carries none.
func Message(err error, fallback string) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return fallback
}

// ========================================
// Error bodies
// ========================================

// ErrorShape tags which of the known error body shapes was received.
type ErrorShape int

const (
	ShapeUnknown ErrorShape = iota
	ShapeDetail
	ShapeMessage
	ShapeFields
)

// ErrorBody is the decoded JSON error body: {detail}, {message}, or a
// field-error map {field: string | string[]}.
type ErrorBody struct {
	Shape   ErrorShape
	Detail  string
	Message string
	Fields  map[string][]string
}

// unprefixed field keys carry general messages, not field errors
var unprefixed = map[string]bool{
	"non_field_errors": true,
	"error":            true,
	"errors":           true,
}

// DecodeErrorBody decodes data into one of the known shapes. Anything that
// is not a JSON object, or an object with no usable values, is ShapeUnknown.
func DecodeErrorBody(data []byte) ErrorBody {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil || len(raw) == 0 {
		return ErrorBody{Shape: ShapeUnknown}
	}

	if s, ok := decodeString(raw["detail"]); ok && s != "" {
		return ErrorBody{Shape: ShapeDetail, Detail: s}
	}
	if s, ok := decodeString(raw["message"]); ok && s != "" {
		return ErrorBody{Shape: ShapeMessage, Message: s}
	}

	fields := make(map[string][]string)
	for key, value := range raw {
		if msgs := decodeMessages(value); len(msgs) > 0 {
			fields[key] = msgs
		}
	}
	if len(fields) == 0 {
		return ErrorBody{Shape: ShapeUnknown}
	}
	return ErrorBody{Shape: ShapeFields, Fields: fields}
}

// Text renders the body as one displayable message.
func (b ErrorBody) Text(status int) string {
	switch b.Shape {
	case ShapeDetail:
		return b.Detail
	case ShapeMessage:
		return b.Message
	case ShapeFields:
		keys := make([]string, 0, len(b.Fields))
		for k := range b.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			joined := strings.Join(b.Fields[k], " ")
			if unprefixed[k] {
				parts = append(parts, joined)
			} else {
				parts = append(parts, k+": "+joined)
			}
		}
		return strings.Join(parts, "; ")
	}
	return fmt.Sprintf("Error %d", status)
}

func decodeString(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// decodeMessages accepts a string or an array of strings. Nested objects
// (serializer errors of nested fields) are flattened one level.
func decodeMessages(raw json.RawMessage) []string {
	if s, ok := decodeString(raw); ok {
		if s == "" {
			return nil
		}
		return []string{s}
	}

	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err == nil {
		var out []string
		for _, item := range list {
			out = append(out, decodeMessages(item)...)
		}
		return out
	}

	var nested map[string]json.RawMessage
	if err := json.Unmarshal(raw, &nested); err == nil {
		keys := make([]string, 0, len(nested))
		for k := range nested {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var out []string
		for _, k := range keys {
			for _, msg := range decodeMessages(nested[k]) {
				out = append(out, k+": "+msg)
			}
		}
		return out
	}
	return nil
}
