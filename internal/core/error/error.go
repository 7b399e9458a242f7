package errx

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

const (
	// SystemErrorMessage is a user-facing fallback when internal errors occur.
	SystemErrorMessage = "internal server error"
	// RedisErrorMessage describes Redis related failures.
	RedisErrorMessage = "redis operation failed"
	// RedisNotFoundMessage describes a missing Redis key.
	RedisNotFoundMessage = "redis key not found"
)

// Kind classifies an Error so callers can branch with errors.Is.
type Kind string

const (
	KindSchemaPatch           Kind = "schema_patch"
	KindUnexpectedSchemaShape Kind = "unexpected_schema_shape"
	KindLinkType              Kind = "link_type"
	KindMissingLink           Kind = "missing_link"
	KindTypeMismatch          Kind = "type_mismatch"
	KindInvalidJSON           Kind = "invalid_json"
	KindCredentialShape       Kind = "credential_shape"
	KindNodeOperation         Kind = "node_operation"
	KindUpstream              Kind = "upstream"
	KindRedis                 Kind = "redis"
)

// Sentinels for errors.Is matching on Kind.
var (
	ErrSchemaPatch           = &Error{Kind: KindSchemaPatch}
	ErrUnexpectedSchemaShape = &Error{Kind: KindUnexpectedSchemaShape}
	ErrLinkType              = &Error{Kind: KindLinkType}
	ErrMissingLink           = &Error{Kind: KindMissingLink}
	ErrTypeMismatch          = &Error{Kind: KindTypeMismatch}
	ErrInvalidJSON           = &Error{Kind: KindInvalidJSON}
	ErrCredentialShape       = &Error{Kind: KindCredentialShape}
	ErrNodeOperation         = &Error{Kind: KindNodeOperation}
	ErrUpstream              = &Error{Kind: KindUpstream}
	ErrRedis                 = &Error{Kind: KindRedis}
)

// Error is the unified error type. Node and Param locate the failure,
// Expected and Actual describe shape mismatches.
type Error struct {
	Kind     Kind
	Node     string
	Param    string
	Expected string
	Actual   string
	Message  string
	Status   int
	Err      error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	if e.Node != "" {
		fmt.Fprintf(&b, "[%s] ", e.Node)
	}
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	b.WriteString(msg)
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap exposes the underlying error for errors.Is / errors.As support.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error of the same Kind, or the wrapped error.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) && t.Kind != "" {
		return t.Kind == e.Kind
	}
	return false
}

// New creates a new Error with the provided information.
func New(err error, status int, message string) *Error {
	return &Error{
		Err:     err,
		Status:  status,
		Message: message,
	}
}

// SchemaPatch reports a rule that did not match exactly once.
func SchemaPatch(rule int, pattern string, matches int, searched string) *Error {
	return &Error{
		Kind:     KindSchemaPatch,
		Param:    pattern,
		Expected: "exactly one match",
		Actual:   fmt.Sprintf("%d matches", matches),
		Message: fmt.Sprintf("patch rule %d: expected exactly one match for pattern %q, found %d in: %s",
			rule, pattern, matches, searched),
		Status: http.StatusInternalServerError,
	}
}

// UnexpectedSchemaShape reports a schema that is not in the textual form a patch needs.
func UnexpectedSchemaShape(node, expected, actual string) *Error {
	return &Error{
		Kind:     KindUnexpectedSchemaShape,
		Node:     node,
		Expected: expected,
		Actual:   actual,
		Message:  fmt.Sprintf("expected schema to be %s, got %s", expected, actual),
		Status:   http.StatusInternalServerError,
	}
}

// LinkType reports a connected supplier of the wrong kind.
func LinkType(node, role, expected, actual string) *Error {
	return &Error{
		Kind:     KindLinkType,
		Node:     node,
		Param:    role,
		Expected: expected,
		Actual:   actual,
		Message: fmt.Sprintf("connected %s is not a %s, got %s; connect a matching Langfuse node",
			role, expected, actual),
		Status: http.StatusBadRequest,
	}
}

// MissingLink reports a required supplier that is not connected.
func MissingLink(node, role string) *Error {
	return &Error{
		Kind:    KindMissingLink,
		Node:    node,
		Param:   role,
		Message: fmt.Sprintf("no connected %s found", role),
		Status:  http.StatusBadRequest,
	}
}

// TypeMismatch reports a parameter of the wrong kind.
func TypeMismatch(node, param, expected, actual string) *Error {
	return &Error{
		Kind:     KindTypeMismatch,
		Node:     node,
		Param:    param,
		Expected: expected,
		Actual:   actual,
		Message:  fmt.Sprintf("input %s should be %s, got %s instead", param, expected, actual),
		Status:   http.StatusBadRequest,
	}
}

// InvalidJSON reports a parameter that failed to parse as JSON.
func InvalidJSON(node, param string, err error) *Error {
	return &Error{
		Kind:     KindInvalidJSON,
		Node:     node,
		Param:    param,
		Expected: "a valid JSON string",
		Message:  fmt.Sprintf("input %s should be a valid JSON string", param),
		Status:   http.StatusBadRequest,
		Err:      err,
	}
}

// CredentialShape reports a credential field that is not a string.
func CredentialShape(node, field, actual string) *Error {
	return &Error{
		Kind:     KindCredentialShape,
		Node:     node,
		Param:    field,
		Expected: "string",
		Actual:   actual,
		Message:  fmt.Sprintf("langfuse %s should be a string, got %s", field, actual),
		Status:   http.StatusBadRequest,
	}
}

// NodeOperation reports a general node failure.
func NodeOperation(node, format string, args ...any) *Error {
	return &Error{
		Kind:    KindNodeOperation,
		Node:    node,
		Message: fmt.Sprintf(format, args...),
		Status:  http.StatusInternalServerError,
	}
}

// Upstream wraps a failed call to a remote API.
func Upstream(err error, status int, message string) *Error {
	return &Error{
		Kind:    KindUpstream,
		Message: message,
		Status:  status,
		Err:     err,
	}
}

// WithNode returns a copy of e attributed to node.
func (e *Error) WithNode(node string) *Error {
	c := *e
	c.Node = node
	return &c
}

// TypeName describes v the way error messages expect.
func TypeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case string:
		return "string"
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return "number"
	case map[string]any, []any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}
