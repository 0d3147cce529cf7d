package rpc

import (
	"encoding/json"
	"fmt"
)

// ErrorKind classifies an Error the way spec.md §7 enumerates failure
// categories. The wire representation only ever carries Code/Message/Data;
// Kind exists for callers (plugins, tests) that want to branch on category
// without hardcoding the numeric code.
type ErrorKind string

const (
	KindParse            ErrorKind = "parse"
	KindInvalidRequest   ErrorKind = "invalid-request"
	KindMethodNotFound   ErrorKind = "method-not-found"
	KindInvalidParams    ErrorKind = "invalid-params"
	KindInternal         ErrorKind = "internal"
	KindAuthentication   ErrorKind = "authentication"
	KindAuthorization    ErrorKind = "authorization"
	KindTransport        ErrorKind = "transport"
	KindConnectionClosed ErrorKind = "connection-closed"
	KindTimeout          ErrorKind = "timeout"
	KindApplication      ErrorKind = "application-defined"
)

// Standard JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Error is the single error type that flows out of handlers, plugin hooks,
// and transports. It never escapes a connection as a Go panic; server.go and
// client.go always convert one into a response envelope or a PendingCall
// rejection.
type Error struct {
	Kind    ErrorKind
	Code    int
	Message string
	Data    interface{}

	// requestID carries the id a malformed request arrived with, set only
	// by DecodeRequest, so the caller can still echo it back.
	requestID *ID
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s (code %d)", e.Kind, e.Message, e.Code)
}

// NewError builds an Error with an application-chosen kind and code. Codes
// in the reserved range (-32768..-32000) are for framework use; application
// handlers should pick codes outside that range.
func NewError(kind ErrorKind, code int, message string, data interface{}) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Data: data}
}

func ParseError(message string) *Error {
	return NewError(KindParse, CodeParseError, message, nil)
}

func InvalidRequestError(message string) *Error {
	return NewError(KindInvalidRequest, CodeInvalidRequest, message, nil)
}

func MethodNotFoundError(method string) *Error {
	return NewError(KindMethodNotFound, CodeMethodNotFound, fmt.Sprintf("method not found: %s", method), nil)
}

func InvalidParamsError(message string) *Error {
	return NewError(KindInvalidParams, CodeInvalidParams, message, nil)
}

func InternalError(err error) *Error {
	return NewError(KindInternal, CodeInternalError, err.Error(), nil)
}

func AuthenticationError(message string) *Error {
	return NewError(KindAuthentication, -32001, message, nil)
}

func AuthorizationError(message string) *Error {
	return NewError(KindAuthorization, -32002, message, nil)
}

func TransportError(err error) *Error {
	return NewError(KindTransport, -32003, err.Error(), nil)
}

func ConnectionClosedError() *Error {
	return NewError(KindConnectionClosed, -32004, "connection closed", nil)
}

func TimeoutError(method string) *Error {
	return NewError(KindTimeout, -32005, fmt.Sprintf("timed out waiting for a response to %s", method), nil)
}

// ApplicationError builds a handler-thrown error carrying an
// application-chosen code and optional data, serialized verbatim into the
// response's error member.
func ApplicationError(code int, message string, data interface{}) *Error {
	return NewError(KindApplication, code, message, data)
}

func (e *Error) toObject() *ErrorObject {
	obj := &ErrorObject{Code: e.Code, Message: e.Message}
	if e.Data != nil {
		if data, err := json.Marshal(e.Data); err == nil {
			obj.Data = data
		}
	}
	return obj
}

func errorFromObject(o *ErrorObject) *Error {
	var data interface{}
	if len(o.Data) > 0 {
		_ = json.Unmarshal(o.Data, &data)
	}
	return &Error{Kind: kindForCode(o.Code), Code: o.Code, Message: o.Message, Data: data}
}

func kindForCode(code int) ErrorKind {
	switch code {
	case CodeParseError:
		return KindParse
	case CodeInvalidRequest:
		return KindInvalidRequest
	case CodeMethodNotFound:
		return KindMethodNotFound
	case CodeInvalidParams:
		return KindInvalidParams
	case CodeInternalError:
		return KindInternal
	case -32001:
		return KindAuthentication
	case -32002:
		return KindAuthorization
	case -32003:
		return KindTransport
	case -32004:
		return KindConnectionClosed
	case -32005:
		return KindTimeout
	default:
		return KindApplication
	}
}

// errorFromPanic converts a recovered panic value into an Error, preserving
// it unchanged when a handler already panicked with one (mirroring
// handlers.go's recoverError default case).
func errorFromPanic(r interface{}) *Error {
	if err, ok := r.(*Error); ok {
		return err
	}
	if err, ok := r.(error); ok {
		return InternalError(err)
	}
	return NewError(KindInternal, CodeInternalError, fmt.Sprintf("panic: %v", r), nil)
}

func errorFromHandlerErr(err error) *Error {
	if e, ok := err.(*Error); ok {
		return e
	}
	return InternalError(err)
}
