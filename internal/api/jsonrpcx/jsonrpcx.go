package jsonrpcx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/danghamo/tourguide/internal/domain/shared"
)

// Version is the only protocol version accepted
const Version = "2.0"

// JSONRPCRequest represents a JSON-RPC 2.0 request
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      any             `json:"id,omitempty"`
}

// JSONRPCResponse represents a JSON-RPC 2.0 response
type JSONRPCResponse struct {
	JSONRPC string        `json:"jsonrpc"`
	Result  any           `json:"result,omitempty"`
	Error   *JSONRPCError `json:"error,omitempty"`
	ID      any           `json:"id,omitempty"`
}

// JSONRPCError represents a JSON-RPC 2.0 error
type JSONRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// JSONRPCNotification is a server-initiated message without an id
type JSONRPCNotification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// NewNotification builds a notification for method
func NewNotification(method string, params any) JSONRPCNotification {
	return JSONRPCNotification{JSONRPC: Version, Method: method, Params: params}
}

// RequestT documents a request whose params are T
type RequestT[T any] struct {
	JSONRPC string `json:"jsonrpc" example:"2.0"`
	Method  string `json:"method"`
	Params  T      `json:"params"`
	ID      any    `json:"id"`
}

// ResponseT documents a successful response carrying T
type ResponseT[T any] struct {
	JSONRPC string `json:"jsonrpc" example:"2.0"`
	Result  T      `json:"result"`
	ID      any    `json:"id"`
}

// ErrorResponse documents an error response
type ErrorResponse struct {
	JSONRPC string       `json:"jsonrpc" example:"2.0"`
	Error   JSONRPCError `json:"error"`
	ID      any          `json:"id"`
}

// JSON-RPC 2.0 error codes
const (
	ParseError     = -32700
	InvalidRequest = -32600
	MethodNotFound = -32601
	InvalidParams  = -32602
	InternalError  = -32603

	// server-defined range
	NotFound       = -32004
	Unauthorized   = -32001
	SessionClosed  = -32010
	PlaybackFailed = -32020
)

type contextKey string

const (
	errorContextKey contextKey = "jsonrpc_error"
	errorSlotKey    contextKey = "jsonrpc_error_slot"
)

// errorSlot survives r.WithContext copies made by inner middleware
type errorSlot struct {
	response *JSONRPCResponse
}

var paramsValidator = validator.New()

// ParseRequest parses JSON-RPC 2.0 request from HTTP request body
func ParseRequest(r *http.Request) (*JSONRPCRequest, error) {
	defer r.Body.Close()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}

	var req JSONRPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, err
	}

	if req.JSONRPC != Version {
		return nil, fmt.Errorf("unsupported jsonrpc version %q", req.JSONRPC)
	}

	return &req, nil
}

// DecodeParams unmarshals and validates params into v. Missing params
// decode as the zero value before validation.
func DecodeParams(req *JSONRPCRequest, v any) error {
	if len(req.Params) > 0 && string(req.Params) != "null" {
		if err := json.Unmarshal(req.Params, v); err != nil {
			return err
		}
	}
	return paramsValidator.Struct(v)
}

// Success sends a successful JSON-RPC 2.0 response
func Success(w http.ResponseWriter, id any, result any) {
	response := JSONRPCResponse{
		JSONRPC: Version,
		Result:  result,
		ID:      id,
	}

	Response(w, response)
}

// WithError attaches an error to the request context for middleware processing
func WithError(r *http.Request, id any, code int, message string) {
	*r = *SetError(r, id, code, message)
}

// WithDomainError attaches err mapped to its JSON-RPC code
func WithDomainError(r *http.Request, id any, err error) {
	code, message := FromDomainError(err)
	*r = *setResponse(r, &JSONRPCResponse{
		JSONRPC: Version,
		Error: &JSONRPCError{
			Code:    code,
			Message: message,
			Data:    map[string]any{"error_code": shared.CodeOf(err)},
		},
		ID: id,
	})
}

// FromDomainError maps a domain error to a JSON-RPC code and message
func FromDomainError(err error) (int, string) {
	switch {
	case errors.Is(err, shared.ErrInvalidInput):
		return InvalidParams, err.Error()
	case errors.Is(err, shared.ErrNotFound), errors.Is(err, shared.ErrSessionNotFound):
		return NotFound, err.Error()
	case errors.Is(err, shared.ErrSessionClosed), errors.Is(err, shared.ErrEngineReleased):
		return SessionClosed, err.Error()
	case errors.Is(err, shared.ErrPlaybackFailure):
		return PlaybackFailed, err.Error()
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return InternalError, "request cancelled"
	default:
		return InternalError, "Internal server error"
	}
}

// ErrorAdapter interface for middleware to send error responses
type ErrorAdapter interface {
	SendError(w http.ResponseWriter, id any, code int, message string)
}

type errorAdapter struct{}

// NewErrorAdapter creates a new error adapter for middleware use
func NewErrorAdapter() ErrorAdapter {
	return &errorAdapter{}
}

// SendError sends an error JSON-RPC 2.0 response
func (ea *errorAdapter) SendError(w http.ResponseWriter, id any, code int, message string) {
	Response(w, JSONRPCResponse{
		JSONRPC: Version,
		Error: &JSONRPCError{
			Code:    code,
			Message: message,
		},
		ID: id,
	})
}

// SetError stores a JSON-RPC error in the request context for middleware processing
func SetError(r *http.Request, id any, code int, message string) *http.Request {
	return setResponse(r, &JSONRPCResponse{
		JSONRPC: Version,
		Error: &JSONRPCError{
			Code:    code,
			Message: message,
		},
		ID: id,
	})
}

func setResponse(r *http.Request, response *JSONRPCResponse) *http.Request {
	if slot, ok := r.Context().Value(errorSlotKey).(*errorSlot); ok {
		slot.response = response
	}
	ctx := context.WithValue(r.Context(), errorContextKey, response)
	return r.WithContext(ctx)
}

// WithErrorSlot prepares r so errors set further down the chain can be read back
func WithErrorSlot(r *http.Request) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), errorSlotKey, &errorSlot{}))
}

// ErrorFromContext returns the error response stored by WithError, if any
func ErrorFromContext(ctx context.Context) (*JSONRPCResponse, bool) {
	if slot, ok := ctx.Value(errorSlotKey).(*errorSlot); ok && slot.response != nil {
		return slot.response, true
	}
	response, ok := ctx.Value(errorContextKey).(*JSONRPCResponse)
	return response, ok
}

// Response sends a JSON-RPC 2.0 response (always HTTP 200)
func Response(w http.ResponseWriter, response JSONRPCResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	// encode errors surface in the logging middleware
	json.NewEncoder(w).Encode(response)
}
