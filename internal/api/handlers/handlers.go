// Package handlers implements the JSON-RPC endpoints of the guide API.
package handlers

import (
	"net/http"

	"github.com/danghamo/tourguide/internal/api/jsonrpcx"
	"github.com/danghamo/tourguide/internal/api/middleware"
)

// EmptyParams is accepted by methods that take no parameters
type EmptyParams struct{}

// begin authenticates r, parses the JSON-RPC envelope and decodes params.
// On failure the error is attached to r and ok is false.
func begin[T any](r *http.Request, params *T) (userID string, req *jsonrpcx.JSONRPCRequest, ok bool) {
	userID, ok = middleware.GetUserID(r.Context())
	if !ok {
		jsonrpcx.WithError(r, nil, jsonrpcx.Unauthorized, "User not authenticated")
		return "", nil, false
	}

	req, err := jsonrpcx.ParseRequest(r)
	if err != nil {
		jsonrpcx.WithError(r, nil, jsonrpcx.ParseError, "Invalid JSON-RPC request")
		return "", nil, false
	}

	if err := jsonrpcx.DecodeParams(req, params); err != nil {
		jsonrpcx.WithError(r, req.ID, jsonrpcx.InvalidParams, err.Error())
		return "", nil, false
	}
	return userID, req, true
}
