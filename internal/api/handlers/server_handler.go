package handlers

import (
	"net/http"
	"time"

	"github.com/danghamo/tourguide/internal/api/jsonrpcx"
)

// Counter reports a current count, such as open sessions or stream clients
type Counter interface {
	Count() int
}

// CounterFunc adapts a function to Counter
type CounterFunc func() int

func (f CounterFunc) Count() int { return f() }

// ServerInfo describes this deployment
type ServerInfo struct {
	Name          string `json:"name"`
	Version       string `json:"version"`
	AudioEngine   string `json:"audio_engine"`
	EventsBackend string `json:"events_backend"`
}

// ServerHandler handles server information requests
type ServerHandler struct {
	info     ServerInfo
	started  time.Time
	sessions Counter
	streams  Counter
}

// NewServerHandler creates a new server handler. sessions and streams may be nil.
func NewServerHandler(info ServerInfo, sessions, streams Counter) *ServerHandler {
	return &ServerHandler{info: info, started: time.Now(), sessions: sessions, streams: streams}
}

// ServerInfoResponse represents server information
type ServerInfoResponse struct {
	ServerInfo
	Uptime   string `json:"uptime"`
	Sessions int    `json:"sessions"`
	Streams  int    `json:"streams"`
}

// Info returns deployment details and live counters
// @Summary Server information
// @Tags server
// @Accept json
// @Produce json
// @Param request body jsonrpcx.RequestT[EmptyParams] true "JSON-RPC request"
// @Success 200 {object} jsonrpcx.ResponseT[ServerInfoResponse]
// @Router /api/v1/server.Info [post]
func (h *ServerHandler) Info(w http.ResponseWriter, r *http.Request) {
	req, err := jsonrpcx.ParseRequest(r)
	if err != nil {
		jsonrpcx.WithError(r, nil, jsonrpcx.ParseError, "Invalid JSON-RPC request")
		return
	}

	resp := ServerInfoResponse{
		ServerInfo: h.info,
		Uptime:     time.Since(h.started).Round(time.Second).String(),
	}
	if h.sessions != nil {
		resp.Sessions = h.sessions.Count()
	}
	if h.streams != nil {
		resp.Streams = h.streams.Count()
	}
	jsonrpcx.Success(w, req.ID, resp)
}
