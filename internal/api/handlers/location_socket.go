package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/danghamo/tourguide/internal/api/middleware"
	"github.com/danghamo/tourguide/internal/domain/guide"
	"github.com/danghamo/tourguide/internal/domain/shared"
	"github.com/danghamo/tourguide/pkg/logger"
)

const (
	socketPongWait   = 60 * time.Second
	socketPingPeriod = 25 * time.Second
	socketWriteWait  = 5 * time.Second
	socketReadLimit  = 4096
)

// LocationFrame is one message on the location socket: either a fix or an error report
type LocationFrame struct {
	Lat       float64   `json:"lat"`
	Lon       float64   `json:"lon"`
	Accuracy  float64   `json:"accuracy,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// socketReply is sent back for rejected frames
type socketReply struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
}

// LocationSocket ingests device fixes over a WebSocket
type LocationSocket struct {
	logger   *logger.Logger
	sink     LocationSink
	upgrader websocket.Upgrader
}

// NewLocationSocket creates the handler. allowedOrigins follows the CORS
// setting; "*" or an empty list accepts any origin.
func NewLocationSocket(log *logger.Logger, sink LocationSink, allowedOrigins []string) *LocationSocket {
	s := &LocationSocket{
		logger: log.WithComponent("location-socket"),
		sink:   sink,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	s.upgrader.CheckOrigin = originChecker(allowedOrigins)
	return s
}

func originChecker(allowed []string) func(*http.Request) bool {
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
	}
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if o == origin {
				return true
			}
		}
		return false
	}
}

// HandleSocket upgrades the request and reads frames until the client goes away
func (s *LocationSocket) HandleSocket(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed", zap.String("user_id", userID), zap.Error(err))
		return
	}
	defer conn.Close()

	log := s.logger.WithUserID(userID)
	log.Debug("Location socket connected")

	conn.SetReadLimit(socketReadLimit)
	conn.SetReadDeadline(time.Now().Add(socketPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(socketPongWait))
	})

	done := make(chan struct{})
	defer close(done)
	go s.ping(conn, done)

	for {
		var frame LocationFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("Location socket read failed", zap.Error(err))
			}
			log.Debug("Location socket closed")
			return
		}
		conn.SetReadDeadline(time.Now().Add(socketPongWait))

		if err := s.accept(userID, frame); err != nil {
			conn.SetWriteDeadline(time.Now().Add(socketWriteWait))
			if err := conn.WriteJSON(socketReply{Type: "error", Message: err.Error()}); err != nil {
				return
			}
		}
	}
}

func (s *LocationSocket) accept(userID string, frame LocationFrame) error {
	if frame.Error != "" {
		s.sink.Fail(userID, shared.NewDomainError(shared.ErrCodeLocationUnavailable, frame.Error))
		return nil
	}
	return s.sink.Push(userID, guide.Fix{
		Coordinate: shared.Coordinate{Lat: frame.Lat, Lon: frame.Lon},
		Accuracy:   frame.Accuracy,
		Timestamp:  frame.Timestamp,
	})
}

func (s *LocationSocket) ping(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(socketPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(socketWriteWait)); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
