package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danghamo/tourguide/internal/domain/guide"
	"github.com/danghamo/tourguide/internal/domain/shared"
	"github.com/danghamo/tourguide/pkg/logger"
)

type recordingSink struct {
	mu     sync.Mutex
	fixes  []guide.Fix
	failed []error
}

func (s *recordingSink) Push(_ string, fix guide.Fix) error {
	if !fix.Coordinate.IsValid() {
		return shared.ErrInvalidInputf("invalid location fix %s", fix.Coordinate)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fixes = append(s.fixes, fix)
	return nil
}

func (s *recordingSink) Fail(_ string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed = append(s.failed, err)
}

func (s *recordingSink) counts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.fixes), len(s.failed)
}

func dialSocket(t *testing.T, srv *httptest.Server, user string) *websocket.Conn {
	t.Helper()
	header := http.Header{}
	if user != "" {
		header.Set(testUserHeader, user)
	}
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), header)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestLocationSocketForwardsFrames(t *testing.T) {
	sink := &recordingSink{}
	socket := NewLocationSocket(logger.NewDefault(), sink, []string{"*"})
	srv := httptest.NewServer(asHeaderUser(http.HandlerFunc(socket.HandleSocket)))
	defer srv.Close()

	conn := dialSocket(t, srv, "u1")

	require.NoError(t, conn.WriteJSON(LocationFrame{Lat: 55.7578, Lon: 37.6173, Accuracy: 5}))
	require.NoError(t, conn.WriteJSON(LocationFrame{Error: "gps off"}))

	assert.Eventually(t, func() bool {
		fixes, failed := sink.counts()
		return fixes == 1 && failed == 1
	}, time.Second, 5*time.Millisecond)
	assert.True(t, errors.Is(sink.failed[0], shared.ErrLocationUnavailable))
}

func TestLocationSocketRejectsBadFix(t *testing.T) {
	sink := &recordingSink{}
	socket := NewLocationSocket(logger.NewDefault(), sink, nil)
	srv := httptest.NewServer(asHeaderUser(http.HandlerFunc(socket.HandleSocket)))
	defer srv.Close()

	conn := dialSocket(t, srv, "u1")
	require.NoError(t, conn.WriteJSON(LocationFrame{Lat: 120, Lon: 0}))

	var reply socketReply
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "error", reply.Type)
	assert.Contains(t, reply.Message, "invalid location fix")
}

func TestLocationSocketRequiresUser(t *testing.T) {
	socket := NewLocationSocket(logger.NewDefault(), &recordingSink{}, nil)
	srv := httptest.NewServer(asHeaderUser(http.HandlerFunc(socket.HandleSocket)))
	defer srv.Close()

	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://guide.example.com"})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.True(t, check(req), "no origin header")

	req.Header.Set("Origin", "https://guide.example.com")
	assert.True(t, check(req))

	req.Header.Set("Origin", "https://evil.example.com")
	assert.False(t, check(req))

	assert.True(t, originChecker([]string{"*"})(req))
}
