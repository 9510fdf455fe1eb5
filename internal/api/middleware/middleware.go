package middleware

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/cors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/danghamo/tourguide/internal/api/jsonrpcx"
	"github.com/danghamo/tourguide/pkg/config"
	"github.com/danghamo/tourguide/pkg/logger"
)

// Middleware is a function that wraps an http.Handler
type Middleware func(http.Handler) http.Handler

// Chain applies middleware in order (first listed, outermost)
func Chain(middlewares ...Middleware) Middleware {
	return func(final http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}

// RequestIDHeader carries the request id in and out
const RequestIDHeader = "X-Request-ID"

// Logging logs one line per request. The request id is taken from the
// incoming header or generated, and echoed on the response.
func Logging(log *logger.Logger) Middleware {
	l := log.WithComponent("logging-middleware")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := r.Header.Get(RequestIDHeader)
			if requestID == "" {
				requestID = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, requestID)

			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapped, r)

			fields := []zap.Field{
				zap.String("request_id", requestID),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("remote_addr", r.RemoteAddr),
				zap.Int("status_code", wrapped.statusCode),
				zap.Int("bytes", wrapped.written),
				zap.Duration("duration", time.Since(start)),
			}
			switch {
			case wrapped.statusCode >= http.StatusInternalServerError:
				l.Error("HTTP request", fields...)
			case wrapped.statusCode >= http.StatusBadRequest:
				l.Warn("HTTP request", fields...)
			default:
				l.Info("HTTP request", fields...)
			}
		})
	}
}

// CORS middleware backed by rs/cors. An empty origin list allows any origin.
func CORS(cfg config.CORSConfig) Middleware {
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	methods := cfg.AllowedMethods
	if len(methods) == 0 {
		methods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
	}
	headers := cfg.AllowedHeaders
	if len(headers) == 0 {
		headers = []string{"Content-Type", "Authorization", "Cache-Control"}
	}

	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: methods,
		AllowedHeaders: headers,
		MaxAge:         86400,
	})
	return c.Handler
}

// Recovery turns handler panics into a JSON-RPC internal error
func Recovery(logger *logger.Logger) Middleware {
	l := logger.WithComponent("recovery-middleware")
	errorAdapter := jsonrpcx.NewErrorAdapter()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					l.Error("HTTP handler panic",
						zap.Any("error", err),
						zap.String("path", r.URL.Path),
						zap.String("method", r.Method),
					)
					errorAdapter.SendError(w, nil, jsonrpcx.InternalError, "Internal server error")
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// ErrorAdapter writes the JSON-RPC error a handler recorded with jsonrpcx.WithError
func ErrorAdapter(logger *logger.Logger) Middleware {
	l := logger.WithComponent("error-adapter-middleware")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r = jsonrpcx.WithErrorSlot(r)
			next.ServeHTTP(w, r)

			if rpcResponse, ok := jsonrpcx.ErrorFromContext(r.Context()); ok {
				if rpcResponse.Error != nil {
					l.Debug("JSON-RPC error",
						zap.String("path", r.URL.Path),
						zap.Int("code", rpcResponse.Error.Code),
						zap.String("message", rpcResponse.Error.Message),
					)
				}
				jsonrpcx.Response(w, *rpcResponse)
			}
		})
	}
}

// RateLimit limits requests per client IP. A zero limit disables it.
func RateLimit(logger *logger.Logger, perSecond float64, burst int) Middleware {
	if perSecond <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	if burst <= 0 {
		burst = 1
	}
	l := logger.WithComponent("ratelimit-middleware")
	pool := newLimiterPool(rate.Limit(perSecond), burst, 3*time.Minute)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			if !pool.allow(ip, time.Now()) {
				l.Warn("Rate limit exceeded", zap.String("ip", ip), zap.String("path", r.URL.Path))
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", "1")
				w.WriteHeader(http.StatusTooManyRequests)
				w.Write([]byte(`{"error": "Rate limit exceeded"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// limiterPool keeps one token bucket per key and forgets keys idle for longer than idle
type limiterPool struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	idle      time.Duration
	visitors  map[string]*visitor
	lastSweep time.Time
}

func newLimiterPool(limit rate.Limit, burst int, idle time.Duration) *limiterPool {
	return &limiterPool{limit: limit, burst: burst, idle: idle, visitors: make(map[string]*visitor)}
}

func (p *limiterPool) allow(key string, now time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if now.Sub(p.lastSweep) > p.idle {
		for k, v := range p.visitors {
			if now.Sub(v.lastSeen) > p.idle {
				delete(p.visitors, k)
			}
		}
		p.lastSweep = now
	}

	v, ok := p.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(p.limit, p.burst)}
		p.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

// responseWriter records the status and body size. It keeps Flush and
// Hijack reachable for SSE and WebSocket handlers.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.written += n
	return n, err
}

// Flush implements http.Flusher for SSE
func (rw *responseWriter) Flush() {
	if flusher, ok := rw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Hijack implements http.Hijacker for WebSocket upgrades
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hijacker, ok := rw.ResponseWriter.(http.Hijacker); ok {
		return hijacker.Hijack()
	}
	return nil, nil, fmt.Errorf("responseWriter does not implement http.Hijacker")
}

// clientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then the peer address
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
