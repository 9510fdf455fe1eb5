// Package autorouter registers the exported handler methods of a struct as
// HTTP endpoints named after the methods.
package autorouter

import (
	"fmt"
	"net/http"
	"reflect"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/danghamo/tourguide/pkg/logger"
)

// Middleware wraps a handler
type Middleware func(http.Handler) http.Handler

// ErrorHandler renders an error returned by a handler method
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

// RegistrationOptions configures how handlers are registered
type RegistrationOptions struct {
	// Prefix is prepended to every path, e.g. "/api/v1/"
	Prefix string
	// MethodPrefix names the group, e.g. "guide." turns Start into guide.Start
	MethodPrefix string
	// HTTPMethod restricts the verb; empty means POST
	HTTPMethod string
	Middleware []Middleware
	OnError    ErrorHandler
}

// HandlerInfo describes one registered endpoint
type HandlerInfo struct {
	Pattern    string
	Path       string
	MethodName string
	HasAuth    bool
}

// AutoRouter registers handler methods on a mux
type AutoRouter struct {
	mux     *http.ServeMux
	options RegistrationOptions
	logger  *logger.Logger
	routes  []HandlerInfo
}

var (
	responseWriterType = reflect.TypeOf((*http.ResponseWriter)(nil)).Elem()
	requestType        = reflect.TypeOf((*http.Request)(nil))
	errorType          = reflect.TypeOf((*error)(nil)).Elem()
)

// NewAutoRouter creates a new auto router
func NewAutoRouter(mux *http.ServeMux, options RegistrationOptions, log *logger.Logger) *AutoRouter {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	if options.HTTPMethod == "" {
		options.HTTPMethod = http.MethodPost
	}
	if options.OnError == nil {
		options.OnError = func(w http.ResponseWriter, _ *http.Request, err error) {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
	return &AutoRouter{mux: mux, options: options, logger: log.WithComponent("autorouter")}
}

// RegisterHandlers registers every exported method of handler shaped like
// func(http.ResponseWriter, *http.Request) [error]. Methods starting with
// "Handle" are left for manual wiring.
func (ar *AutoRouter) RegisterHandlers(handler interface{}) error {
	return ar.register(handler, ar.options.Middleware, false)
}

// RegisterHandlersWithAuth registers handlers behind authMiddleware
func (ar *AutoRouter) RegisterHandlersWithAuth(handler interface{}, authMiddleware Middleware) error {
	chain := append([]Middleware{authMiddleware}, ar.options.Middleware...)
	return ar.register(handler, chain, true)
}

func (ar *AutoRouter) register(handler interface{}, chain []Middleware, auth bool) error {
	methods, err := ar.handlerMethods(handler)
	if err != nil {
		return err
	}
	value := reflect.ValueOf(handler)
	for _, name := range methods {
		path := ar.buildURLPath(name)
		pattern := ar.options.HTTPMethod + " " + path
		ar.mux.Handle(pattern, applyMiddleware(ar.createHandlerFunc(value.MethodByName(name)), chain))

		ar.routes = append(ar.routes, HandlerInfo{Pattern: pattern, Path: path, MethodName: name, HasAuth: auth})
		ar.logger.Debug("Auto-registered handler", zap.String("pattern", pattern), zap.String("method", name))
	}
	return nil
}

// handlerMethods lists the registrable method names of handler, sorted
func (ar *AutoRouter) handlerMethods(handler interface{}) ([]string, error) {
	t := reflect.TypeOf(handler)
	if t == nil {
		return nil, fmt.Errorf("handler must not be nil")
	}
	base := t
	if base.Kind() == reflect.Ptr {
		base = base.Elem()
	}
	if base.Kind() != reflect.Struct {
		return nil, fmt.Errorf("handler must be a struct or pointer to struct, got %s", t.Kind())
	}

	value := reflect.ValueOf(handler)
	var names []string
	for i := 0; i < t.NumMethod(); i++ {
		name := t.Method(i).Name
		if strings.HasPrefix(name, "Handle") {
			continue
		}
		if isHandlerFunc(value.Method(i).Type()) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// isHandlerFunc reports whether t is func(http.ResponseWriter, *http.Request) with an optional error result
func isHandlerFunc(t reflect.Type) bool {
	if t.Kind() != reflect.Func || t.NumIn() != 2 || t.NumOut() > 1 {
		return false
	}
	if t.NumOut() == 1 && t.Out(0) != errorType {
		return false
	}
	return t.In(0) == responseWriterType && t.In(1) == requestType
}

// buildURLPath maps a method name to its path. Without a MethodPrefix the
// name is lowercased.
func (ar *AutoRouter) buildURLPath(methodName string) string {
	if ar.options.MethodPrefix == "" {
		return ar.options.Prefix + strings.ToLower(methodName)
	}
	return ar.options.Prefix + ar.options.MethodPrefix + methodName
}

func (ar *AutoRouter) createHandlerFunc(method reflect.Value) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		results := method.Call([]reflect.Value{reflect.ValueOf(w), reflect.ValueOf(r)})
		if len(results) == 1 && !results[0].IsNil() {
			ar.options.OnError(w, r, results[0].Interface().(error))
		}
	}
}

func applyMiddleware(h http.Handler, chain []Middleware) http.Handler {
	for i := len(chain) - 1; i >= 0; i-- {
		h = chain[i](h)
	}
	return h
}

// Routes returns what has been registered so far, in registration order
func (ar *AutoRouter) Routes() []HandlerInfo {
	out := make([]HandlerInfo, len(ar.routes))
	copy(out, ar.routes)
	return out
}

// LogRoutes writes the registered routes at info level
func (ar *AutoRouter) LogRoutes() {
	for _, r := range ar.routes {
		ar.logger.Info("Route registered",
			zap.String("pattern", r.Pattern),
			zap.String("method", r.MethodName),
			zap.Bool("auth", r.HasAuth))
	}
}
