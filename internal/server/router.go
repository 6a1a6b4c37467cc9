package server

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
)

// BasicRouter implements the [Router] interface on top of a chi mux.
//
// Middleware added with Use wraps the whole mux, including the not-found handler. Mounting
// twice on one path keeps both handlers in a [stack].
type BasicRouter struct {
	mux         *chi.Mux
	middlewares []Middleware
	stacks      map[string]*stack

	notFound         http.Handler
	methodNotAllowed http.Handler

	once    sync.Once
	handler http.Handler
}

// NewBasicRouter creates a new [BasicRouter] instance.
func NewBasicRouter() *BasicRouter {
	r := &BasicRouter{
		mux:              chi.NewRouter(),
		middlewares:      []Middleware{},
		stacks:           map[string]*stack{},
		notFound:         http.HandlerFunc(NotFound),
		methodNotAllowed: http.HandlerFunc(MethodNotAllowed),
	}
	r.mux.NotFound(func(w http.ResponseWriter, req *http.Request) { r.notFound.ServeHTTP(w, req) })
	r.mux.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) { r.methodNotAllowed.ServeHTTP(w, req) })
	return r
}

// Use adds [Middleware] to the [Router] instance's middleware stack, applied in the order it's added.
func (r *BasicRouter) Use(middleware ...Middleware) {
	r.middlewares = append(r.middlewares, middleware...)
}

// Handle registers a handler for the specified HTTP method and path.
func (r *BasicRouter) Handle(method, path string, handler http.Handler) {
	r.mux.Method(strings.ToUpper(method), path, handler)
}

// Handler registers a custom Handler implementation.
//
// All routes returned by [Handler.Routes] are registered with this handler.
func (r *BasicRouter) Handler(handler Handler) {
	for _, route := range handler.Routes() {
		r.mux.Handle(route, handler)
	}
}

// Mount attaches handler under path. A second handler on the same path is appended to that
// path's stack instead of replacing the first.
func (r *BasicRouter) Mount(path string, handler http.Handler) {
	if s, ok := r.stacks[path]; ok {
		s.handlers = append(s.handlers, handler)
		return
	}

	s := &stack{handlers: []http.Handler{handler}, router: r}
	r.stacks[path] = s
	r.mux.Mount(path, s)
}

// Mounted returns how many handlers are mounted on path.
func (r *BasicRouter) Mounted(path string) int {
	if s, ok := r.stacks[path]; ok {
		return len(s.handlers)
	}
	return 0
}

// NotFound replaces the handler for unmatched requests.
func (r *BasicRouter) NotFound(handler http.Handler) {
	r.notFound = handler
}

// ServeHTTP implements [http.Handler] for the entire router.
//
// The chi route context is created here rather than inside the mux, so middleware sees the
// matched route pattern once the request has been handled.
func (r *BasicRouter) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.once.Do(func() { r.handler = r.Apply(r.mux) })

	if chi.RouteContext(req.Context()) == nil {
		rctx := chi.NewRouteContext()
		rctx.Routes = r.mux
		req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	}
	r.handler.ServeHTTP(w, req)
}

// Apply wraps a handler with all registered middleware.
//
// Middleware is applied in reverse order (last added wraps first).
func (r *BasicRouter) Apply(handler http.Handler) http.Handler {
	wrapped := handler

	for i := len(r.middlewares) - 1; i >= 0; i-- {
		wrapped = r.middlewares[i](wrapped)
	}

	return wrapped
}
