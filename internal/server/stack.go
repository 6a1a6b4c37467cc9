package server

import (
	"context"
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"
)

// stack tries the handlers mounted on one path in mount order. A handler answering 404 or 405
// without matching one of its own routes passes the request to the next one; when every handler
// passes, the router's not-found (or method-not-allowed) handler answers. A 404 from a route the
// handler did match (a missing record, say) is its answer and is written as is.
type stack struct {
	handlers []http.Handler
	router   *BasicRouter
}

func (s *stack) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rctx := chi.RouteContext(r.Context())
	header := w.Header().Clone()

	notAllowed := false
	for _, h := range s.handlers {
		attempt := cloneRouteContext(rctx)
		pw := &holdWriter{ResponseWriter: w, matched: func() bool { return matchedRoute(rctx, attempt) }}
		h.ServeHTTP(pw, r.WithContext(withRouteContext(r.Context(), attempt)))
		if !pw.skipped {
			if rctx != nil && attempt != nil {
				rctx.RoutePatterns = attempt.RoutePatterns
			}
			return
		}

		if pw.status == http.StatusMethodNotAllowed {
			notAllowed = true
		}
		resetHeader(w.Header(), header)
	}

	if notAllowed {
		s.router.methodNotAllowed.ServeHTTP(w, r)
		return
	}
	s.router.notFound.ServeHTTP(w, r)
}

// cloneRouteContext gives each attempt its own copy of the routing state, since sub-routers
// consume the route path and append URL params and patterns as they match.
func cloneRouteContext(rctx *chi.Context) *chi.Context {
	if rctx == nil {
		return nil
	}

	cp := *rctx
	cp.URLParams.Keys = slices.Clone(rctx.URLParams.Keys)
	cp.URLParams.Values = slices.Clone(rctx.URLParams.Values)
	cp.RoutePatterns = slices.Clone(rctx.RoutePatterns)
	return &cp
}

func withRouteContext(ctx context.Context, rctx *chi.Context) context.Context {
	if rctx == nil {
		return ctx
	}
	return context.WithValue(ctx, chi.RouteCtxKey, rctx)
}

// matchedRoute reports whether a chi handler matched a route during the attempt: chi appends the
// route pattern only when it finds one.
func matchedRoute(before, attempt *chi.Context) bool {
	if before == nil || attempt == nil {
		return false
	}
	return len(attempt.RoutePatterns) > len(before.RoutePatterns)
}

func resetHeader(dst, snapshot http.Header) {
	for k := range dst {
		delete(dst, k)
	}
	for k, v := range snapshot {
		dst[k] = v
	}
}

// holdWriter holds back a 404 or 405 from a handler that matched no route, so the stack can try
// the next handler.
type holdWriter struct {
	http.ResponseWriter
	matched func() bool
	decided bool
	skipped bool
	status  int
}

func (p *holdWriter) WriteHeader(code int) {
	if p.decided {
		return
	}
	p.decided = true
	p.status = code
	if (code == http.StatusNotFound || code == http.StatusMethodNotAllowed) && !p.matched() {
		p.skipped = true
		return
	}
	p.ResponseWriter.WriteHeader(code)
}

func (p *holdWriter) Write(b []byte) (int, error) {
	if !p.decided {
		p.WriteHeader(http.StatusOK)
	}
	if p.skipped {
		return len(b), nil
	}
	return p.ResponseWriter.Write(b)
}

func (p *holdWriter) Flush() {
	if p.skipped {
		return
	}
	if f, ok := p.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (p *holdWriter) Unwrap() http.ResponseWriter {
	return p.ResponseWriter
}
