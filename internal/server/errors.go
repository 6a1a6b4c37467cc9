package server

import (
	"errors"
	"io/fs"
	"net/http"
	"path"
	"strings"

	"github.com/desertthunder/makin/internal/shared"
)

// NotFound answers unmatched requests with a 404 JSON error.
func NotFound(w http.ResponseWriter, r *http.Request) {
	shared.WriteError(w, http.StatusNotFound, http.StatusText(http.StatusNotFound))
}

// MethodNotAllowed answers requests whose path matched but method did not.
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	shared.WriteError(w, http.StatusMethodNotAllowed, http.StatusText(http.StatusMethodNotAllowed))
}

// StaticFallback serves files from fsys for GET and HEAD requests that matched no route, and
// hands everything else to next.
func StaticFallback(fsys fs.FS, next http.Handler) http.Handler {
	files := http.FileServerFS(fsys)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			next.ServeHTTP(w, r)
			return
		}

		name := strings.TrimPrefix(path.Clean(r.URL.Path), "/")
		if name == "" {
			name = "."
		}
		info, err := fs.Stat(fsys, name)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}
		if info.IsDir() {
			if _, err := fs.Stat(fsys, path.Join(name, "index.html")); err != nil {
				next.ServeHTTP(w, r)
				return
			}
		}
		files.ServeHTTP(w, r)
	})
}

// WriteError replies with the JSON error for err. Status comes from the sentinel err wraps;
// the cause is only included when verbose is set.
func WriteError(w http.ResponseWriter, err error, verbose bool) {
	status := StatusFor(err)
	detail := shared.ErrorDetail{Status: status, Message: http.StatusText(status)}
	if verbose {
		detail.Details = map[string]any{"cause": err.Error()}
	}
	shared.WriteErrorDetail(w, detail)
}

// StatusFor maps an error to the HTTP status it should produce.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, shared.ErrRecordNotFound), errors.Is(err, shared.ErrModelNotFound):
		return http.StatusNotFound
	case errors.Is(err, shared.ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, shared.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, shared.ErrInvalidState), errors.Is(err, shared.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, shared.ErrAuthFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
