package routes

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/desertthunder/makin/internal/loader"
	"github.com/desertthunder/makin/internal/orm"
	"github.com/desertthunder/makin/internal/shared"
)

// Endpoint binds one method and sub-path of a module to an action.
type Endpoint struct {
	Method string `toml:"method" yaml:"method" json:"method"`
	Path   string `toml:"path" yaml:"path" json:"path"`
	Action string `toml:"action" yaml:"action" json:"action"`
	Model  string `toml:"model" yaml:"model" json:"model"`
	Status int    `toml:"status" yaml:"status" json:"status"`
	Body   any    `toml:"body" yaml:"body" json:"body"`
}

// Module is a route module file.
type Module struct {
	Description string     `toml:"description" yaml:"description" json:"description"`
	Endpoints   []Endpoint `toml:"endpoints" yaml:"endpoints" json:"endpoints"`
}

var methods = map[string]bool{
	http.MethodGet:     true,
	http.MethodHead:    true,
	http.MethodPost:    true,
	http.MethodPut:     true,
	http.MethodPatch:   true,
	http.MethodDelete:  true,
	http.MethodOptions: true,
}

// defaults fills method and path from the action when the file leaves them out.
func (e Endpoint) defaults() Endpoint {
	if e.Method == "" {
		switch e.Action {
		case ActionCreate:
			e.Method = http.MethodPost
		case ActionUpdate:
			e.Method = http.MethodPut
		case ActionDelete:
			e.Method = http.MethodDelete
		default:
			e.Method = http.MethodGet
		}
	}
	e.Method = strings.ToUpper(e.Method)

	if e.Path == "" {
		switch e.Action {
		case ActionGet, ActionUpdate, ActionDelete:
			e.Path = "/{id}"
		default:
			e.Path = "/"
		}
	}
	if !strings.HasPrefix(e.Path, "/") {
		e.Path = "/" + e.Path
	}
	return e
}

// Resolved returns the endpoints with defaults applied.
func (m Module) Resolved() []Endpoint {
	endpoints := make([]Endpoint, 0, len(m.Endpoints))
	for _, e := range m.Endpoints {
		endpoints = append(endpoints, e.defaults())
	}
	return endpoints
}

// Build turns the module into a handler. Every endpoint must name a known action and a valid
// method; model-backed actions need their model registered on conn.
func (m Module) Build(actions *Actions, conn *orm.Conn) (h http.Handler, err error) {
	// chi panics on malformed patterns
	defer func() {
		if p := recover(); p != nil {
			h, err = nil, fmt.Errorf("%w: %v", shared.ErrInvalidModule, p)
		}
	}()

	if len(m.Endpoints) == 0 {
		return nil, fmt.Errorf("%w: no endpoints", shared.ErrInvalidModule)
	}

	r := chi.NewRouter()
	for i, e := range m.Resolved() {
		if !methods[e.Method] {
			return nil, fmt.Errorf("%w: endpoint %d: unsupported method %q", shared.ErrInvalidModule, i, e.Method)
		}

		action, err := actions.Lookup(e.Action)
		if err != nil {
			return nil, fmt.Errorf("endpoint %d: %w", i, err)
		}

		handler, err := action(Env{Endpoint: e, Conn: conn})
		if err != nil {
			return nil, fmt.Errorf("endpoint %d (%s %s): %w", i, e.Method, e.Path, err)
		}
		r.Method(e.Method, e.Path, handler)
	}
	return r, nil
}

// Decode reads a [Module] from a route module file.
func Decode(d loader.Descriptor, data []byte) (Module, error) {
	return loader.Decode[Module]()(d, data)
}
