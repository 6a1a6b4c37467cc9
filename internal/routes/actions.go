package routes

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/desertthunder/makin/internal/orm"
	"github.com/desertthunder/makin/internal/shared"
)

// Built-in action names.
const (
	ActionRespond = "respond"
	ActionList    = "list"
	ActionGet     = "get"
	ActionCreate  = "create"
	ActionUpdate  = "update"
	ActionDelete  = "delete"
	ActionModels  = "models"
)

const maxBodyBytes = 1 << 20

// Env is what an action sees when a module is built.
type Env struct {
	Endpoint Endpoint
	Conn     *orm.Conn
}

// Repository resolves the endpoint's model.
func (e Env) Repository() (*orm.Repository, error) {
	if e.Endpoint.Model == "" {
		return nil, fmt.Errorf("%w: action %q needs a model", shared.ErrInvalidModule, e.Endpoint.Action)
	}
	if e.Conn == nil {
		return nil, fmt.Errorf("%w: no database connection for model %q", shared.ErrMissingConfig, e.Endpoint.Model)
	}
	return e.Conn.Repository(e.Endpoint.Model)
}

// ActionFunc builds the handler for one endpoint.
type ActionFunc func(env Env) (http.Handler, error)

// Actions is the manifest of actions route modules may reference.
type Actions struct {
	mu      sync.RWMutex
	actions map[string]ActionFunc
}

// NewActions returns a manifest holding the built-in actions.
func NewActions() *Actions {
	a := &Actions{actions: make(map[string]ActionFunc)}
	a.Register(ActionRespond, respond)
	a.Register(ActionList, list)
	a.Register(ActionGet, get)
	a.Register(ActionCreate, create)
	a.Register(ActionUpdate, update)
	a.Register(ActionDelete, remove)
	a.Register(ActionModels, listModels)
	return a
}

// Register adds or replaces the action called name.
func (a *Actions) Register(name string, fn ActionFunc) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.actions[name] = fn
}

// Lookup returns the action called name.
func (a *Actions) Lookup(name string) (ActionFunc, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	fn, ok := a.actions[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", shared.ErrUnknownAction, name)
	}
	return fn, nil
}

// Names lists the registered actions alphabetically.
func (a *Actions) Names() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()

	names := make([]string, 0, len(a.actions))
	for name := range a.actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func respond(env Env) (http.Handler, error) {
	status := env.Endpoint.Status
	if status == 0 {
		status = http.StatusOK
	}
	if http.StatusText(status) == "" {
		return nil, fmt.Errorf("%w: invalid status %d", shared.ErrInvalidModule, status)
	}

	body := env.Endpoint.Body
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		shared.WriteJSON(w, status, body)
	}), nil
}

func list(env Env) (http.Handler, error) {
	repo, err := env.Repository()
	if err != nil {
		return nil, err
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		criteria := map[string]any{}
		for key, values := range r.URL.Query() {
			criteria[key] = values[0]
		}

		records, err := repo.List(r.Context(), criteria)
		if err != nil {
			writeRepoError(w, err)
			return
		}
		shared.WriteJSON(w, statusOr(env, http.StatusOK), records)
	}), nil
}

func get(env Env) (http.Handler, error) {
	repo, err := env.Repository()
	if err != nil {
		return nil, err
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec, err := repo.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeRepoError(w, err)
			return
		}
		shared.WriteJSON(w, statusOr(env, http.StatusOK), rec)
	}), nil
}

func create(env Env) (http.Handler, error) {
	repo, err := env.Repository()
	if err != nil {
		return nil, err
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		in, err := decodeRecord(w, r)
		if err != nil {
			shared.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}

		rec, err := repo.Create(r.Context(), in)
		if err != nil {
			writeRepoError(w, err)
			return
		}
		shared.WriteJSON(w, statusOr(env, http.StatusCreated), rec)
	}), nil
}

func update(env Env) (http.Handler, error) {
	repo, err := env.Repository()
	if err != nil {
		return nil, err
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		in, err := decodeRecord(w, r)
		if err != nil {
			shared.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}

		rec, err := repo.Update(r.Context(), chi.URLParam(r, "id"), in)
		if err != nil {
			writeRepoError(w, err)
			return
		}
		shared.WriteJSON(w, statusOr(env, http.StatusOK), rec)
	}), nil
}

func remove(env Env) (http.Handler, error) {
	repo, err := env.Repository()
	if err != nil {
		return nil, err
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := repo.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
			writeRepoError(w, err)
			return
		}
		w.WriteHeader(statusOr(env, http.StatusNoContent))
	}), nil
}

func listModels(env Env) (http.Handler, error) {
	if env.Conn == nil {
		return nil, fmt.Errorf("%w: models action needs a database connection", shared.ErrMissingConfig)
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		shared.WriteJSON(w, statusOr(env, http.StatusOK), env.Conn.Models())
	}), nil
}

func statusOr(env Env, fallback int) int {
	if env.Endpoint.Status != 0 {
		return env.Endpoint.Status
	}
	return fallback
}

func decodeRecord(w http.ResponseWriter, r *http.Request) (orm.Record, error) {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()

	var rec orm.Record
	if err := dec.Decode(&rec); err != nil {
		return nil, fmt.Errorf("invalid json: %w", err)
	}
	return rec, nil
}

func writeRepoError(w http.ResponseWriter, err error) {
	switch {
	case orm.IsNotFound(err):
		shared.WriteError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, shared.ErrValidation):
		shared.WriteError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, shared.ErrConflict):
		shared.WriteError(w, http.StatusConflict, http.StatusText(http.StatusConflict))
	default:
		shared.WriteError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
	}
}
