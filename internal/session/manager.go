package session

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/golang-jwt/jwt/v5"

	"github.com/desertthunder/makin/internal/shared"
)

const issuer = "makin"

// Options configures a [Manager].
type Options struct {
	Name   string        // cookie name
	Secret string        // HS256 signing key for the cookie
	MaxAge time.Duration // session and cookie lifetime
	Secure bool          // set the Secure cookie attribute
}

// Manager loads sessions for incoming requests and persists modified ones.
type Manager struct {
	store  Store
	opts   Options
	logger *log.Logger
}

// NewManager creates a [Manager] backed by store.
func NewManager(store Store, opts Options, logger *log.Logger) *Manager {
	if opts.Name == "" {
		opts.Name = "SESSION_ID"
	}
	if opts.MaxAge <= 0 {
		opts.MaxAge = 30 * 24 * time.Hour
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Manager{store: store, opts: opts, logger: logger}
}

// Store returns the backing store.
func (m *Manager) Store() Store {
	return m.store
}

// Middleware attaches the caller's session to the request context.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s := m.load(r)
		sw := &sessionWriter{ResponseWriter: w, manager: m, session: s, r: r}
		next.ServeHTTP(sw, r.WithContext(WithSession(r.Context(), s)))
		sw.commit()
	})
}

func (m *Manager) load(r *http.Request) *Session {
	cookie, err := r.Cookie(m.opts.Name)
	if err != nil {
		return New(m.opts.MaxAge)
	}

	id, err := m.Verify(cookie.Value)
	if err != nil {
		m.logger.Debug("ignoring session cookie", "error", err)
		return New(m.opts.MaxAge)
	}

	s, err := m.store.Load(r.Context(), id)
	if err != nil {
		if !errors.Is(err, shared.ErrNoSession) {
			m.logger.Error("failed to load session", "error", err)
		}
		return New(m.opts.MaxAge)
	}
	return s
}

// Sign returns the cookie value for a session id.
func (m *Manager) Sign(id string, expiresAt time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   id,
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(m.opts.Secret))
}

// Verify checks a cookie value and returns the session id it carries.
func (m *Manager) Verify(value string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(value, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(m.opts.Secret), nil
	}, jwt.WithIssuer(issuer))
	if err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrInvalidCookie, err)
	}
	if !token.Valid || claims.Subject == "" {
		return "", shared.ErrInvalidCookie
	}
	return claims.Subject, nil
}

// persist saves or deletes a modified session and sets the matching cookie on w.
func (m *Manager) persist(w http.ResponseWriter, r *http.Request, s *Session) {
	if s.deleted {
		if err := m.store.Delete(r.Context(), s.ID); err != nil {
			m.logger.Error("failed to delete session", "error", err)
		}
		http.SetCookie(w, m.cookie("", -1))
		return
	}

	if err := m.store.Save(r.Context(), s); err != nil {
		m.logger.Error("failed to save session", "error", err)
		return
	}

	value, err := m.Sign(s.ID, s.ExpiresAt)
	if err != nil {
		m.logger.Error("failed to sign session cookie", "error", err)
		return
	}
	http.SetCookie(w, m.cookie(value, int(m.opts.MaxAge.Seconds())))
}

func (m *Manager) cookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     m.opts.Name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   m.opts.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// sessionWriter persists the session right before the response headers go out.
type sessionWriter struct {
	http.ResponseWriter
	manager   *Manager
	session   *Session
	r         *http.Request
	committed bool
}

func (w *sessionWriter) commit() {
	if w.committed {
		return
	}
	w.committed = true
	if w.session.Modified() {
		w.manager.persist(w.ResponseWriter, w.r, w.session)
	}
}

func (w *sessionWriter) WriteHeader(code int) {
	w.commit()
	w.ResponseWriter.WriteHeader(code)
}

func (w *sessionWriter) Write(b []byte) (int, error) {
	w.commit()
	return w.ResponseWriter.Write(b)
}

func (w *sessionWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
