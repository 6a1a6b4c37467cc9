package server

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/charmbracelet/log"
	"golang.org/x/oauth2"

	"github.com/desertthunder/makin/internal/metrics"
	"github.com/desertthunder/makin/internal/services"
	"github.com/desertthunder/makin/internal/session"
	"github.com/desertthunder/makin/internal/shared"
)

const stateKey = "oauth_state"

// OAuthOptions configures an [OAuthHandler].
type OAuthOptions struct {
	Spotify     *services.SpotifyService
	FrontendURL string
	Verbose     bool // include the raw upstream body in error responses
	Logger      *log.Logger
	Metrics     *metrics.Collector
}

// OAuthHandler serves /login and /callback for the Spotify authorization code flow.
//
// It needs the session middleware: /login stores a state nonce in the caller's session and
// /callback refuses to exchange a code unless the same nonce comes back.
type OAuthHandler struct {
	opts OAuthOptions
}

// NewOAuthHandler creates a new OAuth handler.
func NewOAuthHandler(opts OAuthOptions) *OAuthHandler {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	opts.FrontendURL = strings.TrimSuffix(opts.FrontendURL, "/")
	return &OAuthHandler{opts: opts}
}

// Routes returns the HTTP routes this handler serves.
func (h *OAuthHandler) Routes() []string {
	return []string{"/login", "/callback"}
}

func (h *OAuthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/login":
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			MethodNotAllowed(w, r)
			return
		}
		h.Login(w, r)
	case "/callback":
		// The exchange spends the authorization code, so only GET may run it.
		if r.Method != http.MethodGet {
			MethodNotAllowed(w, r)
			return
		}
		h.Callback(w, r)
	default:
		NotFound(w, r)
	}
}

// Login redirects to the Spotify authorize page. Query parameters are ignored.
func (h *OAuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())
	if sess == nil {
		WriteError(w, errors.New("session middleware not installed"), h.opts.Verbose)
		return
	}

	state := oauth2.GenerateVerifier()
	sess.Set(stateKey, state)

	http.Redirect(w, r, h.opts.Spotify.AuthURL(state), http.StatusFound)
}

// Callback exchanges the authorization code and hands the tokens to the frontend in the URL
// fragment.
func (h *OAuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())
	if sess == nil {
		WriteError(w, errors.New("session middleware not installed"), h.opts.Verbose)
		return
	}

	query := r.URL.Query()
	expected := sess.Pop(stateKey)
	if expected == "" || query.Get("state") != expected {
		h.outcome("invalid_state")
		h.opts.Logger.Warn("rejected callback with invalid state")
		shared.WriteError(w, http.StatusBadRequest, "invalid state parameter")
		return
	}

	pair, err := h.opts.Spotify.Exchange(r.Context(), query.Get("code"))
	if err != nil {
		h.outcome("failure")
		h.opts.Logger.Error("token exchange failed", "error", err)
		h.writeExchangeError(w, err)
		return
	}

	h.outcome("success")
	fragment := url.Values{
		"access_token":  {pair.AccessToken},
		"refresh_token": {pair.RefreshToken},
	}
	http.Redirect(w, r, h.opts.FrontendURL+"/auth/callback#"+fragment.Encode(), http.StatusFound)
}

func (h *OAuthHandler) writeExchangeError(w http.ResponseWriter, err error) {
	detail := shared.ErrorDetail{
		Status:  http.StatusBadGateway,
		Message: err.Error(),
	}

	var ee *services.ExchangeError
	if errors.As(err, &ee) {
		detail.Code = ee.Code
		detail.Details = map[string]any{}
		if ee.Status != 0 {
			detail.Details["upstream_status"] = ee.Status
		}
		if ee.Description != "" {
			detail.Details["description"] = ee.Description
		}
		if h.opts.Verbose && ee.Body != "" {
			detail.Details["body"] = ee.Body
		}
		if len(detail.Details) == 0 {
			detail.Details = nil
		}
	}
	shared.WriteErrorDetail(w, detail)
}

func (h *OAuthHandler) outcome(name string) {
	if h.opts.Metrics != nil {
		h.opts.Metrics.OAuthExchanges.WithLabelValues(name).Inc()
	}
}
