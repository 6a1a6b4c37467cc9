package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/desertthunder/makin/internal/shared"
)

const (
	SpotifyAuthURL  = "https://accounts.spotify.com/authorize"
	SpotifyTokenURL = "https://accounts.spotify.com/api/token"
)

// SpotifyScopes is the scope list requested on every login.
var SpotifyScopes = []string{
	"streaming",
	"user-read-email",
	"user-read-private",
	"ugc-image-upload",
	"user-read-playback-state",
	"user-modify-playback-state",
	"user-read-currently-playing",
	"app-remote-control",
	"playlist-read-private",
	"playlist-read-collaborative",
	"playlist-modify-private",
	"playlist-modify-public",
	"user-follow-modify",
	"user-follow-read",
	"user-read-playback-position",
	"user-top-read",
	"user-read-recently-played",
	"user-library-modify",
	"user-library-read",
}

// TokenPair is what the frontend receives after a successful login.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// ExchangeError describes a failed authorization code exchange.
type ExchangeError struct {
	Status      int    // upstream HTTP status, 0 when no response arrived
	Code        string // OAuth error code, e.g. invalid_grant
	Description string
	Body        string // raw upstream body
	Err         error
}

func (e *ExchangeError) Error() string {
	switch {
	case e.Code != "" && e.Description != "":
		return fmt.Sprintf("token exchange failed: %s: %s", e.Code, e.Description)
	case e.Code != "":
		return fmt.Sprintf("token exchange failed: %s", e.Code)
	case e.Status != 0:
		return fmt.Sprintf("token exchange failed: upstream status %d", e.Status)
	default:
		return fmt.Sprintf("token exchange failed: %v", e.Err)
	}
}

func (e *ExchangeError) Unwrap() []error {
	return []error{shared.ErrAuthFailed, e.Err}
}

// SpotifyService runs the authorization code flow against the Spotify accounts service.
type SpotifyService struct {
	config     *oauth2.Config
	httpClient *http.Client
}

// SpotifyOption customizes a [SpotifyService].
type SpotifyOption func(*SpotifyService)

// WithEndpoint overrides the authorize and token URLs.
func WithEndpoint(authURL, tokenURL string) SpotifyOption {
	return func(s *SpotifyService) {
		s.config.Endpoint.AuthURL = authURL
		s.config.Endpoint.TokenURL = tokenURL
	}
}

// WithHTTPClient sets the client used for the token exchange.
func WithHTTPClient(client *http.Client) SpotifyOption {
	return func(s *SpotifyService) {
		s.httpClient = client
	}
}

// NewSpotifyService creates a service from the Spotify credentials section of the config.
// Missing credentials are not an error here; Spotify rejects them at exchange time.
func NewSpotifyService(cfg shared.SpotifyConfig, opts ...SpotifyOption) *SpotifyService {
	s := &SpotifyService{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       SpotifyScopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   SpotifyAuthURL,
				TokenURL:  SpotifyTokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		httpClient: &http.Client{Timeout: cfg.TimeoutDuration()},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the provider name.
func (s *SpotifyService) Name() string {
	return "Spotify"
}

// Configured reports whether client credentials are present.
func (s *SpotifyService) Configured() bool {
	return s.config.ClientID != "" && s.config.ClientSecret != ""
}

// AuthURL returns the authorize URL carrying state.
func (s *SpotifyService) AuthURL(state string) string {
	return s.config.AuthCodeURL(state)
}

// Scope returns the space separated scope string sent to Spotify.
func (s *SpotifyService) Scope() string {
	return strings.Join(s.config.Scopes, " ")
}

// Exchange trades an authorization code for a token pair. Failures are [*ExchangeError].
func (s *SpotifyService) Exchange(ctx context.Context, code string) (*TokenPair, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)

	token, err := s.config.Exchange(ctx, code)
	if err != nil {
		return nil, newExchangeError(err)
	}

	refresh, _ := token.Extra("refresh_token").(string)
	if token.RefreshToken != "" {
		refresh = token.RefreshToken
	}
	return &TokenPair{AccessToken: token.AccessToken, RefreshToken: refresh, ExpiresAt: token.Expiry}, nil
}

func newExchangeError(err error) *ExchangeError {
	e := &ExchangeError{Err: err}

	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		e.Code = re.ErrorCode
		e.Description = re.ErrorDescription
		e.Body = string(re.Body)
		if re.Response != nil {
			e.Status = re.Response.StatusCode
		}
	}
	return e
}
