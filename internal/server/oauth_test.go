package server

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/makin/internal/services"
	"github.com/desertthunder/makin/internal/shared"
	tu "github.com/desertthunder/makin/internal/testing"
)

func testConfig() *shared.Config {
	cfg := shared.DefaultConfig()
	cfg.App.Env = "test"
	cfg.Credentials.Spotify.ClientID = "test_client_id"
	cfg.Credentials.Spotify.ClientSecret = "test_client_secret"
	cfg.Credentials.Spotify.RedirectURI = "https://backend.example.com/callback"
	cfg.Frontend.URL = "https://frontend.example.com"
	cfg.Session.Secret = "test-secret"
	return cfg
}

func newTestServer(t *testing.T, tokenURL string) *Server {
	t.Helper()
	cfg := testConfig()
	return New(Options{
		Config:  cfg,
		Logger:  log.New(io.Discard),
		Spotify: services.NewSpotifyService(cfg.Credentials.Spotify, services.WithEndpoint(services.SpotifyAuthURL, tokenURL)),
	})
}

// login performs GET /login and returns the redirect location and session cookie.
func login(t *testing.T, srv http.Handler, target string) (*url.URL, *http.Cookie) {
	t.Helper()

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	if rec.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d", rec.Code)
	}

	loc, err := url.Parse(rec.Header().Get("Location"))
	if err != nil {
		t.Fatalf("invalid location: %v", err)
	}

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected session cookie, got %d cookies", len(cookies))
	}
	return loc, cookies[0]
}

func callback(srv http.Handler, cookie *http.Cookie, query url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/callback?"+query.Encode(), nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func TestLogin(t *testing.T) {
	srv := newTestServer(t, "http://127.0.0.1:0/token")

	for _, target := range []string{"/login", "/login?client_id=evil&scope=none"} {
		t.Run(target, func(t *testing.T) {
			loc, cookie := login(t, srv, target)

			if got := loc.Scheme + "://" + loc.Host + loc.Path; got != services.SpotifyAuthURL {
				t.Errorf("expected authorize url, got %s", got)
			}

			q := loc.Query()
			if q.Get("response_type") != "code" {
				t.Errorf("expected response_type=code, got %q", q.Get("response_type"))
			}
			if q.Get("client_id") != "test_client_id" {
				t.Errorf("expected configured client_id, got %q", q.Get("client_id"))
			}
			if q.Get("scope") != strings.Join(services.SpotifyScopes, " ") {
				t.Errorf("expected full scope list, got %q", q.Get("scope"))
			}
			if q.Get("redirect_uri") != "https://backend.example.com/callback" {
				t.Errorf("unexpected redirect_uri %q", q.Get("redirect_uri"))
			}
			if q.Get("state") == "" {
				t.Error("expected state parameter")
			}
			if cookie.Name != "SESSION_ID" || !cookie.HttpOnly {
				t.Errorf("unexpected cookie: %+v", cookie)
			}
		})
	}
}

func TestCallback(t *testing.T) {
	t.Run("success redirects with tokens in fragment", func(t *testing.T) {
		ts := tu.NewTokenServer(t, http.StatusOK, `{"access_token":"A","refresh_token":"B","token_type":"Bearer","expires_in":3600}`)
		srv := newTestServer(t, ts.URL)

		loc, cookie := login(t, srv, "/login")
		rec := callback(srv, cookie, url.Values{"code": {"VALID"}, "state": {loc.Query().Get("state")}})

		if rec.Code != http.StatusFound {
			t.Fatalf("expected 302, got %d: %s", rec.Code, rec.Body.String())
		}
		want := "https://frontend.example.com/auth/callback#access_token=A&refresh_token=B"
		if got := rec.Header().Get("Location"); got != want {
			t.Errorf("expected %s, got %s", want, got)
		}
		if ts.Form("code") != "VALID" || ts.Form("client_secret") != "test_client_secret" {
			t.Errorf("unexpected token request form: code=%q", ts.Form("code"))
		}
	})

	t.Run("provider error is returned in the body", func(t *testing.T) {
		ts := tu.NewTokenServer(t, http.StatusBadRequest, `{"error":"invalid_grant","error_description":"Invalid authorization code"}`)
		srv := newTestServer(t, ts.URL)

		loc, cookie := login(t, srv, "/login")
		rec := callback(srv, cookie, url.Values{"code": {"BAD"}, "state": {loc.Query().Get("state")}})

		if rec.Code != http.StatusBadGateway {
			t.Fatalf("expected 502, got %d", rec.Code)
		}
		detail := decodeError(t, rec)
		if detail.Code != "invalid_grant" {
			t.Errorf("expected invalid_grant, got %+v", detail)
		}
		if detail.Details["upstream_status"] != float64(http.StatusBadRequest) {
			t.Errorf("expected upstream status 400, got %v", detail.Details["upstream_status"])
		}
		if detail.Details["description"] != "Invalid authorization code" {
			t.Errorf("expected description, got %v", detail.Details["description"])
		}
		if _, ok := detail.Details["body"]; ok {
			t.Error("raw body should only be exposed in development")
		}
	})

	t.Run("missing code is still exchanged", func(t *testing.T) {
		ts := tu.NewTokenServer(t, http.StatusBadRequest, `{"error":"invalid_request"}`)
		srv := newTestServer(t, ts.URL)

		loc, cookie := login(t, srv, "/login")
		rec := callback(srv, cookie, url.Values{"state": {loc.Query().Get("state")}})

		if ts.Requests() != 1 {
			t.Errorf("expected one exchange attempt, got %d", ts.Requests())
		}
		if rec.Code != http.StatusBadGateway {
			t.Errorf("expected 502, got %d", rec.Code)
		}
	})

	t.Run("state mismatch is rejected before exchange", func(t *testing.T) {
		ts := tu.NewTokenServer(t, http.StatusOK, `{"access_token":"A"}`)
		srv := newTestServer(t, ts.URL)

		_, cookie := login(t, srv, "/login")
		rec := callback(srv, cookie, url.Values{"code": {"VALID"}, "state": {"forged"}})

		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
		if ts.Requests() != 0 {
			t.Errorf("expected no exchange, got %d", ts.Requests())
		}
	})

	t.Run("callback without session is rejected", func(t *testing.T) {
		ts := tu.NewTokenServer(t, http.StatusOK, `{"access_token":"A"}`)
		srv := newTestServer(t, ts.URL)

		rec := callback(srv, nil, url.Values{"code": {"VALID"}, "state": {"anything"}})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("state is single use", func(t *testing.T) {
		ts := tu.NewTokenServer(t, http.StatusOK, `{"access_token":"A","refresh_token":"B"}`)
		srv := newTestServer(t, ts.URL)

		loc, cookie := login(t, srv, "/login")
		state := loc.Query().Get("state")

		first := callback(srv, cookie, url.Values{"code": {"VALID"}, "state": {state}})
		if first.Code != http.StatusFound {
			t.Fatalf("expected 302, got %d", first.Code)
		}

		second := callback(srv, cookie, url.Values{"code": {"VALID"}, "state": {state}})
		if second.Code != http.StatusBadRequest {
			t.Errorf("expected replay rejected, got %d", second.Code)
		}
	})

	t.Run("only GET", func(t *testing.T) {
		srv := newTestServer(t, "http://127.0.0.1:0/token")
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/login", nil))
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("expected 405, got %d", rec.Code)
		}
	})

	t.Run("HEAD does not exchange the code", func(t *testing.T) {
		ts := tu.NewTokenServer(t, http.StatusOK, `{"access_token":"A","refresh_token":"B"}`)
		srv := newTestServer(t, ts.URL)

		loc, cookie := login(t, srv, "/login")
		req := httptest.NewRequest(http.MethodHead, "/callback?"+url.Values{"code": {"VALID"}, "state": {loc.Query().Get("state")}}.Encode(), nil)
		req.AddCookie(cookie)
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)

		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("expected 405, got %d", rec.Code)
		}
		if ts.Requests() != 0 {
			t.Errorf("expected no exchange, got %d", ts.Requests())
		}

		// The state survives, so the real redirect still completes.
		if rec := callback(srv, cookie, url.Values{"code": {"VALID"}, "state": {loc.Query().Get("state")}}); rec.Code != http.StatusFound {
			t.Errorf("expected 302 after HEAD, got %d", rec.Code)
		}
	})

	t.Run("HEAD login is allowed", func(t *testing.T) {
		srv := newTestServer(t, "http://127.0.0.1:0/token")
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, httptest.NewRequest(http.MethodHead, "/login", nil))
		if rec.Code != http.StatusFound {
			t.Errorf("expected 302, got %d", rec.Code)
		}
	})
}
