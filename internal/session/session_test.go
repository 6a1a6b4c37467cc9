package session

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"

	"github.com/desertthunder/makin/internal/shared"
	tu "github.com/desertthunder/makin/internal/testing"
)

func testStores(t *testing.T) map[string]Store {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(),
		"redis":  NewRedisStore(client),
		"sql":    NewSQLStore(tu.MustDatabase(t)),
	}
}

func TestStores(t *testing.T) {
	ctx := context.Background()

	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			t.Run("missing session", func(t *testing.T) {
				if _, err := store.Load(ctx, "nope"); !errors.Is(err, shared.ErrNoSession) {
					t.Errorf("expected ErrNoSession, got %v", err)
				}
			})

			t.Run("save and load", func(t *testing.T) {
				s := New(time.Hour)
				s.Set("state", "abc")

				if err := store.Save(ctx, s); err != nil {
					t.Fatalf("Save failed: %v", err)
				}

				loaded, err := store.Load(ctx, s.ID)
				if err != nil {
					t.Fatalf("Load failed: %v", err)
				}
				if loaded.Get("state") != "abc" {
					t.Errorf("expected state abc, got %q", loaded.Get("state"))
				}
				if loaded.Modified() {
					t.Error("loaded session should not be modified")
				}
			})

			t.Run("delete", func(t *testing.T) {
				s := New(time.Hour)
				s.Set("k", "v")
				if err := store.Save(ctx, s); err != nil {
					t.Fatalf("Save failed: %v", err)
				}
				if err := store.Delete(ctx, s.ID); err != nil {
					t.Fatalf("Delete failed: %v", err)
				}
				if _, err := store.Load(ctx, s.ID); !errors.Is(err, shared.ErrNoSession) {
					t.Errorf("expected ErrNoSession after delete, got %v", err)
				}
			})
		})
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Now().UTC()
	store.now = func() time.Time { return now }

	s := New(time.Minute)
	s.ExpiresAt = now.Add(time.Minute)
	if err := store.Save(ctx, s); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	store.now = func() time.Time { return now.Add(2 * time.Minute) }
	if _, err := store.Load(ctx, s.ID); !errors.Is(err, shared.ErrNoSession) {
		t.Errorf("expected expired session, got %v", err)
	}
	if store.Len() != 0 {
		t.Errorf("expected expired session pruned, got %d", store.Len())
	}
}

func TestSession(t *testing.T) {
	s := New(time.Hour)
	if s.Modified() {
		t.Error("new session should not be modified")
	}

	s.Set("a", "1")
	if got := s.Pop("a"); got != "1" {
		t.Errorf("expected 1, got %q", got)
	}
	if got := s.Pop("a"); got != "" {
		t.Errorf("expected empty after pop, got %q", got)
	}
}

func newTestManager(store Store) *Manager {
	return NewManager(store, Options{Secret: "test-secret", MaxAge: time.Hour}, log.New(io.Discard))
}

func TestManager(t *testing.T) {
	t.Run("sign and verify", func(t *testing.T) {
		m := newTestManager(NewMemoryStore())
		value, err := m.Sign("abc", time.Now().Add(time.Hour))
		if err != nil {
			t.Fatalf("Sign failed: %v", err)
		}

		id, err := m.Verify(value)
		if err != nil {
			t.Fatalf("Verify failed: %v", err)
		}
		if id != "abc" {
			t.Errorf("expected abc, got %s", id)
		}

		other := NewManager(NewMemoryStore(), Options{Secret: "other"}, nil)
		if _, err := other.Verify(value); !errors.Is(err, shared.ErrInvalidCookie) {
			t.Errorf("expected ErrInvalidCookie, got %v", err)
		}
	})

	t.Run("unmodified session sets no cookie", func(t *testing.T) {
		store := NewMemoryStore()
		m := newTestManager(store)
		h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if FromContext(r.Context()) == nil {
				t.Error("expected session in context")
			}
			w.WriteHeader(http.StatusOK)
		}))

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		if len(rec.Result().Cookies()) != 0 {
			t.Error("expected no cookie")
		}
		if store.Len() != 0 {
			t.Errorf("expected nothing saved, got %d", store.Len())
		}
	})

	t.Run("round trip", func(t *testing.T) {
		store := NewMemoryStore()
		m := newTestManager(store)

		set := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			FromContext(r.Context()).Set("state", "xyz")
			http.Redirect(w, r, "/next", http.StatusFound)
		}))
		rec := httptest.NewRecorder()
		set.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/login", nil))

		cookies := rec.Result().Cookies()
		if len(cookies) != 1 {
			t.Fatalf("expected 1 cookie, got %d", len(cookies))
		}
		c := cookies[0]
		if c.Name != "SESSION_ID" || !c.HttpOnly || c.SameSite != http.SameSiteLaxMode {
			t.Errorf("unexpected cookie attributes: %+v", c)
		}

		var got string
		read := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got = FromContext(r.Context()).Pop("state")
		}))
		req := httptest.NewRequest(http.MethodGet, "/callback", nil)
		req.AddCookie(c)
		read.ServeHTTP(httptest.NewRecorder(), req)

		if got != "xyz" {
			t.Errorf("expected state xyz, got %q", got)
		}
	})

	t.Run("tampered cookie starts fresh", func(t *testing.T) {
		m := newTestManager(NewMemoryStore())

		var id string
		h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id = FromContext(r.Context()).ID
		}))
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: "SESSION_ID", Value: "forged"})
		h.ServeHTTP(httptest.NewRecorder(), req)

		if id == "" || id == "forged" {
			t.Errorf("expected a fresh session id, got %q", id)
		}
	})

	t.Run("destroy clears cookie", func(t *testing.T) {
		m := newTestManager(NewMemoryStore())
		h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			FromContext(r.Context()).Destroy()
		}))

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		cookies := rec.Result().Cookies()
		if len(cookies) != 1 || cookies[0].MaxAge >= 0 {
			t.Errorf("expected expiring cookie, got %+v", cookies)
		}
	})
}
