package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/bookmarkman/internal/middleware"
	"github.com/hitoshi/bookmarkman/internal/model"
)

// mockSessionFinder は固定のセッションを返すSessionFinder。
type mockSessionFinder struct {
	sessions map[string]*model.Session
}

func (m *mockSessionFinder) FindByID(ctx context.Context, id string) (*model.Session, error) {
	return m.sessions[id], nil
}

type testRouter struct {
	handler   http.Handler
	bookmarks *mockBookmarkService
	previews  *mockPreviewService
}

func newTestRouter(t *testing.T) *testRouter {
	t.Helper()

	rl := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	t.Cleanup(rl.Stop)

	tr := &testRouter{
		bookmarks: &mockBookmarkService{},
		previews:  &mockPreviewService{},
	}
	tr.handler = NewRouter(&RouterDeps{
		SessionFinder: &mockSessionFinder{sessions: map[string]*model.Session{
			"session-123": {ID: "session-123", UserID: "user-1", ExpiresAt: time.Now().Add(time.Hour)},
		}},
		CookieCodec:       testCodec,
		CORSAllowedOrigin: "http://localhost:3000",
		RateLimiter:       rl,
		DB:                &mockPinger{},
		MetricsHandler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("# metrics"))
		}),
		AuthService:     &mockAuthService{},
		AuthConfig:      testAuthConfig(),
		BookmarkService: tr.bookmarks,
		PreviewService:  tr.previews,
		UserService:     &mockUserService{},
	})
	return tr
}

// authedRequest はセッションCookieとCSRFトークンを付与したリクエストを生成する。
func authedRequest(t *testing.T, method, path, body string) *http.Request {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	req.AddCookie(signedSessionCookie(t, "session-123"))
	req.AddCookie(&http.Cookie{Name: middleware.CSRFCookieName, Value: "csrf-abc"})
	req.Header.Set(middleware.CSRFHeaderName, "csrf-abc")
	return req
}

// ログインはセッション無しでも接続元IPごとに回数制限される
func TestRouter_LoginIsRateLimitedPerIP(t *testing.T) {
	tr := newTestRouter(t)
	burst := middleware.DefaultRateLimiterConfig().AuthBurst

	login := func() int {
		req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"a@example.com","password":"x"}`))
		req.RemoteAddr = "203.0.113.9:5555"
		w := httptest.NewRecorder()
		tr.handler.ServeHTTP(w, req)
		return w.Code
	}

	for i := 0; i < burst; i++ {
		if code := login(); code == http.StatusTooManyRequests {
			t.Fatalf("request %d should not be limited", i)
		}
	}
	if code := login(); code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want %d", code, http.StatusTooManyRequests)
	}
}

func TestRouter_PublicEndpoints(t *testing.T) {
	tr := newTestRouter(t)

	for _, path := range []string{"/health", "/metrics", "/csrf-token"} {
		t.Run(path, func(t *testing.T) {
			w := httptest.NewRecorder()
			tr.handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
			if w.Code != http.StatusOK {
				t.Errorf("GET %s status = %d, want 200", path, w.Code)
			}
		})
	}
}

func TestRouter_AuthMeWithoutSession(t *testing.T) {
	tr := newTestRouter(t)

	w := httptest.NewRecorder()
	tr.handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auth/me", nil))

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

// 未認証のリクエストはハンドラーに到達する前に401で拒否する
func TestRouter_ProtectedRoutesRequireSession(t *testing.T) {
	tr := newTestRouter(t)
	tr.bookmarks.reorderFn = func(ctx context.Context, userID string, updates []model.PositionUpdate) error {
		t.Fatal("Reorder should not be called")
		return nil
	}

	routes := []struct {
		method, path string
	}{
		{http.MethodGet, "/bookmarks"},
		{http.MethodPost, "/bookmarks"},
		{http.MethodGet, "/bookmarks/search"},
		{http.MethodGet, "/bookmarks/tags"},
		{http.MethodPatch, "/bookmarks/reorder"},
		{http.MethodGet, "/bookmarks/b1"},
		{http.MethodPost, "/preview"},
		{http.MethodDelete, "/users/me"},
	}

	for _, rt := range routes {
		t.Run(rt.method+" "+rt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			tr.handler.ServeHTTP(w, httptest.NewRequest(rt.method, rt.path, strings.NewReader(`{"updates":[]}`)))
			assertErrorCode(t, w, http.StatusUnauthorized, model.ErrCodeUnauthorized)
		})
	}
}

func TestRouter_ReorderIsNotTreatedAsID(t *testing.T) {
	tr := newTestRouter(t)
	reordered := false
	tr.bookmarks.reorderFn = func(ctx context.Context, userID string, updates []model.PositionUpdate) error {
		reordered = true
		if userID != "user-1" {
			t.Errorf("userID = %q", userID)
		}
		return nil
	}
	tr.bookmarks.updateFn = func(ctx context.Context, userID, id string, patch model.BookmarkPatch) (*model.Bookmark, error) {
		t.Fatalf("Update should not be called with id %q", id)
		return nil, nil
	}

	w := httptest.NewRecorder()
	tr.handler.ServeHTTP(w, authedRequest(t, http.MethodPatch, "/bookmarks/reorder", `{"updates":[{"id":"a","position":0}]}`))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body=%s)", w.Code, w.Body.String())
	}
	if !reordered {
		t.Error("expected Reorder to be called")
	}
}

func TestRouter_BookmarkIDParam(t *testing.T) {
	tr := newTestRouter(t)
	tr.bookmarks.getFn = func(ctx context.Context, userID, id string) (*model.Bookmark, error) {
		return &model.Bookmark{ID: id}, nil
	}

	w := httptest.NewRecorder()
	tr.handler.ServeHTTP(w, authedRequest(t, http.MethodGet, "/bookmarks/abc-123", ""))

	var b model.Bookmark
	decodeBody(t, w, &b)
	if b.ID != "abc-123" {
		t.Errorf("id = %q, want abc-123", b.ID)
	}
}

// 状態変更リクエストはCSRFトークンが無ければ403
func TestRouter_StateChangingRequiresCSRF(t *testing.T) {
	tr := newTestRouter(t)
	tr.bookmarks.deleteFn = func(ctx context.Context, userID, id string) error {
		t.Fatal("Delete should not be called")
		return nil
	}

	req := httptest.NewRequest(http.MethodDelete, "/bookmarks/b1", nil)
	req.AddCookie(signedSessionCookie(t, "session-123"))
	w := httptest.NewRecorder()
	tr.handler.ServeHTTP(w, req)

	assertErrorCode(t, w, http.StatusForbidden, model.ErrCodeCSRFInvalid)
}

func TestRouter_PreviewRoute(t *testing.T) {
	tr := newTestRouter(t)
	var got string
	tr.previews.previewFn = func(ctx context.Context, rawURL string) (*model.Preview, error) {
		got = rawURL
		return &model.Preview{Title: "t"}, nil
	}

	w := httptest.NewRecorder()
	tr.handler.ServeHTTP(w, authedRequest(t, http.MethodPost, "/preview", `{"url":"https://go.dev"}`))

	if w.Code != http.StatusOK || got != "https://go.dev" {
		t.Errorf("status = %d, url = %q", w.Code, got)
	}
}

func TestRouter_SetsSecurityHeaders(t *testing.T) {
	tr := newTestRouter(t)

	w := httptest.NewRecorder()
	tr.handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", w.Header().Get("X-Content-Type-Options"))
	}
	if !strings.HasPrefix(w.Header().Get("Content-Security-Policy"), "default-src 'none'") {
		t.Errorf("Content-Security-Policy = %q", w.Header().Get("Content-Security-Policy"))
	}
}
