package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/socialburst/internal/session"
)

// newIntegrationRouter は本番のルーターと同じ順序でミドルウェアを積んだchi.Routerを返す。
// 公開ルート、ページ用のGuard、API用のGuard + CSRFの3系統を持つ。
func newIntegrationRouter(t *testing.T) (http.Handler, *[]string) {
	t.Helper()

	factory := newTestFactory(sessionProvider("integration-token", "user-int"))
	csrfConfig := CSRFConfig{}
	var reached []string

	record := func(name string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			reached = append(reached, name)
			userID, _ := UserIDFromContext(r.Context())
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]string{"route": name, "method": r.Method, "user_id": userID})
		}
	}

	r := chi.NewRouter()
	r.Use(NewMethodOverrideMiddleware())
	r.Use(NewSecurityHeadersMiddleware(false))
	r.Use(NewSessionMiddleware(factory))

	r.Get("/api/csrf-token", NewCSRFTokenHandler(csrfConfig).ServeHTTP)

	r.Group(func(r chi.Router) {
		r.Use(NewGuardMiddleware(factory, GuardConfig{Mode: GuardModePage}))
		r.Get("/dashboard", record("dashboard"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(NewGuardMiddleware(factory, GuardConfig{Mode: GuardModeAPI}))
		r.Use(NewCSRFMiddleware(csrfConfig))
		r.Get("/posts", record("list-posts"))
		r.Post("/posts", record("create-post"))
		r.Delete("/posts/{id}", record("delete-post"))
	})

	return r, &reached
}

func TestRouterIntegration_CSRFTokenEndpoint_IsPublic(t *testing.T) {
	router, _ := newIntegrationRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/csrf-token", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Token == "" {
		t.Error("expected non-empty token")
	}
	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want %q", got, "nosniff")
	}
}

func TestRouterIntegration_ProtectedRoutes(t *testing.T) {
	const csrf = "integration-csrf"

	tests := []struct {
		name        string
		method      string
		path        string
		body        string
		signedIn    bool
		withCSRF    bool
		wantStatus  int
		wantRoute   string
		wantLocPath string
	}{
		{
			name:       "page signed in renders",
			method:     http.MethodGet,
			path:       "/dashboard",
			signedIn:   true,
			wantStatus: http.StatusOK,
			wantRoute:  "dashboard",
		},
		{
			name:        "page anonymous redirects to sign-in",
			method:      http.MethodGet,
			path:        "/dashboard",
			wantStatus:  http.StatusSeeOther,
			wantLocPath: "/auth",
		},
		{
			name:       "api GET signed in needs no CSRF",
			method:     http.MethodGet,
			path:       "/api/posts",
			signedIn:   true,
			wantStatus: http.StatusOK,
			wantRoute:  "list-posts",
		},
		{
			name:       "api anonymous is 401",
			method:     http.MethodGet,
			path:       "/api/posts",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "api POST with CSRF passes",
			method:     http.MethodPost,
			path:       "/api/posts",
			signedIn:   true,
			withCSRF:   true,
			wantStatus: http.StatusOK,
			wantRoute:  "create-post",
		},
		{
			name:       "api POST without CSRF is 403",
			method:     http.MethodPost,
			path:       "/api/posts",
			signedIn:   true,
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "api POST anonymous is 401 before CSRF check",
			method:     http.MethodPost,
			path:       "/api/posts",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "form POST with _method=DELETE reaches delete route",
			method:     http.MethodPost,
			path:       "/api/posts/p-1",
			body:       url.Values{MethodOverrideField: {"DELETE"}, CSRFFormField: {csrf}}.Encode(),
			signedIn:   true,
			withCSRF:   true,
			wantStatus: http.StatusOK,
			wantRoute:  "delete-post",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, reached := newIntegrationRouter(t)

			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			if tt.body != "" {
				req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			}
			if tt.signedIn {
				req.AddCookie(&http.Cookie{Name: session.AccessTokenCookie, Value: "integration-token"})
			}
			if tt.withCSRF {
				req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: csrf})
				if tt.body == "" {
					req.Header.Set(csrfHeaderName, csrf)
				}
			}
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantLocPath != "" {
				loc, err := url.Parse(w.Header().Get("Location"))
				if err != nil {
					t.Fatalf("invalid Location: %v", err)
				}
				if loc.Path != tt.wantLocPath {
					t.Errorf("Location path = %q, want %q", loc.Path, tt.wantLocPath)
				}
				if got := loc.Query().Get("next"); got != tt.path {
					t.Errorf("next = %q, want %q", got, tt.path)
				}
			}
			if tt.wantRoute == "" {
				if len(*reached) != 0 {
					t.Errorf("handlers reached = %v, want none", *reached)
				}
				return
			}

			var body map[string]string
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if body["route"] != tt.wantRoute {
				t.Errorf("route = %q, want %q", body["route"], tt.wantRoute)
			}
			if body["user_id"] != "user-int" {
				t.Errorf("user_id = %q, want %q", body["user_id"], "user-int")
			}
		})
	}
}
