package web

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/socialburst/internal/model"
)

func TestNewRenderer_ParsesAllPages(t *testing.T) {
	r, err := NewRenderer()
	if err != nil {
		t.Fatalf("NewRenderer() error = %v", err)
	}
	for _, name := range pageNames {
		if _, ok := r.pages[name]; !ok {
			t.Errorf("page %q was not parsed", name)
		}
	}
}

func TestRender_LandingForGuest(t *testing.T) {
	r := MustNewRenderer()
	w := httptest.NewRecorder()

	r.Render(w, http.StatusOK, PageLanding, PageData{Data: struct{ Authenticated bool }{false}})

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/html; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
	body := w.Body.String()
	for _, want := range []string{"Manage All Your Social Media in One Place", "Get Started", `href="/auth?tab=signup"`} {
		if !strings.Contains(body, want) {
			t.Errorf("body does not contain %q", want)
		}
	}
	if strings.Contains(body, "Go to Dashboard") {
		t.Error("guest landing page should not link to the dashboard")
	}
	if strings.Contains(body, `class="sidebar"`) {
		t.Error("guest page should not render the sidebar")
	}
}

func TestRender_LandingForUser(t *testing.T) {
	r := MustNewRenderer()
	w := httptest.NewRecorder()

	r.Render(w, http.StatusOK, PageLanding, PageData{Data: struct{ Authenticated bool }{true}})

	if !strings.Contains(w.Body.String(), "Go to Dashboard") {
		t.Error("authenticated landing page should link to the dashboard")
	}
}

func TestRender_LayoutWithUser(t *testing.T) {
	r := MustNewRenderer()
	w := httptest.NewRecorder()

	r.Render(w, http.StatusOK, PageLoading, PageData{
		Title:     "Calendar",
		Active:    "calendar",
		User:      &model.Profile{Name: "jane", Email: "jane@example.com", Theme: model.ThemeDark},
		CSRFToken: "token-123",
	})

	body := w.Body.String()
	for _, want := range []string{
		`<title>Calendar · SocialBurst</title>`,
		`data-theme="dark"`,
		`class="sidebar"`,
		`<li class="active"><a href="/calendar">Calendar</a></li>`,
		`action="/auth/signout"`,
		`value="token-123"`,
		`>J<`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("body does not contain %q", want)
		}
	}
}

func TestRender_EscapesMessages(t *testing.T) {
	r := MustNewRenderer()
	w := httptest.NewRecorder()

	r.Render(w, http.StatusBadRequest, PageLoading, PageData{Error: `<script>alert(1)</script>`})

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	body := w.Body.String()
	if strings.Contains(body, "<script>alert(1)</script>") {
		t.Error("error message must be escaped")
	}
	if !strings.Contains(body, "&lt;script&gt;") {
		t.Error("escaped error message not found")
	}
}

func TestRender_UnknownPage(t *testing.T) {
	r := MustNewRenderer()
	w := httptest.NewRecorder()

	r.Render(w, http.StatusOK, "missing", PageData{})

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
}

func TestRender_ExecutionErrorDoesNotLeakPartialPage(t *testing.T) {
	r := MustNewRenderer()
	w := httptest.NewRecorder()

	// landingは.Data.Authenticatedを参照するため、フィールドのない値では描画に失敗する
	r.Render(w, http.StatusOK, PageLanding, PageData{Data: 42})

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	if strings.Contains(w.Body.String(), "Manage All Your Social Media") {
		t.Error("partial output should not be written")
	}
}

func TestHandler_ErrorPage(t *testing.T) {
	r := MustNewRenderer()
	h := r.Handler(http.StatusInternalServerError, PageError, "Error")

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/dashboard", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	body := w.Body.String()
	if !strings.Contains(body, "Something went wrong") || !strings.Contains(body, `href="/"`) {
		t.Errorf("error page body = %q", body)
	}
	if !strings.Contains(body, "Return to home") {
		t.Error("error page should offer a way back home")
	}
}

func TestPlatformLabel(t *testing.T) {
	tests := []struct {
		in   model.Platform
		want string
	}{
		{model.PlatformYouTube, "YouTube"},
		{model.PlatformTikTok, "TikTok"},
		{model.Platform("mastodon"), "mastodon"},
	}
	for _, tt := range tests {
		if got := PlatformLabel(tt.in); got != tt.want {
			t.Errorf("PlatformLabel(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
