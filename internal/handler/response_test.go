package handler

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/socialburst/internal/auth"
	"github.com/hitoshi/socialburst/internal/model"
)

func TestSafeRedirect(t *testing.T) {
	tests := []struct {
		target string
		want   string
	}{
		{"", "/dashboard"},
		{"/calendar", "/calendar"},
		{"/settings?tab=platforms", "/settings?tab=platforms"},
		{"//evil.example.com", "/dashboard"},
		{"/\\evil.example.com", "/dashboard"},
		{"https://evil.example.com/", "/dashboard"},
		{"javascript:alert(1)", "/dashboard"},
		{"calendar", "/dashboard"},
	}
	for _, tt := range tests {
		if got := safeRedirect(tt.target, "/dashboard"); got != tt.want {
			t.Errorf("safeRedirect(%q) = %q, want %q", tt.target, got, tt.want)
		}
	}
}

func TestMapAPIErrorToHTTPStatus(t *testing.T) {
	tests := []struct {
		err  *model.APIError
		want int
	}{
		{model.NewValidationError("x"), http.StatusBadRequest},
		{model.NewUnsupportedPlatformError("myspace"), http.StatusBadRequest},
		{model.NewInvalidURLError("x"), http.StatusBadRequest},
		{model.NewWeakPasswordError("x"), http.StatusUnprocessableEntity},
		{model.NewNoValidEmailsError(), http.StatusUnprocessableEntity},
		{model.NewCampaignNoListError(), http.StatusUnprocessableEntity},
		{model.NewNotFoundError("Post", "1"), http.StatusNotFound},
		{model.NewUserNotFoundError(), http.StatusNotFound},
		{model.NewCampaignAlreadySentError(), http.StatusConflict},
		{model.NewDuplicateEmailError(), http.StatusConflict},
		{model.NewUnauthorizedError(), http.StatusUnauthorized},
		{model.NewInvalidCredentialsError(), http.StatusUnauthorized},
		{model.NewCSRFError(), http.StatusForbidden},
		{model.NewRateLimitError(), http.StatusTooManyRequests},
		{model.NewAuthUnavailableError(), http.StatusServiceUnavailable},
		{model.NewInternalError(), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := mapAPIErrorToHTTPStatus(tt.err); got != tt.want {
			t.Errorf("mapAPIErrorToHTTPStatus(%s) = %d, want %d", tt.err.Code, got, tt.want)
		}
	}
}

func TestToAPIError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{"api error", model.NewNotFoundError("Post", "1"), model.ErrCodeNotFound},
		{"wrapped api error", fmt.Errorf("投稿の取得に失敗しました: %w", model.NewNotFoundError("Post", "1")), model.ErrCodeNotFound},
		{"invalid credentials", &auth.Error{Kind: auth.KindInvalidCredentials}, model.ErrCodeInvalidCredentials},
		{"duplicate email", &auth.Error{Kind: auth.KindDuplicateEmail}, model.ErrCodeDuplicateEmail},
		{"weak password", &auth.Error{Kind: auth.KindWeakPassword, Message: "too short"}, model.ErrCodeWeakPassword},
		{"invalid request", &auth.Error{Kind: auth.KindInvalidRequest, Message: "bad"}, model.ErrCodeValidation},
		{"expired token", &auth.Error{Kind: auth.KindTokenExpired}, model.ErrCodeUnauthorized},
		{"unavailable", &auth.Error{Kind: auth.KindUnavailable, Err: errors.New("dial")}, model.ErrCodeAuthUnavailable},
		{"plain error", errors.New("boom"), model.ErrCodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := toAPIError(tt.err); got.Code != tt.wantCode {
				t.Errorf("toAPIError() code = %q, want %q", got.Code, tt.wantCode)
			}
		})
	}
}

func TestToAPIError_WeakPasswordKeepsProviderMessage(t *testing.T) {
	got := toAPIError(&auth.Error{Kind: auth.KindWeakPassword, Message: "Password must be at least 8 characters."})
	if got.Message != "Password must be at least 8 characters." {
		t.Errorf("Message = %q, want provider message", got.Message)
	}
}

func TestIsFormRequest(t *testing.T) {
	tests := []struct {
		contentType string
		want        bool
	}{
		{"application/x-www-form-urlencoded", true},
		{"application/x-www-form-urlencoded; charset=utf-8", true},
		{"multipart/form-data; boundary=abc", true},
		{"application/json", false},
		{"", false},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set("Content-Type", tt.contentType)
		if got := isFormRequest(req); got != tt.want {
			t.Errorf("isFormRequest(%q) = %v, want %v", tt.contentType, got, tt.want)
		}
	}
}
