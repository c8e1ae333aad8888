package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/hitoshi/socialburst/internal/model"
	"github.com/hitoshi/socialburst/internal/profile"
)

func TestProfileHandler_GetProfile_EnsuresFromSession(t *testing.T) {
	var got *model.Session
	svc := &mockProfileService{
		ensureFn: func(ctx context.Context, sess *model.Session) (*model.Profile, error) {
			got = sess
			return testProfile(sess.UserID), nil
		},
	}
	h := NewProfileHandler(svc)
	store := newAuthenticatedStore(t, "user-1")

	req := withStore(httptest.NewRequest(http.MethodGet, "/api/profile", nil), store)
	w := httptest.NewRecorder()

	h.GetProfile(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if got == nil || got.UserID != "user-1" {
		t.Fatalf("Ensure called with %+v, want user-1", got)
	}
	var result profileResponse
	decodeBody(t, w, &result)
	if result.ID != "user-1" {
		t.Errorf("id = %q, want %q", result.ID, "user-1")
	}
	if !result.Preferences.Platforms[model.PlatformFacebook] {
		t.Error("expected default preferences to enable facebook")
	}
}

func TestProfileHandler_GetProfile_NoSession_ReturnsUnauthorized(t *testing.T) {
	h := NewProfileHandler(&mockProfileService{})

	req := httptest.NewRequest(http.MethodGet, "/api/profile", nil)
	w := httptest.NewRecorder()

	h.GetProfile(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestProfileHandler_UpdateProfile_JSON_PartialUpdate(t *testing.T) {
	svc := &mockProfileService{
		updateFn: func(ctx context.Context, userID string, in profile.UpdateInput) (*model.Profile, error) {
			if in.Name == nil || *in.Name != "Renamed" {
				t.Errorf("name = %v, want %q", in.Name, "Renamed")
			}
			if in.AvatarURL != nil {
				t.Errorf("avatar_url = %q, want nil", *in.AvatarURL)
			}
			if in.Theme == nil || *in.Theme != model.ThemeDark {
				t.Errorf("theme = %v, want %q", in.Theme, model.ThemeDark)
			}
			p := testProfile(userID)
			p.Name = *in.Name
			p.Theme = *in.Theme
			return p, nil
		},
	}
	h := NewProfileHandler(svc)

	req := httptest.NewRequest(http.MethodPut, "/api/profile", strings.NewReader(`{"name":"Renamed","theme":"dark"}`))
	req.Header.Set("Content-Type", "application/json")
	req = withUserID(req, "user-1")
	w := httptest.NewRecorder()

	h.UpdateProfile(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var result profileResponse
	decodeBody(t, w, &result)
	if result.Theme != model.ThemeDark {
		t.Errorf("theme = %q, want %q", result.Theme, model.ThemeDark)
	}
}

func TestProfileHandler_UpdateProfile_InvalidURL(t *testing.T) {
	svc := &mockProfileService{
		updateFn: func(ctx context.Context, userID string, in profile.UpdateInput) (*model.Profile, error) {
			return nil, model.NewInvalidURLError("unsupported scheme")
		},
	}
	h := NewProfileHandler(svc)

	req := httptest.NewRequest(http.MethodPut, "/api/profile", strings.NewReader(`{"avatar_url":"javascript:alert(1)"}`))
	req.Header.Set("Content-Type", "application/json")
	req = withUserID(req, "user-1")
	w := httptest.NewRecorder()

	h.UpdateProfile(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	result := parseAPIErrorResponse(t, w)
	if result["code"] != model.ErrCodeInvalidURL {
		t.Errorf("code = %q, want %q", result["code"], model.ErrCodeInvalidURL)
	}
}

func TestProfileHandler_UpdatePreferences_Form_UncheckedAreDisabled(t *testing.T) {
	var got model.DashboardPreferences
	svc := &mockProfileService{
		updatePreferencesFn: func(ctx context.Context, userID string, prefs model.DashboardPreferences) (*model.Profile, error) {
			got = prefs
			return testProfile(userID), nil
		},
	}
	h := NewProfileHandler(svc)

	form := url.Values{}
	form.Add("platforms", "instagram")
	form.Add("widgets", "quickStats")
	form.Set("redirect", "/dashboard")
	req := httptest.NewRequest(http.MethodPost, "/api/profile/preferences", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req = withUserID(req, "user-1")
	w := httptest.NewRecorder()

	h.UpdatePreferences(w, req)

	if w.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusSeeOther)
	}
	if !got.Platforms[model.PlatformInstagram] {
		t.Error("instagram should be enabled")
	}
	if got.Platforms[model.PlatformFacebook] {
		t.Error("facebook should be disabled")
	}
	if !got.Widgets[model.WidgetQuickStats] {
		t.Error("quickStats should be enabled")
	}
	if got.Widgets[model.WidgetRecentActivity] {
		t.Error("recentActivity should be disabled")
	}
	if _, ok := got.Platforms[model.PlatformYouTube]; !ok {
		t.Error("youtube should be present as disabled")
	}
}

func TestProfileHandler_Connect_JSON(t *testing.T) {
	svc := &mockProfileService{
		connectFn: func(ctx context.Context, userID string, in profile.ConnectInput) (*model.SocialAccount, error) {
			if in.Platform != model.PlatformTwitter {
				t.Errorf("platform = %q, want %q", in.Platform, model.PlatformTwitter)
			}
			if in.AccessToken != "tok" {
				t.Errorf("access_token = %q, want %q", in.AccessToken, "tok")
			}
			return &model.SocialAccount{ID: "acc-1", Platform: in.Platform, AccountName: in.AccountName, AccessToken: in.AccessToken, IsConnected: true}, nil
		},
	}
	h := NewProfileHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/social-accounts",
		strings.NewReader(`{"platform":"twitter","account_name":"@brand","access_token":"tok"}`))
	req.Header.Set("Content-Type", "application/json")
	req = withUserID(req, "user-1")
	w := httptest.NewRecorder()

	h.Connect(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusCreated)
	}
	if strings.Contains(w.Body.String(), "tok") {
		t.Error("response must not contain access tokens")
	}
	var result socialAccountResponse
	decodeBody(t, w, &result)
	if !result.IsConnected {
		t.Error("is_connected = false, want true")
	}
}

func TestProfileHandler_Connect_UnsupportedPlatform_FormRedirectsWithError(t *testing.T) {
	svc := &mockProfileService{
		connectFn: func(ctx context.Context, userID string, in profile.ConnectInput) (*model.SocialAccount, error) {
			return nil, model.NewUnsupportedPlatformError(string(in.Platform))
		},
	}
	h := NewProfileHandler(svc)

	form := url.Values{}
	form.Set("platform", "tiktok")
	form.Set("redirect", "/settings?tab=platforms")
	req := httptest.NewRequest(http.MethodPost, "/api/social-accounts", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req = withUserID(req, "user-1")
	w := httptest.NewRecorder()

	h.Connect(w, req)

	if w.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusSeeOther)
	}
	loc, _ := url.Parse(w.Header().Get("Location"))
	if loc.Path != "/settings" {
		t.Errorf("redirect path = %q, want %q", loc.Path, "/settings")
	}
	if loc.Query().Get("tab") != "platforms" {
		t.Errorf("tab = %q, want %q", loc.Query().Get("tab"), "platforms")
	}
	if loc.Query().Get("error") == "" {
		t.Error("expected error message in redirect")
	}
}

func TestProfileHandler_Disconnect_UsesPathPlatform(t *testing.T) {
	var got model.Platform
	svc := &mockProfileService{
		disconnectFn: func(ctx context.Context, userID string, platform model.Platform) (*model.SocialAccount, error) {
			got = platform
			return &model.SocialAccount{ID: "acc-1", Platform: platform}, nil
		},
	}
	h := NewProfileHandler(svc)

	req := httptest.NewRequest(http.MethodDelete, "/api/social-accounts/youtube", nil)
	req = withChiURLParam(withUserID(req, "user-1"), "platform", "youtube")
	w := httptest.NewRecorder()

	h.Disconnect(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if got != model.PlatformYouTube {
		t.Errorf("platform = %q, want %q", got, model.PlatformYouTube)
	}
}

func TestProfileHandler_ListAccounts(t *testing.T) {
	svc := &mockProfileService{
		listAccountsFn: func(ctx context.Context, userID string) ([]*model.SocialAccount, error) {
			return []*model.SocialAccount{
				{ID: "a1", Platform: model.PlatformFacebook, IsConnected: true},
				{ID: "a2", Platform: model.PlatformTwitter, IsConnected: false},
			}, nil
		},
	}
	h := NewProfileHandler(svc)

	req := withUserID(httptest.NewRequest(http.MethodGet, "/api/social-accounts", nil), "user-1")
	w := httptest.NewRecorder()

	h.ListAccounts(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var result []socialAccountResponse
	decodeBody(t, w, &result)
	if len(result) != 2 {
		t.Errorf("len(result) = %d, want 2", len(result))
	}
}
