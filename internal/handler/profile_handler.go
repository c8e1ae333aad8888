package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/socialburst/internal/model"
	"github.com/hitoshi/socialburst/internal/profile"
	"github.com/hitoshi/socialburst/internal/session"
)

// ProfileServiceInterface はプロフィールハンドラーが必要とするサービスインターフェース。
type ProfileServiceInterface interface {
	Ensure(ctx context.Context, sess *model.Session) (*model.Profile, error)
	Update(ctx context.Context, userID string, in profile.UpdateInput) (*model.Profile, error)
	UpdatePreferences(ctx context.Context, userID string, prefs model.DashboardPreferences) (*model.Profile, error)
	ListAccounts(ctx context.Context, userID string) ([]*model.SocialAccount, error)
	Connect(ctx context.Context, userID string, in profile.ConnectInput) (*model.SocialAccount, error)
	Disconnect(ctx context.Context, userID string, platform model.Platform) (*model.SocialAccount, error)
}

// ProfileHandler はプロフィールとSNSアカウント連携のHTTPハンドラー。
type ProfileHandler struct {
	service ProfileServiceInterface
}

// NewProfileHandler はProfileHandlerを生成する。
func NewProfileHandler(service ProfileServiceInterface) *ProfileHandler {
	return &ProfileHandler{service: service}
}

// profileResponse はプロフィールのAPIレスポンス。
type profileResponse struct {
	ID          string                     `json:"id"`
	Email       string                     `json:"email"`
	Name        string                     `json:"name"`
	AvatarURL   string                     `json:"avatar_url"`
	Theme       model.Theme                `json:"theme"`
	Preferences model.DashboardPreferences `json:"preferences"`
	CreatedAt   time.Time                  `json:"created_at"`
	UpdatedAt   time.Time                  `json:"updated_at"`
}

// updateProfileRequest はプロフィール更新リクエストのボディ。省略したフィールドは変更しない。
type updateProfileRequest struct {
	Name      *string      `json:"name"`
	AvatarURL *string      `json:"avatar_url"`
	Theme     *model.Theme `json:"theme"`
}

// socialAccountResponse は連携アカウントのAPIレスポンス。トークンは含めない。
type socialAccountResponse struct {
	ID          string         `json:"id"`
	Platform    model.Platform `json:"platform"`
	AccountName string         `json:"account_name"`
	IsConnected bool           `json:"is_connected"`
	ExpiresAt   *time.Time     `json:"expires_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// connectRequest はアカウント連携リクエストのボディ。
type connectRequest struct {
	Platform     model.Platform `json:"platform"`
	AccountName  string         `json:"account_name"`
	AccessToken  string         `json:"access_token"`
	RefreshToken string         `json:"refresh_token"`
	ExpiresAt    *time.Time     `json:"expires_at"`
}

func toProfileResponse(p *model.Profile) profileResponse {
	return profileResponse{
		ID:          p.ID,
		Email:       p.Email,
		Name:        p.Name,
		AvatarURL:   p.AvatarURL,
		Theme:       p.Theme,
		Preferences: p.Preferences,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func toSocialAccountResponse(a *model.SocialAccount) socialAccountResponse {
	return socialAccountResponse{
		ID:          a.ID,
		Platform:    a.Platform,
		AccountName: a.AccountName,
		IsConnected: a.IsConnected,
		ExpiresAt:   a.ExpiresAt,
		CreatedAt:   a.CreatedAt,
	}
}

// GetProfile はプロフィールを返す。未作成の場合はセッション情報から作成する。
// GET /api/profile
func (h *ProfileHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	store := session.FromContext(r.Context())
	if store == nil || store.Session() == nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	p, err := h.service.Ensure(r.Context(), store.Session())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProfileResponse(p))
}

// UpdateProfile は名前、アバターURL、テーマを更新する。
// PUT /api/profile
func (h *ProfileHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var in profile.UpdateInput
	if isFormRequest(r) {
		_ = r.ParseForm()
		in.Name = formField(r, "name")
		in.AvatarURL = formField(r, "avatar_url")
		if theme := formField(r, "theme"); theme != nil {
			t := model.Theme(*theme)
			in.Theme = &t
		}
	} else {
		var req updateProfileRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		in = profile.UpdateInput{Name: req.Name, AvatarURL: req.AvatarURL, Theme: req.Theme}
	}

	p, err := h.service.Update(r.Context(), userID, in)
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, toProfileResponse(p), "Profile updated.")
}

// UpdatePreferences はダッシュボードのカスタマイズ設定を更新する。
// PUT /api/profile/preferences
// フォームの場合はチェックされた項目のみ有効、それ以外は無効として扱う。
func (h *ProfileHandler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var prefs model.DashboardPreferences
	if isFormRequest(r) {
		_ = r.ParseForm()
		prefs = preferencesFromForm(r)
	} else if !decodeJSON(w, r, &prefs) {
		return
	}

	p, err := h.service.UpdatePreferences(r.Context(), userID, prefs)
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, toProfileResponse(p), "Dashboard preferences saved.")
}

// ListAccounts は連携アカウント一覧を返す。
// GET /api/social-accounts
func (h *ProfileHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	accounts, err := h.service.ListAccounts(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]socialAccountResponse, 0, len(accounts))
	for _, a := range accounts {
		resp = append(resp, toSocialAccountResponse(a))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Connect はSNSアカウントを連携する。
// POST /api/social-accounts
func (h *ProfileHandler) Connect(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req connectRequest
	if isFormRequest(r) {
		req.Platform = model.Platform(r.PostFormValue("platform"))
		req.AccountName = r.PostFormValue("account_name")
	} else if !decodeJSON(w, r, &req) {
		return
	}

	account, err := h.service.Connect(r.Context(), userID, profile.ConnectInput{
		Platform:     req.Platform,
		AccountName:  req.AccountName,
		AccessToken:  req.AccessToken,
		RefreshToken: req.RefreshToken,
		ExpiresAt:    req.ExpiresAt,
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, r, http.StatusCreated, toSocialAccountResponse(account), "Account connected.")
}

// Disconnect は連携を解除する。
// DELETE /api/social-accounts/{platform}
func (h *ProfileHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	account, err := h.service.Disconnect(r.Context(), userID, model.Platform(chi.URLParam(r, "platform")))
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, toSocialAccountResponse(account), "Account disconnected.")
}

// formField はフォームに含まれるフィールドの値を返す。含まれない場合はnil。
func formField(r *http.Request, name string) *string {
	values, ok := r.PostForm[name]
	if !ok || len(values) == 0 {
		return nil
	}
	v := values[0]
	return &v
}

// preferencesFromForm はチェックボックスの値からダッシュボード設定を組み立てる。
func preferencesFromForm(r *http.Request) model.DashboardPreferences {
	prefs := model.DashboardPreferences{
		Platforms: make(map[model.Platform]bool, len(model.AccountPlatforms)),
		Widgets:   make(map[model.Widget]bool, len(dashboardWidgets)),
	}
	for _, p := range model.AccountPlatforms {
		prefs.Platforms[p] = false
	}
	for _, w := range dashboardWidgets {
		prefs.Widgets[w.Key] = false
	}
	for _, v := range r.PostForm["platforms"] {
		prefs.Platforms[model.Platform(v)] = true
	}
	for _, v := range r.PostForm["widgets"] {
		prefs.Widgets[model.Widget(v)] = true
	}
	return prefs
}
