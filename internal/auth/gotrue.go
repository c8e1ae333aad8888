package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	cleanhttp "github.com/hashicorp/go-cleanhttp"

	"github.com/hitoshi/socialburst/internal/model"
)

// maxGoTrueResponseSize はGoTrueレスポンスボディの読み取り上限。
const maxGoTrueResponseSize = 1 << 20

// GoTrueConfig はGoTrueProviderの設定。
type GoTrueConfig struct {
	URL        string        // 例: https://xyz.supabase.co/auth/v1
	APIKey     string        // apikeyヘッダーに送る公開キー
	ServiceKey string        // 管理API（アカウント削除）用のキー。空の場合は削除できない
	Timeout    time.Duration // 1リクエストのタイムアウト
}

// GoTrueProvider はGoTrue互換のホスト型認証APIを使う認証プロバイダー。
type GoTrueProvider struct {
	config GoTrueConfig
	client *http.Client
	now    func() time.Time
}

// NewGoTrueProvider はGoTrueProviderを生成する。
func NewGoTrueProvider(config GoTrueConfig) *GoTrueProvider {
	config.URL = strings.TrimRight(config.URL, "/")
	client := cleanhttp.DefaultPooledClient()
	if config.Timeout > 0 {
		client.Timeout = config.Timeout
	}
	return &GoTrueProvider{
		config: config,
		client: client,
		now:    time.Now,
	}
}

// gotrueUser はGoTrueのユーザー表現。
type gotrueUser struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	UserMetadata map[string]any `json:"user_metadata"`
}

func (u gotrueUser) displayName() string {
	if name, ok := u.UserMetadata["name"].(string); ok {
		return name
	}
	return ""
}

// gotrueTokenResponse はトークン発行系エンドポイントのレスポンス。
type gotrueTokenResponse struct {
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token"`
	ExpiresIn    int        `json:"expires_in"`
	ExpiresAt    int64      `json:"expires_at"`
	User         gotrueUser `json:"user"`
}

// gotrueErrorResponse はGoTrueのエラーレスポンス。バージョンによりフィールド名が異なる。
type gotrueErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
	ErrorCode        string `json:"error_code"`
}

func (e gotrueErrorResponse) text() string {
	for _, s := range []string{e.ErrorDescription, e.Msg, e.Message, e.Error} {
		if s != "" {
			return s
		}
	}
	return ""
}

// SignIn はパスワードグラントでトークンを取得する。
func (p *GoTrueProvider) SignIn(ctx context.Context, req model.AuthRequest) (*model.Session, error) {
	req = NormalizeRequest(req)
	if err := ValidateSignIn(req); err != nil {
		return nil, err
	}

	var resp gotrueTokenResponse
	body := map[string]string{"email": req.Email, "password": req.Password}
	if err := p.do(ctx, http.MethodPost, "/token?grant_type=password", "", body, &resp); err != nil {
		return nil, err
	}
	return p.sessionFromToken(resp)
}

// SignUp はアカウントを作成する。メール確認が必要な設定ではトークンが返らないため
// invalid_requestとして扱う。
func (p *GoTrueProvider) SignUp(ctx context.Context, req model.AuthRequest) (*model.Session, error) {
	req = NormalizeRequest(req)
	if err := ValidateSignUp(req); err != nil {
		return nil, err
	}

	var resp gotrueTokenResponse
	body := map[string]any{
		"email":    req.Email,
		"password": req.Password,
		"data":     map[string]string{"name": req.Name},
	}
	if err := p.do(ctx, http.MethodPost, "/signup", "", body, &resp); err != nil {
		return nil, err
	}
	if resp.AccessToken == "" {
		return nil, newError(KindInvalidRequest, "Confirm your email address before signing in.", nil)
	}
	return p.sessionFromToken(resp)
}

// SignOut はアクセストークンを失効させる。
func (p *GoTrueProvider) SignOut(ctx context.Context, accessToken string) error {
	if accessToken == "" {
		return invalidSession(nil)
	}
	return p.do(ctx, http.MethodPost, "/logout", accessToken, nil, nil)
}

// GetSession はアクセストークンでユーザー情報を取得する。
// 有効期限はトークンのexpクレームから読み取り、期限切れの場合はAPIを呼ばない。
func (p *GoTrueProvider) GetSession(ctx context.Context, accessToken string) (*model.Session, error) {
	if accessToken == "" {
		return nil, invalidSession(nil)
	}
	expiry, err := tokenExpiry(accessToken)
	if err != nil {
		return nil, invalidSession(err)
	}
	if !expiry.IsZero() && !p.now().Before(expiry) {
		return nil, tokenExpired(nil)
	}

	var user gotrueUser
	if err := p.do(ctx, http.MethodGet, "/user", accessToken, nil, &user); err != nil {
		return nil, err
	}
	if user.ID == "" {
		return nil, invalidSession(errors.New("user response has no id"))
	}
	return &model.Session{
		UserID:      user.ID,
		Email:       user.Email,
		DisplayName: user.displayName(),
		Expiry:      expiry,
		AccessToken: accessToken,
	}, nil
}

// Refresh はリフレッシュトークングラントで新しいトークンを取得する。
func (p *GoTrueProvider) Refresh(ctx context.Context, refreshToken string) (*model.Session, error) {
	if refreshToken == "" {
		return nil, invalidSession(nil)
	}
	var resp gotrueTokenResponse
	body := map[string]string{"refresh_token": refreshToken}
	if err := p.do(ctx, http.MethodPost, "/token?grant_type=refresh_token", "", body, &resp); err != nil {
		if KindOf(err) == KindInvalidCredentials {
			return nil, invalidSession(err)
		}
		return nil, err
	}
	return p.sessionFromToken(resp)
}

func (p *GoTrueProvider) sessionFromToken(resp gotrueTokenResponse) (*model.Session, error) {
	if resp.AccessToken == "" || resp.User.ID == "" {
		return nil, unavailable(errors.New("token response is missing access_token or user"))
	}
	var expiry time.Time
	switch {
	case resp.ExpiresAt > 0:
		expiry = time.Unix(resp.ExpiresAt, 0)
	case resp.ExpiresIn > 0:
		expiry = p.now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	}
	return &model.Session{
		UserID:       resp.User.ID,
		Email:        resp.User.Email,
		DisplayName:  resp.User.displayName(),
		Expiry:       expiry,
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
	}, nil
}

// DeleteAccount は管理APIでユーザーを削除する。発行済みのトークンも無効になる。
func (p *GoTrueProvider) DeleteAccount(ctx context.Context, userID string) error {
	if p.config.ServiceKey == "" {
		return unavailable(errors.New("GOTRUE_SERVICE_KEY is not configured"))
	}
	return p.do(ctx, http.MethodDelete, "/admin/users/"+url.PathEscape(userID), p.config.ServiceKey, nil, nil)
}

// do はGoTrue APIにリクエストを送り、成功時はoutにレスポンスをデコードする。
// ネットワークエラーと5xxはunavailable、4xxは内容に応じた種別に変換する。
func (p *GoTrueProvider) do(ctx context.Context, method, path, accessToken string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.config.URL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if p.config.APIKey != "" {
		req.Header.Set("apikey", p.config.APIKey)
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return unavailable(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxGoTrueResponseSize))
	if err != nil {
		return unavailable(fmt.Errorf("failed to read response: %w", err))
	}

	if resp.StatusCode >= 300 {
		return mapGoTrueError(resp.StatusCode, data)
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return unavailable(fmt.Errorf("failed to decode response: %w", err))
	}
	return nil
}

// mapGoTrueError はGoTrueのエラーレスポンスを*Errorに変換する。
func mapGoTrueError(status int, data []byte) *Error {
	var body gotrueErrorResponse
	_ = json.Unmarshal(data, &body)
	text := strings.ToLower(body.text())
	cause := fmt.Errorf("gotrue returned status %d: %s", status, body.text())

	switch {
	case status >= 500 || status == http.StatusTooManyRequests:
		return unavailable(cause)
	case body.Error == "invalid_grant" || strings.Contains(text, "invalid login credentials"):
		return newError(KindInvalidCredentials, "Invalid email or password.", cause)
	case body.ErrorCode == "user_already_exists" || strings.Contains(text, "already registered"):
		return newError(KindDuplicateEmail, "An account with this email already exists.", cause)
	case body.ErrorCode == "weak_password" || strings.Contains(text, "password"):
		msg := body.text()
		if msg == "" {
			msg = "Password is too weak."
		}
		return newError(KindWeakPassword, msg, cause)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return invalidSession(cause)
	default:
		return newError(KindInvalidRequest, "The request could not be processed.", cause)
	}
}

// tokenExpiry は署名を検証せずにJWTのexpクレームを読み取る。
// 署名の検証はGoTrue側で行う。expが無い場合はゼロ値を返す。
func tokenExpiry(accessToken string) (time.Time, error) {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, &claims); err != nil {
		return time.Time{}, fmt.Errorf("failed to parse access token: %w", err)
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, nil
	}
	return claims.ExpiresAt.Time, nil
}

var (
	_ Provider       = (*GoTrueProvider)(nil)
	_ AccountRemover = (*GoTrueProvider)(nil)
)
