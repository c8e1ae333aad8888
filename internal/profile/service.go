// Package profile はプロフィールとSNSアカウント連携のドメインロジックを提供する。
package profile

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/socialburst/internal/model"
	"github.com/hitoshi/socialburst/internal/repository"
)

// URLValidator は画像URLの検証インターフェース。security.SSRFGuardServiceが実装する。
type URLValidator interface {
	ValidateImageURL(rawURL string) error
}

// UpdateInput はプロフィール更新の入力。nilのフィールドは変更しない。
type UpdateInput struct {
	Name      *string
	AvatarURL *string
	Theme     *model.Theme
}

// ConnectInput はSNSアカウント連携の入力。
type ConnectInput struct {
	Platform     model.Platform
	AccountName  string
	AccessToken  string
	RefreshToken string
	ExpiresAt    *time.Time
}

// Service はプロフィール管理のサービス層。
type Service struct {
	profiles repository.ProfileRepository
	accounts repository.SocialAccountRepository
	urls     URLValidator
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	profiles repository.ProfileRepository,
	accounts repository.SocialAccountRepository,
	urls URLValidator,
) *Service {
	return &Service{
		profiles: profiles,
		accounts: accounts,
		urls:     urls,
	}
}

// Ensure はセッションのユーザーのプロフィールを返す。存在しない場合は作成する。
// サインアップ直後と、外部プロバイダーで作成されたアカウントの初回アクセスで呼ばれる。
func (s *Service) Ensure(ctx context.Context, sess *model.Session) (*model.Profile, error) {
	existing, err := s.profiles.FindByID(ctx, sess.UserID)
	if err != nil {
		return nil, fmt.Errorf("プロフィールの取得に失敗しました: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	name := strings.TrimSpace(sess.DisplayName)
	if name == "" {
		name, _, _ = strings.Cut(sess.Email, "@")
	}

	created, err := s.profiles.Create(ctx, &model.Profile{
		ID:          sess.UserID,
		Email:       sess.Email,
		Name:        name,
		Theme:       model.ThemeSystem,
		Preferences: model.DefaultDashboardPreferences(),
	})
	if err != nil {
		return nil, fmt.Errorf("プロフィールの作成に失敗しました: %w", err)
	}

	slog.Info("プロフィールを作成しました", slog.String("user_id", sess.UserID))
	return created, nil
}

// Get はユーザーのプロフィールを返す。
func (s *Service) Get(ctx context.Context, userID string) (*model.Profile, error) {
	p, err := s.profiles.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("プロフィールの取得に失敗しました: %w", err)
	}
	if p == nil {
		return nil, model.NewNotFoundError("Profile", userID)
	}
	return p, nil
}

// Update は名前、アバターURL、テーマを更新する。
// アバターURLは空文字で削除でき、指定する場合はhttpsの公開URLに限る。
func (s *Service) Update(ctx context.Context, userID string, in UpdateInput) (*model.Profile, error) {
	p, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, model.NewValidationError("Name is required.")
		}
		p.Name = name
	}
	if in.AvatarURL != nil {
		avatar := strings.TrimSpace(*in.AvatarURL)
		if avatar != "" {
			if err := s.urls.ValidateImageURL(avatar); err != nil {
				return nil, model.NewInvalidURLError(err.Error())
			}
		}
		p.AvatarURL = avatar
	}
	if in.Theme != nil {
		if !in.Theme.Valid() {
			return nil, model.NewValidationError(fmt.Sprintf("Unknown theme: %s", *in.Theme))
		}
		p.Theme = *in.Theme
	}

	updated, err := s.profiles.Update(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("プロフィールの更新に失敗しました: %w", err)
	}
	return updated, nil
}

// UpdatePreferences はダッシュボードのカスタマイズ設定を置き換える。
func (s *Service) UpdatePreferences(ctx context.Context, userID string, prefs model.DashboardPreferences) (*model.Profile, error) {
	for platform := range prefs.Platforms {
		if !model.IsAccountPlatform(platform) {
			return nil, model.NewUnsupportedPlatformError(string(platform))
		}
	}
	for widget := range prefs.Widgets {
		if !knownWidget(widget) {
			return nil, model.NewValidationError(fmt.Sprintf("Unknown widget: %s", widget))
		}
	}

	p, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	merged := model.DefaultDashboardPreferences()
	for k, v := range prefs.Platforms {
		merged.Platforms[k] = v
	}
	for k, v := range prefs.Widgets {
		merged.Widgets[k] = v
	}
	p.Preferences = merged

	updated, err := s.profiles.Update(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("ダッシュボード設定の更新に失敗しました: %w", err)
	}
	return updated, nil
}

func knownWidget(w model.Widget) bool {
	switch w {
	case model.WidgetQuickStats, model.WidgetUpcomingPosts, model.WidgetRecentActivity, model.WidgetPlatformPerformance:
		return true
	}
	return false
}

// ListAccounts はユーザーの連携アカウント一覧を返す。
func (s *Service) ListAccounts(ctx context.Context, userID string) ([]*model.SocialAccount, error) {
	accounts, err := s.accounts.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("連携アカウントの取得に失敗しました: %w", err)
	}
	return accounts, nil
}

// Connect はSNSアカウントを連携する。同じプラットフォームの連携が既にあれば上書きする。
// 外部プラットフォームのOAuthは行わず、渡されたトークンを保存するだけ。
func (s *Service) Connect(ctx context.Context, userID string, in ConnectInput) (*model.SocialAccount, error) {
	if !model.IsAccountPlatform(in.Platform) {
		return nil, model.NewUnsupportedPlatformError(string(in.Platform))
	}
	name := strings.TrimSpace(in.AccountName)
	if name == "" {
		return nil, model.NewValidationError("Account name is required.")
	}

	existing, err := s.accounts.FindByUserAndPlatform(ctx, userID, in.Platform)
	if err != nil {
		return nil, fmt.Errorf("連携アカウントの取得に失敗しました: %w", err)
	}

	if existing != nil {
		existing.AccountName = name
		existing.AccessToken = in.AccessToken
		existing.RefreshToken = in.RefreshToken
		existing.ExpiresAt = in.ExpiresAt
		existing.IsConnected = true
		updated, err := s.accounts.Update(ctx, existing)
		if err != nil {
			return nil, fmt.Errorf("連携アカウントの更新に失敗しました: %w", err)
		}
		return updated, nil
	}

	created, err := s.accounts.Create(ctx, &model.SocialAccount{
		UserID:       userID,
		Platform:     in.Platform,
		AccountName:  name,
		AccessToken:  in.AccessToken,
		RefreshToken: in.RefreshToken,
		ExpiresAt:    in.ExpiresAt,
		IsConnected:  true,
	})
	if err != nil {
		return nil, fmt.Errorf("連携アカウントの作成に失敗しました: %w", err)
	}

	slog.Info("SNSアカウントを連携しました",
		slog.String("user_id", userID),
		slog.String("platform", string(in.Platform)),
	)
	return created, nil
}

// Disconnect は連携を解除し、保存していたトークンを消去する。行は削除しない。
func (s *Service) Disconnect(ctx context.Context, userID string, platform model.Platform) (*model.SocialAccount, error) {
	if !model.IsAccountPlatform(platform) {
		return nil, model.NewUnsupportedPlatformError(string(platform))
	}

	existing, err := s.accounts.FindByUserAndPlatform(ctx, userID, platform)
	if err != nil {
		return nil, fmt.Errorf("連携アカウントの取得に失敗しました: %w", err)
	}
	if existing == nil {
		return nil, model.NewNotFoundError("Social account", string(platform))
	}

	existing.IsConnected = false
	existing.AccessToken = ""
	existing.RefreshToken = ""
	existing.ExpiresAt = nil

	updated, err := s.accounts.Update(ctx, existing)
	if err != nil {
		return nil, fmt.Errorf("連携の解除に失敗しました: %w", err)
	}
	return updated, nil
}
