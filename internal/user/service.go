// Package user はユーザー管理のドメインロジックを提供する。
package user

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/socialburst/internal/auth"
	"github.com/hitoshi/socialburst/internal/model"
	"github.com/hitoshi/socialburst/internal/repository"
)

// OwnedDataDeleter はユーザーが所有する行の一括削除インターフェース。
type OwnedDataDeleter interface {
	DeleteByUserID(ctx context.Context, userID string) error
}

// Deleters は退会時に削除するコレクション。nilのフィールドは読み飛ばす。
type Deleters struct {
	Posts          OwnedDataDeleter
	Campaigns      OwnedDataDeleter
	EmailLists     OwnedDataDeleter
	SocialAccounts OwnedDataDeleter
}

// Service はユーザー管理のサービス層。
// 退会処理のビジネスロジックを提供する。
type Service struct {
	profiles repository.ProfileRepository
	accounts auth.AccountRemover
	deleters Deleters
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	profiles repository.ProfileRepository,
	accounts auth.AccountRemover,
	deleters Deleters,
) *Service {
	return &Service{
		profiles: profiles,
		accounts: accounts,
		deleters: deleters,
	}
}

// Withdraw はユーザーの退会処理を実行する。
// 削除順序: posts → email_campaigns → email_lists（+ CASCADE: subscribers）
// → social_accounts → profile → 認証プロバイダーのアカウントとセッション
func (s *Service) Withdraw(ctx context.Context, userID string) error {
	// ユーザー存在確認
	profile, err := s.profiles.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("プロフィールの取得に失敗しました: %w", err)
	}
	if profile == nil {
		return model.NewUserNotFoundError()
	}

	slog.Info("退会処理を開始します",
		slog.String("user_id", userID),
	)

	steps := []struct {
		name    string
		deleter OwnedDataDeleter
	}{
		{"投稿", s.deleters.Posts},
		{"キャンペーン", s.deleters.Campaigns},
		{"購読者リスト", s.deleters.EmailLists},
		{"連携アカウント", s.deleters.SocialAccounts},
	}
	for _, step := range steps {
		if step.deleter == nil {
			continue
		}
		if err := step.deleter.DeleteByUserID(ctx, userID); err != nil {
			return fmt.Errorf("%sの削除に失敗しました: %w", step.name, err)
		}
	}

	if err := s.profiles.DeleteByID(ctx, userID); err != nil {
		return fmt.Errorf("プロフィールの削除に失敗しました: %w", err)
	}

	// セッションとアカウントを削除（発行済みのトークンは以降のGetSessionで拒否される）
	if err := s.accounts.DeleteAccount(ctx, userID); err != nil {
		return fmt.Errorf("アカウントの削除に失敗しました: %w", err)
	}

	slog.Info("退会処理が完了しました",
		slog.String("user_id", userID),
	)

	return nil
}
