// Package repository はデータ永続化のインターフェースを定義する。
// 認証用のusers/sessionsはPostgreSQLに直接アクセスし、
// アプリケーションデータはdatastore.Storeのレコードを型付きエンティティに変換する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/socialburst/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレス（大文字小文字を区別しない）でユーザーを取得する。
	// 見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// Create はユーザーを作成する。メールアドレスが重複する場合はErrDuplicateEmailを返す。
	Create(ctx context.Context, user *model.User) error

	// DeleteByID は指定IDのユーザーを削除する。sessionsはCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error
}

// SessionRepository はLocalProviderのセッションの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.SessionRecord) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.SessionRecord, error)
	// FindByRefreshTokenHash はリフレッシュトークンのハッシュでセッションを取得する。
	// 期限切れの場合はnilを返す。
	FindByRefreshTokenHash(ctx context.Context, hash string) (*model.SessionRecord, error)
	// Rotate はリフレッシュトークンのハッシュと有効期限を更新する。
	// oldHashが一致しない場合（同時更新で既にローテート済み）はfalseを返す。
	Rotate(ctx context.Context, id, oldHash, newHash string, expiresAt time.Time) (bool, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
}

// ProfileRepository はプロフィールの永続化インターフェース。
type ProfileRepository interface {
	FindByID(ctx context.Context, id string) (*model.Profile, error)
	Create(ctx context.Context, profile *model.Profile) (*model.Profile, error)
	// Update はname、avatar_url、theme、preferencesを更新する。
	Update(ctx context.Context, profile *model.Profile) (*model.Profile, error)
	DeleteByID(ctx context.Context, id string) error
}

// SocialAccountRepository はSNSアカウント連携の永続化インターフェース。
type SocialAccountRepository interface {
	ListByUserID(ctx context.Context, userID string) ([]*model.SocialAccount, error)
	FindByUserAndPlatform(ctx context.Context, userID string, platform model.Platform) (*model.SocialAccount, error)
	Create(ctx context.Context, account *model.SocialAccount) (*model.SocialAccount, error)
	Update(ctx context.Context, account *model.SocialAccount) (*model.SocialAccount, error)
	DeleteByUserID(ctx context.Context, userID string) error
}

// PostFilter は投稿一覧の絞り込み条件。
type PostFilter struct {
	Status *model.PostStatus
	From   *time.Time // scheduled_for >= From
	To     *time.Time // scheduled_for < To
	Limit  int
}

// PostRepository は投稿の永続化インターフェース。
// すべての操作はuserIDで所有者を限定する。
type PostRepository interface {
	FindByID(ctx context.Context, userID, id string) (*model.Post, error)
	List(ctx context.Context, userID string, filter PostFilter) ([]*model.Post, error)
	Create(ctx context.Context, post *model.Post) (*model.Post, error)
	Update(ctx context.Context, post *model.Post) (*model.Post, error)
	UpdateStatus(ctx context.Context, userID, id string, status model.PostStatus) (*model.Post, error)
	Delete(ctx context.Context, userID, id string) (bool, error)
	CountByStatus(ctx context.Context, userID string, status model.PostStatus) (int, error)
	DeleteByUserID(ctx context.Context, userID string) error
}

// CampaignRepository はメールキャンペーンの永続化インターフェース。
type CampaignRepository interface {
	FindByID(ctx context.Context, userID, id string) (*model.EmailCampaign, error)
	// ListByUserID は作成日時の新しい順に返す。
	ListByUserID(ctx context.Context, userID string) ([]*model.EmailCampaign, error)
	Create(ctx context.Context, campaign *model.EmailCampaign) (*model.EmailCampaign, error)
	Update(ctx context.Context, campaign *model.EmailCampaign) (*model.EmailCampaign, error)
	// MarkSent はstatusがdraftの行だけを対象に、statusをsentに、sent_atを指定時刻に
	// 1回の更新で設定する。対象が無ければnilを返す。
	MarkSent(ctx context.Context, userID, id string, sentAt time.Time) (*model.EmailCampaign, error)
	Delete(ctx context.Context, userID, id string) (bool, error)
	CountByUserID(ctx context.Context, userID string) (int, error)
	DeleteByUserID(ctx context.Context, userID string) error
}

// EmailListRepository は購読者リストの永続化インターフェース。
type EmailListRepository interface {
	FindByID(ctx context.Context, userID, id string) (*model.EmailList, error)
	ListByUserID(ctx context.Context, userID string) ([]*model.EmailList, error)
	Create(ctx context.Context, list *model.EmailList) (*model.EmailList, error)
	// SetSubscriberCount はsubscriber_countを更新する。
	SetSubscriberCount(ctx context.Context, userID, id string, count int) error
	// Delete はリストを削除する。購読者はCASCADE削除される。
	Delete(ctx context.Context, userID, id string) (bool, error)
	CountByUserID(ctx context.Context, userID string) (int, error)
	DeleteByUserID(ctx context.Context, userID string) error
}

// SubscriberRepository は購読者の永続化インターフェース。
// 所有者の確認はリスト単位で呼び出し側が行う。
type SubscriberRepository interface {
	ListByListID(ctx context.Context, listID string) ([]*model.Subscriber, error)
	FindByID(ctx context.Context, listID, id string) (*model.Subscriber, error)
	// ExistingEmails はリスト内に既に存在するメールアドレスの集合を返す。
	ExistingEmails(ctx context.Context, listID string, emails []string) (map[string]bool, error)
	CreateBatch(ctx context.Context, subscribers []*model.Subscriber) (int, error)
	UpdateStatus(ctx context.Context, listID, id string, status model.SubscriberStatus) (*model.Subscriber, error)
	CountByListID(ctx context.Context, listID string) (int, error)
	// CountSubscribed はリスト群に属する購読中の購読者数を返す。
	CountSubscribed(ctx context.Context, listIDs []string) (int, error)
}
