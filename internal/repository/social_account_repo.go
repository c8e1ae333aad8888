package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/hitoshi/socialburst/internal/datastore"
	"github.com/hitoshi/socialburst/internal/model"
)

// StoreSocialAccountRepo はdatastore.Storeを使用したSNSアカウントリポジトリ。
type StoreSocialAccountRepo struct {
	store datastore.Store
	now   func() time.Time
}

// NewStoreSocialAccountRepo はStoreSocialAccountRepoを生成する。
func NewStoreSocialAccountRepo(store datastore.Store) *StoreSocialAccountRepo {
	return &StoreSocialAccountRepo{store: store, now: time.Now}
}

// ListByUserID はユーザーの連携アカウントをプラットフォーム名順に返す。
func (r *StoreSocialAccountRepo) ListByUserID(ctx context.Context, userID string) ([]*model.SocialAccount, error) {
	recs, err := r.store.Select(ctx, datastore.Query{
		Table:   datastore.TableSocialAccounts,
		Filters: []datastore.Filter{datastore.Eq("user_id", userID)},
		Order:   []datastore.Order{{Column: "platform"}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list social accounts: %w", err)
	}
	accounts := make([]*model.SocialAccount, 0, len(recs))
	for _, rec := range recs {
		accounts = append(accounts, toSocialAccount(rec))
	}
	return accounts, nil
}

// FindByUserAndPlatform はユーザーとプラットフォームで連携アカウントを取得する。
// 見つからない場合はnilを返す。
func (r *StoreSocialAccountRepo) FindByUserAndPlatform(ctx context.Context, userID string, platform model.Platform) (*model.SocialAccount, error) {
	recs, err := r.store.Select(ctx, datastore.Query{
		Table: datastore.TableSocialAccounts,
		Filters: []datastore.Filter{
			datastore.Eq("user_id", userID),
			datastore.Eq("platform", string(platform)),
		},
		Limit: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to find social account: %w", err)
	}
	if rec := first(recs); rec != nil {
		return toSocialAccount(rec), nil
	}
	return nil, nil
}

func socialAccountRecord(a *model.SocialAccount) datastore.Record {
	return datastore.Record{
		"account_name":  a.AccountName,
		"access_token":  a.AccessToken,
		"refresh_token": a.RefreshToken,
		"expires_at":    a.ExpiresAt,
		"is_connected":  a.IsConnected,
	}
}

// Create は連携アカウントを作成する。
func (r *StoreSocialAccountRepo) Create(ctx context.Context, account *model.SocialAccount) (*model.SocialAccount, error) {
	rec := socialAccountRecord(account)
	rec["user_id"] = account.UserID
	rec["platform"] = string(account.Platform)
	recs, err := r.store.Insert(ctx, datastore.TableSocialAccounts, []datastore.Record{rec})
	if err != nil {
		return nil, fmt.Errorf("failed to create social account: %w", err)
	}
	return toSocialAccount(recs[0]), nil
}

// Update は連携アカウントを更新する。
func (r *StoreSocialAccountRepo) Update(ctx context.Context, account *model.SocialAccount) (*model.SocialAccount, error) {
	rec := socialAccountRecord(account)
	rec["updated_at"] = r.now()
	recs, err := r.store.Update(ctx, datastore.TableSocialAccounts, rec,
		datastore.Eq("id", account.ID),
		datastore.Eq("user_id", account.UserID),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update social account: %w", err)
	}
	if rec := first(recs); rec != nil {
		return toSocialAccount(rec), nil
	}
	return nil, nil
}

// DeleteByUserID はユーザーの全連携アカウントを削除する。
func (r *StoreSocialAccountRepo) DeleteByUserID(ctx context.Context, userID string) error {
	if _, err := r.store.Delete(ctx, datastore.TableSocialAccounts, datastore.Eq("user_id", userID)); err != nil {
		return fmt.Errorf("failed to delete social accounts: %w", err)
	}
	return nil
}

var _ SocialAccountRepository = (*StoreSocialAccountRepo)(nil)
