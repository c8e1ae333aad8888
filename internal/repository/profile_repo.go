package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hitoshi/socialburst/internal/datastore"
	"github.com/hitoshi/socialburst/internal/model"
)

// StoreProfileRepo はdatastore.Storeを使用したプロフィールリポジトリ。
type StoreProfileRepo struct {
	store datastore.Store
	now   func() time.Time
}

// NewStoreProfileRepo はStoreProfileRepoを生成する。
func NewStoreProfileRepo(store datastore.Store) *StoreProfileRepo {
	return &StoreProfileRepo{store: store, now: time.Now}
}

// FindByID は指定IDのプロフィールを取得する。見つからない場合はnilを返す。
func (r *StoreProfileRepo) FindByID(ctx context.Context, id string) (*model.Profile, error) {
	if !validID(id) {
		return nil, nil
	}
	recs, err := r.store.Select(ctx, datastore.Query{
		Table:   datastore.TableProfiles,
		Filters: []datastore.Filter{datastore.Eq("id", id)},
		Limit:   1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to find profile: %w", err)
	}
	if rec := first(recs); rec != nil {
		return toProfile(rec)
	}
	return nil, nil
}

// Create はプロフィールを作成する。
func (r *StoreProfileRepo) Create(ctx context.Context, profile *model.Profile) (*model.Profile, error) {
	prefs, err := json.Marshal(profile.Preferences)
	if err != nil {
		return nil, fmt.Errorf("failed to encode preferences: %w", err)
	}
	recs, err := r.store.Insert(ctx, datastore.TableProfiles, []datastore.Record{{
		"id":          profile.ID,
		"email":       profile.Email,
		"name":        profile.Name,
		"avatar_url":  profile.AvatarURL,
		"theme":       string(profile.Theme),
		"preferences": json.RawMessage(prefs),
	}})
	if err != nil {
		return nil, fmt.Errorf("failed to create profile: %w", err)
	}
	return toProfile(recs[0])
}

// Update はプロフィールを更新する。
func (r *StoreProfileRepo) Update(ctx context.Context, profile *model.Profile) (*model.Profile, error) {
	prefs, err := json.Marshal(profile.Preferences)
	if err != nil {
		return nil, fmt.Errorf("failed to encode preferences: %w", err)
	}
	recs, err := r.store.Update(ctx, datastore.TableProfiles, datastore.Record{
		"name":        profile.Name,
		"avatar_url":  profile.AvatarURL,
		"theme":       string(profile.Theme),
		"preferences": json.RawMessage(prefs),
		"updated_at":  r.now(),
	}, datastore.Eq("id", profile.ID))
	if err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	if rec := first(recs); rec != nil {
		return toProfile(rec)
	}
	return nil, nil
}

// DeleteByID はプロフィールを削除する。
func (r *StoreProfileRepo) DeleteByID(ctx context.Context, id string) error {
	if _, err := r.store.Delete(ctx, datastore.TableProfiles, datastore.Eq("id", id)); err != nil {
		return fmt.Errorf("failed to delete profile: %w", err)
	}
	return nil
}

var _ ProfileRepository = (*StoreProfileRepo)(nil)
