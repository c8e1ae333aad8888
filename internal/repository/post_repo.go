package repository

import (
	"context"
	"fmt"

	"github.com/hitoshi/socialburst/internal/datastore"
	"github.com/hitoshi/socialburst/internal/model"
)

// StorePostRepo はdatastore.Storeを使用した投稿リポジトリ。
type StorePostRepo struct {
	store datastore.Store
}

// NewStorePostRepo はStorePostRepoを生成する。
func NewStorePostRepo(store datastore.Store) *StorePostRepo {
	return &StorePostRepo{store: store}
}

func owned(userID, id string) []datastore.Filter {
	return []datastore.Filter{datastore.Eq("id", id), datastore.Eq("user_id", userID)}
}

func platformStrings(ps []model.Platform) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = string(p)
	}
	return out
}

// FindByID はユーザーが所有する投稿を取得する。見つからない場合はnilを返す。
func (r *StorePostRepo) FindByID(ctx context.Context, userID, id string) (*model.Post, error) {
	if !validID(id) {
		return nil, nil
	}
	recs, err := r.store.Select(ctx, datastore.Query{
		Table:   datastore.TablePosts,
		Filters: owned(userID, id),
		Limit:   1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to find post: %w", err)
	}
	if rec := first(recs); rec != nil {
		return toPost(rec), nil
	}
	return nil, nil
}

// List はユーザーの投稿を予定日時の昇順で返す。
// 予定日時のない下書きは末尾に並ぶ。
func (r *StorePostRepo) List(ctx context.Context, userID string, filter PostFilter) ([]*model.Post, error) {
	filters := []datastore.Filter{datastore.Eq("user_id", userID)}
	if filter.Status != nil {
		filters = append(filters, datastore.Eq("status", string(*filter.Status)))
	}
	if filter.From != nil {
		filters = append(filters, datastore.Gte("scheduled_for", *filter.From))
	}
	if filter.To != nil {
		filters = append(filters, datastore.Lt("scheduled_for", *filter.To))
	}

	recs, err := r.store.Select(ctx, datastore.Query{
		Table:   datastore.TablePosts,
		Filters: filters,
		Order: []datastore.Order{
			{Column: "scheduled_for"},
			{Column: "created_at", Desc: true},
		},
		Limit: filter.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}
	posts := make([]*model.Post, 0, len(recs))
	for _, rec := range recs {
		posts = append(posts, toPost(rec))
	}
	return posts, nil
}

// Create は投稿を作成する。
func (r *StorePostRepo) Create(ctx context.Context, post *model.Post) (*model.Post, error) {
	recs, err := r.store.Insert(ctx, datastore.TablePosts, []datastore.Record{{
		"user_id":       post.UserID,
		"content":       post.Content,
		"image_url":     post.ImageURL,
		"scheduled_for": post.ScheduledFor,
		"status":        string(post.Status),
		"platforms":     platformStrings(post.Platforms),
		"performance":   post.Performance,
	}})
	if err != nil {
		return nil, fmt.Errorf("failed to create post: %w", err)
	}
	return toPost(recs[0]), nil
}

// Update は投稿の内容、画像、予定日時、ステータス、投稿先を更新する。
func (r *StorePostRepo) Update(ctx context.Context, post *model.Post) (*model.Post, error) {
	recs, err := r.store.Update(ctx, datastore.TablePosts, datastore.Record{
		"content":       post.Content,
		"image_url":     post.ImageURL,
		"scheduled_for": post.ScheduledFor,
		"status":        string(post.Status),
		"platforms":     platformStrings(post.Platforms),
	}, owned(post.UserID, post.ID)...)
	if err != nil {
		return nil, fmt.Errorf("failed to update post: %w", err)
	}
	if rec := first(recs); rec != nil {
		return toPost(rec), nil
	}
	return nil, nil
}

// UpdateStatus は投稿のステータスのみを更新する。
func (r *StorePostRepo) UpdateStatus(ctx context.Context, userID, id string, status model.PostStatus) (*model.Post, error) {
	if !validID(id) {
		return nil, nil
	}
	recs, err := r.store.Update(ctx, datastore.TablePosts,
		datastore.Record{"status": string(status)},
		owned(userID, id)...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update post status: %w", err)
	}
	if rec := first(recs); rec != nil {
		return toPost(rec), nil
	}
	return nil, nil
}

// Delete はユーザーが所有する投稿を削除する。削除した場合はtrueを返す。
func (r *StorePostRepo) Delete(ctx context.Context, userID, id string) (bool, error) {
	if !validID(id) {
		return false, nil
	}
	n, err := r.store.Delete(ctx, datastore.TablePosts, owned(userID, id)...)
	if err != nil {
		return false, fmt.Errorf("failed to delete post: %w", err)
	}
	return n > 0, nil
}

// CountByStatus はステータスごとの投稿数を返す。
func (r *StorePostRepo) CountByStatus(ctx context.Context, userID string, status model.PostStatus) (int, error) {
	n, err := r.store.Count(ctx, datastore.TablePosts,
		datastore.Eq("user_id", userID),
		datastore.Eq("status", string(status)),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to count posts: %w", err)
	}
	return n, nil
}

// DeleteByUserID はユーザーの全投稿を削除する。
func (r *StorePostRepo) DeleteByUserID(ctx context.Context, userID string) error {
	if _, err := r.store.Delete(ctx, datastore.TablePosts, datastore.Eq("user_id", userID)); err != nil {
		return fmt.Errorf("failed to delete posts: %w", err)
	}
	return nil
}

var _ PostRepository = (*StorePostRepo)(nil)
