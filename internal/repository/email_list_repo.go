package repository

import (
	"context"
	"fmt"

	"github.com/hitoshi/socialburst/internal/datastore"
	"github.com/hitoshi/socialburst/internal/model"
)

// StoreEmailListRepo はdatastore.Storeを使用した購読者リストリポジトリ。
type StoreEmailListRepo struct {
	store datastore.Store
}

// NewStoreEmailListRepo はStoreEmailListRepoを生成する。
func NewStoreEmailListRepo(store datastore.Store) *StoreEmailListRepo {
	return &StoreEmailListRepo{store: store}
}

// FindByID はユーザーが所有するリストを取得する。見つからない場合はnilを返す。
func (r *StoreEmailListRepo) FindByID(ctx context.Context, userID, id string) (*model.EmailList, error) {
	if !validID(id) {
		return nil, nil
	}
	recs, err := r.store.Select(ctx, datastore.Query{
		Table:   datastore.TableEmailLists,
		Filters: owned(userID, id),
		Limit:   1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to find email list: %w", err)
	}
	if rec := first(recs); rec != nil {
		return toEmailList(rec), nil
	}
	return nil, nil
}

// ListByUserID はユーザーのリストを新しい順に返す。
func (r *StoreEmailListRepo) ListByUserID(ctx context.Context, userID string) ([]*model.EmailList, error) {
	recs, err := r.store.Select(ctx, datastore.Query{
		Table:   datastore.TableEmailLists,
		Filters: []datastore.Filter{datastore.Eq("user_id", userID)},
		Order:   []datastore.Order{{Column: "created_at", Desc: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list email lists: %w", err)
	}
	lists := make([]*model.EmailList, 0, len(recs))
	for _, rec := range recs {
		lists = append(lists, toEmailList(rec))
	}
	return lists, nil
}

// Create はリストを作成する。
func (r *StoreEmailListRepo) Create(ctx context.Context, list *model.EmailList) (*model.EmailList, error) {
	recs, err := r.store.Insert(ctx, datastore.TableEmailLists, []datastore.Record{{
		"user_id":     list.UserID,
		"name":        list.Name,
		"description": list.Description,
	}})
	if err != nil {
		return nil, fmt.Errorf("failed to create email list: %w", err)
	}
	return toEmailList(recs[0]), nil
}

// SetSubscriberCount は購読者数を更新する。
func (r *StoreEmailListRepo) SetSubscriberCount(ctx context.Context, userID, id string, count int) error {
	if _, err := r.store.Update(ctx, datastore.TableEmailLists,
		datastore.Record{"subscriber_count": count},
		owned(userID, id)...,
	); err != nil {
		return fmt.Errorf("failed to update subscriber count: %w", err)
	}
	return nil
}

// Delete はユーザーが所有するリストを削除する。
func (r *StoreEmailListRepo) Delete(ctx context.Context, userID, id string) (bool, error) {
	if !validID(id) {
		return false, nil
	}
	n, err := r.store.Delete(ctx, datastore.TableEmailLists, owned(userID, id)...)
	if err != nil {
		return false, fmt.Errorf("failed to delete email list: %w", err)
	}
	return n > 0, nil
}

// CountByUserID はユーザーのリスト数を返す。
func (r *StoreEmailListRepo) CountByUserID(ctx context.Context, userID string) (int, error) {
	n, err := r.store.Count(ctx, datastore.TableEmailLists, datastore.Eq("user_id", userID))
	if err != nil {
		return 0, fmt.Errorf("failed to count email lists: %w", err)
	}
	return n, nil
}

// DeleteByUserID はユーザーの全リストを削除する。購読者はCASCADE削除される。
func (r *StoreEmailListRepo) DeleteByUserID(ctx context.Context, userID string) error {
	if _, err := r.store.Delete(ctx, datastore.TableEmailLists, datastore.Eq("user_id", userID)); err != nil {
		return fmt.Errorf("failed to delete email lists: %w", err)
	}
	return nil
}

var _ EmailListRepository = (*StoreEmailListRepo)(nil)

// StoreSubscriberRepo はdatastore.Storeを使用した購読者リポジトリ。
type StoreSubscriberRepo struct {
	store datastore.Store
}

// NewStoreSubscriberRepo はStoreSubscriberRepoを生成する。
func NewStoreSubscriberRepo(store datastore.Store) *StoreSubscriberRepo {
	return &StoreSubscriberRepo{store: store}
}

// ListByListID はリストの購読者を登録順に返す。
func (r *StoreSubscriberRepo) ListByListID(ctx context.Context, listID string) ([]*model.Subscriber, error) {
	recs, err := r.store.Select(ctx, datastore.Query{
		Table:   datastore.TableSubscribers,
		Filters: []datastore.Filter{datastore.Eq("list_id", listID)},
		Order:   []datastore.Order{{Column: "created_at"}, {Column: "email"}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list subscribers: %w", err)
	}
	subs := make([]*model.Subscriber, 0, len(recs))
	for _, rec := range recs {
		subs = append(subs, toSubscriber(rec))
	}
	return subs, nil
}

// FindByID はリスト内の購読者を取得する。見つからない場合はnilを返す。
func (r *StoreSubscriberRepo) FindByID(ctx context.Context, listID, id string) (*model.Subscriber, error) {
	if !validID(id) {
		return nil, nil
	}
	recs, err := r.store.Select(ctx, datastore.Query{
		Table:   datastore.TableSubscribers,
		Filters: []datastore.Filter{datastore.Eq("id", id), datastore.Eq("list_id", listID)},
		Limit:   1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to find subscriber: %w", err)
	}
	if rec := first(recs); rec != nil {
		return toSubscriber(rec), nil
	}
	return nil, nil
}

// ExistingEmails はリスト内に既に存在するメールアドレスの集合を返す。
func (r *StoreSubscriberRepo) ExistingEmails(ctx context.Context, listID string, emails []string) (map[string]bool, error) {
	existing := make(map[string]bool)
	if len(emails) == 0 {
		return existing, nil
	}
	recs, err := r.store.Select(ctx, datastore.Query{
		Table: datastore.TableSubscribers,
		Filters: []datastore.Filter{
			datastore.Eq("list_id", listID),
			datastore.In("email", emails),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to find existing subscribers: %w", err)
	}
	for _, rec := range recs {
		existing[rec.String("email")] = true
	}
	return existing, nil
}

// CreateBatch は購読者をまとめて作成し、作成件数を返す。
func (r *StoreSubscriberRepo) CreateBatch(ctx context.Context, subscribers []*model.Subscriber) (int, error) {
	if len(subscribers) == 0 {
		return 0, nil
	}
	recs := make([]datastore.Record, len(subscribers))
	for i, s := range subscribers {
		recs[i] = datastore.Record{
			"list_id":    s.ListID,
			"email":      s.Email,
			"first_name": s.FirstName,
			"last_name":  s.LastName,
			"status":     string(model.SubscriberStatusSubscribed),
		}
	}
	created, err := r.store.Insert(ctx, datastore.TableSubscribers, recs)
	if err != nil {
		return 0, fmt.Errorf("failed to create subscribers: %w", err)
	}
	return len(created), nil
}

// UpdateStatus は購読者のステータスを更新する。
func (r *StoreSubscriberRepo) UpdateStatus(ctx context.Context, listID, id string, status model.SubscriberStatus) (*model.Subscriber, error) {
	if !validID(id) {
		return nil, nil
	}
	recs, err := r.store.Update(ctx, datastore.TableSubscribers,
		datastore.Record{"status": string(status)},
		datastore.Eq("id", id), datastore.Eq("list_id", listID),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update subscriber: %w", err)
	}
	if rec := first(recs); rec != nil {
		return toSubscriber(rec), nil
	}
	return nil, nil
}

// CountByListID はリストの購読者数（ステータスを問わない）を返す。
func (r *StoreSubscriberRepo) CountByListID(ctx context.Context, listID string) (int, error) {
	n, err := r.store.Count(ctx, datastore.TableSubscribers, datastore.Eq("list_id", listID))
	if err != nil {
		return 0, fmt.Errorf("failed to count subscribers: %w", err)
	}
	return n, nil
}

// CountSubscribed はリスト群に属する購読中の購読者数を返す。
func (r *StoreSubscriberRepo) CountSubscribed(ctx context.Context, listIDs []string) (int, error) {
	if len(listIDs) == 0 {
		return 0, nil
	}
	n, err := r.store.Count(ctx, datastore.TableSubscribers,
		datastore.In("list_id", listIDs),
		datastore.Eq("status", string(model.SubscriberStatusSubscribed)),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to count subscribers: %w", err)
	}
	return n, nil
}

var _ SubscriberRepository = (*StoreSubscriberRepo)(nil)
