package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hitoshi/socialburst/internal/datastore"
	"github.com/hitoshi/socialburst/internal/model"
)

// StoreCampaignRepo はdatastore.Storeを使用したメールキャンペーンリポジトリ。
type StoreCampaignRepo struct {
	store datastore.Store
}

// NewStoreCampaignRepo はStoreCampaignRepoを生成する。
func NewStoreCampaignRepo(store datastore.Store) *StoreCampaignRepo {
	return &StoreCampaignRepo{store: store}
}

func campaignRecord(c *model.EmailCampaign) (datastore.Record, error) {
	rec := datastore.Record{
		"name":              c.Name,
		"subject":           c.Subject,
		"content":           c.Content,
		"scheduled_for":     c.ScheduledFor,
		"recipient_list_id": c.RecipientListID,
	}
	if c.Stats != nil {
		b, err := json.Marshal(c.Stats)
		if err != nil {
			return nil, fmt.Errorf("failed to encode campaign stats: %w", err)
		}
		rec["stats"] = json.RawMessage(b)
	}
	return rec, nil
}

func toCampaigns(recs []datastore.Record) ([]*model.EmailCampaign, error) {
	out := make([]*model.EmailCampaign, 0, len(recs))
	for _, rec := range recs {
		c, err := toCampaign(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func firstCampaign(recs []datastore.Record) (*model.EmailCampaign, error) {
	if rec := first(recs); rec != nil {
		return toCampaign(rec)
	}
	return nil, nil
}

// FindByID はユーザーが所有するキャンペーンを取得する。見つからない場合はnilを返す。
func (r *StoreCampaignRepo) FindByID(ctx context.Context, userID, id string) (*model.EmailCampaign, error) {
	if !validID(id) {
		return nil, nil
	}
	recs, err := r.store.Select(ctx, datastore.Query{
		Table:   datastore.TableEmailCampaigns,
		Filters: owned(userID, id),
		Limit:   1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to find campaign: %w", err)
	}
	return firstCampaign(recs)
}

// ListByUserID はユーザーのキャンペーンを新しい順に返す。
func (r *StoreCampaignRepo) ListByUserID(ctx context.Context, userID string) ([]*model.EmailCampaign, error) {
	recs, err := r.store.Select(ctx, datastore.Query{
		Table:   datastore.TableEmailCampaigns,
		Filters: []datastore.Filter{datastore.Eq("user_id", userID)},
		Order:   []datastore.Order{{Column: "created_at", Desc: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list campaigns: %w", err)
	}
	return toCampaigns(recs)
}

// Create はキャンペーンを下書きとして作成する。
func (r *StoreCampaignRepo) Create(ctx context.Context, campaign *model.EmailCampaign) (*model.EmailCampaign, error) {
	rec, err := campaignRecord(campaign)
	if err != nil {
		return nil, err
	}
	rec["user_id"] = campaign.UserID
	rec["status"] = string(model.CampaignStatusDraft)
	recs, err := r.store.Insert(ctx, datastore.TableEmailCampaigns, []datastore.Record{rec})
	if err != nil {
		return nil, fmt.Errorf("failed to create campaign: %w", err)
	}
	return toCampaign(recs[0])
}

// Update はキャンペーンの内容を更新する。ステータスは変更しない。
func (r *StoreCampaignRepo) Update(ctx context.Context, campaign *model.EmailCampaign) (*model.EmailCampaign, error) {
	rec, err := campaignRecord(campaign)
	if err != nil {
		return nil, err
	}
	recs, err := r.store.Update(ctx, datastore.TableEmailCampaigns, rec, owned(campaign.UserID, campaign.ID)...)
	if err != nil {
		return nil, fmt.Errorf("failed to update campaign: %w", err)
	}
	return firstCampaign(recs)
}

// MarkSent は下書きのキャンペーンを送信済みにする。
// 下書きでない、または存在しない場合はnilを返す。
func (r *StoreCampaignRepo) MarkSent(ctx context.Context, userID, id string, sentAt time.Time) (*model.EmailCampaign, error) {
	if !validID(id) {
		return nil, nil
	}
	filters := append(owned(userID, id), datastore.Eq("status", string(model.CampaignStatusDraft)))
	recs, err := r.store.Update(ctx, datastore.TableEmailCampaigns, datastore.Record{
		"status":  string(model.CampaignStatusSent),
		"sent_at": sentAt,
	}, filters...)
	if err != nil {
		return nil, fmt.Errorf("failed to mark campaign sent: %w", err)
	}
	return firstCampaign(recs)
}

// Delete はユーザーが所有するキャンペーンを削除する。
func (r *StoreCampaignRepo) Delete(ctx context.Context, userID, id string) (bool, error) {
	if !validID(id) {
		return false, nil
	}
	n, err := r.store.Delete(ctx, datastore.TableEmailCampaigns, owned(userID, id)...)
	if err != nil {
		return false, fmt.Errorf("failed to delete campaign: %w", err)
	}
	return n > 0, nil
}

// CountByUserID はユーザーのキャンペーン数を返す。
func (r *StoreCampaignRepo) CountByUserID(ctx context.Context, userID string) (int, error) {
	n, err := r.store.Count(ctx, datastore.TableEmailCampaigns, datastore.Eq("user_id", userID))
	if err != nil {
		return 0, fmt.Errorf("failed to count campaigns: %w", err)
	}
	return n, nil
}

// DeleteByUserID はユーザーの全キャンペーンを削除する。
func (r *StoreCampaignRepo) DeleteByUserID(ctx context.Context, userID string) error {
	if _, err := r.store.Delete(ctx, datastore.TableEmailCampaigns, datastore.Eq("user_id", userID)); err != nil {
		return fmt.Errorf("failed to delete campaigns: %w", err)
	}
	return nil
}

var _ CampaignRepository = (*StoreCampaignRepo)(nil)
