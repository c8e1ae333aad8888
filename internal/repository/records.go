package repository

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/hitoshi/socialburst/internal/datastore"
	"github.com/hitoshi/socialburst/internal/model"
)

// validID はIDがUUID形式かどうかを返す。
// 形式不正のIDはストアに問い合わせずに未検出として扱う。
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func first(recs []datastore.Record) datastore.Record {
	if len(recs) == 0 {
		return nil
	}
	return recs[0]
}

func toProfile(r datastore.Record) (*model.Profile, error) {
	p := &model.Profile{
		ID:        r.String("id"),
		Email:     r.String("email"),
		Name:      r.String("name"),
		AvatarURL: r.String("avatar_url"),
		Theme:     model.Theme(r.String("theme")),
		CreatedAt: r.Time("created_at"),
		UpdatedAt: r.Time("updated_at"),
	}
	p.Preferences = model.DefaultDashboardPreferences()
	if raw := r.JSON("preferences"); len(raw) > 0 {
		var stored model.DashboardPreferences
		if err := json.Unmarshal(raw, &stored); err != nil {
			return nil, fmt.Errorf("failed to decode preferences for profile %s: %w", p.ID, err)
		}
		for k, v := range stored.Platforms {
			p.Preferences.Platforms[k] = v
		}
		for k, v := range stored.Widgets {
			p.Preferences.Widgets[k] = v
		}
	}
	if !p.Theme.Valid() {
		p.Theme = model.ThemeSystem
	}
	return p, nil
}

func toSocialAccount(r datastore.Record) *model.SocialAccount {
	return &model.SocialAccount{
		ID:           r.String("id"),
		UserID:       r.String("user_id"),
		Platform:     model.Platform(r.String("platform")),
		AccountName:  r.String("account_name"),
		AccessToken:  r.String("access_token"),
		RefreshToken: r.String("refresh_token"),
		ExpiresAt:    r.TimePtr("expires_at"),
		IsConnected:  r.Bool("is_connected"),
		CreatedAt:    r.Time("created_at"),
		UpdatedAt:    r.Time("updated_at"),
	}
}

func toPost(r datastore.Record) *model.Post {
	platforms := make([]model.Platform, 0, len(r.Strings("platforms")))
	for _, p := range r.Strings("platforms") {
		platforms = append(platforms, model.Platform(p))
	}
	status := model.PostStatus(r.String("status"))
	if !status.Valid() {
		status = model.PostStatusDraft
	}
	return &model.Post{
		ID:           r.String("id"),
		UserID:       r.String("user_id"),
		Content:      r.String("content"),
		ImageURL:     r.String("image_url"),
		ScheduledFor: r.TimePtr("scheduled_for"),
		Status:       status,
		Platforms:    platforms,
		Performance:  r.JSON("performance"),
		CreatedAt:    r.Time("created_at"),
	}
}

func toCampaign(r datastore.Record) (*model.EmailCampaign, error) {
	c := &model.EmailCampaign{
		ID:              r.String("id"),
		UserID:          r.String("user_id"),
		Name:            r.String("name"),
		Subject:         r.String("subject"),
		Content:         r.String("content"),
		Status:          model.CampaignStatus(r.String("status")),
		ScheduledFor:    r.TimePtr("scheduled_for"),
		SentAt:          r.TimePtr("sent_at"),
		RecipientListID: r.String("recipient_list_id"),
		CreatedAt:       r.Time("created_at"),
	}
	if c.Status != model.CampaignStatusSent {
		c.Status = model.CampaignStatusDraft
	}
	if raw := r.JSON("stats"); len(raw) > 0 && string(raw) != "null" {
		var stats model.CampaignStats
		if err := json.Unmarshal(raw, &stats); err != nil {
			return nil, fmt.Errorf("failed to decode stats for campaign %s: %w", c.ID, err)
		}
		c.Stats = &stats
	}
	return c, nil
}

func toEmailList(r datastore.Record) *model.EmailList {
	return &model.EmailList{
		ID:              r.String("id"),
		UserID:          r.String("user_id"),
		Name:            r.String("name"),
		Description:     r.String("description"),
		SubscriberCount: r.Int("subscriber_count"),
		CreatedAt:       r.Time("created_at"),
	}
}

func toSubscriber(r datastore.Record) *model.Subscriber {
	status := model.SubscriberStatus(r.String("status"))
	if status != model.SubscriberStatusUnsubscribed {
		status = model.SubscriberStatusSubscribed
	}
	return &model.Subscriber{
		ID:        r.String("id"),
		ListID:    r.String("list_id"),
		Email:     r.String("email"),
		FirstName: r.String("first_name"),
		LastName:  r.String("last_name"),
		Status:    status,
		Metadata:  r.JSON("metadata"),
		CreatedAt: r.Time("created_at"),
	}
}
