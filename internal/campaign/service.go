// Package campaign はメールキャンペーンの下書き管理と送信（ステータス更新）を提供する。
package campaign

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	goldmarkHTML "github.com/yuin/goldmark/renderer/html"

	"github.com/hitoshi/socialburst/internal/model"
	"github.com/hitoshi/socialburst/internal/repository"
)

// HTMLSanitizer はプレビューHTMLの無害化インターフェース。security.ContentSanitizerServiceが実装する。
type HTMLSanitizer interface {
	SanitizeHTML(rawHTML string) string
}

// Input はキャンペーンの作成・更新の入力。
type Input struct {
	Name            string
	Subject         string
	Content         string // Markdown
	ScheduledFor    *time.Time
	RecipientListID string
}

// Service はメールキャンペーンのサービス層。
type Service struct {
	campaigns   repository.CampaignRepository
	lists       repository.EmailListRepository
	subscribers repository.SubscriberRepository
	sanitizer   HTMLSanitizer
	markdown    goldmark.Markdown
	now         func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	campaigns repository.CampaignRepository,
	lists repository.EmailListRepository,
	subscribers repository.SubscriberRepository,
	sanitizer HTMLSanitizer,
) *Service {
	return &Service{
		campaigns:   campaigns,
		lists:       lists,
		subscribers: subscribers,
		sanitizer:   sanitizer,
		markdown: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(goldmarkHTML.WithHardWraps()),
		),
		now: time.Now,
	}
}

// Create はキャンペーンを下書きとして作成する。
func (s *Service) Create(ctx context.Context, userID string, in Input) (*model.EmailCampaign, error) {
	c := &model.EmailCampaign{UserID: userID}
	if err := s.apply(ctx, c, in); err != nil {
		return nil, err
	}

	created, err := s.campaigns.Create(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("キャンペーンの作成に失敗しました: %w", err)
	}

	slog.Info("キャンペーンを作成しました",
		slog.String("user_id", userID),
		slog.String("campaign_id", created.ID),
	)
	return created, nil
}

// Update は下書きのキャンペーンを更新する。送信済みのキャンペーンは変更できない。
func (s *Service) Update(ctx context.Context, userID, id string, in Input) (*model.EmailCampaign, error) {
	c, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if c.Status == model.CampaignStatusSent {
		return nil, model.NewCampaignAlreadySentError()
	}
	if err := s.apply(ctx, c, in); err != nil {
		return nil, err
	}

	updated, err := s.campaigns.Update(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("キャンペーンの更新に失敗しました: %w", err)
	}
	if updated == nil {
		return nil, model.NewNotFoundError("Campaign", id)
	}
	return updated, nil
}

func (s *Service) apply(ctx context.Context, c *model.EmailCampaign, in Input) error {
	name := strings.TrimSpace(in.Name)
	subject := strings.TrimSpace(in.Subject)
	content := strings.TrimSpace(in.Content)
	switch {
	case name == "":
		return model.NewValidationError("Campaign name is required.")
	case subject == "":
		return model.NewValidationError("Subject is required.")
	case content == "":
		return model.NewValidationError("Content is required.")
	}

	if in.ScheduledFor != nil && !in.ScheduledFor.After(s.now()) {
		return model.NewValidationError("Scheduled time must be in the future.")
	}

	listID := strings.TrimSpace(in.RecipientListID)
	if listID != "" {
		list, err := s.lists.FindByID(ctx, c.UserID, listID)
		if err != nil {
			return fmt.Errorf("リストの取得に失敗しました: %w", err)
		}
		if list == nil {
			return model.NewNotFoundError("Email list", listID)
		}
	}

	c.Name = name
	c.Subject = subject
	c.Content = content
	c.ScheduledFor = in.ScheduledFor
	c.RecipientListID = listID
	return nil
}

// Get はユーザーのキャンペーンを1件返す。
func (s *Service) Get(ctx context.Context, userID, id string) (*model.EmailCampaign, error) {
	c, err := s.campaigns.FindByID(ctx, userID, id)
	if err != nil {
		return nil, fmt.Errorf("キャンペーンの取得に失敗しました: %w", err)
	}
	if c == nil {
		return nil, model.NewNotFoundError("Campaign", id)
	}
	return c, nil
}

// List はユーザーのキャンペーンを新しい順に返す。
func (s *Service) List(ctx context.Context, userID string) ([]*model.EmailCampaign, error) {
	campaigns, err := s.campaigns.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("キャンペーン一覧の取得に失敗しました: %w", err)
	}
	return campaigns, nil
}

// Delete はキャンペーンを削除する。
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	deleted, err := s.campaigns.Delete(ctx, userID, id)
	if err != nil {
		return fmt.Errorf("キャンペーンの削除に失敗しました: %w", err)
	}
	if !deleted {
		return model.NewNotFoundError("Campaign", id)
	}
	return nil
}

// Send はキャンペーンを送信済みにする。配信は行わず、statusとsent_atを1回の更新で設定する。
// 送信済み、または宛先リストのないキャンペーンは拒否する。
func (s *Service) Send(ctx context.Context, userID, id string) (*model.EmailCampaign, error) {
	c, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if c.Status == model.CampaignStatusSent {
		return nil, model.NewCampaignAlreadySentError()
	}
	if c.RecipientListID == "" {
		return nil, model.NewCampaignNoListError()
	}

	sent, err := s.campaigns.MarkSent(ctx, userID, id, s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("キャンペーンの送信に失敗しました: %w", err)
	}
	if sent == nil {
		// 取得後に他のリクエストが送信済みにしたか、削除した
		if _, err := s.Get(ctx, userID, id); err != nil {
			return nil, err
		}
		return nil, model.NewCampaignAlreadySentError()
	}

	slog.Info("キャンペーンを送信済みにしました",
		slog.String("user_id", userID),
		slog.String("campaign_id", id),
		slog.String("list_id", c.RecipientListID),
	)
	return sent, nil
}

// Preview はMarkdown本文を無害化済みのHTMLに変換する。
func (s *Service) Preview(content string) (string, error) {
	var buf bytes.Buffer
	if err := s.markdown.Convert([]byte(content), &buf); err != nil {
		return "", fmt.Errorf("プレビューの生成に失敗しました: %w", err)
	}
	return s.sanitizer.SanitizeHTML(buf.String()), nil
}

// Stats はメールマーケティング画面の集計値を返す。
// 開封率とクリック率は集計値を持つ送信済みキャンペーンの平均。
func (s *Service) Stats(ctx context.Context, userID string) (*model.EmailStats, error) {
	campaigns, err := s.campaigns.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("キャンペーン一覧の取得に失敗しました: %w", err)
	}
	lists, err := s.lists.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("リスト一覧の取得に失敗しました: %w", err)
	}

	listIDs := make([]string, len(lists))
	for i, l := range lists {
		listIDs[i] = l.ID
	}
	subscribed, err := s.subscribers.CountSubscribed(ctx, listIDs)
	if err != nil {
		return nil, fmt.Errorf("購読者数の取得に失敗しました: %w", err)
	}

	stats := &model.EmailStats{
		TotalSubscribers: subscribed,
		TotalCampaigns:   len(campaigns),
		TotalLists:       len(lists),
	}

	var n int
	for _, c := range campaigns {
		if c.Status != model.CampaignStatusSent || c.Stats == nil {
			continue
		}
		stats.OpenRate += c.Stats.OpenRate
		stats.ClickRate += c.Stats.ClickRate
		n++
	}
	if n > 0 {
		stats.OpenRate /= float64(n)
		stats.ClickRate /= float64(n)
	}
	return stats, nil
}
