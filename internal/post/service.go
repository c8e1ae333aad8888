// Package post はSNS投稿の作成と予約管理のドメインロジックを提供する。
// 実際のプラットフォームへの配信は行わず、公開はステータスの更新で表す。
package post

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/hitoshi/socialburst/internal/model"
	"github.com/hitoshi/socialburst/internal/repository"
)

// MaxContentLength は本文（ハッシュタグを含む）の最大文字数。
const MaxContentLength = 2200

// Sanitizer は本文のHTML除去インターフェース。security.ContentSanitizerServiceが実装する。
type Sanitizer interface {
	StripTags(text string) string
}

// URLValidator は画像URLの検証インターフェース。
type URLValidator interface {
	ValidateImageURL(rawURL string) error
}

// Input は投稿の作成・更新の入力。
type Input struct {
	Content      string
	Hashtags     []string
	ImageURL     string
	ScheduledFor *time.Time
	Platforms    []model.Platform
}

// ListInput は投稿一覧の絞り込み条件。
type ListInput struct {
	Status string // 空の場合は全て
	Month  string // YYYY-MM。指定した場合はその月に予定された投稿のみ
}

// Service は投稿管理のサービス層。
type Service struct {
	repo      repository.PostRepository
	sanitizer Sanitizer
	urls      URLValidator
	now       func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(repo repository.PostRepository, sanitizer Sanitizer, urls URLValidator) *Service {
	return &Service{
		repo:      repo,
		sanitizer: sanitizer,
		urls:      urls,
		now:       time.Now,
	}
}

// Create は投稿を作成する。予定日時があればscheduled、なければdraftとして保存する。
func (s *Service) Create(ctx context.Context, userID string, in Input) (*model.Post, error) {
	p := &model.Post{UserID: userID}
	if err := s.apply(p, in); err != nil {
		return nil, err
	}

	created, err := s.repo.Create(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("投稿の作成に失敗しました: %w", err)
	}

	slog.Info("投稿を作成しました",
		slog.String("user_id", userID),
		slog.String("post_id", created.ID),
		slog.String("status", string(created.Status)),
	)
	return created, nil
}

// Update は投稿の内容を置き換える。公開済みの投稿は変更できない。
func (s *Service) Update(ctx context.Context, userID, id string, in Input) (*model.Post, error) {
	p, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if p.Status == model.PostStatusPublished {
		return nil, model.NewValidationError("Published posts cannot be edited.")
	}
	if err := s.apply(p, in); err != nil {
		return nil, err
	}

	updated, err := s.repo.Update(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("投稿の更新に失敗しました: %w", err)
	}
	if updated == nil {
		return nil, model.NewNotFoundError("Post", id)
	}
	return updated, nil
}

// apply は入力を検証してpに反映する。
func (s *Service) apply(p *model.Post, in Input) error {
	content := s.sanitizer.StripTags(in.Content)
	if content == "" {
		return model.NewValidationError("Post content is required.")
	}

	tags, err := normalizeHashtags(in.Hashtags)
	if err != nil {
		return err
	}
	content = appendHashtags(content, tags)
	if utf8.RuneCountInString(content) > MaxContentLength {
		return model.NewValidationError(fmt.Sprintf("Post content must be at most %d characters.", MaxContentLength))
	}

	platforms, err := validatePlatforms(in.Platforms)
	if err != nil {
		return err
	}

	imageURL := strings.TrimSpace(in.ImageURL)
	if imageURL != "" {
		if err := s.urls.ValidateImageURL(imageURL); err != nil {
			return model.NewInvalidURLError(err.Error())
		}
	}

	status := model.PostStatusDraft
	if in.ScheduledFor != nil {
		if !in.ScheduledFor.After(s.now()) {
			return model.NewValidationError("Scheduled time must be in the future.")
		}
		status = model.PostStatusScheduled
	}

	p.Content = content
	p.ImageURL = imageURL
	p.ScheduledFor = in.ScheduledFor
	p.Platforms = platforms
	p.Status = status
	return nil
}

// Get はユーザーの投稿を1件返す。他ユーザーの投稿は存在しないものとして扱う。
func (s *Service) Get(ctx context.Context, userID, id string) (*model.Post, error) {
	p, err := s.repo.FindByID(ctx, userID, id)
	if err != nil {
		return nil, fmt.Errorf("投稿の取得に失敗しました: %w", err)
	}
	if p == nil {
		return nil, model.NewNotFoundError("Post", id)
	}
	return p, nil
}

// Delete は投稿を削除する。
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	deleted, err := s.repo.Delete(ctx, userID, id)
	if err != nil {
		return fmt.Errorf("投稿の削除に失敗しました: %w", err)
	}
	if !deleted {
		return model.NewNotFoundError("Post", id)
	}
	return nil
}

// List は条件に一致する投稿を予定日時の昇順で返す。
func (s *Service) List(ctx context.Context, userID string, in ListInput) ([]*model.Post, error) {
	var filter repository.PostFilter

	if in.Status != "" {
		status := model.PostStatus(in.Status)
		if !status.Valid() {
			return nil, model.NewValidationError(fmt.Sprintf("Unknown post status: %s", in.Status))
		}
		filter.Status = &status
	}

	if in.Month != "" {
		from, to, err := MonthRange(in.Month)
		if err != nil {
			return nil, err
		}
		filter.From = &from
		filter.To = &to
	}

	posts, err := s.repo.List(ctx, userID, filter)
	if err != nil {
		return nil, fmt.Errorf("投稿一覧の取得に失敗しました: %w", err)
	}
	return posts, nil
}

// Upcoming は現在以降に予定されている投稿を近い順にlimit件返す。
func (s *Service) Upcoming(ctx context.Context, userID string, limit int) ([]*model.Post, error) {
	status := model.PostStatusScheduled
	now := s.now()
	posts, err := s.repo.List(ctx, userID, repository.PostFilter{
		Status: &status,
		From:   &now,
		Limit:  limit,
	})
	if err != nil {
		return nil, fmt.Errorf("予定投稿の取得に失敗しました: %w", err)
	}
	return posts, nil
}

// Publish は投稿を公開済みにする。公開済みの投稿はそのまま返す。
func (s *Service) Publish(ctx context.Context, userID, id string) (*model.Post, error) {
	p, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if p.Status == model.PostStatusPublished {
		return p, nil
	}

	updated, err := s.repo.UpdateStatus(ctx, userID, id, model.PostStatusPublished)
	if err != nil {
		return nil, fmt.Errorf("投稿の公開に失敗しました: %w", err)
	}
	if updated == nil {
		return nil, model.NewNotFoundError("Post", id)
	}

	slog.Info("投稿を公開しました",
		slog.String("user_id", userID),
		slog.String("post_id", id),
	)
	return updated, nil
}

// Counts はステータス別の投稿数を返す。
func (s *Service) Counts(ctx context.Context, userID string) (map[model.PostStatus]int, error) {
	counts := make(map[model.PostStatus]int, 3)
	for _, status := range []model.PostStatus{model.PostStatusDraft, model.PostStatusScheduled, model.PostStatusPublished} {
		n, err := s.repo.CountByStatus(ctx, userID, status)
		if err != nil {
			return nil, fmt.Errorf("投稿数の取得に失敗しました: %w", err)
		}
		counts[status] = n
	}
	return counts, nil
}

// MonthRange はYYYY-MM形式の月の開始時刻（UTC）と翌月の開始時刻を返す。
func MonthRange(month string) (time.Time, time.Time, error) {
	start, err := time.Parse("2006-01", month)
	if err != nil {
		return time.Time{}, time.Time{}, model.NewValidationError(fmt.Sprintf("Invalid month: %s (expected YYYY-MM).", month))
	}
	return start, start.AddDate(0, 1, 0), nil
}

// normalizeHashtags は先頭の#と前後の空白を除き、空と重複を取り除く。
func normalizeHashtags(tags []string) ([]string, error) {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, raw := range tags {
		tag := strings.TrimLeft(strings.TrimSpace(raw), "#")
		if tag == "" {
			continue
		}
		if strings.IndexFunc(tag, unicode.IsSpace) >= 0 {
			return nil, model.NewValidationError(fmt.Sprintf("Hashtag must not contain spaces: %s", tag))
		}
		key := strings.ToLower(tag)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, tag)
	}
	return out, nil
}

// appendHashtags は本文に含まれていないハッシュタグを末尾に追加する。
func appendHashtags(content string, tags []string) string {
	lower := strings.ToLower(content)
	var missing []string
	for _, tag := range tags {
		if !strings.Contains(lower, "#"+strings.ToLower(tag)) {
			missing = append(missing, "#"+tag)
		}
	}
	if len(missing) == 0 {
		return content
	}
	return content + "\n\n" + strings.Join(missing, " ")
}

func validatePlatforms(platforms []model.Platform) ([]model.Platform, error) {
	if len(platforms) == 0 {
		return nil, model.NewValidationError("Select at least one platform.")
	}
	seen := make(map[model.Platform]bool, len(platforms))
	out := make([]model.Platform, 0, len(platforms))
	for _, p := range platforms {
		if !model.IsPostPlatform(p) {
			return nil, model.NewUnsupportedPlatformError(string(p))
		}
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out, nil
}
