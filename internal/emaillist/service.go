// Package emaillist は購読者リストと購読者のインポートを管理する。
package emaillist

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hitoshi/socialburst/internal/auth"
	"github.com/hitoshi/socialburst/internal/model"
	"github.com/hitoshi/socialburst/internal/repository"
)

// MaxImportSize は1回のインポートで受け付けるアドレス数の上限。
const MaxImportSize = 1000

// ImportResult はインポートの結果。
type ImportResult struct {
	Imported   int      `json:"imported"`
	Duplicates int      `json:"duplicates"`
	Invalid    []string `json:"invalid"`
}

// Service は購読者リストのサービス層。
type Service struct {
	lists       repository.EmailListRepository
	subscribers repository.SubscriberRepository
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(lists repository.EmailListRepository, subscribers repository.SubscriberRepository) *Service {
	return &Service{lists: lists, subscribers: subscribers}
}

// Create はリストを作成する。
func (s *Service) Create(ctx context.Context, userID, name, description string) (*model.EmailList, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, model.NewValidationError("List name is required.")
	}

	list, err := s.lists.Create(ctx, &model.EmailList{
		UserID:      userID,
		Name:        name,
		Description: strings.TrimSpace(description),
	})
	if err != nil {
		return nil, fmt.Errorf("リストの作成に失敗しました: %w", err)
	}
	return list, nil
}

// Get はユーザーのリストを1件返す。
func (s *Service) Get(ctx context.Context, userID, id string) (*model.EmailList, error) {
	list, err := s.lists.FindByID(ctx, userID, id)
	if err != nil {
		return nil, fmt.Errorf("リストの取得に失敗しました: %w", err)
	}
	if list == nil {
		return nil, model.NewNotFoundError("Email list", id)
	}
	return list, nil
}

// List はユーザーのリストを新しい順に返す。
func (s *Service) List(ctx context.Context, userID string) ([]*model.EmailList, error) {
	lists, err := s.lists.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("リスト一覧の取得に失敗しました: %w", err)
	}
	return lists, nil
}

// Delete はリストとその購読者を削除する。宛先にしていたキャンペーンは宛先なしになる。
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	deleted, err := s.lists.Delete(ctx, userID, id)
	if err != nil {
		return fmt.Errorf("リストの削除に失敗しました: %w", err)
	}
	if !deleted {
		return model.NewNotFoundError("Email list", id)
	}
	slog.Info("リストを削除しました",
		slog.String("user_id", userID),
		slog.String("list_id", id),
	)
	return nil
}

// Subscribers はリストの購読者を登録順に返す。
func (s *Service) Subscribers(ctx context.Context, userID, listID string) ([]*model.Subscriber, error) {
	if _, err := s.Get(ctx, userID, listID); err != nil {
		return nil, err
	}
	subs, err := s.subscribers.ListByListID(ctx, listID)
	if err != nil {
		return nil, fmt.Errorf("購読者一覧の取得に失敗しました: %w", err)
	}
	return subs, nil
}

// Import は改行またはカンマ区切りのメールアドレスをリストに追加する。
// 形式の不正なアドレスは結果に含めて除外し、リスト内に既に存在するアドレスは数えて読み飛ばす。
// 有効なアドレスが1件もない場合はエラーを返す。
func (s *Service) Import(ctx context.Context, userID, listID, raw string) (*ImportResult, error) {
	if _, err := s.Get(ctx, userID, listID); err != nil {
		return nil, err
	}

	result := &ImportResult{Invalid: []string{}}
	seen := make(map[string]bool)
	var candidates []string
	for _, email := range ParseEmails(raw) {
		if !auth.ValidEmail(email) {
			result.Invalid = append(result.Invalid, email)
			continue
		}
		key := strings.ToLower(email)
		if seen[key] {
			result.Duplicates++
			continue
		}
		seen[key] = true
		candidates = append(candidates, key)
	}
	if len(candidates) == 0 {
		return nil, model.NewNoValidEmailsError()
	}
	if len(candidates) > MaxImportSize {
		return nil, model.NewValidationError(fmt.Sprintf("You can import at most %d addresses at once.", MaxImportSize))
	}

	existing, err := s.subscribers.ExistingEmails(ctx, listID, candidates)
	if err != nil {
		return nil, fmt.Errorf("既存の購読者の確認に失敗しました: %w", err)
	}

	batch := make([]*model.Subscriber, 0, len(candidates))
	for _, email := range candidates {
		if existing[email] {
			result.Duplicates++
			continue
		}
		batch = append(batch, &model.Subscriber{ListID: listID, Email: email})
	}

	n, err := s.subscribers.CreateBatch(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("購読者の追加に失敗しました: %w", err)
	}
	result.Imported = n

	if err := s.syncCount(ctx, userID, listID); err != nil {
		return nil, err
	}

	slog.Info("購読者をインポートしました",
		slog.String("user_id", userID),
		slog.String("list_id", listID),
		slog.Int("imported", result.Imported),
		slog.Int("duplicates", result.Duplicates),
		slog.Int("invalid", len(result.Invalid)),
	)
	return result, nil
}

// syncCount はリストのsubscriber_countを実際の件数に合わせる。
func (s *Service) syncCount(ctx context.Context, userID, listID string) error {
	count, err := s.subscribers.CountByListID(ctx, listID)
	if err != nil {
		return fmt.Errorf("購読者数の取得に失敗しました: %w", err)
	}
	if err := s.lists.SetSubscriberCount(ctx, userID, listID, count); err != nil {
		return fmt.Errorf("購読者数の更新に失敗しました: %w", err)
	}
	return nil
}

// Unsubscribe は購読者を購読停止にする。行は削除しない。
func (s *Service) Unsubscribe(ctx context.Context, userID, listID, subscriberID string) (*model.Subscriber, error) {
	if _, err := s.Get(ctx, userID, listID); err != nil {
		return nil, err
	}

	sub, err := s.subscribers.UpdateStatus(ctx, listID, subscriberID, model.SubscriberStatusUnsubscribed)
	if err != nil {
		return nil, fmt.Errorf("購読停止に失敗しました: %w", err)
	}
	if sub == nil {
		return nil, model.NewNotFoundError("Subscriber", subscriberID)
	}
	return sub, nil
}

// ParseEmails は改行またはカンマで区切られた文字列をトリム済みのアドレスに分割する。空要素は除く。
func ParseEmails(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == '\n' || r == '\r' || r == ','
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}
