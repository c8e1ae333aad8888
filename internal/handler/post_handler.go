package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/socialburst/internal/model"
	"github.com/hitoshi/socialburst/internal/post"
)

// PostServiceInterface は投稿ハンドラーが必要とするサービスインターフェース。
type PostServiceInterface interface {
	Create(ctx context.Context, userID string, in post.Input) (*model.Post, error)
	Update(ctx context.Context, userID, id string, in post.Input) (*model.Post, error)
	Get(ctx context.Context, userID, id string) (*model.Post, error)
	Delete(ctx context.Context, userID, id string) error
	List(ctx context.Context, userID string, in post.ListInput) ([]*model.Post, error)
	Upcoming(ctx context.Context, userID string, limit int) ([]*model.Post, error)
	Publish(ctx context.Context, userID, id string) (*model.Post, error)
	Counts(ctx context.Context, userID string) (map[model.PostStatus]int, error)
	Ideas(keyword string) ([]post.Idea, error)
}

// PostHandler は投稿管理のHTTPハンドラー。
type PostHandler struct {
	service PostServiceInterface
}

// NewPostHandler はPostHandlerを生成する。
func NewPostHandler(service PostServiceInterface) *PostHandler {
	return &PostHandler{service: service}
}

// postRequest は投稿の作成・更新リクエストのボディ。
type postRequest struct {
	Content      string           `json:"content"`
	Hashtags     []string         `json:"hashtags"`
	ImageURL     string           `json:"image_url"`
	ScheduledFor *time.Time       `json:"scheduled_for"`
	Platforms    []model.Platform `json:"platforms"`
}

// postResponse は投稿のAPIレスポンス。
type postResponse struct {
	ID           string           `json:"id"`
	Content      string           `json:"content"`
	ImageURL     string           `json:"image_url,omitempty"`
	ScheduledFor *time.Time       `json:"scheduled_for"`
	Status       model.PostStatus `json:"status"`
	Platforms    []model.Platform `json:"platforms"`
	Performance  json.RawMessage  `json:"performance,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
}

func toPostResponse(p *model.Post) postResponse {
	platforms := p.Platforms
	if platforms == nil {
		platforms = []model.Platform{}
	}
	return postResponse{
		ID:           p.ID,
		Content:      p.Content,
		ImageURL:     p.ImageURL,
		ScheduledFor: p.ScheduledFor,
		Status:       p.Status,
		Platforms:    platforms,
		Performance:  p.Performance,
		CreatedAt:    p.CreatedAt,
	}
}

func toPostResponses(posts []*model.Post) []postResponse {
	resp := make([]postResponse, 0, len(posts))
	for _, p := range posts {
		resp = append(resp, toPostResponse(p))
	}
	return resp
}

// ListPosts は投稿一覧を返す。
// GET /api/posts?status=draft|scheduled|published&month=YYYY-MM
func (h *PostHandler) ListPosts(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	posts, err := h.service.List(r.Context(), userID, post.ListInput{
		Status: r.URL.Query().Get("status"),
		Month:  r.URL.Query().Get("month"),
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPostResponses(posts))
}

// CreatePost は投稿を作成する。
// POST /api/posts
func (h *PostHandler) CreatePost(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	in, ok := readPostInput(w, r)
	if !ok {
		return
	}

	p, err := h.service.Create(r.Context(), userID, in)
	if err != nil {
		fail(w, r, err)
		return
	}

	notice := "Post saved as draft."
	if p.Status == model.PostStatusScheduled {
		notice = "Post scheduled."
	}
	respond(w, r, http.StatusCreated, toPostResponse(p), notice)
}

// GetPost は投稿を1件返す。
// GET /api/posts/{id}
func (h *PostHandler) GetPost(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	p, err := h.service.Get(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPostResponse(p))
}

// UpdatePost は投稿を更新する。
// PUT /api/posts/{id}
func (h *PostHandler) UpdatePost(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	in, ok := readPostInput(w, r)
	if !ok {
		return
	}

	p, err := h.service.Update(r.Context(), userID, chi.URLParam(r, "id"), in)
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, toPostResponse(p), "Post updated.")
}

// DeletePost は投稿を削除する。
// DELETE /api/posts/{id}
func (h *PostHandler) DeletePost(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		fail(w, r, err)
		return
	}
	respond(w, r, http.StatusNoContent, nil, "Post deleted.")
}

// PublishPost は投稿を公開済みにする。外部プラットフォームへの配信は行わない。
// POST /api/posts/{id}/publish
func (h *PostHandler) PublishPost(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	p, err := h.service.Publish(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, toPostResponse(p), "Post published.")
}

// GenerateIdeas はキーワードから投稿のアイデアを返す。アイデアは保存しない。
// GET /api/posts/ideas?keyword=
func (h *PostHandler) GenerateIdeas(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireUserID(w, r); !ok {
		return
	}

	ideas, err := h.service.Ideas(r.URL.Query().Get("keyword"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ideas)
}

// readPostInput はフォームまたはJSONから投稿の入力を読み込む。
func readPostInput(w http.ResponseWriter, r *http.Request) (post.Input, bool) {
	if !isFormRequest(r) {
		var req postRequest
		if !decodeJSON(w, r, &req) {
			return post.Input{}, false
		}
		return post.Input{
			Content:      req.Content,
			Hashtags:     req.Hashtags,
			ImageURL:     req.ImageURL,
			ScheduledFor: req.ScheduledFor,
			Platforms:    req.Platforms,
		}, true
	}

	_ = r.ParseForm()
	scheduledFor, err := parseFormTime(r.PostForm.Get("scheduled_for"))
	if err != nil {
		fail(w, r, err)
		return post.Input{}, false
	}

	platforms := make([]model.Platform, 0, len(r.PostForm["platforms"]))
	for _, v := range r.PostForm["platforms"] {
		platforms = append(platforms, model.Platform(v))
	}

	return post.Input{
		Content:      r.PostForm.Get("content"),
		Hashtags:     splitList(r.PostForm.Get("hashtags")),
		ImageURL:     r.PostForm.Get("image_url"),
		ScheduledFor: scheduledFor,
		Platforms:    platforms,
	}, true
}

// formTimeLayouts はフォームで受け付ける日時の形式。タイムゾーンのない値はUTCとして扱う。
var formTimeLayouts = []string{time.RFC3339, "2006-01-02T15:04", "2006-01-02T15:04:05"}

// parseFormTime はフォームの日時を解析する。空の場合はnilを返す。
func parseFormTime(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range formTimeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, model.NewValidationError("Invalid date and time: " + raw)
}

// splitList はカンマまたは空白で区切られた値を分割する。
func splitList(raw string) []string {
	return strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\n' || r == '\r' || r == '\t'
	})
}
