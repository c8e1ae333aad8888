package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/socialburst/internal/emaillist"
	"github.com/hitoshi/socialburst/internal/model"
)

// EmailListServiceInterface は購読者リストハンドラーが必要とするサービスインターフェース。
type EmailListServiceInterface interface {
	Create(ctx context.Context, userID, name, description string) (*model.EmailList, error)
	List(ctx context.Context, userID string) ([]*model.EmailList, error)
	Delete(ctx context.Context, userID, id string) error
	Subscribers(ctx context.Context, userID, listID string) ([]*model.Subscriber, error)
	Import(ctx context.Context, userID, listID, raw string) (*emaillist.ImportResult, error)
	Unsubscribe(ctx context.Context, userID, listID, subscriberID string) (*model.Subscriber, error)
}

// ListHandler は購読者リストと購読者のHTTPハンドラー。
type ListHandler struct {
	service EmailListServiceInterface
}

// NewListHandler はListHandlerを生成する。
func NewListHandler(service EmailListServiceInterface) *ListHandler {
	return &ListHandler{service: service}
}

// createListRequest はリスト作成リクエストのボディ。
type createListRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// importRequest はインポートリクエストのボディ。emailsは改行またはカンマ区切り。
type importRequest struct {
	Emails string `json:"emails"`
}

// listResponse はリストのAPIレスポンス。
type listResponse struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Description     string    `json:"description"`
	SubscriberCount int       `json:"subscriber_count"`
	CreatedAt       time.Time `json:"created_at"`
}

// subscriberResponse は購読者のAPIレスポンス。
type subscriberResponse struct {
	ID        string                 `json:"id"`
	Email     string                 `json:"email"`
	FirstName string                 `json:"first_name,omitempty"`
	LastName  string                 `json:"last_name,omitempty"`
	Status    model.SubscriberStatus `json:"status"`
	CreatedAt time.Time              `json:"created_at"`
}

func toListResponse(l *model.EmailList) listResponse {
	return listResponse{
		ID:              l.ID,
		Name:            l.Name,
		Description:     l.Description,
		SubscriberCount: l.SubscriberCount,
		CreatedAt:       l.CreatedAt,
	}
}

func toListResponses(lists []*model.EmailList) []listResponse {
	resp := make([]listResponse, 0, len(lists))
	for _, l := range lists {
		resp = append(resp, toListResponse(l))
	}
	return resp
}

func toSubscriberResponse(s *model.Subscriber) subscriberResponse {
	return subscriberResponse{
		ID:        s.ID,
		Email:     s.Email,
		FirstName: s.FirstName,
		LastName:  s.LastName,
		Status:    s.Status,
		CreatedAt: s.CreatedAt,
	}
}

// ListLists はリスト一覧を返す。
// GET /api/lists
func (h *ListHandler) ListLists(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	lists, err := h.service.List(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toListResponses(lists))
}

// CreateList はリストを作成する。
// POST /api/lists
func (h *ListHandler) CreateList(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req createListRequest
	if isFormRequest(r) {
		req.Name = r.PostFormValue("name")
		req.Description = r.PostFormValue("description")
	} else if !decodeJSON(w, r, &req) {
		return
	}

	list, err := h.service.Create(r.Context(), userID, req.Name, req.Description)
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, r, http.StatusCreated, toListResponse(list), "List created.")
}

// DeleteList はリストと所属する購読者を削除する。
// DELETE /api/lists/{id}
func (h *ListHandler) DeleteList(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		fail(w, r, err)
		return
	}
	respond(w, r, http.StatusNoContent, nil, "List deleted.")
}

// ListSubscribers はリストの購読者一覧を返す。
// GET /api/lists/{id}/subscribers
func (h *ListHandler) ListSubscribers(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	subs, err := h.service.Subscribers(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]subscriberResponse, 0, len(subs))
	for _, s := range subs {
		resp = append(resp, toSubscriberResponse(s))
	}
	writeJSON(w, http.StatusOK, resp)
}

// ImportSubscribers はメールアドレスを一括で購読者として登録する。
// POST /api/lists/{id}/import
func (h *ListHandler) ImportSubscribers(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req importRequest
	if isFormRequest(r) {
		req.Emails = r.PostFormValue("emails")
	} else if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.service.Import(r.Context(), userID, chi.URLParam(r, "id"), req.Emails)
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, result, importNotice(result))
}

// Unsubscribe は購読者を購読停止にする。
// POST /api/lists/{id}/subscribers/{subscriberID}/unsubscribe
func (h *ListHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	sub, err := h.service.Unsubscribe(r.Context(), userID, chi.URLParam(r, "id"), chi.URLParam(r, "subscriberID"))
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, toSubscriberResponse(sub), "Subscriber unsubscribed.")
}

func importNotice(result *emaillist.ImportResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Imported %d subscribers.", result.Imported)
	if result.Duplicates > 0 {
		fmt.Fprintf(&b, " %d already on the list.", result.Duplicates)
	}
	if len(result.Invalid) > 0 {
		fmt.Fprintf(&b, " %d invalid addresses skipped.", len(result.Invalid))
	}
	return b.String()
}
