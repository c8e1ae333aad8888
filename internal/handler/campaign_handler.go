package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/socialburst/internal/campaign"
	"github.com/hitoshi/socialburst/internal/model"
)

// CampaignServiceInterface はキャンペーンハンドラーが必要とするサービスインターフェース。
type CampaignServiceInterface interface {
	Create(ctx context.Context, userID string, in campaign.Input) (*model.EmailCampaign, error)
	Update(ctx context.Context, userID, id string, in campaign.Input) (*model.EmailCampaign, error)
	Get(ctx context.Context, userID, id string) (*model.EmailCampaign, error)
	List(ctx context.Context, userID string) ([]*model.EmailCampaign, error)
	Delete(ctx context.Context, userID, id string) error
	Send(ctx context.Context, userID, id string) (*model.EmailCampaign, error)
	Preview(content string) (string, error)
	Stats(ctx context.Context, userID string) (*model.EmailStats, error)
}

// CampaignHandler はメールキャンペーンのHTTPハンドラー。
type CampaignHandler struct {
	service CampaignServiceInterface
}

// NewCampaignHandler はCampaignHandlerを生成する。
func NewCampaignHandler(service CampaignServiceInterface) *CampaignHandler {
	return &CampaignHandler{service: service}
}

// campaignRequest はキャンペーンの作成・更新リクエストのボディ。
type campaignRequest struct {
	Name            string     `json:"name"`
	Subject         string     `json:"subject"`
	Content         string     `json:"content"`
	ScheduledFor    *time.Time `json:"scheduled_for"`
	RecipientListID string     `json:"recipient_list_id"`
}

// campaignResponse はキャンペーンのAPIレスポンス。
type campaignResponse struct {
	ID              string               `json:"id"`
	Name            string               `json:"name"`
	Subject         string               `json:"subject"`
	Content         string               `json:"content"`
	Status          model.CampaignStatus `json:"status"`
	DisplayStatus   string               `json:"display_status"`
	ScheduledFor    *time.Time           `json:"scheduled_for"`
	SentAt          *time.Time           `json:"sent_at"`
	RecipientListID string               `json:"recipient_list_id,omitempty"`
	Stats           *model.CampaignStats `json:"stats,omitempty"`
	CreatedAt       time.Time            `json:"created_at"`
}

// emailStatsResponse はメールマーケティング集計のAPIレスポンス。
type emailStatsResponse struct {
	TotalSubscribers int     `json:"total_subscribers"`
	TotalCampaigns   int     `json:"total_campaigns"`
	TotalLists       int     `json:"total_lists"`
	OpenRate         float64 `json:"open_rate"`
	ClickRate        float64 `json:"click_rate"`
}

type previewRequest struct {
	Content string `json:"content"`
}

type previewResponse struct {
	HTML string `json:"html"`
}

func toCampaignResponse(c *model.EmailCampaign) campaignResponse {
	return campaignResponse{
		ID:              c.ID,
		Name:            c.Name,
		Subject:         c.Subject,
		Content:         c.Content,
		Status:          c.Status,
		DisplayStatus:   c.DisplayStatus(),
		ScheduledFor:    c.ScheduledFor,
		SentAt:          c.SentAt,
		RecipientListID: c.RecipientListID,
		Stats:           c.Stats,
		CreatedAt:       c.CreatedAt,
	}
}

func toCampaignResponses(campaigns []*model.EmailCampaign) []campaignResponse {
	resp := make([]campaignResponse, 0, len(campaigns))
	for _, c := range campaigns {
		resp = append(resp, toCampaignResponse(c))
	}
	return resp
}

func toEmailStatsResponse(s *model.EmailStats) emailStatsResponse {
	return emailStatsResponse{
		TotalSubscribers: s.TotalSubscribers,
		TotalCampaigns:   s.TotalCampaigns,
		TotalLists:       s.TotalLists,
		OpenRate:         s.OpenRate,
		ClickRate:        s.ClickRate,
	}
}

// ListCampaigns はキャンペーン一覧を新しい順に返す。
// GET /api/campaigns
func (h *CampaignHandler) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	campaigns, err := h.service.List(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCampaignResponses(campaigns))
}

// CreateCampaign は下書きのキャンペーンを作成する。
// POST /api/campaigns
func (h *CampaignHandler) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	in, ok := readCampaignInput(w, r)
	if !ok {
		return
	}

	c, err := h.service.Create(r.Context(), userID, in)
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, r, http.StatusCreated, toCampaignResponse(c), "Campaign saved.")
}

// GetCampaign はキャンペーンを1件返す。
// GET /api/campaigns/{id}
func (h *CampaignHandler) GetCampaign(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	c, err := h.service.Get(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCampaignResponse(c))
}

// UpdateCampaign はキャンペーンを更新する。送信済みのキャンペーンは更新できない。
// PUT /api/campaigns/{id}
func (h *CampaignHandler) UpdateCampaign(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	in, ok := readCampaignInput(w, r)
	if !ok {
		return
	}

	c, err := h.service.Update(r.Context(), userID, chi.URLParam(r, "id"), in)
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, toCampaignResponse(c), "Campaign updated.")
}

// DeleteCampaign はキャンペーンを削除する。
// DELETE /api/campaigns/{id}
func (h *CampaignHandler) DeleteCampaign(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		fail(w, r, err)
		return
	}
	respond(w, r, http.StatusNoContent, nil, "Campaign deleted.")
}

// SendCampaign はキャンペーンを送信済みにする。実際のメール配信は行わない。
// POST /api/campaigns/{id}/send
func (h *CampaignHandler) SendCampaign(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	c, err := h.service.Send(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, toCampaignResponse(c), "Campaign sent.")
}

// PreviewCampaign はMarkdownの本文をサニタイズ済みHTMLに変換して返す。
// POST /api/campaigns/preview
func (h *CampaignHandler) PreviewCampaign(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireUserID(w, r); !ok {
		return
	}

	var req previewRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	html, err := h.service.Preview(req.Content)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, previewResponse{HTML: html})
}

// Stats はメールマーケティングの集計値を返す。
// GET /api/email/stats
func (h *CampaignHandler) Stats(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	stats, err := h.service.Stats(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEmailStatsResponse(stats))
}

// readCampaignInput はフォームまたはJSONからキャンペーンの入力を読み込む。
func readCampaignInput(w http.ResponseWriter, r *http.Request) (campaign.Input, bool) {
	var req campaignRequest
	if isFormRequest(r) {
		_ = r.ParseForm()
		scheduledFor, err := parseFormTime(r.PostForm.Get("scheduled_for"))
		if err != nil {
			fail(w, r, err)
			return campaign.Input{}, false
		}
		req = campaignRequest{
			Name:            r.PostForm.Get("name"),
			Subject:         r.PostForm.Get("subject"),
			Content:         r.PostForm.Get("content"),
			ScheduledFor:    scheduledFor,
			RecipientListID: r.PostForm.Get("recipient_list_id"),
		}
	} else if !decodeJSON(w, r, &req) {
		return campaign.Input{}, false
	}

	return campaign.Input{
		Name:            req.Name,
		Subject:         req.Subject,
		Content:         req.Content,
		ScheduledFor:    req.ScheduledFor,
		RecipientListID: req.RecipientListID,
	}, true
}
