package handler

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/hitoshi/socialburst/internal/model"
	"github.com/hitoshi/socialburst/internal/post"
	"github.com/hitoshi/socialburst/internal/session"
	"github.com/hitoshi/socialburst/internal/trend"
	"github.com/hitoshi/socialburst/internal/web"
)

const (
	// upcomingLimit はダッシュボードに表示する予定投稿の件数。
	upcomingLimit = 5
	// activityLimit は最近のアクティビティの件数。
	activityLimit = 5
)

// TrendServiceInterface はおすすめを提供するサービスインターフェース。
type TrendServiceInterface interface {
	Recommendations(ctx context.Context) []trend.Recommendation
}

// StatsServiceInterface はメール集計を提供するサービスインターフェース。
type StatsServiceInterface interface {
	Stats(ctx context.Context, userID string) (*model.EmailStats, error)
}

// DashboardHandler はダッシュボードの集計とおすすめのHTTPハンドラー。
type DashboardHandler struct {
	posts    PostServiceInterface
	profiles ProfileServiceInterface
	stats    StatsServiceInterface
	trends   TrendServiceInterface
}

// NewDashboardHandler はDashboardHandlerを生成する。
func NewDashboardHandler(
	posts PostServiceInterface,
	profiles ProfileServiceInterface,
	stats StatsServiceInterface,
	trends TrendServiceInterface,
) *DashboardHandler {
	return &DashboardHandler{
		posts:    posts,
		profiles: profiles,
		stats:    stats,
		trends:   trends,
	}
}

// dashboardSummary はダッシュボードに表示する内容。ページとAPIで共通。
type dashboardSummary struct {
	Stats               quickStats             `json:"stats"`
	UpcomingPosts       []postResponse         `json:"upcoming_posts"`
	RecentActivity      []activityItem         `json:"recent_activity"`
	Weekdays            []string               `json:"weekdays"`
	PlatformPerformance []platformEngagement   `json:"platform_performance"`
	Trends              []trend.Recommendation `json:"trends"`
	Widgets             widgetVisibility       `json:"widgets"`
}

type quickStats struct {
	Published         int `json:"published"`
	Scheduled         int `json:"scheduled"`
	Drafts            int `json:"drafts"`
	ConnectedAccounts int `json:"connected_accounts"`
	Subscribers       int `json:"subscribers"`
}

type activityItem struct {
	Action  string    `json:"action"`
	Details string    `json:"details"`
	At      time.Time `json:"at"`
}

type platformEngagement struct {
	Platform   model.Platform `json:"platform"`
	Label      string         `json:"label"`
	Engagement []int          `json:"engagement"`
}

type widgetVisibility struct {
	QuickStats          bool `json:"quickStats"`
	UpcomingPosts       bool `json:"upcomingPosts"`
	RecentActivity      bool `json:"recentActivity"`
	PlatformPerformance bool `json:"platformPerformance"`
}

var weekdays = []string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

// sampleWeeklyEngagement はプラットフォーム別の週間エンゲージメントのサンプル値。
// 外部プラットフォームの実績は取得しないため固定値を表示する。
var sampleWeeklyEngagement = map[model.Platform][]int{
	model.PlatformFacebook:  {10, 15, 13, 17, 20, 22, 25},
	model.PlatformInstagram: {15, 20, 18, 23, 25, 30, 35},
	model.PlatformTwitter:   {7, 10, 9, 11, 15, 17, 20},
	model.PlatformYouTube:   {5, 8, 11, 13, 10, 15, 18},
}

// Summary はダッシュボードの集計を返す。
// GET /api/dashboard/summary
func (h *DashboardHandler) Summary(w http.ResponseWriter, r *http.Request) {
	store := session.FromContext(r.Context())
	if store == nil || store.Session() == nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	p, err := h.profiles.Ensure(r.Context(), store.Session())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	summary, err := h.summary(r.Context(), p)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// Trends はおすすめを返す。
// GET /api/trends
func (h *DashboardHandler) Trends(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireUserID(w, r); !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.trends.Recommendations(r.Context()))
}

// summary はプロフィールの設定に従ってダッシュボードの内容を組み立てる。
func (h *DashboardHandler) summary(ctx context.Context, p *model.Profile) (*dashboardSummary, error) {
	prefs := p.Preferences

	counts, err := h.posts.Counts(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	accounts, err := h.profiles.ListAccounts(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	emailStats, err := h.stats.Stats(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	upcoming, err := h.posts.Upcoming(ctx, p.ID, upcomingLimit)
	if err != nil {
		return nil, err
	}
	all, err := h.posts.List(ctx, p.ID, post.ListInput{})
	if err != nil {
		return nil, err
	}

	connected := 0
	for _, a := range accounts {
		if a.IsConnected {
			connected++
		}
	}

	return &dashboardSummary{
		Stats: quickStats{
			Published:         counts[model.PostStatusPublished],
			Scheduled:         counts[model.PostStatusScheduled],
			Drafts:            counts[model.PostStatusDraft],
			ConnectedAccounts: connected,
			Subscribers:       emailStats.TotalSubscribers,
		},
		UpcomingPosts:       toPostResponses(upcoming),
		RecentActivity:      recentActivity(all, activityLimit),
		Weekdays:            weekdays,
		PlatformPerformance: platformPerformance(prefs),
		Trends:              h.trends.Recommendations(ctx),
		Widgets: widgetVisibility{
			QuickStats:          prefs.WidgetEnabled(model.WidgetQuickStats),
			UpcomingPosts:       prefs.WidgetEnabled(model.WidgetUpcomingPosts),
			RecentActivity:      prefs.WidgetEnabled(model.WidgetRecentActivity),
			PlatformPerformance: prefs.WidgetEnabled(model.WidgetPlatformPerformance),
		},
	}, nil
}

// recentActivity は作成日時の新しい投稿から最近のアクティビティを作る。
func recentActivity(posts []*model.Post, limit int) []activityItem {
	sorted := make([]*model.Post, len(posts))
	copy(sorted, posts)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})
	if len(sorted) > limit {
		sorted = sorted[:limit]
	}

	items := make([]activityItem, 0, len(sorted))
	for _, p := range sorted {
		action := "Draft Saved"
		switch p.Status {
		case model.PostStatusPublished:
			action = "Post Published"
		case model.PostStatusScheduled:
			action = "Post Scheduled"
		}

		details := excerpt(p.Content, 60)
		if len(p.Platforms) > 0 {
			labels := make([]string, 0, len(p.Platforms))
			for _, pl := range p.Platforms {
				labels = append(labels, web.PlatformLabel(pl))
			}
			details += " on " + strings.Join(labels, ", ")
		}
		items = append(items, activityItem{Action: action, Details: details, At: p.CreatedAt})
	}
	return items
}

// platformPerformance は有効なプラットフォームのエンゲージメントを返す。
func platformPerformance(prefs model.DashboardPreferences) []platformEngagement {
	result := make([]platformEngagement, 0, len(model.AccountPlatforms))
	for _, p := range model.AccountPlatforms {
		if !prefs.Platforms[p] {
			continue
		}
		result = append(result, platformEngagement{
			Platform:   p,
			Label:      web.PlatformLabel(p),
			Engagement: sampleWeeklyEngagement[p],
		})
	}
	return result
}

func excerpt(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n])) + "…"
}
