package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/hitoshi/socialburst/internal/middleware"
	"github.com/hitoshi/socialburst/internal/model"
	"github.com/hitoshi/socialburst/internal/post"
	"github.com/hitoshi/socialburst/internal/session"
	"github.com/hitoshi/socialburst/internal/web"
)

// dashboardWidgets はカスタマイズ可能なウィジェットと表示名。
var dashboardWidgets = []struct {
	Key   model.Widget
	Label string
}{
	{model.WidgetQuickStats, "Quick Stats"},
	{model.WidgetUpcomingPosts, "Upcoming Posts"},
	{model.WidgetRecentActivity, "Recent Activity"},
	{model.WidgetPlatformPerformance, "Platform Performance"},
}

// PageHandler はHTMLページのHTTPハンドラー。
// 保護されたページはRoute Guardを通過した後にのみ呼ばれる。
type PageHandler struct {
	pages     *web.Renderer
	profiles  ProfileServiceInterface
	posts     PostServiceInterface
	campaigns CampaignServiceInterface
	lists     EmailListServiceInterface
	dashboard *DashboardHandler
	now       func() time.Time
}

// NewPageHandler はPageHandlerを生成する。
func NewPageHandler(
	pages *web.Renderer,
	profiles ProfileServiceInterface,
	posts PostServiceInterface,
	campaigns CampaignServiceInterface,
	lists EmailListServiceInterface,
	dashboard *DashboardHandler,
) *PageHandler {
	return &PageHandler{
		pages:     pages,
		profiles:  profiles,
		posts:     posts,
		campaigns: campaigns,
		lists:     lists,
		dashboard: dashboard,
		now:       time.Now,
	}
}

type landingView struct {
	Authenticated bool
}

type dashboardView struct {
	Summary *dashboardSummary
}

type calendarView struct {
	Label    string
	Prev     string
	Next     string
	Weeks    [][]calendarDay
	Upcoming []postResponse
}

type calendarDay struct {
	Day     int
	InMonth bool
	Today   bool
	Posts   []postResponse
}

type settingsView struct {
	Tab       string
	Profile   *model.Profile
	Platforms []platformConnection
}

type platformConnection struct {
	Platform    model.Platform
	Label       string
	Connected   bool
	AccountName string
}

type createView struct {
	Platforms   []model.Platform
	MaxLength   int
	MinSchedule string
	Keyword     string
	Ideas       []post.Idea
	Content     string // 選択したアイデアの本文。フォームの初期値に使う
}

type emailView struct {
	Tab       string
	Stats     emailStatsResponse
	Campaigns []campaignResponse
	Lists     []listResponse
}

type customizeView struct {
	Profile   *model.Profile
	Platforms []toggle
	Widgets   []toggle
}

type toggle struct {
	Key     string
	Label   string
	Enabled bool
}

// Landing はランディングページを表示する。認証済みの場合はダッシュボードへのリンクを表示する。
// GET /
func (h *PageHandler) Landing(w http.ResponseWriter, r *http.Request) {
	authenticated := false
	if store := session.FromContext(r.Context()); store != nil {
		authenticated = store.State() == session.StateAuthenticated
	}
	h.pages.Render(w, http.StatusOK, web.PageLanding, web.PageData{
		CSRFToken: middleware.CSRFTokenFromContext(r.Context()),
		Data:      landingView{Authenticated: authenticated},
	})
}

// NotFound は404ページを表示する。
func (h *PageHandler) NotFound(w http.ResponseWriter, r *http.Request) {
	h.pages.Render(w, http.StatusNotFound, web.PageNotFound, web.PageData{Title: "Not Found"})
}

// Dashboard はダッシュボードを表示する。
// GET /dashboard
func (h *PageHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	data, p, ok := h.base(w, r, "Dashboard", "dashboard")
	if !ok {
		return
	}

	summary, err := h.dashboard.summary(r.Context(), p)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	data.Data = dashboardView{Summary: summary}
	h.pages.Render(w, http.StatusOK, web.PageDashboard, data)
}

// Calendar は月間カレンダーを表示する。
// GET /calendar?month=YYYY-MM
func (h *PageHandler) Calendar(w http.ResponseWriter, r *http.Request) {
	data, p, ok := h.base(w, r, "Calendar", "calendar")
	if !ok {
		return
	}

	now := h.now().UTC()
	month := r.URL.Query().Get("month")
	start, _, err := post.MonthRange(month)
	if month == "" || err != nil {
		if month != "" {
			data.Error = toAPIError(err).Message
		}
		month = now.Format("2006-01")
		start, _, _ = post.MonthRange(month)
	}

	posts, err := h.posts.List(r.Context(), p.ID, post.ListInput{Month: month})
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	upcoming := make([]postResponse, 0, len(posts))
	for _, ps := range posts {
		if ps.Status == model.PostStatusScheduled {
			upcoming = append(upcoming, toPostResponse(ps))
		}
	}

	data.Data = calendarView{
		Label:    start.Format("January 2006"),
		Prev:     start.AddDate(0, -1, 0).Format("2006-01"),
		Next:     start.AddDate(0, 1, 0).Format("2006-01"),
		Weeks:    buildCalendar(start, posts, now),
		Upcoming: upcoming,
	}
	h.pages.Render(w, http.StatusOK, web.PageCalendar, data)
}

// Analytics は分析ページを表示する。数値はサンプル。
// GET /analytics
func (h *PageHandler) Analytics(w http.ResponseWriter, r *http.Request) {
	data, _, ok := h.base(w, r, "Analytics", "analytics")
	if !ok {
		return
	}
	data.Data = sampleAnalytics
	h.pages.Render(w, http.StatusOK, web.PageAnalytics, data)
}

// Settings は設定ページを表示する。
// GET /settings?tab=account|platforms|preferences
func (h *PageHandler) Settings(w http.ResponseWriter, r *http.Request) {
	data, p, ok := h.base(w, r, "Settings", "settings")
	if !ok {
		return
	}

	tab := r.URL.Query().Get("tab")
	switch tab {
	case "platforms", "preferences":
	default:
		tab = "account"
	}

	accounts, err := h.profiles.ListAccounts(r.Context(), p.ID)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	byPlatform := make(map[model.Platform]*model.SocialAccount, len(accounts))
	for _, a := range accounts {
		byPlatform[a.Platform] = a
	}

	platforms := make([]platformConnection, 0, len(model.AccountPlatforms))
	for _, pl := range model.AccountPlatforms {
		conn := platformConnection{Platform: pl, Label: web.PlatformLabel(pl)}
		if a, ok := byPlatform[pl]; ok && a.IsConnected {
			conn.Connected = true
			conn.AccountName = a.AccountName
		}
		platforms = append(platforms, conn)
	}

	data.Data = settingsView{Tab: tab, Profile: p, Platforms: platforms}
	h.pages.Render(w, http.StatusOK, web.PageSettings, data)
}

// Create は投稿作成ページを表示する。keywordを指定した場合はアイデアを併せて表示し、
// ideaで選んだアイデアの本文をフォームに入れる。
// GET /create?keyword=&idea=
func (h *PageHandler) Create(w http.ResponseWriter, r *http.Request) {
	data, _, ok := h.base(w, r, "Create Post", "create")
	if !ok {
		return
	}
	view := createView{
		Platforms:   model.PostPlatforms,
		MaxLength:   post.MaxContentLength,
		MinSchedule: h.now().UTC().Format("2006-01-02T15:04"),
	}

	q := r.URL.Query()
	if q.Has("keyword") {
		view.Keyword = q.Get("keyword")
		ideas, err := h.posts.Ideas(view.Keyword)
		if err != nil {
			data.Error = toAPIError(err).Message
		} else {
			view.Ideas = ideas
			if i, err := strconv.Atoi(q.Get("idea")); err == nil && i >= 0 && i < len(ideas) {
				view.Content = ideas[i].Content
			}
		}
	}

	data.Data = view
	h.pages.Render(w, http.StatusOK, web.PageCreate, data)
}

// EmailMarketing はメールマーケティングページを表示する。
// GET /email-marketing?tab=campaigns|lists
func (h *PageHandler) EmailMarketing(w http.ResponseWriter, r *http.Request) {
	data, p, ok := h.base(w, r, "Email Marketing", "email")
	if !ok {
		return
	}

	tab := r.URL.Query().Get("tab")
	if tab != "lists" {
		tab = "campaigns"
	}

	stats, err := h.campaigns.Stats(r.Context(), p.ID)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	campaigns, err := h.campaigns.List(r.Context(), p.ID)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	lists, err := h.lists.List(r.Context(), p.ID)
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	data.Data = emailView{
		Tab:       tab,
		Stats:     toEmailStatsResponse(stats),
		Campaigns: toCampaignResponses(campaigns),
		Lists:     toListResponses(lists),
	}
	h.pages.Render(w, http.StatusOK, web.PageEmailMarketing, data)
}

// CustomizeDashboard はダッシュボードのカスタマイズページを表示する。
// GET /customize-dashboard
func (h *PageHandler) CustomizeDashboard(w http.ResponseWriter, r *http.Request) {
	data, p, ok := h.base(w, r, "Customize Dashboard", "dashboard")
	if !ok {
		return
	}

	view := customizeView{Profile: p}
	for _, pl := range model.AccountPlatforms {
		view.Platforms = append(view.Platforms, toggle{
			Key:     string(pl),
			Label:   web.PlatformLabel(pl),
			Enabled: p.Preferences.Platforms[pl],
		})
	}
	for _, wd := range dashboardWidgets {
		view.Widgets = append(view.Widgets, toggle{
			Key:     string(wd.Key),
			Label:   wd.Label,
			Enabled: p.Preferences.WidgetEnabled(wd.Key),
		})
	}

	data.Data = view
	h.pages.Render(w, http.StatusOK, web.PageCustomizeDashboard, data)
}

// base は保護されたページに共通のデータを用意する。
// プロフィールが未作成の場合はセッション情報から作成する。
func (h *PageHandler) base(w http.ResponseWriter, r *http.Request, title, active string) (web.PageData, *model.Profile, bool) {
	store := session.FromContext(r.Context())
	if store == nil || store.Session() == nil {
		http.Redirect(w, r, middleware.DefaultSignInPath, http.StatusSeeOther)
		return web.PageData{}, nil, false
	}

	p, err := h.profiles.Ensure(r.Context(), store.Session())
	if err != nil {
		h.renderError(w, r, err)
		return web.PageData{}, nil, false
	}

	q := r.URL.Query()
	return web.PageData{
		Title:     title,
		Active:    active,
		User:      p,
		CSRFToken: middleware.CSRFTokenFromContext(r.Context()),
		Notice:    q.Get("notice"),
		Error:     q.Get("error"),
	}, p, true
}

func (h *PageHandler) renderError(w http.ResponseWriter, r *http.Request, err error) {
	slog.Error("ページの表示に失敗しました",
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	h.pages.Render(w, http.StatusInternalServerError, web.PageError, web.PageData{Title: "Error"})
}

// buildCalendar は月の日付を日曜始まりの週に分け、予定日時ごとに投稿を割り当てる。
func buildCalendar(start time.Time, posts []*model.Post, today time.Time) [][]calendarDay {
	byDay := make(map[string][]postResponse)
	for _, p := range posts {
		if p.ScheduledFor == nil {
			continue
		}
		key := p.ScheduledFor.UTC().Format("2006-01-02")
		byDay[key] = append(byDay[key], toPostResponse(p))
	}

	end := start.AddDate(0, 1, 0)
	day := start.AddDate(0, 0, -int(start.Weekday()))
	todayKey := today.UTC().Format("2006-01-02")

	var weeks [][]calendarDay
	for day.Before(end) {
		week := make([]calendarDay, 0, 7)
		for i := 0; i < 7; i++ {
			key := day.Format("2006-01-02")
			week = append(week, calendarDay{
				Day:     day.Day(),
				InMonth: day.Month() == start.Month(),
				Today:   key == todayKey,
				Posts:   byDay[key],
			})
			day = day.AddDate(0, 0, 1)
		}
		weeks = append(weeks, week)
	}
	return weeks
}
