// Package web はサーバーサイドで描画するHTMLページを提供する。
// テンプレートはバイナリに埋め込み、起動時に一度だけ解析する。
package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/socialburst/internal/model"
)

//go:embed templates/*.html
var templatesFS embed.FS

// ページテンプレート名。
const (
	PageLanding            = "landing"
	PageAuth               = "auth"
	PageLoading            = "loading"
	PageError              = "error"
	PageNotFound           = "not_found"
	PageDashboard          = "dashboard"
	PageCalendar           = "calendar"
	PageAnalytics          = "analytics"
	PageSettings           = "settings"
	PageCreate             = "create"
	PageEmailMarketing     = "email_marketing"
	PageCustomizeDashboard = "customize_dashboard"
)

var pageNames = []string{
	PageLanding, PageAuth, PageLoading, PageError, PageNotFound,
	PageDashboard, PageCalendar, PageAnalytics, PageSettings,
	PageCreate, PageEmailMarketing, PageCustomizeDashboard,
}

// PageData はすべてのページに共通のテンプレートデータ。
type PageData struct {
	Title     string
	Active    string         // サイドバーで強調するナビゲーション項目
	User      *model.Profile // nilの場合はヘッダーとサイドバーを表示しない
	CSRFToken string
	Notice    string
	Error     string
	Data      any
}

// NavItem はサイドバーのリンク。
type NavItem struct {
	Key   string
	Label string
	Path  string
}

// Navigation はサイドバーに表示するリンク。
var Navigation = []NavItem{
	{Key: "dashboard", Label: "Dashboard", Path: "/dashboard"},
	{Key: "create", Label: "Create Post", Path: "/create"},
	{Key: "calendar", Label: "Calendar", Path: "/calendar"},
	{Key: "analytics", Label: "Analytics", Path: "/analytics"},
	{Key: "email", Label: "Email Marketing", Path: "/email-marketing"},
	{Key: "settings", Label: "Settings", Path: "/settings"},
}

// Renderer は解析済みのページテンプレートを保持する。並行に使用してよい。
type Renderer struct {
	pages map[string]*template.Template
}

// NewRenderer は埋め込みテンプレートを解析してRendererを生成する。
func NewRenderer() (*Renderer, error) {
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		tpl, err := template.New("layout.html").Funcs(funcMap()).ParseFS(
			templatesFS, "templates/layout.html", "templates/"+name+".html",
		)
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}
		pages[name] = tpl
	}
	return &Renderer{pages: pages}, nil
}

// MustNewRenderer はNewRendererを呼び、失敗した場合はpanicする。
func MustNewRenderer() *Renderer {
	r, err := NewRenderer()
	if err != nil {
		panic(err)
	}
	return r
}

// Render はページを描画してステータスコードとともに書き込む。
// 描画はバッファに対して行い、失敗した場合は500のエラーページを返す。
func (r *Renderer) Render(w http.ResponseWriter, status int, name string, data PageData) {
	tpl, ok := r.pages[name]
	if !ok {
		slog.Error("テンプレートが見つかりません", slog.String("template", name))
		writeRenderError(w)
		return
	}

	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		slog.Error("テンプレートの描画に失敗しました",
			slog.String("template", name),
			slog.String("error", err.Error()),
		)
		writeRenderError(w)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// Handler は固定内容のページを返すハンドラーを生成する。
// Route Guardのプレースホルダーやpanic時のエラーページに使用する。
func (r *Renderer) Handler(status int, name, title string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		r.Render(w, status, name, PageData{Title: title})
	})
}

func writeRenderError(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusInternalServerError)
	_, _ = w.Write([]byte(`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8"><title>Something went wrong</title></head>` +
		`<body><h1>Something went wrong</h1><a href="/">Return to home</a></body></html>`))
}

func funcMap() template.FuncMap {
	return template.FuncMap{
		"nav":           func() []NavItem { return Navigation },
		"datetime":      formatDateTime,
		"date":          formatDate,
		"platformLabel": PlatformLabel,
		"percent":       func(v float64) string { return fmt.Sprintf("%.1f%%", v) },
		"initial": func(name string) string {
			name = strings.TrimSpace(name)
			if name == "" {
				return "?"
			}
			return strings.ToUpper(string([]rune(name)[:1]))
		},
		"hasPlatform": func(list []model.Platform, p model.Platform) bool {
			for _, v := range list {
				if v == p {
					return true
				}
			}
			return false
		},
	}
}

func formatDateTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "Not scheduled"
	}
	return t.UTC().Format("Jan 2, 2006 3:04 PM")
}

func formatDate(t time.Time) string {
	return t.UTC().Format("Jan 2, 2006")
}

// PlatformLabel はプラットフォームの表示名を返す。
func PlatformLabel(p model.Platform) string {
	switch p {
	case model.PlatformFacebook:
		return "Facebook"
	case model.PlatformInstagram:
		return "Instagram"
	case model.PlatformTwitter:
		return "Twitter"
	case model.PlatformYouTube:
		return "YouTube"
	case model.PlatformTikTok:
		return "TikTok"
	case model.PlatformThreads:
		return "Threads"
	default:
		return string(p)
	}
}
