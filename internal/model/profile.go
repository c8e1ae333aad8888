package model

import "time"

// Theme はUIのカラーテーマ。
type Theme string

const (
	ThemeLight  Theme = "light"
	ThemeDark   Theme = "dark"
	ThemeSystem Theme = "system"
)

// Valid はテーマが定義済みの値かどうかを返す。
func (t Theme) Valid() bool {
	switch t {
	case ThemeLight, ThemeDark, ThemeSystem:
		return true
	}
	return false
}

// Profile はユーザーの表示用プロフィールを表す。IDはユーザーIDと同一。
type Profile struct {
	ID          string
	Email       string
	Name        string
	AvatarURL   string
	Theme       Theme
	Preferences DashboardPreferences
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// DashboardPreferences はダッシュボードのカスタマイズ設定。
type DashboardPreferences struct {
	Platforms map[Platform]bool `json:"platforms"`
	Widgets   map[Widget]bool   `json:"widgets"`
}

// Widget はダッシュボードに表示するウィジェットの種別。
type Widget string

const (
	WidgetQuickStats          Widget = "quickStats"
	WidgetUpcomingPosts       Widget = "upcomingPosts"
	WidgetRecentActivity      Widget = "recentActivity"
	WidgetPlatformPerformance Widget = "platformPerformance"
)

// DefaultDashboardPreferences は新規プロフィールの初期設定を返す。
func DefaultDashboardPreferences() DashboardPreferences {
	return DashboardPreferences{
		Platforms: map[Platform]bool{
			PlatformFacebook:  true,
			PlatformInstagram: true,
			PlatformTwitter:   true,
			PlatformYouTube:   false,
		},
		Widgets: map[Widget]bool{
			WidgetQuickStats:          true,
			WidgetUpcomingPosts:       true,
			WidgetRecentActivity:      true,
			WidgetPlatformPerformance: true,
		},
	}
}

// WidgetEnabled はウィジェットが有効かどうかを返す。未設定のウィジェットは有効扱い。
func (p DashboardPreferences) WidgetEnabled(w Widget) bool {
	enabled, ok := p.Widgets[w]
	return !ok || enabled
}
