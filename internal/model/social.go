package model

import (
	"encoding/json"
	"time"
)

// Platform はSNSプラットフォームの識別子。
type Platform string

const (
	PlatformFacebook  Platform = "facebook"
	PlatformInstagram Platform = "instagram"
	PlatformTwitter   Platform = "twitter"
	PlatformYouTube   Platform = "youtube"
	PlatformTikTok    Platform = "tiktok"
	PlatformThreads   Platform = "threads"
)

// AccountPlatforms はアカウント連携に対応するプラットフォーム。
var AccountPlatforms = []Platform{
	PlatformFacebook, PlatformInstagram, PlatformTwitter, PlatformYouTube,
}

// PostPlatforms は投稿先として選択できるプラットフォーム。
var PostPlatforms = []Platform{
	PlatformFacebook, PlatformInstagram, PlatformTwitter, PlatformYouTube,
	PlatformTikTok, PlatformThreads,
}

// IsAccountPlatform はアカウント連携可能なプラットフォームかどうかを返す。
func IsAccountPlatform(p Platform) bool {
	return containsPlatform(AccountPlatforms, p)
}

// IsPostPlatform は投稿先として有効なプラットフォームかどうかを返す。
func IsPostPlatform(p Platform) bool {
	return containsPlatform(PostPlatforms, p)
}

func containsPlatform(list []Platform, p Platform) bool {
	for _, v := range list {
		if v == p {
			return true
		}
	}
	return false
}

// SocialAccount はユーザーが連携したSNSアカウントを表す。
// アクセストークンはAPIレスポンスに含めない。
type SocialAccount struct {
	ID           string
	UserID       string
	Platform     Platform
	AccountName  string
	AccessToken  string
	RefreshToken string
	ExpiresAt    *time.Time
	IsConnected  bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// PostStatus は投稿の状態。
type PostStatus string

const (
	PostStatusDraft     PostStatus = "draft"
	PostStatusScheduled PostStatus = "scheduled"
	PostStatusPublished PostStatus = "published"
)

// Valid は投稿ステータスが定義済みの値かどうかを返す。
func (s PostStatus) Valid() bool {
	switch s {
	case PostStatusDraft, PostStatusScheduled, PostStatusPublished:
		return true
	}
	return false
}

// Post はSNS投稿を表す。プラットフォームへの実際の配信は行わない。
type Post struct {
	ID           string
	UserID       string
	Content      string
	ImageURL     string
	ScheduledFor *time.Time
	Status       PostStatus
	Platforms    []Platform
	Performance  json.RawMessage
	CreatedAt    time.Time
}
