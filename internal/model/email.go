package model

import (
	"encoding/json"
	"time"
)

// CampaignStatus はメールキャンペーンの保存上の状態。
type CampaignStatus string

const (
	CampaignStatusDraft CampaignStatus = "draft"
	CampaignStatusSent  CampaignStatus = "sent"
)

// EmailCampaign はメールキャンペーンを表す。
// 「送信」はステータスの更新のみで、実際の配信は行わない。
type EmailCampaign struct {
	ID              string
	UserID          string
	Name            string
	Subject         string
	Content         string
	Status          CampaignStatus
	ScheduledFor    *time.Time
	SentAt          *time.Time
	RecipientListID string
	Stats           *CampaignStats
	CreatedAt       time.Time
}

// CampaignStats は送信済みキャンペーンの集計値。
type CampaignStats struct {
	Recipients int     `json:"recipients"`
	OpenRate   float64 `json:"open_rate"`
	ClickRate  float64 `json:"click_rate"`
}

// DisplayStatus は一覧表示用のラベルを返す。
// 送信済みはSent、予約日時があればScheduled、それ以外はDraft。
func (c *EmailCampaign) DisplayStatus() string {
	switch {
	case c.Status == CampaignStatusSent:
		return "Sent"
	case c.ScheduledFor != nil:
		return "Scheduled"
	default:
		return "Draft"
	}
}

// EmailList は購読者リストを表す。
type EmailList struct {
	ID              string
	UserID          string
	Name            string
	Description     string
	SubscriberCount int
	CreatedAt       time.Time
}

// SubscriberStatus は購読者の状態。
type SubscriberStatus string

const (
	SubscriberStatusSubscribed   SubscriberStatus = "subscribed"
	SubscriberStatusUnsubscribed SubscriberStatus = "unsubscribed"
)

// Subscriber はリストに属する購読者を表す。
type Subscriber struct {
	ID        string
	ListID    string
	Email     string
	FirstName string
	LastName  string
	Status    SubscriberStatus
	Metadata  json.RawMessage
	CreatedAt time.Time
}

// EmailStats はメールマーケティング画面の集計値。
type EmailStats struct {
	TotalSubscribers int
	TotalCampaigns   int
	TotalLists       int
	OpenRate         float64
	ClickRate        float64
}
