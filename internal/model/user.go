// Package model はドメインモデルを定義する。
package model

import "time"

// User は認証プロバイダーが管理するアカウントを表す。
// PasswordHashはLocalProviderのみが使用する。
type User struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Session はブラウザコンテキストにおける認証済みの識別情報とトークンを表す。
// Session Storeだけが所有し、サインイン/サインアップで生成され、
// トークン更新でリフレッシュされ、サインアウトまたは期限切れで破棄される。
type Session struct {
	UserID       string
	Email        string
	DisplayName  string
	Expiry       time.Time
	AccessToken  string
	RefreshToken string
}

// Expired は指定時刻においてセッションが期限切れかどうかを返す。
func (s *Session) Expired(now time.Time) bool {
	return !s.Expiry.IsZero() && !now.Before(s.Expiry)
}

// SessionRecord はLocalProviderがsessionsテーブルに保存するセッション行を表す。
// リフレッシュトークンは平文を保存せず、SHA-256ハッシュのみを保持する。
type SessionRecord struct {
	ID               string
	UserID           string
	RefreshTokenHash string
	ExpiresAt        time.Time
	CreatedAt        time.Time
}

// AuthRequest はサインイン/サインアップの入力を表す一時的な値オブジェクト。
// 永続化されない。
type AuthRequest struct {
	Email    string
	Password string
	Name     string
}
