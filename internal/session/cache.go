package session

import (
	"net/http"
	"sync"
	"time"
)

const (
	// AccessTokenCookie はアクセストークンを保存するCookie名。
	AccessTokenCookie = "sb_access_token"
	// RefreshTokenCookie はリフレッシュトークンを保存するCookie名。
	RefreshTokenCookie = "sb_refresh_token"
)

// Tokens はプロバイダーが発行した不透明なトークンの組。
type Tokens struct {
	AccessToken  string
	RefreshToken string
}

// Empty はトークンが1つも無いかどうかを返す。
func (t Tokens) Empty() bool {
	return t.AccessToken == "" && t.RefreshToken == ""
}

// TokenCache はブラウザコンテキストに永続化されるトークンのキャッシュ。
// 内容は参考値であり、正はプロバイダー側にある。
type TokenCache interface {
	Load() (Tokens, bool)
	Save(tokens Tokens)
	Clear()
}

// CookieConfig はトークンCookieの属性。
type CookieConfig struct {
	Domain string
	Secure bool
	MaxAge time.Duration // リフレッシュトークンの有効期間に合わせる
}

// CookieCache はHTTP Only Cookieを使うTokenCache。
// 同一リクエスト内でSave/Clearした結果はLoadに反映される。
type CookieCache struct {
	w      http.ResponseWriter
	r      *http.Request
	config CookieConfig

	pending *Tokens
}

// NewCookieCache はリクエストとレスポンスに紐づくCookieCacheを生成する。
func NewCookieCache(w http.ResponseWriter, r *http.Request, config CookieConfig) *CookieCache {
	return &CookieCache{w: w, r: r, config: config}
}

// Load はCookieからトークンを読み取る。
func (c *CookieCache) Load() (Tokens, bool) {
	if c.pending != nil {
		return *c.pending, !c.pending.Empty()
	}
	var t Tokens
	if ck, err := c.r.Cookie(AccessTokenCookie); err == nil {
		t.AccessToken = ck.Value
	}
	if ck, err := c.r.Cookie(RefreshTokenCookie); err == nil {
		t.RefreshToken = ck.Value
	}
	return t, !t.Empty()
}

// Save はトークンをCookieに書き込む。
func (c *CookieCache) Save(tokens Tokens) {
	c.pending = &tokens
	maxAge := int(c.config.MaxAge.Seconds())
	c.setCookie(AccessTokenCookie, tokens.AccessToken, maxAge)
	c.setCookie(RefreshTokenCookie, tokens.RefreshToken, maxAge)
}

// Clear はトークンCookieを削除する。
func (c *CookieCache) Clear() {
	c.pending = &Tokens{}
	c.setCookie(AccessTokenCookie, "", -1)
	c.setCookie(RefreshTokenCookie, "", -1)
}

func (c *CookieCache) setCookie(name, value string, maxAge int) {
	if value == "" {
		maxAge = -1
	}
	http.SetCookie(c.w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   c.config.Domain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   c.config.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// MemoryCache はメモリ上のTokenCache。テストとCLIで使用する。
type MemoryCache struct {
	mu     sync.Mutex
	tokens Tokens
}

// NewMemoryCache は初期トークンを持つMemoryCacheを生成する。
func NewMemoryCache(initial Tokens) *MemoryCache {
	return &MemoryCache{tokens: initial}
}

// Load は保持しているトークンを返す。
func (c *MemoryCache) Load() (Tokens, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tokens, !c.tokens.Empty()
}

// Save はトークンを保持する。
func (c *MemoryCache) Save(tokens Tokens) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens = tokens
}

// Clear は保持しているトークンを破棄する。
func (c *MemoryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens = Tokens{}
}

var (
	_ TokenCache = (*CookieCache)(nil)
	_ TokenCache = (*MemoryCache)(nil)
)
