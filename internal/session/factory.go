package session

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/hitoshi/socialburst/internal/auth"
)

// FactoryConfig はFactoryの設定。
type FactoryConfig struct {
	Cookie   CookieConfig
	Observer Observer
}

// Factory はブラウザコンテキストごとのStoreを生成する。
// アプリケーション起動時に1つ生成し、終了時にCloseする。
type Factory struct {
	provider auth.Provider
	config   FactoryConfig

	mu     sync.Mutex
	open   int
	closed bool
}

// NewFactory はFactoryを生成する。
func NewFactory(provider auth.Provider, config FactoryConfig) *Factory {
	if config.Observer == nil {
		config.Observer = noopObserver{}
	}
	return &Factory{provider: provider, config: config}
}

// New は指定キャッシュを使うloading状態のStoreを生成する。
func (f *Factory) New(cache TokenCache) (*Store, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, ErrClosed
	}
	f.open++

	s := NewStore(f.provider, cache, f.config.Observer)
	s.onClose = f.release
	return s, nil
}

// FromRequest はリクエストのCookieを永続化先とするStoreを生成する。
func (f *Factory) FromRequest(w http.ResponseWriter, r *http.Request) (*Store, error) {
	return f.New(NewCookieCache(w, r, f.config.Cookie))
}

// Open は生成済みで未CloseのStoreの数を返す。
func (f *Factory) Open() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

// Close はFactoryを終了する。以降のNewはErrClosedを返す。
func (f *Factory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	f.closed = true
	if f.open > 0 {
		slog.Warn("開いたままのセッションがある状態でファクトリーを閉じました", slog.Int("open", f.open))
	}
	return nil
}

func (f *Factory) release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.open--
}

type storeContextKey struct{}

// WithStore はコンテキストにStoreを格納する。
func WithStore(ctx context.Context, s *Store) context.Context {
	return context.WithValue(ctx, storeContextKey{}, s)
}

// FromContext はコンテキストからStoreを取得する。無い場合はnil。
func FromContext(ctx context.Context) *Store {
	s, _ := ctx.Value(storeContextKey{}).(*Store)
	return s
}
