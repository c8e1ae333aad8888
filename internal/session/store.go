// Package session はブラウザコンテキストごとの認証状態を管理するSession Storeを提供する。
// 状態はloading、authenticated、unauthenticatedのいずれかで、
// 遷移はすべてStoreを経由し、購読者に同期的に通知される。
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/socialburst/internal/auth"
	"github.com/hitoshi/socialburst/internal/model"
)

// State はSession Storeの状態。
type State string

const (
	StateLoading         State = "loading"
	StateAuthenticated   State = "authenticated"
	StateUnauthenticated State = "unauthenticated"
)

// ErrClosed はClose済みのStoreを操作した場合のエラー。
var ErrClosed = errors.New("session store is closed")

// Snapshot はある時点の状態。Sessionは認証済みの場合のみ非nil。
type Snapshot struct {
	State   State
	Session *model.Session
}

// UserID は認証済みユーザーのIDを返す。未認証の場合は空文字。
func (s Snapshot) UserID() string {
	if s.Session == nil {
		return ""
	}
	return s.Session.UserID
}

// Listener は状態遷移の通知を受け取る関数。
type Listener func(Snapshot)

// Observer は認証操作と状態遷移を観測する。metrics.Collectorが実装する。
type Observer interface {
	AuthAttempt(operation, outcome string)
	SessionTransition(state string)
}

type noopObserver struct{}

func (noopObserver) AuthAttempt(string, string) {}
func (noopObserver) SessionTransition(string)   {}

type listenerEntry struct {
	id int
	fn Listener
}

// Store は1つのブラウザコンテキストの認証状態を保持する。
// 並行利用可能。リスナーはロックの外で同期的に呼び出される。
type Store struct {
	provider auth.Provider
	cache    TokenCache
	observer Observer
	now      func() time.Time
	onClose  func()

	mu        sync.Mutex
	state     State
	session   *model.Session
	listeners []listenerEntry
	nextID    int
	closed    bool
}

// NewStore はloading状態のStoreを生成する。通常はFactory経由で生成する。
func NewStore(provider auth.Provider, cache TokenCache, observer Observer) *Store {
	if observer == nil {
		observer = noopObserver{}
	}
	return &Store{
		provider: provider,
		cache:    cache,
		observer: observer,
		now:      time.Now,
		state:    StateLoading,
	}
}

// State は現在の状態を返す。有効期限を過ぎたセッションはここでunauthenticatedに遷移する。
func (s *Store) State() State {
	return s.Snapshot().State
}

// Session は現在のセッションのコピーを返す。認証済みでない場合はnil。
func (s *Store) Session() *model.Session {
	return s.Snapshot().Session
}

// UserID は認証済みユーザーのIDを返す。
func (s *Store) UserID() string {
	return s.Snapshot().UserID()
}

// Snapshot は現在の状態を返す。
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	if s.state == StateAuthenticated && s.session.Expired(s.now()) {
		slog.Info("セッションの有効期限が切れました", slog.String("user_id", s.session.UserID))
		notify := s.transitionLocked(StateUnauthenticated, nil)
		snap := s.snapshotLocked()
		s.mu.Unlock()
		notify()
		return snap
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()
	return snap
}

// Subscribe はリスナーを登録し、登録解除用の関数を返す。
func (s *Store) Subscribe(fn Listener) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return func() {}
	}
	s.nextID++
	id := s.nextID
	s.listeners = append(s.listeners, listenerEntry{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, l := range s.listeners {
				if l.id == id {
					s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

// Init は永続化されたトークンからセッションを復元する。
// プロバイダーに到達できない場合はloadingのままエラーを返し、キャッシュは保持する。
func (s *Store) Init(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.state != StateLoading {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	tokens, ok := s.cache.Load()
	if !ok {
		s.resolve(StateUnauthenticated, nil)
		return nil
	}

	if tokens.AccessToken != "" {
		sess, err := s.provider.GetSession(ctx, tokens.AccessToken)
		if err == nil {
			sess.RefreshToken = tokens.RefreshToken
			s.resolve(StateAuthenticated, sess)
			return nil
		}
		switch auth.KindOf(err) {
		case auth.KindTokenExpired:
			// リフレッシュを試みる
		case auth.KindInvalidSession, auth.KindInvalidCredentials:
			s.cache.Clear()
			s.resolve(StateUnauthenticated, nil)
			return nil
		default:
			slog.Warn("セッションの復元を延期しました",
				slog.String("error", err.Error()),
			)
			return err
		}
	}

	if tokens.RefreshToken == "" {
		s.cache.Clear()
		s.resolve(StateUnauthenticated, nil)
		return nil
	}

	sess, err := s.provider.Refresh(ctx, tokens.RefreshToken)
	if err != nil {
		if auth.KindOf(err) == auth.KindUnavailable {
			slog.Warn("セッションの更新を延期しました",
				slog.String("error", err.Error()),
			)
			return err
		}
		s.cache.Clear()
		s.resolve(StateUnauthenticated, nil)
		return nil
	}
	s.cache.Save(tokensOf(sess))
	s.resolve(StateAuthenticated, sess)
	return nil
}

// SignIn はメールアドレスとパスワードでサインインする。
// 認証済みの状態で別のセッションを確立した場合、以前のセッションは失効させる。
func (s *Store) SignIn(ctx context.Context, email, password string) (*model.Session, error) {
	return s.establish(ctx, "signin", func() (*model.Session, error) {
		return s.provider.SignIn(ctx, model.AuthRequest{Email: email, Password: password})
	})
}

// SignUp はアカウントを作成してサインインする。
func (s *Store) SignUp(ctx context.Context, req model.AuthRequest) (*model.Session, error) {
	return s.establish(ctx, "signup", func() (*model.Session, error) {
		return s.provider.SignUp(ctx, req)
	})
}

func (s *Store) establish(ctx context.Context, operation string, call func() (*model.Session, error)) (*model.Session, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	s.mu.Unlock()

	sess, err := call()
	if err != nil {
		kind := auth.KindOf(err)
		s.observer.AuthAttempt(operation, outcomeOf(kind))
		if kind != auth.KindUnavailable && kind != "" {
			s.mu.Lock()
			if s.state == StateLoading {
				notify := s.transitionLocked(StateUnauthenticated, nil)
				s.mu.Unlock()
				notify()
			} else {
				s.mu.Unlock()
			}
		}
		return nil, err
	}
	s.observer.AuthAttempt(operation, "success")

	s.mu.Lock()
	previous := s.session
	notify := s.transitionLocked(StateAuthenticated, sess)
	s.mu.Unlock()

	s.cache.Save(tokensOf(sess))
	notify()

	if previous != nil && previous.AccessToken != "" && previous.AccessToken != sess.AccessToken {
		if err := s.provider.SignOut(ctx, previous.AccessToken); err != nil {
			slog.Warn("以前のセッションの失効に失敗しました",
				slog.String("user_id", previous.UserID),
				slog.String("error", err.Error()),
			)
		}
	}

	return copySession(sess), nil
}

// SignOut はセッションを破棄する。状態とキャッシュは無条件にクリアし、
// プロバイダーでの失効に失敗した場合はログに記録するのみでエラーは返さない。
func (s *Store) SignOut(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	accessToken := ""
	if s.session != nil {
		accessToken = s.session.AccessToken
	}
	notify := s.transitionLocked(StateUnauthenticated, nil)
	s.mu.Unlock()

	if accessToken == "" {
		if tokens, ok := s.cache.Load(); ok {
			accessToken = tokens.AccessToken
		}
	}
	s.cache.Clear()
	notify()

	if accessToken != "" {
		if err := s.provider.SignOut(ctx, accessToken); err != nil {
			slog.Warn("セッションの失効に失敗しました",
				slog.String("error", err.Error()),
			)
		}
	}
	s.observer.AuthAttempt("signout", "success")
	return nil
}

// Refresh はリフレッシュトークンでトークンを更新する。
// プロバイダーに拒否された場合はunauthenticatedに遷移し、キャッシュをクリアする。
func (s *Store) Refresh(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	refreshToken := ""
	if s.session != nil {
		refreshToken = s.session.RefreshToken
	}
	s.mu.Unlock()

	if refreshToken == "" {
		if tokens, ok := s.cache.Load(); ok {
			refreshToken = tokens.RefreshToken
		}
	}

	sess, err := s.provider.Refresh(ctx, refreshToken)
	if err != nil {
		kind := auth.KindOf(err)
		s.observer.AuthAttempt("refresh", outcomeOf(kind))
		if kind == auth.KindUnavailable {
			return err
		}
		s.cache.Clear()
		s.resolve(StateUnauthenticated, nil)
		return err
	}
	s.observer.AuthAttempt("refresh", "success")
	s.cache.Save(tokensOf(sess))
	s.resolve(StateAuthenticated, sess)
	return nil
}

// Close はStoreのライフサイクルを終了し、リスナーを解除する。
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.closed = true
	s.listeners = nil
	onClose := s.onClose
	s.mu.Unlock()

	if onClose != nil {
		onClose()
	}
	return nil
}

func (s *Store) resolve(state State, sess *model.Session) {
	s.mu.Lock()
	notify := s.transitionLocked(state, sess)
	s.mu.Unlock()
	notify()
}

// transitionLocked は状態を更新し、通知が必要な場合はリスナーを呼び出す関数を返す。
// 呼び出し側はs.muを保持していること。返された関数はロック解放後に呼び出す。
func (s *Store) transitionLocked(state State, sess *model.Session) func() {
	prevState := s.state
	prevUser := ""
	if s.session != nil {
		prevUser = s.session.UserID
	}

	s.state = state
	s.session = copySession(sess)

	newUser := ""
	if s.session != nil {
		newUser = s.session.UserID
	}
	if prevState == state && prevUser == newUser {
		return func() {}
	}

	s.observer.SessionTransition(string(state))
	snap := s.snapshotLocked()
	listeners := make([]Listener, len(s.listeners))
	for i, l := range s.listeners {
		listeners[i] = l.fn
	}
	return func() {
		for _, fn := range listeners {
			fn(snap)
		}
	}
}

func (s *Store) snapshotLocked() Snapshot {
	return Snapshot{State: s.state, Session: copySession(s.session)}
}

func copySession(sess *model.Session) *model.Session {
	if sess == nil {
		return nil
	}
	c := *sess
	return &c
}

func tokensOf(sess *model.Session) Tokens {
	return Tokens{AccessToken: sess.AccessToken, RefreshToken: sess.RefreshToken}
}

func outcomeOf(kind auth.Kind) string {
	if kind == "" {
		return "error"
	}
	return string(kind)
}
