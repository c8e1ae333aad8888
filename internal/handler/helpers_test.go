package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/socialburst/internal/auth"
	"github.com/hitoshi/socialburst/internal/campaign"
	"github.com/hitoshi/socialburst/internal/emaillist"
	"github.com/hitoshi/socialburst/internal/middleware"
	"github.com/hitoshi/socialburst/internal/model"
	"github.com/hitoshi/socialburst/internal/post"
	"github.com/hitoshi/socialburst/internal/profile"
	"github.com/hitoshi/socialburst/internal/session"
	"github.com/hitoshi/socialburst/internal/trend"
	"github.com/hitoshi/socialburst/internal/web"
)

// --- モック定義 ---

type mockProvider struct {
	signInFn     func(ctx context.Context, req model.AuthRequest) (*model.Session, error)
	signUpFn     func(ctx context.Context, req model.AuthRequest) (*model.Session, error)
	signOutFn    func(ctx context.Context, accessToken string) error
	getSessionFn func(ctx context.Context, accessToken string) (*model.Session, error)
	refreshFn    func(ctx context.Context, refreshToken string) (*model.Session, error)
}

func (m *mockProvider) SignIn(ctx context.Context, req model.AuthRequest) (*model.Session, error) {
	if m.signInFn != nil {
		return m.signInFn(ctx, req)
	}
	return nil, &auth.Error{Kind: auth.KindInvalidCredentials, Message: "Invalid email or password."}
}

func (m *mockProvider) SignUp(ctx context.Context, req model.AuthRequest) (*model.Session, error) {
	if m.signUpFn != nil {
		return m.signUpFn(ctx, req)
	}
	return nil, &auth.Error{Kind: auth.KindDuplicateEmail, Message: "already registered"}
}

func (m *mockProvider) SignOut(ctx context.Context, accessToken string) error {
	if m.signOutFn != nil {
		return m.signOutFn(ctx, accessToken)
	}
	return nil
}

func (m *mockProvider) GetSession(ctx context.Context, accessToken string) (*model.Session, error) {
	if m.getSessionFn != nil {
		return m.getSessionFn(ctx, accessToken)
	}
	return nil, &auth.Error{Kind: auth.KindInvalidSession, Message: "invalid"}
}

func (m *mockProvider) Refresh(ctx context.Context, refreshToken string) (*model.Session, error) {
	if m.refreshFn != nil {
		return m.refreshFn(ctx, refreshToken)
	}
	return nil, &auth.Error{Kind: auth.KindInvalidSession, Message: "invalid"}
}

type mockProfileService struct {
	ensureFn            func(ctx context.Context, sess *model.Session) (*model.Profile, error)
	updateFn            func(ctx context.Context, userID string, in profile.UpdateInput) (*model.Profile, error)
	updatePreferencesFn func(ctx context.Context, userID string, prefs model.DashboardPreferences) (*model.Profile, error)
	listAccountsFn      func(ctx context.Context, userID string) ([]*model.SocialAccount, error)
	connectFn           func(ctx context.Context, userID string, in profile.ConnectInput) (*model.SocialAccount, error)
	disconnectFn        func(ctx context.Context, userID string, platform model.Platform) (*model.SocialAccount, error)
}

func (m *mockProfileService) Ensure(ctx context.Context, sess *model.Session) (*model.Profile, error) {
	if m.ensureFn != nil {
		return m.ensureFn(ctx, sess)
	}
	return testProfile(sess.UserID), nil
}

func (m *mockProfileService) Update(ctx context.Context, userID string, in profile.UpdateInput) (*model.Profile, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, userID, in)
	}
	return testProfile(userID), nil
}

func (m *mockProfileService) UpdatePreferences(ctx context.Context, userID string, prefs model.DashboardPreferences) (*model.Profile, error) {
	if m.updatePreferencesFn != nil {
		return m.updatePreferencesFn(ctx, userID, prefs)
	}
	p := testProfile(userID)
	p.Preferences = prefs
	return p, nil
}

func (m *mockProfileService) ListAccounts(ctx context.Context, userID string) ([]*model.SocialAccount, error) {
	if m.listAccountsFn != nil {
		return m.listAccountsFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockProfileService) Connect(ctx context.Context, userID string, in profile.ConnectInput) (*model.SocialAccount, error) {
	if m.connectFn != nil {
		return m.connectFn(ctx, userID, in)
	}
	return &model.SocialAccount{ID: "acc-1", UserID: userID, Platform: in.Platform, AccountName: in.AccountName, IsConnected: true}, nil
}

func (m *mockProfileService) Disconnect(ctx context.Context, userID string, platform model.Platform) (*model.SocialAccount, error) {
	if m.disconnectFn != nil {
		return m.disconnectFn(ctx, userID, platform)
	}
	return &model.SocialAccount{ID: "acc-1", UserID: userID, Platform: platform}, nil
}

type mockPostService struct {
	createFn   func(ctx context.Context, userID string, in post.Input) (*model.Post, error)
	updateFn   func(ctx context.Context, userID, id string, in post.Input) (*model.Post, error)
	getFn      func(ctx context.Context, userID, id string) (*model.Post, error)
	deleteFn   func(ctx context.Context, userID, id string) error
	listFn     func(ctx context.Context, userID string, in post.ListInput) ([]*model.Post, error)
	upcomingFn func(ctx context.Context, userID string, limit int) ([]*model.Post, error)
	publishFn  func(ctx context.Context, userID, id string) (*model.Post, error)
	countsFn   func(ctx context.Context, userID string) (map[model.PostStatus]int, error)
	ideasFn    func(keyword string) ([]post.Idea, error)
}

func (m *mockPostService) Create(ctx context.Context, userID string, in post.Input) (*model.Post, error) {
	if m.createFn != nil {
		return m.createFn(ctx, userID, in)
	}
	return &model.Post{ID: "post-1", UserID: userID, Content: in.Content, Status: model.PostStatusDraft}, nil
}

func (m *mockPostService) Update(ctx context.Context, userID, id string, in post.Input) (*model.Post, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, userID, id, in)
	}
	return &model.Post{ID: id, UserID: userID, Content: in.Content, Status: model.PostStatusDraft}, nil
}

func (m *mockPostService) Get(ctx context.Context, userID, id string) (*model.Post, error) {
	if m.getFn != nil {
		return m.getFn(ctx, userID, id)
	}
	return nil, model.NewNotFoundError("Post", id)
}

func (m *mockPostService) Delete(ctx context.Context, userID, id string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, userID, id)
	}
	return nil
}

func (m *mockPostService) List(ctx context.Context, userID string, in post.ListInput) ([]*model.Post, error) {
	if m.listFn != nil {
		return m.listFn(ctx, userID, in)
	}
	return nil, nil
}

func (m *mockPostService) Upcoming(ctx context.Context, userID string, limit int) ([]*model.Post, error) {
	if m.upcomingFn != nil {
		return m.upcomingFn(ctx, userID, limit)
	}
	return nil, nil
}

func (m *mockPostService) Publish(ctx context.Context, userID, id string) (*model.Post, error) {
	if m.publishFn != nil {
		return m.publishFn(ctx, userID, id)
	}
	return &model.Post{ID: id, UserID: userID, Status: model.PostStatusPublished}, nil
}

func (m *mockPostService) Counts(ctx context.Context, userID string) (map[model.PostStatus]int, error) {
	if m.countsFn != nil {
		return m.countsFn(ctx, userID)
	}
	return map[model.PostStatus]int{}, nil
}

func (m *mockPostService) Ideas(keyword string) ([]post.Idea, error) {
	if m.ideasFn != nil {
		return m.ideasFn(keyword)
	}
	return []post.Idea{{Title: "Idea about " + keyword, Content: "Idea about " + keyword}}, nil
}

type mockCampaignService struct {
	createFn  func(ctx context.Context, userID string, in campaign.Input) (*model.EmailCampaign, error)
	updateFn  func(ctx context.Context, userID, id string, in campaign.Input) (*model.EmailCampaign, error)
	getFn     func(ctx context.Context, userID, id string) (*model.EmailCampaign, error)
	listFn    func(ctx context.Context, userID string) ([]*model.EmailCampaign, error)
	deleteFn  func(ctx context.Context, userID, id string) error
	sendFn    func(ctx context.Context, userID, id string) (*model.EmailCampaign, error)
	previewFn func(content string) (string, error)
	statsFn   func(ctx context.Context, userID string) (*model.EmailStats, error)
}

func (m *mockCampaignService) Create(ctx context.Context, userID string, in campaign.Input) (*model.EmailCampaign, error) {
	if m.createFn != nil {
		return m.createFn(ctx, userID, in)
	}
	return &model.EmailCampaign{ID: "camp-1", UserID: userID, Name: in.Name, Status: model.CampaignStatusDraft}, nil
}

func (m *mockCampaignService) Update(ctx context.Context, userID, id string, in campaign.Input) (*model.EmailCampaign, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, userID, id, in)
	}
	return &model.EmailCampaign{ID: id, UserID: userID, Name: in.Name, Status: model.CampaignStatusDraft}, nil
}

func (m *mockCampaignService) Get(ctx context.Context, userID, id string) (*model.EmailCampaign, error) {
	if m.getFn != nil {
		return m.getFn(ctx, userID, id)
	}
	return nil, model.NewNotFoundError("Campaign", id)
}

func (m *mockCampaignService) List(ctx context.Context, userID string) ([]*model.EmailCampaign, error) {
	if m.listFn != nil {
		return m.listFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockCampaignService) Delete(ctx context.Context, userID, id string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, userID, id)
	}
	return nil
}

func (m *mockCampaignService) Send(ctx context.Context, userID, id string) (*model.EmailCampaign, error) {
	if m.sendFn != nil {
		return m.sendFn(ctx, userID, id)
	}
	return &model.EmailCampaign{ID: id, UserID: userID, Status: model.CampaignStatusSent}, nil
}

func (m *mockCampaignService) Preview(content string) (string, error) {
	if m.previewFn != nil {
		return m.previewFn(content)
	}
	return "<p>" + content + "</p>", nil
}

func (m *mockCampaignService) Stats(ctx context.Context, userID string) (*model.EmailStats, error) {
	if m.statsFn != nil {
		return m.statsFn(ctx, userID)
	}
	return &model.EmailStats{}, nil
}

type mockEmailListService struct {
	createFn      func(ctx context.Context, userID, name, description string) (*model.EmailList, error)
	listFn        func(ctx context.Context, userID string) ([]*model.EmailList, error)
	deleteFn      func(ctx context.Context, userID, id string) error
	subscribersFn func(ctx context.Context, userID, listID string) ([]*model.Subscriber, error)
	importFn      func(ctx context.Context, userID, listID, raw string) (*emaillist.ImportResult, error)
	unsubscribeFn func(ctx context.Context, userID, listID, subscriberID string) (*model.Subscriber, error)
}

func (m *mockEmailListService) Create(ctx context.Context, userID, name, description string) (*model.EmailList, error) {
	if m.createFn != nil {
		return m.createFn(ctx, userID, name, description)
	}
	return &model.EmailList{ID: "list-1", UserID: userID, Name: name, Description: description}, nil
}

func (m *mockEmailListService) List(ctx context.Context, userID string) ([]*model.EmailList, error) {
	if m.listFn != nil {
		return m.listFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockEmailListService) Delete(ctx context.Context, userID, id string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, userID, id)
	}
	return nil
}

func (m *mockEmailListService) Subscribers(ctx context.Context, userID, listID string) ([]*model.Subscriber, error) {
	if m.subscribersFn != nil {
		return m.subscribersFn(ctx, userID, listID)
	}
	return nil, nil
}

func (m *mockEmailListService) Import(ctx context.Context, userID, listID, raw string) (*emaillist.ImportResult, error) {
	if m.importFn != nil {
		return m.importFn(ctx, userID, listID, raw)
	}
	return &emaillist.ImportResult{}, nil
}

func (m *mockEmailListService) Unsubscribe(ctx context.Context, userID, listID, subscriberID string) (*model.Subscriber, error) {
	if m.unsubscribeFn != nil {
		return m.unsubscribeFn(ctx, userID, listID, subscriberID)
	}
	return &model.Subscriber{ID: subscriberID, ListID: listID, Status: model.SubscriberStatusUnsubscribed}, nil
}

type mockTrendService struct {
	recommendations []trend.Recommendation
}

func (m *mockTrendService) Recommendations(ctx context.Context) []trend.Recommendation {
	return m.recommendations
}

type mockUserService struct {
	withdrawFn func(ctx context.Context, userID string) error
}

func (m *mockUserService) Withdraw(ctx context.Context, userID string) error {
	if m.withdrawFn != nil {
		return m.withdrawFn(ctx, userID)
	}
	return nil
}

// --- テストヘルパー ---

func testProfile(userID string) *model.Profile {
	return &model.Profile{
		ID:          userID,
		Email:       "user@example.com",
		Name:        "Test User",
		Theme:       model.ThemeLight,
		Preferences: model.DefaultDashboardPreferences(),
	}
}

func testSession(userID string) *model.Session {
	return &model.Session{
		UserID:       userID,
		Email:        "user@example.com",
		DisplayName:  "Test User",
		Expiry:       time.Now().Add(time.Hour),
		AccessToken:  "access-" + userID,
		RefreshToken: "refresh-" + userID,
	}
}

// newTestPages はテスト用のRendererを生成する。
func newTestPages(t *testing.T) *web.Renderer {
	t.Helper()
	pages, err := web.NewRenderer()
	if err != nil {
		t.Fatalf("NewRenderer() error = %v", err)
	}
	return pages
}

// newStore は指定トークンで復元したStoreを生成する。tokensが空の場合は未認証になる。
func newStore(t *testing.T, provider auth.Provider, tokens session.Tokens) *session.Store {
	t.Helper()
	store := session.NewStore(provider, session.NewMemoryCache(tokens), nil)
	t.Cleanup(func() { store.Close() })
	_ = store.Init(context.Background())
	return store
}

// newAuthenticatedStore はuserIDで認証済みのStoreを生成する。
func newAuthenticatedStore(t *testing.T, userID string) *session.Store {
	t.Helper()
	provider := &mockProvider{
		getSessionFn: func(ctx context.Context, accessToken string) (*model.Session, error) {
			return testSession(userID), nil
		},
	}
	store := newStore(t, provider, session.Tokens{AccessToken: "access-" + userID})
	if store.State() != session.StateAuthenticated {
		t.Fatalf("State() = %q, want %q", store.State(), session.StateAuthenticated)
	}
	return store
}

// withStore はリクエストコンテキストにSession Storeを注入するヘルパー。
func withStore(r *http.Request, store *session.Store) *http.Request {
	return r.WithContext(session.WithStore(r.Context(), store))
}

// withUserID はテスト用にリクエストコンテキストにユーザーIDを注入するヘルパー。
func withUserID(r *http.Request, userID string) *http.Request {
	ctx := middleware.ContextWithUserID(r.Context(), userID)
	return r.WithContext(ctx)
}

// withChiURLParam はテスト用にchiのURLパラメータを注入するヘルパー。
func withChiURLParam(r *http.Request, params ...string) *http.Request {
	rctx := chi.NewRouteContext()
	for i := 0; i+1 < len(params); i += 2 {
		rctx.URLParams.Add(params[i], params[i+1])
	}
	ctx := context.WithValue(r.Context(), chi.RouteCtxKey, rctx)
	return r.WithContext(ctx)
}

// parseAPIErrorResponse はレスポンスボディからAPIErrorレスポンスをパースするヘルパー。
func parseAPIErrorResponse(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var result map[string]string
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return result
}

// decodeBody はJSONレスポンスをvに読み込むヘルパー。
func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}
