package post

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/socialburst/internal/datastore"
	"github.com/hitoshi/socialburst/internal/model"
	"github.com/hitoshi/socialburst/internal/repository"
	"github.com/hitoshi/socialburst/internal/security"
)

type stubURLValidator struct {
	err error
}

func (s stubURLValidator) ValidateImageURL(string) error { return s.err }

var fixedNow = time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)

func newTestService(urlErr error) *Service {
	svc := NewService(
		repository.NewStorePostRepo(datastore.NewMemoryStore()),
		security.NewContentSanitizer(),
		stubURLValidator{err: urlErr},
	)
	svc.now = func() time.Time { return fixedNow }
	return svc
}

func at(days int) *time.Time {
	t := fixedNow.Add(time.Duration(days) * 24 * time.Hour)
	return &t
}

func apiErrorCode(err error) string {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return ""
}

func TestCreate_DraftWithoutSchedule(t *testing.T) {
	svc := newTestService(nil)
	userID := uuid.NewString()

	p, err := svc.Create(context.Background(), userID, Input{
		Content:   "New arrivals are here",
		Platforms: []model.Platform{model.PlatformInstagram},
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if p.Status != model.PostStatusDraft {
		t.Errorf("Status = %q, want %q", p.Status, model.PostStatusDraft)
	}
	if p.UserID != userID {
		t.Errorf("UserID = %q, want %q", p.UserID, userID)
	}
	if p.ID == "" {
		t.Error("ID should be assigned")
	}
}

func TestCreate_ScheduledWithHashtags(t *testing.T) {
	svc := newTestService(nil)

	p, err := svc.Create(context.Background(), uuid.NewString(), Input{
		Content:      "<b>Summer sale</b> starts now #sale",
		Hashtags:     []string{"#Sale", "summer", " summer ", ""},
		ImageURL:     "https://cdn.example.com/sale.png",
		ScheduledFor: at(3),
		Platforms:    []model.Platform{model.PlatformFacebook, model.PlatformTwitter, model.PlatformFacebook},
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if p.Status != model.PostStatusScheduled {
		t.Errorf("Status = %q, want %q", p.Status, model.PostStatusScheduled)
	}
	want := "Summer sale starts now #sale\n\n#summer"
	if p.Content != want {
		t.Errorf("Content = %q, want %q", p.Content, want)
	}
	if len(p.Platforms) != 2 {
		t.Errorf("Platforms = %v, want duplicates removed", p.Platforms)
	}
	if p.ImageURL != "https://cdn.example.com/sale.png" {
		t.Errorf("ImageURL = %q", p.ImageURL)
	}
}

func TestCreate_Validation(t *testing.T) {
	tests := []struct {
		name     string
		urlErr   error
		in       Input
		wantCode string
	}{
		{"本文が空", nil, Input{Content: "  ", Platforms: []model.Platform{model.PlatformTwitter}}, model.ErrCodeValidation},
		{"タグだけの本文", nil, Input{Content: "<p></p>", Platforms: []model.Platform{model.PlatformTwitter}}, model.ErrCodeValidation},
		{"プラットフォーム未選択", nil, Input{Content: "hi"}, model.ErrCodeValidation},
		{"未対応プラットフォーム", nil, Input{Content: "hi", Platforms: []model.Platform{"myspace"}}, model.ErrCodeUnsupportedPlatform},
		{"過去の予定日時", nil, Input{Content: "hi", Platforms: []model.Platform{model.PlatformTwitter}, ScheduledFor: at(-1)}, model.ErrCodeValidation},
		{"空白を含むハッシュタグ", nil, Input{Content: "hi", Hashtags: []string{"two words"}, Platforms: []model.Platform{model.PlatformTwitter}}, model.ErrCodeValidation},
		{"不正な画像URL", errors.New("disallowed scheme"), Input{Content: "hi", ImageURL: "http://x", Platforms: []model.Platform{model.PlatformTwitter}}, model.ErrCodeInvalidURL},
		{"長すぎる本文", nil, Input{Content: strings.Repeat("a", MaxContentLength+1), Platforms: []model.Platform{model.PlatformTwitter}}, model.ErrCodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(tt.urlErr)
			_, err := svc.Create(context.Background(), uuid.NewString(), tt.in)
			if code := apiErrorCode(err); code != tt.wantCode {
				t.Errorf("error code = %q, want %q (err = %v)", code, tt.wantCode, err)
			}
		})
	}
}

func TestCreate_EscapedMarkupIsNotStored(t *testing.T) {
	svc := newTestService(nil)
	ctx := context.Background()
	twitter := []model.Platform{model.PlatformTwitter}

	p, err := svc.Create(ctx, uuid.NewString(), Input{
		Content:   "Sale &lt;script&gt;alert(1)&lt;/script&gt; &lt;b&gt;today&lt;/b&gt;",
		Platforms: twitter,
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if strings.ContainsAny(p.Content, "<>") {
		t.Errorf("Content = %q, want no markup", p.Content)
	}
	if p.Content != "Sale  today" {
		t.Errorf("Content = %q, want %q", p.Content, "Sale  today")
	}

	_, err = svc.Create(ctx, uuid.NewString(), Input{
		Content:   "&lt;script&gt;alert(1)&lt;/script&gt;",
		Platforms: twitter,
	})
	if code := apiErrorCode(err); code != model.ErrCodeValidation {
		t.Errorf("error code = %q, want %q (err = %v)", code, model.ErrCodeValidation, err)
	}
}

func TestGet_OtherUsersPostIsNotFound(t *testing.T) {
	svc := newTestService(nil)
	ctx := context.Background()

	p, err := svc.Create(ctx, uuid.NewString(), Input{Content: "mine", Platforms: []model.Platform{model.PlatformThreads}})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	_, err = svc.Get(ctx, uuid.NewString(), p.ID)
	if code := apiErrorCode(err); code != model.ErrCodeNotFound {
		t.Errorf("error code = %q, want %q", code, model.ErrCodeNotFound)
	}
	if err := svc.Delete(ctx, uuid.NewString(), p.ID); apiErrorCode(err) != model.ErrCodeNotFound {
		t.Errorf("Delete() by another user error = %v, want not found", err)
	}
}

func TestUpdate_ReschedulesAndRejectsPublished(t *testing.T) {
	svc := newTestService(nil)
	ctx := context.Background()
	userID := uuid.NewString()

	p, err := svc.Create(ctx, userID, Input{Content: "draft", Platforms: []model.Platform{model.PlatformTikTok}})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	updated, err := svc.Update(ctx, userID, p.ID, Input{
		Content:      "scheduled now",
		ScheduledFor: at(1),
		Platforms:    []model.Platform{model.PlatformTikTok},
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated.Status != model.PostStatusScheduled || updated.Content != "scheduled now" {
		t.Errorf("updated = %+v, want scheduled with new content", updated)
	}

	if _, err := svc.Publish(ctx, userID, p.ID); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	_, err = svc.Update(ctx, userID, p.ID, Input{Content: "edit", Platforms: []model.Platform{model.PlatformTikTok}})
	if code := apiErrorCode(err); code != model.ErrCodeValidation {
		t.Errorf("error code = %q, want %q", code, model.ErrCodeValidation)
	}
}

func TestPublish_IsIdempotent(t *testing.T) {
	svc := newTestService(nil)
	ctx := context.Background()
	userID := uuid.NewString()

	p, err := svc.Create(ctx, userID, Input{Content: "go", ScheduledFor: at(2), Platforms: []model.Platform{model.PlatformYouTube}})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	for i := 0; i < 2; i++ {
		got, err := svc.Publish(ctx, userID, p.ID)
		if err != nil {
			t.Fatalf("Publish() #%d error = %v", i+1, err)
		}
		if got.Status != model.PostStatusPublished {
			t.Errorf("Status = %q, want %q", got.Status, model.PostStatusPublished)
		}
	}
}

func TestListAndUpcoming(t *testing.T) {
	svc := newTestService(nil)
	ctx := context.Background()
	userID := uuid.NewString()
	platforms := []model.Platform{model.PlatformInstagram}

	mustCreate := func(content string, when *time.Time) *model.Post {
		t.Helper()
		p, err := svc.Create(ctx, userID, Input{Content: content, ScheduledFor: when, Platforms: platforms})
		if err != nil {
			t.Fatalf("Create(%q) error = %v", content, err)
		}
		return p
	}

	mustCreate("draft", nil)
	mustCreate("in 20 days", at(20)) // 5月30日
	mustCreate("in 2 days", at(2))   // 5月12日
	mustCreate("in 40 days", at(40)) // 6月19日
	if _, err := svc.Create(ctx, uuid.NewString(), Input{Content: "someone else", ScheduledFor: at(1), Platforms: platforms}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	may, err := svc.List(ctx, userID, ListInput{Month: "2024-05"})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(may) != 2 || may[0].Content != "in 2 days" || may[1].Content != "in 20 days" {
		t.Errorf("May posts = %v, want [in 2 days, in 20 days]", contents(may))
	}

	drafts, err := svc.List(ctx, userID, ListInput{Status: "draft"})
	if err != nil {
		t.Fatalf("List(draft) error = %v", err)
	}
	if len(drafts) != 1 {
		t.Errorf("drafts = %v, want 1", contents(drafts))
	}

	upcoming, err := svc.Upcoming(ctx, userID, 2)
	if err != nil {
		t.Fatalf("Upcoming() error = %v", err)
	}
	if len(upcoming) != 2 || upcoming[0].Content != "in 2 days" {
		t.Errorf("upcoming = %v, want nearest 2 starting with 'in 2 days'", contents(upcoming))
	}

	counts, err := svc.Counts(ctx, userID)
	if err != nil {
		t.Fatalf("Counts() error = %v", err)
	}
	if counts[model.PostStatusDraft] != 1 || counts[model.PostStatusScheduled] != 3 {
		t.Errorf("counts = %v, want draft=1 scheduled=3", counts)
	}
}

func TestList_InvalidInput(t *testing.T) {
	svc := newTestService(nil)

	if _, err := svc.List(context.Background(), uuid.NewString(), ListInput{Month: "May 2024"}); apiErrorCode(err) != model.ErrCodeValidation {
		t.Errorf("invalid month error = %v, want validation error", err)
	}
	if _, err := svc.List(context.Background(), uuid.NewString(), ListInput{Status: "archived"}); apiErrorCode(err) != model.ErrCodeValidation {
		t.Errorf("invalid status error = %v, want validation error", err)
	}
}

func TestMonthRange(t *testing.T) {
	from, to, err := MonthRange("2024-12")
	if err != nil {
		t.Fatalf("MonthRange() error = %v", err)
	}
	if !from.Equal(time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("from = %v", from)
	}
	if !to.Equal(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("to = %v", to)
	}
}

func contents(posts []*model.Post) []string {
	out := make([]string, len(posts))
	for i, p := range posts {
		out[i] = p.Content
	}
	return out
}
