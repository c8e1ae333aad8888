package post

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/hitoshi/socialburst/internal/model"
)

func TestIdeas(t *testing.T) {
	svc := newTestService(nil)

	ideas, err := svc.Ideas("  email   marketing ")
	if err != nil {
		t.Fatalf("Ideas() error = %v", err)
	}
	if len(ideas) != 4 {
		t.Fatalf("len = %d, want 4", len(ideas))
	}

	wantTitles := []string{
		"10 Ways to Improve Your email marketing Strategy",
		"The Ultimate Guide to email marketing",
		"Why email marketing Matters in 2024",
		"email marketing Tips for Beginners",
	}
	for i, want := range wantTitles {
		if ideas[i].Title != want {
			t.Errorf("ideas[%d].Title = %q, want %q", i, ideas[i].Title, want)
		}
		if !strings.Contains(ideas[i].Description, "email marketing") {
			t.Errorf("ideas[%d].Description = %q, want keyword", i, ideas[i].Description)
		}
		if ideas[i].Content != ideas[i].Title+"\n\n"+ideas[i].Description {
			t.Errorf("ideas[%d].Content = %q, want title and description", i, ideas[i].Content)
		}
	}
}

func TestIdeas_ContentFitsPost(t *testing.T) {
	svc := newTestService(nil)

	ideas, err := svc.Ideas(strings.Repeat("k", MaxKeywordLength))
	if err != nil {
		t.Fatalf("Ideas() error = %v", err)
	}
	for i, idea := range ideas {
		p, err := svc.Create(context.Background(), uuid.NewString(), Input{
			Content:   idea.Content,
			Platforms: []model.Platform{model.PlatformTwitter},
		})
		if err != nil {
			t.Errorf("ideas[%d] cannot be used as post content: %v", i, err)
			continue
		}
		if p.Content != idea.Content {
			t.Errorf("ideas[%d] stored as %q, want %q", i, p.Content, idea.Content)
		}
	}
}

func TestIdeas_Validation(t *testing.T) {
	tests := []struct {
		name    string
		keyword string
	}{
		{"空", ""},
		{"空白のみ", " \t\n"},
		{"タグのみ", "<script>alert(1)</script>"},
		{"長すぎる", strings.Repeat("a", MaxKeywordLength+1)},
	}

	svc := newTestService(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ideas, err := svc.Ideas(tt.keyword)
			if apiErrorCode(err) != model.ErrCodeValidation {
				t.Errorf("Ideas(%q) error = %v, want validation error", tt.keyword, err)
			}
			if ideas != nil {
				t.Errorf("ideas = %v, want nil", ideas)
			}
		})
	}
}

func TestIdeas_StripsMarkup(t *testing.T) {
	svc := newTestService(nil)

	ideas, err := svc.Ideas("<b>SEO</b>")
	if err != nil {
		t.Fatalf("Ideas() error = %v", err)
	}
	if ideas[1].Title != "The Ultimate Guide to SEO" {
		t.Errorf("Title = %q, want %q", ideas[1].Title, "The Ultimate Guide to SEO")
	}
}
