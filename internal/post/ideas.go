package post

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/hitoshi/socialburst/internal/model"
)

// MaxKeywordLength はアイデア生成のキーワードの最大文字数。
const MaxKeywordLength = 100

// Idea はキーワードから生成した投稿のアイデア。
// Contentは作成フォームの本文としてそのまま使える。
type Idea struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Content     string `json:"content"`
}

// ideaTemplates の {keyword} と {year} は生成時に置き換える。
var ideaTemplates = []struct {
	title       string
	description string
}{
	{
		"10 Ways to Improve Your {keyword} Strategy",
		"Explore effective techniques to enhance your {keyword} approach and maximize results.",
	},
	{
		"The Ultimate Guide to {keyword}",
		"Everything you need to know about {keyword}, from basics to advanced strategies.",
	},
	{
		"Why {keyword} Matters in {year}",
		"Understanding the importance of {keyword} in today's rapidly evolving digital landscape.",
	},
	{
		"{keyword} Tips for Beginners",
		"Easy-to-follow advice to help newcomers navigate the world of {keyword}.",
	},
}

// Ideas はキーワードから投稿のアイデアを生成する。
// 外部のAIサービスは使わず、定型文にキーワードを埋め込む。結果は保存しない。
func (s *Service) Ideas(keyword string) ([]Idea, error) {
	keyword = strings.Join(strings.Fields(s.sanitizer.StripTags(keyword)), " ")
	if keyword == "" {
		return nil, model.NewValidationError("Please enter a keyword.")
	}
	if utf8.RuneCountInString(keyword) > MaxKeywordLength {
		return nil, model.NewValidationError(fmt.Sprintf("Keyword must be %d characters or fewer.", MaxKeywordLength))
	}

	r := strings.NewReplacer("{keyword}", keyword, "{year}", strconv.Itoa(s.now().Year()))
	ideas := make([]Idea, 0, len(ideaTemplates))
	for _, t := range ideaTemplates {
		title := r.Replace(t.title)
		description := r.Replace(t.description)
		ideas = append(ideas, Idea{
			Title:       title,
			Description: description,
			Content:     title + "\n\n" + description,
		})
	}
	return ideas, nil
}
