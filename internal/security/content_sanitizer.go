// Package security はアプリケーションのセキュリティ機能を提供する。
//
// ContentSanitizerService はユーザーが入力した投稿本文とキャンペーン本文を
// サニタイズする。bluemondayライブラリの許可リストベースのポリシーを使う。
package security

import (
	"html"
	"net/url"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizerService はコンテンツのサニタイズ機能のインターフェースを定義する。
type ContentSanitizerService interface {
	// StripTags は投稿本文などのプレーンテキスト入力からHTMLタグを全て除去する。
	// エンティティは元の文字に戻し、前後の空白を除去する。
	// エンティティで書かれたタグも除去され、戻り値にタグは残らない。
	StripTags(text string) string

	// SanitizeHTML はキャンペーンのプレビューHTMLをサニタイズする。
	// 許可タグ（h1-h3, p, br, a, ul, ol, li, blockquote, pre, code, strong, em, hr, img）のみを通過させ、
	// script, iframe, styleタグおよびon*イベント属性を除去する。
	// aタグのhrefはhttps/mailto、imgタグのsrcはhttpsのみ許可する。
	// 同一入力に対して常に同一出力を返す（冪等）。
	SanitizeHTML(rawHTML string) string
}

type contentSanitizer struct {
	strict *bluemonday.Policy
	email  *bluemonday.Policy
}

// NewContentSanitizer はContentSanitizerServiceの新しいインスタンスを生成する。
func NewContentSanitizer() *contentSanitizer {
	return &contentSanitizer{
		strict: bluemonday.StrictPolicy(),
		email:  newEmailPolicy(),
	}
}

// newEmailPolicy はメール本文向けのポリシーを構築する。
func newEmailPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()

	p.AllowElements(
		"h1", "h2", "h3",
		"p", "br", "hr", "ul", "ol", "li",
		"blockquote", "pre", "code",
		"strong", "em",
	)

	// メールクライアントで開かれるため相対URLは意味を持たない
	p.AllowAttrs("href").OnElements("a")
	p.AllowRelativeURLs(false)
	p.AllowURLSchemes("mailto")
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)

	p.AllowAttrs("src", "alt").OnElements("img")
	p.AllowURLSchemeWithCustomPolicy("https", func(u *url.URL) bool {
		return u.Host != ""
	})

	return p
}

// maxStripPasses はStripTagsが除去と復元を繰り返す上限。
const maxStripPasses = 8

// StripTags はHTMLタグを除去したプレーンテキストを返す。
// 復元したエンティティがタグになる場合があるため、結果が変わらなくなるまで繰り返す。
// 上限に達した場合はエスケープしたまま返す。
func (s *contentSanitizer) StripTags(text string) string {
	out := text
	for i := 0; i < maxStripPasses; i++ {
		next := html.UnescapeString(s.strict.Sanitize(out))
		if next == out {
			return strings.TrimSpace(out)
		}
		out = next
	}
	return strings.TrimSpace(s.strict.Sanitize(out))
}

// SanitizeHTML はメール本文向けポリシーでHTMLをサニタイズする。
func (s *contentSanitizer) SanitizeHTML(rawHTML string) string {
	return s.email.Sanitize(rawHTML)
}
