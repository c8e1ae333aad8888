// Package trend はダッシュボードに表示するトレンドに基づくおすすめを提供する。
// フィードURLが設定されている場合はRSS/Atomの記事で組み込みのおすすめを置き換える。
package trend

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/mmcdole/gofeed"
)

const (
	// MaxRecommendations はダッシュボードに表示する件数。
	MaxRecommendations = 3
	// maxBodySize はフィードのレスポンスボディの上限（1MB）。
	maxBodySize = 1 << 20
	// maxDescriptionLength は説明文の最大文字数。
	maxDescriptionLength = 200
)

// Recommendation はダッシュボードのおすすめ1件を表す。
type Recommendation struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Action      string `json:"action"`
	Path        string `json:"path"`
	External    bool   `json:"external"`
}

// Defaults は組み込みのおすすめを返す。
func Defaults() []Recommendation {
	return []Recommendation{
		{
			Title:       "Video content performs 3x better",
			Description: "Your video posts receive 3x more engagement than image posts. Consider creating more video content.",
			Action:      "Create video post",
			Path:        "/create",
		},
		{
			Title:       "Optimal posting time: 6-8 PM",
			Description: "Posts published between 6-8 PM receive 40% more engagement. Consider scheduling your next posts during this timeframe.",
			Action:      "View calendar",
			Path:        "/calendar",
		},
		{
			Title:       "Hashtag performance",
			Description: "Posts with 5-7 hashtags perform better than those with more or fewer hashtags.",
			Action:      "Learn more",
			Path:        "/analytics",
		},
	}
}

// Sanitizer はフィード本文からタグを除去するインターフェース。
type Sanitizer interface {
	StripTags(text string) string
}

// FetchRecorder はフィード取得結果の記録インターフェース。metrics.Collectorが実装する。
type FetchRecorder interface {
	RecordTrendFetch(success bool)
}

// Service はおすすめの取得とキャッシュを行う。並行に呼び出してよい。
// フィードの取得はロックの外で1本だけ行い、取得中の他の呼び出しは直前の結果を返す。
type Service struct {
	feedURL   string
	ttl       time.Duration
	client    *http.Client
	sanitizer Sanitizer
	recorder  FetchRecorder
	now       func() time.Time

	mu           sync.Mutex
	cached       []Recommendation
	expires      time.Time
	failures     int
	etag         string
	lastModified string
	// refreshing は取得中のみnilでなく、取得が終わるとcloseされる。
	refreshing chan struct{}
}

// NewService はServiceを生成する。feedURLが空の場合は常に組み込みのおすすめを返す。
// clientにはSSRF対策済みのクライアントを渡す。
func NewService(feedURL string, ttl time.Duration, client *http.Client, sanitizer Sanitizer, recorder FetchRecorder) *Service {
	return &Service{
		feedURL:   feedURL,
		ttl:       ttl,
		client:    client,
		sanitizer: sanitizer,
		recorder:  recorder,
		now:       time.Now,
	}
}

// validators は条件付きGETに使う前回のレスポンスヘッダー。
type validators struct {
	etag         string
	lastModified string
}

// feedResult はフィード取得の結果。recsがnilの場合は304。
type feedResult struct {
	recs []Recommendation
	validators
}

// Recommendations はおすすめを返す。キャッシュが有効な間はフィードを再取得しない。
// 取得に失敗した場合は直前の取得結果、なければ組み込みのおすすめを返す。
// 他の呼び出しが取得中の場合は直前の結果を返し、結果がなければ取得の完了かctxの終了まで待つ。
func (s *Service) Recommendations(ctx context.Context) []Recommendation {
	if s.feedURL == "" {
		return Defaults()
	}

	s.mu.Lock()
	now := s.now()
	if s.cached != nil && now.Before(s.expires) {
		defer s.mu.Unlock()
		return clone(s.cached)
	}
	if done := s.refreshing; done != nil {
		if s.cached != nil {
			defer s.mu.Unlock()
			return clone(s.cached)
		}
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.currentLocked()
	}

	done := make(chan struct{})
	s.refreshing = done
	var cond *validators
	if s.cached != nil {
		cond = &validators{etag: s.etag, lastModified: s.lastModified}
	}
	s.mu.Unlock()

	res, err := s.fetch(ctx, cond)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshing = nil
	close(done)
	return s.storeLocked(ctx, now, res, err)
}

// storeLocked は取得結果をキャッシュに反映して返す。s.muを保持して呼ぶ。
func (s *Service) storeLocked(ctx context.Context, now time.Time, res *feedResult, err error) []Recommendation {
	if err != nil && ctx.Err() != nil {
		// 呼び出し元の終了は取得失敗として数えない。次の呼び出しで再取得する
		slog.Debug("トレンドフィードの取得を中断しました",
			slog.String("feed_url", s.feedURL),
			slog.String("error", err.Error()),
		)
		return s.currentLocked()
	}
	if s.recorder != nil {
		s.recorder.RecordTrendFetch(err == nil)
	}
	if err != nil {
		s.failures++
		delay := retryDelay(err, s.failures, s.ttl)
		slog.Warn("トレンドフィードの取得に失敗しました",
			slog.String("feed_url", s.feedURL),
			slog.Int("consecutive_failures", s.failures),
			slog.Duration("retry_in", delay),
			slog.String("error", err.Error()),
		)
		if s.cached == nil {
			s.cached = Defaults()
		}
		s.expires = now.Add(delay)
		return clone(s.cached)
	}

	s.failures = 0
	s.expires = now.Add(s.ttl)
	if res.recs == nil {
		// 304: 前回の取得結果をそのまま使う
		return clone(s.cached)
	}

	s.cached = res.recs
	s.etag = res.etag
	s.lastModified = res.lastModified
	slog.Info("トレンドフィードを取得しました",
		slog.String("feed_url", s.feedURL),
		slog.Int("items", len(res.recs)),
	)
	return clone(res.recs)
}

func (s *Service) currentLocked() []Recommendation {
	if s.cached == nil {
		return Defaults()
	}
	return clone(s.cached)
}

// fetch はフィードを取得しておすすめに変換する。
// condがnilでなければ条件付きGETを行い、変更がない（304）場合はrecsがnilの結果を返す。
func (s *Service) fetch(ctx context.Context, cond *validators) (*feedResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.8")
	if cond != nil {
		if cond.etag != "" {
			req.Header.Set("If-None-Match", cond.etag)
		}
		if cond.lastModified != "" {
			req.Header.Set("If-Modified-Since", cond.lastModified)
		}
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}
	defer resp.Body.Close()

	switch classifyHTTPStatus(resp.StatusCode) {
	case fetchResultOK:
	case fetchResultNotModified:
		if cond != nil {
			return &feedResult{}, nil
		}
		return nil, &statusError{code: resp.StatusCode}
	default:
		return nil, &statusError{code: resp.StatusCode}
	}

	feed, err := gofeed.NewParser().Parse(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	recs := s.convertItems(feed.Items)
	if len(recs) == 0 {
		return nil, fmt.Errorf("feed has no usable items")
	}
	return &feedResult{
		recs: recs,
		validators: validators{
			etag:         resp.Header.Get("ETag"),
			lastModified: resp.Header.Get("Last-Modified"),
		},
	}, nil
}

// convertItems はフィードの記事をおすすめに変換する。タイトルのない記事は除く。
func (s *Service) convertItems(items []*gofeed.Item) []Recommendation {
	recs := make([]Recommendation, 0, MaxRecommendations)
	for _, item := range items {
		if item == nil {
			continue
		}
		title := s.sanitizer.StripTags(item.Title)
		if title == "" {
			continue
		}

		rec := Recommendation{
			Title:       title,
			Description: truncate(s.sanitizer.StripTags(item.Description), maxDescriptionLength),
			Action:      "Learn more",
			Path:        "/analytics",
		}
		if isWebURL(item.Link) {
			rec.Action = "Read more"
			rec.Path = item.Link
			rec.External = true
		}

		recs = append(recs, rec)
		if len(recs) == MaxRecommendations {
			break
		}
	}
	return recs
}

func isWebURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n])) + "…"
}

func clone(recs []Recommendation) []Recommendation {
	out := make([]Recommendation, len(recs))
	copy(out, recs)
	return out
}
