package trend

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// fetchResult はHTTPステータスコードに基づくフィード取得結果の分類。
type fetchResult int

const (
	// fetchResultOK は取得成功（200）。
	fetchResultOK fetchResult = iota
	// fetchResultNotModified はコンテンツ未変更（304）。
	fetchResultNotModified
	// fetchResultStop は設定の見直しが必要なステータス（404/410/401/403）。
	fetchResultStop
	// fetchResultBackoff は時間をおいて再試行するステータス（429/5xx）。
	fetchResultBackoff
	// fetchResultUnknown は未知のステータスコード。
	fetchResultUnknown
)

const (
	// initialBackoff は指数バックオフの初回遅延。
	initialBackoff = time.Minute
	// maxBackoff は指数バックオフの最大遅延。
	maxBackoff = time.Hour
)

// classifyHTTPStatus はHTTPステータスコードを取得結果に分類する。
func classifyHTTPStatus(statusCode int) fetchResult {
	switch {
	case statusCode == http.StatusOK:
		return fetchResultOK
	case statusCode == http.StatusNotModified:
		return fetchResultNotModified
	case statusCode == http.StatusNotFound || statusCode == http.StatusGone:
		return fetchResultStop
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return fetchResultStop
	case statusCode == http.StatusTooManyRequests:
		return fetchResultBackoff
	case statusCode >= 500:
		return fetchResultBackoff
	default:
		return fetchResultUnknown
	}
}

// calculateBackoff は連続失敗回数に基づいて指数バックオフ遅延を計算する。
// 初回1分、2倍ずつ増加、最大1時間。
func calculateBackoff(consecutiveFailures int) time.Duration {
	delay := initialBackoff
	for i := 1; i < consecutiveFailures; i++ {
		delay *= 2
		if delay > maxBackoff {
			return maxBackoff
		}
	}
	return delay
}

// statusError は200/304以外の応答を表す。
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status: %d", e.code)
}

// retryDelay は取得失敗後に再取得を試みるまでの間隔を返す。
// 停止対象のステータスでは最大遅延まで待つ。いずれもキャッシュTTLを超えない。
func retryDelay(err error, consecutiveFailures int, ttl time.Duration) time.Duration {
	delay := calculateBackoff(consecutiveFailures)
	var se *statusError
	if errors.As(err, &se) && classifyHTTPStatus(se.code) == fetchResultStop {
		delay = maxBackoff
	}
	return min(delay, ttl)
}
