package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, content, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeValidation          = "VALIDATION_ERROR"
	ErrCodeNotFound            = "NOT_FOUND"
	ErrCodeUnsupportedPlatform = "UNSUPPORTED_PLATFORM"
	ErrCodeInvalidURL          = "INVALID_URL"
	ErrCodeCampaignAlreadySent = "CAMPAIGN_ALREADY_SENT"
	ErrCodeCampaignNoList      = "CAMPAIGN_NO_RECIPIENT_LIST"
	ErrCodeNoValidEmails       = "NO_VALID_EMAILS"
	ErrCodeUserNotFound        = "USER_NOT_FOUND"
	ErrCodeUnauthorized        = "UNAUTHORIZED"
	ErrCodeInvalidCredentials  = "INVALID_CREDENTIALS"
	ErrCodeDuplicateEmail      = "DUPLICATE_EMAIL"
	ErrCodeWeakPassword        = "WEAK_PASSWORD"
	ErrCodeAuthUnavailable     = "AUTH_UNAVAILABLE"
	ErrCodeCSRF                = "CSRF_TOKEN_INVALID"
	ErrCodeRateLimited         = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal            = "INTERNAL_ERROR"
)

// NewValidationError は入力検証エラーを生成する。
func NewValidationError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  message,
		Category: "validation",
		Action:   "Check the highlighted fields and try again.",
	}
}

// NewNotFoundError は対象リソース未検出エラーを生成する。
// 他ユーザーの所有物も存在しないものとして扱う。
func NewNotFoundError(resource, id string) *APIError {
	return &APIError{
		Code:     ErrCodeNotFound,
		Message:  fmt.Sprintf("%s not found: %s", resource, id),
		Category: "content",
		Action:   "Reload the page and try again.",
	}
}

// NewUnsupportedPlatformError は未対応プラットフォームのエラーを生成する。
func NewUnsupportedPlatformError(platform string) *APIError {
	return &APIError{
		Code:     ErrCodeUnsupportedPlatform,
		Message:  fmt.Sprintf("Unsupported platform: %s", platform),
		Category: "validation",
		Action:   "Choose one of the listed platforms.",
	}
}

// NewInvalidURLError は無効なURLエラーを生成する。
func NewInvalidURLError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidURL,
		Message:  fmt.Sprintf("Invalid URL: %s", reason),
		Category: "validation",
		Action:   "Enter a public URL starting with https://.",
	}
}

// NewCampaignAlreadySentError は送信済みキャンペーンへの操作エラーを生成する。
func NewCampaignAlreadySentError() *APIError {
	return &APIError{
		Code:     ErrCodeCampaignAlreadySent,
		Message:  "This campaign has already been sent.",
		Category: "content",
		Action:   "Create a new campaign to send again.",
	}
}

// NewCampaignNoListError は受信者リスト未設定のキャンペーン送信エラーを生成する。
func NewCampaignNoListError() *APIError {
	return &APIError{
		Code:     ErrCodeCampaignNoList,
		Message:  "This campaign has no recipient list.",
		Category: "validation",
		Action:   "Select a recipient list before sending.",
	}
}

// NewNoValidEmailsError はインポート対象に有効なメールアドレスがない場合のエラーを生成する。
func NewNoValidEmailsError() *APIError {
	return &APIError{
		Code:     ErrCodeNoValidEmails,
		Message:  "No valid email addresses found.",
		Category: "validation",
		Action:   "Enter one email address per line or separate them with commas.",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "User not found.",
		Category: "auth",
		Action:   "Sign in again.",
	}
}

// NewInvalidCredentialsError は認証情報不一致のエラーを生成する。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "Invalid email or password.",
		Category: "auth",
		Action:   "Check your email and password and try again.",
	}
}

// NewDuplicateEmailError は登録済みメールアドレスでのサインアップエラーを生成する。
func NewDuplicateEmailError() *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateEmail,
		Message:  "An account with this email already exists.",
		Category: "auth",
		Action:   "Sign in instead, or use a different email address.",
	}
}

// NewWeakPasswordError はパスワード強度不足のエラーを生成する。
func NewWeakPasswordError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeWeakPassword,
		Message:  message,
		Category: "auth",
		Action:   "Use at least 8 characters.",
	}
}

// NewAuthUnavailableError は認証プロバイダーに到達できない場合のエラーを生成する。
func NewAuthUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeAuthUnavailable,
		Message:  "The authentication service is temporarily unavailable.",
		Category: "system",
		Action:   "Wait a moment and try again.",
	}
}

// NewUnauthorizedError は未認証アクセスのエラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "Sign in to continue.",
		Category: "auth",
		Action:   "Sign in and try again.",
	}
}

// NewCSRFError はCSRFトークン検証失敗のエラーを生成する。
func NewCSRFError() *APIError {
	return &APIError{
		Code:     ErrCodeCSRF,
		Message:  "CSRF token validation failed.",
		Category: "auth",
		Action:   "Reload the page and try again.",
	}
}

// NewRateLimitError はレート制限超過のエラーを生成する。
func NewRateLimitError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "Too many requests. Please try again later.",
		Category: "system",
		Action:   "Please wait and retry after the specified time.",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログのみに記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "An internal error occurred.",
		Category: "system",
		Action:   "Please wait a moment and try again.",
	}
}
