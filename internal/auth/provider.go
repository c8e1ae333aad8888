// Package auth は外部認証プロバイダーへのインターフェースと実装を提供する。
// アカウントとトークンの正はプロバイダー側にあり、呼び出し側はトークンを不透明な値として扱う。
package auth

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/hitoshi/socialburst/internal/model"
)

// Provider は認証プロバイダーのインターフェース。
// 失敗はすべて*Errorで返す。リトライは行わない。
type Provider interface {
	// SignIn はメールアドレスとパスワードで認証し、新しいセッションを発行する。
	SignIn(ctx context.Context, req model.AuthRequest) (*model.Session, error)
	// SignUp はアカウントを作成し、新しいセッションを発行する。
	SignUp(ctx context.Context, req model.AuthRequest) (*model.Session, error)
	// SignOut はアクセストークンに対応するセッションを失効させる。
	SignOut(ctx context.Context, accessToken string) error
	// GetSession はアクセストークンを検証し、対応するセッションを返す。
	// 返すセッションのRefreshTokenは空。
	GetSession(ctx context.Context, accessToken string) (*model.Session, error)
	// Refresh はリフレッシュトークンで新しいトークンを発行する。
	Refresh(ctx context.Context, refreshToken string) (*model.Session, error)
}

// AccountRemover はアカウントを削除できるプロバイダーが実装する。
type AccountRemover interface {
	// DeleteAccount はアカウントと発行済みのセッションを削除する。
	DeleteAccount(ctx context.Context, userID string) error
}

// Kind は認証エラーの種別。
type Kind string

const (
	KindInvalidCredentials Kind = "invalid_credentials"
	KindDuplicateEmail     Kind = "duplicate_email"
	KindWeakPassword       Kind = "weak_password"
	KindInvalidRequest     Kind = "invalid_request"
	KindTokenExpired       Kind = "token_expired"
	KindInvalidSession     Kind = "invalid_session"
	KindUnavailable        Kind = "unavailable"
)

// Error は認証プロバイダーのエラー。Messageは利用者に表示できる文言。
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// Error はerrorインターフェースを実装する。
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth %s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("auth %s: %s", e.Kind, e.Message)
}

// Unwrap は原因となったエラーを返す。
func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf はエラーの種別を返す。*Errorでない場合は空文字を返す。
func KindOf(err error) Kind {
	var authErr *Error
	if errors.As(err, &authErr) {
		return authErr.Kind
	}
	return ""
}

func newError(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

func invalidCredentials() *Error {
	return newError(KindInvalidCredentials, "Invalid email or password.", nil)
}

func invalidSession(cause error) *Error {
	return newError(KindInvalidSession, "Your session is no longer valid. Please sign in again.", cause)
}

func tokenExpired(cause error) *Error {
	return newError(KindTokenExpired, "Your session has expired.", cause)
}

func unavailable(cause error) *Error {
	return newError(KindUnavailable, "The authentication service is temporarily unavailable.", cause)
}

// MinPasswordLength はパスワードの最小文字数。
const MinPasswordLength = 8

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ValidEmail はメールアドレスの形式が妥当かどうかを返す。
func ValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// NormalizeRequest は前後の空白を除去したAuthRequestを返す。パスワードは変更しない。
func NormalizeRequest(req model.AuthRequest) model.AuthRequest {
	return model.AuthRequest{
		Email:    strings.TrimSpace(req.Email),
		Password: req.Password,
		Name:     strings.TrimSpace(req.Name),
	}
}

// ValidateSignIn はサインインの入力を検証する。
func ValidateSignIn(req model.AuthRequest) error {
	if req.Email == "" || req.Password == "" {
		return newError(KindInvalidRequest, "Email and password are required.", nil)
	}
	if !ValidEmail(req.Email) {
		return newError(KindInvalidRequest, "Enter a valid email address.", nil)
	}
	return nil
}

// ValidateSignUp はサインアップの入力を検証する。
func ValidateSignUp(req model.AuthRequest) error {
	if err := ValidateSignIn(req); err != nil {
		return err
	}
	if req.Name == "" {
		return newError(KindInvalidRequest, "Name is required.", nil)
	}
	if utf8.RuneCountInString(req.Password) < MinPasswordLength {
		return newError(KindWeakPassword, fmt.Sprintf("Password must be at least %d characters.", MinPasswordLength), nil)
	}
	return nil
}
