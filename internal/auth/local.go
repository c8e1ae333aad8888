package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/socialburst/internal/model"
	"github.com/hitoshi/socialburst/internal/repository"
)

// LocalConfig はLocalProviderの設定。
type LocalConfig struct {
	Secret          []byte        // アクセストークン署名鍵（HS256）
	Issuer          string        // トークン発行者
	AccessTokenTTL  time.Duration // アクセストークン有効期間
	RefreshTokenTTL time.Duration // リフレッシュトークン（セッション行）有効期間
	BcryptCost      int           // 0の場合はbcrypt.DefaultCost
}

// accessClaims はアクセストークンのクレーム。jtiにセッションIDを格納する。
type accessClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
	Name  string `json:"name"`
}

// LocalProvider はPostgreSQLのusers/sessionsテーブルを使う組み込みの認証プロバイダー。
// パスワードはbcryptでハッシュ化し、アクセストークンはHS256のJWT、
// リフレッシュトークンはランダム値でSHA-256ハッシュのみを保存する。
type LocalProvider struct {
	users    repository.UserRepository
	sessions repository.SessionRepository
	config   LocalConfig
	now      func() time.Time
}

// NewLocalProvider はLocalProviderを生成する。
func NewLocalProvider(users repository.UserRepository, sessions repository.SessionRepository, config LocalConfig) *LocalProvider {
	if config.BcryptCost == 0 {
		config.BcryptCost = bcrypt.DefaultCost
	}
	if config.Issuer == "" {
		config.Issuer = "socialburst"
	}
	return &LocalProvider{
		users:    users,
		sessions: sessions,
		config:   config,
		now:      time.Now,
	}
}

// SignIn はメールアドレスとパスワードで認証する。
func (p *LocalProvider) SignIn(ctx context.Context, req model.AuthRequest) (*model.Session, error) {
	req = NormalizeRequest(req)
	if err := ValidateSignIn(req); err != nil {
		return nil, err
	}

	user, err := p.users.FindByEmail(ctx, req.Email)
	if err != nil {
		return nil, unavailable(err)
	}
	if user == nil {
		return nil, invalidCredentials()
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return nil, invalidCredentials()
		}
		return nil, newError(KindInvalidCredentials, "Invalid email or password.", err)
	}

	return p.issue(ctx, user)
}

// SignUp はアカウントを作成してセッションを発行する。
func (p *LocalProvider) SignUp(ctx context.Context, req model.AuthRequest) (*model.Session, error) {
	req = NormalizeRequest(req)
	if err := ValidateSignUp(req); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), p.config.BcryptCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return nil, newError(KindWeakPassword, "Password must be at most 72 bytes.", err)
		}
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := p.now()
	user := &model.User{
		ID:           uuid.NewString(),
		Email:        req.Email,
		Name:         req.Name,
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := p.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, newError(KindDuplicateEmail, "An account with this email already exists.", err)
		}
		return nil, unavailable(err)
	}

	slog.Info("ユーザーを登録しました", slog.String("user_id", user.ID))
	return p.issue(ctx, user)
}

// SignOut はアクセストークンが指すセッション行を削除する。
// 期限切れのアクセストークンでもセッションを失効できる。
func (p *LocalProvider) SignOut(ctx context.Context, accessToken string) error {
	claims, err := p.parse(accessToken, jwt.WithoutClaimsValidation())
	if err != nil {
		return invalidSession(err)
	}
	if err := p.sessions.DeleteByID(ctx, claims.ID); err != nil {
		return unavailable(err)
	}
	return nil
}

// DeleteAccount はユーザーの全セッションとアカウントを削除する。
// 存在しないユーザーの場合は何もしない。
func (p *LocalProvider) DeleteAccount(ctx context.Context, userID string) error {
	if err := p.sessions.DeleteByUserID(ctx, userID); err != nil {
		return unavailable(err)
	}
	if err := p.users.DeleteByID(ctx, userID); err != nil {
		return unavailable(err)
	}
	slog.Info("アカウントを削除しました", slog.String("user_id", userID))
	return nil
}

// GetSession はアクセストークンを検証し、セッション行とユーザーが存在することを確認する。
func (p *LocalProvider) GetSession(ctx context.Context, accessToken string) (*model.Session, error) {
	claims, err := p.parse(accessToken)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, tokenExpired(err)
		}
		return nil, invalidSession(err)
	}

	rec, err := p.sessions.FindByID(ctx, claims.ID)
	if err != nil {
		return nil, unavailable(err)
	}
	if rec == nil || rec.UserID != claims.Subject {
		return nil, invalidSession(nil)
	}

	user, err := p.users.FindByID(ctx, rec.UserID)
	if err != nil {
		return nil, unavailable(err)
	}
	if user == nil {
		return nil, invalidSession(nil)
	}

	return &model.Session{
		UserID:      user.ID,
		Email:       user.Email,
		DisplayName: user.Name,
		Expiry:      claims.ExpiresAt.Time,
		AccessToken: accessToken,
	}, nil
}

// Refresh はリフレッシュトークンをローテートし、新しいアクセストークンを発行する。
func (p *LocalProvider) Refresh(ctx context.Context, refreshToken string) (*model.Session, error) {
	if refreshToken == "" {
		return nil, invalidSession(nil)
	}
	oldHash := hashToken(refreshToken)
	rec, err := p.sessions.FindByRefreshTokenHash(ctx, oldHash)
	if err != nil {
		return nil, unavailable(err)
	}
	if rec == nil {
		return nil, invalidSession(nil)
	}

	user, err := p.users.FindByID(ctx, rec.UserID)
	if err != nil {
		return nil, unavailable(err)
	}
	if user == nil {
		return nil, invalidSession(nil)
	}

	newRefresh, err := generateToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}
	ok, err := p.sessions.Rotate(ctx, rec.ID, oldHash, hashToken(newRefresh), p.now().Add(p.config.RefreshTokenTTL))
	if err != nil {
		return nil, unavailable(err)
	}
	if !ok {
		return nil, invalidSession(nil)
	}

	return p.sessionFor(user, rec.ID, newRefresh)
}

// issue は新しいセッション行を作成し、トークンを発行する。
func (p *LocalProvider) issue(ctx context.Context, user *model.User) (*model.Session, error) {
	refresh, err := generateToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	now := p.now()
	rec := &model.SessionRecord{
		ID:               uuid.NewString(),
		UserID:           user.ID,
		RefreshTokenHash: hashToken(refresh),
		ExpiresAt:        now.Add(p.config.RefreshTokenTTL),
		CreatedAt:        now,
	}
	if err := p.sessions.Create(ctx, rec); err != nil {
		return nil, unavailable(err)
	}

	return p.sessionFor(user, rec.ID, refresh)
}

func (p *LocalProvider) sessionFor(user *model.User, sessionID, refresh string) (*model.Session, error) {
	now := p.now()
	expiry := now.Add(p.config.AccessTokenTTL)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, accessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    p.config.Issuer,
			Subject:   user.ID,
			ID:        sessionID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiry),
		},
		Email: user.Email,
		Name:  user.Name,
	})
	signed, err := token.SignedString(p.config.Secret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign access token: %w", err)
	}

	return &model.Session{
		UserID:       user.ID,
		Email:        user.Email,
		DisplayName:  user.Name,
		Expiry:       jwt.NewNumericDate(expiry).Time,
		AccessToken:  signed,
		RefreshToken: refresh,
	}, nil
}

func (p *LocalProvider) parse(tokenString string, opts ...jwt.ParserOption) (*accessClaims, error) {
	if tokenString == "" {
		return nil, errors.New("empty access token")
	}
	opts = append(opts,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(p.config.Issuer),
		jwt.WithTimeFunc(p.now),
	)
	claims := &accessClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return p.config.Secret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if claims.ID == "" || claims.Subject == "" {
		return nil, errors.New("access token is missing session claims")
	}
	return claims, nil
}

// generateToken は暗号的に安全なランダムトークンを生成する。
func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// hashToken はトークンのSHA-256ハッシュを16進文字列で返す。
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

var (
	_ Provider       = (*LocalProvider)(nil)
	_ AccountRemover = (*LocalProvider)(nil)
)
