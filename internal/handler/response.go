package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/hitoshi/socialburst/internal/auth"
	"github.com/hitoshi/socialburst/internal/middleware"
	"github.com/hitoshi/socialburst/internal/model"
)

// maxRequestBodySize はJSONリクエストボディの上限（1MB）。
const maxRequestBodySize = 1 << 20

// redirectField はフォーム送信後の戻り先を指定するフィールド名。
const redirectField = "redirect"

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	middleware.WriteErrorResponse(w, statusCode, apiErr)
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	apiErr := toAPIError(err)
	writeAPIErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
}

// toAPIError はエラーをAPIErrorに変換する。
// 認証プロバイダーのエラーは種別ごとのAPIErrorに、それ以外は内部エラーとして扱う。
func toAPIError(err error) *model.APIError {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var authErr *auth.Error
	if errors.As(err, &authErr) {
		return authErrorToAPIError(authErr)
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("内部サーバーエラーが発生しました", slog.String("error", err.Error()))
	return model.NewInternalError()
}

// authErrorToAPIError は認証プロバイダーのエラーを利用者向けのAPIErrorに変換する。
func authErrorToAPIError(err *auth.Error) *model.APIError {
	switch err.Kind {
	case auth.KindInvalidCredentials:
		return model.NewInvalidCredentialsError()
	case auth.KindDuplicateEmail:
		return model.NewDuplicateEmailError()
	case auth.KindWeakPassword:
		return model.NewWeakPasswordError(err.Message)
	case auth.KindInvalidRequest:
		return model.NewValidationError(err.Message)
	case auth.KindTokenExpired, auth.KindInvalidSession:
		return model.NewUnauthorizedError()
	default:
		if err.Err != nil {
			slog.Warn("認証プロバイダーが利用できません", slog.String("error", err.Err.Error()))
		}
		return model.NewAuthUnavailableError()
	}
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeValidation, model.ErrCodeUnsupportedPlatform, model.ErrCodeInvalidURL:
		return http.StatusBadRequest
	case model.ErrCodeWeakPassword, model.ErrCodeNoValidEmails, model.ErrCodeCampaignNoList:
		return http.StatusUnprocessableEntity
	case model.ErrCodeNotFound, model.ErrCodeUserNotFound:
		return http.StatusNotFound
	case model.ErrCodeCampaignAlreadySent, model.ErrCodeDuplicateEmail:
		return http.StatusConflict
	case model.ErrCodeUnauthorized, model.ErrCodeInvalidCredentials:
		return http.StatusUnauthorized
	case model.ErrCodeCSRF:
		return http.StatusForbidden
	case model.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case model.ErrCodeAuthUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// requireUserID はRoute Guardが注入したユーザーIDを返す。
// 取得できない場合は401を書き込みfalseを返す。
func requireUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return "", false
	}
	return userID, true
}

// decodeJSON はJSONリクエストボディをvに読み込む。
// 失敗した場合は400を書き込みfalseを返す。
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("Invalid request body."))
		return false
	}
	return true
}

// isFormRequest はHTMLフォームから送信されたリクエストかどうかを判定する。
func isFormRequest(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return false
	}
	return mediaType == "application/x-www-form-urlencoded" || mediaType == "multipart/form-data"
}

// respond は処理結果を返す。フォーム送信の場合は戻り先へリダイレクトし、
// noticeをクエリパラメータで伝える。JSONの場合はbodyを書き込み、nilなら本文なしで返す。
func respond(w http.ResponseWriter, r *http.Request, statusCode int, body any, notice string) {
	if isFormRequest(r) {
		redirectBack(w, r, "notice", notice)
		return
	}
	if body == nil {
		w.WriteHeader(statusCode)
		return
	}
	writeJSON(w, statusCode, body)
}

// fail はエラーを返す。フォーム送信の場合は戻り先へリダイレクトしてメッセージを伝える。
func fail(w http.ResponseWriter, r *http.Request, err error) {
	if isFormRequest(r) {
		redirectBack(w, r, "error", toAPIError(err).Message)
		return
	}
	handleServiceError(w, err)
}

func redirectBack(w http.ResponseWriter, r *http.Request, key, message string) {
	u, _ := url.Parse(safeRedirect(r.PostFormValue(redirectField), "/dashboard"))
	if message != "" {
		q := u.Query()
		q.Set(key, message)
		u.RawQuery = q.Encode()
	}
	http.Redirect(w, r, u.String(), http.StatusSeeOther)
}

// safeRedirect はリダイレクト先が同一オリジンの相対パスであればそれを、
// そうでなければfallbackを返す。
func safeRedirect(target, fallback string) string {
	if target == "" || !strings.HasPrefix(target, "/") ||
		strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return fallback
	}
	u, err := url.Parse(target)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return fallback
	}
	return u.String()
}
