// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/buildman/internal/middleware"
	"github.com/hitoshi/buildman/internal/model"
)

const (
	sessionCookieName = "session_id"
	oauthStateCookie  = "oauth_state"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	SignUp(ctx context.Context, email, password string) (*model.Session, error)
	SignIn(ctx context.Context, email, password string) (*model.Session, error)
	GetLoginURL(state string) string
	HandleCallback(ctx context.Context, code string) (*model.Session, error)
	Logout(ctx context.Context, sessionID string) error
	GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error)
}

// ResetServiceInterface はパスワード再設定ハンドラーが必要とするサービスインターフェース。
type ResetServiceInterface interface {
	RequestReset(ctx context.Context, email string) error
	CompleteReset(ctx context.Context, token, newPassword string) error
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	BaseURL       string
	CookieDomain  string
	CookieSecure  bool
	SessionMaxAge int // セッションCookieの有効期間（秒）
}

// AuthHandler は認証関連のHTTPハンドラー。
// メール/パスワード認証、Google OAuth、パスワード再設定を扱う。
type AuthHandler struct {
	service      AuthServiceInterface
	resetService ResetServiceInterface
	config       AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, resetService ResetServiceInterface, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		service:      service,
		resetService: resetService,
		config:       config,
	}
}

// credentialsRequest はサインアップ/サインインの共通リクエストボディ。
type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignUp はメール/パスワードで新規ユーザーを登録する。
// POST /auth/signup
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewAuthError(model.ErrCodeAuthUnknown))
		return
	}

	session, err := h.service.SignUp(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeAuthError(w, err)
		return
	}

	h.setSessionCookie(w, session.ID)
	h.writeUserResponse(w, r.Context(), session.ID, http.StatusCreated)
}

// SignIn はメール/パスワードでサインインする。
// POST /auth/login
func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewAuthError(model.ErrCodeAuthUnknown))
		return
	}

	session, err := h.service.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeAuthError(w, err)
		return
	}

	h.setSessionCookie(w, session.ID)
	h.writeUserResponse(w, r.Context(), session.ID, http.StatusOK)
}

// Login はGoogle OAuthフローを開始する。
// GET /auth/google/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	state, err := generateState()
	if err != nil {
		slog.Error("failed to generate oauth state", slog.String("error", err.Error()))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	// stateをCookieに保存（CSRF対策）
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600, // 10分
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	url := h.service.GetLoginURL(state)
	http.Redirect(w, r, url, http.StatusTemporaryRedirect)
}

// Callback はOAuthコールバックを処理する。
// GET /auth/google/callback?code=xxx&state=yyy
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	// 1. stateの検証（CSRF対策）
	state := r.URL.Query().Get("state")
	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil || stateCookie.Value != state {
		slog.Warn("oauth state mismatch",
			slog.String("query_state", state),
		)
		http.Error(w, "invalid state parameter", http.StatusBadRequest)
		return
	}

	// stateクッキーは一度きり
	h.clearCookie(w, oauthStateCookie, "")

	// 2. 認可コードの取得
	// ユーザーが同意画面を閉じた場合はcodeが付与されない
	code := r.URL.Query().Get("code")
	if code == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewAuthError(model.ErrCodeAuthPopupClosed))
		return
	}

	// 3. 認証処理
	session, err := h.service.HandleCallback(r.Context(), code)
	if err != nil {
		slog.Error("oauth callback failed", slog.String("error", err.Error()))
		http.Error(w, "authentication failed", http.StatusInternalServerError)
		return
	}

	// 4. セッションCookieを設定（HTTP Only）
	h.setSessionCookie(w, session.ID)

	// 5. フロントエンドにリダイレクト
	http.Redirect(w, r, h.config.BaseURL, http.StatusTemporaryRedirect)
}

// Logout はセッションを破棄する。
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(sessionCookieName)
	if err == nil && cookie.Value != "" {
		if logoutErr := h.service.Logout(r.Context(), cookie.Value); logoutErr != nil {
			slog.Error("failed to logout", slog.String("error", logoutErr.Error()))
		}
	}

	// DB側の削除に失敗していてもCookieはクリアする
	h.clearCookie(w, sessionCookieName, h.config.CookieDomain)

	w.WriteHeader(http.StatusNoContent)
}

// Me は現在のログインユーザー情報を返す。
// GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil || cookie.Value == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	user, err := h.service.GetCurrentUser(r.Context(), cookie.Value)
	if err != nil {
		slog.Error("failed to get current user", slog.String("error", err.Error()))
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(userJSON(user))
}

// resetRequestBody はパスワード再設定メール送信のリクエストボディ。
type resetRequestBody struct {
	Email string `json:"email"`
}

// RequestReset はパスワード再設定メールの送信を受け付ける。
// メールアドレスの存在有無に関わらず同じレスポンスを返す（列挙攻撃対策）。
// POST /auth/reset/request
func (h *AuthHandler) RequestReset(w http.ResponseWriter, r *http.Request) {
	var req resetRequestBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewAuthError(model.ErrCodeAuthInvalidEmail))
		return
	}

	if err := h.resetService.RequestReset(r.Context(), req.Email); err != nil {
		h.writeAuthError(w, err)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

// resetCompleteBody はパスワード再設定完了のリクエストボディ。
type resetCompleteBody struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

// CompleteReset は再設定トークンを検証して新しいパスワードを設定する。
// POST /auth/reset/complete
func (h *AuthHandler) CompleteReset(w http.ResponseWriter, r *http.Request) {
	var req resetCompleteBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewAuthError(model.ErrCodeAuthUnknown))
		return
	}

	if err := h.resetService.CompleteReset(r.Context(), req.Token, req.NewPassword); err != nil {
		h.writeAuthError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// clearCookie は同名・同属性の失効Cookieを上書きして削除する。
func (h *AuthHandler) clearCookie(w http.ResponseWriter, name, domain string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Domain:   domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// setSessionCookie はセッションCookieをHTTP Onlyで設定する。
func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, sessionID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    sessionID,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   h.config.SessionMaxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// writeUserResponse はセッションに対応するユーザー情報をJSONで返す。
func (h *AuthHandler) writeUserResponse(w http.ResponseWriter, ctx context.Context, sessionID string, status int) {
	user, err := h.service.GetCurrentUser(ctx, sessionID)
	if err != nil {
		slog.Error("failed to get current user", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(userJSON(user))
}

// userJSON はログインユーザーをAPIレスポンスの形に整形する。
// パスワードハッシュ等の内部フィールドは出さない。
func userJSON(user *model.User) map[string]interface{} {
	return map[string]interface{}{
		"id":    user.ID,
		"email": user.Email,
		"name":  user.Name,
	}
}

// writeAuthError は認証エラーをコード別のHTTPステータスで書き込む。
func (h *AuthHandler) writeAuthError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		slog.Error("unexpected auth error", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	middleware.WriteErrorResponse(w, statusForAuthCode(apiErr.Code), apiErr)
}

// statusForAuthCode は認証エラーコードをHTTPステータスコードにマッピングする。
func statusForAuthCode(code string) int {
	switch code {
	case model.ErrCodeAuthInvalidEmail, model.ErrCodeAuthWeakPassword, model.ErrCodeAuthPopupClosed:
		return http.StatusBadRequest
	case model.ErrCodeAuthWrongPassword, model.ErrCodeAuthUnknown:
		return http.StatusUnauthorized
	case model.ErrCodeAuthEmailInUse:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// generateState はCSRF対策用のランダムなstate値を生成する。
func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
