// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, remote, subscription, backend, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 認証エラーコード。
// IDプロバイダーが返す{code}判別子をそのまま使う。
const (
	ErrCodeAuthInvalidEmail  = "auth/invalid-email"
	ErrCodeAuthWrongPassword = "auth/wrong-password"
	ErrCodeAuthEmailInUse    = "auth/email-already-in-use"
	ErrCodeAuthWeakPassword  = "auth/weak-password"
	ErrCodeAuthPopupClosed   = "auth/popup-closed-by-user"
	ErrCodeAuthUnknown       = "auth/unknown"
)

// その他のエラーコード。
const (
	ErrCodeSetupNotFound     = "setup/not-found"
	ErrCodeValidation        = "validation/missing-required"
	ErrCodeRemoteUnavailable = "remote/unavailable"
	ErrCodeSubscriptionDead  = "subscription/terminated"
	ErrCodeBackendError      = "backend/error"
)

// authMessages は認証エラーコードからユーザー向けメッセージへの対応表。
// 未知のコードはNewAuthErrorで汎用メッセージにフォールバックする。
var authMessages = map[string]string{
	ErrCodeAuthInvalidEmail:  "メールアドレスの形式が正しくありません。",
	ErrCodeAuthWrongPassword: "メールアドレスまたはパスワードが間違っています。",
	ErrCodeAuthEmailInUse:    "このメールアドレスは既に使用されています。",
	ErrCodeAuthWeakPassword:  "パスワードは6文字以上で設定してください。",
	ErrCodeAuthPopupClosed:   "ログイン画面が閉じられました。もう一度お試しください。",
}

// NewAuthError は認証エラーを生成する。
// 既知のコードはユーザー向けメッセージに解決し、未知のコードは汎用失敗として扱う。
func NewAuthError(code string) *APIError {
	msg, ok := authMessages[code]
	if !ok {
		code = ErrCodeAuthUnknown
		msg = "エラーが発生しました。もう一度お試しください。"
	}
	return &APIError{
		Code:     code,
		Message:  msg,
		Category: "auth",
		Action:   "入力内容を確認して再度お試しください。",
	}
}

// NewSetupNotFoundError は構成未登録エラーを生成する。
// エラーではなく「未登録」状態の表現としてクライアントが扱う。
func NewSetupNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeSetupNotFound,
		Message:  "構成がまだ登録されていません。",
		Category: "validation",
		Action:   "構成を登録してください。",
	}
}

// NewValidationError は必須フィールド欠落エラーを生成する。
func NewValidationError(missing []string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  fmt.Sprintf("必須フィールドが未入力です: %v", missing),
		Category: "validation",
		Action:   "任意項目以外のすべてのフィールドを入力してください。",
	}
}

// NewRemoteUnavailableError は単発呼び出しの通信失敗エラーを生成する。
// 自動リトライは行わず、再試行の判断は呼び出し元に委ねる。
func NewRemoteUnavailableError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeRemoteUnavailable,
		Message:  fmt.Sprintf("サーバーに接続できませんでした: %s", reason),
		Category: "remote",
		Action:   "通信環境を確認して再度お試しください。",
	}
}

// NewSubscriptionError はライブ購読チャネルの終了エラーを生成する。
// このエラーは該当購読のみを終了させ、セッションやナビゲーションには影響しない。
func NewSubscriptionError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeSubscriptionDead,
		Message:  fmt.Sprintf("履歴の受信が中断されました: %s", reason),
		Category: "subscription",
		Action:   "画面を開き直すと再接続されます。",
	}
}

// NewBackendError は提案バックエンドの失敗エラーを生成する。
// inlineTextはUIが結果欄にそのまま表示する文字列。
func NewBackendError(inlineText string) *APIError {
	return &APIError{
		Code:     ErrCodeBackendError,
		Message:  inlineText,
		Category: "backend",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// IsAuthError はエラーが認証カテゴリのAPIErrorかどうかを返す。
func IsAuthError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Category == "auth"
}

// ErrorCode はAPIErrorのコードを返す。APIErrorでない場合は空文字列。
func ErrorCode(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return ""
}
