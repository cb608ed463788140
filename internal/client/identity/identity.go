// Package identity はIDプロバイダーへのクライアントアクセスを提供する。
// サインイン/サインアップ/サインアウトの各操作と、セッション変化の購読プリミティブを公開する。
package identity

import (
	"context"
	"errors"

	"github.com/hitoshi/buildman/internal/model"
)

// Identity は認証済みプリンシパルを表す。
// 安定識別子と任意のプロフィールクレームを持ち、セッションの生存期間中は不変。
type Identity struct {
	ID    string
	Email string
	Name  string
}

// Provider はIDプロバイダーの操作インターフェース。
// エラーは{code}判別子付きのAPIErrorとして返され、未知のコードは汎用エラーに正規化される。
type Provider interface {
	// SignIn はメール/パスワードでサインインする。
	SignIn(ctx context.Context, email, password string) (*Identity, error)
	// SignUp は新規アカウントを作成しサインインする。
	SignUp(ctx context.Context, email, password string) (*Identity, error)
	// SignInWithExternalProvider は外部プロバイダー（ブラウザフロー）でサインインする。
	// ユーザーがフローを中断した場合は auth/popup-closed-by-user を返す。
	SignInWithExternalProvider(ctx context.Context) (*Identity, error)
	// SendPasswordReset はパスワード再設定メールの送信を依頼する。
	SendPasswordReset(ctx context.Context, email string) error
	// SignOut はセッションを終了する。
	SignOut(ctx context.Context) error
	// Subscribe はセッション変化の通知を購読する。
	// 現在の状態（identityまたはnil）が最初に1回配信され、以後は変化のたびに配信される。
	// 戻り値の関数で購読を解除する。
	Subscribe(fn func(*Identity)) (cancel func())
}

// FriendlyMessage はエラーをユーザー向けの表示文言に変換する。
// APIError以外のエラーや文言未定義のコードは汎用メッセージに落とす。
func FriendlyMessage(err error) string {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return "エラーが発生しました。もう一度お試しください。"
}
