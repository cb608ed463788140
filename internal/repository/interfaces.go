// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/buildman/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// Create はユーザーを作成する。
	Create(ctx context.Context, user *model.User) error

	// CreateWithIdentity はユーザーとidentityを同一トランザクションで作成する。
	// OAuth経由の新規登録で使用する。
	CreateWithIdentity(ctx context.Context, user *model.User, identity *model.Identity) error

	// UpdatePasswordHash はユーザーのパスワードハッシュを更新する。
	UpdatePasswordHash(ctx context.Context, userID, passwordHash string) error
}

// IdentityRepository は外部IdP紐付け情報の永続化インターフェース。
type IdentityRepository interface {
	// FindByProviderAndProviderUserID はproviderとprovider_user_idでidentityを検索する。
	// 見つからない場合はnilを返す。
	FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.Identity, error)
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
}

// ResetTokenRepository はパスワード再設定トークンの永続化インターフェース。
type ResetTokenRepository interface {
	// Create はトークンレコードを作成する。
	Create(ctx context.Context, token *model.PasswordResetToken) error

	// FindValidByTokenHash は未使用かつ期限内のトークンをハッシュで検索する。
	// 見つからない場合はnilを返す。
	FindValidByTokenHash(ctx context.Context, tokenHash string) (*model.PasswordResetToken, error)

	// MarkUsed はトークンを使用済みにする。
	MarkUsed(ctx context.Context, id string) error
}

// SetupRepository はPC構成ドキュメントの永続化インターフェース。
// ユーザーごとに最大1件のドキュメントを保持する。
type SetupRepository interface {
	// FindByUserID は指定ユーザーの構成を取得する。未登録の場合はnilを返す。
	FindByUserID(ctx context.Context, userID string) (*model.Setup, error)

	// Merge は構成をマージ書き込みする。
	// パッチに存在しないフィールドは既存の値を維持し、存在するフィールドのみ上書きする。
	// 行が存在しない場合は新規作成する。マージ後の構成を返す。
	Merge(ctx context.Context, userID string, patch *model.SetupPatch) (*model.Setup, error)
}

// QueryRepository は提案履歴レコードの永続化インターフェース。
// 履歴は追記専用であり、更新・削除操作は提供しない。
type QueryRepository interface {
	// Create は履歴レコードを追加する。
	Create(ctx context.Context, query *model.Query) error

	// ListByUserID は指定ユーザーの全履歴をcreated_at降順（同時刻はID昇順）で返す。
	ListByUserID(ctx context.Context, userID string) ([]model.Query, error)
}
