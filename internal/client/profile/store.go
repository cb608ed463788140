// Package profile はプロフィールドキュメント（PC構成）の読み書きと編集ドラフトの調停を提供する。
// リモート書き込みは明示的な保存操作を経由した場合にのみ発生する。
package profile

import (
	"context"
	"sync"

	"github.com/hitoshi/buildman/internal/client/session"
	"github.com/hitoshi/buildman/internal/model"
)

// SetupAPI はプロフィールドキュメントのリモートアクセス。
// 未登録の場合、Getは (nil, nil) を返す（エラーとは区別される）。
type SetupAPI interface {
	Get(ctx context.Context) (*model.Setup, error)
	Merge(ctx context.Context, patch model.SetupPatch) (*model.Setup, error)
}

// ActiveSession は現在のセッションの照会。session.Monitorの部分集合として定義する。
type ActiveSession interface {
	Current() session.Session
}

// Store は1識別子につき1件のプロフィールドキュメントへのアクセスを提供する。
// 保存成功時はマージ規則をローカルに適用した楽観的更新でキャッシュを差し替える。
type Store struct {
	api      SetupAPI
	sessions ActiveSession

	mu     sync.Mutex
	cached map[string]model.Setup
}

// NewStore はStoreを生成する。
func NewStore(api SetupAPI, sessions ActiveSession) *Store {
	return &Store{
		api:      api,
		sessions: sessions,
		cached:   make(map[string]model.Setup),
	}
}

// Load は識別子のプロフィールドキュメントを1回だけ取得する（ライブ更新はしない）。
// 未登録の場合は (nil, nil) を返す。トランスポート障害は呼び出し側が
// リトライ方針を決める（この層では自動リトライしない）。
func (s *Store) Load(ctx context.Context, identityID string) (*model.Setup, error) {
	doc, err := s.api.Get(ctx)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, nil
	}

	s.mu.Lock()
	s.cached[identityID] = *doc
	s.mu.Unlock()

	return doc, nil
}

// Save はマージ書き込みを実行する。
// パッチに含まれないフィールドは以前の値が維持され、含まれるフィールドは上書きされる。
// 成功時はリモートを再取得せず、同じマージ規則をローカルに適用した結果を返す。
// 完了時点でセッションの識別子が保存時と異なる場合、結果は古いものとして
// キャッシュへ反映せずに破棄する（サインアウトとの競合対策）。
func (s *Store) Save(ctx context.Context, identityID string, patch model.SetupPatch) (*model.Setup, error) {
	s.mu.Lock()
	base, ok := s.cached[identityID]
	s.mu.Unlock()
	if !ok {
		base = model.Setup{UserID: identityID}
	}

	remote, err := s.api.Merge(ctx, patch)
	if err != nil {
		return nil, err
	}

	merged := patch.Apply(base)
	if remote != nil {
		merged.UpdatedAt = remote.UpdatedAt
	}

	// 完了ハンドラは保存中の識別子がまだアクティブかを確認してから反映する
	cur := s.sessions.Current()
	if cur.Status == session.StatusAuthenticated && cur.Identity != nil && cur.Identity.ID == identityID {
		s.mu.Lock()
		s.cached[identityID] = merged
		s.mu.Unlock()
	}

	return &merged, nil
}

// Cached はローカルキャッシュ上のドキュメントを返す。
func (s *Store) Cached(identityID string) (*model.Setup, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.cached[identityID]
	if !ok {
		return nil, false
	}
	return &doc, true
}

// Evict は識別子のキャッシュを破棄する。サインアウト時に呼ぶ。
func (s *Store) Evict(identityID string) {
	s.mu.Lock()
	delete(s.cached, identityID)
	s.mu.Unlock()
}
