// Package history は照会履歴へのライブ購読を提供する。
// リモートコレクションが変化するたびに、差分ではなく再整列済みの完全なスナップショットを配信する。
package history

import (
	"context"
	"log/slog"
	"sync"

	"github.com/hitoshi/buildman/internal/client/session"
	"github.com/hitoshi/buildman/internal/model"
)

// SnapshotStream は履歴スナップショットの受信チャネル。
type SnapshotStream interface {
	// Next は次のスナップショットが届くまでブロックする。
	// チャネルが失効した場合はエラーを返し、以後の呼び出しは無効。
	Next() ([]model.Query, error)
	Close() error
}

// StreamOpener は識別子にスコープされたライブチャネルを開く。
type StreamOpener interface {
	Open(ctx context.Context, identityID string) (SnapshotStream, error)
}

// SessionWatcher はセッション変化の購読。session.Monitorの部分集合として定義する。
type SessionWatcher interface {
	Subscribe(r session.Reader) (cancel func())
}

// Feed は1識別子分の履歴レコードのライブビューを維持する。
// 購読ごとにちょうど1つのチャネルを開き、ハンドルの解放はちょうど1回行われる。
type Feed struct {
	opener StreamOpener
	logger *slog.Logger

	mu      sync.Mutex
	handles map[*Handle]struct{}
}

// NewFeed はFeedを生成する。
func NewFeed(opener StreamOpener, logger *slog.Logger) *Feed {
	if logger == nil {
		logger = slog.Default()
	}
	return &Feed{
		opener:  opener,
		logger:  logger,
		handles: make(map[*Handle]struct{}),
	}
}

// Handle は1つのアクティブな購読を表す。
// 開いたコンポーネントが排他的に所有し、Unsubscribeでちょうど1回解放する。
type Handle struct {
	feed       *Feed
	identityID string
	cancel     context.CancelFunc

	once sync.Once

	// deliverMuはコールバック配信を直列化する。解放フラグの再確認から
	// onUpdate/onErrorの呼び出し完了までを1区間として保持する。
	deliverMu sync.Mutex

	mu       sync.Mutex
	released bool
	invalid  bool
}

// Subscribe は識別子にスコープされたライブチャネルを1つ開く。
// コレクションが変化するたびに、再整列済みの完全な現在集合がonUpdateへ渡される。
// チャネルの失効はonErrorへ1回だけ通知され、そのハンドルは以後無効になる
// （暗黙の再接続はしない。再購読は呼び出し側が明示的に行う）。
func (f *Feed) Subscribe(identityID string, onUpdate func([]model.Query), onError func(error)) (*Handle, error) {
	ctx, cancel := context.WithCancel(context.Background())

	stream, err := f.opener.Open(ctx, identityID)
	if err != nil {
		cancel()
		return nil, err
	}

	h := &Handle{feed: f, identityID: identityID, cancel: cancel}

	f.mu.Lock()
	f.handles[h] = struct{}{}
	f.mu.Unlock()

	go h.run(stream, onUpdate, onError)

	return h, nil
}

// Unsubscribe はチャネルを解放する。冪等であり、2回目以降の呼び出しは何もしない。
// 配信中のコールバックがあればその完了を待つため、戻った時点で以後の
// onUpdate/onErrorは発生しない。onUpdate/onErrorの内側から呼んではならない。
func (h *Handle) Unsubscribe() {
	h.once.Do(func() {
		// 進行中の配信と直列化してから解放フラグを立てる。
		// これにより配信側の再確認は解放後の状態を必ず観測する。
		h.deliverMu.Lock()
		h.mu.Lock()
		h.released = true
		h.mu.Unlock()
		h.deliverMu.Unlock()

		h.cancel()
		h.feed.remove(h)
	})
}

// Invalid はチャネルの失効によりハンドルが無効化されたかどうかを返す。
func (h *Handle) Invalid() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.invalid
}

// IdentityID はこの購読を所有する識別子を返す。
func (h *Handle) IdentityID() string {
	return h.identityID
}

// run はスナップショットの受信ループ。ハンドルの解放または失効で終了する。
func (h *Handle) run(stream SnapshotStream, onUpdate func([]model.Query), onError func(error)) {
	defer stream.Close()

	for {
		snapshot, err := stream.Next()

		// 解放判定から配信完了までdeliverMuを保持し、Unsubscribeと直列化する。
		h.deliverMu.Lock()

		h.mu.Lock()
		if h.released {
			h.mu.Unlock()
			h.deliverMu.Unlock()
			return
		}

		if err != nil {
			h.invalid = true
			h.mu.Unlock()

			h.feed.logger.Warn("history subscription terminated",
				slog.String("identity_id", h.identityID),
				slog.String("error", err.Error()),
			)
			h.feed.remove(h)
			onError(model.NewSubscriptionError(err.Error()))
			h.deliverMu.Unlock()
			return
		}

		h.mu.Unlock()

		// 配信前に必ず再整列する（created_at降順、同時刻はID昇順）
		model.SortQueries(snapshot)
		onUpdate(snapshot)

		h.deliverMu.Unlock()
	}
}

func (f *Feed) remove(h *Handle) {
	f.mu.Lock()
	delete(f.handles, h)
	f.mu.Unlock()
}

// ReleaseFor は指定した識別子以外が所有するハンドルをすべて解放する。
// activeIdentityIDが空の場合はすべてのハンドルを解放する。
func (f *Feed) ReleaseFor(activeIdentityID string) {
	f.mu.Lock()
	var stale []*Handle
	for h := range f.handles {
		if h.identityID != activeIdentityID || activeIdentityID == "" {
			stale = append(stale, h)
		}
	}
	f.mu.Unlock()

	for _, h := range stale {
		h.Unsubscribe()
	}
}

// Bind はセッション変化の監視を開始する。
// サインアウトまたは識別子の切替が起きると、もはやアクティブでない識別子に
// スコープされたハンドルを解放し、チャネルのリークを防ぐ。
// 戻り値の関数で監視を解除する。
func (f *Feed) Bind(watcher SessionWatcher) (cancel func()) {
	return watcher.Subscribe(func(s session.Session) {
		var active string
		if s.Status == session.StatusAuthenticated && s.Identity != nil {
			active = s.Identity.ID
		}
		f.ReleaseFor(active)
	})
}

// ActiveCount は現在アクティブなハンドル数を返す。
func (f *Feed) ActiveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handles)
}
