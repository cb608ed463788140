// Package session はプロセス全体で共有されるセッション状態の単一情報源を提供する。
// 書き込みはMonitorのみが行い、他のコンポーネントは購読して反応するだけに限定する。
package session

import (
	"sync"

	"github.com/hitoshi/buildman/internal/client/identity"
)

// Status はセッションの認証状態を表す。
type Status int

const (
	// StatusUnknown は初回通知前の未確定状態。確定後にこの状態へ戻ることはない。
	StatusUnknown Status = iota
	// StatusAuthenticated は認証済み状態。
	StatusAuthenticated
	// StatusUnauthenticated は未認証状態。サインアウト後もこの状態になる。
	StatusUnauthenticated
)

// String はログ出力用の文字列表現を返す。
func (s Status) String() string {
	switch s {
	case StatusAuthenticated:
		return "authenticated"
	case StatusUnauthenticated:
		return "unauthenticated"
	default:
		return "unknown"
	}
}

// Session はセッション状態のスナップショット。
// IdentityはStatusAuthenticatedの場合のみ非nil。
type Session struct {
	Status   Status
	Identity *identity.Identity
}

// Source はセッション変化の購読元。identity.Providerの部分集合として定義する。
type Source interface {
	Subscribe(fn func(*identity.Identity)) (cancel func())
}

// Reader はセッション変化の通知を受け取るコールバック。
type Reader func(Session)

// Monitor はIDプロバイダーの通知を単一の型付きセッション状態に包む。
// 書き込みはこのMonitorだけが行う（single-writer / multi-reader）。
type Monitor struct {
	source Source

	mu             sync.Mutex
	session        Session
	readers        map[int]*readerEntry
	nextID         int
	cancelUpstream func()

	// notifyMu は上流の通知順序どおりに読者へ配信するための直列化用
	notifyMu sync.Mutex
}

// readerEntry は読者ごとの配信直列化を担う。
// 初回スナップショットと以後の更新が同一読者へ順序どおり届くことを保証する。
type readerEntry struct {
	mu sync.Mutex
	fn Reader
}

// NewMonitor はMonitorを生成する。初期状態はStatusUnknown。
func NewMonitor(source Source) *Monitor {
	return &Monitor{
		source:  source,
		session: Session{Status: StatusUnknown},
		readers: make(map[int]*readerEntry),
	}
}

// Start は上流のリスナーを1つ登録する。冪等であり、2回目以降の呼び出しは何もしない。
func (m *Monitor) Start() {
	m.mu.Lock()
	if m.cancelUpstream != nil {
		m.mu.Unlock()
		return
	}
	// 先にプレースホルダを置いて再入を防ぐ
	m.cancelUpstream = func() {}
	m.mu.Unlock()

	cancel := m.source.Subscribe(m.handleNotification)

	m.mu.Lock()
	m.cancelUpstream = cancel
	m.mu.Unlock()
}

// Stop は上流のリスナーを解放する。冪等であり、未開始でも安全に呼べる。
// 停止してもセッション状態はリセットされない（Unknownへは戻らない）。
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel := m.cancelUpstream
	m.cancelUpstream = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// Current は現在のセッション状態のスナップショットを返す。
func (m *Monitor) Current() Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

// Subscribe は読者を登録する。登録時点の状態が最初に1回配信され、
// 以後は状態が更新されるたびに配信される。戻り値の関数で購読を解除する。
// コールバックの内側から呼んでも安全（配信の直列化は読者単位で行うため）。
func (m *Monitor) Subscribe(r Reader) (cancel func()) {
	e := &readerEntry{fn: r}

	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.readers[id] = e
	current := m.session
	// mu解放前にエントリをロックする。通知側はmu経由でしかこのエントリを
	// 発見できないため、ここでブロックすることはなく、初回配信が
	// 以後の更新配信より必ず先行する。
	e.mu.Lock()
	m.mu.Unlock()

	r(current)
	e.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.readers, id)
		m.mu.Unlock()
	}
}

// handleNotification は上流の通知をセッション状態の遷移に変換する。
// identityの有無に応じてAuthenticated/Unauthenticatedのどちらかへ必ず確定する。
// Unknownへ遷移することはない（単調性）。
func (m *Monitor) handleNotification(ident *identity.Identity) {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	next := Session{Status: StatusUnauthenticated}
	if ident != nil {
		next = Session{Status: StatusAuthenticated, Identity: ident}
	}

	m.mu.Lock()
	m.session = next
	entries := make([]*readerEntry, 0, len(m.readers))
	for _, e := range m.readers {
		entries = append(entries, e)
	}
	m.mu.Unlock()

	// 読者は値渡しのスナップショットを受け取るため、途中状態を観測することはない
	for _, e := range entries {
		e.mu.Lock()
		e.fn(next)
		e.mu.Unlock()
	}
}
