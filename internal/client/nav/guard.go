// Package nav はセッション状態から表示すべきビューを決定するナビゲーションガードを提供する。
// セッションはナビゲーションの唯一の上流入力であり、逆方向の依存は持たない
// （ナビゲーションがセッションの再評価を引き起こすことはない）。
package nav

import (
	"sync"

	"github.com/hitoshi/buildman/internal/client/session"
)

// Route は必須ビューの種別を表す。
type Route int

const (
	// RouteLoading はセッション確定前のローディングビュー。
	RouteLoading Route = iota
	// RoutePublicEntry は未認証ユーザー向けの公開エントリービュー。
	RoutePublicEntry
	// RouteProtectedRoot は認証済みユーザー向けの保護ルートビュー。
	RouteProtectedRoot
)

// String はログ出力用の文字列表現を返す。
func (r Route) String() string {
	switch r {
	case RoutePublicEntry:
		return "public_entry"
	case RouteProtectedRoot:
		return "protected_root"
	default:
		return "loading"
	}
}

// Intent は1回分のナビゲーションコマンドを表す。
type Intent struct {
	Route Route
}

// RouteFor はセッション状態から表示すべきビューを決める純粋関数。
func RouteFor(status session.Status) Route {
	switch status {
	case session.StatusAuthenticated:
		return RouteProtectedRoot
	case session.StatusUnauthenticated:
		return RoutePublicEntry
	default:
		return RouteLoading
	}
}

// Guard はセッション遷移ごとに高々1つのナビゲーション意図を発行する。
// 同一ステータスの再通知に対しては冪等であり、重複したコマンドを発行しない。
type Guard struct {
	mu   sync.Mutex
	seen bool
	last session.Status
}

// NewGuard はGuardを生成する。
func NewGuard() *Guard {
	return &Guard{}
}

// Observe はセッションの変化を観測する。
// ステータスが前回と異なる場合のみナビゲーション意図を1つ返す。
func (g *Guard) Observe(s session.Session) (Intent, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.seen && g.last == s.Status {
		return Intent{}, false
	}

	g.seen = true
	g.last = s.Status

	return Intent{Route: RouteFor(s.Status)}, true
}

// Bind はモニターの購読を開始し、発行された意図をemitへ渡す。
// 購読直後に現在の状態に対する初回の意図が1回発行される。
// 戻り値の関数で購読を解除する。
func (g *Guard) Bind(m *session.Monitor, emit func(Intent)) (cancel func()) {
	return m.Subscribe(func(s session.Session) {
		if intent, ok := g.Observe(s); ok {
			emit(intent)
		}
	})
}
