package nav

import (
	"testing"

	"github.com/hitoshi/buildman/internal/client/identity"
	"github.com/hitoshi/buildman/internal/client/session"
)

func TestRouteFor(t *testing.T) {
	tests := []struct {
		status session.Status
		want   Route
	}{
		{session.StatusUnknown, RouteLoading},
		{session.StatusUnauthenticated, RoutePublicEntry},
		{session.StatusAuthenticated, RouteProtectedRoot},
	}

	for _, tt := range tests {
		if got := RouteFor(tt.status); got != tt.want {
			t.Errorf("RouteFor(%v) = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestGuard_FirstObservationEmitsIntent(t *testing.T) {
	g := NewGuard()

	intent, ok := g.Observe(session.Session{Status: session.StatusUnknown})
	if !ok {
		t.Fatal("first observation should emit an intent")
	}
	if intent.Route != RouteLoading {
		t.Errorf("route = %v, want %v", intent.Route, RouteLoading)
	}
}

// 同一ステータスの再通知では重複したナビゲーションコマンドを発行しない。
func TestGuard_RedundantRepublishEmitsNothing(t *testing.T) {
	g := NewGuard()

	s := session.Session{Status: session.StatusAuthenticated, Identity: &identity.Identity{ID: "user-1"}}
	if _, ok := g.Observe(s); !ok {
		t.Fatal("first observation should emit an intent")
	}

	for i := 0; i < 3; i++ {
		if _, ok := g.Observe(s); ok {
			t.Fatalf("redundant observation %d emitted an intent", i+1)
		}
	}
}

func TestGuard_StatusChangeEmitsExactlyOneIntent(t *testing.T) {
	g := NewGuard()

	transitions := []struct {
		status session.Status
		want   Route
	}{
		{session.StatusUnknown, RouteLoading},
		{session.StatusAuthenticated, RouteProtectedRoot},
		{session.StatusUnauthenticated, RoutePublicEntry},
		{session.StatusAuthenticated, RouteProtectedRoot},
	}

	for _, tr := range transitions {
		intent, ok := g.Observe(session.Session{Status: tr.status})
		if !ok {
			t.Fatalf("transition to %v emitted no intent", tr.status)
		}
		if intent.Route != tr.want {
			t.Errorf("route for %v = %v, want %v", tr.status, intent.Route, tr.want)
		}
		// 直後の同一ステータス通知ではなにも発行しない
		if _, ok := g.Observe(session.Session{Status: tr.status}); ok {
			t.Errorf("redundant republish for %v emitted an intent", tr.status)
		}
	}
}

// identityの差し替えがあってもステータスが同じなら追加のコマンドは発行されない。
func TestGuard_SameStatusDifferentIdentityEmitsNothing(t *testing.T) {
	g := NewGuard()

	g.Observe(session.Session{Status: session.StatusAuthenticated, Identity: &identity.Identity{ID: "user-1"}})
	if _, ok := g.Observe(session.Session{Status: session.StatusAuthenticated, Identity: &identity.Identity{ID: "user-2"}}); ok {
		t.Error("identity switch with same status should not emit a navigation intent")
	}
}

func TestGuard_BindEmitsThroughMonitor(t *testing.T) {
	source := &fakeSource{}
	m := session.NewMonitor(source)
	m.Start()

	g := NewGuard()
	var routes []Route
	cancel := g.Bind(m, func(i Intent) { routes = append(routes, i.Route) })
	defer cancel()

	source.Notify(&identity.Identity{ID: "user-1"})
	source.Notify(&identity.Identity{ID: "user-1"}) // 再通知
	source.Notify(nil)

	want := []Route{RouteLoading, RouteProtectedRoot, RoutePublicEntry}
	if len(routes) != len(want) {
		t.Fatalf("intents = %v, want %v", routes, want)
	}
	for i := range want {
		if routes[i] != want[i] {
			t.Errorf("intent[%d] = %v, want %v", i, routes[i], want[i])
		}
	}
}

// fakeSource はテスト用のセッション通知元。
type fakeSource struct {
	subs []func(*identity.Identity)
}

var _ session.Source = (*fakeSource)(nil)

func (s *fakeSource) Subscribe(fn func(*identity.Identity)) func() {
	s.subs = append(s.subs, fn)
	return func() {}
}

func (s *fakeSource) Notify(ident *identity.Identity) {
	for _, fn := range s.subs {
		fn(ident)
	}
}
