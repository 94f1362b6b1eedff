package router

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"stakedesk/internal/model"
	"stakedesk/internal/store"
)

type fakeSession struct {
	mu      sync.Mutex
	session model.Session
}

func (f *fakeSession) Session() model.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.session
}

func (f *fakeSession) set(s model.Session) {
	f.mu.Lock()
	f.session = s
	f.mu.Unlock()
}

type fakeAdmin struct {
	isAdmin bool
	err     error
}

func (f *fakeAdmin) IsAdmin(context.Context, common.Address) (bool, error) {
	return f.isAdmin, f.err
}

type recordingView struct {
	mu        sync.Mutex
	mounted   bool
	unmounted bool
	params    map[string]string
	mountErr  error
}

func (v *recordingView) Mount(_ context.Context, params map[string]string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.mountErr != nil {
		return v.mountErr
	}
	v.mounted = true
	v.params = params
	return nil
}

func (v *recordingView) Unmount() {
	v.mu.Lock()
	v.unmounted = true
	v.mu.Unlock()
}

func connectedSession() *fakeSession {
	return &fakeSession{session: model.Session{
		Address:    "0x1111111111111111111111111111111111111111",
		ChainID:    97,
		WalletKind: model.WalletKindKeystore,
	}}
}

func newTestRouter(session *fakeSession, admin *fakeAdmin) (*Router, *store.Store) {
	st := store.New(nil)
	return New(st, session, admin, nil), st
}

func TestNavigateMountsAndPublishes(t *testing.T) {
	r, st := newTestRouter(connectedSession(), &fakeAdmin{})
	view := &recordingView{}
	if err := r.Register(Route{Pattern: "/", Title: "Home"}, func() View { return view }); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	if err := r.Navigate(context.Background(), "/"); err != nil {
		t.Fatalf("navigate failed: %v", err)
	}
	if !view.mounted {
		t.Fatalf("view not mounted")
	}
	if got := st.Get("router.path"); got != "/" {
		t.Fatalf("path not published: %v", got)
	}
	if got := st.Get("router.title"); got != "Home" {
		t.Fatalf("title not published: %v", got)
	}
}

func TestParamCapture(t *testing.T) {
	r, _ := newTestRouter(connectedSession(), &fakeAdmin{})
	view := &recordingView{}
	if err := r.Register(Route{Pattern: "/pair/:address", Title: "Pair"}, func() View { return view }); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	if err := r.Navigate(context.Background(), "/pair/0xabc"); err != nil {
		t.Fatalf("navigate failed: %v", err)
	}
	if view.params["address"] != "0xabc" {
		t.Fatalf("param not captured: %v", view.params)
	}

	path, params := r.Current()
	if path != "/pair/0xabc" || params["address"] != "0xabc" {
		t.Fatalf("current mismatch: %s %v", path, params)
	}
}

func TestUnknownPathFallsBackToRoot(t *testing.T) {
	r, st := newTestRouter(connectedSession(), &fakeAdmin{})
	home := &recordingView{}
	if err := r.Register(Route{Pattern: "/", Title: "Home"}, func() View { return home }); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	if err := r.Navigate(context.Background(), "/nowhere"); err != nil {
		t.Fatalf("navigate failed: %v", err)
	}
	if !home.mounted {
		t.Fatalf("fallback view not mounted")
	}
	if got := st.Get("router.path"); got != "/" {
		t.Fatalf("path should fall back to /: %v", got)
	}
}

func TestAuthGuardDeniesDisconnected(t *testing.T) {
	session := &fakeSession{} // disconnected
	r, st := newTestRouter(session, &fakeAdmin{})
	target := &recordingView{}
	if err := r.Register(Route{Pattern: "/stake", Title: "Stake", RequiresAuth: true}, func() View { return target }); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	if err := r.Navigate(context.Background(), "/stake"); err != nil {
		t.Fatalf("navigate failed: %v", err)
	}
	if target.mounted {
		t.Fatalf("guarded view must not mount")
	}
	if got := st.Get("router.denied"); got != true {
		t.Fatalf("denial not published: %v", got)
	}
	if got := st.Get("router.deniedReason"); got != "wallet not connected" {
		t.Fatalf("denial reason mismatch: %v", got)
	}
}

func TestAdminGuardDeniesNonAdmin(t *testing.T) {
	r, st := newTestRouter(connectedSession(), &fakeAdmin{isAdmin: false})
	target := &recordingView{}
	if err := r.Register(Route{Pattern: "/admin", Title: "Admin", RequiresAuth: true, RequiresAdmin: true}, func() View { return target }); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	if err := r.Navigate(context.Background(), "/admin"); err != nil {
		t.Fatalf("navigate failed: %v", err)
	}
	if target.mounted {
		t.Fatalf("admin view must not mount for non-admin")
	}
	if got := st.Get("router.deniedReason"); got != "admin role required" {
		t.Fatalf("denial reason mismatch: %v", got)
	}
}

func TestAdminGuardMountsForAdmin(t *testing.T) {
	r, _ := newTestRouter(connectedSession(), &fakeAdmin{isAdmin: true})
	target := &recordingView{}
	if err := r.Register(Route{Pattern: "/admin", Title: "Admin", RequiresAdmin: true}, func() View { return target }); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	if err := r.Navigate(context.Background(), "/admin"); err != nil {
		t.Fatalf("navigate failed: %v", err)
	}
	if !target.mounted {
		t.Fatalf("admin view should mount for admin")
	}
}

func TestBeforeEnterRejectionDenies(t *testing.T) {
	r, st := newTestRouter(connectedSession(), &fakeAdmin{})
	target := &recordingView{}
	route := Route{
		Pattern: "/pair/:address",
		Title:   "Pair",
		BeforeEnter: func(_ context.Context, params map[string]string) error {
			return errors.New("unknown pair")
		},
	}
	if err := r.Register(route, func() View { return target }); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	if err := r.Navigate(context.Background(), "/pair/0xabc"); err != nil {
		t.Fatalf("navigate failed: %v", err)
	}
	if target.mounted {
		t.Fatalf("rejected view must not mount")
	}
	if got := st.Get("router.deniedReason"); got != "unknown pair" {
		t.Fatalf("denial reason mismatch: %v", got)
	}
}

func TestPriorViewUnmounts(t *testing.T) {
	r, _ := newTestRouter(connectedSession(), &fakeAdmin{})
	first := &recordingView{}
	second := &recordingView{}
	if err := r.Register(Route{Pattern: "/", Title: "Home"}, func() View { return first }); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if err := r.Register(Route{Pattern: "/stake", Title: "Stake"}, func() View { return second }); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	if err := r.Navigate(context.Background(), "/"); err != nil {
		t.Fatalf("navigate failed: %v", err)
	}
	if err := r.Navigate(context.Background(), "/stake"); err != nil {
		t.Fatalf("navigate failed: %v", err)
	}
	if !first.unmounted {
		t.Fatalf("prior view must unmount")
	}
	if !second.mounted {
		t.Fatalf("next view must mount")
	}
}

func TestConcurrentNavigationDropped(t *testing.T) {
	r, _ := newTestRouter(connectedSession(), &fakeAdmin{})
	release := make(chan struct{})
	slow := Route{
		Pattern: "/slow",
		Title:   "Slow",
		BeforeEnter: func(context.Context, map[string]string) error {
			<-release
			return nil
		},
	}
	slowView := &recordingView{}
	fastView := &recordingView{}
	if err := r.Register(slow, func() View { return slowView }); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if err := r.Register(Route{Pattern: "/fast", Title: "Fast"}, func() View { return fastView }); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- r.Navigate(context.Background(), "/slow") }()
	time.Sleep(20 * time.Millisecond)

	if err := r.Navigate(context.Background(), "/fast"); !errors.Is(err, ErrNavigationInProgress) {
		t.Fatalf("expected in-progress drop, got %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first navigation failed: %v", err)
	}
	if fastView.mounted {
		t.Fatalf("dropped navigation must not mount")
	}
	if !slowView.mounted {
		t.Fatalf("winning navigation must mount")
	}
}

func TestMountFailureSurfaces(t *testing.T) {
	r, _ := newTestRouter(connectedSession(), &fakeAdmin{})
	broken := &recordingView{mountErr: errors.New("boom")}
	if err := r.Register(Route{Pattern: "/", Title: "Home"}, func() View { return broken }); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	if err := r.Navigate(context.Background(), "/"); err == nil {
		t.Fatalf("mount failure must surface")
	}
}
