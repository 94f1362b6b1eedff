package router

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"stakedesk/internal/model"
	"stakedesk/internal/store"
)

// ErrNavigationInProgress is returned when a navigation arrives while
// another one is still being dispatched. The new navigation is dropped.
var ErrNavigationInProgress = errors.New("navigation in progress")

// View is a mountable screen controller.
type View interface {
	Mount(ctx context.Context, params map[string]string) error
	Unmount()
}

// Factory builds a fresh view per navigation.
type Factory func() View

// SessionReader exposes the current wallet session to guards.
type SessionReader interface {
	Session() model.Session
}

// AdminChecker answers the admin guard. *contract.Gateway satisfies it.
type AdminChecker interface {
	IsAdmin(ctx context.Context, account common.Address) (bool, error)
}

// Route declares one navigable path. Pattern segments starting with ':'
// capture into params.
type Route struct {
	Pattern       string
	Title         string
	RequiresAuth  bool
	RequiresAdmin bool
	// BeforeEnter runs after the guards; a non-nil error cancels the
	// navigation with the denial view.
	BeforeEnter func(ctx context.Context, params map[string]string) error
}

type registered struct {
	route    Route
	segments []string
	factory  Factory
}

// Router maps paths to views and serializes transitions so at most one
// view is mounted at any time.
type Router struct {
	store   *store.Store
	session SessionReader
	admin   AdminChecker
	logger  *zap.Logger
	denial  Factory

	mu          sync.Mutex
	routes      []registered
	current     View
	currentPath string
	params      map[string]string
	navigating  bool
	generation  uint64
}

// denialView is mounted when a guard refuses the target route.
type denialView struct {
	store  *store.Store
	reason string
}

func (v *denialView) Mount(_ context.Context, _ map[string]string) error {
	v.store.Batch([]store.Update{
		{Path: "router.denied", Value: true},
		{Path: "router.deniedReason", Value: v.reason},
	})
	return nil
}

func (v *denialView) Unmount() {
	v.store.Batch([]store.Update{
		{Path: "router.denied", Value: false},
		{Path: "router.deniedReason", Value: ""},
	})
}

func New(st *store.Store, session SessionReader, admin AdminChecker, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{store: st, session: session, admin: admin, logger: logger}
}

// Register adds a route. Patterns must be absolute and unique.
func (r *Router) Register(route Route, factory Factory) error {
	if !strings.HasPrefix(route.Pattern, "/") {
		return fmt.Errorf("route pattern %q must start with /", route.Pattern)
	}
	if factory == nil {
		return fmt.Errorf("route %q has no view factory", route.Pattern)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.routes {
		if existing.route.Pattern == route.Pattern {
			return fmt.Errorf("route %q already registered", route.Pattern)
		}
	}
	r.routes = append(r.routes, registered{
		route:    route,
		segments: splitPath(route.Pattern),
		factory:  factory,
	})
	return nil
}

// Current returns the mounted path and its captured params.
func (r *Router) Current() (string, map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	params := make(map[string]string, len(r.params))
	for k, v := range r.params {
		params[k] = v
	}
	return r.currentPath, params
}

// Navigate transitions to path. A navigation that arrives while another is
// in progress is dropped with ErrNavigationInProgress.
func (r *Router) Navigate(ctx context.Context, path string) error {
	return r.transition(ctx, path, false)
}

// Replace transitions without recording the previous path, for redirects.
func (r *Router) Replace(ctx context.Context, path string) error {
	return r.transition(ctx, path, true)
}

func (r *Router) transition(ctx context.Context, path string, replace bool) error {
	r.mu.Lock()
	if r.navigating {
		r.mu.Unlock()
		r.logger.Debug("navigation dropped", zap.String("path", path))
		return ErrNavigationInProgress
	}
	r.navigating = true
	r.generation++
	gen := r.generation
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.navigating = false
		r.mu.Unlock()
	}()

	match, params := r.match(path)
	if match == nil {
		// unknown paths land on the root route
		if path == "/" {
			return fmt.Errorf("no root route registered")
		}
		r.mu.Lock()
		r.navigating = false
		r.mu.Unlock()
		return r.transition(ctx, "/", true)
	}

	view, title, err := r.guard(ctx, match, params)
	if err != nil {
		return err
	}

	r.mu.Lock()
	if r.generation != gen {
		r.mu.Unlock()
		return nil
	}
	prior := r.current
	r.current = view
	r.currentPath = path
	r.params = params
	r.mu.Unlock()

	if prior != nil {
		prior.Unmount()
	}
	if err := view.Mount(ctx, params); err != nil {
		r.mu.Lock()
		if r.current == view {
			r.current = nil
		}
		r.mu.Unlock()
		return fmt.Errorf("mount %s: %w", path, err)
	}

	r.store.Batch([]store.Update{
		{Path: "router.path", Value: path},
		{Path: "router.title", Value: title},
		{Path: "router.replace", Value: replace},
	})
	r.logger.Info("route changed", zap.String("path", path), zap.String("title", title))
	return nil
}

// guard enforces requiresAuth, requiresAdmin, then beforeEnter, in that
// order. A refused guard yields the denial view instead of the target.
func (r *Router) guard(ctx context.Context, match *registered, params map[string]string) (View, string, error) {
	route := match.route

	if route.RequiresAuth {
		if !r.session.Session().Connected() {
			return &denialView{store: r.store, reason: "wallet not connected"}, "Access denied", nil
		}
	}
	if route.RequiresAdmin {
		session := r.session.Session()
		if !session.Connected() {
			return &denialView{store: r.store, reason: "wallet not connected"}, "Access denied", nil
		}
		isAdmin, err := r.admin.IsAdmin(ctx, common.HexToAddress(session.Address))
		if err != nil {
			return nil, "", fmt.Errorf("admin check: %w", err)
		}
		if !isAdmin {
			return &denialView{store: r.store, reason: "admin role required"}, "Access denied", nil
		}
	}
	if route.BeforeEnter != nil {
		if err := route.BeforeEnter(ctx, params); err != nil {
			return &denialView{store: r.store, reason: err.Error()}, "Access denied", nil
		}
	}
	return match.factory(), route.Title, nil
}

// match finds the registered route for path and captures :param segments.
func (r *Router) match(path string) (*registered, map[string]string) {
	segments := splitPath(path)

	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.routes {
		candidate := &r.routes[i]
		if len(candidate.segments) != len(segments) {
			continue
		}
		params := make(map[string]string)
		matched := true
		for j, want := range candidate.segments {
			if strings.HasPrefix(want, ":") {
				params[want[1:]] = segments[j]
				continue
			}
			if want != segments[j] {
				matched = false
				break
			}
		}
		if matched {
			return candidate, params
		}
	}
	return nil, nil
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}
