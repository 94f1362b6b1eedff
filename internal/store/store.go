package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"stakedesk/internal/storage"
)

// Wildcard subscribers receive every change, after exact and ancestor
// subscribers.
const Wildcard = "*"

const historyLimit = 50

// Callback receives the path that changed and the post-write value at the
// subscriber's own path (for the wildcard, the value at the changed path).
type Callback func(path string, value any)

// Update is one entry of a Batch.
type Update struct {
	Path  string
	Value any
}

// SetOptions control merge and notification behavior of a single write.
type SetOptions struct {
	// Replace overwrites instead of shallow-merging when both the old and
	// new values are objects.
	Replace bool
	// Silent suppresses subscriber notification.
	Silent bool
}

// Change records one path mutation inside a history snapshot.
type Change struct {
	Path   string
	Before any
	After  any
}

// Snapshot is one history entry: the action that ran and what it changed.
type Snapshot struct {
	Action  string
	At      time.Time
	Changes []Change
}

// Store is the process-wide observable state tree keyed by dotted paths.
// It is mutated from event-loop turns only; the mutex guards the tree while
// notifications are dispatched outside it, so subscribers may read back.
type Store struct {
	mu      sync.Mutex
	tree    map[string]any
	subs    map[string]map[int]Callback
	nextSub int
	history []Snapshot
	logger  *zap.Logger
}

func New(logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		tree:   make(map[string]any),
		subs:   make(map[string]map[int]Callback),
		logger: logger,
	}
}

// Get returns the value at path, or the whole tree for the empty path.
// Missing segments return nil.
func (s *Store) Get(path string) any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(path)
}

func (s *Store) get(path string) any {
	if path == "" {
		return s.tree
	}
	var current any = s.tree
	for _, segment := range strings.Split(path, ".") {
		node, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current, ok = node[segment]
		if !ok {
			return nil
		}
	}
	return current
}

// Set writes value at path with merge semantics and notifies subscribers.
func (s *Store) Set(path string, value any) {
	s.SetWith(path, value, SetOptions{})
}

// SetWith writes value at path honoring opts. Notification order is the
// exact path, then each ancestor deepest first, then the wildcard.
func (s *Store) SetWith(path string, value any, opts SetOptions) {
	if path == "" {
		return
	}

	s.mu.Lock()
	before := s.get(path)
	s.write(path, value, !opts.Replace)
	s.record("set", []Change{{Path: path, Before: before, After: s.get(path)}})
	s.mu.Unlock()

	if !opts.Silent {
		s.notify([]string{path})
	}
}

// Batch applies all updates silently, then emits at most one notification
// per distinct path against the final state; the history records the whole
// batch as one snapshot of pre/post values.
func (s *Store) Batch(updates []Update) {
	if len(updates) == 0 {
		return
	}

	s.mu.Lock()
	changes := make([]Change, 0, len(updates))
	seen := make(map[string]int)
	order := make([]string, 0, len(updates))
	for _, u := range updates {
		if u.Path == "" {
			continue
		}
		if _, dup := seen[u.Path]; !dup {
			seen[u.Path] = len(changes)
			order = append(order, u.Path)
			changes = append(changes, Change{Path: u.Path, Before: s.get(u.Path)})
		}
		s.write(u.Path, u.Value, true)
	}
	for i := range changes {
		changes[i].After = s.get(changes[i].Path)
	}
	s.record("batch", changes)
	s.mu.Unlock()

	s.notify(order)
}

// Subscribe registers cb for path (or Wildcard). The returned func removes
// the subscription and is safe to call more than once.
func (s *Store) Subscribe(path string, cb Callback) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	if s.subs[path] == nil {
		s.subs[path] = make(map[int]Callback)
	}
	s.subs[path][id] = cb
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs[path], id)
		s.mu.Unlock()
	}
}

// Computed keeps path equal to fn(tree), recomputed whenever any dep
// changes. The result is written silently.
func (s *Store) Computed(path string, fn func(get func(string) any) any, deps []string) {
	recompute := func() {
		value := fn(s.Get)
		s.SetWith(path, value, SetOptions{Replace: true, Silent: true})
	}
	for _, dep := range deps {
		s.Subscribe(dep, func(string, any) { recompute() })
	}
	recompute()
}

// Persist serializes the selected paths to the backend under key.
func (s *Store) Persist(ctx context.Context, backend storage.Backend, key string, paths []string) error {
	record := make(map[string]any, len(paths))
	for _, path := range paths {
		record[path] = s.Get(path)
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal persisted state: %w", err)
	}
	return backend.Save(ctx, key, data)
}

// Restore merges previously persisted paths back into the tree. Paths not
// present in the record (or unrecognized extras in it) are ignored.
func (s *Store) Restore(ctx context.Context, backend storage.Backend, key string, paths []string) error {
	data, ok, err := backend.Load(ctx, key)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	var record map[string]any
	if err := json.Unmarshal(data, &record); err != nil {
		return fmt.Errorf("parse persisted state: %w", err)
	}

	for _, path := range paths {
		if value, present := record[path]; present {
			s.Set(path, value)
		}
	}
	return nil
}

// History returns a copy of the retained snapshots, oldest first.
func (s *Store) History() []Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Snapshot, len(s.history))
	copy(out, s.history)
	return out
}

func (s *Store) write(path string, value any, merge bool) {
	segments := strings.Split(path, ".")
	node := s.tree
	for _, segment := range segments[:len(segments)-1] {
		child, ok := node[segment].(map[string]any)
		if !ok {
			child = make(map[string]any)
			node[segment] = child
		}
		node = child
	}

	leaf := segments[len(segments)-1]
	if merge {
		if oldMap, ok := node[leaf].(map[string]any); ok {
			if newMap, ok := value.(map[string]any); ok {
				merged := make(map[string]any, len(oldMap)+len(newMap))
				for k, v := range oldMap {
					merged[k] = v
				}
				for k, v := range newMap {
					merged[k] = v
				}
				node[leaf] = merged
				return
			}
		}
	}
	node[leaf] = value
}

func (s *Store) record(action string, changes []Change) {
	s.history = append(s.history, Snapshot{Action: action, At: time.Now(), Changes: changes})
	if len(s.history) > historyLimit {
		s.history = s.history[len(s.history)-historyLimit:]
	}
}

// notify dispatches for each changed path: exact subscribers, ancestor
// subscribers deepest first, then wildcard subscribers. Paths already
// notified within one dispatch are skipped so a batch emits at most one
// notification per distinct path.
func (s *Store) notify(changed []string) {
	notified := make(map[string]bool)

	for _, path := range changed {
		if notified[path] {
			continue
		}
		notified[path] = true
		s.dispatch(path, path)

		for _, ancestor := range ancestors(path) {
			if notified[ancestor] {
				continue
			}
			notified[ancestor] = true
			s.dispatch(ancestor, ancestor)
		}
	}

	for _, path := range changed {
		s.dispatch(Wildcard, path)
	}
}

func (s *Store) dispatch(subPath, changedPath string) {
	s.mu.Lock()
	callbacks := make([]Callback, 0, len(s.subs[subPath]))
	for _, cb := range s.subs[subPath] {
		callbacks = append(callbacks, cb)
	}
	var value any
	if subPath == Wildcard {
		value = s.get(changedPath)
	} else {
		value = s.get(subPath)
	}
	s.mu.Unlock()

	for _, cb := range callbacks {
		s.invoke(cb, changedPath, value)
	}
}

// invoke isolates subscribers: a panic in one must not starve the rest.
func (s *Store) invoke(cb Callback, path string, value any) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("store subscriber panic", zap.String("path", path), zap.Any("panic", r))
		}
	}()
	cb(path, value)
}

func ancestors(path string) []string {
	var out []string
	for {
		i := strings.LastIndex(path, ".")
		if i < 0 {
			return out
		}
		path = path[:i]
		out = append(out, path)
	}
}
