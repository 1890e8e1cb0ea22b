// Package session tracks engine sessions and the temporary tables each one
// owns.
package session

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/razeghi71/dqflow/errs"
	"github.com/razeghi71/dqflow/ref"
)

// Dropper physically removes a temporary table.
type Dropper interface {
	DropTemporary(id ref.SessionID, name string) error
}

// DropperFunc adapts a function to Dropper.
type DropperFunc func(id ref.SessionID, name string) error

// DropTemporary calls f(id, name).
func (f DropperFunc) DropTemporary(id ref.SessionID, name string) error { return f(id, name) }

// Options configures a Store.
type Options struct {
	MaxSessions   int           // Zero means unlimited
	IdleTTL       time.Duration // Zero disables idle eviction
	EvictInterval time.Duration // How often to look for idle sessions
}

// DefaultOptions returns the default store configuration.
func DefaultOptions() Options {
	return Options{
		MaxSessions:   1000,
		IdleTTL:       30 * time.Minute,
		EvictInterval: time.Minute,
	}
}

// Session is one workspace. Its operation lock serializes engine calls;
// the temporary set has its own lock so that listing never waits for a
// running operation.
type Session struct {
	ID        ref.SessionID
	CreatedAt time.Time

	op         sync.Mutex
	closed     atomic.Bool // set under op; a closed session only awaits its drops
	refCount   atomic.Int32
	lastAccess atomic.Int64

	mu    sync.RWMutex
	seq   uint64
	temps map[string]uint64
}

func newSession(id ref.SessionID, now time.Time) *Session {
	s := &Session{ID: id, CreatedAt: now, temps: make(map[string]uint64)}
	s.lastAccess.Store(now.UnixNano())
	return s
}

// Register records a materialized temporary table.
func (s *Session) Register(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.temps[name]; ok {
		return
	}
	s.seq++
	s.temps[name] = s.seq
}

// Deregister forgets a temporary table, e.g. after it was committed.
func (s *Session) Deregister(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.temps, name)
}

// Owns reports whether name is a registered temporary of s.
func (s *Session) Owns(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.temps[name]
	return ok
}

// TempNames returns the registered temporaries in creation order.
func (s *Session) TempNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.temps))
	for n := range s.temps {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool { return s.temps[names[i]] < s.temps[names[j]] })
	return names
}

// LastUsed returns the time of the last completed call on s.
func (s *Session) LastUsed() time.Time {
	return time.Unix(0, s.lastAccess.Load())
}

// dropAll drops every temporary physically, then deregisters only the
// names that were dropped. Tables already gone count as dropped.
func (s *Session) dropAll(d Dropper) error {
	var err error
	for _, name := range s.TempNames() {
		derr := d.DropTemporary(s.ID, name)
		if derr != nil && errs.CodeOf(derr) != errs.CodeNotFound {
			err = multierr.Append(err, fmt.Errorf("drop %s: %w", name, derr))
			continue
		}
		s.Deregister(name)
	}
	return err
}

// Snapshot is a point-in-time view of a session.
type Snapshot struct {
	ID         ref.SessionID
	TempTables []string
	CreatedAt  time.Time
	LastUsed   time.Time
}

// Store is the in-memory session registry.
type Store struct {
	mu       sync.RWMutex
	sessions map[ref.SessionID]*Session
	dropper  Dropper
	opts     Options
	log      *zap.SugaredLogger

	stopChan chan struct{}
	wg       sync.WaitGroup
	closed   atomic.Bool
}

// NewStore returns a store that drops temporaries through d. The idle
// eviction loop starts when opts.IdleTTL is positive.
func NewStore(d Dropper, opts Options, log *zap.SugaredLogger) *Store {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	s := &Store{
		sessions: make(map[ref.SessionID]*Session),
		dropper:  d,
		opts:     opts,
		log:      log,
		stopChan: make(chan struct{}),
	}
	if opts.IdleTTL > 0 {
		interval := opts.EvictInterval
		if interval <= 0 {
			interval = time.Minute
		}
		s.wg.Add(1)
		go s.evictionLoop(interval)
	}
	return s
}

// Create allocates a new session with a fresh id.
func (s *Store) Create() (*Session, error) {
	if s.closed.Load() {
		return nil, errs.ResourceExhausted("session store is closed")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.opts.MaxSessions > 0 && len(s.sessions) >= s.opts.MaxSessions {
		return nil, errs.ResourceExhausted("session limit of %d reached", s.opts.MaxSessions)
	}
	id := ref.SessionID(uuid.New().String())
	sess := newSession(id, time.Now())
	s.sessions[id] = sess
	return sess, nil
}

// Get returns the session without locking it.
func (s *Store) Get(id ref.SessionID) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

// Acquire locks session id for one engine call. The returned func releases
// it. Unknown or destroyed sessions are NotFound.
func (s *Store) Acquire(id ref.SessionID) (*Session, func(), error) {
	sess, ok := s.Get(id)
	if !ok {
		return nil, nil, errs.NotFound("session %q not found", id)
	}
	sess.refCount.Add(1)
	sess.op.Lock()
	if sess.closed.Load() {
		sess.op.Unlock()
		sess.refCount.Add(-1)
		return nil, nil, errs.NotFound("session %q not found", id)
	}
	release := func() {
		sess.lastAccess.Store(time.Now().UnixNano())
		sess.op.Unlock()
		sess.refCount.Add(-1)
	}
	return sess, release, nil
}

// Rollback drops every temporary of a session acquired by the caller.
func (s *Store) Rollback(sess *Session) error {
	return sess.dropAll(s.dropper)
}

// Destroy drops the temporaries of session id and removes it. It waits for
// an in-flight call on the session to finish. found is false for unknown or
// already destroyed ids, which are a no-op. When a drop fails the session
// stays registered as closed so that a later Destroy or eviction retries
// the remaining tables.
func (s *Store) Destroy(id ref.SessionID) (found bool, err error) {
	sess, ok := s.Get(id)
	if !ok {
		return false, nil
	}
	sess.op.Lock()
	defer sess.op.Unlock()
	found = !sess.closed.Load()
	return found, s.destroyLocked(sess)
}

// destroyLocked closes sess and drops its tables. The caller holds sess.op.
func (s *Store) destroyLocked(sess *Session) error {
	sess.closed.Store(true)
	if err := sess.dropAll(s.dropper); err != nil {
		return err
	}
	s.mu.Lock()
	if s.sessions[sess.ID] == sess {
		delete(s.sessions, sess.ID)
	}
	s.mu.Unlock()
	return nil
}

// List returns snapshots of every live session ordered by creation time.
func (s *Store) List() []Snapshot {
	s.mu.RLock()
	all := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		all = append(all, sess)
	}
	s.mu.RUnlock()

	out := make([]Snapshot, 0, len(all))
	for _, sess := range all {
		if sess.closed.Load() {
			continue
		}
		out = append(out, Snapshot{
			ID:         sess.ID,
			TempTables: sess.TempNames(),
			CreatedAt:  sess.CreatedAt,
			LastUsed:   sess.LastUsed(),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, sess := range s.sessions {
		if !sess.closed.Load() {
			n++
		}
	}
	return n
}

func (s *Store) evictionLoop(interval time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.EvictIdle(time.Now())
		case <-s.stopChan:
			return
		}
	}
}

// EvictIdle destroys sessions unused for longer than the idle TTL as of
// now and returns how many were evicted. Closed sessions with tables left
// from a failed destroy are retried.
func (s *Store) EvictIdle(now time.Time) int {
	if s.opts.IdleTTL <= 0 {
		return 0
	}
	s.mu.RLock()
	candidates := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		candidates = append(candidates, sess)
	}
	s.mu.RUnlock()

	evicted := 0
	for _, sess := range candidates {
		if s.destroyIfIdle(sess, now) {
			evicted++
		}
	}
	return evicted
}

// destroyIfIdle destroys sess when nobody holds or waits for it and it has
// been idle past the TTL. The check and the destroy happen under sess.op so
// that a concurrent Acquire either wins or sees the session closed.
func (s *Store) destroyIfIdle(sess *Session, now time.Time) bool {
	if !sess.op.TryLock() {
		return false
	}
	defer sess.op.Unlock()

	retry := sess.closed.Load()
	idle := now.Sub(sess.LastUsed())
	if !retry && (sess.refCount.Load() > 0 || idle <= s.opts.IdleTTL) {
		return false
	}
	if err := s.destroyLocked(sess); err != nil {
		s.log.Warnw("idle session eviction left tables behind", "session", sess.ID, "error", err)
		return false
	}
	if retry {
		s.log.Infow("dropped leftover tables of destroyed session", "session", sess.ID)
		return false
	}
	s.log.Infow("evicted idle session", "session", sess.ID, "idle", idle.String())
	return true
}

// Close stops the eviction loop and destroys every session.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(s.stopChan)
	s.wg.Wait()

	s.mu.RLock()
	ids := make([]ref.SessionID, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	var err error
	for _, id := range ids {
		_, derr := s.Destroy(id)
		err = multierr.Append(err, derr)
	}
	return err
}
