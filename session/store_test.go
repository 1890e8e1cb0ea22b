package session

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/razeghi71/dqflow/errs"
	"github.com/razeghi71/dqflow/ref"
)

type recordingDropper struct {
	mu      sync.Mutex
	dropped []string
	fail    map[string]bool
}

func (d *recordingDropper) DropTemporary(_ ref.SessionID, name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail[name] {
		return errors.New("disk busy")
	}
	d.dropped = append(d.dropped, name)
	return nil
}

func newTestStore(d Dropper, opts Options) *Store {
	return NewStore(d, opts, nil)
}

func TestCreateAndAcquire(t *testing.T) {
	s := newTestStore(&recordingDropper{}, Options{})
	defer s.Close()

	sess, err := s.Create()
	require.NoError(t, err)
	assert.NotEmpty(t, sess.ID)

	got, release, err := s.Acquire(sess.ID)
	require.NoError(t, err)
	assert.Same(t, sess, got)
	release()

	_, _, err = s.Acquire("missing")
	assert.True(t, errors.Is(err, errs.ErrNotFound))
}

func TestMaxSessions(t *testing.T) {
	s := newTestStore(&recordingDropper{}, Options{MaxSessions: 1})
	defer s.Close()

	_, err := s.Create()
	require.NoError(t, err)
	_, err = s.Create()
	assert.True(t, errors.Is(err, errs.ErrResourceExhausted))
}

func TestRollbackDeregistersOnlyDropped(t *testing.T) {
	d := &recordingDropper{fail: map[string]bool{"temp_b_2": true}}
	s := newTestStore(d, Options{})
	defer s.Close()

	sess, err := s.Create()
	require.NoError(t, err)
	sess.Register("temp_a_1")
	sess.Register("temp_b_2")
	sess.Register("temp_c_3")

	_, release, err := s.Acquire(sess.ID)
	require.NoError(t, err)
	err = s.Rollback(sess)
	release()

	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 1)
	assert.Equal(t, []string{"temp_a_1", "temp_c_3"}, d.dropped)
	assert.Equal(t, []string{"temp_b_2"}, sess.TempNames())

	// Session stays usable after a rollback.
	_, release, err = s.Acquire(sess.ID)
	require.NoError(t, err)
	release()
}

func TestDestroy(t *testing.T) {
	d := &recordingDropper{}
	s := newTestStore(d, Options{})
	defer s.Close()

	sess, err := s.Create()
	require.NoError(t, err)
	sess.Register("temp_a_1")

	found, err := s.Destroy(sess.ID)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []string{"temp_a_1"}, d.dropped)
	assert.Equal(t, 0, s.Len())

	_, _, err = s.Acquire(sess.ID)
	assert.True(t, errors.Is(err, errs.ErrNotFound))

	found, err = s.Destroy(sess.ID)
	assert.NoError(t, err, "destroying twice is a no-op")
	assert.False(t, found)
	found, err = s.Destroy("never-existed")
	assert.NoError(t, err)
	assert.False(t, found)
}

func TestFailedDestroyIsRetried(t *testing.T) {
	d := &recordingDropper{fail: map[string]bool{"temp_b_2": true}}
	s := newTestStore(d, Options{IdleTTL: time.Minute, EvictInterval: time.Hour})
	defer s.Close()

	sess, err := s.Create()
	require.NoError(t, err)
	sess.Register("temp_a_1")
	sess.Register("temp_b_2")

	found, err := s.Destroy(sess.ID)
	require.Error(t, err)
	assert.True(t, found)
	assert.Equal(t, []string{"temp_b_2"}, sess.TempNames())

	// The session is gone for callers but still tracked for its leftovers.
	_, _, err = s.Acquire(sess.ID)
	assert.True(t, errors.Is(err, errs.ErrNotFound))
	assert.Equal(t, 0, s.Len())
	assert.Empty(t, s.List())
	_, ok := s.Get(sess.ID)
	assert.True(t, ok)

	d.mu.Lock()
	d.fail = nil
	d.mu.Unlock()

	assert.Equal(t, 0, s.EvictIdle(time.Now()), "retries are not counted as evictions")
	assert.Equal(t, []string{"temp_a_1", "temp_b_2"}, d.dropped)
	_, ok = s.Get(sess.ID)
	assert.False(t, ok)
}

func TestEvictIdleSkipsWaitingCaller(t *testing.T) {
	d := &recordingDropper{}
	s := newTestStore(d, Options{IdleTTL: time.Minute, EvictInterval: time.Hour})
	defer s.Close()

	sess, err := s.Create()
	require.NoError(t, err)
	sess.Register("temp_a_1")

	// A caller that passed the registry lookup but has not locked the
	// session yet keeps it alive.
	sess.refCount.Add(1)
	assert.Equal(t, 0, s.EvictIdle(time.Now().Add(2*time.Minute)))
	sess.refCount.Add(-1)

	_, release, err := s.Acquire(sess.ID)
	require.NoError(t, err)
	release()
	assert.Empty(t, d.dropped)

	assert.Equal(t, 0, s.EvictIdle(time.Now().Add(30*time.Second)), "recently used")
	assert.Equal(t, 1, s.EvictIdle(time.Now().Add(2*time.Minute)))
}

func TestDestroyWaitsForInFlightCall(t *testing.T) {
	d := &recordingDropper{}
	s := newTestStore(d, Options{})
	defer s.Close()

	sess, err := s.Create()
	require.NoError(t, err)
	_, release, err := s.Acquire(sess.ID)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		_, _ = s.Destroy(sess.ID)
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("destroy finished while a call held the session")
	case <-time.After(20 * time.Millisecond):
	}
	sess.Register("temp_late_9")
	release()
	<-done
	assert.Equal(t, []string{"temp_late_9"}, d.dropped)
}

func TestEvictIdle(t *testing.T) {
	d := &recordingDropper{}
	s := newTestStore(d, Options{IdleTTL: time.Minute, EvictInterval: time.Hour})
	defer s.Close()

	idle, err := s.Create()
	require.NoError(t, err)
	idle.Register("temp_a_1")
	busy, err := s.Create()
	require.NoError(t, err)
	_, release, err := s.Acquire(busy.ID)
	require.NoError(t, err)
	defer release()

	n := s.EvictIdle(time.Now().Add(2 * time.Minute))
	assert.Equal(t, 1, n)
	_, ok := s.Get(idle.ID)
	assert.False(t, ok)
	_, ok = s.Get(busy.ID)
	assert.True(t, ok, "sessions in use are never evicted")
	assert.Equal(t, []string{"temp_a_1"}, d.dropped)
}

func TestListSessions(t *testing.T) {
	s := newTestStore(&recordingDropper{}, Options{})
	defer s.Close()

	a, _ := s.Create()
	b, _ := s.Create()
	a.Register("temp_x_1")

	list := s.List()
	require.Len(t, list, 2)
	ids := map[ref.SessionID][]string{}
	for _, snap := range list {
		ids[snap.ID] = snap.TempTables
	}
	assert.Equal(t, []string{"temp_x_1"}, ids[a.ID])
	assert.Empty(t, ids[b.ID])
}

func TestCloseDestroysAll(t *testing.T) {
	d := &recordingDropper{}
	s := newTestStore(d, Options{IdleTTL: time.Minute})
	sess, _ := s.Create()
	sess.Register("temp_a_1")
	require.NoError(t, s.Close())
	assert.Equal(t, 0, s.Len())
	assert.Equal(t, []string{"temp_a_1"}, d.dropped)
	_, err := s.Create()
	assert.Error(t, err)
}
