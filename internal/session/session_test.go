package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iruldev/edge-gateway/internal/cache/cachetest"
)

func newTestStore(t *testing.T) (Store, *cachetest.Store) {
	t.Helper()
	l2 := cachetest.New()
	return New(l2, 100, time.Minute, 5*time.Minute), l2
}

func validRecord() Record {
	return Record{
		UserID:       "u1",
		AccessToken:  "access-token",
		RefreshToken: "refresh-token",
		AccessExp:    time.Now().Add(15 * time.Minute),
		RefreshExp:   time.Now().Add(24 * time.Hour),
	}
}

func TestStore_CreateAndLookup(t *testing.T) {
	// Arrange
	s, l2 := newTestStore(t)
	ctx := context.Background()

	// Act
	created, err := s.Create(ctx, validRecord())

	// Assert
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.False(t, created.IssuedAt.IsZero())
	assert.False(t, created.LastSeenAt.IsZero())

	got, err := s.Lookup(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID)
	assert.Equal(t, "access-token", got.AccessToken)
	assert.Equal(t, "refresh-token", got.RefreshToken)

	_, ok := l2.TTLOf("session:" + created.ID)
	assert.True(t, ok, "L2 must hold the session")
}

func TestStore_Create_GeneratesUnguessableIDs(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		created, err := s.Create(ctx, validRecord())
		require.NoError(t, err)
		assert.False(t, seen[created.ID], "session id collision")
		seen[created.ID] = true
	}
}

func TestStore_Create_L2UnavailableFailsClosed(t *testing.T) {
	// Session creation must not succeed if the L2 write is not
	// acknowledged: a session living only in L1 would vanish on restart.
	s, l2 := newTestStore(t)
	l2.SetUnavailable(true)

	_, err := s.Create(context.Background(), validRecord())

	require.ErrorIs(t, err, ErrPersistFailed)
}

func TestStore_Lookup_UnknownReturnsNotFound(t *testing.T) {
	s, _ := newTestStore(t)

	_, err := s.Lookup(context.Background(), "stale")

	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_Lookup_L1ServesDuringOutage(t *testing.T) {
	// A session already in L1 keeps working while the store is down; an
	// unknown one cannot be confirmed and stays NotFound-shaped.
	s, l2 := newTestStore(t)
	ctx := context.Background()

	created, err := s.Create(ctx, validRecord())
	require.NoError(t, err)

	l2.SetUnavailable(true)

	got, err := s.Lookup(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID)

	_, err = s.Lookup(ctx, "unknown")
	assert.Error(t, err)
}

func TestStore_Lookup_FillsL1FromL2(t *testing.T) {
	l2 := cachetest.New()
	ctx := context.Background()

	writer := New(l2, 100, time.Minute, 5*time.Minute)
	created, err := writer.Create(ctx, validRecord())
	require.NoError(t, err)

	// A second replica with a cold L1 must find the session through L2,
	// then keep serving it from L1 when L2 goes away.
	reader := New(l2, 100, time.Minute, 5*time.Minute)
	got, err := reader.Lookup(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID)

	l2.SetUnavailable(true)
	got, err = reader.Lookup(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID)
}

func TestStore_Lookup_ExpiredRefreshIsNotFound(t *testing.T) {
	l2 := cachetest.New()
	ctx := context.Background()

	rec := validRecord()
	rec.RefreshExp = time.Now().Add(-time.Minute)

	s := New(l2, 100, time.Minute, 5*time.Minute)
	created, err := s.Create(ctx, rec)
	require.NoError(t, err)

	// Read through a second store with a cold L1 so the expiry check runs
	// against the L2 copy rather than the writer's fresh L1 entry.
	fresh := New(l2, 100, time.Minute, 5*time.Minute)
	_, err = fresh.Lookup(ctx, created.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_Refresh_SwapsAccessToken(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	created, err := s.Create(ctx, validRecord())
	require.NoError(t, err)

	newExp := time.Now().Add(30 * time.Minute)
	updated, err := s.Refresh(ctx, created.ID, "new-access", newExp)
	require.NoError(t, err)
	assert.Equal(t, "new-access", updated.AccessToken)
	assert.Equal(t, "refresh-token", updated.RefreshToken)
	assert.WithinDuration(t, newExp, updated.AccessExp, time.Second)

	got, err := s.Lookup(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "new-access", got.AccessToken)
}

func TestStore_Refresh_UnknownSession(t *testing.T) {
	s, _ := newTestStore(t)

	_, err := s.Refresh(context.Background(), "nope", "tok", time.Now().Add(time.Hour))

	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_Touch_BumpsLastSeen(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	created, err := s.Create(ctx, validRecord())
	require.NoError(t, err)
	before := created.LastSeenAt

	time.Sleep(5 * time.Millisecond)
	require.NoError(t, s.Touch(ctx, created.ID))

	got, err := s.Lookup(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, got.LastSeenAt.After(before))
}

func TestStore_Delete_RemovesBothTiersAndPublishes(t *testing.T) {
	s, l2 := newTestStore(t)
	ctx := context.Background()

	created, err := s.Create(ctx, validRecord())
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, created.ID))

	_, err = s.Lookup(ctx, created.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	msgs := l2.Published("session:invalidate")
	require.Len(t, msgs, 1)
	assert.Equal(t, created.ID, msgs[0])
}

func TestStore_Listen_EvictsL1OnInvalidation(t *testing.T) {
	l2 := cachetest.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := New(l2, 100, time.Minute, 5*time.Minute)
	b := New(l2, 100, time.Minute, 5*time.Minute)
	go b.Listen(ctx)

	created, err := a.Create(ctx, validRecord())
	require.NoError(t, err)

	// Warm replica b's L1.
	_, err = b.Lookup(ctx, created.ID)
	require.NoError(t, err)

	require.NoError(t, a.Delete(ctx, created.ID))

	// The invalidation message must evict b's L1 copy; with L2 also
	// deleted, b converges to NotFound.
	assert.Eventually(t, func() bool {
		_, err := b.Lookup(ctx, created.ID)
		return err != nil
	}, time.Second, 10*time.Millisecond)
}

func TestStore_L1EvictsAtCapacity(t *testing.T) {
	l2 := cachetest.New()
	ctx := context.Background()

	s := New(l2, 2, time.Minute, 5*time.Minute)
	first, err := s.Create(ctx, validRecord())
	require.NoError(t, err)
	_, err = s.Create(ctx, validRecord())
	require.NoError(t, err)
	_, err = s.Create(ctx, validRecord())
	require.NoError(t, err)

	// first was evicted from L1, but must still be reachable via L2.
	got, err := s.Lookup(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)
}
