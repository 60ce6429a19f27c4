package mfa_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/xkilldash9x/availity-rpa/internal/mfa"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 7, 17, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestMemoryStore_CheckBeforeAndAfterSubmit(t *testing.T) {
	ctx := context.Background()
	store := mfa.NewMemoryStore(mfa.DefaultTTL)

	sess, err := store.Create(ctx, "aetna_prior_auth")
	require.NoError(t, err)
	require.NotEmpty(t, sess.ID)
	assert.Equal(t, "aetna_prior_auth", sess.ScriptType)

	got, err := store.Check(ctx, sess.ID)
	require.NoError(t, err)
	assert.Nil(t, got.Code)
	assert.Equal(t, mfa.AwaitingCode, got.State(time.Now(), mfa.DefaultTTL))

	pending, err := store.Pending(ctx, sess.ID)
	require.NoError(t, err)
	assert.True(t, pending)

	require.NoError(t, store.Submit(ctx, sess.ID, "482913"))
	got, err = store.Check(ctx, sess.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Code)
	assert.Equal(t, "482913", *got.Code)
	assert.Equal(t, mfa.CodeReceived, got.State(time.Now(), mfa.DefaultTTL))

	pending, err = store.Pending(ctx, sess.ID)
	require.NoError(t, err)
	assert.False(t, pending)
}

func TestMemoryStore_SubmitOverwritesCodeKeepsCreatedAt(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := mfa.NewMemoryStore(mfa.DefaultTTL, mfa.WithClock(clock.Now))

	sess, err := store.Create(ctx, "eligibility")
	require.NoError(t, err)

	clock.Advance(30 * time.Second)
	require.NoError(t, store.Submit(ctx, sess.ID, "111111"))
	clock.Advance(30 * time.Second)
	require.NoError(t, store.Submit(ctx, sess.ID, "222222"))

	got, err := store.Check(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "222222", *got.Code)
	assert.True(t, got.CreatedAt.Equal(sess.CreatedAt), "CreatedAt must survive resubmission")
}

func TestMemoryStore_ExpiresOnCheckBeforeSweep(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := mfa.NewMemoryStore(mfa.DefaultTTL, mfa.WithClock(clock.Now))

	sess, err := store.Create(ctx, "eligibility")
	require.NoError(t, err)

	clock.Advance(mfa.DefaultTTL)
	_, err = store.Check(ctx, sess.ID)
	require.NoError(t, err, "a session exactly at its TTL is still valid")

	clock.Advance(time.Second)
	_, err = store.Check(ctx, sess.ID)
	assert.ErrorIs(t, err, mfa.ErrExpired)

	_, err = store.Check(ctx, sess.ID)
	assert.ErrorIs(t, err, mfa.ErrNotFound, "an expired session is removed when observed")
}

func TestMemoryStore_SubmitUnknownAndExpired(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := mfa.NewMemoryStore(time.Minute, mfa.WithClock(clock.Now))

	assert.ErrorIs(t, store.Submit(ctx, "nope", "123456"), mfa.ErrNotFound)

	sess, err := store.Create(ctx, "eligibility")
	require.NoError(t, err)
	clock.Advance(61 * time.Second)
	assert.ErrorIs(t, store.Submit(ctx, sess.ID, "123456"), mfa.ErrExpired)

	pending, err := store.Pending(ctx, sess.ID)
	require.NoError(t, err)
	assert.False(t, pending)
}

func TestMemoryStore_Sweep(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	ids := 0
	store := mfa.NewMemoryStore(mfa.DefaultTTL, mfa.WithClock(clock.Now), mfa.WithIDGenerator(func() string {
		ids++
		return fmt.Sprintf("s%d", ids)
	}))

	old, _ := store.Create(ctx, "a")
	clock.Advance(200 * time.Second)
	fresh, _ := store.Create(ctx, "b")
	clock.Advance(101 * time.Second)

	n, err := store.Sweep(ctx, clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, store.Len())

	_, err = store.Check(ctx, old.ID)
	assert.ErrorIs(t, err, mfa.ErrNotFound)
	_, err = store.Check(ctx, fresh.ID)
	assert.NoError(t, err)
}

func TestMemoryStore_ConcurrentAccess(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.Background()
	store := mfa.NewMemoryStore(mfa.DefaultTTL)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sess, err := store.Create(ctx, "load")
			if err != nil {
				return
			}
			_ = store.Submit(ctx, sess.ID, fmt.Sprintf("%06d", i))
			_, _ = store.Check(ctx, sess.ID)
			_, _ = store.Sweep(ctx, time.Now())
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 20, store.Len())
}

func TestSessionState(t *testing.T) {
	now := time.Now()
	code := "1"
	assert.Equal(t, mfa.Expired, mfa.Session{CreatedAt: now.Add(-301 * time.Second)}.State(now, mfa.DefaultTTL))
	assert.Equal(t, mfa.Expired, mfa.Session{CreatedAt: now.Add(-301 * time.Second), Code: &code}.State(now, mfa.DefaultTTL))
	assert.Equal(t, mfa.CodeReceived, mfa.Session{CreatedAt: now, Code: &code}.State(now, mfa.DefaultTTL))
}
