package crawler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/adsabs/adscore/internal/cache"
)

const (
	googlebotUA = "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)"
	browserUA   = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// brokenStore fails every operation, standing in for a Redis outage.
type brokenStore struct{}

func (brokenStore) Get(context.Context, string) ([]byte, error) {
	return nil, errors.New("connection refused")
}

func (brokenStore) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("connection refused")
}

// countStore wraps a Memory store and counts sets.
type countStore struct {
	inner *cache.Memory
	mu    sync.Mutex
	sets  int
}

func (c *countStore) Get(ctx context.Context, key string) ([]byte, error) {
	return c.inner.Get(ctx, key)
}

func (c *countStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	c.sets++
	c.mu.Unlock()
	return c.inner.Set(ctx, key, value, ttl)
}

func newTestClassifier(t *testing.T, r *fakeResolver, store cache.Store, strict bool) *Classifier {
	t.Helper()
	v := NewVerifier(r, time.Second, zap.NewNop())
	return NewClassifier(v, store, zap.NewNop(), Options{Strict: strict})
}

func TestEvaluateVerifiedBot(t *testing.T) {
	t.Parallel()

	c := newTestClassifier(t, googlebotResolver(), nil, false)
	result, err := c.Evaluate(context.Background(), "66.249.66.1", googlebotUA)
	require.NoError(t, err)
	require.Equal(t, VerifiedBot, result)
}

func TestEvaluateImpersonator(t *testing.T) {
	t.Parallel()

	c := newTestClassifier(t, googlebotResolver(), nil, false)
	result, err := c.Evaluate(context.Background(), "1.2.3.4", googlebotUA)
	require.NoError(t, err)
	require.Equal(t, PotentialMaliciousBot, result)
}

func TestEvaluateOrdinaryBrowser(t *testing.T) {
	t.Parallel()

	c := newTestClassifier(t, googlebotResolver(), nil, false)
	result, err := c.Evaluate(context.Background(), "203.0.113.7", browserUA)
	require.NoError(t, err)
	require.Equal(t, PotentialUser, result)
}

func TestEvaluateUnverifiableSignature(t *testing.T) {
	t.Parallel()

	r := googlebotResolver()
	c := newTestClassifier(t, r, nil, false)
	result, err := c.Evaluate(context.Background(), "203.0.113.7", "Twitterbot/1.0")
	require.NoError(t, err)
	require.Equal(t, UnverifiableBot, result)

	// No verification for unverifiable signatures.
	addr, host := r.counts()
	require.Zero(t, addr)
	require.Zero(t, host)
}

func TestEvaluateFailSafeOnAmbiguousInput(t *testing.T) {
	t.Parallel()

	c := newTestClassifier(t, googlebotResolver(), nil, false)

	result, err := c.Evaluate(context.Background(), "", googlebotUA)
	require.NoError(t, err)
	require.Equal(t, UnverifiableBot, result)

	result, err = c.Evaluate(context.Background(), "66.249.66.1", "")
	require.NoError(t, err)
	require.Equal(t, UnverifiableBot, result)
}

func TestEvaluateCachesResult(t *testing.T) {
	t.Parallel()

	mem, err := cache.NewMemory(16)
	require.NoError(t, err)
	r := googlebotResolver()
	c := newTestClassifier(t, r, mem, false)

	ctx := context.Background()
	first, err := c.Evaluate(ctx, "66.249.66.1", googlebotUA)
	require.NoError(t, err)
	second, err := c.Evaluate(ctx, "66.249.66.1", googlebotUA)
	require.NoError(t, err)
	require.Equal(t, first, second)

	addr, host := r.counts()
	require.Equal(t, 1, addr, "second call must not resolve again")
	require.Equal(t, 1, host)
}

func TestEvaluateRecomputesOnGarbageCacheValue(t *testing.T) {
	t.Parallel()

	mem, err := cache.NewMemory(16)
	require.NoError(t, err)
	store := &countStore{inner: mem}
	c := newTestClassifier(t, googlebotResolver(), store, false)

	ctx := context.Background()
	key := cache.Key("bot", "66.249.66.1", googlebotUA)
	require.NoError(t, mem.Set(ctx, key, []byte("totally-not-a-result"), time.Minute))

	result, err := c.Evaluate(ctx, "66.249.66.1", googlebotUA)
	require.NoError(t, err)
	require.Equal(t, VerifiedBot, result)
	require.Equal(t, 1, store.sets, "recomputed value must be written back")
}

func TestEvaluateSwallowsCacheOutage(t *testing.T) {
	t.Parallel()

	c := newTestClassifier(t, googlebotResolver(), brokenStore{}, false)
	result, err := c.Evaluate(context.Background(), "66.249.66.1", googlebotUA)
	require.NoError(t, err)
	require.Equal(t, VerifiedBot, result)
}

func TestEvaluateStrictPropagatesCacheErrors(t *testing.T) {
	t.Parallel()

	c := newTestClassifier(t, googlebotResolver(), brokenStore{}, true)
	_, err := c.Evaluate(context.Background(), "66.249.66.1", googlebotUA)
	require.Error(t, err)
}

func TestMatchOrderPrefersSpecificSignatures(t *testing.T) {
	t.Parallel()

	// "Twitterbot" contains both "twitterbot" and the bare "bot"
	// catch-all; the specific entry must win.
	sig, ok := Match(DefaultSignatures(), "Twitterbot/1.0")
	require.True(t, ok)
	require.Equal(t, "twitterbot", sig.Pattern)

	// A UA matching only the catch-all still classifies as a bot.
	sig, ok = Match(DefaultSignatures(), "SomeRandomBot/0.1")
	require.True(t, ok)
	require.Equal(t, "bot", sig.Pattern)
}

func TestResultString(t *testing.T) {
	t.Parallel()

	require.Equal(t, "verified_bot", VerifiedBot.String())
	require.Equal(t, "potential_user", PotentialUser.String())
	require.Equal(t, "unknown", Result(42).String())
}
