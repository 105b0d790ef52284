package crawler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/adsabs/adscore/internal/cache"
	"github.com/adsabs/adscore/internal/metrics"
)

// Classifier evaluates (IP, User-Agent) pairs against the signature
// registry, with results cached for the configured TTL.
type Classifier struct {
	signatures []Signature
	verifier   *Verifier
	store      cache.Store
	ttl        time.Duration
	prefix     string
	strict     bool
	logger     *zap.Logger
}

// Options tunes a Classifier.
type Options struct {
	// Signatures overrides the built-in registry; order matters.
	Signatures []Signature
	// TTL bounds cached classifications. Zero means 300s.
	TTL time.Duration
	// KeyPrefix namespaces cache keys. Zero value means "bot".
	KeyPrefix string
	// Strict propagates cache failures instead of swallowing them.
	// Only set in debug/test configurations.
	Strict bool
}

// NewClassifier builds a Classifier over the given verifier and cache.
func NewClassifier(verifier *Verifier, store cache.Store, logger *zap.Logger, opts Options) *Classifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	sigs := opts.Signatures
	if sigs == nil {
		sigs = DefaultSignatures()
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = 300 * time.Second
	}
	prefix := opts.KeyPrefix
	if prefix == "" {
		prefix = "bot"
	}
	return &Classifier{
		signatures: sigs,
		verifier:   verifier,
		store:      store,
		ttl:        ttl,
		prefix:     prefix,
		strict:     opts.Strict,
		logger:     logger,
	}
}

// Evaluate classifies the caller. It is total: outside strict mode the
// error is always nil and failures resolve to a non-elevated result. An
// empty IP or User-Agent is ambiguous and classifies as UnverifiableBot
// so that no caller gains a tier it cannot prove.
func (c *Classifier) Evaluate(ctx context.Context, remoteIP, userAgent string) (Result, error) {
	if remoteIP == "" || userAgent == "" {
		return UnverifiableBot, nil
	}

	key := cache.Key(c.prefix, remoteIP, userAgent)
	if c.store != nil {
		cached, err := c.store.Get(ctx, key)
		switch {
		case err == nil:
			if v, convErr := strconv.Atoi(string(cached)); convErr == nil && validResult(v) {
				metrics.ObserveCacheOp("get", "hit")
				return Result(v), nil
			}
			// Unrecognized cached value; fall through and recompute.
			metrics.ObserveCacheOp("get", "error")
		case errors.Is(err, cache.ErrMiss):
			metrics.ObserveCacheOp("get", "miss")
		default:
			metrics.ObserveCacheOp("get", "error")
			c.logger.Error("recovering bot result from cache", zap.Error(err))
			if c.strict {
				return UnverifiableBot, fmt.Errorf("classifier cache get: %w", err)
			}
		}
	}

	result := c.classify(ctx, remoteIP, userAgent)
	metrics.ObserveClassification(result.String())

	if c.store != nil {
		if err := c.store.Set(ctx, key, []byte(strconv.Itoa(int(result))), c.ttl); err != nil {
			metrics.ObserveCacheOp("set", "error")
			c.logger.Error("storing bot result to cache", zap.Error(err))
			if c.strict {
				return result, fmt.Errorf("classifier cache set: %w", err)
			}
		} else {
			metrics.ObserveCacheOp("set", "ok")
		}
	}
	return result, nil
}

func (c *Classifier) classify(ctx context.Context, remoteIP, userAgent string) Result {
	sig, found := Match(c.signatures, userAgent)
	if !found {
		return PotentialUser
	}
	if sig.Kind == KindUnverifiable {
		return UnverifiableBot
	}
	if c.verifier != nil && c.verifier.Verify(ctx, remoteIP, sig) {
		return VerifiedBot
	}
	return PotentialMaliciousBot
}
