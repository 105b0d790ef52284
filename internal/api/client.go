package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/adsabs/adscore/internal/cache"
	"github.com/adsabs/adscore/internal/config"
	"github.com/adsabs/adscore/internal/metrics"
)

// Client is the facade the request boundary talks to: search, document
// fetch, and the thin pass-through operations, all issued through one
// request-scoped Manager with best-effort response caching.
type Client struct {
	manager *Manager
	store   cache.Store
	cfg     config.Config
	logger  *zap.Logger
}

// NewClient builds a Client around a request-scoped manager.
func NewClient(manager *Manager, store cache.Store, cfg config.Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{manager: manager, store: store, cfg: cfg, logger: logger}
}

// Manager exposes the underlying session for the request boundary.
func (c *Client) Manager() *Manager {
	return c.manager
}

// StoreQuery stores a bibcode list in the vault so a stable query id can
// reference it later.
func (c *Client) StoreQuery(ctx context.Context, bibcodes []string, sortOrder string) (Result, error) {
	if sortOrder == "" {
		sortOrder = "date desc, bibcode desc"
	}
	data := map[string]any{
		"bigquery": []string{"bibcode\n" + strings.Join(bibcodes, "\n")},
		"fq":       []string{"{!bitset}"},
		"q":        []string{"*:*"},
		"sort":     []string{sortOrder},
	}
	return c.manager.Request(ctx, c.cfg.Service(config.VaultService), data, http.MethodPost, nil, 0, true)
}

// ObjectsQuery rewrites object names into catalog identifiers.
func (c *Client) ObjectsQuery(ctx context.Context, objectNames []string) (Result, error) {
	data := map[string]any{
		"query": []string{fmt.Sprintf("object:(%s)", strings.Join(objectNames, ","))},
	}
	return c.manager.Request(ctx, c.cfg.Service(config.ObjectsService), data, http.MethodPost, nil, 0, true)
}

// LogGatewayClick records a click against the link gateway. The response
// body is ignored; only delivery matters. The caller's User-Agent and
// referrer ride along so the gateway logs the real client.
func (c *Client) LogGatewayClick(ctx context.Context, identifier, section, userAgent, referrer string) error {
	headers := http.Header{}
	if userAgent != "" {
		headers.Set("User-Agent", userAgent)
	}
	if referrer != "" {
		headers.Set("Referer", referrer)
	}
	endpoint := c.cfg.Service(config.LinkGatewayService) + identifier + "/" + section
	_, err := c.manager.Request(ctx, endpoint, nil, http.MethodGet, headers, 0, false)
	return err
}

// ResolveReference resolves a free-text reference string into a bibcode.
func (c *Client) ResolveReference(ctx context.Context, text string) (Result, error) {
	endpoint := c.cfg.Service(config.ReferenceService) + "/" + url.PathEscape(text)
	return c.manager.Request(ctx, endpoint, nil, http.MethodGet, nil, 0, true)
}

// cacheGet fetches and decodes a cached Result. A miss or a cache outage
// returns (nil, nil) outside debug mode so callers always fall through to
// the backend.
func (c *Client) cacheGet(ctx context.Context, key string) (Result, error) {
	if c.store == nil {
		return nil, nil
	}
	raw, err := c.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, cache.ErrMiss) {
			metrics.ObserveCacheOp("get", "miss")
			return nil, nil
		}
		metrics.ObserveCacheOp("get", "error")
		c.logger.Error("recovering results from cache", zap.String("key", key), zap.Error(err))
		if c.cfg.Debug {
			return nil, fmt.Errorf("cache get: %w", err)
		}
		return nil, nil
	}
	var result Result
	if err := json.Unmarshal(raw, &result); err != nil {
		metrics.ObserveCacheOp("get", "error")
		c.logger.Error("decoding cached results", zap.String("key", key), zap.Error(err))
		if c.cfg.Debug {
			return nil, fmt.Errorf("decode cached result: %w", err)
		}
		return nil, nil
	}
	metrics.ObserveCacheOp("get", "hit")
	return result, nil
}

// cachePut stores a Result. Write failures are swallowed outside debug
// mode; the system stays correct, just slower.
func (c *Client) cachePut(ctx context.Context, key string, value Result) error {
	if c.store == nil {
		return nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode result for cache: %w", err)
	}
	if err := c.store.Set(ctx, key, raw, c.cfg.DataTTL()); err != nil {
		metrics.ObserveCacheOp("set", "error")
		c.logger.Error("storing results to cache", zap.String("key", key), zap.Error(err))
		if c.cfg.Debug {
			return fmt.Errorf("cache set: %w", err)
		}
		return nil
	}
	metrics.ObserveCacheOp("set", "ok")
	return nil
}
