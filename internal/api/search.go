package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/adsabs/adscore/internal/cache"
	"github.com/adsabs/adscore/internal/config"
)

// DefaultSearchFields is the field list requested for result pages.
const DefaultSearchFields = "title,bibcode,author,citation_count,citation_count_norm,pubdate,[citations],property,esources,data,publisher"

// SearchOptions tunes one search call. Zero values take the usual
// defaults (25 rows, start 0, "date desc", DefaultSearchFields).
type SearchOptions struct {
	Rows   int
	Start  int
	Sort   string
	Fields string
}

func (o SearchOptions) withDefaults() SearchOptions {
	if o.Rows <= 0 {
		o.Rows = 25
	}
	if o.Start < 0 {
		o.Start = 0
	}
	if o.Sort == "" {
		o.Sort = "date desc"
	}
	if o.Fields == "" {
		o.Fields = DefaultSearchFields
	}
	return o
}

// Search executes a query and returns the normalized response. Results
// are cached under the full parameter tuple; a hit skips the backend call
// and renormalization entirely.
func (c *Client) Search(ctx context.Context, q string, opts SearchOptions) (Result, error) {
	return c.search(ctx, q, opts, true)
}

func (c *Client) search(ctx context.Context, q string, opts SearchOptions, useCache bool) (Result, error) {
	opts = opts.withDefaults()
	key := cache.Key(c.cfg.Cache.DataKeyPrefix, q,
		strconv.Itoa(opts.Rows), strconv.Itoa(opts.Start), opts.Sort, opts.Fields)

	if useCache {
		if cached, err := c.cacheGet(ctx, key); err != nil {
			return nil, err
		} else if cached != nil {
			return cached, nil
		}
	}

	sortOrder := opts.Sort
	if !strings.Contains(sortOrder, "bibcode desc") {
		// Secondary sort criteria keeps pagination stable when the
		// primary key has duplicates.
		sortOrder += ", bibcode desc"
	}

	// Citation-derived sorts also need the backend aggregate statistics.
	stats, statsField := "false", ""
	switch {
	case strings.Contains(sortOrder, "citation_count_norm"):
		stats, statsField = "true", "citation_count_norm"
	case strings.Contains(sortOrder, "citation_count"):
		stats, statsField = "true", "citation_count"
	}

	params := url.Values{
		"fl":          {opts.Fields},
		"q":           {q},
		"rows":        {strconv.Itoa(opts.Rows)},
		"sort":        {sortOrder},
		"start":       {strconv.Itoa(opts.Start)},
		"stats":       {stats},
		"stats.field": {statsField},
	}

	if strings.Contains(q, "object:") {
		// The object: operator must be rewritten into catalog IDs first,
		// e.g. object:M67 becomes ((=abs:M67 OR simbid:1136125 OR
		// nedid:MESSIER_067) database:astronomy).
		rewritten, err := c.manager.Request(ctx, c.cfg.Service(config.ObjectsService),
			map[string]any{"query": []string{q}}, http.MethodPost, nil, 0, true)
		if err != nil {
			return nil, err
		}
		if sub, ok := rewritten["query"].(string); ok && sub != "" {
			params.Set("q", sub)
		}
	}

	results, err := c.manager.Request(ctx, c.cfg.Service(config.SearchService), params, http.MethodGet, nil, 0, true)
	if err != nil {
		return nil, err
	}
	results = normalizeResults(results)

	switch {
	case !useCache:
	case IsSoftError(results):
		c.logger.Debug("not caching soft search error", zap.String("q", q))
	default:
		if err := c.cachePut(ctx, key, results); err != nil {
			return nil, err
		}
	}
	return results, nil
}
