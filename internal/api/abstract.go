package api

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/adsabs/adscore/internal/cache"
	"github.com/adsabs/adscore/internal/config"
)

// abstractFields is the field list needed for a full record display.
const abstractFields = "identifier,[citations],abstract,author,bibcode,bibstem,citation_count,comment,issn,isbn,doi,id,keyword,page,page_range,property,esources,pub,pub_raw,pubdate,pubnote,read_count,title,volume,data,issue,doctype"

// NotFoundMessage is the soft error carried by a missing record.
const NotFoundMessage = "Record not found."

// Abstract fetches one record by identifier and augments it with its
// associated works, graphics manifest, usage metrics, and export
// citation. Each augmentation degrades independently to an empty value;
// a failed sub-call never discards the document. Missing records come
// back as a soft error and are deliberately not cached, so an identifier
// that arrives late upstream can still be found on a later attempt.
func (c *Client) Abstract(ctx context.Context, identifier string) (Result, error) {
	key := cache.Key(c.cfg.Cache.DataKeyPrefix, "abs", identifier)
	if cached, err := c.cacheGet(ctx, key); err != nil {
		return nil, err
	} else if cached != nil {
		return cached, nil
	}

	// Bypass the search cache so a miss is re-checked against the backend
	// next time; the augmented document carries its own cache entry.
	results, err := c.search(ctx, "identifier:"+identifier, SearchOptions{
		Rows:   1,
		Sort:   "date desc",
		Fields: abstractFields,
	}, false)
	if err != nil {
		return nil, err
	}
	doc, ok := firstDoc(results)
	if !ok {
		return Result{"error": NotFoundMessage}, nil
	}

	c.augment(ctx, doc)

	augmented := Result(doc)
	if err := c.cachePut(ctx, key, augmented); err != nil {
		return nil, err
	}
	return augmented, nil
}

func firstDoc(results Result) (map[string]any, bool) {
	response, ok := results["response"].(map[string]any)
	if !ok {
		return nil, false
	}
	docs, ok := response["docs"].([]any)
	if !ok || len(docs) == 0 {
		return nil, false
	}
	doc, ok := docs[0].(map[string]any)
	return doc, ok
}

// augment attaches the four complementary blocks, sequentially. Every
// sub-call failure, fatal or soft, collapses to that block's empty
// default.
func (c *Client) augment(ctx context.Context, doc map[string]any) {
	bibcode, _ := doc["bibcode"].(string)

	doc["associated"] = []any{}
	if res := c.augmentCall(ctx, "associated", func() (Result, error) {
		endpoint := c.cfg.Service(config.ResolverService) + bibcode + "/associated"
		return c.manager.Request(ctx, endpoint, nil, http.MethodGet, nil, 0, true)
	}); res != nil {
		if links, ok := res["links"].(map[string]any); ok {
			if records, ok := links["records"].([]any); ok {
				doc["associated"] = records
			}
		}
	}

	doc["graphics"] = []any{}
	if res := c.augmentCall(ctx, "graphics", func() (Result, error) {
		endpoint := c.cfg.Service(config.GraphicsService) + bibcode
		return c.manager.Request(ctx, endpoint, nil, http.MethodGet, nil, 0, true)
	}); res != nil {
		doc["graphics"] = map[string]any(res)
	}

	doc["metrics"] = map[string]any{}
	if res := c.augmentCall(ctx, "metrics", func() (Result, error) {
		data := map[string]any{"bibcodes": []string{bibcode}}
		return c.manager.Request(ctx, c.cfg.Service(config.MetricsService), data, http.MethodPost, nil, 0, true)
	}); res != nil {
		// The metrics service reports some failures under "Error".
		if _, upper := res["Error"]; !upper {
			doc["metrics"] = map[string]any(res)
		}
	}

	doc["export"] = nil
	if res := c.augmentCall(ctx, "export", func() (Result, error) {
		data := map[string]any{
			"bibcode": []string{bibcode},
			"sort":    "date desc, bibcode desc",
		}
		return c.manager.Request(ctx, c.cfg.Service(config.ExportService), data, http.MethodPost, nil, 0, true)
	}); res != nil {
		if export, ok := res["export"]; ok {
			doc["export"] = export
		}
	}
}

// augmentCall runs one augmentation and maps every failure mode, fatal
// errors included, to nil so the caller falls back to the empty default.
func (c *Client) augmentCall(ctx context.Context, name string, call func() (Result, error)) Result {
	res, err := call()
	if err != nil {
		c.logger.Warn("augmentation failed", zap.String("augmentation", name), zap.Error(err))
		return nil
	}
	if IsSoftError(res) {
		c.logger.Debug("augmentation returned error envelope", zap.String("augmentation", name))
		return nil
	}
	return res
}
