package api

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// normalizeResults sanitizes every document in a search response in
// place and returns it. Soft error envelopes pass through untouched.
// Normalization is idempotent: running it over an already-normalized
// response changes nothing.
func normalizeResults(results Result) Result {
	if IsSoftError(results) {
		return results
	}
	response, ok := results["response"].(map[string]any)
	if !ok {
		return results
	}
	docs, ok := response["docs"].([]any)
	if !ok {
		return results
	}
	for _, d := range docs {
		if doc, ok := d.(map[string]any); ok {
			normalizeDoc(doc)
		}
	}
	return results
}

func normalizeDoc(doc map[string]any) {
	if citations, ok := doc["[citations]"].(map[string]any); ok {
		if refs, ok := citations["num_references"]; ok {
			doc["reference_count"] = refs
		}
	}

	if data, ok := doc["data"].([]any); ok {
		doc["data"] = normalizeDataLinks(data)
	}

	// Ensure title is a list.
	if title, ok := doc["title"]; ok {
		if _, isList := title.([]any); !isList {
			doc["title"] = []any{title}
		}
	}

	// Extract page from list.
	if page, ok := doc["page"].([]any); ok && len(page) > 0 {
		doc["page"] = page[0]
	}

	if pubdate, ok := doc["pubdate"].(string); ok {
		if alpha, numeric, ok := formatPubdate(pubdate); ok {
			doc["formatted_alphanumeric_pubdate"] = alpha
			doc["formatted_numeric_pubdate"] = numeric
		}
	}

	if pageRange, ok := doc["page_range"].(string); ok {
		pages := strings.Split(pageRange, "-")
		if len(pages) == 2 {
			doc["last_page"] = pages[1]
		}
	}

	if identifiers, ok := doc["identifier"].([]any); ok {
		doc["arXiv"] = firstPreprintID(identifiers)
	}
}

// normalizeDataLinks turns "LABEL:COUNT" full-text source entries into
// [label, count] pairs sorted by count descending, ties keeping their
// input order. Entries already in pair form pass through, which makes a
// second normalization a no-op.
func normalizeDataLinks(data []any) []any {
	type link struct {
		label string
		count int
	}
	links := make([]link, 0, len(data))
	for _, element := range data {
		switch e := element.(type) {
		case string:
			components := strings.Split(e, ":")
			count := 0
			if len(components) >= 2 {
				if n, err := strconv.Atoi(components[1]); err == nil {
					count = n
				}
			}
			links = append(links, link{label: components[0], count: count})
		case []any:
			if len(e) == 2 {
				label, _ := e[0].(string)
				links = append(links, link{label: label, count: toInt(e[1])})
			}
		}
	}
	sort.SliceStable(links, func(i, j int) bool {
		return links[i].count > links[j].count
	})
	out := make([]any, len(links))
	for i, l := range links {
		out[i] = []any{l.label, l.count}
	}
	return out
}

// formatPubdate renders publication dates of the forms YYYY-MM-00
// ("month known, day unknown") and YYYY-00-00 ("year only"). Anything
// else, including already-formatted values, is reported as not ok and
// left alone by the caller.
func formatPubdate(pubdate string) (alpha, numeric string, ok bool) {
	parts := strings.Split(pubdate, "-")
	if len(parts) != 3 || parts[2] != "00" {
		return "", "", false
	}
	year, err := strconv.Atoi(parts[0])
	if err != nil {
		return "", "", false
	}
	if parts[1] == "00" {
		y := strconv.Itoa(year)
		return y, y, true
	}
	month, err := strconv.Atoi(parts[1])
	if err != nil || month < 1 || month > 12 {
		return "", "", false
	}
	alpha = fmt.Sprintf("%s %d", time.Month(month), year)
	numeric = fmt.Sprintf("%02d/%d", month, year)
	return alpha, numeric, true
}

// firstPreprintID returns the first identifier carrying the arXiv
// prefix, or nil.
func firstPreprintID(identifiers []any) any {
	for _, id := range identifiers {
		if s, ok := id.(string); ok && strings.HasPrefix(s, "arXiv:") {
			return s
		}
	}
	return nil
}

func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	case string:
		if i, err := strconv.Atoi(n); err == nil {
			return i
		}
	}
	return 0
}
