package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStoreQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/vault/query", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, []any{"bibcode\n2020A\n2020B"}, body["bigquery"])
		require.Equal(t, []any{"{!bitset}"}, body["fq"])
		require.Equal(t, []any{"*:*"}, body["q"])
		require.Equal(t, []any{"date desc, bibcode desc"}, body["sort"])
		writeJSON(w, http.StatusOK, map[string]any{"qid": "abc123"})
	}))
	defer srv.Close()

	res, err := newTestClient(t, srv).StoreQuery(context.Background(), []string{"2020A", "2020B"}, "")
	require.NoError(t, err)
	require.Equal(t, "abc123", res["qid"])
}

func TestObjectsQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/objects/query", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, []any{"object:(M67,M68)"}, body["query"])
		writeJSON(w, http.StatusOK, map[string]any{"query": "(simbid:1 OR simbid:2)"})
	}))
	defer srv.Close()

	res, err := newTestClient(t, srv).ObjectsQuery(context.Background(), []string{"M67", "M68"})
	require.NoError(t, err)
	require.Equal(t, "(simbid:1 OR simbid:2)", res["query"])
}

func TestLogGatewayClick(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/resolver/gateway/2020A/abstract", r.URL.Path)
		require.Equal(t, "TestBrowser/1.0", r.Header.Get("User-Agent"))
		require.Equal(t, "https://example.org/page", r.Header.Get("Referer"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	err := newTestClient(t, srv).LogGatewayClick(context.Background(),
		"2020A", "abstract", "TestBrowser/1.0", "https://example.org/page")
	require.NoError(t, err)
}

func TestResolveReference(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/reference/text/Author 2020", r.URL.Path)
		writeJSON(w, http.StatusOK, map[string]any{"resolved": map[string]any{"bibcode": "2020A"}})
	}))
	defer srv.Close()

	res, err := newTestClient(t, srv).ResolveReference(context.Background(), "Author 2020")
	require.NoError(t, err)
	resolved, ok := res["resolved"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "2020A", resolved["bibcode"])
}
