// Package server exposes the HTTP interface: search, document fetch,
// caller classification, and reference resolution, with the caller's
// trust tier decided before any backend work happens.
package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/adsabs/adscore/internal/api"
	"github.com/adsabs/adscore/internal/cache"
	"github.com/adsabs/adscore/internal/config"
	"github.com/adsabs/adscore/internal/crawler"
	"github.com/adsabs/adscore/internal/metrics"
)

// Server wires HTTP handlers to the classifier and the backend client.
type Server struct {
	router     chi.Router
	classifier *crawler.Classifier
	store      cache.Store
	pool       *http.Client
	cfg        config.Config
	logger     *zap.Logger
}

// NewServer constructs a Server with middleware and routes. pool is the
// shared outbound client; nil gives every request a dedicated client
// that forwards the caller's trace headers.
func NewServer(classifier *crawler.Classifier, store cache.Store, pool *http.Client, cfg config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		classifier: classifier,
		store:      store,
		pool:       pool,
		cfg:        cfg,
		logger:     logger,
	}
	r := chi.NewRouter()
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.classifyMiddleware)
		r.Get("/search", s.search)
		r.Get("/classify", s.classify)
		r.Get("/reference/{text}", s.reference)
		r.Route("/abs/{identifier}", func(r chi.Router) {
			r.Get("/", s.abstract)
			r.Get("/{section}", s.abstractSection)
		})
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	// The backend is reached lazily; readiness only needs the cache tier.
	if s.store != nil {
		if _, err := s.store.Get(r.Context(), "readyz"); err != nil && !errors.Is(err, cache.ErrMiss) {
			writeError(w, http.StatusServiceUnavailable, "cache unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// newClient builds the request-scoped backend client, seeded with the
// credential tier the classification middleware decided: synthetic bot
// tokens for classified crawlers, a bootstrapped token for everyone else.
func (s *Server) newClient(r *http.Request) (*api.Client, error) {
	manager := api.NewManager(s.cfg, s.pool, r.Header, s.logger)
	switch classification(r) {
	case crawler.VerifiedBot:
		manager.SetAuth(api.BotToken(s.cfg.Auth.VerifiedBotToken))
	case crawler.UnverifiableBot:
		manager.SetAuth(api.BotToken(s.cfg.Auth.UnverifiableBotToken))
	default:
		if err := manager.EnsureAuth(r.Context()); err != nil {
			return nil, err
		}
	}
	return api.NewClient(manager, s.store, s.cfg, s.logger), nil
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeError(w, http.StatusBadRequest, "missing required parameter: q")
		return
	}
	opts := api.SearchOptions{
		Rows:  intParam(r, "rows"),
		Start: intParam(r, "start"),
		Sort:  r.URL.Query().Get("sort"),
	}
	client, err := s.newClient(r)
	if err != nil {
		s.writeRequestError(w, err)
		return
	}
	results, err := client.Search(r.Context(), q, opts)
	if err != nil {
		s.writeRequestError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) abstract(w http.ResponseWriter, r *http.Request) {
	identifier := chi.URLParam(r, "identifier")
	client, err := s.newClient(r)
	if err != nil {
		s.writeRequestError(w, err)
		return
	}
	doc, err := client.Abstract(r.Context(), identifier)
	if err != nil {
		s.writeRequestError(w, err)
		return
	}
	if api.IsSoftError(doc) {
		writeJSON(w, http.StatusNotFound, doc)
		return
	}
	writeJSON(w, http.StatusOK, doc)

	// Click logging is best-effort and must not delay the response.
	userAgent, referrer := r.UserAgent(), r.Referer()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.APITimeout())
		defer cancel()
		if err := client.LogGatewayClick(ctx, identifier, "abstract", userAgent, referrer); err != nil {
			s.logger.Warn("gateway click log failed", zap.String("identifier", identifier), zap.Error(err))
		}
	}()
}

func (s *Server) abstractSection(w http.ResponseWriter, r *http.Request) {
	identifier := chi.URLParam(r, "identifier")
	section := chi.URLParam(r, "section")
	client, err := s.newClient(r)
	if err != nil {
		s.writeRequestError(w, err)
		return
	}
	doc, err := client.Abstract(r.Context(), identifier)
	if err != nil {
		s.writeRequestError(w, err)
		return
	}
	if api.IsSoftError(doc) {
		writeJSON(w, http.StatusNotFound, doc)
		return
	}
	bibcode, _ := doc["bibcode"].(string)

	switch section {
	case "graphics":
		writeJSON(w, http.StatusOK, map[string]any{"graphics": doc["graphics"]})
	case "metrics":
		writeJSON(w, http.StatusOK, map[string]any{"metrics": doc["metrics"]})
	case "exportcitation":
		writeJSON(w, http.StatusOK, map[string]any{"export": doc["export"]})
	default:
		q, ok := sectionQuery(section, bibcode)
		if !ok {
			writeError(w, http.StatusNotFound, "unknown section: "+section)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"bibcode": bibcode, "query": q})
	}
}

// sectionQuery builds the follow-up search query a document section
// stands for: the works citing it, its reference list, its co-read and
// similarity neighborhoods, or the volume table of contents.
func sectionQuery(section, bibcode string) (string, bool) {
	switch section {
	case "citations":
		return "citations(bibcode:" + bibcode + ")", true
	case "references":
		return "references(bibcode:" + bibcode + ")", true
	case "coreads":
		return "trending(bibcode:" + bibcode + ") -bibcode:" + bibcode, true
	case "similar":
		return "similar(bibcode:" + bibcode + ")", true
	case "toc":
		if len(bibcode) < 14 {
			return "", false
		}
		return "bibcode:" + bibcode[:13] + "*", true
	}
	return "", false
}

func (s *Server) classify(w http.ResponseWriter, r *http.Request) {
	result := classification(r)
	writeJSON(w, http.StatusOK, map[string]any{
		"classification": result.String(),
		"verified_bot":   result == crawler.VerifiedBot,
	})
}

func (s *Server) reference(w http.ResponseWriter, r *http.Request) {
	text := chi.URLParam(r, "text")
	client, err := s.newClient(r)
	if err != nil {
		s.writeRequestError(w, err)
		return
	}
	res, err := client.ResolveReference(r.Context(), text)
	if err != nil {
		s.writeRequestError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) writeRequestError(w http.ResponseWriter, err error) {
	var statusErr *api.StatusError
	if errors.As(err, &statusErr) {
		writeError(w, statusErr.Code, statusErr.Message)
		return
	}
	s.logger.Error("request failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal server error")
}

func intParam(r *http.Request, name string) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// clientIP resolves the caller's address, preferring the first entry of
// X-Forwarded-For when a proxy sits in front.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	host := r.RemoteAddr
	if i := strings.LastIndex(host, ":"); i > 0 {
		host = host[:i]
	}
	return strings.Trim(host, "[]")
}
