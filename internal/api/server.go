// Package api exposes the memory system over HTTP: ingestion, semantic
// search, budgeted recall and store inspection. Formatting surfaced
// memories for a prompt is the caller's business; the API only promises
// size and order.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/felixgeelhaar/engram/internal/embed"
	"github.com/felixgeelhaar/engram/internal/extract"
	"github.com/felixgeelhaar/engram/internal/memory"
	"github.com/felixgeelhaar/engram/internal/observe"
	"github.com/felixgeelhaar/engram/internal/retrieve"
	"github.com/felixgeelhaar/engram/internal/store"
)

// Server wires the HTTP surface over the core components.
type Server struct {
	echo      *echo.Echo
	store     *store.SQLiteStore
	embedder  embed.Embedder
	pipeline  *extract.Pipeline
	retriever *retrieve.Retriever
	obs       *observe.Observer

	chunkSize    int
	chunkOverlap int
	budget       int
}

type Options struct {
	ChunkSize    int
	ChunkOverlap int
	Budget       int // default recall budget in characters
}

func NewServer(s *store.SQLiteStore, e embed.Embedder, p *extract.Pipeline, r *retrieve.Retriever, obs *observe.Observer, opts Options) *Server {
	if obs == nil {
		obs = observe.Nop()
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 1500
	}
	if opts.Budget <= 0 {
		opts.Budget = 4000
	}

	srv := &Server{
		echo:         echo.New(),
		store:        s,
		embedder:     e,
		pipeline:     p,
		retriever:    r,
		obs:          obs,
		chunkSize:    opts.ChunkSize,
		chunkOverlap: opts.ChunkOverlap,
		budget:       opts.Budget,
	}

	srv.echo.HideBanner = true
	srv.echo.HidePort = true
	srv.echo.Use(middleware.Recover())

	srv.routes()
	return srv
}

func (s *Server) routes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/stats", s.handleStats)
	s.echo.GET("/memories", s.handleList)
	s.echo.GET("/memories/:id", s.handleGet)
	s.echo.DELETE("/memories/:id", s.handleDelete)
	s.echo.POST("/search", s.handleSearch)
	s.echo.POST("/store", s.handleStore)
	s.echo.POST("/recall", s.handleRecall)
	s.echo.POST("/ingest", s.handleIngest)
}

// Start blocks serving HTTP until Shutdown.
func (s *Server) Start(addr string) error {
	s.obs.Log().Info().Str("addr", addr).Msg("engram api listening")
	err := s.echo.Start(addr)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Handler exposes the router for httptest-based tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStats(c echo.Context) error {
	st, err := s.store.Stats(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"store":    st,
		"pipeline": s.pipeline.Snapshot(),
	})
}

func (s *Server) handleList(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))

	mems, err := s.store.List(c.Request().Context(), limit, offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if mems == nil {
		mems = []*memory.Memory{}
	}
	return c.JSON(http.StatusOK, mems)
}

func (s *Server) handleGet(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	m, err := s.store.Get(c.Request().Context(), id)
	if errors.Is(err, memory.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "memory not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, m)
}

func (s *Server) handleDelete(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	err = s.store.Delete(c.Request().Context(), id)
	if errors.Is(err, memory.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "memory not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"deleted": id})
}

type searchRequest struct {
	Query string  `json:"query"`
	Limit int     `json:"limit"`
	Floor float64 `json:"floor"`
}

func (s *Server) handleSearch(c echo.Context) error {
	var req searchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if req.Query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query is required")
	}
	if req.Limit <= 0 {
		req.Limit = 5
	}
	if req.Floor <= 0 {
		req.Floor = 0.40
	}

	ctx := c.Request().Context()
	vec, err := s.embedder.Embed(ctx, req.Query, embed.RoleQuery)
	if err != nil {
		if errors.Is(err, memory.ErrProviderUnavailable) {
			return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	hits, err := s.store.Search(ctx, vec, req.Limit, req.Floor)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if hits == nil {
		hits = []memory.SearchResult{}
	}
	return c.JSON(http.StatusOK, hits)
}

type storeRequest struct {
	Content       string   `json:"content"`
	Importance    int      `json:"importance"`
	MemoryType    string   `json:"memory_type"`
	TopicTags     []string `json:"topic_tags"`
	SourceSession string   `json:"source_session"`
}

// handleStore reconciles a hand-written memory through the same
// dedup path the pipeline uses; direct inserts would bypass merging.
func (s *Server) handleStore(c echo.Context) error {
	var req storeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	typ := memory.Type(req.MemoryType)
	if req.MemoryType == "" {
		typ = memory.TypeGeneral
	}
	imp := req.Importance
	if imp == 0 {
		imp = memory.DefaultImportance
	}

	cand := memory.Candidate{
		Content:       req.Content,
		Importance:    imp,
		Type:          typ,
		TopicTags:     req.TopicTags,
		SourceSession: req.SourceSession,
	}

	res, err := s.pipeline.Reconcile(c.Request().Context(), cand)
	if err != nil {
		if errors.Is(err, memory.ErrMalformedCandidate) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		if errors.Is(err, memory.ErrProviderUnavailable) {
			return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"outcome": res.Outcome, "id": res.ID})
}

type recallRequest struct {
	Context string `json:"context"`
	Session string `json:"session"`
	Budget  int    `json:"budget"`
}

func (s *Server) handleRecall(c echo.Context) error {
	var req recallRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if req.Context == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "context is required")
	}
	if req.Session == "" {
		req.Session = uuid.NewString()
	}
	if req.Budget <= 0 {
		req.Budget = s.budget
	}

	results, err := s.retriever.Retrieve(c.Request().Context(), req.Session, req.Context, req.Budget)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if results == nil {
		results = []retrieve.Result{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"session":  req.Session,
		"memories": results,
	})
}

type ingestRequest struct {
	Text    string `json:"text"`
	Session string `json:"session"`
}

func (s *Server) handleIngest(c echo.Context) error {
	var req ingestRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if req.Text == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "text is required")
	}
	if req.Session == "" {
		req.Session = uuid.NewString()
	}

	ctx := c.Request().Context()
	var ids []int64
	for i, chunkText := range extract.SplitText(req.Text, s.chunkSize, s.chunkOverlap) {
		chunkIDs, err := s.pipeline.ProcessChunk(ctx, extract.Chunk{
			Session: req.Session,
			Index:   i,
			Text:    chunkText,
		})
		if err != nil {
			// A transient capability failure skips the chunk; partial
			// results still count.
			s.obs.Log().Warn().Str("session", req.Session).Err(err).Msg("chunk skipped during ingest")
			continue
		}
		ids = append(ids, chunkIDs...)
	}
	if ids == nil {
		ids = []int64{}
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"session":    req.Session,
		"memory_ids": ids,
	})
}
