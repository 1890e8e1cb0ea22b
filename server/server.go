// Package server exposes an engine.Engine over HTTP/JSON.
package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/razeghi71/dqflow/engine"
	"github.com/razeghi71/dqflow/errs"
	"github.com/razeghi71/dqflow/metrics"
	"github.com/razeghi71/dqflow/ref"
	"github.com/razeghi71/dqflow/wire"
)

// Server serves one engine. Readiness is reported on GET /.
type Server struct {
	eng    engine.Engine
	ready  *engine.Readiness
	log    *zap.SugaredLogger
	router *gin.Engine
}

// New builds the router for e. A nil ready uses engine.Process.
func New(e engine.Engine, ready *engine.Readiness, log *zap.SugaredLogger) *Server {
	if ready == nil {
		ready = engine.Process
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	gin.SetMode(gin.ReleaseMode)
	s := &Server{eng: e, ready: ready, log: log, router: gin.New()}
	s.routes()
	return s
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() {
	r := s.router
	r.Use(gin.Recovery(), requestMetrics(), requestLogger(s.log))

	r.GET("/", s.health)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := r.Group("/api/sessions")
	api.POST("", s.createSession)
	api.GET("", s.listSessions)
	api.DELETE("/:id", s.destroySession)
	api.GET("/:id/tables", s.listTables)
	api.HEAD("/:id/tables/:name", s.tableExists)
	api.GET("/:id/tables/:name/schema", s.tableSchema)
	api.POST("/:id/execute", s.execute)
	api.POST("/:id/commit", s.commit)
	api.POST("/:id/rollback", s.rollback)

	tools := r.Group("/tools/datasets")
	tools.GET("", s.listDatasets)
	tools.GET("/:name/columns", s.datasetColumns)
	tools.GET("/:name/columns/:column/values", s.columnValues)
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.router, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		s.log.Infow("engine server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.log.Infow("shutting down engine server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) fail(c *gin.Context, err error) {
	code := errs.CodeOf(err)
	if code == errs.CodeInternal {
		s.log.Errorw("request failed", "path", c.FullPath(), "error", err)
	}
	c.Header(wire.HeaderErrorCode, string(code))
	c.JSON(wire.Status(code), wire.FromError(err))
}

func badBody(err error) error {
	if errs.CodeOf(err) == errs.CodeValidation {
		return err
	}
	return errs.Validation("malformed request body", errs.FieldViolation{Field: "body", Reason: err.Error()})
}

func sessionID(c *gin.Context) ref.SessionID {
	return ref.SessionID(c.Param("id"))
}

func (s *Server) health(c *gin.Context) {
	if !s.ready.Ready() {
		s.fail(c, errs.NotReady("engine is starting"))
		return
	}
	c.JSON(http.StatusOK, wire.Health{Status: "ok", Ready: true})
}

func (s *Server) createSession(c *gin.Context) {
	id, err := s.eng.CreateSession(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, wire.CreateSessionResponse{SessionID: id})
}

func (s *Server) listSessions(c *gin.Context) {
	lister, ok := s.eng.(engine.SessionLister)
	if !ok {
		s.fail(c, errs.NotFound("session listing is not supported"))
		return
	}
	sessions, err := lister.ListSessions(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	if sessions == nil {
		sessions = []engine.SessionInfo{}
	}
	c.JSON(http.StatusOK, wire.ListSessionsResponse{Sessions: sessions})
}

func (s *Server) destroySession(c *gin.Context) {
	if err := s.eng.DestroySession(c.Request.Context(), sessionID(c)); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) listTables(c *gin.Context) {
	include := false
	if raw := c.Query("includeTemporary"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			s.fail(c, errs.Validation("invalid query", errs.FieldViolation{Field: "includeTemporary", Reason: "must be a boolean"}))
			return
		}
		include = v
	}
	tables, err := s.eng.ListTables(c.Request.Context(), sessionID(c), include)
	if err != nil {
		s.fail(c, err)
		return
	}
	if tables == nil {
		tables = []engine.TableInfo{}
	}
	c.JSON(http.StatusOK, wire.ListTablesResponse{Tables: tables})
}

// tableExists answers 200 or a bare 404. A 404 carrying the error header
// means the session itself is unknown.
func (s *Server) tableExists(c *gin.Context) {
	ok, err := s.eng.TableExists(c.Request.Context(), sessionID(c), c.Param("name"))
	switch {
	case err != nil:
		code := errs.CodeOf(err)
		c.Header(wire.HeaderErrorCode, string(code))
		c.Status(wire.Status(code))
	case ok:
		c.Status(http.StatusOK)
	default:
		c.Status(http.StatusNotFound)
	}
}

func (s *Server) tableSchema(c *gin.Context) {
	schema, err := s.eng.GetTableSchema(c.Request.Context(), sessionID(c), c.Param("name"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, wire.SchemaResponse{Schema: schema})
}

func (s *Server) execute(c *gin.Context) {
	var req wire.ExecuteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, badBody(err))
		return
	}
	res, err := s.eng.ExecuteOperation(c.Request.Context(), sessionID(c), req.Operation.Operation)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) commit(c *gin.Context) {
	var req wire.CommitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, badBody(err))
		return
	}
	if err := s.eng.CommitTable(c.Request.Context(), sessionID(c), req.TempTable, req.FinalTable); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) rollback(c *gin.Context) {
	if err := s.eng.RollbackSession(c.Request.Context(), sessionID(c)); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) browser(c *gin.Context) (engine.DatasetBrowser, bool) {
	b, ok := s.eng.(engine.DatasetBrowser)
	if !ok {
		s.fail(c, errs.NotFound("dataset browsing is not supported"))
	}
	return b, ok
}

func (s *Server) listDatasets(c *gin.Context) {
	b, ok := s.browser(c)
	if !ok {
		return
	}
	list, err := b.ListDatasets(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	if list == nil {
		list = []engine.Dataset{}
	}
	c.JSON(http.StatusOK, wire.DatasetsResponse{Datasets: list})
}

func (s *Server) datasetColumns(c *gin.Context) {
	b, ok := s.browser(c)
	if !ok {
		return
	}
	schema, err := b.DatasetColumns(c.Request.Context(), c.Param("name"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, wire.SchemaResponse{Schema: schema})
}

func (s *Server) columnValues(c *gin.Context) {
	b, ok := s.browser(c)
	if !ok {
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.fail(c, errs.Validation("invalid query", errs.FieldViolation{Field: "limit", Reason: "must be a non-negative integer"}))
			return
		}
		limit = n
	}
	values, err := b.DatasetColumnValues(c.Request.Context(), c.Param("name"), c.Param("column"), limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	if values == nil {
		values = []any{}
	}
	c.JSON(http.StatusOK, wire.ColumnValuesResponse{Values: values})
}
