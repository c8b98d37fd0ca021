package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	dsp "github.com/loykin/dispatchr/internal/dispatcher"
	"github.com/loykin/dispatchr/internal/history"
	"github.com/loykin/dispatchr/internal/metrics"
	"github.com/loykin/dispatchr/internal/registry"
	"github.com/loykin/dispatchr/internal/store"
)

// Router provides embeddable HTTP handlers over the process registry.
// Endpoints:
//   POST   {basePath}/processes                body: {"source_id": n, "type": n}
//   GET    {basePath}/processes/:id
//   POST   {basePath}/processes/:id/state      body: {"state": "..."}
//   GET    {basePath}/processes?source_id=n
//   DELETE {basePath}/processes/:id
//   POST   {basePath}/assign/:supervisor_id
// basePath may be empty or start with '/'; no trailing slash.

type Router struct {
	st       store.Store
	disp     *dsp.Dispatcher
	hist     history.Sink
	basePath string
}

// NewRouter constructs a new Router with configurable basePath.
// disp and hist are optional; without disp the assign endpoint returns 503.
func NewRouter(st store.Store, disp *dsp.Dispatcher, hist history.Sink, basePath string) *Router {
	return &Router{st: st, disp: disp, hist: hist, basePath: sanitizeBase(basePath)}
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.POST("/processes", r.handleCreate)
	group.GET("/processes", r.handleList)
	group.GET("/processes/:id", r.handleGet)
	group.POST("/processes/:id/state", r.handleSetState)
	group.DELETE("/processes/:id", r.handleDelete)
	group.POST("/assign/:supervisor_id", r.handleAssign)
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
func NewServer(addr string, r *Router) (*http.Server, error) {
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server, nil
}

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

type createReq struct {
	SourceID uint32 `json:"source_id"`
	Type     *uint8 `json:"type"`
}

func (r *Router) handleCreate(c *gin.Context) {
	var req createReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	kind := registry.KindRegular
	if req.Type != nil {
		kind = registry.Kind(*req.Type)
	}
	rec, err := r.st.Create(c.Request.Context(), req.SourceID, kind)
	if err != nil {
		c.JSON(statusFor(err), errorResp{Error: err.Error()})
		return
	}
	metrics.IncCreate()
	r.emit(c, history.Event{Type: history.EventCreate, OccurredAt: time.Now().UTC(), Record: rec})
	c.JSON(http.StatusCreated, rec)
}

func (r *Router) handleGet(c *gin.Context) {
	rec, err := r.st.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(statusFor(err), errorResp{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, rec)
}

type setStateReq struct {
	State string `json:"state"`
}

func (r *Router) handleSetState(c *gin.Context) {
	var req setStateReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	target, err := registry.ParseState(req.State)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResp{Error: err.Error()})
		return
	}
	prev, err := r.st.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(statusFor(err), errorResp{Error: err.Error()})
		return
	}
	rec, err := r.st.UpdateState(c.Request.Context(), c.Param("id"), target)
	if err != nil {
		if errors.Is(err, registry.ErrIllegalTransition) {
			metrics.IncIllegalTransition()
		}
		c.JSON(statusFor(err), errorResp{Error: err.Error()})
		return
	}
	metrics.RecordStateTransition(string(prev.State), string(rec.State))
	r.emit(c, history.Event{Type: history.EventTransition, OccurredAt: time.Now().UTC(), Record: rec, From: prev.State})
	c.JSON(http.StatusOK, rec)
}

func (r *Router) handleList(c *gin.Context) {
	raw := c.Query("source_id")
	if raw == "" {
		c.JSON(http.StatusBadRequest, errorResp{Error: "source_id query param required"})
		return
	}
	sourceID, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResp{Error: "invalid source_id: " + err.Error()})
		return
	}
	recs, err := r.st.ListBySource(c.Request.Context(), uint32(sourceID))
	if err != nil {
		c.JSON(statusFor(err), errorResp{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, recs)
}

func (r *Router) handleDelete(c *gin.Context) {
	id := c.Param("id")
	rec, err := r.st.Get(c.Request.Context(), id)
	if err != nil {
		c.JSON(statusFor(err), errorResp{Error: err.Error()})
		return
	}
	if err := r.st.Delete(c.Request.Context(), id); err != nil {
		c.JSON(statusFor(err), errorResp{Error: err.Error()})
		return
	}
	metrics.IncDelete()
	r.emit(c, history.Event{Type: history.EventDelete, OccurredAt: time.Now().UTC(), Record: rec})
	c.JSON(http.StatusOK, okResp{OK: true})
}

func (r *Router) handleAssign(c *gin.Context) {
	if r.disp == nil {
		c.JSON(http.StatusServiceUnavailable, errorResp{Error: "dispatcher not configured"})
		return
	}
	supervisorID, err := uuid.Parse(c.Param("supervisor_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResp{Error: "invalid supervisor_id: " + err.Error()})
		return
	}
	assigned, err := r.disp.Assign(c.Request.Context(), supervisorID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorResp{Error: "failed to assign process: " + err.Error()})
		return
	}
	if assigned == nil {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, assigned)
}

func (r *Router) emit(c *gin.Context, e history.Event) {
	if r.hist == nil {
		return
	}
	if err := r.hist.Send(c.Request.Context(), e); err != nil {
		// history is best effort; the registry write already committed
		_ = err
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, registry.ErrIllegalTransition), errors.Is(err, store.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, registry.ErrUnknownState):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrIDGenerationExhausted):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func sanitizeBase(basePath string) string {
	bp := strings.TrimSpace(basePath)
	if bp == "" {
		return ""
	}
	if !strings.HasPrefix(bp, "/") {
		bp = "/" + bp
	}
	return strings.TrimSuffix(bp, "/")
}
