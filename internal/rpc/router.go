// Package rpc is the RPC/Event surface, spec.md §6.3: JSON commands over
// HTTP (install/start/stop/uninstall/status/list/input-reply), matching
// the teacher's gin-based router, plus a gorilla/websocket event stream
// with one connection and one send queue per subscriber.
package rpc

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/loykin/orchestrator/internal/lifecycle"
	"github.com/loykin/orchestrator/internal/orcherr"
	"github.com/loykin/orchestrator/internal/registry"
)

// Router provides embeddable HTTP handlers over a *lifecycle.Manager.
// Endpoints:
//
//	POST {basePath}/install       body: AppDescriptor JSON
//	POST {basePath}/start         body: {appId, args}
//	POST {basePath}/stop          body: {appId}
//	POST {basePath}/uninstall     body: {appId, purge}
//	GET  {basePath}/status        query: appId=...
//	GET  {basePath}/list
//	POST {basePath}/input-reply   body: {requestId, value}
//	GET  {basePath}/events        upgrades to a websocket event stream
type Router struct {
	mgr      *lifecycle.Manager
	basePath string
}

func NewRouter(mgr *lifecycle.Manager, basePath string) *Router {
	return &Router{mgr: mgr, basePath: sanitizeBase(basePath)}
}

// Handler returns an http.Handler powered by gin, mountable in any
// server/mux, mirroring the teacher's Router.Handler.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.POST("/install", r.handleInstall)
	group.POST("/start", r.handleStart)
	group.POST("/stop", r.handleStop)
	group.POST("/uninstall", r.handleUninstall)
	group.GET("/status", r.handleStatus)
	group.GET("/list", r.handleList)
	group.POST("/input-reply", r.handleInputReply)
	group.GET("/events", r.handleEvents)
	return g
}

// NewServer starts a standalone HTTP server on addr using this router,
// the same shape as the teacher's server.NewServer.
func NewServer(addr, basePath string, mgr *lifecycle.Manager) *http.Server {
	r := NewRouter(mgr, basePath)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      0, // /events holds its connection open indefinitely
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}

type errorResp struct {
	CommandID string `json:"commandId,omitempty"`
	Kind      string `json:"kind"`
	Error     string `json:"error"`
}

func writeError(c *gin.Context, cmdID string, err error) {
	code := http.StatusBadRequest
	kind := orcherr.KindOf(err)
	if kind == orcherr.KindInternal {
		code = http.StatusInternalServerError
	}
	c.JSON(code, errorResp{CommandID: cmdID, Kind: string(kind), Error: err.Error()})
}

func commandID(c *gin.Context) string {
	if id := c.GetHeader("X-Command-Id"); id != "" {
		return id
	}
	return uuid.NewString()
}

func (r *Router) handleInstall(c *gin.Context) {
	cmdID := commandID(c)
	var desc registry.AppDescriptor
	if err := c.ShouldBindJSON(&desc); err != nil {
		writeError(c, cmdID, orcherr.Wrap(orcherr.KindScriptParse, "invalid install request body", err))
		return
	}
	if desc.AppID == "" {
		writeError(c, cmdID, orcherr.New(orcherr.KindIllegalState, "appId is required"))
		return
	}
	rec, err := r.mgr.Install(c.Request.Context(), desc)
	if err != nil {
		writeError(c, cmdID, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"commandId": cmdID, "app": rec})
}

type startReq struct {
	AppID string            `json:"appId"`
	Args  map[string]string `json:"args,omitempty"`
}

func (r *Router) handleStart(c *gin.Context) {
	cmdID := commandID(c)
	var req startReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, cmdID, orcherr.Wrap(orcherr.KindScriptParse, "invalid start request body", err))
		return
	}
	rec, err := r.mgr.Start(c.Request.Context(), req.AppID, req.Args)
	if err != nil {
		writeError(c, cmdID, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"commandId": cmdID, "app": rec})
}

type appIDReq struct {
	AppID string `json:"appId"`
}

func (r *Router) handleStop(c *gin.Context) {
	cmdID := commandID(c)
	var req appIDReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, cmdID, orcherr.Wrap(orcherr.KindScriptParse, "invalid stop request body", err))
		return
	}
	if err := r.mgr.Stop(c.Request.Context(), req.AppID); err != nil {
		writeError(c, cmdID, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"commandId": cmdID, "ok": true})
}

type uninstallReq struct {
	AppID string `json:"appId"`
	Purge bool   `json:"purge,omitempty"`
}

func (r *Router) handleUninstall(c *gin.Context) {
	cmdID := commandID(c)
	var req uninstallReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, cmdID, orcherr.Wrap(orcherr.KindScriptParse, "invalid uninstall request body", err))
		return
	}
	if err := r.mgr.Uninstall(c.Request.Context(), req.AppID, req.Purge); err != nil {
		writeError(c, cmdID, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"commandId": cmdID, "ok": true})
}

func (r *Router) handleStatus(c *gin.Context) {
	cmdID := commandID(c)
	appID := c.Query("appId")
	if appID == "" {
		writeError(c, cmdID, orcherr.New(orcherr.KindIllegalState, "appId query param is required"))
		return
	}
	rec, err := r.mgr.Status(appID)
	if err != nil {
		writeError(c, cmdID, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"commandId": cmdID, "app": rec})
}

func (r *Router) handleList(c *gin.Context) {
	cmdID := commandID(c)
	c.JSON(http.StatusOK, gin.H{"commandId": cmdID, "apps": r.mgr.List()})
}

type inputReplyReq struct {
	RequestID string `json:"requestId"`
	Value     string `json:"value"`
}

func (r *Router) handleInputReply(c *gin.Context) {
	cmdID := commandID(c)
	var req inputReplyReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, cmdID, orcherr.Wrap(orcherr.KindScriptParse, "invalid input-reply request body", err))
		return
	}
	if err := r.mgr.InputReply(req.RequestID, req.Value); err != nil {
		writeError(c, cmdID, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"commandId": cmdID, "ok": true})
}

func sanitizeBase(bp string) string {
	if bp == "" || bp == "/" {
		return ""
	}
	if bp[0] != '/' {
		bp = "/" + bp
	}
	for len(bp) > 1 && bp[len(bp)-1] == '/' {
		bp = bp[:len(bp)-1]
	}
	return bp
}
