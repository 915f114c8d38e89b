package simcluster

import (
	"net/http"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/dreamware/clusterctl/internal/cluster"
)

// Envelope codes used for failures. The control plane always answers with
// HTTP 200 and reports the outcome in the envelope.
const (
	codeBadRequest = 400
	codeNotFound   = 404
	codeFailed     = 500
)

// Handler returns the HTTP API of the cluster:
//
//	GET  /api/fs/cluster                          snapshot
//	GET  /api/fs/health                           one-line health
//	POST /api/fs/server/:class/:action?serverId=  start or stop one server
//	GET  /api/fs/server/status?serverType=&serverId=
//
// and the simulation controls used by demos and tests:
//
//	PUT    /sim/fail/:class/:port    inject a failure, body {"msg": "..."}
//	DELETE /sim/fail/:class/:port    clear it
//	PUT    /sim/blocks/:port/:id?size=
//	DELETE /sim/blocks/:port/:id
func (c *Cluster) Handler() http.Handler {
	router := gin.New()
	router.Use(gin.Recovery())

	api := router.Group("/api/fs")
	api.GET("/cluster", c.handleCluster)
	api.GET("/health", c.handleHealth)
	api.GET("/server/status", c.handleStatus)
	api.POST("/server/:class/:action", c.handleControl)

	sim := router.Group("/sim")
	sim.PUT("/fail/:class/:port", c.handleInjectFailure)
	sim.DELETE("/fail/:class/:port", c.handleClearFailure)
	sim.PUT("/blocks/:port/:id", c.handleWriteBlock)
	sim.DELETE("/blocks/:port/:id", c.handleDeleteBlock)
	return router
}

func respond(ctx *gin.Context, code int, msg string, data any) {
	env, err := cluster.NewEnvelope(code, msg, uuid.New().String(), data)
	if err != nil {
		ctx.String(http.StatusInternalServerError, err.Error())
		return
	}
	body, err := cluster.Marshal(env)
	if err != nil {
		ctx.String(http.StatusInternalServerError, err.Error())
		return
	}
	ctx.Data(http.StatusOK, "application/json; charset=utf-8", body)
}

func respondErr(ctx *gin.Context, err error) {
	code := codeFailed
	if errors.Is(err, ErrUnknownServer) {
		code = codeNotFound
	}
	respond(ctx, code, err.Error(), nil)
}

func (c *Cluster) handleCluster(ctx *gin.Context) {
	respond(ctx, cluster.CodeOK, "success", c.Snapshot())
}

func (c *Cluster) handleHealth(ctx *gin.Context) {
	respond(ctx, cluster.CodeOK, "success", c.Health())
}

func (c *Cluster) handleControl(ctx *gin.Context) {
	class, err := cluster.ParseRoleClass(ctx.Param("class"))
	if err != nil {
		respond(ctx, codeBadRequest, err.Error(), nil)
		return
	}
	action, err := cluster.ParseAction(ctx.Param("action"))
	if err != nil || !action.Mutating() {
		respond(ctx, codeBadRequest, "unsupported action "+ctx.Param("action"), nil)
		return
	}
	port, err := strconv.Atoi(ctx.Query("serverId"))
	if err != nil {
		respond(ctx, codeBadRequest, "invalid serverId", nil)
		return
	}

	var out string
	if action == cluster.Start {
		out, err = c.Start(class, port)
	} else {
		out, err = c.Stop(class, port)
	}
	if err != nil {
		plog.Warningf("%s %s %d: %v", action, class, port, err)
		respondErr(ctx, err)
		return
	}
	respond(ctx, cluster.CodeOK, "success", out)
}

func (c *Cluster) handleStatus(ctx *gin.Context) {
	class, err := cluster.ParseRoleClass(ctx.Query("serverType"))
	if err != nil {
		respond(ctx, codeBadRequest, err.Error(), nil)
		return
	}
	port := 0
	if raw := ctx.Query("serverId"); raw != "" {
		if port, err = strconv.Atoi(raw); err != nil {
			respond(ctx, codeBadRequest, "invalid serverId", nil)
			return
		}
	}
	out, err := c.Status(class, port)
	if err != nil {
		respondErr(ctx, err)
		return
	}
	respond(ctx, cluster.CodeOK, "success", out)
}

type failureRequest struct {
	Msg string `json:"msg"`
}

func (c *Cluster) classAndPort(ctx *gin.Context) (cluster.RoleClass, int, bool) {
	class, err := cluster.ParseRoleClass(ctx.Param("class"))
	if err != nil {
		respond(ctx, codeBadRequest, err.Error(), nil)
		return 0, 0, false
	}
	port, err := strconv.Atoi(ctx.Param("port"))
	if err != nil {
		respond(ctx, codeBadRequest, "invalid port", nil)
		return 0, 0, false
	}
	return class, port, true
}

func (c *Cluster) handleInjectFailure(ctx *gin.Context) {
	class, port, ok := c.classAndPort(ctx)
	if !ok {
		return
	}
	var req failureRequest
	if ctx.Request.ContentLength != 0 {
		if err := ctx.ShouldBindJSON(&req); err != nil {
			respond(ctx, codeBadRequest, "invalid body", nil)
			return
		}
	}
	if err := c.InjectFailure(class, port, req.Msg); err != nil {
		respondErr(ctx, err)
		return
	}
	respond(ctx, cluster.CodeOK, "success", nil)
}

func (c *Cluster) handleClearFailure(ctx *gin.Context) {
	class, port, ok := c.classAndPort(ctx)
	if !ok {
		return
	}
	if err := c.ClearFailure(class, port); err != nil {
		respondErr(ctx, err)
		return
	}
	respond(ctx, cluster.CodeOK, "success", nil)
}

func (c *Cluster) handleWriteBlock(ctx *gin.Context) {
	port, err := strconv.Atoi(ctx.Param("port"))
	if err != nil {
		respond(ctx, codeBadRequest, "invalid port", nil)
		return
	}
	size, err := strconv.ParseInt(ctx.Query("size"), 10, 64)
	if err != nil {
		respond(ctx, codeBadRequest, "invalid size", nil)
		return
	}
	if err := c.WriteBlock(port, ctx.Param("id"), size); err != nil {
		respondErr(ctx, err)
		return
	}
	respond(ctx, cluster.CodeOK, "success", nil)
}

func (c *Cluster) handleDeleteBlock(ctx *gin.Context) {
	port, err := strconv.Atoi(ctx.Param("port"))
	if err != nil {
		respond(ctx, codeBadRequest, "invalid port", nil)
		return
	}
	if err := c.DeleteBlock(port, ctx.Param("id")); err != nil {
		respondErr(ctx, err)
		return
	}
	respond(ctx, cluster.CodeOK, "success", nil)
}
