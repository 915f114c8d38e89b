package console

import (
	"context"
	"net/http"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/cockroachdb/errors"
	"github.com/coreos/pkg/capnslog"
	"github.com/gin-gonic/gin"

	"github.com/dreamware/clusterctl/internal/cluster"
	"github.com/dreamware/clusterctl/internal/orchestrator"
)

var plog = capnslog.NewPackageLogger("github.com/dreamware/clusterctl", "console")

// Server exposes one orchestrator session over HTTP.
type Server struct {
	session  *orchestrator.Session
	activity *ActivityLog
	router   *gin.Engine
}

// New builds the API for session. activity may be nil; it should be the
// listener the session was created with.
func New(session *orchestrator.Session, activity *ActivityLog) *Server {
	s := &Server{session: session, activity: activity}
	if s.activity == nil {
		s.activity = NewActivityLog(0)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/health", func(ctx *gin.Context) { ctx.Status(http.StatusOK) })
	router.GET("/metrics", s.handleMetrics)

	api := router.Group("/api")
	api.GET("/view", s.handleView)
	api.POST("/refresh", s.handleRefresh)
	api.GET("/health", s.handleHealth)
	api.POST("/nodes/:class/:id/:action", s.handleExecute)
	api.POST("/batch/:class/:action", s.handleBatch)
	api.GET("/inflight", s.handleInFlight)
	api.GET("/activity", s.handleActivity)
	api.GET("/data/:id", s.handleDataNode)

	s.router = router
	return s
}

// Handler returns the HTTP handler of the API.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves the API on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		plog.Infof("console listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		if err == nil {
			return nil
		}
		return errors.Wrapf(err, "listen on %s", addr)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "shutdown")
	}
	plog.Infof("console stopped")
	return nil
}

type errorResponse struct {
	Error string `json:"error"`
}

func abort(ctx *gin.Context, status int, err error) {
	ctx.AbortWithStatusJSON(status, errorResponse{Error: err.Error()})
}

// statusOf maps an orchestrator or remote error to an HTTP status.
func statusOf(err error) int {
	var remote *cluster.RemoteError
	switch {
	case errors.Is(err, orchestrator.ErrDuplicateOperation):
		return http.StatusConflict
	case errors.Is(err, orchestrator.ErrUnknownNode), errors.Is(err, orchestrator.ErrUnsupported):
		return http.StatusBadRequest
	case errors.Is(err, orchestrator.ErrNodeOffline):
		return http.StatusConflict
	case errors.Is(err, cluster.ErrTransport), errors.Is(err, cluster.ErrDecode), errors.As(err, &remote):
		return http.StatusBadGateway
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleMetrics(ctx *gin.Context) {
	ctx.Header("Content-Type", "text/plain; version=0.0.4")
	ctx.Status(http.StatusOK)
	s.session.WriteMetrics(ctx.Writer)
	metrics.WritePrometheus(ctx.Writer, true)
}

func (s *Server) handleView(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, s.session.View())
}

// handleRefresh polls immediately. A failed poll is still applied, so the
// response is the new view either way and carries the poll error.
func (s *Server) handleRefresh(ctx *gin.Context) {
	view, err := s.session.Refresh(ctx.Request.Context())
	if err != nil {
		plog.Warningf("refresh: %v", err)
	}
	ctx.JSON(http.StatusOK, view)
}

func (s *Server) handleHealth(ctx *gin.Context) {
	msg, err := s.session.Health(ctx.Request.Context())
	if err != nil {
		abort(ctx, statusOf(err), err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"message": msg})
}

func (s *Server) handleExecute(ctx *gin.Context) {
	class, err := cluster.ParseRoleClass(ctx.Param("class"))
	if err != nil {
		abort(ctx, http.StatusBadRequest, err)
		return
	}
	action, err := cluster.ParseAction(ctx.Param("action"))
	if err != nil {
		abort(ctx, http.StatusBadRequest, err)
		return
	}

	out, err := s.session.Execute(ctx.Request.Context(), class, action, ctx.Param("id"))
	if err != nil {
		abort(ctx, statusOf(err), err)
		return
	}
	ctx.JSON(http.StatusOK, out)
}

// handleBatch runs a batch. The onFailure query parameter answers the
// continue-or-abort question of sequential starts up front, since an HTTP
// caller cannot be prompted mid-request; it defaults to abort.
func (s *Server) handleBatch(ctx *gin.Context) {
	class, err := cluster.ParseRoleClass(ctx.Param("class"))
	if err != nil {
		abort(ctx, http.StatusBadRequest, err)
		return
	}
	action, err := cluster.ParseAction(ctx.Param("action"))
	if err != nil {
		abort(ctx, http.StatusBadRequest, err)
		return
	}
	opts := orchestrator.BatchOptions{LogicalID: ctx.Query("id")}
	switch ctx.DefaultQuery("onFailure", "abort") {
	case "continue":
		opts.Confirm = orchestrator.AlwaysContinue
	case "abort":
	default:
		abort(ctx, http.StatusBadRequest, errors.Newf("onFailure must be continue or abort"))
		return
	}

	res, err := s.session.RunBatch(ctx.Request.Context(), class, action, opts)
	if res == nil {
		abort(ctx, statusOf(err), err)
		return
	}
	if err != nil && !errors.Is(err, orchestrator.ErrBatchAborted) {
		plog.Warningf("batch %s: %v", res.ID, err)
	}
	ctx.JSON(http.StatusOK, res)
}

func (s *Server) handleInFlight(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"operations": s.session.InFlight()})
}

func (s *Server) handleActivity(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"operations": s.activity.Recent()})
}

func (s *Server) handleDataNode(ctx *gin.Context) {
	detail, err := s.session.DataNodeDetail(ctx.Param("id"))
	if err != nil {
		status := statusOf(err)
		if errors.Is(err, orchestrator.ErrUnknownNode) {
			status = http.StatusNotFound
		}
		abort(ctx, status, err)
		return
	}
	ctx.JSON(http.StatusOK, detail)
}
