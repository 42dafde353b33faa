// Package httpapi implements the orchestration core's external surface
// (§6.1): pipeline/task submission, listing, cancellation, resume, and
// the observer WebSocket. It is grounded on the teacher's
// internal/delivery/server/http.RouterDeps/RouterConfig split
// (router_deps.go) — a single struct of service dependencies plus a
// config struct consumed by one NewRouter constructor — generalized
// from the teacher's stdlib http.ServeMux onto gin, since SPEC_FULL.md
// §11 commits this repo's HTTP surface to the teacher's go.mod
// gin-gonic/gin + gin-contrib/cors dependencies, which the teacher
// itself carries but never exercises from source.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/yezhh-pz/MediaFlow-sub000/internal/apperrors"
	"github.com/yezhh-pz/MediaFlow-sub000/internal/background"
	"github.com/yezhh-pz/MediaFlow-sub000/internal/logging"
	"github.com/yezhh-pz/MediaFlow-sub000/internal/notifier"
	"github.com/yezhh-pz/MediaFlow-sub000/internal/pipeline"
	"github.com/yezhh-pz/MediaFlow-sub000/internal/registry"
	"github.com/yezhh-pz/MediaFlow-sub000/internal/taskmanager"
)

// Deps holds every collaborator the router dispatches into, mirroring
// the teacher's RouterDeps.
type Deps struct {
	Manager    *taskmanager.Manager
	Notifier   *notifier.Notifier
	Pipeline   *pipeline.Runner
	Background *background.Runner
	Handlers   *registry.HandlerRegistry
	Logger     logging.Logger
}

// Config holds router-level configuration, mirroring the teacher's
// RouterConfig.
type Config struct {
	AllowedOrigins []string
}

// NewRouter builds the gin.Engine serving §6.1's full external surface.
func NewRouter(deps Deps, cfg Config) http.Handler {
	logger := logging.OrNop(deps.Logger)

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestLogger(logger))

	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "DELETE", "PUT", "OPTIONS"}
	engine.Use(cors.New(corsConfig))

	h := &handlers{deps: deps, logger: logger}

	engine.GET("/healthz", h.handleHealthz)

	engine.POST("/pipeline/run", h.handleSubmitPipeline)
	engine.POST("/submit/:type", h.handleSubmitTyped)
	engine.GET("/tasks", h.handleListTasks)
	engine.GET("/tasks/:id", h.handleGetTask)
	engine.POST("/tasks/cancel-all", h.handleCancelAll)
	engine.POST("/tasks/:id/resume", h.handleResume)
	engine.DELETE("/tasks/:id", h.handleDeleteTask)
	engine.DELETE("/tasks", h.handleDeleteAll)

	engine.GET("/ws/tasks", h.handleObserve)

	return engine
}

func requestLogger(logger logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("httpapi: %s %s -> %d (%s)", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}

func writeError(c *gin.Context, err error) {
	switch {
	case apperrors.IsValidation(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case apperrors.IsNotFound(err):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
