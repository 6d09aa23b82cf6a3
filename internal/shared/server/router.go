package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ballet-compare/internal/analyses"
	"ballet-compare/internal/results"
	"ballet-compare/internal/services/health"
	"ballet-compare/internal/shared/config"
	"ballet-compare/internal/shared/metrics"
	"ballet-compare/internal/shared/server/middleware"
	"ballet-compare/internal/shared/server/respond"
	"ballet-compare/internal/web"
)

// submitGroup is the rate limit bucket shared by every route that starts an
// analysis, so the HTML form and the JSON API draw from one budget.
const submitGroup = "SUBMIT"

// RouterDeps carries the handlers the router mounts.
type RouterDeps struct {
	Config          config.Config
	WebHandler      *web.Handler
	ResultsHandler  *results.Handler
	AnalysisHandler *analyses.Handler
	Health          *health.Service
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(deps.Config.CORSAllowOrigin),
	)

	var submit []gin.HandlerFunc
	if deps.Config.RateLimitPerMinute > 0 {
		limiter := middleware.NewRateLimiter(nil)
		submit = append(submit, middleware.RateLimit(limiter, submitGroup, middleware.PerMinute(deps.Config.RateLimitPerMinute)))
	}

	healthSvc := deps.Health
	if healthSvc == nil {
		healthSvc = health.NewService(nil, deps.Config.ResultStore)
	}

	if deps.WebHandler != nil {
		deps.WebHandler.RegisterRoutes(r, submit...)
	}
	if deps.ResultsHandler != nil {
		deps.ResultsHandler.RegisterRoutes(r)
	}
	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api/v1")
	api.GET("/health", func(c *gin.Context) {
		status, ok := healthSvc.Status(c.Request.Context())
		if !ok {
			respond.JSON(c, http.StatusServiceUnavailable, status)
			return
		}
		respond.OK(c, status)
	})
	if deps.AnalysisHandler != nil {
		deps.AnalysisHandler.RegisterRoutes(api, submit...)
	}

	return r
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
