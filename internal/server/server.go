package server

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"wellsite/internal/booking"
	"wellsite/internal/offline"
)

type Options struct {
	// RatePerMinute and Burst bound booking API calls per client IP. Zero
	// RatePerMinute disables the limit.
	RatePerMinute int
	Burst         int
	Log           *zap.Logger
}

// Server exposes the booking API and hands every other request to the
// current cache router.
type Server struct {
	engine  *gin.Engine
	booking *booking.SessionService
	router  atomic.Pointer[offline.Router]
	log     *zap.Logger
}

func New(svc *booking.SessionService, r *offline.Router, opts Options) *Server {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{booking: svc, log: log}
	s.router.Store(r)

	e := gin.New()
	// Paths belong to the site; never rewrite them.
	e.RedirectTrailingSlash = false
	e.RedirectFixedPath = false
	e.Use(recovery(log), accessLog(log))

	e.GET("/healthz", s.health)

	api := e.Group("/api/booking")
	if opts.RatePerMinute > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		api.Use(rateLimit(newIPLimiter(rate.Every(time.Minute/time.Duration(opts.RatePerMinute)), burst), log))
	}
	{
		api.GET("/catalog", s.catalog)
		api.POST("/sessions", s.startSession)
		api.GET("/sessions/:id", s.getSession)
		api.PATCH("/sessions/:id", s.updateSession)
		api.DELETE("/sessions/:id", s.cancelSession)
		api.POST("/sessions/:id/advance", s.advance)
		api.POST("/sessions/:id/retreat", s.retreat)
	}

	e.NoRoute(s.site)
	s.engine = e
	return s
}

func (s *Server) Handler() http.Handler { return s.engine }

// SwapRouter installs r for subsequent requests and returns the previous
// router. In-flight requests finish on the router they started with.
func (s *Server) SwapRouter(r *offline.Router) *offline.Router {
	return s.router.Swap(r)
}

func (s *Server) Router() *offline.Router { return s.router.Load() }

func (s *Server) site(c *gin.Context) {
	r := s.router.Load()
	if r == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "unavailable", Message: "site is starting"})
		return
	}
	r.Handler().ServeHTTP(c.Writer, c.Request)
}

func (s *Server) health(c *gin.Context) {
	out := gin.H{"status": "ok"}
	if r := s.router.Load(); r != nil {
		out["cacheState"] = r.State().String()
		out["cacheVersion"] = r.Version()
	}
	c.JSON(http.StatusOK, out)
}
