package routes

import (
	"fmt"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"

	"coffeefarm/auth"
	"coffeefarm/dashboard"
	"coffeefarm/metrics"
	"coffeefarm/middleware"
	"coffeefarm/ratelim"
	"coffeefarm/records"
	"coffeefarm/websock"
)

// Deps is everything the routes hand to their handlers.
type Deps struct {
	Auth           *auth.Service
	Records        *records.Deps
	Dashboard      *dashboard.Handlers
	Hub            *websock.Hub
	RateLimiter    *ratelim.RateLimiter
	Metrics        *metrics.Metrics
	AllowedOrigins []string
	Logger         *zap.Logger
}

// Index is a simple health check handler.
func Index(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	fmt.Fprint(w, "200")
}

func AddUtilityRoutes(router *httprouter.Router, d *Deps) {
	router.GET("/health", Index)
	router.Handler(http.MethodGet, "/metrics", d.Metrics.Handler())
}

func AddAuthRoutes(router *httprouter.Router, d *Deps) {
	h := &auth.Handlers{Service: d.Auth, Logger: d.Logger}
	router.POST("/api/auth/anonymous", d.RateLimiter.Limit(h.Anonymous))
	router.POST("/api/auth/token", d.RateLimiter.Limit(h.Token))
	router.POST("/api/auth/refresh", d.RateLimiter.Limit(h.Refresh))
	router.POST("/api/auth/logout", h.Logout)
	router.GET("/api/auth/me", middleware.Authenticate(d.Auth)(h.Me))
}

func AddRecordRoutes(router *httprouter.Router, d *Deps) {
	authed := middleware.Authenticate(d.Auth)
	records.Register(router, d.Records, func(next httprouter.Handle) httprouter.Handle {
		return authed(d.RateLimiter.Limit(next))
	})
}

func AddDashboardRoutes(router *httprouter.Router, d *Deps) {
	dashboard.Register(router, d.Dashboard, middleware.Authenticate(d.Auth))
}

func AddSocketRoutes(router *httprouter.Router, d *Deps) {
	router.GET("/ws", middleware.Authenticate(d.Auth)(websock.Handler(d.Hub, d.Records.States, d.AllowedOrigins, d.Logger)))
}

// RoutesWrapper builds the router with every route.
func RoutesWrapper(d *Deps) *httprouter.Router {
	router := httprouter.New()
	AddUtilityRoutes(router, d)
	AddAuthRoutes(router, d)
	AddRecordRoutes(router, d)
	AddDashboardRoutes(router, d)
	AddSocketRoutes(router, d)
	return router
}
