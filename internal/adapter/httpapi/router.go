// Package httpapi wires every HTTP resource onto a single chi.Mux, in
// the style of the teacher's api.New (api/api.go): Recoverer/RequestID
// up front, structured request logging, CORS, then one Mount per
// resource.
package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"

	"github.com/devicelab/controller/internal/adapter/httpapi/analytics"
	"github.com/devicelab/controller/internal/adapter/httpapi/appium"
	"github.com/devicelab/controller/internal/adapter/httpapi/devices"
	"github.com/devicelab/controller/internal/adapter/httpapi/sessions"
	"github.com/devicelab/controller/internal/adapter/httpapi/system"
	"github.com/devicelab/controller/internal/adapter/realtimehub"
	"github.com/devicelab/controller/internal/core/service/registry"
	"github.com/devicelab/controller/internal/core/service/reservation"
	"github.com/devicelab/controller/internal/core/service/supervisor"
	"github.com/devicelab/controller/internal/platform/httplog"
	appmiddleware "github.com/devicelab/controller/internal/platform/middleware"
)

// Deps bundles every HTTP resource's constructor dependencies so New
// can wire an entire mux in one call without a long parameter list.
type Deps struct {
	Logger *slog.Logger

	Registry    *registry.Registry
	Reservation *reservation.Manager
	Supervisor  *supervisor.Supervisor
	Hub         *realtimehub.Hub

	UploadDir       string
	FrontendURL     string
	RateLimitPerMin int
	RateLimitBurst  int
}

// New builds the controller's top-level router.
func New(deps Deps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Timeout(30 * time.Second))
	r.Use(httplog.Middleware(deps.Logger))
	r.Use(render.SetContentType(render.ContentTypeJSON))
	r.Use(appmiddleware.SecurityHeaders)

	if deps.FrontendURL != "" {
		r.Use(corsConfig(deps.FrontendURL).Handler)
	}

	if deps.RateLimitPerMin > 0 {
		limiter := appmiddleware.NewRateLimiter(deps.RateLimitPerMin, deps.RateLimitBurst)
		limiter.SetLogger(appmiddleware.NewSecurityLogger(deps.Logger))
		r.Use(limiter.Middleware())
	}

	devicesHandler := devices.New(deps.Registry, deps.Reservation, deps.UploadDir)
	sessionsHandler := sessions.New(deps.Reservation)
	systemHandler := system.New(deps.Registry, deps.Supervisor, deps.Hub, deps.Reservation)
	appiumHandler := appium.New(deps.Supervisor, deps.Reservation)
	analyticsHandler := analytics.New(deps.Registry, deps.Reservation)

	r.Route("/devices", func(r chi.Router) {
		r.Get("/", devicesHandler.List)
		r.Post("/refresh", devicesHandler.Refresh)
		r.Route("/{deviceID}", func(r chi.Router) {
			devicesHandler.DeviceRoutes(r)
			appiumHandler.DeviceRoutes(r)
		})
	})
	r.Route("/sessions", sessionsHandler.Routes)
	r.Route("/system", systemHandler.Routes)
	r.Route("/appium", appiumHandler.ServerRoutes)
	r.Route("/analytics", analyticsHandler.Routes)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok"))
	})

	return r
}

func corsConfig(frontendURL string) *cors.Cors {
	return cors.New(cors.Options{
		AllowedOrigins:   []string{frontendURL},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	})
}
