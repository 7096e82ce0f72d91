package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/spec-kit/property-service/internal/api/http/handlers"
	"github.com/spec-kit/property-service/internal/auth"
	"github.com/spec-kit/property-service/internal/domain"
	"github.com/spec-kit/property-service/internal/observability"
)

// Route names used by the gate for metrics, logs and the reduced-assurance allowlist.
const (
	RouteLogout = "logout"
	RouteMe     = "me"
	RouteWhoAmI = "whoami"
	RouteSweep  = "admin.sessions.sweep"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Gate     *auth.Gate
	Health   *handlers.HealthHandler
	Sessions *handlers.SessionHandler
	Admin    *handlers.AdminHandler
	Metrics  *observability.Metrics
}

// RegisterRoutes wires HTTP routes. It fails if any route's protection is misdeclared.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) error {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics.Handler()))

	logout, err := cfg.Gate.Protect(auth.Route{Name: RouteLogout, Mode: auth.ModeFull})
	if err != nil {
		return err
	}
	me, err := cfg.Gate.Protect(auth.Route{Name: RouteMe, Mode: auth.ModeFull})
	if err != nil {
		return err
	}
	whoami, err := cfg.Gate.Protect(auth.Route{Name: RouteWhoAmI, Mode: auth.ModeSimple})
	if err != nil {
		return err
	}
	sweep, err := cfg.Gate.Protect(auth.Route{
		Name:  RouteSweep,
		Mode:  auth.ModeFull,
		Roles: []domain.Role{domain.RoleAdmin},
	})
	if err != nil {
		return err
	}

	authGroup := app.Group("/auth")
	authGroup.Post("/logout", logout, cfg.Sessions.Logout)

	api := app.Group("/api")
	api.Get("/me", me, cfg.Sessions.Me)
	api.Get("/whoami", whoami, cfg.Sessions.WhoAmI)
	api.Post("/admin/sessions/sweep", sweep, cfg.Admin.Sweep)
	return nil
}
