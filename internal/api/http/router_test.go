package http

import (
	nethttp "net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/property-service/internal/api/http/handlers"
	"github.com/spec-kit/property-service/internal/auth"
	"github.com/spec-kit/property-service/internal/domain"
	"github.com/spec-kit/property-service/internal/observability"
	"github.com/spec-kit/property-service/internal/repository"
	"github.com/spec-kit/property-service/internal/service"
	"github.com/spec-kit/property-service/internal/worker"
)

func newRouterApp(t *testing.T, simpleRoutes []string) (*fiber.App, *auth.TokenManager, error) {
	t.Helper()
	logger := zap.NewNop()
	metrics := observability.NewMetrics()

	// A repository without a pool fails every acquire, which exercises the store policy.
	sessions := repository.NewSessionRepository(nil)
	tokens := auth.NewTokenManager(auth.TokenConfig{
		Secret:   "router-secret-0123456789abcdef",
		Issuer:   "property-service",
		Audience: "property-api",
	})
	validator, err := auth.NewSessionValidator(sessions, auth.ValidatorConfig{
		Policy:  auth.StoreFailClosed,
		Timeout: 100 * time.Millisecond,
	}, logger, nil)
	require.NoError(t, err)

	reaper, err := worker.NewSessionReaper(worker.ReaperDependencies{Store: sessions}, worker.ReaperConfig{
		Interval:  time.Hour,
		Retention: 30 * 24 * time.Hour,
	})
	require.NoError(t, err)

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(logger, metrics, false)})
	RegisterMiddlewares(app, logger, metrics, 0)
	err = RegisterRoutes(app, RouteConfig{
		Gate: auth.NewGate(auth.GateDependencies{
			Tokens:                 tokens,
			Sessions:               validator,
			Logger:                 logger,
			Recorder:               metrics,
			ReducedAssuranceRoutes: simpleRoutes,
		}),
		Health:   handlers.NewHealthHandler("property-service", "test"),
		Sessions: handlers.NewSessionHandler(service.NewSessionService(sessions, nil, time.Second)),
		Admin:    handlers.NewAdminHandler(reaper),
		Metrics:  metrics,
	})
	return app, tokens, err
}

func TestRegisterRoutesRequiresAllowlistForSimpleRoutes(t *testing.T) {
	_, _, err := newRouterApp(t, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), RouteWhoAmI)
}

func TestRegisteredRoutes(t *testing.T) {
	app, tokens, err := newRouterApp(t, []string{RouteWhoAmI})
	require.NoError(t, err)

	token, _, err := tokens.GenerateToken(21, domain.RoleTenant)
	require.NoError(t, err)

	request := func(method, path string) int {
		req := httptest.NewRequest(method, path, nil)
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		return resp.StatusCode
	}

	assert.Equal(t, nethttp.StatusOK, request(nethttp.MethodGet, "/api/whoami"))
	assert.Equal(t, nethttp.StatusServiceUnavailable, request(nethttp.MethodGet, "/api/me"))
	assert.Equal(t, nethttp.StatusServiceUnavailable, request(nethttp.MethodPost, "/auth/logout"))
	assert.Equal(t, nethttp.StatusServiceUnavailable, request(nethttp.MethodPost, "/api/admin/sessions/sweep"))
	assert.Equal(t, nethttp.StatusOK, request(nethttp.MethodGet, "/health/live"))
	assert.Equal(t, nethttp.StatusOK, request(nethttp.MethodGet, "/metrics"))

	resp, err := app.Test(httptest.NewRequest(nethttp.MethodGet, "/api/me", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, nethttp.StatusUnauthorized, resp.StatusCode)
}
