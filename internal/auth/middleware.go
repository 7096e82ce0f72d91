package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/property-service/internal/domain"
)

const principalKey = "auth_principal"

type principalCtxKey struct{}

// AssuranceMode selects how much of the pipeline a route runs.
type AssuranceMode int

const (
	// ModeFull verifies the token and validates the server-side session.
	ModeFull AssuranceMode = iota
	// ModeSimple verifies the token only. Routes must be allowlisted to use it.
	ModeSimple
)

func (m AssuranceMode) String() string {
	if m == ModeSimple {
		return "simple"
	}
	return "full"
}

// Principal represents the authenticated caller.
type Principal struct {
	UserID int64
	Role   domain.Role
	Claims *Claims
	Mode   AssuranceMode
	// SessionToken is set in full mode only.
	SessionToken string
	// Degraded marks a full-mode principal authorized on claims because the store failed open.
	Degraded bool
}

// Route declares how a route is protected.
type Route struct {
	Name  string
	Mode  AssuranceMode
	Roles []domain.Role
}

// Recorder receives gate outcomes. observability.Metrics implements it.
type Recorder interface {
	RecordAuthorized(route, mode string, degraded bool)
	RecordRejection(route, kind string)
}

// Gate wires token verification, session validation and the role gate into Fiber.
type Gate struct {
	tokens       *TokenManager
	sessions     *SessionValidator
	simpleRoutes map[string]struct{}
	logger       *zap.Logger
	recorder     Recorder
}

// GateDependencies bundles collaborators for NewGate.
type GateDependencies struct {
	Tokens   *TokenManager
	Sessions *SessionValidator
	Logger   *zap.Logger
	Recorder Recorder
	// ReducedAssuranceRoutes names the only routes allowed to use ModeSimple.
	ReducedAssuranceRoutes []string
}

// NewGate constructs the gate.
func NewGate(deps GateDependencies) *Gate {
	simple := make(map[string]struct{}, len(deps.ReducedAssuranceRoutes))
	for _, name := range deps.ReducedAssuranceRoutes {
		simple[name] = struct{}{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{
		tokens:       deps.Tokens,
		sessions:     deps.Sessions,
		simpleRoutes: simple,
		logger:       logger,
		recorder:     deps.Recorder,
	}
}

// Protect returns the handler enforcing route. Declaration errors are reported at startup.
func (g *Gate) Protect(route Route) (fiber.Handler, error) {
	if route.Name == "" {
		return nil, errors.New("route name is required")
	}
	if g.tokens == nil {
		return nil, errors.New("token manager is required")
	}
	switch route.Mode {
	case ModeFull:
		if g.sessions == nil {
			return nil, fmt.Errorf("route %q: full mode requires a session validator", route.Name)
		}
	case ModeSimple:
		if _, ok := g.simpleRoutes[route.Name]; !ok {
			return nil, fmt.Errorf("route %q is not permitted to use reduced-assurance verification", route.Name)
		}
	default:
		return nil, fmt.Errorf("route %q: unknown assurance mode %d", route.Name, route.Mode)
	}
	for _, role := range route.Roles {
		if !role.Valid() {
			return nil, fmt.Errorf("route %q: unknown role %q", route.Name, role)
		}
	}

	allowed := NewRoleSet(route.Roles...)
	restricted := len(route.Roles) > 0

	return func(c *fiber.Ctx) error {
		principal, err := g.authenticate(c.UserContext(), c.Get(fiber.HeaderAuthorization), route.Mode)
		if err == nil && restricted {
			err = Authorize(principal.Role, allowed)
		}
		if err != nil {
			g.reject(route, err)
			return toDomainError(err)
		}

		if g.recorder != nil {
			g.recorder.RecordAuthorized(route.Name, route.Mode.String(), principal.Degraded)
		}
		SetPrincipal(c, principal)
		return c.Next()
	}, nil
}

// MustProtect is like Protect but panics on an invalid declaration.
func (g *Gate) MustProtect(route Route) fiber.Handler {
	handler, err := g.Protect(route)
	if err != nil {
		panic(err)
	}
	return handler
}

func (g *Gate) authenticate(ctx context.Context, header string, mode AssuranceMode) (*Principal, error) {
	verified, err := g.tokens.Verify(header)
	if err != nil {
		return nil, err
	}

	principal := &Principal{
		UserID: verified.Claims.UserID(),
		Claims: verified.Claims,
		Mode:   mode,
	}
	if mode == ModeSimple {
		principal.Role = claimRole(verified.Claims)
		return principal, nil
	}

	grant, err := g.sessions.Validate(ctx, verified.Raw, principal.UserID)
	if err != nil {
		return nil, err
	}
	principal.SessionToken = verified.Raw
	if grant.Bypassed {
		principal.Role = claimRole(verified.Claims)
		principal.Degraded = true
		return principal, nil
	}
	principal.Role = grant.Role
	return principal, nil
}

func (g *Gate) reject(route Route, err error) {
	kind := RejectionKind(err)
	if g.recorder != nil {
		g.recorder.RecordRejection(route.Name, kind)
	}
	g.logger.Debug("request rejected",
		zap.String("route", route.Name),
		zap.String("mode", route.Mode.String()),
		zap.String("kind", kind),
		zap.Error(err))
}

// claimRole reads the optional role claim; unknown values yield no role.
func claimRole(claims *Claims) domain.Role {
	role, _ := domain.ParseRole(claims.Role)
	return role
}

// SetPrincipal attaches principal to both the Fiber locals and the request context.
func SetPrincipal(c *fiber.Ctx, principal *Principal) {
	c.Locals(principalKey, principal)
	c.SetUserContext(WithPrincipal(c.UserContext(), principal))
}

// PrincipalFromContext retrieves the authenticated entity.
func PrincipalFromContext(c *fiber.Ctx) (*Principal, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	principal, ok := val.(*Principal)
	return principal, ok
}

// WithPrincipal stores principal in ctx for code outside the Fiber handler chain.
func WithPrincipal(ctx context.Context, principal *Principal) context.Context {
	return context.WithValue(ctx, principalCtxKey{}, principal)
}

// PrincipalFrom retrieves the principal stored by WithPrincipal.
func PrincipalFrom(ctx context.Context) (*Principal, bool) {
	principal, ok := ctx.Value(principalCtxKey{}).(*Principal)
	return principal, ok && principal != nil
}
