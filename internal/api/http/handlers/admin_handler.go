package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/property-service/internal/api/dto"
	"github.com/spec-kit/property-service/internal/worker"
	apperrors "github.com/spec-kit/property-service/pkg/util"
)

// Sweeper runs one reaper pass. worker.SessionReaper implements it.
type Sweeper interface {
	RunOnce(ctx context.Context) (worker.SweepResult, error)
}

// AdminHandler exposes operator endpoints.
type AdminHandler struct {
	sweeper Sweeper
}

// NewAdminHandler constructs handler.
func NewAdminHandler(sweeper Sweeper) *AdminHandler {
	return &AdminHandler{sweeper: sweeper}
}

// Sweep handles POST /api/admin/sessions/sweep.
func (h *AdminHandler) Sweep(c *fiber.Ctx) error {
	result, err := h.sweeper.RunOnce(c.UserContext())
	if err != nil {
		return apperrors.NewDomainError("SWEEP_FAILED", "Session sweep failed", fiber.StatusInternalServerError, err)
	}
	return c.JSON(fiber.Map{"data": dto.SweepResponse{
		Deactivated: result.Deactivated,
		Deleted:     result.Deleted,
	}})
}
