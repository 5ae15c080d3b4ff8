package handlers

import (
	"github.com/freelance-marketplace/contract-workflow/internal/http/dto"
	"github.com/freelance-marketplace/contract-workflow/internal/middleware"
	"github.com/freelance-marketplace/contract-workflow/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type UserHandler struct {
	users *services.UserService
	log   *zap.Logger
}

func NewUserHandler(users *services.UserService, log *zap.Logger) *UserHandler {
	return &UserHandler{users: users, log: log}
}

func (h *UserHandler) GetMe(c *fiber.Ctx) error {
	user, err := h.users.GetUser(c.UserContext(), middleware.GetUserID(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: user})
}

// SyncUser is called by the identity provider, not by end users.
func (h *UserHandler) SyncUser(c *fiber.Ctx) error {
	var req dto.SyncUserRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid_body", "invalid request")
	}

	id, err := uuid.Parse(req.ID)
	if err != nil {
		return badRequest(c, "invalid_user_id", "invalid id")
	}

	user, err := h.users.SyncUser(c.UserContext(), services.SyncUserInput{
		ID:          id,
		Email:       req.Email,
		DisplayName: req.DisplayName,
		Role:        req.Role,
		Deleted:     req.Deleted,
		DeletedAt:   req.DeletedAt,
	})
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: user})
}
