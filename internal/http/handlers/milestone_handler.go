package handlers

import (
	"github.com/freelance-marketplace/contract-workflow/internal/http/dto"
	"github.com/freelance-marketplace/contract-workflow/internal/middleware"
	"github.com/freelance-marketplace/contract-workflow/internal/models"
	"github.com/freelance-marketplace/contract-workflow/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type MilestoneHandler struct {
	workflow *services.WorkflowService
	query    *services.QueryService
	log      *zap.Logger
}

func NewMilestoneHandler(workflow *services.WorkflowService, query *services.QueryService, log *zap.Logger) *MilestoneHandler {
	return &MilestoneHandler{workflow: workflow, query: query, log: log}
}

func milestoneParams(c *fiber.Ctx) (contractID, milestoneID uuid.UUID, err error) {
	if contractID, err = paramID(c, "id"); err != nil {
		return
	}
	milestoneID, err = paramID(c, "mid")
	return
}

func (h *MilestoneHandler) ListMilestones(c *fiber.Ctx) error {
	contractID, err := paramID(c, "id")
	if err != nil {
		return respondError(c, h.log, err)
	}

	milestones, err := h.query.ListMilestones(c.UserContext(), contractID, middleware.GetUserID(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	if milestones == nil {
		milestones = []models.Milestone{}
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: milestones})
}

func (h *MilestoneHandler) CreateMilestone(c *fiber.Ctx) error {
	contractID, err := paramID(c, "id")
	if err != nil {
		return respondError(c, h.log, err)
	}

	var req dto.CreateMilestoneRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid_body", "invalid request")
	}

	m, err := h.workflow.CreateMilestone(c.UserContext(), contractID, middleware.GetUserID(c), services.CreateMilestoneInput{
		Title:       req.Title,
		Description: req.Description,
		Amount:      req.Amount,
		DueDate:     req.DueDate,
		OrderIndex:  req.OrderIndex,
	})
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: m})
}

func (h *MilestoneHandler) UpdateMilestone(c *fiber.Ctx) error {
	contractID, milestoneID, err := milestoneParams(c)
	if err != nil {
		return respondError(c, h.log, err)
	}

	var req dto.UpdateMilestoneRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid_body", "invalid request")
	}

	m, err := h.workflow.UpdateMilestone(c.UserContext(), contractID, milestoneID, middleware.GetUserID(c), models.MilestonePatch{
		Title:       req.Title,
		Description: req.Description,
		Amount:      req.Amount,
		DueDate:     req.DueDate,
		OrderIndex:  req.OrderIndex,

		ClearDescription: req.ClearDescription,
		ClearDueDate:     req.ClearDueDate,
	})
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: m})
}

func (h *MilestoneHandler) TransitionStatus(c *fiber.Ctx) error {
	contractID, milestoneID, err := milestoneParams(c)
	if err != nil {
		return respondError(c, h.log, err)
	}

	var req dto.TransitionMilestoneRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid_body", "invalid request")
	}
	if req.Status == "" {
		return badRequest(c, "invalid_status", "status is required")
	}

	m, err := h.workflow.TransitionMilestoneStatus(c.UserContext(), contractID, milestoneID, middleware.GetUserID(c), req.Status)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: m})
}

func (h *MilestoneHandler) DeleteMilestone(c *fiber.Ctx) error {
	contractID, milestoneID, err := milestoneParams(c)
	if err != nil {
		return respondError(c, h.log, err)
	}

	if err := h.workflow.DeleteMilestone(c.UserContext(), contractID, milestoneID, middleware.GetUserID(c)); err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true})
}

func (h *MilestoneHandler) RequestPayment(c *fiber.Ctx) error {
	contractID, milestoneID, err := milestoneParams(c)
	if err != nil {
		return respondError(c, h.log, err)
	}

	var req dto.RequestPaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid_body", "invalid request")
	}

	pr, err := h.workflow.RequestPayment(c.UserContext(), contractID, milestoneID, middleware.GetUserID(c), services.RequestPaymentInput{
		Amount:      req.Amount,
		Currency:    req.Currency,
		Description: req.Description,
	})
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: pr})
}
