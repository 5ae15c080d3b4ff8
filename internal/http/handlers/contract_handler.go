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

type ContractHandler struct {
	workflow *services.WorkflowService
	query    *services.QueryService
	log      *zap.Logger
}

func NewContractHandler(workflow *services.WorkflowService, query *services.QueryService, log *zap.Logger) *ContractHandler {
	return &ContractHandler{workflow: workflow, query: query, log: log}
}

func (h *ContractHandler) CreateContract(c *fiber.Ctx) error {
	var req dto.CreateContractRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid_body", "invalid request")
	}

	freelancerID, err := uuid.Parse(req.FreelancerID)
	if err != nil {
		return badRequest(c, "invalid_freelancer_id", "invalid freelancer_id")
	}

	actorID := middleware.GetUserID(c)
	contract, err := h.workflow.CreateContract(c.UserContext(), actorID, services.CreateContractInput{
		ProjectID:    req.ProjectID,
		ProposalID:   req.ProposalID,
		ClientID:     actorID,
		FreelancerID: freelancerID,
		TotalAmount:  req.TotalAmount,
		Currency:     req.Currency,
		StartDate:    req.StartDate,
		EndDate:      req.EndDate,
	})
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: contract})
}

func (h *ContractHandler) ListContracts(c *fiber.Ctx) error {
	limit, offset := pageParams(c)
	contracts, err := h.query.ListContracts(c.UserContext(), middleware.GetUserID(c), services.ContractQuery{
		Role:   c.Query("role"),
		Status: c.Query("status"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		return respondError(c, h.log, err)
	}
	if contracts == nil {
		contracts = []models.Contract{}
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.PageResponse{Items: contracts, Limit: limit, Offset: offset}})
}

func (h *ContractHandler) GetContract(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, h.log, err)
	}

	contract, err := h.query.GetContract(c.UserContext(), id, middleware.GetUserID(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: contract})
}

func (h *ContractHandler) GetOverview(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, h.log, err)
	}

	overview, err := h.query.ContractOverview(c.UserContext(), id, middleware.GetUserID(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: overview})
}

func (h *ContractHandler) GetHistory(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, h.log, err)
	}

	limit, offset := pageParams(c)
	history, err := h.query.ContractHistory(c.UserContext(), id, middleware.GetUserID(c), limit, offset)
	if err != nil {
		return respondError(c, h.log, err)
	}
	if history == nil {
		history = []models.AuditLog{}
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.PageResponse{Items: history, Limit: limit, Offset: offset}})
}

func (h *ContractHandler) GetActions(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, h.log, err)
	}

	actions, err := h.query.AvailableActions(c.UserContext(), id, middleware.GetUserID(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: actions})
}

func (h *ContractHandler) AcceptContract(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, h.log, err)
	}

	contract, err := h.workflow.AcceptContract(c.UserContext(), id, middleware.GetUserID(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: contract})
}

func (h *ContractHandler) RejectContract(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, h.log, err)
	}

	contract, err := h.workflow.RejectContract(c.UserContext(), id, middleware.GetUserID(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: contract})
}

func (h *ContractHandler) CancelContract(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, h.log, err)
	}

	var req dto.CancelContractRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid_body", "invalid request")
		}
	}

	contract, err := h.workflow.CancelContract(c.UserContext(), id, middleware.GetUserID(c), req.Reason)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: contract})
}

func (h *ContractHandler) CompleteContract(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, h.log, err)
	}

	contract, err := h.workflow.CompleteContract(c.UserContext(), id, middleware.GetUserID(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: contract})
}
