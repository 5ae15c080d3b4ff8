package handlers

import (
	"github.com/freelance-marketplace/contract-workflow/internal/http/dto"
	"github.com/freelance-marketplace/contract-workflow/internal/middleware"
	"github.com/freelance-marketplace/contract-workflow/internal/models"
	"github.com/freelance-marketplace/contract-workflow/internal/services"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type PaymentRequestHandler struct {
	workflow *services.WorkflowService
	query    *services.QueryService
	log      *zap.Logger
}

func NewPaymentRequestHandler(workflow *services.WorkflowService, query *services.QueryService, log *zap.Logger) *PaymentRequestHandler {
	return &PaymentRequestHandler{workflow: workflow, query: query, log: log}
}

func (h *PaymentRequestHandler) ListPaymentRequests(c *fiber.Ctx) error {
	contractID, err := optionalUUIDQuery(c, "contract_id")
	if err != nil {
		return respondError(c, h.log, err)
	}
	milestoneID, err := optionalUUIDQuery(c, "milestone_id")
	if err != nil {
		return respondError(c, h.log, err)
	}

	limit, offset := pageParams(c)
	requests, err := h.query.ListPaymentRequests(c.UserContext(), middleware.GetUserID(c), services.PaymentRequestQuery{
		ContractID:  contractID,
		MilestoneID: milestoneID,
		Status:      c.Query("status"),
		Limit:       limit,
		Offset:      offset,
	})
	if err != nil {
		return respondError(c, h.log, err)
	}
	if requests == nil {
		requests = []models.PaymentRequest{}
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.PageResponse{Items: requests, Limit: limit, Offset: offset}})
}

func (h *PaymentRequestHandler) GetPaymentRequest(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, h.log, err)
	}

	pr, err := h.query.GetPaymentRequest(c.UserContext(), id, middleware.GetUserID(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: pr})
}

func (h *PaymentRequestHandler) Approve(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, h.log, err)
	}

	pr, err := h.workflow.ApprovePaymentRequest(c.UserContext(), id, middleware.GetUserID(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: pr})
}

func (h *PaymentRequestHandler) Reject(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, h.log, err)
	}

	var req dto.RejectPaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid_body", "invalid request")
	}

	pr, err := h.workflow.RejectPaymentRequest(c.UserContext(), id, middleware.GetUserID(c), req.Reason)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: pr})
}

func (h *PaymentRequestHandler) Process(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, h.log, err)
	}

	var req dto.ProcessPaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid_body", "invalid request")
	}

	payment, err := h.workflow.ProcessPayment(c.UserContext(), id, middleware.GetUserID(c), services.ProcessPaymentInput{
		PaymentMethod:        req.PaymentMethod,
		GatewayTransactionID: req.GatewayTransactionID,
	})
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: payment})
}

func (h *PaymentRequestHandler) ListPayments(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, h.log, err)
	}

	payments, err := h.query.ListPayments(c.UserContext(), id, middleware.GetUserID(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	if payments == nil {
		payments = []models.Payment{}
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: payments})
}
