package handlers

import (
	"github.com/freelance-marketplace/contract-workflow/internal/http/dto"
	"github.com/freelance-marketplace/contract-workflow/internal/models"
	"github.com/gofiber/fiber/v2"
)

// MetaHandler exposes the status machines so clients can render them
// without hardcoding.
type MetaHandler struct{}

func NewMetaHandler() *MetaHandler {
	return &MetaHandler{}
}

type MetaStateMachine struct {
	Statuses    []string            `json:"statuses"`
	Transitions map[string][]string `json:"transitions"`
}

var (
	contractStatuses = []string{
		models.ContractStatusPending,
		models.ContractStatusActive,
		models.ContractStatusRejected,
		models.ContractStatusCompleted,
		models.ContractStatusCancelled,
	}
	paymentRequestStatuses = []string{
		models.PaymentRequestStatusPending,
		models.PaymentRequestStatusApproved,
		models.PaymentRequestStatusRejected,
	}
)

func (h *MetaHandler) GetStatuses(c *fiber.Ctx) error {
	return c.JSON(dto.SuccessResponse{OK: true, Data: map[string]MetaStateMachine{
		"contract": {
			Statuses:    contractStatuses,
			Transitions: models.ValidContractTransitions,
		},
		"milestone": {
			Statuses:    models.MilestoneStatusOrder,
			Transitions: models.ValidMilestoneTransitions,
		},
		"payment_request": {
			Statuses:    paymentRequestStatuses,
			Transitions: models.ValidPaymentRequestTransitions,
		},
	}})
}
