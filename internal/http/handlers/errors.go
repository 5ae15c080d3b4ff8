package handlers

import (
	"strconv"

	"github.com/freelance-marketplace/contract-workflow/internal/http/dto"
	"github.com/freelance-marketplace/contract-workflow/internal/middleware"
	"github.com/freelance-marketplace/contract-workflow/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

var kindStatus = map[string]int{
	services.KindForbiddenActor:  fiber.StatusForbidden,
	services.KindInvalidState:    fiber.StatusConflict,
	services.KindNotFound:        fiber.StatusNotFound,
	services.KindAlreadyResolved: fiber.StatusConflict,
	services.KindValidation:      fiber.StatusBadRequest,
}

// respondError writes the error envelope. Anything that is not a business
// error is logged and hidden behind a generic 500.
func respondError(c *fiber.Ctx, log *zap.Logger, err error) error {
	kind := services.KindOf(err)
	status, ok := kindStatus[kind]
	if !ok {
		log.Error("request failed",
			zap.String("request_id", middleware.GetRequestID(c)),
			zap.String("path", c.Path()),
			zap.Error(err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error:     "internal error",
			Code:      "internal",
			RequestID: middleware.GetRequestID(c),
		})
	}
	return c.Status(status).JSON(dto.ErrorResponse{
		Error:     err.Error(),
		Code:      services.CodeOf(err),
		Kind:      kind,
		RequestID: middleware.GetRequestID(c),
	})
}

func badRequest(c *fiber.Ctx, code, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
		Error:     msg,
		Code:      code,
		Kind:      services.KindValidation,
		RequestID: middleware.GetRequestID(c),
	})
}

func invalidParam(name string) error {
	return &services.Error{Kind: services.KindValidation, Code: "invalid_" + name, Message: "invalid " + name}
}

func paramID(c *fiber.Ctx, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params(name))
	if err != nil {
		return uuid.Nil, invalidParam(name)
	}
	return id, nil
}

func pageParams(c *fiber.Ctx) (limit, offset int) {
	limit = defaultPageSize
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if v := c.Query("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}

func optionalUUIDQuery(c *fiber.Ctx, name string) (*uuid.UUID, error) {
	v := c.Query(name)
	if v == "" {
		return nil, nil
	}
	id, err := uuid.Parse(v)
	if err != nil {
		return nil, invalidParam(name)
	}
	return &id, nil
}
