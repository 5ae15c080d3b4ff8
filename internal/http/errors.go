package http

import (
	"errors"

	"github.com/freelance-marketplace/contract-workflow/internal/http/dto"
	"github.com/freelance-marketplace/contract-workflow/internal/middleware"
	"github.com/gofiber/fiber/v2"
)

// ErrorHandler renders errors that escape the handlers, such as unknown
// routes and body limit violations, in the standard envelope.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	msg := "internal error"
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		msg = fe.Message
	}
	return c.Status(code).JSON(dto.ErrorResponse{Error: msg, RequestID: middleware.GetRequestID(c)})
}
