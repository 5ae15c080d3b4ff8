package middleware

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/freelance-marketplace/contract-workflow/internal/auth"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

func TestAuthMiddleware(t *testing.T) {
	const secret = "s3cret"
	userID := uuid.New()

	valid, err := auth.GenerateJWT(secret, userID, "freelancer", time.Hour)
	if err != nil {
		t.Fatalf("GenerateJWT: %v", err)
	}
	otherSecret, err := auth.GenerateJWT("other", userID, "freelancer", time.Hour)
	if err != nil {
		t.Fatalf("GenerateJWT: %v", err)
	}

	app := fiber.New()
	app.Use(RequestIDMiddleware())
	app.Get("/me", AuthMiddleware(secret, zap.NewNop()), func(c *fiber.Ctx) error {
		if GetUserID(c) != userID || GetUserRole(c) != "freelancer" {
			return c.SendStatus(fiber.StatusTeapot)
		}
		return c.SendStatus(fiber.StatusOK)
	})

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"valid bearer", "Bearer " + valid, fiber.StatusOK},
		{"missing header", "", fiber.StatusUnauthorized},
		{"no bearer prefix", valid, fiber.StatusUnauthorized},
		{"wrong secret", "Bearer " + otherSecret, fiber.StatusUnauthorized},
		{"garbage", "Bearer abc.def", fiber.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(fiber.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := app.Test(req)
			if err != nil {
				t.Fatalf("app.Test: %v", err)
			}
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
			if resp.Header.Get(HeaderRequestID) == "" {
				t.Error("missing request id header")
			}
		})
	}
}

func TestInternalTokenMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		configured string
		sent       string
		want       int
	}{
		{"disabled", "", "anything", fiber.StatusNotFound},
		{"wrong token", "tok", "nope", fiber.StatusForbidden},
		{"right token", "tok", "tok", fiber.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New()
			app.Post("/sync", InternalTokenMiddleware(tt.configured), func(c *fiber.Ctx) error {
				return c.SendStatus(fiber.StatusOK)
			})
			req := httptest.NewRequest(fiber.MethodPost, "/sync", nil)
			req.Header.Set(HeaderInternalToken, tt.sent)
			resp, err := app.Test(req)
			if err != nil {
				t.Fatalf("app.Test: %v", err)
			}
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}
