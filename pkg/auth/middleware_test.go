package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/shieldllm/ileguard/pkg/model"
)

func newMiddlewareApp(tm *TokenManager) *fiber.App {
	// Minimal error mapping; the real server maps sentinels centrally.
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c fiber.Ctx, err error) error {
			if errors.Is(err, model.ErrUnauthorized) {
				return c.SendStatus(fiber.StatusUnauthorized)
			}
			return c.SendStatus(fiber.StatusInternalServerError)
		},
	})
	app.Use("/protected", Middleware(tm))
	app.Get("/protected", func(c fiber.Ctx) error {
		return c.SendString(UserID(c))
	})
	return app
}

func TestMiddleware(t *testing.T) {
	tm := NewTokenManager("test-secret", time.Hour)
	valid, err := tm.Generate("user-123", "dev@example.com")
	if err != nil {
		t.Fatal(err)
	}
	expired, err := NewTokenManager("test-secret", -time.Minute).Generate("user-123", "dev@example.com")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc123", http.StatusUnauthorized},
		{"garbage token", "Bearer garbage", http.StatusUnauthorized},
		{"expired token", "Bearer " + expired, http.StatusUnauthorized},
		{"valid token", "Bearer " + valid, http.StatusOK},
	}
	app := newMiddlewareApp(tm)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := app.Test(req)
			if err != nil {
				t.Fatal(err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
		})
	}
}
