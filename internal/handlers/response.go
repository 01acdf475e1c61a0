package handlers

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"
)

// Response is the envelope of every successful API payload.
type Response struct {
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

func ok(c *fiber.Ctx, message string, data any) error {
	return c.Status(fiber.StatusOK).JSON(Response{Message: message, Data: data})
}

// ErrorHandler renders errors as {"detail": ...} and logs server failures.
func ErrorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
		}

		if code >= fiber.StatusInternalServerError {
			logger.Error("request failed",
				"method", c.Method(),
				"path", c.Path(),
				"status", code,
				"error", err,
			)
		}

		return c.Status(code).JSON(ErrorResponse{Detail: err.Error()})
	}
}

func storeFailure(err error) error {
	return fiber.NewError(fiber.StatusInternalServerError, err.Error())
}
