package handlers

import (
	"fmt"

	"github.com/a-h/templ"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/jjenkins/sorteio/internal/store"
	"github.com/jjenkins/sorteio/internal/templates"
)

// HomeHandler greets callers and points them at the public pages.
func HomeHandler(title, boardPath, metricsPath string) fiber.Handler {
	message := fmt.Sprintf("Bem-vindo a %s! Acesse o painel de sorteados em %s ou as métricas em %s.", title, boardPath, metricsPath)
	return func(c *fiber.Ctx) error {
		return c.JSON(Response{Message: message})
	}
}

func PingHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"data": "pong"})
	}
}

// BoardHandler renders the public page of drawn registrants.
func BoardHandler(title string, s store.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		drawn, err := s.ListDrawn(c.UserContext())
		if err != nil {
			return storeFailure(err)
		}

		page := templates.Board(title, drawn)
		handler := adaptor.HTTPHandler(templ.Handler(page))

		return handler(c)
	}
}
