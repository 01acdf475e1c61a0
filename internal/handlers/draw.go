package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/jjenkins/sorteio/internal/metrics"
	"github.com/jjenkins/sorteio/internal/store"
)

func DrawHandler(s store.Store, m *metrics.Metrics) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()

		cpf, drawn, err := s.DrawRandom(ctx)
		if err != nil {
			m.ObserveDraw("error")
			return storeFailure(err)
		}
		if !drawn {
			m.ObserveDraw("no_candidate")
			return fiber.NewError(fiber.StatusNotFound, "Nenhum servidor disponível para sorteio")
		}
		m.ObserveDraw("drawn")

		registrant, err := s.Get(ctx, cpf)
		if err != nil {
			return storeFailure(err)
		}
		if registrant == nil {
			return fiber.NewError(fiber.StatusNotFound, "Servidor não encontrado")
		}
		return ok(c, "Servidor sorteado", registrant)
	}
}

func DrawnHandler(s store.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		registrants, err := s.ListDrawn(c.UserContext())
		if err != nil {
			return storeFailure(err)
		}
		if len(registrants) == 0 {
			return fiber.NewError(fiber.StatusNotFound, "Nenhum servidor sorteado")
		}
		return ok(c, "Lista de servidores sorteados", registrants)
	}
}

func ResetValidationsHandler(s store.Store, m *metrics.Metrics) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := s.ResetValidations(c.UserContext()); err != nil {
			return storeFailure(err)
		}
		m.ObserveReset("validations")
		return c.SendStatus(fiber.StatusNoContent)
	}
}

func ResetDrawsHandler(s store.Store, m *metrics.Metrics) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := s.ResetDraws(c.UserContext()); err != nil {
			return storeFailure(err)
		}
		m.ObserveReset("draws")
		return c.SendStatus(fiber.StatusNoContent)
	}
}
