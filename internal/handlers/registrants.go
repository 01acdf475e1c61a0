package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/jjenkins/sorteio/internal/metrics"
	"github.com/jjenkins/sorteio/internal/store"
)

// DefaultObservation is stored on registrants created by a forced validation
// when the caller gives no note.
const DefaultObservation = "terceirizado"

func RegistrantsHandler(s store.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		registrants, err := s.ListActive(c.UserContext())
		if err != nil {
			return storeFailure(err)
		}
		if len(registrants) == 0 {
			return fiber.NewError(fiber.StatusNotFound, "Nenhum servidor disponível")
		}
		return ok(c, "Lista de servidores na base", registrants)
	}
}

func ValidatedRegistrantsHandler(s store.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		registrants, err := s.ListValidated(c.UserContext())
		if err != nil {
			return storeFailure(err)
		}
		if len(registrants) == 0 {
			return fiber.NewError(fiber.StatusNotFound, "Nenhum servidor validado")
		}
		return ok(c, "Lista de servidores cadastrados pelo site", registrants)
	}
}

func RegistrantDetailHandler(s store.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		registrant, err := s.Get(c.UserContext(), c.Params("cpf"))
		if err != nil {
			return storeFailure(err)
		}
		if registrant == nil {
			return fiber.NewError(fiber.StatusNotFound, "Servidor não encontrado")
		}
		return ok(c, "Servidor encontrado", registrant)
	}
}

// ValidateHandler validates the registrant in the path. With ?force=true an
// unknown CPF is registered on the spot, tagged with ?observation=.
func ValidateHandler(s store.Store, m *metrics.Metrics) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()
		cpf := c.Params("cpf")

		force := false
		if raw := c.Query("force"); raw != "" {
			parsed, err := strconv.ParseBool(raw)
			if err != nil {
				return fiber.NewError(fiber.StatusUnprocessableEntity, "force deve ser um booleano")
			}
			force = parsed
		}

		var (
			status store.ValidateStatus
			err    error
		)
		if force {
			status, err = store.RegisterAndValidate(ctx, s, cpf, c.Query("observation", DefaultObservation))
		} else {
			status, err = store.ValidateExisting(ctx, s, cpf)
		}
		if err != nil {
			m.ObserveValidation("error")
			return storeFailure(err)
		}
		m.ObserveValidation(status.String())

		switch status {
		case store.StatusAlreadyValidated:
			return fiber.NewError(fiber.StatusConflict, "Servidor já validado")
		case store.StatusNotFound:
			return fiber.NewError(fiber.StatusNotFound, "Servidor não encontrado")
		}

		registrant, err := s.Get(ctx, cpf)
		if err != nil {
			return storeFailure(err)
		}
		return ok(c, "Servidor validado com sucesso", registrant)
	}
}
