package server

import (
	"context"
	"crypto/subtle"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/keyauth"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/jjenkins/sorteio/internal/config"
	"github.com/jjenkins/sorteio/internal/handlers"
	"github.com/jjenkins/sorteio/internal/logging"
	"github.com/jjenkins/sorteio/internal/metrics"
	"github.com/jjenkins/sorteio/internal/store"
)

// APIKeyHeader carries the caller credential.
const APIKeyHeader = "X-API-Key"

// Deps are the collaborators the HTTP surface is built from.
type Deps struct {
	Config  config.App
	Store   store.Store
	Metrics *metrics.Metrics
	Logger  *slog.Logger
	// QueryTimeout bounds each request's store calls; zero disables it.
	QueryTimeout time.Duration
	// AccessLog receives one line per request; nil disables it.
	AccessLog io.Writer
}

// New builds the fiber application with every route registered.
func New(d Deps) *fiber.App {
	httpLogger := logging.Task(d.Logger, "http")

	app := fiber.New(fiber.Config{
		AppName:               d.Config.Title(),
		ErrorHandler:          handlers.ErrorHandler(httpLogger),
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	if d.AccessLog != nil {
		app.Use(logger.New(logger.Config{Output: d.AccessLog}))
	}
	app.Use(corsMiddleware(d.Config, httpLogger))
	app.Use(queryTimeout(d.QueryTimeout))

	prefix := strings.TrimSuffix(d.Config.ProxyPrefix, "/")
	root := app.Group(prefix)

	root.Get("/metrics", adaptor.HTTPHandler(d.Metrics.Handler()))
	root.Get("/painel", handlers.BoardHandler(d.Config.Title(), d.Store))

	api := root.Group("/api")
	api.Get("/", handlers.HomeHandler(d.Config.Title(), prefix+"/painel", prefix+"/metrics"))
	api.Post("/ping", handlers.PingHandler())

	secured := api.Group("", apiKeyAuth(d.Config.APIKey()))

	// Registrant routes
	secured.Get("/servidores", handlers.RegistrantsHandler(d.Store))
	secured.Get("/servidores/validados", handlers.ValidatedRegistrantsHandler(d.Store))
	secured.Get("/servidores/:cpf", handlers.RegistrantDetailHandler(d.Store))
	secured.Post("/servidores/:cpf/validar", handlers.ValidateHandler(d.Store, d.Metrics))

	// Draw routes
	secured.Post("/sortear", handlers.DrawHandler(d.Store, d.Metrics))
	secured.Get("/sorteados", handlers.DrawnHandler(d.Store))

	// Reset routes
	secured.Post("/limpar/validados", handlers.ResetValidationsHandler(d.Store, d.Metrics))
	secured.Post("/limpar/sorteio", handlers.ResetDrawsHandler(d.Store, d.Metrics))

	return app
}

func apiKeyAuth(expected string) fiber.Handler {
	return keyauth.New(keyauth.Config{
		KeyLookup: "header:" + APIKeyHeader,
		Validator: func(c *fiber.Ctx, key string) (bool, error) {
			if subtle.ConstantTimeCompare([]byte(key), []byte(expected)) == 1 {
				return true, nil
			}
			return false, keyauth.ErrMissingOrMalformedAPIKey
		},
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			c.Set(fiber.HeaderWWWAuthenticate, "Bearer")
			return c.Status(fiber.StatusUnauthorized).JSON(handlers.ErrorResponse{Detail: "Invalid API Key"})
		},
	})
}

// corsMiddleware drops credentials when every origin is allowed; fiber
// refuses that combination.
func corsMiddleware(cfg config.App, logger *slog.Logger) fiber.Handler {
	origins := strings.Join(config.SplitList(cfg.CORSAllowOrigins), ",")
	if origins == "" {
		origins = "*"
	}
	credentials := cfg.CORSAllowCredentials
	if credentials && strings.Contains(origins, "*") {
		logger.Warn("CORS credentials disabled because all origins are allowed")
		credentials = false
	}

	return cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     strings.Join(config.SplitList(cfg.CORSAllowMethods), ","),
		AllowHeaders:     headerList(cfg.CORSAllowHeaders),
		AllowCredentials: credentials,
	})
}

// headerList maps "*" to an empty list so fiber reflects the request headers.
func headerList(raw string) string {
	headers := config.SplitList(raw)
	if len(headers) == 1 && headers[0] == "*" {
		return ""
	}
	return strings.Join(headers, ",")
}

func queryTimeout(d time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if d <= 0 {
			return c.Next()
		}
		ctx, cancel := context.WithTimeout(c.UserContext(), d)
		defer cancel()
		c.SetUserContext(ctx)
		return c.Next()
	}
}
