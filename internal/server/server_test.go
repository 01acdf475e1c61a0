package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/jjenkins/sorteio/internal/config"
	"github.com/jjenkins/sorteio/internal/handlers"
	"github.com/jjenkins/sorteio/internal/metrics"
	"github.com/jjenkins/sorteio/internal/model"
	"github.com/jjenkins/sorteio/internal/store"
	"github.com/jjenkins/sorteio/internal/store/storetest"
)

func testConfig() config.App {
	return config.App{
		ProjectName:      "API",
		Mode:             "dev",
		SecurityToken:    "secret",
		CORSAllowOrigins: "*",
		CORSAllowMethods: "GET,POST",
		CORSAllowHeaders: "*",
	}
}

func newApp(s store.Store, cfg config.App) *fiber.App {
	return New(Deps{
		Config:       cfg,
		Store:        s,
		Metrics:      metrics.New(),
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		QueryTimeout: time.Second,
	})
}

type envelope struct {
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Detail  string          `json:"detail"`
}

type ServerSuite struct {
	suite.Suite
	store *store.MemoryStore
	app   *fiber.App
	key   string
}

func TestServerSuite(t *testing.T) {
	suite.Run(t, new(ServerSuite))
}

func (s *ServerSuite) SetupTest() {
	s.store = store.NewMemoryStore()
	cfg := testConfig()
	s.app = newApp(s.store, cfg)
	s.key = cfg.APIKey()
}

func (s *ServerSuite) do(method, target string, authed bool) (*http.Response, envelope) {
	req := httptest.NewRequest(method, target, nil)
	if authed {
		req.Header.Set(APIKeyHeader, s.key)
	}
	resp, err := s.app.Test(req, -1)
	s.Require().NoError(err)

	var body envelope
	raw, err := io.ReadAll(resp.Body)
	s.Require().NoError(err)
	if len(raw) > 0 && resp.Header.Get(fiber.HeaderContentType) == fiber.MIMEApplicationJSON {
		s.Require().NoError(json.Unmarshal(raw, &body))
	}
	return resp, body
}

func (s *ServerSuite) decodeRegistrant(raw json.RawMessage) model.Registrant {
	var r model.Registrant
	s.Require().NoError(json.Unmarshal(raw, &r))
	return r
}

func (s *ServerSuite) TestPublicRoutes() {
	resp, body := s.do(http.MethodGet, "/api", false)
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Equal("Bem-vindo a API-DEV! Acesse o painel de sorteados em /painel ou as métricas em /metrics.", body.Message)

	resp, _ = s.do(http.MethodPost, "/api/ping", false)
	s.Equal(http.StatusOK, resp.StatusCode)

	resp, _ = s.do(http.MethodGet, "/painel", false)
	s.Equal(http.StatusOK, resp.StatusCode)

	resp, _ = s.do(http.MethodGet, "/metrics", false)
	s.Equal(http.StatusOK, resp.StatusCode)
}

func (s *ServerSuite) TestAPIKeyRequired() {
	s.Run("missing key", func() {
		resp, body := s.do(http.MethodGet, "/api/servidores", false)
		s.Equal(http.StatusUnauthorized, resp.StatusCode)
		s.Equal("Bearer", resp.Header.Get(fiber.HeaderWWWAuthenticate))
		s.Equal("Invalid API Key", body.Detail)
	})

	s.Run("raw token instead of its digest", func() {
		req := httptest.NewRequest(http.MethodPost, "/api/sortear", nil)
		req.Header.Set(APIKeyHeader, "secret")
		resp, err := s.app.Test(req, -1)
		s.Require().NoError(err)
		s.Equal(http.StatusUnauthorized, resp.StatusCode)
	})
}

func (s *ServerSuite) TestListsAreNotFoundWhenEmpty() {
	for _, path := range []string{"/api/servidores", "/api/servidores/validados", "/api/sorteados", "/api/servidores/111"} {
		resp, body := s.do(http.MethodGet, path, true)
		s.Equal(http.StatusNotFound, resp.StatusCode, path)
		s.NotEmpty(body.Detail, path)
	}
}

func (s *ServerSuite) TestListRegistrants() {
	s.store.Seed(storetest.Person("111"), storetest.Validated("222"), storetest.Duplicate(storetest.Person("333")))

	resp, body := s.do(http.MethodGet, "/api/servidores", true)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Equal("Lista de servidores na base", body.Message)

	var list []model.Registrant
	s.Require().NoError(json.Unmarshal(body.Data, &list))
	s.Len(list, 2)

	resp, body = s.do(http.MethodGet, "/api/servidores/validados", true)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Require().NoError(json.Unmarshal(body.Data, &list))
	s.Require().Len(list, 1)
	s.Equal("222", list[0].CPF)

	resp, body = s.do(http.MethodGet, "/api/servidores/111", true)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Equal("111", s.decodeRegistrant(body.Data).CPF)
}

func (s *ServerSuite) TestValidate() {
	s.store.Seed(storetest.Person("111"))

	s.Run("unknown cpf without force", func() {
		resp, body := s.do(http.MethodPost, "/api/servidores/999/validar", true)
		s.Equal(http.StatusNotFound, resp.StatusCode)
		s.Equal("Servidor não encontrado", body.Detail)
	})

	s.Run("existing cpf", func() {
		resp, body := s.do(http.MethodPost, "/api/servidores/111/validar", true)
		s.Require().Equal(http.StatusOK, resp.StatusCode)
		s.Equal("Servidor validado com sucesso", body.Message)
		s.True(s.decodeRegistrant(body.Data).IsValidated())
	})

	s.Run("second validation conflicts", func() {
		resp, body := s.do(http.MethodPost, "/api/servidores/111/validar", true)
		s.Equal(http.StatusConflict, resp.StatusCode)
		s.Equal("Servidor já validado", body.Detail)
	})

	s.Run("forced registration uses default observation", func() {
		resp, body := s.do(http.MethodPost, "/api/servidores/555/validar?force=true", true)
		s.Require().Equal(http.StatusOK, resp.StatusCode)
		r := s.decodeRegistrant(body.Data)
		s.Require().NotNil(r.Observation)
		s.Equal(handlers.DefaultObservation, *r.Observation)
	})

	s.Run("forced registration with observation", func() {
		resp, body := s.do(http.MethodPost, "/api/servidores/666/validar?force=1&observation=visitante", true)
		s.Require().Equal(http.StatusOK, resp.StatusCode)
		r := s.decodeRegistrant(body.Data)
		s.Require().NotNil(r.Observation)
		s.Equal("visitante", *r.Observation)
	})

	s.Run("invalid force flag", func() {
		resp, _ := s.do(http.MethodPost, "/api/servidores/777/validar?force=maybe", true)
		s.Equal(http.StatusUnprocessableEntity, resp.StatusCode)
	})
}

func (s *ServerSuite) TestDrawFlow() {
	s.store.Seed(storetest.Person("111"))

	resp, _ := s.do(http.MethodPost, "/api/sortear", true)
	s.Equal(http.StatusNotFound, resp.StatusCode, "nobody validated yet")

	resp, _ = s.do(http.MethodPost, "/api/servidores/111/validar", true)
	s.Require().Equal(http.StatusOK, resp.StatusCode)

	resp, body := s.do(http.MethodPost, "/api/sortear", true)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Equal("Servidor sorteado", body.Message)
	drawn := s.decodeRegistrant(body.Data)
	s.Equal("111", drawn.CPF)
	s.True(bool(drawn.Drawn))

	resp, body = s.do(http.MethodPost, "/api/sortear", true)
	s.Equal(http.StatusNotFound, resp.StatusCode)
	s.Equal("Nenhum servidor disponível para sorteio", body.Detail)

	resp, body = s.do(http.MethodGet, "/api/sorteados", true)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	var list []model.Registrant
	s.Require().NoError(json.Unmarshal(body.Data, &list))
	s.Len(list, 1)

	resp, _ = s.do(http.MethodPost, "/api/limpar/sorteio", true)
	s.Equal(http.StatusNoContent, resp.StatusCode)

	resp, _ = s.do(http.MethodGet, "/api/sorteados", true)
	s.Equal(http.StatusNotFound, resp.StatusCode)

	resp, _ = s.do(http.MethodPost, "/api/limpar/validados", true)
	s.Equal(http.StatusNoContent, resp.StatusCode)

	resp, _ = s.do(http.MethodGet, "/api/servidores/validados", true)
	s.Equal(http.StatusNotFound, resp.StatusCode)

	resp, _ = s.do(http.MethodGet, "/api/servidores", true)
	s.Equal(http.StatusOK, resp.StatusCode, "records stay visible after a reset")
}

func TestProxyPrefix(t *testing.T) {
	cfg := testConfig()
	cfg.ProxyPrefix = "/sorteio/"
	app := newApp(store.NewMemoryStore(), cfg)

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/sorteio/api/ping", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/sorteio/api", nil), -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body handlers.Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Contains(t, body.Message, "em /sorteio/painel ou as métricas em /sorteio/metrics.")
}

var errBoom = errors.New("connection refused")

type failingStore struct{}

func (failingStore) ListActive(context.Context) ([]model.Registrant, error)    { return nil, errBoom }
func (failingStore) ListValidated(context.Context) ([]model.Registrant, error) { return nil, errBoom }
func (failingStore) Get(context.Context, string) (*model.Registrant, error)    { return nil, errBoom }
func (failingStore) Validate(context.Context, string, store.ValidateOptions) (store.ValidateStatus, error) {
	return store.StatusNotFound, errBoom
}
func (failingStore) DrawRandom(context.Context) (string, bool, error)        { return "", false, errBoom }
func (failingStore) ListDrawn(context.Context) ([]model.Registrant, error)   { return nil, errBoom }
func (failingStore) ResetValidations(context.Context) error                  { return errBoom }
func (failingStore) ResetDraws(context.Context) error                        { return errBoom }
func (failingStore) Import(context.Context, []model.Registrant) (int, error) { return 0, errBoom }

func TestStoreFailuresAre500(t *testing.T) {
	cfg := testConfig()
	app := newApp(failingStore{}, cfg)

	routes := []struct{ method, path string }{
		{http.MethodGet, "/api/servidores"},
		{http.MethodGet, "/api/servidores/validados"},
		{http.MethodGet, "/api/servidores/111"},
		{http.MethodPost, "/api/servidores/111/validar"},
		{http.MethodPost, "/api/sortear"},
		{http.MethodGet, "/api/sorteados"},
		{http.MethodPost, "/api/limpar/validados"},
		{http.MethodPost, "/api/limpar/sorteio"},
		{http.MethodGet, "/painel"},
	}
	for _, rt := range routes {
		req := httptest.NewRequest(rt.method, rt.path, nil)
		req.Header.Set(APIKeyHeader, cfg.APIKey())
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode, rt.path)

		var body handlers.ErrorResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body), rt.path)
		assert.Equal(t, errBoom.Error(), body.Detail, rt.path)
	}
}

func TestWildcardCORSWithCredentialsDoesNotPanic(t *testing.T) {
	cfg := testConfig()
	cfg.CORSAllowCredentials = true

	require.NotPanics(t, func() {
		app := newApp(store.NewMemoryStore(), cfg)
		req := httptest.NewRequest(http.MethodOptions, "/api/servidores", nil)
		req.Header.Set(fiber.HeaderOrigin, "https://example.com")
		req.Header.Set(fiber.HeaderAccessControlRequestMethod, http.MethodGet)
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		assert.Equal(t, "*", resp.Header.Get(fiber.HeaderAccessControlAllowOrigin))
	})
}

// stallingStore blocks until the request context is done.
type stallingStore struct{ failingStore }

func (stallingStore) ListActive(ctx context.Context) ([]model.Registrant, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestQueryTimeoutBoundsStoreCalls(t *testing.T) {
	cfg := testConfig()
	app := New(Deps{
		Config:       cfg,
		Store:        stallingStore{},
		Metrics:      metrics.New(),
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		QueryTimeout: 50 * time.Millisecond,
	})

	req := httptest.NewRequest(http.MethodGet, "/api/servidores", nil)
	req.Header.Set(APIKeyHeader, cfg.APIKey())
	start := time.Now()
	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Less(t, time.Since(start), 2*time.Second)

	var body handlers.ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, context.DeadlineExceeded.Error(), body.Detail)
}
