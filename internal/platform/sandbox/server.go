package sandbox

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/ehr/mhemr/internal/config"
	"github.com/ehr/mhemr/internal/domain/account"
	"github.com/ehr/mhemr/internal/domain/audit"
	"github.com/ehr/mhemr/internal/domain/clinical"
	"github.com/ehr/mhemr/internal/domain/forms"
	"github.com/ehr/mhemr/internal/domain/patient"
	"github.com/ehr/mhemr/internal/platform/auth"
	"github.com/ehr/mhemr/internal/platform/middleware"
)

// TokenIssuerName is the iss claim of sandbox tokens.
const TokenIssuerName = "mhemr-sandbox"

// Server is the assembled sandbox backend.
type Server struct {
	cfg    *config.Config
	echo   *echo.Echo
	logger zerolog.Logger

	Accounts *account.Service
	Patients *patient.Service
	Forms    *forms.Service
	Clinical *clinical.Service
	Audit    *audit.Service
	Seeder   *Seeder
}

// New wires the in-memory repositories, services and routes and applies
// seed. A nil seed loads cfg.SandboxSeedFile, or DefaultSeed when that is
// empty.
func New(cfg *config.Config, seed *SeedFile, logger zerolog.Logger) (*Server, error) {
	if cfg.SandboxSigningKey == "" {
		return nil, fmt.Errorf("sandbox signing key is not configured")
	}
	if seed == nil {
		if cfg.SandboxSeedFile != "" {
			loaded, err := LoadSeedFile(cfg.SandboxSeedFile)
			if err != nil {
				return nil, err
			}
			seed = loaded
		} else {
			seed = DefaultSeed()
		}
	}

	tokens := auth.NewTokenIssuer([]byte(cfg.SandboxSigningKey), TokenIssuerName)

	accounts := account.NewService(account.NewMemoryUserRepo(), account.NewMemorySessionRepo(), tokens, cfg.SandboxSessionTTL(), logger)
	patients := patient.NewService(patient.NewMemoryRepo())
	formsSvc := forms.NewService(forms.NewMemoryTemplateRepo(), forms.NewMemorySubmissionRepo(), patients, accounts, logger)
	clinicalSvc := clinical.NewService(clinical.NewMemoryNoteRepo(), clinical.NewMemoryPlanRepo(), patients, accounts, logger)
	auditSvc := audit.NewService(audit.NewMemoryRepo(), accounts, accounts, logger)

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		Accounts: accounts,
		Patients: patients,
		Forms:    formsSvc,
		Clinical: clinicalSvc,
		Audit:    auditSvc,
		Seeder:   NewSeeder(accounts, patients, formsSvc),
	}

	// Seed before the audit trail is attached so it starts empty.
	res, err := s.Seeder.Apply(context.Background(), seed)
	if err != nil {
		return nil, err
	}
	logger.Info().
		Int("users", res.Users).
		Int("patients", res.Patients).
		Int("templates", res.Templates).
		Dur("duration", res.Duration).
		Msg("sandbox seeded")

	accounts.SetAuditLogger(auditSvc)
	patients.SetAuditLogger(auditSvc)
	formsSvc.SetAuditLogger(auditSvc)
	clinicalSvc.SetAuditLogger(auditSvc)

	s.echo = s.routes(tokens)
	return s, nil
}

func (s *Server) routes(tokens *auth.TokenIssuer) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler(s.logger)

	e.Use(middleware.RequestID())
	e.Use(middleware.ClientIP())
	e.Use(middleware.Logger(s.logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     s.cfg.CORSOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders:     []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
		AllowCredentials: true,
	}))
	e.Use(middleware.BodyLimit(s.cfg.SandboxBodyLimit))
	e.Use(middleware.RejectMalformed(s.logger))
	// Handlers run on the timeout goroutine; Recovery must sit inside it.
	e.Use(middleware.RequestTimeout(s.cfg.SandboxRequestTimeout))
	e.Use(middleware.Recovery(s.logger))
	e.Use(middleware.AuditDenied(s.logger, s.Audit))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]bool{"ok": true})
	})

	api := e.Group("/api")
	authed := api.Group("", auth.SessionMiddleware(tokens, s.Accounts))

	loginLimit := middleware.RateLimit(middleware.RateLimitConfig{
		PerSecond: s.cfg.SandboxLoginRate,
		Burst:     s.cfg.SandboxLoginBurst,
	})
	account.NewHandler(s.Accounts, tokens).RegisterRoutes(api, authed, loginLimit)
	patient.NewHandler(s.Patients).RegisterRoutes(authed)
	forms.NewHandler(s.Forms).RegisterRoutes(authed)
	clinical.NewHandler(s.Clinical).RegisterRoutes(authed)
	audit.NewHandler(s.Audit).RegisterRoutes(authed)
	NewSeedHandler(s.Seeder).RegisterRoutes(authed)

	return e
}

// errorHandler renders every error as {"error": message}.
func errorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		code := http.StatusInternalServerError
		msg := http.StatusText(code)
		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
			msg = fmt.Sprint(he.Message)
		} else {
			logger.Error().Err(err).Str("path", c.Request().URL.Path).Msg("unhandled error")
		}
		if c.Request().Method == http.MethodHead {
			err = c.NoContent(code)
		} else {
			err = c.JSON(code, map[string]string{"error": msg})
		}
		if err != nil {
			logger.Error().Err(err).Msg("failed to write error response")
		}
	}
}

// Echo exposes the router, mainly for httptest servers.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Start listens on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	s.logger.Info().Str("addr", addr).Msg("starting sandbox")
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("shutting down sandbox")
	return s.echo.Shutdown(ctx)
}

// DefaultShutdownTimeout bounds graceful shutdown.
const DefaultShutdownTimeout = 10 * time.Second
