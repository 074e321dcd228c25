package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/ayurveda/clinic/internal/config"
	"github.com/ayurveda/clinic/internal/domain/assistant"
	"github.com/ayurveda/clinic/internal/domain/dashboard"
	"github.com/ayurveda/clinic/internal/domain/feedback"
	"github.com/ayurveda/clinic/internal/domain/identity"
	"github.com/ayurveda/clinic/internal/domain/reminder"
	"github.com/ayurveda/clinic/internal/domain/scheduling"
	"github.com/ayurveda/clinic/internal/platform/auth"
	"github.com/ayurveda/clinic/internal/platform/db"
	"github.com/ayurveda/clinic/internal/platform/llm"
	"github.com/ayurveda/clinic/internal/platform/middleware"
	"github.com/ayurveda/clinic/internal/platform/notification"
)

// Route path of the chat endpoint, which carries whole conversations and
// waits on the model.
const assistantChatPath = "/api/v1/assistant/chat"

const (
	version     = "0.1.0"
	tokenIssuer = "clinic-server"
)

// app is the fully wired server: stores, services and the reminder worker.
type app struct {
	cfg    *config.Config
	logger zerolog.Logger
	stores *stores

	issuer     *auth.Issuer
	identity   *identity.Service
	scheduling *scheduling.Service
	feedback   *feedback.Service
	assistant  *assistant.Service
	dashboards *dashboard.Registry
	notifier   *notification.Manager
	reminders  *reminder.Worker
}

func (a *app) Close() {
	if a.reminders != nil {
		a.reminders.Stop()
	}
	a.stores.Close()
}

func buildApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	key, err := cfg.SigningKey()
	if err != nil {
		return nil, err
	}

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger, stores: st}

	// External mode delegates sign-in to the provider, so no tokens are issued.
	var tokens identity.TokenIssuer
	if len(key) > 0 && cfg.ResolvedAuthMode() != "external" {
		a.issuer = auth.NewIssuer(key, cfg.TokenTTL, tokenIssuer)
		tokens = a.issuer
	}
	a.identity = newIdentityService(st, tokens)
	a.scheduling = scheduling.NewService(st.appointments, st.sessions, a.identity, st.tx, loc)

	model := llm.NewOpenAIClient(llm.Config{
		APIKey:        cfg.OpenAIAPIKey,
		ChatModel:     cfg.OpenAIChatModel,
		ClassifyModel: cfg.OpenAISentimentModel,
	})
	var analyzer feedback.Analyzer
	var chat llm.Client
	if model != nil {
		analyzer = feedback.LLMAnalyzer{Client: model}
		chat = model
	} else {
		logger.Warn().Msg("OPENAI_API_KEY not set; assistant disabled and feedback uses the lexicon analyzer")
	}
	a.feedback = feedback.NewService(st.feedback, a.identity, a.scheduling, analyzer, logger)
	a.assistant = assistant.NewService(chat, cfg.AssistantMaxTurns)
	a.dashboards = dashboard.NewDefaultRegistry(dashboard.Deps{
		Users:    a.identity,
		Feedback: a.feedback,
		Schedule: a.scheduling,
	})

	sender, err := pushSender(ctx, cfg, st, logger)
	if err != nil {
		st.Close()
		return nil, err
	}
	a.notifier = notification.NewManager(sender, notification.NewTemplateEngine())
	a.reminders = reminder.NewWorker(a.scheduling, a.notifier, reminderConfig(cfg), logger)

	return a, nil
}

// pushSender returns the FCM sender when push is enabled and a log-only
// sender otherwise.
func pushSender(ctx context.Context, cfg *config.Config, st *stores, logger zerolog.Logger) (notification.PushSender, error) {
	if !cfg.PushEnabled {
		return notification.LogSender{Logger: logger}, nil
	}
	if st.firebase == nil {
		return nil, fmt.Errorf("push is enabled but no firebase app is configured")
	}
	client, err := st.firebase.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("open firebase messaging client: %w", err)
	}
	return notification.NewFCMSender(client, logger), nil
}

func reminderConfig(cfg *config.Config) reminder.Config {
	return reminder.Config{
		Interval:  cfg.ReminderInterval,
		Lead:      cfg.ReminderLeadTime,
		Tolerance: cfg.ReminderTolerance,
	}
}

func rateLimitConfig(cfg *config.Config) middleware.RateLimitConfig {
	rl := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rl.RequestsPerSecond <= 0 || rl.BurstSize <= 0 {
		return middleware.DefaultRateLimitConfig()
	}
	return rl
}

// authMiddleware picks token verification for the resolved auth mode.
func authMiddleware(cfg *config.Config, key []byte) (echo.MiddlewareFunc, error) {
	external := func() echo.MiddlewareFunc {
		return auth.JWTMiddleware(auth.JWTConfig{
			Issuer:   cfg.AuthIssuer,
			Audience: cfg.AuthAudience,
			JWKSURL:  cfg.AuthJWKSURL,
			Skipper:  auth.AuthSkipper,
		})
	}
	standalone := func() echo.MiddlewareFunc {
		return auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     tokenIssuer,
			SigningKey: key,
			Skipper:    auth.AuthSkipper,
		})
	}

	switch mode := cfg.ResolvedAuthMode(); mode {
	case "external":
		return external(), nil
	case "standalone":
		if len(key) == 0 {
			return nil, fmt.Errorf("standalone auth needs JWT_SIGNING_KEY")
		}
		return standalone(), nil
	case "development":
		var verify echo.MiddlewareFunc
		switch {
		case len(key) > 0:
			verify = standalone()
		case cfg.AuthIssuer != "":
			verify = external()
		}
		return auth.DevAuthMiddleware(verify, auth.AuthSkipper), nil
	default:
		return nil, fmt.Errorf("unknown auth mode %q", mode)
	}
}

// newEcho assembles the HTTP surface.
func newEcho(a *app) (*echo.Echo, error) {
	cfg, logger := a.cfg, a.logger
	key, err := cfg.SigningKey()
	if err != nil {
		return nil, err
	}
	authMW, err := authMiddleware(cfg, key)
	if err != nil {
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit(cfg.BodyLimit, map[string]string{assistantChatPath: "4M"}))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout, map[string]time.Duration{assistantChatPath: cfg.AssistantTimeout}))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))
	e.Use(authMW)
	e.Use(identity.Middleware(a.identity, logger))
	e.Use(middleware.Audit(logger))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok", "version": version})
	})
	e.GET("/health/db", db.HealthHandler(a.stores.backend, a.stores.pinger, a.stores.poolStats))

	api := e.Group("/api/v1")
	api.Use(middleware.RateLimit(rateLimitConfig(cfg)))
	credentialLimit := middleware.RateLimit(middleware.CredentialRateLimitConfig())

	identity.NewHandler(a.identity).RegisterRoutes(api, credentialLimit)
	scheduling.NewHandler(a.scheduling).RegisterRoutes(api)
	feedback.NewHandler(a.feedback).RegisterRoutes(api)
	assistant.NewHandler(a.assistant, logger).RegisterRoutes(api)
	dashboard.NewHandler(a.dashboards).RegisterRoutes(api)

	return e, nil
}

func runServer() error {
	logger := newLogger(os.Getenv("ENV"))

	cfg, err := loadConfig()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	logger = newLogger(cfg.Env)
	logger.Info().
		Str("backend", cfg.StoreBackend).
		Str("auth_mode", cfg.ResolvedAuthMode()).
		Str("timezone", cfg.ClinicTimezone).
		Msg("configuration loaded")

	ctx := context.Background()
	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialise")
	}
	defer a.Close()

	e, err := newEcho(a)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build router")
	}

	workerCtx, stopWorker := context.WithCancel(ctx)
	defer stopWorker()
	if cfg.RemindersEnabled {
		if err := a.reminders.Start(workerCtx); err != nil {
			logger.Fatal().Err(err).Msg("failed to start reminder worker")
		}
	}

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	stopWorker()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
