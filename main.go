package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"

	"autosig/config"
	"autosig/handlers/api"
	"autosig/handlers/dev"
	"autosig/middleware"
	"autosig/signature"
	"autosig/storage"
	"autosig/utils"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func serve(cfg *config.Config) error {
	utils.Log.SetLevel(utils.ParseLogLevel(cfg.Log.Level))
	utils.Log.Info("Initializing autosig...")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	policy, err := signature.ParsePolicy(cfg.Signature.Policy)
	if err != nil {
		return err
	}

	durable, err := storage.OpenDurable(cfg.Storage.Backend, cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	if durable != nil {
		defer durable.Close()

		sweeper, err := storage.NewSweeper(durable, cfg.Storage.Sweep, utils.Log)
		if err != nil {
			return err
		}
		go sweeper.Run(ctx)
		utils.Log.Info("Using %s storage in %s", cfg.Storage.Backend, cfg.Storage.Path)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := signature.NewMetrics(registry)

	compose := api.NewComposeHandler(api.ComposeOptions{
		Session: signature.SessionConfig{
			SignaturePath:     cfg.Remote.SignaturePath,
			StatusPath:        cfg.Remote.StatusPath,
			ExchangePath:      cfg.Remote.ExchangePath,
			BaseURL:           cfg.Remote.URL,
			Policy:            policy,
			Timeout:           cfg.Signature.Timeout.Duration,
			RequireCredential: !cfg.Signature.AnonymousFetch,
			Sanitize:          cfg.Signature.Sanitize,
			MaxImageWidth:     cfg.Signature.MaxImageWidth,
			Icon:              cfg.Signature.Icon,
			CommandID:         cfg.Signature.CommandID,
		},
		Durable:   durable,
		RemoteURL: cfg.Remote.URL,
		Timeout:   cfg.Remote.Timeout.Duration,
		Metrics:   metrics,
	})

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError

			var fe *fiber.Error
			if errors.As(err, &fe) {
				code = fe.Code
			} else {
				utils.Log.Error("Request %s failed: %v", c.Path(), err)
			}

			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	app.Use(recover.New())
	if cfg.Log.Requests {
		app.Use(logger.New())
	}
	if cfg.RateLimit.Enabled {
		app.Use(middleware.RateLimiter(ctx, middleware.RateLimitConfig{
			Requests: cfg.RateLimit.Requests,
			Window:   cfg.RateLimit.Window.Duration,
			Skip:     func(c *fiber.Ctx) bool { return c.Path() == "/ws" },
		}))
	}

	// Host bridge
	app.Use("/ws", compose.Upgrade)
	app.Get("/ws", websocket.New(compose.HandleWebSocket))

	// Notification texts for host shims
	i18nHandler := &api.I18nHandler{}
	app.Get("/api/i18n/:lang?", middleware.LocaleMiddleware(), i18nHandler.GetTranslations)

	metricsHandler := fasthttpadaptor.NewFastHTTPHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	app.Get("/metrics", func(c *fiber.Ctx) error {
		metricsHandler(c.Context())
		return nil
	})

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"storage": cfg.Storage.Backend,
			"time":    time.Now().Format(time.RFC3339),
		})
	})

	if cfg.DevServer.Enabled {
		source, err := devSource(cfg.DevServer)
		if err != nil {
			return err
		}
		dev.NewHandler(dev.Options{
			Source:      source,
			BaseURL:     cfg.Server.PublicURL,
			JWTSecret:   cfg.DevServer.JWTSecret,
			Credentials: cfg.DevServer.Credentials,
			Logger:      utils.Log,
		}).Register(app)
		utils.Log.Info("Development signature server enabled (%s source)", cfg.DevServer.Source)
	}

	go func() {
		<-ctx.Done()
		utils.Log.Info("Shutting down...")
		if err := app.ShutdownWithTimeout(5 * time.Second); err != nil {
			utils.Log.Error("Shutdown failed: %v", err)
		}
	}()

	utils.Log.Info("Starting server on port %d...", cfg.Server.Port)
	if err := app.Listen(fmt.Sprintf(":%d", cfg.Server.Port)); err != nil {
		return fmt.Errorf("error starting server: %w", err)
	}
	return nil
}

func devSource(cfg config.DevServerConfig) (dev.Source, error) {
	switch cfg.Source {
	case "imap":
		imap := cfg.IMAP
		return dev.NewIMAPSource(imap.Server, imap.Port, imap.Username, imap.Password, imap.Folder), nil
	case "dir", "":
		return dev.NewFileSource(cfg.Dir), nil
	default:
		return nil, fmt.Errorf("unknown devserver source %q", cfg.Source)
	}
}
