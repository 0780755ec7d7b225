package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/segmentio/encoding/json"
	"github.com/spf13/pflag"

	httpapi "github.com/i474232898/weather-aggregation-server/internal/api/http"
	"github.com/i474232898/weather-aggregation-server/internal/config"
	"github.com/i474232898/weather-aggregation-server/internal/lamport"
	"github.com/i474232898/weather-aggregation-server/internal/logging"
	"github.com/i474232898/weather-aggregation-server/internal/registry"
	"github.com/i474232898/weather-aggregation-server/internal/scheduler"
	"github.com/i474232898/weather-aggregation-server/internal/server"
	"github.com/i474232898/weather-aggregation-server/internal/store"
	"github.com/i474232898/weather-aggregation-server/internal/weather"
)

func main() {
	flagSet := pflag.NewFlagSet("aggregation-server", pflag.ContinueOnError)
	configPath := flagSet.String("config", "", "path to a YAML configuration file")
	flagSet.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: aggregation-server [flags] [port]\n\n%s", flagSet.FlagUsages())
	}
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		log.Fatalf("parsing flags: %v", err)
	}

	// Load configuration.
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// The port may also be given as the only positional argument.
	if args := flagSet.Args(); len(args) > 0 {
		port, err := strconv.Atoi(args[0])
		if err != nil {
			log.Fatalf("invalid port %q: %v", args[0], err)
		}
		cfg.Port = port
		if err := cfg.Validate(); err != nil {
			log.Fatalf("%v", err)
		}
	}

	sugar, err := logging.New(cfg.Env)
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer sugar.Sync() //nolint:errcheck

	// In-memory store with configured retention.
	memStore := store.NewMemoryStore(cfg.MaxObservations)
	reg := registry.New()

	// Core service coupling the store with the server clock.
	service := weather.NewService(memStore, lamport.New())

	// Sweeper that closes idle producers and evicts stale data.
	sweeper := scheduler.New(scheduler.Config{
		Interval:        cfg.SweepInterval,
		IdleInterval:    cfg.IdleSweepInterval,
		IdleTimeout:     cfg.IdleTimeout,
		MaxAge:          cfg.MaxAge,
		MaxObservations: cfg.MaxObservations,
	}, memStore, reg, sugar.Named("sweeper"))
	if err := sweeper.Start(); err != nil {
		sugar.Fatalw("failed to start sweeper", "error", err)
	}
	defer sweeper.Stop()

	srv := server.New(service, reg, server.Options{MaxBodyBytes: cfg.MaxBodyBytes}, sugar.Named("server"))
	go func() {
		if err := srv.ListenAndServe(fmt.Sprintf(":%d", cfg.Port)); err != nil && !errors.Is(err, server.ErrServerClosed) {
			sugar.Fatalw("aggregation server stopped", "error", err)
		}
	}()

	var app *fiber.App
	if cfg.AdminPort > 0 {
		app = newAdminApp(service, reg)
		go func() {
			if err := app.Listen(fmt.Sprintf(":%d", cfg.AdminPort)); err != nil {
				sugar.Errorw("admin server stopped", "error", err)
			}
		}()
		sugar.Infow("admin API listening", "port", cfg.AdminPort)
	}

	// Wait for termination signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	sugar.Infow("shutting down", "timeout", cfg.ShutdownTimeout)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	sweeper.Stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		sugar.Warnw("connections still open at shutdown were closed", "error", err)
	}
	if app != nil {
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			sugar.Warnw("error during admin shutdown", "error", err)
		}
	}
}

func newAdminApp(service *weather.Service, reg *registry.Registry) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "weather-aggregation-server",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			// Centralized error response
			code := fiber.StatusInternalServerError
			var e *fiber.Error
			if errors.As(err, &e) {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	// Global middleware
	app.Use(logger.New())
	app.Use(recover.New())

	// Basic health endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "weather-aggregation-server",
		})
	})

	httpapi.RegisterRoutes(app, service, reg)
	return app
}
