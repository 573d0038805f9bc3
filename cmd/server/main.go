package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"rulecompiler/internal/admin"
	"rulecompiler/internal/auth"
	"rulecompiler/internal/config"
	"rulecompiler/internal/engine"
	"rulecompiler/internal/instrument"
	"rulecompiler/internal/logging"
	"rulecompiler/internal/metadata"
	"rulecompiler/internal/nlrule"
	"rulecompiler/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	lg, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer lg.Sync()
	lg.Info("config loaded",
		zap.Int("port", cfg.Server.Port),
		zap.String("driver", cfg.Database.Driver),
		zap.String("database", cfg.Database.Name))

	if err := run(ctx, cfg, lg); err != nil {
		lg.Fatal("server stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, lg *zap.Logger) error {
	// 2. Connect to database
	db, err := store.New(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	// 3. Bootstrap system tables
	if err := db.Bootstrap(ctx); err != nil {
		return err
	}
	lg.Info("system tables ready")

	// 4. Load templates
	reg := metadata.NewRegistry()
	if err := metadata.LoadAll(ctx, db.DB, reg, lg); err != nil {
		lg.Warn("failed to load templates", zap.Error(err))
	}

	// 5. Compiler and vocabulary
	var opts []nlrule.Option
	if path := cfg.Compiler.VocabularyPath; path != "" {
		table, err := nlrule.LoadSynonymsFile(path)
		if err != nil {
			return err
		}
		opts = append(opts, nlrule.WithSynonyms(table))
		lg.Info("custom vocabulary loaded", zap.String("path", path))
	}
	compiler := nlrule.New(opts...)

	cache, err := engine.NewCompileCache(cfg.Compiler.CacheSize)
	if err != nil {
		return fmt.Errorf("compile cache: %w", err)
	}

	// 6. Compile event log
	var events instrument.Sink = instrument.NoopSink{}
	if cfg.Events.Enabled {
		buffer := instrument.NewEventBuffer(db.DB, db.Dialect, cfg.Events.BufferSize,
			time.Duration(cfg.Events.FlushIntervalMs)*time.Millisecond, lg.Named("events"))
		defer buffer.Stop()
		events = buffer
		go instrument.RunCleanup(ctx, db.DB, db.Dialect, cfg.Events.RetentionDays, time.Hour, lg.Named("events"))
	}

	// 7. Create Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: engine.NewErrorHandler(lg),
	})
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))
	app.Use(logger.New(logger.Config{
		Format: "${time} ${status} ${method} ${path} ${latency}\n",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "templates": len(reg.AllTemplates())})
	})

	// 8. Routes
	authMW := auth.AuthMiddleware(cfg.JWTSecret)
	adminMW := auth.RequireAdmin()

	ruleHandler := engine.NewHandler(compiler, reg, cache, events, cfg.Compiler.Suggestions, lg)
	engine.RegisterRuleRoutes(app, ruleHandler, authMW)

	adminHandler := admin.NewHandler(db, reg, cache, lg)
	admin.RegisterAdminRoutes(app, adminHandler, authMW, adminMW)

	if cfg.Events.Enabled {
		instrument.RegisterEventRoutes(app, instrument.NewEventHandler(db.DB, db.Dialect), authMW, adminMW)
	}

	// 9. Serve until signalled
	errc := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		lg.Info("starting server", zap.String("addr", addr))
		errc <- app.Listen(addr)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		lg.Info("shutting down")
		return app.ShutdownWithTimeout(10 * time.Second)
	}
}
