package main // Entry point package

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/switchstack/switchstack-api/internal/config"
	"github.com/switchstack/switchstack-api/internal/database"
	"github.com/switchstack/switchstack-api/internal/handler"
	"github.com/switchstack/switchstack-api/internal/ingest"
	"github.com/switchstack/switchstack-api/internal/middleware"
	"github.com/switchstack/switchstack-api/internal/mqtt"
	"github.com/switchstack/switchstack-api/internal/queue"
	"github.com/switchstack/switchstack-api/internal/repository"
	"github.com/switchstack/switchstack-api/internal/router"
	"github.com/switchstack/switchstack-api/internal/service"
	"github.com/switchstack/switchstack-api/internal/utils"
)

func main() {
	// config.env first, then .env; neither is required
	_ = godotenv.Load("config.env")
	_ = godotenv.Load()

	cfg := config.Load()
	log := newLogger(cfg)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

func newLogger(cfg config.Config) *slog.Logger {
	if cfg.IsProduction() {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tokenTTL, err := utils.ParseExpiry(cfg.JWTExpiresIn)
	if err != nil {
		return err
	}

	db, err := database.Open(cfg.DSN())
	if err != nil {
		return err
	}
	defer db.Close()
	log.Info("database connected")

	if cfg.MigrateOnStart {
		if err := database.Migrate(db); err != nil {
			return err
		}
	}

	rdb := config.NewRedisClient() // nil when Redis is unreachable
	if rdb == nil {
		log.Warn("redis unavailable; rate limiting and caching disabled")
	} else {
		defer rdb.Close()
	}

	users := repository.NewUserRepo(db)
	esps := repository.NewEspRepo(db)
	switches := repository.NewSwitchRepo(db)

	// Device channel: status in, commands out.
	icfg := config.LoadIngestConfig()
	ingestor := ingest.New(ingestStore{esps, switches}, users, ingest.Options{
		RatePerSecond: icfg.RatePerSecond,
		Burst:         icfg.Burst,
		LayoutTTL:     icfg.LayoutTTL,
	}, log)

	var commands service.CommandPublisher
	if icfg.MQTTBroker != "" {
		mc, err := mqtt.Connect(icfg, log)
		if err != nil {
			log.Error("mqtt connect failed; transport disabled", "err", err)
		} else {
			defer mc.Close()
			if err := mc.SubscribeStatus(ctx, icfg.StatusTopic, ingestor); err != nil {
				log.Error("mqtt subscribe failed", "topic", icfg.StatusTopic, "err", err)
			}
			commands = mc
		}
	}
	if icfg.AMQPURL != "" {
		consumer := &queue.StatusConsumer{
			URL:      icfg.AMQPURL,
			Queue:    icfg.StatusQueue,
			Sink:     ingestor,
			Log:      log,
			Prefetch: 50,
		}
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("status consumer stopped", "err", err)
			}
		}()
		if commands == nil {
			pub := queue.NewCommandPublisher(icfg.AMQPURL, icfg.CommandQueue, log)
			defer pub.Close()
			commands = pub
		}
	}
	if commands == nil {
		log.Warn("no command transport configured; switch commands are not forwarded")
	}

	auth := service.NewAuthService(users, service.AuthOptions{
		Secret:     cfg.JWTSecret,
		TokenTTL:   tokenTTL,
		CookieDays: cfg.CookieExpireDays,
		BcryptCost: cfg.BcryptCost,
	}, log)
	devices := service.NewDeviceService(esps, switches, commands, log)

	e := newEcho(cfg, log)

	rl := config.LoadRateLimitConfig()
	authRL := rl.WithCapacity(rl.AuthCapacity, rl.Prefix+"-auth")
	authRL.KeyStrategy = "ip"
	guards := router.Guards{
		Protect:   middleware.Protect(auth),
		AuthLimit: middleware.NewTokenBucket(authRL, rdb, log),
		Limit:     middleware.NewTokenBucket(rl, rdb, log),
		Cache:     middleware.NewRedisCache(config.LoadCacheConfig(), rdb, log),
	}
	router.RegisterRoutes(e)
	router.RegisterUsers(e, handler.NewAuthHandler(auth, cfg.IsProduction()), guards)
	router.RegisterEsps(e, handler.NewEspHandler(devices), guards)

	addr := ":" + cfg.Port
	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", addr, "env", cfg.Env)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err = e.Shutdown(shutdownCtx)
	ingestor.Flush(shutdownCtx)
	return err
}

func newEcho(cfg config.Config, log *slog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = handler.ErrorHandler(log)

	e.Use(echomw.Recover())
	e.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
				"ip", v.RemoteIP,
			}
			if v.Error != nil {
				attrs = append(attrs, "err", v.Error)
			}
			log.LogAttrs(c.Request().Context(), slog.LevelInfo, "request", slog.Group("http", attrs...))
			return nil
		},
	}))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{echo.HeaderContentType, echo.HeaderAuthorization},
		AllowCredentials: true,
	}))
	return e
}

// ingestStore joins the two repositories the ingestor reads and writes.
type ingestStore struct {
	esps     *repository.EspRepo
	switches *repository.SwitchRepo
}

func (s ingestStore) Layout(ctx context.Context, espID string) (repository.Layout, error) {
	return s.esps.Layout(ctx, espID)
}

func (s ingestStore) SetStateAt(ctx context.Context, espPK uint64, position int, state bool) error {
	return s.switches.SetStateAt(ctx, espPK, position, state)
}
