package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dukerupert/daybook/internal/archive"
	"github.com/dukerupert/daybook/internal/auth"
	"github.com/dukerupert/daybook/internal/calendar"
	"github.com/dukerupert/daybook/internal/config"
	"github.com/dukerupert/daybook/internal/database"
	"github.com/dukerupert/daybook/internal/email"
	"github.com/dukerupert/daybook/internal/export"
	"github.com/dukerupert/daybook/internal/feed"
	"github.com/dukerupert/daybook/internal/logging"
	"github.com/dukerupert/daybook/internal/middleware"
	"github.com/dukerupert/daybook/internal/notify"
	"github.com/dukerupert/daybook/internal/push"
	"github.com/dukerupert/daybook/internal/server"
	"github.com/dukerupert/daybook/internal/store"
)

func main() {
	if err := run(); err != nil {
		slog.Error("daybook stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.Setup(cfg.Log.Level, cfg.Log.Format)
	if err := cfg.ValidateServer(); err != nil {
		return err
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := feed.NewHub(logger.With("component", "feed"))
	var notifier store.Notifier = hub
	var limiter middleware.Limiter = middleware.NewMemoryLimiter()

	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("parse redis url: %w", err)
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}

		bridge := feed.NewRedisBridge(rdb, hub, cfg.Redis.ChannelPrefix, logger.With("component", "redis_bridge"))
		notifier = bridge
		go func() {
			if err := bridge.Run(ctx); err != nil {
				logger.Error("redis bridge stopped", "error", err)
			}
		}()
		limiter = middleware.NewRedisLimiter(rdb, "daybook:ratelimit:")
		logger.Info("redis enabled", "addr", opts.Addr)
	}

	days := store.NewDayStore(db, notifier)
	pushStore := store.NewPushStore(db)

	emailClient := email.NewClient(cfg.Postmark.Token, cfg.Postmark.FromEmail, cfg.PublicURL())
	pushSvc := push.NewService(cfg.Push.VAPIDPublicKey, cfg.Push.VAPIDPrivateKey, cfg.Push.Subscriber)
	dispatcher := notify.NewDispatcher(emailClient, cfg.Postmark.AdminEmail, pushSvc, pushStore, logger.With("component", "notify"))

	svc := calendar.NewService(days, hub, dispatcher, logger.With("component", "calendar"))

	archiveMgr := archive.NewManager(archive.Config{
		S3: archive.S3Config{
			Endpoint:  cfg.Archive.Endpoint,
			Bucket:    cfg.Archive.Bucket,
			Region:    cfg.Archive.Region,
			AccessKey: cfg.Archive.AccessKey,
			SecretKey: cfg.Archive.SecretKey,
		},
		Passphrase:    cfg.Archive.Passphrase,
		RetentionDays: cfg.Archive.RetentionDays,
	}, days, store.NewArchiveStore(db), logger.With("component", "archive"))
	archiveMgr.Start(ctx, cfg.Archive.CleanupInterval)
	defer archiveMgr.Stop()

	srv := server.New(server.Deps{
		DB:          db,
		Calendar:    svc,
		PushStore:   pushStore,
		PushService: pushSvc,
		Archiver:    archiveMgr,
		Verifier:    auth.NewVerifier(cfg.Auth.Secret, auth.NewAllowList(cfg.Auth.Admins...)),
		Limiter:     limiter,
	}, server.Options{
		BookingLimit:  cfg.Booking.RateLimit,
		BookingWindow: cfg.Booking.RateWindow,
		ICS: export.ICSOptions{
			Name:     cfg.ICS.Name,
			Place:    cfg.ICS.Place,
			Location: loc,
		},
	}, logger)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Memory limiter cleanup
	if ml, ok := limiter.(*middleware.MemoryLimiter); ok {
		go func() {
			ticker := time.NewTicker(10 * time.Minute)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					ml.Cleanup()
				}
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("daybook listening", "addr", httpServer.Addr, "archives", archiveMgr.Enabled(), "push", pushSvc.Configured(), "email", emailClient.Configured())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	dispatcher.Wait()
	return nil
}
