package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/faeln1/go-contact-groups/internal/app/controllers"
	"github.com/faeln1/go-contact-groups/internal/app/repositories"
	"github.com/faeln1/go-contact-groups/internal/app/services"
	"github.com/faeln1/go-contact-groups/internal/config"
	"github.com/faeln1/go-contact-groups/internal/platform/database"
	httpPlatform "github.com/faeln1/go-contact-groups/internal/platform/http"
	"github.com/faeln1/go-contact-groups/internal/platform/middleware"
	"github.com/faeln1/go-contact-groups/pkg/eventlog"
	"github.com/faeln1/go-contact-groups/pkg/logger"
	storagepkg "github.com/faeln1/go-contact-groups/pkg/storage"
	minioStorage "github.com/faeln1/go-contact-groups/pkg/storage/minio"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: could not load .env: %v", err)
	}

	cfg := config.MustLoad()
	loggers := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loggers.App.Infof("configuration: env=%s driver=%s", cfg.Env, cfg.DBDriver)

	var objectStorage storagepkg.Service
	if cfg.Storage.Enabled() {
		objects, err := minioStorage.New(ctx, minioStorage.Config{
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			Bucket:    cfg.Storage.Bucket,
			Region:    cfg.Storage.Region,
			UseSSL:    cfg.Storage.UseSSL,
			PublicURL: cfg.Storage.PublicURL,
		})
		if err != nil {
			log.Fatalf("storage initialization error: %v", err)
		}
		objectStorage = objects
		loggers.App.Infof("object storage enabled bucket=%s endpoint=%s", cfg.Storage.Bucket, cfg.Storage.Endpoint)
	}

	var (
		store   repositories.Store
		wake    <-chan struct{}
		closers []func() error
	)

	switch cfg.DBDriver {
	case "postgres":
		loggers.Store.Infof("initializing postgres store with GORM pool")
		db, err := database.Open(ctx, cfg.DatabaseDSN, database.DefaultPool)
		if err != nil {
			log.Fatalf("database connection error: %v", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			log.Fatalf("database handle retrieval error: %v", err)
		}
		store, err = repositories.NewPostgresStore(sqlDB)
		if err != nil {
			log.Fatalf("store initialization error: %v", err)
		}
		closers = append(closers, store.Close)
		listener, err := database.NewListener(cfg.DatabaseDSN, repositories.EventsChannel, loggers.Store.Sub("Listen"))
		if err != nil {
			loggers.Store.Warnf("LISTEN unavailable, relay falls back to polling: %v", err)
		} else {
			wake = listener.Wake()
			closers = append(closers, listener.Close)
		}
	case "sqlite":
		loggers.Store.Infof("initializing sqlite store")
		db, err := database.OpenSQLite(ctx, cfg.DatabaseDSN)
		if err != nil {
			log.Fatalf("database connection error: %v", err)
		}
		store, err = repositories.NewSQLiteStore(db)
		if err != nil {
			log.Fatalf("store initialization error: %v", err)
		}
		closers = append(closers, store.Close)
	default:
		loggers.Store.Warnf("initializing in-memory store; data is lost on restart")
		store = repositories.NewInMemoryStore()
	}
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				loggers.App.Errorf("error closing resource: %v", err)
			}
		}
	}()

	passwords := services.NewPasswordGate(cfg.BcryptCost)
	emitter := services.NewNotificationEmitter(nil)

	groupSvc := services.NewGroupService(store, passwords, services.NewTokenIssuer(), emitter, loggers.Component("Groups"))
	membershipSvc := services.NewMembershipService(store, passwords, emitter, services.MembershipOptions{
		RequireAccountForPasswordGroups: cfg.RequireAccountForLocked,
	}, loggers.Component("Membership"))
	profileSvc := services.NewProfileService(store, objectStorage, loggers.Component("Profiles"))
	reaper := services.NewOwnershipReaper(store, emitter, loggers.Component("Reaper"))

	dispatcher := services.WithArchive(
		services.NewWebhookEventsDispatcher(cfg.EventsWebhookURL, cfg.EventsWebhookToken, &http.Client{Timeout: 10 * time.Second}, loggers.Relay.Sub("Webhook")),
		eventlog.NewWriter(cfg.EventLogDir, loggers.Relay.Sub("Archive")),
		loggers.Relay,
	)
	relay := services.NewEventRelay(store, dispatcher, services.RelayOptions{
		Interval: cfg.RelayInterval,
		Wake:     wake,
	}, loggers.Relay)
	relayDone := make(chan struct{})
	go func() {
		defer close(relayDone)
		if err := relay.Run(ctx); err != nil {
			loggers.Relay.Errorf("relay stopped: %v", err)
		}
	}()

	router := httpPlatform.NewRouter(httpPlatform.RouterConfig{
		GroupCtrl:      controllers.NewGroupController(groupSvc, membershipSvc, cfg.PublicBaseURL, loggers.HTTP),
		MembershipCtrl: controllers.NewMembershipController(groupSvc, membershipSvc, loggers.HTTP),
		ProfileCtrl:    controllers.NewProfileController(profileSvc, loggers.HTTP),
		AdminCtrl:      controllers.NewAdminController(reaper, loggers.HTTP),
		Auth:           middleware.NewAuthenticator(cfg.JWTSecret),
		Logger:         loggers.HTTP,
		SwaggerEnable:  cfg.SwaggerEnable,
		OpenAPIPath:    cfg.OpenAPIPath,
		MasterToken:    cfg.MasterToken,
		CORSOrigins:    cfg.CORSOrigins,
	})

	srv := &http.Server{Addr: ":" + cfg.HTTPPort, Handler: router, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		loggers.App.Infof("HTTP server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// Graceful shutdown
	<-ctx.Done()
	loggers.App.Infof("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		loggers.App.Errorf("http shutdown: %v", err)
	}
	<-relayDone
}
