package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	firebasesdk "firebase.google.com/go/v4"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	gateway "github.com/goliatone/go-auth-gateway"
	"github.com/goliatone/go-auth-gateway/activitymap"
	"github.com/goliatone/go-auth-gateway/config"
	"github.com/goliatone/go-auth-gateway/logging"
	"github.com/goliatone/go-auth-gateway/mailer"
	"github.com/goliatone/go-auth-gateway/provider/firebase"
	"github.com/goliatone/go-auth-gateway/repository"
	"github.com/goliatone/go-router"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "auth-gateway: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := logging.New(cfg.LogLevel, cfg.AppEnv).With("service", "auth-gateway")

	fbCfg := firebase.Config{
		ProjectID:       cfg.Firebase.ProjectID,
		WebAPIKey:       cfg.Firebase.WebAPIKey,
		CredentialsFile: cfg.Firebase.CredentialsFile,
		Timeout:         cfg.UpstreamTimeout,
	}

	app, err := firebase.NewApp(ctx, fbCfg)
	if err != nil {
		return err
	}

	admin, err := app.Auth(ctx)
	if err != nil {
		return fmt.Errorf("firebase auth client: %w", err)
	}

	validator, err := firebase.NewTokenValidator(ctx, fbCfg, logger)
	if err != nil {
		return err
	}
	defer validator.Close()

	provider := firebase.NewIdentityProvider(admin, firebase.NewRESTClient(fbCfg), validator)

	store, closeStore, err := openActionKeyStore(ctx, cfg, app)
	if err != nil {
		return err
	}
	defer closeStore()

	dispatcher, err := newDispatcher(cfg, logger)
	if err != nil {
		return err
	}

	actions := gateway.NewActionTokenService(store, dispatcher, cfg.EmailActionBaseURL).
		WithKeyLength(cfg.Store.KeyLength).
		WithLogger(logger)

	service := gateway.NewService(provider, actions).
		WithLogger(logger).
		WithActivitySink(activitymap.LogSink(logger.Entry().WithField("component", "activity"))).
		WithTimeout(cfg.UpstreamTimeout)

	sweepCtx, cancelSweep := context.WithCancel(ctx)
	defer cancelSweep()
	sweepDone := gateway.NewActionKeySweeper(store, cfg.Store.SweepInterval).
		WithLogger(logger).
		Start(sweepCtx)

	srv := router.NewFiberAdapter(func(*fiber.App) *fiber.App {
		app := fiber.New(fiber.Config{
			AppName:               "auth-gateway",
			ErrorHandler:          gateway.FiberErrorHandler,
			DisableStartupMessage: cfg.IsProduction(),
		})
		app.Use(recover.New())
		return app
	})

	gateway.RegisterAuthRoutes(srv.Router(), gateway.NewHTTPController(service,
		gateway.WithControllerLogger(logger),
		gateway.WithCookieDomain(cfg.Cookie.Domain),
		gateway.WithCookieSecure(cfg.Cookie.Secure),
	))

	for _, rt := range srv.Router().Routes() {
		logger.Debug("route %s %s", rt.Method, rt.Path)
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("listening on %s", cfg.Addr())
		errc <- srv.Serve(cfg.Addr())
	}()

	select {
	case err := <-errc:
		cancelSweep()
		<-sweepDone
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err = srv.Shutdown(shutdownCtx)

	cancelSweep()
	<-sweepDone

	return err
}

func openActionKeyStore(ctx context.Context, cfg *config.Config, app *firebasesdk.App) (gateway.ActionKeyStore, func(), error) {
	switch cfg.Store.Kind {
	case config.StoreFirestore:
		client, err := app.Firestore(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("firestore client: %w", err)
		}
		return repository.NewFirestoreActionKeyStore(client), func() { _ = client.Close() }, nil
	case config.StoreSQL:
		manager, err := repository.OpenDB(cfg.Store.Driver, cfg.Store.DSN)
		if err != nil {
			return nil, nil, err
		}
		if err := manager.RunMigrations(ctx); err != nil {
			_ = manager.Close()
			return nil, nil, err
		}
		return manager.ActionKeys(), func() { _ = manager.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown action key store %q", cfg.Store.Kind)
	}
}

func newDispatcher(cfg *config.Config, logger *logging.Logger) (gateway.EmailDispatcher, error) {
	if !cfg.SMTP.Enabled() {
		logger.Warn("SMTP_FROM_ADDRESS not set, action links are only logged")
		return mailer.NewLogDispatcher(logger), nil
	}

	d, err := mailer.NewSMTPDispatcher(mailer.Config{
		Host:        cfg.SMTP.Host,
		Port:        cfg.SMTP.Port,
		Username:    cfg.SMTP.Username,
		Password:    cfg.SMTP.Password,
		FromAddress: cfg.SMTP.FromAddress,
		FromName:    cfg.SMTP.FromName,
		Timeout:     cfg.UpstreamTimeout,
	})
	if err != nil {
		return nil, err
	}
	return d.WithLogger(logger), nil
}
