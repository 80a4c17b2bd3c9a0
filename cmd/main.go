package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ukydev/carbuddy/internal/advisor"
	"github.com/ukydev/carbuddy/internal/agent"
	"github.com/ukydev/carbuddy/internal/auth"
	"github.com/ukydev/carbuddy/internal/config"
	"github.com/ukydev/carbuddy/internal/db"
	"github.com/ukydev/carbuddy/internal/handlers"
	"github.com/ukydev/carbuddy/internal/maintenance"
	"github.com/ukydev/carbuddy/internal/middleware"
	"github.com/ukydev/carbuddy/internal/notify"
	"github.com/ukydev/carbuddy/internal/places"
	"github.com/ukydev/carbuddy/internal/scheduler"
	"github.com/ukydev/carbuddy/internal/telemetry"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.WithError(err).Fatal("CarBuddy exited")
	}
}

func setupLogging(level string) {
	log.SetFormatter(&log.JSONFormatter{})
	lvl, err := log.ParseLevel(level)
	if err != nil {
		log.WithField("level", level).Warn("Unknown log level, using info")
		lvl = log.InfoLevel
	}
	log.SetLevel(lvl)
}

func run(ctx context.Context, cfg config.Config) error {
	shutdownTelemetry, err := telemetry.Init(ctx, cfg.OTelEnabled, "carbuddy")
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			log.WithError(err).Warn("Failed to flush metrics")
		}
	}()
	metrics, err := telemetry.NewMetrics(telemetry.Meter())
	if err != nil {
		return err
	}

	client, err := db.ConnectMongo(ctx, cfg.MongoURI)
	if err != nil {
		return fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	defer func() {
		if err := client.Disconnect(context.Background()); err != nil {
			log.WithError(err).Warn("Failed to disconnect from MongoDB")
		}
	}()
	log.WithField("database", cfg.MongoDB).Info("Connected to MongoDB")
	store := db.NewStore(client.Database(cfg.MongoDB))

	catalog, err := maintenance.LoadCatalog(cfg.CatalogPath)
	if err != nil {
		return err
	}

	completer, err := newCompleter(cfg)
	if err != nil {
		return err
	}
	shopClient := places.NewClient(cfg.MapsAPIKey, cfg.PlacesBaseURL)

	channels, err := newChannels(cfg)
	if err != nil {
		return err
	}
	defer channels.close()
	dispatcher := notify.NewDispatcher(channels.publisher, channels.sms, channels.mailer, store.Notifications, metrics)

	carAdvisor := advisor.New(completer).WithCatalog(catalog)
	carAgent := agent.New(agent.Deps{
		Store:         store,
		Actions:       store.Actions,
		Notifications: store.Notifications,
		Catalog:       catalog,
		Advisor:       carAdvisor,
		Shops:         shopClient,
		Notifier:      dispatcher,
		Metrics:       metrics,
	}, agent.Config{
		Concurrency:       cfg.AgentConcurrency,
		VehicleTimeout:    cfg.VehicleTimeout,
		SearchRadiusMiles: cfg.SearchRadiusMiles,
	})

	jobs := carAgent.Jobs()
	sched := scheduler.New(carAgent.RecordJob, jobs...)
	sched.Start(ctx)

	var handlerShops agent.ShopFinder
	if cfg.MapsAPIKey != "" {
		handlerShops = shopClient
	}
	authService := auth.NewService(cfg.JWTSecret, cfg.JWTExpiry)
	router := handlers.NewRouter(handlers.RouterConfig{
		Auth:      middleware.NewAuthMiddleware(authService),
		RateLimit: middleware.NewRateLimitMiddleware(),
		Vehicles:  handlers.NewVehicleHandler(store, catalog, handlerShops, cfg.SearchRadiusMiles).WithDiagnoser(carAdvisor),
		Jobs:      handlers.NewJobHandler(sched, jobs),
		Ping: func(ctx context.Context) error {
			return client.Ping(ctx, nil)
		},
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("port", cfg.Port).Info("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutting down")
	case err := <-errCh:
		if err != nil {
			log.WithError(err).Error("HTTP server failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("HTTP server did not shut down cleanly")
	}
	sched.Wait()
	return nil
}

func newCompleter(cfg config.Config) (advisor.Completer, error) {
	if cfg.AnthropicAPIKey == "" {
		log.Warn("ANTHROPIC_API_KEY not set, using rule-based recommendations")
		return nil, nil
	}
	c, err := advisor.NewAnthropicCompleter(cfg.AnthropicAPIKey, cfg.AnthropicModel)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// channels are the optional delivery backends. Unset fields stay nil
// interfaces so the dispatcher reports the channel as unavailable.
type channels struct {
	publisher notify.Publisher
	sms       notify.SMSSender
	mailer    notify.Mailer
	close     func()
}

func newChannels(cfg config.Config) (channels, error) {
	ch := channels{close: func() {}}

	if cfg.MQTTBroker != "" {
		pub, err := notify.NewMQTTPublisher(cfg.MQTTBroker, cfg.MQTTClientID)
		if err != nil {
			return ch, err
		}
		ch.publisher, ch.close = pub, pub.Close
	} else {
		log.Warn("MQTT_BROKER not set, push notifications disabled")
	}

	if cfg.TwilioAccountSID != "" && cfg.TwilioAuthToken != "" && cfg.TwilioPhoneNumber != "" {
		ch.sms = notify.NewTwilioClient(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioPhoneNumber, cfg.TwilioBaseURL)
	} else {
		log.Warn("Twilio not configured, SMS disabled")
	}

	if cfg.SMTPAddr != "" {
		mailer, err := notify.NewSMTPMailer(cfg.SMTPAddr, cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPFrom)
		if err != nil {
			ch.close()
			return channels{close: func() {}}, err
		}
		ch.mailer = mailer
	} else {
		log.Warn("SMTP_ADDR not set, email disabled")
	}
	return ch, nil
}
