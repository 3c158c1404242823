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

	"github.com/Netflix/go-env"
	"github.com/goevery/seatcast/internal/auth"
	"github.com/goevery/seatcast/internal/broadcaster"
	"github.com/goevery/seatcast/internal/capacity"
	"github.com/goevery/seatcast/internal/collector"
	"github.com/goevery/seatcast/internal/dispatch"
	"github.com/goevery/seatcast/internal/engine"
	"github.com/goevery/seatcast/internal/fanout"
	"github.com/goevery/seatcast/internal/handler"
	"github.com/goevery/seatcast/internal/mail"
	"github.com/goevery/seatcast/internal/perf"
	"github.com/goevery/seatcast/internal/persistence"
	"github.com/goevery/seatcast/internal/persistence/memory"
	"github.com/goevery/seatcast/internal/persistence/mongodb"
	"github.com/goevery/seatcast/internal/persistence/postgres"
	"github.com/goevery/seatcast/internal/server"
	"github.com/goevery/seatcast/internal/strategy"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type courseStore interface {
	capacity.Store
	collector.TxBeginner
}

type App struct {
	logger   *zap.Logger
	settings Settings

	closers []func(ctx context.Context)

	websocketServer *server.WebSocketServer
	restServer      *server.RESTServer
}

func NewApp(ctx context.Context, logger *zap.Logger, settings Settings) (*App, error) {
	app := &App{
		logger:   logger,
		settings: settings,
	}

	kind, err := strategy.ParseKind(settings.DeliveryStrategy)
	if err != nil {
		logger.Warn("unknown delivery strategy, using default",
			zap.String("configured", settings.DeliveryStrategy),
			zap.String("strategy", string(strategy.DefaultKind)),
			zap.Error(err))

		kind = strategy.DefaultKind
	}

	dispatcher := dispatch.New(logger, kind)
	err = dispatcher.Init(broadcaster.NewQueueTransport())
	if err != nil {
		return nil, err
	}

	store, err := app.openStore(ctx)
	if err != nil {
		return nil, err
	}

	history, err := app.openHistory(ctx)
	if err != nil {
		return nil, err
	}

	tracker := capacity.NewTracker(logger, store)
	err = tracker.Load(ctx)
	if err != nil {
		logger.Warn("failed to warm capacity cache, courses load on first change", zap.Error(err))
	}

	sender, err := mail.NewSender(ctx, logger, settings.mailConfig())
	if err != nil {
		return nil, err
	}
	sender = mail.NewRateLimitedSender(sender, settings.MailRatePerSecond, settings.MailConcurrency)

	monitor := perf.NewMonitor(logger, settings.slowOperationThreshold())

	e := engine.New(
		logger,
		tracker,
		dispatcher,
		collector.New(logger, store),
		fanout.New(logger, dispatcher, sender, settings.MailConcurrency),
		history,
		monitor,
	)

	authenticator := auth.NewAuthenticator(settings.JWTSecret, settings.apiKeys())
	topicValidator := handler.NewTopicValidator()

	heartbeatHandler := handler.NewHeartbeatHandler()
	authHandler := handler.NewAuthHandler(authenticator, dispatcher)
	subscribeHandler := handler.NewSubscribeHandler(topicValidator, dispatcher)
	unsubscribeHandler := handler.NewUnsubscribeHandler(topicValidator, dispatcher)
	publishHandler := handler.NewPublishHandler(e)

	router := server.NewRouter(
		logger,
		heartbeatHandler,
		authHandler,
		subscribeHandler,
		unsubscribeHandler,
		publishHandler,
	)

	originChecker := server.NewOriginChecker(settings.allowedOrigins())
	websocketUpgrader := &websocket.Upgrader{
		ReadBufferSize:    1024,
		WriteBufferSize:   1024,
		CheckOrigin:       originChecker.Check,
		EnableCompression: true,
	}

	app.websocketServer = server.NewWebSocketServer(
		logger,
		websocketUpgrader,
		dispatcher,
		router,
	)
	app.restServer = server.NewRESTServer(
		logger,
		authenticator,
		publishHandler,
		handler.NewBookingChangeHandler(e),
		handler.NewDeleteCourseHandler(e),
		handler.NewHistoryHandler(e),
		handler.NewStatsHandler(monitor),
	)

	return app, nil
}

func (a *App) openStore(ctx context.Context) (courseStore, error) {
	if a.settings.DatabaseURL == "" {
		a.logger.Warn("DATABASE_URL not set, using in-memory course store")

		store := memory.NewStore()
		if a.settings.MemorySeedFile != "" {
			err := seedStore(store, a.settings.MemorySeedFile)
			if err != nil {
				return nil, err
			}

			a.logger.Info("in-memory course store seeded", zap.String("file", a.settings.MemorySeedFile))
		}

		return store, nil
	}

	if a.settings.RunMigrations {
		err := postgres.RunMigrations(a.settings.DatabaseURL)
		if err != nil {
			return nil, err
		}
	}

	pool, err := postgres.Connect(ctx, a.settings.DatabaseURL)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func(context.Context) { pool.Close() })

	return postgres.NewStore(pool), nil
}

func seedStore(store *memory.Store, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open seed file: %w", err)
	}
	defer file.Close()

	return store.Seed(file)
}

func (a *App) openHistory(ctx context.Context) (persistence.EventLog, error) {
	if a.settings.MongoDBURI == "" {
		return memory.NewEventLog(), nil
	}

	client, err := mongodb.Connect(ctx, a.settings.MongoDBURI)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func(ctx context.Context) {
		err := client.Disconnect(ctx)
		if err != nil {
			a.logger.Warn("failed to disconnect from mongo", zap.Error(err))
		}
	})

	history := mongodb.NewEventLog(client)
	err = history.Setup(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to set up event history: %w", err)
	}

	return history, nil
}

func (a *App) close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i](ctx)
	}
}

func (a *App) startHttpServer(ctx context.Context) {
	notifyCtx, notifyCtxCancel := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer notifyCtxCancel()

	address := fmt.Sprintf("0.0.0.0:%d", a.settings.Port)

	router := mux.NewRouter().
		PathPrefix(a.settings.BasePath).
		Subrouter()

	a.websocketServer.Register(router)
	a.restServer.Register(router)

	httpServer := &http.Server{
		Addr:    address,
		Handler: router,
	}

	a.logger.Info("starting http server",
		zap.String("address", address))

	go func() {
		err := httpServer.ListenAndServe()

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Fatal("failed to start http server",
				zap.Error(err))
		}
	}()

	<-notifyCtx.Done()

	a.logger.Info("stopping http server")

	shutdownCtx, shutdownCtxCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCtxCancel()

	err := httpServer.Shutdown(shutdownCtx)
	if err != nil {
		a.logger.Error("http server shutdown failed",
			zap.Error(err))
	}

	a.close(shutdownCtx)

	a.logger.Info("http server stopped")
}

func main() {
	ctx := context.Background()

	var settings Settings
	_, err := env.UnmarshalFromEnviron(&settings)
	if err != nil {
		bootstrap, _ := zap.NewDevelopment()
		bootstrap.Fatal("failed to parse settings from environment", zap.Error(err))
	}

	logger, err := buildZapLogger(settings.LogEncoding, settings.LogLevel)
	if err != nil {
		bootstrap, _ := zap.NewDevelopment()
		bootstrap.Fatal("failed to build logger", zap.Error(err))
	}
	defer logger.Sync()

	app, err := NewApp(ctx, logger, settings)
	if err != nil {
		logger.Fatal("failed to setup", zap.Error(err))
	}

	app.startHttpServer(ctx)
}
