package main

import (
	"chat-room/auth"
	"chat-room/contract"
	"chat-room/export"
	"chat-room/infrastructure/gotrue"
	"chat-room/infrastructure/realtime"
	"chat-room/infrastructure/realtime/memory"
	"chat-room/internal"
	"chat-room/observability"
	"chat-room/services"
	"chat-room/storage"
	"chat-room/ui"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
)

const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Chat terminated with error: %v\n", err)
	}
	os.Exit(code)
}

func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	config, err := internal.Load()
	if err != nil {
		return exitConfig, err
	}
	location, err := config.Location()
	if err != nil {
		return exitConfig, err
	}
	logger := logs.GetLoggerFromString(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Auth and realtime, hosted or offline
	authService, realtimeService, closeRealtime := buildAdapters(ctx, logger, config)
	defer closeRealtime()

	// 3. Controller and sinks
	locale := export.LocaleFor(config.ExportLocale)
	renderer := ui.NewRenderer(os.Stdout, locale, location, true)
	metrics := observability.NewMetrics()
	controller := services.NewChatSessionController(
		logger,
		authService,
		realtimeService,
		storage.NewDiskSaver(logger, config.ExportDir),
		export.NewExporter(locale, location, time.Now),
		services.ControllerConfig{
			ChannelName:   config.ChannelName,
			BroadcastSelf: config.BroadcastSelf || config.Offline(),
		},
	).Add(renderer, metrics)
	defer controller.Close(context.Background())

	if config.MetricsAddr != "" {
		go func() {
			if err := observability.Serve(ctx, logger, config.MetricsAddr, metrics.Handler()); err != nil {
				logger.Error("Metrics endpoint stopped", "error", err)
			}
		}()
	}

	if err := controller.Start(ctx); err != nil {
		return exitRuntime, err
	}

	// 4. Input loop
	_ = renderer.PrintHelp()
	console := ui.NewConsole(logger, controller, renderer, config.AuthProvider)
	if err := console.Run(ctx, os.Stdin); err != nil {
		return exitRuntime, fmt.Errorf("reading input: %w", err)
	}
	logger.Debug("Chat stopped")
	return exitOK, nil
}

func buildAdapters(ctx context.Context, logger *slog.Logger, config internal.Config) (contract.AuthService, contract.RealtimeService, func()) {
	if config.Offline() {
		logger.Info("No REALTIME_URL set, running offline", "display_name", config.DisplayName)
		authService := auth.NewLocalAuthService(logger, config.DisplayName, []byte(uuid.NewString()), config.LocalTokenDuration)
		return authService, memory.NewHub(logger), func() {}
	}

	authClient := gotrue.NewClient(logger, gotrue.Config{
		URL:         config.AuthURL,
		APIKey:      config.AuthAPIKey,
		RedirectURL: gotrue.RedirectURL(config.AuthRedirectAddr),
		JWTSecret:   []byte(config.AuthJWTSecret),
	}, nil)
	callback := gotrue.NewCallbackServer(logger, config.AuthRedirectAddr, authClient)
	go func() {
		if err := callback.Run(ctx); err != nil {
			logger.Error("Auth callback listener stopped", "error", err)
		}
	}()

	realtimeClient := realtime.NewClient(logger, realtime.Config{
		URL:               config.RealtimeURL,
		APIKey:            config.AuthAPIKey,
		HeartbeatInterval: config.HeartbeatInterval,
	})
	return authClient, realtimeClient, func() {
		if err := realtimeClient.Close(); err != nil {
			logger.Debug("Realtime close failed", "error", err)
		}
	}
}
