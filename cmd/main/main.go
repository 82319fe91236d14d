package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mt-gateway/src/config"
	"mt-gateway/src/grpc_control"
	"mt-gateway/src/interfaces"
	"mt-gateway/src/logger"
	"mt-gateway/src/network"
	"mt-gateway/src/notify"
	"mt-gateway/src/reconciler"
	"mt-gateway/src/registry"
	"mt-gateway/src/routing"
	"mt-gateway/src/server"
	"mt-gateway/src/storage"
	"mt-gateway/src/streaming"
	"mt-gateway/src/upstream"
	"mt-gateway/src/utils"
)

// -----------------------------------------------------------------------------

func main() {

	// Parse command line flags
	configPath := flag.String("config", "../../config/default.yaml", "path to config file")
	flag.Parse()

	// Load config from YAML file
	config, err := config.NewConfig(*configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	appLogger := logger.NewLogger(config.MConfig, config.Name)
	defer appLogger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1. Journal
	journal, err := storage.NewJournal(config.MConfig, appLogger.Named("Journal"))
	if err != nil {
		appLogger.Critical("Failed to init journal: %v", err)
	}
	if err := journal.Initialize(); err != nil {
		appLogger.Critical("Failed to initialize journal: %v", err)
	}

	// 2. Upstream session
	var networkManager interfaces.INetworkManager = network.NewAsyncNetworkManager(config.Network, appLogger.Named("Network"))
	terminal, err := upstream.NewTerminal(config.Upstream, networkManager, appLogger.Named("Terminal"))
	if err != nil {
		appLogger.Critical("Failed to create terminal client: %v", err)
	}
	session := upstream.NewSession(terminal, config.Upstream, appLogger.Named("Upstream"))

	// 3. Notification channel
	var sender interfaces.ISender = notify.LogSender{Logger: appLogger.Named("Notify")}
	if config.Notifier.Enabled {
		sender = notify.NewTelegramSender(config.Notifier, config.Network, appLogger.Named("Telegram"))
	}
	breaker := notify.NewCircuitBreaker(config.Notifier.FailureThreshold, time.Duration(config.Notifier.CooldownSeconds)*time.Second, time.Now)
	channel := notify.NewChannel(sender, breaker, config.Notifier.QueueSize, appLogger.Named("Notify"))
	channel.Start(ctx)

	// 4. Reconciler
	var rec *reconciler.Reconciler
	var recState grpc_control.ReconcilerState
	if config.Reconciler.Enabled {
		rec = reconciler.New(session, channel, journal, config.Reconciler, appLogger.Named("Reconciler"))
		recState = rec
		go rec.Run(ctx)
	}

	// 5. Streaming
	scheduler := streaming.NewScheduler(ctx, session, nil, journal, config.Streaming, appLogger.Named("Scheduler"))
	if config.Streaming.MarketHoursGate {
		scheduler.WithGate(utils.NewMarketHours(appLogger.Named("MarketHours")))
	}
	reg := registry.New(scheduler, appLogger.Named("Registry"))

	// 6. Order routing and HTTP/WebSocket server
	router := routing.NewRouter(session, config.Orders, channel, journal, appLogger.Named("Router"))
	srv := server.NewGatewayServer(config.MConfig, session, router, reg, appLogger.Named("Server"))
	scheduler.SetTransport(srv)

	go func() {
		if err := srv.Start(); err != nil {
			appLogger.Error("Server failed: %v", err)
			cancel()
		}
	}()

	// 7. gRPC control plane
	control := grpc_control.NewControlService(reg, session, channel, recState, appLogger.Named("Control"))
	grpcServer := grpc_control.NewServer(control, appLogger.Named("gRPC"))
	if config.GrpcPort != 0 {
		addr := fmt.Sprintf("%s:%d", config.GrpcHost, config.GrpcPort)
		lis, err := net.Listen("tcp", addr)
		if err != nil {
			appLogger.Critical("Failed to listen on %s: %v", addr, err)
		}
		go func() {
			appLogger.Info("gRPC control listening on %s", addr)
			if err := grpcServer.Serve(lis); err != nil {
				appLogger.Error("gRPC server failed: %v", err)
			}
		}()
	}

	appLogger.Info("Gateway ready (upstream=%s, journal=%s)", config.Upstream.Kind, config.Storage.DBType)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case <-quit:
	case <-ctx.Done():
	}

	appLogger.Info("Shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Stop(shutdownCtx); err != nil {
		appLogger.Warning("HTTP shutdown: %v", err)
	}
	grpcServer.GracefulStop()

	cancel()
	reg.StopAll()
	scheduler.Wait()

	select {
	case <-channel.Done():
	case <-shutdownCtx.Done():
		appLogger.Warning("Notification queue not drained before shutdown")
	}

	if err := session.Close(); err != nil {
		appLogger.Warning("Terminal shutdown: %v", err)
	}
	if err := journal.Close(); err != nil {
		appLogger.Warning("Journal close: %v", err)
	}
	appLogger.Info("Stopped")
}
