package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/devicelab/controller/internal/adapter/httpapi"
	"github.com/devicelab/controller/internal/adapter/platformadapter/android"
	"github.com/devicelab/controller/internal/adapter/platformadapter/ios"
	"github.com/devicelab/controller/internal/adapter/realtimehub"
	"github.com/devicelab/controller/internal/core/domain"
	"github.com/devicelab/controller/internal/core/port"
	"github.com/devicelab/controller/internal/core/service/mirror"
	"github.com/devicelab/controller/internal/core/service/registry"
	"github.com/devicelab/controller/internal/core/service/reservation"
	"github.com/devicelab/controller/internal/core/service/supervisor"
	"github.com/devicelab/controller/internal/platform/applog"
	"github.com/devicelab/controller/internal/platform/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "start the device lab controller's HTTP and realtime server",
	Long:  `Starts device discovery, the Appium driver supervisor, and the HTTP/realtime API.`,
	Run:   runServe,
}

func init() {
	RootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) {
	cfg := config.Load()
	logger := applog.New(applog.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Env: cfg.AppEnv})

	clock := port.SystemClock{}

	androidAdapter := android.New(android.DefaultConfig())
	iosAdapter := ios.New(ios.DefaultConfig(), clock)

	reg := registry.New(androidAdapter, iosAdapter, clock, logger)
	resv := reservation.New(reg, clock, logger)

	supCfg := supervisor.DefaultConfig()
	supCfg.BasePort = cfg.DriverBasePort
	supCfg.PortRange = cfg.DriverPortRange
	if cfg.DriverBinaryPath != "" {
		supCfg.DriverBinaryPath = cfg.DriverBinaryPath
	}
	sup := supervisor.New(supCfg, reg, clock, logger)

	pump := mirror.New(cfg.MirrorFPSCeiling, androidAdapter, iosAdapter, reg, clock, logger)

	hub := realtimehub.New(logger)

	// Setter-wired dependencies, breaking the construction cycle between
	// the hub (which needs to call back into every service) and the
	// services (which need to broadcast through the hub).
	reg.SetSupervisor(sup)
	reg.SetBroadcaster(hub)
	resv.SetBroadcaster(hub)
	sup.SetBroadcaster(hub)
	sup.SetReservationManager(resv)
	pump.SetBroadcaster(hub)
	hub.SetRegistry(reg)
	hub.SetReservationManager(resv)
	hub.SetMirrorPump(pump)
	hub.SetSupervisor(sup)

	if cfg.SeedMockDevices {
		seedMockDevices(reg)
	}

	sup.OrphanCleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg.Discover(ctx)
	go runDiscoveryLoop(ctx, reg, cfg.DiscoveryInterval, logger)
	go runHealthLoop(ctx, hub, cfg.HealthBroadcastInterval)

	router := httpapi.New(httpapi.Deps{
		Logger:          logger,
		Registry:        reg,
		Reservation:     resv,
		Supervisor:      sup,
		Hub:             hub,
		UploadDir:       cfg.UploadDir,
		FrontendURL:     cfg.FrontendURL,
		RateLimitPerMin: rateLimitForEnv(cfg),
		RateLimitBurst:  20,
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{Addr: addr, Handler: router}

	go func() {
		logger.Info("server starting", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	waitForShutdown(logger)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}

	// Stop the discovery/health tickers before tearing down driver
	// servers, so neither loop reaches into a supervisor mid-shutdown.
	cancel()
	sup.StopAll()
}

func rateLimitForEnv(cfg config.Config) int {
	if cfg.IsProduction() {
		return 60
	}
	return 600
}

func runDiscoveryLoop(ctx context.Context, reg *registry.Registry, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reg.Discover(ctx)
		}
	}
}

func runHealthLoop(ctx context.Context, hub *realtimehub.Hub, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			hub.BroadcastHealth(ctx)
		}
	}
}

func waitForShutdown(logger *slog.Logger) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("shutdown signal received")
}

// seedMockDevices seeds a handful of offline synthetic devices so the
// registry and UI have something to show before any real hardware is
// attached (spec.md §9 "Mock offline devices", opt-in via
// SEED_MOCK_DEVICES).
func seedMockDevices(reg *registry.Registry) {
	now := time.Now()
	mocks := []*domain.Device{
		{
			ID: "mock-android-1", Serial: "mock-android-1", Platform: domain.PlatformAndroid,
			DeviceType: domain.DeviceTypePhysical, Name: "Mock Pixel 8", Model: "Pixel 8",
			Manufacturer: "Google", Status: domain.DeviceStatusOffline, LastSeen: now, ConnectedAt: now,
		},
		{
			ID: "mock-ios-1", Serial: "mock-ios-1", Platform: domain.PlatformIOS,
			DeviceType: domain.DeviceTypeSimulator, Name: "Mock iPhone 15", Model: "iPhone 15",
			Manufacturer: "Apple", Status: domain.DeviceStatusOffline, LastSeen: now, ConnectedAt: now,
		},
	}
	for _, d := range mocks {
		reg.SeedOffline(d)
	}
}
