// Package config loads the controller's configuration from environment
// variables (optionally via a .env file in development), the same
// viper + godotenv shape this codebase's cmd/root.go and cmd/serve.go
// use (SPEC_FULL.md §A.3).
package config

import (
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds every tunable the controller reads from its environment
// (spec.md §6 "Configuration", SPEC_FULL.md §A.3).
type Config struct {
	Port        int
	AppEnv      string
	FrontendURL string
	LogLevel    string
	LogFormat   string

	DriverBasePort          int
	DriverPortRange         int
	DriverBinaryPath        string
	DiscoveryInterval       time.Duration
	HealthBroadcastInterval time.Duration
	MirrorFPSCeiling        float64

	SeedMockDevices bool

	UploadDir          string
	AndroidSDKToolsPath string
}

// Load reads configuration from the environment, defaulting anything
// unset. A .env file in the working directory is loaded first (ignored
// if absent), matching cmd/root.go's development convenience.
func Load() Config {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("PORT", 5000)
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("FRONTEND_URL", "http://localhost:3000")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("DRIVER_BASE_PORT", 4723)
	v.SetDefault("DRIVER_PORT_RANGE", 100)
	v.SetDefault("DRIVER_BINARY_PATH", "appium")
	v.SetDefault("DISCOVERY_INTERVAL_SECONDS", 30)
	v.SetDefault("HEALTH_BROADCAST_INTERVAL_SECONDS", 10)
	v.SetDefault("MIRROR_FPS_CEILING", 1.0)

	v.SetDefault("SEED_MOCK_DEVICES", false)

	v.SetDefault("UPLOAD_DIR", "/tmp/devicelab-uploads")
	v.SetDefault("ANDROID_SDK_TOOLS_PATH", "")

	return Config{
		Port:        v.GetInt("PORT"),
		AppEnv:      v.GetString("APP_ENV"),
		FrontendURL: v.GetString("FRONTEND_URL"),
		LogLevel:    v.GetString("LOG_LEVEL"),
		LogFormat:   v.GetString("LOG_FORMAT"),

		DriverBasePort:          v.GetInt("DRIVER_BASE_PORT"),
		DriverPortRange:         v.GetInt("DRIVER_PORT_RANGE"),
		DriverBinaryPath:        v.GetString("DRIVER_BINARY_PATH"),
		DiscoveryInterval:       time.Duration(v.GetInt("DISCOVERY_INTERVAL_SECONDS")) * time.Second,
		HealthBroadcastInterval: time.Duration(v.GetInt("HEALTH_BROADCAST_INTERVAL_SECONDS")) * time.Second,
		MirrorFPSCeiling:        v.GetFloat64("MIRROR_FPS_CEILING"),

		SeedMockDevices: v.GetBool("SEED_MOCK_DEVICES"),

		UploadDir:           v.GetString("UPLOAD_DIR"),
		AndroidSDKToolsPath: v.GetString("ANDROID_SDK_TOOLS_PATH"),
	}
}

// IsProduction reports whether APP_ENV selects the production rate-limit
// threshold (spec.md §6 "NODE_ENV or equivalent").
func (c Config) IsProduction() bool { return c.AppEnv == "production" }
