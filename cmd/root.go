// Package cmd implements the controller's command-line entry points:
// serve, devices, and version, in the same cobra-root convention the
// teacher's cmd package uses.
package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// RootCmd is the base command every subcommand attaches to.
var RootCmd = &cobra.Command{
	Use:   "devicelab-controller",
	Short: "A mobile device lab controller",
	Long: `devicelab-controller discovers Android and iOS devices attached to
this host, arbitrates exclusive reservations and sessions over them,
supervises per-device Appium driver processes, and pushes live device
and screen-mirror state to connected clients.`,
}

// Execute runs the root command, exiting the process on error.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	RootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .env in the working directory)")
}

func initConfig() {
	if cfgFile != "" {
		_ = godotenv.Load(cfgFile)
	} else {
		_ = godotenv.Load()
	}
	viper.AutomaticEnv()
}
