package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/facechain/internal/logging"
)

var (
	captureDir string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "facechain",
	Short: "Face recognition for the Action Chain kiosk",
	Long: `facechain detects faces in camera frames and photos, matches them against
the faces registered on the Action Chain backend, and registers new faces.

It runs as a CLI for one-off tasks or as a web server driving the kiosk camera.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&captureDir, "capture", "", "Directory to save backend API responses for testing")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides LOG_LEVEL")
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()

	level := logLevel
	if level == "" {
		level = os.Getenv("LOG_LEVEL")
	}
	if level == "" {
		return
	}
	if err := logging.SetLevel(level); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
}
