package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/facechain/internal/capture"
	"github.com/kozaktomas/facechain/internal/config"
	"github.com/kozaktomas/facechain/internal/facematch"
	"github.com/kozaktomas/facechain/internal/facestore"
	"github.com/kozaktomas/facechain/internal/overlay"
	"github.com/kozaktomas/facechain/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server",
	Long: `Start the facechain web server.
The web server provides the kiosk page with the live camera view, face
registration and the list of registered faces, plus the JSON API behind it.

Models are loaded in the background; recognition endpoints answer 503 until
they are ready.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
	serveCmd.Flags().String("session-secret", "", "Secret for signing session cookies (defaults to random)")
	thresholdFlag(serveCmd)
}

// resolveServeHostPort applies flags over WEB_* settings; explicit flags win.
func resolveServeHostPort(cmd *cobra.Command, cfg *config.Config) {
	if cfg.Web.Port == 0 || cmd.Flags().Changed("port") {
		cfg.Web.Port = mustGetInt(cmd, "port")
	}
	if cfg.Web.Host == "" || cmd.Flags().Changed("host") {
		cfg.Web.Host = mustGetString(cmd, "host")
	}
	if secret := mustGetString(cmd, "session-secret"); secret != "" {
		cfg.Web.SessionSecret = secret
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	resolveServeHostPort(cmd, cfg)

	client, err := newClient(cfg)
	if err != nil {
		return err
	}
	loader, err := newLoader(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	threshold := resolveThreshold(cmd, cfg)
	store := facestore.New(client, threshold, facematch.WithHNSW(cfg.Matcher.UseHNSW))
	if cfg.Backend.Token != "" {
		if m, err := store.Refresh(ctx); err != nil {
			fmt.Printf("Warning: failed to load registered faces: %v\n", err)
		} else {
			fmt.Printf("Loaded %d registered faces (threshold %.2f)\n", m.Len(), threshold)
		}
	} else {
		fmt.Println("FACE_TOKEN not set, faces load after the first login")
	}

	go func() {
		set, err := loader.Load(ctx)
		if err != nil {
			fmt.Printf("Warning: %v\n", err)
			return
		}
		fmt.Printf("Models ready (%d bundles in %s)\n", len(set.Files), set.Dir)
	}()

	device := cfg.Capture.Device
	server := web.NewServer(cfg, web.Deps{
		Client:         client,
		Store:          store,
		Loader:         loader,
		Detector:       newDetector(cfg, loader),
		NewSource:      func() capture.Source { return capture.NewWebcam(device) },
		CaptureOptions: []capture.Option{capture.WithInterval(cfg.Capture.Interval)},
		Style:          overlay.DefaultStyle(),
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting facechain on http://%s:%d (camera %d)\n", cfg.Web.Host, cfg.Web.Port, device)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
