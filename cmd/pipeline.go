package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/facechain/internal/backend"
	"github.com/kozaktomas/facechain/internal/config"
	"github.com/kozaktomas/facechain/internal/detector"
	"github.com/kozaktomas/facechain/internal/faceerr"
	"github.com/kozaktomas/facechain/internal/facematch"
	"github.com/kozaktomas/facechain/internal/facestore"
	"github.com/kozaktomas/facechain/internal/models"
	"github.com/kozaktomas/facechain/internal/session"
)

// newClient connects to the face API with the FACE_TOKEN credential, if any.
func newClient(cfg *config.Config) (*backend.Client, error) {
	client, err := backend.NewClient(cfg.Backend.URL, session.New(cfg.Backend.Token), backend.WithAuthURL(cfg.Backend.AuthURL))
	if err != nil {
		return nil, fmt.Errorf("failed to create backend client: %w", err)
	}
	if err := client.SetCaptureDir(captureDir); err != nil {
		return nil, err //nolint:wrapcheck // already descriptive
	}
	return client, nil
}

// requireToken fails early for commands that only make authenticated calls.
func requireToken(cfg *config.Config) error {
	if cfg.Backend.Token == "" {
		return fmt.Errorf("FACE_TOKEN is not set; run 'facechain login' first")
	}
	return nil
}

func newLoader(cfg *config.Config, opts ...models.Option) (*models.Loader, error) {
	bundles := make([]models.Bundle, len(cfg.Models.Bundles))
	for i, b := range cfg.Models.Bundles {
		bundles[i] = models.Bundle{Name: b.Name, Manifest: b.Manifest}
	}
	loader, err := models.NewLoader(cfg.Models.BaseURL, cfg.Models.Dir, bundles, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create model loader: %w", err)
	}
	return loader, nil
}

// loadModels fetches every bundle, advancing a progress bar per finished bundle.
func loadModels(ctx context.Context, cfg *config.Config, force bool) (*models.Loader, error) {
	bar := progressbar.NewOptions(len(cfg.Models.Bundles),
		progressbar.OptionSetDescription("Loading models"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetItsString("bundles"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionFullWidth(),
	)

	loader, err := newLoader(cfg, models.WithForce(force), models.WithProgress(func(p models.Progress) {
		if p.Err != nil {
			bar.Describe("Failed " + p.Bundle)
		} else {
			bar.Describe("Loaded " + p.Bundle)
		}
		_ = bar.Add(1)
	}))
	if err != nil {
		return nil, err
	}

	set, err := loader.Load(ctx)
	fmt.Println()
	if err != nil {
		return nil, err //nolint:wrapcheck // ErrModelLoad with per-bundle details
	}

	files := 0
	for _, f := range set.Files {
		files += len(f)
	}
	fmt.Printf("Models ready: %d bundles, %d files in %s\n", len(set.Files), files, set.Dir)
	return loader, nil
}

// newMatcherStore syncs the stored faces once and returns the store.
func newMatcherStore(ctx context.Context, cfg *config.Config, client *backend.Client, threshold float64) (*facestore.Store, error) {
	store := facestore.New(client, threshold, facematch.WithHNSW(cfg.Matcher.UseHNSW))
	m, err := store.Refresh(ctx)
	if err != nil {
		return nil, err //nolint:wrapcheck // sync errors carry their own context
	}
	fmt.Printf("Loaded %d stored faces\n", m.Len())
	return store, nil
}

// labelingStore syncs the stored faces for recognition. Any sync failure is reported
// and an unsynced store is returned, so faces are detected without labels.
func labelingStore(ctx context.Context, cfg *config.Config, client *backend.Client, threshold float64) *facestore.Store {
	store, err := newMatcherStore(ctx, cfg, client, threshold)
	if err == nil {
		return store
	}
	if errors.Is(err, faceerr.ErrAuth) {
		fmt.Println("Not logged in, faces will not be labeled")
	} else {
		fmt.Printf("Warning: could not load registered faces, faces will not be labeled: %v\n", err)
	}
	return facestore.New(client, threshold, facematch.WithHNSW(cfg.Matcher.UseHNSW))
}

func newDetector(cfg *config.Config, loader *models.Loader) *detector.Remote {
	return detector.NewRemote(cfg.Detector.URL, loader)
}

// thresholdFlag registers --threshold defaulting to MATCH_THRESHOLD.
func thresholdFlag(cmd *cobra.Command) {
	cmd.Flags().Float64("threshold", 0, "Maximum descriptor distance for a match (default MATCH_THRESHOLD or 0.6)")
}

func resolveThreshold(cmd *cobra.Command, cfg *config.Config) float64 {
	if t := mustGetFloat64(cmd, "threshold"); t > 0 {
		return t
	}
	return cfg.Matcher.Threshold
}
