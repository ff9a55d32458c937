package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/facechain/internal/capture"
	"github.com/kozaktomas/facechain/internal/config"
	"github.com/kozaktomas/facechain/internal/faceerr"
	"github.com/kozaktomas/facechain/internal/register"
)

var registerCmd = &cobra.Command{
	Use:   "register <label>",
	Short: "Register a face from the camera",
	Long: `Start the camera, show how many faces are in view and store the face
under the given label when Enter is pressed. Type q and Enter to abort.

Registering a label that already exists adds another descriptor for it.

Examples:
  facechain register "Alice Novak"
  facechain register bob --device 1`,
	Args: cobra.ExactArgs(1),
	RunE: runRegister,
}

func init() {
	rootCmd.AddCommand(registerCmd)

	registerCmd.Flags().Int("device", -1, "Camera device index (default CAMERA_DEVICE or 0)")
	thresholdFlag(registerCmd)
}

func runRegister(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if err := requireToken(cfg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loader, err := loadModels(ctx, cfg, false)
	if err != nil {
		return err
	}
	det := newDetector(cfg, loader)

	client, err := newClient(cfg)
	if err != nil {
		return err
	}
	store, err := newMatcherStore(ctx, cfg, client, resolveThreshold(cmd, cfg))
	if err != nil {
		return err
	}

	device := mustGetInt(cmd, "device")
	if device < 0 {
		device = cfg.Capture.Device
	}

	var inView atomic.Int64
	newPreview := func() register.Preview {
		return capture.NewSession(capture.NewWebcam(device), det,
			capture.WithInterval(cfg.Capture.Interval),
			capture.WithMatcher(store.Matcher),
			capture.WithSink(capture.SinkFunc(func(t capture.Tick) {
				if t.Err == nil {
					inView.Store(int64(len(t.Faces)))
				}
			})),
		)
	}

	flow, err := register.New(args[0], det, client, newPreview,
		register.WithExistingLabels(store.Labels()),
		register.WithOnRegistered(func(ctx context.Context, _ register.Result) {
			if _, err := store.Refresh(ctx); err != nil {
				fmt.Printf("Warning: failed to reload faces: %v\n", err)
			}
		}),
	)
	if err != nil {
		return err //nolint:wrapcheck // ErrEmptyLabel
	}
	defer flow.Close()

	if flow.Status().Duplicate {
		fmt.Printf("%q is already registered, another descriptor will be added\n", flow.Label())
	}
	if err := flow.Begin(ctx); err != nil {
		return err //nolint:wrapcheck // already descriptive
	}
	fmt.Printf("Camera %d running. Look at the camera and press Enter to register %q (q to abort)\n", device, flow.Label())

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			fmt.Println("\nAborted")
			return nil
		case line, ok := <-lines:
			if !ok || strings.EqualFold(strings.TrimSpace(line), "q") {
				fmt.Println("Aborted")
				return nil
			}
		}

		fmt.Printf("Capturing (%d faces in view)...\n", inView.Load())
		result, err := flow.Submit(ctx)
		switch {
		case errors.Is(err, faceerr.ErrNoFace):
			fmt.Println("No face found, adjust your position and press Enter again")
			continue
		case err != nil:
			return err //nolint:wrapcheck // already descriptive
		}

		fmt.Printf("Registered %q (detection score %.2f)\n", result.Label, result.Score)
		if matcher := store.Matcher(); matcher != nil {
			fmt.Printf("%d faces registered, %d labels\n", matcher.Len(), len(store.Labels()))
		}
		return nil
	}
}
