package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/facechain/internal/capture"
	"github.com/kozaktomas/facechain/internal/config"
	"github.com/kozaktomas/facechain/internal/constants"
	"github.com/kozaktomas/facechain/internal/detector"
	"github.com/kozaktomas/facechain/internal/facematch"
	"github.com/kozaktomas/facechain/internal/facestore"
	"github.com/kozaktomas/facechain/internal/overlay"
)

var recognizeCmd = &cobra.Command{
	Use:   "recognize",
	Short: "Recognize faces in a photo or on the camera",
	Long: `Detect faces, match them against the registered faces and report the labels.

With --image a single photo is processed; --out writes it with boxes, landmarks,
labels and expressions drawn on. With --camera frames are sampled every --interval
until Ctrl+C.

Without FACE_TOKEN faces are detected but not labeled.

Examples:
  facechain recognize --image group.jpg --out group-labeled.png
  facechain recognize --image group.jpg --display 800x600 --json
  facechain recognize --camera --device 0 --interval 200ms`,
	RunE: runRecognize,
}

func init() {
	rootCmd.AddCommand(recognizeCmd)

	recognizeCmd.Flags().String("image", "", "Photo to process")
	recognizeCmd.Flags().String("out", "", "Write the photo with the overlay to this PNG or JPEG file")
	recognizeCmd.Flags().String("display", "", "Display size WIDTHxHEIGHT the result is scaled into")
	recognizeCmd.Flags().Bool("json", false, "Print results as JSON")
	recognizeCmd.Flags().Bool("camera", false, "Sample frames from the camera")
	recognizeCmd.Flags().Int("device", -1, "Camera device index (default CAMERA_DEVICE or 0)")
	recognizeCmd.Flags().Duration("interval", 0, "Camera sampling interval (default CAPTURE_INTERVAL or 100ms)")
	thresholdFlag(recognizeCmd)
}

func parseDisplay(s string) (facematch.Size, error) {
	if s == "" {
		return facematch.Size{}, nil
	}
	var size facematch.Size
	if _, err := fmt.Sscanf(strings.ToLower(s), "%dx%d", &size.Width, &size.Height); err != nil || size.Empty() {
		return facematch.Size{}, fmt.Errorf("invalid display size %q, want WIDTHxHEIGHT", s)
	}
	return size, nil
}

func runRecognize(cmd *cobra.Command, args []string) error {
	imagePath := mustGetString(cmd, "image")
	useCamera := mustGetBool(cmd, "camera")
	if (imagePath == "") == !useCamera {
		return errors.New("use exactly one of --image or --camera")
	}
	display, err := parseDisplay(mustGetString(cmd, "display"))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	cfg := config.Load()

	loader, err := loadModels(ctx, cfg, false)
	if err != nil {
		return err
	}
	det := newDetector(cfg, loader)

	client, err := newClient(cfg)
	if err != nil {
		return err
	}
	store := labelingStore(ctx, cfg, client, resolveThreshold(cmd, cfg))

	if imagePath != "" {
		return recognizeImage(ctx, cmd, det, store, imagePath, display)
	}

	device := mustGetInt(cmd, "device")
	if device < 0 {
		device = cfg.Capture.Device
	}
	interval := mustGetDuration(cmd, "interval")
	if interval <= 0 {
		interval = cfg.Capture.Interval
	}
	return recognizeCamera(ctx, cmd, det, store, device, interval, display)
}

func recognizeImage(ctx context.Context, cmd *cobra.Command, det detector.Detector, store *facestore.Store, path string, container facematch.Size) error {
	img, err := capture.LoadStillImage(path)
	if err != nil {
		return err //nolint:wrapcheck // already descriptive
	}

	renderer := overlay.NewRenderer(overlay.DefaultStyle())
	canvas, _ := renderer.Resize(img.Frame().Size(), container)

	tick, err := capture.ProcessStill(ctx, det, store.Matcher(), img, canvas.Size())
	if err != nil {
		return fmt.Errorf("recognition failed: %w", err)
	}

	if mustGetBool(cmd, "json") {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(tick); err != nil {
			return err //nolint:wrapcheck // stdout
		}
	} else {
		printTick(tick)
	}

	out := mustGetString(cmd, "out")
	if out == "" {
		return nil
	}
	layer, err := renderer.Render(tick.Faces)
	if err != nil {
		return err //nolint:wrapcheck // already descriptive
	}
	return writeImage(out, overlay.Composite(img.Frame().Image, layer))
}

func recognizeCamera(ctx context.Context, cmd *cobra.Command, det detector.Detector, store *facestore.Store, device int, interval time.Duration, display facematch.Size) error {
	asJSON := mustGetBool(cmd, "json")
	enc := json.NewEncoder(os.Stdout)

	session := capture.NewSession(capture.NewWebcam(device), det,
		capture.WithInterval(interval),
		capture.WithMatcher(store.Matcher),
		capture.WithSink(capture.SinkFunc(func(t capture.Tick) {
			if asJSON {
				_ = enc.Encode(t)
				return
			}
			printTick(&t)
		})),
	)
	session.SetDisplaySize(display)

	if err := session.Start(ctx); err != nil {
		return err //nolint:wrapcheck // already descriptive
	}
	fmt.Printf("Camera %d running, press Ctrl+C to stop\n", device)

	select {
	case <-ctx.Done():
	case <-session.Done():
	}
	err := session.Stop()

	st := session.Stats()
	fmt.Printf("\n%d frames analyzed, %d skipped, %d errors\n", st.Ticks, st.Skipped, st.Errors)
	return err //nolint:wrapcheck // already descriptive
}

func printTick(t *capture.Tick) {
	if t.Err != nil {
		fmt.Printf("[%s] error: %v\n", t.At.Format("15:04:05.000"), t.Err)
		return
	}
	if len(t.Faces) == 0 {
		fmt.Printf("[%s] no faces\n", t.At.Format("15:04:05.000"))
		return
	}
	parts := make([]string, len(t.Faces))
	for i, f := range t.Faces {
		label := fmt.Sprintf("face %.2f", f.Score)
		if f.Match != nil {
			label = f.Match.String()
		}
		if name, score, ok := f.TopExpression(); ok {
			label += fmt.Sprintf(" %s %.2f", name, score)
		}
		parts[i] = fmt.Sprintf("%s at %.0f,%.0f", label, f.Box.X, f.Box.Y)
	}
	fmt.Printf("[%s] %s\n", t.At.Format("15:04:05.000"), strings.Join(parts, "; "))
}

func writeImage(path string, img *image.RGBA) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		err = overlay.EncodeJPEG(f, img, constants.FrameJPEGQuality)
	default:
		err = overlay.EncodePNG(f, img)
	}
	if err != nil {
		return err //nolint:wrapcheck // already descriptive
	}
	fmt.Printf("Wrote %s\n", path)
	return f.Close() //nolint:wrapcheck // close after write
}
