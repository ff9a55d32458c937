package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image/jpeg"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"github.com/kozaktomas/facechain/internal/constants"
	"github.com/kozaktomas/facechain/internal/faceerr"
	"github.com/kozaktomas/facechain/internal/facematch"
)

// Remote calls a detection runtime over HTTP
type Remote struct {
	baseURL string
	models  ReadyChecker
	client  *http.Client
}

// NewRemote creates a detector for the runtime at baseURL. Calls fail with
// ErrModelsNotReady while models reports not ready; a nil models is always ready.
func NewRemote(baseURL string, models ReadyChecker) *Remote {
	if baseURL == "" {
		baseURL = constants.DefaultDetectorURL
	}
	return &Remote{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		models:  models,
		client:  &http.Client{Timeout: constants.HTTPTimeout},
	}
}

// detectResponse is the runtime's answer for one image
type detectResponse struct {
	Width  int        `json:"width"`
	Height int        `json:"height"`
	Faces  []wireFace `json:"faces"`
}

type wireFace struct {
	Box         []float64          `json:"box"` // [x1, y1, x2, y2]
	Score       float64            `json:"score"`
	Landmarks   [][2]float64       `json:"landmarks"`
	Descriptor  []float32          `json:"descriptor"`
	Expressions map[string]float64 `json:"expressions"`
}

func (w wireFace) toDetection() (facematch.Detection, error) {
	if len(w.Box) != 4 {
		return facematch.Detection{}, fmt.Errorf("box has %d values, expected 4", len(w.Box))
	}
	det := facematch.Detection{
		Box:         facematch.BoxFromCorners(w.Box),
		Score:       w.Score,
		Expressions: w.Expressions,
	}
	if len(w.Landmarks) > 0 {
		det.Landmarks = make([]facematch.Point, len(w.Landmarks))
		for i, p := range w.Landmarks {
			det.Landmarks[i] = facematch.Point{X: p[0], Y: p[1]}
		}
	}
	if len(w.Descriptor) > 0 {
		d, err := facematch.DescriptorFrom(w.Descriptor)
		if err != nil {
			return facematch.Detection{}, err
		}
		det.Descriptor = d
	}
	return det, nil
}

// DetectAll detects every face in the frame.
func (r *Remote) DetectAll(ctx context.Context, frame Frame) (*Result, error) {
	resp, err := r.detect(ctx, frame, false)
	if err != nil {
		return nil, err
	}

	faces := make([]facematch.Detection, 0, len(resp.Faces))
	for i, wf := range resp.Faces {
		det, err := wf.toDetection()
		if err != nil {
			return nil, fmt.Errorf("face %d: %w", i, err)
		}
		faces = append(faces, det)
	}
	faces = facematch.SuppressOverlaps(faces, constants.DetectionOverlapIoU)

	size := facematch.Size{Width: resp.Width, Height: resp.Height}
	if size.Empty() {
		size = frame.Size()
	}
	return &Result{Faces: faces, Size: size}, nil
}

// DetectSingle returns the best face in the frame or ErrNoFace.
func (r *Remote) DetectSingle(ctx context.Context, frame Frame) (*facematch.Detection, error) {
	resp, err := r.detect(ctx, frame, true)
	if err != nil {
		return nil, err
	}

	faces := make([]facematch.Detection, 0, len(resp.Faces))
	for _, wf := range resp.Faces {
		det, err := wf.toDetection()
		if err != nil || len(det.Descriptor) == 0 {
			continue
		}
		faces = append(faces, det)
	}

	best, ok := Best(faces)
	if !ok {
		return nil, faceerr.ErrNoFace
	}
	return &best, nil
}

func (r *Remote) detect(ctx context.Context, frame Frame, single bool) (*detectResponse, error) {
	if r.models != nil && !r.models.Ready() {
		return nil, faceerr.ErrModelsNotReady
	}

	data, err := frameBytes(frame)
	if err != nil {
		return nil, err
	}

	endpoint := "/detect"
	if single {
		endpoint += "?single=true"
	}

	body, err := r.postMultipartImage(ctx, endpoint, data)
	if err != nil {
		return nil, err
	}

	var resp detectResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &resp, nil
}

// frameBytes returns the original encoding when present, otherwise a JPEG of the frame.
func frameBytes(frame Frame) ([]byte, error) {
	if len(frame.Raw) > 0 {
		return frame.Raw, nil
	}
	if frame.Image == nil {
		return nil, fmt.Errorf("empty frame: %w", faceerr.ErrNotReady)
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, frame.Image, &jpeg.Options{Quality: constants.FrameJPEGQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}
	return buf.Bytes(), nil
}

// postMultipartImage posts the image as the "file" form field with a detected Content-Type.
func (r *Remote) postMultipartImage(ctx context.Context, endpoint string, imageData []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	mimeType := detectMIMEType(imageData)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="frame%s"`, extensionFor(mimeType)))
	h.Set("Content-Type", mimeType)
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}

	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("detector request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("detector error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return body, nil
}

// detectMIMEType detects the MIME type from image data
func detectMIMEType(data []byte) string {
	if len(data) < 8 {
		return "application/octet-stream"
	}
	switch {
	case data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF:
		return "image/jpeg"
	case data[0] == 0x89 && data[1] == 0x50 && data[2] == 0x4E && data[3] == 0x47:
		return "image/png"
	case data[0] == 0x47 && data[1] == 0x49 && data[2] == 0x46 && data[3] == 0x38:
		return "image/gif"
	case data[0] == 0x42 && data[1] == 0x4D:
		return "image/bmp"
	case len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WEBP":
		return "image/webp"
	}
	return "application/octet-stream"
}

func extensionFor(mimeType string) string {
	switch mimeType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/bmp":
		return ".bmp"
	case "image/webp":
		return ".webp"
	}
	return ""
}
