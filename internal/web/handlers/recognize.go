package handlers

import (
	"bytes"
	"io"
	"net/http"

	"github.com/kozaktomas/facechain/internal/capture"
	"github.com/kozaktomas/facechain/internal/constants"
	"github.com/kozaktomas/facechain/internal/detector"
	"github.com/kozaktomas/facechain/internal/facestore"
	"github.com/kozaktomas/facechain/internal/overlay"
)

const maxPhotoSize = 20 << 20

// RecognizeHandler runs recognition over uploaded photos
type RecognizeHandler struct {
	det   detector.Detector
	store *facestore.Store
	style overlay.Style
}

// NewRecognizeHandler creates a new recognize handler
func NewRecognizeHandler(det detector.Detector, store *facestore.Store, style overlay.Style) *RecognizeHandler {
	return &RecognizeHandler{det: det, store: store, style: style}
}

// Photo accepts a multipart "file" upload. Optional display_width and display_height
// place the result in a container; format=png or format=jpeg returns the photo with
// the overlay drawn on it instead of JSON.
func (h *RecognizeHandler) Photo(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxPhotoSize)
	if err := r.ParseMultipartForm(maxPhotoSize); err != nil {
		respondError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "missing file")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		respondError(w, http.StatusBadRequest, "could not read file")
		return
	}

	img, err := capture.NewStillImage(data)
	if err != nil {
		respondError(w, http.StatusBadRequest, "unsupported image")
		return
	}

	renderer := overlay.NewRenderer(h.style)
	container := displaySize(r.FormValue("display_width"), r.FormValue("display_height"))
	canvas, _ := renderer.Resize(img.Frame().Size(), container)

	tick, err := capture.ProcessStill(r.Context(), h.det, h.store.Matcher(), img, canvas.Size())
	if err != nil {
		respondErr(w, r, err)
		return
	}

	format := r.FormValue("format")
	if format != "png" && format != "jpeg" {
		respondJSON(w, http.StatusOK, tick)
		return
	}

	layer, err := renderer.Render(tick.Faces)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	composed := overlay.Composite(img.Frame().Image, layer)

	var buf bytes.Buffer
	if format == "png" {
		err = overlay.EncodePNG(&buf, composed)
	} else {
		err = overlay.EncodeJPEG(&buf, composed, constants.FrameJPEGQuality)
	}
	if err != nil {
		respondErr(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "image/"+format)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
