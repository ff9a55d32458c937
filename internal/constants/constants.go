// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

import "time"

// Face matching constants
const (
	// DescriptorDim is the length of a face recognition descriptor
	DescriptorDim = 128

	// DefaultDistanceThreshold is the maximum Euclidean distance for a match.
	// A nearest distance above it is reported as UnknownLabel.
	DefaultDistanceThreshold = 0.6

	// UnknownLabel is reported when no stored descriptor is close enough
	UnknownLabel = "unknown"

	// HNSWMinFaces is the store size from which the matcher uses an HNSW candidate index
	HNSWMinFaces = 2000

	// HNSWCandidates is the number of candidates fetched from the HNSW graph before exact re-ranking
	HNSWCandidates = 32

	// HNSWM is the HNSW max neighbors per node
	HNSWM = 16

	// HNSWEfSearch is the HNSW search candidate list size
	HNSWEfSearch = 64
)

// Capture constants
const (
	// DefaultCaptureInterval is the polling interval of the live capture loop (10 Hz)
	DefaultCaptureInterval = 100 * time.Millisecond

	// DefaultCameraDevice is the default video device index
	DefaultCameraDevice = 0

	// LandmarkPoints is the number of points produced by the 68-point landmark model
	LandmarkPoints = 68
)

// Model constants
const (
	// DefaultModelURL is where the model bundles are served from
	DefaultModelURL = "http://localhost:3000/models"

	// DefaultModelDir is the local directory the bundles are written to
	DefaultModelDir = "models"
)

// Backend constants
const (
	// DefaultFaceAPIURL is the default base URL of the face API
	DefaultFaceAPIURL = "http://localhost:5000"

	// DefaultDetectorURL is the default base URL of the detection runtime
	DefaultDetectorURL = "http://localhost:8000"

	// HTTPTimeout bounds every backend request
	HTTPTimeout = 30 * time.Second
)

// Event channel constants
const (
	// EventChannelBuffer is the buffer size for event channels
	EventChannelBuffer = 100
)

// Detection constants
const (
	// DetectionOverlapIoU is the IoU above which the weaker of two detections is dropped
	DetectionOverlapIoU = 0.5

	// FrameJPEGQuality is the quality used when a raw frame is encoded for the detector
	FrameJPEGQuality = 90
)
