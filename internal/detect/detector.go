// Package detect is the detection boundary: a Detector turns a frame into a
// list of validated detections. The YOLO backend runs an ONNX model through
// the OpenCV DNN module; callers treat any backend failure as non-fatal.
package detect

import (
	"gocv.io/x/gocv"

	"detectcam/pkg/types"
)

// Detector analyzes one frame per call. Implementations must be safe to
// call every tick; latency of Detect dominates achievable FPS.
type Detector interface {
	// Detect returns the detections found in frame, or a
	// *types.InferenceError on backend failure.
	Detect(frame gocv.Mat) ([]types.Detection, error)

	// Close releases backend resources.
	Close() error
}

// ModelInfo describes a loaded model for the startup banner and the info
// command.
type ModelInfo struct {
	ModelPath           string
	NumClasses          int
	ConfidenceThreshold float64
	IOUThreshold        float64
}
