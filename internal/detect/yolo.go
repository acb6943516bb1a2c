package detect

import (
	"bufio"
	"fmt"
	"image"
	"os"
	"strings"

	"gocv.io/x/gocv"

	"detectcam/internal/config"
	"detectcam/internal/logger"
	"detectcam/pkg/types"
)

// YOLODetector runs a YOLOv8-style ONNX model through the OpenCV DNN
// module. Output layout is [1 x (4+numClasses) x anchors] with boxes as
// center/size in network input coordinates.
type YOLODetector struct {
	net        gocv.Net
	classNames []string
	cfg        config.DetectionConfig
	closed     bool
}

// NewYOLODetector loads the model and its label table.
func NewYOLODetector(cfg config.DetectionConfig) (*YOLODetector, error) {
	classNames, err := loadClassNames(cfg.ClassNamesPath)
	if err != nil {
		return nil, fmt.Errorf("load class names: %w", err)
	}

	logger.Info("Detect", "Loading model %s", cfg.ModelPath)
	net := gocv.ReadNetFromONNX(cfg.ModelPath)
	if net.Empty() {
		return nil, fmt.Errorf("load model %s: network is empty", cfg.ModelPath)
	}

	if cfg.UseGPU {
		// Falls back to CPU inside OpenCV when no CUDA device exists.
		_ = net.SetPreferableBackend(gocv.NetBackendCUDA)
		_ = net.SetPreferableTarget(gocv.NetTargetCUDA)
		logger.Info("Detect", "Preferring CUDA backend")
	} else {
		_ = net.SetPreferableBackend(gocv.NetBackendDefault)
		_ = net.SetPreferableTarget(gocv.NetTargetCPU)
		logger.Info("Detect", "Using CPU backend")
	}

	logger.Info("Detect", "Model loaded: %d classes", len(classNames))
	return &YOLODetector{net: net, classNames: classNames, cfg: cfg}, nil
}

// Detect implements Detector.
func (d *YOLODetector) Detect(frame gocv.Mat) ([]types.Detection, error) {
	if d.closed {
		return nil, &types.InferenceError{Err: fmt.Errorf("detector is closed")}
	}
	if frame.Empty() {
		return nil, &types.InferenceError{Err: fmt.Errorf("empty frame")}
	}

	inputSize := d.cfg.InputSize
	blob := gocv.BlobFromImage(frame, 1.0/255.0,
		image.Pt(inputSize, inputSize), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	output := d.net.Forward("")
	defer output.Close()

	dets, err := d.decode(output, frame.Cols(), frame.Rows())
	if err != nil {
		return nil, &types.InferenceError{Err: err}
	}
	return dets, nil
}

// decode converts the raw network output into validated detections in frame
// pixel coordinates, applying the confidence threshold and NMS.
func (d *YOLODetector) decode(output gocv.Mat, frameWidth, frameHeight int) ([]types.Detection, error) {
	dims := output.Size()
	if len(dims) != 3 {
		return nil, fmt.Errorf("unexpected output shape %v", dims)
	}
	channels, anchors := dims[1], dims[2]
	numClasses := channels - 4
	if numClasses <= 0 {
		return nil, fmt.Errorf("output has no class channels (shape %v)", dims)
	}
	if numClasses > len(d.classNames) {
		return nil, fmt.Errorf("model reports %d classes, label table has %d", numClasses, len(d.classNames))
	}

	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("access output data: %w", err)
	}

	// The blob was stretched to the square network input; map back with
	// independent per-axis scales.
	scaleX := float64(frameWidth) / float64(d.cfg.InputSize)
	scaleY := float64(frameHeight) / float64(d.cfg.InputSize)

	var boxes []image.Rectangle
	var scores []float32
	var classIDs []int

	for i := 0; i < anchors; i++ {
		bestClass := 0
		bestScore := float32(0)
		for c := 0; c < numClasses; c++ {
			score := data[(4+c)*anchors+i]
			if score > bestScore {
				bestScore = score
				bestClass = c
			}
		}
		if float64(bestScore) < d.cfg.ConfidenceThreshold {
			continue
		}

		cx := float64(data[0*anchors+i]) * scaleX
		cy := float64(data[1*anchors+i]) * scaleY
		w := float64(data[2*anchors+i]) * scaleX
		h := float64(data[3*anchors+i]) * scaleY

		boxes = append(boxes, image.Rect(
			int(cx-w/2), int(cy-h/2),
			int(cx+w/2), int(cy+h/2),
		))
		scores = append(scores, bestScore)
		classIDs = append(classIDs, bestClass)
	}

	if len(boxes) == 0 {
		return nil, nil
	}

	keep := gocv.NMSBoxes(boxes, scores, float32(d.cfg.ConfidenceThreshold), float32(d.cfg.IOUThreshold))

	dets := make([]types.Detection, 0, len(keep))
	for _, idx := range keep {
		box := clampRect(boxes[idx], frameWidth, frameHeight)
		det, err := types.NewDetection(
			types.BoundingBox{X1: box.Min.X, Y1: box.Min.Y, X2: box.Max.X, Y2: box.Max.Y},
			float64(scores[idx]),
			classIDs[idx],
			d.classNames[classIDs[idx]],
		)
		if err != nil {
			return nil, fmt.Errorf("decoded invalid detection: %w", err)
		}
		dets = append(dets, det)
	}
	return dets, nil
}

// Info implements the model banner.
func (d *YOLODetector) Info() ModelInfo {
	return ModelInfo{
		ModelPath:           d.cfg.ModelPath,
		NumClasses:          len(d.classNames),
		ConfidenceThreshold: d.cfg.ConfidenceThreshold,
		IOUThreshold:        d.cfg.IOUThreshold,
	}
}

// Close releases the network. Idempotent.
func (d *YOLODetector) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	return d.net.Close()
}

func clampRect(r image.Rectangle, width, height int) image.Rectangle {
	return r.Intersect(image.Rect(0, 0, width, height))
}

// loadClassNames reads a newline-separated label table. Blank lines are
// skipped.
func loadClassNames(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var names []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		name := strings.TrimSpace(scanner.Text())
		if name != "" {
			names = append(names, name)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no class names in %s", path)
	}
	return names, nil
}
