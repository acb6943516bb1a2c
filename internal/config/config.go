package config

import (
	"fmt"
	"image/color"
	"os"
	"strconv"
	"time"
)

// Config holds the full runtime configuration. It is built once at startup
// from defaults plus environment overrides and never mutated afterwards;
// components receive it by pointer and treat it as read-only.
type Config struct {
	Camera    CameraConfig
	Detection DetectionConfig
	Display   DisplayConfig
	Style     StyleConfig
	Output    OutputConfig
	Reconnect ReconnectConfig
}

// CameraConfig selects the capture device and the requested format. The
// device may negotiate a different format; callers must use the actual
// values reported at open time.
type CameraConfig struct {
	DeviceID int
	Width    int
	Height   int
	FPS      int
}

// DetectionConfig configures the detection backend.
type DetectionConfig struct {
	ModelPath           string  // ONNX model file
	ClassNamesPath      string  // Newline-separated label table
	InputSize           int     // Square network input in pixels
	ConfidenceThreshold float64 // Minimum confidence in [0, 1]
	IOUThreshold        float64 // NMS IoU threshold in [0, 1]
	UseGPU              bool    // Prefer CUDA backend when available
}

// DisplayConfig controls the preview window and its overlays.
type DisplayConfig struct {
	WindowName     string
	ShowFPS        bool
	ShowConfidence bool
	ShowLabels     bool
}

// StyleConfig bundles pure rendering parameters. It carries no detection
// logic.
type StyleConfig struct {
	BoxColor      color.RGBA
	TextColor     color.RGBA
	LabelBGColor  color.RGBA
	FPSColor      color.RGBA
	FontScale     float64
	FontThickness int
	BoxThickness  int
}

// OutputConfig controls snapshots and recordings.
type OutputConfig struct {
	Dir             string
	EnableRecording bool
}

// ReconnectConfig is the policy applied when a frame read fails. The
// original behavior of a single attempt per failed read is the default;
// MaxAttempts raises it for flakier devices.
type ReconnectConfig struct {
	MaxAttempts int
	Delay       time.Duration
}

// Load builds the configuration from defaults overridden by environment
// variables.
func Load() (*Config, error) {
	cfg := &Config{
		Camera: CameraConfig{
			DeviceID: getEnvInt("CAMERA_ID", 0),
			Width:    getEnvInt("CAMERA_WIDTH", 640),
			Height:   getEnvInt("CAMERA_HEIGHT", 480),
			FPS:      getEnvInt("CAMERA_FPS", 30),
		},
		Detection: DetectionConfig{
			ModelPath:           getEnv("MODEL_PATH", "models/yolov8n.onnx"),
			ClassNamesPath:      getEnv("CLASS_NAMES_PATH", "models/coco.names"),
			InputSize:           getEnvInt("MODEL_INPUT_SIZE", 640),
			ConfidenceThreshold: getEnvFloat("CONFIDENCE_THRESHOLD", 0.5),
			IOUThreshold:        getEnvFloat("IOU_THRESHOLD", 0.45),
			UseGPU:              getEnvBool("USE_GPU", true),
		},
		Display: DisplayConfig{
			WindowName:     getEnv("WINDOW_NAME", "Object Detection"),
			ShowFPS:        getEnvBool("SHOW_FPS", true),
			ShowConfidence: getEnvBool("SHOW_CONFIDENCE", true),
			ShowLabels:     getEnvBool("SHOW_LABELS", true),
		},
		Style: StyleConfig{
			BoxColor:      color.RGBA{0, 255, 0, 0},     // Green
			TextColor:     color.RGBA{255, 255, 255, 0}, // White
			LabelBGColor:  color.RGBA{0, 255, 0, 0},     // Green
			FPSColor:      color.RGBA{255, 255, 0, 0},   // Yellow
			FontScale:     0.6,
			FontThickness: 2,
			BoxThickness:  2,
		},
		Output: OutputConfig{
			Dir:             getEnv("OUTPUT_DIR", "outputs"),
			EnableRecording: getEnvBool("ENABLE_RECORDING", false),
		},
		Reconnect: ReconnectConfig{
			MaxAttempts: getEnvInt("RECONNECT_MAX_ATTEMPTS", 1),
			Delay:       time.Duration(getEnvInt("RECONNECT_DELAY_MS", 1000)) * time.Millisecond,
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// Validate checks value ranges that would otherwise fail deep inside the
// pipeline.
func (c *Config) Validate() error {
	if c.Camera.DeviceID < 0 {
		return fmt.Errorf("negative camera id: %d", c.Camera.DeviceID)
	}
	if c.Camera.Width <= 0 || c.Camera.Height <= 0 {
		return fmt.Errorf("invalid camera resolution: %dx%d", c.Camera.Width, c.Camera.Height)
	}
	if c.Camera.FPS <= 0 {
		return fmt.Errorf("invalid camera fps: %d", c.Camera.FPS)
	}
	if c.Detection.ConfidenceThreshold < 0 || c.Detection.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence threshold out of range: %f", c.Detection.ConfidenceThreshold)
	}
	if c.Detection.IOUThreshold < 0 || c.Detection.IOUThreshold > 1 {
		return fmt.Errorf("iou threshold out of range: %f", c.Detection.IOUThreshold)
	}
	if c.Detection.InputSize <= 0 {
		return fmt.Errorf("invalid model input size: %d", c.Detection.InputSize)
	}
	if c.Reconnect.MaxAttempts < 1 {
		return fmt.Errorf("reconnect max attempts must be at least 1: %d", c.Reconnect.MaxAttempts)
	}
	if c.Output.Dir == "" {
		return fmt.Errorf("output directory is empty")
	}
	return nil
}

// CreateDirectories makes the model and output directories if missing.
func (c *Config) CreateDirectories() error {
	for _, dir := range []string{"models", c.Output.Dir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
