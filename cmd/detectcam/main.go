// detectcam opens a camera, runs each frame through an object-detection
// model, and shows the annotated stream with interactive snapshot and
// recording controls.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"detectcam/internal/capture"
	"detectcam/internal/config"
	"detectcam/internal/detect"
	"detectcam/internal/logger"
	"detectcam/internal/metrics"
	"detectcam/internal/record"
	"detectcam/internal/session"
)

var (
	// Command-line flags
	cameraID    = flag.Int("camera", -1, "Camera device ID (default: from config, 0)")
	listCameras = flag.Bool("list-cameras", false, "List available cameras and exit")
	maxProbe    = flag.Int("max-probe", 5, "Highest device index probed by -list-cameras")
	metricsAddr = flag.String("metrics", "", "Prometheus metrics address (empty = disabled)")
	logLevel    = flag.String("log-level", "info", "Log level (debug, info, warn, error, silent)")
	logColor    = flag.Bool("log-color", true, "Enable colored log output")
)

func main() {
	flag.Parse()

	level, err := logger.ParseLevel(*logLevel)
	if err != nil {
		log.Fatalf("Invalid log level: %v", err)
	}
	logger.Init(level, os.Stderr, *logColor)

	if *listCameras {
		fmt.Println("Scanning for available cameras...")
		fmt.Printf("Available cameras: %v\n", capture.ListAvailable(*maxProbe))
		return
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Error("Main", "Configuration error: %v", err)
		os.Exit(1)
	}
	if *cameraID >= 0 {
		cfg.Camera.DeviceID = *cameraID
	}
	if err := cfg.CreateDirectories(); err != nil {
		logger.Error("Main", "Failed to create directories: %v", err)
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		logger.Error("Main", "Session failed: %v", err)
		os.Exit(1)
	}
	logger.Info("Main", "Shutdown complete")
}

func run(cfg *config.Config) error {
	m := metrics.New()
	if *metricsAddr != "" {
		go func() {
			logger.Info("Main", "Starting metrics server on %s", *metricsAddr)
			if err := m.StartServer(*metricsAddr); err != nil {
				logger.Warn("Main", "Metrics server error: %v", err)
			}
		}()
	}

	detector, err := detect.NewYOLODetector(cfg.Detection)
	if err != nil {
		return fmt.Errorf("initialize detector: %w", err)
	}
	defer func() {
		if err := detector.Close(); err != nil {
			logger.Warn("Main", "Error closing detector: %v", err)
		}
	}()

	source := capture.New(cfg.Camera, cfg.Reconnect)
	recorder := record.NewManager(cfg.Output.Dir)
	display := session.NewWindowDisplay(cfg.Display.WindowName)
	defer func() {
		if err := display.Close(); err != nil {
			logger.Warn("Main", "Error closing window: %v", err)
		}
	}()

	printBanner(cfg, detector.Info())

	// A signal cancels the context; the loop observes it at the top of the
	// next tick and shuts down cleanly.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	controller := session.New(cfg, source, detector, recorder, display, m)
	return controller.Run(ctx)
}

func printBanner(cfg *config.Config, model detect.ModelInfo) {
	divider := "============================================================"
	fmt.Println(divider)
	fmt.Println("OBJECT DETECTION SYSTEM")
	fmt.Println(divider)
	fmt.Printf("Camera ID: %d (requested %dx%d @ %d fps)\n",
		cfg.Camera.DeviceID, cfg.Camera.Width, cfg.Camera.Height, cfg.Camera.FPS)
	fmt.Printf("Model: %s\n", model.ModelPath)
	fmt.Printf("Classes: %d\n", model.NumClasses)
	fmt.Printf("Confidence threshold: %.2f\n", model.ConfidenceThreshold)
	fmt.Printf("IoU threshold: %.2f\n", model.IOUThreshold)
	fmt.Printf("Output directory: %s\n", cfg.Output.Dir)
	fmt.Println()
	fmt.Println("[CONTROLS]")
	fmt.Println("Press 'q' or ESC to quit")
	fmt.Println("Press 's' to save current frame")
	fmt.Println("Press 'r' to toggle recording")
	fmt.Println("Press 'i' to show detection info")
	fmt.Println(divider)
}
