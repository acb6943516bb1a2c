// Package session drives the real-time loop: one tick reads a frame, runs
// detection, composites overlays, forwards the result to the recorder and
// display, and dispatches at most one pending command. Everything runs on
// the caller's goroutine; no component is touched concurrently.
package session

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"gocv.io/x/gocv"

	"detectcam/internal/annotate"
	"detectcam/internal/config"
	"detectcam/internal/detect"
	"detectcam/internal/logger"
	"detectcam/internal/metrics"
	"detectcam/pkg/types"
)

// Key codes dispatched by the command poll.
const (
	keyQuit      = 'q'
	keyEscape    = 27
	keySnapshot  = 's'
	keyRecording = 'r'
	keyInfo      = 'i'

	// pollTimeoutMs bounds the command poll so the loop stays near real
	// time.
	pollTimeoutMs = 1
)

// FrameSource is the capture surface the controller drives. Implemented by
// capture.Session.
type FrameSource interface {
	Open(ctx context.Context) (types.Format, error)
	Read(dst *gocv.Mat) error
	Reconnect(ctx context.Context) (types.Format, error)
	Release()
	IsAvailable() bool
}

// Recorder is the recording surface the controller drives. Implemented by
// record.Manager.
type Recorder interface {
	Toggle(width, height int, fps float64) (types.RecordingState, error)
	Write(frame gocv.Mat) error
	State() types.RecordingState
	Shutdown() error
}

// Display presents frames in a window and polls for key commands.
type Display interface {
	Show(frame gocv.Mat) error
	// PollKey waits up to timeoutMs for a key press and returns its code,
	// or -1 when none is pending.
	PollKey(timeoutMs int) int
	Close() error
}

// Controller owns the session state machine and FrameMetrics, and borrows
// the source, detector, recorder, and display for the duration of a run.
type Controller struct {
	cfg       *config.Config
	source    FrameSource
	detector  detect.Detector
	annotator *annotate.Annotator
	recorder  Recorder
	display   Display
	metrics   *metrics.Metrics

	state        types.SessionState
	format       types.Format
	frameMetrics *annotate.FrameMetrics

	// saveFrame writes a snapshot; swapped out in tests.
	saveFrame func(path string, frame gocv.Mat) bool
}

// New creates a Controller in the Initializing state.
func New(cfg *config.Config, source FrameSource, detector detect.Detector, recorder Recorder, display Display, m *metrics.Metrics) *Controller {
	return &Controller{
		cfg:          cfg,
		source:       source,
		detector:     detector,
		annotator:    annotate.New(cfg.Style, cfg.Display),
		recorder:     recorder,
		display:      display,
		metrics:      m,
		state:        types.SessionInitializing,
		frameMetrics: annotate.NewFrameMetrics(),
		saveFrame:    gocv.IMWrite,
	}
}

// State returns the current session state.
func (c *Controller) State() types.SessionState {
	return c.state
}

// Format returns the negotiated capture format. Valid after Run has opened
// the source.
func (c *Controller) Format() types.Format {
	return c.format
}

// Run executes the session until a quit command, an unrecoverable error, or
// context cancellation. The capture handle and any active recording are
// released on every exit path.
func (c *Controller) Run(ctx context.Context) error {
	format, err := c.source.Open(ctx)
	if err != nil {
		c.state = types.SessionStopped
		return err
	}
	c.format = format
	c.state = types.SessionRunning

	defer func() {
		if err := c.recorder.Shutdown(); err != nil {
			logger.Error("Session", "Error closing recording: %v", err)
		}
		c.source.Release()
		c.state = types.SessionStopped
		logger.Info("Session", "Session stopped")
	}()

	frame := gocv.NewMat()
	defer frame.Close()

	logger.Info("Session", "Session running at %s", format)

	for c.state != types.SessionStopped {
		if ctx.Err() != nil {
			logger.Info("Session", "Context cancelled, stopping")
			return nil
		}
		if err := c.tick(ctx, &frame); err != nil {
			return err
		}
	}
	return nil
}

// tick processes exactly one frame. A read failure consumes the whole tick
// with reconnection; any other failure degrades and the loop continues.
func (c *Controller) tick(ctx context.Context, frame *gocv.Mat) error {
	tickStart := time.Now()
	defer func() { c.metrics.ObserveTick(time.Since(tickStart)) }()

	if err := c.source.Read(frame); err != nil {
		c.metrics.ReadErrors.Add(1)
		logger.Warn("Session", "Frame read failed: %v", err)
		return c.reconnect(ctx)
	}
	c.metrics.FramesRead.Add(1)

	detections := c.detect(*frame)

	annotated := frame.Clone()
	defer annotated.Close()

	c.annotator.DrawDetections(&annotated, detections)
	fps := c.frameMetrics.Tick()
	if c.cfg.Display.ShowFPS {
		c.annotator.DrawFPS(&annotated, fps)
	}
	c.annotator.DrawObjectCount(&annotated, len(detections))
	c.metrics.FramesAnnotated.Add(1)

	if c.recorder.State() == types.RecordingActive {
		if err := c.recorder.Write(annotated); err != nil {
			// A write fault stops recording; the session continues.
			c.metrics.WriteErrors.Add(1)
			logger.Error("Session", "Recording write failed, stopping recording: %v", err)
			if err := c.recorder.Shutdown(); err != nil {
				logger.Error("Session", "Error closing failed recording: %v", err)
			}
			c.metrics.SetRecording(false)
		} else {
			c.metrics.RecordingFrames.Add(1)
			c.annotator.DrawRecordingIndicator(&annotated)
		}
	}

	if err := c.display.Show(annotated); err != nil {
		logger.Warn("Session", "Display error: %v", err)
	} else {
		c.metrics.FramesDisplayed.Add(1)
	}

	c.dispatchCommand(annotated, detections)
	return nil
}

// detect runs the Detection Port. Failures degrade to zero detections for
// this tick rather than terminating the session.
func (c *Controller) detect(frame gocv.Mat) []types.Detection {
	start := time.Now()
	detections, err := c.detector.Detect(frame)
	c.metrics.ObserveInference(time.Since(start))
	if err != nil {
		c.metrics.InferenceErrors.Add(1)
		logger.Warn("Session", "Detection failed, rendering plain frame: %v", err)
		return nil
	}
	c.metrics.Detections.Add(uint64(len(detections)))
	return detections
}

// reconnect applies the configured policy after a failed read: up to
// MaxAttempts reconnect attempts, then the session stops.
func (c *Controller) reconnect(ctx context.Context) error {
	c.state = types.SessionReconnecting

	var lastErr error
	for attempt := 1; attempt <= c.cfg.Reconnect.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			c.state = types.SessionStopped
			return nil
		}
		logger.Info("Session", "Reconnect attempt %d/%d", attempt, c.cfg.Reconnect.MaxAttempts)

		format, err := c.source.Reconnect(ctx)
		if err == nil {
			c.format = format
			c.state = types.SessionRunning
			c.metrics.Reconnects.Add(1)
			logger.Info("Session", "Reconnected at %s", format)
			return nil
		}
		lastErr = err
		c.metrics.ReconnectFailures.Add(1)
		logger.Warn("Session", "Reconnect attempt %d failed: %v", attempt, err)
	}

	c.state = types.SessionStopped
	return fmt.Errorf("could not reconnect to camera: %w", lastErr)
}

// dispatchCommand polls for a single pending command and handles it before
// the next tick begins.
func (c *Controller) dispatchCommand(annotated gocv.Mat, detections []types.Detection) {
	key := c.display.PollKey(pollTimeoutMs)
	switch key {
	case keyQuit, keyEscape:
		logger.Info("Session", "Quit requested")
		c.state = types.SessionStopped
	case keySnapshot:
		c.saveSnapshot(annotated, detections)
	case keyRecording:
		c.toggleRecording(annotated)
	case keyInfo:
		c.showDetectionInfo(detections)
	}
}

func (c *Controller) saveSnapshot(annotated gocv.Mat, detections []types.Detection) {
	timestamp := time.Now().Format("20060102_150405")
	path := filepath.Join(c.cfg.Output.Dir, fmt.Sprintf("detection_%s.jpg", timestamp))

	if !c.saveFrame(path, annotated) {
		logger.Error("Session", "Failed to save snapshot %s", path)
		return
	}
	c.metrics.Snapshots.Add(1)
	logger.Info("Session", "Frame saved: %s (%d objects)", path, len(detections))
}

func (c *Controller) toggleRecording(annotated gocv.Mat) {
	state, err := c.recorder.Toggle(annotated.Cols(), annotated.Rows(), c.format.FPS)
	if err != nil {
		c.metrics.WriteErrors.Add(1)
		logger.Error("Session", "Recording toggle failed: %v", err)
	}
	c.metrics.SetRecording(state == types.RecordingActive)
}

func (c *Controller) showDetectionInfo(detections []types.Detection) {
	fmt.Printf("\nCurrent detections: %d\n", len(detections))
	if len(detections) == 0 {
		fmt.Println("No objects detected")
		return
	}
	for i, det := range detections {
		fmt.Printf("%d. %s\n", i+1, det)
	}
}
