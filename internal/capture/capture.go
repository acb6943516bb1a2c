// Package capture owns the camera device handle: open with format
// negotiation, frame reads with typed failures, reconnection, and release.
package capture

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gocv.io/x/gocv"

	"detectcam/internal/config"
	"detectcam/internal/logger"
	"detectcam/pkg/types"
)

// device is the minimal surface the session needs from a capture handle.
// The gocv implementation is the default; tests substitute a fake.
type device interface {
	Set(prop gocv.VideoCaptureProperties, value float64)
	Get(prop gocv.VideoCaptureProperties) float64
	Read(dst *gocv.Mat) bool
	IsOpened() bool
	Close() error
}

// openFunc acquires a device by index.
type openFunc func(deviceID int) (device, error)

func openGocvDevice(deviceID int) (device, error) {
	vc, err := gocv.OpenVideoCapture(deviceID)
	if err != nil {
		return nil, err
	}
	return vc, nil
}

// Session owns one camera handle for the duration of a run. It is not safe
// for concurrent use; the controller is its only caller.
type Session struct {
	deviceID  int
	requested config.CameraConfig
	policy    config.ReconnectConfig

	open   openFunc
	dev    device
	opened bool
	format types.Format
}

// New creates a Session for the configured device. The handle is not
// acquired until Open.
func New(camera config.CameraConfig, reconnect config.ReconnectConfig) *Session {
	return newSession(camera, reconnect, openGocvDevice)
}

func newSession(camera config.CameraConfig, reconnect config.ReconnectConfig, open openFunc) *Session {
	return &Session{
		deviceID:  camera.DeviceID,
		requested: camera,
		policy:    reconnect,
		open:      open,
	}
}

// Open acquires the device, requests the configured format, and returns the
// format the device actually negotiated. The device may not honor the
// requested values; callers must use the returned ones.
func (s *Session) Open(ctx context.Context) (types.Format, error) {
	if err := ctx.Err(); err != nil {
		return types.Format{}, &types.OpenError{DeviceID: s.deviceID, Err: err}
	}

	logger.Info("Capture", "Opening camera %d (%dx%d @ %d fps requested)",
		s.deviceID, s.requested.Width, s.requested.Height, s.requested.FPS)

	dev, err := s.open(s.deviceID)
	if err != nil {
		return types.Format{}, &types.OpenError{DeviceID: s.deviceID, Err: err}
	}
	if !dev.IsOpened() {
		_ = dev.Close()
		return types.Format{}, &types.OpenError{DeviceID: s.deviceID, Err: errors.New("device did not open")}
	}

	dev.Set(gocv.VideoCaptureFrameWidth, float64(s.requested.Width))
	dev.Set(gocv.VideoCaptureFrameHeight, float64(s.requested.Height))
	dev.Set(gocv.VideoCaptureFPS, float64(s.requested.FPS))

	s.dev = dev
	s.opened = true
	s.format = types.Format{
		Width:  int(dev.Get(gocv.VideoCaptureFrameWidth)),
		Height: int(dev.Get(gocv.VideoCaptureFrameHeight)),
		FPS:    dev.Get(gocv.VideoCaptureFPS),
	}
	if s.format.FPS <= 0 {
		// Some drivers report 0 for FPS; fall back to the requested rate
		// so downstream consumers always see a usable value.
		s.format.FPS = float64(s.requested.FPS)
	}

	logger.Info("Capture", "Camera %d negotiated %s", s.deviceID, s.format)
	return s.format, nil
}

// Read fills dst with the next frame. A device fault surfaces as a
// *types.ReadError so the controller can decide reconnection policy; it
// never panics on transient failure.
func (s *Session) Read(dst *gocv.Mat) error {
	if !s.opened || s.dev == nil {
		return &types.ReadError{DeviceID: s.deviceID, Err: errors.New("camera not open")}
	}
	if ok := s.dev.Read(dst); !ok {
		return &types.ReadError{DeviceID: s.deviceID, Err: errors.New("device signaled failure")}
	}
	if dst.Empty() {
		return &types.ReadError{DeviceID: s.deviceID, Err: errors.New("empty frame")}
	}
	return nil
}

// Reconnect releases the current handle, pauses per the configured delay to
// avoid hot-spinning against a disconnected device, and re-opens with the
// original parameters.
func (s *Session) Reconnect(ctx context.Context) (types.Format, error) {
	logger.Warn("Capture", "Reconnecting camera %d...", s.deviceID)
	s.Release()

	select {
	case <-time.After(s.policy.Delay):
	case <-ctx.Done():
		return types.Format{}, &types.OpenError{DeviceID: s.deviceID, Err: ctx.Err()}
	}

	return s.Open(ctx)
}

// Release closes the device handle. Idempotent; the underlying handle is
// released exactly once.
func (s *Session) Release() {
	if !s.opened {
		return
	}
	s.opened = false
	if s.dev != nil {
		if err := s.dev.Close(); err != nil {
			logger.Warn("Capture", "Error closing camera %d: %v", s.deviceID, err)
		}
		s.dev = nil
	}
	logger.Info("Capture", "Camera %d released", s.deviceID)
}

// IsAvailable reports whether the handle is open and the device ready.
func (s *Session) IsAvailable() bool {
	return s.opened && s.dev != nil && s.dev.IsOpened()
}

// Info describes the session for the startup banner.
type Info struct {
	DeviceID int
	Format   types.Format
}

// Info returns the device id and negotiated format of an open session.
func (s *Session) Info() (Info, error) {
	if !s.IsAvailable() {
		return Info{}, fmt.Errorf("camera %d not open", s.deviceID)
	}
	return Info{DeviceID: s.deviceID, Format: s.format}, nil
}
