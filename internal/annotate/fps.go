package annotate

import "time"

// measurementWindow is the interval over which FPS is averaged. Updating
// once per window keeps the displayed value free of frame-to-frame timing
// noise.
const measurementWindow = time.Second

// FrameMetrics tracks the rolling frame rate. Created once per session and
// touched only by the controller tick; no locking.
type FrameMetrics struct {
	frameCount  int
	windowStart time.Time
	currentFPS  float64
	now         func() time.Time
}

// NewFrameMetrics creates metrics with the window starting now.
func NewFrameMetrics() *FrameMetrics {
	return newFrameMetrics(time.Now)
}

func newFrameMetrics(now func() time.Time) *FrameMetrics {
	return &FrameMetrics{windowStart: now(), now: now}
}

// Tick counts one frame and returns the current FPS. The rate is
// recomputed only when the measurement window has elapsed; within a window
// the previously computed value is returned unchanged.
func (m *FrameMetrics) Tick() float64 {
	m.frameCount++
	elapsed := m.now().Sub(m.windowStart)
	if elapsed > measurementWindow {
		m.currentFPS = float64(m.frameCount) / elapsed.Seconds()
		m.frameCount = 0
		m.windowStart = m.now()
	}
	return m.currentFPS
}

// FPS returns the last computed rate without counting a frame.
func (m *FrameMetrics) FPS() float64 {
	return m.currentFPS
}
