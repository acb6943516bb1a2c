// Package record owns the lifecycle of the output video writer. Recording
// is toggled exclusively by explicit command; it never auto-starts.
package record

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"detectcam/internal/logger"
	"detectcam/pkg/types"
)

const codec = "mp4v"

// videoWriter is the surface the manager needs from an open writer; the
// gocv implementation is the default and tests substitute a fake.
type videoWriter interface {
	Write(frame gocv.Mat) error
	IsOpened() bool
	Close() error
}

// writerFactory opens a writer for the given path and format.
type writerFactory func(path string, fps float64, width, height int) (videoWriter, error)

func openGocvWriter(path string, fps float64, width, height int) (videoWriter, error) {
	return gocv.VideoWriterFile(path, codec, fps, width, height, true)
}

// Stats describes the current or last recording.
type Stats struct {
	Path       string
	FrameCount uint64
	StartedAt  time.Time
}

// Manager owns the writer handle. The controller is its only caller during
// a session; the mutex guards against shutdown racing a final write.
type Manager struct {
	mu        sync.Mutex
	outputDir string
	newWriter writerFactory

	state      types.RecordingState
	writer     videoWriter
	path       string
	frameCount uint64
	startedAt  time.Time
}

// NewManager creates an idle Manager writing into outputDir.
func NewManager(outputDir string) *Manager {
	return newManager(outputDir, openGocvWriter)
}

func newManager(outputDir string, newWriter writerFactory) *Manager {
	return &Manager{outputDir: outputDir, newWriter: newWriter}
}

// Toggle flips the recording state. Idle opens a new timestamped writer
// sized to the given format and moves to Active; Active flushes, closes,
// and moves back to Idle. This is the only way recording state changes.
func (m *Manager) Toggle(width, height int, fps float64) (types.RecordingState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == types.RecordingActive {
		return m.stopLocked()
	}

	timestamp := time.Now().Format("20060102_150405")
	path := filepath.Join(m.outputDir, fmt.Sprintf("recording_%s.mp4", timestamp))

	writer, err := m.newWriter(path, fps, width, height)
	if err != nil {
		return m.state, &types.WriteError{Path: path, Err: err}
	}
	if !writer.IsOpened() {
		_ = writer.Close()
		return m.state, &types.WriteError{Path: path, Err: fmt.Errorf("writer did not open")}
	}

	m.writer = writer
	m.path = path
	m.frameCount = 0
	m.startedAt = time.Now()
	m.state = types.RecordingActive

	logger.Info("Record", "Recording started: %s (%dx%d @ %.0f fps)", path, width, height, fps)
	return m.state, nil
}

func (m *Manager) stopLocked() (types.RecordingState, error) {
	var err error
	if m.writer != nil {
		if closeErr := m.writer.Close(); closeErr != nil {
			err = &types.WriteError{Path: m.path, Err: closeErr}
		}
		m.writer = nil
	}
	m.state = types.RecordingIdle
	logger.Info("Record", "Recording stopped: %s (%d frames)", m.path, m.frameCount)
	return m.state, err
}

// Write appends the frame to the open writer. No-op while Idle, so callers
// may forward every annotated frame unconditionally. The caller must keep
// frame dimensions equal to the ones passed to Toggle.
func (m *Manager) Write(frame gocv.Mat) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != types.RecordingActive || m.writer == nil {
		return nil
	}
	if err := m.writer.Write(frame); err != nil {
		return &types.WriteError{Path: m.path, Err: err}
	}
	m.frameCount++
	return nil
}

// State returns the current recording state.
func (m *Manager) State() types.RecordingState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Stats returns the stats of the current or most recent recording.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{Path: m.path, FrameCount: m.frameCount, StartedAt: m.startedAt}
}

// Shutdown closes any active recording. Idempotent; safe on every exit
// path.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != types.RecordingActive {
		return nil
	}
	_, err := m.stopLocked()
	return err
}
