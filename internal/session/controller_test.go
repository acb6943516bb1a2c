package session

import (
	"context"
	"errors"
	"image/color"
	"strings"
	"testing"
	"time"

	"gocv.io/x/gocv"

	"detectcam/internal/config"
	"detectcam/internal/metrics"
	"detectcam/pkg/types"
)

// fakeSource scripts read and reconnect outcomes. Reads past the end of the
// script succeed.
type fakeSource struct {
	openErr       error
	readScript    []error
	readCount     int
	reconnectErrs []error
	reconnects    int
	releases      int
	opened        bool
}

func (s *fakeSource) Open(ctx context.Context) (types.Format, error) {
	if s.openErr != nil {
		return types.Format{}, s.openErr
	}
	s.opened = true
	return types.Format{Width: 64, Height: 48, FPS: 30}, nil
}

func (s *fakeSource) Read(dst *gocv.Mat) error {
	var err error
	if s.readCount < len(s.readScript) {
		err = s.readScript[s.readCount]
	}
	s.readCount++
	if err != nil {
		return err
	}
	frame := gocv.NewMatWithSize(48, 64, gocv.MatTypeCV8UC3)
	defer frame.Close()
	frame.CopyTo(dst)
	return nil
}

func (s *fakeSource) Reconnect(ctx context.Context) (types.Format, error) {
	var err error
	if s.reconnects < len(s.reconnectErrs) {
		err = s.reconnectErrs[s.reconnects]
	}
	s.reconnects++
	if err != nil {
		return types.Format{}, err
	}
	s.opened = true
	return types.Format{Width: 64, Height: 48, FPS: 30}, nil
}

func (s *fakeSource) Release() {
	s.releases++
	s.opened = false
}

func (s *fakeSource) IsAvailable() bool { return s.opened }

// fakeDetector returns a fixed result, optionally failing on scripted
// ticks.
type fakeDetector struct {
	detections []types.Detection
	failTicks  map[int]bool
	calls      int
}

func (d *fakeDetector) Detect(frame gocv.Mat) ([]types.Detection, error) {
	d.calls++
	if d.failTicks[d.calls] {
		return nil, &types.InferenceError{Err: errors.New("backend fault")}
	}
	return d.detections, nil
}

func (d *fakeDetector) Close() error { return nil }

type fakeRecorder struct {
	state     types.RecordingState
	writes    int
	writeErr  error
	toggles   int
	shutdowns int
}

func (r *fakeRecorder) Toggle(width, height int, fps float64) (types.RecordingState, error) {
	r.toggles++
	if r.state == types.RecordingActive {
		r.state = types.RecordingIdle
	} else {
		r.state = types.RecordingActive
	}
	return r.state, nil
}

func (r *fakeRecorder) Write(frame gocv.Mat) error {
	if r.writeErr != nil {
		return r.writeErr
	}
	r.writes++
	return nil
}

func (r *fakeRecorder) State() types.RecordingState { return r.state }

func (r *fakeRecorder) Shutdown() error {
	r.shutdowns++
	r.state = types.RecordingIdle
	return nil
}

// fakeDisplay pops one key per poll; once the script is exhausted it
// returns quit so Run terminates.
type fakeDisplay struct {
	keys  []int
	polls int
	shown int
}

func (d *fakeDisplay) Show(frame gocv.Mat) error {
	d.shown++
	return nil
}

func (d *fakeDisplay) PollKey(timeoutMs int) int {
	if d.polls < len(d.keys) {
		key := d.keys[d.polls]
		d.polls++
		return key
	}
	d.polls++
	return keyQuit
}

func (d *fakeDisplay) Close() error { return nil }

func testConfig() *config.Config {
	return &config.Config{
		Camera: config.CameraConfig{DeviceID: 0, Width: 64, Height: 48, FPS: 30},
		Display: config.DisplayConfig{
			WindowName: "test", ShowFPS: true, ShowConfidence: true, ShowLabels: true,
		},
		Style: config.StyleConfig{
			BoxColor: color.RGBA{G: 255}, TextColor: color.RGBA{R: 255, G: 255, B: 255},
			LabelBGColor: color.RGBA{G: 255}, FPSColor: color.RGBA{R: 255, G: 255},
			FontScale: 0.6, FontThickness: 2, BoxThickness: 2,
		},
		Output:    config.OutputConfig{Dir: "outputs"},
		Reconnect: config.ReconnectConfig{MaxAttempts: 1, Delay: time.Millisecond},
	}
}

// idleKeys returns n no-key polls.
func idleKeys(n int) []int {
	keys := make([]int, n)
	for i := range keys {
		keys[i] = -1
	}
	return keys
}

func newTestController(src *fakeSource, det *fakeDetector, rec *fakeRecorder, disp *fakeDisplay) *Controller {
	c := New(testConfig(), src, det, rec, disp, metrics.New())
	c.saveFrame = func(path string, frame gocv.Mat) bool { return true }
	return c
}

func TestRunStopsOnQuitAndReleasesResources(t *testing.T) {
	src := &fakeSource{}
	rec := &fakeRecorder{}
	disp := &fakeDisplay{keys: idleKeys(3)} // 3 idle ticks, then quit
	c := newTestController(src, &fakeDetector{}, rec, disp)

	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if c.State() != types.SessionStopped {
		t.Errorf("state = %v, want stopped", c.State())
	}
	if src.releases != 1 {
		t.Errorf("source released %d times, want 1", src.releases)
	}
	if rec.shutdowns != 1 {
		t.Errorf("recorder shutdowns = %d, want 1", rec.shutdowns)
	}
	if disp.shown != 4 {
		t.Errorf("frames displayed = %d, want 4", disp.shown)
	}
}

func TestRunOpenFailureIsFatal(t *testing.T) {
	src := &fakeSource{openErr: &types.OpenError{DeviceID: 0, Err: errors.New("unavailable")}}
	c := newTestController(src, &fakeDetector{}, &fakeRecorder{}, &fakeDisplay{})

	err := c.Run(context.Background())
	var openErr *types.OpenError
	if !errors.As(err, &openErr) {
		t.Fatalf("Run error = %v, want *types.OpenError", err)
	}
	if c.State() != types.SessionStopped {
		t.Errorf("state = %v, want stopped", c.State())
	}
}

func TestReadFailureTriggersReconnectAndRecovers(t *testing.T) {
	src := &fakeSource{
		readScript:    []error{nil, &types.ReadError{DeviceID: 0, Err: errors.New("timeout")}, nil, nil},
		reconnectErrs: []error{nil},
	}
	disp := &fakeDisplay{keys: idleKeys(3)}
	c := newTestController(src, &fakeDetector{}, &fakeRecorder{}, disp)

	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if src.reconnects != 1 {
		t.Errorf("reconnect attempts = %d, want 1", src.reconnects)
	}
	// 5 read attempts total, one failed: only the failed tick drops a
	// frame.
	if got := c.metrics.FramesRead.Load(); got != 4 {
		t.Errorf("frames read = %d, want 4", got)
	}
	if got := c.metrics.Reconnects.Load(); got != 1 {
		t.Errorf("reconnects metric = %d, want 1", got)
	}
}

func TestReconnectExhaustionStopsSession(t *testing.T) {
	src := &fakeSource{
		readScript:    []error{&types.ReadError{DeviceID: 0, Err: errors.New("gone")}},
		reconnectErrs: []error{&types.OpenError{DeviceID: 0, Err: errors.New("still gone")}},
	}
	c := newTestController(src, &fakeDetector{}, &fakeRecorder{}, &fakeDisplay{})

	err := c.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "could not reconnect") {
		t.Fatalf("Run error = %v, want reconnect failure", err)
	}
	if c.State() != types.SessionStopped {
		t.Errorf("state = %v, want stopped", c.State())
	}
	if src.releases == 0 {
		t.Error("source must be released on the reconnect-failure path")
	}
}

func TestReconnectPolicyRetriesPerFailedRead(t *testing.T) {
	src := &fakeSource{
		readScript: []error{&types.ReadError{DeviceID: 0, Err: errors.New("gone")}},
		reconnectErrs: []error{
			&types.OpenError{DeviceID: 0, Err: errors.New("attempt 1")},
			&types.OpenError{DeviceID: 0, Err: errors.New("attempt 2")},
			nil,
		},
	}
	disp := &fakeDisplay{keys: idleKeys(1)}
	c := newTestController(src, &fakeDetector{}, &fakeRecorder{}, disp)
	c.cfg.Reconnect.MaxAttempts = 3

	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if src.reconnects != 3 {
		t.Errorf("reconnect attempts = %d, want 3", src.reconnects)
	}
	if got := c.metrics.ReconnectFailures.Load(); got != 2 {
		t.Errorf("reconnect failures metric = %d, want 2", got)
	}
}

func TestInferenceFailureDegradesToPlainFrame(t *testing.T) {
	det := &fakeDetector{failTicks: map[int]bool{1: true}}
	disp := &fakeDisplay{keys: idleKeys(2)}
	c := newTestController(&fakeSource{}, det, &fakeRecorder{}, disp)

	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	// The failed tick still reaches the display.
	if disp.shown != 3 {
		t.Errorf("frames displayed = %d, want 3", disp.shown)
	}
	if got := c.metrics.InferenceErrors.Load(); got != 1 {
		t.Errorf("inference errors = %d, want 1", got)
	}
}

func TestRecordingToggleAndFrameForwarding(t *testing.T) {
	rec := &fakeRecorder{}
	// Toggle on, record 3 frames, toggle off, one more tick, quit.
	keys := []int{keyRecording, -1, -1, keyRecording, -1}
	disp := &fakeDisplay{keys: keys}
	c := newTestController(&fakeSource{}, &fakeDetector{}, rec, disp)

	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if rec.toggles != 2 {
		t.Errorf("toggles = %d, want 2", rec.toggles)
	}
	// Recording became active after tick 1's command, so ticks 2-4 write.
	if rec.writes != 3 {
		t.Errorf("frames written = %d, want 3", rec.writes)
	}
}

func TestWriteFaultStopsRecordingButNotSession(t *testing.T) {
	rec := &fakeRecorder{writeErr: &types.WriteError{Path: "x.mp4", Err: errors.New("disk full")}}
	keys := []int{keyRecording, -1, -1}
	disp := &fakeDisplay{keys: keys}
	c := newTestController(&fakeSource{}, &fakeDetector{}, rec, disp)

	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	// First shutdown from the write fault, second from session teardown.
	if rec.shutdowns != 2 {
		t.Errorf("recorder shutdowns = %d, want 2", rec.shutdowns)
	}
	if got := c.metrics.WriteErrors.Load(); got != 1 {
		t.Errorf("write errors = %d, want 1", got)
	}
	if disp.shown != 4 {
		t.Errorf("frames displayed = %d, want 4; session must continue", disp.shown)
	}
}

func TestSnapshotCommand(t *testing.T) {
	var saved []string
	disp := &fakeDisplay{keys: []int{keySnapshot}}
	c := newTestController(&fakeSource{}, &fakeDetector{}, &fakeRecorder{}, disp)
	c.saveFrame = func(path string, frame gocv.Mat) bool {
		saved = append(saved, path)
		return true
	}

	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(saved) != 1 {
		t.Fatalf("snapshots saved = %d, want 1", len(saved))
	}
	if !strings.HasPrefix(saved[0], "outputs/detection_") || !strings.HasSuffix(saved[0], ".jpg") {
		t.Errorf("snapshot path = %q, want outputs/detection_<ts>.jpg", saved[0])
	}
}

func TestContextCancellationStopsRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := &fakeSource{}
	c := newTestController(src, &fakeDetector{}, &fakeRecorder{}, &fakeDisplay{})

	if err := c.Run(ctx); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if c.State() != types.SessionStopped {
		t.Errorf("state = %v, want stopped", c.State())
	}
	if src.releases != 1 {
		t.Errorf("source released %d times, want 1", src.releases)
	}
}
