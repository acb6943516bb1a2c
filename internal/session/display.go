package session

import "gocv.io/x/gocv"

// WindowDisplay presents frames in a named OpenCV window.
type WindowDisplay struct {
	window *gocv.Window
}

// NewWindowDisplay opens the window.
func NewWindowDisplay(name string) *WindowDisplay {
	return &WindowDisplay{window: gocv.NewWindow(name)}
}

// Show implements Display.
func (d *WindowDisplay) Show(frame gocv.Mat) error {
	d.window.IMShow(frame)
	return nil
}

// PollKey implements Display. WaitKey doubles as the event pump, so this
// must be called every tick even when no command is expected.
func (d *WindowDisplay) PollKey(timeoutMs int) int {
	key := d.window.WaitKey(timeoutMs)
	if key < 0 {
		return -1
	}
	return key & 0xFF
}

// Close releases the window.
func (d *WindowDisplay) Close() error {
	return d.window.Close()
}
