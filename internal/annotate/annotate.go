// Package annotate composites detection results onto frames: boxes, labels,
// FPS, object count, and the recording indicator. All drawing goes through
// the OpenCV primitives and is clipped to frame bounds.
package annotate

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"detectcam/internal/config"
	"detectcam/pkg/types"
)

var recordingRed = color.RGBA{R: 255}

const (
	fpsAnchorX       = 10
	fpsAnchorY       = 30
	countAnchorY     = 60
	indicatorRadius  = 10
	indicatorPadding = 30
	labelPadding     = 5
)

// Annotator renders overlays using a fixed style bundle. It draws onto the
// Mat it is given; callers that need the original pass a copy.
type Annotator struct {
	style   config.StyleConfig
	display config.DisplayConfig
	font    gocv.HersheyFont
}

// New creates an Annotator with the given rendering parameters.
func New(style config.StyleConfig, display config.DisplayConfig) *Annotator {
	return &Annotator{
		style:   style,
		display: display,
		font:    gocv.FontHersheySimplex,
	}
}

// DrawDetections draws a bounding rectangle and label for each detection.
// The label background is placed above the box top-left corner unless that
// would leave the frame, in which case it drops inside the box.
func (a *Annotator) DrawDetections(frame *gocv.Mat, detections []types.Detection) {
	bounds := image.Rect(0, 0, frame.Cols(), frame.Rows())

	for _, det := range detections {
		box := image.Rect(det.BBox.X1, det.BBox.Y1, det.BBox.X2, det.BBox.Y2).Intersect(bounds)
		if box.Empty() {
			continue
		}
		gocv.Rectangle(frame, box, a.style.BoxColor, a.style.BoxThickness)

		if !a.display.ShowLabels {
			continue
		}
		a.drawLabel(frame, bounds, box, formatLabel(det, a.display.ShowConfidence))
	}
}

func (a *Annotator) drawLabel(frame *gocv.Mat, bounds, box image.Rectangle, label string) {
	size, baseline := gocv.GetTextSizeWithBaseline(label, a.font, a.style.FontScale, a.style.FontThickness)

	bgHeight := size.Y + baseline + labelPadding
	bg := image.Rect(box.Min.X, box.Min.Y-bgHeight, box.Min.X+size.X, box.Min.Y)
	if bg.Min.Y < bounds.Min.Y {
		// Not enough room above the box; drop the label inside it.
		bg = image.Rect(box.Min.X, box.Min.Y, box.Min.X+size.X, box.Min.Y+bgHeight)
	}
	bg = bg.Intersect(bounds)
	if bg.Empty() {
		return
	}

	gocv.Rectangle(frame, bg, a.style.LabelBGColor, -1)
	textOrigin := image.Pt(bg.Min.X, bg.Max.Y-baseline-labelPadding/2)
	gocv.PutText(frame, label, textOrigin, a.font, a.style.FontScale, a.style.TextColor, a.style.FontThickness)
}

// DrawFPS overlays the measured frame rate at a fixed screen position.
func (a *Annotator) DrawFPS(frame *gocv.Mat, fps float64) {
	text := fmt.Sprintf("FPS: %.1f", fps)
	gocv.PutText(frame, text, image.Pt(fpsAnchorX, fpsAnchorY),
		a.font, a.style.FontScale, a.style.FPSColor, a.style.FontThickness)
}

// DrawObjectCount overlays the number of detections on the current frame.
func (a *Annotator) DrawObjectCount(frame *gocv.Mat, count int) {
	text := fmt.Sprintf("Objects: %d", count)
	gocv.PutText(frame, text, image.Pt(fpsAnchorX, countAnchorY),
		a.font, a.style.FontScale, a.style.FPSColor, a.style.FontThickness)
}

// DrawRecordingIndicator draws a filled red circle in the top-right corner
// while recording is active.
func (a *Annotator) DrawRecordingIndicator(frame *gocv.Mat) {
	center := image.Pt(frame.Cols()-indicatorPadding, indicatorPadding)
	gocv.Circle(frame, center, indicatorRadius, recordingRed, -1)
}

// formatLabel builds the label text: class name, optionally suffixed with
// the confidence to two decimal places.
func formatLabel(det types.Detection, showConfidence bool) string {
	if showConfidence {
		return fmt.Sprintf("%s: %.2f", det.ClassName, det.Confidence)
	}
	return det.ClassName
}
