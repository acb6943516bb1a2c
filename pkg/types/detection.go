package types

import "fmt"

// BoundingBox is an axis-aligned box in frame pixel coordinates.
// Invariant: X1 <= X2 and Y1 <= Y2.
type BoundingBox struct {
	X1 int // Left edge
	Y1 int // Top edge
	X2 int // Right edge
	Y2 int // Bottom edge
}

// Width returns the box width in pixels.
func (b BoundingBox) Width() int { return b.X2 - b.X1 }

// Height returns the box height in pixels.
func (b BoundingBox) Height() int { return b.Y2 - b.Y1 }

// Detection represents one recognized object instance.
// A Detection is immutable once constructed; it is only consumed for
// rendering and reporting.
type Detection struct {
	BBox       BoundingBox // Box in frame pixel coordinates
	Confidence float64     // Model confidence in [0, 1]
	ClassID    int         // Non-negative class index
	ClassName  string      // Label resolved from ClassID
}

// NewDetection validates and constructs a Detection.
func NewDetection(bbox BoundingBox, confidence float64, classID int, className string) (Detection, error) {
	if bbox.X1 > bbox.X2 || bbox.Y1 > bbox.Y2 {
		return Detection{}, fmt.Errorf("invalid bounding box: (%d,%d)-(%d,%d)", bbox.X1, bbox.Y1, bbox.X2, bbox.Y2)
	}
	if confidence < 0 || confidence > 1 {
		return Detection{}, fmt.Errorf("confidence out of range: %f", confidence)
	}
	if classID < 0 {
		return Detection{}, fmt.Errorf("negative class id: %d", classID)
	}
	return Detection{
		BBox:       bbox,
		Confidence: confidence,
		ClassID:    classID,
		ClassName:  className,
	}, nil
}

// String formats the detection for logging and the info command.
func (d Detection) String() string {
	return fmt.Sprintf("%s (%.2f) at (%d,%d)-(%d,%d)",
		d.ClassName, d.Confidence, d.BBox.X1, d.BBox.Y1, d.BBox.X2, d.BBox.Y2)
}

// Format holds the negotiated capture format as reported by the device.
// The device may not honor requested values exactly, so callers must use
// these instead of the requested ones.
type Format struct {
	Width  int
	Height int
	FPS    float64
}

func (f Format) String() string {
	return fmt.Sprintf("%dx%d @ %.0f fps", f.Width, f.Height, f.FPS)
}
