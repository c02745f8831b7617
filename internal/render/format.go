package render

import (
	"fmt"
	"time"
)

// Format is the raster size and frame rate shared by every segment of a job.
type Format struct {
	Width  int
	Height int
	FPS    int
}

func DefaultFormat() Format {
	return Format{Width: 1280, Height: 720, FPS: 10}
}

func (f Format) Validate() error {
	if f.Width <= 0 || f.Height <= 0 {
		return fmt.Errorf("invalid frame size %dx%d", f.Width, f.Height)
	}
	// yuv420p output needs even dimensions.
	if f.Width%2 != 0 || f.Height%2 != 0 {
		return fmt.Errorf("frame size %dx%d must have even dimensions", f.Width, f.Height)
	}
	if f.FPS <= 0 || f.FPS > 60 {
		return fmt.Errorf("frame rate %d out of range (1-60)", f.FPS)
	}
	return nil
}

// FrameCount is ceil(d × fps).
func (f Format) FrameCount(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	n := int64(d) * int64(f.FPS)
	return int((n + int64(time.Second) - 1) / int64(time.Second))
}

// FrameTime is the timestamp of frame i within its segment.
func (f Format) FrameTime(i int) time.Duration {
	return time.Duration(int64(i) * int64(time.Second) / int64(f.FPS))
}

// Duration is the playback time of n frames.
func (f Format) Duration(frames int) time.Duration {
	return f.FrameTime(frames)
}

// FramePeriod is 1/fps, truncated to the nanosecond.
func (f Format) FramePeriod() time.Duration {
	return time.Second / time.Duration(f.FPS)
}
