package frames

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
)

// Offsets are the fractional positions sampled from every video, in order.
var Offsets = [3]float64{0.1, 0.5, 0.9}

// Frame is one encoded still taken from the video timeline.
type Frame struct {
	Index    int
	Offset   float64
	Seconds  float64
	MIMEType string
	Data     []byte
}

// Label is a short human name such as "50%".
func (f Frame) Label() string {
	return fmt.Sprintf("%d%%", int(math.Round(f.Offset*100)))
}

// WriteFiles stores frames under dir as frame-10pct.jpg and so on, returning
// the written paths in frame order.
func WriteFiles(dir string, frames []Frame) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create frame dir: %w", err)
	}
	paths := make([]string, 0, len(frames))
	for _, f := range frames {
		name := fmt.Sprintf("frame-%02dpct.jpg", int(math.Round(f.Offset*100)))
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, f.Data, 0o644); err != nil {
			return nil, fmt.Errorf("write %s: %w", name, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}
