package camera

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "golang.org/x/image/bmp"

	"github.com/MrCodeEU/lpad/pkg/clock"
)

var replayExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".bmp":  true,
}

type advancer interface {
	Advance(time.Duration)
}

// Replay plays back the images of a directory in name order. With a
// clock.Manual, every frame advances the clock by the frame interval, so a
// recording can be replayed faster than real time with its original timing.
type Replay struct {
	files    []string
	next     int
	loop     bool
	clock    clock.Clock
	interval time.Duration
	seq      uint64
}

// OpenReplay lists the images in dir. fps sets the simulated frame interval.
func OpenReplay(dir string, fps int, clk clock.Clock, loop bool) (*Replay, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read replay directory: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if replayExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no images in %s", dir)
	}
	sort.Strings(files)

	if fps <= 0 {
		fps = 30
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &Replay{
		files:    files,
		loop:     loop,
		clock:    clk,
		interval: time.Second / time.Duration(fps),
	}, nil
}

// Len returns the number of frames in one pass.
func (r *Replay) Len() int {
	return len(r.files)
}

// Read decodes the next image.
func (r *Replay) Read() (Frame, error) {
	if r.files == nil {
		return Frame{}, ErrCameraNotOpen
	}
	if r.next >= len(r.files) {
		if !r.loop {
			return Frame{}, ErrEndOfStream
		}
		r.next = 0
	}
	path := r.files[r.next]
	r.next++

	img, err := decodeFile(path)
	if err != nil {
		return Frame{}, fmt.Errorf("%w: %s: %v", ErrNoFrame, filepath.Base(path), err)
	}

	if a, ok := r.clock.(advancer); ok {
		a.Advance(r.interval)
	}
	r.seq++
	return Frame{Image: img, Seq: r.seq, Timestamp: r.clock.Now()}, nil
}

// Close ends the replay.
func (r *Replay) Close() error {
	r.files = nil
	return nil
}

func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	return img, err
}
