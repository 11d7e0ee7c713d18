package capture

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cjeanneret/unicam/internal/debug"
	"github.com/cjeanneret/unicam/internal/hw/camera"
	"github.com/cjeanneret/unicam/internal/hw/sdk"
)

// Sequence contains high-level acquisition logic on top of a camera
// (fixed-length recordings, single shots).
type Sequence struct {
	camera camera.Camera
}

func NewSequence(c camera.Camera) *Sequence {
	return &Sequence{camera: c}
}

// Params defines one recording.
type Params struct {
	Frames int // frames to record

	// OnFrame, when set, is called after each frame (e.g. to display progress).
	// It runs on the acquisition goroutine and should return quickly.
	OnFrame func(i int, shot Shot)
}

// Shot is one recorded frame and when the caller received it.
type Shot struct {
	Frame    sdk.Frame
	Received time.Time
}

// Recording is the outcome of Run.
type Recording struct {
	Shots   []Shot
	Started time.Time
	Stopped time.Time
}

// Timing summarizes the intervals between received frames.
type Timing struct {
	Frames      int
	Duration    time.Duration
	MinInterval time.Duration
	MaxInterval time.Duration
	MeanFPS     float64
}

// Timing computes the frame interval statistics of r.
func (r *Recording) Timing() Timing {
	t := Timing{Frames: len(r.Shots), Duration: r.Stopped.Sub(r.Started)}
	if len(r.Shots) < 2 {
		return t
	}
	for i := 1; i < len(r.Shots); i++ {
		d := r.Shots[i].Received.Sub(r.Shots[i-1].Received)
		if i == 1 || d < t.MinInterval {
			t.MinInterval = d
		}
		if d > t.MaxInterval {
			t.MaxInterval = d
		}
	}
	span := r.Shots[len(r.Shots)-1].Received.Sub(r.Shots[0].Received)
	if span > 0 {
		t.MeanFPS = float64(len(r.Shots)-1) / span.Seconds()
	}
	return t
}

// Run starts a capture, collects p.Frames frames in order and stops the
// capture again, also on failure. The frames collected so far are
// returned along with any error.
func (s *Sequence) Run(ctx context.Context, p Params) (rec *Recording, err error) {
	if p.Frames <= 0 {
		return nil, fmt.Errorf("frames must be > 0, got %d", p.Frames)
	}

	debug.Section("Recording")
	debug.Live("Recording %d frames", p.Frames)

	rec = &Recording{Shots: make([]Shot, 0, p.Frames)}
	if err := s.camera.StartCapture(ctx); err != nil {
		return rec, err
	}
	rec.Started = time.Now()
	defer func() {
		rec.Stopped = time.Now()
		if serr := s.camera.StopCapture(context.Background()); serr != nil {
			err = errors.Join(err, serr)
		}
	}()

	for i := 0; i < p.Frames; i++ {
		select {
		case <-ctx.Done():
			return rec, ctx.Err()
		default:
		}

		f, err := s.camera.GetImage(ctx)
		if err != nil {
			return rec, fmt.Errorf("frame %d/%d: %w", i+1, p.Frames, err)
		}
		shot := Shot{Frame: f, Received: time.Now()}
		rec.Shots = append(rec.Shots, shot)
		debug.Verbose("  Frame %d/%d: index %d", i+1, p.Frames, f.Index)
		if p.OnFrame != nil {
			p.OnFrame(i, shot)
		}
	}

	if debug.IsEnabled(debug.LevelLive) {
		debug.Live("Recording complete, %.2f fps", rec.Timing().MeanFPS)
	}
	return rec, nil
}

// Single takes one image outside of any capture session.
func (s *Sequence) Single(ctx context.Context) (Shot, error) {
	f, err := s.camera.TakeOneImage(ctx)
	if err != nil {
		return Shot{}, err
	}
	return Shot{Frame: f, Received: time.Now()}, nil
}
