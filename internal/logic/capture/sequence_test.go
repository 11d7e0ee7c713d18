package capture

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cjeanneret/unicam/internal/hw/camera"
	"github.com/cjeanneret/unicam/internal/hw/sdk"
)

// mockCamera records capture calls and serves numbered frames.
type mockCamera struct {
	mu       sync.Mutex
	starts   int
	stops    int
	frames   uint64
	failAt   uint64 // GetImage fails on this frame (0 = never)
	startErr error
	stopErr  error
}

func (m *mockCamera) Type() camera.Type { return camera.TypeSimulated }
func (m *mockCamera) Close() error { return nil }

func (m *mockCamera) StartCapture(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.starts++
	return m.startErr
}

func (m *mockCamera) StopCapture(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stops++
	return m.stopErr
}

func (m *mockCamera) GetImage(ctx context.Context) (sdk.Frame, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames++
	if m.frames == m.failAt {
		return sdk.Frame{}, camera.ErrCaptureStarvation
	}
	return sdk.Frame{Index: m.frames}, nil
}

func (m *mockCamera) TakeOneImage(ctx context.Context) (sdk.Frame, error) {
	return sdk.Frame{Index: 42}, nil
}

func (m *mockCamera) SetProperty(p camera.Property, v interface{}) (interface{}, error) {
	return v, nil
}

func (m *mockCamera) GetProperty(p camera.Property) (interface{}, error) { return nil, nil }

func (m *mockCamera) Metadata() (camera.Metadata, error) { return camera.Metadata{}, nil }

func (m *mockCamera) counts() (int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.starts, m.stops
}

func TestRun_FrameCount(t *testing.T) {
	cam := &mockCamera{}
	seq := NewSequence(cam)

	var seen []int
	rec, err := seq.Run(context.Background(), Params{
		Frames:  5,
		OnFrame: func(i int, _ Shot) { seen = append(seen, i) },
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(rec.Shots) != 5 {
		t.Errorf("shots = %d, want 5", len(rec.Shots))
	}
	for i, s := range rec.Shots {
		if s.Frame.Index != uint64(i+1) {
			t.Errorf("shot %d has frame %d, want %d", i, s.Frame.Index, i+1)
		}
	}
	if len(seen) != 5 || seen[4] != 4 {
		t.Errorf("OnFrame calls = %v", seen)
	}
	if starts, stops := cam.counts(); starts != 1 || stops != 1 {
		t.Errorf("starts/stops = %d/%d, want 1/1", starts, stops)
	}
}

func TestRun_StopsOnFailure(t *testing.T) {
	cam := &mockCamera{failAt: 3}
	seq := NewSequence(cam)

	rec, err := seq.Run(context.Background(), Params{Frames: 5})
	if !errors.Is(err, camera.ErrCaptureStarvation) {
		t.Fatalf("expected ErrCaptureStarvation, got %v", err)
	}
	if len(rec.Shots) != 2 {
		t.Errorf("shots = %d, want the 2 frames before the failure", len(rec.Shots))
	}
	if _, stops := cam.counts(); stops != 1 {
		t.Errorf("capture should be stopped after a failure, stops = %d", stops)
	}
}

func TestRun_StopErrorReported(t *testing.T) {
	stopErr := errors.New("disarm failed")
	cam := &mockCamera{stopErr: stopErr}
	seq := NewSequence(cam)

	_, err := seq.Run(context.Background(), Params{Frames: 2})
	if !errors.Is(err, stopErr) {
		t.Errorf("expected the stop error, got %v", err)
	}
}

func TestRun_StartFailure(t *testing.T) {
	cam := &mockCamera{startErr: camera.ErrConnection}
	seq := NewSequence(cam)

	_, err := seq.Run(context.Background(), Params{Frames: 2})
	if !errors.Is(err, camera.ErrConnection) {
		t.Fatalf("expected ErrConnection, got %v", err)
	}
	if _, stops := cam.counts(); stops != 0 {
		t.Errorf("a capture that never started should not be stopped, stops = %d", stops)
	}
}

func TestRun_InvalidFrames(t *testing.T) {
	seq := NewSequence(&mockCamera{})

	if _, err := seq.Run(context.Background(), Params{Frames: 0}); err == nil {
		t.Error("expected error for zero frames, got nil")
	}
}

func TestRun_ContextCancellation(t *testing.T) {
	cam := &mockCamera{}
	seq := NewSequence(cam)

	ctx, cancel := context.WithCancel(context.Background())
	// Cancel immediately
	cancel()

	rec, err := seq.Run(ctx, Params{Frames: 1000})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context cancellation error, got %v", err)
	}
	if len(rec.Shots) != 0 {
		t.Errorf("expected no shots, got %d", len(rec.Shots))
	}
	if _, stops := cam.counts(); stops != 1 {
		t.Errorf("capture should be stopped after cancellation, stops = %d", stops)
	}
}

func TestRun_SimulatedCamera(t *testing.T) {
	opts := camera.Options{Simulated: camera.SimulatedOptions{FrameTime: 2 * time.Millisecond}}
	cam, err := camera.New(context.Background(), camera.TypeSimulated, nil, opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer cam.Close()

	rec, err := NewSequence(cam).Run(context.Background(), Params{Frames: 4})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	timing := rec.Timing()
	if timing.Frames != 4 {
		t.Errorf("frames = %d, want 4", timing.Frames)
	}
	if timing.MinInterval < time.Millisecond || timing.MaxInterval < timing.MinInterval {
		t.Errorf("unexpected intervals %+v", timing)
	}
	if timing.MeanFPS <= 0 || timing.MeanFPS > 1000 {
		t.Errorf("unexpected mean framerate %.1f", timing.MeanFPS)
	}
	if cam.Session() != nil {
		t.Error("capture should be stopped after Run")
	}
}

func TestRecording_TimingFewFrames(t *testing.T) {
	now := time.Now()
	rec := &Recording{
		Shots:   []Shot{{Received: now}},
		Started: now,
		Stopped: now.Add(time.Second),
	}
	timing := rec.Timing()
	if timing.Frames != 1 || timing.Duration != time.Second || timing.MeanFPS != 0 {
		t.Errorf("unexpected timing %+v", timing)
	}
}

func TestSingle(t *testing.T) {
	seq := NewSequence(&mockCamera{})

	shot, err := seq.Single(context.Background())
	if err != nil {
		t.Fatalf("Single: %v", err)
	}
	if shot.Frame.Index != 42 {
		t.Errorf("frame = %d, want 42", shot.Frame.Index)
	}
}
