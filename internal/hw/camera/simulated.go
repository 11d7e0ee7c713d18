package camera

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/cjeanneret/unicam/internal/hw/sdk"
)

// SimulatedOptions shapes the simulated camera for tests and dry runs.
type SimulatedOptions struct {
	Values      map[Property]interface{} // override the initial values
	ReadOnly    []Property               // writes fail with ErrUnsupportedProperty
	Unsupported []Property               // marked NotImplemented in the table
	FrameTime   time.Duration            // delay of GetImage
	Width       int                      // synthetic frame size (64x48)
	Height      int
}

// simulatedCamera has no hardware. It keeps the properties in memory and
// produces noise frames that look like an image.
type simulatedCamera struct {
	opts     SimulatedOptions
	values   map[Property]interface{}
	readOnly map[Property]bool
	running  bool
	index    uint64
}

func newSimulated(opts SimulatedOptions) *simulatedCamera {
	if opts.Width <= 0 {
		opts.Width = 64
	}
	if opts.Height <= 0 {
		opts.Height = 48
	}
	return &simulatedCamera{opts: opts}
}

func (s *simulatedCamera) connect(_ context.Context) (PropertyTable, error) {
	s.values = map[Property]interface{}{
		ExposureTime:             10000.0,
		ExposureTimeAuto:         false,
		AcquisitionFramerate:     30.0,
		AcquisitionFramerateAuto: true,
		Gain:                     0.0,
		GainAuto:                 false,
		PixelFormat:              RGBPixelFormat,
		GammaEnable:              false,
		Gamma:                    1.0,
		Height:                   s.opts.Height,
		Width:                    s.opts.Width,
	}
	for p, v := range s.opts.Values {
		if !p.Valid() {
			return nil, fmt.Errorf("simulated camera: %w: %q", ErrUnsupportedProperty, p)
		}
		s.values[p] = v
	}
	s.readOnly = make(map[Property]bool, len(s.opts.ReadOnly))
	for _, p := range s.opts.ReadOnly {
		s.readOnly[p] = true
	}

	table := make(PropertyTable, len(universal))
	for _, p := range universal {
		table[p] = Node(string(p))
	}
	for _, p := range s.opts.Unsupported {
		if p.Valid() {
			table[p] = NotImplemented
		}
	}
	return table, nil
}

func (s *simulatedCamera) getDeep(p Property, _ Accessor) (interface{}, error) {
	return s.values[p], nil
}

func (s *simulatedCamera) setDeep(p Property, _ Accessor, value interface{}) error {
	if s.readOnly[p] {
		return fmt.Errorf("%w: %s is read-only on this camera", ErrUnsupportedProperty, p)
	}
	if isAutoSentinel(value) {
		if p.IsAuto() {
			s.values[p] = true
			return nil
		}
		if auto, ok := p.AutoCompanion(); ok && !s.readOnly[auto] {
			s.values[auto] = true
			return nil
		}
	}
	s.values[p] = value
	return nil
}

func (s *simulatedCamera) startCapture(_ context.Context) error {
	if s.running {
		return fmt.Errorf("simulated camera: %w", ErrAlreadyCapturing)
	}
	s.running = true
	return nil
}

func (s *simulatedCamera) stopCapture(_ context.Context) error {
	if !s.running {
		return fmt.Errorf("simulated camera: %w", ErrNotCapturing)
	}
	s.running = false
	return nil
}

func (s *simulatedCamera) acquiring() bool { return s.running }

func (s *simulatedCamera) nextImage(ctx context.Context) (sdk.Frame, error) {
	if !s.running {
		return sdk.Frame{}, fmt.Errorf("simulated camera: %w", ErrNotCapturing)
	}
	if s.opts.FrameTime > 0 {
		timer := time.NewTimer(s.opts.FrameTime)
		select {
		case <-ctx.Done():
			timer.Stop()
			return sdk.Frame{}, ctx.Err()
		case <-timer.C:
		}
	}
	return s.frame(), nil
}

func (s *simulatedCamera) takeOneImage(_ context.Context) (sdk.Frame, error) {
	return s.frame(), nil
}

// frame returns 8-bit BGR noise.
func (s *simulatedCamera) frame() sdk.Frame {
	s.index++
	pix := make([]byte, s.opts.Width*s.opts.Height*3)
	for i := range pix {
		pix[i] = byte(rand.IntN(256))
	}
	return sdk.Frame{
		Index:     s.index,
		Width:     s.opts.Width,
		Height:    s.opts.Height,
		Format:    RGBPixelFormat,
		Pix:       pix,
		Timestamp: time.Now(),
	}
}

func (s *simulatedCamera) metadata() (Metadata, error) {
	return Metadata{
		MetaModel:   "simulated",
		MetaVendor:  "unicam",
		MetaVersion: "0.0",
	}, nil
}

func (s *simulatedCamera) close() error {
	s.running = false
	return nil
}
