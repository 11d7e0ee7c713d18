package camera

import (
	"context"
	"errors"
	"fmt"

	"github.com/cjeanneret/unicam/internal/debug"
	"github.com/cjeanneret/unicam/internal/hw/sdk"
)

// streamingCamera adapts GenICam-style cameras (FLIR/Spinnaker and
// similar) that stream natively and expose auto controls as enumerations.
type streamingCamera struct {
	drv    sdk.Driver
	dev    sdk.Device
	opts   Options
	warn   *warnLog
	table  PropertyTable
	stream streamer

	capturing bool
}

func newStreaming(drv sdk.Driver, opts Options, warn *warnLog) *streamingCamera {
	return &streamingCamera{drv: drv, opts: opts, warn: warn}
}

func (s *streamingCamera) connect(ctx context.Context) (PropertyTable, error) {
	dev, err := openDevice(ctx, s.drv, s.opts.Device)
	if err != nil {
		return nil, err
	}
	s.dev = dev
	s.stream = streamer{dev: dev, strobe: s.opts.Strobe, probe: "DeviceModelName", warn: s.warn}
	s.table = PropertyTable{
		ExposureTime:             Node("ExposureTime"),
		ExposureTimeAuto:         Node("ExposureAuto"),
		AcquisitionFramerate:     Node("AcquisitionFrameRate"),
		AcquisitionFramerateAuto: Node("AcquisitionFrameRateEnable"),
		Gain:                     Node("Gain"),
		GainAuto:                 Node("GainAuto"),
		PixelFormat:              Node("PixelFormat"),
		GammaEnable:              Node("GammaEnable"),
		Gamma:                    Node("Gamma"),
		Height:                   Node("Height"),
		Width:                    Node("Width"),
	}
	debug.Info("Connected to %s %s (serial %s)", dev.Info().Vendor, dev.Info().Model, dev.Info().SerialNumber)
	return s.table, nil
}

func (s *streamingCamera) getDeep(p Property, acc Accessor) (interface{}, error) {
	v, err := readNode(s.dev, acc.Node)
	if err != nil {
		return nil, err
	}
	if p == AcquisitionFramerateAuto {
		// The node enables the manual framerate, so it reads inverted.
		enabled, ok := toBool(v)
		if !ok {
			return nil, fmt.Errorf("read %s: unexpected value %v", acc.Node, v)
		}
		return !enabled, nil
	}
	if b, ok := toBool(v); ok {
		return b, nil
	}
	return v, nil
}

// setDeep writes a property. Auto (-1) switches the companion *Auto
// property on; any other value first switches it off so the manual value
// sticks.
func (s *streamingCamera) setDeep(p Property, acc Accessor, value interface{}) error {
	if p.IsAuto() {
		return s.setAuto(p, acc, value)
	}
	auto, hasAuto := p.AutoCompanion()
	if isAutoSentinel(value) {
		if !hasAuto {
			return fmt.Errorf("%w: %s has no default or automated setting, set something manually", ErrUnsupportedProperty, p)
		}
		autoAcc, err := s.table.Lookup(auto)
		if err != nil {
			return err
		}
		return s.setAuto(auto, autoAcc, true)
	}
	if hasAuto {
		if autoAcc, err := s.table.Lookup(auto); err == nil {
			if err := s.setAuto(auto, autoAcc, false); err != nil && !errors.Is(err, ErrUnsupportedProperty) {
				return err
			}
		}
	}
	return writeNode(s.dev, acc.Node, value, s.opts)
}

func (s *streamingCamera) setAuto(p Property, acc Accessor, value interface{}) error {
	on, ok := value.(bool)
	if !ok {
		if !isAutoSentinel(value) {
			return fmt.Errorf("%w: %s takes a bool, got %v (%T)", ErrInvalidValue, p, value, value)
		}
		on = true
	}
	if p == AcquisitionFramerateAuto {
		return writeNode(s.dev, acc.Node, !on, s.opts)
	}
	mode := "Off"
	if on {
		mode = "Continuous"
	}
	return writeNode(s.dev, acc.Node, mode, s.opts)
}

func (s *streamingCamera) startCapture(_ context.Context) error {
	if err := s.stream.start(); err != nil {
		return err
	}
	s.capturing = true
	return nil
}

// stopCapture keeps the session open when the device refused to disarm.
// A lost device has nothing left to stop.
func (s *streamingCamera) stopCapture(_ context.Context) error {
	err := s.stream.stop()
	if err == nil || errors.Is(err, ErrConnection) {
		s.capturing = false
	}
	return err
}

func (s *streamingCamera) acquiring() bool { return s.capturing }

func (s *streamingCamera) nextImage(ctx context.Context) (sdk.Frame, error) {
	return s.stream.poll(ctx)
}

func (s *streamingCamera) takeOneImage(ctx context.Context) (sdk.Frame, error) {
	return s.stream.takeOne(ctx)
}

func (s *streamingCamera) metadata() (Metadata, error) {
	info := s.dev.Info()
	md := Metadata{
		MetaModel:   info.Model,
		MetaVendor:  info.Vendor,
		MetaVersion: info.Version,
		MetaSerial:  info.SerialNumber,
	}
	if model, err := s.dev.Get("DeviceModelName"); err == nil {
		md[MetaModel] = fmt.Sprint(model)
	}
	return md, nil
}

func (s *streamingCamera) close() error {
	var errs []error
	if s.dev != nil {
		if err := s.dev.Dispose(); err != nil {
			errs = append(errs, fmt.Errorf("dispose device: %w", err))
		}
	}
	if err := s.drv.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close sdk: %w", err))
	}
	return errors.Join(errs...)
}
