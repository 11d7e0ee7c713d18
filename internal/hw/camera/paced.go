package camera

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/cjeanneret/unicam/internal/debug"
	"github.com/cjeanneret/unicam/internal/hw/sdk"
)

// frameTimeNode is the native per-frame time (µs) of attribute-style cameras.
const frameTimeNode = "frame_time_us"

// pacedCamera adapts scientific cameras (Thorlabs TSI and similar) that
// have no framerate setting. With framerate on auto the camera free-runs;
// with a manual framerate a pacer triggers single exposures in software.
// Only very few properties can actually be set on these cameras.
type pacedCamera struct {
	drv    sdk.Driver
	dev    sdk.Device
	opts   Options
	warn   *warnLog
	stream streamer

	framerateAuto bool
	framerate     float64
	capturing     bool
	pacer         *pacer
}

func newPaced(drv sdk.Driver, opts Options, warn *warnLog) *pacedCamera {
	return &pacedCamera{drv: drv, opts: opts, warn: warn}
}

func (c *pacedCamera) connect(ctx context.Context) (PropertyTable, error) {
	dev, err := openDevice(ctx, c.drv, c.opts.Device)
	if err != nil {
		return nil, err
	}
	c.dev = dev
	c.stream = streamer{dev: dev, strobe: c.opts.Strobe, probe: frameTimeNode, warn: c.warn}
	if err := c.setFramerate(Auto); err != nil {
		return nil, err
	}
	debug.Info("Connected to %s %s (serial %s)", dev.Info().Vendor, dev.Info().Model, dev.Info().SerialNumber)
	return PropertyTable{
		ExposureTime:             NodeWithDefault("exposure_time_us", 1000),
		ExposureTimeAuto:         NotImplemented,
		AcquisitionFramerate:     Emulated(),
		AcquisitionFramerateAuto: Emulated(),
		Gain:                     NodeWithDefault("gain", 0),
		GainAuto:                 NotImplemented,
		PixelFormat:              Fixed("Mono16"),
		GammaEnable:              NotImplemented,
		Gamma:                    NotImplemented,
		Height:                   Node("sensor_height_pixels"),
		Width:                    Node("sensor_width_pixels"),
	}, nil
}

// busy rejects device access while the pacer owns the device.
func (c *pacedCamera) busy() error {
	if c.pacer != nil {
		return fmt.Errorf("%w: the device is owned by the paced capture, stop it first", ErrInvalidState)
	}
	return nil
}

func (c *pacedCamera) getDeep(p Property, acc Accessor) (interface{}, error) {
	switch acc.Kind {
	case KindEmulated:
		if p == AcquisitionFramerateAuto {
			return c.framerateAuto, nil
		}
		return c.framerate, nil
	case KindFixed:
		return acc.Value, nil
	}
	if err := c.busy(); err != nil {
		return nil, err
	}
	return readNode(c.dev, acc.Node)
}

func (c *pacedCamera) setDeep(p Property, acc Accessor, value interface{}) error {
	switch {
	case p == AcquisitionFramerate:
		return c.setFramerate(value)
	case p == AcquisitionFramerateAuto:
		on, ok := value.(bool)
		if !ok && !isAutoSentinel(value) {
			return fmt.Errorf("%w: %s takes a bool, got %v (%T)", ErrInvalidValue, p, value, value)
		}
		if on || isAutoSentinel(value) {
			return c.setFramerate(Auto)
		}
		return c.setFramerate(c.framerate)
	case p.IsAuto():
		return fmt.Errorf("%w: automated setting of %s is not available on this camera", ErrUnsupportedProperty, p)
	case acc.Kind == KindFixed:
		if !sameValue(acc.Value, value) {
			return fmt.Errorf("%w: %s is fixed to %v on this camera", ErrUnsupportedProperty, p, acc.Value)
		}
		return nil
	}

	if err := c.busy(); err != nil {
		return err
	}
	if isAutoSentinel(value) {
		if acc.Default == nil {
			return fmt.Errorf("%w: %s has no default or automated setting, set something manually", ErrUnsupportedProperty, p)
		}
		value = acc.Default
	}
	return writeNode(c.dev, acc.Node, value, c.opts)
}

// setFramerate switches between hardware timing (Auto) and software
// pacing. Pacing is a hack that only holds when the exposure is well
// below the period, so rates above MinPacedFPS are accepted with a warning.
func (c *pacedCamera) setFramerate(value interface{}) error {
	fps, ok := toFloat(value)
	if !ok {
		return fmt.Errorf("%w: %s takes a number, got %v (%T)", ErrInvalidValue, AcquisitionFramerate, value, value)
	}
	if c.capturing {
		return fmt.Errorf("%w: cannot change the framerate during capture", ErrInvalidState)
	}
	if math.IsNaN(fps) || math.IsInf(fps, 0) {
		return fmt.Errorf("%w: framerate must be finite, got %v", ErrInvalidValue, fps)
	}
	if fps == Auto {
		v, err := readNode(c.dev, frameTimeNode)
		if err != nil {
			return err
		}
		us, ok := toFloat(v)
		if !ok || us <= 0 {
			return fmt.Errorf("read %s: unexpected value %v", frameTimeNode, v)
		}
		c.framerateAuto = true
		c.framerate = float64(time.Second/time.Microsecond) / us
		debug.Verbose("Framerate on auto, camera runs at %.3f fps", c.framerate)
		return nil
	}
	if fps <= 0 {
		return fmt.Errorf("%w: framerate must be positive or %d, got %v", ErrInvalidValue, Auto, fps)
	}
	// The starvation ceiling is the longest duration derived from the rate.
	if float64(time.Second)/fps*math.Max(c.opts.StarvationFactor, 1) >= math.MaxInt64 {
		return fmt.Errorf("%w: framerate %v fps is too low to pace", ErrInvalidValue, fps)
	}
	c.framerateAuto = false
	c.framerate = fps
	if fps > c.opts.MinPacedFPS {
		c.warn.add("framerate %.3g fps is set in software and may not hold above %.3g fps, continuing anyway", fps, c.opts.MinPacedFPS)
	}
	return nil
}

func (c *pacedCamera) startCapture(_ context.Context) error {
	if c.framerateAuto {
		if err := c.stream.start(); err != nil {
			return err
		}
		c.capturing = true
		return nil
	}
	if err := c.stream.alive(); err != nil {
		return err
	}
	c.pacer = startPacer(c.stream, c.framerate, c.opts)
	c.capturing = true
	return nil
}

// stopCapture tolerates a device that is already disarmed or gone. A
// device that refuses to disarm keeps the session open.
func (c *pacedCamera) stopCapture(_ context.Context) error {
	var pacerErr error
	if c.pacer != nil {
		pacerErr = c.pacer.stop()
		c.pacer = nil
	}
	if err := c.stream.stop(); err != nil && !errors.Is(err, sdk.ErrDisconnected) {
		return errors.Join(pacerErr, err)
	}
	c.capturing = false
	return pacerErr
}

func (c *pacedCamera) acquiring() bool { return c.capturing }

func (c *pacedCamera) nextImage(ctx context.Context) (sdk.Frame, error) {
	if c.pacer != nil {
		return c.pacer.next(ctx)
	}
	return c.stream.poll(ctx)
}

func (c *pacedCamera) takeOneImage(ctx context.Context) (sdk.Frame, error) {
	return c.stream.takeOne(ctx)
}

func (c *pacedCamera) metadata() (Metadata, error) {
	info := c.dev.Info()
	md := Metadata{
		MetaModel:  info.Model,
		MetaName:   info.Name,
		MetaVendor: info.Vendor,
		MetaSerial: info.SerialNumber,
	}
	if info.SensorType != "" {
		md[MetaSensorType] = info.SensorType
	}
	return md, nil
}

func (c *pacedCamera) close() error {
	var errs []error
	if c.dev != nil {
		if err := c.dev.Dispose(); err != nil {
			errs = append(errs, fmt.Errorf("dispose device: %w", err))
		}
		// The SDK refuses to shut down right after a dispose.
		time.Sleep(10 * time.Millisecond)
	}
	if err := c.drv.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close sdk: %w", err))
	}
	return errors.Join(errs...)
}
