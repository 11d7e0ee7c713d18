package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/cjeanneret/unicam/internal/config"
	"github.com/cjeanneret/unicam/internal/debug"
	"github.com/cjeanneret/unicam/internal/hw/camera"
	"github.com/cjeanneret/unicam/internal/hw/gpio"
	"github.com/cjeanneret/unicam/internal/hw/sdk"
	"github.com/cjeanneret/unicam/internal/logic/capture"
)

func main() {
	// CLI flags
	cfgPath := flag.String("config", filepath.Join("configs", "default.yaml"), "path to config file")
	envPath := flag.String("env", ".env", "dotenv file with UNICAM_* overrides (missing file is ignored)")
	frames := flag.Int("frames", 0, "override the number of frames to record")
	one := flag.Bool("one", false, "take a single image instead of a recording")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := config.LoadEnv(*envPath); err != nil {
		log.Fatalf("load env failed: %v", err)
	}

	// Load configuration
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}

	// Validate CLI overrides (zero means "use config default")
	if err := validateCLIOverrides(*frames); err != nil {
		log.Fatalf("invalid CLI override: %v", err)
	}
	if *frames > 0 {
		cfg.Capture.Frames = *frames
	}

	// Initialize debug system
	// Debug goes to stderr, stdout carries the report
	debug.Init(cfg.Defaults.DebugLevel)
	debug.SetOutput(os.Stderr)
	debug.Section("Initialization")
	debug.Value("Config path", *cfgPath)
	debug.Value("Debug level", debug.Level())

	opts := cfg.CameraOptions()

	// Initialize strobe line
	if cfg.StrobeEnabled() {
		debug.Value("Mock GPIO", cfg.Defaults.MockGPIO)
		debug.Step(1, "Initializing strobe line")
		gpioDriver, err := gpio.NewDriver(cfg.Defaults.MockGPIO)
		if err != nil {
			log.Fatalf("init GPIO failed: %v", err)
		}
		defer func() {
			if err := gpioDriver.Close(); err != nil {
				log.Printf("closing GPIO driver failed: %v", err)
			}
		}()
		strobe, err := gpio.NewStrobe(gpioDriver, cfg.Strobe.Pin, cfg.StrobePulse())
		if err != nil {
			log.Fatalf("init strobe failed: %v", err)
		}
		opts.Strobe = strobe
		debug.PrintStruct("Strobe config", cfg.Strobe)
	}

	// Initialize camera SDK
	var drv sdk.Driver
	if needsSDK(cfg.CameraType()) {
		debug.Step(2, "Initializing camera SDK")
		drv, err = newSDKDriver(cfg)
		if err != nil {
			log.Fatalf("init camera SDK failed: %v", err)
		}
	}

	if err := run(ctx, cfg, drv, opts, *one, os.Stdout); err != nil {
		log.Fatalf("acquisition failed: %v", err)
	}
}

// run connects the camera, applies the configured properties, prints the
// metadata and records frames (or a single image). The camera is always
// closed on return.
func run(ctx context.Context, cfg *config.Config, drv sdk.Driver, opts camera.Options, one bool, out io.Writer) error {
	debug.Step(3, "Connecting camera")
	return camera.With(ctx, cfg.CameraType(), drv, opts, func(cam *camera.Universal) error {
		if err := applySettings(cam, cfg.Camera.Properties); err != nil {
			return err
		}

		md, err := cam.Metadata()
		if err != nil {
			return fmt.Errorf("read metadata: %w", err)
		}
		printMetadata(out, md)

		seq := capture.NewSequence(cam)
		if one {
			debug.Step(4, "Taking one image")
			shot, err := seq.Single(ctx)
			if err != nil {
				return err
			}
			f := shot.Frame
			fmt.Fprintf(out, "image: frame %d, %dx%d %s, %d bytes\n", f.Index, f.Width, f.Height, f.Format, len(f.Pix))
			return nil
		}

		debug.Step(4, "Recording")
		rec, err := seq.Run(ctx, capture.Params{
			Frames: cfg.Capture.Frames,
			OnFrame: func(i int, shot capture.Shot) {
				debug.Live("Frame %d/%d received (index %d)", i+1, cfg.Capture.Frames, shot.Frame.Index)
			},
		})
		if err != nil {
			return err
		}
		printTiming(out, rec.Timing())

		for _, w := range cam.Warnings() {
			fmt.Fprintf(out, "warning: %s\n", w)
		}
		return nil
	})
}

// applySettings writes the configured properties in order and reports
// what the camera ended up with.
func applySettings(cam camera.Camera, settings config.Settings) error {
	for _, s := range settings {
		got, err := cam.SetProperty(s.Property, s.Value)
		if err != nil {
			return fmt.Errorf("apply %s=%v: %w", s.Property, s.Value, err)
		}
		debug.Value(string(s.Property), got)
	}
	return nil
}

func printMetadata(out io.Writer, md camera.Metadata) {
	keys := make([]string, 0, len(md))
	for k := range md {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(out, "%s: %s\n", k, md[k])
	}
}

func printTiming(out io.Writer, t capture.Timing) {
	fmt.Fprintf(out, "recorded %d frames in %v\n", t.Frames, t.Duration)
	if t.Frames > 1 {
		fmt.Fprintf(out, "interval min %v max %v, mean %.2f fps\n", t.MinInterval, t.MaxInterval, t.MeanFPS)
	}
	debug.Summary(fmt.Sprintf("Recorded %d frames in %v (%.2f fps)", t.Frames, t.Duration.Round(time.Millisecond), t.MeanFPS))
}

// needsSDK reports whether typ is backed by a vendor SDK.
func needsSDK(typ camera.Type) bool {
	return typ != camera.TypeSimulated
}

// newSDKDriver returns the vendor binding for the configured camera. Only
// the in-tree mock SDK is available in this build; it serves a device
// matching the camera type.
func newSDKDriver(cfg *config.Config) (sdk.Driver, error) {
	typ := cfg.CameraType()
	if !needsSDK(typ) {
		return nil, fmt.Errorf("%s camera does not use a vendor SDK", typ)
	}
	if cfg.Camera.SDK != "mock" {
		return nil, fmt.Errorf("camera SDK %q is not available in this build (use sdk: mock or a simulated camera)", cfg.Camera.SDK)
	}

	var dev *sdk.MockDevice
	switch typ {
	case camera.TypeStreaming:
		dev = sdk.NewGenICamMock()
	case camera.TypePaced:
		dev = sdk.NewTSIMock()
	}
	if d := cfg.MockFrameTime(); d > 0 {
		dev.SetFrameTime(d)
	}
	debug.Info("Using MOCK camera SDK (%s device %s)", typ, dev.Info().SerialNumber)
	return sdk.NewMockDriver(dev), nil
}

// validateCLIOverrides checks that non-zero CLI overrides are within valid ranges.
// Zero values are ignored (they mean "use config default").
func validateCLIOverrides(frames int) error {
	if frames < 0 || frames > 1_000_000 {
		return fmt.Errorf("frames must be between 1 and 1000000, got %d", frames)
	}
	return nil
}
