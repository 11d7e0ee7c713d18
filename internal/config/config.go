package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/cjeanneret/unicam/internal/hw/camera"
)

// MaxConfigFileBytes bounds the size of a config file.
const MaxConfigFileBytes = 1 << 20

// EnvPrefix prefixes every environment override.
const EnvPrefix = "UNICAM_"

// Setting is one initial property write.
type Setting struct {
	Property camera.Property
	Value    interface{}
}

// Settings keeps the YAML mapping order, since writes depend on each other
// (an exposure longer than the frame period is clamped, for instance).
type Settings []Setting

func (s *Settings) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: properties must be a mapping", node.Line)
	}
	out := make(Settings, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i], node.Content[i+1]
		p := camera.Property(key.Value)
		if !p.Valid() {
			return fmt.Errorf("line %d: unknown property %q, available properties are %v", key.Line, key.Value, camera.Properties())
		}
		var v interface{}
		if err := val.Decode(&v); err != nil {
			return fmt.Errorf("line %d: %s: %w", val.Line, key.Value, err)
		}
		out = append(out, Setting{Property: p, Value: v})
	}
	*s = out
	return nil
}

// CameraConfig selects and connects the camera.
type CameraConfig struct {
	Type       string   `yaml:"type"`       // e.g. "flir_blackfly", "thorlabs", "simulated"
	SDK        string   `yaml:"sdk"`        // vendor binding, only "mock" in this build
	Device     string   `yaml:"device"`     // serial number, empty = first camera found
	Properties Settings `yaml:"properties"` // applied in order after connect

	MockFrameTimeMs int `yaml:"mock_frame_time_ms"` // readout time of the mock SDK
	MockWidth       int `yaml:"mock_width"`         // synthetic frame size
	MockHeight      int `yaml:"mock_height"`
}

// TuningConfig holds the gateway and capture loop settings.
type TuningConfig struct {
	Tolerance        float64 `yaml:"tolerance"`          // relative tolerance of the write check
	StarvationFactor float64 `yaml:"starvation_factor"`  // paced capture gives up after N periods
	StarvationPollMs int     `yaml:"starvation_poll_ms"` // paced queue poll interval
	MinPacedFPS      float64 `yaml:"min_paced_fps"`      // warn above this software framerate
	WriteRetries     int     `yaml:"write_retries"`      // retries of a busy write (-1 = none)
	WriteBackoffMs   int     `yaml:"write_backoff_ms"`   // pause between retries
}

// StrobeConfig describes the optional trigger output line.
type StrobeConfig struct {
	Pin     int `yaml:"pin"`      // BCM pin, 0 = no strobe
	PulseUs int `yaml:"pulse_us"` // pulse width (µs)
}

// CaptureConfig sets up the acquisition run of the CLI.
type CaptureConfig struct {
	Frames int `yaml:"frames"` // frames recorded per run
}

// DefaultsConfig contains generic parameters.
type DefaultsConfig struct {
	DebugLevel int  `yaml:"debug_level"` // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	MockGPIO   bool `yaml:"mock_gpio"`   // use mock GPIO (true=dev/test, false=real Raspberry Pi)
}

// Config aggregates all application configuration.
type Config struct {
	Camera   CameraConfig   `yaml:"camera"`
	Tuning   TuningConfig   `yaml:"tuning"`
	Strobe   StrobeConfig   `yaml:"strobe"`
	Capture  CaptureConfig  `yaml:"capture"`
	Defaults DefaultsConfig `yaml:"defaults"`
}

// ValidateConfigPath accepts only .yaml files below a configs/ directory.
func ValidateConfigPath(path string) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if strings.Contains(filepath.ToSlash(path), "..") {
		return fmt.Errorf("config path %q must not contain '..'", path)
	}
	if filepath.Ext(path) != ".yaml" {
		return fmt.Errorf("config path %q must end with .yaml", path)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}
	if filepath.Base(filepath.Dir(abs)) != "configs" {
		return fmt.Errorf("config path %q must be inside a configs/ directory", path)
	}
	return nil
}

// LoadEnv reads .env files into the environment. Missing files are fine,
// variables already set win.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// Load reads a YAML file, applies UNICAM_* environment overrides and
// returns the validated configuration.
func Load(path string) (*Config, error) {
	if err := ValidateConfigPath(path); err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxConfigFileBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if len(data) > MaxConfigFileBytes {
		return nil, fmt.Errorf("config file is larger than %d bytes", MaxConfigFileBytes)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	c.Camera.Type = getEnv("CAMERA_TYPE", c.Camera.Type)
	c.Camera.SDK = getEnv("CAMERA_SDK", c.Camera.SDK)
	c.Camera.Device = getEnv("CAMERA_DEVICE", c.Camera.Device)

	var err error
	if c.Defaults.DebugLevel, err = getEnvAsInt("DEBUG_LEVEL", c.Defaults.DebugLevel); err != nil {
		return err
	}
	if c.Defaults.MockGPIO, err = getEnvAsBool("MOCK_GPIO", c.Defaults.MockGPIO); err != nil {
		return err
	}
	if c.Strobe.Pin, err = getEnvAsInt("STROBE_PIN", c.Strobe.Pin); err != nil {
		return err
	}
	if c.Capture.Frames, err = getEnvAsInt("CAPTURE_FRAMES", c.Capture.Frames); err != nil {
		return err
	}
	return nil
}

func (c *Config) validate() error {
	if c.Camera.Type == "" {
		return fmt.Errorf("camera.type is required")
	}
	if _, err := camera.ParseType(c.Camera.Type); err != nil {
		return fmt.Errorf("camera.type: %w", err)
	}
	if c.Camera.SDK == "" {
		c.Camera.SDK = "mock"
	}
	if c.Camera.MockFrameTimeMs < 0 {
		return fmt.Errorf("camera.mock_frame_time_ms must be >= 0, got %d", c.Camera.MockFrameTimeMs)
	}

	if c.Tuning.Tolerance < 0 || c.Tuning.Tolerance >= 1 {
		return fmt.Errorf("tuning.tolerance must be between 0 and 1, got %.3f", c.Tuning.Tolerance)
	}
	if c.Tuning.StarvationFactor < 0 {
		return fmt.Errorf("tuning.starvation_factor must be >= 0, got %.2f", c.Tuning.StarvationFactor)
	}
	if c.Tuning.StarvationFactor > 0 && c.Tuning.StarvationFactor < 1 {
		return fmt.Errorf("tuning.starvation_factor must be at least one period, got %.2f", c.Tuning.StarvationFactor)
	}
	if c.Tuning.MinPacedFPS < 0 {
		return fmt.Errorf("tuning.min_paced_fps must be >= 0, got %.2f", c.Tuning.MinPacedFPS)
	}

	if c.Strobe.Pin < 0 || c.Strobe.Pin > 27 {
		return fmt.Errorf("strobe.pin must be a BCM pin between 1 and 27 (0 = disabled), got %d", c.Strobe.Pin)
	}
	if c.Strobe.Pin > 0 && c.Strobe.PulseUs <= 0 {
		c.Strobe.PulseUs = 100 // short enough for any exposure
	}

	if c.Capture.Frames < 0 {
		return fmt.Errorf("capture.frames must be >= 0, got %d", c.Capture.Frames)
	}
	if c.Capture.Frames == 0 {
		c.Capture.Frames = 10
	}
	if c.Defaults.DebugLevel < 0 || c.Defaults.DebugLevel > 4 {
		return fmt.Errorf("defaults.debug_level must be between 0 and 4, got %d", c.Defaults.DebugLevel)
	}
	return nil
}

// CameraType returns the parsed camera type.
func (c *Config) CameraType() camera.Type {
	typ, _ := camera.ParseType(c.Camera.Type)
	return typ
}

// CameraOptions converts the tuning section. Strobe and SDK are wired by the caller.
func (c *Config) CameraOptions() camera.Options {
	return camera.Options{
		Device:           c.Camera.Device,
		Tolerance:        c.Tuning.Tolerance,
		StarvationFactor: c.Tuning.StarvationFactor,
		StarvationPoll:   time.Duration(c.Tuning.StarvationPollMs) * time.Millisecond,
		MinPacedFPS:      c.Tuning.MinPacedFPS,
		WriteRetries:     c.Tuning.WriteRetries,
		WriteBackoff:     time.Duration(c.Tuning.WriteBackoffMs) * time.Millisecond,
		Simulated: camera.SimulatedOptions{
			FrameTime: c.MockFrameTime(),
			Width:     c.Camera.MockWidth,
			Height:    c.Camera.MockHeight,
		},
	}
}

// MockFrameTime returns the readout time of mock and simulated cameras.
func (c *Config) MockFrameTime() time.Duration {
	return time.Duration(c.Camera.MockFrameTimeMs) * time.Millisecond
}

// StrobeEnabled reports whether a strobe line is configured.
func (c *Config) StrobeEnabled() bool {
	return c.Strobe.Pin > 0
}

// StrobePulse returns the strobe pulse width.
func (c *Config) StrobePulse() time.Duration {
	return time.Duration(c.Strobe.PulseUs) * time.Microsecond
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(EnvPrefix + key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
	}
	return n, nil
}

func getEnvAsBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(EnvPrefix + key)
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
	}
	return b, nil
}
