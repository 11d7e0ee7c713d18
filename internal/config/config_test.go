package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cjeanneret/unicam/internal/hw/camera"
)

// ---------- ValidateConfigPath ----------

func TestValidateConfigPath_Valid(t *testing.T) {
	// Create a real configs/ directory so filepath.Abs resolves correctly.
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "configs")
	if err := os.Mkdir(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(cfgDir, "default.yaml")
	if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := ValidateConfigPath(path); err != nil {
		t.Errorf("expected valid path, got error: %v", err)
	}
}

func TestValidateConfigPath_PathTraversal(t *testing.T) {
	cases := []string{
		"../../etc/passwd",
		"configs/../../../etc/shadow",
	}
	for _, path := range cases {
		if err := ValidateConfigPath(path); err == nil {
			t.Errorf("expected error for traversal path %q, got nil", path)
		}
	}
}

func TestValidateConfigPath_WrongExtension(t *testing.T) {
	cases := []string{
		"configs/default.json",
		"configs/default.yml",
		"configs/default.txt",
		"configs/default",
	}
	for _, path := range cases {
		if err := ValidateConfigPath(path); err == nil {
			t.Errorf("expected error for extension in %q, got nil", path)
		}
	}
}

func TestValidateConfigPath_NotInConfigsDir(t *testing.T) {
	cases := []string{
		"other/default.yaml",
		"default.yaml",
		"/tmp/default.yaml",
	}
	for _, path := range cases {
		if err := ValidateConfigPath(path); err == nil {
			t.Errorf("expected error for path outside configs/ %q, got nil", path)
		}
	}
}

func TestValidateConfigPath_EmptyPath(t *testing.T) {
	if err := ValidateConfigPath(""); err == nil {
		t.Error("expected error for empty path, got nil")
	}
}

func TestValidateConfigPath_VeryLongPath(t *testing.T) {
	long := "configs/" + strings.Repeat("a", 1000) + ".yaml"
	// Should not panic; error or success is OS-dependent, but must not crash.
	_ = ValidateConfigPath(long)
}

func TestValidateConfigPath_SpecialChars(t *testing.T) {
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "configs")
	if err := os.Mkdir(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name    string
		wantErr bool
	}{
		{"con fig.yaml", false},
		{"café.yaml", false},
	}
	for _, tc := range cases {
		path := filepath.Join(cfgDir, tc.name)
		err := ValidateConfigPath(path)
		if tc.wantErr && err == nil {
			t.Errorf("expected error for %q, got nil", tc.name)
		}
		if !tc.wantErr && err != nil {
			t.Errorf("unexpected error for %q: %v", tc.name, err)
		}
	}
}

func TestValidateConfigPath_DoubleTraversal(t *testing.T) {
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "configs")
	if err := os.Mkdir(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	// Try to escape via ../../configs/ok.yaml; filepath.Clean resolves this
	// and the parent must still be "configs".
	path := filepath.Join(cfgDir, "../../configs/ok.yaml")
	err := ValidateConfigPath(path)
	// After Clean the parent may or may not be "configs" depending on resolution.
	// The important thing is it either succeeds with a valid parent or fails.
	_ = err
}

// ---------- Load ----------

// writeConfig creates a temporary configs/ dir with the given YAML content and returns the path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "configs")
	if err := os.Mkdir(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(cfgDir, "test.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const validYAML = `
camera:
  type: "flir_blackfly"
  sdk: mock
  device: "20123456"
  properties:
    pixelFormat: BGR8
    exposureTime: 20000
    gainAuto: true
  mock_frame_time_ms: 5
tuning:
  tolerance: 0.02
  starvation_factor: 4
  starvation_poll_ms: 5
  min_paced_fps: 2
  write_retries: 3
  write_backoff_ms: 20
strobe:
  pin: 17
  pulse_us: 250
capture:
  frames: 25
defaults:
  debug_level: 0
  mock_gpio: true
`

func TestLoad_ValidFullConfig(t *testing.T) {
	path := writeConfig(t, validYAML)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Camera.Type != "flir_blackfly" {
		t.Errorf("camera.type = %q, want %q", cfg.Camera.Type, "flir_blackfly")
	}
	if cfg.CameraType() != camera.TypeStreaming {
		t.Errorf("CameraType() = %s, want %s", cfg.CameraType(), camera.TypeStreaming)
	}
	if cfg.Capture.Frames != 25 {
		t.Errorf("capture.frames = %d, want 25", cfg.Capture.Frames)
	}
	if !cfg.StrobeEnabled() || cfg.StrobePulse() != 250*time.Microsecond {
		t.Errorf("strobe = %+v, want pin 17 and 250us", cfg.Strobe)
	}

	opts := cfg.CameraOptions()
	if opts.Device != "20123456" {
		t.Errorf("device = %q, want 20123456", opts.Device)
	}
	if opts.Tolerance != 0.02 || opts.StarvationFactor != 4 || opts.MinPacedFPS != 2 {
		t.Errorf("unexpected tuning %+v", opts)
	}
	if opts.WriteRetries != 3 || opts.WriteBackoff != 20*time.Millisecond || opts.StarvationPoll != 5*time.Millisecond {
		t.Errorf("unexpected tuning %+v", opts)
	}
	if opts.Simulated.FrameTime != 5*time.Millisecond {
		t.Errorf("simulated frame time = %v, want 5ms", opts.Simulated.FrameTime)
	}
}

func TestLoad_PropertiesKeepOrder(t *testing.T) {
	path := writeConfig(t, validYAML)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	want := []Setting{
		{camera.PixelFormat, "BGR8"},
		{camera.ExposureTime, 20000},
		{camera.GainAuto, true},
	}
	got := cfg.Camera.Properties
	if len(got) != len(want) {
		t.Fatalf("got %d properties, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("properties[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestLoad_UnknownProperty(t *testing.T) {
	yaml := `
camera:
  type: simulated
  properties:
    brightness: 3
`
	path := writeConfig(t, yaml)
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "brightness") {
		t.Errorf("expected an error naming brightness, got %v", err)
	}
}

func TestLoad_MissingCameraType(t *testing.T) {
	yaml := `
capture:
  frames: 3
`
	path := writeConfig(t, yaml)
	_, err := Load(path)
	if err == nil {
		t.Error("expected error for missing camera.type, got nil")
	}
}

func TestLoad_UnknownCameraType(t *testing.T) {
	path := writeConfig(t, "camera:\n  type: nikon_d90\n")
	if _, err := Load(path); err == nil {
		t.Error("expected error for unknown camera.type, got nil")
	}
}

func TestLoad_OutOfRange(t *testing.T) {
	cases := map[string]string{
		"tolerance":         "tuning:\n  tolerance: 1.5\n",
		"starvation_factor": "tuning:\n  starvation_factor: 0.5\n",
		"min_paced_fps":     "tuning:\n  min_paced_fps: -1\n",
		"strobe.pin":        "strobe:\n  pin: 40\n",
		"capture.frames":    "capture:\n  frames: -2\n",
		"debug_level":       "defaults:\n  debug_level: 9\n",
	}
	for name, section := range cases {
		path := writeConfig(t, "camera:\n  type: simulated\n"+section)
		if _, err := Load(path); err == nil {
			t.Errorf("%s: expected error, got nil", name)
		}
	}
}

func TestLoad_DefaultValues(t *testing.T) {
	path := writeConfig(t, "camera:\n  type: thorlabs\nstrobe:\n  pin: 5\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Camera.SDK != "mock" {
		t.Errorf("camera.sdk default = %q, want mock", cfg.Camera.SDK)
	}
	if cfg.Capture.Frames != 10 {
		t.Errorf("capture.frames default = %d, want 10", cfg.Capture.Frames)
	}
	if cfg.Strobe.PulseUs != 100 {
		t.Errorf("strobe.pulse_us default = %d, want 100", cfg.Strobe.PulseUs)
	}

	// Zero tuning leaves the camera defaults in charge.
	opts := cfg.CameraOptions()
	if opts.Tolerance != 0 || opts.StarvationFactor != 0 {
		t.Errorf("unexpected tuning %+v", opts)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("UNICAM_CAMERA_TYPE", "dummy")
	t.Setenv("UNICAM_CAMERA_DEVICE", "17345")
	t.Setenv("UNICAM_DEBUG_LEVEL", "2")
	t.Setenv("UNICAM_MOCK_GPIO", "false")
	t.Setenv("UNICAM_CAPTURE_FRAMES", "3")

	path := writeConfig(t, validYAML)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.CameraType() != camera.TypeSimulated {
		t.Errorf("camera type = %s, want simulated", cfg.CameraType())
	}
	if cfg.Camera.Device != "17345" || cfg.Defaults.DebugLevel != 2 || cfg.Defaults.MockGPIO || cfg.Capture.Frames != 3 {
		t.Errorf("overrides not applied: %+v %+v %+v", cfg.Camera, cfg.Defaults, cfg.Capture)
	}
}

func TestLoad_BadEnvOverride(t *testing.T) {
	t.Setenv("UNICAM_DEBUG_LEVEL", "loud")

	path := writeConfig(t, validYAML)
	if _, err := Load(path); err == nil {
		t.Error("expected error for a non-numeric UNICAM_DEBUG_LEVEL, got nil")
	}
}

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	if err := os.WriteFile(envFile, []byte("UNICAM_CAMERA_TYPE=paced\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	// Registered so the variable is restored after the test.
	t.Setenv("UNICAM_CAMERA_TYPE", "")
	os.Unsetenv("UNICAM_CAMERA_TYPE")

	if err := LoadEnv(envFile, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("LoadEnv: %v", err)
	}
	if got := os.Getenv("UNICAM_CAMERA_TYPE"); got != "paced" {
		t.Errorf("UNICAM_CAMERA_TYPE = %q, want paced", got)
	}
}

func TestLoad_FileTooLarge(t *testing.T) {
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "configs")
	if err := os.Mkdir(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(cfgDir, "big.yaml")
	data := make([]byte, MaxConfigFileBytes+1)
	for i := range data {
		data[i] = '#'
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := Load(path)
	if err == nil {
		t.Error("expected error for oversized config file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "{{{{invalid yaml!!!!")
	_, err := Load(path)
	if err == nil {
		t.Error("expected error for invalid YAML, got nil")
	}
}

func TestLoad_EmptyFile(t *testing.T) {
	path := writeConfig(t, "")
	_, err := Load(path)
	if err == nil {
		t.Error("expected error for empty config (camera.type missing), got nil")
	}
}

func TestLoad_UnknownFields(t *testing.T) {
	yaml := `
camera:
  type: "simulated"
unknown_section:
  foo: bar
`
	path := writeConfig(t, yaml)
	_, err := Load(path)
	if err != nil {
		t.Errorf("unknown fields should be ignored, got error: %v", err)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "configs")
	if err := os.Mkdir(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(cfgDir, "nonexistent.yaml")
	_, err := Load(path)
	if err == nil {
		t.Error("expected error for nonexistent file, got nil")
	}
}

func TestLoad_RejectsPathOutsideConfigs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cam.yaml")
	if err := os.WriteFile(path, []byte("camera:\n  type: simulated\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for a file outside configs/, got nil")
	}
}
