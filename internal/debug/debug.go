package debug

import (
	"io"
	"log"
	"os"
	"sync/atomic"
)

// Debug levels
const (
	LevelOff     = 0 // No output
	LevelInfo    = 1 // Important info (connections, metadata, warnings)
	LevelLive    = 2 // Live info (capture sessions, property writes)
	LevelVerbose = 3 // Verbose (arm/trigger/disarm, pacing periods)
	LevelTrace   = 4 // Trace (every frame and SDK node access)
)

var (
	level  atomic.Int32
	logger atomic.Pointer[log.Logger]
)

// Init initializes the debug system with a level (0-4).
// 0 = no output
// 1 = important info (connections, metadata, warnings)
// 2 = live info (capture sessions, property writes)
// 3 = verbose (arm/trigger/disarm, pacing periods)
// 4 = trace (every frame, SDK node access)
func Init(debugLevel int) {
	level.Store(int32(debugLevel))
	if debugLevel > LevelOff {
		logger.Store(newLogger(os.Stdout))
	} else {
		logger.Store(nil)
	}
}

// SetOutput redirects debug output to w. It has no effect while the level is off.
func SetOutput(w io.Writer) {
	if level.Load() > LevelOff {
		logger.Store(newLogger(w))
	}
}

func newLogger(w io.Writer) *log.Logger {
	return log.New(w, "[unicam] ", log.LstdFlags|log.Lmicroseconds)
}

// Level returns the current debug level.
func Level() int {
	return int(level.Load())
}

// IsEnabled returns true if debug level is >= the requested level.
func IsEnabled(minLevel int) bool {
	return Level() >= minLevel
}

func printf(minLevel int, tag, format string, args ...interface{}) {
	if Level() < minLevel {
		return
	}
	if l := logger.Load(); l != nil {
		l.Printf(tag+format, args...)
	}
}

// --- Level 1 functions (Info): important info ---

// Info prints a level 1 message (important info).
func Info(format string, args ...interface{}) {
	printf(LevelInfo, "[INFO] ", format, args...)
}

// Warn prints a warning. Warnings share level 1 with Info.
func Warn(format string, args ...interface{}) {
	printf(LevelInfo, "[WARN] ", format, args...)
}

// Summary prints an important summary (level 1).
func Summary(title string) {
	if Level() < LevelInfo {
		return
	}
	if l := logger.Load(); l != nil {
		l.Printf("═══════════════════════════════════════")
		l.Printf("  %s", title)
		l.Printf("═══════════════════════════════════════")
	}
}

// --- Level 2 functions (Live): real-time info ---

// Live prints a level 2 message (live info).
func Live(format string, args ...interface{}) {
	printf(LevelLive, "[LIVE] ", format, args...)
}

// Property prints a property write and its observed value (level 2).
func Property(name string, intended, observed interface{}) {
	printf(LevelLive, "[LIVE] ", "Property %s: wrote %v, read back %v", name, intended, observed)
}

// --- Level 3 functions (Verbose): everything ---

// Verbose prints a level 3 message (verbose).
func Verbose(format string, args ...interface{}) {
	printf(LevelVerbose, "[VERBOSE] ", format, args...)
}

// Section prints a section separator (level 3).
func Section(name string) {
	if Level() < LevelVerbose {
		return
	}
	if l := logger.Load(); l != nil {
		l.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		l.Printf("  %s", name)
		l.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	}
}

// Step prints a numbered startup step (level 3).
func Step(num int, description string) {
	printf(LevelVerbose, "[VERBOSE] ", "Step %d: %s", num, description)
}

// PrintStruct prints a struct with field names (level 3).
func PrintStruct(name string, v interface{}) {
	printf(LevelVerbose, "[VERBOSE] ", "%s: %+v", name, v)
}

// Value prints a named value in formatted form (level 1).
func Value(name string, value interface{}) {
	printf(LevelInfo, "[INFO]   ", "%s = %v", name, value)
}

// --- Level 4 functions (Trace): very low level ---

// Trace prints a level 4 message (trace).
func Trace(format string, args ...interface{}) {
	printf(LevelTrace, "[TRACE] ", format, args...)
}

// Node prints an SDK node access (level 4).
func Node(operation, node string, value interface{}) {
	printf(LevelTrace, "[SDK] ", "%s node=%s value=%v", operation, node, value)
}

// Frame prints a produced frame (level 4).
func Frame(source string, index uint64) {
	printf(LevelTrace, "[TRACE] ", "%s: frame %d", source, index)
}

// --- General functions ---

// Error prints a debug error (level 1+).
func Error(err error) {
	printf(LevelInfo, "[ERROR] ", "%v", err)
}
