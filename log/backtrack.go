package log

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
)

const (
	logrusPackage = "github.com/sirupsen/logrus"
	maxCallDepth  = 16
)

// BackTrackHook annotates entries at or above its level with the first
// caller outside logrus and this package's hooks, as bt_line and bt_func.
type BackTrackHook struct {
	level logrus.Level
}

func NewBackTrackHook(filteredLevel logrus.Level) logrus.Hook {
	return &BackTrackHook{level: filteredLevel}
}

func (bt *BackTrackHook) Levels() []logrus.Level {
	levels := make([]logrus.Level, 0, len(logrus.AllLevels))
	for _, l := range logrus.AllLevels {
		if l <= bt.level {
			levels = append(levels, l)
		}
	}
	return levels
}

func (bt *BackTrackHook) Fire(entry *logrus.Entry) error {
	frame, ok := callerFrame()
	if !ok {
		entry.Data["bt_line"] = "unknown:0"
		entry.Data["bt_func"] = "unknown"
		return nil
	}
	entry.Data["bt_line"] = fmt.Sprintf("%s:%d", shortPath(frame.File), frame.Line)
	entry.Data["bt_func"] = frame.Function
	return nil
}

func callerFrame() (runtime.Frame, bool) {
	pcs := make([]uintptr, maxCallDepth)
	// skip runtime.Callers and callerFrame
	n := runtime.Callers(2, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		if !isLoggingFrame(frame.Function) && frame.Function != "" {
			return frame, true
		}
		if !more {
			return runtime.Frame{}, false
		}
	}
}

// isLoggingFrame matches logrus itself and the hook methods of this package,
// not other functions of it, so a log call from a test here still resolves.
func isLoggingFrame(function string) bool {
	if strings.Contains(function, logrusPackage) {
		return true
	}
	return strings.Contains(function, "/log.(*BackTrackHook)") ||
		strings.Contains(function, "/log.(*RedactHook)") ||
		strings.HasSuffix(function, "/log.callerFrame")
}

// shortPath keeps the parent directory and the file name.
func shortPath(file string) string {
	dir, name := filepath.Split(file)
	return filepath.Join(filepath.Base(dir), name)
}
