// Package hooks holds logrus hooks shared by the binaries and tests.
package hooks

import (
	"runtime/debug"
	"strings"

	log "github.com/sirupsen/logrus"
)

type contextHook struct {
	trim string
}

// NewContextHook adds a "file:line" field with the logging call site, trimmed
// to the path after "flowline/".
func NewContextHook() contextHook {
	return contextHook{trim: "flowline/"}
}

func (hook contextHook) Levels() []log.Level {
	return log.AllLevels
}

func (hook contextHook) Fire(entry *log.Entry) error {
	lines := strings.Split(string(debug.Stack()), "\n")
	foundHook := false
	for i := 0; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if strings.Contains(line, "context_hook.go:") {
			foundHook = true
			continue
		}
		// Stack lines alternate between function names and file:line, skip
		// logrus frames until the first caller outside of it.
		if !foundHook || !strings.Contains(line, ".go:") || strings.Contains(line, "sirupsen/logrus") {
			continue
		}
		ctx := strings.Split(line, hook.trim)
		loc := strings.Fields(ctx[len(ctx)-1])
		if len(loc) > 0 {
			entry.Data["file:line"] = loc[0]
		}
		break
	}
	return nil
}
