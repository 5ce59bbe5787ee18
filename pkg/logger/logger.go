// Package logger provides leveled, component-tagged logging for omnichat.
package logger

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

func (l Level) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	}
	return "UNKNOWN"
}

var (
	mu    sync.Mutex
	level = INFO
	out   io.Writer = os.Stderr
)

// SetLevel sets the global minimum log level.
func SetLevel(l Level) {
	mu.Lock()
	defer mu.Unlock()
	level = l
}

// SetOutput redirects log output, mainly for tests.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
}

func logf(l Level, component, msg string, fields map[string]any) {
	mu.Lock()
	defer mu.Unlock()
	if l < level {
		return
	}

	var b strings.Builder
	b.WriteString(time.Now().Format("2006-01-02 15:04:05"))
	b.WriteString(" [")
	b.WriteString(l.String())
	b.WriteString("]")
	if component != "" {
		b.WriteString(" [")
		b.WriteString(component)
		b.WriteString("]")
	}
	b.WriteString(" ")
	b.WriteString(msg)

	if len(fields) > 0 {
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%v", k, fields[k])
		}
	}
	b.WriteString("\n")

	io.WriteString(out, b.String())
}

func Debug(msg string)              { logf(DEBUG, "", msg, nil) }
func Info(msg string)               { logf(INFO, "", msg, nil) }
func Warn(msg string)               { logf(WARN, "", msg, nil) }
func Error(msg string)              { logf(ERROR, "", msg, nil) }
func DebugC(component, msg string)  { logf(DEBUG, component, msg, nil) }
func InfoC(component, msg string)   { logf(INFO, component, msg, nil) }
func WarnC(component, msg string)   { logf(WARN, component, msg, nil) }
func ErrorC(component, msg string)  { logf(ERROR, component, msg, nil) }

func DebugCF(component, msg string, fields map[string]any) { logf(DEBUG, component, msg, fields) }
func InfoCF(component, msg string, fields map[string]any)  { logf(INFO, component, msg, fields) }
func WarnCF(component, msg string, fields map[string]any)  { logf(WARN, component, msg, fields) }
func ErrorCF(component, msg string, fields map[string]any) { logf(ERROR, component, msg, fields) }
