package events

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"
)

// ConsoleBus prints one colored line per event.
type ConsoleBus struct {
	w       io.Writer
	started *color.Color
	goColor *color.Color
	stop    *color.Color
}

// NewConsoleBus writes to w. Colors follow fatih/color's terminal detection.
func NewConsoleBus(w io.Writer) *ConsoleBus {
	return &ConsoleBus{
		w:       w,
		started: color.New(color.FgCyan),
		goColor: color.New(color.FgGreen, color.Bold),
		stop:    color.New(color.FgRed, color.Bold),
	}
}

func (c *ConsoleBus) Publish(_ context.Context, e Event) error {
	var label string
	switch e.Kind {
	case KindGo:
		label = c.goColor.Sprint(string(e.Kind))
	case KindStop:
		label = c.stop.Sprint(string(e.Kind))
	default:
		label = c.started.Sprint(string(e.Kind))
	}

	var b strings.Builder
	b.WriteString(e.Time.Format("15:04:05"))
	b.WriteString(" ")
	b.WriteString(label)
	for _, k := range sortedKeys(e.Tags) {
		fmt.Fprintf(&b, " %s=%s", k, e.Tags[k])
	}
	if e.Reason != "" {
		fmt.Fprintf(&b, " (%s)", e.Reason)
	}
	b.WriteString("\n")

	_, err := io.WriteString(c.w, b.String())
	return err
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
