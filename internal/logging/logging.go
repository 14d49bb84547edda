// Package logging provides the process-wide structured logger used by every
// long-lived NymQuest component.
package logging

import (
	"os"

	"github.com/charmbracelet/log"
)

// New returns a logger prefixed with component, writing to stderr with
// timestamps enabled. Each executable creates one ("server" or "client")
// and hands it to the components it builds.
func New(component string) *log.Logger {
	return log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          component,
	})
}

// NewLevel is like New but pins an explicit level; the server tests use it
// to quiet their output.
func NewLevel(component string, level log.Level) *log.Logger {
	l := New(component)
	l.SetLevel(level)
	return l
}
