// Package logx is a thin wrapper around logrus, following the
// subject-first logging convention rclone's backends use
// (fs.Logf(subject, format, args...)).
package logx

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// Std is the package-level logger. Replaceable in tests.
var Std = logrus.StandardLogger()

// Subject is anything that can describe itself in a log line: a channel,
// a task, or a server.
type Subject interface {
	String() string
}

type stringer string

func (s stringer) String() string { return string(s) }

// S wraps a plain string as a Subject.
func S(s string) Subject { return stringer(s) }

func line(subject Subject, format string, args ...interface{}) string {
	msg := fmt.Sprintf(format, args...)
	if subject == nil {
		return msg
	}
	return subject.String() + ": " + msg
}

// Logf logs at info level.
func Logf(subject Subject, format string, args ...interface{}) {
	Std.Info(line(subject, format, args...))
}

// Debugf logs at debug level.
func Debugf(subject Subject, format string, args ...interface{}) {
	Std.Debug(line(subject, format, args...))
}

// Errorf logs at error level.
func Errorf(subject Subject, format string, args ...interface{}) {
	Std.Error(line(subject, format, args...))
}

// Infof is an alias for Logf kept for call sites that prefer the explicit name.
func Infof(subject Subject, format string, args ...interface{}) {
	Logf(subject, format, args...)
}
