package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/youssefsiam38/legalpg/driver"
)

// logrusLogger adapts a logrus entry to driver.Logger.
type logrusLogger struct {
	entry *logrus.Entry
}

func newLogger(l *logrus.Logger) driver.Logger {
	return logrusLogger{entry: logrus.NewEntry(l)}
}

func (l logrusLogger) Debug(msg string, args ...any) { l.entry.WithFields(fields(args)).Debug(msg) }
func (l logrusLogger) Info(msg string, args ...any)  { l.entry.WithFields(fields(args)).Info(msg) }
func (l logrusLogger) Warn(msg string, args ...any)  { l.entry.WithFields(fields(args)).Warn(msg) }
func (l logrusLogger) Error(msg string, args ...any) { l.entry.WithFields(fields(args)).Error(msg) }

// fields turns alternating key/value pairs into logrus fields. A key that is
// not a string is formatted with %v; a trailing key without a value is kept
// under "!BADKEY" like log/slog does.
func fields(args []any) logrus.Fields {
	f := make(logrus.Fields, len(args)/2)
	for i := 0; i < len(args); i += 2 {
		if i+1 == len(args) {
			f["!BADKEY"] = args[i]
			break
		}
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprint(args[i])
		}
		f[key] = args[i+1]
	}
	return f
}

var _ driver.Logger = logrusLogger{}
