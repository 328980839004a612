package crypto

import (
	"encoding/hex"

	"github.com/sirupsen/logrus"
)

// previewBytes is how much of a buffer PreviewFields shows.
const previewBytes = 8

// LoggerHelper builds logrus entries carrying the package's standard fields.
// Only public data may be attached; secret keys, shared secrets and session
// keys never go into fields.
type LoggerHelper struct {
	function string
	entry    *logrus.Entry
}

// NewLogger returns a helper tagged with function and the package name.
func NewLogger(function string) *LoggerHelper {
	return &LoggerHelper{
		function: function,
		entry: logrus.WithFields(logrus.Fields{
			"function": function,
			"package":  "crypto",
		}),
	}
}

// WithField returns a helper with one more field.
func (l *LoggerHelper) WithField(key string, value interface{}) *LoggerHelper {
	return &LoggerHelper{function: l.function, entry: l.entry.WithField(key, value)}
}

// WithFields returns a helper with fields merged in.
func (l *LoggerHelper) WithFields(fields logrus.Fields) *LoggerHelper {
	return &LoggerHelper{function: l.function, entry: l.entry.WithFields(fields)}
}

// WithError records err along with the failing primitive and operation.
func (l *LoggerHelper) WithError(err error, errorType, operation string) *LoggerHelper {
	return l.WithFields(logrus.Fields{
		"error":      err.Error(),
		"error_type": errorType,
		"operation":  operation,
	})
}

func (l *LoggerHelper) Debug(message string) { l.entry.Debug(message) }
func (l *LoggerHelper) Info(message string)  { l.entry.Info(message) }
func (l *LoggerHelper) Warn(message string)  { l.entry.Warn(message) }

// PreviewFields returns "<name>_preview" (hex of the first bytes) and
// "<name>_size" fields for a public buffer.
func PreviewFields(data []byte, name string) logrus.Fields {
	preview := "nil"
	switch {
	case len(data) > previewBytes:
		preview = hex.EncodeToString(data[:previewBytes]) + "..."
	case len(data) > 0:
		preview = hex.EncodeToString(data)
	}
	return logrus.Fields{
		name + "_preview": preview,
		name + "_size":    len(data),
	}
}
