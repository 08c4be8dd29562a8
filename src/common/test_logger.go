package common

import (
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

// testWriter sends every log line to t.Log, so output only shows for failing
// or verbose tests.
type testWriter struct {
	t testing.TB
}

func (w testWriter) Write(d []byte) (int, error) {
	w.t.Helper()
	w.t.Log(strings.TrimSuffix(string(d), "\n"))
	return len(d), nil
}

// NewTestLogger returns a logrus Logger that writes to t.Log.
func NewTestLogger(t testing.TB, level logrus.Level) *logrus.Logger {
	logger := logrus.New()
	logger.Out = testWriter{t: t}
	logger.Level = level
	return logger
}

// NewTestEntry returns a logrus Entry, with the given prefix, that writes to
// t.Log.
func NewTestEntry(t testing.TB, level logrus.Level, prefix string) *logrus.Entry {
	return NewTestLogger(t, level).WithField("prefix", prefix)
}
