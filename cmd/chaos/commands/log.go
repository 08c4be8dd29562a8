package commands

import (
	"os"

	"github.com/mosaicnetworks/chaos/src/config"
	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

// newLogger creates the console logger. When logFile is set, info and debug
// entries are also written to it.
func newLogger(level, logFile string) *logrus.Logger {
	logger := logrus.New()
	logger.Level = config.LogLevel(level)
	logger.Formatter = new(prefixed.TextFormatter)

	if logFile == "" {
		return logger
	}

	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY, 0666)
	if err != nil {
		logger.Infof("Failed to open %s file, using default stderr", logFile)
		return logger
	}
	f.Close()

	pathMap := lfshook.PathMap{
		logrus.InfoLevel:  logFile,
		logrus.DebugLevel: logFile,
	}

	logger.Hooks.Add(lfshook.NewHook(
		pathMap,
		&logrus.TextFormatter{},
	))

	return logger
}
