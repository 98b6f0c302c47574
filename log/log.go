// Package log is the application's logging facade over logrus.
//
// Nothing is written unless logs.write is enabled; the engine read loop, the event
// pump and the UI host all log concurrently, so the switch is atomic.
package log

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/mpvbridge/mpvbridge/filesystem"
	"github.com/mpvbridge/mpvbridge/key"
	"github.com/mpvbridge/mpvbridge/where"
	logrus "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

var enabled atomic.Bool

// Setup opens today's log file under where.Logs() and applies the configured format
// and level. With logs.write off, every log call is discarded.
func Setup() error {
	if !viper.GetBool(key.LogsWrite) {
		enabled.Store(false)
		return nil
	}

	dir := where.Logs()
	if dir == "" {
		return errors.New("log directory path is empty")
	}

	path := filepath.Join(dir, time.Now().Format("2006-01-02")+".log")
	f, err := filesystem.API().OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o666)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}

	SetupWriter(f)
	return nil
}

// SetupWriter sends logs to w using the configured format and level.
func SetupWriter(w io.Writer) {
	logrus.SetOutput(w)

	if viper.GetBool(key.LogsJson) {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{DisableColors: true, FullTimestamp: true})
	}

	level, err := logrus.ParseLevel(viper.GetString(key.LogsLevel))
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	enabled.Store(true)
}

// Disable discards every subsequent log call.
func Disable() {
	enabled.Store(false)
}

func Error(args ...any) {
	if enabled.Load() {
		logrus.Error(args...)
	}
}

func Errorf(format string, args ...any) {
	if enabled.Load() {
		logrus.Errorf(format, args...)
	}
}

func Warn(args ...any) {
	if enabled.Load() {
		logrus.Warn(args...)
	}
}

func Warnf(format string, args ...any) {
	if enabled.Load() {
		logrus.Warnf(format, args...)
	}
}

func Info(args ...any) {
	if enabled.Load() {
		logrus.Info(args...)
	}
}

func Infof(format string, args ...any) {
	if enabled.Load() {
		logrus.Infof(format, args...)
	}
}

func Debugf(format string, args ...any) {
	if enabled.Load() {
		logrus.Debugf(format, args...)
	}
}

func Tracef(format string, args ...any) {
	if enabled.Load() {
		logrus.Tracef(format, args...)
	}
}
