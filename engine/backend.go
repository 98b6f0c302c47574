// Package engine owns the single process-local mpv instance shared by every playback controller.
//
// A Session lazily starts the engine, exposes command/property passthroughs and
// fans out decoded engine events to subscribers.
package engine

import (
	"context"
	"time"

	"github.com/mpvbridge/mpvbridge/key"
	"github.com/spf13/viper"
)

// Mode selects how the engine presents media.
type Mode int

const (
	// ModeVideo opens a window and keeps the last frame at end of file.
	ModeVideo Mode = iota
	// ModeAudio disables video output and never opens a window.
	ModeAudio
)

func (m Mode) String() string {
	if m == ModeAudio {
		return "audio"
	}
	return "video"
}

// Options control how the engine process is spawned and addressed.
type Options struct {
	Binary            string
	SocketWaitRetries int
	SocketWaitDelay   time.Duration
	CommandTimeout    time.Duration
	KeepOpen          bool
	Hwdec             string
	ExtraArgs         []string
}

// OptionsFromConfig reads engine options from the loaded configuration.
func OptionsFromConfig() Options {
	return Options{
		Binary:            viper.GetString(key.EngineBinary),
		SocketWaitRetries: viper.GetInt(key.EngineSocketWaitRetries),
		SocketWaitDelay:   time.Duration(viper.GetInt(key.EngineSocketWaitDelayMs)) * time.Millisecond,
		CommandTimeout:    time.Duration(viper.GetInt(key.EngineCommandTimeoutMs)) * time.Millisecond,
		KeepOpen:          viper.GetBool(key.EngineKeepOpen),
		Hwdec:             viper.GetString(key.EngineHwdec),
		ExtraArgs:         viper.GetStringSlice(key.EngineExtraArgs),
	}
}

// Backend is one live engine instance.
type Backend interface {
	// Initialize starts the engine and blocks until it accepts commands.
	Initialize(ctx context.Context, mode Mode) error

	// ApplyMode switches presentation mode on a running engine.
	ApplyMode(ctx context.Context, mode Mode) error

	// Command sends a raw engine command and returns its reply data.
	Command(ctx context.Context, args ...any) (any, error)

	SetProperty(ctx context.Context, name string, value any) error
	GetProperty(ctx context.Context, name string) (any, error)

	// Events streams decoded events. The channel is closed when the engine goes away.
	Events() <-chan Event

	// Close releases the engine. It is safe to call more than once.
	Close() error
}

// BackendFactory creates a fresh, uninitialized Backend.
type BackendFactory func() Backend

// IPCFactory returns a factory producing IPC backends with the given options.
func IPCFactory(opts Options) BackendFactory {
	return func() Backend {
		return NewIPC(opts)
	}
}
