package playback

import (
	"github.com/mpvbridge/mpvbridge/engine"
	"github.com/mpvbridge/mpvbridge/key"
	"github.com/spf13/viper"
)

// Options configure a Controller.
type Options struct {
	// Name identifies the controller when it takes ownership of the engine session.
	Name string
	Mode engine.Mode

	RestoreVolume bool
	DefaultVolume float64
	RememberRate  bool
}

// DefaultOptions reads the player settings from the loaded configuration.
func DefaultOptions(mode engine.Mode) Options {
	return Options{
		Name:          mode.String(),
		Mode:          mode,
		RestoreVolume: viper.GetBool(key.PlayerRestoreVolume),
		DefaultVolume: float64(viper.GetInt(key.PlayerDefaultVolume)),
		RememberRate:  viper.GetBool(key.PlayerRememberRate),
	}
}

// Preferences persists values that outlive a source.
type Preferences interface {
	Volume() (float64, bool)
	SetVolume(v float64) error
	PlaybackRate() (float64, bool)
	SetPlaybackRate(r float64) error
}
