// Package config loads mpvbridge settings from the TOML file, the environment and
// the registered defaults, in viper's usual precedence.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mpvbridge/mpvbridge/constant"
	"github.com/mpvbridge/mpvbridge/filesystem"
	"github.com/mpvbridge/mpvbridge/key"
	"github.com/mpvbridge/mpvbridge/where"
	"github.com/spf13/viper"
)

// EnvKeyReplacer maps config keys to environment variable suffixes.
var EnvKeyReplacer = strings.NewReplacer(".", "_")

// Setup registers defaults and env bindings, then reads the config file if one exists.
func Setup() error {
	viper.SetConfigName(constant.App)
	viper.SetConfigType("toml")
	viper.SetFs(filesystem.API())
	viper.AddConfigPath(where.Config())

	viper.SetEnvPrefix(constant.App)
	viper.SetEnvKeyReplacer(EnvKeyReplacer)
	for _, env := range EnvExposed {
		viper.MustBindEnv(env)
	}

	viper.SetTypeByDefaultValue(true)
	for name, field := range Default {
		viper.SetDefault(name, field.Value)
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return err
		}
	}

	return Validate()
}

// Validate rejects values the engine or the controllers cannot work with.
func Validate() error {
	if strings.TrimSpace(viper.GetString(key.EngineBinary)) == "" {
		return fmt.Errorf("%s must not be empty", key.EngineBinary)
	}

	for _, k := range []string{key.EngineSocketWaitRetries, key.EngineSocketWaitDelayMs, key.EngineCommandTimeoutMs} {
		if viper.GetInt(k) <= 0 {
			return fmt.Errorf("%s must be positive, got %d", k, viper.GetInt(k))
		}
	}

	if v := viper.GetFloat64(key.PlayerDefaultVolume); v < 0 || v > 100 {
		return fmt.Errorf("%s must be within 0..100, got %g", key.PlayerDefaultVolume, v)
	}

	return nil
}
