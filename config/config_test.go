package config

import (
	"encoding/json"
	"testing"

	"github.com/mpvbridge/mpvbridge/filesystem"
	"github.com/mpvbridge/mpvbridge/key"
	. "github.com/smartystreets/goconvey/convey"
	"github.com/spf13/viper"
)

func init() {
	filesystem.SetMemMapFs()
}

func TestSetup(t *testing.T) {
	Convey("Config Setup", t, func() {
		Convey("Should initialize without error", func() {
			err := Setup()
			So(err, ShouldBeNil)
		})

		Convey("Should have default values populated", func() {
			_ = Setup()
			for name := range Default {
				So(viper.Get(name), ShouldNotBeNil)
			}
			So(viper.GetString(key.EngineBinary), ShouldEqual, "mpv")
			So(viper.GetInt(key.PlayerDefaultVolume), ShouldEqual, 100)
		})

		Convey("EnvKeyReplacer should convert dots to underscores", func() {
			result := EnvKeyReplacer.Replace("engine.socket_wait_retries")
			So(result, ShouldEqual, "engine_socket_wait_retries")
		})
	})
}

func TestValidate(t *testing.T) {
	Convey("Given the registered defaults", t, func() {
		So(Setup(), ShouldBeNil)
		defer viper.Reset()

		Convey("They are valid", func() {
			So(Validate(), ShouldBeNil)
		})

		Convey("An empty engine binary is rejected", func() {
			viper.Set(key.EngineBinary, "  ")
			So(Validate(), ShouldNotBeNil)
		})

		Convey("A zero command timeout is rejected", func() {
			viper.Set(key.EngineCommandTimeoutMs, 0)
			err := Validate()
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, key.EngineCommandTimeoutMs)
		})

		Convey("A default volume above 100 is rejected", func() {
			viper.Set(key.PlayerDefaultVolume, 150)
			So(Validate(), ShouldNotBeNil)
		})
	})
}

func TestField(t *testing.T) {
	Convey("Given a registered field", t, func() {
		field := Default[key.EngineBinary]

		Convey("Env should carry the application prefix", func() {
			So(field.Env(), ShouldEqual, "MPVBRIDGE_ENGINE_BINARY")
		})

		Convey("MarshalJSON should expose its type and default", func() {
			raw, err := json.Marshal(&field)
			So(err, ShouldBeNil)

			var decoded map[string]any
			So(json.Unmarshal(raw, &decoded), ShouldBeNil)
			So(decoded["type"], ShouldEqual, "string")
			So(decoded["default"], ShouldEqual, "mpv")
		})

		Convey("Section and Type come from the key and the default", func() {
			So(field.Section(), ShouldEqual, "engine")
			So(field.Type(), ShouldEqual, "string")

			extra := Default[key.EngineExtraArgs]
			So(extra.Type(), ShouldEqual, "[]string")
		})

		Convey("Pretty should mention the key", func() {
			So(field.Pretty(), ShouldContainSubstring, key.EngineBinary)
		})
	})
}
