package cmd

import (
	"bytes"
	"testing"

	"github.com/mpvbridge/mpvbridge/filesystem"
	"github.com/mpvbridge/mpvbridge/key"
	"github.com/mpvbridge/mpvbridge/playback"
	"github.com/mpvbridge/mpvbridge/track"
	"github.com/samber/mo"
	. "github.com/smartystreets/goconvey/convey"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

func TestParseValue(t *testing.T) {
	Convey("Given config defaults of each type", t, func() {
		Convey("Values are converted to the default's type", func() {
			v, err := parseValue("mpv", []string{"/usr/bin/mpv"})
			So(err, ShouldBeNil)
			So(v, ShouldEqual, "/usr/bin/mpv")

			v, err = parseValue(100, []string{"40"})
			So(err, ShouldBeNil)
			So(v, ShouldEqual, 40)

			v, err = parseValue(true, []string{"false"})
			So(err, ShouldBeNil)
			So(v, ShouldEqual, false)

			v, err = parseValue(1.0, []string{"1.25"})
			So(err, ShouldBeNil)
			So(v, ShouldEqual, 1.25)

			v, err = parseValue([]string{}, []string{"--fs", "--ontop"})
			So(err, ShouldBeNil)
			So(v, ShouldResemble, []string{"--fs", "--ontop"})
		})

		Convey("Malformed values are rejected", func() {
			_, err := parseValue(100, []string{"loud"})
			So(err, ShouldNotBeNil)
			_, err = parseValue(true, []string{"maybe"})
			So(err, ShouldNotBeNil)
		})
	})
}

func TestErrUnknownKey(t *testing.T) {
	Convey("An unknown key suggests the closest one", t, func() {
		err := errUnknownKey("engine.binray")
		So(err.Error(), ShouldContainSubstring, key.EngineBinary)
	})
}

func TestReadSource(t *testing.T) {
	Convey("Given a media source file", t, func() {
		filesystem.SetMemMapFs()
		fs := filesystem.API()

		So(afero.WriteFile(fs, "/source.json", []byte(`{
			"Id": "abc",
			"MediaStreams": [
				{"Type": "Audio", "Index": 1, "Language": "eng", "Codec": "aac"},
				{"Type": "Subtitle", "Index": 3, "IsExternal": true, "DeliveryMethod": "External", "DeliveryUrl": "/sub.srt"}
			],
			"DefaultAudioStreamIndex": 1
		}`), 0o644), ShouldBeNil)

		Convey("It decodes the library streams", func() {
			source, err := readSource("/source.json")
			So(err, ShouldBeNil)
			So(source.ID, ShouldEqual, "abc")
			So(source.MediaStreams, ShouldHaveLength, 2)
			So(source.MediaStreams[1].Type, ShouldEqual, track.Subtitle)
			So(source.MediaStreams[1].IsExternalDelivery(), ShouldBeTrue)
			So(*source.DefaultAudioStreamIndex, ShouldEqual, 1)
		})

		Convey("A missing file is an error", func() {
			_, err := readSource("/missing.json")
			So(err, ShouldNotBeNil)
		})
	})
}

func TestCheckSelections(t *testing.T) {
	Convey("Given a request without a stream list", t, func() {
		req := playback.Request{URL: "http://media/1.mkv"}

		Convey("No selection is fine", func() {
			So(checkSelections(req), ShouldBeNil)
		})

		Convey("Turning subtitles off is fine", func() {
			req.SubtitleStreamIndex = mo.Some(playback.SubtitlesOff)
			So(checkSelections(req), ShouldBeNil)
		})

		Convey("A library audio index is refused", func() {
			req.AudioStreamIndex = mo.Some(1)
			err := checkSelections(req)
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "--source")
		})

		Convey("A library subtitle index is refused", func() {
			req.SubtitleStreamIndex = mo.Some(3)
			So(checkSelections(req), ShouldNotBeNil)
		})

		Convey("Both are accepted once streams are known", func() {
			req.AudioStreamIndex = mo.Some(1)
			req.SubtitleStreamIndex = mo.Some(3)
			req.MediaSource.MediaStreams = []track.LibraryStream{{Type: track.Audio, Index: 1}}
			So(checkSelections(req), ShouldBeNil)
		})
	})
}

func TestConsoleNotifier(t *testing.T) {
	Convey("Given a console notifier", t, func() {
		viper.Set(key.IconsVariant, "plain")
		var out bytes.Buffer
		n := newConsoleNotifier(&out, false)

		Convey("Lifecycle notifications are printed", func() {
			n.Playing()
			n.Pause()
			n.TimeUpdate(5000)
			So(out.String(), ShouldContainSubstring, "playing")
			So(out.String(), ShouldContainSubstring, "paused")
			So(out.String(), ShouldNotContainSubstring, "0:05")
		})

		Convey("Stopped finishes without error", func() {
			n.Stopped(playback.StopInfo{URL: "http://media/1.mkv", PositionMs: 65_000})
			<-n.done
			So(n.err, ShouldBeNil)
			So(out.String(), ShouldContainSubstring, "1:05")
		})

		Convey("An error finishes with it, once", func() {
			n.Error(&playback.DecodeError{URL: "http://media/1.mkv", Reason: "unrecognized file format"})
			n.Stopped(playback.StopInfo{})
			<-n.done
			So(n.err, ShouldNotBeNil)
			So(n.err.Error(), ShouldContainSubstring, "unrecognized file format")
		})
	})
}
