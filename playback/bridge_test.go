package playback

import (
	"context"
	"testing"

	"github.com/mpvbridge/mpvbridge/engine"
	"github.com/mpvbridge/mpvbridge/track"
	"github.com/samber/mo"
	. "github.com/smartystreets/goconvey/convey"
)

func TestBridge(t *testing.T) {
	ctx := context.Background()

	Convey("Given a loading source", t, func() {
		f := newFixture()
		So(f.controller.Play(ctx, request("http://media/1.mkv")), ShouldBeNil)

		Convey("Unpause and time updates are not reported before start", func() {
			f.session.Dispatch(engine.PauseChanged{Paused: false})
			f.session.Dispatch(engine.TimePosChanged{Seconds: 3})
			f.session.Dispatch(engine.SeekingChanged{Seeking: true})
			So(f.notes.all(), ShouldBeEmpty)
		})

		Convey("The engine's initial volume does not override the restored one", func() {
			f.prefs.volume = mo.Some(40.0)
			f.session.Dispatch(engine.VolumeChanged{Volume: 100})
			f.ready()
			So(f.backend.Sets("volume"), ShouldResemble, []any{40.0})
		})

		Convey("A volume set by the UI before start wins over the saved one", func() {
			f.prefs.volume = mo.Some(40.0)
			So(f.controller.SetVolume(ctx, 30), ShouldBeNil)
			So(f.backend.Sets("volume"), ShouldBeEmpty)

			f.ready()
			So(f.backend.Sets("volume"), ShouldResemble, []any{30.0})
		})
	})

	Convey("Given a started source", t, func() {
		f := newFixture()
		So(f.controller.Play(ctx, request("http://media/1.mkv")), ShouldBeNil)
		f.ready()
		f.notes.reset()

		Convey("Pause and unpause are reported", func() {
			f.session.Dispatch(engine.PauseChanged{Paused: true})
			So(f.controller.Paused(), ShouldBeTrue)
			f.session.Dispatch(engine.PauseChanged{Paused: false})
			So(f.controller.Paused(), ShouldBeFalse)

			So(f.notes.all(), ShouldResemble, []string{"pause", "unpause", "playing"})
		})

		Convey("A seek reports waiting once and playing when it settles", func() {
			f.session.Dispatch(engine.Seek{})
			f.session.Dispatch(engine.SeekingChanged{Seeking: true})
			f.session.Dispatch(engine.PlaybackRestart{})
			f.session.Dispatch(engine.SeekingChanged{Seeking: false})

			So(f.notes.all(), ShouldResemble, []string{"waiting", "playing"})
		})

		Convey("Time position is reported in milliseconds", func() {
			f.session.Dispatch(engine.TimePosChanged{Seconds: 12.3456})
			f.session.Dispatch(engine.CacheDurationChanged{Seconds: 30})
			f.session.Dispatch(engine.DurationChanged{Seconds: 1440})

			So(f.notes.times, ShouldResemble, []int64{12346})
			So(f.controller.CurrentTime(), ShouldEqual, 12346)
			So(f.controller.BufferedMs(), ShouldEqual, 42346)
			So(f.controller.Duration(), ShouldEqual, 1440000)
		})

		Convey("End of file is reported once and returns to idle", func() {
			f.session.Dispatch(engine.TimePosChanged{Seconds: 1440})
			f.session.Dispatch(engine.EOFReachedChanged{Reached: true})
			f.session.Dispatch(engine.EndFile{Reason: engine.EndReasonEOF})

			So(f.notes.count("stopped"), ShouldEqual, 1)
			So(f.notes.stopped[0].URL, ShouldEqual, "http://media/1.mkv")
			So(f.notes.stopped[0].PositionMs, ShouldEqual, 1440000)
			So(f.controller.State(), ShouldEqual, Idle)

			Convey("And playing the same URL again reloads it", func() {
				So(f.controller.Play(ctx, request("http://media/1.mkv")), ShouldBeNil)
				So(f.backend.CallsNamed("loadfile"), ShouldHaveLength, 2)
			})
		})

		Convey("A stop end-file reason is ignored", func() {
			f.session.Dispatch(engine.EndFile{Reason: engine.EndReasonStop})
			So(f.notes.all(), ShouldBeEmpty)
			So(f.controller.State(), ShouldEqual, Started)
		})

		Convey("Quitting the engine is reported as a stop once", func() {
			f.session.Dispatch(engine.TimePosChanged{Seconds: 61})
			f.session.Dispatch(engine.EndFile{Reason: engine.EndReasonQuit})
			f.session.Dispatch(engine.EngineLost{})

			So(f.controller.State(), ShouldEqual, Idle)
			So(f.notes.count("stopped"), ShouldEqual, 1)
			So(f.notes.stopped[0].URL, ShouldEqual, "http://media/1.mkv")
			So(f.notes.stopped[0].PositionMs, ShouldEqual, 61000)
		})

		Convey("A decode error is reported and the source is dropped", func() {
			f.session.Dispatch(engine.EndFile{Reason: engine.EndReasonError})
			So(f.notes.all(), ShouldResemble, []string{"error"})
			So(f.notes.errors[0].Reason, ShouldEqual, "playback failed")
			So(f.controller.State(), ShouldEqual, Idle)
		})

		Convey("Volume and mute changes update state and volume is saved", func() {
			f.session.Dispatch(engine.VolumeChanged{Volume: 55})
			f.session.Dispatch(engine.MuteChanged{Muted: true})

			So(f.controller.Volume(), ShouldEqual, 55)
			So(f.controller.Muted(), ShouldBeTrue)
			v, ok := f.prefs.Volume()
			So(ok, ShouldBeTrue)
			So(v, ShouldEqual, 55)
		})

		Convey("Speed changes are not saved unless the rate is remembered", func() {
			f.session.Dispatch(engine.SpeedChanged{Speed: 1.5})
			So(f.controller.PlaybackRate(), ShouldEqual, 1.5)
			_, ok := f.prefs.PlaybackRate()
			So(ok, ShouldBeFalse)
		})

		Convey("A new track list is correlated again", func() {
			f.session.Dispatch(engine.TrackListChanged{Tracks: engineTracks[:2]})
			id, ok := f.controller.Correlator().Resolve(2, track.Audio)
			So(ok, ShouldBeTrue)
			So(id, ShouldEqual, 1)
		})

		Convey("Transport controls reach the engine", func() {
			So(f.controller.SeekTo(ctx, 90500), ShouldBeNil)
			So(f.controller.Pause(ctx), ShouldBeNil)
			So(f.controller.Resume(ctx), ShouldBeNil)
			So(f.controller.SetVolume(ctx, 150), ShouldBeNil)
			So(f.controller.SetPlaybackRate(ctx, 1.25), ShouldBeNil)
			So(f.controller.SetPlaybackRate(ctx, 0), ShouldNotBeNil)

			seeks := f.backend.CallsNamed("seek")
			So(seeks, ShouldHaveLength, 1)
			So(seeks[0].Args, ShouldResemble, []any{90.5, "absolute"})
			So(f.backend.Sets("pause"), ShouldResemble, []any{false, true, false})
			So(f.backend.Sets("volume"), ShouldResemble, []any{100.0, 100.0})
			So(f.backend.Sets("speed"), ShouldResemble, []any{1.25})
		})
	})

	Convey("Given a controller that remembers the playback rate", t, func() {
		f := newFixture()
		f.controller.opts.RememberRate = true
		f.prefs.rate = mo.Some(1.5)

		So(f.controller.Play(ctx, request("http://media/1.mkv")), ShouldBeNil)
		f.ready()

		So(f.backend.Sets("speed"), ShouldResemble, []any{1.5})

		f.session.Dispatch(engine.SpeedChanged{Speed: 2})
		r, _ := f.prefs.PlaybackRate()
		So(r, ShouldEqual, 2)
	})
}
