package playback

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mpvbridge/mpvbridge/engine"
	"github.com/mpvbridge/mpvbridge/engine/enginetest"
	"github.com/mpvbridge/mpvbridge/track"
	"github.com/samber/mo"
	. "github.com/smartystreets/goconvey/convey"
)

type recorder struct {
	mu      sync.Mutex
	events  []string
	stopped []StopInfo
	errors  []*DecodeError
	times   []int64
}

func (r *recorder) add(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, name)
}

func (r *recorder) Playing() { r.add("playing") }
func (r *recorder) Pause() { r.add("pause") }
func (r *recorder) Unpause() { r.add("unpause") }
func (r *recorder) Waiting() { r.add("waiting") }

func (r *recorder) Stopped(info StopInfo) {
	r.add("stopped")
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = append(r.stopped, info)
}

func (r *recorder) TimeUpdate(ms int64) {
	r.add("timeupdate")
	r.mu.Lock()
	defer r.mu.Unlock()
	r.times = append(r.times, ms)
}

func (r *recorder) Error(err *DecodeError) {
	r.add("error")
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, err)
}

func (r *recorder) count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e == name {
			n++
		}
	}
	return n
}

func (r *recorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

type memPrefs struct {
	volume mo.Option[float64]
	rate   mo.Option[float64]
}

func (p *memPrefs) Volume() (float64, bool) {
	return p.volume.Get()
}

func (p *memPrefs) SetVolume(v float64) error {
	p.volume = mo.Some(v)
	return nil
}

func (p *memPrefs) PlaybackRate() (float64, bool) {
	return p.rate.Get()
}

func (p *memPrefs) SetPlaybackRate(r float64) error {
	p.rate = mo.Some(r)
	return nil
}

func intPtr(i int) *int { return &i }

var librarySource = MediaSource{
	ID: "src",
	MediaStreams: []track.LibraryStream{
		{Type: track.Video, Index: 0},
		{Type: track.Audio, Index: 2, Language: "eng", Codec: "aac"},
		{Type: track.Audio, Index: 5, Language: "jpn", Codec: "ac3"},
		{Type: track.Subtitle, Index: 6, Language: "eng", Codec: "subrip", DeliveryMethod: track.DeliveryEmbedded},
		{Type: track.Subtitle, Index: 7, IsExternal: true, DeliveryMethod: track.DeliveryExternal, DeliveryURL: "http://x/sub.srt"},
	},
	DefaultAudioStreamIndex: intPtr(2),
}

var engineTracks = []track.EngineTrack{
	{Type: track.Video, ID: 1},
	{Type: track.Audio, ID: 1, Language: "eng", Codec: "aac"},
	{Type: track.Audio, ID: 2, Language: "jpn", Codec: "ac3"},
	{Type: track.Subtitle, ID: 1, Language: "eng", Codec: "subrip"},
}

type fixture struct {
	backend    *enginetest.Backend
	session    *engine.Session
	notes      *recorder
	prefs      *memPrefs
	controller *Controller
}

func newFixture() *fixture {
	backend := enginetest.New()
	session := engine.NewSession(backend.Factory())
	notes := &recorder{}
	prefs := &memPrefs{}
	return &fixture{
		backend: backend,
		session: session,
		notes:   notes,
		prefs:   prefs,
		controller: New(session, notes, prefs, Options{
			Name:          "video",
			Mode:          engine.ModeVideo,
			RestoreVolume: true,
			DefaultVolume: 100,
		}),
	}
}

func eventually(cond func() bool) bool {
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func (f *fixture) ready() {
	f.session.Dispatch(engine.TrackListChanged{Tracks: engineTracks})
	f.session.Dispatch(engine.FileLoaded{})
}

func request(url string) Request {
	return Request{URL: url, ItemID: "item-1", MediaSource: librarySource}
}

// propertyOrder returns the names of written properties in call order.
func propertyOrder(b *enginetest.Backend) []string {
	var names []string
	for _, c := range b.CallsNamed("set_property") {
		names = append(names, c.Args[0].(string))
	}
	return names
}

func TestPlayNewSource(t *testing.T) {
	ctx := context.Background()

	Convey("Given a controller asked to play a new source", t, func() {
		f := newFixture()
		So(f.controller.Play(ctx, request("http://media/1.mkv")), ShouldBeNil)

		Convey("The engine is started and told to load and unpause", func() {
			So(f.session.Ready(), ShouldBeTrue)
			So(f.controller.State(), ShouldEqual, Loading)

			loads := f.backend.CallsNamed("loadfile")
			So(loads, ShouldHaveLength, 1)
			So(loads[0].Args, ShouldResemble, []any{"http://media/1.mkv", "replace"})
			So(f.backend.Sets("pause"), ShouldResemble, []any{false})
		})

		Convey("No track is selected before the source is ready", func() {
			So(f.backend.Sets("aid"), ShouldBeEmpty)
			So(f.backend.Sets("sid"), ShouldBeEmpty)
			So(f.notes.count("playing"), ShouldEqual, 0)
		})

		Convey("When audio stream 5 is selected before readiness", func() {
			f.controller.SetAudioTrack(ctx, 5)
			So(f.backend.Sets("aid"), ShouldBeEmpty)
			So(f.controller.AudioStreamIndex(), ShouldResemble, mo.Some(5))

			Convey("Readiness applies engine id 2, audio before subtitle", func() {
				f.ready()

				So(f.controller.State(), ShouldEqual, Started)
				So(f.backend.Sets("aid"), ShouldResemble, []any{2})
				So(f.backend.Sets("sid"), ShouldResemble, []any{"no"})
				So(propertyOrder(f.backend)[1:3], ShouldResemble, []string{"aid", "sid"})
				So(f.notes.all(), ShouldResemble, []string{"playing"})

				Convey("A duplicate readiness signal does nothing", func() {
					f.session.Dispatch(engine.FileLoaded{})
					f.session.Dispatch(engine.PlaybackRestart{})
					So(f.backend.Sets("aid"), ShouldHaveLength, 1)
					So(f.notes.count("playing"), ShouldEqual, 1)
				})
			})
		})

		Convey("Readiness applies the default volume when nothing is saved", func() {
			f.ready()
			So(f.backend.Sets("volume"), ShouldResemble, []any{100.0})
			So(f.backend.Sets("speed"), ShouldBeEmpty)
		})

		Convey("A new URL discards selections queued for the previous one", func() {
			f.controller.SetAudioTrack(ctx, 5)
			f.controller.SetSubtitleTrack(ctx, 6)

			next := Request{URL: "http://media/2.mkv", MediaSource: MediaSource{MediaStreams: librarySource.MediaStreams}}
			So(f.controller.Play(ctx, next), ShouldBeNil)
			f.ready()

			So(f.backend.Sets("aid"), ShouldBeEmpty)
			So(f.backend.Sets("sid"), ShouldResemble, []any{"no"})
			So(f.backend.CallsNamed("loadfile"), ShouldHaveLength, 2)
		})

		Convey("A stop before readiness makes a late readiness signal a no-op", func() {
			f.controller.Stop(ctx, false)
			f.ready()

			So(f.controller.State(), ShouldEqual, Idle)
			So(f.backend.Sets("aid"), ShouldBeEmpty)
			So(f.notes.count("playing"), ShouldEqual, 0)
		})
	})

	Convey("Given a request with an external subtitle selected", t, func() {
		f := newFixture()
		req := request("http://media/1.mkv")
		req.SubtitleStreamIndex = mo.Some(7)
		So(f.controller.Play(ctx, req), ShouldBeNil)
		So(f.backend.CallsNamed("sub-add"), ShouldBeEmpty)

		Convey("Readiness side-loads it by URL instead of selecting an id", func() {
			f.ready()

			adds := f.backend.CallsNamed("sub-add")
			So(adds, ShouldHaveLength, 1)
			So(adds[0].Args, ShouldResemble, []any{"http://x/sub.srt", "select"})
			So(f.backend.Sets("sid"), ShouldBeEmpty)
			So(f.controller.SubtitlesEnabled(), ShouldBeTrue)
		})
	})

	Convey("Given an external subtitle with a server-relative URL", t, func() {
		f := newFixture()
		req := request("http://media/1.mkv")
		req.ServerBaseURL = "http://server:8096/jellyfin"
		req.MediaSource = MediaSource{MediaStreams: []track.LibraryStream{
			{Type: track.Subtitle, Index: 3, IsExternal: true, DeliveryMethod: track.DeliveryExternal, DeliveryURL: "/Videos/1/Subtitles/3/Stream.srt?api_key=k"},
		}}
		req.SubtitleStreamIndex = mo.Some(3)

		So(f.controller.Play(ctx, req), ShouldBeNil)
		f.ready()

		adds := f.backend.CallsNamed("sub-add")
		So(adds, ShouldHaveLength, 1)
		So(adds[0].Args[0], ShouldEqual, "http://server:8096/jellyfin/Videos/1/Subtitles/3/Stream.srt?api_key=k")
	})

	Convey("Given a start offset", t, func() {
		f := newFixture()
		req := request("http://media/1.mkv")
		req.StartSeconds = 90

		So(f.controller.Play(ctx, req), ShouldBeNil)
		So(f.backend.CallsNamed("loadfile")[0].Args, ShouldResemble, []any{"http://media/1.mkv", "replace", -1, "start=90"})
	})

	Convey("Given no track list arrived before the file loaded", t, func() {
		f := newFixture()
		f.backend.Properties["track-list"] = []any{
			map[string]any{"id": float64(3), "type": "audio", "lang": "eng", "codec": "aac"},
			map[string]any{"id": float64(4), "type": "audio", "lang": "jpn", "codec": "ac3"},
		}
		req := request("http://media/1.mkv")
		req.AudioStreamIndex = mo.Some(5)

		So(f.controller.Play(ctx, req), ShouldBeNil)
		f.session.Dispatch(engine.FileLoaded{})

		Convey("The list is fetched and used for correlation", func() {
			So(f.backend.CallsNamed("get_property"), ShouldHaveLength, 1)
			So(f.backend.Sets("aid"), ShouldResemble, []any{4})
		})
	})
}

func TestPlayFailures(t *testing.T) {
	ctx := context.Background()

	Convey("Given an engine that rejects the load", t, func() {
		f := newFixture()
		f.backend.Failures["loadfile"] = errors.New("mpv error: loading failed")

		err := f.controller.Play(ctx, request("http://media/broken.mkv"))

		Convey("The error is returned and reported and the controller is idle", func() {
			So(err, ShouldNotBeNil)
			So(f.controller.State(), ShouldEqual, Idle)
			So(f.notes.all(), ShouldResemble, []string{"error"})
			So(f.notes.errors[0].Kind(), ShouldEqual, DecodeErrorKind)
			So(f.notes.errors[0].URL, ShouldEqual, "http://media/broken.mkv")
		})
	})

	Convey("Given an engine that cannot start", t, func() {
		f := newFixture()
		f.backend.InitErr = errors.New("executable file not found")

		err := f.controller.Play(ctx, request("http://media/1.mkv"))
		So(err, ShouldNotBeNil)
		So(f.controller.State(), ShouldEqual, Idle)
		So(f.backend.CallsNamed("loadfile"), ShouldBeEmpty)
	})

	Convey("Given a target that looks like a flag", t, func() {
		f := newFixture()
		err := f.controller.Play(ctx, request("--script=x.lua"))
		So(err, ShouldNotBeNil)
		So(f.backend.Inits(), ShouldEqual, 0)
		So(f.controller.State(), ShouldEqual, Idle)
		So(f.notes.all(), ShouldResemble, []string{"error"})

		_, owned := f.session.Owner()
		So(owned, ShouldBeFalse)
	})

	Convey("Given a started source whose engine crashes", t, func() {
		f := newFixture()
		So(f.controller.Play(ctx, request("http://media/1.mkv")), ShouldBeNil)
		f.ready()
		f.session.Dispatch(engine.TimePosChanged{Seconds: 5})
		f.notes.reset()

		f.backend.Crash()

		Convey("The source is reported stopped and the controller is idle", func() {
			So(eventually(func() bool { return f.notes.count("stopped") == 1 }), ShouldBeTrue)
			So(f.controller.State(), ShouldEqual, Idle)
			So(f.session.Ready(), ShouldBeFalse)
			So(f.notes.all(), ShouldResemble, []string{"stopped"})
			So(f.notes.stopped[0].PositionMs, ShouldEqual, 5000)
		})

		Convey("Playing the same URL again restarts the engine and reloads", func() {
			So(eventually(func() bool { return f.notes.count("stopped") == 1 }), ShouldBeTrue)

			So(f.controller.Play(ctx, request("http://media/1.mkv")), ShouldBeNil)
			So(f.backend.Inits(), ShouldEqual, 2)
			So(f.backend.CallsNamed("loadfile"), ShouldHaveLength, 2)
			So(f.controller.State(), ShouldEqual, Loading)

			f.ready()
			So(f.controller.State(), ShouldEqual, Started)
		})
	})

	Convey("Given the engine fails to decode a loading source", t, func() {
		f := newFixture()
		So(f.controller.Play(ctx, request("http://media/1.mkv")), ShouldBeNil)

		f.session.Dispatch(engine.EndFile{Reason: engine.EndReasonError, Error: "unrecognized file format"})

		So(f.controller.State(), ShouldEqual, Idle)
		So(f.notes.all(), ShouldResemble, []string{"error"})
		So(f.notes.errors[0].Reason, ShouldEqual, "unrecognized file format")

		Convey("A late readiness signal is ignored", func() {
			f.ready()
			So(f.notes.count("playing"), ShouldEqual, 0)
		})
	})
}

func TestPlaySameSource(t *testing.T) {
	ctx := context.Background()

	Convey("Given a started source", t, func() {
		f := newFixture()
		So(f.controller.Play(ctx, request("http://media/1.mkv")), ShouldBeNil)
		f.ready()
		f.backend.Reset()
		f.notes.reset()

		Convey("Playing the same URL with a different audio index only switches audio", func() {
			req := request("http://media/1.mkv")
			req.AudioStreamIndex = mo.Some(5)
			So(f.controller.Play(ctx, req), ShouldBeNil)

			So(f.backend.Sets("aid"), ShouldResemble, []any{2})
			So(f.backend.CallsNamed("loadfile"), ShouldBeEmpty)
			So(f.backend.Sets("sid"), ShouldBeEmpty)
			So(f.notes.all(), ShouldResemble, []string{"playing"})
		})

		Convey("Playing the same URL with unchanged indices issues no engine call", func() {
			So(f.controller.Play(ctx, request("http://media/1.mkv")), ShouldBeNil)
			So(f.backend.Calls(), ShouldBeEmpty)
			So(f.notes.all(), ShouldResemble, []string{"playing"})
		})

		Convey("Playing the same URL with a subtitle selects it immediately", func() {
			req := request("http://media/1.mkv")
			req.SubtitleStreamIndex = mo.Some(6)
			So(f.controller.Play(ctx, req), ShouldBeNil)
			So(f.backend.Sets("sid"), ShouldResemble, []any{1})
		})
	})
}

func TestSelection(t *testing.T) {
	ctx := context.Background()

	Convey("Given a started source", t, func() {
		f := newFixture()
		So(f.controller.Play(ctx, request("http://media/1.mkv")), ShouldBeNil)
		f.ready()

		Convey("Selecting an embedded subtitle then -1 leaves subtitles disabled", func() {
			f.controller.SetSubtitleTrack(ctx, 6)
			So(f.controller.SubtitlesEnabled(), ShouldBeTrue)
			f.controller.SetSubtitleTrack(ctx, -1)

			sids := f.backend.Sets("sid")
			So(sids[len(sids)-2], ShouldEqual, 1)
			So(sids[len(sids)-1], ShouldEqual, "no")
			So(f.controller.SubtitlesEnabled(), ShouldBeFalse)
			So(f.controller.SubtitleStreamIndex(), ShouldEqual, SubtitlesOff)
		})

		Convey("Selecting audio applies at once", func() {
			f.controller.SetAudioTrack(ctx, 5)
			So(f.backend.Sets("aid"), ShouldResemble, []any{1, 2})
		})

		Convey("A rejected selection is logged, not returned", func() {
			f.backend.Failures["set aid"] = errors.New("mpv error: invalid value")
			So(func() { f.controller.SetAudioTrack(ctx, 5) }, ShouldNotPanic)
			So(f.controller.State(), ShouldEqual, Started)
		})

		Convey("An unknown stream is not sent to the engine", func() {
			before := len(f.backend.Sets("aid"))
			f.controller.SetAudioTrack(ctx, 42)
			So(f.backend.Sets("aid"), ShouldHaveLength, before)
		})
	})

	Convey("Given a controller that never played", t, func() {
		f := newFixture()

		Convey("Selecting -1 is queued as off and reads back disabled", func() {
			f.controller.SetSubtitleTrack(ctx, -1)
			So(f.controller.SubtitlesEnabled(), ShouldBeFalse)
			So(f.backend.Calls(), ShouldBeEmpty)
		})
	})
}

func TestStop(t *testing.T) {
	ctx := context.Background()

	Convey("Given a started source", t, func() {
		f := newFixture()
		So(f.controller.Play(ctx, request("http://media/1.mkv")), ShouldBeNil)
		f.ready()
		f.session.Dispatch(engine.TimePosChanged{Seconds: 12})

		Convey("Stop reports the last source and resets state", func() {
			f.controller.Stop(ctx, false)

			So(f.backend.CallsNamed("stop"), ShouldHaveLength, 1)
			So(f.notes.stopped, ShouldResemble, []StopInfo{{URL: "http://media/1.mkv", ItemID: "item-1", PositionMs: 12000}})
			So(f.controller.State(), ShouldEqual, Idle)
			So(f.controller.CurrentTime(), ShouldEqual, 0)

			_, owned := f.session.Owner()
			So(owned, ShouldBeTrue)
		})

		Convey("Stop with destroy releases the subscriptions but not the engine", func() {
			f.controller.Stop(ctx, true)
			f.notes.reset()

			_, owned := f.session.Owner()
			So(owned, ShouldBeFalse)
			So(f.session.Ready(), ShouldBeTrue)

			f.session.Dispatch(engine.PauseChanged{Paused: true})
			So(f.notes.all(), ShouldBeEmpty)

			Convey("And a later play takes ownership again", func() {
				So(f.controller.Play(ctx, request("http://media/1.mkv")), ShouldBeNil)
				f.ready()
				So(f.notes.count("playing"), ShouldEqual, 1)
				So(f.backend.Inits(), ShouldEqual, 1)
			})
		})
	})
}

func TestSharedSession(t *testing.T) {
	ctx := context.Background()

	Convey("Given a video and an audio controller on one session", t, func() {
		f := newFixture()
		audioNotes := &recorder{}
		audio := New(f.session, audioNotes, nil, Options{Name: "audio", Mode: engine.ModeAudio, DefaultVolume: 100})

		So(f.controller.Play(ctx, request("http://media/1.mkv")), ShouldBeNil)
		f.ready()

		Convey("When the audio controller plays it takes over the event stream", func() {
			So(audio.Play(ctx, Request{URL: "http://media/song.flac"}), ShouldBeNil)

			So(f.backend.Inits(), ShouldEqual, 1)
			So(f.backend.Modes(), ShouldResemble, []engine.Mode{engine.ModeVideo, engine.ModeAudio})

			f.session.Dispatch(engine.FileLoaded{})
			So(audioNotes.count("playing"), ShouldEqual, 1)
			So(f.notes.count("playing"), ShouldEqual, 1)

			Convey("And the video controller reloads its source when asked to play it again", func() {
				So(f.controller.Play(ctx, request("http://media/1.mkv")), ShouldBeNil)

				So(f.backend.CallsNamed("loadfile"), ShouldHaveLength, 3)
				So(f.backend.Modes(), ShouldResemble, []engine.Mode{engine.ModeVideo, engine.ModeAudio, engine.ModeVideo})
				name, _ := f.session.Owner()
				So(name, ShouldEqual, "video")
			})

			Convey("And a rejected video play leaves the audio controller attached", func() {
				So(f.controller.Play(ctx, request("--script=x.lua")), ShouldNotBeNil)

				name, _ := f.session.Owner()
				So(name, ShouldEqual, "audio")

				f.session.Dispatch(engine.TimePosChanged{Seconds: 2})
				f.session.Dispatch(engine.EOFReachedChanged{Reached: true})
				So(audioNotes.times, ShouldResemble, []int64{2000})
				So(audioNotes.count("stopped"), ShouldEqual, 1)
				So(audio.State(), ShouldEqual, Idle)
			})

			Convey("And the video controller's destroy does not touch the audio controller", func() {
				f.controller.Stop(ctx, true)
				name, owned := f.session.Owner()
				So(owned, ShouldBeTrue)
				So(name, ShouldEqual, "audio")
			})
		})

		Convey("Only the video controller switches subtitles", func() {
			So(f.controller.SupportsSubtitleTrackSwitching(), ShouldBeTrue)
			So(audio.SupportsSubtitleTrackSwitching(), ShouldBeFalse)
			So(audio.SupportsAudioTrackSwitching(), ShouldBeTrue)
		})
	})
}

func TestReadinessOfSupersededLoad(t *testing.T) {
	ctx := context.Background()

	Convey("Given an engine that numbers its loads", t, func() {
		f := newFixture()
		f.backend.Replies["loadfile"] = map[string]any{"playlist_entry_id": float64(1)}
		So(f.controller.Play(ctx, request("http://media/1.mkv")), ShouldBeNil)
		f.session.Dispatch(engine.StartFile{EntryID: 1})

		Convey("When another source is requested before the first one opened", func() {
			f.backend.Replies["loadfile"] = map[string]any{"playlist_entry_id": float64(2)}
			req := request("http://media/2.mkv")
			req.AudioStreamIndex = mo.Some(5)
			So(f.controller.Play(ctx, req), ShouldBeNil)

			f.session.Dispatch(engine.FileLoaded{})

			Convey("The first source's readiness does not start the second", func() {
				So(f.controller.State(), ShouldEqual, Loading)
				So(f.notes.count("playing"), ShouldEqual, 0)
				So(f.backend.Sets("aid"), ShouldBeEmpty)
				So(f.backend.CallsNamed("get_property"), ShouldBeEmpty)
			})

			Convey("The second source starts once its own entry has loaded", func() {
				f.session.Dispatch(engine.StartFile{EntryID: 2})
				f.session.Dispatch(engine.TrackListChanged{Tracks: engineTracks})
				f.session.Dispatch(engine.FileLoaded{})

				So(f.controller.State(), ShouldEqual, Started)
				So(f.notes.count("playing"), ShouldEqual, 1)
				So(f.backend.Sets("aid"), ShouldResemble, []any{2})
			})
		})
	})
}
