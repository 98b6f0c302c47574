package settings

import (
	"path/filepath"
	"testing"

	"github.com/mpvbridge/mpvbridge/filesystem"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	filesystem.SetMemMapFs()
}

func TestStore(t *testing.T) {
	Convey("Given a store with no saved file", t, func() {
		path := filepath.Join("/settings", t.Name(), "settings.json")
		store := New(path)

		Convey("Nothing is saved yet", func() {
			_, ok := store.Volume()
			So(ok, ShouldBeFalse)
			_, ok = store.PlaybackRate()
			So(ok, ShouldBeFalse)
		})

		Convey("When the volume and rate are saved", func() {
			So(store.SetVolume(42), ShouldBeNil)
			So(store.SetPlaybackRate(1.5), ShouldBeNil)

			Convey("They are read back", func() {
				v, ok := store.Volume()
				So(ok, ShouldBeTrue)
				So(v, ShouldEqual, 42)

				r, ok := store.PlaybackRate()
				So(ok, ShouldBeTrue)
				So(r, ShouldEqual, 1.5)
			})

			Convey("A new store on the same file sees them", func() {
				v, ok := New(path).Volume()
				So(ok, ShouldBeTrue)
				So(v, ShouldEqual, 42)
			})

			Convey("Updating one field keeps the other", func() {
				So(store.SetVolume(10), ShouldBeNil)
				r, _ := store.PlaybackRate()
				So(r, ShouldEqual, 1.5)
			})
		})
	})
}
