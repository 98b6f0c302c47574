package engine

import (
	"encoding/json"
	"fmt"

	"github.com/mpvbridge/mpvbridge/constant"
	"github.com/mpvbridge/mpvbridge/log"
	"github.com/mpvbridge/mpvbridge/track"
	"github.com/samber/mo"
)

// Kind names an event variant. Property events use the engine's property name.
type Kind string

const (
	KindPause           Kind = constant.PropPause
	KindTimePos         Kind = constant.PropTimePos
	KindDuration        Kind = constant.PropDuration
	KindSpeed           Kind = constant.PropSpeed
	KindVolume          Kind = constant.PropVolume
	KindMute            Kind = constant.PropMute
	KindEOFReached      Kind = constant.PropEOFReached
	KindCacheDuration   Kind = constant.PropCacheDuration
	KindSeeking         Kind = constant.PropSeeking
	KindTrackList       Kind = constant.PropTrackList
	KindAudioID         Kind = constant.PropAudioID
	KindSubtitleID      Kind = constant.PropSubtitleID
	KindFileLoaded      Kind = "file-loaded"
	KindEndFile         Kind = "end-file"
	KindPlaybackRestart Kind = "playback-restart"
	KindSeek            Kind = "seek"
	KindStartFile       Kind = "start-file"
	// KindEngineLost is raised by the session, never by the engine.
	KindEngineLost Kind = "engine-lost"
)

// ObservedProperties lists every property a session asks the engine to report.
var ObservedProperties = []string{
	constant.PropPause,
	constant.PropTimePos,
	constant.PropDuration,
	constant.PropSpeed,
	constant.PropVolume,
	constant.PropMute,
	constant.PropEOFReached,
	constant.PropCacheDuration,
	constant.PropSeeking,
	constant.PropTrackList,
	constant.PropAudioID,
	constant.PropSubtitleID,
}

// Event is a decoded engine notification. The set of implementations is closed.
type Event interface {
	Kind() Kind
	event()
}

type (
	PauseChanged struct{ Paused bool }
	// TimePosChanged carries the playback position in seconds.
	TimePosChanged struct{ Seconds float64 }
	// DurationChanged carries the media length in seconds.
	DurationChanged      struct{ Seconds float64 }
	SpeedChanged         struct{ Speed float64 }
	VolumeChanged        struct{ Volume float64 }
	MuteChanged          struct{ Muted bool }
	EOFReachedChanged    struct{ Reached bool }
	CacheDurationChanged struct{ Seconds float64 }
	SeekingChanged       struct{ Seeking bool }
	TrackListChanged     struct{ Tracks []track.EngineTrack }
	// AudioIDChanged is None when audio is disabled.
	AudioIDChanged struct{ ID mo.Option[int] }
	// SubtitleIDChanged is None when subtitles are disabled.
	SubtitleIDChanged struct{ ID mo.Option[int] }
	// StartFile announces that the engine began opening a playlist entry.
	// EntryID is zero when the engine does not report entry ids.
	StartFile  struct{ EntryID int64 }
	FileLoaded struct{}
	// EndFile reports why the current source stopped. Reason is one of
	// eof, stop, quit, error, redirect; Error is set when Reason is error.
	EndFile struct {
		Reason string
		Error  string
	}
	PlaybackRestart struct{}
	Seek            struct{}
	// EngineLost is dispatched once when the engine process or its connection goes away
	// without a teardown.
	EngineLost struct{}
)

// End file reasons.
const (
	EndReasonEOF      = "eof"
	EndReasonStop     = "stop"
	EndReasonQuit     = "quit"
	EndReasonError    = "error"
	EndReasonRedirect = "redirect"
)

func (PauseChanged) Kind() Kind { return KindPause }
func (TimePosChanged) Kind() Kind { return KindTimePos }
func (DurationChanged) Kind() Kind { return KindDuration }
func (SpeedChanged) Kind() Kind { return KindSpeed }
func (VolumeChanged) Kind() Kind { return KindVolume }
func (MuteChanged) Kind() Kind { return KindMute }
func (EOFReachedChanged) Kind() Kind { return KindEOFReached }
func (CacheDurationChanged) Kind() Kind { return KindCacheDuration }
func (SeekingChanged) Kind() Kind { return KindSeeking }
func (TrackListChanged) Kind() Kind { return KindTrackList }
func (AudioIDChanged) Kind() Kind { return KindAudioID }
func (SubtitleIDChanged) Kind() Kind { return KindSubtitleID }
func (FileLoaded) Kind() Kind { return KindFileLoaded }
func (EndFile) Kind() Kind { return KindEndFile }
func (PlaybackRestart) Kind() Kind { return KindPlaybackRestart }
func (Seek) Kind() Kind { return KindSeek }
func (StartFile) Kind() Kind { return KindStartFile }
func (EngineLost) Kind() Kind { return KindEngineLost }

func (PauseChanged) event() {}
func (TimePosChanged) event() {}
func (DurationChanged) event() {}
func (SpeedChanged) event() {}
func (VolumeChanged) event() {}
func (MuteChanged) event() {}
func (EOFReachedChanged) event() {}
func (CacheDurationChanged) event() {}
func (SeekingChanged) event() {}
func (TrackListChanged) event() {}
func (AudioIDChanged) event() {}
func (SubtitleIDChanged) event() {}
func (FileLoaded) event() {}
func (EndFile) event() {}
func (PlaybackRestart) event() {}
func (Seek) event() {}
func (StartFile) event() {}
func (EngineLost) event() {}

// message is one newline-delimited JSON object read from the engine.
// It is either a reply (RequestID set) or an event (Event set).
type message struct {
	RequestID *int64          `json:"request_id,omitempty"`
	Error     string          `json:"error,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Event     string          `json:"event,omitempty"`
	Name      string          `json:"name,omitempty"`
	Reason    string          `json:"reason,omitempty"`
	FileError string          `json:"file_error,omitempty"`
	EntryID   int64           `json:"playlist_entry_id,omitempty"`
}

// DecodeEvent turns one raw engine event line into an Event.
// ok is false for events the bridge does not consume and for malformed payloads.
func DecodeEvent(line []byte) (Event, bool) {
	var m message
	if err := json.Unmarshal(line, &m); err != nil {
		log.Tracef("dropping undecodable engine line: %v", err)
		return nil, false
	}
	return decode(m)
}

func decode(m message) (Event, bool) {
	switch m.Event {
	case "property-change":
		return decodeProperty(m.Name, m.Data)
	case string(KindStartFile):
		return StartFile{EntryID: m.EntryID}, true
	case string(KindFileLoaded):
		return FileLoaded{}, true
	case string(KindEndFile):
		return EndFile{Reason: m.Reason, Error: m.FileError}, true
	case string(KindPlaybackRestart):
		return PlaybackRestart{}, true
	case string(KindSeek):
		return Seek{}, true
	default:
		log.Tracef("ignoring engine event %q", m.Event)
		return nil, false
	}
}

func decodeProperty(name string, data json.RawMessage) (Event, bool) {
	// The engine reports unavailable properties as a missing or null data field.
	if len(data) == 0 || string(data) == "null" {
		log.Tracef("property %s unavailable", name)
		return nil, false
	}

	var (
		ev  Event
		err error
	)

	switch name {
	case constant.PropPause:
		var v bool
		err = json.Unmarshal(data, &v)
		ev = PauseChanged{Paused: v}
	case constant.PropTimePos:
		var v float64
		err = json.Unmarshal(data, &v)
		ev = TimePosChanged{Seconds: v}
	case constant.PropDuration:
		var v float64
		err = json.Unmarshal(data, &v)
		ev = DurationChanged{Seconds: v}
	case constant.PropSpeed:
		var v float64
		err = json.Unmarshal(data, &v)
		ev = SpeedChanged{Speed: v}
	case constant.PropVolume:
		var v float64
		err = json.Unmarshal(data, &v)
		ev = VolumeChanged{Volume: v}
	case constant.PropMute:
		var v bool
		err = json.Unmarshal(data, &v)
		ev = MuteChanged{Muted: v}
	case constant.PropEOFReached:
		var v bool
		err = json.Unmarshal(data, &v)
		ev = EOFReachedChanged{Reached: v}
	case constant.PropCacheDuration:
		var v float64
		err = json.Unmarshal(data, &v)
		ev = CacheDurationChanged{Seconds: v}
	case constant.PropSeeking:
		var v bool
		err = json.Unmarshal(data, &v)
		ev = SeekingChanged{Seeking: v}
	case constant.PropTrackList:
		var tracks []track.EngineTrack
		tracks, err = DecodeTrackList(data)
		ev = TrackListChanged{Tracks: tracks}
	case constant.PropAudioID:
		ev = AudioIDChanged{ID: decodeTrackID(data)}
	case constant.PropSubtitleID:
		ev = SubtitleIDChanged{ID: decodeTrackID(data)}
	default:
		log.Tracef("ignoring property %s", name)
		return nil, false
	}

	if err != nil {
		log.Tracef("dropping property %s: %v", name, err)
		return nil, false
	}
	return ev, true
}

// LoadedEntry extracts the playlist entry id from a loadfile reply. Engines that
// predate entry ids reply without data and ok is false.
func LoadedEntry(reply any) (id int64, ok bool) {
	data, isMap := reply.(map[string]any)
	if !isMap {
		return 0, false
	}
	v, isNum := data["playlist_entry_id"].(float64)
	if !isNum || v <= 0 {
		return 0, false
	}
	return int64(v), true
}

// decodeTrackID reads aid/sid, which the engine reports as a number, false, or "no".
func decodeTrackID(data json.RawMessage) mo.Option[int] {
	var id int
	if err := json.Unmarshal(data, &id); err != nil || id <= 0 {
		return mo.None[int]()
	}
	return mo.Some(id)
}

type rawTrack struct {
	ID       int    `json:"id"`
	Type     string `json:"type"`
	Lang     string `json:"lang"`
	Codec    string `json:"codec"`
	Title    string `json:"title"`
	External bool   `json:"external"`
	Selected bool   `json:"selected"`
}

// DecodeTrackList converts a track-list value into engine tracks. It accepts raw JSON
// as well as the generic value returned by GetProperty. Entries of unknown type are skipped.
func DecodeTrackList(v any) ([]track.EngineTrack, error) {
	var data []byte
	switch t := v.(type) {
	case json.RawMessage:
		data = t
	case []byte:
		data = t
	default:
		var err error
		if data, err = json.Marshal(v); err != nil {
			return nil, fmt.Errorf("encode track list: %w", err)
		}
	}

	var raw []rawTrack
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode track list: %w", err)
	}

	tracks := make([]track.EngineTrack, 0, len(raw))
	for _, r := range raw {
		typ, ok := track.ParseEngineType(r.Type)
		if !ok {
			continue
		}
		tracks = append(tracks, track.EngineTrack{
			Type:     typ,
			ID:       r.ID,
			Language: r.Lang,
			Codec:    r.Codec,
			Title:    r.Title,
			External: r.External,
			Selected: r.Selected,
		})
	}
	return tracks, nil
}
