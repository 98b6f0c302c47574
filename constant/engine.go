package constant

// Engine property names observed on every session.
const (
	PropPause         = "pause"
	PropTimePos       = "time-pos"
	PropDuration      = "duration"
	PropSpeed         = "speed"
	PropVolume        = "volume"
	PropMute          = "mute"
	PropEOFReached    = "eof-reached"
	PropCacheDuration = "demuxer-cache-duration"
	PropSeeking       = "seeking"
	PropTrackList     = "track-list"
	PropAudioID       = "aid"
	PropSubtitleID    = "sid"
)

// Engine command names used by the playback controller.
const (
	CmdLoadFile = "loadfile"
	CmdStop     = "stop"
	CmdSeek     = "seek"
	CmdSubAdd   = "sub-add"
)

// TrackDisabled is the engine's sentinel value for "no track selected".
const TrackDisabled = "no"
