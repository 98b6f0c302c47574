package playback

import (
	"net/url"
	"strings"

	"github.com/mpvbridge/mpvbridge/track"
	"github.com/samber/mo"
)

// MediaSource is the library's description of one playable version of an item.
type MediaSource struct {
	ID                         string                `json:"Id"`
	Container                  string                `json:"Container,omitempty"`
	MediaStreams               []track.LibraryStream `json:"MediaStreams"`
	DefaultAudioStreamIndex    *int                  `json:"DefaultAudioStreamIndex,omitempty"`
	DefaultSubtitleStreamIndex *int                  `json:"DefaultSubtitleStreamIndex,omitempty"`
}

// Request asks a controller to play, or to re-select tracks on, a source.
type Request struct {
	URL          string
	ItemID       string
	Title        string
	StartSeconds float64
	MediaSource  MediaSource

	// AudioStreamIndex and SubtitleStreamIndex override the media source defaults.
	// A negative subtitle index disables subtitles.
	AudioStreamIndex    mo.Option[int]
	SubtitleStreamIndex mo.Option[int]

	// ServerBaseURL resolves relative subtitle delivery URLs.
	ServerBaseURL string
}

// desiredAudio is the audio stream the request wants, if it names one.
func (r Request) desiredAudio() mo.Option[int] {
	if idx, ok := r.AudioStreamIndex.Get(); ok {
		return mo.Some(idx)
	}
	if r.MediaSource.DefaultAudioStreamIndex != nil {
		return mo.Some(*r.MediaSource.DefaultAudioStreamIndex)
	}
	return mo.None[int]()
}

// desiredSubtitle is the subtitle stream the request wants; -1 means off.
func (r Request) desiredSubtitle() int {
	if idx, ok := r.SubtitleStreamIndex.Get(); ok {
		return normalizeSubtitle(idx)
	}
	if r.MediaSource.DefaultSubtitleStreamIndex != nil {
		return normalizeSubtitle(*r.MediaSource.DefaultSubtitleStreamIndex)
	}
	return SubtitlesOff
}

// resolve joins a relative delivery URL to the server base URL.
func (r Request) resolve(ref string) string {
	if r.ServerBaseURL == "" || strings.Contains(ref, "://") {
		return ref
	}

	base, err := url.Parse(r.ServerBaseURL)
	if err != nil {
		return ref
	}
	rel, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}
	rel.Path = strings.TrimPrefix(rel.Path, "/")
	return base.ResolveReference(rel).String()
}

// SubtitlesOff is the subtitle index that disables subtitles.
const SubtitlesOff = -1

func normalizeSubtitle(idx int) int {
	if idx < 0 {
		return SubtitlesOff
	}
	return idx
}

// StopInfo identifies the source that just stopped.
type StopInfo struct {
	URL        string `json:"url"`
	ItemID     string `json:"itemId,omitempty"`
	PositionMs int64  `json:"positionMs"`
}
