package host

import (
	"fmt"

	"github.com/mpvbridge/mpvbridge/playback"
	"github.com/samber/mo"
)

// MessageType names a command sent by the web UI.
type MessageType string

const (
	MsgPlay             MessageType = "play"
	MsgStop             MessageType = "stop"
	MsgSetAudioTrack    MessageType = "setAudioTrack"
	MsgSetSubtitleTrack MessageType = "setSubtitleTrack"
	MsgSeek             MessageType = "seek"
	MsgPause            MessageType = "pause"
	MsgResume           MessageType = "resume"
	MsgSetVolume        MessageType = "setVolume"
	MsgSetPlaybackRate  MessageType = "setPlaybackRate"
)

// MediaTypeAudio routes a command to the audio-only player.
const MediaTypeAudio = "Audio"

// Command is one message from the web UI. Which fields are read depends on Type.
type Command struct {
	Type      MessageType `json:"type" jsonschema:"enum=play,enum=stop,enum=setAudioTrack,enum=setSubtitleTrack,enum=seek,enum=pause,enum=resume,enum=setVolume,enum=setPlaybackRate"`
	MediaType string      `json:"mediaType,omitempty" jsonschema:"description=Audio selects the audio-only player"`

	URL                 string                `json:"url,omitempty"`
	ItemID              string                `json:"itemId,omitempty"`
	Title               string                `json:"title,omitempty"`
	StartSeconds        float64               `json:"startSeconds,omitempty"`
	MediaSource         *playback.MediaSource `json:"mediaSource,omitempty"`
	AudioStreamIndex    *int                  `json:"audioStreamIndex,omitempty"`
	SubtitleStreamIndex *int                  `json:"subtitleStreamIndex,omitempty"`
	ServerBaseURL       string                `json:"serverBaseUrl,omitempty"`

	// Index is the library stream index of setAudioTrack and setSubtitleTrack.
	Index *int `json:"index,omitempty"`
	// PositionMs is the seek target.
	PositionMs int64 `json:"positionMs,omitempty"`
	// Value is the volume (0-100) or the playback rate.
	Value float64 `json:"value,omitempty"`
	// Destroy releases the player's engine subscriptions on stop.
	Destroy bool `json:"destroy,omitempty"`
}

// Request converts a play command into a playback request.
func (c Command) Request() (playback.Request, error) {
	if c.URL == "" {
		return playback.Request{}, fmt.Errorf("%s: url is required", c.Type)
	}

	req := playback.Request{
		URL:                 c.URL,
		ItemID:              c.ItemID,
		Title:               c.Title,
		StartSeconds:        c.StartSeconds,
		AudioStreamIndex:    mo.PointerToOption(c.AudioStreamIndex),
		SubtitleStreamIndex: mo.PointerToOption(c.SubtitleStreamIndex),
		ServerBaseURL:       c.ServerBaseURL,
	}
	if c.MediaSource != nil {
		req.MediaSource = *c.MediaSource
	}
	return req, nil
}

// NotificationType names a lifecycle notification sent to the web UI.
type NotificationType string

const (
	NotePlaying    NotificationType = "playing"
	NotePause      NotificationType = "pause"
	NoteUnpause    NotificationType = "unpause"
	NoteStopped    NotificationType = "stopped"
	NoteTimeUpdate NotificationType = "timeupdate"
	NoteError      NotificationType = "error"
	NoteWaiting    NotificationType = "waiting"
	// NoteRejected answers a command that could not be carried out. Only the sender receives it.
	NoteRejected NotificationType = "rejected"
)

// Notification is one message to the web UI.
type Notification struct {
	Type      NotificationType `json:"type"`
	MediaType string           `json:"mediaType,omitempty"`

	PositionMs *int64 `json:"positionMs,omitempty"`
	URL        string `json:"url,omitempty"`
	ItemID     string `json:"itemId,omitempty"`

	// ErrorKind is mediadecodeerror for error notifications.
	ErrorKind string `json:"errorKind,omitempty"`
	Reason    string `json:"reason,omitempty"`
}
