// Package track models media tracks on both sides of the bridge and correlates them.
//
// Library streams are numbered by the media server (stable, sparse indices) while the
// engine numbers tracks sequentially at demux time. The Correlator reconciles the two.
package track

import (
	"fmt"
	"strings"
)

// Type classifies a track or stream.
type Type string

const (
	Audio    Type = "Audio"
	Subtitle Type = "Subtitle"
	Video    Type = "Video"
)

// ParseEngineType maps the engine's track-list "type" field onto a Type.
func ParseEngineType(s string) (Type, bool) {
	switch strings.ToLower(s) {
	case "audio":
		return Audio, true
	case "sub", "subtitle":
		return Subtitle, true
	case "video":
		return Video, true
	default:
		return "", false
	}
}

// DeliveryMethod describes how the library delivers a subtitle stream.
type DeliveryMethod string

const (
	DeliveryEmbedded DeliveryMethod = "Embed"
	DeliveryExternal DeliveryMethod = "External"
	DeliveryHls      DeliveryMethod = "Hls"
	DeliveryEncode   DeliveryMethod = "Encode"
)

// EngineTrack is one track as enumerated by the engine after it opened a source.
type EngineTrack struct {
	Type     Type   `json:"type"`
	ID       int    `json:"id"`
	Language string `json:"lang,omitempty"`
	Codec    string `json:"codec,omitempty"`
	Title    string `json:"title,omitempty"`
	External bool   `json:"external"`
	Selected bool   `json:"selected"`
}

func (t EngineTrack) String() string {
	return fmt.Sprintf("%s#%d(%s/%s)", t.Type, t.ID, t.Language, t.Codec)
}

// LibraryStream is one stream as declared by the library for the item being played.
// Field names follow the media server's JSON.
type LibraryStream struct {
	Type           Type           `json:"Type"`
	Index          int            `json:"Index"`
	IsExternal     bool           `json:"IsExternal"`
	DeliveryMethod DeliveryMethod `json:"DeliveryMethod,omitempty"`
	DeliveryURL    string         `json:"DeliveryUrl,omitempty"`
	Language       string         `json:"Language,omitempty"`
	Codec          string         `json:"Codec,omitempty"`
	Title          string         `json:"DisplayTitle,omitempty"`
	IsDefault      bool           `json:"IsDefault,omitempty"`
}

// IsExternalDelivery reports whether the stream must be side-loaded from its delivery URL.
func (s LibraryStream) IsExternalDelivery() bool {
	return s.DeliveryMethod == DeliveryExternal && s.DeliveryURL != ""
}

// Key identifies a library stream inside a TrackMap.
type Key struct {
	Type  Type
	Index int
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%d", k.Type, k.Index)
}

// TrackMap maps library streams to engine track ids.
type TrackMap map[Key]int
