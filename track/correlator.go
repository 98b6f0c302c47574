package track

import (
	"errors"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/mpvbridge/mpvbridge/log"
	"github.com/samber/lo"
)

// ErrUnresolved marks a library stream that correlation could not pair with an engine track.
// It is a warning: resolution falls back to the stream's ordinal position.
var ErrUnresolved = errors.New("track: correlation unresolved")

var correlatedTypes = []Type{Audio, Subtitle, Video}

// snapshot is an immutable view published by the Correlator.
type snapshot struct {
	streams   []LibraryStream
	tracks    []EngineTrack
	mapping   TrackMap
	hasTracks bool
}

// Result summarizes one correlation pass.
type Result struct {
	Mapped     int
	Unresolved []Key
}

// Row is one line of a correlation report.
type Row struct {
	Stream   LibraryStream
	EngineID int
	Resolved bool
}

// Correlator owns the TrackMap for the currently open source.
// Readers never observe a partially rebuilt map.
type Correlator struct {
	mu    sync.Mutex // serializes writers
	state atomic.Pointer[snapshot]
}

// NewCorrelator returns a correlator with no streams and no engine tracks.
func NewCorrelator() *Correlator {
	c := &Correlator{}
	c.state.Store(&snapshot{mapping: TrackMap{}})
	return c
}

// SetStreams installs the library stream list of a new source and forgets every engine track.
func (c *Correlator) SetStreams(streams []LibraryStream) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state.Store(&snapshot{
		streams: append([]LibraryStream(nil), streams...),
		mapping: TrackMap{},
	})
}

// UpdateStreams replaces the library stream list of the current source, keeping the engine
// tracks already discovered and recomputing the map against them.
func (c *Correlator) UpdateStreams(streams []LibraryStream) Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev := c.state.Load()
	next := &snapshot{
		streams:   append([]LibraryStream(nil), streams...),
		tracks:    prev.tracks,
		hasTracks: prev.hasTracks,
	}
	result := Result{}
	if next.hasTracks {
		next.mapping, result = correlate(next.streams, next.tracks)
	} else {
		next.mapping = TrackMap{}
	}
	c.state.Store(next)
	return result
}

// Rebuild clears the map and recomputes it from a fresh engine track list.
func (c *Correlator) Rebuild(tracks []EngineTrack) Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev := c.state.Load()
	mapping, result := correlate(prev.streams, tracks)
	c.state.Store(&snapshot{
		streams:   prev.streams,
		tracks:    append([]EngineTrack(nil), tracks...),
		mapping:   mapping,
		hasTracks: true,
	})

	for _, k := range result.Unresolved {
		log.Warnf("%v: %s stream %d has no engine track, positional fallback applies", ErrUnresolved, k.Type, k.Index)
	}
	log.Debugf("correlated %d of %d engine tracks", result.Mapped, len(tracks))
	return result
}

// HasEngineTracks reports whether a track list arrived for the current source.
func (c *Correlator) HasEngineTracks() bool {
	return c.state.Load().hasTracks
}

// Streams returns the library streams of the current source.
func (c *Correlator) Streams() []LibraryStream {
	return c.state.Load().streams
}

// Stream looks up a library stream by type and index.
func (c *Correlator) Stream(t Type, index int) (LibraryStream, bool) {
	return lo.Find(c.state.Load().streams, func(s LibraryStream) bool {
		return s.Type == t && s.Index == index
	})
}

// Map returns a copy of the current TrackMap.
func (c *Correlator) Map() TrackMap {
	return lo.Assign(TrackMap{}, c.state.Load().mapping)
}

// Resolve returns the engine id for a library stream. Unmapped streams fall back to their
// 1-based ordinal among non-external streams of the same type; ok is false when that
// ordinal is not positive.
func (c *Correlator) Resolve(index int, t Type) (id int, ok bool) {
	snap := c.state.Load()
	if id, found := snap.mapping[Key{Type: t, Index: index}]; found {
		return id, true
	}

	id = positional(snap.streams, index, t)
	if id <= 0 {
		return 0, false
	}
	log.Debugf("%s stream %d resolved positionally to engine id %d", t, index, id)
	return id, true
}

// Snapshot returns one row per non-external library stream with its resolution.
func (c *Correlator) Snapshot() []Row {
	snap := c.state.Load()
	rows := make([]Row, 0, len(snap.streams))
	for _, s := range snap.streams {
		if s.IsExternal {
			continue
		}
		id, found := snap.mapping[Key{Type: s.Type, Index: s.Index}]
		rows = append(rows, Row{Stream: s, EngineID: id, Resolved: found})
	}
	return rows
}

func positional(streams []LibraryStream, index int, t Type) int {
	ordinal := 0
	for _, s := range streams {
		if s.Type != t || s.IsExternal {
			continue
		}
		ordinal++
		if s.Index == index {
			return ordinal
		}
	}
	return 0
}

func correlate(streams []LibraryStream, tracks []EngineTrack) (TrackMap, Result) {
	mapping := TrackMap{}
	result := Result{}

	for _, t := range correlatedTypes {
		lib := lo.Filter(streams, func(s LibraryStream, _ int) bool {
			return s.Type == t && !s.IsExternal
		})
		eng := lo.Filter(tracks, func(e EngineTrack, _ int) bool {
			return e.Type == t && !e.External
		})

		if len(lib) == len(eng) {
			for i, s := range lib {
				mapping[Key{Type: t, Index: s.Index}] = eng[i].ID
			}
			result.Mapped += len(lib)
			continue
		}

		used := make([]bool, len(eng))
		for _, s := range lib {
			best, bestScore := -1, 0
			for i, e := range eng {
				if used[i] {
					continue
				}
				if score := matchScore(s, e); score > bestScore {
					best, bestScore = i, score
				}
			}

			k := Key{Type: t, Index: s.Index}
			if best < 0 {
				result.Unresolved = append(result.Unresolved, k)
				continue
			}
			used[best] = true
			mapping[k] = eng[best].ID
			result.Mapped++
		}
	}

	return mapping, result
}

// matchScore rates how well an engine track fits a library stream: +2 when either
// language tag is a case-insensitive prefix of the other, +1 for an identical codec.
func matchScore(s LibraryStream, e EngineTrack) int {
	score := 0
	if s.Language != "" && e.Language != "" {
		a, b := strings.ToLower(s.Language), strings.ToLower(e.Language)
		if strings.HasPrefix(a, b) || strings.HasPrefix(b, a) {
			score += 2
		}
	}
	if s.Codec != "" && s.Codec == e.Codec {
		score++
	}
	return score
}
