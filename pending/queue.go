// Package pending holds track selections requested before the engine confirmed a source is loaded.
//
// There is one slot per track type. A slot is either empty or holds the most recent
// selection; Flush replays audio before subtitle and always leaves both slots empty.
package pending

import (
	"errors"
	"fmt"
	"sync"

	"github.com/samber/mo"
)

// AudioSelection is a deferred audio track choice.
// EngineID is absent when the library index could not be resolved at selection time.
type AudioSelection struct {
	LibraryIndex int
	EngineID     mo.Option[int]
}

// SubtitleKind tags the SubtitleSelection variant.
type SubtitleKind int

const (
	SubtitleOff SubtitleKind = iota
	SubtitleEmbedded
	SubtitleExternal
)

func (k SubtitleKind) String() string {
	switch k {
	case SubtitleOff:
		return "off"
	case SubtitleEmbedded:
		return "embedded"
	case SubtitleExternal:
		return "external"
	default:
		return fmt.Sprintf("SubtitleKind(%d)", int(k))
	}
}

// SubtitleSelection is a deferred subtitle choice: Off, Embedded{index, id} or External{index, url}.
type SubtitleSelection struct {
	Kind         SubtitleKind
	LibraryIndex int
	EngineID     int
	URL          string
}

// Off disables subtitles.
func Off() SubtitleSelection {
	return SubtitleSelection{Kind: SubtitleOff, LibraryIndex: -1}
}

// Embedded selects an engine subtitle track by id.
func Embedded(libraryIndex, engineID int) SubtitleSelection {
	return SubtitleSelection{Kind: SubtitleEmbedded, LibraryIndex: libraryIndex, EngineID: engineID}
}

// External side-loads and selects a subtitle file.
func External(libraryIndex int, url string) SubtitleSelection {
	return SubtitleSelection{Kind: SubtitleExternal, LibraryIndex: libraryIndex, URL: url}
}

func (s SubtitleSelection) String() string {
	switch s.Kind {
	case SubtitleEmbedded:
		return fmt.Sprintf("embedded(%d->%d)", s.LibraryIndex, s.EngineID)
	case SubtitleExternal:
		return fmt.Sprintf("external(%d %s)", s.LibraryIndex, s.URL)
	default:
		return s.Kind.String()
	}
}

// Queue is the two-slot pending selection store. The zero value is ready to use.
type Queue struct {
	mu       sync.Mutex
	audio    mo.Option[AudioSelection]
	subtitle mo.Option[SubtitleSelection]
}

// SetAudio overwrites the audio slot.
func (q *Queue) SetAudio(sel AudioSelection) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.audio = mo.Some(sel)
}

// SetSubtitle overwrites the subtitle slot.
func (q *Queue) SetSubtitle(sel SubtitleSelection) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.subtitle = mo.Some(sel)
}

// Audio returns the audio slot.
func (q *Queue) Audio() mo.Option[AudioSelection] {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.audio
}

// Subtitle returns the subtitle slot.
func (q *Queue) Subtitle() mo.Option[SubtitleSelection] {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.subtitle
}

// Empty reports whether both slots are empty.
func (q *Queue) Empty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.audio.IsAbsent() && q.subtitle.IsAbsent()
}

// Clear empties both slots without applying them.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.audio = mo.None[AudioSelection]()
	q.subtitle = mo.None[SubtitleSelection]()
}

// Drain empties both slots and returns their former contents as a Batch.
func (q *Queue) Drain() Batch {
	q.mu.Lock()
	defer q.mu.Unlock()

	b := Batch{Audio: q.audio, Subtitle: q.subtitle}
	q.audio = mo.None[AudioSelection]()
	q.subtitle = mo.None[SubtitleSelection]()
	return b
}

// Flush drains the queue and applies the drained selections.
func (q *Queue) Flush(applyAudio func(AudioSelection) error, applySubtitle func(SubtitleSelection) error) error {
	return q.Drain().Apply(applyAudio, applySubtitle)
}

// Batch is the content of a drained Queue.
type Batch struct {
	Audio    mo.Option[AudioSelection]
	Subtitle mo.Option[SubtitleSelection]
}

// Apply runs audio first, then subtitle. A failing apply does not stop the other one;
// failures are joined into the returned error.
func (b Batch) Apply(applyAudio func(AudioSelection) error, applySubtitle func(SubtitleSelection) error) error {
	var errs []error

	if sel, ok := b.Audio.Get(); ok {
		if err := applyAudio(sel); err != nil {
			errs = append(errs, fmt.Errorf("apply pending audio %d: %w", sel.LibraryIndex, err))
		}
	}

	if sel, ok := b.Subtitle.Get(); ok {
		if err := applySubtitle(sel); err != nil {
			errs = append(errs, fmt.Errorf("apply pending subtitle %s: %w", sel, err))
		}
	}

	return errors.Join(errs...)
}
