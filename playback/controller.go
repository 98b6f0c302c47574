// Package playback drives one logical player on top of the shared engine session.
//
// A Controller translates library-indexed requests from the web UI into engine calls,
// defers track selections until the engine has opened the source, and turns engine
// events into UI lifecycle notifications.
package playback

import (
	"context"
	"fmt"
	"sync"

	"github.com/mpvbridge/mpvbridge/constant"
	"github.com/mpvbridge/mpvbridge/engine"
	"github.com/mpvbridge/mpvbridge/log"
	"github.com/mpvbridge/mpvbridge/pending"
	"github.com/mpvbridge/mpvbridge/track"
	"github.com/samber/lo"
	"github.com/samber/mo"
)

// Engine is the part of the engine session a controller uses.
type Engine interface {
	EnsureReady(ctx context.Context, mode engine.Mode) error
	Command(ctx context.Context, name string, args ...any) (any, error)
	SetProperty(ctx context.Context, name string, value any) error
	GetProperty(ctx context.Context, name string) (any, error)
	Attach(name string) *engine.Attachment
	Ready() bool
}

// Controller is one player (video or audio-only) bound to the shared engine.
type Controller struct {
	opts       Options
	engine     Engine
	notifier   Notifier
	prefs      Preferences
	correlator *track.Correlator
	queue      pending.Queue

	// applyMu serializes everything that decides between queueing a selection and
	// applying it, so a flush never interleaves with a selection call.
	applyMu sync.Mutex

	mu         sync.Mutex
	state      State
	generation uint64
	request    Request
	attachment *engine.Attachment

	// entry is the playlist entry the engine assigned to the current load, and
	// startedEntry the last one it announced with start-file.
	entry        mo.Option[int64]
	startedEntry mo.Option[int64]

	desiredAudio    mo.Option[int]
	desiredSubtitle int

	timeMs     int64
	durationMs int64
	cacheMs    int64
	paused     bool
	waiting    bool
	muted      bool
	volume     mo.Option[float64]
	rate       mo.Option[float64]
}

// New creates a controller. prefs may be nil.
func New(eng Engine, notifier Notifier, prefs Preferences, opts Options) *Controller {
	if notifier == nil {
		notifier = Discard{}
	}
	if opts.Name == "" {
		opts.Name = opts.Mode.String()
	}

	return &Controller{
		opts:            opts,
		engine:          eng,
		notifier:        notifier,
		prefs:           prefs,
		correlator:      track.NewCorrelator(),
		desiredSubtitle: SubtitlesOff,
	}
}

// Name returns the name the controller attaches to the engine with.
func (c *Controller) Name() string {
	return c.opts.Name
}

// Correlator exposes the controller's track correlation for diagnostics.
func (c *Controller) Correlator() *track.Correlator {
	return c.correlator
}

// Play opens req.URL, or only re-selects tracks when that source is already playing.
// Load failures are reported to the notifier and returned. A target the engine must
// not be handed is refused before the controller touches the engine.
func (c *Controller) Play(ctx context.Context, req Request) error {
	c.applyMu.Lock()
	defer c.applyMu.Unlock()

	target, err := engine.SanitizeTarget(req.URL)
	if err != nil {
		log.Errorf("%s: refusing %q: %v", c.opts.Name, req.URL, err)
		c.notifier.Error(&DecodeError{URL: req.URL, Reason: err.Error()})
		return fmt.Errorf("load %s: %w", req.URL, err)
	}

	c.mu.Lock()
	if c.state == Started && req.URL == c.request.URL && c.ownsEngineLocked() && c.engine.Ready() {
		return c.replay(ctx, req)
	}

	c.generation++
	gen := c.generation
	c.state = Loading
	c.request = req
	c.entry = mo.None[int64]()
	c.desiredAudio = mo.None[int]()
	c.desiredSubtitle = SubtitlesOff
	c.timeMs, c.durationMs, c.cacheMs = 0, 0, 0
	c.paused, c.waiting = false, false
	c.mu.Unlock()

	log.Infof("%s: loading %s", c.opts.Name, req.URL)

	c.queue.Clear()
	c.correlator.SetStreams(req.MediaSource.MediaStreams)

	if err := c.engine.EnsureReady(ctx, c.opts.Mode); err != nil {
		return c.failLoad(gen, req.URL, err)
	}
	if !c.isCurrent(gen) {
		log.Debugf("%s: %s superseded while the engine started", c.opts.Name, req.URL)
		return nil
	}

	c.attach()

	if idx, ok := req.desiredAudio().Get(); ok {
		c.selectAudio(ctx, idx)
	}
	c.selectSubtitle(ctx, req.desiredSubtitle())

	args := []any{target, "replace"}
	if req.StartSeconds > 0 {
		args = append(args, -1, fmt.Sprintf("start=%g", req.StartSeconds))
	}
	reply, err := c.engine.Command(ctx, constant.CmdLoadFile, args...)
	if err != nil {
		return c.failLoad(gen, req.URL, err)
	}

	c.mu.Lock()
	current := c.generation == gen
	if id, ok := engine.LoadedEntry(reply); ok && current {
		c.entry = mo.Some(id)
	}
	c.mu.Unlock()
	if !current {
		return nil
	}

	// The engine may still be paused from the previous source.
	if err := c.engine.SetProperty(ctx, constant.PropPause, false); err != nil {
		log.Debugf("%s: unpause after load: %v", c.opts.Name, err)
	}
	return nil
}

// replay is the same-source path of Play. It is entered with c.mu held.
func (c *Controller) replay(ctx context.Context, req Request) error {
	prevAudio, prevSubtitle := c.desiredAudio, c.desiredSubtitle
	c.request = req
	c.mu.Unlock()

	c.correlator.UpdateStreams(req.MediaSource.MediaStreams)

	if idx, ok := req.desiredAudio().Get(); ok && prevAudio != mo.Some(idx) {
		c.selectAudio(ctx, idx)
	}
	if idx := req.desiredSubtitle(); idx != prevSubtitle {
		c.selectSubtitle(ctx, idx)
	}

	log.Debugf("%s: %s already playing, tracks updated in place", c.opts.Name, req.URL)
	c.notifier.Playing()
	return nil
}

func (c *Controller) failLoad(gen uint64, url string, cause error) error {
	c.mu.Lock()
	current := c.generation == gen
	if current {
		c.state = Idle
	}
	c.mu.Unlock()

	err := fmt.Errorf("load %s: %w", url, cause)
	log.Error(err)
	if current {
		c.notifier.Error(&DecodeError{URL: url, Reason: cause.Error()})
	}
	return err
}

func (c *Controller) isCurrent(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation == gen
}

// ownsEngineLocked reports whether this controller still receives the engine's events.
// Another controller playing in between means the source must be reloaded.
func (c *Controller) ownsEngineLocked() bool {
	return c.attachment != nil && c.attachment.Active()
}

// attach takes ownership of the engine's event stream unless this controller still holds it.
func (c *Controller) attach() {
	c.mu.Lock()
	att := c.attachment
	c.mu.Unlock()

	if att != nil && att.Active() {
		return
	}

	att = c.engine.Attach(c.opts.Name)
	for _, kind := range bridgedKinds {
		att.Subscribe(kind, c.handle)
	}

	c.mu.Lock()
	c.attachment = att
	c.mu.Unlock()
}

// SetAudioTrack selects the library audio stream index. Failures are logged.
func (c *Controller) SetAudioTrack(ctx context.Context, index int) {
	c.applyMu.Lock()
	defer c.applyMu.Unlock()
	c.selectAudio(ctx, index)
}

func (c *Controller) selectAudio(ctx context.Context, index int) {
	c.mu.Lock()
	c.desiredAudio = mo.Some(index)
	started := c.state == Started
	c.mu.Unlock()

	id, ok := c.correlator.Resolve(index, track.Audio)

	if !started {
		sel := pending.AudioSelection{LibraryIndex: index}
		if ok {
			sel.EngineID = mo.Some(id)
		}
		c.queue.SetAudio(sel)
		log.Debugf("%s: audio stream %d pending", c.opts.Name, index)
		return
	}

	if !ok {
		log.Warnf("%s: audio stream %d has no engine track", c.opts.Name, index)
		return
	}
	if err := c.engine.SetProperty(ctx, constant.PropAudioID, id); err != nil {
		log.Warnf("%s: select audio stream %d: %v", c.opts.Name, index, err)
	}
}

// SetSubtitleTrack selects the library subtitle stream index; a negative index
// disables subtitles. Failures are logged.
func (c *Controller) SetSubtitleTrack(ctx context.Context, index int) {
	c.applyMu.Lock()
	defer c.applyMu.Unlock()
	c.selectSubtitle(ctx, index)
}

func (c *Controller) selectSubtitle(ctx context.Context, index int) {
	index = normalizeSubtitle(index)

	c.mu.Lock()
	c.desiredSubtitle = index
	started := c.state == Started
	req := c.request
	c.mu.Unlock()

	sel := c.subtitleSelection(req, index)

	if !started {
		c.queue.SetSubtitle(sel)
		log.Debugf("%s: subtitle %s pending", c.opts.Name, sel)
		return
	}

	if err := c.applySubtitle(ctx, sel); err != nil {
		log.Warnf("%s: select subtitle %s: %v", c.opts.Name, sel, err)
	}
}

func (c *Controller) subtitleSelection(req Request, index int) pending.SubtitleSelection {
	if index == SubtitlesOff {
		return pending.Off()
	}

	if stream, ok := c.correlator.Stream(track.Subtitle, index); ok && stream.IsExternalDelivery() {
		return pending.External(index, req.resolve(stream.DeliveryURL))
	}

	id, _ := c.correlator.Resolve(index, track.Subtitle)
	return pending.Embedded(index, id)
}

func (c *Controller) applyAudio(ctx context.Context, sel pending.AudioSelection) error {
	id, ok := c.correlator.Resolve(sel.LibraryIndex, track.Audio)
	if !ok {
		if id, ok = sel.EngineID.Get(); !ok {
			return errUnresolved
		}
	}
	return c.engine.SetProperty(ctx, constant.PropAudioID, id)
}

func (c *Controller) applySubtitle(ctx context.Context, sel pending.SubtitleSelection) error {
	switch sel.Kind {
	case pending.SubtitleOff:
		return c.engine.SetProperty(ctx, constant.PropSubtitleID, constant.TrackDisabled)
	case pending.SubtitleExternal:
		_, err := c.engine.Command(ctx, constant.CmdSubAdd, sel.URL, "select")
		return err
	default:
		id, ok := c.correlator.Resolve(sel.LibraryIndex, track.Subtitle)
		if !ok {
			id = sel.EngineID
		}
		if id <= 0 {
			return errUnresolved
		}
		return c.engine.SetProperty(ctx, constant.PropSubtitleID, id)
	}
}

// sourceReady runs the one-time setup of a source the first time the engine reports it open.
// seen is the entry the engine was opening when it sent the signal; a signal for another
// entry than the current load belongs to a previous source and is dropped.
func (c *Controller) sourceReady(seen mo.Option[int64]) {
	c.applyMu.Lock()
	defer c.applyMu.Unlock()

	c.mu.Lock()
	if c.state != Loading {
		c.mu.Unlock()
		return
	}
	if want, ok := c.entry.Get(); ok && seen != mo.Some(want) {
		c.mu.Unlock()
		log.Debugf("%s: ignoring readiness of playlist entry %d, waiting for %d", c.opts.Name, seen.OrElse(0), want)
		return
	}
	c.state = Started
	gen := c.generation
	volume, rate := c.volume, c.rate
	c.mu.Unlock()

	ctx := context.Background()
	log.Infof("%s: source ready", c.opts.Name)

	if !c.correlator.HasEngineTracks() {
		c.refreshTracks(ctx)
	}

	batch := c.queue.Drain()
	if err := batch.Apply(
		func(sel pending.AudioSelection) error { return c.applyAudio(ctx, sel) },
		func(sel pending.SubtitleSelection) error { return c.applySubtitle(ctx, sel) },
	); err != nil {
		log.Warnf("%s: %v", c.opts.Name, err)
	}

	c.restorePreferences(ctx, volume, rate)

	if !c.isCurrent(gen) {
		return
	}
	c.notifier.Playing()
}

func (c *Controller) refreshTracks(ctx context.Context) {
	v, err := c.engine.GetProperty(ctx, constant.PropTrackList)
	if err != nil {
		log.Debugf("%s: fetch track list: %v", c.opts.Name, err)
		return
	}
	tracks, err := engine.DecodeTrackList(v)
	if err != nil {
		log.Warnf("%s: %v", c.opts.Name, err)
		return
	}
	c.correlator.Rebuild(tracks)
}

// restorePreferences applies the volume and rate a fresh source starts with. Values the
// UI set explicitly win over saved ones.
func (c *Controller) restorePreferences(ctx context.Context, volume, rate mo.Option[float64]) {
	if volume.IsAbsent() {
		saved := mo.None[float64]()
		if c.opts.RestoreVolume && c.prefs != nil {
			if v, ok := c.prefs.Volume(); ok {
				saved = mo.Some(v)
			}
		}
		volume = mo.Some(saved.OrElse(c.opts.DefaultVolume))
	}
	if err := c.engine.SetProperty(ctx, constant.PropVolume, volume.MustGet()); err != nil {
		log.Debugf("%s: restore volume: %v", c.opts.Name, err)
	}

	if rate.IsAbsent() && c.opts.RememberRate && c.prefs != nil {
		if r, ok := c.prefs.PlaybackRate(); ok {
			rate = mo.Some(r)
		}
	}
	if r, ok := rate.Get(); ok {
		if err := c.engine.SetProperty(ctx, constant.PropSpeed, r); err != nil {
			log.Debugf("%s: restore playback rate: %v", c.opts.Name, err)
		}
	}
}

// Stop stops playback and reports the last source. With destroy the controller also
// gives up its engine subscriptions; the engine itself keeps running.
func (c *Controller) Stop(ctx context.Context, destroy bool) {
	c.mu.Lock()
	info := StopInfo{URL: c.request.URL, ItemID: c.request.ItemID, PositionMs: c.timeMs}
	c.generation++
	c.state = Idle
	c.request = Request{}
	c.desiredAudio = mo.None[int]()
	c.desiredSubtitle = SubtitlesOff
	c.timeMs, c.durationMs, c.cacheMs = 0, 0, 0
	c.paused, c.waiting = false, false
	att := c.attachment
	if destroy {
		c.attachment = nil
	}
	c.mu.Unlock()

	c.queue.Clear()

	if _, err := c.engine.Command(ctx, constant.CmdStop); err != nil {
		log.Debugf("%s: stop: %v", c.opts.Name, err)
	}

	log.Infof("%s: stopped %s", c.opts.Name, info.URL)
	c.notifier.Stopped(info)

	if destroy && att != nil {
		att.Detach()
	}
}

// SeekTo jumps to an absolute position in milliseconds.
func (c *Controller) SeekTo(ctx context.Context, ms int64) error {
	_, err := c.engine.Command(ctx, constant.CmdSeek, float64(ms)/1000, "absolute")
	return err
}

// Pause pauses playback.
func (c *Controller) Pause(ctx context.Context) error {
	return c.engine.SetProperty(ctx, constant.PropPause, true)
}

// Resume resumes playback.
func (c *Controller) Resume(ctx context.Context) error {
	return c.engine.SetProperty(ctx, constant.PropPause, false)
}

// SetVolume sets the volume (0-100). Before a source starts, the value is kept and
// applied on start.
func (c *Controller) SetVolume(ctx context.Context, v float64) error {
	v = lo.Clamp(v, 0, 100)

	c.mu.Lock()
	c.volume = mo.Some(v)
	started := c.state == Started
	c.mu.Unlock()

	if !started {
		return nil
	}
	return c.engine.SetProperty(ctx, constant.PropVolume, v)
}

// SetPlaybackRate sets the playback speed. Before a source starts, the value is kept
// and applied on start.
func (c *Controller) SetPlaybackRate(ctx context.Context, r float64) error {
	if r <= 0 {
		return fmt.Errorf("invalid playback rate %g", r)
	}

	c.mu.Lock()
	c.rate = mo.Some(r)
	started := c.state == Started
	c.mu.Unlock()

	if !started {
		return nil
	}
	return c.engine.SetProperty(ctx, constant.PropSpeed, r)
}

// SupportsAudioTrackSwitching is always true.
func (c *Controller) SupportsAudioTrackSwitching() bool {
	return true
}

// SupportsSubtitleTrackSwitching is true for the video controller only.
func (c *Controller) SupportsSubtitleTrackSwitching() bool {
	return c.opts.Mode == engine.ModeVideo
}

// State returns the lifecycle state of the current source.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SourceURL returns the URL of the current source, if any.
func (c *Controller) SourceURL() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.request.URL
}

// CurrentTime returns the playback position in milliseconds.
func (c *Controller) CurrentTime() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timeMs
}

// Duration returns the media length in milliseconds, 0 when unknown.
func (c *Controller) Duration() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.durationMs
}

// BufferedMs returns the position up to which media is buffered, in milliseconds.
func (c *Controller) BufferedMs() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timeMs + c.cacheMs
}

// Paused reports whether playback is paused.
func (c *Controller) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

// Muted reports whether audio is muted.
func (c *Controller) Muted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.muted
}

// Volume returns the last known volume.
func (c *Controller) Volume() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.volume.OrElse(c.opts.DefaultVolume)
}

// PlaybackRate returns the last known playback speed.
func (c *Controller) PlaybackRate() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rate.OrElse(1)
}

// AudioStreamIndex returns the selected library audio stream, if any.
func (c *Controller) AudioStreamIndex() mo.Option[int] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.desiredAudio
}

// SubtitleStreamIndex returns the selected library subtitle stream, or SubtitlesOff.
func (c *Controller) SubtitleStreamIndex() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.desiredSubtitle
}

// SubtitlesEnabled reports whether a subtitle stream is selected.
func (c *Controller) SubtitlesEnabled() bool {
	return c.SubtitleStreamIndex() != SubtitlesOff
}
