package playback

import (
	"math"

	"github.com/mpvbridge/mpvbridge/engine"
	"github.com/mpvbridge/mpvbridge/log"
	"github.com/samber/mo"
)

// bridgedKinds are the engine events a controller subscribes to when it takes ownership.
var bridgedKinds = []engine.Kind{
	engine.KindPause,
	engine.KindTimePos,
	engine.KindDuration,
	engine.KindSpeed,
	engine.KindVolume,
	engine.KindMute,
	engine.KindEOFReached,
	engine.KindCacheDuration,
	engine.KindSeeking,
	engine.KindTrackList,
	engine.KindAudioID,
	engine.KindSubtitleID,
	engine.KindFileLoaded,
	engine.KindEndFile,
	engine.KindPlaybackRestart,
	engine.KindSeek,
	engine.KindStartFile,
	engine.KindEngineLost,
}

func toMs(seconds float64) int64 {
	return int64(math.Round(seconds * 1000))
}

// handle maps one engine event onto controller state and UI notifications.
func (c *Controller) handle(ev engine.Event) {
	switch e := ev.(type) {
	case engine.StartFile:
		c.mu.Lock()
		c.startedEntry = mo.Some(e.EntryID)
		c.mu.Unlock()
	case engine.EngineLost:
		c.onEngineGone("engine went away")
	case engine.FileLoaded:
		c.onReady(false)
	case engine.PlaybackRestart:
		c.onReady(true)
	case engine.PauseChanged:
		c.onPause(e.Paused)
	case engine.SeekingChanged:
		if e.Seeking {
			c.onSeekBegin()
		} else {
			c.onSeekEnd()
		}
	case engine.Seek:
		c.onSeekBegin()
	case engine.TimePosChanged:
		c.onTimePos(e.Seconds)
	case engine.EOFReachedChanged:
		if e.Reached {
			c.onEndOfFile()
		}
	case engine.EndFile:
		c.onEndFile(e)
	case engine.TrackListChanged:
		c.onTrackList(e)
	case engine.DurationChanged:
		c.mu.Lock()
		c.durationMs = toMs(e.Seconds)
		c.mu.Unlock()
	case engine.CacheDurationChanged:
		c.mu.Lock()
		c.cacheMs = toMs(e.Seconds)
		c.mu.Unlock()
	case engine.MuteChanged:
		c.mu.Lock()
		c.muted = e.Muted
		c.mu.Unlock()
	case engine.VolumeChanged:
		c.onVolume(e.Volume)
	case engine.SpeedChanged:
		c.onSpeed(e.Speed)
	case engine.AudioIDChanged:
		log.Debugf("%s: engine audio track is now %v", c.opts.Name, e.ID)
	case engine.SubtitleIDChanged:
		log.Debugf("%s: engine subtitle track is now %v", c.opts.Name, e.ID)
	}
}

// onReady handles the engine's readiness signals. The first one for a source runs the
// one-time setup; a playback restart after a seek ends the waiting state.
func (c *Controller) onReady(restart bool) {
	c.mu.Lock()
	state, waiting, seen := c.state, c.waiting, c.startedEntry
	if state == Started && restart && waiting {
		c.waiting = false
	}
	c.mu.Unlock()

	switch {
	case state == Loading:
		c.sourceReady(seen)
	case state == Started && restart && waiting:
		c.notifier.Playing()
	}
}

func (c *Controller) onPause(paused bool) {
	c.mu.Lock()
	state := c.state
	if state != Idle {
		c.paused = paused
	}
	c.mu.Unlock()

	switch {
	case state == Idle:
	case paused:
		c.notifier.Pause()
	case state == Started:
		c.notifier.Unpause()
		c.notifier.Playing()
	}
}

func (c *Controller) onSeekBegin() {
	c.mu.Lock()
	emit := c.state == Started && !c.waiting
	if emit {
		c.waiting = true
	}
	c.mu.Unlock()

	if emit {
		c.notifier.Waiting()
	}
}

func (c *Controller) onSeekEnd() {
	c.mu.Lock()
	emit := c.state == Started && c.waiting
	if emit {
		c.waiting = false
	}
	c.mu.Unlock()

	if emit {
		c.notifier.Playing()
	}
}

func (c *Controller) onTimePos(seconds float64) {
	ms := toMs(seconds)

	c.mu.Lock()
	started := c.state == Started
	if started {
		c.timeMs = ms
	}
	c.mu.Unlock()

	if started {
		c.notifier.TimeUpdate(ms)
	}
}

// onEndOfFile ends a started source exactly once.
func (c *Controller) onEndOfFile() {
	c.mu.Lock()
	if c.state != Started {
		c.mu.Unlock()
		return
	}
	c.state = Idle
	c.generation++
	info := StopInfo{URL: c.request.URL, ItemID: c.request.ItemID, PositionMs: c.timeMs}
	c.mu.Unlock()

	log.Infof("%s: reached end of %s", c.opts.Name, info.URL)
	c.notifier.Stopped(info)
}

func (c *Controller) onEndFile(e engine.EndFile) {
	switch e.Reason {
	case engine.EndReasonEOF:
		c.onEndOfFile()
	case engine.EndReasonError:
		c.mu.Lock()
		if c.state == Idle {
			c.mu.Unlock()
			return
		}
		c.state = Idle
		c.generation++
		url := c.request.URL
		c.mu.Unlock()

		reason := e.Error
		if reason == "" {
			reason = "playback failed"
		}
		log.Errorf("%s: engine failed to play %s: %s", c.opts.Name, url, reason)
		c.notifier.Error(&DecodeError{URL: url, Reason: reason})
	case engine.EndReasonQuit:
		c.onEngineGone("engine quit")
	default:
		log.Debugf("%s: file ended (%s)", c.opts.Name, e.Reason)
	}
}

// onEngineGone ends a loading or started source when the engine itself stops. The UI
// sees it as a stop.
func (c *Controller) onEngineGone(why string) {
	c.mu.Lock()
	if c.state == Idle {
		c.mu.Unlock()
		return
	}
	c.state = Idle
	c.generation++
	c.waiting = false
	info := StopInfo{URL: c.request.URL, ItemID: c.request.ItemID, PositionMs: c.timeMs}
	c.mu.Unlock()

	c.queue.Clear()
	log.Warnf("%s: %s while playing %s", c.opts.Name, why, info.URL)
	c.notifier.Stopped(info)
}

func (c *Controller) onTrackList(e engine.TrackListChanged) {
	// The engine clears the list while switching files.
	if len(e.Tracks) == 0 || c.State() == Idle {
		return
	}
	c.correlator.Rebuild(e.Tracks)
}

// onVolume tracks the engine volume once a source runs and saves it for later sources.
func (c *Controller) onVolume(v float64) {
	c.mu.Lock()
	started := c.state == Started
	if started {
		c.volume = mo.Some(v)
	}
	c.mu.Unlock()

	if !started || c.prefs == nil || !c.opts.RestoreVolume {
		return
	}
	if err := c.prefs.SetVolume(v); err != nil {
		log.Warnf("%s: save volume: %v", c.opts.Name, err)
	}
}

func (c *Controller) onSpeed(r float64) {
	c.mu.Lock()
	started := c.state == Started
	if started {
		c.rate = mo.Some(r)
	}
	c.mu.Unlock()

	if !started || c.prefs == nil || !c.opts.RememberRate {
		return
	}
	if err := c.prefs.SetPlaybackRate(r); err != nil {
		log.Warnf("%s: save playback rate: %v", c.opts.Name, err)
	}
}
