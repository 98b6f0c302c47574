package playback

// Notifier receives the lifecycle notifications the web UI consumes.
type Notifier interface {
	Playing()
	Pause()
	Unpause()
	Stopped(StopInfo)
	TimeUpdate(ms int64)
	Waiting()
	Error(*DecodeError)
}

// Discard ignores every notification.
type Discard struct{}

func (Discard) Playing() {}
func (Discard) Pause() {}
func (Discard) Unpause() {}
func (Discard) Stopped(StopInfo) {}
func (Discard) TimeUpdate(int64) {}
func (Discard) Waiting() {}
func (Discard) Error(*DecodeError) {}
