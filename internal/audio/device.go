// Package audio abstracts the output device behind a small event-emitting
// interface so the playback state machine stays free of device-API
// specifics and can be driven by synthetic events in tests.
package audio

// EventKind discriminates device notifications.
type EventKind int

const (
	// EventProgress reports buffering progress; observational only.
	EventProgress EventKind = iota
	// EventCanPlay fires when the source is decoded far enough to start.
	EventCanPlay
	// EventTimeUpdate carries the advancing playback position.
	EventTimeUpdate
	// EventAbort fires when a source is torn down before finishing.
	EventAbort
	// EventEnded fires at the natural end of a track.
	EventEnded
	// EventError fires on an unrecoverable device failure.
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventCanPlay:
		return "canplay"
	case EventTimeUpdate:
		return "timeupdate"
	case EventAbort:
		return "abort"
	case EventEnded:
		return "ended"
	case EventError:
		return "error"
	default:
		return "progress"
	}
}

// Event is one typed device notification.
type Event struct {
	Kind        EventKind
	BufferedSec float64
	DurationSec float64
	PositionSec float64
	Err         error
}

// Device is the audio output collaborator. Load tears down any existing
// binding and rebinds to the new source; all completion is observed via
// Events rather than return values.
type Device interface {
	Load(url string, autoplay bool) error
	Play()
	Pause()
	SeekTo(sec float64)
	SetVolume(v float64)
	Events() <-chan Event
	Close() error
}
