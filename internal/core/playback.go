package core

import (
	"cloudamp/internal/audio"
)

// Action is what the orchestrator must do after a transition.
type Action int

const (
	// ActionNone: observational update only.
	ActionNone Action = iota
	// ActionAdvance: the track finished; play the next one using the
	// current play mode and direction.
	ActionAdvance
	// ActionRecover: the device failed. Advance unless the selection was
	// user-forced, in which case the failure is reported instead.
	ActionRecover
)

// Machine mirrors device events into observable playback state. It is a
// pure transition core: the device adapter feeds it typed events and the
// orchestrator acts on the returned Action, which keeps the machine
// testable with synthetic event sequences.
type Machine struct {
	state    AudioPlaybackState
	autoplay bool
}

func NewMachine() *Machine {
	return &Machine{state: AudioPlaybackState{Phase: PhaseIdle}}
}

// State returns the current snapshot.
func (m *Machine) State() AudioPlaybackState {
	return m.state
}

// StartLoading notes that a new song was selected and the device is
// rebinding. autoplay records whether playback should start once ready.
func (m *Machine) StartLoading(autoplay bool) AudioPlaybackState {
	m.autoplay = autoplay
	m.state = AudioPlaybackState{Phase: PhaseLoading}
	return m.state
}

// Reset returns the machine to idle with no bound source.
func (m *Machine) Reset() AudioPlaybackState {
	m.autoplay = false
	m.state = AudioPlaybackState{Phase: PhaseIdle}
	return m.state
}

// SetPlaying flips between Playing and Paused on user toggle. It has no
// effect in transient or idle phases.
func (m *Machine) SetPlaying(playing bool) AudioPlaybackState {
	switch m.state.Phase {
	case PhasePlaying, PhasePaused:
		if playing {
			m.state.Phase = PhasePlaying
		} else {
			m.state.Phase = PhasePaused
		}
	case PhaseLoading:
		m.autoplay = playing
	default:
	}
	return m.state
}

// NoteSeek records a direct position write.
func (m *Machine) NoteSeek(sec float64) AudioPlaybackState {
	m.state.CurrentTimeSec = sec
	return m.state
}

// Apply folds one device event into the state and reports the follow-up
// action. Progress and ready signals are observational only and never
// drive a phase transition on their own.
func (m *Machine) Apply(ev audio.Event) (AudioPlaybackState, Action) {
	switch ev.Kind {
	case audio.EventProgress:
		m.state.LoadPercentage = clampLoadPercentage(ev.BufferedSec, ev.DurationSec)

	case audio.EventCanPlay:
		m.state.LoadPercentage = clampLoadPercentage(ev.BufferedSec, ev.DurationSec)
		m.state.DurationSec = ev.DurationSec
		if m.state.Phase == PhaseLoading {
			if m.autoplay {
				m.state.Phase = PhasePlaying
			} else {
				m.state.Phase = PhasePaused
			}
		}

	case audio.EventTimeUpdate:
		m.state.CurrentTimeSec = ev.PositionSec
		if ev.DurationSec > 0 {
			m.state.DurationSec = ev.DurationSec
		}

	case audio.EventAbort:
		m.state.CurrentTimeSec = 0

	case audio.EventEnded:
		m.state.Phase = PhaseEnded
		m.state.CurrentTimeSec = 0
		return m.state, ActionAdvance

	case audio.EventError:
		m.state.Phase = PhaseError
		return m.state, ActionRecover
	}

	return m.state, ActionNone
}

// clampLoadPercentage computes buffered-range end over total duration as a
// percentage clamped to [0,100]. A zero or undefined duration yields 0.
func clampLoadPercentage(buffered, duration float64) float64 {
	if duration <= 0 {
		return 0
	}
	pct := buffered / duration * 100
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}
