// Package alarm models the audible failure alarm as an edge-triggered state
// machine.
//
// The alarm sounds when "some endpoint is down while monitoring is on"
// becomes true. Snoozing silences it until that condition has cleared at
// least once; stopping monitoring always returns it to Idle.
package alarm

type State int

const (
	Idle State = iota
	Sounding
	Snoozed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Sounding:
		return "sounding"
	case Snoozed:
		return "snoozed"
	}
	return "unknown"
}

type EventKind int

const (
	EventEvaluate EventKind = iota
	EventSnooze
	EventStop
)

// Event is one input to the machine. Failure and Monitoring are only read
// for EventEvaluate.
type Event struct {
	Kind       EventKind
	Failure    bool
	Monitoring bool
}

func Evaluate(failure, monitoring bool) Event {
	return Event{Kind: EventEvaluate, Failure: failure, Monitoring: monitoring}
}

func SnoozeEvent() Event { return Event{Kind: EventSnooze} }

func StopEvent() Event { return Event{Kind: EventStop} }

// Effect is the playback command produced by a transition.
type Effect int

const (
	NoEffect Effect = iota
	StartPlayback
	StopPlayback
)

// Model is the full machine state. PrevCombined is the last observed
// failure&&monitoring value; a snooze forces it false.
type Model struct {
	State        State
	PrevCombined bool
}

// Next is the pure transition function.
func Next(m Model, ev Event) (Model, Effect) {
	switch ev.Kind {
	case EventStop:
		return Model{State: Idle}, StopPlayback

	case EventSnooze:
		if m.State != Sounding {
			return m, NoEffect
		}
		return Model{State: Snoozed}, StopPlayback

	case EventEvaluate:
		combined := ev.Failure && ev.Monitoring
		switch m.State {
		case Idle:
			if combined && !m.PrevCombined {
				return Model{State: Sounding, PrevCombined: true}, StartPlayback
			}
			return Model{State: Idle, PrevCombined: combined}, NoEffect
		case Sounding:
			if !combined {
				return Model{State: Idle}, StopPlayback
			}
			return Model{State: Sounding, PrevCombined: true}, NoEffect
		case Snoozed:
			if !combined {
				return Model{State: Idle}, NoEffect
			}
			return m, NoEffect
		}
	}
	return m, NoEffect
}
