package alarm

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/uptimealarm/internal/audio"
	"github.com/hamed0406/uptimealarm/internal/notify"
)

// Player is the audio device: one sound, looped.
type Player interface {
	Configure(audio.Session) error
	Load() error
	Play() error
	Stop() error
}

const (
	AlertTitle = "API Failure Detected"
	AlertText  = "One or more APIs are not responding correctly."
)

// Machine applies transitions and performs their side effects. Device and
// notifier errors are logged and never change the resulting state.
type Machine struct {
	log      *zap.Logger
	player   Player
	notifier notify.Notifier

	mu       sync.Mutex
	model    Model
	prepared bool
	loaded   bool
	onChange []func(State)
}

func NewMachine(log *zap.Logger, player Player, notifier notify.Notifier) *Machine {
	if log == nil {
		log = zap.NewNop()
	}
	if player == nil {
		player = audio.Nop{}
	}
	return &Machine{log: log, player: player, notifier: notifier}
}

// OnChange registers fn to run after every state change.
func (m *Machine) OnChange(fn func(State)) {
	m.mu.Lock()
	m.onChange = append(m.onChange, fn)
	m.mu.Unlock()
}

// Prepare configures the playback session and loads the sound once.
func (m *Machine) Prepare() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prepareLocked()
}

func (m *Machine) prepareLocked() {
	if m.prepared {
		return
	}
	m.prepared = true
	if err := m.player.Configure(audio.AlarmSession); err != nil {
		m.log.Warn("alarm_configure_error", zap.Error(err))
	}
	if err := m.player.Load(); err != nil {
		m.log.Warn("alarm_load_error", zap.Error(err))
		return
	}
	m.loaded = true
}

func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.model.State
}

func (m *Machine) Evaluate(failure, monitoring bool) State {
	return m.apply(Evaluate(failure, monitoring))
}

func (m *Machine) Snooze() State { return m.apply(SnoozeEvent()) }

func (m *Machine) Stop() State { return m.apply(StopEvent()) }

func (m *Machine) apply(ev Event) State {
	m.mu.Lock()
	prev := m.model.State
	next, eff := Next(m.model, ev)
	m.model = next
	m.perform(eff)
	hooks := append([]func(State){}, m.onChange...)
	m.mu.Unlock()

	if next.State == prev {
		return next.State
	}
	m.log.Info("alarm_transition",
		zap.String("from", prev.String()),
		zap.String("to", next.State.String()),
	)
	if next.State == Sounding && m.notifier != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := m.notifier.Send(ctx, AlertTitle, AlertText); err != nil {
			m.log.Warn("alarm_notify_error", zap.Error(err))
		}
		cancel()
	}
	for _, fn := range hooks {
		fn(next.State)
	}
	return next.State
}

func (m *Machine) perform(eff Effect) {
	switch eff {
	case StartPlayback:
		m.prepareLocked()
		if !m.loaded {
			return
		}
		if err := m.player.Play(); err != nil {
			m.log.Warn("alarm_play_error", zap.Error(err))
		}
	case StopPlayback:
		if err := m.player.Stop(); err != nil {
			m.log.Warn("alarm_stop_error", zap.Error(err))
		}
	}
}
