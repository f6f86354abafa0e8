// Package audio drives the alarm sound through an external player process.
package audio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Session describes how the alarm should be heard.
type Session struct {
	Volume           float64 // 0..1
	PlayInBackground bool
	IgnoreSilentMode bool
}

// AlarmSession is loud and stays audible regardless of host state.
var AlarmSession = Session{Volume: 1.0, PlayInBackground: true, IgnoreSilentMode: true}

var ErrNotLoaded = errors.New("alarm sound not loaded")

// Command loops an external player (ffplay, paplay, afplay...) until
// stopped. Args may contain {file} and {volume} (0-100) placeholders; when
// no {file} placeholder is present the file is appended.
type Command struct {
	Name   string
	Args   []string
	File   string
	Logger *zap.Logger

	mu      sync.Mutex
	session Session
	bin     string
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewCommand(logger *zap.Logger, commandLine, file string) *Command {
	if logger == nil {
		logger = zap.NewNop()
	}
	fields := strings.Fields(commandLine)
	c := &Command{File: file, Logger: logger, session: AlarmSession}
	if len(fields) > 0 {
		c.Name = fields[0]
		c.Args = fields[1:]
	}
	return c
}

func (c *Command) Configure(s Session) error {
	if s.Volume < 0 || s.Volume > 1 {
		return fmt.Errorf("volume %v out of range", s.Volume)
	}
	c.mu.Lock()
	c.session = s
	c.mu.Unlock()
	c.Logger.Info("audio_session_configured",
		zap.Float64("volume", s.Volume),
		zap.Bool("background", s.PlayInBackground),
		zap.Bool("ignore_silent", s.IgnoreSilentMode),
	)
	return nil
}

// Load resolves the player binary and checks the sound file.
func (c *Command) Load() error {
	if c.Name == "" {
		return errors.New("no alarm player configured")
	}
	bin, err := exec.LookPath(c.Name)
	if err != nil {
		return fmt.Errorf("find player: %w", err)
	}
	if _, err := os.Stat(c.File); err != nil {
		return fmt.Errorf("alarm sound: %w", err)
	}
	c.mu.Lock()
	c.bin = bin
	c.mu.Unlock()
	return nil
}

// Play starts looping playback. Calling it while playing is a no-op.
func (c *Command) Play() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.bin == "" {
		return ErrNotLoaded
	}
	if c.cancel != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.loop(ctx, c.bin, c.argv(), c.done)
	return nil
}

// Stop halts playback and waits for the player to exit. Idempotent.
func (c *Command) Stop() error {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

func (c *Command) Playing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancel != nil
}

func (c *Command) argv() []string {
	vol := strconv.Itoa(int(c.session.Volume*100 + 0.5))
	out := make([]string, 0, len(c.Args)+1)
	hasFile := false
	for _, a := range c.Args {
		if strings.Contains(a, "{file}") {
			hasFile = true
		}
		a = strings.ReplaceAll(a, "{file}", c.File)
		a = strings.ReplaceAll(a, "{volume}", vol)
		out = append(out, a)
	}
	if !hasFile {
		out = append(out, c.File)
	}
	return out
}

func (c *Command) loop(ctx context.Context, bin string, args []string, done chan struct{}) {
	defer close(done)
	for {
		cmd := exec.CommandContext(ctx, bin, args...)
		err := cmd.Run()
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			c.Logger.Warn("audio_player_error", zap.String("player", bin), zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
		}
	}
}

// Nop satisfies the player contract without producing sound.
type Nop struct{}

func (Nop) Configure(Session) error { return nil }
func (Nop) Load() error             { return nil }
func (Nop) Play() error             { return nil }
func (Nop) Stop() error             { return nil }
