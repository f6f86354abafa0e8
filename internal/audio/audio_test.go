package audio

import (
	"bytes"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"
)

func TestCommand_ArgvPlaceholders(t *testing.T) {
	c := NewCommand(nil, "ffplay -nodisp -volume {volume} {file}", "/tmp/alarm.mp3")
	got := c.argv()
	want := []string{"-nodisp", "-volume", "100", "/tmp/alarm.mp3"}
	if len(got) != len(want) {
		t.Fatalf("argv=%v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("argv=%v want %v", got, want)
		}
	}

	c2 := NewCommand(nil, "paplay", "/tmp/a.wav")
	if a := c2.argv(); len(a) != 1 || a[0] != "/tmp/a.wav" {
		t.Fatalf("file should be appended, got %v", a)
	}
}

func TestCommand_PlayBeforeLoad(t *testing.T) {
	c := NewCommand(nil, "sh", "x")
	if err := c.Play(); !errors.Is(err, ErrNotLoaded) {
		t.Fatalf("want ErrNotLoaded, got %v", err)
	}
	if err := c.Stop(); err != nil {
		t.Fatalf("stop when idle should be a no-op: %v", err)
	}
}

func TestCommand_LoadErrors(t *testing.T) {
	if err := NewCommand(nil, "", "x").Load(); err == nil {
		t.Fatal("want error with no player")
	}
	if err := NewCommand(nil, "definitely-not-a-player-binary", "x").Load(); err == nil {
		t.Fatal("want error for missing binary")
	}
}

func TestCommand_LoopsUntilStopped(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	file := filepath.Join(t.TempDir(), "alarm.log")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	// each "playback" appends one line to the sound file
	c := NewCommand(nil, "sh -c", file)
	c.Args = []string{"-c", `echo x >> "$0"`, "{file}"}
	if err := c.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := c.Play(); err != nil {
		t.Fatalf("Play: %v", err)
	}
	if err := c.Play(); err != nil {
		t.Fatalf("second Play must be a no-op: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for {
		b, _ := os.ReadFile(file)
		if bytes.Count(b, []byte("x")) >= 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("player did not loop")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if err := c.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if c.Playing() {
		t.Fatal("still playing after Stop")
	}
	before, _ := os.ReadFile(file)
	time.Sleep(50 * time.Millisecond)
	after, _ := os.ReadFile(file)
	if len(after) != len(before) {
		t.Fatalf("player kept running after Stop")
	}
}
