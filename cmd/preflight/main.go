// cmd/preflight/main.go
package main

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/hamed0406/uptimealarm/internal/config"
	"github.com/hamed0406/uptimealarm/internal/domain"
)

func main() {
	failed := false
	fail := func(msg string) {
		fmt.Fprintln(os.Stderr, "✖", msg)
		failed = true
	}
	warn := func(msg string) { fmt.Fprintln(os.Stderr, "⚠", msg) }
	ok := func(msg string) { fmt.Println("✔", msg) }

	cfg := config.FromEnv()
	ok("API_ADDR=" + cfg.Addr)

	if len(cfg.AdminAPIKeys) == 0 {
		warn("ADMIN_API_KEYS is empty; mutating routes are open to anyone who can reach API_ADDR.")
	}
	if len(cfg.PublicAPIKeys) == 0 && len(cfg.AdminAPIKeys) > 0 {
		warn("PUBLIC_API_KEYS is empty; read routes and the WebSocket need an admin key.")
	}
	for name, v := range map[string]string{"ADMIN_API_KEYS": os.Getenv("ADMIN_API_KEYS"), "PUBLIC_API_KEYS": os.Getenv("PUBLIC_API_KEYS")} {
		if strings.Contains(v, " ") {
			warn(name + " contains spaces; use comma-separated with no spaces, e.g. key1,key2")
		}
	}

	if cfg.DatabaseURL == "" {
		ok("DATABASE_URL empty; using file store " + cfg.StorePath())
	} else {
		ok("DATABASE_URL present")
	}

	if _, err := os.Stat(cfg.AlarmSound); err != nil {
		warn("ALARM_SOUND " + cfg.AlarmSound + " not readable; the alarm will be visual only.")
	} else {
		ok("ALARM_SOUND=" + cfg.AlarmSound)
	}
	if f := strings.Fields(cfg.AlarmPlayer); len(f) == 0 {
		warn("ALARM_PLAYER empty")
	} else if _, err := exec.LookPath(f[0]); err != nil {
		warn("ALARM_PLAYER " + f[0] + " not found in PATH")
	} else {
		ok("ALARM_PLAYER=" + f[0])
	}

	if cfg.SeedFile != "" {
		seed, err := config.LoadSeed(cfg.SeedFile)
		if err != nil {
			fail("SEED_FILE: " + err.Error())
		} else {
			for _, e := range seed.Endpoints {
				if _, err := domain.ValidateURL(e); err != nil {
					fail(fmt.Sprintf("SEED_FILE endpoint %q: %v", e, err))
				}
			}
			if seed.Interval != 0 {
				if err := domain.ValidateInterval(seed.Interval); err != nil {
					fail(fmt.Sprintf("SEED_FILE interval %d: %v", seed.Interval, err))
				}
			}
		}
	}

	if len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*" {
		warn("ALLOWED_ORIGINS is *; any site can call the API from a browser.")
	} else {
		ok("ALLOWED_ORIGINS=" + strings.Join(cfg.AllowedOrigins, ","))
	}

	if failed {
		os.Exit(1)
	}
	ok("preflight passed")
}
