// Command cli drives a running API:
//
//	cli add example.com
//	cli rm https://example.com
//	cli interval 30
//	cli start | stop | snooze | status
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/hamed0406/uptimealarm/internal/domain"
)

type client struct {
	base string
	key  string
	http *http.Client
}

func main() {
	api := os.Getenv("API_BASE")
	if api == "" {
		api = "http://localhost:8080"
	}
	c := &client{
		base: strings.TrimRight(api, "/"),
		key:  os.Getenv("API_KEY"),
		http: &http.Client{Timeout: 30 * time.Second},
	}
	if err := c.run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func usage() error {
	return fmt.Errorf("usage: cli add <url> | rm <url> | interval <seconds> | start | stop | snooze | status")
}

func (c *client) run(args []string, w io.Writer) error {
	if len(args) == 0 {
		return usage()
	}
	switch args[0] {
	case "add":
		if len(args) != 2 {
			return usage()
		}
		raw := strings.TrimSpace(args[1])
		if raw != "" && !strings.Contains(raw, "://") {
			raw = "https://" + raw
		}
		u, err := domain.ValidateURL(raw)
		if err != nil {
			return err
		}
		var out struct {
			URL string `json:"url"`
		}
		if err := c.call(http.MethodPost, "/api/endpoints", map[string]string{"url": u}, &out); err != nil {
			return err
		}
		fmt.Fprintln(w, "added", out.URL)
	case "rm":
		if len(args) != 2 {
			return usage()
		}
		if err := c.call(http.MethodDelete, "/api/endpoints?url="+url.QueryEscape(args[1]), nil, nil); err != nil {
			return err
		}
		fmt.Fprintln(w, "removed", args[1])
	case "interval":
		if len(args) != 2 {
			return usage()
		}
		n, err := domain.ParseInterval(args[1])
		if err != nil {
			return err
		}
		var snap domain.Snapshot
		if err := c.call(http.MethodPut, "/api/interval", map[string]int{"seconds": n}, &snap); err != nil {
			return err
		}
		printSnapshot(w, snap)
	case "start", "stop":
		var snap domain.Snapshot
		if err := c.call(http.MethodPost, "/api/monitoring/"+args[0], nil, &snap); err != nil {
			return err
		}
		printSnapshot(w, snap)
	case "snooze":
		var out map[string]string
		if err := c.call(http.MethodPost, "/api/alarm/snooze", nil, &out); err != nil {
			return err
		}
		fmt.Fprintln(w, "alarm:", out["alarm"])
	case "status":
		var snap domain.Snapshot
		if err := c.call(http.MethodGet, "/api/state", nil, &snap); err != nil {
			return err
		}
		printSnapshot(w, snap)
	default:
		return usage()
	}
	return nil
}

func (c *client) call(method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, c.base+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.key != "" {
		req.Header.Set("X-API-Key", c.key)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("contacting API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		if e.Error != "" {
			return fmt.Errorf("%s: %s", resp.Status, e.Error)
		}
		return fmt.Errorf("API returned status: %s", resp.Status)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func printSnapshot(w io.Writer, s domain.Snapshot) {
	mon := "off"
	if s.IsMonitoring {
		mon = "on"
	}
	fmt.Fprintf(w, "monitoring: %s  interval: %ds  alarm: %s\n", mon, s.IntervalValue, s.Alarm)
	if len(s.Endpoints) == 0 {
		fmt.Fprintln(w, "no endpoints")
		return
	}
	for _, u := range s.Endpoints {
		st := domain.StatusFor(s.Statuses, u)
		switch {
		case st == nil:
			fmt.Fprintf(w, "  ?    %s  Not checked yet\n", u)
		case st.IsUp:
			fmt.Fprintf(w, "  UP   %s  %s\n", u, st.LastChecked.Local().Format(time.TimeOnly))
		default:
			msg := ""
			if st.Error != nil {
				msg = *st.Error
			}
			fmt.Fprintf(w, "  DOWN %s  %s\n", u, msg)
		}
	}
}
