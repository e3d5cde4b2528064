package remotesync

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Scheduler drives one SyncRemote call per configured remote at the next
// elapse of its periodicity, re-scheduling after each run. There's no
// calendar-expression evaluator anywhere in groupad's dependency stack, so
// next-elapse computation is ported as-is from the original: shelling out
// to systemd-analyze calendar, exactly as the daemon it's grounded on does.
// This only runs on a host with systemd installed; see DESIGN.md for why
// that's an accepted tradeoff rather than a hand-rolled calendar-expression
// parser.
type Scheduler struct {
	Syncer *Syncer
	Log    *zap.Logger
}

func NewScheduler(sy *Syncer, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{Syncer: sy, Log: log}
}

// Run blocks until ctx is cancelled, firing a sync cycle for each remote at
// its configured periodicity.
func (s *Scheduler) Run(ctx context.Context) {
	timers := make(map[string]*time.Timer, len(s.Syncer.Remotes))
	fire := make(chan string)

	schedule := func(name string) {
		rc := s.Syncer.Remotes[name]
		d, err := nextElapseIn(rc.Periodicity)
		if err != nil {
			s.Log.Error("computing next sync elapse", zap.String("remote", name), zap.Error(err))
			d = time.Hour
		}
		timers[name] = time.AfterFunc(d, func() {
			select {
			case fire <- name:
			case <-ctx.Done():
			}
		})
	}

	for name := range s.Syncer.Remotes {
		schedule(name)
	}
	defer func() {
		for _, t := range timers {
			t.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case name := <-fire:
			if err := s.Syncer.SyncRemote(ctx, name); err != nil {
				s.Log.Error("remote sync cycle failed", zap.String("remote", name), zap.Error(err))
			} else {
				s.Log.Info("remote sync cycle completed", zap.String("remote", name))
			}
			schedule(name)
		}
	}
}

// nextElapseIn runs systemd-analyze calendar on expr and returns the
// duration until its reported next elapse.
//
// See https://www.freedesktop.org/software/systemd/man/systemd.time.html#Calendar%20Events
func nextElapseIn(expr string) (time.Duration, error) {
	if expr == "" {
		return 0, fmt.Errorf("empty periodicity")
	}

	cmd := exec.Command("/usr/bin/systemd-analyze", "calendar", expr)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return 0, fmt.Errorf("systemd-analyze calendar %q: %w: %s", expr, err, stderr.String())
	}

	next, err := parseNextElapse(stdout.String())
	if err != nil {
		return 0, err
	}

	d := time.Until(next)
	if d < 0 {
		d = 0
	}
	return d, nil
}

// parseNextElapse extracts the "Next elapse" (or "... (in UTC)") line from
// systemd-analyze calendar's output. The timestamp is reported in the
// local timezone of whichever one systemd-analyze ran under (TZ env var or
// /etc/localtime), mirroring the original's reliance on the same ambient
// setting; this parses it as UTC on the assumption the scheduler runs in a
// UTC environment, matching every other timestamp groupad produces.
func parseNextElapse(output string) (time.Time, error) {
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		var raw string
		switch {
		case strings.HasPrefix(line, "Next elapse (in UTC):"):
			raw = strings.TrimSpace(strings.TrimPrefix(line, "Next elapse (in UTC):"))
			raw = strings.TrimSuffix(raw, " UTC")
		case strings.HasPrefix(line, "Next elapse:"):
			raw = strings.TrimSpace(strings.TrimPrefix(line, "Next elapse:"))
		default:
			continue
		}

		t, err := time.Parse("Mon 2006-01-02 15:04:05", raw)
		if err != nil {
			return time.Time{}, fmt.Errorf("parsing systemd-analyze next-elapse %q: %w", raw, err)
		}
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("no next-elapse line in systemd-analyze output: %s", output)
}
