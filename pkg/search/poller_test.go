package search

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// scriptedAPI answers status requests from a fixed list of states.
type scriptedAPI struct {
	states []JobState
	calls  int
	err    error
}

func (a *scriptedAPI) Get(_ context.Context, _ string, _ url.Values, out any) error {
	if a.err != nil {
		return a.err
	}
	state := a.states[min(a.calls, len(a.states)-1)]
	a.calls++
	data, _ := json.Marshal(Status{State: state, MessageCount: 10 * a.calls})
	return json.Unmarshal(data, out)
}

func (a *scriptedAPI) Post(context.Context, string, any, any) error { return nil }
func (a *scriptedAPI) Delete(context.Context, string) error         { return nil }

// fakeClock advances only when the poller sleeps.
type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(_ context.Context, d time.Duration) error {
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

func newTestPoller(api API, cfg PollerConfig) (*Poller, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	p := NewPoller(api, cfg, zerolog.Nop())
	p.now = clock.Now
	p.sleep = clock.Sleep
	return p, clock
}

func TestPoll_UntilDone(t *testing.T) {
	api := &scriptedAPI{states: []JobState{StateNotStarted, StateGathering, StateGathering, StateDone}}
	p, clock := newTestPoller(api, DefaultPollerConfig())

	status, err := p.Poll(context.Background(), "JOB1")
	if err != nil {
		t.Fatalf("Poll() error = %v", err)
	}
	if status.State != StateDone {
		t.Errorf("State = %q, want %q", status.State, StateDone)
	}
	if api.calls != 4 {
		t.Errorf("status requests = %d, want 4", api.calls)
	}

	want := []time.Duration{5 * time.Second, 7500 * time.Millisecond, 11250 * time.Millisecond}
	if len(clock.sleeps) != len(want) {
		t.Fatalf("sleeps = %v, want %v", clock.sleeps, want)
	}
	for i := range want {
		if clock.sleeps[i] != want[i] {
			t.Errorf("sleep %d = %v, want %v", i, clock.sleeps[i], want[i])
		}
	}
}

func TestPoll_IntervalCapped(t *testing.T) {
	states := make([]JobState, 8)
	for i := range states {
		states[i] = StateGathering
	}
	states = append(states, StateDone)
	p, clock := newTestPoller(&scriptedAPI{states: states}, DefaultPollerConfig())

	if _, err := p.Poll(context.Background(), "JOB1"); err != nil {
		t.Fatalf("Poll() error = %v", err)
	}
	for i, d := range clock.sleeps {
		if d > 20*time.Second {
			t.Errorf("sleep %d = %v, want <= 20s", i, d)
		}
	}
	if last := clock.sleeps[len(clock.sleeps)-1]; last != 20*time.Second {
		t.Errorf("last sleep = %v, want 20s", last)
	}
}

func TestPoll_TerminalFailureStates(t *testing.T) {
	for _, state := range []JobState{StateCancelled, StateForcePaused} {
		t.Run(string(state), func(t *testing.T) {
			p, _ := newTestPoller(&scriptedAPI{states: []JobState{StateGathering, state}}, DefaultPollerConfig())

			_, err := p.Poll(context.Background(), "JOB1")
			var jobErr *JobError
			if !errors.As(err, &jobErr) {
				t.Fatalf("Poll() error = %v, want *JobError", err)
			}
			if jobErr.State != state || jobErr.JobID != "JOB1" {
				t.Errorf("JobError = %+v, want state %q for JOB1", jobErr, state)
			}
		})
	}
}

func TestPoll_Timeout(t *testing.T) {
	cfg := DefaultPollerConfig()
	cfg.Timeout = 30 * time.Second
	p, _ := newTestPoller(&scriptedAPI{states: []JobState{StateGathering}}, cfg)

	_, err := p.Poll(context.Background(), "JOB1")
	var timeoutErr *TimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("Poll() error = %v, want *TimeoutError", err)
	}
	if timeoutErr.Timeout != 30*time.Second || timeoutErr.Elapsed <= 30*time.Second {
		t.Errorf("TimeoutError = %+v, want elapsed past 30s", timeoutErr)
	}
}

func TestPoll_StatusErrorWrapped(t *testing.T) {
	boom := errors.New("connection reset")
	p, _ := newTestPoller(&scriptedAPI{err: boom}, DefaultPollerConfig())

	if _, err := p.Poll(context.Background(), "JOB1"); !errors.Is(err, boom) {
		t.Errorf("Poll() error = %v, want wrapped %v", err, boom)
	}
}

func TestPoll_ContextCancelledDuringSleep(t *testing.T) {
	p := NewPoller(&scriptedAPI{states: []JobState{StateGathering}}, PollerConfig{InitialInterval: time.Hour}, zerolog.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := p.Poll(ctx, "JOB1"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Poll() error = %v, want context.DeadlineExceeded", err)
	}
}

func TestPoll_ReportsProgress(t *testing.T) {
	var progress []Progress
	cfg := DefaultPollerConfig()
	cfg.OnProgress = func(p Progress) { progress = append(progress, p) }
	p, _ := newTestPoller(&scriptedAPI{states: []JobState{StateGathering, StateDone}}, cfg)

	if _, err := p.Poll(context.Background(), "JOB1"); err != nil {
		t.Fatalf("Poll() error = %v", err)
	}
	if len(progress) != 2 {
		t.Fatalf("progress reports = %d, want 2", len(progress))
	}
	if progress[0].Poll != 1 || progress[0].State != StateGathering || progress[0].MessageCount != 10 {
		t.Errorf("first progress = %+v", progress[0])
	}
	if progress[1].Poll != 2 || progress[1].Elapsed != 5*time.Second {
		t.Errorf("second progress = %+v, want poll 2 after 5s", progress[1])
	}
}

func TestNewPoller_Defaults(t *testing.T) {
	p := NewPoller(&scriptedAPI{}, PollerConfig{BackoffFactor: 0.5}, zerolog.Nop())
	want := DefaultPollerConfig()
	if p.config.InitialInterval != want.InitialInterval ||
		p.config.MaxInterval != want.MaxInterval ||
		p.config.BackoffFactor != want.BackoffFactor ||
		p.config.Timeout != want.Timeout {
		t.Errorf("config = %+v, want defaults", p.config)
	}
}

func TestJobState_IsTerminal(t *testing.T) {
	tests := map[JobState]bool{
		StateNotStarted:  false,
		StateGathering:   false,
		StateDone:        true,
		StateCancelled:   true,
		StateForcePaused: true,
	}
	for state, want := range tests {
		if got := state.IsTerminal(); got != want {
			t.Errorf("%q.IsTerminal() = %v, want %v", state, got, want)
		}
	}
}
