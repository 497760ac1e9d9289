package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ─────────────────────────────────────────────────────────────────────────────
// Schedules
// ─────────────────────────────────────────────────────────────────────────────

func TestParseSchedule(t *testing.T) {
	tests := []struct {
		spec    string
		want    string
		wantErr bool
	}{
		{spec: "@every 30m", want: "@every 30m0s"},
		{spec: "15m", want: "@every 15m0s"},
		{spec: " 0 3 * * * ", want: "0 3 * * *"},
		{spec: "*/10 8-18 * * 1-5", want: "*/10 8-18 * * 1-5"},
		{spec: "-5m", wantErr: true},
		{spec: "61 * * * *", wantErr: true},
		{spec: "* * *", wantErr: true},
		{spec: "*/0 * * * *", wantErr: true},
		{spec: "5-2 * * * *", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			s, err := ParseSchedule(tt.spec)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, s.String())
		})
	}
}

func TestCronSchedule_Next(t *testing.T) {
	at := func(day, hour, minute int) time.Time {
		return time.Date(2026, time.January, day, hour, minute, 0, 0, time.UTC)
	}

	tests := []struct {
		expr string
		from time.Time
		want time.Time
	}{
		{"30 2 * * *", at(1, 10, 0), at(2, 2, 30)},
		{"*/15 * * * *", at(1, 10, 7), at(1, 10, 15)},
		{"*/15 * * * *", at(1, 10, 15), at(1, 10, 30)},
		// 2026-01-04 is a Sunday.
		{"0 9 * * 1", at(4, 12, 0), at(5, 9, 0)},
		{"0 0 1 2 *", at(10, 0, 0), time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC)},
		{"0 0 31 2 *", at(1, 0, 0), time.Time{}},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			c, err := ParseCron(tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.want, c.Next(tt.from))
		})
	}
}

func TestCronSchedule_NextKeepsLocation(t *testing.T) {
	loc := time.FixedZone("UTC+5:30", 5*3600+1800)
	c, err := ParseCron("0 * * * *")
	require.NoError(t, err)

	next := c.Next(time.Date(2026, time.March, 3, 10, 20, 0, 0, loc))
	assert.Equal(t, time.Date(2026, time.March, 3, 11, 0, 0, 0, loc), next)
}

func TestIntervalSchedule(t *testing.T) {
	now := time.Date(2026, time.May, 1, 8, 0, 0, 0, time.UTC)
	assert.Equal(t, now.Add(time.Hour), Every(time.Hour).Next(now))
}

// ─────────────────────────────────────────────────────────────────────────────
// Scheduler
// ─────────────────────────────────────────────────────────────────────────────

type fakeJob struct {
	name string
	runs atomic.Int32
	run  func(ctx context.Context) error
}

func (j *fakeJob) Name() string        { return j.name }
func (j *fakeJob) Description() string { return "test job " + j.name }
func (j *fakeJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	if j.run != nil {
		return j.run(ctx)
	}
	return nil
}

func TestScheduler_Register(t *testing.T) {
	s := New(Config{})
	job := &fakeJob{name: "a"}

	require.NoError(t, s.Register(job, Every(time.Hour)))
	assert.ErrorIs(t, s.Register(job, Every(time.Hour)), ErrJobAlreadyExists)
	assert.ErrorIs(t, s.Register(nil, Every(time.Hour)), ErrNilJob)
	assert.ErrorIs(t, s.Register(&fakeJob{name: "b"}, nil), ErrNilSchedule)
	assert.ErrorIs(t, s.SetEnabled("missing", true), ErrJobNotFound)

	jobs := s.ListJobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, "a", jobs[0].Name)
	assert.Equal(t, "@every 1h0m0s", jobs[0].Schedule)
	assert.True(t, jobs[0].Enabled)
}

func TestScheduler_RunNow(t *testing.T) {
	s := New(Config{})
	boom := errors.New("boom")
	ok := &fakeJob{name: "ok"}
	bad := &fakeJob{name: "bad", run: func(context.Context) error { return boom }}
	require.NoError(t, s.Register(ok, Every(time.Hour)))
	require.NoError(t, s.Register(bad, Every(time.Hour)))

	var results []JobResult
	s.OnResult(func(r JobResult) { results = append(results, r) })

	res, err := s.RunNow(context.Background(), "ok")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, res.Manual)

	res, err = s.RunNow(context.Background(), "bad")
	assert.ErrorIs(t, err, boom)
	assert.False(t, res.Success)

	_, err = s.RunNow(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)

	assert.Len(t, results, 2)
	jobs := s.ListJobs()
	require.Len(t, jobs, 2)
	assert.Equal(t, "bad", jobs[0].Name)
	assert.Equal(t, int64(1), jobs[0].RunCount)
	assert.Equal(t, int64(1), jobs[0].FailCount)
	assert.Equal(t, int64(0), jobs[1].FailCount)
}

func TestScheduler_RunNowRejectsOverlap(t *testing.T) {
	s := New(Config{MaxConcurrentJobs: 2})
	started := make(chan struct{})
	release := make(chan struct{})
	job := &fakeJob{name: "slow", run: func(context.Context) error {
		close(started)
		<-release
		return nil
	}}
	require.NoError(t, s.Register(job, Every(time.Hour)))

	done := make(chan error, 1)
	go func() {
		_, err := s.RunNow(context.Background(), "slow")
		done <- err
	}()
	<-started

	_, err := s.RunNow(context.Background(), "slow")
	assert.ErrorIs(t, err, ErrJobBusy)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, int32(1), job.runs.Load())
}

func TestScheduler_JobTimeout(t *testing.T) {
	s := New(Config{JobTimeout: 20 * time.Millisecond})
	job := &fakeJob{name: "stuck", run: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}}
	require.NoError(t, s.Register(job, Every(time.Hour)))

	_, err := s.RunNow(context.Background(), "stuck")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestScheduler_RecoversPanic(t *testing.T) {
	s := New(Config{})
	job := &fakeJob{name: "panics", run: func(context.Context) error { panic("nil map") }}
	require.NoError(t, s.Register(job, Every(time.Hour)))

	_, err := s.RunNow(context.Background(), "panics")
	assert.ErrorIs(t, err, ErrJobPanicked)
}

func TestScheduler_StartStop(t *testing.T) {
	s := New(Config{RunOnStart: true, TickInterval: 10 * time.Millisecond})
	job := &fakeJob{name: "tick"}
	require.NoError(t, s.Register(job, Every(time.Hour)))

	require.NoError(t, s.Start(context.Background()))
	assert.ErrorIs(t, s.Start(context.Background()), ErrSchedulerAlreadyRunning)
	assert.True(t, s.IsRunning())

	require.Eventually(t, func() bool { return job.runs.Load() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, s.Stop())
	assert.ErrorIs(t, s.Stop(), ErrSchedulerNotRunning)
	assert.False(t, s.IsRunning())
	assert.Equal(t, int32(1), job.runs.Load(), "hourly job runs once on start only")
}

func TestScheduler_RunsDueJobs(t *testing.T) {
	s := New(Config{TickInterval: 5 * time.Millisecond})
	job := &fakeJob{name: "fast"}
	require.NoError(t, s.Register(job, Every(10*time.Millisecond)))

	require.NoError(t, s.Start(context.Background()))
	defer func() { _ = s.Stop() }()

	require.Eventually(t, func() bool { return job.runs.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
}

func TestScheduler_DisabledJobDoesNotRun(t *testing.T) {
	s := New(Config{TickInterval: 5 * time.Millisecond})
	job := &fakeJob{name: "off"}
	require.NoError(t, s.Register(job, Every(time.Millisecond)))
	require.NoError(t, s.SetEnabled("off", false))

	require.NoError(t, s.Start(context.Background()))
	time.Sleep(30 * time.Millisecond)
	require.NoError(t, s.Stop())

	assert.Zero(t, job.runs.Load())
}
