package schedule

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/footprint/internal/application/scans"
)

type fakeStarter struct {
	mu   sync.Mutex
	cmds []scans.StartScanCommand
	err  error
}

func (f *fakeStarter) StartScan(_ context.Context, cmd scans.StartScanCommand) (scans.StartScanResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cmds = append(f.cmds, cmd)
	if f.err != nil {
		return scans.StartScanResult{}, f.err
	}
	return scans.StartScanResult{ID: "scan-1"}, nil
}

func (f *fakeStarter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.cmds)
}

func TestAddValidates(t *testing.T) {
	s := New(&fakeStarter{}, nil)
	assert.Error(t, s.Add(Job{Name: "x", Workspace: "acme", Target: "a@b.io", Cron: "every day"}))
	assert.Error(t, s.Add(Job{Name: "y", Cron: "@daily", Target: "a@b.io"}))
	require.NoError(t, s.Add(Job{Name: "nightly", Workspace: "acme", Cron: "0 3 * * *", TargetType: "email", Target: "a@b.io"}))
	assert.Error(t, s.Add(Job{Name: "nightly", Workspace: "acme", Cron: "@daily", TargetType: "email", Target: "a@b.io"}))
	assert.Len(t, s.Jobs("acme"), 1)
	assert.Empty(t, s.Jobs("globex"))
}

func TestJobsReportNextRunOnceStarted(t *testing.T) {
	s := New(&fakeStarter{}, nil)
	require.NoError(t, s.Add(Job{Name: "b", Workspace: "acme", Cron: "@daily", TargetType: "email", Target: "a@b.io"}))
	require.NoError(t, s.Add(Job{Name: "a", Workspace: "acme", Cron: "@hourly", TargetType: "email", Target: "a@b.io"}))

	jobs := s.Jobs("acme")
	require.Len(t, jobs, 2)
	assert.Equal(t, "a", jobs[0].Name)
	assert.Nil(t, jobs[0].NextRun)

	s.Start()
	defer s.Stop(context.Background())
	require.Eventually(t, func() bool {
		j := s.Jobs("acme")
		return j[0].NextRun != nil && j[1].NextRun != nil
	}, time.Second, 10*time.Millisecond)
	assert.True(t, s.Jobs("acme")[0].NextRun.After(time.Now()))
}

func TestTriggerGoesThroughIntake(t *testing.T) {
	st := &fakeStarter{}
	s := New(st, nil)
	require.NoError(t, s.Add(Job{Name: "weekly", Workspace: "acme", Cron: "@weekly", TargetType: "username", Target: "alice", Providers: []string{"maigret"}}))

	res, err := s.Trigger(context.Background(), "acme", "weekly")
	require.NoError(t, err)
	assert.Equal(t, "scan-1", res.ID)
	require.Len(t, st.cmds, 1)
	assert.Equal(t, "schedule", st.cmds[0].Source)
	assert.Equal(t, []string{"maigret"}, st.cmds[0].Providers)

	_, err = s.Trigger(context.Background(), "acme", "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
	_, err = s.Trigger(context.Background(), "globex", "weekly")
	assert.ErrorIs(t, err, ErrJobNotFound)
	assert.Len(t, st.cmds, 1)
}

func TestTriggerSurfacesIntakeErrors(t *testing.T) {
	s := New(&fakeStarter{err: errors.New("insufficient credits")}, nil)
	require.NoError(t, s.Add(Job{Name: "j", Workspace: "acme", Cron: "@hourly", TargetType: "email", Target: "a@b.io"}))
	_, err := s.Trigger(context.Background(), "acme", "j")
	assert.EqualError(t, err, "insufficient credits")
}

func TestCronFires(t *testing.T) {
	st := &fakeStarter{}
	s := New(st, nil)
	require.NoError(t, s.Add(Job{Name: "fast", Workspace: "acme", Cron: "@every 1s", TargetType: "email", Target: "a@b.io"}))
	s.Start()
	defer s.Stop(context.Background())

	assert.Eventually(t, func() bool { return st.count() > 0 }, 3*time.Second, 50*time.Millisecond)
}
