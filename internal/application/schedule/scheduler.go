package schedule

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/bryanwahyu/footprint/internal/application/scans"
	"github.com/bryanwahyu/footprint/internal/logging"
)

// Starter is the intake every scheduled scan goes through, so credits and
// quota apply exactly as for API requests.
type Starter interface {
	StartScan(ctx context.Context, cmd scans.StartScanCommand) (scans.StartScanResult, error)
}

// ErrJobNotFound is returned for unknown jobs and for jobs of another workspace.
var ErrJobNotFound = errors.New("schedule not found")

type Job struct {
	Name       string   `json:"name"`
	Workspace  string   `json:"workspace"`
	Cron       string   `json:"cron"`
	TargetType string   `json:"target_type"`
	Target     string   `json:"target"`
	Providers  []string `json:"providers,omitempty"`
}

// JobView is a job plus its cron state.
type JobView struct {
	Job
	NextRun *time.Time `json:"next_run,omitempty"`
	PrevRun *time.Time `json:"prev_run,omitempty"`
}

type entry struct {
	job Job
	id  cron.EntryID
}

type Scheduler struct {
	starter Starter
	log     *zap.Logger
	cron    *cron.Cron

	mu   sync.Mutex
	jobs map[string]entry
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

func New(starter Starter, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	cl := cronLogger{log.Sugar()}
	return &Scheduler{
		starter: starter,
		log:     log,
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
			cron.WithLogger(cl),
		),
		jobs: map[string]entry{},
	}
}

// Add registers a job. Names must be unique.
func (s *Scheduler) Add(j Job) error {
	if j.Name == "" {
		j.Name = fmt.Sprintf("%s:%s:%s", j.Workspace, j.TargetType, j.Target)
	}
	if strings.TrimSpace(j.Workspace) == "" || strings.TrimSpace(j.Target) == "" {
		return fmt.Errorf("job %q: workspace and target are required", j.Name)
	}
	if _, err := parser.Parse(j.Cron); err != nil {
		return fmt.Errorf("job %q: invalid cron %q: %w", j.Name, j.Cron, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[j.Name]; exists {
		return fmt.Errorf("job %q already exists", j.Name)
	}
	id, err := s.cron.AddFunc(j.Cron, func() { _ = s.run(context.Background(), j) })
	if err != nil {
		return err
	}
	s.jobs[j.Name] = entry{job: j, id: id}
	return nil
}

func (s *Scheduler) Start() { s.cron.Start() }

// Stop halts the cron loop and waits for running jobs.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

// Trigger runs a workspace's job now, outside its schedule.
func (s *Scheduler) Trigger(ctx context.Context, workspace, name string) (scans.StartScanResult, error) {
	s.mu.Lock()
	e, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok || e.job.Workspace != workspace {
		return scans.StartScanResult{}, fmt.Errorf("%w: %q", ErrJobNotFound, name)
	}
	return s.runResult(ctx, e.job)
}

// Jobs lists the workspace's jobs by name.
func (s *Scheduler) Jobs(workspace string) []JobView {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]JobView, 0, len(s.jobs))
	for _, e := range s.jobs {
		if e.job.Workspace != workspace {
			continue
		}
		v := JobView{Job: e.job}
		// zero time means the cron loop has not scheduled it yet
		ce := s.cron.Entry(e.id)
		if !ce.Next.IsZero() {
			next := ce.Next
			v.NextRun = &next
		}
		if !ce.Prev.IsZero() {
			prev := ce.Prev
			v.PrevRun = &prev
		}
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *Scheduler) run(ctx context.Context, j Job) error {
	_, err := s.runResult(ctx, j)
	return err
}

func (s *Scheduler) runResult(ctx context.Context, j Job) (scans.StartScanResult, error) {
	res, err := s.starter.StartScan(ctx, scans.StartScanCommand{
		WorkspaceID: j.Workspace,
		TargetType:  j.TargetType,
		Target:      j.Target,
		Providers:   j.Providers,
		Source:      "schedule",
	})
	if err != nil {
		s.log.Warn("scheduled scan rejected", zap.String("job", j.Name), logging.Workspace(j.Workspace), zap.Error(err))
		return res, err
	}
	s.log.Info("scheduled scan started", zap.String("job", j.Name), logging.Workspace(j.Workspace), logging.ScanID(res.ID))
	return res, nil
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct{ s *zap.SugaredLogger }

func (l cronLogger) Info(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }

func (l cronLogger) Error(err error, msg string, kv ...interface{}) {
	l.s.Errorw(msg, append(kv, "error", err)...)
}
