package pocketflow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
)

// RequestFactory builds the request for one scheduled run. It is called on
// every tick so each run can get a fresh store.
type RequestFactory func() (RunRequest, error)

// Scheduler triggers runs from cron expressions. Both five-field and
// six-field (with seconds) expressions are accepted.
type Scheduler struct {
	runner *Runner
	logger *slog.Logger
	cron   *cron.Cron

	mu      sync.Mutex
	entries map[string]cron.EntryID
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewScheduler creates a Scheduler that executes runs through runner.
func NewScheduler(runner *Runner, logger *slog.Logger) *Scheduler {
	if runner == nil {
		runner = NewRunner()
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		runner:  runner,
		logger:  logger,
		cron:    cron.New(cron.WithSeconds()),
		entries: make(map[string]cron.EntryID),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// parseSpec tries 6-field (with seconds) then 5-field (standard) parsing.
func parseSpec(spec string) (cron.Schedule, error) {
	parser6 := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	sched, err := parser6.Parse(spec)
	if err == nil {
		return sched, nil
	}
	parser5 := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	return parser5.Parse(spec)
}

// Add registers a named schedule, replacing one with the same name.
func (s *Scheduler) Add(spec, name string, factory RequestFactory) error {
	if factory == nil {
		return fmt.Errorf("schedule %q: nil request factory", name)
	}
	sched, err := parseSpec(spec)
	if err != nil {
		return fmt.Errorf("schedule %q: parse %q: %w", name, spec, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.entries[name]; ok {
		s.cron.Remove(old)
	}
	s.entries[name] = s.cron.Schedule(sched, cron.FuncJob(func() {
		s.trigger(name, factory)
	}))

	s.logger.Info("scheduler: registered schedule", "name", name, "cron", spec)
	return nil
}

// Remove unregisters a schedule. Unknown names are ignored.
func (s *Scheduler) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.entries[name]; ok {
		s.cron.Remove(id)
		delete(s.entries, name)
	}
}

// Names returns the registered schedule names.
func (s *Scheduler) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.entries))
	for name := range s.entries {
		names = append(names, name)
	}
	return names
}

// Start begins triggering schedules in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler: started", "schedules", len(s.Names()))
}

// Stop stops triggering new runs, cancels runs in flight and waits for them
// to return.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler: stopped")
}

// RunNow triggers a schedule immediately, outside its cron timing.
func (s *Scheduler) RunNow(name string, factory RequestFactory) {
	s.trigger(name, factory)
}

func (s *Scheduler) trigger(name string, factory RequestFactory) {
	req, err := factory()
	if err != nil {
		s.logger.Error("scheduler: build request failed", "name", name, "error", err)
		return
	}
	res, err := s.runner.Run(s.ctx, req)
	if err != nil {
		s.logger.Error("scheduler: run failed", "name", name, "error", err)
		return
	}
	s.logger.Info("scheduler: run completed",
		"name", name,
		"final_action", res.FinalAction.Name(),
		"steps", res.StepsExecuted,
	)
}
