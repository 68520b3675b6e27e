package cron

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/kayz/stageprompt/internal/logger"
)

// Task is a named maintenance function run on a cron schedule.
type Task struct {
	ID       string
	Name     string
	Schedule string
	LastRun  *time.Time
	Runs     int

	entryID cron.EntryID
	fn      func() error
}

// Scheduler runs maintenance tasks such as audit retention cleanup.
type Scheduler struct {
	cron  *cron.Cron
	tasks map[string]*Task
	mu    sync.RWMutex
}

func NewScheduler() *Scheduler {
	return &Scheduler{
		cron:  cron.New(cron.WithSeconds()),
		tasks: make(map[string]*Task),
	}
}

// normalizeCron prepends "0 " to standard 5-field cron expressions
// so they work with the 6-field (with seconds) parser.
func normalizeCron(schedule string) string {
	if len(strings.Fields(schedule)) == 5 {
		return "0 " + schedule
	}
	return schedule
}

var parser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Validate reports whether schedule is a usable cron expression.
func Validate(schedule string) error {
	if _, err := parser.Parse(normalizeCron(strings.TrimSpace(schedule))); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", schedule, err)
	}
	return nil
}

// Add schedules fn under name. Errors returned by fn are logged.
func (s *Scheduler) Add(name, schedule string, fn func() error) (*Task, error) {
	schedule = normalizeCron(strings.TrimSpace(schedule))
	if err := Validate(schedule); err != nil {
		return nil, err
	}

	task := &Task{
		ID:       uuid.New().String(),
		Name:     name,
		Schedule: schedule,
		fn:       fn,
	}
	entryID, err := s.cron.AddFunc(schedule, func() { s.run(task) })
	if err != nil {
		return nil, err
	}
	task.entryID = entryID

	s.mu.Lock()
	s.tasks[task.ID] = task
	s.mu.Unlock()
	logger.Debug("[CRON] Scheduled %s (%s)", name, schedule)
	return task, nil
}

// RunNow executes a task immediately, outside its schedule.
func (s *Scheduler) RunNow(id string) error {
	s.mu.RLock()
	task, ok := s.tasks[id]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("task not found: %s", id)
	}
	return s.run(task)
}

func (s *Scheduler) run(task *Task) error {
	now := time.Now()
	err := task.fn()

	s.mu.Lock()
	task.LastRun = &now
	task.Runs++
	s.mu.Unlock()

	if err != nil {
		logger.Warn("[CRON] Task %s failed: %v", task.Name, err)
		return err
	}
	logger.Debug("[CRON] Task %s done", task.Name)
	return nil
}

// Tasks returns a snapshot of the scheduled tasks.
func (s *Scheduler) Tasks() []Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		cp := *t
		cp.fn = nil
		out = append(out, cp)
	}
	return out
}

// Next returns the next activation time of a task.
func (s *Scheduler) Next(id string) (time.Time, bool) {
	s.mu.RLock()
	task, ok := s.tasks[id]
	s.mu.RUnlock()
	if !ok {
		return time.Time{}, false
	}
	return s.cron.Entry(task.entryID).Next, true
}

func (s *Scheduler) Start() {
	s.cron.Start()
	logger.Info("[CRON] Scheduler started with %d tasks", len(s.Tasks()))
}

// Stop waits for running tasks to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	logger.Info("[CRON] Scheduler stopped")
}
