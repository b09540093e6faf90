package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// ScheduleTime represents a specific time of day when the scheduler should run.
type ScheduleTime struct {
	Hour   int
	Minute int
}

// String returns the time in HH:MM format.
func (st ScheduleTime) String() string {
	return fmt.Sprintf("%02d:%02d", st.Hour, st.Minute)
}

// ParseScheduleTime parses a time string in HH:MM format.
func ParseScheduleTime(s string) (ScheduleTime, error) {
	var hour, minute int
	_, err := fmt.Sscanf(s, "%d:%d", &hour, &minute)
	if err != nil {
		return ScheduleTime{}, fmt.Errorf("invalid time format (expected HH:MM): %w", err)
	}

	if hour < 0 || hour > 23 {
		return ScheduleTime{}, fmt.Errorf("invalid hour: %d (must be 0-23)", hour)
	}
	if minute < 0 || minute > 59 {
		return ScheduleTime{}, fmt.Errorf("invalid minute: %d (must be 0-59)", minute)
	}

	return ScheduleTime{Hour: hour, Minute: minute}, nil
}

// JobProvider lists the jobs of one scheduled run.
type JobProvider func(ctx context.Context) ([]Job, error)

// SchedulerConfig holds configuration for the scheduler. Exactly one of
// ScheduleTimes and Interval must be set.
type SchedulerConfig struct {
	Name          string
	ScheduleTimes []string
	Interval      time.Duration
	Location      *time.Location
	RunOnStartup  bool
	JobProvider   JobProvider
}

// Scheduler submits the jobs of its provider to a shared worker pool,
// either at fixed times of day or at a fixed interval.
type Scheduler struct {
	name          string
	pool          *WorkerPool
	scheduleTimes []ScheduleTime
	interval      time.Duration
	loc           *time.Location
	runOnStartup  bool
	jobProvider   JobProvider

	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	lastRunDate string
	mu          sync.Mutex
}

// NewScheduler creates a scheduler that feeds pool.
func NewScheduler(pool *WorkerPool, config SchedulerConfig) (*Scheduler, error) {
	if config.JobProvider == nil {
		return nil, fmt.Errorf("scheduler %q: job provider is required", config.Name)
	}

	scheduleTimes := make([]ScheduleTime, 0, len(config.ScheduleTimes))
	for _, timeStr := range config.ScheduleTimes {
		st, err := ParseScheduleTime(timeStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse schedule time %q: %w", timeStr, err)
		}
		scheduleTimes = append(scheduleTimes, st)
	}

	switch {
	case len(scheduleTimes) == 0 && config.Interval <= 0:
		return nil, fmt.Errorf("scheduler %q: schedule times or an interval is required", config.Name)
	case len(scheduleTimes) > 0 && config.Interval > 0:
		return nil, fmt.Errorf("scheduler %q: schedule times and interval are exclusive", config.Name)
	}

	loc := config.Location
	if loc == nil {
		loc = time.Local
	}
	ctx, cancel := context.WithCancel(context.Background())

	if config.Interval > 0 {
		log.Printf("Scheduler %s: every %v", config.Name, config.Interval)
	} else {
		log.Printf("Scheduler %s: %d schedule times %v (%s)", config.Name, len(scheduleTimes), config.ScheduleTimes, loc)
	}

	return &Scheduler{
		name:          config.Name,
		pool:          pool,
		scheduleTimes: scheduleTimes,
		interval:      config.Interval,
		loc:           loc,
		runOnStartup:  config.RunOnStartup,
		jobProvider:   config.JobProvider,
		ctx:           ctx,
		cancel:        cancel,
	}, nil
}

// Start launches the scheduling loop. The worker pool is started by its owner.
func (s *Scheduler) Start() {
	if s.runOnStartup {
		log.Printf("Scheduler %s: Running initial job batch on startup", s.name)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.runJobs()
		}()
	}

	s.wg.Add(1)
	go s.scheduleLoop()
}

func (s *Scheduler) scheduleLoop() {
	defer s.wg.Done()

	tick := time.Minute
	if s.interval > 0 {
		tick = s.interval
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return

		case now := <-ticker.C:
			if s.interval > 0 || s.shouldRun(now) {
				log.Printf("Scheduler %s: Triggered at %s", s.name, now.In(s.loc).Format("15:04"))
				s.runJobs()
			}
		}
	}
}

// shouldRun checks if the current time matches any scheduled time, at most
// once per scheduled minute.
func (s *Scheduler) shouldRun(now time.Time) bool {
	now = now.In(s.loc)
	currentKey := now.Format("2006-01-02-15:04")

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lastRunDate == currentKey {
		return false
	}

	for _, st := range s.scheduleTimes {
		if now.Hour() == st.Hour && now.Minute() == st.Minute {
			s.lastRunDate = currentKey
			return true
		}
	}

	return false
}

// runJobs executes the job provider and submits jobs to the worker pool.
func (s *Scheduler) runJobs() {
	ctx, cancel := context.WithTimeout(s.ctx, time.Minute)
	defer cancel()

	jobs, err := s.jobProvider(ctx)
	if err != nil {
		log.Printf("Scheduler %s: Failed to fetch jobs: %v", s.name, err)
		return
	}

	if len(jobs) == 0 {
		log.Printf("Scheduler %s: No jobs to process", s.name)
		return
	}

	s.pool.SubmitBatch(jobs)
}

// Shutdown stops the scheduling loop. The worker pool is shut down by its owner.
func (s *Scheduler) Shutdown(timeout time.Duration) {
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Printf("Scheduler %s: stopped", s.name)
	case <-time.After(timeout):
		log.Printf("Scheduler %s: Timeout waiting for scheduler loop to stop", s.name)
	}
}

// TriggerNow manually triggers a job run immediately.
func (s *Scheduler) TriggerNow() {
	log.Printf("Scheduler %s: Manual trigger", s.name)
	go s.runJobs()
}

// NextRun returns the next time the scheduler fires after now.
func (s *Scheduler) NextRun(now time.Time) time.Time {
	if s.interval > 0 {
		return now.Add(s.interval)
	}

	now = now.In(s.loc)
	var next time.Time
	for _, st := range s.scheduleTimes {
		t := time.Date(now.Year(), now.Month(), now.Day(), st.Hour, st.Minute, 0, 0, s.loc)
		if !t.After(now) {
			t = t.AddDate(0, 0, 1)
		}
		if next.IsZero() || t.Before(next) {
			next = t
		}
	}
	return next
}
