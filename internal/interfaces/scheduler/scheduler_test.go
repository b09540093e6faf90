package scheduler

import (
	"context"
	"testing"
	"time"
)

func noJobs(ctx context.Context) ([]Job, error) { return nil, nil }

func TestParseScheduleTime(t *testing.T) {
	tests := []struct {
		in      string
		want    ScheduleTime
		wantErr bool
	}{
		{"06:00", ScheduleTime{6, 0}, false},
		{"23:59", ScheduleTime{23, 59}, false},
		{"7:5", ScheduleTime{7, 5}, false},
		{"24:00", ScheduleTime{}, true},
		{"12:60", ScheduleTime{}, true},
		{"noon", ScheduleTime{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseScheduleTime(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseScheduleTime(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseScheduleTime(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestNewScheduler_Validation(t *testing.T) {
	pool := NewWorkerPool(1, time.Second, 1)

	tests := []struct {
		name string
		cfg  SchedulerConfig
	}{
		{"no provider", SchedulerConfig{Interval: time.Minute}},
		{"no trigger", SchedulerConfig{JobProvider: noJobs}},
		{"both triggers", SchedulerConfig{ScheduleTimes: []string{"06:00"}, Interval: time.Minute, JobProvider: noJobs}},
		{"bad time", SchedulerConfig{ScheduleTimes: []string{"6am"}, JobProvider: noJobs}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewScheduler(pool, tt.cfg); err == nil {
				t.Error("NewScheduler() expected error, got nil")
			}
		})
	}
}

func TestScheduler_ShouldRunOncePerMinute(t *testing.T) {
	loc := time.FixedZone("BRT", -3*60*60)
	s, err := NewScheduler(NewWorkerPool(1, time.Second, 1), SchedulerConfig{
		Name:          "sync",
		ScheduleTimes: []string{"06:00", "18:30"},
		Location:      loc,
		JobProvider:   noJobs,
	})
	if err != nil {
		t.Fatalf("NewScheduler() failed: %v", err)
	}

	at := time.Date(2024, 5, 1, 9, 0, 10, 0, time.UTC) // 06:00 in loc
	if !s.shouldRun(at) {
		t.Error("shouldRun() = false at a scheduled time")
	}
	if s.shouldRun(at.Add(30 * time.Second)) {
		t.Error("shouldRun() fired twice in the same minute")
	}
	if s.shouldRun(time.Date(2024, 5, 1, 6, 0, 0, 0, time.UTC)) {
		t.Error("shouldRun() matched UTC instead of the configured location")
	}
	if !s.shouldRun(at.AddDate(0, 0, 1)) {
		t.Error("shouldRun() = false on the next day")
	}
}

func TestScheduler_NextRun(t *testing.T) {
	s, err := NewScheduler(NewWorkerPool(1, time.Second, 1), SchedulerConfig{
		ScheduleTimes: []string{"18:30", "06:00"},
		Location:      time.UTC,
		JobProvider:   noJobs,
	})
	if err != nil {
		t.Fatalf("NewScheduler() failed: %v", err)
	}

	now := time.Date(2024, 5, 1, 20, 0, 0, 0, time.UTC)
	if got, want := s.NextRun(now), time.Date(2024, 5, 2, 6, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Errorf("NextRun() = %v, want %v", got, want)
	}
	now = time.Date(2024, 5, 1, 7, 0, 0, 0, time.UTC)
	if got, want := s.NextRun(now), time.Date(2024, 5, 1, 18, 30, 0, 0, time.UTC); !got.Equal(want) {
		t.Errorf("NextRun() = %v, want %v", got, want)
	}
}

func TestScheduler_IntervalSubmitsJobs(t *testing.T) {
	pool := NewWorkerPool(1, time.Second, 10)
	pool.Start()
	defer pool.ShutdownWithTimeout(time.Second)

	ran := make(chan string, 10)
	s, err := NewScheduler(pool, SchedulerConfig{
		Name:     "push",
		Interval: 10 * time.Millisecond,
		JobProvider: func(ctx context.Context) ([]Job, error) {
			return []Job{&MockJob{user: "u1", ExecuteFunc: func(ctx context.Context) error {
				ran <- "u1"
				return nil
			}}}, nil
		},
	})
	if err != nil {
		t.Fatalf("NewScheduler() failed: %v", err)
	}
	s.Start()
	defer s.Shutdown(time.Second)

	select {
	case user := <-ran:
		if user != "u1" {
			t.Errorf("ran job for %q, want u1", user)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("interval scheduler never submitted a job")
	}
}
