package studysync

import (
	"context"
	"log"

	"lifedash/internal/domain/integration"
	"lifedash/internal/infrastructure/studyplanner"
)

// Push data domains.
const (
	DomainWellness    = "wellness"
	DomainHabits      = "habits"
	DomainGoals       = "goals"
	DomainEvents      = "events"
	DomainTaskUpdates = "taskUpdates"
)

// DomainResult is the outcome of gathering one push domain. On success set
// writes the gathered data into a payload.
type DomainResult struct {
	Domain string
	set    func(*studyplanner.PushPayload)
	Err    error
}

func gathered(domain string, set func(*studyplanner.PushPayload)) DomainResult {
	return DomainResult{Domain: domain, set: set}
}

func failed(domain string, err error) DomainResult {
	return DomainResult{Domain: domain, Err: err}
}

// Assemble builds the push payload from the domains that were gathered.
// Failed domains are left out and reported.
func Assemble(results []DomainResult) (studyplanner.PushPayload, []*integration.PartialDomainFailure) {
	var (
		payload  studyplanner.PushPayload
		failures []*integration.PartialDomainFailure
	)
	for _, r := range results {
		if r.Err != nil {
			failures = append(failures, &integration.PartialDomainFailure{Domain: r.Domain, Err: r.Err})
			continue
		}
		if r.set != nil {
			r.set(&payload)
		}
	}
	return payload, failures
}

// Push gathers the local domains and sends them in one call. A domain that
// cannot be gathered is logged and omitted; only the push call itself can
// fail.
func (a *Adapter) Push(ctx context.Context, userID string, creds studyplanner.Credentials) (*PushOutcome, error) {
	ctx, span := tracer.Start(ctx, "studysync.push")
	defer span.End()

	results := []DomainResult{
		a.gatherWellness(ctx, userID),
		a.gatherHabits(ctx, userID),
		a.gatherGoals(ctx, userID),
		a.gatherEvents(ctx, userID),
		a.gatherTaskUpdates(ctx, userID),
	}

	payload, failures := Assemble(results)
	outcome := &PushOutcome{}
	for _, f := range failures {
		log.Printf("User %s: %v", userID, f)
		a.logs.Warn(ctx, userID, Provider, f.Error(), map[string]any{"domain": f.Domain})
		outcome.Omitted = append(outcome.Omitted, f.Domain)
	}

	resp, err := a.client.Push(ctx, creds, payload)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if resp != nil {
		outcome.Message = resp.Message
	}
	return outcome, nil
}

func (a *Adapter) gatherWellness(ctx context.Context, userID string) DomainResult {
	date := a.now().In(a.loc).Format("2006-01-02")
	snap, err := a.store.Wellness.Get(ctx, userID, date)
	if err != nil {
		return failed(DomainWellness, err)
	}

	w := &studyplanner.WellnessPush{Date: date}
	if snap != nil {
		if snap.Sleep != nil {
			hours := snap.Sleep.Hours
			w.SleepHours = &hours
		}
		if snap.Activity != nil {
			steps := snap.Activity.Steps
			w.Steps = &steps
		}
		if snap.Stress != nil {
			level := snap.Stress.Level
			w.StressLevel = &level
		}
		if snap.Period != nil {
			w.PeriodFlow = snap.Period.Flow
		}
	}
	return gathered(DomainWellness, func(p *studyplanner.PushPayload) { p.Wellness = w })
}

func (a *Adapter) gatherHabits(ctx context.Context, userID string) DomainResult {
	habits, err := a.store.Habits.ListActive(ctx, userID)
	if err != nil {
		return failed(DomainHabits, err)
	}
	out := make([]studyplanner.HabitPush, 0, len(habits))
	for _, h := range habits {
		out = append(out, studyplanner.HabitPush{ID: h.ID, Name: h.Name, Frequency: h.Frequency, Streak: h.Streak})
	}
	return gathered(DomainHabits, func(p *studyplanner.PushPayload) { p.Habits = out })
}

func (a *Adapter) gatherGoals(ctx context.Context, userID string) DomainResult {
	goals, err := a.store.Goals.ListActive(ctx, userID)
	if err != nil {
		return failed(DomainGoals, err)
	}
	out := make([]studyplanner.GoalPush, 0, len(goals))
	for _, g := range goals {
		progress := 0.0
		if g.Target.IsPositive() {
			progress, _ = g.Progress.Div(g.Target).Float64()
		}
		out = append(out, studyplanner.GoalPush{ID: g.ID, Title: g.Title, Progress: progress, Deadline: g.Deadline})
	}
	return gathered(DomainGoals, func(p *studyplanner.PushPayload) { p.Goals = out })
}

// gatherEvents sends the local events of the push window. Events that came
// from the study planner are not echoed back.
func (a *Adapter) gatherEvents(ctx context.Context, userID string) DomainResult {
	from := a.now().UTC()
	events, err := a.store.Events.ListBetween(ctx, userID, from, from.Add(a.pushWindow))
	if err != nil {
		return failed(DomainEvents, err)
	}
	out := make([]studyplanner.EventPush, 0, len(events))
	for _, e := range events {
		if e.Source == Provider {
			continue
		}
		out = append(out, studyplanner.EventPush{ID: e.ID, Title: e.Title, Start: e.Start, End: e.End, AllDay: e.AllDay})
	}
	return gathered(DomainEvents, func(p *studyplanner.PushPayload) { p.Events = out })
}

// gatherTaskUpdates reports local progress on tasks the study planner owns.
func (a *Adapter) gatherTaskUpdates(ctx context.Context, userID string) DomainResult {
	tasks, err := a.store.Tasks.ListBySource(ctx, userID, Provider)
	if err != nil {
		return failed(DomainTaskUpdates, err)
	}
	out := make([]studyplanner.TaskUpdate, 0, len(tasks))
	for _, t := range tasks {
		if t.ExternalID == "" {
			continue
		}
		out = append(out, studyplanner.TaskUpdate{ExternalID: t.ExternalID, Status: t.Status, CompletedAt: t.CompletedAt})
	}
	return gathered(DomainTaskUpdates, func(p *studyplanner.PushPayload) { p.TaskUpdates = out })
}

