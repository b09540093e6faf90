package studysync

import (
	"fmt"
	"strings"
)

// PullResult counts the remote items applied per collection.
type PullResult struct {
	Sessions int
	Tasks    int
	Exams    int
	Subjects int
	Syllabi  int
	// Failed counts items that could not be applied.
	Failed int
	// Created counts items seen for the first time.
	Created int
}

// Total returns the number of items applied.
func (r PullResult) Total() int {
	return r.Sessions + r.Tasks + r.Exams + r.Subjects + r.Syllabi
}

// PushOutcome describes a push the provider accepted.
type PushOutcome struct {
	Message string
	Omitted []string
}

func (o *PushOutcome) describe() string {
	switch {
	case len(o.Omitted) > 0:
		return "push sent without " + strings.Join(o.Omitted, ", ")
	case o.Message != "":
		return o.Message
	default:
		return "push ok"
	}
}

// Report is the outcome of a sync run that got past the pull.
type Report struct {
	Pull    PullResult
	Push    *PushOutcome
	PushErr error
}

// Summary renders the job summary.
func (r *Report) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Synced %d sessions, %d tasks, %d exams, %d subjects, %d syllabi",
		r.Pull.Sessions, r.Pull.Tasks, r.Pull.Exams, r.Pull.Subjects, r.Pull.Syllabi)

	if r.Pull.Failed > 0 {
		fmt.Fprintf(&b, " (%d failed)", r.Pull.Failed)
	}

	switch {
	case r.PushErr != nil:
		b.WriteString("; push skipped: " + r.PushErr.Error())
	case r.Push != nil:
		b.WriteString("; " + r.Push.describe())
	}
	return b.String()
}

// Partial reports whether anything was left out.
func (r *Report) Partial() bool {
	return r.PushErr != nil || r.Pull.Failed > 0 || (r.Push != nil && len(r.Push.Omitted) > 0)
}
