package studysync

import (
	"fmt"
	"strings"
	"time"

	"lifedash/internal/domain/entity"
	"lifedash/internal/infrastructure/studyplanner"
)

// ExamSchedule turns an exam's local date and times into instants in loc.
// Without a start time the exam is an all-day event. An end time that is
// missing, unparsable or not after the start is replaced by start plus
// entity.DefaultEventDuration.
func ExamSchedule(exam studyplanner.RemoteExam, loc *time.Location) (start, end time.Time, allDay bool, err error) {
	day, err := time.ParseInLocation(time.DateOnly, strings.TrimSpace(exam.Date), loc)
	if err != nil {
		return time.Time{}, time.Time{}, false, fmt.Errorf("invalid exam date %q", exam.Date)
	}

	startTime := strings.TrimSpace(exam.StartTime)
	if startTime == "" {
		return day, day.AddDate(0, 0, 1), true, nil
	}

	start, err = clockOn(day, startTime, loc)
	if err != nil {
		return time.Time{}, time.Time{}, false, fmt.Errorf("invalid exam start time %q", exam.StartTime)
	}

	end = start.Add(entity.DefaultEventDuration)
	if endTime := strings.TrimSpace(exam.EndTime); endTime != "" {
		if e, err := clockOn(day, endTime, loc); err == nil && e.After(start) {
			end = e
		}
	}
	return start, end, false, nil
}

// clockOn places an HH:MM (or HH:MM:SS) clock reading on day.
func clockOn(day time.Time, clock string, loc *time.Location) (time.Time, error) {
	layout := "15:04"
	if strings.Count(clock, ":") == 2 {
		layout = time.TimeOnly
	}
	c, err := time.Parse(layout, clock)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(day.Year(), day.Month(), day.Day(), c.Hour(), c.Minute(), c.Second(), 0, loc), nil
}

// eventEnd applies the same fallback to pulled events.
func eventEnd(start time.Time, end *time.Time) time.Time {
	if end == nil || !end.After(start) {
		return start.Add(entity.DefaultEventDuration)
	}
	return *end
}
