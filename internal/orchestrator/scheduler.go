package orchestrator

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SourceSchedule pairs a source id with the cron expression its ingest
// cadence follows.
type SourceSchedule struct {
	SourceID string
	Cron     string
	Timezone string
}

// Validate checks the schedule's fields, including the cron expression.
func (s SourceSchedule) Validate() error {
	if strings.TrimSpace(s.SourceID) == "" {
		return fmt.Errorf("orchestrator: source id required")
	}
	return ValidateCronExpr(s.Cron)
}

// ValidateCronExpr checks a standard 5-field cron expression
// (minute hour day-of-month month day-of-week).
func ValidateCronExpr(expr string) error {
	fields := strings.Fields(strings.TrimSpace(expr))
	if len(fields) != 5 {
		return fmt.Errorf("orchestrator: cron expression must have 5 fields, got %d", len(fields))
	}
	ranges := [5][2]int{{0, 59}, {0, 23}, {1, 31}, {1, 12}, {0, 6}}
	for i, f := range fields {
		if err := validateField(f, ranges[i][0], ranges[i][1]); err != nil {
			return fmt.Errorf("orchestrator: field %d (%q): %w", i, f, err)
		}
	}
	return nil
}

func validateField(field string, min, max int) error {
	if field == "*" {
		return nil
	}
	if strings.HasPrefix(field, "*/") {
		step, err := strconv.Atoi(field[2:])
		if err != nil || step <= 0 {
			return fmt.Errorf("invalid step %q", field)
		}
		return nil
	}
	for _, part := range strings.Split(field, ",") {
		if strings.Contains(part, "-") {
			bounds := strings.SplitN(part, "-", 2)
			if len(bounds) != 2 {
				return fmt.Errorf("malformed range %q", part)
			}
			lo, err1 := strconv.Atoi(bounds[0])
			hi, err2 := strconv.Atoi(bounds[1])
			if err1 != nil || err2 != nil || lo < min || hi > max || lo > hi {
				return fmt.Errorf("range %q out of [%d,%d]", part, min, max)
			}
			continue
		}
		v, err := strconv.Atoi(part)
		if err != nil || v < min || v > max {
			return fmt.Errorf("value %q out of [%d,%d]", part, min, max)
		}
	}
	return nil
}

// NextRun returns the first whole minute strictly after now that expr
// matches, in loc.
// It steps minute-by-minute up to a year ahead; cron expressions are too
// irregular for a closed-form next-match computation without a full
// calendar model.
func NextRun(now time.Time, expr string, loc *time.Location) (time.Time, error) {
	fields := strings.Fields(strings.TrimSpace(expr))
	if len(fields) != 5 {
		return time.Time{}, fmt.Errorf("orchestrator: cron expression must have 5 fields")
	}
	if loc == nil {
		loc = time.UTC
	}
	if err := ValidateCronExpr(expr); err != nil {
		return time.Time{}, err
	}

	t := now.In(loc).Truncate(time.Minute).Add(time.Minute)
	limit := t.AddDate(1, 0, 1)
	for t.Before(limit) {
		if matchField(t.Minute(), fields[0]) &&
			matchField(t.Hour(), fields[1]) &&
			matchField(t.Day(), fields[2]) &&
			matchField(int(t.Month()), fields[3]) &&
			matchField(int(t.Weekday()), fields[4]) {
			return t, nil
		}
		t = t.Add(time.Minute)
	}
	return time.Time{}, fmt.Errorf("orchestrator: no match for %q within one year", expr)
}

func matchField(value int, field string) bool {
	if field == "*" {
		return true
	}
	if strings.HasPrefix(field, "*/") {
		step, err := strconv.Atoi(field[2:])
		if err != nil || step <= 0 {
			return false
		}
		return value%step == 0
	}
	for _, part := range strings.Split(field, ",") {
		if strings.Contains(part, "-") {
			bounds := strings.SplitN(part, "-", 2)
			if len(bounds) != 2 {
				continue
			}
			lo, err1 := strconv.Atoi(bounds[0])
			hi, err2 := strconv.Atoi(bounds[1])
			if err1 != nil || err2 != nil {
				continue
			}
			if value >= lo && value <= hi {
				return true
			}
			continue
		}
		v, err := strconv.Atoi(part)
		if err == nil && v == value {
			return true
		}
	}
	return false
}

// Schedule holds validated SourceSchedules and computes, for a given clock
// reading, which sources are due.
type Schedule struct {
	entries map[string]SourceSchedule
}

// NewSchedule validates and stores entries, keyed by SourceID.
func NewSchedule(entries []SourceSchedule) (*Schedule, error) {
	m := make(map[string]SourceSchedule, len(entries))
	for _, e := range entries {
		if err := e.Validate(); err != nil {
			return nil, err
		}
		m[e.SourceID] = e
	}
	return &Schedule{entries: m}, nil
}

// Due returns the source ids whose NextRun at-or-before `now`, computed from
// `since`, has elapsed. since is typically the last time Due was polled.
func (s *Schedule) Due(since, now time.Time) ([]string, error) {
	var due []string
	for id, e := range s.entries {
		loc, err := loadLocation(e.Timezone)
		if err != nil {
			return nil, fmt.Errorf("orchestrator: source %s: %w", id, err)
		}
		next, err := NextRun(since, e.Cron, loc)
		if err != nil {
			return nil, fmt.Errorf("orchestrator: source %s: %w", id, err)
		}
		if !next.After(now) {
			due = append(due, id)
		}
	}
	return due, nil
}

func loadLocation(tz string) (*time.Location, error) {
	if strings.TrimSpace(tz) == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", tz, err)
	}
	return loc, nil
}
