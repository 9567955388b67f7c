package cron

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// minEvery is the smallest interval an "every" schedule may fire at.
const minEvery = 60 * time.Second

var cronParser = cron.NewParser(
	cron.SecondOptional |
		cron.Minute |
		cron.Hour |
		cron.Dom |
		cron.Month |
		cron.Dow |
		cron.Descriptor,
)

// Kind identifies one of the three schedule shapes a Job may carry.
type Kind string

const (
	KindAt    Kind = "at"
	KindEvery Kind = "every"
	KindCron  Kind = "cron"
)

// Schedule is the fire-timing half of a Job: exactly one of At, Every, or
// CronExpr is meaningful, selected by Kind.
type Schedule struct {
	Kind     Kind
	At       time.Time
	Every    time.Duration
	CronExpr string
	Timezone string
}

// NewAtSchedule builds a one-shot schedule firing at the given instant.
func NewAtSchedule(at time.Time) (Schedule, error) {
	if at.IsZero() {
		return Schedule{}, fmt.Errorf("at schedule requires a timestamp")
	}
	return Schedule{Kind: KindAt, At: at}, nil
}

// NewEverySchedule builds an interval schedule; every must be at least 60s.
func NewEverySchedule(every time.Duration) (Schedule, error) {
	if every < minEvery {
		return Schedule{}, fmt.Errorf("every must be at least %s, got %s", minEvery, every)
	}
	return Schedule{Kind: KindEvery, Every: every}, nil
}

// NewCronSchedule builds a cron-expression schedule; expr is standard
// 5-field minute/hour/dom/mon/dow syntax. timezone, if non-empty, overrides
// the evaluation location (local time otherwise).
func NewCronSchedule(expr, timezone string) (Schedule, error) {
	if expr == "" {
		return Schedule{}, fmt.Errorf("cron schedule requires an expression")
	}
	if _, err := cronParser.Parse(expr); err != nil {
		return Schedule{}, fmt.Errorf("invalid cron expression: %w", err)
	}
	return Schedule{Kind: KindCron, CronExpr: expr, Timezone: timezone}, nil
}

// Next returns the schedule's next fire instant strictly after now, and
// whether one exists ("at" schedules that have already passed have none).
func (s Schedule) Next(now time.Time) (time.Time, bool, error) {
	switch s.Kind {
	case KindAt:
		if s.At.IsZero() {
			return time.Time{}, false, fmt.Errorf("at schedule missing timestamp")
		}
		if now.After(s.At) {
			return time.Time{}, false, nil
		}
		return s.At, true, nil
	case KindEvery:
		if s.Every < minEvery {
			return time.Time{}, false, fmt.Errorf("every schedule missing or sub-minimum duration")
		}
		return now.Add(s.Every), true, nil
	case KindCron:
		if s.CronExpr == "" {
			return time.Time{}, false, fmt.Errorf("cron schedule missing expression")
		}
		loc := now.Location()
		if s.Timezone != "" {
			if tz, err := time.LoadLocation(s.Timezone); err == nil {
				loc = tz
			}
		}
		schedule, err := cronParser.Parse(s.CronExpr)
		if err != nil {
			return time.Time{}, false, fmt.Errorf("parse cron expression: %w", err)
		}
		next := schedule.Next(now.In(loc))
		return next, !next.IsZero(), nil
	default:
		return time.Time{}, false, fmt.Errorf("unknown schedule kind %q", s.Kind)
	}
}
