// Package cron evaluates the 5-field cron expressions
// (minute hour day-of-month month day-of-week) that schedules carry.
package cron

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrInvalidExpression is returned when an expression does not parse as the
// 5-field grammar.
var ErrInvalidExpression = errors.New("invalid cron expression")

// Evaluator is a stateless evaluator for cron expressions. All calculations
// happen in the evaluator's location.
type Evaluator struct {
	parser cron.Parser
	loc    *time.Location
}

// NewEvaluator creates an Evaluator for the given IANA timezone. An empty
// timezone defaults to UTC.
func NewEvaluator(timezone string) (*Evaluator, error) {
	if timezone == "" {
		timezone = "UTC"
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone: %w", err)
	}
	return &Evaluator{
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		loc:    loc,
	}, nil
}

// Schedule exposes the next-occurrence calculation for a parsed expression.
type Schedule interface {
	Next(after time.Time) time.Time
}

// Parse validates and compiles an expression.
func (e *Evaluator) Parse(expression string) (Schedule, error) {
	sched, err := e.parser.Parse(expression)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidExpression, err)
	}
	return &schedule{sched: sched, loc: e.loc}, nil
}

// NextFire returns the first occurrence of the expression strictly after
// the reference time.
func (e *Evaluator) NextFire(expression string, ref time.Time) (time.Time, error) {
	sched, err := e.Parse(expression)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(ref), nil
}

// IsExpired reports whether a one-time moment expressed in cron form has
// already passed. It takes the month/day/hour/minute/second of the next
// occurrence and re-anchors the year to the reference time's year before
// comparing. Only meaningful for legacy one-time schedules that overload
// the cron field; schedules with an explicit execution date compare that
// timestamp directly instead.
func (e *Evaluator) IsExpired(expression string, ref time.Time) (bool, error) {
	next, err := e.NextFire(expression, ref)
	if err != nil {
		return false, err
	}

	refLoc := ref.In(e.loc)
	anchored := time.Date(
		refLoc.Year(),
		next.Month(), next.Day(),
		next.Hour(), next.Minute(), next.Second(),
		0, e.loc,
	)
	return anchored.Before(refLoc), nil
}

// FromTime converts an absolute timestamp to the 5-field cron form used at
// the trigger-registry boundary. Day-of-week is left open so the expression
// matches the calendar date exactly once per year.
func FromTime(t time.Time) string {
	return fmt.Sprintf("%d %d %d %d *", t.Minute(), t.Hour(), t.Day(), int(t.Month()))
}

type schedule struct {
	sched cron.Schedule
	loc   *time.Location
}

func (s *schedule) Next(after time.Time) time.Time {
	return s.sched.Next(after.In(s.loc))
}
