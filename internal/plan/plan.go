// Package plan computes the auditor/category allocation for a campaign.
// It is pure: callers pass the ordered inputs and a deadline strategy,
// and get back one planned assignment per line. Persistence and
// precondition checks against live data stay in the engine.
package plan

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/Halamis85/lpa-web-v2/internal/domain"
)

// Planned is one allocation slot before it is persisted.
type Planned struct {
	LineID     int64
	AuditorID  int64
	CategoryID int64
	TemplateID int64
	Deadline   string // "2006-01-02"
}

// DeadlineStrategy yields the due date for the assignment at index i.
type DeadlineStrategy interface {
	Deadline(i int) string
}

// FixedDay pins every deadline to a fixed day of the campaign month.
type FixedDay struct {
	Period string // "2026-03"
	Day    int
}

func (s FixedDay) Deadline(int) string {
	return fmt.Sprintf("%s-%02d", s.Period, s.Day)
}

// RandomWindow draws each deadline uniformly from [MinDays, MaxDays]
// days after Today. Rand is injected so runs are reproducible.
type RandomWindow struct {
	Today   time.Time
	MinDays int
	MaxDays int
	Rand    *rand.Rand
}

func (s RandomWindow) Deadline(int) string {
	span := s.MaxDays - s.MinDays + 1
	if span < 1 {
		span = 1
	}
	days := s.MinDays + s.Rand.Intn(span)
	return s.Today.AddDate(0, 0, days).Format("2006-01-02")
}

// Allocate distributes auditors and categories across lines round-robin:
// line i gets auditors[i mod len(auditors)] and categories[i mod
// len(categories)]. templates maps line ID to its checklist template.
// The result order follows the lines slice, so the caller controls
// determinism by fixing that ordering.
func Allocate(lines []domain.Line, auditors []domain.User, categories []domain.ChecklistCategory,
	templates map[int64]domain.ChecklistTemplate, strategy DeadlineStrategy) ([]Planned, error) {
	if len(auditors) == 0 {
		return nil, fmt.Errorf("no auditors")
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("no lines")
	}
	if len(categories) == 0 {
		return nil, fmt.Errorf("no categories")
	}
	res := make([]Planned, 0, len(lines))
	for i, line := range lines {
		tpl, ok := templates[line.ID]
		if !ok {
			return nil, &MissingTemplateError{LineID: line.ID, LineName: line.Name}
		}
		res = append(res, Planned{
			LineID:     line.ID,
			AuditorID:  auditors[i%len(auditors)].ID,
			CategoryID: categories[i%len(categories)].ID,
			TemplateID: tpl.ID,
			Deadline:   strategy.Deadline(i),
		})
	}
	return res, nil
}

// MissingTemplateError aborts the whole allocation; no partial plan is
// ever returned.
type MissingTemplateError struct {
	LineID   int64
	LineName string
}

func (e *MissingTemplateError) Error() string {
	return fmt.Sprintf("line %q (id %d) has no checklist template", e.LineName, e.LineID)
}
