package plan

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/Halamis85/lpa-web-v2/internal/domain"
)

func auditor(id int64) domain.User {
	return domain.User{ID: id, Roles: []domain.Role{domain.RoleAuditor}, IsActive: true}
}

func TestAllocateRoundRobin(t *testing.T) {
	lines := []domain.Line{{ID: 10, Name: "L1"}, {ID: 11, Name: "L2"}, {ID: 12, Name: "L3"}}
	auditors := []domain.User{auditor(1), auditor(2)}
	cats := []domain.ChecklistCategory{{ID: 100}, {ID: 101}, {ID: 102}}
	templates := map[int64]domain.ChecklistTemplate{
		10: {ID: 50, LineID: 10}, 11: {ID: 51, LineID: 11}, 12: {ID: 52, LineID: 12},
	}
	got, err := Allocate(lines, auditors, cats, templates, FixedDay{Period: "2026-03", Day: 28})
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("want 3 planned assignments, got %d", len(got))
	}
	wantAuditors := []int64{1, 2, 1}
	wantCats := []int64{100, 101, 102}
	for i, p := range got {
		if p.LineID != lines[i].ID {
			t.Errorf("slot %d: line %d, want %d", i, p.LineID, lines[i].ID)
		}
		if p.AuditorID != wantAuditors[i] {
			t.Errorf("slot %d: auditor %d, want %d", i, p.AuditorID, wantAuditors[i])
		}
		if p.CategoryID != wantCats[i] {
			t.Errorf("slot %d: category %d, want %d", i, p.CategoryID, wantCats[i])
		}
		if p.Deadline != "2026-03-28" {
			t.Errorf("slot %d: deadline %q", i, p.Deadline)
		}
	}
}

func TestAllocateSingleAuditorWraps(t *testing.T) {
	lines := []domain.Line{{ID: 1, Name: "A"}, {ID: 2, Name: "B"}}
	cats := []domain.ChecklistCategory{{ID: 7}, {ID: 8}}
	templates := map[int64]domain.ChecklistTemplate{1: {ID: 20, LineID: 1}, 2: {ID: 21, LineID: 2}}
	got, err := Allocate(lines, []domain.User{auditor(5)}, cats, templates, FixedDay{Period: "2026-03", Day: 28})
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if got[0].AuditorID != 5 || got[1].AuditorID != 5 {
		t.Fatalf("single auditor must take every line: %+v", got)
	}
	if got[0].CategoryID != 7 || got[1].CategoryID != 8 {
		t.Fatalf("categories must rotate: %+v", got)
	}
}

func TestAllocateMissingTemplate(t *testing.T) {
	lines := []domain.Line{{ID: 1, Name: "A"}, {ID: 2, Name: "B"}}
	cats := []domain.ChecklistCategory{{ID: 7}}
	templates := map[int64]domain.ChecklistTemplate{1: {ID: 20, LineID: 1}}
	_, err := Allocate(lines, []domain.User{auditor(5)}, cats, templates, FixedDay{Period: "2026-03", Day: 28})
	var missing *MissingTemplateError
	if !errors.As(err, &missing) {
		t.Fatalf("want MissingTemplateError, got %v", err)
	}
	if missing.LineID != 2 || missing.LineName != "B" {
		t.Fatalf("error names wrong line: %+v", missing)
	}
}

func TestRandomWindowBounds(t *testing.T) {
	today := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	s := RandomWindow{Today: today, MinDays: 7, MaxDays: 20, Rand: rand.New(rand.NewSource(42))}
	for i := 0; i < 50; i++ {
		d, err := time.Parse("2006-01-02", s.Deadline(i))
		if err != nil {
			t.Fatalf("parse deadline: %v", err)
		}
		days := int(d.Sub(today).Hours() / 24)
		if days < 7 || days > 20 {
			t.Fatalf("deadline %s is %d days out, want [7,20]", d.Format("2006-01-02"), days)
		}
	}
}

func TestRandomWindowReproducible(t *testing.T) {
	today := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	a := RandomWindow{Today: today, MinDays: 7, MaxDays: 20, Rand: rand.New(rand.NewSource(1))}
	b := RandomWindow{Today: today, MinDays: 7, MaxDays: 20, Rand: rand.New(rand.NewSource(1))}
	for i := 0; i < 10; i++ {
		if x, y := a.Deadline(i), b.Deadline(i); x != y {
			t.Fatalf("same seed diverged at %d: %s vs %s", i, x, y)
		}
	}
}
