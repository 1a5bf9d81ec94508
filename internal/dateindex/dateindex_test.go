package dateindex

import (
	"testing"
	"time"

	"github.com/subitlab-buf/sms4-backend/internal/model"
)

func TestWindowMidYear(t *testing.T) {
	d := model.NewDate(2024, time.June, 15)
	ranges := Window(d, 7)
	if len(ranges) != 1 {
		t.Fatalf("mid-year window should be a single range, got %v", ranges)
	}
	want := Range{Lo: d.AddDays(-7).Ordinal(), Hi: d.AddDays(7).Ordinal()}
	if ranges[0] != want {
		t.Fatalf("got %v, want %v", ranges[0], want)
	}
}

func TestWindowWrapsNewYear(t *testing.T) {
	// Jan 1 with a 7-day span reaches back to Dec 25.
	d := model.NewDate(2024, time.January, 1)
	ranges := Window(d, 7)
	if len(ranges) != 2 {
		t.Fatalf("new-year window should split into two ranges, got %v", ranges)
	}
	if ranges[0].Lo != model.NewDate(2023, time.December, 25).Ordinal() || ranges[0].Hi != maxOrdinal {
		t.Fatalf("tail range wrong: %v", ranges[0])
	}
	if ranges[1].Lo != 1 || ranges[1].Hi != 8 {
		t.Fatalf("head range wrong: %v", ranges[1])
	}
}

// A Dec 29 - Jan 3 window must match posts whose start ordinal is near
// either end of the year.
func TestBetweenStraddlesYearBoundary(t *testing.T) {
	after := model.NewDate(2023, time.December, 29)
	before := model.NewDate(2024, time.January, 3)

	ranges := Between(after, before)
	if len(ranges) != 2 {
		t.Fatalf("straddling window should split, got %v", ranges)
	}

	matches := func(ordinal int) bool {
		for _, r := range ranges {
			if r.Contains(ordinal) {
				return true
			}
		}
		return false
	}

	// Dec 31 of a non-leap year.
	if !matches(365) {
		t.Error("ordinal 365 should match the wrapped union")
	}
	// Jan 2.
	if !matches(2) {
		t.Error("ordinal 2 should match the wrapped union")
	}
	// Safely inside the excluded middle of the year.
	if matches(180) {
		t.Error("ordinal 180 must not match")
	}
}

func TestBetweenFullYear(t *testing.T) {
	after := model.NewDate(2023, time.January, 1)
	before := model.NewDate(2024, time.June, 1)
	ranges := Between(after, before)
	if len(ranges) != 1 || ranges[0].Lo != 1 || ranges[0].Hi != maxOrdinal {
		t.Fatalf("windows of a year or more cover every ordinal, got %v", ranges)
	}
}

func TestBetweenReversed(t *testing.T) {
	after := model.NewDate(2024, time.June, 2)
	before := model.NewDate(2024, time.June, 1)
	if ranges := Between(after, before); ranges != nil {
		t.Fatalf("reversed window should be empty, got %v", ranges)
	}
}
