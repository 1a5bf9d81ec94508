// Package dateindex translates date filters into day-of-year index
// ranges for the storage engine. Because the index dimension is the
// 1-based ordinal within a year, a window near New Year wraps around
// and must be split into two ranges.
package dateindex

import "github.com/subitlab-buf/sms4-backend/internal/model"

// maxOrdinal is the largest possible day-of-year ordinal (leap years).
const maxOrdinal = 366

// Range is an inclusive ordinal range.
type Range struct {
	Lo int
	Hi int
}

// Contains reports whether the ordinal falls inside the range.
func (r Range) Contains(ordinal int) bool {
	return ordinal >= r.Lo && ordinal <= r.Hi
}

// Window returns the ordinal ranges matching any record whose start
// ordinal could belong to a post overlapping [d-span, d+span] days.
// When the window straddles the year boundary the result is the union
// of a tail range and a head range.
func Window(d model.Date, span int) []Range {
	return split(d.AddDays(-span).Ordinal(), d.AddDays(span).Ordinal())
}

// Between returns the ordinal ranges for an explicit two-sided date
// filter. Windows wider than a year cover every ordinal, so no
// narrowing is possible.
func Between(after, before model.Date) []Range {
	if before.Before(after) {
		return nil
	}
	if after.DaysUntil(before) >= 365 {
		return []Range{{Lo: 1, Hi: maxOrdinal}}
	}
	return split(after.Ordinal(), before.Ordinal())
}

// split builds one inclusive range, or two when the window wraps
// across Dec 31 -> Jan 1.
func split(start, end int) []Range {
	if start <= end {
		return []Range{{Lo: start, Hi: end}}
	}
	return []Range{
		{Lo: start, Hi: maxOrdinal},
		{Lo: 1, Hi: end},
	}
}
