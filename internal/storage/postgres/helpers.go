package postgres

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/bmlt-enabled/tomato/internal/domain/meetings"
)

// changeSet accumulates the columns an upsert actually needs to
// rewrite, so an unchanged record issues no UPDATE at all.
type changeSet struct {
	sets []string
	args []any
}

func (c *changeSet) set(column string, value any) {
	c.setCast(column, "", value)
}

func (c *changeSet) setCast(column, cast string, value any) {
	c.args = append(c.args, value)
	placeholder := fmt.Sprintf("$%d", len(c.args))
	if cast != "" {
		placeholder += "::" + cast
	}
	c.sets = append(c.sets, column+" = "+placeholder)
}

func (c *changeSet) raw(assignment string) {
	c.sets = append(c.sets, assignment)
}

func (c *changeSet) empty() bool { return len(c.sets) == 0 }

func timeOfDayFromPg(t pgtype.Time) *meetings.TimeOfDay {
	if !t.Valid {
		return nil
	}
	seconds := t.Microseconds / 1_000_000
	return &meetings.TimeOfDay{
		Hour:   int(seconds / 3600),
		Minute: int(seconds / 60 % 60),
		Second: int(seconds % 60),
	}
}

func durationFromPg(iv pgtype.Interval) *meetings.Duration {
	if !iv.Valid {
		return nil
	}
	seconds := iv.Microseconds/1_000_000 + int64(iv.Days)*86400
	return &meetings.Duration{
		Hours:   int(seconds / 3600),
		Minutes: int(seconds / 60 % 60),
		Seconds: int(seconds % 60),
	}
}

// timeParam renders a wall-clock time for a $n::time placeholder.
func timeParam(t *meetings.TimeOfDay) *string {
	if t == nil {
		return nil
	}
	s := t.String()
	return &s
}

// durationParam renders a duration for a $n::interval placeholder.
func durationParam(d *meetings.Duration) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}

// decimalPtrEqual compares decimal strings numerically, so the stored
// NUMERIC text ("21.330000000000") matches an incoming "21.33" and an
// unchanged coordinate issues no UPDATE.
func decimalPtrEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return canonicalDecimal(*a) == canonicalDecimal(*b)
}

func canonicalDecimal(s string) string {
	if strings.Contains(s, ".") {
		s = strings.TrimRight(s, "0")
		s = strings.TrimSuffix(s, ".")
	}
	switch s {
	case "", "-", "-0":
		return "0"
	}
	return s
}

func intPtrEqual(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func timePtrEqual(a, b *meetings.TimeOfDay) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func durationPtrEqual(a, b *meetings.Duration) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func int64SlicesEqual(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
