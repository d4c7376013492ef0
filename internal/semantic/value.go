// Package semantic declares the field maps that translate stored
// aggregator rows into the external BMLT semantic column vocabulary,
// along with the value model and query-parameter parsing shared by
// every response format.
package semantic

import (
	"strconv"
	"strings"

	"github.com/bmlt-enabled/tomato/internal/domain/meetings"
)

// Kind discriminates the payload of a Value.
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindInt
	KindBool
	KindDecimal
	KindFloat
	KindTime
	KindDuration
	KindList
)

// Value is a single field value on its way to a response. Every format
// ultimately renders the same string form via Render; the kind only
// controls how that string is produced.
type Value struct {
	kind     Kind
	str      string
	num      int64
	flag     bool
	float    float64
	time     meetings.TimeOfDay
	duration meetings.Duration
	list     []string
}

func Null() Value                        { return Value{kind: KindNull} }
func String(s string) Value              { return Value{kind: KindString, str: s} }
func Int(i int64) Value                  { return Value{kind: KindInt, num: i} }
func Bool(b bool) Value                  { return Value{kind: KindBool, flag: b} }
func Float(f float64) Value              { return Value{kind: KindFloat, float: f} }
func Time(t meetings.TimeOfDay) Value    { return Value{kind: KindTime, time: t} }
func Duration(d meetings.Duration) Value { return Value{kind: KindDuration, duration: d} }
func List(items []string) Value          { return Value{kind: KindList, list: items} }

// Decimal wraps a number already in canonical decimal text, e.g. the
// text form of a NUMERIC column.
func Decimal(s string) Value { return Value{kind: KindDecimal, str: s} }

func (v Value) Kind() Kind    { return v.kind }
func (v Value) IsNull() bool  { return v.kind == KindNull }
func (v Value) List() []string { return v.list }

// Render produces the wire string for the value: booleans become 1/0,
// lists comma-join their distinct members in first-seen order, decimals
// drop trailing zero runs, durations zero-pad the hour below ten, and
// null renders empty.
func (v Value) Render() string {
	switch v.kind {
	case KindNull:
		return ""
	case KindString:
		return v.str
	case KindInt:
		return strconv.FormatInt(v.num, 10)
	case KindBool:
		if v.flag {
			return "1"
		}
		return "0"
	case KindDecimal:
		return strings.TrimRight(v.str, "0")
	case KindFloat:
		return strconv.FormatFloat(v.float, 'f', -1, 64)
	case KindTime:
		return v.time.String()
	case KindDuration:
		return v.duration.String()
	case KindList:
		return joinDistinct(v.list)
	}
	return ""
}

func joinDistinct(items []string) string {
	if len(items) == 0 {
		return ""
	}
	seen := make(map[string]struct{}, len(items))
	var b strings.Builder
	for _, item := range items {
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		if b.Len() > 0 {
			b.WriteString(",")
		}
		b.WriteString(item)
	}
	return b.String()
}
