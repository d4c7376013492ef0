package semantic

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bmlt-enabled/tomato/internal/domain/meetings"
)

func TestValueRender(t *testing.T) {
	tests := []struct {
		name string
		in   Value
		want string
	}{
		{"null", Null(), ""},
		{"string", String("Big Book Study"), "Big Book Study"},
		{"int", Int(42), "42"},
		{"bool true", Bool(true), "1"},
		{"bool false", Bool(false), "0"},
		{"decimal trims trailing zeros", Decimal("-82.837465000000"), "-82.837465"},
		{"decimal keeps trailing dot", Decimal("35.000000000000"), "35."},
		{"float shortest form", Float(3.5), "3.5"},
		{"time", Time(meetings.TimeOfDay{Hour: 19, Minute: 30}), "19:30:00"},
		{"duration below ten hours", Duration(meetings.Duration{Hours: 1, Minutes: 30}), "01:30:00"},
		{"duration ten hours", Duration(meetings.Duration{Hours: 10}), "10:00:00"},
		{"list joins distinct in order", List([]string{"O", "D", "O", "BT"}), "O,D,BT"},
		{"empty list", List(nil), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.in.Render())
		})
	}
}

func TestValueRenderFloatWhole(t *testing.T) {
	assert.Equal(t, "3", Float(3).Render())
	assert.Equal(t, "0.25", Float(0.25).Render())
}

func TestAccessorFallback(t *testing.T) {
	rec := MapRecord{
		"formats_aggregate": List([]string{"O", "BT"}),
		"name":              String("Serenity Now"),
	}

	primary := PathWithFallback("formats.key_string", "formats_aggregate")
	assert.Equal(t, "O,BT", primary.Resolve(rec).Render())

	present := PathWithFallback("name", "formats_aggregate")
	assert.Equal(t, "Serenity Now", present.Resolve(rec).Render())

	reserved := Reserved()
	v := reserved.Resolve(rec)
	assert.Equal(t, KindString, v.Kind())
	assert.Equal(t, "", v.Render())
}

func TestMapSelectAndReorder(t *testing.T) {
	m := Map{
		{Name: "a", Accessor: Path("a")},
		{Name: "b", Accessor: Path("b")},
		{Name: "c", Accessor: Path("c")},
	}

	selected := m.Select([]string{"c", "a", "nope"})
	assert.Equal(t, []string{"a", "c"}, selected.Columns())

	reordered := m.Reorder([]string{"c", "a", "nope"})
	assert.Equal(t, []string{"c", "a"}, reordered.Columns())

	assert.Equal(t, []string{"a", "b", "c"}, m.Select(nil).Columns())
}
