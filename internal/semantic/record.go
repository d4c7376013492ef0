package semantic

import "strings"

// Record resolves an internal attribute path to a value. Paths use the
// upstream dotted convention ("meetinginfo.location_street"); map-backed
// records translate dots to double underscores before lookup.
type Record interface {
	Get(path string) (Value, bool)
}

// Accessor describes how a column obtains its value from a record.
type Accessor struct {
	path     string
	fallback string
	compute  func(Record) Value
	reserved bool
}

// Path resolves a single attribute path.
func Path(p string) Accessor { return Accessor{path: p} }

// PathWithFallback resolves primary, consulting fallback when the
// primary path is absent or null. Projected rows carry aggregate
// aliases in place of relation paths, which is what the fallback serves.
func PathWithFallback(primary, fallback string) Accessor {
	return Accessor{path: primary, fallback: fallback}
}

// Computed derives the value from the whole record.
func Computed(fn func(Record) Value) Accessor { return Accessor{compute: fn} }

// Reserved always yields the empty string. Columns kept for layout
// compatibility use it.
func Reserved() Accessor { return Accessor{reserved: true} }

// Resolve applies the accessor to a record.
func (a Accessor) Resolve(r Record) Value {
	if a.reserved {
		return String("")
	}
	if a.compute != nil {
		return a.compute(r)
	}
	v, ok := r.Get(a.path)
	if (!ok || v.IsNull()) && a.fallback != "" {
		if fv, fok := r.Get(a.fallback); fok {
			return fv
		}
	}
	if !ok {
		return Null()
	}
	return v
}

// Field is one external column: its wire name, how to resolve it, and an
// optional qualifier deciding per record whether the column applies.
type Field struct {
	Name      string
	Accessor  Accessor
	Qualifier func(Record) bool
}

// Map is an ordered column set. Declaration order is the column order
// for every format.
type Map []Field

// Lookup returns the field with the given external name.
func (m Map) Lookup(name string) (Field, bool) {
	for _, f := range m {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Columns lists the external names in map order.
func (m Map) Columns() []string {
	names := make([]string, len(m))
	for i, f := range m {
		names[i] = f.Name
	}
	return names
}

// Select returns the fields named in keep, preserving map order. Names
// not present in the map are dropped.
func (m Map) Select(keep []string) Map {
	if keep == nil {
		return m
	}
	set := make(map[string]struct{}, len(keep))
	for _, k := range keep {
		set[k] = struct{}{}
	}
	out := make(Map, 0, len(keep))
	for _, f := range m {
		if _, ok := set[f.Name]; ok {
			out = append(out, f)
		}
	}
	return out
}

// Reorder returns the fields named in order, in that order. Unknown
// names are dropped. JSON objects honor the caller-given projection
// order; the other formats keep map order.
func (m Map) Reorder(order []string) Map {
	if order == nil {
		return m
	}
	out := make(Map, 0, len(order))
	for _, name := range order {
		if f, ok := m.Lookup(name); ok {
			out = append(out, f)
		}
	}
	return out
}

// MapRecord is a record backed by a plain map keyed by the underscored
// form of each path.
type MapRecord map[string]Value

func (r MapRecord) Get(path string) (Value, bool) {
	v, ok := r[strings.ReplaceAll(path, ".", "__")]
	if !ok {
		return Null(), false
	}
	return v, true
}

// RecordStream yields records one at a time. Err reports the first
// failure after Next returns false; Close releases the underlying
// cursor and is safe to call more than once.
type RecordStream interface {
	Next() (Record, bool)
	Err() error
	Close() error
}

type sliceStream struct {
	records []Record
	pos     int
}

// NewSliceStream wraps already materialized records in a RecordStream.
func NewSliceStream(records []Record) RecordStream {
	return &sliceStream{records: records}
}

func (s *sliceStream) Next() (Record, bool) {
	if s.pos >= len(s.records) {
		return nil, false
	}
	r := s.records[s.pos]
	s.pos++
	return r, true
}

func (s *sliceStream) Err() error   { return nil }
func (s *sliceStream) Close() error { return nil }
