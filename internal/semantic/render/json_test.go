package render

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bmlt-enabled/tomato/internal/semantic"
)

var testMap = semantic.Map{
	{Name: "id", Accessor: semantic.Path("id")},
	{Name: "name", Accessor: semantic.Path("name")},
	{Name: "extra", Accessor: semantic.Path("extra"), Qualifier: func(r semantic.Record) bool {
		v, ok := r.Get("extra")
		return ok && !v.IsNull()
	}},
}

func testRecords() []semantic.Record {
	return []semantic.Record{
		semantic.MapRecord{"id": semantic.Int(1), "name": semantic.String("First")},
		semantic.MapRecord{"id": semantic.Int(2), "name": semantic.String(`He said "hi"`)},
	}
}

func TestJSONBareArray(t *testing.T) {
	var buf strings.Builder
	sections := []Section{{Map: testMap, Stream: semantic.NewSliceStream(testRecords())}}
	require.NoError(t, JSON(&buf, sections, false))
	assert.Equal(t,
		`[{"id":"1","name":"First"},{"id":"2","name":"He said \"hi\""}]`,
		buf.String())
}

func TestJSONEmptyArray(t *testing.T) {
	var buf strings.Builder
	sections := []Section{{Map: testMap, Stream: semantic.NewSliceStream(nil)}}
	require.NoError(t, JSON(&buf, sections, false))
	assert.Equal(t, "[]", buf.String())
}

func TestJSONParentKeys(t *testing.T) {
	var buf strings.Builder
	sections := []Section{
		{ParentKey: "meetings", Map: testMap, Stream: semantic.NewSliceStream(testRecords()[:1])},
		{ParentKey: "formats", Map: testMap, Stream: semantic.NewSliceStream(nil)},
	}
	require.NoError(t, JSON(&buf, sections, false))
	assert.Equal(t,
		`{"meetings":[{"id":"1","name":"First"}],"formats":[]}`,
		buf.String())
}

func TestJSONIndented(t *testing.T) {
	var buf strings.Builder
	sections := []Section{{Map: testMap, Stream: semantic.NewSliceStream(testRecords()[:1])}}
	require.NoError(t, JSON(&buf, sections, true))
	assert.Equal(t, "[\n  {\n    \"id\": \"1\",\n    \"name\": \"First\"\n  }\n]", buf.String())
}

func TestJSONQualifierSkipsColumn(t *testing.T) {
	var buf strings.Builder
	records := []semantic.Record{
		semantic.MapRecord{"id": semantic.Int(1), "name": semantic.String("a"), "extra": semantic.String("x")},
		semantic.MapRecord{"id": semantic.Int(2), "name": semantic.String("b")},
	}
	sections := []Section{{Map: testMap, Stream: semantic.NewSliceStream(records)}}
	require.NoError(t, JSON(&buf, sections, false))
	assert.Equal(t,
		`[{"id":"1","name":"a","extra":"x"},{"id":"2","name":"b"}]`,
		buf.String())
}

func TestJSONKeepsEmptyStrings(t *testing.T) {
	var buf strings.Builder
	records := []semantic.Record{semantic.MapRecord{"id": semantic.Int(1), "name": semantic.Null()}}
	sections := []Section{{Map: testMap, Stream: semantic.NewSliceStream(records)}}
	require.NoError(t, JSON(&buf, sections, false))
	assert.Equal(t, `[{"id":"1","name":""}]`, buf.String())
}

func TestJSONP(t *testing.T) {
	var buf strings.Builder
	sections := []Section{{Map: testMap, Stream: semantic.NewSliceStream(nil)}}
	require.NoError(t, JSONP(&buf, "loadMeetings", sections, false))
	assert.Equal(t, "loadMeetings([]);", buf.String())
}

func TestJSONEscapesControlCharacters(t *testing.T) {
	var buf strings.Builder
	records := []semantic.Record{semantic.MapRecord{
		"id":   semantic.Int(1),
		"name": semantic.String("line\nbreak\ttab  and <html> & 'quotes'"),
	}}
	sections := []Section{{Map: testMap, Stream: semantic.NewSliceStream(records)}}
	require.NoError(t, JSON(&buf, sections, false))
	assert.Contains(t, buf.String(), `line\nbreak\ttab  and <html> & 'quotes'`)
}
