package render

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bmlt-enabled/tomato/internal/semantic"
)

func TestXMLDocument(t *testing.T) {
	records := []semantic.Record{
		semantic.MapRecord{"id": semantic.Int(1), "name": semantic.String("First")},
		semantic.MapRecord{"id": semantic.Int(2), "name": semantic.Null()},
	}
	var buf strings.Builder
	err := XML(&buf, testMap, semantic.NewSliceStream(records), XMLOptions{
		RootElement: "meetings",
		XMLNS:       "http://example.org/ns",
		SchemaURL:   "https://bmlt.example.org/main_server/client_interface/xsd/GetSearchResults.php",
	})
	require.NoError(t, err)
	assert.Equal(t, `<?xml version="1.0" encoding="UTF-8"?>`+"\n"+
		`<meetings xmlns="http://example.org/ns"`+
		` xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance"`+
		` xsi:schemaLocation="http://example.org/ns https://bmlt.example.org/main_server/client_interface/xsd/GetSearchResults.php">`+
		`<row sequence_index="0"><id>1</id><name>First</name></row>`+
		`<row sequence_index="1"><id>2</id></row>`+
		`</meetings>`,
		buf.String())
}

func TestXMLEmptyDocument(t *testing.T) {
	var buf strings.Builder
	err := XML(&buf, testMap, semantic.NewSliceStream(nil), XMLOptions{RootElement: "formats"})
	require.NoError(t, err)
	assert.Equal(t, `<?xml version="1.0" encoding="UTF-8"?>`+"\n<formats></formats>", buf.String())
}

func TestXMLNestedFieldNames(t *testing.T) {
	m := semantic.Map{
		{Name: "name", Accessor: semantic.Path("name")},
		{Name: "Point.coordinates", Accessor: semantic.Path("coordinates")},
	}
	records := []semantic.Record{semantic.MapRecord{
		"name":        semantic.String("spot"),
		"coordinates": semantic.String("-157.7,21.3,0"),
	}}
	var buf strings.Builder
	err := XML(&buf, m, semantic.NewSliceStream(records), XMLOptions{
		RootElement:       "kml.Document",
		RowElement:        "Placemark",
		OmitSequenceIndex: true,
	})
	require.NoError(t, err)
	assert.Equal(t, `<?xml version="1.0" encoding="UTF-8"?>`+"\n"+
		`<kml><Document>`+
		`<Placemark><name>spot</name><Point><coordinates>-157.7,21.3,0</coordinates></Point></Placemark>`+
		`</Document></kml>`,
		buf.String())
}

func TestXMLSubSection(t *testing.T) {
	formats := semantic.Map{{Name: "key_string", Accessor: semantic.Path("key")}}
	var buf strings.Builder
	err := XML(&buf, testMap, semantic.NewSliceStream(testRecords()[:1]), XMLOptions{
		RootElement: "meetings",
		Sub: &XMLSubSection{
			Wrapper: "formats",
			Map:     formats,
			Stream: semantic.NewSliceStream([]semantic.Record{
				semantic.MapRecord{"key": semantic.String("O")},
			}),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, `<?xml version="1.0" encoding="UTF-8"?>`+"\n"+
		`<meetings>`+
		`<row sequence_index="0"><id>1</id><name>First</name></row>`+
		`<formats><row sequence_index="0"><key_string>O</key_string></row></formats>`+
		`</meetings>`,
		buf.String())
}

func TestXMLEscapesCharacterData(t *testing.T) {
	records := []semantic.Record{semantic.MapRecord{
		"id":   semantic.Int(1),
		"name": semantic.String(`Books & <Coffee> "Group"`),
	}}
	var buf strings.Builder
	err := XML(&buf, testMap, semantic.NewSliceStream(records), XMLOptions{RootElement: "meetings"})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `<name>Books &amp; &lt;Coffee&gt; "Group"</name>`)
}
