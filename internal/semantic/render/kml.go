package render

import (
	"io"

	"github.com/bmlt-enabled/tomato/internal/semantic"
)

// KMLNamespace is the OGC KML 2.2 namespace.
const KMLNamespace = "http://www.opengis.net/kml/2.2"

// KML writes the meeting stream as a KML document of Placemarks.
func KML(w io.Writer, stream semantic.RecordStream) error {
	return XML(w, semantic.MeetingKMLMap, stream, XMLOptions{
		RootElement:       "kml.Document",
		XMLNS:             KMLNamespace,
		RowElement:        "Placemark",
		OmitSequenceIndex: true,
	})
}

// POICSV writes the meeting stream as the lon/lat/name/desc POI table.
func POICSV(w io.Writer, stream semantic.RecordStream) error {
	return CSV(w, semantic.MeetingPOIMap, stream)
}
