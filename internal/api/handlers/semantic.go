package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/bmlt-enabled/tomato/internal/domain/formats"
	"github.com/bmlt-enabled/tomato/internal/domain/servicebodies"
	"github.com/bmlt-enabled/tomato/internal/metrics"
	"github.com/bmlt-enabled/tomato/internal/semantic"
	"github.com/bmlt-enabled/tomato/internal/semantic/render"
)

// contentTypes maps the response format path segment to its MIME type.
// Membership doubles as format validation.
var contentTypes = map[string]string{
	semantic.FormatJSON:  "application/json",
	semantic.FormatJSONP: "application/javascript",
	semantic.FormatCSV:   "text/csv",
	semantic.FormatXML:   "application/xml",
	semantic.FormatKML:   "application/vnd.google-earth.kml+xml",
	semantic.FormatPOI:   "text/csv",
}

// SemanticHandler serves GET /main_server/client_interface/{format}/.
// Rejected requests get a 400 with an empty body; accepted ones stream
// their rows straight onto the wire.
type SemanticHandler struct {
	service *semantic.Service
	baseURL string
	indent  bool
}

// NewSemanticHandler wires the query handler. baseURL feeds the XML
// schemaLocation attributes; indent switches JSON to the two-space
// debug rendering.
func NewSemanticHandler(service *semantic.Service, baseURL string, indent bool) *SemanticHandler {
	return &SemanticHandler{
		service: service,
		baseURL: strings.TrimRight(baseURL, "/"),
		indent:  indent,
	}
}

func (h *SemanticHandler) Query(w http.ResponseWriter, r *http.Request) {
	format := r.PathValue("format")
	if _, ok := contentTypes[format]; !ok {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	q := r.URL.Query()
	switcher := q.Get("switcher")

	callback := q.Get("callback")
	if format == semantic.FormatJSONP && callback == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	// The map formats only carry search results.
	if (format == semantic.FormatKML || format == semantic.FormatPOI) && switcher != "GetSearchResults" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	lang := q.Get("lang_enum")
	if lang == "" {
		lang = formats.FallbackLanguage
	}
	ctx := semantic.WithLanguage(r.Context(), lang)
	r = r.WithContext(ctx)

	var err error
	switch switcher {
	case "GetSearchResults":
		err = h.searchResults(w, r, format, callback)
	case "GetFormats":
		stream, ferr := h.service.Formats(ctx, q)
		if ferr != nil {
			h.fail(w, r, ferr)
			return
		}
		err = h.rows(w, r, format, callback, rowsResponse{
			Map:        semantic.FormatsMap,
			Stream:     stream,
			XMLRoot:    "formats",
			SchemaName: "GetFormats",
		})
	case "GetServiceBodies":
		stream, berr := h.service.ServiceBodies(ctx, q)
		if berr != nil {
			h.fail(w, r, berr)
			return
		}
		err = h.rows(w, r, format, callback, rowsResponse{
			Map:     semantic.ServiceBodiesMap,
			Stream:  stream,
			XMLRoot: "serviceBodies",
		})
	case "GetFieldKeys":
		err = h.rows(w, r, format, callback, rowsResponse{
			Map:     semantic.FieldKeysMap,
			Stream:  h.service.FieldKeys(),
			XMLRoot: "fields",
		})
	case "GetFieldValues":
		stream, responseMap, verr := h.service.FieldValues(ctx, q)
		if verr != nil {
			if errors.Is(verr, semantic.ErrInvalidFieldKey) {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			h.fail(w, r, verr)
			return
		}
		err = h.rows(w, r, format, callback, rowsResponse{
			Map:     responseMap,
			Stream:  stream,
			XMLRoot: "fields",
		})
	case "GetServerInfo":
		stream, serr := h.service.ServerInfo(ctx)
		if serr != nil {
			h.fail(w, r, serr)
			return
		}
		err = h.rows(w, r, format, callback, rowsResponse{
			Map:     semantic.ServerInfoMap,
			Stream:  stream,
			XMLRoot: "serverInfo",
		})
	case "GetNAWSDump":
		err = h.nawsDump(w, r, format)
	default:
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	metrics.SemanticQueriesTotal.WithLabelValues(switcher, format).Inc()
	if err != nil {
		// Rendering already started; all we can do is log and drop
		// the connection mid-stream.
		zerolog.Ctx(r.Context()).Error().Err(err).
			Str("switcher", switcher).
			Str("format", format).
			Msg("response stream aborted")
	}
}

// searchResults answers GetSearchResults for every format.
func (h *SemanticHandler) searchResults(w http.ResponseWriter, r *http.Request, format, callback string) error {
	payload, err := h.service.Search(r.Context(), r.URL.Query(), format)
	if err != nil {
		h.fail(w, r, err)
		return nil
	}

	switch format {
	case semantic.FormatKML:
		w.Header().Set("Content-Type", contentTypes[format])
		w.Header().Set("Content-Disposition", `attachment; filename="SearchResults.kml"`)
		return render.KML(w, payload.Meetings)

	case semantic.FormatPOI:
		w.Header().Set("Content-Type", contentTypes[format])
		w.Header().Set("Content-Disposition", `attachment; filename="SearchResultsPOI.csv"`)
		return render.POICSV(w, payload.Meetings)

	case semantic.FormatCSV:
		w.Header().Set("Content-Type", contentTypes[format])
		if payload.Meetings == nil {
			// get_formats_only: the one table a CSV can carry.
			return render.CSV(w, semantic.FormatsMap, payload.Formats)
		}
		return render.CSV(w, semantic.MeetingsMap.Reorder(payload.Projection), payload.Meetings)

	case semantic.FormatXML:
		w.Header().Set("Content-Type", contentTypes[format])
		opts := render.XMLOptions{RootElement: "meetings"}
		opts.XMLNS, opts.SchemaURL = h.xmlSchema("GetSearchResults")
		if payload.Formats != nil {
			opts.Sub = &render.XMLSubSection{
				Wrapper: "formats",
				Map:     semantic.FormatsMap,
				Stream:  payload.Formats,
			}
		}
		return render.XML(w, semantic.MeetingsMap.Select(payload.Projection), payload.Meetings, opts)

	default: // json, jsonp
		meetingsMap := semantic.MeetingsMap.Reorder(payload.Projection)
		var sections []render.Section
		switch {
		case payload.Meetings != nil && payload.Formats != nil:
			sections = []render.Section{
				{ParentKey: "meetings", Map: meetingsMap, Stream: payload.Meetings},
				{ParentKey: "formats", Map: semantic.FormatsMap, Stream: payload.Formats},
			}
		case payload.Formats != nil:
			sections = []render.Section{
				{ParentKey: "formats", Map: semantic.FormatsMap, Stream: payload.Formats},
			}
		default:
			sections = []render.Section{
				{Map: meetingsMap, Stream: payload.Meetings},
			}
		}
		w.Header().Set("Content-Type", contentTypes[format])
		if format == semantic.FormatJSONP {
			return render.JSONP(w, callback, sections, h.indent)
		}
		return render.JSON(w, sections, h.indent)
	}
}

// rowsResponse is a single-table response: every switcher except
// GetSearchResults and GetNAWSDump.
type rowsResponse struct {
	Map        semantic.Map
	Stream     semantic.RecordStream
	XMLRoot    string
	SchemaName string
}

func (h *SemanticHandler) rows(w http.ResponseWriter, r *http.Request, format, callback string, resp rowsResponse) error {
	w.Header().Set("Content-Type", contentTypes[format])
	switch format {
	case semantic.FormatCSV:
		return render.CSV(w, resp.Map, resp.Stream)
	case semantic.FormatXML:
		opts := render.XMLOptions{RootElement: resp.XMLRoot}
		if resp.SchemaName != "" {
			opts.XMLNS, opts.SchemaURL = h.xmlSchema(resp.SchemaName)
		}
		return render.XML(w, resp.Map, resp.Stream, opts)
	case semantic.FormatJSONP:
		return render.JSONP(w, callback, []render.Section{{Map: resp.Map, Stream: resp.Stream}}, h.indent)
	default:
		return render.JSON(w, []render.Section{{Map: resp.Map, Stream: resp.Stream}}, h.indent)
	}
}

// nawsDump answers GetNAWSDump: CSV only, one aggregator service body.
func (h *SemanticHandler) nawsDump(w http.ResponseWriter, r *http.Request, format string) error {
	if format != semantic.FormatCSV {
		w.WriteHeader(http.StatusBadRequest)
		return nil
	}
	sbID, err := strconv.ParseInt(r.URL.Query().Get("sb_id"), 10, 64)
	if err != nil || sbID <= 0 {
		w.WriteHeader(http.StatusBadRequest)
		return nil
	}
	stream, err := h.service.NAWSDump(r.Context(), sbID)
	if err != nil {
		if errors.Is(err, servicebodies.ErrNotFound) {
			w.WriteHeader(http.StatusBadRequest)
			return nil
		}
		h.fail(w, r, err)
		return nil
	}
	w.Header().Set("Content-Type", contentTypes[format])
	w.Header().Set("Content-Disposition", `attachment; filename="BMLT.csv"`)
	return render.CSV(w, semantic.NAWSDumpMap, stream)
}

// xmlSchema yields the xmlns / schemaLocation pair for the switchers
// that publish an XSD. Without a configured base URL the attributes are
// omitted.
func (h *SemanticHandler) xmlSchema(name string) (xmlns, schemaURL string) {
	if h.baseURL == "" {
		return "", ""
	}
	return h.baseURL, h.baseURL + "/main_server/client_interface/xsd/" + name + ".php"
}

func (h *SemanticHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	zerolog.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("semantic query failed")
	w.WriteHeader(http.StatusInternalServerError)
}
