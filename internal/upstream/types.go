package upstream

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// FlexInt decodes JSON integers that some root servers quote as strings.
type FlexInt int64

func (f *FlexInt) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid integer %s", string(data))
	}
	*f = FlexInt(n)
	return nil
}

// DiscoveryEntry is one root server in the published discovery list.
type DiscoveryEntry struct {
	ID      FlexInt `json:"id" validate:"required"`
	Name    string  `json:"name" validate:"required"`
	RootURL string  `json:"rootURL" validate:"required,url"`
}

// ServerInfo is the first element of a GetServerInfo response. Raw holds
// the element re-serialized as compact JSON for storage; Langs is parsed
// from its comma-separated langs field.
type ServerInfo struct {
	Raw   string
	Langs []string
}

// ServiceBody is one row of a GetServiceBodies response. Root servers
// serve every field as a string.
type ServiceBody struct {
	ID          string `json:"id"`
	ParentID    string `json:"parent_id"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
	URL         string `json:"url"`
	Helpline    string `json:"helpline"`
	WorldID     string `json:"world_id"`
}

// Format is one row of a GetFormats response.
type Format struct {
	ID          string `json:"id"`
	KeyString   string `json:"key_string"`
	Name        string `json:"name_string"`
	Description string `json:"description_string"`
	Language    string `json:"lang"`
	WorldID     string `json:"world_id"`
	Type        string `json:"format_type_enum"`
}

// RawMeeting is one row of a GetSearchResults response. Values are
// strings on the wire, but some server versions emit bare numbers or
// booleans for a few fields, so decoding stringifies scalars. Null
// values are dropped.
type RawMeeting map[string]string

func (m *RawMeeting) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		switch t := v.(type) {
		case string:
			out[k] = t
		case float64:
			out[k] = strconv.FormatFloat(t, 'f', -1, 64)
		case bool:
			if t {
				out[k] = "1"
			} else {
				out[k] = "0"
			}
		case nil:
		default:
			b, err := json.Marshal(v)
			if err != nil {
				return err
			}
			out[k] = string(b)
		}
	}
	*m = out
	return nil
}
