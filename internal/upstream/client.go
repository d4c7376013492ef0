package upstream

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/time/rate"

	"github.com/bmlt-enabled/tomato/internal/metrics"
)

const (
	// UserAgent identifies the aggregator to root servers. Some hosts
	// block non-browser agents, hence the browser-like prefix.
	UserAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:52.0) Gecko/20100101 Firefox/52.0 +tomato"
	// DefaultTimeout for HTTP requests
	DefaultTimeout = 60 * time.Second
	// DefaultRateLimit is 2 requests per second
	DefaultRateLimit = rate.Limit(2.0)
)

// StatusError reports a non-200 response from a root server. Imports do
// not retry; the root is skipped until the next pass.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code %d from root server", e.StatusCode)
}

// Client fetches the discovery list and the semantic endpoints of BMLT
// root servers.
type Client struct {
	httpClient *http.Client
	userAgent  string
	limiter    *rate.Limiter
	validate   *validator.Validate
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithRateLimit sets a custom rate limit (requests per second).
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// NewClient creates a new root server client.
func NewClient(opts ...Option) *Client {
	client := &Client{
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		userAgent: UserAgent,
		limiter:   rate.NewLimiter(DefaultRateLimit, 1),
		validate:  validator.New(),
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// FetchDiscoveryList retrieves and validates the published list of root
// servers. Root URLs are trimmed and normalized to a trailing slash.
func (c *Client) FetchDiscoveryList(ctx context.Context, listURL string) ([]DiscoveryEntry, error) {
	body, err := c.get(ctx, listURL, "discovery")
	if err != nil {
		return nil, fmt.Errorf("fetch root server list: %w", err)
	}

	var entries []DiscoveryEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("parse root server list: %w", err)
	}

	for i := range entries {
		entries[i].RootURL = strings.TrimSpace(entries[i].RootURL)
		if entries[i].RootURL != "" && !strings.HasSuffix(entries[i].RootURL, "/") {
			entries[i].RootURL += "/"
		}
		if err := c.validate.Struct(&entries[i]); err != nil {
			return nil, fmt.Errorf("invalid root server list entry %d: %w", i, err)
		}
	}

	return entries, nil
}

// FetchServerInfo retrieves a root's GetServerInfo document. The first
// element is re-serialized as compact JSON, which also validates it.
func (c *Client) FetchServerInfo(ctx context.Context, rootURL string) (*ServerInfo, error) {
	body, err := c.get(ctx, rootURL+"client_interface/json/?switcher=GetServerInfo", "server_info")
	if err != nil {
		return nil, fmt.Errorf("fetch server info: %w", err)
	}

	var elems []json.RawMessage
	if err := json.Unmarshal(body, &elems); err != nil {
		return nil, fmt.Errorf("parse server info: %w", err)
	}
	if len(elems) == 0 {
		return nil, fmt.Errorf("empty server info response")
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, elems[0]); err != nil {
		return nil, fmt.Errorf("parse server info: %w", err)
	}

	var parsed struct {
		Langs string `json:"langs"`
	}
	if err := json.Unmarshal(elems[0], &parsed); err != nil {
		return nil, fmt.Errorf("parse server info: %w", err)
	}

	info := &ServerInfo{Raw: buf.String()}
	for _, lang := range strings.Split(parsed.Langs, ",") {
		if lang = strings.TrimSpace(lang); lang != "" {
			info.Langs = append(info.Langs, lang)
		}
	}
	return info, nil
}

// FetchServiceBodies retrieves a root's service bodies.
func (c *Client) FetchServiceBodies(ctx context.Context, rootURL string) ([]ServiceBody, error) {
	body, err := c.get(ctx, rootURL+"client_interface/json/?switcher=GetServiceBodies", "service_bodies")
	if err != nil {
		return nil, fmt.Errorf("fetch service bodies: %w", err)
	}

	var bodies []ServiceBody
	if err := json.Unmarshal(body, &bodies); err != nil {
		return nil, fmt.Errorf("parse service bodies: %w", err)
	}
	return bodies, nil
}

// FetchFormats retrieves a root's formats. A non-empty lang requests the
// translations for that language.
func (c *Client) FetchFormats(ctx context.Context, rootURL, lang string) ([]Format, error) {
	requestURL := rootURL + "client_interface/json/?switcher=GetFormats"
	if lang != "" {
		requestURL += "&lang_enum=" + url.QueryEscape(lang)
	}

	body, err := c.get(ctx, requestURL, "formats")
	if err != nil {
		return nil, fmt.Errorf("fetch formats: %w", err)
	}

	var formats []Format
	if err := json.Unmarshal(body, &formats); err != nil {
		return nil, fmt.Errorf("parse formats: %w", err)
	}
	return formats, nil
}

// FetchMeetings retrieves every meeting a root publishes.
func (c *Client) FetchMeetings(ctx context.Context, rootURL string) ([]RawMeeting, error) {
	body, err := c.get(ctx, rootURL+"client_interface/json/?switcher=GetSearchResults", "meetings")
	if err != nil {
		return nil, fmt.Errorf("fetch meetings: %w", err)
	}

	var meetings []RawMeeting
	if err := json.Unmarshal(body, &meetings); err != nil {
		return nil, fmt.Errorf("parse meetings: %w", err)
	}
	return meetings, nil
}

// FetchNAWSDump retrieves the NAWS export for one service body as
// header-keyed rows. Short rows are padded with missing columns absent,
// the way some root servers emit them.
func (c *Client) FetchNAWSDump(ctx context.Context, rootURL string, sbSourceID int64) ([]map[string]string, error) {
	requestURL := fmt.Sprintf("%sclient_interface/csv/?switcher=GetNAWSDump&sb_id=%d", rootURL, sbSourceID)
	body, err := c.get(ctx, requestURL, "naws_dump")
	if err != nil {
		return nil, fmt.Errorf("fetch naws dump: %w", err)
	}

	r := csv.NewReader(bytes.NewReader(body))
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("parse naws dump: %w", err)
	}

	var rows []map[string]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse naws dump: %w", err)
		}
		row := make(map[string]string, len(header))
		for i, name := range header {
			if i < len(rec) {
				row[name] = rec[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (c *Client) get(ctx context.Context, requestURL, endpoint string) ([]byte, error) {
	start := time.Now()
	body, err := c.fetch(ctx, requestURL)
	metrics.UpstreamRequestLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())

	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.UpstreamRequestsTotal.WithLabelValues(endpoint, status).Inc()
	return body, err
}

// fetch executes one rate-limited GET. There is no retry: a failed root
// is picked up again on the next import pass.
func (c *Client) fetch(ctx context.Context, requestURL string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}

	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()

	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{URL: requestURL, StatusCode: resp.StatusCode}
	}

	return body, nil
}
