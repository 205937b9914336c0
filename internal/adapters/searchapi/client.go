// Package searchapi is the HTTP client of the search service consumed by
// explorer sessions.
package searchapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/samirrijal/bodegamap/internal/core/domain"
	"github.com/samirrijal/bodegamap/internal/pkg/telemetry"
)

var tracer = otel.Tracer("bodegamap/searchapi")

// DefaultLimit is the page size requested from the service.
const DefaultLimit = 100

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("search service returned %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("search service returned %d", e.StatusCode)
}

// Temporary reports whether retrying later may succeed.
func (e *StatusError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// Options configure a Client.
type Options struct {
	Timeout  time.Duration
	RetryMax int
	Limit    int
	Logger   *slog.Logger
}

// Client talks to GET /search/{entityType} and GET /search/filters.
type Client struct {
	base  string
	http  *retryablehttp.Client
	limit int
}

// New builds a client for the service at baseURL. Every session shares the
// returned value; nothing is configured globally.
func New(baseURL string, opts Options) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid search base url %q", baseURL)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = opts.RetryMax
	rc.RetryWaitMin = 100 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.HTTPClient.Timeout = opts.Timeout
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	// *slog.Logger satisfies retryablehttp.LeveledLogger
	rc.Logger = nil
	if opts.Logger != nil {
		rc.Logger = opts.Logger
	}

	return &Client{
		base:  strings.TrimRight(u.String(), "/"),
		http:  rc,
		limit: opts.Limit,
	}, nil
}

// Search runs q and decodes the result page.
func (c *Client) Search(ctx context.Context, q domain.SearchQuery) (results []domain.Locatable, err error) {
	ctx, span := tracer.Start(ctx, "search."+string(q.EntityType))
	defer func() { endSpan(span, err) }()
	span.SetAttributes(
		telemetry.AttrEntityType.String(string(q.EntityType)),
		telemetry.AttrPositioned.Bool(q.Position != nil),
	)

	params := q.Params()
	params.Set("limit", fmt.Sprint(c.limit))
	body, err := c.get(ctx, "/search/"+string(q.EntityType), params)
	if err != nil {
		return nil, err
	}

	results, err = decodeResults(q.EntityType, body)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(telemetry.AttrResults.Int(len(results)))
	return results, nil
}

// Facets fetches the filter catalog.
func (c *Client) Facets(ctx context.Context) (f domain.Facets, err error) {
	ctx, span := tracer.Start(ctx, "search.filters")
	defer func() { endSpan(span, err) }()

	body, err := c.get(ctx, "/search/filters", nil)
	if err != nil {
		return domain.Facets{}, err
	}
	return decodeFacets(body)
}

func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	u := c.base + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{
			StatusCode: resp.StatusCode,
			Code:       gjson.GetBytes(body, "code").String(),
			Message:    gjson.GetBytes(body, "message").String(),
		}
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("get %s: response is not valid JSON", path)
	}
	return body, nil
}

func decodeResults(t domain.EntityType, body []byte) ([]domain.Locatable, error) {
	items := gjson.GetBytes(body, "items")
	if !items.IsArray() {
		return nil, fmt.Errorf("search response has no items array")
	}
	arr := items.Array()
	out := make([]domain.Locatable, 0, len(arr))
	for i, r := range arr {
		var l domain.Locatable
		switch t {
		case domain.EntitySites:
			var s domain.Site
			if err := json.Unmarshal([]byte(r.Raw), &s); err != nil {
				return nil, fmt.Errorf("decode site %d: %w", i, err)
			}
			l = &s
		default:
			var it domain.Item
			if err := json.Unmarshal([]byte(r.Raw), &it); err != nil {
				return nil, fmt.Errorf("decode item %d: %w", i, err)
			}
			l = &it
		}
		if l.Ref().ID == "" {
			return nil, fmt.Errorf("result %d has no id", i)
		}
		out = append(out, l)
	}
	return out, nil
}

func decodeFacets(body []byte) (domain.Facets, error) {
	res := gjson.ParseBytes(body)
	if !res.IsObject() {
		return domain.Facets{}, fmt.Errorf("filters response is not an object")
	}
	f := domain.Facets{
		Categories: stringArray(res.Get("categories")),
		Tags:       stringArray(res.Get("tags")),
		RatingRange: domain.RatingStats{
			Min:     res.Get("rating_range.min").Float(),
			Max:     res.Get("rating_range.max").Float(),
			Average: res.Get("rating_range.average").Float(),
		},
	}
	return f, nil
}

func stringArray(r gjson.Result) []string {
	arr := r.Array()
	out := make([]string, 0, len(arr))
	for _, v := range arr {
		if s := v.String(); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
