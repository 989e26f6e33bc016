// client.go contains the http side of talking to the organizer console: fetching the admin
// page and posting forms. It knows nothing about the markup of the pages.

package showroom

import (
	"context"
	"fmt"
	"net/http/cookiejar"
	"net/url"
	"showroom-approver/internal/components/assert"
	"showroom-approver/internal/components/telemetry"
	"showroom-approver/pkg/restyutil"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"
)

const (
	report_client_fetch_admin_page = "client.fetch-admin-page"
	report_client_submit           = "client.submit"
	report_client_approve          = "client.approve"
	report_client_scan_pending     = "client.scan-pending"
)

// MaxRequestTimeout bounds every request including its redirects, a hanging request must
// never hold up a scheduler that is being stopped for longer than this.
const MaxRequestTimeout = 15 * time.Second

var tracer = otel.Tracer("showroom-approver/internal/scrapers/showroom")

type ClientOptions struct {
	// BaseUrl defaults to DefaultBaseUrl.
	BaseUrl string
	// Timeout defaults to MaxRequestTimeout and is capped by it.
	Timeout time.Duration
	// RequestsPerSecond limits outgoing requests, 0 disables the limit.
	RequestsPerSecond float64
	// CloudflareBypass wraps the transport with browser-like TLS settings and headers.
	CloudflareBypass bool
	// Dump receives every raw request and response when set.
	Dump restyutil.Output
}

// Client is the authenticated http client of a Session.
type Client struct {
	BaseUrl *url.URL
	Http    *resty.Client

	scanner Scanner
	tel     telemetry.API
}

func NewClient(session Session, opts ClientOptions, tel telemetry.API) (*Client, error) {
	assert.NotNil(tel)
	tel = telemetry.NewScopedAPI("showroom_scraper", tel)

	if opts.BaseUrl == "" {
		opts.BaseUrl = DefaultBaseUrl
	}
	if opts.Timeout <= 0 || opts.Timeout > MaxRequestTimeout {
		opts.Timeout = MaxRequestTimeout
	}

	baseUrl, err := url.Parse(opts.BaseUrl)
	if err != nil {
		return nil, err
	}
	if baseUrl.Scheme == "" || baseUrl.Host == "" {
		return nil, fmt.Errorf("showroom: base url must be absolute: %q", opts.BaseUrl)
	}
	baseUrl.Path = ""
	baseUrl.RawQuery = ""

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}
	jar.SetCookies(baseUrl.ResolveReference(&url.URL{Path: "/"}), session.HttpCookies())

	httpClient := resty.New()
	httpClient.SetBaseURL(baseUrl.String())
	httpClient.SetCookieJar(jar)
	if opts.CloudflareBypass {
		httpClient.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(httpClient.GetClient().Transport)
	}
	httpClient.SetHeaders(session.Headers())
	httpClient.SetRedirectPolicy(
		resty.FlexibleRedirectPolicy(10),
		resty.DomainCheckRedirectPolicy(baseUrl.Hostname()),
	)
	httpClient.SetTimeout(opts.Timeout)

	if opts.RequestsPerSecond > 0 {
		rateLimiter := rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
		httpClient.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
			return rateLimiter.Wait(req.Context())
		})
	}

	telemetry.InstrumentResty(httpClient, tel)
	restyutil.DumpMessages(httpClient, opts.Dump)

	return &Client{
		BaseUrl: baseUrl,
		Http:    httpClient,
		scanner: NewScanner(tel),
		tel:     tel,
	}, nil
}

// Url resolves a path against the base url.
func (c *Client) Url(path string) *url.URL {
	return c.BaseUrl.ResolveReference(&url.URL{Path: path})
}

func finalUrl(res *resty.Response) *url.URL {
	if res.RawResponse != nil && res.RawResponse.Request != nil {
		return res.RawResponse.Request.URL
	}
	parsed, err := url.Parse(res.Request.URL)
	if err != nil {
		return nil
	}
	return parsed
}

// checkResponse turns a resty result into a TransportError, res is nil when the request
// was aborted by a hook before being sent.
func checkResponse(method, requestUrl string, res *resty.Response, err error) error {
	if err != nil {
		status := 0
		if res != nil && res.RawResponse != nil {
			status = res.StatusCode()
		}
		return &TransportError{Method: method, Url: requestUrl, Status: status, Err: err}
	}
	if res.StatusCode() >= 400 {
		return &TransportError{Method: method, Url: finalUrl(res).String(), Status: res.StatusCode()}
	}
	return nil
}

// FetchAdminPage fetches the organizer admin page, following redirects.
func (c *Client) FetchAdminPage(ctx context.Context) (Page, error) {
	ctx, span := tracer.Start(ctx, "client:FetchAdminPage")
	defer span.End()

	requestUrl := c.Url(AdminPath).String()
	res, err := c.Http.R().
		SetContext(ctx).
		SetHeaders(map[string]string{
			"Referer": c.Url(OrganizerTopPath).String(),
			"Accept":  "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
		}).
		Get(requestUrl)
	err = checkResponse("GET", requestUrl, res, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch admin page")
		c.tel.ReportBroken(report_client_fetch_admin_page, err)
		return Page{}, err
	}

	page := Page{
		Html:   res.String(),
		Url:    finalUrl(res),
		Status: res.StatusCode(),
	}
	span.SetAttributes(
		attribute.String("final_url", page.Url.String()),
		attribute.Int("status", page.Status),
	)
	return page, nil
}

// Submit posts a url-encoded form to path as an XHR, following redirects.
func (c *Client) Submit(ctx context.Context, path string, form map[string]string) (SubmitResult, error) {
	ctx, span := tracer.Start(ctx, "client:Submit")
	defer span.End()

	requestUrl := c.Url(path).String()
	res, err := c.Http.R().
		SetContext(ctx).
		SetHeaders(map[string]string{
			"Referer":          c.Url(AdminPath).String(),
			"X-Requested-With": "XMLHttpRequest",
			"Accept":           "*/*",
		}).
		SetFormData(form).
		Post(requestUrl)
	err = checkResponse("POST", requestUrl, res, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to submit form")
		c.tel.ReportBroken(report_client_submit, err, path)
		return SubmitResult{}, err
	}

	result := SubmitResult{
		Url:    finalUrl(res),
		Status: res.StatusCode(),
	}
	span.SetAttributes(
		attribute.String("final_url", result.Url.String()),
		attribute.Int("status", result.Status),
	)
	return result, nil
}
