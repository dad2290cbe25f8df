package schulmanager

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"schulmanager-online/internal/components/assert"
	"schulmanager-online/internal/components/telemetry"
	"schulmanager-online/lib/util/restyutil"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

const (
	DefaultEndpoint      = "https://login.schulmanager-online.de/api/calls"
	DefaultBundleVersion = "c2a60433dcd7c3fc6ee1"

	requestTimeout = 10 * time.Second
)

const (
	report_client_fetch   = "client.fetch"
	report_client_letters = "client.letters"
)

type clientConfig struct {
	endpoint      string
	bundleVersion string
	tel           telemetry.API
	dump          restyutil.Output
}

type ClientOption func(cfg *clientConfig)

// WithEndpoint replaces the api url, used to point the client at a test server.
func WithEndpoint(endpoint string) ClientOption {
	return func(cfg *clientConfig) {
		cfg.endpoint = endpoint
	}
}

func WithBundleVersion(version string) ClientOption {
	return func(cfg *clientConfig) {
		cfg.bundleVersion = version
	}
}

func WithTelemetry(tel telemetry.API) ClientOption {
	return func(cfg *clientConfig) {
		cfg.tel = tel
	}
}

// WithDump writes every request and response to output.
func WithDump(output restyutil.Output) ClientOption {
	return func(cfg *clientConfig) {
		cfg.dump = output
	}
}

// Client talks to the JSON rpc style endpoint of Schulmanager Online.
type Client struct {
	http          *resty.Client
	endpoint      string
	bundleVersion string
	tel           telemetry.API
}

// NewClient creates a client authenticated with the given api token.
func NewClient(token string, options ...ClientOption) *Client {
	assert.NotEmptyStr(token, "api token")

	cfg := clientConfig{
		endpoint:      DefaultEndpoint,
		bundleVersion: DefaultBundleVersion,
		tel:           telemetry.SlogAPI{},
	}
	for _, opt := range options {
		opt(&cfg)
	}
	tel := telemetry.NewScopedAPI("schulmanager_api", cfg.tel)

	httpClient := resty.New()
	httpClient.SetTimeout(requestTimeout)
	httpClient.SetAuthToken(token)
	httpClient.SetHeader("Content-Type", "application/json")
	httpClient.SetHeader("user-agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36")
	httpClient.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(httpClient.GetClient().Transport)

	// 2 requests max per second
	// max burst >= 2 just means that no requests will be dropped
	rateLimiter := rate.NewLimiter(2, 2)
	httpClient.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		return rateLimiter.Wait(req.Context())
	})
	telemetry.InstrumentResty(httpClient, "schulmanager/api", tel)
	restyutil.DumpClient(httpClient, cfg.dump)

	return &Client{
		http:          httpClient,
		endpoint:      cfg.endpoint,
		bundleVersion: cfg.bundleVersion,
		tel:           tel,
	}
}

type callRequest struct {
	ModuleName   string `json:"moduleName"`
	EndpointName string `json:"endpointName"`
}

type callBody struct {
	BundleVersion string        `json:"bundleVersion"`
	Requests      []callRequest `json:"requests"`
}

func (c *Client) post(ctx context.Context, moduleName, endpointName string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	body, err := json.Marshal(callBody{
		BundleVersion: c.bundleVersion,
		Requests: []callRequest{{
			ModuleName:   moduleName,
			EndpointName: endpointName,
		}},
	})
	if err != nil {
		return nil, apiError(0, fmt.Errorf("json marshal: %w", err))
	}

	res, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		Post(c.endpoint)
	if err != nil {
		c.tel.ReportWarning(report_client_fetch, moduleName, endpointName, err)
		return nil, apiError(0, fmt.Errorf("request failed: %w", err))
	}

	switch status := res.StatusCode(); {
	case status == http.StatusUnauthorized:
		return nil, authError(status)
	case status < 200 || status > 299:
		c.tel.ReportWarning(report_client_fetch, moduleName, endpointName, res.Status())
		return nil, apiError(status, fmt.Errorf("request failed with status %s", res.Status()))
	}
	return res.Body(), nil
}

// Fetch calls one endpoint of one module and returns the decoded response object.
func (c *Client) Fetch(ctx context.Context, moduleName, endpointName string) (map[string]any, error) {
	body, err := c.post(ctx, moduleName, endpointName)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	err = json.Unmarshal(body, &out)
	if err != nil {
		return nil, apiError(0, fmt.Errorf("json unmarshal: %w", err))
	}
	return out, nil
}

// TestConnection reports whether letters can be fetched with the configured token.
func (c *Client) TestConnection(ctx context.Context) bool {
	_, err := c.Letters(ctx)
	return err == nil
}
