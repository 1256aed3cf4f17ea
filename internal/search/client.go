package search

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// DefaultEndpoint is the NYT Article Search API.
const DefaultEndpoint = "https://api.nytimes.com/svc/search/v2/articlesearch.json"

const maxBodyBytes = 8 << 20

// Fetcher performs one search request.
type Fetcher interface {
	Fetch(ctx context.Context) ([]RawItem, error)
}

type Options struct {
	Endpoint string
	APIKey   string
}

type Client struct {
	client   *http.Client
	endpoint string
	apiKey   string
}

// NewClient returns a Client for opts. A nil httpClient uses http.DefaultClient.
func NewClient(httpClient *http.Client, opts Options) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Client{
		client:   httpClient,
		endpoint: endpoint,
		apiKey:   opts.APIKey,
	}
}

func (c *Client) requestURL() (string, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("api-key", c.apiKey)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Fetch issues a single GET against the search endpoint and returns one
// RawItem per docs entry, in response order. Every error is a *FetchError.
func (c *Client) Fetch(ctx context.Context) ([]RawItem, error) {
	target, err := c.requestURL()
	if err != nil {
		return nil, &FetchError{Kind: KindTransport, Message: "building request url", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, &FetchError{Kind: KindTransport, Message: "creating request", Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &FetchError{Kind: KindTransport, Message: "sending request", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		msg := strings.TrimSpace(string(snippet))
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, &FetchError{Kind: KindHTTPStatus, StatusCode: resp.StatusCode, Message: msg}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &FetchError{Kind: KindTransport, StatusCode: resp.StatusCode, Message: "reading body", Err: err}
	}

	items, err := decode(body)
	if err != nil {
		return nil, &FetchError{Kind: KindParse, StatusCode: resp.StatusCode, Message: "decoding response", Err: err}
	}

	slog.Debug("search fetched", "items", len(items), "bytes", len(body))
	return items, nil
}

// String hides the API key when a client is logged.
func (c *Client) String() string {
	return fmt.Sprintf("search.Client(%s)", c.endpoint)
}
