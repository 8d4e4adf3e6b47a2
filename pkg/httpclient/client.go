package httpclient

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	jsoniter "github.com/json-iterator/go"
	"github.com/klauspost/compress/gzhttp"

	"github.com/hindsightlabs/hindsight/archive/router"
)

const (
	PathReady         = "/ready"
	PathStatusVersion = "/status/version"
	PathStatusSources = "/status/sources"

	acceptHeader    = "Accept"
	applicationJSON = "application/json"
)

var ErrNotFound = errors.New("resource not found")

// Client is a client to the hindsight HTTP API.
type Client struct {
	BaseURL string
	client  *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		client:  &http.Client{},
	}
}

// NewWithCompression returns a client that transparently negotiates gzip
// with the server.
func NewWithCompression(baseURL string) *Client {
	c := New(baseURL)
	c.WithTransport(gzhttp.Transport(http.DefaultTransport))
	return c
}

func (c *Client) WithTransport(t http.RoundTripper) {
	c.client.Transport = t
}

func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.client.Do(req)
}

// VersionResponse is the body of /status/version.
type VersionResponse struct {
	Version   string `json:"version"`
	Revision  string `json:"revision"`
	Branch    string `json:"branch"`
	GoVersion string `json:"go_version"`
}

// SourcesStatus is the body of /status/sources.
type SourcesStatus struct {
	Health  router.Health            `json:"health"`
	Sources []router.MetricsSnapshot `json:"sources"`
}

// ScrapeAccepted is the body of a successful POST to /ops/scrape/{projectID}.
type ScrapeAccepted struct {
	ProjectID string `json:"project_id"`
	Status    string `json:"status"`
}

// getFor sends a GET request and decodes the JSON response into v.
func (c *Client) getFor(url string, v interface{}) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set(acceptHeader, applicationJSON)

	resp, body, err := c.doRequest(req)
	if err != nil {
		return resp, err
	}

	if err = jsoniter.Unmarshal(body, v); err != nil {
		return resp, fmt.Errorf("error decoding %T json, err: %v body: %s", v, err, string(body))
	}

	return resp, nil
}

// doRequest sends the given request and turns bad status codes into errors.
func (c *Client) doRequest(req *http.Request) (*http.Response, []byte, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("error querying hindsight %v", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 400 && resp.StatusCode <= 599 {
		body, _ := io.ReadAll(resp.Body)
		return resp, body, fmt.Errorf("%s request to %s failed with response: %d body: %s", req.Method, req.URL.String(), resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("error reading response body: %w", err)
	}

	return resp, body, nil
}

// Ready reports whether every service on the server is running.
func (c *Client) Ready() error {
	req, err := http.NewRequest(http.MethodGet, c.BaseURL+PathReady, nil)
	if err != nil {
		return err
	}

	_, _, err = c.doRequest(req)
	return err
}

func (c *Client) Version() (*VersionResponse, error) {
	m := &VersionResponse{}
	_, err := c.getFor(c.BaseURL+PathStatusVersion, m)
	if err != nil {
		return nil, err
	}

	return m, nil
}

func (c *Client) SourcesStatus() (*SourcesStatus, error) {
	m := &SourcesStatus{}
	_, err := c.getFor(c.BaseURL+PathStatusSources, m)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// StartScrape asks the server to run a scrape session for the project. The
// session runs in the background on the server; a nil error only means it
// was accepted.
func (c *Client) StartScrape(projectID string) (*ScrapeAccepted, error) {
	req, err := http.NewRequest(http.MethodPost, c.BaseURL+"/ops/scrape/"+url.PathEscape(projectID), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set(acceptHeader, applicationJSON)

	resp, body, err := c.doRequest(req)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}

	m := &ScrapeAccepted{}
	if err = jsoniter.Unmarshal(body, m); err != nil {
		return nil, fmt.Errorf("error decoding %T json, err: %v body: %s", m, err, string(body))
	}

	return m, nil
}
