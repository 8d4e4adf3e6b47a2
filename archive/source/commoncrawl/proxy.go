package commoncrawl

import (
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"strings"

	"github.com/grafana/dskit/flagext"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
)

// SmartproxyConfig routes engine HTTP through one residential proxy endpoint
// with credentials. With session stickiness the provider pins one exit IP per
// session id, which rides in the proxy username.
type SmartproxyConfig struct {
	Endpoint          string         `yaml:"endpoint"`
	Username          string         `yaml:"username"`
	Password          flagext.Secret `yaml:"password"`
	SessionStickiness bool           `yaml:"session_stickiness"`
}

func (cfg *SmartproxyConfig) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	cfg.SessionStickiness = true
}

// Enabled reports whether the proxy is configured at all.
func (cfg *SmartproxyConfig) Enabled() bool {
	return cfg.Endpoint != "" && cfg.Username != ""
}

func (cfg *SmartproxyConfig) transport() (http.RoundTripper, error) {
	username := cfg.Username
	if cfg.SessionStickiness {
		username = fmt.Sprintf("%s-session-%d", username, rand.Intn(1000000))
	}

	proxyURL, err := parseProxyEndpoint(cfg.Endpoint)
	if err != nil {
		return nil, err
	}
	proxyURL.User = url.UserPassword(username, cfg.Password.String())

	t := http.DefaultTransport.(*http.Transport).Clone()
	t.Proxy = http.ProxyURL(proxyURL)
	return t, nil
}

// ProxyPoolConfig routes engine HTTP through a pool of generic proxies,
// rotating round-robin per request.
type ProxyPoolConfig struct {
	Endpoints []string `yaml:"endpoints"`
}

func (cfg *ProxyPoolConfig) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
}

// Enabled reports whether the pool has any endpoints.
func (cfg *ProxyPoolConfig) Enabled() bool {
	return len(cfg.Endpoints) > 0
}

func (cfg *ProxyPoolConfig) transport() (http.RoundTripper, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, errors.New("proxy pool has no endpoints")
	}

	urls := make([]*url.URL, 0, len(cfg.Endpoints))
	for _, e := range cfg.Endpoints {
		u, err := parseProxyEndpoint(e)
		if err != nil {
			return nil, err
		}
		urls = append(urls, u)
	}

	var next atomic.Uint32
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.Proxy = func(*http.Request) (*url.URL, error) {
		i := next.Inc() - 1
		return urls[int(i)%len(urls)], nil
	}
	return t, nil
}

func parseProxyEndpoint(endpoint string) (*url.URL, error) {
	if !strings.Contains(endpoint, "://") {
		endpoint = "http://" + endpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing proxy endpoint %q", endpoint)
	}
	if u.Host == "" {
		return nil, errors.Errorf("proxy endpoint %q has no host", endpoint)
	}
	return u, nil
}
