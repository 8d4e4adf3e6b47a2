package app

import (
	"flag"
	"fmt"

	"github.com/grafana/dskit/flagext"
	dslog "github.com/grafana/dskit/log"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/hindsightlabs/hindsight/archive/router"
	"github.com/hindsightlabs/hindsight/modules/cache"
	"github.com/hindsightlabs/hindsight/modules/keymanager"
	"github.com/hindsightlabs/hindsight/modules/orchestrator"
	"github.com/hindsightlabs/hindsight/pkg/extraction"
	"github.com/hindsightlabs/hindsight/pkg/util"
)

// Config is the root config for the hindsight server.
type Config struct {
	Target string `yaml:"target,omitempty"`

	Server       ServerConfig        `yaml:"server,omitempty"`
	Archive      router.Config       `yaml:"archive,omitempty"`
	Extraction   extraction.Config   `yaml:"extraction,omitempty"`
	Orchestrator orchestrator.Config `yaml:"orchestrator,omitempty"`
	Keys         keymanager.Config   `yaml:"keys,omitempty"`
	Search       SearchConfig        `yaml:"search,omitempty"`
	Cache        cache.Config        `yaml:"cache,omitempty"`
}

// ServerConfig covers the ops HTTP endpoint and logging.
type ServerConfig struct {
	HTTPListenAddress string      `yaml:"http_listen_address"`
	HTTPListenPort    int         `yaml:"http_listen_port"`
	LogLevel          dslog.Level `yaml:"log_level"`
	LogFormat         string      `yaml:"log_format"`
}

// SearchConfig points document indexing at the search engine. An empty URL
// disables indexing; ingestion still runs.
type SearchConfig struct {
	URL         string         `yaml:"url"`
	APIKey      flagext.Secret `yaml:"api_key"`
	IndexPrefix string         `yaml:"index_prefix"`
}

func (cfg *SearchConfig) RegisterFlagsAndApplyDefaults(string, *flag.FlagSet) {
	cfg.IndexPrefix = "project_"
}

// RegisterFlagsAndApplyDefaults registers flags.
func (c *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	c.Target = All
	f.StringVar(&c.Target, "target", All, "target module")

	// Server settings
	c.Server.LogFormat = "logfmt"
	_ = c.Server.LogLevel.Set("info")
	c.Server.LogLevel.RegisterFlags(f)
	f.StringVar(&c.Server.HTTPListenAddress, "server.http-listen-address", "", "HTTP server listen address.")
	f.IntVar(&c.Server.HTTPListenPort, "server.http-listen-port", 3200, "HTTP server listen port.")

	// Everything else
	c.Archive.RegisterFlagsAndApplyDefaults(util.PrefixConfig(prefix, "archive"), f)
	c.Extraction.RegisterFlagsAndApplyDefaults(util.PrefixConfig(prefix, "extraction"), f)
	c.Orchestrator.RegisterFlagsAndApplyDefaults(util.PrefixConfig(prefix, "orchestrator"), f)
	c.Keys.RegisterFlagsAndApplyDefaults(util.PrefixConfig(prefix, "keys"), f)
	c.Search.RegisterFlagsAndApplyDefaults(util.PrefixConfig(prefix, "search"), f)
	c.Cache.RegisterFlagsAndApplyDefaults(util.PrefixConfig(prefix, "cache"), f)
}

// Validate rejects configs that cannot run at all. Suspect but runnable
// settings are CheckConfig warnings instead.
func (c *Config) Validate() error {
	if err := c.Archive.Validate(); err != nil {
		return errors.Wrap(err, "archive")
	}
	if err := c.Orchestrator.Validate(); err != nil {
		return errors.Wrap(err, "orchestrator")
	}
	if err := c.Keys.Validate(); err != nil {
		return errors.Wrap(err, "keys")
	}
	if err := c.Cache.Validate(); err != nil {
		return errors.Wrap(err, "cache")
	}
	return nil
}

// ConfigWarning bundles a warning message with an explanation for the
// operator.
type ConfigWarning struct {
	Message string
	Explain string
}

var (
	warnSearchDisabled = ConfigWarning{
		Message: "search.url is empty",
		Explain: "extracted pages are stored but never indexed; search and key management are off",
	}
	warnKeysWithoutSearch = ConfigWarning{
		Message: "keys.url is set but search.url is empty",
		Explain: "keys will be scoped to indexes no component writes to",
	}
	warnStructuredWithoutURL = ConfigWarning{
		Message: "extraction.hybrid.enabled is true but structured_url is empty",
		Explain: "all extraction will take the local path",
	}
	warnCacheDisabled = ConfigWarning{
		Message: "cache.backend is none",
		Explain: "every CDX page and collection listing is refetched from the providers",
	}
	warnNoFallbacks = ConfigWarning{
		Message: "archive.fallback_enabled is true but every fallback source is disabled",
		Explain: "a failing primary source has nowhere to fall back to",
	}
)

// CheckConfig checks if config values are suspect.
func (c *Config) CheckConfig() []ConfigWarning {
	var warnings []ConfigWarning

	if c.Search.URL == "" {
		warnings = append(warnings, warnSearchDisabled)
	}
	if c.Keys.URL != "" && c.Search.URL == "" {
		warnings = append(warnings, warnKeysWithoutSearch)
	}
	if c.Extraction.Hybrid.Enabled && c.Extraction.Hybrid.StructuredURL == "" {
		warnings = append(warnings, warnStructuredWithoutURL)
	}
	if c.Cache.Backend == cache.BackendNone {
		warnings = append(warnings, warnCacheDisabled)
	}
	if c.Archive.FallbackEnabled &&
		!c.Archive.EnableSmartproxyFallback && !c.Archive.EnableProxyFallback &&
		!c.Archive.EnableDirectFallback && !c.Archive.EnableIAFallback &&
		!c.Archive.CommonCrawl.Enabled && !c.Archive.Wayback.Enabled {
		warnings = append(warnings, warnNoFallbacks)
	}

	return warnings
}

// NewDefaultConfig returns a config with every default applied and no file
// or CLI overlay.
func NewDefaultConfig() *Config {
	defaultConfig := &Config{}
	defaultFS := flag.NewFlagSet("", flag.PanicOnError)
	defaultConfig.RegisterFlagsAndApplyDefaults("", defaultFS)
	return defaultConfig
}

// configDiff renders only the settings that differ from the defaults, the
// same shape operators know from the full config dump.
func configDiff(actual *Config) ([]byte, error) {
	defaults := NewDefaultConfig()

	actualYAML, err := yamlMap(actual)
	if err != nil {
		return nil, err
	}
	defaultYAML, err := yamlMap(defaults)
	if err != nil {
		return nil, err
	}

	diff := diffMaps(defaultYAML, actualYAML)
	return yaml.Marshal(diff)
}

func yamlMap(cfg *Config) (map[string]interface{}, error) {
	buf, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	out := map[string]interface{}{}
	if err := yaml.Unmarshal(buf, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// diffMaps keeps the entries of actual that differ from defaults. Nested
// maps diff recursively; anything else compares by rendered value.
func diffMaps(defaults, actual map[string]interface{}) map[string]interface{} {
	diff := map[string]interface{}{}
	for k, av := range actual {
		dv, ok := defaults[k]
		if !ok {
			diff[k] = av
			continue
		}
		am, aIsMap := av.(map[string]interface{})
		dm, dIsMap := dv.(map[string]interface{})
		if aIsMap && dIsMap {
			if sub := diffMaps(dm, am); len(sub) > 0 {
				diff[k] = sub
			}
			continue
		}
		if fmt.Sprintf("%v", av) != fmt.Sprintf("%v", dv) {
			diff[k] = av
		}
	}
	return diff
}
