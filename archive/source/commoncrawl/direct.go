package commoncrawl

import (
	"bufio"
	"bytes"
	"context"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"

	"github.com/hindsightlabs/hindsight/archive/filter"
	"github.com/hindsightlabs/hindsight/archive/source"
	"github.com/hindsightlabs/hindsight/pkg/cache"
	"github.com/hindsightlabs/hindsight/pkg/cdx"
	"github.com/hindsightlabs/hindsight/pkg/circuitbreaker"
	"github.com/hindsightlabs/hindsight/pkg/model"
)

// DefaultDataEndpoint serves the raw crawl data and index segment files.
const DefaultDataEndpoint = "https://data.commoncrawl.org"

// DirectConfig configures the direct_cc strategy.
type DirectConfig struct {
	DataURL              string `yaml:"data_url"`
	CacheDir             string `yaml:"cache_dir"`
	MaxRecordsPerSegment int    `yaml:"max_records_per_segment"`
}

func (cfg *DirectConfig) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	cfg.DataURL = DefaultDataEndpoint
	cfg.MaxRecordsPerSegment = 5000
}

// Direct is the direct_cc strategy. It never touches the index API: it scans
// each crawl's cluster listing for the index blocks covering the domain,
// range reads those gzip blocks from the data endpoint and parses the CDX(J)
// lines itself. Blocks land in a local file cache keyed by crawl and segment
// so a re-run does not redownload them.
type Direct struct {
	cfg     source.Config
	dcfg    DirectConfig
	client  *cdx.Client
	catalog *catalog
	breaker *circuitbreaker.CircuitBreaker
	logger  log.Logger
}

var _ source.Source = (*Direct)(nil)

// NewDirect builds the direct_cc strategy.
func NewDirect(cfg source.Config, dcfg DirectConfig, breaker *circuitbreaker.CircuitBreaker, catalogCache cache.Cache, logger log.Logger) (*Direct, error) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultIndexEndpoint
	}
	if dcfg.DataURL == "" {
		dcfg.DataURL = DefaultDataEndpoint
	}

	client, err := cdx.NewClient(cdx.ClientConfig{
		Timeout:            cfg.Timeout,
		MaxRetries:         cfg.MaxRetries,
		RateLimitPerSecond: cfg.RateLimitPerSecond,
		UserAgent:          userAgent,
	}, logger)
	if err != nil {
		return nil, errors.Wrap(err, "building cdx client")
	}

	logger = log.With(logger, "source", source.NameDirectCC)
	return &Direct{
		cfg:     cfg,
		dcfg:    dcfg,
		client:  client,
		catalog: newCatalog(cfg.Endpoint, client, catalogCache, logger),
		breaker: breaker,
		logger:  logger,
	}, nil
}

func (d *Direct) Name() string { return source.NameDirectCC }

func (d *Direct) Breaker() *circuitbreaker.CircuitBreaker { return d.breaker }

func (d *Direct) IsRetriable(err error) bool { return source.Retriable(err) }

func (d *Direct) ClassifyError(err error) source.ErrorKind { return source.Classify(err) }

// QueryCaptures scans the index blocks of every crawl overlapping the window.
// Each block counts as one page in the stats.
func (d *Direct) QueryCaptures(ctx context.Context, req source.QueryRequest) (*source.QueryResult, error) {
	start := time.Now()

	matcher, err := newDomainMatcher(req.Domain)
	if err != nil {
		return nil, err
	}

	var crawls []crawlInfo
	err = d.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		crawls, err = d.catalog.crawlsInWindow(ctx, req.Domain.FromDate, req.Domain.ToDate)
		return err
	})
	if err != nil {
		return nil, err
	}

	stats := source.QueryStats{Source: source.NameDirectCC}
	result := &source.QueryResult{}
	if len(crawls) == 0 {
		result.Stats = stats
		return result, nil
	}

	pipeline := filter.NewPipeline(filter.Options{
		MinSize:            req.Domain.MinPageSize,
		MaxSize:            req.Domain.MaxPageSize,
		IncludeAttachments: req.Domain.IncludeAttachments,
	}, req.ExistingDigests)

	var lastErr error
	for _, crawl := range crawls {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		blocks, err := d.blocksForDomain(ctx, crawl.ID, req.Domain)
		if err != nil {
			lastErr = err
			level.Warn(d.logger).Log("msg", "scanning cluster listing failed", "crawl", crawl.ID, "err", err)
			continue
		}
		stats.TotalPages += len(blocks)

		for _, b := range blocks {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}

			records, err := d.readBlock(ctx, crawl.ID, b, matcher)
			if err != nil {
				stats.PagesFailed++
				lastErr = err
				level.Warn(d.logger).Log("msg", "reading index block failed",
					"crawl", crawl.ID, "segment", b.file, "offset", b.offset, "err", err)
				continue
			}
			stats.PagesFetched++
			stats.RecordsFound += len(records)
			result.Captures = append(result.Captures, pipeline.Apply(source.DropStaticAssets(records))...)
		}
	}

	stats.Filter = pipeline.Stats()
	stats.Duration = time.Since(start)
	result.Stats = stats

	if stats.PagesFetched == 0 && lastErr != nil {
		return nil, errors.Wrap(lastErr, "reading index segments")
	}
	return result, nil
}

// indexBlock is one zipnum block: an independently decompressable gzip member
// inside a cdx-*.gz segment file.
type indexBlock struct {
	file   string
	offset int64
	length int64
}

type clusterEntry struct {
	key   string
	block indexBlock
}

// blocksForDomain streams the crawl's cluster listing and picks the blocks
// whose key range may contain the domain. The listing is sorted by SURT key;
// block i covers keys from its own key up to the next entry's key.
func (d *Direct) blocksForDomain(ctx context.Context, crawlID string, domain model.Domain) ([]indexBlock, error) {
	subdomains := domain.MatchType == model.MatchDomain || domain.MatchType == model.MatchRegex
	prefixes := cdx.SURTPrefixes(domain.Name, subdomains)
	lo := prefixes[0]
	hi := prefixes[len(prefixes)-1] + "\xff"

	var blocks []indexBlock
	err := d.breaker.Execute(ctx, func(ctx context.Context) error {
		rc, err := d.client.GetStream(ctx, d.clusterURL(crawlID))
		if err != nil {
			return err
		}
		defer rc.Close()

		scanner := bufio.NewScanner(rc)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		var prev clusterEntry
		havePrev := false
		for scanner.Scan() {
			entry, ok := parseClusterLine(scanner.Text())
			if !ok {
				continue
			}
			if havePrev && prev.key < hi && entry.key > lo {
				blocks = append(blocks, prev.block)
			}
			if entry.key >= hi {
				havePrev = false
				break
			}
			prev, havePrev = entry, true
		}
		if havePrev && prev.key < hi {
			blocks = append(blocks, prev.block)
		}
		return scanner.Err()
	})
	return blocks, err
}

// readBlock returns the matching captures of one index block, capped at
// MaxRecordsPerSegment.
func (d *Direct) readBlock(ctx context.Context, crawlID string, b indexBlock, matcher *domainMatcher) ([]model.Capture, error) {
	raw, hit := d.cachedBlock(crawlID, b)
	if !hit {
		err := d.breaker.Execute(ctx, func(ctx context.Context) error {
			var err error
			raw, err = d.client.GetRange(ctx, d.segmentURL(crawlID, b.file), b.offset, b.length)
			return err
		})
		if err != nil {
			return nil, err
		}
		d.storeBlock(crawlID, b, raw)
	}

	gz, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, errors.Wrap(err, "decompressing index block")
	}
	defer gz.Close()

	var out []model.Capture
	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		c, ok := cdx.ParseCDXJLine(scanner.Text())
		if !ok || c.StatusCode != http.StatusOK {
			continue
		}
		if !matcher.matches(c) {
			continue
		}
		out = append(out, c)
		if d.dcfg.MaxRecordsPerSegment > 0 && len(out) >= d.dcfg.MaxRecordsPerSegment {
			break
		}
	}
	return out, scanner.Err()
}

func (d *Direct) clusterURL(crawlID string) string {
	return fmt.Sprintf("%s/cc-index/collections/%s/indexes/cluster.idx", d.dcfg.DataURL, crawlID)
}

func (d *Direct) segmentURL(crawlID, file string) string {
	return fmt.Sprintf("%s/cc-index/collections/%s/indexes/%s", d.dcfg.DataURL, crawlID, file)
}

func (d *Direct) blockPath(crawlID string, b indexBlock) string {
	if d.dcfg.CacheDir == "" {
		return ""
	}
	return filepath.Join(d.dcfg.CacheDir, crawlID, fmt.Sprintf("%s-%d.gz", b.file, b.offset))
}

func (d *Direct) cachedBlock(crawlID string, b indexBlock) ([]byte, bool) {
	p := d.blockPath(crawlID, b)
	if p == "" {
		return nil, false
	}
	raw, err := os.ReadFile(p)
	if err != nil {
		return nil, false
	}
	return raw, true
}

func (d *Direct) storeBlock(crawlID string, b indexBlock, raw []byte) {
	p := d.blockPath(crawlID, b)
	if p == "" {
		return
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
		level.Warn(d.logger).Log("msg", "creating block cache dir failed", "err", err)
		return
	}
	if err := os.WriteFile(p, raw, 0o600); err != nil {
		level.Warn(d.logger).Log("msg", "writing block cache failed", "err", err)
	}
}

// parseClusterLine parses one cluster.idx line:
// "<surt key> <timestamp>\t<segment file>\t<offset>\t<length>\t<seq>".
func parseClusterLine(line string) (clusterEntry, bool) {
	parts := strings.Split(line, "\t")
	if len(parts) < 4 {
		return clusterEntry{}, false
	}

	key := parts[0]
	if i := strings.IndexByte(key, ' '); i >= 0 {
		key = key[:i]
	}

	offset, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return clusterEntry{}, false
	}
	length, err := strconv.ParseInt(parts[3], 10, 64)
	if err != nil {
		return clusterEntry{}, false
	}

	return clusterEntry{
		key:   key,
		block: indexBlock{file: parts[1], offset: offset, length: length},
	}, true
}

// domainMatcher applies a domain spec and date window to parsed captures.
type domainMatcher struct {
	domain model.Domain
	name   string
	re     *regexp.Regexp
	fromTS string
	toTS   string
}

func newDomainMatcher(d model.Domain) (*domainMatcher, error) {
	m := &domainMatcher{
		domain: d,
		name:   strings.ToLower(d.Name),
	}
	if d.FromDate != "" {
		m.fromTS = d.FromDate + "000000"
	}
	if d.ToDate != "" {
		m.toTS = d.ToDate + "235959"
	}

	if d.MatchType == model.MatchRegex {
		re, err := regexp.Compile(source.RegexPattern(d))
		if err != nil {
			return nil, errors.Wrap(err, "compiling domain pattern")
		}
		m.re = re
	}
	return m, nil
}

func (m *domainMatcher) matches(c model.Capture) bool {
	if m.fromTS != "" && c.Timestamp < m.fromTS {
		return false
	}
	if m.toTS != "" && c.Timestamp > m.toTS {
		return false
	}

	host := cdx.HostOf(c.OriginalURL)
	if host == "" {
		return false
	}

	switch m.domain.MatchType {
	case model.MatchExact:
		return host == m.name && (m.domain.URLPath == "" || urlPathOf(c.OriginalURL) == m.domain.URLPath)
	case model.MatchPrefix:
		return host == m.name && (m.domain.URLPath == "" || strings.HasPrefix(urlPathOf(c.OriginalURL), m.domain.URLPath))
	case model.MatchRegex:
		if host != m.name && !strings.HasSuffix(host, "."+m.name) {
			return false
		}
		return m.re.MatchString(c.OriginalURL)
	default: // domain match includes subdomains
		return host == m.name || strings.HasSuffix(host, "."+m.name)
	}
}

func urlPathOf(rawURL string) string {
	if !strings.Contains(rawURL, "://") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Path
}
