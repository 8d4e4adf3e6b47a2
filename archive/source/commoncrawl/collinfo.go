package commoncrawl

import (
	"context"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"

	"github.com/hindsightlabs/hindsight/pkg/cache"
	"github.com/hindsightlabs/hindsight/pkg/cdx"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const collinfoCacheKey = "commoncrawl/collinfo"

// crawlInfo is one entry of collinfo.json: a monthly crawl and its CDX
// endpoint.
type crawlInfo struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	CDXAPI string `json:"cdx-api"`
}

// catalog fetches the crawl catalog and answers which crawls overlap a date
// window. The raw catalog body is cached; the TTL comes from the cache
// backend.
type catalog struct {
	endpoint string
	client   *cdx.Client
	cache    cache.Cache // may be nil
	logger   log.Logger
}

func newCatalog(endpoint string, client *cdx.Client, c cache.Cache, logger log.Logger) *catalog {
	return &catalog{endpoint: endpoint, client: client, cache: c, logger: logger}
}

func (c *catalog) crawls(ctx context.Context) ([]crawlInfo, error) {
	if c.cache != nil {
		if raw, ok := c.cache.Fetch(ctx, collinfoCacheKey); ok {
			var infos []crawlInfo
			if err := json.Unmarshal(raw, &infos); err == nil {
				return infos, nil
			}
			level.Warn(c.logger).Log("msg", "discarding unparseable cached crawl catalog")
		}
	}

	raw, err := c.client.Get(ctx, c.endpoint+"/collinfo.json")
	if err != nil {
		return nil, errors.Wrap(err, "fetching crawl catalog")
	}

	var infos []crawlInfo
	if err := json.Unmarshal(raw, &infos); err != nil {
		return nil, errors.Wrap(err, "parsing crawl catalog")
	}

	if c.cache != nil {
		c.cache.Store(ctx, collinfoCacheKey, raw)
	}
	return infos, nil
}

// crawlsInWindow returns the crawls whose collection window overlaps
// [from, to] (YYYYMMDD, either may be empty), newest first. Crawls with
// unparseable ids are skipped.
func (c *catalog) crawlsInWindow(ctx context.Context, from, to string) ([]crawlInfo, error) {
	infos, err := c.crawls(ctx)
	if err != nil {
		return nil, err
	}

	fromT := parseDay(from, time.Time{})
	toT := parseDay(to, time.Now().UTC())

	type dated struct {
		info  crawlInfo
		start time.Time
	}
	var selected []dated
	for _, info := range infos {
		start, end, ok := crawlWindow(info.ID)
		if !ok {
			continue
		}
		if start.After(toT) || end.Before(fromT) {
			continue
		}
		selected = append(selected, dated{info: info, start: start})
	}

	sort.Slice(selected, func(i, j int) bool {
		return selected[i].start.After(selected[j].start)
	})

	out := make([]crawlInfo, 0, len(selected))
	for _, d := range selected {
		out = append(out, d.info)
	}
	return out, nil
}

var crawlIDPattern = regexp.MustCompile(`^CC-MAIN-(\d{4})-(\d{2})$`)

// crawlWindow derives the approximate collection window from a
// CC-MAIN-<year>-<week> id. A crawl runs for about two weeks starting in its
// labeled ISO week.
func crawlWindow(id string) (time.Time, time.Time, bool) {
	m := crawlIDPattern.FindStringSubmatch(id)
	if m == nil {
		return time.Time{}, time.Time{}, false
	}

	year, _ := strconv.Atoi(m[1])
	week, _ := strconv.Atoi(m[2])
	if week < 1 || week > 53 {
		return time.Time{}, time.Time{}, false
	}

	start := isoWeekStart(year, week)
	return start, start.AddDate(0, 0, 14), true
}

// isoWeekStart returns the Monday of the given ISO week. January 4th is
// always inside week 1.
func isoWeekStart(year, week int) time.Time {
	jan4 := time.Date(year, time.January, 4, 0, 0, 0, 0, time.UTC)
	weekday := int(jan4.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	monday := jan4.AddDate(0, 0, 1-weekday)
	return monday.AddDate(0, 0, (week-1)*7)
}

func parseDay(day string, fallback time.Time) time.Time {
	if day == "" {
		return fallback
	}
	t, err := time.ParseInLocation("20060102", day, time.UTC)
	if err != nil {
		return fallback
	}
	return t
}
