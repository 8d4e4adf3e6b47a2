// Package filter classifies and drops captures that should not enter the
// extraction pipeline: out-of-size records, file attachments, list-style
// index pages and duplicate digests.
package filter

import (
	"net/url"
	gopath "path"
	"regexp"
	"strings"

	"github.com/hindsightlabs/hindsight/pkg/model"
)

// staticAssetExtensions never carry indexable prose. Strategies drop these at
// the provider boundary, before captures reach the pipeline.
var staticAssetExtensions = map[string]struct{}{
	".css": {}, ".js": {}, ".png": {}, ".jpg": {}, ".jpeg": {}, ".gif": {},
	".svg": {}, ".ico": {}, ".woff": {}, ".woff2": {}, ".ttf": {}, ".eot": {},
	".map": {},
}

// attachmentExtensions are document, archive and media formats. They are only
// kept when the domain opts in with include_attachments.
var attachmentExtensions = map[string]struct{}{
	".pdf": {}, ".doc": {}, ".docx": {}, ".xls": {}, ".xlsx": {},
	".ppt": {}, ".pptx": {}, ".odt": {}, ".ods": {}, ".rtf": {},
	".zip": {}, ".rar": {}, ".7z": {}, ".tar": {}, ".gz": {},
	".mp3": {}, ".mp4": {}, ".avi": {}, ".mov": {}, ".wmv": {},
	".wav": {}, ".flv": {}, ".mkv": {}, ".epub": {}, ".mobi": {},
}

// listPagePathPatterns match index-style paths: section roots, date archives,
// pagination, feeds, admin surfaces, sitemaps and taxonomy listings. The set
// may grow, but only monotonically: a new pattern may only filter more.
var listPagePathPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^/(blog|news|articles?|archives?|posts?)/?$`),
	regexp.MustCompile(`/(19|20)\d{2}(/\d{1,2}(/\d{1,2})?)?/?$`), // date archive at path end
	regexp.MustCompile(`/page/\d+`),
	regexp.MustCompile(`/(feed|rss|atom)(/|$)`),
	regexp.MustCompile(`/(wp-admin|wp-login|wp-json|admin|login)(/|$)`),
	regexp.MustCompile(`/sitemap[^/]*$`),
	regexp.MustCompile(`/(tags?|categor(y|ies)|author|topics?)(/|$)`),
	regexp.MustCompile(`/(search|index)(/|\.\w+)?$`),
}

var listPageQueryPattern = regexp.MustCompile(`(^|&)(page|search|filter|sort|tag|category)=`)

// IsStaticAsset reports whether the URL names a stylesheet, script, image or
// font by extension.
func IsStaticAsset(rawURL string) bool {
	return hasExtension(rawURL, staticAssetExtensions)
}

// IsAttachment reports whether the URL names a downloadable document or media
// file by extension.
func IsAttachment(rawURL string) bool {
	return hasExtension(rawURL, attachmentExtensions)
}

// IsListPage reports whether the URL looks like a listing rather than a
// content page. A URL is a list page when its path matches one of the index
// patterns, its query string carries a pagination or search parameter, the
// path is shallow (at most 4 segments, none longer than 10 characters), or
// the URL carries more than two '&' query separators. The classification is
// idempotent: it depends only on the URL. Unparseable URLs are kept.
func IsListPage(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}

	path := strings.ToLower(u.Path)
	for _, re := range listPagePathPatterns {
		if re.MatchString(path) {
			return true
		}
	}
	if listPageQueryPattern.MatchString(strings.ToLower(u.RawQuery)) {
		return true
	}

	// Shallow paths made of short segments are section indexes, not
	// articles: /blog/, /news/2020/ and the like. A single long slug
	// (/about/our-mission-and-team) marks a real page.
	segments := pathSegments(path)
	if len(segments) <= 4 {
		long := false
		for _, s := range segments {
			if len(s) > 10 {
				long = true
				break
			}
		}
		if !long {
			return true
		}
	}

	return strings.Count(rawURL, "&") > 2
}

func pathSegments(path string) []string {
	var out []string
	for _, s := range strings.Split(path, "/") {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func hasExtension(rawURL string, set map[string]struct{}) bool {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		p = u.Path
	}
	ext := strings.ToLower(gopath.Ext(p))
	if ext == "" {
		return false
	}
	_, ok := set[ext]
	return ok
}

// Stats counts the outcome of one pipeline run.
type Stats struct {
	SizeFiltered       int `json:"size_filtered"`
	AttachmentFiltered int `json:"attachment_filtered"`
	ListPagesFiltered  int `json:"list_pages_filtered"`
	DuplicateFiltered  int `json:"duplicate_filtered"`
	Kept               int `json:"kept"`
}

// Options configure a pipeline for one domain.
type Options struct {
	MinSize            int64 // 0 means no minimum
	MaxSize            int64 // 0 means no maximum
	IncludeAttachments bool
}

// Pipeline applies the filter passes in a fixed order: size, attachment,
// list page, digest de-duplication. Passes preserve the relative order of
// kept captures. Seen digests accumulate across Apply calls, so a single
// pipeline instance deduplicates a whole paginated run. Not safe for
// concurrent use.
type Pipeline struct {
	opts  Options
	seen  map[string]struct{}
	stats Stats
}

// NewPipeline builds a pipeline seeded with digests already present in the
// store, so re-runs do not re-ingest known content.
func NewPipeline(opts Options, existingDigests map[string]struct{}) *Pipeline {
	seen := make(map[string]struct{}, len(existingDigests))
	for d := range existingDigests {
		seen[d] = struct{}{}
	}
	return &Pipeline{opts: opts, seen: seen}
}

// Apply filters one page of captures and returns the kept records in their
// original relative order.
func (p *Pipeline) Apply(captures []model.Capture) []model.Capture {
	kept := make([]model.Capture, 0, len(captures))
	for _, c := range captures {
		if !p.sizeOK(c) {
			p.stats.SizeFiltered++
			continue
		}

		attachment := IsAttachment(c.OriginalURL) || c.IsPDF()
		if attachment && !p.opts.IncludeAttachments {
			p.stats.AttachmentFiltered++
			continue
		}
		// List heuristics describe page URLs. A kept attachment is a
		// file, never a listing.
		if !attachment && IsListPage(c.OriginalURL) {
			p.stats.ListPagesFiltered++
			continue
		}

		if _, dup := p.seen[c.Digest]; dup {
			p.stats.DuplicateFiltered++
			continue
		}
		if c.Digest != "" {
			p.seen[c.Digest] = struct{}{}
		}

		p.stats.Kept++
		kept = append(kept, c)
	}
	return kept
}

// Stats returns the counters accumulated so far.
func (p *Pipeline) Stats() Stats {
	return p.stats
}

// sizeOK applies the length window. Length 0 means the provider did not
// report a size; those records pass.
func (p *Pipeline) sizeOK(c model.Capture) bool {
	if c.Length == 0 {
		return true
	}
	if p.opts.MinSize > 0 && c.Length < p.opts.MinSize {
		return false
	}
	if p.opts.MaxSize > 0 && c.Length > p.opts.MaxSize {
		return false
	}
	return true
}
