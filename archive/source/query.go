package source

import (
	"github.com/hindsightlabs/hindsight/pkg/cdx"
	"github.com/hindsightlabs/hindsight/pkg/model"
)

// BuildQuery maps a domain spec onto the CDX grammar shared by the wayback
// and common crawl index providers. Neither provider has a native regex match
// type: regex queries widen to matchType=domain and filter original URLs
// server side.
func BuildQuery(d model.Domain, pageSize int) cdx.Query {
	q := cdx.NewQuery(queryTarget(d))
	q.From = d.FromDate
	q.To = d.ToDate
	q.PageSize = pageSize
	q.MimeTypes = QueryMimeTypes(d.IncludeAttachments)
	q.MinLength = d.MinPageSize
	q.MaxLength = d.MaxPageSize

	if d.MatchType == model.MatchRegex {
		q.MatchType = model.MatchDomain
		q.URLFilter = RegexPattern(d)
	} else {
		q.MatchType = d.MatchType
	}
	return q
}

// RegexPattern is the URL pattern a regex domain filters originals with: the
// url_path when given, the bare name otherwise.
func RegexPattern(d model.Domain) string {
	if d.URLPath != "" {
		return d.URLPath
	}
	return d.Name
}

// QueryMimeTypes is the MIME allow-list for a query: HTML always, PDF when
// the domain opts into attachments.
func QueryMimeTypes(includeAttachments bool) []string {
	if includeAttachments {
		return []string{"text/html", "application/pdf"}
	}
	return []string{"text/html"}
}

func queryTarget(d model.Domain) string {
	if d.URLPath != "" && (d.MatchType == model.MatchExact || d.MatchType == model.MatchPrefix) {
		return d.Name + d.URLPath
	}
	return d.Name
}
